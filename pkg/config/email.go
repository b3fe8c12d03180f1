package config

import (
	"github.com/tendant/simple-idm-twofactor/pkg/notification"
)

// EmailConfig holds SMTP settings for security notifications.
type EmailConfig struct {
	Enabled  bool   `env:"EMAIL_ENABLED" env-default:"false"`
	Host     string `env:"EMAIL_HOST" env-default:"localhost"`
	Port     uint16 `env:"EMAIL_PORT" env-default:"1025"`
	Username string `env:"EMAIL_USERNAME" env-default:"noreply@example.com"`
	Password string `env:"EMAIL_PASSWORD" env-default:"pwd"`
	From     string `env:"EMAIL_FROM" env-default:"noreply@example.com"`
	TLS      bool   `env:"EMAIL_TLS" env-default:"false"`
}

// ToSMTPConfig converts the config to a notification.SMTPConfig
func (e EmailConfig) ToSMTPConfig() notification.SMTPConfig {
	return notification.SMTPConfig{
		Host:     e.Host,
		Port:     int(e.Port),
		Username: e.Username,
		Password: e.Password,
		From:     e.From,
		TLS:      e.TLS,
	}
}

func (e EmailConfig) Validate() ValidationErrors {
	if !e.Enabled {
		return nil
	}
	return CollectErrors(
		RequireNonEmpty("EMAIL_HOST", e.Host),
		RequireNonEmpty("EMAIL_FROM", e.From),
		RequirePositive("EMAIL_PORT", int(e.Port)),
	)
}

// NewEmailConfigFromEnv creates an EmailConfig from environment variables
func NewEmailConfigFromEnv() EmailConfig {
	return EmailConfig{
		Enabled:  GetEnvBool("EMAIL_ENABLED", false),
		Host:     GetEnvOrDefault("EMAIL_HOST", "localhost"),
		Port:     GetEnvUint16("EMAIL_PORT", 1025),
		Username: GetEnvOrDefault("EMAIL_USERNAME", "noreply@example.com"),
		Password: GetEnvOrDefault("EMAIL_PASSWORD", "pwd"),
		From:     GetEnvOrDefault("EMAIL_FROM", "noreply@example.com"),
		TLS:      GetEnvBool("EMAIL_TLS", false),
	}
}

// RateLimitConfig limits how often a single user can attempt a security
// question answer or a device check.
type RateLimitConfig struct {
	Enabled            bool `env:"RATE_LIMIT_ENABLED" env-default:"true"`
	ChallengePerMinute int  `env:"RATE_LIMIT_CHALLENGE_PER_MINUTE" env-default:"10"`
	ChallengeBurst     int  `env:"RATE_LIMIT_CHALLENGE_BURST" env-default:"5"`
	// Honour X-Forwarded-For / X-Real-IP. Only enable behind a proxy that sets them.
	TrustProxy bool `env:"RATE_LIMIT_TRUST_PROXY" env-default:"false"`
}

func (r RateLimitConfig) Validate() ValidationErrors {
	if !r.Enabled {
		return nil
	}
	return CollectErrors(
		RequirePositive("RATE_LIMIT_CHALLENGE_PER_MINUTE", r.ChallengePerMinute),
		RequirePositive("RATE_LIMIT_CHALLENGE_BURST", r.ChallengeBurst),
	)
}

// NewRateLimitConfigFromEnv creates a RateLimitConfig from environment variables
func NewRateLimitConfigFromEnv() RateLimitConfig {
	return RateLimitConfig{
		Enabled:            GetEnvBool("RATE_LIMIT_ENABLED", true),
		ChallengePerMinute: GetEnvInt("RATE_LIMIT_CHALLENGE_PER_MINUTE", 10),
		ChallengeBurst:     GetEnvInt("RATE_LIMIT_CHALLENGE_BURST", 5),
		TrustProxy:         GetEnvBool("RATE_LIMIT_TRUST_PROXY", false),
	}
}

// JWTConfig holds the HMAC settings used to verify bearer tokens.
type JWTConfig struct {
	Secret   string `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
	Issuer   string `env:"JWT_ISSUER" env-default:"simple-idm"`
	Audience string `env:"JWT_AUDIENCE" env-default:"simple-idm"`
}

func (j JWTConfig) Validate() ValidationErrors {
	return CollectErrors(RequireMinLength("JWT_SECRET", j.Secret, 16))
}

// NewJWTConfigFromEnv creates a JWTConfig from environment variables
func NewJWTConfigFromEnv() JWTConfig {
	return JWTConfig{
		Secret:   GetEnvOrDefault("JWT_SECRET", "very-secure-jwt-secret"),
		Issuer:   GetEnvOrDefault("JWT_ISSUER", "simple-idm"),
		Audience: GetEnvOrDefault("JWT_AUDIENCE", "simple-idm"),
	}
}
