package config

import (
	"time"
)

// TwoFactorConfig holds settings for TOTP enrollment and remembered devices.
type TwoFactorConfig struct {
	TotpIssuer string `env:"TWOFA_TOTP_ISSUER" env-default:"simple-idm"`
	TotpPeriod uint   `env:"TWOFA_TOTP_PERIOD" env-default:"30"`
	TotpSkew   uint   `env:"TWOFA_TOTP_SKEW" env-default:"1"`
	// ISO 8601 (P30D) or Go duration (720h)
	DeviceTrustWindow  string `env:"TWOFA_DEVICE_TRUST_WINDOW" env-default:"P30D"`
	RejectReenrollment bool   `env:"TWOFA_REJECT_REENROLLMENT" env-default:"false"`
	// How often expired devices are swept. Empty disables the sweep.
	DevicePurgeInterval string `env:"TWOFA_DEVICE_PURGE_INTERVAL" env-default:"PT1H"`
	// Encrypts TOTP secrets at rest when set. At least 16 characters.
	SecretEncryptionKey string `env:"TWOFA_SECRET_ENCRYPTION_KEY"`
}

// DefaultDeviceTrustWindow is used when TWOFA_DEVICE_TRUST_WINDOW cannot be parsed.
const DefaultDeviceTrustWindow = 30 * 24 * time.Hour

// ParseDeviceTrustWindow returns the remembered-device lifetime.
func (c TwoFactorConfig) ParseDeviceTrustWindow() (time.Duration, error) {
	return ParseDuration(c.DeviceTrustWindow)
}

// ParseDevicePurgeInterval returns 0 when the sweep is disabled.
func (c TwoFactorConfig) ParseDevicePurgeInterval() (time.Duration, error) {
	if c.DevicePurgeInterval == "" {
		return 0, nil
	}
	return ParseDuration(c.DevicePurgeInterval)
}

func (c TwoFactorConfig) Validate() ValidationErrors {
	errs := CollectErrors(
		RequireNonEmpty("TWOFA_TOTP_ISSUER", c.TotpIssuer),
		RequirePositive("TWOFA_TOTP_PERIOD", int(c.TotpPeriod)),
		RequireDuration("TWOFA_DEVICE_TRUST_WINDOW", c.DeviceTrustWindow),
		WhenSet(c.DevicePurgeInterval, func() *ValidationError {
			return RequireDuration("TWOFA_DEVICE_PURGE_INTERVAL", c.DevicePurgeInterval)
		}),
		WhenSet(c.SecretEncryptionKey, func() *ValidationError {
			return RequireMinLength("TWOFA_SECRET_ENCRYPTION_KEY", c.SecretEncryptionKey, 16)
		}),
	)
	return errs
}

// NewTwoFactorConfigFromEnv creates a TwoFactorConfig from environment variables
func NewTwoFactorConfigFromEnv() TwoFactorConfig {
	return TwoFactorConfig{
		TotpIssuer:          GetEnvOrDefault("TWOFA_TOTP_ISSUER", "simple-idm"),
		TotpPeriod:          uint(GetEnvInt("TWOFA_TOTP_PERIOD", 30)),
		TotpSkew:            uint(GetEnvInt("TWOFA_TOTP_SKEW", 1)),
		DeviceTrustWindow:   GetEnvOrDefault("TWOFA_DEVICE_TRUST_WINDOW", "P30D"),
		RejectReenrollment:  GetEnvBool("TWOFA_REJECT_REENROLLMENT", false),
		DevicePurgeInterval: GetEnvOrDefault("TWOFA_DEVICE_PURGE_INTERVAL", "PT1H"),
		SecretEncryptionKey: GetEnvOrDefault("TWOFA_SECRET_ENCRYPTION_KEY", ""),
	}
}

// OAuth2Config holds consumer and authorization code settings.
type OAuth2Config struct {
	// Encrypts consumer secrets at rest when set. At least 16 characters.
	EncryptionKey string `env:"OAUTH2_CLIENT_ENCRYPTION_KEY"`
	// ISO 8601 (PT10M) or Go duration (10m)
	AuthorizationCodeTTL string `env:"OAUTH2_AUTHORIZATION_CODE_TTL" env-default:"PT10M"`
}

// ParseAuthorizationCodeTTL returns how long an issued authorization code stays valid.
func (c OAuth2Config) ParseAuthorizationCodeTTL() (time.Duration, error) {
	return ParseDuration(c.AuthorizationCodeTTL)
}

func (c OAuth2Config) Validate() ValidationErrors {
	return CollectErrors(
		RequireDuration("OAUTH2_AUTHORIZATION_CODE_TTL", c.AuthorizationCodeTTL),
		WhenSet(c.EncryptionKey, func() *ValidationError {
			return RequireMinLength("OAUTH2_CLIENT_ENCRYPTION_KEY", c.EncryptionKey, 16)
		}),
	)
}

// NewOAuth2ConfigFromEnv creates an OAuth2Config from environment variables
func NewOAuth2ConfigFromEnv() OAuth2Config {
	return OAuth2Config{
		EncryptionKey:        GetEnvOrDefault("OAUTH2_CLIENT_ENCRYPTION_KEY", ""),
		AuthorizationCodeTTL: GetEnvOrDefault("OAUTH2_AUTHORIZATION_CODE_TTL", "PT10M"),
	}
}
