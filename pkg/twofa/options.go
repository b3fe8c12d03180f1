package twofa

import (
	"time"

	"github.com/tendant/simple-idm-twofactor/pkg/hasher"
	"github.com/tendant/simple-idm-twofactor/pkg/notification"
)

// ReenrollmentPolicy decides what CreateTwoFactorKey does for a user who is already enrolled.
type ReenrollmentPolicy int

const (
	// ReenrollmentReplace overwrites the existing secret and security question.
	ReenrollmentReplace ReenrollmentPolicy = iota
	// ReenrollmentReject fails with CONFLICT.
	ReenrollmentReject
)

// Option configures a TwoFactorService.
type Option func(*TwoFactorService)

// WithTrustWindow sets how long a remembered device stays trusted.
func WithTrustWindow(window time.Duration) Option {
	return func(s *TwoFactorService) {
		if window > 0 {
			s.trustWindow = window
		}
	}
}

func WithReenrollmentPolicy(policy ReenrollmentPolicy) Option {
	return func(s *TwoFactorService) {
		s.reenrollment = policy
	}
}

// WithNotifier sends security notices on enable, disable and forget-devices.
// Notices are only sent when a RecipientLookup is also configured.
func WithNotifier(notifier notification.Notifier) Option {
	return func(s *TwoFactorService) {
		s.notifier = notifier
	}
}

func WithRecipientLookup(lookup RecipientLookup) Option {
	return func(s *TwoFactorService) {
		s.recipients = lookup
	}
}

func WithNoticeTemplates(templates map[notification.NoticeType]notification.NoticeTemplate) Option {
	return func(s *TwoFactorService) {
		s.templates = templates
	}
}

func WithClock(clock Clock) Option {
	return func(s *TwoFactorService) {
		s.clock = clock
	}
}

// WithHasher sets the hasher for security answers. Defaults to argon2id.
func WithHasher(h hasher.PasswordHasher) Option {
	return func(s *TwoFactorService) {
		s.hasher = h
	}
}

func WithSecretGenerator(g SecretGenerator) Option {
	return func(s *TwoFactorService) {
		s.secrets = g
	}
}

func WithTokenGenerator(g TokenGenerator) Option {
	return func(s *TwoFactorService) {
		s.tokens = g
	}
}

// WithTotpPeriod sets the TOTP step in seconds used to verify codes.
func WithTotpPeriod(period uint) Option {
	return func(s *TwoFactorService) {
		if period > 0 {
			s.totpPeriod = period
		}
	}
}

// WithTotpSkew sets how many periods before and after the current one are accepted.
func WithTotpSkew(skew uint) Option {
	return func(s *TwoFactorService) {
		s.totpSkew = skew
	}
}

// WithTotpIssuer sets the issuer shown in authenticator apps.
func WithTotpIssuer(issuer string) Option {
	return func(s *TwoFactorService) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithForgetDevicesOnDisable removes the user's remembered devices when 2FA is disabled.
func WithForgetDevicesOnDisable(forget bool) Option {
	return func(s *TwoFactorService) {
		s.forgetDevicesOnDisable = forget
	}
}
