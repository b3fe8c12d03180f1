package twofa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tendant/simple-idm-twofactor/pkg/encryption"
)

var (
	// ErrProfileNotFound is returned when the user has no two-factor profile.
	ErrProfileNotFound = errors.New("two factor profile not found")
	// ErrProfileExists is returned by CreateProfile when the user is already enrolled.
	ErrProfileExists = errors.New("two factor profile already exists")
)

// TwoFactorProfile is a user's enrollment. Secret and SecurityAnswerHash never
// leave the service in serialized form.
type TwoFactorProfile struct {
	UserID             string    `json:"user_id"`
	Secret             string    `json:"-"`
	SecurityQuestion   string    `json:"security_question,omitempty"`
	SecurityAnswerHash string    `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Enabled reports whether the profile holds a secret.
func (p TwoFactorProfile) Enabled() bool {
	return p.Secret != ""
}

// HasSecurityQuestion reports whether a question and answer were registered.
func (p TwoFactorProfile) HasSecurityQuestion() bool {
	return p.SecurityQuestion != "" && p.SecurityAnswerHash != ""
}

// ProfileRepository stores at most one TwoFactorProfile per user id.
// Every method is atomic with respect to the user it touches.
type ProfileRepository interface {
	// GetProfile returns ErrProfileNotFound when the user is not enrolled.
	GetProfile(ctx context.Context, userID string) (TwoFactorProfile, error)

	// CreateProfile inserts a new profile and returns ErrProfileExists when one is present.
	CreateProfile(ctx context.Context, profile TwoFactorProfile) (TwoFactorProfile, error)

	// UpsertProfile inserts the profile or replaces an existing one in a single step.
	UpsertProfile(ctx context.Context, profile TwoFactorProfile) (TwoFactorProfile, error)

	// DeleteProfile returns ErrProfileNotFound when nothing was removed.
	DeleteProfile(ctx context.Context, userID string) error
}

func sealSecret(c encryption.Cipher, secret string) (string, error) {
	if secret == "" {
		return "", nil
	}
	sealed, err := c.Encrypt(secret)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt secret: %w", err)
	}
	return sealed, nil
}

func openSecret(c encryption.Cipher, sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	secret, err := c.Decrypt(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return secret, nil
}
