package twofa

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/tendant/simple-idm-twofactor/pkg/utils"
)

const (
	DefaultTotpIssuer = "simple-idm"
	DefaultTotpPeriod = 30
	DefaultTotpSkew   = 1

	deviceTokenBytes = 32
)

// SecretGenerator produces a new enrollment secret for accountName.
type SecretGenerator interface {
	Generate(accountName string) (string, error)
}

// TotpSecretGenerator creates base32 TOTP secrets through pquerna/otp.
type TotpSecretGenerator struct {
	Issuer string
	Period uint
}

func NewTotpSecretGenerator(issuer string, period uint) *TotpSecretGenerator {
	if issuer == "" {
		issuer = DefaultTotpIssuer
	}
	if period == 0 {
		period = DefaultTotpPeriod
	}
	return &TotpSecretGenerator{Issuer: issuer, Period: period}
}

func (g *TotpSecretGenerator) Generate(accountName string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      g.Issuer,
		AccountName: accountName,
		Period:      g.Period,
	})
	if err != nil {
		slog.Error("Failed to generate totp secret", "accountName", accountName, "issuer", g.Issuer, "error", err)
		return "", fmt.Errorf("failed to generate totp secret: %w", err)
	}
	return key.Secret(), nil
}

// TokenGenerator issues device identifiers and device tokens.
type TokenGenerator interface {
	NewDeviceID() (string, error)
	NewDeviceToken() (string, error)
}

// RandomTokenGenerator uses random UUIDs for device ids and 32 random bytes, hex encoded, for tokens.
type RandomTokenGenerator struct{}

func (RandomTokenGenerator) NewDeviceID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate device id: %w", err)
	}
	return id.String(), nil
}

func (RandomTokenGenerator) NewDeviceToken() (string, error) {
	return utils.RandomHex(deviceTokenBytes)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
