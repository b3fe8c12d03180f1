package device

import (
	"context"
	"errors"
	"time"
)

// ErrDeviceNotFound is returned when no record exists for a (user, device) pair.
var ErrDeviceNotFound = errors.New("device not found")

// RememberedDevice is a device the user asked to skip the second factor on.
// DeviceToken is only populated on the value handed back when the device is remembered.
type RememberedDevice struct {
	UserID      string    `json:"user_id"`
	DeviceID    string    `json:"device_id"`
	DeviceToken string    `json:"device_token,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IsExpired reports whether the trust has lapsed at now.
func (d RememberedDevice) IsExpired(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}

// DeviceRecord is the stored form of a RememberedDevice. Only the SHA-256
// digest of the device token is kept.
type DeviceRecord struct {
	UserID    string    `json:"user_id"`
	DeviceID  string    `json:"device_id"`
	TokenHash string    `json:"token_hash"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the trust has lapsed at now.
func (r DeviceRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// ToRememberedDevice drops the token hash.
func (r DeviceRecord) ToRememberedDevice() RememberedDevice {
	return RememberedDevice{
		UserID:    r.UserID,
		DeviceID:  r.DeviceID,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}

// DeviceRepository stores remembered devices keyed by (user id, device id).
// Every method is atomic with respect to the key it touches.
type DeviceRepository interface {
	// UpsertDevice inserts the record or, when the pair already exists, replaces
	// its token hash and expiry while keeping the original CreatedAt.
	UpsertDevice(ctx context.Context, rec DeviceRecord) (DeviceRecord, error)

	// GetDevice returns ErrDeviceNotFound when the pair is unknown.
	GetDevice(ctx context.Context, userID, deviceID string) (DeviceRecord, error)

	ListDevicesByUser(ctx context.Context, userID string) ([]DeviceRecord, error)

	// DeleteExpiredDevice removes the record only if it is expired at now, so a
	// concurrent refresh is never lost. Reports whether a row was removed.
	DeleteExpiredDevice(ctx context.Context, userID, deviceID string, now time.Time) (bool, error)

	// DeleteDevicesByUser removes every record of the user and returns the count.
	DeleteDevicesByUser(ctx context.Context, userID string) (int64, error)

	// PurgeExpired removes every record expired at now across all users.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
