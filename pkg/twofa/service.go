package twofa

import (
	"context"
	"encoding/base32"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/tendant/simple-idm-twofactor/pkg/device"
	idmerrors "github.com/tendant/simple-idm-twofactor/pkg/errors"
	"github.com/tendant/simple-idm-twofactor/pkg/hasher"
	"github.com/tendant/simple-idm-twofactor/pkg/notification"
	"github.com/tendant/simple-idm-twofactor/pkg/utils"
)

// Operations passed to AuthorizationGate.Check.
const (
	OpIsTwoFactorEnabled    = "two_factor:is_enabled"
	OpCreateTwoFactorKey    = "two_factor:create_key"
	OpDeleteTwoFactorKey    = "two_factor:delete_key"
	OpCheckSecurityQuestion = "two_factor:check_security_question"
	OpVerifyTwoFactorCode   = "two_factor:verify_code"
	OpGetTwoFactorData      = "two_factor:get_data"
	OpProvisioningURI       = "two_factor:provisioning_uri"
	OpRememberDevice        = "two_factor:remember_device"
	OpCheckForDevice        = "two_factor:check_device"
	OpDeleteAllDevices      = "two_factor:delete_devices"
)

const DefaultTrustWindow = 30 * 24 * time.Hour

const requestTarget = "request"

// MaxIDLength bounds user and device ids to the width of their storage columns.
const MaxIDLength = 64

// AuthorizationGate decides whether the caller in ctx may run operation against targetUserID.
// A non-nil error aborts the operation before anything else happens.
type AuthorizationGate interface {
	Check(ctx context.Context, operation string, targetUserID string) error
}

// RecipientLookup returns the address security notices for userID are sent to.
type RecipientLookup interface {
	LookupEmail(ctx context.Context, userID string) (string, error)
}

type (
	EnableOptions struct {
		SecurityQuestion string `json:"security_question,omitempty"`
		SecurityAnswer   string `json:"security_answer,omitempty"`
	}

	// TwoFactorData is the non-sensitive view of a user's 2FA state.
	TwoFactorData struct {
		UserID            string                    `json:"user_id"`
		TwoFactorEnabled  bool                      `json:"two_factor_enabled"`
		SecurityQuestion  string                    `json:"security_question,omitempty"`
		RememberedDevices []device.RememberedDevice `json:"remembered_devices"`
	}

	RememberDeviceParams struct {
		UserID      string
		DeviceID    string
		DeviceToken string
	}

	CheckDeviceParams struct {
		UserID      string
		DeviceID    string
		DeviceToken string
	}
)

// TwoFactorService manages 2FA enrollment and remembered devices. Every method
// runs the AuthorizationGate before touching storage.
type TwoFactorService struct {
	profiles ProfileRepository
	devices  device.DeviceRepository
	gate     AuthorizationGate

	clock   Clock
	hasher  hasher.PasswordHasher
	secrets SecretGenerator
	tokens  TokenGenerator

	trustWindow            time.Duration
	reenrollment           ReenrollmentPolicy
	forgetDevicesOnDisable bool
	issuer                 string
	totpPeriod             uint
	totpSkew               uint

	notifier   notification.Notifier
	recipients RecipientLookup
	templates  map[notification.NoticeType]notification.NoticeTemplate
}

// NewTwoFactorService creates the service. A nil gate performs no authorization checks.
func NewTwoFactorService(profiles ProfileRepository, devices device.DeviceRepository, gate AuthorizationGate, opts ...Option) *TwoFactorService {
	s := &TwoFactorService{
		profiles:    profiles,
		devices:     devices,
		gate:        gate,
		clock:       SystemClock{},
		hasher:      hasher.NewArgon2Hasher(),
		tokens:      RandomTokenGenerator{},
		trustWindow: DefaultTrustWindow,
		issuer:      DefaultTotpIssuer,
		totpPeriod:  DefaultTotpPeriod,
		totpSkew:    DefaultTotpSkew,
		templates:   notification.DefaultTemplates(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.secrets == nil {
		s.secrets = NewTotpSecretGenerator(s.issuer, s.totpPeriod)
	}
	return s
}

// TrustWindow returns how long remembered devices stay trusted.
func (s *TwoFactorService) TrustWindow() time.Duration {
	return s.trustWindow
}

// Authorize runs only the AuthorizationGate for operation against userID.
// Adapters call it with an empty userID when the target could not be resolved,
// so callers who may not act on others get the same answer for missing users.
func (s *TwoFactorService) Authorize(ctx context.Context, operation, userID string) error {
	if s.gate == nil {
		return nil
	}
	return s.gate.Check(ctx, operation, userID)
}

func (s *TwoFactorService) authorize(ctx context.Context, operation, userID string) error {
	if err := s.Authorize(ctx, operation, userID); err != nil {
		return err
	}
	if userID == "" || len(userID) > MaxIDLength {
		return idmerrors.ValidationError("user_id", requestTarget)
	}
	return nil
}

func storageError(err error, message string, userID string) error {
	slog.Error(message, "userID", userID, "error", err)
	return idmerrors.InternalWrap(err, message)
}

// IsTwoFactorEnabled reports whether the user holds a 2FA secret. Users without a profile are not enabled.
func (s *TwoFactorService) IsTwoFactorEnabled(ctx context.Context, userID string) (bool, error) {
	if err := s.authorize(ctx, OpIsTwoFactorEnabled, userID); err != nil {
		return false, err
	}

	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return false, nil
		}
		return false, storageError(err, "failed to get two factor profile", userID)
	}
	return profile.Enabled(), nil
}

// CreateTwoFactorKey enrolls the user with a fresh secret and, optionally, a
// security question. The answer is hashed before storage.
func (s *TwoFactorService) CreateTwoFactorKey(ctx context.Context, userID string, options *EnableOptions) (TwoFactorProfile, error) {
	if err := s.authorize(ctx, OpCreateTwoFactorKey, userID); err != nil {
		return TwoFactorProfile{}, err
	}

	var question, answer string
	if options != nil {
		question = strings.TrimSpace(options.SecurityQuestion)
		answer = options.SecurityAnswer
	}
	if question != "" && answer == "" {
		return TwoFactorProfile{}, idmerrors.ValidationError("security_answer", requestTarget)
	}
	if answer != "" && question == "" {
		return TwoFactorProfile{}, idmerrors.ValidationError("security_question", requestTarget)
	}

	secret, err := s.secrets.Generate(userID)
	if err != nil {
		return TwoFactorProfile{}, idmerrors.InternalWrap(err, "failed to generate two factor secret")
	}

	now := s.clock.Now()
	profile := TwoFactorProfile{
		UserID:           userID,
		Secret:           secret,
		SecurityQuestion: question,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if answer != "" {
		profile.SecurityAnswerHash, err = s.hasher.Hash(answer)
		if err != nil {
			return TwoFactorProfile{}, idmerrors.InternalWrap(err, "failed to hash security answer")
		}
	}

	var saved TwoFactorProfile
	if s.reenrollment == ReenrollmentReject {
		saved, err = s.profiles.CreateProfile(ctx, profile)
		if errors.Is(err, ErrProfileExists) {
			return TwoFactorProfile{}, idmerrors.Conflict("two factor authentication is already enabled").
				WithDetail("user_id", userID)
		}
	} else {
		saved, err = s.profiles.UpsertProfile(ctx, profile)
	}
	if err != nil {
		return TwoFactorProfile{}, storageError(err, "failed to save two factor profile", userID)
	}

	slog.Info("Two factor authentication enabled", "userID", userID, "securityQuestion", question != "")
	s.notify(ctx, notification.TwoFactorEnabledNotice, userID, nil)
	return saved, nil
}

// DeleteTwoFactorKey removes the user's profile. Remembered devices are kept
// unless the service was built WithForgetDevicesOnDisable.
func (s *TwoFactorService) DeleteTwoFactorKey(ctx context.Context, userID string) error {
	if err := s.authorize(ctx, OpDeleteTwoFactorKey, userID); err != nil {
		return err
	}

	if _, err := s.profiles.GetProfile(ctx, userID); err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return idmerrors.NotFound("two factor profile", userID)
		}
		return storageError(err, "failed to get two factor profile", userID)
	}

	// Devices first: a failed device delete must leave 2FA enabled.
	if s.forgetDevicesOnDisable {
		if _, err := s.devices.DeleteDevicesByUser(ctx, userID); err != nil {
			return storageError(err, "failed to delete remembered devices", userID)
		}
	}

	if err := s.profiles.DeleteProfile(ctx, userID); err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return idmerrors.NotFound("two factor profile", userID)
		}
		return storageError(err, "failed to delete two factor profile", userID)
	}

	slog.Info("Two factor authentication disabled", "userID", userID)
	s.notify(ctx, notification.TwoFactorDisabledNotice, userID, nil)
	return nil
}

// CheckSecurityQuestion verifies answer against the stored hash.
func (s *TwoFactorService) CheckSecurityQuestion(ctx context.Context, userID, answer string) (bool, error) {
	if err := s.authorize(ctx, OpCheckSecurityQuestion, userID); err != nil {
		return false, err
	}
	if answer == "" {
		return false, idmerrors.ValidationError("sec_answer", requestTarget)
	}

	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return false, idmerrors.NotFound("security question", userID)
		}
		return false, storageError(err, "failed to get two factor profile", userID)
	}
	if !profile.HasSecurityQuestion() {
		return false, idmerrors.NotFound("security question", userID)
	}

	ok, err := s.hasher.Verify(answer, profile.SecurityAnswerHash)
	if err != nil {
		return false, storageError(err, "failed to verify security answer", userID)
	}
	if !ok {
		slog.Warn("Security answer mismatch", "userID", userID)
	}
	return ok, nil
}

// VerifyTwoFactorCode validates a TOTP code against the user's secret at the current time.
func (s *TwoFactorService) VerifyTwoFactorCode(ctx context.Context, userID, code string) (bool, error) {
	if err := s.authorize(ctx, OpVerifyTwoFactorCode, userID); err != nil {
		return false, err
	}
	if code == "" {
		return false, idmerrors.ValidationError("code", requestTarget)
	}

	profile, err := s.enabledProfile(ctx, userID)
	if err != nil {
		return false, err
	}

	valid, err := totp.ValidateCustom(code, profile.Secret, s.clock.Now(), totp.ValidateOpts{
		Period:    s.totpPeriod,
		Skew:      s.totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		if errors.Is(err, otp.ErrValidateInputInvalidLength) {
			return false, nil
		}
		return false, storageError(err, "failed to validate totp passcode", userID)
	}
	return valid, nil
}

// ProvisioningURI returns the otpauth:// URI for registering the user's secret in an authenticator app.
// The URI embeds the secret and must only be shown to the enrolling user.
func (s *TwoFactorService) ProvisioningURI(ctx context.Context, userID, accountName string) (string, error) {
	if err := s.authorize(ctx, OpProvisioningURI, userID); err != nil {
		return "", err
	}
	profile, err := s.enabledProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	if accountName == "" {
		accountName = userID
	}

	raw, err := decodeSecret(profile.Secret)
	if err != nil {
		return "", storageError(err, "failed to decode two factor secret", userID)
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountName,
		Period:      s.totpPeriod,
		Secret:      raw,
	})
	if err != nil {
		return "", idmerrors.InternalWrap(err, "failed to build provisioning uri")
	}
	return key.URL(), nil
}

func decodeSecret(secret string) ([]byte, error) {
	secret = strings.ToUpper(strings.TrimRight(secret, "="))
	return base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
}

func (s *TwoFactorService) enabledProfile(ctx context.Context, userID string) (TwoFactorProfile, error) {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return TwoFactorProfile{}, idmerrors.NotFound("two factor profile", userID)
		}
		return TwoFactorProfile{}, storageError(err, "failed to get two factor profile", userID)
	}
	if !profile.Enabled() {
		return TwoFactorProfile{}, idmerrors.NotFound("two factor profile", userID)
	}
	return profile, nil
}

// GetTwoFactorData returns the user's enabled flag, security question and
// currently trusted devices. Secrets, answer hashes and device tokens are never included.
func (s *TwoFactorService) GetTwoFactorData(ctx context.Context, userID string) (TwoFactorData, error) {
	if err := s.authorize(ctx, OpGetTwoFactorData, userID); err != nil {
		return TwoFactorData{}, err
	}

	var profile *TwoFactorProfile
	p, err := s.profiles.GetProfile(ctx, userID)
	switch {
	case err == nil:
		profile = &p
	case !errors.Is(err, ErrProfileNotFound):
		return TwoFactorData{}, storageError(err, "failed to get two factor profile", userID)
	}

	records, err := s.devices.ListDevicesByUser(ctx, userID)
	if err != nil {
		return TwoFactorData{}, storageError(err, "failed to list remembered devices", userID)
	}

	return toTwoFactorData(userID, profile, records, s.clock.Now()), nil
}

func toTwoFactorData(userID string, profile *TwoFactorProfile, records []device.DeviceRecord, now time.Time) TwoFactorData {
	data := TwoFactorData{
		UserID:            userID,
		RememberedDevices: []device.RememberedDevice{},
	}
	if profile != nil {
		data.TwoFactorEnabled = profile.Enabled()
		data.SecurityQuestion = profile.SecurityQuestion
	}
	for _, rec := range records {
		if rec.IsExpired(now) {
			continue
		}
		data.RememberedDevices = append(data.RememberedDevices, rec.ToRememberedDevice())
	}
	return data
}

// RememberDevice trusts a device for the configured window. When both id and
// token are empty a fresh pair is generated. Remembering a known device id
// replaces its token and extends its expiry. The returned value is the only
// place the plaintext token is available.
func (s *TwoFactorService) RememberDevice(ctx context.Context, params RememberDeviceParams) (device.RememberedDevice, error) {
	if err := s.authorize(ctx, OpRememberDevice, params.UserID); err != nil {
		return device.RememberedDevice{}, err
	}

	deviceID, token := params.DeviceID, params.DeviceToken
	switch {
	case deviceID != "" && token == "":
		return device.RememberedDevice{}, idmerrors.ValidationError("device_token", requestTarget)
	case deviceID == "" && token != "", len(deviceID) > MaxIDLength:
		return device.RememberedDevice{}, idmerrors.ValidationError("device_id", requestTarget)
	case deviceID == "" && token == "":
		var err error
		if deviceID, err = s.tokens.NewDeviceID(); err != nil {
			return device.RememberedDevice{}, idmerrors.InternalWrap(err, "failed to generate device id")
		}
		if token, err = s.tokens.NewDeviceToken(); err != nil {
			return device.RememberedDevice{}, idmerrors.InternalWrap(err, "failed to generate device token")
		}
	}

	now := s.clock.Now()
	saved, err := s.devices.UpsertDevice(ctx, device.DeviceRecord{
		UserID:    params.UserID,
		DeviceID:  deviceID,
		TokenHash: utils.HashToken(token),
		CreatedAt: now,
		ExpiresAt: now.Add(s.trustWindow),
	})
	if err != nil {
		return device.RememberedDevice{}, storageError(err, "failed to remember device", params.UserID)
	}

	slog.Info("Device remembered", "userID", params.UserID, "deviceID", deviceID, "expiresAt", saved.ExpiresAt)
	remembered := saved.ToRememberedDevice()
	remembered.DeviceToken = token
	return remembered, nil
}

// CheckForDevice reports whether the device is currently trusted for the user.
// Unknown, expired or mismatched devices return false without an error.
// Expired records are removed on read.
func (s *TwoFactorService) CheckForDevice(ctx context.Context, params CheckDeviceParams) (bool, error) {
	if err := s.authorize(ctx, OpCheckForDevice, params.UserID); err != nil {
		return false, err
	}
	if params.DeviceID == "" || params.DeviceToken == "" {
		return false, idmerrors.ValidationError("device_id and device_token", requestTarget)
	}
	if len(params.DeviceID) > MaxIDLength {
		return false, idmerrors.ValidationError("device_id", requestTarget)
	}

	rec, err := s.devices.GetDevice(ctx, params.UserID, params.DeviceID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return false, nil
		}
		return false, storageError(err, "failed to get remembered device", params.UserID)
	}

	now := s.clock.Now()
	if rec.IsExpired(now) {
		if _, err := s.devices.DeleteExpiredDevice(ctx, params.UserID, params.DeviceID, now); err != nil {
			slog.Warn("Failed to purge expired device", "userID", params.UserID, "deviceID", params.DeviceID, "error", err)
		}
		return false, nil
	}

	return utils.ConstantTimeEqual(utils.HashToken(params.DeviceToken), rec.TokenHash), nil
}

// DeleteAllDevices forgets every remembered device of the user and returns how many were removed.
func (s *TwoFactorService) DeleteAllDevices(ctx context.Context, userID string) (int64, error) {
	if err := s.authorize(ctx, OpDeleteAllDevices, userID); err != nil {
		return 0, err
	}

	deleted, err := s.devices.DeleteDevicesByUser(ctx, userID)
	if err != nil {
		return 0, storageError(err, "failed to delete remembered devices", userID)
	}

	if deleted > 0 {
		slog.Info("Remembered devices forgotten", "userID", userID, "count", deleted)
		s.notify(ctx, notification.DevicesForgottenNotice, userID, map[string]string{
			"Count": strconv.FormatInt(deleted, 10),
		})
	}
	return deleted, nil
}

// PurgeExpiredDevices removes every remembered device whose trust window has
// ended, across all users. It is a maintenance sweep and bypasses the gate.
func (s *TwoFactorService) PurgeExpiredDevices(ctx context.Context) (int64, error) {
	purged, err := s.devices.PurgeExpired(ctx, s.clock.Now())
	if err != nil {
		slog.Error("Failed to purge expired devices", "error", err)
		return 0, idmerrors.InternalWrap(err, "failed to purge expired devices")
	}
	if purged > 0 {
		slog.Info("Expired devices purged", "count", purged)
	}
	return purged, nil
}

// notify never fails the calling operation; delivery problems are logged.
func (s *TwoFactorService) notify(ctx context.Context, noticeType notification.NoticeType, userID string, extra map[string]string) {
	if s.notifier == nil || s.recipients == nil {
		return
	}
	tmpl, ok := s.templates[noticeType]
	if !ok {
		slog.Warn("No template for notice", "noticeType", noticeType)
		return
	}

	email, err := s.recipients.LookupEmail(ctx, userID)
	if err != nil || email == "" {
		slog.Warn("No notification recipient for user", "userID", userID, "noticeType", noticeType, "error", err)
		return
	}

	data := map[string]string{
		"UserID": userID,
		"Time":   s.clock.Now().Format(time.RFC3339),
	}
	for k, v := range extra {
		data[k] = v
	}

	if err := s.notifier.Send(noticeType, notification.NotificationData{To: email, Data: data}, tmpl); err != nil {
		slog.Error("Failed to send security notice", "userID", userID, "noticeType", noticeType, "error", err)
	}
}
