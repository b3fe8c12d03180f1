package twofa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-idm-twofactor/pkg/device"
	idmerrors "github.com/tendant/simple-idm-twofactor/pkg/errors"
	"github.com/tendant/simple-idm-twofactor/pkg/hasher"
	"github.com/tendant/simple-idm-twofactor/pkg/notification"
	"github.com/tendant/simple-idm-twofactor/pkg/utils"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingGate struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (g *recordingGate) Check(ctx context.Context, operation, target string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, operation+"@"+target)
	return g.err
}

type staticRecipients map[string]string

func (r staticRecipients) LookupEmail(ctx context.Context, userID string) (string, error) {
	email, ok := r[userID]
	if !ok {
		return "", fmt.Errorf("user %s not found", userID)
	}
	return email, nil
}

// failingDevices fails every call, to check that storage errors surface as INTERNAL_ERROR.
type failingDevices struct {
	device.DeviceRepository
}

func (failingDevices) DeleteDevicesByUser(ctx context.Context, userID string) (int64, error) {
	return 0, errors.New("connection reset")
}

func (failingDevices) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, errors.New("connection reset")
}

type fixture struct {
	service  *TwoFactorService
	profiles *InMemProfileRepository
	devices  *device.InMemDeviceRepository
	clock    *fakeClock
	gate     *recordingGate
	notifier *notification.MockNotifier
}

func fastHasher() hasher.PasswordHasher {
	return hasher.NewArgon2HasherWithParams(hasher.Argon2Params{
		Memory:      1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		profiles: NewInMemProfileRepository(),
		devices:  device.NewInMemDeviceRepository(),
		clock:    &fakeClock{now: baseTime},
		gate:     &recordingGate{},
		notifier: &notification.MockNotifier{},
	}
	base := []Option{
		WithClock(f.clock),
		WithHasher(fastHasher()),
		WithNotifier(f.notifier),
		WithRecipientLookup(staticRecipients{"user-1": "user1@example.com"}),
	}
	f.service = NewTwoFactorService(f.profiles, f.devices, f.gate, append(base, opts...)...)
	return f
}

func assertCode(t *testing.T, err error, code idmerrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, idmerrors.GetCode(err), "unexpected error: %v", err)
}

func TestEnableDisableLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	enabled, err := f.service.IsTwoFactorEnabled(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, enabled)

	profile, err := f.service.CreateTwoFactorKey(ctx, "user-1", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, profile.Secret)
	assert.True(t, profile.CreatedAt.Equal(baseTime))

	enabled, err = f.service.IsTwoFactorEnabled(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, enabled)

	require.NoError(t, f.service.DeleteTwoFactorKey(ctx, "user-1"))

	enabled, err = f.service.IsTwoFactorEnabled(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, enabled)

	err = f.service.DeleteTwoFactorKey(ctx, "user-1")
	assertCode(t, err, idmerrors.ErrCodeNotFound)
}

func TestCreateTwoFactorKeyHashesAnswer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.CreateTwoFactorKey(ctx, "user-1", &EnableOptions{
		SecurityQuestion: "  First pet?  ",
		SecurityAnswer:   "rex",
	})
	require.NoError(t, err)

	stored, err := f.profiles.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "First pet?", stored.SecurityQuestion)
	assert.NotEqual(t, "rex", stored.SecurityAnswerHash)
	assert.True(t, strings.HasPrefix(stored.SecurityAnswerHash, "$argon2id$"))
}

func TestCreateTwoFactorKeyValidatesPairedOptions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.CreateTwoFactorKey(ctx, "user-1", &EnableOptions{SecurityQuestion: "q"})
	assertCode(t, err, idmerrors.ErrCodeValidationFailed)
	assert.Equal(t, "security_answer", idmerrors.GetDetails(err)[idmerrors.DetailAttribute])

	_, err = f.service.CreateTwoFactorKey(ctx, "user-1", &EnableOptions{SecurityAnswer: "a"})
	assertCode(t, err, idmerrors.ErrCodeValidationFailed)
	assert.Equal(t, "security_question", idmerrors.GetDetails(err)[idmerrors.DetailAttribute])

	_, err = f.service.CreateTwoFactorKey(ctx, "", nil)
	assertCode(t, err, idmerrors.ErrCodeValidationFailed)
}

func TestReenrollmentPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("ReplaceByDefault", func(t *testing.T) {
		f := newFixture(t)
		first, err := f.service.CreateTwoFactorKey(ctx, "user-1", &EnableOptions{SecurityQuestion: "q", SecurityAnswer: "a"})
		require.NoError(t, err)

		second, err := f.service.CreateTwoFactorKey(ctx, "user-1", nil)
		require.NoError(t, err)
		assert.NotEqual(t, first.Secret, second.Secret)

		stored, err := f.profiles.GetProfile(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, second.Secret, stored.Secret)
		assert.Empty(t, stored.SecurityQuestion)
	})

	t.Run("RejectWithConflict", func(t *testing.T) {
		f := newFixture(t, WithReenrollmentPolicy(ReenrollmentReject))
		first, err := f.service.CreateTwoFactorKey(ctx, "user-1", nil)
		require.NoError(t, err)

		_, err = f.service.CreateTwoFactorKey(ctx, "user-1", nil)
		assertCode(t, err, idmerrors.ErrCodeConflict)

		stored, err := f.profiles.GetProfile(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, first.Secret, stored.Secret)
	})
}

func TestGateRunsFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gate.err = idmerrors.Forbidden("not allowed")

	calls := map[string]func() error{
		OpIsTwoFactorEnabled: func() error { _, err := f.service.IsTwoFactorEnabled(ctx, "user-1"); return err },
		OpCreateTwoFactorKey: func() error { _, err := f.service.CreateTwoFactorKey(ctx, "user-1", nil); return err },
		OpDeleteTwoFactorKey: func() error { return f.service.DeleteTwoFactorKey(ctx, "user-1") },
		// empty input must still be rejected by the gate, not by validation
		OpCheckSecurityQuestion: func() error { _, err := f.service.CheckSecurityQuestion(ctx, "user-1", ""); return err },
		OpVerifyTwoFactorCode:   func() error { _, err := f.service.VerifyTwoFactorCode(ctx, "user-1", ""); return err },
		OpGetTwoFactorData:      func() error { _, err := f.service.GetTwoFactorData(ctx, "user-1"); return err },
		OpProvisioningURI:       func() error { _, err := f.service.ProvisioningURI(ctx, "user-1", ""); return err },
		OpRememberDevice: func() error {
			_, err := f.service.RememberDevice(ctx, RememberDeviceParams{UserID: "user-1", DeviceID: "d1"})
			return err
		},
		OpCheckForDevice: func() error {
			_, err := f.service.CheckForDevice(ctx, CheckDeviceParams{UserID: "user-1"})
			return err
		},
		OpDeleteAllDevices: func() error { _, err := f.service.DeleteAllDevices(ctx, "user-1"); return err },
	}

	for op, call := range calls {
		t.Run(op, func(t *testing.T) {
			assertCode(t, call(), idmerrors.ErrCodeForbidden)
		})
	}

	assert.Len(t, f.gate.calls, len(calls))
	for _, c := range f.gate.calls {
		assert.True(t, strings.HasSuffix(c, "@user-1"), c)
	}

	_, err := f.profiles.GetProfile(ctx, "user-1")
	assert.ErrorIs(t, err, ErrProfileNotFound)
	records, err := f.devices.ListDevicesByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, f.notifier.Sent())
}

func TestCheckSecurityQuestion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.CheckSecurityQuestion(ctx, "user-1", "rex")
	assertCode(t, err, idmerrors.ErrCodeNotFound)

	_, err = f.service.CreateTwoFactorKey(ctx, "user-1", nil)
	require.NoError(t, err)
	_, err = f.service.CheckSecurityQuestion(ctx, "user-1", "rex")
	assertCode(t, err, idmerrors.ErrCodeNotFound)

	_, err = f.service.CreateTwoFactorKey(ctx, "user-1", &EnableOptions{SecurityQuestion: "First pet?", SecurityAnswer: "rex"})
	require.NoError(t, err)

	_, err = f.service.CheckSecurityQuestion(ctx, "user-1", "")
	assertCode(t, err, idmerrors.ErrCodeValidationFailed)
	assert.Equal(t, "sec_answer", idmerrors.GetDetails(err)[idmerrors.DetailAttribute])

	ok, err := f.service.CheckSecurityQuestion(ctx, "user-1", "rex")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.service.CheckSecurityQuestion(ctx, "user-1", "Rex")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.service.CheckSecurityQuestion(ctx, "user-1", "a much longer wrong answer than the real one")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetTwoFactorDataNeverLeaksSecrets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assertClean := func(t *testing.T, data TwoFactorData, secret, answerHash string) {
		t.Helper()
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		if secret != "" {
			assert.NotContains(t, string(raw), secret)
		}
		if answerHash != "" {
			assert.NotContains(t, string(raw), answerHash)
		}
		assert.NotContains(t, string(raw), "secret")
		assert.NotContains(t, string(raw), "answer")
		assert.NotContains(t, string(raw), "token")
	}

	data, err := f.service.GetTwoFactorData(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, data.TwoFactorEnabled)
	assert.Empty(t, data.RememberedDevices)
	assertClean(t, data, "", "")

	profile, err := f.service.CreateTwoFactorKey(ctx, "user-1", &EnableOptions{SecurityQuestion: "First pet?", SecurityAnswer: "rex"})
	require.NoError(t, err)
	dev, err := f.service.RememberDevice(ctx, RememberDeviceParams{UserID: "user-1"})
	require.NoError(t, err)

	stored, err := f.profiles.GetProfile(ctx, "user-1")
	require.NoError(t, err)

	data, err = f.service.GetTwoFactorData(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, data.TwoFactorEnabled)
	assert.Equal(t, "First pet?", data.SecurityQuestion)
	require.Len(t, data.RememberedDevices, 1)
	assert.Equal(t, dev.DeviceID, data.RememberedDevices[0].DeviceID)
	assert.Empty(t, data.RememberedDevices[0].DeviceToken)
	assertClean(t, data, profile.Secret, stored.SecurityAnswerHash)
	raw, _ := json.Marshal(data)
	assert.NotContains(t, string(raw), dev.DeviceToken)

	f.clock.Advance(DefaultTrustWindow)
	data, err = f.service.GetTwoFactorData(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, data.RememberedDevices, "expired devices are not reported")

	require.NoError(t, f.service.DeleteTwoFactorKey(ctx, "user-1"))
	data, err = f.service.GetTwoFactorData(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, data.TwoFactorEnabled)
	assertClean(t, data, profile.Secret, stored.SecurityAnswerHash)
}

func TestRememberDeviceValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.RememberDevice(ctx, RememberDeviceParams{UserID: "user-1", DeviceID: "d1"})
	assertCode(t, err, idmerrors.ErrCodeValidationFailed)
	assert.Equal(t, "device_token", idmerrors.GetDetails(err)[idmerrors.DetailAttribute])

	_, err = f.service.RememberDevice(ctx, RememberDeviceParams{UserID: "user-1", DeviceToken: "t1"})
	assertCode(t, err, idmerrors.ErrCodeValidationFailed)
	assert.Equal(t, "device_id", idmerrors.GetDetails(err)[idmerrors.DetailAttribute])

	records, err := f.devices.ListDevicesByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRememberDeviceGeneratesFreshPairs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	seenIDs := map[string]bool{}
	seenTokens := map[string]bool{}
	for i := 0; i < 50; i++ {
		dev, err := f.service.RememberDevice(ctx, RememberDeviceParams{UserID: "user-1"})
		require.NoError(t, err)
		assert.NotEmpty(t, dev.DeviceID)
		assert.Len(t, dev.DeviceToken, 64)
		assert.False(t, seenIDs[dev.DeviceID])
		assert.False(t, seenTokens[dev.DeviceToken])
		seenIDs[dev.DeviceID] = true
		seenTokens[dev.DeviceToken] = true
	}

	records, err := f.devices.ListDevicesByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, records, 50)
	for _, rec := range records {
		assert.False(t, seenTokens[rec.TokenHash], "plaintext token must not be stored")
	}
}

func TestRememberAndCheckDevice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithTrustWindow(time.Hour))

	dev, err := f.service.RememberDevice(ctx, RememberDeviceParams{UserID: "user-1", DeviceID: "d1", DeviceToken: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "t1", dev.DeviceToken)
	assert.True(t, dev.ExpiresAt.Equal(baseTime.Add(time.Hour)))

	stored, err := f.devices.GetDevice(ctx, "user-1", "d1")
	require.NoError(t, err)
	assert.Equal(t, utils.HashToken("t1"), stored.TokenHash)

	check := func(userID, deviceID, token string) bool {
		t.Helper()
		ok, err := f.service.CheckForDevice(ctx, CheckDeviceParams{UserID: userID, DeviceID: deviceID, DeviceToken: token})
		require.NoError(t, err)
		return ok
	}

	assert.True(t, check("user-1", "d1", "t1"))
	assert.False(t, check("user-1", "d1", "wrong-token"))
	assert.False(t, check("user-1", "unknown", "t1"))
	assert.False(t, check("user-2", "d1", "t1"))

	f.clock.Advance(59 * time.Minute)
	assert.True(t, check("user-1", "d1", "t1"))

	f.clock.Advance(time.Minute)
	assert.False(t, check("user-1", "d1", "t1"))

	_, err = f.devices.GetDevice(ctx, "user-1", "d1")
	assert.ErrorIs(t, err, device.ErrDeviceNotFound, "expired record is purged on read")
}

func TestCheckForDeviceRequiresBothFields(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, params := range []CheckDeviceParams{
		{UserID: "user-1"},
		{UserID: "user-1", DeviceID: "d1"},
		{UserID: "user-1", DeviceToken: "t1"},
	} {
		_, err := f.service.CheckForDevice(ctx, params)
		assertCode(t, err, idmerrors.ErrCodeValidationFailed)
		assert.Equal(t, "device_id and device_token", idmerrors.GetDetails(err)[idmerrors.DetailAttribute])
	}
}

func TestRememberDeviceRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithTrustWindow(time.Hour))

	_, err := f.service.RememberDevice(ctx, RememberDeviceParams{UserID: "user-1", DeviceID: "d1", DeviceToken: "t1"})
	require.NoError(t, err)

	f.clock.Advance(50 * time.Minute)
	refreshed, err := f.service.RememberDevice(ctx, RememberDeviceParams{UserID: "user-1", DeviceID: "d1", DeviceToken: "t2"})
	require.NoError(t, err)
	assert.True(t, refreshed.CreatedAt.Equal(baseTime))
	assert.True(t, refreshed.ExpiresAt.Equal(baseTime.Add(110*time.Minute)))

	ok, err := f.service.CheckForDevice(ctx, CheckDeviceParams{UserID: "user-1", DeviceID: "d1", DeviceToken: "t1"})
	require.NoError(t, err)
	assert.False(t, ok, "old token is replaced")

	f.clock.Advance(30 * time.Minute)
	ok, err = f.service.CheckForDevice(ctx, CheckDeviceParams{UserID: "user-1", DeviceID: "d1", DeviceToken: "t2"})
	require.NoError(t, err)
	assert.True(t, ok, "expiry was extended")
}

func TestRememberDeviceConcurrentSameDevice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.service.RememberDevice(ctx, RememberDeviceParams{
				UserID:      "user-1",
				DeviceID:    "d1",
				DeviceToken: fmt.Sprintf("token-%d", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	records, err := f.devices.ListDevicesByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, records, 1)

	matched := 0
	for i := 0; i < 20; i++ {
		if records[0].TokenHash == utils.HashToken(fmt.Sprintf("token-%d", i)) {
			matched++
		}
	}
	assert.Equal(t, 1, matched, "stored record holds exactly one complete token")
}

func TestDeleteAllDevices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		_, err := f.service.RememberDevice(ctx, RememberDeviceParams{UserID: "user-1"})
		require.NoError(t, err)
	}
	_, err := f.service.RememberDevice(ctx, RememberDeviceParams{UserID: "user-2"})
	require.NoError(t, err)

	deleted, err := f.service.DeleteAllDevices(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	records, err := f.devices.ListDevicesByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, records)

	deleted, err = f.service.DeleteAllDevices(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	records, err = f.devices.ListDevicesByUser(ctx, "user-2")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestDeleteTwoFactorKeyDevicePolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("KeepsDevicesByDefault", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.CreateTwoFactorKey(ctx, "user-1", nil)
		require.NoError(t, err)
		_, err = f.service.RememberDevice(ctx, RememberDeviceParams{UserID: "user-1"})
		require.NoError(t, err)

		require.NoError(t, f.service.DeleteTwoFactorKey(ctx, "user-1"))
		records, err := f.devices.ListDevicesByUser(ctx, "user-1")
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("ForgetDevicesOnDisable", func(t *testing.T) {
		f := newFixture(t, WithForgetDevicesOnDisable(true))
		_, err := f.service.CreateTwoFactorKey(ctx, "user-1", nil)
		require.NoError(t, err)
		_, err = f.service.RememberDevice(ctx, RememberDeviceParams{UserID: "user-1"})
		require.NoError(t, err)

		require.NoError(t, f.service.DeleteTwoFactorKey(ctx, "user-1"))
		records, err := f.devices.ListDevicesByUser(ctx, "user-1")
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("FailedDeviceDeleteKeepsTwoFactorEnabled", func(t *testing.T) {
		svc := NewTwoFactorService(NewInMemProfileRepository(), failingDevices{}, nil,
			WithHasher(fastHasher()), WithForgetDevicesOnDisable(true))
		_, err := svc.CreateTwoFactorKey(ctx, "user-1", nil)
		require.NoError(t, err)

		assertCode(t, svc.DeleteTwoFactorKey(ctx, "user-1"), idmerrors.ErrCodeInternal)

		enabled, err := svc.IsTwoFactorEnabled(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, enabled)
	})

	t.Run("UnknownUserLeavesDevices", func(t *testing.T) {
		f := newFixture(t, WithForgetDevicesOnDisable(true))
		_, err := f.service.RememberDevice(ctx, RememberDeviceParams{UserID: "user-1"})
		require.NoError(t, err)

		assertCode(t, f.service.DeleteTwoFactorKey(ctx, "user-1"), idmerrors.ErrCodeNotFound)
		records, err := f.devices.ListDevicesByUser(ctx, "user-1")
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})
}

func TestIDLengthIsValidated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	longID := strings.Repeat("x", MaxIDLength+1)

	_, err := f.service.IsTwoFactorEnabled(ctx, longID)
	assertCode(t, err, idmerrors.ErrCodeValidationFailed)
	assert.Equal(t, "user_id", idmerrors.GetDetails(err)[idmerrors.DetailAttribute])

	_, err = f.service.CreateTwoFactorKey(ctx, longID, nil)
	assertCode(t, err, idmerrors.ErrCodeValidationFailed)

	_, err = f.service.RememberDevice(ctx, RememberDeviceParams{UserID: "user-1", DeviceID: longID, DeviceToken: "t1"})
	assertCode(t, err, idmerrors.ErrCodeValidationFailed)
	assert.Equal(t, "device_id", idmerrors.GetDetails(err)[idmerrors.DetailAttribute])

	_, err = f.service.CheckForDevice(ctx, CheckDeviceParams{UserID: "user-1", DeviceID: longID, DeviceToken: "t1"})
	assertCode(t, err, idmerrors.ErrCodeValidationFailed)
	assert.Equal(t, "device_id", idmerrors.GetDetails(err)[idmerrors.DetailAttribute])

	_, err = f.service.RememberDevice(ctx, RememberDeviceParams{
		UserID:      "user-1",
		DeviceID:    strings.Repeat("d", MaxIDLength),
		DeviceToken: "t1",
	})
	assert.NoError(t, err)
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.service.Authorize(ctx, OpIsTwoFactorEnabled, ""))
	assert.Equal(t, []string{OpIsTwoFactorEnabled + "@"}, f.gate.calls)

	f.gate.err = idmerrors.Forbidden("not allowed")
	assertCode(t, f.service.Authorize(ctx, OpCheckForDevice, "user-2"), idmerrors.ErrCodeForbidden)

	open := NewTwoFactorService(NewInMemProfileRepository(), device.NewInMemDeviceRepository(), nil)
	assert.NoError(t, open.Authorize(ctx, OpCheckForDevice, "user-2"))
}

func TestPurgeExpiredDevices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithTrustWindow(time.Hour))

	for _, userID := range []string{"user-1", "user-2"} {
		_, err := f.service.RememberDevice(ctx, RememberDeviceParams{UserID: userID})
		require.NoError(t, err)
	}
	f.clock.Advance(time.Hour + time.Second)
	_, err := f.service.RememberDevice(ctx, RememberDeviceParams{UserID: "user-3"})
	require.NoError(t, err)
	gateCalls := len(f.gate.calls)

	purged, err := f.service.PurgeExpiredDevices(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)
	assert.Len(t, f.gate.calls, gateCalls)

	for _, userID := range []string{"user-1", "user-2"} {
		records, err := f.devices.ListDevicesByUser(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, records, userID)
	}
	records, err := f.devices.ListDevicesByUser(ctx, "user-3")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	purged, err = f.service.PurgeExpiredDevices(ctx)
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestStorageErrorsAreInternal(t *testing.T) {
	ctx := context.Background()
	svc := NewTwoFactorService(NewInMemProfileRepository(), failingDevices{}, nil, WithHasher(fastHasher()))

	_, err := svc.DeleteAllDevices(ctx, "user-1")
	assertCode(t, err, idmerrors.ErrCodeInternal)

	_, err = svc.PurgeExpiredDevices(ctx)
	assertCode(t, err, idmerrors.ErrCodeInternal)
}

func TestVerifyTwoFactorCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.VerifyTwoFactorCode(ctx, "user-1", "123456")
	assertCode(t, err, idmerrors.ErrCodeNotFound)

	profile, err := f.service.CreateTwoFactorKey(ctx, "user-1", nil)
	require.NoError(t, err)

	_, err = f.service.VerifyTwoFactorCode(ctx, "user-1", "")
	assertCode(t, err, idmerrors.ErrCodeValidationFailed)

	code, err := totp.GenerateCodeCustom(profile.Secret, f.clock.Now(), totp.ValidateOpts{
		Period:    DefaultTotpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)

	ok, err := f.service.VerifyTwoFactorCode(ctx, "user-1", code)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.service.VerifyTwoFactorCode(ctx, "user-1", "12345")
	require.NoError(t, err)
	assert.False(t, ok, "wrong length is a failed check, not an error")

	f.clock.Advance(10 * time.Minute)
	ok, err = f.service.VerifyTwoFactorCode(ctx, "user-1", code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProvisioningURI(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithTotpIssuer("acme"))

	_, err := f.service.ProvisioningURI(ctx, "user-1", "ann@example.com")
	assertCode(t, err, idmerrors.ErrCodeNotFound)

	profile, err := f.service.CreateTwoFactorKey(ctx, "user-1", nil)
	require.NoError(t, err)

	uri, err := f.service.ProvisioningURI(ctx, "user-1", "ann@example.com")
	require.NoError(t, err)

	key, err := otp.NewKeyFromURL(uri)
	require.NoError(t, err)
	assert.Equal(t, "acme", key.Issuer())
	assert.Equal(t, "ann@example.com", key.AccountName())
	assert.Equal(t, profile.Secret, key.Secret())
}

func TestSecurityNotices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.CreateTwoFactorKey(ctx, "user-1", nil)
	require.NoError(t, err)
	_, err = f.service.RememberDevice(ctx, RememberDeviceParams{UserID: "user-1"})
	require.NoError(t, err)
	_, err = f.service.DeleteAllDevices(ctx, "user-1")
	require.NoError(t, err)
	require.NoError(t, f.service.DeleteTwoFactorKey(ctx, "user-1"))

	sent := f.notifier.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, notification.TwoFactorEnabledNotice, sent[0].Type)
	assert.Equal(t, notification.DevicesForgottenNotice, sent[1].Type)
	assert.Equal(t, "1", sent[1].Data.Data["Count"])
	assert.Equal(t, notification.TwoFactorDisabledNotice, sent[2].Type)
	for _, n := range sent {
		assert.Equal(t, "user1@example.com", n.Data.To)
		assert.Equal(t, "user-1", n.Data.Data["UserID"])
	}

	t.Run("FailuresDoNotFailOperation", func(t *testing.T) {
		f := newFixture(t)
		f.notifier.Err = errors.New("smtp down")
		_, err := f.service.CreateTwoFactorKey(ctx, "user-1", nil)
		require.NoError(t, err)
		assert.Len(t, f.notifier.Sent(), 1)
	})

	t.Run("UnknownRecipientSkipped", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.CreateTwoFactorKey(ctx, "user-9", nil)
		require.NoError(t, err)
		assert.Empty(t, f.notifier.Sent())
	})
}
