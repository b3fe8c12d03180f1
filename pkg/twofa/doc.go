// Package twofa provides two-factor authentication (2FA) enrollment and
// remembered-device trust for simple-idm.
//
// # Overview
//
// A user is either disabled (no profile) or enabled (a profile holding a TOTP
// secret and an optional security question). Enabled users may remember
// devices, which lets a recognized device skip the second factor until its
// trust window ends.
//
// The package provides:
//   - TwoFactorService, the state machine over profiles and devices
//   - ProfileRepository with memory, file and PostgreSQL implementations
//   - TOTP secret generation and code verification through pquerna/otp
//   - argon2id hashing of security answers
//   - Security notices on enable, disable and forget-devices
//
// # Basic Usage
//
//	import "github.com/tendant/simple-idm-twofactor/pkg/twofa"
//
//	profiles, _ := twofa.NewProfileRepository("postgres", twofa.RepositoryConfig{DB: pool, Cipher: cipher})
//	devices, _ := device.NewDeviceRepository("postgres", device.RepositoryConfig{DB: pool})
//
//	service := twofa.NewTwoFactorService(profiles, devices, client.RoleGate{},
//		twofa.WithTrustWindow(30*24*time.Hour),
//		twofa.WithNotifier(notifier),
//		twofa.WithRecipientLookup(users),
//	)
//
//	// Enroll with a security question
//	profile, err := service.CreateTwoFactorKey(ctx, userID, &twofa.EnableOptions{
//		SecurityQuestion: "First pet?",
//		SecurityAnswer:   "rex",
//	})
//
//	// Remember the current device; the token is only returned here
//	dev, err := service.RememberDevice(ctx, twofa.RememberDeviceParams{UserID: userID})
//
//	// Later, skip the challenge for a trusted device
//	trusted, err := service.CheckForDevice(ctx, twofa.CheckDeviceParams{
//		UserID:      userID,
//		DeviceID:    dev.DeviceID,
//		DeviceToken: dev.DeviceToken,
//	})
//
// # Re-enrollment
//
// CreateTwoFactorKey replaces an existing enrollment by default. Use
// WithReenrollmentPolicy(ReenrollmentReject) to fail with CONFLICT instead.
//
// # Errors
//
// Methods return *errors.Error from pkg/errors: VALIDATION_FAILED for missing
// or unpaired input, NOT_FOUND for missing profiles, FORBIDDEN from the gate
// and CONFLICT under the reject policy. Storage failures are INTERNAL_ERROR.
package twofa
