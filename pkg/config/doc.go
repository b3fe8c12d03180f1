// Package config provides configuration structs and environment helpers for the
// two-factor service.
//
// Each struct carries cleanenv tags so a binary can populate it with
// cleanenv.ReadEnv, and a NewXConfigFromEnv constructor for callers that do not
// use cleanenv. Durations accept ISO 8601 ("P30D") as well as Go syntax ("720h").
//
//	cfg := config.NewTwoFactorConfigFromEnv()
//	if err := config.Validate(cfg.Validate); err != nil {
//		slog.Error("invalid configuration", "error", err)
//	}
//	window, err := cfg.ParseDeviceTrustWindow()
package config
