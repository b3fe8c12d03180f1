// Package device stores remembered devices: per-user (device id, token digest)
// pairs that let a user skip the second factor until the trust window ends.
//
// Three DeviceRepository implementations are provided and selected with
// NewDeviceRepository:
//
//   - "postgres": remembered_device table, atomic INSERT ... ON CONFLICT upserts
//   - "file": JSON file written atomically through a temp file and rename
//   - "memory": map guarded by a mutex, for tests and single-process setups
//
// The repositories never see a plaintext device token. Expiry decisions are made
// by the caller, which passes its own notion of now.
package device
