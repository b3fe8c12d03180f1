package device

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// InMemDeviceRepository implements DeviceRepository using an in-memory map
type InMemDeviceRepository struct {
	devices map[string]map[string]DeviceRecord // userID -> deviceID -> record
	mu      sync.Mutex
}

// NewInMemDeviceRepository creates a new in-memory device repository
func NewInMemDeviceRepository() *InMemDeviceRepository {
	return &InMemDeviceRepository{
		devices: make(map[string]map[string]DeviceRecord),
	}
}

func (r *InMemDeviceRepository) UpsertDevice(ctx context.Context, rec DeviceRecord) (DeviceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byDevice, ok := r.devices[rec.UserID]
	if !ok {
		byDevice = make(map[string]DeviceRecord)
		r.devices[rec.UserID] = byDevice
	}

	if existing, ok := byDevice[rec.DeviceID]; ok {
		rec.CreatedAt = existing.CreatedAt
		slog.Debug("Remembered device refreshed", "userID", rec.UserID, "deviceID", rec.DeviceID)
	}
	byDevice[rec.DeviceID] = rec
	return rec, nil
}

func (r *InMemDeviceRepository) GetDevice(ctx context.Context, userID, deviceID string) (DeviceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.devices[userID][deviceID]
	if !ok {
		return DeviceRecord{}, ErrDeviceNotFound
	}
	return rec, nil
}

func (r *InMemDeviceRepository) ListDevicesByUser(ctx context.Context, userID string) ([]DeviceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]DeviceRecord, 0, len(r.devices[userID]))
	for _, rec := range r.devices[userID] {
		records = append(records, rec)
	}
	sortRecords(records)
	return records, nil
}

func (r *InMemDeviceRepository) DeleteExpiredDevice(ctx context.Context, userID, deviceID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.devices[userID][deviceID]
	if !ok || !rec.IsExpired(now) {
		return false, nil
	}
	delete(r.devices[userID], deviceID)
	if len(r.devices[userID]) == 0 {
		delete(r.devices, userID)
	}
	return true, nil
}

func (r *InMemDeviceRepository) DeleteDevicesByUser(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := int64(len(r.devices[userID]))
	delete(r.devices, userID)
	return count, nil
}

func (r *InMemDeviceRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for userID, byDevice := range r.devices {
		for deviceID, rec := range byDevice {
			if rec.IsExpired(now) {
				delete(byDevice, deviceID)
				count++
			}
		}
		if len(byDevice) == 0 {
			delete(r.devices, userID)
		}
	}
	return count, nil
}

// sortRecords orders by creation time, then device id, so listings are stable.
func sortRecords(records []DeviceRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].DeviceID < records[j].DeviceID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}
