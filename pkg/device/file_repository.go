package device

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const devicesFileName = "remembered_devices.json"

// FileDeviceRepository implements DeviceRepository using file-based storage
type FileDeviceRepository struct {
	dataDir string
	devices map[string]*DeviceRecord // Key: makeKey(userID, deviceID)
	mutex   sync.RWMutex
}

// deviceData represents the structure of data stored in the JSON file
type deviceData struct {
	Devices []*DeviceRecord `json:"devices"`
}

// NewFileDeviceRepository creates a new file-based device repository
func NewFileDeviceRepository(dataDir string) (*FileDeviceRepository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileDeviceRepository{
		dataDir: dataDir,
		devices: make(map[string]*DeviceRecord),
	}

	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}

	return repo, nil
}

func (r *FileDeviceRepository) UpsertDevice(ctx context.Context, rec DeviceRecord) (DeviceRecord, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := makeKey(rec.UserID, rec.DeviceID)
	previous, existed := r.devices[key]
	if existed {
		rec.CreatedAt = previous.CreatedAt
	}

	recCopy := rec
	r.devices[key] = &recCopy

	if err := r.save(); err != nil {
		if existed {
			r.devices[key] = previous
		} else {
			delete(r.devices, key)
		}
		return DeviceRecord{}, fmt.Errorf("failed to save: %w", err)
	}
	return rec, nil
}

func (r *FileDeviceRepository) GetDevice(ctx context.Context, userID, deviceID string) (DeviceRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	rec, exists := r.devices[makeKey(userID, deviceID)]
	if !exists {
		return DeviceRecord{}, ErrDeviceNotFound
	}
	return *rec, nil
}

func (r *FileDeviceRepository) ListDevicesByUser(ctx context.Context, userID string) ([]DeviceRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	records := []DeviceRecord{}
	for _, rec := range r.devices {
		if rec.UserID == userID {
			records = append(records, *rec)
		}
	}
	sortRecords(records)
	return records, nil
}

func (r *FileDeviceRepository) DeleteExpiredDevice(ctx context.Context, userID, deviceID string, now time.Time) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := makeKey(userID, deviceID)
	rec, exists := r.devices[key]
	if !exists || !rec.IsExpired(now) {
		return false, nil
	}

	delete(r.devices, key)
	if err := r.save(); err != nil {
		r.devices[key] = rec
		return false, fmt.Errorf("failed to save: %w", err)
	}
	return true, nil
}

func (r *FileDeviceRepository) DeleteDevicesByUser(ctx context.Context, userID string) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.deleteWhere(func(rec *DeviceRecord) bool { return rec.UserID == userID })
}

func (r *FileDeviceRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.deleteWhere(func(rec *DeviceRecord) bool { return rec.IsExpired(now) })
}

// deleteWhere must be called with the write lock held.
func (r *FileDeviceRepository) deleteWhere(match func(*DeviceRecord) bool) (int64, error) {
	removed := make(map[string]*DeviceRecord)
	for key, rec := range r.devices {
		if match(rec) {
			removed[key] = rec
			delete(r.devices, key)
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}

	if err := r.save(); err != nil {
		for key, rec := range removed {
			r.devices[key] = rec
		}
		return 0, fmt.Errorf("failed to save: %w", err)
	}
	return int64(len(removed)), nil
}

// makeKey joins with NUL so ids containing ':' cannot collide.
func makeKey(userID, deviceID string) string {
	return userID + "\x00" + deviceID
}

// load reads device data from file
func (r *FileDeviceRepository) load() error {
	filePath := filepath.Join(r.dataDir, devicesFileName)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var devData deviceData
	if err := json.Unmarshal(data, &devData); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	r.devices = make(map[string]*DeviceRecord, len(devData.Devices))
	for _, rec := range devData.Devices {
		r.devices[makeKey(rec.UserID, rec.DeviceID)] = rec
	}
	return nil
}

// save writes device data to file atomically
func (r *FileDeviceRepository) save() error {
	records := make([]*DeviceRecord, 0, len(r.devices))
	for _, rec := range r.devices {
		records = append(records, rec)
	}

	jsonData, err := json.MarshalIndent(deviceData{Devices: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	filePath := filepath.Join(r.dataDir, devicesFileName)
	tempFile := filePath + ".tmp"
	if err := os.WriteFile(tempFile, jsonData, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
