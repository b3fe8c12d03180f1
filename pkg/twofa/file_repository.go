package twofa

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tendant/simple-idm-twofactor/pkg/encryption"
)

const profilesFileName = "twofa_profiles.json"

// FileProfileRepository implements ProfileRepository using file-based storage
type FileProfileRepository struct {
	dataDir  string
	profiles map[string]TwoFactorProfile
	cipher   encryption.Cipher
	mutex    sync.RWMutex
}

// storedProfile is the on-disk form; Secret and SecurityAnswerHash are tagged
// json:"-" on TwoFactorProfile so they need explicit fields here.
type storedProfile struct {
	UserID             string    `json:"user_id"`
	Secret             string    `json:"secret"`
	SecurityQuestion   string    `json:"security_question,omitempty"`
	SecurityAnswerHash string    `json:"security_answer_hash,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type profileData struct {
	Profiles []storedProfile `json:"profiles"`
}

// NewFileProfileRepository creates a new file-based profile repository.
// A nil cipher stores secrets unencrypted.
func NewFileProfileRepository(dataDir string, cipher encryption.Cipher) (*FileProfileRepository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if cipher == nil {
		cipher = encryption.PlaintextCipher{}
	}

	repo := &FileProfileRepository{
		dataDir:  dataDir,
		profiles: make(map[string]TwoFactorProfile),
		cipher:   cipher,
	}

	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}

	return repo, nil
}

func (r *FileProfileRepository) GetProfile(ctx context.Context, userID string) (TwoFactorProfile, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	profile, ok := r.profiles[userID]
	if !ok {
		return TwoFactorProfile{}, ErrProfileNotFound
	}
	return profile, nil
}

func (r *FileProfileRepository) CreateProfile(ctx context.Context, profile TwoFactorProfile) (TwoFactorProfile, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.profiles[profile.UserID]; ok {
		return TwoFactorProfile{}, ErrProfileExists
	}
	return r.put(profile)
}

func (r *FileProfileRepository) UpsertProfile(ctx context.Context, profile TwoFactorProfile) (TwoFactorProfile, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.put(profile)
}

// put must be called with the write lock held.
func (r *FileProfileRepository) put(profile TwoFactorProfile) (TwoFactorProfile, error) {
	previous, existed := r.profiles[profile.UserID]
	r.profiles[profile.UserID] = profile

	if err := r.save(); err != nil {
		if existed {
			r.profiles[profile.UserID] = previous
		} else {
			delete(r.profiles, profile.UserID)
		}
		return TwoFactorProfile{}, fmt.Errorf("failed to save: %w", err)
	}
	return profile, nil
}

func (r *FileProfileRepository) DeleteProfile(ctx context.Context, userID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	previous, ok := r.profiles[userID]
	if !ok {
		return ErrProfileNotFound
	}
	delete(r.profiles, userID)

	if err := r.save(); err != nil {
		r.profiles[userID] = previous
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

// load reads profile data from file
func (r *FileProfileRepository) load() error {
	filePath := filepath.Join(r.dataDir, profilesFileName)

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

	var stored profileData
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	for _, sp := range stored.Profiles {
		profile, err := r.fromStored(sp)
		if err != nil {
			return fmt.Errorf("failed to decode profile %s: %w", sp.UserID, err)
		}
		r.profiles[profile.UserID] = profile
	}
	return nil
}

// save writes profile data to file atomically
func (r *FileProfileRepository) save() error {
	stored := profileData{Profiles: make([]storedProfile, 0, len(r.profiles))}
	for _, profile := range r.profiles {
		sp, err := r.toStored(profile)
		if err != nil {
			return err
		}
		stored.Profiles = append(stored.Profiles, sp)
	}

	jsonData, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	filePath := filepath.Join(r.dataDir, profilesFileName)
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

func (r *FileProfileRepository) toStored(p TwoFactorProfile) (storedProfile, error) {
	secret, err := sealSecret(r.cipher, p.Secret)
	if err != nil {
		return storedProfile{}, err
	}
	return storedProfile{
		UserID:             p.UserID,
		Secret:             secret,
		SecurityQuestion:   p.SecurityQuestion,
		SecurityAnswerHash: p.SecurityAnswerHash,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}, nil
}

func (r *FileProfileRepository) fromStored(sp storedProfile) (TwoFactorProfile, error) {
	secret, err := openSecret(r.cipher, sp.Secret)
	if err != nil {
		return TwoFactorProfile{}, err
	}
	return TwoFactorProfile{
		UserID:             sp.UserID,
		Secret:             secret,
		SecurityQuestion:   sp.SecurityQuestion,
		SecurityAnswerHash: sp.SecurityAnswerHash,
		CreatedAt:          sp.CreatedAt,
		UpdatedAt:          sp.UpdatedAt,
	}, nil
}
