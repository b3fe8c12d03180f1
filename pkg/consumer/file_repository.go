package consumer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tendant/simple-idm-twofactor/pkg/encryption"
)

const consumersFileName = "oauth2_consumers.json"

// NewFileRepository creates a repository persisted to oauth2_consumers.json in
// dataDir. Consumer secrets are sealed with cipher; nil stores them unencrypted.
func NewFileRepository(dataDir string, cipher encryption.Cipher) (*InMemRepository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if cipher == nil {
		cipher = encryption.PlaintextCipher{}
	}

	repo := NewInMemRepository()
	filePath := filepath.Join(dataDir, consumersFileName)

	if err := loadSnapshot(filePath, cipher, repo); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	repo.persist = func(s snapshot) error {
		return saveSnapshot(filePath, cipher, s)
	}
	return repo, nil
}

func loadSnapshot(filePath string, cipher encryption.Cipher, repo *InMemRepository) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	for _, c := range s.Consumers {
		secret, err := cipher.Decrypt(c.Secret)
		if err != nil {
			return fmt.Errorf("failed to decrypt secret of consumer %s: %w", c.ID, err)
		}
		c.Secret = secret
		repo.consumers[c.ID] = c
	}
	for _, c := range s.Codes {
		repo.codes[c.Code] = c
	}
	return nil
}

func saveSnapshot(filePath string, cipher encryption.Cipher, s snapshot) error {
	for i := range s.Consumers {
		sealed, err := cipher.Encrypt(s.Consumers[i].Secret)
		if err != nil {
			return fmt.Errorf("failed to encrypt consumer secret: %w", err)
		}
		s.Consumers[i].Secret = sealed
	}

	jsonData, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

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
