package twofa

import (
	"fmt"

	"github.com/tendant/simple-idm-twofactor/pkg/encryption"
)

// RepositoryConfig contains configuration for creating a profile repository
type RepositoryConfig struct {
	// DB is required for PostgreSQL repositories
	DB DBTX
	// DataDir is required for file-based repositories
	DataDir string
	// Cipher seals TOTP secrets at rest; nil stores them unencrypted
	Cipher encryption.Cipher
}

// NewProfileRepository creates a new profile repository based on the persistence type
func NewProfileRepository(persistenceType string, config RepositoryConfig) (ProfileRepository, error) {
	switch persistenceType {
	case "postgres", "postgresql":
		if config.DB == nil {
			return nil, fmt.Errorf("db required for postgres repository")
		}
		return NewPostgresProfileRepository(config.DB, config.Cipher), nil
	case "file":
		if config.DataDir == "" {
			return nil, fmt.Errorf("dataDir required for file repository")
		}
		return NewFileProfileRepository(config.DataDir, config.Cipher)
	case "memory", "inmem":
		return NewInMemProfileRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: postgres, file, memory)", persistenceType)
	}
}
