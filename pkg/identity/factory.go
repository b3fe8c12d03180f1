package identity

import (
	"fmt"
)

// RepositoryConfig contains configuration for creating a directory
type RepositoryConfig struct {
	// DB is required for PostgreSQL directories
	DB DBTX
	// DataDir is required for file-based directories
	DataDir string
}

// NewDirectory creates a user and domain directory based on the persistence type
func NewDirectory(persistenceType string, config RepositoryConfig) (Directory, error) {
	switch persistenceType {
	case "postgres", "postgresql":
		if config.DB == nil {
			return nil, fmt.Errorf("db required for postgres repository")
		}
		return NewPostgresDirectory(config.DB), nil
	case "file":
		if config.DataDir == "" {
			return nil, fmt.Errorf("dataDir required for file repository")
		}
		return NewFileDirectory(config.DataDir)
	case "memory", "inmem":
		return NewInMemDirectory(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: postgres, file, memory)", persistenceType)
	}
}
