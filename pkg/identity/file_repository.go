package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const directoryFileName = "identity.json"

// directoryData is the layout of identity.json.
type directoryData struct {
	Domains []Domain `json:"domains"`
	Users   []User   `json:"users"`
}

// NewFileDirectory loads users and domains from identity.json in dataDir.
// The file is owned by the identity service and is read once; a missing file
// yields an empty directory.
func NewFileDirectory(dataDir string) (*InMemDirectory, error) {
	dir := NewInMemDirectory()

	data, err := os.ReadFile(filepath.Join(dataDir, directoryFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return dir, nil
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return dir, nil
	}

	var stored directoryData
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal data: %w", err)
	}

	for _, domain := range stored.Domains {
		if err := dir.AddDomain(domain); err != nil {
			return nil, err
		}
	}
	for _, user := range stored.Users {
		if err := dir.AddUser(user); err != nil {
			return nil, err
		}
	}
	return dir, nil
}
