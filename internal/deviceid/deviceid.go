// Package deviceid provides the persistent instance id advertised in the
// mDNS TXT record, so a discoverer can recognise its own advertisement.
package deviceid

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	// ConfigDir is the directory for ctrlr state
	ConfigDir = ".ctrlr"
	// InstanceIDFile is the filename for the instance id
	InstanceIDFile = "instance_id"
)

// GetOrCreate returns the instance id, creating one if it doesn't exist.
// The id is persisted in ~/.ctrlr/instance_id
func GetOrCreate() (string, error) {
	path, err := defaultPath()
	if err != nil {
		return "", err
	}
	return GetOrCreateAt(path)
}

// GetOrCreateAt is GetOrCreate for an explicit file
func GetOrCreateAt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	}

	id := uuid.New().String()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(id), 0600); err != nil {
		return "", err
	}
	return id, nil
}

func defaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, InstanceIDFile), nil
}
