package deviceid

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestGetOrCreateAtPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", InstanceIDFile)

	first, err := GetOrCreateAt(path)
	if err != nil {
		t.Fatalf("GetOrCreateAt: %v", err)
	}
	if _, err := uuid.Parse(first); err != nil {
		t.Fatalf("id %q is not a uuid: %v", first, err)
	}
	second, err := GetOrCreateAt(path)
	if err != nil {
		t.Fatalf("GetOrCreateAt: %v", err)
	}
	if first != second {
		t.Fatalf("id changed between calls: %s != %s", first, second)
	}
}

func TestGetOrCreateAtReplacesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), InstanceIDFile)
	os.WriteFile(path, []byte("  \n"), 0600)

	id, err := GetOrCreateAt(path)
	if err != nil {
		t.Fatalf("GetOrCreateAt: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a fresh id")
	}
}
