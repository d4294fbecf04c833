package disk

import (
	"path/filepath"
	"testing"
)

// TestingNewFileManager initializes disk manager with file storage.
// the file is created under t.TempDir() so it is removed after test is completed.
func TestingNewFileManager(t *testing.T) (*Manager, error) {
	path := filepath.Join(t.TempDir(), "data")
	return NewManager(path)
}

// TestingNewBufferManager initializes disk manager with buffer storage instead of file storage.
// This prevents unnecessary disk I/O.
func TestingNewBufferManager() (*Manager, error) {
	return newManagerWithStorage(newBufferStorage())
}
