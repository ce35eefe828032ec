// Package checkpoint persists per-room sync cursors so incremental polling
// survives restarts. The core never touches the filesystem directly; it
// talks to the Store interface and the backend is chosen from config.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store loads and saves one opaque transport-issued token per room. A
// missing cursor is not an error: Load returns ("", nil) and the caller
// starts fresh.
type Store interface {
	Load(roomID string) (string, error)
	Save(roomID, token string) error
}

// FileStore keeps one token file per room under a data directory, named
// ".next_token.<room>".
type FileStore struct {
	dir string
}

// NewFileStore returns a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating checkpoint directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(roomID string) string {
	// Room IDs contain '!' and ':'; both are fine in file names, but a
	// path separator would escape the data dir.
	safe := strings.ReplaceAll(roomID, string(os.PathSeparator), "_")
	return filepath.Join(s.dir, ".next_token."+safe)
}

func (s *FileStore) Load(roomID string) (string, error) {
	data, err := os.ReadFile(s.path(roomID))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading cursor for %s: %w", roomID, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FileStore) Save(roomID, token string) error {
	if err := os.WriteFile(s.path(roomID), []byte(token), 0o644); err != nil {
		return fmt.Errorf("writing cursor for %s: %w", roomID, err)
	}
	return nil
}

// MemStore is an in-memory Store used in tests and disabled-transport runs.
type MemStore struct {
	mu      sync.RWMutex
	cursors map[string]string
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{cursors: make(map[string]string)}
}

func (s *MemStore) Load(roomID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[roomID], nil
}

func (s *MemStore) Save(roomID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[roomID] = token
	return nil
}
