// Package tokenstore persists the last-known identity-provider grant so a
// session survives process restarts. It defines the Store interface, a
// file-backed implementation, and an in-memory implementation suitable for
// testing.
package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNotFound is returned when no grant has been persisted.
var ErrNotFound = errors.New("no stored grant")

// Grant is the durable "authToken" record: the bearer token presented to the
// API plus the refresh token needed to renew it silently.
type Grant struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IDToken      string    `json:"id_token,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// Store is the persistence interface for the single grant record.
type Store interface {
	Load() (*Grant, error)
	Save(grant *Grant) error
	Clear() error
}

// ---------------------------------------------------------------------------
// FileStore
// ---------------------------------------------------------------------------

// FileStore keeps the grant in a 0600 JSON file. Writes go through a
// temporary file and a rename, so concurrent processes sharing the file see
// either the old record or the new one, never a torn write. There is no
// cross-process coordination beyond that: last writer wins.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore backed by the given path. The parent
// directory is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (*Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading grant file: %w", err)
	}

	var grant Grant
	if err := json.Unmarshal(data, &grant); err != nil {
		return nil, fmt.Errorf("decoding grant file: %w", err)
	}
	if grant.AccessToken == "" && grant.RefreshToken == "" {
		return nil, ErrNotFound
	}
	return &grant, nil
}

func (s *FileStore) Save(grant *Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("creating grant directory: %w", err)
	}

	data, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("encoding grant: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing grant file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing grant file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing grant file: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// MemStore
// ---------------------------------------------------------------------------

// MemStore is a thread-safe, in-memory Store for tests and development.
type MemStore struct {
	mu    sync.RWMutex
	grant *Grant
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Load() (*Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.grant == nil {
		return nil, ErrNotFound
	}
	copied := *s.grant
	return &copied, nil
}

func (s *MemStore) Save(grant *Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *grant
	s.grant = &copied
	return nil
}

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.grant = nil
	return nil
}
