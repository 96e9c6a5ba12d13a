// Package localstore provides the persistent key/value store for device
// preferences and small session state. Values are kept in one JSON file
// that survives database resets and is snapshotted by the backup service.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/genesis-ai-dev/langquest-sub009/internal/config"
)

// Well-known keys.
const (
	KeyTermsAccepted = "terms_accepted"
	KeyUILanguageID  = "ui_language_id"
	KeyCurrentUserID = "current_user_id"
	KeyLastProjectID = "last_project_id"
)

const currentFileFormat = 1

// fileData represents the JSON file structure.
type fileData struct {
	Version int                        `json:"version"`
	Key     string                     `json:"key"`
	Values  map[string]json.RawMessage `json:"values"`
}

func emptyData() *fileData {
	return &fileData{
		Version: currentFileFormat,
		Key:     config.LocalStoreKey,
		Values:  map[string]json.RawMessage{},
	}
}

// Store manages local store persistence.
type Store struct {
	path  string
	mu    sync.RWMutex
	cache *fileData
}

// NewStore creates a new store backed by path.
func NewStore(path string) *Store {
	return &Store{
		path:  path,
		cache: emptyData(),
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads values from the JSON file.
// If the file doesn't exist, initializes an empty store.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.cache = emptyData()
			return nil
		}
		return err
	}

	fd, err := decode(data)
	if err != nil {
		// Corrupted file, initialize empty
		s.cache = emptyData()
		return nil
	}

	s.cache = fd
	return nil
}

func decode(data []byte) (*fileData, error) {
	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return nil, err
	}
	if fd.Key != "" && fd.Key != config.LocalStoreKey {
		return nil, fmt.Errorf("unexpected store key %q", fd.Key)
	}
	if fd.Values == nil {
		fd.Values = map[string]json.RawMessage{}
	}
	fd.Key = config.LocalStoreKey
	return &fd, nil
}

// Get decodes the value stored under key into out.
// Returns false if the key is absent.
func (s *Store) Get(key string, out interface{}) (bool, error) {
	s.mu.RLock()
	raw, ok := s.cache.Values[key]
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// GetString returns the string stored under key, or "" if absent.
func (s *Store) GetString(key string) string {
	var v string
	if ok, err := s.Get(key, &v); !ok || err != nil {
		return ""
	}
	return v
}

// GetBool returns the bool stored under key, or false if absent.
func (s *Store) GetBool(key string) bool {
	var v bool
	if ok, err := s.Get(key, &v); !ok || err != nil {
		return false
	}
	return v
}

// Set stores value under key and saves immediately.
func (s *Store) Set(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Values[key] = raw
	return s.saveLocked()
}

// Delete removes key. Removing an absent key is a no-op.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache.Values[key]; !ok {
		return nil
	}
	delete(s.cache.Values, key)
	return s.saveLocked()
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.cache.Values))
	for k := range s.cache.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns the persisted bytes of the store. When nothing has been
// saved yet it returns the serialized in-memory state.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return json.MarshalIndent(s.cache, "", "  ")
}

// Restore replaces the persisted store with data, which must be a
// previous Snapshot. The bytes are written as given.
func (s *Store) Restore(data []byte) error {
	fd, err := decode(data)
	if err != nil {
		return fmt.Errorf("invalid local store snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeAtomic(s.path, data); err != nil {
		return err
	}
	s.cache = fd
	return nil
}

// saveLocked saves without acquiring the lock (caller must hold write lock).
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.cache, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.path, data)
}

func writeAtomic(path string, data []byte) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	// Atomic write: write to temp file, then rename
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
