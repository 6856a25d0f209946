package client

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// Storage persists client-side state as keyed blobs. It stands in for browser
// local storage and can be swapped or mocked in tests.
type Storage interface {
	// Load returns the blob for key, or ErrNoValue when nothing is stored.
	Load(key string) ([]byte, error)
	// Save stores the blob under key, replacing any previous value.
	Save(key string, data []byte) error
	// Delete removes the blob for key. Deleting an absent key is not an error.
	Delete(key string) error
}

// ErrNoValue is returned by Storage.Load when no blob exists for the key.
var ErrNoValue = errors.New("no stored value")

// FileStorage keeps one JSON file per key in a directory.
type FileStorage struct {
	dir string
}

// NewFileStorage creates the directory if needed.
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStorage{dir: dir}, nil
}

func (s *FileStorage) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Load reads the blob for key.
func (s *FileStorage) Load(key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoValue
	}
	return data, err
}

// Save writes the blob for key.
func (s *FileStorage) Save(key string, data []byte) error {
	return os.WriteFile(s.path(key), data, 0o644)
}

// Delete removes the blob for key.
func (s *FileStorage) Delete(key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// MapStorage is an in-memory Storage for tests.
type MapStorage struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMapStorage creates an empty in-memory storage.
func NewMapStorage() *MapStorage {
	return &MapStorage{blobs: make(map[string][]byte)}
}

// Load returns the stored blob.
func (s *MapStorage) Load(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, ErrNoValue
	}
	return data, nil
}

// Save stores the blob.
func (s *MapStorage) Save(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte(nil), data...)
	return nil
}

// Delete removes the blob.
func (s *MapStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}
