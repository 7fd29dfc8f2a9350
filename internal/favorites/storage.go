package favorites

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/kapu/pokedex-go/pkg/errors"
)

// Storage persists opaque blobs under string keys.
type Storage interface {
	Load(ctx context.Context, key string) (data []byte, found bool, err error)
	Save(ctx context.Context, key string, data []byte) error
}

// MemoryStorage keeps blobs for the lifetime of the process.
type MemoryStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte)}
}

func (m *MemoryStorage) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (m *MemoryStorage) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

// FileStorage writes one <key>.json file per key under dir.
type FileStorage struct {
	dir string
}

func NewFileStorage(dir string) (*FileStorage, error) {
	if dir == "" {
		return nil, errors.NewValidationError("favorites directory is required", "dir", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewStorageError("failed to create favorites directory", "mkdir", dir, err)
	}
	return &FileStorage{dir: filepath.Clean(dir)}, nil
}

func (f *FileStorage) path(key string) string {
	return filepath.Join(f.dir, filepath.Base(key)+".json")
}

func (f *FileStorage) Load(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.NewStorageError("read failed", "load", key, err)
	}
	return data, true, nil
}

// Save replaces the file atomically so a crash never leaves half a blob behind.
func (f *FileStorage) Save(_ context.Context, key string, data []byte) error {
	tmp, err := os.CreateTemp(f.dir, filepath.Base(key)+".*.tmp")
	if err != nil {
		return errors.NewStorageError("create temp file failed", "save", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.NewStorageError("write failed", "save", key, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewStorageError("close failed", "save", key, err)
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		return errors.NewStorageError("rename failed", "save", key, err)
	}
	return nil
}
