package statsclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Cache keeps the last good snapshot across restarts of the client.
// Load returns a nil snapshot when nothing is stored.
type Cache interface {
	Load() (*Snapshot, time.Time, error)
	Save(s *Snapshot, at time.Time) error
}

type MemoryCache struct {
	mu    sync.Mutex
	snap  *Snapshot
	saved time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Load() (*Snapshot, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		return nil, time.Time{}, nil
	}
	cp := *c.snap
	return &cp, c.saved, nil
}

func (c *MemoryCache) Save(s *Snapshot, at time.Time) error {
	cp := *s
	c.mu.Lock()
	c.snap, c.saved = &cp, at
	c.mu.Unlock()
	return nil
}

// FileCache stores the snapshot as a JSON file.
type FileCache struct {
	path string
	mu   sync.Mutex
}

type cacheFile struct {
	Snapshot *Snapshot `json:"snapshot"`
	SavedAt  time.Time `json:"savedAt"`
}

func NewFileCache(path string) *FileCache {
	return &FileCache{path: path}
}

func (c *FileCache) Load() (*Snapshot, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read cache: %w", err)
	}

	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to decode cache: %w", err)
	}
	return f.Snapshot, f.SavedAt, nil
}

// Save replaces the cache file atomically.
func (c *FileCache) Save(s *Snapshot, at time.Time) error {
	data, err := json.Marshal(cacheFile{Snapshot: s, SavedAt: at})
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".statscache-*")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return os.Rename(tmp.Name(), c.path)
}
