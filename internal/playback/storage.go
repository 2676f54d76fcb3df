package playback

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/quasilyte/gdata"
)

// Storage keys
const (
	KeyMusicState         = "musicState"
	KeyMusicLoopState     = "musicLoopState"
	KeySoundEffectsVolume = "soundEffectsVolume"
)

// Storage is durable per-user key/value storage. LoadItem returns nil data
// and no error for a key that was never saved.
type Storage interface {
	LoadItem(key string) ([]byte, error)
	SaveItem(key string, data []byte) error
}

// GdataStorage stores items in the platform's per-application data directory
type GdataStorage struct {
	m *gdata.Manager
}

// OpenGdataStorage opens per-user storage for appName
func OpenGdataStorage(appName string) (*GdataStorage, error) {
	m, err := gdata.Open(gdata.Config{AppName: appName})
	if err != nil {
		return nil, fmt.Errorf("failed to open gdata storage: %w", err)
	}
	return &GdataStorage{m: m}, nil
}

// LoadItem reads a stored item
func (s *GdataStorage) LoadItem(key string) ([]byte, error) {
	data, err := s.m.LoadItem(key)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return data, nil
}

// SaveItem writes a stored item
func (s *GdataStorage) SaveItem(key string, data []byte) error {
	if err := s.m.SaveItem(key, data); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// FileStorage stores each item as a file in a directory
type FileStorage struct {
	mu  sync.Mutex
	dir string
}

// NewFileStorage creates file-backed storage under dir
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: dir}
}

func (s *FileStorage) path(key string) string {
	return filepath.Join(s.dir, unsafeKeyChars.ReplaceAllString(key, "_")+".json")
}

// LoadItem reads a stored item
func (s *FileStorage) LoadItem(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			// Nothing saved yet
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// SaveItem writes a stored item atomically
func (s *FileStorage) SaveItem(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	target := s.path(key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	return nil
}

// MemoryStorage keeps items in memory
type MemoryStorage struct {
	mu     sync.Mutex
	items  map[string][]byte
	writes map[string]int
}

// NewMemoryStorage creates empty in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		items:  make(map[string][]byte),
		writes: make(map[string]int),
	}
}

// LoadItem reads a stored item
func (s *MemoryStorage) LoadItem(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.items[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// SaveItem writes a stored item
func (s *MemoryStorage) SaveItem(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	s.items[key] = stored
	s.writes[key]++
	return nil
}

// Writes returns how many times key has been saved
func (s *MemoryStorage) Writes(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[key]
}
