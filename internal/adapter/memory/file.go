package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jason-c-dev/opencode-flow/internal/domain"
)

// FileStore implements domain.MemoryStore with one JSON record per key.
// The in-memory map is authoritative for reads; disk writes are best-effort
// (failures are logged, not propagated), so a write is immediately visible
// even if persistence lags.
type FileStore struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]domain.MemoryEntry
}

// NewFileStore opens (or creates) a file-backed store rooted at dir and
// loads any existing records.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("memory: create dir: %w", err)
	}
	s := &FileStore{
		dir:     dir,
		logger:  logger,
		entries: make(map[string]domain.MemoryEntry),
	}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("memory: load: %w", err)
	}
	return s, nil
}

// Set stores value under key, overwriting unconditionally. ttl <= 0 means
// the entry never expires.
func (s *FileStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return domain.WrapOp("memory.set", err)
	}

	entry := domain.MemoryEntry{
		Key:       key,
		Value:     data,
		CreatedAt: time.Now(),
	}
	if ttl > 0 {
		expires := entry.CreatedAt.Add(ttl)
		entry.ExpiresAt = &expires
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()

	s.persist(entry)
	return nil
}

// Get returns the decoded value. Reading an expired entry deletes it as a
// side effect and reports absent.
func (s *FileStore) Get(_ context.Context, key string) (any, bool, error) {
	s.mu.Lock()
	entry, ok := s.entries[key]
	if ok && entry.Expired(time.Now()) {
		delete(s.entries, key)
		s.mu.Unlock()
		s.remove(key)
		return nil, false, nil
	}
	s.mu.Unlock()

	if !ok {
		return nil, false, nil
	}
	var value any
	if err := json.Unmarshal(entry.Value, &value); err != nil {
		return nil, false, domain.WrapOp("memory.get", err)
	}
	return value, true, nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	s.mu.Unlock()

	if ok {
		s.remove(key)
	}
	return nil
}

// Keys lists all stored keys. Expired entries may still appear until their
// next read; there is no background sweep.
func (s *FileStore) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys, nil
}

// Clear removes every entry and leaves the store immediately re-usable.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]domain.MemoryEntry)
	s.mu.Unlock()

	files, err := os.ReadDir(s.dir)
	if err != nil {
		return domain.WrapOp("memory.clear", err)
	}
	for _, f := range files {
		if !f.IsDir() && strings.HasSuffix(f.Name(), ".json") {
			if err := os.Remove(filepath.Join(s.dir, f.Name())); err != nil {
				s.logger.Warn("memory: remove record failed", "file", f.Name(), "error", err)
			}
		}
	}
	return nil
}

// Close implements domain.MemoryStore. The file store holds no open handles.
func (s *FileStore) Close() error { return nil }

// --- persistence ---

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+".json")
}

func (s *FileStore) load() error {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, f.Name()))
		if err != nil {
			s.logger.Warn("memory: skip unreadable record", "file", f.Name(), "error", err)
			continue
		}
		var entry domain.MemoryEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			s.logger.Warn("memory: skip corrupt record", "file", f.Name(), "error", err)
			continue
		}
		s.entries[entry.Key] = entry
	}
	return nil
}

// persist writes one record atomically. Failures are logged: the in-memory
// state stays authoritative.
func (s *FileStore) persist(entry domain.MemoryEntry) {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		s.logger.Warn("memory: marshal record failed", "key", entry.Key, "error", err)
		return
	}
	path := s.path(entry.Key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		s.logger.Warn("memory: write record failed", "key", entry.Key, "error", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		s.logger.Warn("memory: rename record failed", "key", entry.Key, "error", err)
	}
}

func (s *FileStore) remove(key string) {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("memory: remove record failed", "key", key, "error", err)
	}
}

// Compile-time interface check.
var _ domain.MemoryStore = (*FileStore)(nil)
