// Package metadata extracts and persists link previews (Open Graph,
// Twitter Card, favicon, title) for widget items.
package metadata

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/diaorui/fathom-deck/pkg/types"
)

// StaleAfter is the default age past which a stored record is refreshed.
const StaleAfter = 30 * 24 * time.Hour

const storeFilename = "url_metadata.json"

// Store keeps extracted metadata in a single JSON file keyed by
// normalized URL. The whole file is loaded at construction and written
// back by Save.
type Store struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]storeEntry
	dirty   bool

	now func() time.Time
}

type storeEntry struct {
	Metadata   types.URLMetadata `json:"metadata"`
	CapturedAt time.Time         `json:"captured_at"`
}

// NewStore opens (or creates) the metadata store under cacheDir. A
// corrupt or unreadable file is logged and replaced with an empty store
// rather than surfaced as an error.
func NewStore(cacheDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	s := &Store{
		path:    filepath.Join(cacheDir, storeFilename),
		logger:  logger,
		entries: make(map[string]storeEntry),
		now:     time.Now,
	}
	s.load()
	return s, nil
}

func (s *Store) load() {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		s.logger.Warn("metadata store unreadable, starting empty", "path", s.path, "error", err)
		return
	}
	var entries map[string]storeEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		s.logger.Warn("metadata store corrupt, starting empty", "path", s.path, "error", err)
		return
	}
	s.entries = entries
}

// Get returns the stored record for a normalized URL along with its age.
func (s *Store) Get(normalizedURL string) (types.URLMetadata, time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[normalizedURL]
	if !ok {
		return types.URLMetadata{}, 0, false
	}
	return entry.Metadata, s.now().Sub(entry.CapturedAt), true
}

// Put records freshly extracted metadata for a normalized URL.
func (s *Store) Put(normalizedURL string, meta types.URLMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[normalizedURL] = storeEntry{Metadata: meta, CapturedAt: s.now()}
	s.dirty = true
}

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Save writes the full store back to disk if anything changed since the
// last save.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	raw, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata store: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("write metadata store: %w", err)
	}
	s.dirty = false
	return nil
}
