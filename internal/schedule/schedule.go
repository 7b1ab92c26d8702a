// Package schedule tracks when each widget last fetched successfully so
// widgets with an update interval can be skipped until they are due.
package schedule

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const trackerFilename = "widget_timestamps.json"

// Tracker persists widget refresh timestamps in a single JSON file of
// RFC 3339 strings keyed by widget identity.
type Tracker struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	updated map[string]time.Time
	dirty   bool

	now func() time.Time
}

// NewTracker opens (or creates) the tracker under cacheDir. A corrupt
// file is logged and replaced with an empty tracker.
func NewTracker(cacheDir string, logger *slog.Logger) (*Tracker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	t := &Tracker{
		path:    filepath.Join(cacheDir, trackerFilename),
		logger:  logger,
		updated: make(map[string]time.Time),
		now:     time.Now,
	}
	t.load()
	return t, nil
}

func (t *Tracker) load() {
	raw, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		t.logger.Warn("schedule tracker unreadable, starting empty", "path", t.path, "error", err)
		return
	}
	var stamps map[string]string
	if err := json.Unmarshal(raw, &stamps); err != nil {
		t.logger.Warn("schedule tracker corrupt, starting empty", "path", t.path, "error", err)
		return
	}
	for key, stamp := range stamps {
		parsed, err := time.Parse(time.RFC3339, stamp)
		if err != nil {
			t.logger.Warn("dropping unparseable timestamp", "key", key, "value", stamp)
			continue
		}
		t.updated[key] = parsed
	}
}

// Key builds the tracker key for one widget instance. Params participate
// sorted by name so equivalent configurations share a key.
func Key(seriesID, pageID, widgetType string, params map[string]any) string {
	var sb strings.Builder
	sb.WriteString(seriesID)
	sb.WriteByte('/')
	sb.WriteString(pageID)
	sb.WriteByte('/')
	sb.WriteString(widgetType)

	if len(params) > 0 {
		names := make([]string, 0, len(params))
		for name := range params {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			sb.WriteByte('/')
			sb.WriteString(name)
			sb.WriteByte('=')
			fmt.Fprintf(&sb, "%v", params[name])
		}
	}
	return sb.String()
}

// NeedsUpdate reports whether the widget is due for a refresh. A zero
// interval means the widget refreshes every run, and a widget never seen
// before is always due.
func (t *Tracker) NeedsUpdate(key string, every time.Duration) bool {
	if every <= 0 {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	last, ok := t.updated[key]
	if !ok {
		return true
	}
	return t.now().Sub(last) >= every
}

// MarkUpdated records a successful refresh for the widget.
func (t *Tracker) MarkUpdated(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.updated[key] = t.now()
	t.dirty = true
}

// LastUpdated returns the recorded refresh time for the widget.
func (t *Tracker) LastUpdated(key string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	last, ok := t.updated[key]
	return last, ok
}

// Save writes the tracker back to disk if anything changed.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty {
		return nil
	}

	stamps := make(map[string]string, len(t.updated))
	for key, stamp := range t.updated {
		stamps[key] = stamp.UTC().Format(time.RFC3339)
	}
	raw, err := json.MarshalIndent(stamps, "", "  ")
	if err != nil {
		return fmt.Errorf("encode schedule tracker: %w", err)
	}
	if err := os.WriteFile(t.path, raw, 0o644); err != nil {
		return fmt.Errorf("write schedule tracker: %w", err)
	}
	t.dirty = false
	return nil
}
