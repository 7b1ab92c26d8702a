package schedule

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestKeyIncludesSortedParams(t *testing.T) {
	a := Key("tech", "frontpage", "reddit_posts", map[string]any{"subreddit": "golang", "limit": 10})
	b := Key("tech", "frontpage", "reddit_posts", map[string]any{"limit": 10, "subreddit": "golang"})
	if a != b {
		t.Errorf("param order should not matter: %q vs %q", a, b)
	}
	c := Key("tech", "frontpage", "reddit_posts", map[string]any{"subreddit": "rust", "limit": 10})
	if a == c {
		t.Error("different params should produce different keys")
	}
}

func TestNeedsUpdateZeroIntervalAlwaysDue(t *testing.T) {
	tracker, err := NewTracker(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	tracker.MarkUpdated("k")
	if !tracker.NeedsUpdate("k", 0) {
		t.Error("zero interval should always be due")
	}
}

func TestNeedsUpdateRespectsInterval(t *testing.T) {
	tracker, err := NewTracker(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	base := time.Now()
	tracker.now = func() time.Time { return base }
	tracker.MarkUpdated("k")

	tracker.now = func() time.Time { return base.Add(30 * time.Minute) }
	if tracker.NeedsUpdate("k", time.Hour) {
		t.Error("widget refreshed 30m ago should not be due with a 1h interval")
	}

	tracker.now = func() time.Time { return base.Add(time.Hour) }
	if !tracker.NeedsUpdate("k", time.Hour) {
		t.Error("widget refreshed exactly 1h ago should be due")
	}
}

func TestNeedsUpdateUnknownKeyIsDue(t *testing.T) {
	tracker, err := NewTracker(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	if !tracker.NeedsUpdate("never-seen", time.Hour) {
		t.Error("unknown widget should be due")
	}
}

func TestTrackerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tracker, err := NewTracker(dir, testLogger())
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	tracker.MarkUpdated("tech/frontpage/hackernews_posts")
	if err := tracker.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := NewTracker(dir, testLogger())
	if err != nil {
		t.Fatalf("NewTracker reload: %v", err)
	}
	if _, ok := reloaded.LastUpdated("tech/frontpage/hackernews_posts"); !ok {
		t.Error("timestamp missing after reload")
	}
}

func TestTrackerCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, trackerFilename), []byte("]["), 0o644); err != nil {
		t.Fatal(err)
	}
	tracker, err := NewTracker(dir, testLogger())
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	if _, ok := tracker.LastUpdated("anything"); ok {
		t.Error("corrupt file should yield empty tracker")
	}
}
