package metadata

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/diaorui/fathom-deck/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir, testLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	meta := types.URLMetadata{
		URL:         "https://example.com/article",
		Title:       "An Article",
		Description: "",
		Image:       "https://example.com/og.png",
		ExtractedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	store.Put(meta.URL, meta)
	if err := store.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := NewStore(dir, testLogger())
	if err != nil {
		t.Fatalf("NewStore reload: %v", err)
	}
	got, _, ok := reloaded.Get(meta.URL)
	if !ok {
		t.Fatal("record missing after reload")
	}
	if got != meta {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, meta)
	}
	if got.Description != "" {
		t.Errorf("empty description should survive as empty, got %q", got.Description)
	}
}

func TestStoreCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, storeFilename), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := NewStore(dir, testLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("corrupt file should yield empty store, got %d entries", store.Len())
	}
}

func TestStoreGetReportsAge(t *testing.T) {
	store, err := NewStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	base := time.Now()
	store.now = func() time.Time { return base }
	store.Put("https://example.com/", types.URLMetadata{URL: "https://example.com/"})

	store.now = func() time.Time { return base.Add(48 * time.Hour) }
	_, age, ok := store.Get("https://example.com/")
	if !ok {
		t.Fatal("record missing")
	}
	if age != 48*time.Hour {
		t.Errorf("age = %v, want 48h", age)
	}
}

func TestStoreSaveSkipsWhenClean(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, testLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, storeFilename)); !os.IsNotExist(err) {
		t.Error("clean store should not write a file")
	}
}
