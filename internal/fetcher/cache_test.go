package fetcher

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingDoer struct {
	calls atomic.Int32
	body  []byte
	err   error
}

func (d *countingDoer) Do(ctx context.Context, req Request) ([]byte, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return d.body, nil
}

func TestRequestCacheDeduplicates(t *testing.T) {
	delegate := &countingDoer{body: []byte(`{"price": 42}`)}
	cache := NewRequestCache(delegate, time.Minute)

	req := Request{URL: "https://example.com/api", Params: map[string]string{"a": "1"}}

	first, err := cache.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("first Do: %v", err)
	}
	second, err := cache.Do(context.Background(), Request{URL: req.URL, Params: map[string]string{"a": "1"}})
	if err != nil {
		t.Fatalf("second Do: %v", err)
	}

	if got := delegate.calls.Load(); got != 1 {
		t.Fatalf("delegate called %d times, want 1", got)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("cached payload differs: %q vs %q", first, second)
	}
}

func TestRequestCacheExpiry(t *testing.T) {
	delegate := &countingDoer{body: []byte("data")}
	cache := NewRequestCache(delegate, 0) // default 180s

	base := time.Now()
	cache.now = func() time.Time { return base }

	req := Request{URL: "https://example.com/feed"}
	if _, err := cache.Do(context.Background(), req); err != nil {
		t.Fatalf("Do: %v", err)
	}

	// Still inside the window at t=179s.
	cache.now = func() time.Time { return base.Add(179 * time.Second) }
	if _, err := cache.Do(context.Background(), req); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got := delegate.calls.Load(); got != 1 {
		t.Fatalf("delegate called %d times inside TTL, want 1", got)
	}

	// Expired at t=181s: a fresh fetch must happen.
	cache.now = func() time.Time { return base.Add(181 * time.Second) }
	if _, err := cache.Do(context.Background(), req); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got := delegate.calls.Load(); got != 2 {
		t.Fatalf("delegate called %d times after expiry, want 2", got)
	}
}

func TestRequestCacheDoesNotStoreFailures(t *testing.T) {
	delegate := &countingDoer{err: errors.New("boom")}
	cache := NewRequestCache(delegate, time.Minute)

	req := Request{URL: "https://example.com/api"}
	if _, err := cache.Do(context.Background(), req); err == nil {
		t.Fatal("expected error")
	}
	if cache.Len() != 0 {
		t.Fatalf("failed fetch must not be cached, have %d entries", cache.Len())
	}

	delegate.err = nil
	delegate.body = []byte("recovered")
	body, err := cache.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do after recovery: %v", err)
	}
	if string(body) != "recovered" {
		t.Fatalf("body = %q", body)
	}
	if got := delegate.calls.Load(); got != 2 {
		t.Fatalf("delegate called %d times, want 2", got)
	}
}

func TestRequestCacheClear(t *testing.T) {
	delegate := &countingDoer{body: []byte("x")}
	cache := NewRequestCache(delegate, time.Minute)

	req := Request{URL: "https://example.com/a"}
	if _, err := cache.Do(context.Background(), req); err != nil {
		t.Fatalf("Do: %v", err)
	}
	cache.Clear()
	if cache.Len() != 0 {
		t.Fatalf("Clear left %d entries", cache.Len())
	}
	if _, err := cache.Do(context.Background(), req); err != nil {
		t.Fatalf("Do after Clear: %v", err)
	}
	if got := delegate.calls.Load(); got != 2 {
		t.Fatalf("delegate called %d times after Clear, want 2", got)
	}
}

func TestRequestCacheDistinctSignatures(t *testing.T) {
	delegate := &countingDoer{body: []byte("x")}
	cache := NewRequestCache(delegate, time.Minute)

	ctx := context.Background()
	cache.Do(ctx, Request{URL: "https://example.com/a", Params: map[string]string{"page": "1"}})
	cache.Do(ctx, Request{URL: "https://example.com/a", Params: map[string]string{"page": "2"}})

	if got := delegate.calls.Load(); got != 2 {
		t.Fatalf("delegate called %d times for distinct signatures, want 2", got)
	}
}
