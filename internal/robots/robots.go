// Package robots gates metadata fetches on the target site's robots.txt.
package robots

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"

	"github.com/diaorui/fathom-deck/internal/config"
)

// errorCacheTTL caches an unreachable or unparseable robots.txt so a bad
// host is not probed on every item it appears in.
const errorCacheTTL = 5 * time.Minute

// Gate answers whether a URL may be fetched. Parsed robots.txt rules are
// cached per host with an expiry; a host whose robots.txt cannot be
// fetched is allowed through (fail-open) and the failure itself is
// cached. Hosts listed as overrides bypass robots entirely.
type Gate struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	respect   bool

	mu        sync.RWMutex
	hosts     map[string]hostEntry
	overrides map[string]struct{}

	fetches singleflight.Group

	now func() time.Time
}

// hostEntry caches one host's verdict source. A nil data means the last
// fetch failed and the host stays fail-open until expiry.
type hostEntry struct {
	data    *robotstxt.RobotsData
	expires time.Time
}

// NewGate constructs a robots gate from configuration.
func NewGate(cfg config.RobotsConfig, client *http.Client) *Gate {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	ttl := cfg.CacheTTL.Duration()
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}

	overrides := make(map[string]struct{}, len(cfg.Overrides))
	for _, host := range cfg.Overrides {
		host = strings.ToLower(strings.TrimSpace(host))
		if host == "" {
			continue
		}
		overrides[host] = struct{}{}
	}

	return &Gate{
		client:    client,
		userAgent: cfg.UserAgent,
		ttl:       ttl,
		respect:   cfg.Respect,
		hosts:     make(map[string]hostEntry),
		overrides: overrides,
		now:       time.Now,
	}
}

// Allowed reports whether the target URL is permitted.
func (g *Gate) Allowed(ctx context.Context, target *url.URL) bool {
	if target == nil || !target.IsAbs() {
		return false
	}
	if !g.respect {
		return true
	}
	if _, ok := g.overrides[strings.ToLower(target.Hostname())]; ok {
		return true
	}

	data := g.hostData(ctx, target)
	if data == nil {
		return true
	}
	group := data.FindGroup(g.userAgent)
	if group == nil {
		group = data.FindGroup("*")
	}
	if group == nil {
		return true
	}
	return group.Test(target.Path)
}

// AllowedURL is Allowed for a raw URL string. Unparseable URLs are denied.
func (g *Gate) AllowedURL(ctx context.Context, raw string) bool {
	target, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return g.Allowed(ctx, target)
}

// hostData returns the cached rules for the target's host, fetching
// robots.txt at most once per host across concurrent callers.
func (g *Gate) hostData(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	host := strings.ToLower(target.Host)

	g.mu.RLock()
	entry, ok := g.hosts[host]
	g.mu.RUnlock()
	if ok && g.now().Before(entry.expires) {
		return entry.data
	}

	v, _, _ := g.fetches.Do(host, func() (any, error) {
		data, err := g.fetchRules(ctx, target.Scheme, target.Host)

		entry := hostEntry{data: data, expires: g.now().Add(g.ttl)}
		if err != nil {
			entry = hostEntry{expires: g.now().Add(errorCacheTTL)}
		}
		g.mu.Lock()
		g.hosts[host] = entry
		g.mu.Unlock()

		return entry.data, nil
	})
	data, _ := v.(*robotstxt.RobotsData)
	return data
}

func (g *Gate) fetchRules(ctx context.Context, scheme, host string) (*robotstxt.RobotsData, error) {
	robotsURL := scheme + "://" + host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("robots returned status %d", resp.StatusCode)
	}
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}

// Forget evicts cached robots state for a host.
func (g *Gate) Forget(host string) {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return
	}
	g.mu.Lock()
	delete(g.hosts, host)
	g.mu.Unlock()
}
