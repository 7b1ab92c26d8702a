// Package config loads and validates the deck configuration: runtime
// settings for the fetch/caching core plus the series/page/widget layout.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the full configuration required to build and render a deck.
type Config struct {
	CacheDir  string `yaml:"cache_dir"`
	DataDir   string `yaml:"data_dir"`
	OutputDir string `yaml:"output_dir"`

	HTTP         HTTPConfig         `yaml:"http"`
	RequestCache RequestCacheConfig `yaml:"request_cache"`
	Metadata     MetadataConfig     `yaml:"metadata"`
	Robots       RobotsConfig       `yaml:"robots"`
	Politeness   PolitenessConfig   `yaml:"politeness"`
	Rendering    RenderingConfig    `yaml:"rendering"`
	Worker       WorkerConfig       `yaml:"worker"`
	Logging      LoggingConfig      `yaml:"logging"`

	Series []SeriesConfig `yaml:"series"`
}

// HTTPConfig controls the outbound client shared by every widget.
type HTTPConfig struct {
	UserAgent    string            `yaml:"user_agent"`
	Headers      map[string]string `yaml:"headers"`
	Timeout      Duration          `yaml:"timeout"`
	MaxAttempts  int               `yaml:"max_attempts"`
	BackoffBase  Duration          `yaml:"backoff_base"`
	BackoffCap   Duration          `yaml:"backoff_cap"`
	MaxBodyBytes int64             `yaml:"max_body_bytes"`
	ProxyURL     string            `yaml:"proxy_url"`
}

// RequestCacheConfig tunes the in-run response cache.
type RequestCacheConfig struct {
	TTL Duration `yaml:"ttl"`
}

// MetadataConfig controls link-preview extraction for widget items.
type MetadataConfig struct {
	Enabled    bool     `yaml:"enabled"`
	UserAgent  string   `yaml:"user_agent"`
	StaleAfter Duration `yaml:"stale_after"`
}

// RobotsConfig configures robots.txt handling for metadata fetches.
type RobotsConfig struct {
	Respect   bool     `yaml:"respect"`
	Overrides []string `yaml:"overrides"`
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
}

// PolitenessConfig spaces out fetches against the same external host.
type PolitenessConfig struct {
	PerDomainDelay Duration        `yaml:"per_domain_delay"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig applies a token bucket per domain.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// RenderingConfig controls the optional JavaScript rendering fallback.
type RenderingConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Engine             string   `yaml:"engine"`
	Timeout            Duration `yaml:"timeout"`
	CaptureDelay       Duration `yaml:"capture_delay"`
	ConcurrentSessions int      `yaml:"concurrent_sessions"`
	DisableHeadless    bool     `yaml:"disable_headless"`
}

// WorkerConfig bounds widget fetch concurrency.
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// SeriesConfig groups related dashboard pages.
type SeriesConfig struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Pages       []PageConfig `yaml:"pages"`
}

// PageConfig declares one dashboard page and the widgets on it.
type PageConfig struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Disabled    bool           `yaml:"disabled"`
	Params      map[string]any `yaml:"params"`
	Widgets     []WidgetConfig `yaml:"widgets"`
}

// WidgetConfig declares a widget instance. UpdateEvery of zero means the
// widget refreshes on every fetch stage.
type WidgetConfig struct {
	Type        string         `yaml:"type"`
	Title       string         `yaml:"title"`
	Params      map[string]any `yaml:"params"`
	UpdateEvery Duration       `yaml:"update_every"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		CacheDir:  ".cache",
		DataDir:   "data",
		OutputDir: "output",
		HTTP: HTTPConfig{
			UserAgent:    "fathom-deck/1.0",
			Headers:      map[string]string{},
			Timeout:      DurationFrom(10 * time.Second),
			MaxAttempts:  3,
			BackoffBase:  DurationFrom(2 * time.Second),
			BackoffCap:   DurationFrom(10 * time.Second),
			MaxBodyBytes: 5 * 1024 * 1024,
		},
		RequestCache: RequestCacheConfig{
			TTL: DurationFrom(180 * time.Second),
		},
		Metadata: MetadataConfig{
			Enabled:    true,
			UserAgent:  "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			StaleAfter: DurationFrom(30 * 24 * time.Hour),
		},
		Robots: RobotsConfig{
			Respect:   true,
			Overrides: []string{},
			UserAgent: "fathom-deck/1.0",
			CacheTTL:  DurationFrom(6 * time.Hour),
		},
		Politeness: PolitenessConfig{
			PerDomainDelay: DurationFrom(1 * time.Second),
		},
		Rendering: RenderingConfig{
			Enabled:            false,
			Engine:             "chromedp",
			Timeout:            DurationFrom(30 * time.Second),
			ConcurrentSessions: 1,
		},
		Worker: WorkerConfig{
			Concurrency: 4,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: true,
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var idPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Validate enforces required invariants for the deck configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.CacheDir) == "" {
		return errors.New("cache_dir must be set")
	}
	if strings.TrimSpace(c.HTTP.UserAgent) == "" {
		return errors.New("http.user_agent must be set")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0 (got %d)", c.HTTP.MaxAttempts)
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.max_body_bytes must be > 0 (got %d)", c.HTTP.MaxBodyBytes)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0 (got %d)", c.Worker.Concurrency)
	}
	if c.Robots.Respect && strings.TrimSpace(c.Robots.UserAgent) == "" {
		return errors.New("robots.user_agent must be set when robots.respect is true")
	}

	if len(c.Series) == 0 {
		return errors.New("at least one series must be configured")
	}
	for _, series := range c.Series {
		if !idPattern.MatchString(series.ID) {
			return fmt.Errorf("series id %q must match %s", series.ID, idPattern)
		}
		if len(series.Pages) == 0 {
			return fmt.Errorf("series %s has no pages", series.ID)
		}
		for _, page := range series.Pages {
			if !idPattern.MatchString(page.ID) {
				return fmt.Errorf("page id %q in series %s must match %s", page.ID, series.ID, idPattern)
			}
			if len(page.Widgets) == 0 {
				return fmt.Errorf("page %s/%s has no widgets", series.ID, page.ID)
			}
			for i, w := range page.Widgets {
				if strings.TrimSpace(w.Type) == "" {
					return fmt.Errorf("widget %d on page %s/%s has empty type", i, series.ID, page.ID)
				}
			}
		}
	}
	return nil
}

func (c *Config) normalise() {
	c.CacheDir = strings.TrimSpace(c.CacheDir)
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.OutputDir = strings.TrimSpace(c.OutputDir)
	c.HTTP.UserAgent = strings.TrimSpace(c.HTTP.UserAgent)
	c.Robots.UserAgent = strings.TrimSpace(c.Robots.UserAgent)

	if len(c.Robots.Overrides) > 0 {
		c.Robots.Overrides = dedupeLower(c.Robots.Overrides)
	}

	for si := range c.Series {
		series := &c.Series[si]
		series.ID = strings.ToLower(strings.TrimSpace(series.ID))
		for pi := range series.Pages {
			page := &series.Pages[pi]
			page.ID = strings.ToLower(strings.TrimSpace(page.ID))
			if page.Params == nil {
				page.Params = map[string]any{}
			}
			for wi := range page.Widgets {
				w := &page.Widgets[wi]
				w.Type = strings.TrimSpace(w.Type)
				if w.Params == nil {
					w.Params = map[string]any{}
				}
			}
		}
	}
}

func dedupeLower(values []string) []string {
	unique := make(map[string]struct{}, len(values))
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := unique[v]; ok {
			continue
		}
		unique[v] = struct{}{}
		cleaned = append(cleaned, v)
	}
	return cleaned
}

// Enabled reports whether per-domain rate limiting is active.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && !r.Window.IsZero()
}
