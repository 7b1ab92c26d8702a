// Package deck orchestrates the dashboard pipeline: fetch widget data
// through the caching fetch stack, persist per-page payloads, and render
// static pages from them.
package deck

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

	"golang.org/x/sync/errgroup"

	"github.com/diaorui/fathom-deck/internal/config"
	"github.com/diaorui/fathom-deck/internal/fetcher"
	"github.com/diaorui/fathom-deck/internal/metadata"
	"github.com/diaorui/fathom-deck/internal/render"
	"github.com/diaorui/fathom-deck/internal/robots"
	"github.com/diaorui/fathom-deck/internal/schedule"
	"github.com/diaorui/fathom-deck/internal/widget"
	"github.com/diaorui/fathom-deck/pkg/types"
)

// Engine wires the fetch stack, widget registry, persistent caches, and
// renderer into the fetch and render stages.
type Engine struct {
	cfg    config.Config
	logger *slog.Logger

	client   *fetcher.Client
	cache    *fetcher.RequestCache
	store    *metadata.Store
	tracker  *schedule.Tracker
	metadata *metadata.Extractor
	renderer *render.Renderer
}

// pagePayload is what the fetch stage persists for each page and the
// render stage reads back.
type pagePayload struct {
	SeriesID    string             `json:"series_id"`
	SeriesName  string             `json:"series_name"`
	PageID      string             `json:"page_id"`
	PageName    string             `json:"page_name"`
	Description string             `json:"description"`
	FetchedAt   time.Time          `json:"fetched_at"`
	Widgets     []types.WidgetData `json:"widgets"`
}

// NewEngine builds the full pipeline from configuration.
func NewEngine(cfg config.Config) (*Engine, error) {
	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	client, err := fetcher.NewClient(fetcher.Options{
		UserAgent:    cfg.HTTP.UserAgent,
		Headers:      cfg.HTTP.Headers,
		Timeout:      cfg.HTTP.Timeout.Duration(),
		MaxAttempts:  cfg.HTTP.MaxAttempts,
		BackoffBase:  cfg.HTTP.BackoffBase.Duration(),
		BackoffCap:   cfg.HTTP.BackoffCap.Duration(),
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		ProxyURL:     cfg.HTTP.ProxyURL,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("http client: %w", err)
	}
	cache := fetcher.NewRequestCache(client, cfg.RequestCache.TTL.Duration())

	store, err := metadata.NewStore(cfg.CacheDir, logger)
	if err != nil {
		return nil, fmt.Errorf("metadata store: %w", err)
	}
	tracker, err := schedule.NewTracker(cfg.CacheDir, logger)
	if err != nil {
		return nil, fmt.Errorf("schedule tracker: %w", err)
	}

	var gate *robots.Gate
	if cfg.Robots.Respect {
		gate = robots.NewGate(cfg.Robots, client.HTTPClient())
	}

	var limiter *fetcher.HostLimiter
	if cfg.Politeness.PerDomainDelay.Duration() > 0 || cfg.Politeness.RateLimit.Enabled() {
		limiter = fetcher.NewHostLimiter(cfg.Politeness.PerDomainDelay.Duration(), fetcher.RateSettings{
			Requests: cfg.Politeness.RateLimit.Requests,
			Window:   cfg.Politeness.RateLimit.Window.Duration(),
		})
	}

	var renderer *fetcher.ChromedpRenderer
	if cfg.Rendering.Enabled {
		switch strings.ToLower(cfg.Rendering.Engine) {
		case "chromedp", "chrome":
			renderer = fetcher.NewChromedpRenderer(fetcher.RenderOptions{
				Timeout:            cfg.Rendering.Timeout.Duration(),
				CaptureDelay:       cfg.Rendering.CaptureDelay.Duration(),
				UserAgent:          cfg.Metadata.UserAgent,
				MaxBodyBytes:       cfg.HTTP.MaxBodyBytes,
				DisableHeadless:    cfg.Rendering.DisableHeadless,
				ConcurrentSessions: cfg.Rendering.ConcurrentSessions,
				Logger:             logger,
			})
		case "none":
			// Explicit opt-out even if enabled flag toggled.
		default:
			return nil, fmt.Errorf("unsupported rendering engine %q", cfg.Rendering.Engine)
		}
	}

	var extractor *metadata.Extractor
	if cfg.Metadata.Enabled {
		extractor = metadata.NewExtractor(metadata.Options{
			Fetcher:    cache,
			Store:      store,
			Robots:     gate,
			Limiter:    limiter,
			Renderer:   renderer,
			UserAgent:  cfg.Metadata.UserAgent,
			StaleAfter: cfg.Metadata.StaleAfter.Duration(),
			Logger:     logger,
		})
	}

	pageRenderer, err := render.New(cfg.OutputDir)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		cache:    cache,
		store:    store,
		tracker:  tracker,
		metadata: extractor,
		renderer: pageRenderer,
	}, nil
}

// Fetch runs every due widget, persists page payloads under the data
// directory, and saves the metadata and schedule caches. Individual
// widget failures are logged and counted; Fetch fails only when nothing
// could be persisted for a failing widget.
func (e *Engine) Fetch(ctx context.Context) error {
	start := time.Now()
	env := widget.Env{Fetcher: e.cache, Metadata: e.metadata, Logger: e.logger}

	var mu sync.Mutex
	var failures int

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Worker.Concurrency)

	for _, series := range e.cfg.Series {
		for _, page := range series.Pages {
			if page.Disabled {
				e.logger.Debug("skipping disabled page", "series", series.ID, "page", page.ID)
				continue
			}
			series, page := series, page
			g.Go(func() error {
				n, err := e.fetchPage(gctx, env, series, page)
				mu.Lock()
				failures += n
				mu.Unlock()
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Cache write failures never fail the run; the in-memory state stays
	// authoritative for the rest of the process.
	if err := e.store.Save(); err != nil {
		e.logger.Warn("metadata store save failed", "error", err)
	}
	if err := e.tracker.Save(); err != nil {
		e.logger.Warn("schedule tracker save failed", "error", err)
	}

	e.logger.Info("fetch stage complete",
		"duration", time.Since(start).Round(time.Millisecond),
		"request_cache_entries", e.cache.Len(),
		"metadata_entries", e.store.Len(),
		"widget_failures", failures)

	if failures > 0 {
		return fmt.Errorf("%d widget(s) failed to fetch", failures)
	}
	return nil
}

// fetchPage refreshes the widgets on one page and persists the merged
// payload. Widgets that are not yet due keep their previous data.
func (e *Engine) fetchPage(ctx context.Context, env widget.Env, series config.SeriesConfig, page config.PageConfig) (failures int, err error) {
	previous := e.loadPayload(series.ID, page.ID)

	payload := pagePayload{
		SeriesID:    series.ID,
		SeriesName:  series.Name,
		PageID:      page.ID,
		PageName:    page.Name,
		Description: page.Description,
		FetchedAt:   time.Now().UTC(),
	}

	for _, wcfg := range page.Widgets {
		params := mergeParams(page.Params, wcfg.Params)
		key := schedule.Key(series.ID, page.ID, wcfg.Type, params)

		if !e.tracker.NeedsUpdate(key, wcfg.UpdateEvery.Duration()) {
			if prev := previousWidget(previous, wcfg.Type, wcfg.Title); prev != nil {
				e.logger.Debug("widget not due, keeping previous data", "key", key)
				payload.Widgets = append(payload.Widgets, *prev)
				continue
			}
		}

		w, err := widget.New(wcfg.Type, env, wcfg.Title, params)
		if err != nil {
			return failures, fmt.Errorf("page %s/%s: %w", series.ID, page.ID, err)
		}

		data, err := w.Fetch(ctx)
		if err != nil {
			e.logger.Warn("widget fetch failed", "key", key, "error", err)
			failures++
			if prev := previousWidget(previous, wcfg.Type, wcfg.Title); prev != nil {
				payload.Widgets = append(payload.Widgets, *prev)
			}
			continue
		}

		e.tracker.MarkUpdated(key)
		payload.Widgets = append(payload.Widgets, *data)
	}

	if err := e.savePayload(payload); err != nil {
		return failures, err
	}
	e.logger.Info("page fetched", "series", series.ID, "page", page.ID, "widgets", len(payload.Widgets))
	return failures, nil
}

// Render reads persisted page payloads and writes HTML and Markdown
// pages for every enabled page.
func (e *Engine) Render(ctx context.Context) error {
	rendered := 0
	for _, series := range e.cfg.Series {
		for _, page := range series.Pages {
			if page.Disabled {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			payload := e.loadPayload(series.ID, page.ID)
			if payload == nil {
				return fmt.Errorf("no fetched data for page %s/%s (run fetch first)", series.ID, page.ID)
			}

			data := render.PageData{
				SeriesName:  payload.SeriesName,
				PageName:    payload.PageName,
				Description: payload.Description,
				GeneratedAt: time.Now().UTC(),
				Widgets:     payload.Widgets,
			}
			if err := e.renderer.WritePage(series.ID, page.ID, data); err != nil {
				return err
			}
			rendered++
		}
	}
	e.logger.Info("render stage complete", "pages", rendered, "output_dir", e.cfg.OutputDir)
	return nil
}

// ClearRequestCache drops all in-run cached responses.
func (e *Engine) ClearRequestCache() {
	e.cache.Clear()
}

func (e *Engine) payloadPath(seriesID, pageID string) string {
	return filepath.Join(e.cfg.DataDir, seriesID, pageID+".json")
}

func (e *Engine) loadPayload(seriesID, pageID string) *pagePayload {
	raw, err := os.ReadFile(e.payloadPath(seriesID, pageID))
	if err != nil {
		return nil
	}
	var payload pagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		e.logger.Warn("discarding corrupt page payload", "series", seriesID, "page", pageID, "error", err)
		return nil
	}
	return &payload
}

func (e *Engine) savePayload(payload pagePayload) error {
	dir := filepath.Join(e.cfg.DataDir, payload.SeriesID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode page payload: %w", err)
	}
	path := e.payloadPath(payload.SeriesID, payload.PageID)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write page payload: %w", err)
	}
	return nil
}

func previousWidget(payload *pagePayload, widgetType, title string) *types.WidgetData {
	if payload == nil {
		return nil
	}
	for i := range payload.Widgets {
		w := &payload.Widgets[i]
		if w.Type == widgetType && (title == "" || w.Title == title) {
			return w
		}
	}
	return nil
}

// mergeParams layers widget params over page params.
func mergeParams(page, widget map[string]any) map[string]any {
	merged := make(map[string]any, len(page)+len(widget))
	for k, v := range page {
		merged[k] = v
	}
	for k, v := range widget {
		merged[k] = v
	}
	return merged
}

func buildLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unsupported log level %q", cfg.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Structured {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler), nil
}
