package metadata

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"

	"github.com/diaorui/fathom-deck/internal/fetcher"
	"github.com/diaorui/fathom-deck/internal/robots"
	"github.com/diaorui/fathom-deck/internal/urlutil"
	"github.com/diaorui/fathom-deck/pkg/types"
)

var (
	errRobotsDisallowed = errors.New("blocked by robots.txt")
	errNotHTML          = errors.New("content is not html")
)

// Options configures an Extractor. Fetcher and Store are required; the
// other collaborators are optional.
type Options struct {
	Fetcher    fetcher.Doer
	Store      *Store
	Robots     *robots.Gate
	Limiter    *fetcher.HostLimiter
	Renderer   *fetcher.ChromedpRenderer
	UserAgent  string
	StaleAfter time.Duration
	Logger     *slog.Logger
}

// Extractor resolves link previews for external URLs. It consults the
// persistent store first, fetches and parses the page when the record is
// missing or stale, and degrades to nil (or the stale record) instead of
// returning errors.
type Extractor struct {
	fetcher    fetcher.Doer
	store      *Store
	robots     *robots.Gate
	limiter    *fetcher.HostLimiter
	renderer   *fetcher.ChromedpRenderer
	userAgent  string
	staleAfter time.Duration
	logger     *slog.Logger

	now func() time.Time
}

// NewExtractor builds an extractor from options, applying defaults for
// anything unset.
func NewExtractor(opts Options) *Extractor {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = StaleAfter
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Extractor{
		fetcher:    opts.Fetcher,
		store:      opts.Store,
		robots:     opts.Robots,
		limiter:    opts.Limiter,
		renderer:   opts.Renderer,
		userAgent:  opts.UserAgent,
		staleAfter: opts.StaleAfter,
		logger:     opts.Logger,
		now:        time.Now,
	}
}

// Extract returns metadata for the given URL, or nil when none can be
// produced. It never returns an error: extraction failures fall back to
// the most recent stored record when one exists.
func (e *Extractor) Extract(ctx context.Context, rawURL string) *types.URLMetadata {
	if !urlutil.IsValid(rawURL) {
		return nil
	}
	key := urlutil.Normalize(rawURL)

	var stale *types.URLMetadata
	if e.store != nil {
		if meta, age, ok := e.store.Get(key); ok {
			if age < e.staleAfter {
				return &meta
			}
			stale = &meta
		}
	}

	meta, err := e.extractLive(ctx, key)
	if err != nil {
		if stale != nil {
			e.logger.Debug("metadata refresh failed, serving stale record", "url", key, "error", err)
			return stale
		}
		e.logger.Debug("metadata extraction failed", "url", key, "error", err)
		return nil
	}

	if e.store != nil {
		e.store.Put(key, *meta)
	}
	return meta
}

func (e *Extractor) extractLive(ctx context.Context, target string) (*types.URLMetadata, error) {
	if e.robots != nil && !e.robots.AllowedURL(ctx, target) {
		return nil, errRobotsDisallowed
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, urlutil.ExtractDomain(target)); err != nil {
			return nil, err
		}
	}

	body, err := e.fetchHTML(ctx, target)
	if err != nil {
		return nil, err
	}

	meta := e.parse(target, body)
	meta.URL = target
	meta.ExtractedAt = e.now().UTC()
	return meta, nil
}

func (e *Extractor) fetchHTML(ctx context.Context, target string) ([]byte, error) {
	req := fetcher.Request{URL: target}
	if e.userAgent != "" {
		req.Headers = map[string]string{"User-Agent": e.userAgent}
	}
	body, err := e.fetcher.Do(ctx, req)
	if err == nil && looksLikeHTML(body) {
		return body, nil
	}

	// Some sites only produce usable markup through a browser.
	if e.renderer != nil {
		rendered, rerr := e.renderer.Render(ctx, target)
		if rerr == nil && looksLikeHTML(rendered) {
			return rendered, nil
		}
	}
	if err != nil {
		return nil, err
	}
	// A JSON payload or error page must not become a stored empty record.
	return nil, errNotHTML
}

func looksLikeHTML(body []byte) bool {
	ct := http.DetectContentType(body)
	return strings.HasPrefix(ct, "text/html")
}

// parse pulls metadata out of the page: Open Graph tags first, then
// Twitter Card tags, then plain HTML fallbacks.
func (e *Extractor) parse(target string, body []byte) *types.URLMetadata {
	meta := &types.URLMetadata{}

	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(strings.NewReader(string(body))); err == nil {
		meta.Title = strings.TrimSpace(og.Title)
		meta.Description = strings.TrimSpace(og.Description)
		meta.SiteName = strings.TrimSpace(og.SiteName)
		if len(og.Images) > 0 && og.Images[0].URL != "" {
			meta.Image = og.Images[0].URL
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err == nil {
		fillFromDocument(meta, doc)
	}

	if meta.Image != "" {
		meta.Image = urlutil.ResolveReference(target, meta.Image)
	}
	if meta.Favicon != "" {
		meta.Favicon = urlutil.ResolveReference(target, meta.Favicon)
	} else {
		meta.Favicon = urlutil.FaviconURL(target)
	}
	return meta
}

func fillFromDocument(meta *types.URLMetadata, doc *goquery.Document) {
	if meta.Title == "" {
		meta.Title = metaContent(doc, `meta[name='twitter:title']`)
	}
	if meta.Description == "" {
		meta.Description = metaContent(doc, `meta[name='twitter:description']`)
	}
	if meta.Image == "" {
		meta.Image = metaContent(doc, `meta[name='twitter:image']`)
	}
	if meta.Description == "" {
		meta.Description = metaContent(doc, `meta[name='description']`)
	}
	if meta.Title == "" {
		meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	for _, sel := range []string{
		`link[rel='icon']`,
		`link[rel='shortcut icon']`,
		`link[rel='apple-touch-icon']`,
	} {
		if href, ok := doc.Find(sel).First().Attr("href"); ok && href != "" {
			meta.Favicon = strings.TrimSpace(href)
			break
		}
	}
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}
