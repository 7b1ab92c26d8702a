package widget

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/diaorui/fathom-deck/internal/fetcher"
	"github.com/diaorui/fathom-deck/internal/urlutil"
	"github.com/diaorui/fathom-deck/pkg/types"
)

const googleNewsRSSURL = "https://news.google.com/rss/search"

func init() {
	Register("google_news", newGoogleNews)
}

// googleNews searches the Google News RSS feed. Headlines arrive as
// "Headline - Publisher", so the publisher is split off the title tail.
type googleNews struct {
	env    Env
	title  string
	query  string
	limit  int
	locale string
	region string

	parser *gofeed.Parser
}

func newGoogleNews(env Env, title string, params Params) (Widget, error) {
	query, err := params.Require("query")
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = "News: " + query
	}
	return &googleNews{
		env:    env,
		title:  title,
		query:  query,
		limit:  params.Int("limit", 5),
		locale: params.String("locale", "en-US"),
		region: params.String("region", "US"),
		parser: gofeed.NewParser(),
	}, nil
}

func (w *googleNews) Type() string { return "google_news" }

func (w *googleNews) Fetch(ctx context.Context) (*types.WidgetData, error) {
	req := fetcher.Request{
		URL: googleNewsRSSURL,
		Params: map[string]string{
			"q":    w.query,
			"hl":   w.locale,
			"gl":   w.region,
			"ceid": w.region + ":en",
		},
	}
	xml, err := fetcher.Text(ctx, w.env.Fetcher, req)
	if err != nil {
		return nil, fmt.Errorf("fetch google news for %q: %w", w.query, err)
	}

	feed, err := w.parser.ParseString(xml)
	if err != nil {
		return nil, fmt.Errorf("parse google news feed for %q: %w", w.query, err)
	}

	items := make([]types.Item, 0, w.limit)
	for _, entry := range feed.Items {
		if len(items) >= w.limit {
			break
		}
		if entry.Title == "" || entry.Link == "" {
			continue
		}

		headline, source := splitHeadline(entry.Title)
		item := types.Item{
			Title:  headline,
			URL:    entry.Link,
			Source: source,
			Domain: urlutil.ExtractDomain(entry.Link),
		}
		if entry.PublishedParsed != nil {
			item.PublishedAt = entry.PublishedParsed.UTC()
		}
		items = append(items, item)
	}

	return &types.WidgetData{
		Type:      w.Type(),
		Title:     w.title,
		FetchedAt: time.Now().UTC(),
		Items:     items,
	}, nil
}

// splitHeadline separates "Headline - Publisher" on the last " - " so
// dashes inside the headline survive.
func splitHeadline(title string) (headline, source string) {
	idx := strings.LastIndex(title, " - ")
	if idx < 0 {
		return title, ""
	}
	return title[:idx], title[idx+3:]
}
