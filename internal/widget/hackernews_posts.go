package widget

import (
	"context"
	"fmt"
	"time"

	"github.com/diaorui/fathom-deck/internal/fetcher"
	"github.com/diaorui/fathom-deck/internal/urlutil"
	"github.com/diaorui/fathom-deck/pkg/types"
)

const (
	algoliaSearchURL       = "https://hn.algolia.com/api/v1/search"
	algoliaSearchByDateURL = "https://hn.algolia.com/api/v1/search_by_date"
	hnItemURL              = "https://news.ycombinator.com/item?id="
)

func init() {
	Register("hackernews_posts", newHackernewsPosts)
}

// hackernewsPosts searches Hacker News stories through the Algolia API
// and enriches external story links with extracted metadata.
type hackernewsPosts struct {
	env         Env
	title       string
	query       string
	limit       int
	minPoints   int
	sortBy      string
	extractMeta bool
}

func newHackernewsPosts(env Env, title string, params Params) (Widget, error) {
	query, err := params.Require("query")
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = "Hacker News: " + query
	}
	return &hackernewsPosts{
		env:         env,
		title:       title,
		query:       query,
		limit:       params.Int("limit", 8),
		minPoints:   params.Int("min_points", 10),
		sortBy:      params.String("sort_by", "date"),
		extractMeta: params.Bool("extract_metadata", true),
	}, nil
}

func (w *hackernewsPosts) Type() string { return "hackernews_posts" }

type algoliaResponse struct {
	Hits []struct {
		ObjectID    string `json:"objectID"`
		Title       string `json:"title"`
		URL         string `json:"url"`
		Author      string `json:"author"`
		Points      int    `json:"points"`
		NumComments int    `json:"num_comments"`
		CreatedAt   string `json:"created_at"`
	} `json:"hits"`
}

func (w *hackernewsPosts) Fetch(ctx context.Context) (*types.WidgetData, error) {
	endpoint := algoliaSearchByDateURL
	if w.sortBy == "relevance" {
		endpoint = algoliaSearchURL
	}

	params := map[string]string{
		"query":       w.query,
		"tags":        "story",
		"hitsPerPage": fmt.Sprintf("%d", w.limit),
	}
	if w.minPoints > 0 {
		params["numericFilters"] = fmt.Sprintf("points>%d", w.minPoints)
	}

	var resp algoliaResponse
	req := fetcher.Request{URL: endpoint, Params: params}
	if err := fetcher.JSON(ctx, w.env.Fetcher, req, &resp); err != nil {
		return nil, fmt.Errorf("fetch hn stories for %q: %w", w.query, err)
	}

	items := make([]types.Item, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		commentsURL := hnItemURL + hit.ObjectID
		storyURL := hit.URL
		if storyURL == "" {
			storyURL = commentsURL
		}

		item := types.Item{
			Title:       hit.Title,
			URL:         storyURL,
			CommentsURL: commentsURL,
			Author:      hit.Author,
			Points:      hit.Points,
			Comments:    hit.NumComments,
			Domain:      urlutil.ExtractDomain(storyURL),
		}
		if ts, err := time.Parse(time.RFC3339, hit.CreatedAt); err == nil {
			item.PublishedAt = ts
		}

		// Self posts link back to the discussion page; no metadata there.
		if w.extractMeta && w.env.Metadata != nil && storyURL != commentsURL {
			if meta := w.env.Metadata.Extract(ctx, storyURL); meta != nil {
				item.Summary = meta.Description
				item.Image = meta.Image
				item.Favicon = meta.Favicon
				if meta.SiteName != "" {
					item.Source = meta.SiteName
				}
			}
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
