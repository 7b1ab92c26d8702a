package widget

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/diaorui/fathom-deck/internal/fetcher"
	"github.com/diaorui/fathom-deck/internal/urlutil"
	"github.com/diaorui/fathom-deck/pkg/types"
)

func init() {
	Register("reddit_posts", newRedditPosts)
}

// redditPosts lists rising posts from one subreddit via its Atom feed.
// Link posts carry an external URL inside the entry content; those get
// metadata enrichment, self posts keep the feed summary.
type redditPosts struct {
	env       Env
	title     string
	subreddit string
	limit     int

	parser *gofeed.Parser
}

func newRedditPosts(env Env, title string, params Params) (Widget, error) {
	subreddit, err := params.Require("subreddit")
	if err != nil {
		return nil, err
	}
	subreddit = strings.TrimPrefix(strings.TrimSpace(subreddit), "r/")
	if title == "" {
		title = "r/" + subreddit
	}
	return &redditPosts{
		env:       env,
		title:     title,
		subreddit: subreddit,
		limit:     params.Int("limit", 10),
		parser:    gofeed.NewParser(),
	}, nil
}

func (w *redditPosts) Type() string { return "reddit_posts" }

func (w *redditPosts) Fetch(ctx context.Context) (*types.WidgetData, error) {
	feedURL := fmt.Sprintf("https://www.reddit.com/r/%s/rising.rss", w.subreddit)
	xml, err := fetcher.Text(ctx, w.env.Fetcher, fetcher.Request{URL: feedURL})
	if err != nil {
		return nil, fmt.Errorf("fetch r/%s feed: %w", w.subreddit, err)
	}

	feed, err := w.parser.ParseString(xml)
	if err != nil {
		return nil, fmt.Errorf("parse r/%s feed: %w", w.subreddit, err)
	}

	items := make([]types.Item, 0, w.limit)
	for _, entry := range feed.Items {
		if len(items) >= w.limit {
			break
		}
		if entry.Title == "" || entry.Link == "" {
			continue
		}

		item := types.Item{
			Title:       entry.Title,
			URL:         entry.Link,
			CommentsURL: entry.Link,
			Author:      redditAuthor(entry),
			Image:       mediaThumbnail(entry),
		}
		if entry.PublishedParsed != nil {
			item.PublishedAt = entry.PublishedParsed.UTC()
		}

		summary, externalURL := parseRedditContent(entry.Content)
		item.Summary = summary

		if externalURL != "" {
			item.URL = externalURL
			item.Domain = urlutil.ExtractDomain(externalURL)
			item.Source = strings.TrimPrefix(item.Domain, "www.")
			if w.env.Metadata != nil {
				if meta := w.env.Metadata.Extract(ctx, externalURL); meta != nil {
					if meta.SiteName != "" {
						item.Source = meta.SiteName
					}
					item.Favicon = meta.Favicon
					if meta.Description != "" && len(item.Summary) < 50 {
						item.Summary = meta.Description
					}
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

func redditAuthor(entry *gofeed.Item) string {
	if entry.Author == nil {
		return ""
	}
	return strings.TrimPrefix(entry.Author.Name, "/u/")
}

func mediaThumbnail(entry *gofeed.Item) string {
	thumbs, ok := entry.Extensions["media"]["thumbnail"]
	if !ok || len(thumbs) == 0 {
		return ""
	}
	return thumbs[0].Attrs["url"]
}

// parseRedditContent pulls a plain-text summary and the external link (if
// any) out of the entry's HTML content. Link posts mark the target with
// an anchor whose text is "[link]"; reddit-hosted targets do not count
// as external.
func parseRedditContent(content string) (summary, externalURL string) {
	if content == "" {
		return "", ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", ""
	}

	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if strings.TrimSpace(a.Text()) != "[link]" {
			return true
		}
		href, ok := a.Attr("href")
		if !ok {
			return true
		}
		domain := urlutil.ExtractDomain(href)
		if domain == "" || strings.Contains(domain, "reddit.com") || strings.Contains(domain, "redd.it") {
			return true
		}
		externalURL = href
		return false
	})

	text := strings.TrimSpace(doc.Text())
	text = strings.Join(strings.Fields(text), " ")
	text = strings.ReplaceAll(text, "[link]", "")
	if idx := strings.Index(text, "submitted by"); idx >= 0 {
		text = text[:idx]
	}
	summary = strings.TrimSpace(text)
	return summary, externalURL
}
