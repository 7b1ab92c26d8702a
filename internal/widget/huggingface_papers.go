package widget

import (
	"context"
	"fmt"
	"time"

	"github.com/diaorui/fathom-deck/internal/fetcher"
	"github.com/diaorui/fathom-deck/pkg/types"
)

const hfDailyPapersURL = "https://huggingface.co/api/daily_papers"

func init() {
	Register("huggingface_papers", newHuggingfacePapers)
}

// huggingfacePapers lists the Hugging Face daily research papers feed.
type huggingfacePapers struct {
	env   Env
	title string
	limit int
	sort  string
}

func newHuggingfacePapers(env Env, title string, params Params) (Widget, error) {
	if title == "" {
		title = "Hugging Face Papers"
	}
	return &huggingfacePapers{
		env:   env,
		title: title,
		limit: params.Int("limit", 10),
		sort:  params.String("sort", "trending"),
	}, nil
}

func (w *huggingfacePapers) Type() string { return "huggingface_papers" }

type hfPaperEntry struct {
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	Thumbnail   string `json:"thumbnail"`
	NumComments int    `json:"numComments"`
	PublishedAt string `json:"publishedAt"`
	Paper       struct {
		ID        string `json:"id"`
		Title     string `json:"title"`
		Summary   string `json:"summary"`
		AISummary string `json:"ai_summary"`
		Upvotes   int    `json:"upvotes"`
		Authors   []struct {
			Name string `json:"name"`
		} `json:"authors"`
	} `json:"paper"`
}

func (w *huggingfacePapers) Fetch(ctx context.Context) (*types.WidgetData, error) {
	var entries []hfPaperEntry
	req := fetcher.Request{
		URL: hfDailyPapersURL,
		Params: map[string]string{
			"limit": fmt.Sprintf("%d", w.limit),
			"sort":  w.sort,
		},
	}
	if err := fetcher.JSON(ctx, w.env.Fetcher, req, &entries); err != nil {
		return nil, fmt.Errorf("fetch huggingface papers: %w", err)
	}

	if len(entries) > w.limit {
		entries = entries[:w.limit]
	}

	items := make([]types.Item, 0, len(entries))
	for _, entry := range entries {
		title := entry.Title
		if title == "" {
			title = entry.Paper.Title
		}
		summary := entry.Paper.AISummary
		if summary == "" {
			summary = entry.Summary
		}
		if summary == "" {
			summary = entry.Paper.Summary
		}

		item := types.Item{
			Title:       title,
			URL:         "https://huggingface.co/papers/" + entry.Paper.ID,
			CommentsURL: "https://arxiv.org/abs/" + entry.Paper.ID,
			Author:      paperAuthors(entry),
			Points:      entry.Paper.Upvotes,
			Comments:    entry.NumComments,
			Summary:     summary,
			Image:       entry.Thumbnail,
			Source:      "Hugging Face",
		}
		if ts, err := time.Parse(time.RFC3339, entry.PublishedAt); err == nil {
			item.PublishedAt = ts.UTC()
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

func paperAuthors(entry hfPaperEntry) string {
	authors := entry.Paper.Authors
	names := make([]string, 0, 3)
	for _, a := range authors {
		if a.Name == "" {
			continue
		}
		names = append(names, a.Name)
		if len(names) == 3 {
			break
		}
	}
	joined := ""
	for i, name := range names {
		if i > 0 {
			joined += ", "
		}
		joined += name
	}
	if len(authors) > 3 {
		joined += fmt.Sprintf(" et al. (%d authors)", len(authors))
	}
	return joined
}
