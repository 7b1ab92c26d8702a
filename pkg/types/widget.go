package types

import "time"

// URLMetadata is the link-preview record extracted for a normalized URL.
// An empty string marks a field that was not present in the page metadata;
// that is an expected outcome, not an error.
type URLMetadata struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Image       string    `json:"image"`
	Favicon     string    `json:"favicon"`
	SiteName    string    `json:"site_name"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// Item is one entry of a list-style widget (post, article, paper).
type Item struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	CommentsURL string    `json:"comments_url,omitempty"`
	Source      string    `json:"source,omitempty"`
	Domain      string    `json:"domain,omitempty"`
	Author      string    `json:"author,omitempty"`
	Points      int       `json:"points,omitempty"`
	Comments    int       `json:"comments,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Image       string    `json:"image,omitempty"`
	Favicon     string    `json:"favicon,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Stat is a single labelled value for stat-style widgets (price, market cap).
type Stat struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// WidgetData is the uniform payload every widget produces for rendering.
type WidgetData struct {
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	FetchedAt time.Time `json:"fetched_at"`
	Items     []Item    `json:"items,omitempty"`
	Stats     []Stat    `json:"stats,omitempty"`
}
