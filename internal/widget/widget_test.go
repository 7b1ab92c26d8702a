package widget

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/diaorui/fathom-deck/internal/fetcher"
)

// cannedDoer serves recorded bodies keyed by URL prefix.
type cannedDoer struct {
	bodies   map[string]string
	requests []fetcher.Request
}

func (d *cannedDoer) Do(ctx context.Context, req fetcher.Request) ([]byte, error) {
	d.requests = append(d.requests, req)
	for prefix, body := range d.bodies {
		if strings.HasPrefix(req.URL, prefix) {
			return []byte(body), nil
		}
	}
	return nil, fmt.Errorf("no canned response for %s", req.URL)
}

func testEnv(doer fetcher.Doer) Env {
	return Env{
		Fetcher: doer,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestRegistryKnowsAllWidgetTypes(t *testing.T) {
	want := []string{
		"crypto_market_stats",
		"crypto_price",
		"google_news",
		"hackernews_posts",
		"huggingface_papers",
		"reddit_posts",
	}
	got := Types()
	if len(got) != len(want) {
		t.Fatalf("Types() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Types()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNewRejectsUnknownType(t *testing.T) {
	if _, err := New("no_such_widget", testEnv(&cannedDoer{}), "", nil); err == nil {
		t.Error("expected error for unknown widget type")
	}
}

func TestNewRejectsMissingRequiredParam(t *testing.T) {
	if _, err := New("crypto_price", testEnv(&cannedDoer{}), "", Params{}); err == nil {
		t.Error("crypto_price without symbol should fail")
	}
	if _, err := New("hackernews_posts", testEnv(&cannedDoer{}), "", Params{}); err == nil {
		t.Error("hackernews_posts without query should fail")
	}
}

func TestCryptoPriceFetch(t *testing.T) {
	doer := &cannedDoer{bodies: map[string]string{
		geminiTickerURL: `{"last":"45123.50","bid":"45120.00","ask":"45125.00","volume":{"BTC":"1234.5678","USD":"55000000.00"}}`,
	}}
	w, err := New("crypto_price", testEnv(doer), "", Params{"symbol": "btcusd"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data, err := w.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if data.Type != "crypto_price" {
		t.Errorf("type = %q", data.Type)
	}
	if data.Title != "BTCUSD Price" {
		t.Errorf("title = %q", data.Title)
	}
	if len(data.Stats) != 4 {
		t.Fatalf("stats = %+v, want 4 entries", data.Stats)
	}
	if data.Stats[0].Label != "Price" || data.Stats[0].Value != "$45,123.50" {
		t.Errorf("price stat = %+v", data.Stats[0])
	}
	if doer.requests[0].URL != geminiTickerURL+"btcusd" {
		t.Errorf("request URL = %q", doer.requests[0].URL)
	}
}

func TestCryptoMarketStatsFetch(t *testing.T) {
	doer := &cannedDoer{bodies: map[string]string{
		coingeckoCoinURL: `{
			"name": "Bitcoin", "symbol": "btc", "market_cap_rank": 1,
			"market_data": {
				"market_cap": {"usd": 890000000000},
				"circulating_supply": 19600000,
				"max_supply": 21000000,
				"ath": {"usd": 69045}, "ath_date": {"usd": "2021-11-10T14:24:11.849Z"},
				"atl": {"usd": 67.81}, "atl_date": {"usd": "2013-07-06T00:00:00.000Z"},
				"price_change_percentage_24h": -2.35
			}
		}`,
	}}
	w, err := New("crypto_market_stats", testEnv(doer), "", Params{"coin_id": "bitcoin"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data, err := w.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if data.Title != "Bitcoin Market Stats" {
		t.Errorf("title = %q", data.Title)
	}
	byLabel := map[string]string{}
	for _, s := range data.Stats {
		byLabel[s.Label] = s.Value
	}
	if byLabel["Market Cap"] != "$890.00B" {
		t.Errorf("market cap = %q", byLabel["Market Cap"])
	}
	if byLabel["Rank"] != "#1" {
		t.Errorf("rank = %q", byLabel["Rank"])
	}
	if byLabel["24h Change"] != "-2.35%" {
		t.Errorf("24h change = %q", byLabel["24h Change"])
	}
	if !strings.Contains(byLabel["All-Time High"], "Nov 10, 2021") {
		t.Errorf("ath = %q", byLabel["All-Time High"])
	}
	if got := doer.requests[0].Params["market_data"]; got != "true" {
		t.Errorf("market_data param = %q", got)
	}
}

func TestHackernewsPostsFetch(t *testing.T) {
	doer := &cannedDoer{bodies: map[string]string{
		algoliaSearchByDateURL: `{"hits": [
			{"objectID": "101", "title": "Show HN: Thing", "url": "https://example.com/thing",
			 "author": "alice", "points": 42, "num_comments": 7, "created_at": "2026-08-29T10:00:00Z"},
			{"objectID": "102", "title": "Ask HN: Question", "url": "",
			 "author": "bob", "points": 15, "num_comments": 3, "created_at": "2026-08-29T09:00:00Z"}
		], "nbHits": 2}`,
	}}
	w, err := New("hackernews_posts", testEnv(doer), "", Params{
		"query": "golang", "limit": 5, "min_points": 10,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data, err := w.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(data.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(data.Items))
	}
	first := data.Items[0]
	if first.URL != "https://example.com/thing" || first.CommentsURL != hnItemURL+"101" {
		t.Errorf("first item URLs = %q / %q", first.URL, first.CommentsURL)
	}
	if first.Points != 42 || first.Comments != 7 {
		t.Errorf("first item stats = %d pts %d comments", first.Points, first.Comments)
	}
	if first.Domain != "example.com" {
		t.Errorf("first item domain = %q", first.Domain)
	}
	// Self post falls back to the discussion page.
	if second := data.Items[1]; second.URL != second.CommentsURL {
		t.Errorf("self post should link the discussion page, got %q", second.URL)
	}

	req := doer.requests[0]
	if req.Params["numericFilters"] != "points>10" {
		t.Errorf("numericFilters = %q", req.Params["numericFilters"])
	}
	if req.Params["hitsPerPage"] != "5" {
		t.Errorf("hitsPerPage = %q", req.Params["hitsPerPage"])
	}
}

func TestHackernewsSortByRelevanceSwitchesEndpoint(t *testing.T) {
	doer := &cannedDoer{bodies: map[string]string{
		algoliaSearchURL: `{"hits": []}`,
	}}
	w, err := New("hackernews_posts", testEnv(doer), "", Params{
		"query": "ai", "sort_by": "relevance",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := w.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := doer.requests[0].URL; got != algoliaSearchURL {
		t.Errorf("endpoint = %q, want %q", got, algoliaSearchURL)
	}
}

func TestGoogleNewsFetch(t *testing.T) {
	rss := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Search</title>
<item>
  <title>Bitcoin hits new high - CoinDesk</title>
  <link>https://news.example.com/a1</link>
  <pubDate>Fri, 29 Aug 2026 08:43:00 GMT</pubDate>
</item>
<item>
  <title>Markets rally - and so does gold - Reuters</title>
  <link>https://news.example.com/a2</link>
  <pubDate>Fri, 29 Aug 2026 07:00:00 GMT</pubDate>
</item>
</channel></rss>`
	doer := &cannedDoer{bodies: map[string]string{googleNewsRSSURL: rss}}
	w, err := New("google_news", testEnv(doer), "", Params{"query": "Bitcoin", "limit": 5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data, err := w.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(data.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(data.Items))
	}
	if data.Items[0].Title != "Bitcoin hits new high" || data.Items[0].Source != "CoinDesk" {
		t.Errorf("first item = %q / %q", data.Items[0].Title, data.Items[0].Source)
	}
	// Only the final " - " separates the publisher.
	if data.Items[1].Title != "Markets rally - and so does gold" || data.Items[1].Source != "Reuters" {
		t.Errorf("second item = %q / %q", data.Items[1].Title, data.Items[1].Source)
	}
	if data.Items[0].PublishedAt.IsZero() {
		t.Error("pubDate should be parsed")
	}

	req := doer.requests[0]
	if req.Params["q"] != "Bitcoin" || req.Params["ceid"] != "US:en" {
		t.Errorf("query params = %v", req.Params)
	}
}

func TestHuggingfacePapersFetch(t *testing.T) {
	doer := &cannedDoer{bodies: map[string]string{
		hfDailyPapersURL: `[
			{"title": "Paper One", "thumbnail": "https://hf.example/t1.png", "numComments": 4,
			 "publishedAt": "2026-08-28T00:00:00Z",
			 "paper": {"id": "2608.01234", "upvotes": 99, "ai_summary": "Short take.",
			           "authors": [{"name": "A"}, {"name": "B"}, {"name": "C"}, {"name": "D"}]}},
			{"title": "Paper Two", "paper": {"id": "2608.05678", "summary": "Long abstract.", "authors": []}}
		]`,
	}}
	w, err := New("huggingface_papers", testEnv(doer), "", Params{"limit": 10})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data, err := w.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(data.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(data.Items))
	}
	first := data.Items[0]
	if first.URL != "https://huggingface.co/papers/2608.01234" {
		t.Errorf("paper URL = %q", first.URL)
	}
	if first.CommentsURL != "https://arxiv.org/abs/2608.01234" {
		t.Errorf("arxiv URL = %q", first.CommentsURL)
	}
	if first.Summary != "Short take." {
		t.Errorf("ai summary should win, got %q", first.Summary)
	}
	if first.Author != "A, B, C et al. (4 authors)" {
		t.Errorf("authors = %q", first.Author)
	}
	if second := data.Items[1]; second.Summary != "Long abstract." {
		t.Errorf("fallback summary = %q", second.Summary)
	}
}

func TestRedditPostsFetch(t *testing.T) {
	atom := `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:media="http://search.yahoo.com/mrss/">
<title>rising posts</title>
<entry>
  <title>Interesting article about compilers</title>
  <link href="https://www.reddit.com/r/programming/comments/abc/post/"/>
  <author><name>/u/carol</name></author>
  <published>2026-08-29T06:00:00+00:00</published>
  <media:thumbnail url="https://thumbs.example/abc.jpg"/>
  <content type="html">&lt;p&gt;some context text&lt;/p&gt; &lt;a href="https://compilerblog.example.com/post?utm_source=reddit"&gt;[link]&lt;/a&gt; &lt;a href="https://www.reddit.com/r/programming/comments/abc/post/"&gt;[comments]&lt;/a&gt; submitted by /u/carol</content>
</entry>
<entry>
  <title>Self post question</title>
  <link href="https://www.reddit.com/r/programming/comments/def/question/"/>
  <author><name>/u/dave</name></author>
  <content type="html">&lt;p&gt;just a text question&lt;/p&gt; submitted by /u/dave</content>
</entry>
</feed>`
	doer := &cannedDoer{bodies: map[string]string{"https://www.reddit.com/r/programming": atom}}
	w, err := New("reddit_posts", testEnv(doer), "", Params{"subreddit": "programming"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data, err := w.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(data.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(data.Items))
	}

	link := data.Items[0]
	if link.URL != "https://compilerblog.example.com/post?utm_source=reddit" {
		t.Errorf("external URL = %q", link.URL)
	}
	if link.CommentsURL != "https://www.reddit.com/r/programming/comments/abc/post/" {
		t.Errorf("comments URL = %q", link.CommentsURL)
	}
	if link.Author != "carol" {
		t.Errorf("author = %q", link.Author)
	}
	if link.Image != "https://thumbs.example/abc.jpg" {
		t.Errorf("thumbnail = %q", link.Image)
	}
	if !strings.Contains(link.Summary, "some context text") || strings.Contains(link.Summary, "submitted by") {
		t.Errorf("summary = %q", link.Summary)
	}

	self := data.Items[1]
	if self.URL != self.CommentsURL {
		t.Errorf("self post should keep the reddit link, got %q", self.URL)
	}
}

func TestParamsCoercion(t *testing.T) {
	p := Params{
		"limit":   float64(7),
		"name":    "  value  ",
		"flag":    "true",
		"numeric": "12",
	}
	if got := p.Int("limit", 1); got != 7 {
		t.Errorf("Int(limit) = %d", got)
	}
	if got := p.Int("numeric", 1); got != 12 {
		t.Errorf("Int(numeric) = %d", got)
	}
	if got := p.Int("missing", 3); got != 3 {
		t.Errorf("Int(missing) = %d", got)
	}
	if got := p.String("name", ""); got != "value" {
		t.Errorf("String(name) = %q", got)
	}
	if !p.Bool("flag", false) {
		t.Error("Bool(flag) should be true")
	}
	if _, err := p.Require("absent"); err == nil {
		t.Error("Require(absent) should fail")
	}
}
