// Package render turns fetched widget data into static HTML and Markdown
// pages.
package render

import (
	"fmt"
	htmltemplate "html/template"
	"io"
	"os"
	"path/filepath"
	texttemplate "text/template"
	"time"

	"github.com/diaorui/fathom-deck/internal/display"
	"github.com/diaorui/fathom-deck/pkg/types"
)

// PageData is everything a page template needs.
type PageData struct {
	SeriesName  string
	PageName    string
	Description string
	GeneratedAt time.Time
	Widgets     []types.WidgetData
}

// Renderer writes dashboard pages to an output directory, one HTML and
// one Markdown file per page.
type Renderer struct {
	outputDir string
	html      *htmltemplate.Template
	markdown  *texttemplate.Template
}

// New builds a renderer targeting outputDir.
func New(outputDir string) (*Renderer, error) {
	funcs := map[string]any{
		"timeAgo":  display.TimeAgo,
		"truncate": display.Truncate,
	}

	html, err := htmltemplate.New("page").Funcs(funcs).Parse(htmlPage)
	if err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}
	markdown, err := texttemplate.New("page").Funcs(funcs).Parse(markdownPage)
	if err != nil {
		return nil, fmt.Errorf("parse markdown template: %w", err)
	}

	return &Renderer{outputDir: outputDir, html: html, markdown: markdown}, nil
}

// WritePage renders both formats for one page under
// outputDir/<seriesID>/<pageID>.{html,md}.
func (r *Renderer) WritePage(seriesID, pageID string, data PageData) error {
	dir := filepath.Join(r.outputDir, seriesID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := r.writeFile(filepath.Join(dir, pageID+".html"), func(w io.Writer) error {
		return r.html.Execute(w, data)
	}); err != nil {
		return err
	}
	return r.writeFile(filepath.Join(dir, pageID+".md"), func(w io.Writer) error {
		return r.markdown.Execute(w, data)
	})
}

// WriteHTML renders only the HTML page into w.
func (r *Renderer) WriteHTML(w io.Writer, data PageData) error {
	return r.html.Execute(w, data)
}

// WriteMarkdown renders only the Markdown page into w.
func (r *Renderer) WriteMarkdown(w io.Writer, data PageData) error {
	return r.markdown.Execute(w, data)
}

func (r *Renderer) writeFile(path string, render func(io.Writer) error) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := render(fh); err != nil {
		fh.Close()
		return fmt.Errorf("render %s: %w", path, err)
	}
	if err := fh.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

const htmlPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.SeriesName}} / {{.PageName}}</title>
<style>
body { font-family: system-ui, sans-serif; margin: 0 auto; max-width: 960px; padding: 1rem; background: #f5f5f4; color: #1c1917; }
header h1 { margin-bottom: 0.25rem; }
header p.generated { color: #78716c; font-size: 0.85rem; }
.widget { background: #fff; border-radius: 8px; padding: 1rem; margin: 1rem 0; box-shadow: 0 1px 3px rgba(0,0,0,0.1); }
.widget h2 { margin-top: 0; font-size: 1.1rem; }
.stats { display: flex; flex-wrap: wrap; gap: 1rem; }
.stat { min-width: 10rem; }
.stat .label { color: #78716c; font-size: 0.8rem; text-transform: uppercase; }
.stat .value { font-size: 1.2rem; font-weight: 600; }
ul.items { list-style: none; margin: 0; padding: 0; }
ul.items li { padding: 0.5rem 0; border-top: 1px solid #e7e5e4; }
ul.items li:first-child { border-top: none; }
.item-meta { color: #78716c; font-size: 0.8rem; }
.item-summary { font-size: 0.9rem; margin: 0.25rem 0 0; }
img.favicon { width: 16px; height: 16px; vertical-align: text-bottom; margin-right: 0.25rem; }
</style>
</head>
<body>
<header>
<h1>{{.SeriesName}} / {{.PageName}}</h1>
{{if .Description}}<p>{{.Description}}</p>{{end}}
<p class="generated">Generated {{.GeneratedAt.Format "Jan 2, 2006 15:04 MST"}}</p>
</header>
{{range .Widgets}}
<section class="widget widget-{{.Type}}">
<h2>{{.Title}}</h2>
{{if .Stats}}
<div class="stats">
{{range .Stats}}<div class="stat"><div class="label">{{.Label}}</div><div class="value">{{.Value}}</div></div>
{{end}}</div>
{{end}}
{{if .Items}}
<ul class="items">
{{range .Items}}<li>
{{if .Favicon}}<img class="favicon" src="{{.Favicon}}" alt="">{{end}}<a href="{{.URL}}">{{.Title}}</a>
<div class="item-meta">{{if .Source}}{{.Source}}{{end}}{{if .Author}} · {{.Author}}{{end}}{{if .Points}} · ▲ {{.Points}}{{end}}{{if .Comments}} · 💬 {{.Comments}}{{end}}{{if not .PublishedAt.IsZero}} · {{timeAgo .PublishedAt}}{{end}}{{if .CommentsURL}} · <a href="{{.CommentsURL}}">discuss</a>{{end}}</div>
{{if .Summary}}<p class="item-summary">{{truncate .Summary 280}}</p>{{end}}
</li>
{{end}}</ul>
{{end}}
</section>
{{end}}
</body>
</html>
`

const markdownPage = `# {{.SeriesName}} / {{.PageName}}
{{if .Description}}
{{.Description}}
{{end}}
Generated {{.GeneratedAt.Format "Jan 2, 2006 15:04 MST"}}
{{range .Widgets}}
## {{.Title}}
{{range .Stats}}
- **{{.Label}}**: {{.Value}}{{end}}
{{range .Items}}
**[{{.Title}}]({{.URL}})**{{if .Source}} · {{.Source}}{{end}}{{if .Author}} by {{.Author}}{{end}}
{{if .Summary}}{{truncate .Summary 280}}
{{end}}{{if or .Points .Comments (not .PublishedAt.IsZero)}}{{if .Points}}▲ {{.Points}} {{end}}{{if .Comments}}💬 {{.Comments}} {{end}}{{if not .PublishedAt.IsZero}}{{timeAgo .PublishedAt}}{{end}}
{{end}}{{end}}
{{end}}`
