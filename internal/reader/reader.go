// Package reader renders a saved chapter as a single scrolling HTML page.
package reader

import (
	"fmt"
	"html/template"
	"io"
	"net/url"
)

var pageTemplate = template.Must(template.New("chapter").Parse(defaultTemplate))

// Page is the template data for one chapter.
type Page struct {
	Title   string
	Slug    string
	Chapter string
	Images  []Image
}

// Image is one page of the strip.
type Image struct {
	Name string
	URL  string
}

// NewPage builds a Page whose image sources point at the /get_image endpoint.
func NewPage(slug, chapter string, names []string) Page {
	p := Page{
		Title:   chapter,
		Slug:    slug,
		Chapter: chapter,
		Images:  make([]Image, len(names)),
	}
	if slug != "" {
		p.Title = fmt.Sprintf("%s - %s", slug, chapter)
	}
	for i, name := range names {
		p.Images[i] = Image{Name: name, URL: imageURL(slug, chapter, name)}
	}
	return p
}

func imageURL(slug, chapter, name string) string {
	q := url.Values{}
	if slug != "" {
		q.Set("slug", slug)
	}
	q.Set("chapter", chapter)
	q.Set("filename", name)
	return "/get_image?" + q.Encode()
}

// Render writes the page as HTML.
func Render(w io.Writer, p Page) error {
	if err := pageTemplate.Execute(w, p); err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}
	return nil
}

const defaultTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 800px; margin: 0 auto; padding: 0; background: #111; color: #ddd; }
        header { padding: 15px 20px; }
        h1 { font-size: 18px; margin: 0 0 5px; }
        .count { color: #888; font-size: 13px; }
        .strip img { display: block; width: 100%; height: auto; }
        .empty { padding: 40px 20px; color: #888; text-align: center; }
        .footer { padding: 15px 20px; color: #666; font-size: 12px; text-align: center; }
    </style>
</head>
<body>
    <header>
        <h1>{{.Title}}</h1>
        <div class="count">{{len .Images}} images</div>
    </header>

    <div class="strip">
        {{range .Images}}<img src="{{.URL}}" alt="{{.Name}}" loading="lazy">
        {{else}}<div class="empty">No images saved for this chapter yet.</div>
        {{end}}
    </div>

    <div class="footer">Saved by tenshi</div>
</body>
</html>`
