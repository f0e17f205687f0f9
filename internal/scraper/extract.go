package scraper

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ibeckermayer/tenshi/internal/types"
)

// DecodeResult decodes a script result into v. Scripts commonly return
// JSON.stringify(...), so a JSON string holding JSON is unwrapped first.
func DecodeResult(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty script result")
	}

	var inner string
	if err := json.Unmarshal(raw, &inner); err == nil {
		if strings.TrimSpace(inner) == "" {
			return fmt.Errorf("empty script result")
		}
		raw = json.RawMessage(inner)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse script result: %w", err)
	}
	return nil
}

// ResultText renders a script result for display: strings are unquoted,
// anything else is returned as JSON.
func ResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// ImageURLs parses a script result holding a list of image URLs.
func ImageURLs(raw json.RawMessage) ([]string, error) {
	var srcs []string
	if err := DecodeResult(raw, &srcs); err != nil {
		return nil, err
	}
	return cleanURLs(srcs), nil
}

// ImagesFromHTML selects image elements and reads src, falling back to data-src.
func ImagesFromHTML(html, selector string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var srcs []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" {
			src = strings.TrimSpace(s.AttrOr("data-src", ""))
		}
		srcs = append(srcs, src)
	})
	return cleanURLs(srcs), nil
}

func cleanURLs(srcs []string) []string {
	out := make([]string, 0, len(srcs))
	for _, s := range srcs {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Chapters parses a script result holding a chapter list.
func Chapters(raw json.RawMessage) ([]types.Chapter, error) {
	var chapters []types.Chapter
	if err := DecodeResult(raw, &chapters); err != nil {
		return nil, err
	}
	return chapters, nil
}

var chapterNumber = regexp.MustCompile(`(?i)chapter\s*([0-9]+(?:\.[0-9]+)?)`)
var leadingNumber = regexp.MustCompile(`^\s*([0-9]+(?:\.[0-9]+)?)`)

// ChapterNumber extracts the chapter number from a link title such as
// "Chapter 12.5"; 0 when there is none.
func ChapterNumber(title string) float64 {
	m := chapterNumber.FindStringSubmatch(title)
	if m == nil {
		m = leadingNumber.FindStringSubmatch(title)
	}
	if m == nil {
		return 0
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return n
}

// ChaptersFromHTML reads a series page chapter list. Relative links resolve against base.
func ChaptersFromHTML(html, selector, base string) ([]types.Chapter, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	baseURL, _ := url.Parse(base)

	var chapters []types.Chapter
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		link := s.Find("a").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		title := strings.TrimSpace(link.Text())
		chapters = append(chapters, types.Chapter{
			Title:  title,
			Number: ChapterNumber(title),
			URL:    resolve(baseURL, href),
		})
	})
	return chapters, nil
}

// TitleFromHTML returns the trimmed text of the first selector match.
func TitleFromHTML(html, selector string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	return strings.TrimSpace(doc.Find(selector).First().Text()), nil
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
