package types

import (
	"math"

	"github.com/chromedp/cdproto/network"
)

// Cookie is a harvested browser cookie as written to the cookies file.
// Field order is the on-disk order.
type Cookie struct {
	Domain   string  `json:"domain"`
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"httpOnly"`
}

// CookieFromNetwork converts a DevTools cookie.
func CookieFromNetwork(c *network.Cookie) Cookie {
	return Cookie{
		Domain:   c.Domain,
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
	}
}

// IsSession reports whether the cookie has no expiry.
func (c Cookie) IsSession() bool {
	return c.Expires <= 0 || math.IsInf(c.Expires, 0)
}

// Chapter is an entry of a series chapter list.
type Chapter struct {
	Title  string  `json:"title"`
	Number float64 `json:"number"`
	URL    string  `json:"url"`
}

// ChapterImages is a chapter folder listing.
type ChapterImages struct {
	Chapter string   `json:"chapter"`
	Images  []string `json:"images"`
}

// TriggerResult is returned by a navigation trigger.
type TriggerResult struct {
	Status  string `json:"status"`
	URL     string `json:"url"`
	JS      string `json:"js"`
	Wait    string `json:"wait"`
	SleepMs int    `json:"sleep"`
	Result  string `json:"result,omitempty"`
	Cookies int    `json:"cookies"`
	RunID   string `json:"run_id,omitempty"`
}

// SaveImageResult is returned after saving one image through the save dialog.
type SaveImageResult struct {
	Status     string `json:"status"`
	ChapterURL string `json:"chapter_url"`
	ImageURL   string `json:"image_url"`
	Slug       string `json:"slug"`
	Folder     string `json:"folder"`
	RunID      string `json:"run_id,omitempty"`
}

// SaveChapterResult is returned after downloading a whole chapter.
type SaveChapterResult struct {
	Status     string   `json:"status"`
	ChapterURL string   `json:"chapter_url"`
	Slug       string   `json:"slug"`
	Folder     string   `json:"folder"`
	Found      int      `json:"found"`
	Saved      []string `json:"saved"`
	Skipped    []string `json:"skipped"`
	Failed     []string `json:"failed,omitempty"`
	RunID      string   `json:"run_id,omitempty"`
}
