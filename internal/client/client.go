// Package client talks to a running tenshi daemon.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ibeckermayer/tenshi/internal/store"
	"github.com/ibeckermayer/tenshi/internal/types"
)

// APIError is a non-200 response from the daemon.
type APIError struct {
	Endpoint string
	Status   int
	Detail   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.Status, e.Detail)
}

// Client calls the daemon's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for baseURL. Automation calls block until the daemon
// finishes, so timeout should cover a whole chapter.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// TriggerParams mirrors the /trigger query.
type TriggerParams struct {
	URL     string
	JS      string
	Wait    string
	SleepMs int
}

// Trigger asks the daemon to load a URL and clear the challenge.
func (c *Client) Trigger(ctx context.Context, p TriggerParams) (*types.TriggerResult, error) {
	q := url.Values{}
	q.Set("url", p.URL)
	q.Set("js", p.JS)
	q.Set("wait", p.Wait)
	q.Set("sleep", strconv.Itoa(p.SleepMs))

	var res types.TriggerResult
	if err := c.getJSON(ctx, "/trigger", q, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SaveImage saves one image through the browser's Save dialog.
func (c *Client) SaveImage(ctx context.Context, chapterURL, imageURL, slug string) (*types.SaveImageResult, error) {
	q := url.Values{}
	q.Set("chapter_url", chapterURL)
	q.Set("image_url", imageURL)
	q.Set("slug", slug)

	var res types.SaveImageResult
	if err := c.getJSON(ctx, "/save_image", q, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SaveChapter downloads a whole chapter on the daemon side. An empty js
// uses the daemon's configured selector.
func (c *Client) SaveChapter(ctx context.Context, chapterURL, js, slug string) (*types.SaveChapterResult, error) {
	q := url.Values{}
	q.Set("chapter_url", chapterURL)
	q.Set("slug", slug)
	if js != "" {
		q.Set("js", js)
	}

	var res types.SaveChapterResult
	if err := c.getJSON(ctx, "/save_chapter", q, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Images lists the saved images of a chapter.
func (c *Client) Images(ctx context.Context, slug, chapter string) (*types.ChapterImages, error) {
	var res types.ChapterImages
	if err := c.getJSON(ctx, "/get_image", imageQuery(slug, chapter, ""), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Image streams one saved image into w.
func (c *Client) Image(ctx context.Context, slug, chapter, filename string, w io.Writer) (int64, error) {
	resp, err := c.get(ctx, "/get_image", imageQuery(slug, chapter, filename))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return io.Copy(w, resp.Body)
}

// Runs returns recent automation runs.
func (c *Client) Runs(ctx context.Context, limit int) ([]store.Run, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	var runs []store.Run
	if err := c.getJSON(ctx, "/runs", q, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// Run returns one automation run by ID.
func (c *Client) Run(ctx context.Context, id string) (*store.Run, error) {
	var run store.Run
	if err := c.getJSON(ctx, "/runs/"+url.PathEscape(id), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Health checks that the daemon is up.
func (c *Client) Health(ctx context.Context) error {
	var res map[string]string
	return c.getJSON(ctx, "/health", nil, &res)
}

func imageQuery(slug, chapter, filename string) url.Values {
	q := url.Values{}
	if slug != "" {
		q.Set("slug", slug)
	}
	q.Set("chapter", chapter)
	if filename != "" {
		q.Set("filename", filename)
	}
	return q
}

func (c *Client) getJSON(ctx context.Context, endpoint string, q url.Values, v any) error {
	resp, err := c.get(ctx, endpoint, q)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%s: decode response: %w", endpoint, err)
	}
	return nil
}

// get returns the response for a 200, an *APIError otherwise.
func (c *Client) get(ctx context.Context, endpoint string, q url.Values) (*http.Response, error) {
	u := c.baseURL + endpoint
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Endpoint: endpoint, Status: resp.StatusCode, Detail: strings.TrimSpace(string(body))}
	var e struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &e) == nil && e.Detail != "" {
		apiErr.Detail = e.Detail
	}
	return nil, apiErr
}
