package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/errgroup"
)

// errNotFound marks responses that are not worth retrying.
var errNotFound = errors.New("not found")

// imageHeaders mimic a browser <img> fetch.
var imageHeaders = map[string]string{
	"Accept":          "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
	"Sec-Fetch-Dest":  "image",
	"Sec-Fetch-Mode":  "no-cors",
	"Sec-Fetch-Site":  "cross-site",
}

// DownloaderOptions configures a Downloader.
type DownloaderOptions struct {
	UserAgent   string
	Timeout     time.Duration
	Concurrency int
	MaxRetries  int
	RetryDelay  time.Duration
}

// Downloader fetches chapter images over HTTP using the browser's cookies.
type Downloader struct {
	client *http.Client
	opts   DownloaderOptions
}

// NewDownloader creates a Downloader whose cookie jar is seeded with cookies
// for each of the given URLs.
func NewDownloader(opts DownloaderOptions, cookies map[string][]*http.Cookie) (*Downloader, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	for rawURL, cs := range cookies {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("cookie url %q: %w", rawURL, err)
		}
		jar.SetCookies(u, cs)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}

	return &Downloader{
		client: &http.Client{Timeout: opts.Timeout, Jar: jar},
		opts:   opts,
	}, nil
}

// Job is a batch of images for one chapter folder.
type Job struct {
	URLs    []string
	Dir     string
	Referer string
	// Naming is "source" or "index"; see FileName.
	Naming string
}

// File is one image written by a Job.
type File struct {
	Name  string
	URL   string
	Bytes int64
}

// Report summarizes a Job. Every input URL appears in exactly one of
// Saved, Skipped or Failed, in input order.
type Report struct {
	Saved   []File
	Skipped []string
	Failed  []string
}

// Download fetches job.URLs into job.Dir, skipping files that already
// exist. Individual image failures are reported, not returned; an error
// means the folder could not be prepared or ctx was cancelled.
func (d *Downloader) Download(ctx context.Context, job Job) (*Report, error) {
	if err := os.MkdirAll(job.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create chapter folder: %w", err)
	}

	referer, _ := url.Parse(job.Referer)

	type outcome struct {
		file    *File
		skipped string
		failed  string
	}
	outcomes := make([]outcome, len(job.URLs))
	claimed := map[string]bool{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)

	for i, src := range job.URLs {
		name := FileName(src, i, job.Naming)

		dest := filepath.Join(job.Dir, name)
		if claimed[name] {
			outcomes[i] = outcome{skipped: name}
			continue
		}
		claimed[name] = true
		if _, err := os.Stat(dest); err == nil {
			log.Debug().Str("component", "downloader").Str("file", name).Msg("already on disk, skipping")
			outcomes[i] = outcome{skipped: name}
			continue
		}

		imageURL := src
		if referer != nil {
			if u, err := referer.Parse(src); err == nil {
				imageURL = u.String()
			}
		}

		g.Go(func() error {
			n, err := d.fetch(gctx, imageURL, dest, job.Referer)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Error().Err(err).Str("component", "downloader").Str("url", imageURL).Msg("image download failed")
				outcomes[i] = outcome{failed: imageURL}
				return nil
			}
			log.Info().Str("component", "downloader").Str("file", name).Int64("bytes", n).Msg("image saved")
			outcomes[i] = outcome{file: &File{Name: name, URL: imageURL, Bytes: n}}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{}
	for _, o := range outcomes {
		switch {
		case o.file != nil:
			report.Saved = append(report.Saved, *o.file)
		case o.skipped != "":
			report.Skipped = append(report.Skipped, o.skipped)
		case o.failed != "":
			report.Failed = append(report.Failed, o.failed)
		}
	}
	return report, nil
}

// fetch downloads with retries; 404s are not retried.
func (d *Downloader) fetch(ctx context.Context, imageURL, dest, referer string) (int64, error) {
	var lastErr error
	for attempt := 0; attempt < d.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(d.opts.RetryDelay * time.Duration(attempt)):
			}
		}

		n, err := d.fetchOnce(ctx, imageURL, dest, referer)
		if err == nil {
			return n, nil
		}
		lastErr = err
		if errors.Is(err, errNotFound) || ctx.Err() != nil {
			break
		}
	}
	return 0, fmt.Errorf("failed after retries: %w", lastErr)
}

func (d *Downloader) fetchOnce(ctx context.Context, imageURL, dest, referer string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return 0, err
	}
	for k, v := range imageHeaders {
		req.Header.Set(k, v)
	}
	if d.opts.UserAgent != "" {
		req.Header.Set("User-Agent", d.opts.UserAgent)
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, fmt.Errorf("HTTP %d: %w", resp.StatusCode, errNotFound)
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	return n, nil
}
