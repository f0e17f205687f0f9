package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ibeckermayer/tenshi/internal/browser"
	"github.com/ibeckermayer/tenshi/internal/poll"
	"github.com/ibeckermayer/tenshi/internal/scraper"
	"github.com/ibeckermayer/tenshi/internal/types"
)

// PageReader reads pages in a debugging tab. *browser.CDP implements it.
type PageReader interface {
	Open(ctx context.Context, v browser.Visit) (string, error)
	Evaluate(ctx context.Context, v browser.Visit, script string) (json.RawMessage, error)
}

var _ PageReader = (*browser.CDP)(nil)

// SeriesOptions tunes a series download.
type SeriesOptions struct {
	// OutputDir receives <chapter folder>/<file> copies of the saved images.
	OutputDir string
	// Slug is the daemon-side series folder; defaults to the series URL's
	// last path segment.
	Slug string
	// JS overrides the daemon's image extraction.
	JS string

	TitleSelector   string
	TitleWait       string
	ChapterSelector string
	ChapterWait     string
	TriggerSleep    time.Duration
	PageSleep       time.Duration
	TitleInterval   time.Duration
	TitleTimeout    time.Duration
	// Pause between chapters.
	Pause time.Duration
}

// DefaultSeriesOptions returns the pacing used against Madara sites.
func DefaultSeriesOptions() SeriesOptions {
	return SeriesOptions{
		OutputDir:       "./bin",
		TitleSelector:   scraper.SeriesTitle,
		TitleWait:       scraper.WaitForSeries,
		ChapterSelector: scraper.ChapterList,
		ChapterWait:     scraper.WaitForChapter,
		TriggerSleep:    5 * time.Second,
		PageSleep:       5 * time.Second,
		TitleInterval:   2 * time.Second,
		TitleTimeout:    30 * time.Second,
		Pause:           500 * time.Millisecond,
	}
}

// ChapterReport is the outcome of one chapter.
type ChapterReport struct {
	Chapter    types.Chapter `json:"chapter"`
	Folder     string        `json:"folder"`
	Downloaded []string      `json:"downloaded"`
	Existing   []string      `json:"existing"`
	Error      string        `json:"error,omitempty"`
}

// SeriesReport summarizes a series download.
type SeriesReport struct {
	Title    string          `json:"title"`
	Total    int             `json:"total"`
	Chapters []ChapterReport `json:"chapters"`
}

// Series downloads a chapter range of a series: the daemon clears the
// challenge and saves each chapter, then the images are copied locally.
type Series struct {
	api   *Client
	pages PageReader
	opts  SeriesOptions
}

// NewSeries creates a Series downloader.
func NewSeries(api *Client, pages PageReader, opts SeriesOptions) *Series {
	return &Series{api: api, pages: pages, opts: opts}
}

// Download fetches chapters numbered within chapterRange ("1-5", "7").
// Per-chapter failures are reported, not returned.
func (s *Series) Download(ctx context.Context, seriesURL, chapterRange string) (*SeriesReport, error) {
	start, end, err := scraper.ParseRange(chapterRange)
	if err != nil {
		return nil, err
	}
	slug := s.opts.Slug
	if slug == "" {
		if slug, err = scraper.LastSegment(seriesURL); err != nil {
			return nil, fmt.Errorf("series slug: %w", err)
		}
	}
	if err := os.MkdirAll(s.opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	logger := log.With().Str("component", "series").Str("series", slug).Logger()

	logger.Info().Str("url", seriesURL).Msg("triggering challenge bypass")
	if _, err := s.api.Trigger(ctx, TriggerParams{URL: seriesURL, SleepMs: int(s.opts.TriggerSleep / time.Millisecond)}); err != nil {
		return nil, err
	}

	title, err := s.waitForTitle(ctx, seriesURL)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("title", title).Msg("series page reachable")

	chapters, err := s.chapters(ctx, seriesURL)
	if err != nil {
		return nil, fmt.Errorf("read chapter list: %w", err)
	}

	selected := scraper.SelectChapters(chapters, start, end)
	logger.Info().Int("total", len(chapters)).Int("selected", len(selected)).Msg("chapters listed")

	report := &SeriesReport{Title: title, Total: len(chapters), Chapters: []ChapterReport{}}
	for i, ch := range selected {
		if i > 0 {
			if err := poll.Sleep(ctx, s.opts.Pause); err != nil {
				return report, err
			}
		}
		cr := s.chapter(ctx, slug, ch)
		if cr.Error != "" {
			logger.Error().Str("chapter", ch.Title).Str("error", cr.Error).Msg("chapter failed")
		} else {
			logger.Info().Str("chapter", ch.Title).Int("downloaded", len(cr.Downloaded)).Int("existing", len(cr.Existing)).Msg("chapter done")
		}
		report.Chapters = append(report.Chapters, cr)
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
	}
	return report, nil
}

// waitForTitle polls the series page until its title renders, which only
// happens once the interstitial is gone.
func (s *Series) waitForTitle(ctx context.Context, seriesURL string) (string, error) {
	visit := browser.Visit{URL: seriesURL, WaitSelector: s.opts.TitleWait}
	title, err := poll.Until(ctx, s.opts.TitleInterval, s.opts.TitleTimeout, func(ctx context.Context) (string, bool, error) {
		raw, err := s.pages.Evaluate(ctx, visit, scraper.TitleJS(s.opts.TitleSelector))
		if err != nil {
			log.Debug().Err(err).Str("component", "series").Msg("series page not ready")
			return "", false, nil
		}
		t := strings.TrimSpace(scraper.ResultText(raw))
		return t, t != "", nil
	})
	if errors.Is(err, poll.ErrTimeout) {
		return "", fmt.Errorf("series title never appeared, challenge not cleared: %w", err)
	}
	return title, err
}

// chapters reads the chapter list with a script, then falls back to parsing
// the page HTML when the script finds nothing.
func (s *Series) chapters(ctx context.Context, seriesURL string) ([]types.Chapter, error) {
	visit := browser.Visit{URL: seriesURL, WaitSelector: s.opts.ChapterWait, Sleep: s.opts.PageSleep}

	raw, err := s.pages.Evaluate(ctx, visit, scraper.ChaptersJS(s.opts.ChapterSelector))
	if err != nil {
		return nil, err
	}
	chapters, err := scraper.Chapters(raw)
	if err == nil && len(chapters) > 0 {
		return chapters, nil
	}
	if err != nil {
		log.Warn().Err(err).Str("component", "series").Msg("chapter script result unreadable, parsing HTML")
	}

	html, err := s.pages.Open(ctx, visit)
	if err != nil {
		return nil, err
	}
	return scraper.ChaptersFromHTML(html, s.opts.ChapterSelector, seriesURL)
}

func (s *Series) chapter(ctx context.Context, slug string, ch types.Chapter) ChapterReport {
	cr := ChapterReport{Chapter: ch, Downloaded: []string{}, Existing: []string{}}

	saved, err := s.api.SaveChapter(ctx, ch.URL, s.opts.JS, slug)
	if err != nil {
		cr.Error = err.Error()
		return cr
	}
	cr.Folder = saved.Folder

	listing, err := s.api.Images(ctx, slug, saved.Folder)
	if err != nil {
		cr.Error = err.Error()
		return cr
	}

	dir := filepath.Join(s.opts.OutputDir, saved.Folder)
	if err := os.MkdirAll(dir, 0755); err != nil {
		cr.Error = err.Error()
		return cr
	}

	var failed []string
	for _, name := range listing.Images {
		dest := filepath.Join(dir, name)
		if _, err := os.Stat(dest); err == nil {
			cr.Existing = append(cr.Existing, name)
			continue
		}
		if err := s.copyImage(ctx, slug, saved.Folder, name, dest); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		cr.Downloaded = append(cr.Downloaded, name)
	}
	if len(failed) > 0 {
		cr.Error = strings.Join(failed, "; ")
	}
	return cr
}

func (s *Series) copyImage(ctx context.Context, slug, folder, name, dest string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".copy-*")
	if err != nil {
		return err
	}
	_, err = s.api.Image(ctx, slug, folder, name, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
