package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ibeckermayer/tenshi/internal/auth"
	"github.com/ibeckermayer/tenshi/internal/browser"
	"github.com/ibeckermayer/tenshi/internal/poll"
	"github.com/ibeckermayer/tenshi/internal/scraper"
	"github.com/ibeckermayer/tenshi/internal/store"
	"github.com/ibeckermayer/tenshi/internal/types"
)

// SaveImageRequest saves one image through the browser's Save dialog.
type SaveImageRequest struct {
	ChapterURL string
	ImageURL   string
	Slug       string
}

// SaveChapterRequest downloads every image of a chapter. An empty JS falls
// back to parsing the page HTML with the configured image selector.
type SaveChapterRequest struct {
	ChapterURL string
	JS         string
	Slug       string
}

// SaveImage visits the chapter so the image request carries a valid referer
// and clearance, then opens the image and saves it with Ctrl+S into
// <data>/[slug/]<chapter folder>.
func (a *App) SaveImage(ctx context.Context, req SaveImageRequest) (*types.SaveImageResult, error) {
	if !strings.Contains(req.ImageURL, "cdn.") {
		return nil, fmt.Errorf("%w: image URL does not belong to a CDN", ErrInvalidImageURL)
	}
	if strings.Contains(req.ChapterURL, "cdn.") {
		return nil, fmt.Errorf("%w: chapter URL should not be a CDN URL", ErrInvalidURL)
	}
	if _, err := checkPageURL(req.ChapterURL); err != nil {
		return nil, err
	}
	if _, err := checkPageURL(req.ImageURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImageURL, err)
	}

	folder := scraper.ChapterFolder(req.ChapterURL)
	dir, err := a.library.ChapterDir(req.Slug, folder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	res := &types.SaveImageResult{
		Status:     "Saved",
		ChapterURL: req.ChapterURL,
		ImageURL:   req.ImageURL,
		Slug:       req.Slug,
		Folder:     folder,
	}

	err = a.track(store.KindSaveImage, req.ImageURL, func(runID string) error {
		res.RunID = runID
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create chapter folder: %w", err)
		}
		if err := a.saveImageSequence(ctx, req, dir); err != nil {
			return err
		}

		renamed, err := scraper.StripDuplicateSuffix(dir)
		if err != nil {
			return fmt.Errorf("tidy chapter folder: %w", err)
		}
		if len(renamed) > 0 {
			log.Info().Str("component", "app").Strs("files", renamed).Msg("replaced duplicate downloads")
		}

		a.recordSavedImage(runID, req, folder, dir)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (a *App) saveImageSequence(ctx context.Context, req SaveImageRequest, dir string) error {
	w := a.config.Waits
	step := w.DialogDelay.Duration

	if err := a.driver.Activate(ctx); err != nil {
		return fmt.Errorf("activate browser: %w", err)
	}
	if err := a.driver.Navigate(ctx, req.ChapterURL); err != nil {
		return fmt.Errorf("navigate to chapter: %w", err)
	}

	_, err := poll.Until(ctx, w.TitleInterval.Duration, w.TitleTimeout.Duration, func(ctx context.Context) (string, bool, error) {
		title, err := a.driver.WindowTitle(ctx)
		if err != nil {
			log.Debug().Err(err).Str("component", "app").Msg("window title unavailable")
			return "", false, nil
		}
		return title, strings.Contains(title, "Chapter"), nil
	})
	switch {
	case errors.Is(err, poll.ErrTimeout):
		log.Warn().Str("component", "app").Msg("chapter page did not load within timeout")
	case err != nil:
		return err
	}

	for i := 0; i < 5; i++ {
		if err := a.driver.PressKeys(ctx, "End"); err != nil {
			return fmt.Errorf("scroll chapter: %w", err)
		}
		if err := poll.Sleep(ctx, step/2); err != nil {
			return err
		}
	}
	if err := poll.Sleep(ctx, step); err != nil {
		return err
	}

	if err := a.challengePass(ctx); err != nil {
		return err
	}

	if err := a.driver.Navigate(ctx, req.ImageURL); err != nil {
		return fmt.Errorf("navigate to image: %w", err)
	}
	if err := a.waitForPageLoad(ctx); err != nil {
		return err
	}

	// Save dialog: open it, focus the file name field, put the folder in
	// front of the suggested name, confirm.
	steps := []struct {
		run   func() error
		pause time.Duration
	}{
		{func() error { return a.driver.PressKeys(ctx, "ctrl+s") }, step},
		{func() error { return a.driver.PressKeys(ctx, "ctrl+l") }, step / 5},
		{func() error { return a.driver.PressKeys(ctx, "Left") }, 0},
		{func() error { return a.driver.TypeText(ctx, dir+string(filepath.Separator)) }, step},
		{func() error { return a.driver.PressKeysFocused(ctx, "Return") }, 2 * step},
		{func() error { return a.driver.PressKeys(ctx, "alt+Left") }, step},
	}
	for _, s := range steps {
		if err := s.run(); err != nil {
			return fmt.Errorf("save dialog: %w", err)
		}
		if err := poll.Sleep(ctx, s.pause); err != nil {
			return err
		}
	}
	return nil
}

// recordSavedImage adds the dialog's output to the ledger when the file
// landed under its URL name.
func (a *App) recordSavedImage(runID string, req SaveImageRequest, folder, dir string) {
	name, err := scraper.LastSegment(req.ImageURL)
	if err != nil {
		return
	}
	info, err := os.Stat(filepath.Join(dir, name))
	if err != nil {
		log.Warn().Str("component", "app").Str("file", name).Msg("saved image not found under expected name")
		return
	}
	if err := a.store.RecordImage(&store.Image{
		RunID: runID, Slug: req.Slug, Chapter: folder, Name: name, URL: req.ImageURL, Bytes: info.Size(),
	}); err != nil {
		log.Error().Err(err).Str("component", "app").Msg("failed to record image")
	}
}

// SaveChapter clears the challenge for the chapter, collects its image URLs
// in a debugging tab and downloads them with the harvested cookies into
// <data>/[slug/]<last path segment>.
func (a *App) SaveChapter(ctx context.Context, req SaveChapterRequest) (*types.SaveChapterResult, error) {
	if _, err := checkPageURL(req.ChapterURL); err != nil {
		return nil, err
	}
	folder, err := scraper.LastSegment(req.ChapterURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	dir, err := a.library.ChapterDir(req.Slug, folder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	res := &types.SaveChapterResult{
		Status:     "Saved",
		ChapterURL: req.ChapterURL,
		Slug:       req.Slug,
		Folder:     folder,
		Saved:      []string{},
		Skipped:    []string{},
	}

	err = a.track(store.KindSaveChapter, req.ChapterURL, func(runID string) error {
		res.RunID = runID
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create chapter folder: %w", err)
		}

		cookies, err := a.bypass(ctx, req.ChapterURL)
		if err != nil {
			return err
		}

		urls, err := a.chapterImages(ctx, req)
		if err != nil {
			return err
		}
		res.Found = len(urls)
		log.Info().Str("component", "app").Int("images", len(urls)).Str("folder", folder).Msg("image urls extracted")
		if _, err := store.SaveSnapshot(a.snapshots, store.SnapshotImageURLs, map[string]any{
			"chapter_url": req.ChapterURL,
			"images":      urls,
		}); err != nil {
			log.Warn().Err(err).Str("component", "app").Msg("failed to snapshot image urls")
		}

		dl := a.config.Download
		downloader, err := scraper.NewDownloader(scraper.DownloaderOptions{
			UserAgent:   dl.UserAgent,
			Timeout:     dl.Timeout.Duration,
			Concurrency: dl.Concurrency,
		}, auth.JarCookies(cookies, time.Now()))
		if err != nil {
			return err
		}

		report, err := downloader.Download(ctx, scraper.Job{
			URLs:    urls,
			Dir:     dir,
			Referer: req.ChapterURL,
			Naming:  dl.Naming,
		})
		if err != nil {
			return err
		}

		for _, f := range report.Saved {
			res.Saved = append(res.Saved, f.Name)
			if err := a.store.RecordImage(&store.Image{
				RunID: runID, Slug: req.Slug, Chapter: folder, Name: f.Name, URL: f.URL, Bytes: f.Bytes,
			}); err != nil {
				log.Error().Err(err).Str("component", "app").Str("file", f.Name).Msg("failed to record image")
			}
		}
		res.Skipped = append(res.Skipped, report.Skipped...)
		res.Failed = report.Failed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (a *App) chapterImages(ctx context.Context, req SaveChapterRequest) ([]string, error) {
	dl := a.config.Download
	visit := browser.Visit{
		URL:           req.ChapterURL,
		ScrollPresses: dl.ScrollPresses,
		ScrollDelay:   dl.ScrollDelay.Duration,
	}

	if req.JS != "" {
		raw, err := a.driver.Evaluate(ctx, visit, req.JS)
		if err != nil {
			return nil, fmt.Errorf("evaluate image script: %w", err)
		}
		urls, err := scraper.ImageURLs(raw)
		if err != nil {
			return nil, fmt.Errorf("image script result: %w", err)
		}
		return urls, nil
	}

	selector := dl.ImageSelector
	if selector == "" {
		selector = scraper.ChapterImage
	}

	// The page script sees lazy-loaded sources the served HTML may not have.
	if urls, err := a.scriptImages(ctx, visit, selector); err != nil {
		log.Debug().Err(err).Str("component", "app").Msg("image script failed, parsing HTML")
	} else if len(urls) > 0 {
		return urls, nil
	}

	html, err := a.driver.Open(ctx, visit)
	if err != nil {
		return nil, fmt.Errorf("open chapter: %w", err)
	}
	return scraper.ImagesFromHTML(html, selector)
}

func (a *App) scriptImages(ctx context.Context, visit browser.Visit, selector string) ([]string, error) {
	raw, err := a.driver.Evaluate(ctx, visit, scraper.ImagesJS(selector))
	if err != nil {
		return nil, err
	}
	return scraper.ImageURLs(raw)
}

// Images lists saved images of a chapter.
func (a *App) Images(slug, chapter string) (*types.ChapterImages, error) {
	images, err := a.library.List(slug, chapter)
	if err != nil {
		return nil, err
	}
	return &types.ChapterImages{Chapter: chapter, Images: images}, nil
}

// ImagePath resolves one saved image.
func (a *App) ImagePath(slug, chapter, filename string) (string, error) {
	return a.library.Image(slug, chapter, filename)
}
