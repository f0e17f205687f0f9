package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ibeckermayer/tenshi/internal/auth"
	"github.com/ibeckermayer/tenshi/internal/browser"
	"github.com/ibeckermayer/tenshi/internal/config"
	"github.com/ibeckermayer/tenshi/internal/library"
	"github.com/ibeckermayer/tenshi/internal/screen"
	"github.com/ibeckermayer/tenshi/internal/store"
)

var (
	// ErrInvalidURL is returned for page URLs the automation refuses to load.
	ErrInvalidURL = errors.New("invalid url")
	// ErrInvalidImageURL is returned when an image URL is not served from a CDN.
	ErrInvalidImageURL = errors.New("invalid image url")
)

// Screen is the template matching the automation waits on.
type Screen interface {
	FindBest(ctx context.Context, templates []string, opts screen.Options) (*screen.Match, error)
	WaitFor(ctx context.Context, templates []string, opts screen.Options, interval, timeout time.Duration) (*screen.Match, error)
	WaitGone(ctx context.Context, templates []string, opts screen.Options, interval, timeout time.Duration) error
}

var _ Screen = (*screen.Matcher)(nil)

// App holds the application state.
//
// The desktop browser is a single shared resource: every automation
// operation holds mu for its whole duration so keystrokes from concurrent
// requests and scheduled jobs never interleave.
type App struct {
	mu sync.Mutex

	config    *config.Config
	driver    browser.Driver
	screen    Screen
	auth      *auth.Manager
	store     *store.Store
	snapshots *store.Snapshots
	library   *library.Library
}

// New creates a new App instance.
func New(cfg *config.Config, driver browser.Driver, scr Screen, authManager *auth.Manager, st *store.Store) *App {
	return &App{
		config:    cfg,
		driver:    driver,
		screen:    scr,
		auth:      authManager,
		store:     st,
		snapshots: store.NewSnapshots(cfg.SnapshotsDir()),
		library:   library.New(cfg.Storage.DataDir),
	}
}

// Config returns the configuration the App was built with.
func (a *App) Config() *config.Config {
	return a.config
}

// Library returns the saved image library.
func (a *App) Library() *library.Library {
	return a.library
}

// Run returns a single automation run.
func (a *App) Run(id string) (*store.Run, error) {
	return a.store.GetRun(id)
}

// Runs returns the most recent automation runs.
func (a *App) Runs(limit int) ([]store.Run, error) {
	return a.store.ListRuns(limit)
}

// track records fn as a run in the ledger.
func (a *App) track(kind store.RunKind, target string, fn func(runID string) error) error {
	run, err := a.store.StartRun(kind, target)
	if err != nil {
		return err
	}

	logger := log.With().Str("component", "app").Str("run", run.ID).Str("kind", string(kind)).Logger()
	logger.Info().Str("url", target).Msg("run started")
	start := time.Now()

	runErr := fn(run.ID)

	if err := a.store.FinishRun(run.ID, runErr); err != nil {
		logger.Error().Err(err).Msg("failed to record run result")
	}
	if runErr != nil {
		logger.Error().Err(runErr).Dur("elapsed", time.Since(start)).Msg("run failed")
	} else {
		logger.Info().Dur("elapsed", time.Since(start)).Msg("run finished")
	}
	return runErr
}

func (a *App) matchOptions(threshold float64) screen.Options {
	return screen.Options{
		Threshold: threshold,
		Scales:    a.config.Matching.Scales,
		Debug:     a.config.Matching.Debug,
		DebugDir:  a.config.DebugDir(),
	}
}

// checkPageURL accepts absolute http(s) URLs only.
func checkPageURL(raw string) (*url.URL, error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return nil, fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return u, nil
}
