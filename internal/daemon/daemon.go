// Package daemon wires the automation stack together and runs the HTTP API
// alongside the clearance refresh jobs.
package daemon

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/tenshi/internal/app"
	"github.com/ibeckermayer/tenshi/internal/auth"
	"github.com/ibeckermayer/tenshi/internal/browser"
	"github.com/ibeckermayer/tenshi/internal/config"
	"github.com/ibeckermayer/tenshi/internal/input"
	"github.com/ibeckermayer/tenshi/internal/scheduler"
	"github.com/ibeckermayer/tenshi/internal/screen"
	"github.com/ibeckermayer/tenshi/internal/server"
	"github.com/ibeckermayer/tenshi/internal/store"
	"github.com/ibeckermayer/tenshi/internal/types"
)

// Daemon owns every long-lived component.
type Daemon struct {
	cfg    *config.Config
	store  *store.Store
	cdp    *browser.CDP
	app    *app.App
	sched  *scheduler.Scheduler
	server *server.Server
}

// New opens the ledger, connects the desktop and debugging channels lazily,
// and registers the configured refresh jobs.
func New(cfg *config.Config) (*Daemon, error) {
	st, err := store.New(cfg.Storage.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	keys := input.New(cfg.Browser.WindowClass, cfg.Browser.KeyDelayMs, nil)
	cdp := browser.NewCDP(cfg.Browser.RemoteDebugURL, cfg.Browser.TabTimeout.Duration)
	driver := browser.NewDesktop(keys, cdp)
	matcher := screen.New(screen.DisplayCapturer{})
	authManager := auth.NewManager(auth.NewCookieStore(cfg.CookiesPath()), driver)

	a := app.New(cfg, driver, matcher, authManager, st)

	sched, err := scheduler.New(cfg.Timezone)
	if err != nil {
		st.Close()
		return nil, err
	}
	if err := ScheduleRefresh(sched, a, cfg.Refresh); err != nil {
		st.Close()
		return nil, err
	}

	return &Daemon{
		cfg:    cfg,
		store:  st,
		cdp:    cdp,
		app:    a,
		sched:  sched,
		server: server.New(a, cfg.Server.RequestTimeout.Duration),
	}, nil
}

// App returns the automation facade.
func (d *Daemon) App() *app.App {
	return d.app
}

// Run serves the API and runs refresh jobs until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	d.sched.Start()
	go RunStartupRefresh(d.sched, d.app, d.cfg.Refresh)
	g.Go(func() error {
		return d.server.ListenAndServe(ctx, d.cfg.Server.Listen)
	})
	g.Go(func() error {
		<-ctx.Done()
		<-d.sched.Stop().Done()
		return nil
	})

	log.Info().
		Str("listen", d.cfg.Server.Listen).
		Str("remote_debug_url", d.cfg.Browser.RemoteDebugURL).
		Str("data_dir", d.cfg.Storage.DataDir).
		Msg("tenshi daemon running")
	return g.Wait()
}

// Close releases the debugging session and the ledger.
func (d *Daemon) Close() {
	d.cdp.Close()
	if err := d.store.Close(); err != nil {
		log.Warn().Err(err).Msg("close store")
	}
}

// Triggerer runs a challenge bypass.
type Triggerer interface {
	Trigger(ctx context.Context, req app.TriggerRequest) (*types.TriggerResult, error)
}

// ScheduleRefresh registers one cron job per refresh entry. Unnamed entries
// are called refresh-1, refresh-2, ...
func ScheduleRefresh(s *scheduler.Scheduler, t Triggerer, jobs []config.RefreshJob) error {
	for i, job := range jobs {
		if err := s.AddJob(refreshName(i, job), job.Schedule, RefreshJob(t, job.URL)); err != nil {
			return err
		}
	}
	return nil
}

// RunStartupRefresh runs the run_on_start entries once, in order, and
// returns how many of them failed. Failures are logged by name.
func RunStartupRefresh(s *scheduler.Scheduler, t Triggerer, jobs []config.RefreshJob) int {
	failed := 0
	for i, job := range jobs {
		if !job.RunOnStart {
			continue
		}
		name := refreshName(i, job)
		if err := s.RunNow(name, RefreshJob(t, job.URL)); err != nil {
			log.Error().Err(err).Str("component", "refresh").Str("job", name).Msg("startup refresh failed")
			failed++
		}
	}
	return failed
}

func refreshName(i int, job config.RefreshJob) string {
	if job.Name != "" {
		return job.Name
	}
	return fmt.Sprintf("refresh-%d", i+1)
}

// RefreshJob re-runs the bypass for target so its clearance cookies stay fresh.
func RefreshJob(t Triggerer, target string) scheduler.Job {
	return func(ctx context.Context) error {
		res, err := t.Trigger(ctx, app.TriggerRequest{URL: target})
		if err != nil {
			return fmt.Errorf("refresh %s: %w", target, err)
		}
		log.Info().Str("component", "refresh").Str("url", target).Int("cookies", res.Cookies).Msg("clearance refreshed")
		return nil
	}
}
