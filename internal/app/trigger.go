package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ibeckermayer/tenshi/internal/browser"
	"github.com/ibeckermayer/tenshi/internal/poll"
	"github.com/ibeckermayer/tenshi/internal/scraper"
	"github.com/ibeckermayer/tenshi/internal/store"
	"github.com/ibeckermayer/tenshi/internal/types"
)

// TriggerRequest loads a URL in the visible browser and gets past the
// interstitial. When JS or Wait is set the page is then opened in a
// debugging tab: Wait is a selector to wait for, Sleep a settle delay and JS
// a script whose result is returned.
type TriggerRequest struct {
	URL   string
	JS    string
	Wait  string
	Sleep time.Duration
}

// Trigger navigates, clears the challenge, harvests cookies and optionally
// evaluates a script.
func (a *App) Trigger(ctx context.Context, req TriggerRequest) (*types.TriggerResult, error) {
	if _, err := checkPageURL(req.URL); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	res := &types.TriggerResult{
		Status:  "Triggered",
		URL:     req.URL,
		JS:      req.JS,
		Wait:    req.Wait,
		SleepMs: int(req.Sleep / time.Millisecond),
	}

	err := a.track(store.KindTrigger, req.URL, func(runID string) error {
		res.RunID = runID

		cookies, err := a.bypass(ctx, req.URL)
		if err != nil {
			return err
		}
		res.Cookies = len(cookies)

		if req.JS == "" && req.Wait == "" {
			return nil
		}

		visit := browser.Visit{URL: req.URL, WaitSelector: req.Wait, Sleep: req.Sleep}
		if req.JS == "" {
			if _, err := a.driver.Open(ctx, visit); err != nil {
				return fmt.Errorf("open debugging tab: %w", err)
			}
			return nil
		}

		raw, err := a.driver.Evaluate(ctx, visit, req.JS)
		if err != nil {
			return fmt.Errorf("evaluate script: %w", err)
		}
		res.Result = scraper.ResultText(raw)
		if _, err := store.SaveSnapshot(a.snapshots, store.SnapshotScript, map[string]any{
			"url":    req.URL,
			"js":     req.JS,
			"result": res.Result,
		}); err != nil {
			log.Warn().Err(err).Str("component", "app").Msg("failed to snapshot script result")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// bypass loads target in the visible window, clears any challenge and
// harvests the resulting cookies. Callers hold a.mu.
func (a *App) bypass(ctx context.Context, target string) ([]types.Cookie, error) {
	if err := a.driver.Activate(ctx); err != nil {
		return nil, fmt.Errorf("activate browser: %w", err)
	}
	if err := a.driver.Navigate(ctx, target); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if err := a.waitForPageLoad(ctx); err != nil {
		return nil, err
	}
	if err := a.challengePass(ctx); err != nil {
		return nil, err
	}

	w := a.config.Waits
	return a.auth.Harvest(ctx, w.CookieInterval.Duration, w.CookieTimeout.Duration)
}

// waitForPageLoad waits for the reload icon to be drawn. A timeout falls back
// to a fixed sleep.
func (a *App) waitForPageLoad(ctx context.Context) error {
	w := a.config.Waits
	opts := a.matchOptions(a.config.Matching.PageLoadThreshold)

	m, err := a.screen.WaitFor(ctx, []string{a.config.ReloadTemplate()}, opts,
		w.PageLoadInterval.Duration, w.PageLoadTimeout.Duration)
	switch {
	case errors.Is(err, poll.ErrTimeout):
		log.Warn().Str("component", "app").Dur("fallback", w.PageLoadFallback.Duration).Msg("page load not detected, sleeping")
		return poll.Sleep(ctx, w.PageLoadFallback.Duration)
	case err != nil:
		return fmt.Errorf("wait for page load: %w", err)
	}

	log.Debug().Str("component", "app").Float64("score", m.Score).Msg("page loaded")
	return nil
}

// challengePass clicks the challenge checkbox if one is on screen and waits
// for it to go away. Absence is not an error.
func (a *App) challengePass(ctx context.Context) error {
	w := a.config.Waits
	if err := poll.Sleep(ctx, w.ChallengeSettle.Duration); err != nil {
		return err
	}

	templates := a.config.ChallengeTemplates()
	opts := a.matchOptions(a.config.Matching.ChallengeThreshold)

	m, err := a.screen.FindBest(ctx, templates, opts)
	if err != nil {
		return fmt.Errorf("find challenge: %w", err)
	}
	if m == nil {
		log.Info().Str("component", "app").Msg("no challenge on screen")
		return nil
	}

	log.Info().Str("component", "app").
		Str("template", m.Template).
		Float64("score", m.Score).
		Int("x", m.Center.X).Int("y", m.Center.Y).
		Msg("challenge found, clicking")
	if err := a.driver.ClickAt(ctx, m.Center.X, m.Center.Y); err != nil {
		return fmt.Errorf("click challenge: %w", err)
	}

	err = a.screen.WaitGone(ctx, templates, opts, w.ChallengeInterval.Duration, w.ChallengeTimeout.Duration)
	switch {
	case errors.Is(err, poll.ErrTimeout):
		log.Warn().Str("component", "app").Dur("timeout", w.ChallengeTimeout.Duration).Msg("challenge still on screen")
	case err != nil:
		return fmt.Errorf("wait for challenge to clear: %w", err)
	default:
		log.Info().Str("component", "app").Msg("challenge cleared")
	}

	return poll.Sleep(ctx, w.PostClickSettle.Duration)
}
