package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ibeckermayer/tenshi/internal/poll"
	"github.com/ibeckermayer/tenshi/internal/types"
)

// CookieSource enumerates the browser's cookies.
type CookieSource interface {
	Cookies(ctx context.Context) ([]types.Cookie, error)
}

// Manager harvests clearance cookies from the browser and stores them.
type Manager struct {
	cookieStore *CookieStore
	source      CookieSource
}

// NewManager creates a new auth manager
func NewManager(cookieStore *CookieStore, source CookieSource) *Manager {
	return &Manager{cookieStore: cookieStore, source: source}
}

// Harvest polls the browser until it reports at least one cookie, then writes
// them to the cookie store. A timeout is not fatal: an empty list is written
// and returned.
func (m *Manager) Harvest(ctx context.Context, interval, timeout time.Duration) ([]types.Cookie, error) {
	log.Info().Str("component", "auth").Dur("timeout", timeout).Msg("polling browser for cookies")

	cookies, err := poll.Until(ctx, interval, timeout, func(ctx context.Context) ([]types.Cookie, bool, error) {
		found, err := m.source.Cookies(ctx)
		if err != nil {
			return nil, false, err
		}
		log.Debug().Str("component", "auth").Int("count", len(found)).Msg("cookie poll")
		return found, len(found) > 0, nil
	})
	switch {
	case errors.Is(err, poll.ErrTimeout):
		log.Warn().Str("component", "auth").Dur("timeout", timeout).Msg("no cookies found")
		cookies = nil
	case err != nil:
		return nil, fmt.Errorf("failed to extract cookies: %w", err)
	}

	if err := m.cookieStore.Save(cookies); err != nil {
		return nil, fmt.Errorf("failed to save cookies: %w", err)
	}

	log.Info().Str("component", "auth").Int("count", len(cookies)).Str("path", m.cookieStore.Path()).Msg("cookies saved")
	return cookies, nil
}
