package screen

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ibeckermayer/tenshi/internal/poll"
)

// WaitFor polls until one of templates appears or timeout elapses.
// On timeout it returns poll.ErrTimeout.
func (m *Matcher) WaitFor(ctx context.Context, templates []string, opts Options, interval, timeout time.Duration) (*Match, error) {
	log.Info().Str("component", component).Strs("templates", templates).Dur("timeout", timeout).Msg("waiting for template")

	found, err := poll.Until(ctx, interval, timeout, func(ctx context.Context) (*Match, bool, error) {
		match, err := m.FindBest(ctx, templates, opts)
		if err != nil {
			return nil, false, err
		}
		return match, match != nil, nil
	})
	if err != nil {
		log.Warn().Err(err).Str("component", component).Strs("templates", templates).Msg("template did not appear")
		return nil, err
	}
	return found, nil
}

// WaitGone polls until none of templates is visible or timeout elapses.
// On timeout it returns poll.ErrTimeout.
func (m *Matcher) WaitGone(ctx context.Context, templates []string, opts Options, interval, timeout time.Duration) error {
	log.Info().Str("component", component).Strs("templates", templates).Dur("timeout", timeout).Msg("waiting for template to disappear")

	_, err := poll.Until(ctx, interval, timeout, func(ctx context.Context) (struct{}, bool, error) {
		match, err := m.FindBest(ctx, templates, opts)
		if err != nil {
			return struct{}{}, false, err
		}
		if match != nil {
			log.Debug().Str("component", component).Str("template", match.Template).Msg("template still present")
		}
		return struct{}{}, match == nil, nil
	})
	if err != nil {
		log.Warn().Err(err).Str("component", component).Strs("templates", templates).Msg("template still present")
		return err
	}
	log.Info().Str("component", component).Strs("templates", templates).Msg("template disappeared")
	return nil
}
