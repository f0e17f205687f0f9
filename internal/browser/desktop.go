package browser

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ibeckermayer/tenshi/internal/input"
	"github.com/ibeckermayer/tenshi/internal/poll"
	"github.com/ibeckermayer/tenshi/internal/types"
)

// Desktop is the production Driver: xdotool for the visible window and a
// remote debugging session for everything else.
type Desktop struct {
	keys *input.Xdotool
	cdp  *CDP
	// Pause separates address bar keystrokes so the browser keeps up.
	Pause time.Duration
}

// NewDesktop combines the two channels.
func NewDesktop(keys *input.Xdotool, cdp *CDP) *Desktop {
	return &Desktop{keys: keys, cdp: cdp, Pause: 500 * time.Millisecond}
}

func (d *Desktop) Activate(ctx context.Context) error {
	if err := d.keys.Activate(ctx); err != nil {
		return err
	}
	return poll.Sleep(ctx, d.Pause)
}

// Navigate focuses the address bar, clears it, types url and submits.
func (d *Desktop) Navigate(ctx context.Context, url string) error {
	steps := []func() error{
		func() error { return d.keys.Key(ctx, "ctrl+l") },
		func() error { return d.keys.Key(ctx, "ctrl+a") },
		func() error { return d.keys.Key(ctx, "BackSpace") },
		func() error { return d.keys.Type(ctx, url) },
		func() error { return d.keys.Key(ctx, "Return") },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
		if err := poll.Sleep(ctx, d.Pause); err != nil {
			return err
		}
	}
	return nil
}

func (d *Desktop) ClickAt(ctx context.Context, x, y int) error {
	return d.keys.MoveClick(ctx, x, y)
}

func (d *Desktop) TypeText(ctx context.Context, text string) error {
	return d.keys.Type(ctx, text)
}

func (d *Desktop) PressKeys(ctx context.Context, keys ...string) error {
	return d.keys.Key(ctx, keys...)
}

func (d *Desktop) PressKeysFocused(ctx context.Context, keys ...string) error {
	window, err := d.keys.FocusedWindow(ctx)
	if err != nil {
		return err
	}
	return d.keys.KeyToWindow(ctx, window, keys...)
}

func (d *Desktop) WindowTitle(ctx context.Context) (string, error) {
	return d.keys.ActiveWindowTitle(ctx)
}

func (d *Desktop) Cookies(ctx context.Context) ([]types.Cookie, error) {
	return d.cdp.Cookies(ctx)
}

func (d *Desktop) Open(ctx context.Context, v Visit) (string, error) {
	return d.cdp.Open(ctx, v)
}

func (d *Desktop) Evaluate(ctx context.Context, v Visit, script string) (json.RawMessage, error) {
	return d.cdp.Evaluate(ctx, v, script)
}

// Close releases the debugging session.
func (d *Desktop) Close() {
	d.cdp.Close()
}
