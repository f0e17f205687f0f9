// Package browser drives the already-running desktop browser through two
// channels: synthetic keyboard/mouse input for the visible window, and the
// remote debugging protocol for tabs, scripts and cookies.
package browser

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ibeckermayer/tenshi/internal/types"
)

// Driver is everything the automation needs from the browser session.
type Driver interface {
	// Activate raises the browser window so keystrokes reach it.
	Activate(ctx context.Context) error
	// Navigate loads url in the visible window through the address bar.
	Navigate(ctx context.Context, url string) error
	ClickAt(ctx context.Context, x, y int) error
	TypeText(ctx context.Context, text string) error
	PressKeys(ctx context.Context, keys ...string) error
	// PressKeysFocused sends keys to whichever window holds keyboard focus,
	// such as a native file dialog, with modifiers cleared.
	PressKeysFocused(ctx context.Context, keys ...string) error
	WindowTitle(ctx context.Context) (string, error)

	// Cookies enumerates every cookie in the browser profile.
	Cookies(ctx context.Context) ([]types.Cookie, error)
	// Open loads a page in a fresh debugging tab and returns its HTML.
	Open(ctx context.Context, v Visit) (string, error)
	// Evaluate loads a page in a fresh debugging tab and returns the script's
	// result as raw JSON. Undefined and null results are returned as nil.
	Evaluate(ctx context.Context, v Visit, script string) (json.RawMessage, error)
}

// Visit describes a page load in a debugging tab.
type Visit struct {
	URL string
	// WaitSelector, when set, must become visible before continuing.
	WaitSelector string
	// ScrollPresses End key presses, ScrollDelay apart, force lazy images to load.
	ScrollPresses int
	ScrollDelay   time.Duration
	// Sleep lets the page settle before reading it.
	Sleep time.Duration
}
