// Package input drives the desktop keyboard and mouse through xdotool.
package input

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands on the host.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Xdotool sends input events to the browser window.
type Xdotool struct {
	// WindowClass is passed to "search --class" when activating the browser.
	WindowClass string
	// KeyDelayMs is the per-keystroke delay for key and type commands.
	KeyDelayMs int
	run        Runner
}

// New returns an Xdotool targeting windows of the given class.
func New(windowClass string, keyDelayMs int, run Runner) *Xdotool {
	if run == nil {
		run = ExecRunner
	}
	if keyDelayMs <= 0 {
		keyDelayMs = 12
	}
	return &Xdotool{WindowClass: windowClass, KeyDelayMs: keyDelayMs, run: run}
}

func (x *Xdotool) xdo(ctx context.Context, args ...string) ([]byte, error) {
	log.Debug().Str("component", "xdotool").Strs("args", args).Msg("exec")
	out, err := x.run(ctx, "xdotool", args...)
	if err != nil {
		return nil, fmt.Errorf("xdotool: %w", err)
	}
	return out, nil
}

// Activate raises and focuses the first visible browser window.
func (x *Xdotool) Activate(ctx context.Context) error {
	_, err := x.xdo(ctx, "search", "--onlyvisible", "--class", x.WindowClass, "windowactivate", "--sync")
	return err
}

// Key sends one or more key chords, e.g. "ctrl+l" or "Return".
func (x *Xdotool) Key(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	args := append([]string{"key", "--delay", strconv.Itoa(x.KeyDelayMs)}, keys...)
	_, err := x.xdo(ctx, args...)
	return err
}

// Type enters text as literal keystrokes.
func (x *Xdotool) Type(ctx context.Context, text string) error {
	_, err := x.xdo(ctx, "type", "--delay", strconv.Itoa(x.KeyDelayMs), "--", text)
	return err
}

// MoveClick moves the pointer to (px, py) and left-clicks.
func (x *Xdotool) MoveClick(ctx context.Context, px, py int) error {
	_, err := x.xdo(ctx, "mousemove", "--sync", strconv.Itoa(px), strconv.Itoa(py), "click", "1")
	return err
}

// ActiveWindowTitle returns the title of the focused top-level window.
func (x *Xdotool) ActiveWindowTitle(ctx context.Context) (string, error) {
	out, err := x.xdo(ctx, "getactivewindow", "getwindowname")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// FocusedWindow returns the id of the window holding keyboard focus. Native
// dialogs such as the save prompt are not always the active window.
func (x *Xdotool) FocusedWindow(ctx context.Context) (string, error) {
	out, err := x.xdo(ctx, "getwindowfocus")
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		return "", fmt.Errorf("xdotool: no focused window")
	}
	return id, nil
}

// KeyToWindow sends keys to a specific window with modifiers cleared.
func (x *Xdotool) KeyToWindow(ctx context.Context, window string, keys ...string) error {
	args := append([]string{"key", "--clearmodifiers", "--window", window}, keys...)
	_, err := x.xdo(ctx, args...)
	return err
}
