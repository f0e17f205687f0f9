package input

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

type recorder struct {
	calls [][]string
	out   map[string]string
	err   error
}

func (r *recorder) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	if r.err != nil {
		return nil, r.err
	}
	return []byte(r.out[args[0]]), nil
}

func TestCommandArguments(t *testing.T) {
	rec := &recorder{}
	x := New("chromium", 20, rec.run)
	ctx := context.Background()

	if err := x.Activate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := x.Key(ctx, "ctrl+l", "ctrl+a"); err != nil {
		t.Fatal(err)
	}
	if err := x.Type(ctx, "https://example.com/-x"); err != nil {
		t.Fatal(err)
	}
	if err := x.MoveClick(ctx, 640, 360); err != nil {
		t.Fatal(err)
	}
	if err := x.KeyToWindow(ctx, "4242", "Return"); err != nil {
		t.Fatal(err)
	}

	expected := [][]string{
		{"xdotool", "search", "--onlyvisible", "--class", "chromium", "windowactivate", "--sync"},
		{"xdotool", "key", "--delay", "20", "ctrl+l", "ctrl+a"},
		{"xdotool", "type", "--delay", "20", "--", "https://example.com/-x"},
		{"xdotool", "mousemove", "--sync", "640", "360", "click", "1"},
		{"xdotool", "key", "--clearmodifiers", "--window", "4242", "Return"},
	}
	if !reflect.DeepEqual(rec.calls, expected) {
		t.Fatalf("unexpected calls:\n got %v\nwant %v", rec.calls, expected)
	}
}

func TestKeyWithNoKeysIsNoop(t *testing.T) {
	rec := &recorder{}
	x := New("chromium", 0, rec.run)
	if err := x.Key(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(rec.calls) != 0 {
		t.Fatalf("expected no calls, got %v", rec.calls)
	}
	if x.KeyDelayMs != 12 {
		t.Fatalf("expected default delay 12, got %d", x.KeyDelayMs)
	}
}

func TestWindowQueries(t *testing.T) {
	rec := &recorder{out: map[string]string{
		"getactivewindow": "Chapter 3 - Some Series - Chromium\n",
		"getwindowfocus":  "  71303175\n",
	}}
	x := New("chromium", 12, rec.run)

	title, err := x.ActiveWindowTitle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if title != "Chapter 3 - Some Series - Chromium" {
		t.Errorf("unexpected title %q", title)
	}

	id, err := x.FocusedWindow(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if id != "71303175" {
		t.Errorf("unexpected window id %q", id)
	}
}

func TestFocusedWindowEmpty(t *testing.T) {
	rec := &recorder{out: map[string]string{}}
	x := New("chromium", 12, rec.run)
	if _, err := x.FocusedWindow(context.Background()); err == nil {
		t.Fatal("expected error for empty window id")
	}
}

func TestRunnerErrorWrapped(t *testing.T) {
	boom := errors.New("exit status 1")
	x := New("chromium", 12, (&recorder{err: boom}).run)

	err := x.Activate(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped runner error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "xdotool:") {
		t.Fatalf("expected xdotool prefix, got %q", err.Error())
	}
}
