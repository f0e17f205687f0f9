// Package browsertest provides a scripted browser.Driver for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ibeckermayer/tenshi/internal/browser"
	"github.com/ibeckermayer/tenshi/internal/types"
)

// Call is one recorded driver interaction.
type Call struct {
	Method string
	Args   []string
}

func (c Call) String() string {
	return c.Method + "(" + strings.Join(c.Args, ", ") + ")"
}

// Driver replays scripted responses and records every call.
//
// CookieBatches and Titles are consumed in order; the last entry repeats.
type Driver struct {
	mu sync.Mutex

	CookieBatches [][]types.Cookie
	Titles        []string
	// HTML and Results are keyed by visited URL.
	HTML    map[string]string
	Results map[string]json.RawMessage

	// Errs makes the named method fail.
	Errs map[string]error

	// OnCall runs after each call is recorded, outside the lock.
	OnCall func(Call)

	calls []Call
}

var _ browser.Driver = (*Driver)(nil)

// New returns an empty Driver.
func New() *Driver {
	return &Driver{
		HTML:    map[string]string{},
		Results: map[string]json.RawMessage{},
		Errs:    map[string]error{},
	}
}

func (d *Driver) record(method string, args ...string) error {
	d.mu.Lock()
	call := Call{Method: method, Args: args}
	d.calls = append(d.calls, call)
	err := d.Errs[method]
	hook := d.OnCall
	d.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	return err
}

// Calls returns a copy of the recorded calls.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// Methods returns the recorded method names, optionally limited to the given set.
func (d *Driver) Methods(only ...string) []string {
	keep := map[string]bool{}
	for _, m := range only {
		keep[m] = true
	}
	var out []string
	for _, c := range d.Calls() {
		if len(keep) == 0 || keep[c.Method] {
			out = append(out, c.Method)
		}
	}
	return out
}

// Count returns how many times method was called.
func (d *Driver) Count(method string) int {
	n := 0
	for _, c := range d.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (d *Driver) Activate(ctx context.Context) error {
	return d.record("Activate")
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	return d.record("Navigate", url)
}

func (d *Driver) ClickAt(ctx context.Context, x, y int) error {
	return d.record("ClickAt", fmt.Sprint(x), fmt.Sprint(y))
}

func (d *Driver) TypeText(ctx context.Context, text string) error {
	return d.record("TypeText", text)
}

func (d *Driver) PressKeys(ctx context.Context, keys ...string) error {
	return d.record("PressKeys", keys...)
}

func (d *Driver) PressKeysFocused(ctx context.Context, keys ...string) error {
	return d.record("PressKeysFocused", keys...)
}

func (d *Driver) WindowTitle(ctx context.Context) (string, error) {
	if err := d.record("WindowTitle"); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Titles) == 0 {
		return "", nil
	}
	title := d.Titles[0]
	if len(d.Titles) > 1 {
		d.Titles = d.Titles[1:]
	}
	return title, nil
}

func (d *Driver) Cookies(ctx context.Context) ([]types.Cookie, error) {
	if err := d.record("Cookies"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.CookieBatches) == 0 {
		return nil, nil
	}
	batch := d.CookieBatches[0]
	if len(d.CookieBatches) > 1 {
		d.CookieBatches = d.CookieBatches[1:]
	}
	return batch, nil
}

func (d *Driver) Open(ctx context.Context, v browser.Visit) (string, error) {
	if err := d.record("Open", v.URL, v.WaitSelector, fmt.Sprint(v.ScrollPresses)); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	html, ok := d.HTML[v.URL]
	if !ok {
		return "", fmt.Errorf("browsertest: no HTML scripted for %s", v.URL)
	}
	return html, nil
}

func (d *Driver) Evaluate(ctx context.Context, v browser.Visit, script string) (json.RawMessage, error) {
	if err := d.record("Evaluate", v.URL, v.WaitSelector, script); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Results[v.URL], nil
}
