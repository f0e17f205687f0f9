package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/rs/zerolog/log"

	"github.com/ibeckermayer/tenshi/internal/types"
)

// CDP is a lazily connected remote debugging session to the desktop browser.
type CDP struct {
	debugURL   string
	tabTimeout time.Duration
	client     *http.Client

	mu          sync.Mutex
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewCDP returns a session for the browser listening at debugURL
// (e.g. http://localhost:6082). Nothing is dialled until first use.
func NewCDP(debugURL string, tabTimeout time.Duration) *CDP {
	if tabTimeout <= 0 {
		tabTimeout = 60 * time.Second
	}
	return &CDP{
		debugURL:   strings.TrimRight(debugURL, "/"),
		tabTimeout: tabTimeout,
		client:     &http.Client{Timeout: 5 * time.Second},
	}
}

// WebSocketURL asks the browser for its debugger endpoint.
func (c *CDP) WebSocketURL(ctx context.Context) (string, error) {
	if strings.HasPrefix(c.debugURL, "ws://") || strings.HasPrefix(c.debugURL, "wss://") {
		return c.debugURL, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.debugURL+"/json/version", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("json/version: unexpected status %d", resp.StatusCode)
	}

	var data struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("json/version: %w", err)
	}
	if data.WebSocketDebuggerURL == "" {
		return "", errors.New("json/version: empty webSocketDebuggerUrl")
	}
	return data.WebSocketDebuggerURL, nil
}

// ensureConnected returns the session context, reconnecting when stale.
func (c *CDP) ensureConnected(ctx context.Context) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx != nil {
		err := chromedp.Run(c.ctx)
		if err == nil {
			return c.ctx, nil
		}
		log.Warn().Err(err).Str("component", "cdp").Msg("stale debugging session, reconnecting")
		c.close()
	}

	wsURL, err := c.WebSocketURL(ctx)
	if err != nil {
		return nil, fmt.Errorf("remote debugging not available at %s: %w", c.debugURL, err)
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), wsURL)
	sessCtx, cancel := chromedp.NewContext(allocCtx)
	c.allocCancel = allocCancel
	c.ctx = sessCtx
	c.cancel = cancel

	if err := chromedp.Run(sessCtx); err != nil {
		c.close()
		return nil, fmt.Errorf("attach to browser: %w", err)
	}

	log.Info().Str("component", "cdp").Str("ws", wsURL).Msg("connected to browser")
	return sessCtx, nil
}

func (c *CDP) close() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.allocCancel != nil {
		c.allocCancel()
		c.allocCancel = nil
	}
	c.ctx = nil
}

// Close drops the session. The browser itself keeps running.
func (c *CDP) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.close()
}

// Cookies returns all cookies of the browser profile.
func (c *CDP) Cookies(ctx context.Context) ([]types.Cookie, error) {
	sess, err := c.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}

	var raw []*network.Cookie
	err = chromedp.Run(sess,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			raw, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}

	cookies := make([]types.Cookie, 0, len(raw))
	for _, rc := range raw {
		cookies = append(cookies, types.CookieFromNetwork(rc))
	}
	return cookies, nil
}

// withTab runs actions after loading v in a new tab that is closed afterwards.
func (c *CDP) withTab(ctx context.Context, v Visit, tail ...chromedp.Action) error {
	sess, err := c.ensureConnected(ctx)
	if err != nil {
		return err
	}

	tabCtx, cancel := chromedp.NewContext(sess)
	defer cancel()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, c.tabTimeout)
	defer cancelTimeout()

	// Stop the tab when the caller gives up.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	actions := []chromedp.Action{chromedp.Navigate(v.URL)}
	if strings.TrimSpace(v.WaitSelector) != "" {
		actions = append(actions, chromedp.WaitVisible(v.WaitSelector, chromedp.ByQuery))
	}
	for i := 0; i < v.ScrollPresses; i++ {
		actions = append(actions, chromedp.KeyEvent(kb.End))
		if v.ScrollDelay > 0 {
			actions = append(actions, chromedp.Sleep(v.ScrollDelay))
		}
	}
	if v.Sleep > 0 {
		actions = append(actions, chromedp.Sleep(v.Sleep))
	}
	actions = append(actions, tail...)

	log.Debug().Str("component", "cdp").Str("url", v.URL).Str("wait", v.WaitSelector).Int("scrolls", v.ScrollPresses).Msg("opening tab")
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return fmt.Errorf("tab %s: %w", v.URL, err)
	}
	return nil
}

// Open loads v and returns the document HTML.
func (c *CDP) Open(ctx context.Context, v Visit) (string, error) {
	var html string
	if err := c.withTab(ctx, v, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Evaluate loads v and runs script, returning the raw JSON result.
func (c *CDP) Evaluate(ctx context.Context, v Visit, script string) (json.RawMessage, error) {
	var raw []byte
	err := c.withTab(ctx, v, chromedp.Evaluate(script, &raw))
	if errors.Is(err, chromedp.ErrJSUndefined) || errors.Is(err, chromedp.ErrJSNull) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}
