package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ibeckermayer/tenshi/internal/types"
)

// CookieStore persists harvested clearance cookies as a JSON array.
type CookieStore struct {
	path string
}

// NewCookieStore creates a cookie store at the given path
func NewCookieStore(path string) *CookieStore {
	return &CookieStore{path: path}
}

// Path returns the backing file.
func (cs *CookieStore) Path() string {
	return cs.path
}

// Save persists cookies to disk
func (cs *CookieStore) Save(cookies []types.Cookie) error {
	if err := os.MkdirAll(filepath.Dir(cs.path), 0700); err != nil {
		return err
	}
	if cookies == nil {
		cookies = []types.Cookie{}
	}

	data, err := json.MarshalIndent(cookies, "", "    ")
	if err != nil {
		return err
	}

	tmp := cs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, cs.path)
}

// Load retrieves cookies from disk
func (cs *CookieStore) Load() ([]types.Cookie, error) {
	data, err := os.ReadFile(cs.path)
	if err != nil {
		return nil, err
	}

	var cookies []types.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, err
	}
	return cookies, nil
}

// Clear removes stored cookies. A missing file is not an error.
func (cs *CookieStore) Clear() error {
	if err := os.Remove(cs.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ForHost returns the stored cookies that would be sent to host.
func (cs *CookieStore) ForHost(host string) ([]types.Cookie, error) {
	stored, err := cs.Load()
	if err != nil {
		return nil, err
	}
	return FilterHost(stored, host), nil
}

// FilterHost keeps cookies whose domain matches host or one of its parents.
func FilterHost(cookies []types.Cookie, host string) []types.Cookie {
	host = strings.ToLower(host)
	var out []types.Cookie
	for _, c := range cookies {
		domain := strings.ToLower(strings.TrimPrefix(c.Domain, "."))
		if domain == "" {
			continue
		}
		if host == domain || strings.HasSuffix(host, "."+domain) {
			out = append(out, c)
		}
	}
	return out
}

// HTTPCookies converts cookies for use with a cookie jar. Expired cookies are dropped.
func HTTPCookies(cookies []types.Cookie, now time.Time) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if !c.IsSession() {
			hc.Expires = time.Unix(int64(c.Expires), 0)
			if hc.Expires.Before(now) {
				continue
			}
		}
		out = append(out, hc)
	}
	return out
}

// JarCookies groups unexpired cookies by the URL they should be set for, as
// expected by scraper.NewDownloader.
func JarCookies(cookies []types.Cookie, now time.Time) map[string][]*http.Cookie {
	out := map[string][]*http.Cookie{}
	for _, hc := range HTTPCookies(cookies, now) {
		host := strings.TrimPrefix(hc.Domain, ".")
		if host == "" {
			continue
		}
		scheme := "http"
		if hc.Secure {
			scheme = "https"
		}
		path := hc.Path
		if path == "" {
			path = "/"
		}
		key := scheme + "://" + host + path
		out[key] = append(out[key], hc)
	}
	return out
}
