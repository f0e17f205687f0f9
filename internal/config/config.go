package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment overrides applied after the file is read.
const (
	EnvRemoteDebugURL = "TENSHI_REMOTE_DEBUG_URL"
	EnvDataDir        = "TENSHI_DATA_DIR"
	EnvListen         = "TENSHI_LISTEN"
)

// EnvConfig names an alternative config file path.
const EnvConfig = "TENSHI_CONFIG"

// Config holds all application configuration
type Config struct {
	Version   int             `toml:"version"`
	LogLevel  string          `toml:"log_level"`
	Timezone  string          `toml:"timezone"`
	Server    ServerConfig    `toml:"server"`
	Browser   BrowserConfig   `toml:"browser"`
	Templates TemplatesConfig `toml:"templates"`
	Matching  MatchingConfig  `toml:"matching"`
	Waits     WaitsConfig     `toml:"waits"`
	Storage   StorageConfig   `toml:"storage"`
	Download  DownloadConfig  `toml:"download"`
	Refresh   []RefreshJob    `toml:"refresh"`
}

type ServerConfig struct {
	Listen string `toml:"listen"`
	// BaseURL is where CLI clients reach a running daemon.
	BaseURL        string   `toml:"base_url"`
	RequestTimeout Duration `toml:"request_timeout"`
}

type BrowserConfig struct {
	RemoteDebugURL string   `toml:"remote_debug_url"`
	WindowClass    string   `toml:"window_class"`
	KeyDelayMs     int      `toml:"key_delay_ms"`
	TabTimeout     Duration `toml:"tab_timeout"`
}

type TemplatesConfig struct {
	Dir       string   `toml:"dir"`
	Reload    string   `toml:"reload"`
	Challenge []string `toml:"challenge"`
}

type MatchingConfig struct {
	Scales             []float64 `toml:"scales"`
	PageLoadThreshold  float64   `toml:"page_load_threshold"`
	ChallengeThreshold float64   `toml:"challenge_threshold"`
	Debug              bool      `toml:"debug"`
	DebugDir           string    `toml:"debug_dir"`
}

type WaitsConfig struct {
	PageLoadInterval  Duration `toml:"page_load_interval"`
	PageLoadTimeout   Duration `toml:"page_load_timeout"`
	PageLoadFallback  Duration `toml:"page_load_fallback"`
	ChallengeSettle   Duration `toml:"challenge_settle"`
	ChallengeInterval Duration `toml:"challenge_interval"`
	ChallengeTimeout  Duration `toml:"challenge_timeout"`
	PostClickSettle   Duration `toml:"post_click_settle"`
	CookieInterval    Duration `toml:"cookie_interval"`
	CookieTimeout     Duration `toml:"cookie_timeout"`
	AppearTimeout     Duration `toml:"appear_timeout"`
	TitleInterval     Duration `toml:"title_interval"`
	TitleTimeout      Duration `toml:"title_timeout"`
	// DialogDelay paces the save-dialog keystrokes; scroll and confirm
	// steps use fractions and multiples of it.
	DialogDelay Duration `toml:"dialog_delay"`
}

// AppearWait returns d, or AppearTimeout when d is not positive.
func (w WaitsConfig) AppearWait(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return w.AppearTimeout.Duration
}

// StorageConfig paths. Relative CookiesFile and Matching.DebugDir resolve
// against DataDir.
type StorageConfig struct {
	DataDir     string `toml:"data_dir"`
	Database    string `toml:"database"`
	CookiesFile string `toml:"cookies_file"`
}

type DownloadConfig struct {
	// Naming is "source" (URL basename) or "index" (000.jpg, 001.png, ...).
	Naming          string   `toml:"naming"`
	Concurrency     int      `toml:"concurrency"`
	Timeout         Duration `toml:"timeout"`
	UserAgent       string   `toml:"user_agent"`
	ImageSelector   string   `toml:"image_selector"`
	TitleSelector   string   `toml:"title_selector"`
	ChapterSelector string   `toml:"chapter_selector"`
	ScrollPresses   int      `toml:"scroll_presses"`
	ScrollDelay     Duration `toml:"scroll_delay"`
}

// RefreshJob re-runs a trigger on a cron schedule to keep clearance cookies fresh.
type RefreshJob struct {
	Name     string `toml:"name"`
	Schedule string `toml:"schedule"`
	URL      string `toml:"url"`

	// RunOnStart also refreshes once when the daemon starts.
	RunOnStart bool `toml:"run_on_start"`
}

// Duration is a time.Duration written as a string ("20s") in TOML.
type Duration struct {
	time.Duration
}

// D is shorthand for building a Duration.
func D(d time.Duration) Duration { return Duration{d} }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// Default returns a Config with sensible defaults
func Default() *Config {
	dir, err := ConfigDir()
	if err != nil {
		dir = "."
	}
	dataDir := filepath.Join(dir, "data")

	return &Config{
		Version:  1,
		LogLevel: "info",
		Timezone: "Local",
		Server: ServerConfig{
			Listen:         "0.0.0.0:6081",
			BaseURL:        "http://localhost:6081",
			RequestTimeout: D(10 * time.Minute),
		},
		Browser: BrowserConfig{
			RemoteDebugURL: "http://localhost:6082",
			WindowClass:    "Brave-browser",
			KeyDelayMs:     10,
			TabTimeout:     D(60 * time.Second),
		},
		Templates: TemplatesConfig{
			Dir:    filepath.Join(dir, "templates"),
			Reload: "reload-button-template.png",
			// Every listed template must exist; add a dark variant here
			// only when the file is shipped alongside.
			Challenge: []string{"cloudflare_verify_click_template_light.png"},
		},
		Matching: MatchingConfig{
			Scales:             []float64{0.9, 1.0, 1.1},
			PageLoadThreshold:  0.75,
			ChallengeThreshold: 0.7,
			DebugDir:           "screenshots",
		},
		Waits: WaitsConfig{
			PageLoadInterval:  D(500 * time.Millisecond),
			PageLoadTimeout:   D(20 * time.Second),
			PageLoadFallback:  D(5 * time.Second),
			ChallengeSettle:   D(5 * time.Second),
			ChallengeInterval: D(2 * time.Second),
			ChallengeTimeout:  D(20 * time.Second),
			PostClickSettle:   D(5 * time.Second),
			CookieInterval:    D(3 * time.Second),
			CookieTimeout:     D(60 * time.Second),
			AppearTimeout:     D(30 * time.Second),
			TitleInterval:     D(200 * time.Millisecond),
			TitleTimeout:      D(5 * time.Second),
			DialogDelay:       D(time.Second),
		},
		Storage: StorageConfig{
			DataDir:     dataDir,
			Database:    filepath.Join(dir, "tenshi.db"),
			CookiesFile: "cloudflare_cookies.json",
		},
		Download: DownloadConfig{
			Naming:          "source",
			Concurrency:     4,
			Timeout:         D(60 * time.Second),
			UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			ImageSelector:   "div.reading-content img.wp-manga-chapter-img",
			TitleSelector:   "div.post-title h1",
			ChapterSelector: "ul.main.version-chap li.wp-manga-chapter",
			ScrollPresses:   20,
			ScrollDelay:     D(100 * time.Millisecond),
		},
		Refresh: []RefreshJob{},
	}
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "tenshi"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads config from path, or from ConfigPath when path is empty.
// A missing file is created with defaults. Keys absent from the file keep
// their default values. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvRemoteDebugURL); v != "" {
		c.Browser.RemoteDebugURL = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.Server.Listen = v
	}
}

// Validate rejects settings the automation cannot run with.
func (c *Config) Validate() error {
	for _, th := range []float64{c.Matching.PageLoadThreshold, c.Matching.ChallengeThreshold} {
		if th < 0 || th > 1 {
			return fmt.Errorf("matching threshold %v outside [0,1]", th)
		}
	}
	if len(c.Matching.Scales) == 0 {
		return errors.New("matching.scales is empty")
	}
	for _, s := range c.Matching.Scales {
		if s <= 0 {
			return fmt.Errorf("matching scale %v must be positive", s)
		}
	}
	switch c.Download.Naming {
	case "source", "index":
	default:
		return fmt.Errorf("download.naming must be \"source\" or \"index\", got %q", c.Download.Naming)
	}
	if c.Download.Concurrency < 1 {
		return fmt.Errorf("download.concurrency must be at least 1, got %d", c.Download.Concurrency)
	}
	if c.Storage.DataDir == "" {
		return errors.New("storage.data_dir is empty")
	}
	for i, job := range c.Refresh {
		if job.Schedule == "" || job.URL == "" {
			return fmt.Errorf("refresh[%d]: schedule and url are required", i)
		}
	}
	return nil
}

// TemplatePath resolves a template file name against the templates directory.
func (c *Config) TemplatePath(name string) string {
	if filepath.IsAbs(name) || c.Templates.Dir == "" {
		return name
	}
	return filepath.Join(c.Templates.Dir, name)
}

// ReloadTemplate is the page-load indicator template path.
func (c *Config) ReloadTemplate() string {
	return c.TemplatePath(c.Templates.Reload)
}

// ChallengeTemplates are the challenge checkbox variants, resolved.
func (c *Config) ChallengeTemplates() []string {
	paths := make([]string, 0, len(c.Templates.Challenge))
	for _, name := range c.Templates.Challenge {
		paths = append(paths, c.TemplatePath(name))
	}
	return paths
}

// DataPath resolves a path relative to the data directory.
func (c *Config) DataPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Storage.DataDir, name)
}

// CookiesPath is where harvested cookies are written.
func (c *Config) CookiesPath() string {
	return c.DataPath(c.Storage.CookiesFile)
}

// SnapshotsDir is where script results and image URL lists are kept.
func (c *Config) SnapshotsDir() string {
	return c.DataPath(".snapshots")
}

// DebugDir is where debug screen captures are saved.
func (c *Config) DebugDir() string {
	return c.DataPath(c.Matching.DebugDir)
}

// Save writes config to path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}
