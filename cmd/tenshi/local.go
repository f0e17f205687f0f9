package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	pkgbrowser "github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/tenshi/internal/auth"
	"github.com/ibeckermayer/tenshi/internal/config"
	"github.com/ibeckermayer/tenshi/internal/poll"
	"github.com/ibeckermayer/tenshi/internal/screen"
	"github.com/ibeckermayer/tenshi/internal/store"
	"github.com/ibeckermayer/tenshi/internal/types"
)

var matchCmd = &cobra.Command{
	Use:   "match [template...]",
	Short: "Look for templates on the current screen",
	Long: `Capture the screen and report where each template matches.

With no arguments the configured reload and challenge templates are
checked. Relative names resolve against templates.dir.

Examples:
  tenshi match
  tenshi match cloudflare_verify_click_template_light.png --threshold 0.6
  tenshi match --appear
  tenshi match --wait 20s --debug

--appear polls until a template shows up, for waits.appear_timeout unless
--wait gives another limit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		wait, _ := cmd.Flags().GetDuration("wait")
		appear, _ := cmd.Flags().GetBool("appear")
		debug, _ := cmd.Flags().GetBool("debug")

		templates := make([]string, 0, len(args))
		for _, name := range args {
			templates = append(templates, cfg.TemplatePath(name))
		}
		if len(templates) == 0 {
			templates = append([]string{cfg.ReloadTemplate()}, cfg.ChallengeTemplates()...)
		}

		opts := screen.Options{
			Threshold: threshold,
			Scales:    cfg.Matching.Scales,
			Debug:     debug || cfg.Matching.Debug,
			DebugDir:  cfg.DebugDir(),
		}
		matcher := screen.New(screen.DisplayCapturer{})

		ctx, cancel := signalContext()
		defer cancel()

		if appear || wait > 0 {
			wait = cfg.Waits.AppearWait(wait)
			m, err := matcher.WaitFor(ctx, templates, opts, cfg.Waits.PageLoadInterval.Duration, wait)
			if errors.Is(err, poll.ErrTimeout) {
				return fmt.Errorf("no template appeared within %s", wait)
			}
			if err != nil {
				return err
			}
			printMatch(m.Template, m)
			return nil
		}

		for _, tmpl := range templates {
			m, err := matcher.Find(ctx, tmpl, opts)
			if err != nil {
				return err
			}
			printMatch(tmpl, m)
		}
		return nil
	},
}

func printMatch(template string, m *screen.Match) {
	if m == nil {
		fmt.Printf("%s: not found\n", filepath.Base(template))
		return
	}
	fmt.Printf("%s: score=%.3f scale=%.2f center=(%d,%d)\n", filepath.Base(template), m.Score, m.Scale, m.Center.X, m.Center.Y)
}

var cookiesCmd = &cobra.Command{
	Use:   "cookies [host]",
	Short: "Show harvested cookies",
	Long: `Show the cookies harvested by the last bypass.

With a host only cookies sent to that host are shown. --header prints a
Cookie request header instead of JSON. --clear deletes the cookies file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		header, _ := cmd.Flags().GetBool("header")
		remove, _ := cmd.Flags().GetBool("clear")

		cookieStore := auth.NewCookieStore(cfg.CookiesPath())
		if remove {
			if err := cookieStore.Clear(); err != nil {
				return err
			}
			fmt.Println("Removed " + cookieStore.Path())
			return nil
		}

		var cookies []types.Cookie
		var err error
		if len(args) == 1 {
			cookies, err = cookieStore.ForHost(args[0])
		} else {
			cookies, err = cookieStore.Load()
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", cookieStore.Path(), err)
		}

		if !header {
			return printJSON(cookies)
		}
		parts := make([]string, 0, len(cookies))
		for _, c := range auth.HTTPCookies(cookies, time.Now()) {
			parts = append(parts, (&http.Cookie{Name: c.Name, Value: c.Value}).String())
		}
		fmt.Println("Cookie: " + strings.Join(parts, "; "))
		return nil
	},
}

var snapshotsCmd = &cobra.Command{
	Use:       "snapshots <image_urls|script_result>",
	Short:     "Show the latest saved script result or image URL list",
	Long: `Show the most recent snapshot of a kind. Image URL lists are written by
save-chapter, script results by trigger --js. --file reads a specific
snapshot instead of the latest.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(store.SnapshotImageURLs), string(store.SnapshotScript)},
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := store.SnapshotKind(args[0])
		switch kind {
		case store.SnapshotImageURLs, store.SnapshotScript:
		default:
			return fmt.Errorf("unknown snapshot kind %q", args[0])
		}

		file, _ := cmd.Flags().GetString("file")
		var data json.RawMessage
		var err error
		if file != "" {
			data, err = store.LoadSnapshot[json.RawMessage](file)
		} else {
			data, file, err = store.LoadLatestSnapshot[json.RawMessage](store.NewSnapshots(cfg.SnapshotsDir()), kind)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, file)
		return printJSON(data)
	},
}

var openCmd = &cobra.Command{
	Use:       "open <data|config|cookies>",
	Short:     "Open the data folder, config file or cookies file",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"data", "config", "cookies"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var path string
		switch args[0] {
		case "data":
			path = cfg.Storage.DataDir
			if err := os.MkdirAll(path, 0755); err != nil {
				return err
			}
		case "config":
			if flagConfig != "" {
				path = flagConfig
			} else {
				p, err := config.ConfigPath()
				if err != nil {
					return err
				}
				path = p
			}
		case "cookies":
			path = cfg.CookiesPath()
		default:
			return fmt.Errorf("unknown target %q: want data, config or cookies", args[0])
		}
		return pkgbrowser.OpenFile(path)
	},
}

func init() {
	matchCmd.Flags().Float64("threshold", 0.7, "Minimum correlation score")
	matchCmd.Flags().Duration("wait", 0, "Poll until a template appears, up to this long")
	matchCmd.Flags().Bool("appear", false, "Poll until a template appears")
	matchCmd.Flags().Bool("debug", false, "Save the capture to the debug directory")

	cookiesCmd.Flags().Bool("header", false, "Print a Cookie header")
	snapshotsCmd.Flags().String("file", "", "Snapshot file to read instead of the latest")

	cookiesCmd.Flags().Bool("clear", false, "Delete the harvested cookies")
}
