package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/tenshi/internal/client"
	"github.com/ibeckermayer/tenshi/internal/config"
	"github.com/ibeckermayer/tenshi/internal/logging"
)

var (
	// Global flags
	flagConfig   string
	flagLogLevel string
	flagServer   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "tenshi",
	Short: "tenshi - challenge bypass and chapter downloads through a real browser",
	Long: `tenshi drives a desktop browser past interstitial challenges and saves
chapter images, either in-process or through a running daemon.

Quick start:
  tenshi serve                                     # Run the HTTP daemon
  tenshi trigger https://toongod.org/              # Clear the challenge, harvest cookies
  tenshi save-chapter <chapter-url> --slug series  # Download one chapter
  tenshi images chapter-1 --slug series            # List saved images
  tenshi download <series-url> 1-5                 # Download a chapter range locally
  tenshi match                                     # Check the templates against the screen`,
	// Silence usage and errors - main prints the error
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := flagConfig
		if path == "" {
			path = os.Getenv(config.EnvConfig)
		}
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded

		level := cfg.LogLevel
		if flagLogLevel != "" {
			level = flagLogLevel
		}
		return logging.Setup(level)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: user config dir)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "Daemon base URL (default: server.base_url)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(saveImageCmd)
	rootCmd.AddCommand(saveChapterCmd)
	rootCmd.AddCommand(imagesCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(cookiesCmd)
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(openCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func apiClient() *client.Client {
	base := flagServer
	if base == "" {
		base = cfg.Server.BaseURL
	}
	return client.New(base, cfg.Server.RequestTimeout.Duration)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
