package main

import (
	"github.com/spf13/cobra"

	"github.com/ibeckermayer/tenshi/internal/daemon"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP daemon",
	Long: `Run the HTTP daemon: the automation API plus any [[refresh]] jobs.

The browser must already be running with remote debugging enabled on
browser.remote_debug_url, on the display this process can reach.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Server.Listen = listen
		}

		d, err := daemon.New(cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		ctx, cancel := signalContext()
		defer cancel()
		return d.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address (default: server.listen)")
}
