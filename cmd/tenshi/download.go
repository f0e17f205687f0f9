package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/tenshi/internal/browser"
	"github.com/ibeckermayer/tenshi/internal/client"
)

var downloadCmd = &cobra.Command{
	Use:   "download <series-url> <range>",
	Short: "Download a range of chapters of a series",
	Long: `Clear the challenge for a series, read its chapter list through the
debugging channel, save every chapter in range through the daemon and copy
the images into a local directory.

The range is "start-end" or a single chapter number.

Examples:
  tenshi download https://toongod.org/webtoon/some-series/ 1-10
  tenshi download https://toongod.org/webtoon/some-series/ 12.5 --out ~/comics`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := client.DefaultSeriesOptions()
		opts.OutputDir, _ = cmd.Flags().GetString("out")
		opts.Slug, _ = cmd.Flags().GetString("slug")
		opts.JS, _ = cmd.Flags().GetString("js")
		opts.TitleSelector = cfg.Download.TitleSelector
		opts.ChapterSelector = cfg.Download.ChapterSelector

		cdp := browser.NewCDP(cfg.Browser.RemoteDebugURL, cfg.Browser.TabTimeout.Duration)
		defer cdp.Close()

		ctx, cancel := signalContext()
		defer cancel()

		report, err := client.NewSeries(apiClient(), cdp, opts).Download(ctx, args[0], args[1])
		if report != nil {
			failed := 0
			for _, ch := range report.Chapters {
				if ch.Error != "" {
					failed++
				}
			}
			if printErr := printJSON(report); printErr != nil {
				return printErr
			}
			if err == nil && failed > 0 {
				return fmt.Errorf("%d of %d chapters failed", failed, len(report.Chapters))
			}
		}
		return err
	},
}

func init() {
	downloadCmd.Flags().String("out", "./bin", "Local output directory")
	downloadCmd.Flags().String("slug", "", "Series folder on the daemon (default: last URL segment)")
	downloadCmd.Flags().String("js", "", "Script returning the image URLs of a chapter")
}
