package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/tenshi/internal/client"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger <url>",
	Short: "Load a URL in the browser and clear its challenge",
	Long: `Ask the daemon to navigate the browser to a URL, click through the
challenge checkbox if one shows up, and harvest the clearance cookies.

Examples:
  tenshi trigger https://toongod.org/
  tenshi trigger https://toongod.org/ --js 'document.title'
  tenshi trigger https://toongod.org/ --wait div.post-title --sleep 2s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		js, _ := cmd.Flags().GetString("js")
		wait, _ := cmd.Flags().GetString("wait")
		sleep, _ := cmd.Flags().GetDuration("sleep")

		ctx, cancel := signalContext()
		defer cancel()

		res, err := apiClient().Trigger(ctx, client.TriggerParams{
			URL:     args[0],
			JS:      js,
			Wait:    wait,
			SleepMs: int(sleep / time.Millisecond),
		})
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var saveImageCmd = &cobra.Command{
	Use:   "save-image <chapter-url> <image-url>",
	Short: "Save one image through the browser's Save dialog",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		slug, _ := cmd.Flags().GetString("slug")

		ctx, cancel := signalContext()
		defer cancel()

		res, err := apiClient().SaveImage(ctx, args[0], args[1], slug)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var saveChapterCmd = &cobra.Command{
	Use:   "save-chapter <chapter-url>",
	Short: "Download every image of a chapter",
	Long: `Download every image of a chapter into <data_dir>/[slug/]<chapter>.

Without --js the images are read from the page HTML with
download.image_selector.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slug, _ := cmd.Flags().GetString("slug")
		js, _ := cmd.Flags().GetString("js")

		ctx, cancel := signalContext()
		defer cancel()

		res, err := apiClient().SaveChapter(ctx, args[0], js, slug)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var imagesCmd = &cobra.Command{
	Use:   "images <chapter>",
	Short: "List the saved images of a chapter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slug, _ := cmd.Flags().GetString("slug")

		ctx, cancel := signalContext()
		defer cancel()

		res, err := apiClient().Images(ctx, slug, args[0])
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs [id]",
	Short: "Show recent automation runs, or one run as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		ctx, cancel := signalContext()
		defer cancel()

		if len(args) == 1 {
			run, err := apiClient().Run(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(run)
		}

		runs, err := apiClient().Runs(ctx, limit)
		if err != nil {
			return err
		}
		for _, r := range runs {
			line := fmt.Sprintf("%s  %-12s %-8s %s  %s", r.StartedAt.Local().Format(time.DateTime), r.Kind, r.Status, r.ID, r.URL)
			if r.Error != "" {
				line += "  (" + r.Error + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	triggerCmd.Flags().String("js", "", "Script to evaluate in a debugging tab after the bypass")
	triggerCmd.Flags().String("wait", "", "Selector to wait for in the debugging tab")
	triggerCmd.Flags().Duration("sleep", 5*time.Second, "Settle time before reading the page")

	saveImageCmd.Flags().String("slug", "", "Series folder under the data directory")

	saveChapterCmd.Flags().String("slug", "", "Series folder under the data directory")
	saveChapterCmd.Flags().String("js", "", "Script returning the image URLs")

	imagesCmd.Flags().String("slug", "", "Series folder under the data directory")

	runsCmd.Flags().Int("limit", 20, "Number of runs to show")
}
