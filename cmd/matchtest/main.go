// Command matchtest captures the screen once and prints the best score of
// every configured template, whatever the threshold, so thresholds and
// scales can be tuned against the live display.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	"github.com/ibeckermayer/tenshi/internal/config"
	"github.com/ibeckermayer/tenshi/internal/logging"
	"github.com/ibeckermayer/tenshi/internal/screen"
)

func main() {
	logging.Setup("debug")

	cfg, err := config.Load(os.Getenv(config.EnvConfig))
	if err != nil {
		log.Fatal().Err(err).Msg("could not load config")
	}

	templates := append([]string{cfg.ReloadTemplate()}, cfg.ChallengeTemplates()...)

	log.Info().Str("debug_dir", cfg.DebugDir()).Msg("capturing screen...")
	capturer, frame, err := screen.Freeze(screen.DisplayCapturer{})
	if err != nil {
		log.Fatal().Err(err).Msg("capture failed")
	}
	if err := os.MkdirAll(cfg.DebugDir(), 0755); err != nil {
		log.Warn().Err(err).Msg("could not create debug dir")
	} else if err := imaging.Save(frame, filepath.Join(cfg.DebugDir(), "matchtest.png")); err != nil {
		log.Warn().Err(err).Msg("could not save capture")
	}
	matcher := screen.New(capturer)

	thresholds := map[string]float64{cfg.ReloadTemplate(): cfg.Matching.PageLoadThreshold}
	for _, t := range cfg.ChallengeTemplates() {
		thresholds[t] = cfg.Matching.ChallengeThreshold
	}

	for _, tmpl := range templates {
		m, err := matcher.Find(context.Background(), tmpl, screen.Options{
			Threshold: -1,
			Scales:    cfg.Matching.Scales,
		})
		if err != nil {
			log.Fatal().Err(err).Str("template", tmpl).Msg("match failed")
		}
		if m == nil {
			fmt.Printf("%-50s no correlation\n", filepath.Base(tmpl))
			continue
		}
		verdict := "below threshold"
		if m.Score >= thresholds[tmpl] {
			verdict = "MATCH"
		}
		fmt.Printf("%-50s score=%.3f (threshold %.2f, %s) scale=%.2f center=(%d,%d)\n",
			filepath.Base(tmpl), m.Score, thresholds[tmpl], verdict, m.Scale, m.Center.X, m.Center.Y)
	}
}
