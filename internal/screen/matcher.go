// Package screen locates reference images on the live display using
// multi-scale normalized cross-correlation.
package screen

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

const component = "matcher"

// minTemplateSide is the smallest scaled template edge still worth correlating.
const minTemplateSide = 10

// ErrTemplateUnreadable is returned when a reference image cannot be loaded.
// It is a configuration error, not a transient absence.
var ErrTemplateUnreadable = errors.New("template unreadable")

// Options tunes a single match call.
type Options struct {
	// Threshold is the inclusive minimum correlation score.
	Threshold float64
	// Scales are the template resize factors to try.
	Scales []float64
	// Debug saves every capture into DebugDir.
	Debug    bool
	DebugDir string
}

// DefaultOptions returns threshold 0.7 at scales 0.9, 1.0 and 1.1.
func DefaultOptions() Options {
	return Options{
		Threshold: 0.7,
		Scales:    []float64{0.9, 1.0, 1.1},
	}
}

// Match is the best location of a template on screen.
type Match struct {
	Template string
	Center   image.Point
	Rect     image.Rectangle
	Score    float64
	Scale    float64
}

// Matcher searches screen captures for reference templates.
type Matcher struct {
	capturer Capturer
}

// New creates a Matcher reading frames from capturer.
func New(capturer Capturer) *Matcher {
	return &Matcher{capturer: capturer}
}

// Find looks for a single template. It returns nil, nil when the template is
// not on screen at or above opts.Threshold.
func (m *Matcher) Find(ctx context.Context, template string, opts Options) (*Match, error) {
	return m.FindBest(ctx, []string{template}, opts)
}

// FindBest captures the screen once and returns the highest scoring match
// among templates that clears opts.Threshold.
func (m *Matcher) FindBest(ctx context.Context, templates []string, opts Options) (*Match, error) {
	if len(templates) == 0 {
		return nil, fmt.Errorf("no templates given: %w", ErrTemplateUnreadable)
	}
	if len(opts.Scales) == 0 {
		opts.Scales = DefaultOptions().Scales
	}

	// Load every template before capturing so configuration errors fail fast.
	mats := make([]gocv.Mat, 0, len(templates))
	defer func() {
		for _, mat := range mats {
			mat.Close()
		}
	}()
	for _, path := range templates {
		mat, err := loadTemplate(path)
		if err != nil {
			log.Error().Err(err).Str("component", component).Str("template", path).Msg("template not loaded")
			return nil, err
		}
		mats = append(mats, mat)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame, err := m.capturer.Capture()
	if err != nil {
		return nil, err
	}
	if opts.Debug {
		saveDebug(opts.DebugDir, frame)
	}

	screenMat, err := gocv.ImageGrayToMatGray(toGray(frame))
	if err != nil {
		return nil, fmt.Errorf("convert capture: %w", err)
	}
	defer screenMat.Close()

	var best *Match
	for i, tmpl := range mats {
		found := matchScales(screenMat, tmpl, opts)
		if found == nil {
			continue
		}
		found.Template = templates[i]
		if best == nil || found.Score > best.Score {
			best = found
		}
	}

	if best == nil {
		log.Debug().Str("component", component).Strs("templates", templates).Msg("template not found at any scale")
		return nil, nil
	}

	log.Info().
		Str("component", component).
		Str("template", best.Template).
		Float64("score", best.Score).
		Float64("scale", best.Scale).
		Int("x", best.Center.X).
		Int("y", best.Center.Y).
		Msg("template found")
	return best, nil
}

// matchScales correlates tmpl against screen at each scale and keeps the
// highest score that is at or above the threshold.
func matchScales(screen, tmpl gocv.Mat, opts Options) *Match {
	noMask := gocv.NewMat()
	defer noMask.Close()

	var best *Match
	for _, scale := range opts.Scales {
		w := int(float64(tmpl.Cols()) * scale)
		h := int(float64(tmpl.Rows()) * scale)
		if w < minTemplateSide || h < minTemplateSide {
			log.Debug().Str("component", component).Float64("scale", scale).Msg("scaled template too small, skipping")
			continue
		}
		if w > screen.Cols() || h > screen.Rows() {
			log.Debug().Str("component", component).Float64("scale", scale).Msg("scaled template larger than screen, skipping")
			continue
		}

		resized := gocv.NewMat()
		gocv.Resize(tmpl, &resized, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)

		result := gocv.NewMat()
		gocv.MatchTemplate(screen, resized, &result, gocv.TmCcoeffNormed, noMask)
		_, maxVal, _, maxLoc := gocv.MinMaxLoc(result)

		result.Close()
		resized.Close()

		score := float64(maxVal)
		log.Debug().Str("component", component).Float64("scale", scale).Float64("score", score).Msg("scale scored")

		if score >= opts.Threshold && (best == nil || score > best.Score) {
			best = &Match{
				Center: image.Pt(maxLoc.X+w/2, maxLoc.Y+h/2),
				Rect:   image.Rect(maxLoc.X, maxLoc.Y, maxLoc.X+w, maxLoc.Y+h),
				Score:  score,
				Scale:  scale,
			}
		}
	}
	return best
}

func loadTemplate(path string) (gocv.Mat, error) {
	if _, err := os.Stat(path); err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %s: %v", ErrTemplateUnreadable, path, err)
	}
	mat := gocv.IMRead(path, gocv.IMReadGrayScale)
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, fmt.Errorf("%w: %s: not a decodable image", ErrTemplateUnreadable, path)
	}
	return mat, nil
}
