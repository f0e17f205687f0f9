package screen

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/gift"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
	"github.com/vova616/screenshot"
)

// Capturer grabs the current contents of the display.
type Capturer interface {
	Capture() (image.Image, error)
}

// DisplayCapturer captures the whole primary display.
type DisplayCapturer struct{}

// Capture returns a full-screen capture.
func (DisplayCapturer) Capture() (image.Image, error) {
	img, err := screenshot.CaptureScreen()
	if err != nil {
		return nil, fmt.Errorf("capture screen: %w", err)
	}
	return img, nil
}

// CapturerFunc adapts a function to the Capturer interface.
type CapturerFunc func() (image.Image, error)

func (f CapturerFunc) Capture() (image.Image, error) { return f() }

// Freeze captures once and returns a Capturer that replays that frame, so
// several Find calls score against the same screen.
func Freeze(c Capturer) (Capturer, image.Image, error) {
	img, err := c.Capture()
	if err != nil {
		return nil, nil, err
	}
	return CapturerFunc(func() (image.Image, error) { return img, nil }), img, nil
}

var grayscale = gift.New(gift.Grayscale())

// toGray converts a capture to single-channel intensity.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	dst := image.NewGray(grayscale.Bounds(img.Bounds()))
	grayscale.Draw(dst, img)
	return dst
}

// saveDebug writes a timestamped copy of a capture to dir. Failures are logged only.
func saveDebug(dir string, img image.Image) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "tenshi-screenshots")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("could not create debug screenshot dir")
		return
	}

	name := fmt.Sprintf("screenshot_%s.png", time.Now().Format("20060102-150405.000"))
	path := filepath.Join(dir, name)
	if err := imaging.Save(img, path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not save debug screenshot")
		return
	}
	log.Debug().Str("component", component).Str("path", path).Msg("saved debug screenshot")
}
