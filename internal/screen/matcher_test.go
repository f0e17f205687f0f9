package screen

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ibeckermayer/tenshi/internal/poll"
)

const (
	screenW = 320
	screenH = 200
)

// blockPattern fills a w x h gray image with random 4px blocks.
func blockPattern(seed int64, w, h int) *image.Gray {
	r := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for by := 0; by < h; by += 4 {
		for bx := 0; bx < w; bx += 4 {
			v := uint8(r.Intn(256))
			for y := by; y < by+4 && y < h; y++ {
				for x := bx; x < bx+4 && x < w; x++ {
					img.SetGray(x, y, color.Gray{Y: v})
				}
			}
		}
	}
	return img
}

// noiseScreen returns a pixel noise background, optionally with patch pasted at at.
func noiseScreen(patch *image.Gray, at image.Point) *image.Gray {
	r := rand.New(rand.NewSource(1))
	img := image.NewGray(image.Rect(0, 0, screenW, screenH))
	for i := range img.Pix {
		img.Pix[i] = uint8(r.Intn(256))
	}
	if patch != nil {
		b := patch.Bounds()
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				img.SetGray(at.X+x, at.Y+y, patch.GrayAt(x, y))
			}
		}
	}
	return img
}

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", name, err)
	}
	return path
}

func staticCapturer(img image.Image) Capturer {
	return CapturerFunc(func() (image.Image, error) { return img, nil })
}

func exactOptions(threshold float64) Options {
	return Options{Threshold: threshold, Scales: []float64{1.0}}
}

func TestFindLocatesEmbeddedTemplate(t *testing.T) {
	dir := t.TempDir()
	patch := blockPattern(7, 40, 40)
	tmpl := writePNG(t, dir, "button.png", patch)
	m := New(staticCapturer(noiseScreen(patch, image.Pt(100, 60))))

	match, err := m.Find(context.Background(), tmpl, exactOptions(0.9))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match == nil {
		t.Fatal("expected a match")
	}
	if match.Center != image.Pt(120, 80) {
		t.Errorf("expected center (120,80), got %v", match.Center)
	}
	if match.Rect != image.Rect(100, 60, 140, 100) {
		t.Errorf("unexpected rect %v", match.Rect)
	}
	if match.Score < 0.99 {
		t.Errorf("expected near-perfect score, got %f", match.Score)
	}
	if match.Template != tmpl {
		t.Errorf("expected template %s, got %s", tmpl, match.Template)
	}
}

func TestFindDefaultScalesPrefersNativeSize(t *testing.T) {
	dir := t.TempDir()
	patch := blockPattern(7, 40, 40)
	tmpl := writePNG(t, dir, "button.png", patch)
	m := New(staticCapturer(noiseScreen(patch, image.Pt(100, 60))))

	match, err := m.Find(context.Background(), tmpl, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match == nil {
		t.Fatal("expected a match")
	}
	if match.Scale != 1.0 {
		t.Errorf("expected scale 1.0 to win, got %v", match.Scale)
	}
}

func TestFindAbsentTemplate(t *testing.T) {
	dir := t.TempDir()
	tmpl := writePNG(t, dir, "absent.png", blockPattern(99, 40, 40))
	m := New(staticCapturer(noiseScreen(blockPattern(7, 40, 40), image.Pt(100, 60))))

	for _, threshold := range []float64{0.7, 0.9} {
		match, err := m.Find(context.Background(), tmpl, exactOptions(threshold))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if match != nil {
			t.Errorf("threshold %v: expected no match, got score %f", threshold, match.Score)
		}
	}
}

func TestFindThresholdAboveOneNeverMatches(t *testing.T) {
	dir := t.TempDir()
	patch := blockPattern(7, 40, 40)
	tmpl := writePNG(t, dir, "button.png", patch)
	m := New(staticCapturer(noiseScreen(patch, image.Pt(100, 60))))

	match, err := m.Find(context.Background(), tmpl, exactOptions(1.01))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match != nil {
		t.Fatalf("expected no match above 1.0, got %f", match.Score)
	}
}

func TestFindSkipsDegenerateScales(t *testing.T) {
	dir := t.TempDir()
	patch := blockPattern(7, 40, 40)
	tmpl := writePNG(t, dir, "button.png", patch)
	m := New(staticCapturer(noiseScreen(patch, image.Pt(100, 60))))

	// 0.05 shrinks below the minimum side; 1.0 still matches.
	match, err := m.Find(context.Background(), tmpl, Options{Threshold: 0.9, Scales: []float64{0.05, 1.0}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match == nil || match.Scale != 1.0 {
		t.Fatalf("expected match at scale 1.0, got %+v", match)
	}

	// Every scale larger than the screen: nothing to correlate.
	match, err = m.Find(context.Background(), tmpl, Options{Threshold: 0.1, Scales: []float64{10}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match != nil {
		t.Fatalf("expected no match, got %+v", match)
	}
}

func TestFindUnreadableTemplate(t *testing.T) {
	dir := t.TempDir()
	m := New(staticCapturer(noiseScreen(nil, image.Point{})))

	_, err := m.Find(context.Background(), filepath.Join(dir, "missing.png"), DefaultOptions())
	if !errors.Is(err, ErrTemplateUnreadable) {
		t.Fatalf("expected ErrTemplateUnreadable for missing file, got %v", err)
	}

	garbage := filepath.Join(dir, "garbage.png")
	if err := os.WriteFile(garbage, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = m.Find(context.Background(), garbage, DefaultOptions())
	if !errors.Is(err, ErrTemplateUnreadable) {
		t.Fatalf("expected ErrTemplateUnreadable for garbage file, got %v", err)
	}
}

func TestFindConvertsColorCaptures(t *testing.T) {
	dir := t.TempDir()
	patch := blockPattern(7, 40, 40)
	tmpl := writePNG(t, dir, "button.png", patch)

	gray := noiseScreen(patch, image.Pt(30, 40))
	rgba := image.NewRGBA(gray.Bounds())
	for y := 0; y < screenH; y++ {
		for x := 0; x < screenW; x++ {
			v := gray.GrayAt(x, y).Y
			rgba.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	m := New(staticCapturer(rgba))

	match, err := m.Find(context.Background(), tmpl, exactOptions(0.95))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match == nil || match.Center != image.Pt(50, 60) {
		t.Fatalf("expected center (50,60), got %+v", match)
	}
}

func TestFindBestPicksHighestScore(t *testing.T) {
	dir := t.TempDir()
	patch := blockPattern(7, 40, 40)
	exact := writePNG(t, dir, "exact.png", patch)

	// Noisy 32x32 crop of the same patch: still matches, but worse.
	r := rand.New(rand.NewSource(5))
	noisy := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			v := int(patch.GrayAt(x, y).Y) + r.Intn(81) - 40
			noisy.SetGray(x, y, color.Gray{Y: uint8(max(0, min(255, v)))})
		}
	}
	degraded := writePNG(t, dir, "degraded.png", noisy)

	m := New(staticCapturer(noiseScreen(patch, image.Pt(100, 60))))

	match, err := m.FindBest(context.Background(), []string{degraded, exact}, exactOptions(0.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match == nil {
		t.Fatal("expected a match")
	}
	if match.Template != exact {
		t.Errorf("expected exact template to win, got %s (score %f)", match.Template, match.Score)
	}
	if match.Center != image.Pt(120, 80) {
		t.Errorf("expected center (120,80), got %v", match.Center)
	}
}

func TestFindBestUnreadableFailsBeforeCapture(t *testing.T) {
	dir := t.TempDir()
	good := writePNG(t, dir, "good.png", blockPattern(7, 40, 40))

	var captures atomic.Int32
	m := New(CapturerFunc(func() (image.Image, error) {
		captures.Add(1)
		return noiseScreen(nil, image.Point{}), nil
	}))

	_, err := m.FindBest(context.Background(), []string{good, filepath.Join(dir, "nope.png")}, DefaultOptions())
	if !errors.Is(err, ErrTemplateUnreadable) {
		t.Fatalf("expected ErrTemplateUnreadable, got %v", err)
	}
	if captures.Load() != 0 {
		t.Fatalf("expected no capture, got %d", captures.Load())
	}
}

func TestFindSavesDebugCapture(t *testing.T) {
	dir := t.TempDir()
	debugDir := filepath.Join(dir, "debug")
	tmpl := writePNG(t, dir, "button.png", blockPattern(7, 40, 40))
	m := New(staticCapturer(noiseScreen(nil, image.Point{})))

	opts := exactOptions(0.9)
	opts.Debug = true
	opts.DebugDir = debugDir
	if _, err := m.Find(context.Background(), tmpl, opts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := os.ReadDir(debugDir)
	if err != nil {
		t.Fatalf("read debug dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one debug capture, got %d", len(entries))
	}
}

// sequenceCapturer shows the patch only on calls for which visible returns true.
func sequenceCapturer(patch *image.Gray, visible func(call int32) bool) (Capturer, *atomic.Int32) {
	var calls atomic.Int32
	with := noiseScreen(patch, image.Pt(100, 60))
	without := noiseScreen(nil, image.Point{})
	return CapturerFunc(func() (image.Image, error) {
		n := calls.Add(1)
		if visible(n) {
			return with, nil
		}
		return without, nil
	}), &calls
}

func TestWaitForAppears(t *testing.T) {
	dir := t.TempDir()
	patch := blockPattern(7, 40, 40)
	tmpl := writePNG(t, dir, "button.png", patch)
	capturer, calls := sequenceCapturer(patch, func(n int32) bool { return n >= 3 })
	m := New(capturer)

	match, err := m.WaitFor(context.Background(), []string{tmpl}, exactOptions(0.9), 10*time.Millisecond, 2*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match == nil || match.Center != image.Pt(120, 80) {
		t.Fatalf("unexpected match %+v", match)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 captures, got %d", calls.Load())
	}
}

func TestWaitForTimesOut(t *testing.T) {
	dir := t.TempDir()
	patch := blockPattern(7, 40, 40)
	tmpl := writePNG(t, dir, "button.png", patch)
	capturer, _ := sequenceCapturer(patch, func(int32) bool { return false })
	m := New(capturer)

	_, err := m.WaitFor(context.Background(), []string{tmpl}, exactOptions(0.9), 10*time.Millisecond, 50*time.Millisecond)
	if !errors.Is(err, poll.ErrTimeout) {
		t.Fatalf("expected poll.ErrTimeout, got %v", err)
	}
}

func TestWaitGoneDisappears(t *testing.T) {
	dir := t.TempDir()
	patch := blockPattern(7, 40, 40)
	tmpl := writePNG(t, dir, "challenge.png", patch)
	capturer, calls := sequenceCapturer(patch, func(n int32) bool { return n < 3 })
	m := New(capturer)

	if err := m.WaitGone(context.Background(), []string{tmpl}, exactOptions(0.9), 10*time.Millisecond, 2*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 captures, got %d", calls.Load())
	}
}

func TestWaitGoneTimesOut(t *testing.T) {
	dir := t.TempDir()
	patch := blockPattern(7, 40, 40)
	tmpl := writePNG(t, dir, "challenge.png", patch)
	capturer, _ := sequenceCapturer(patch, func(int32) bool { return true })
	m := New(capturer)

	err := m.WaitGone(context.Background(), []string{tmpl}, exactOptions(0.9), 10*time.Millisecond, 50*time.Millisecond)
	if !errors.Is(err, poll.ErrTimeout) {
		t.Fatalf("expected poll.ErrTimeout, got %v", err)
	}
}

func TestWaitForCaptureErrorAborts(t *testing.T) {
	dir := t.TempDir()
	tmpl := writePNG(t, dir, "button.png", blockPattern(7, 40, 40))
	boom := errors.New("display gone")
	m := New(CapturerFunc(func() (image.Image, error) { return nil, boom }))

	_, err := m.WaitFor(context.Background(), []string{tmpl}, exactOptions(0.9), 10*time.Millisecond, time.Second)
	if !errors.Is(err, boom) {
		t.Fatalf("expected capture error, got %v", err)
	}
}

func TestFreezeCapturesOnce(t *testing.T) {
	dir := t.TempDir()
	patch := blockPattern(7, 40, 40)
	tmpl := writePNG(t, dir, "button.png", patch)
	other := writePNG(t, dir, "other.png", blockPattern(3, 40, 40))

	screenImg := noiseScreen(patch, image.Pt(100, 60))
	captures := 0
	frozen, frame, err := Freeze(CapturerFunc(func() (image.Image, error) {
		captures++
		return screenImg, nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	if frame != screenImg {
		t.Error("expected the captured frame back")
	}

	m := New(frozen)
	for _, path := range []string{tmpl, other, tmpl} {
		if _, err := m.Find(context.Background(), path, exactOptions(-1)); err != nil {
			t.Fatalf("Find %s: %v", path, err)
		}
	}
	if captures != 1 {
		t.Errorf("expected a single capture, got %d", captures)
	}
}
