package engine

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
)

// captureName is the file a frame captured at ts is written to.
func captureName(suffix string, ts time.Time) string {
	return fmt.Sprintf("fightscope-%s-%s.png", ts.Format("20060102-150405.000"), suffix)
}

func (e *Engine) captureFrame(img *ebiten.Image, suffix string, ts time.Time) {
	if e.CaptureDir == "" {
		e.logger.Warn().Msg("Frame capture requested but no capture directory is configured")
		return
	}
	if err := os.MkdirAll(e.CaptureDir, 0o755); err != nil {
		e.logger.Error().Err(err).Msg("Error creating capture directory")
		return
	}
	path := filepath.Join(e.CaptureDir, captureName(suffix, ts))

	// Pixels must be read on the render goroutine; encoding can happen later.
	rgba := image.NewRGBA(img.Bounds())
	img.ReadPixels(rgba.Pix)

	go func() {
		if err := writePNG(path, rgba); err != nil {
			e.logger.Error().Err(err).Str("path", path).Msg("Error writing capture")
			return
		}
		e.logger.Info().Str("path", path).Msg("Captured frame")
	}()
}

func writePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create capture file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode capture: %w", err)
	}
	return nil
}
