// Package capture grabs a screenshot of the primary display as a JPEG thumbnail.
package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/kbinani/screenshot"

	"github.com/savekeeper/savekeeper/pkg/errclass"
	"github.com/savekeeper/savekeeper/pkg/fsutil"
)

// Quality is the JPEG quality of thumbnails.
const Quality = 85

// Grabber returns the current image of the primary display.
type Grabber func() (image.Image, error)

// Screen captures thumbnails.
type Screen struct {
	grab Grabber
}

// New returns a Screen reading the primary display.
func New() *Screen {
	return &Screen{grab: primaryDisplay}
}

// NewWithGrabber returns a Screen using grab as its image source.
func NewWithGrabber(grab Grabber) *Screen {
	return &Screen{grab: grab}
}

func primaryDisplay() (image.Image, error) {
	if screenshot.NumActiveDisplays() < 1 {
		return nil, errclass.ErrNoPrimaryDisplay.WithMessage("no active display found")
	}
	img, err := screenshot.CaptureDisplay(0)
	if err != nil {
		return nil, fmt.Errorf("capture display: %w", err)
	}
	return img, nil
}

// CapturePrimaryDisplay writes a JPEG of the primary display to path, replacing any previous file.
func (s *Screen) CapturePrimaryDisplay(path string) error {
	img, err := s.grab()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: Quality}); err != nil {
		return fmt.Errorf("encode screenshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create screenshot dir: %w", err)
	}
	return fsutil.AtomicWrite(path, buf.Bytes(), 0644)
}

// Remove deletes a leftover screenshot file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove screenshot: %w", err)
	}
	return nil
}
