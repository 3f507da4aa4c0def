package capture

import (
	"context"
	"fmt"
	"image"

	"github.com/kbinani/screenshot"

	"tooltip-ocr/src/window"
)

// Grabber copies a desktop rectangle.
type Grabber func(r image.Rectangle) (*image.RGBA, error)

// PixelCopySource blits the window's screen rectangle. It sees whatever is on
// screen, so overlapping windows end up in the frame.
type PixelCopySource struct {
	grab Grabber
}

func NewPixelCopySource(grab Grabber) *PixelCopySource {
	if grab == nil {
		grab = screenshot.CaptureRect
	}
	return &PixelCopySource{grab: grab}
}

func (s *PixelCopySource) Method() Method { return MethodPixelCopy }

func (s *PixelCopySource) Capture(_ context.Context, win window.Info) (*Frame, error) {
	area := Area(win)
	if area.Empty() {
		return nil, fmt.Errorf("invalid region dimensions: width=%d, height=%d", area.Width, area.Height)
	}
	img, err := s.grab(rect(area))
	if err != nil {
		return nil, fmt.Errorf("failed to capture region: %w", err)
	}
	return FromImage(img), nil
}

func (s *PixelCopySource) Close() error { return nil }
