package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
)

type PixelFormat int

const (
	FormatBGRA PixelFormat = iota
	FormatBGR
)

func (p PixelFormat) Channels() int {
	if p == FormatBGR {
		return 3
	}
	return 4
}

func (p PixelFormat) String() string {
	if p == FormatBGR {
		return "BGR"
	}
	return "BGRA"
}

var ErrMalformedFrame = errors.New("malformed frame")

// Frame is an owned pixel buffer. Once returned from a capture it is never
// written again, so it may be shared between readers.
type Frame struct {
	Width  int
	Height int
	Stride int
	Format PixelFormat
	Pix    []byte
}

// NewFrame allocates a tightly packed frame.
func NewFrame(w, h int, format PixelFormat) *Frame {
	stride := w * format.Channels()
	return &Frame{Width: w, Height: h, Stride: stride, Format: format, Pix: make([]byte, stride*h)}
}

func (f *Frame) Channels() int { return f.Format.Channels() }

// Validate reports frames that cannot be safely indexed.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil", ErrMalformedFrame)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrMalformedFrame, f.Width, f.Height)
	}
	if f.Stride < f.Width*f.Channels() {
		return fmt.Errorf("%w: stride %d < %d", ErrMalformedFrame, f.Stride, f.Width*f.Channels())
	}
	if len(f.Pix) < f.Stride*(f.Height-1)+f.Width*f.Channels() {
		return fmt.Errorf("%w: buffer %d bytes too short for %dx%d", ErrMalformedFrame, len(f.Pix), f.Width, f.Height)
	}
	return nil
}

// ToBGR drops the alpha channel. BGR frames are returned as a packed copy.
func (f *Frame) ToBGR() *Frame {
	out := NewFrame(f.Width, f.Height, FormatBGR)
	ch := f.Channels()
	for y := 0; y < f.Height; y++ {
		src := f.Pix[y*f.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < f.Width; x++ {
			copy(dst[x*3:x*3+3], src[x*ch:x*ch+3])
		}
	}
	return out
}

// Crop deep-copies r (frame coordinates) after clamping it to the frame.
func (f *Frame) Crop(r image.Rectangle) (*Frame, error) {
	r = r.Intersect(image.Rect(0, 0, f.Width, f.Height))
	if r.Empty() {
		return nil, fmt.Errorf("crop %v outside %dx%d frame", r, f.Width, f.Height)
	}
	out := NewFrame(r.Dx(), r.Dy(), f.Format)
	ch := f.Channels()
	for y := 0; y < out.Height; y++ {
		off := (r.Min.Y+y)*f.Stride + r.Min.X*ch
		copy(out.Pix[y*out.Stride:(y+1)*out.Stride], f.Pix[off:off+out.Stride])
	}
	return out, nil
}

// Image converts to RGBA for encoders and UI.
func (f *Frame) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	ch := f.Channels()
	for y := 0; y < f.Height; y++ {
		src := f.Pix[y*f.Stride:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < f.Width; x++ {
			s := src[x*ch:]
			d := dst[x*4:]
			d[0], d[1], d[2] = s[2], s[1], s[0]
			if ch == 4 {
				d[3] = s[3]
			} else {
				d[3] = 0xff
			}
		}
	}
	return img
}

// PNG encodes the frame.
func (f *Frame) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, f.Image()); err != nil {
		return nil, fmt.Errorf("failed to encode frame as PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// FromImage converts any image into a BGRA frame.
func FromImage(img image.Image) *Frame {
	b := img.Bounds()
	out := NewFrame(b.Dx(), b.Dy(), FormatBGRA)
	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < out.Height; y++ {
			src := rgba.Pix[rgba.PixOffset(b.Min.X, b.Min.Y+y):]
			dst := out.Pix[y*out.Stride:]
			for x := 0; x < out.Width; x++ {
				s := src[x*4:]
				d := dst[x*4:]
				d[0], d[1], d[2], d[3] = s[2], s[1], s[0], s[3]
			}
		}
		return out
	}
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			r, g, bl, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			d := out.Pix[y*out.Stride+x*4:]
			d[0], d[1], d[2], d[3] = byte(bl>>8), byte(g>>8), byte(r>>8), byte(a>>8)
		}
	}
	return out
}

// copyPitched deep-copies rows out of a mapped surface whose row pitch may be
// wider than the visible width.
func copyPitched(src []byte, pitch, w, h int, format PixelFormat) *Frame {
	out := NewFrame(w, h, format)
	for y := 0; y < h; y++ {
		copy(out.Pix[y*out.Stride:(y+1)*out.Stride], src[y*pitch:y*pitch+out.Stride])
	}
	return out
}
