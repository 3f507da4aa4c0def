package capture

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestToBGRDropsAlpha(t *testing.T) {
	f := NewFrame(2, 1, FormatBGRA)
	copy(f.Pix, []byte{1, 2, 3, 255, 4, 5, 6, 128})
	got := f.ToBGR()
	if got.Channels() != 3 || got.Format != FormatBGR {
		t.Fatalf("channels = %d format = %v", got.Channels(), got.Format)
	}
	want := []byte{1, 2, 3, 4, 5, 6}
	if string(got.Pix) != string(want) {
		t.Errorf("pix = %v, want %v", got.Pix, want)
	}
}

func TestToBGRHonoursStride(t *testing.T) {
	f := &Frame{Width: 1, Height: 2, Stride: 8, Format: FormatBGRA, Pix: []byte{
		1, 2, 3, 0, 9, 9, 9, 9,
		4, 5, 6, 0, 9, 9, 9, 9,
	}}
	got := f.ToBGR()
	if string(got.Pix) != string([]byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("pix = %v", got.Pix)
	}
}

func TestCropClampsAndCopies(t *testing.T) {
	f := NewFrame(4, 4, FormatBGR)
	for i := range f.Pix {
		f.Pix[i] = byte(i)
	}
	c, err := f.Crop(image.Rect(2, 2, 10, 10))
	if err != nil {
		t.Fatal(err)
	}
	if c.Width != 2 || c.Height != 2 {
		t.Fatalf("crop %dx%d, want 2x2", c.Width, c.Height)
	}
	if c.Pix[0] != f.Pix[2*f.Stride+2*3] {
		t.Errorf("first pixel mismatch")
	}
	c.Pix[0] = 0xEE
	if f.Pix[2*f.Stride+2*3] == 0xEE {
		t.Error("crop shares memory with source")
	}
	if _, err := f.Crop(image.Rect(5, 5, 6, 6)); err == nil {
		t.Error("expected error for crop outside frame")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		f    *Frame
		ok   bool
	}{
		{"nil", nil, false},
		{"zero", &Frame{Format: FormatBGRA}, false},
		{"short", &Frame{Width: 2, Height: 2, Stride: 8, Pix: make([]byte, 10)}, false},
		{"good", NewFrame(3, 3, FormatBGR), true},
	}
	for _, tt := range tests {
		err := tt.f.Validate()
		if (err == nil) != tt.ok {
			t.Errorf("%s: Validate() = %v", tt.name, err)
		}
		if err != nil && !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("%s: error %v is not ErrMalformedFrame", tt.name, err)
		}
	}
}

func TestFromImageAndBack(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.SetRGBA(1, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	f := FromImage(img)
	px := f.Pix[4:8]
	if px[0] != 30 || px[1] != 20 || px[2] != 10 || px[3] != 255 {
		t.Errorf("BGRA = %v", px)
	}
	if got := f.Image().RGBAAt(1, 0); got != (color.RGBA{R: 10, G: 20, B: 30, A: 255}) {
		t.Errorf("Image() = %v", got)
	}
}

func TestFromImageSubImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.SetRGBA(2, 3, color.RGBA{R: 1, G: 2, B: 3, A: 4})
	sub := img.SubImage(image.Rect(2, 3, 4, 4))
	f := FromImage(sub)
	if f.Width != 2 || f.Height != 1 {
		t.Fatalf("size %dx%d", f.Width, f.Height)
	}
	if f.Pix[0] != 3 || f.Pix[2] != 1 {
		t.Errorf("pix = %v", f.Pix[:4])
	}
}

func TestFromImageGray(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 1, 1))
	g.Pix[0] = 200
	f := FromImage(g)
	if f.Pix[0] != 200 || f.Pix[1] != 200 || f.Pix[2] != 200 || f.Pix[3] != 255 {
		t.Errorf("pix = %v", f.Pix)
	}
}
