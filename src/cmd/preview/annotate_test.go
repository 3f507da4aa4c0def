package main

import (
	"image"
	"image/color"
	"testing"

	"tooltip-ocr/src/capture"
	"tooltip-ocr/src/detector"
)

func TestAnnotate(t *testing.T) {
	f := capture.NewFrame(100, 80, capture.FormatBGRA)
	cands := []detector.Candidate{
		{Box: detector.Box{Left: 10, Top: 10, Width: 30, Height: 20}},
		{Box: detector.Box{Left: 60, Top: 40, Width: 60, Height: 60}},
	}
	img := annotate(f, cands, 0)

	tests := []struct {
		p    image.Point
		want color.RGBA
	}{
		{image.Pt(10, 10), pickColor},
		{image.Pt(39, 29), pickColor},
		{image.Pt(25, 20), color.RGBA{}}, // interior untouched
		{image.Pt(60, 40), boxColor},
		{image.Pt(99, 79), boxColor}, // clipped edge
		{image.Pt(80, 60), color.RGBA{}},
		{image.Pt(5, 5), color.RGBA{}},
	}
	for _, tt := range tests {
		if got := img.RGBAAt(tt.p.X, tt.p.Y); got != tt.want {
			t.Errorf("pixel %v = %v, want %v", tt.p, got, tt.want)
		}
	}
}
