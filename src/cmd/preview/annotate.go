package main

import (
	"image"
	"image/color"
	"image/draw"

	"tooltip-ocr/src/capture"
	"tooltip-ocr/src/detector"
)

var (
	boxColor  = color.RGBA{0x3c, 0xd2, 0x5a, 0xff}
	pickColor = color.RGBA{0xff, 0xc8, 0x28, 0xff}
)

// annotate renders the frame with every candidate outlined. The candidate at
// index pick, if any, gets its own color.
func annotate(f *capture.Frame, cands []detector.Candidate, pick int) *image.RGBA {
	img := f.Image()
	for i, c := range cands {
		col := boxColor
		if i == pick {
			col = pickColor
		}
		outline(img, c.Rect().Intersect(img.Bounds()), 2, col)
	}
	return img
}

func outline(img draw.Image, r image.Rectangle, width int, c color.Color) {
	if r.Empty() {
		return
	}
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+width),
		image.Rect(r.Min.X, r.Max.Y-width, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+width, r.Max.Y),
		image.Rect(r.Max.X-width, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}
