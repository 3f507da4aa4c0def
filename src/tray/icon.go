package tray

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
)

const iconSize = 32

// Icon returns the tray icon as an ICO holding one PNG image: a tooltip frame
// with three text lines.
func Icon() []byte {
	img := image.NewNRGBA(image.Rect(0, 0, iconSize, iconSize))
	border := color.NRGBA{0xc8, 0x9b, 0x3c, 0xff}
	fill := color.NRGBA{0x1e, 0x1a, 0x16, 0xf0}
	text := color.NRGBA{0xe8, 0xe0, 0xd0, 0xff}
	for y := 3; y < iconSize-3; y++ {
		for x := 3; x < iconSize-3; x++ {
			c := fill
			if x < 5 || x >= iconSize-5 || y < 5 || y >= iconSize-5 {
				c = border
			}
			img.SetNRGBA(x, y, c)
		}
	}
	for i, w := range []int{16, 20, 12} {
		y := 9 + i*5
		for x := 8; x < 8+w; x++ {
			img.SetNRGBA(x, y, text)
			img.SetNRGBA(x, y+1, text)
		}
	}

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil
	}
	return wrapICO(pngBuf.Bytes(), iconSize)
}

// wrapICO builds a single-entry ICO container around PNG data.
func wrapICO(pngData []byte, size int) []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian
	binary.Write(&buf, le, [3]uint16{0, 1, 1}) // reserved, type icon, count
	binary.Write(&buf, le, struct {
		W, H, Colors, Reserved uint8
		Planes, BPP            uint16
		Size, Offset           uint32
	}{uint8(size), uint8(size), 0, 0, 1, 32, uint32(len(pngData)), 6 + 16})
	buf.Write(pngData)
	return buf.Bytes()
}
