// Package ocr reads the text of a detected tooltip.
package ocr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"strings"
	"sync"

	"tooltip-ocr/src/capture"
)

// Trim is the border removed from every side of a tooltip crop.
const Trim = 5

var ErrRegionTooSmall = errors.New("tooltip region too small to read")

// Preprocessor turns a tooltip crop into the image handed to the recognizer.
type Preprocessor interface {
	Prepare(region *capture.Frame) (image.Image, error)
}

// Recognizer is the OCR engine.
type Recognizer interface {
	Recognize(img image.Image) (string, error)
	Close() error
}

// Extractor crops, cleans and recognizes one box at a time.
type Extractor struct {
	mu    sync.Mutex
	prep  Preprocessor
	recog Recognizer
}

func NewExtractor(prep Preprocessor, recog Recognizer) *Extractor {
	return &Extractor{prep: prep, recog: recog}
}

// Read returns the text inside box. Empty text is not an error.
func (e *Extractor) Read(frame *capture.Frame, box image.Rectangle) (string, error) {
	region, err := frame.Crop(box)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRegionTooSmall, err)
	}
	if region.Width <= 2*Trim || region.Height <= 2*Trim {
		return "", fmt.Errorf("%w: %dx%d", ErrRegionTooSmall, region.Width, region.Height)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recog == nil {
		return "", fmt.Errorf("text extractor closed")
	}

	img, err := e.prep.Prepare(region)
	if err != nil {
		return "", fmt.Errorf("preprocess: %w", err)
	}
	if os.Getenv("OCR_DEBUG_SAVE_IMAGES") == "true" {
		saveDebugImage(img)
	}
	text, err := e.recog.Recognize(img)
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		log.Printf("OCR: empty text for %dx%d region", region.Width, region.Height)
	}
	return text, nil
}

func (e *Extractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recog == nil {
		return nil
	}
	err := e.recog.Close()
	e.recog = nil
	return err
}

func saveDebugImage(img image.Image) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return
	}
	b := img.Bounds()
	name := fmt.Sprintf("debug_tooltip_%dx%d.png", b.Dx(), b.Dy())
	if err := os.WriteFile(name, buf.Bytes(), 0600); err != nil {
		log.Printf("Warning: Could not save debug image: %v", err)
		return
	}
	log.Printf("DEBUG: Saved preprocessed tooltip to %s (size: %d bytes)", name, buf.Len())
}
