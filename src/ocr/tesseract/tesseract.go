// Package tesseract is the OCR engine behind ocr.Recognizer.
package tesseract

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/otiai10/gosseract/v2"
)

const (
	Language = "eng"
	DPI      = "70"
)

// Engine wraps one Tesseract client configured for tooltip blocks.
type Engine struct {
	client *gosseract.Client
}

// New checks that dataPath holds the English model, configures a client and
// runs it once on a blank image so a model that fails to load is reported here
// rather than on the first scan.
func New(dataPath string) (*Engine, error) {
	if dataPath == "" {
		return nil, fmt.Errorf("tessdata path is empty")
	}
	model := filepath.Join(dataPath, Language+".traineddata")
	if _, err := os.Stat(model); err != nil {
		return nil, fmt.Errorf("tessdata: %w", err)
	}

	c := gosseract.NewClient()
	if err := c.SetTessdataPrefix(dataPath); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.SetLanguage(Language); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.SetVariable("user_defined_dpi", DPI); err != nil {
		c.Close()
		return nil, err
	}
	e := &Engine{client: c}
	if _, err := e.Recognize(blank()); err != nil {
		c.Close()
		return nil, fmt.Errorf("start tesseract: %w", err)
	}
	return e, nil
}

func blank() image.Image {
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}

func (e *Engine) Recognize(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode image as PNG: %w", err)
	}
	if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", err
	}
	return e.client.Text()
}

func (e *Engine) Close() error {
	return e.client.Close()
}
