// Package vision holds the OpenCV-backed pieces: the ONNX network used by the
// detector and the image cleanup that runs before OCR.
package vision

import (
	"fmt"
	"image"
	"image/color"
	"log"
	"os"
	"strings"

	"gocv.io/x/gocv"

	"tooltip-ocr/src/capture"
	"tooltip-ocr/src/detector"
)

// NetEngine runs an ONNX detection model through OpenCV's dnn module.
type NetEngine struct {
	net       gocv.Net
	inputSize int
}

// NewNetEngine loads modelPath. backend is "cpu" (default) or "cuda".
func NewNetEngine(modelPath, backend string) (*NetEngine, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load ONNX model %s", modelPath)
	}
	switch strings.ToLower(backend) {
	case "cuda":
		net.SetPreferableBackend(gocv.NetBackendCUDA)
		net.SetPreferableTarget(gocv.NetTargetCUDA)
		log.Printf("vision: using CUDA backend")
	default:
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
	}
	return &NetEngine{net: net, inputSize: detector.InputSize}, nil
}

// Forward letterboxes bgr into a canvas×canvas square (frame at the origin,
// black padding right and bottom), runs the network and returns one row per
// detection.
func (e *NetEngine) Forward(bgr *capture.Frame, canvas int) (detector.Tensor, error) {
	src, err := gocv.NewMatFromBytes(bgr.Height, bgr.Width, gocv.MatTypeCV8UC3, bgr.Pix)
	if err != nil {
		return detector.Tensor{}, fmt.Errorf("frame to mat: %w", err)
	}
	defer src.Close()

	padded := gocv.NewMat()
	defer padded.Close()
	gocv.CopyMakeBorder(src, &padded, 0, canvas-bgr.Height, 0, canvas-bgr.Width, gocv.BorderConstant, color.RGBA{})

	blob := gocv.BlobFromImage(padded, 1.0/255.0, image.Pt(e.inputSize, e.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	defer out.Close()

	// [1, dims, rows]
	size := out.Size()
	if len(size) != 3 {
		return detector.Tensor{}, fmt.Errorf("unexpected output shape %v", size)
	}
	dims, rows := size[1], size[2]

	flat := out.Reshape(1, dims)
	defer flat.Close()
	t := gocv.NewMat()
	defer t.Close()
	gocv.Transpose(flat, &t)

	data, err := t.DataPtrFloat32()
	if err != nil {
		return detector.Tensor{}, fmt.Errorf("read output: %w", err)
	}
	owned := make([]float32, len(data))
	copy(owned, data)
	return detector.Tensor{Rows: rows, Dims: dims, Data: owned}, nil
}

// Suppress runs OpenCV's NMSBoxes. It does not touch the network.
func (e *NetEngine) Suppress(boxes []image.Rectangle, scores []float32, scoreThr, iouThr float32) []int {
	if len(boxes) == 0 {
		return nil
	}
	return gocv.NMSBoxes(boxes, scores, scoreThr, iouThr)
}

func (e *NetEngine) Close() error {
	return e.net.Close()
}

// Cleaner prepares a tooltip crop for OCR: contrast ×2, trim the border,
// grayscale, inverted Otsu threshold, bilateral smoothing.
type Cleaner struct {
	Trim int
}

func NewCleaner(trim int) *Cleaner {
	return &Cleaner{Trim: trim}
}

func (c *Cleaner) Prepare(region *capture.Frame) (image.Image, error) {
	bgr := region.ToBGR()
	if bgr.Width <= 2*c.Trim || bgr.Height <= 2*c.Trim {
		return nil, fmt.Errorf("region %dx%d too small to trim %d px", bgr.Width, bgr.Height, c.Trim)
	}
	src, err := gocv.NewMatFromBytes(bgr.Height, bgr.Width, gocv.MatTypeCV8UC3, bgr.Pix)
	if err != nil {
		return nil, fmt.Errorf("region to mat: %w", err)
	}
	defer src.Close()

	boosted := gocv.NewMat()
	defer boosted.Close()
	src.ConvertToWithParams(&boosted, src.Type(), 2, 0)

	trimmed := boosted.Region(image.Rect(c.Trim, c.Trim, bgr.Width-c.Trim, bgr.Height-c.Trim))
	defer trimmed.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(trimmed, &gray, gocv.ColorBGRToGray)

	bin := gocv.NewMat()
	defer bin.Close()
	gocv.Threshold(gray, &bin, 0, 255, gocv.ThresholdBinaryInv|gocv.ThresholdOtsu)

	smooth := gocv.NewMat()
	defer smooth.Close()
	gocv.BilateralFilter(bin, &smooth, 5, 75, 75)

	return smooth.ToImage()
}
