// Package detector finds tooltip boxes in a frame with a single-class YOLO
// style model. Inference and non-maximum suppression are delegated to an
// Engine; decoding is plain Go.
package detector

import (
	"fmt"
	"image"
	"log"
	"sync"

	"tooltip-ocr/src/capture"
)

const (
	InputSize      = 640
	ScoreThreshold = 0.90
	NMSScore       = 0.45
	NMSIoU         = 0.50
)

// Box is a rectangle in frame pixels.
type Box struct {
	Left   int
	Top    int
	Width  int
	Height int
}

func (b Box) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Left+b.Width, b.Top+b.Height)
}

func (b Box) Area() int { return b.Width * b.Height }

type Candidate struct {
	Box
	Score float32
	Class int
}

// Tensor is the model output laid out as Rows detections of Dims values:
// cx, cy, w, h followed by one score per class.
type Tensor struct {
	Rows int
	Dims int
	Data []float32
}

// Engine runs the network. bgr is a packed 3-channel frame; canvas is the side
// of the square it must be letterboxed into before resizing to InputSize.
//
// Suppress is greedy non-maximum suppression: boxes scoring at or below
// scoreThr are dropped and the indices of the survivors are returned in
// descending score order.
type Engine interface {
	Forward(bgr *capture.Frame, canvas int) (Tensor, error)
	Suppress(boxes []image.Rectangle, scores []float32, scoreThr, iouThr float32) []int
	Close() error
}

type Config struct {
	InputSize      int
	ScoreThreshold float32
	NMSScore       float32
	NMSIoU         float32
	Labels         []string
}

func DefaultConfig() Config {
	return Config{
		InputSize:      InputSize,
		ScoreThreshold: ScoreThreshold,
		NMSScore:       NMSScore,
		NMSIoU:         NMSIoU,
		Labels:         []string{"Tooltip"},
	}
}

// Detector serializes access to one engine.
type Detector struct {
	mu     sync.Mutex
	engine Engine
	cfg    Config
}

func New(engine Engine, cfg Config) *Detector {
	if cfg.InputSize <= 0 {
		cfg.InputSize = InputSize
	}
	return &Detector{engine: engine, cfg: cfg}
}

// Detect returns candidate boxes in descending score order. No detections is
// an empty slice, not an error.
func (d *Detector) Detect(frame *capture.Frame) ([]Candidate, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.engine == nil {
		return nil, fmt.Errorf("detector closed")
	}

	bgr := frame
	if frame.Format != capture.FormatBGR || frame.Stride != frame.Width*3 {
		bgr = frame.ToBGR()
	}
	canvas := Canvas(frame.Width, frame.Height)
	t, err := d.engine.Forward(bgr, canvas)
	if err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}
	cands, err := Decode(t, canvas, d.cfg.InputSize, d.cfg.ScoreThreshold)
	if err != nil {
		return nil, err
	}
	kept := d.suppress(cands)
	out := clip(kept, image.Rect(0, 0, frame.Width, frame.Height))
	log.Printf("detector: %d rows, %d above threshold, %d after NMS, %d inside the frame", t.Rows, len(cands), len(kept), len(out))
	return out, nil
}

func (d *Detector) suppress(cands []Candidate) []Candidate {
	if len(cands) == 0 {
		return nil
	}
	boxes := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i] = c.Rect()
		scores[i] = c.Score
	}
	idx := d.engine.Suppress(boxes, scores, d.cfg.NMSScore, d.cfg.NMSIoU)
	kept := make([]Candidate, 0, len(idx))
	for _, i := range idx {
		if i >= 0 && i < len(cands) {
			kept = append(kept, cands[i])
		}
	}
	return kept
}

// clip intersects each box with bounds and drops the ones left empty. The
// letterbox pads right and bottom, so boxes can reach past the frame.
func clip(cands []Candidate, bounds image.Rectangle) []Candidate {
	out := cands[:0]
	for _, c := range cands {
		r := c.Rect().Intersect(bounds)
		if r.Empty() {
			continue
		}
		c.Box = Box{Left: r.Min.X, Top: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
		out = append(out, c)
	}
	return out
}

// Label names a class index.
func (d *Detector) Label(class int) string {
	if class >= 0 && class < len(d.cfg.Labels) {
		return d.cfg.Labels[class]
	}
	return fmt.Sprintf("class%d", class)
}

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.engine == nil {
		return nil
	}
	err := d.engine.Close()
	d.engine = nil
	return err
}

// Canvas is the side of the square letterbox for a w×h frame. The frame sits
// at the origin; padding goes right and bottom.
func Canvas(w, h int) int {
	if w > h {
		return w
	}
	return h
}

// Decode converts rows whose best class score exceeds threshold into frame
// boxes. Coordinates scale by canvas/inputSize and truncate toward zero.
func Decode(t Tensor, canvas, inputSize int, threshold float32) ([]Candidate, error) {
	if t.Dims < 5 {
		return nil, fmt.Errorf("model output has %d values per row, need at least 5", t.Dims)
	}
	if len(t.Data) < t.Rows*t.Dims {
		return nil, fmt.Errorf("model output truncated: %d values for %dx%d", len(t.Data), t.Rows, t.Dims)
	}
	scale := float64(canvas) / float64(inputSize)
	var out []Candidate
	for r := 0; r < t.Rows; r++ {
		row := t.Data[r*t.Dims : (r+1)*t.Dims]
		best, class := row[4], 0
		for c, s := range row[5:] {
			if s > best {
				best, class = s, c+1
			}
		}
		if best <= threshold {
			continue
		}
		cx, cy, w, h := float64(row[0]), float64(row[1]), float64(row[2]), float64(row[3])
		out = append(out, Candidate{
			Box: Box{
				Left:   int((cx - 0.5*w) * scale),
				Top:    int((cy - 0.5*h) * scale),
				Width:  int(w * scale),
				Height: int(h * scale),
			},
			Score: best,
			Class: class,
		})
	}
	return out, nil
}
