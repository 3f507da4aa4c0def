package detector

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"tooltip-ocr/src/capture"
)

type fakeEngine struct {
	t         Tensor
	err       error
	gotCanvas int
	gotFormat capture.PixelFormat
	gotThr    [2]float32
	closed    bool
}

func (e *fakeEngine) Forward(bgr *capture.Frame, canvas int) (Tensor, error) {
	e.gotCanvas = canvas
	e.gotFormat = bgr.Format
	return e.t, e.err
}

// Suppress is a small greedy NMS standing in for OpenCV.
func (e *fakeEngine) Suppress(boxes []image.Rectangle, scores []float32, scoreThr, iouThr float32) []int {
	e.gotThr = [2]float32{scoreThr, iouThr}
	var order []int
	for i, s := range scores {
		if s > scoreThr {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	var kept []int
	for _, i := range order {
		keep := true
		for _, k := range kept {
			if iou(boxes[i], boxes[k]) > float64(iouThr) {
				keep = false
				break
			}
		}
		if keep {
			kept = append(kept, i)
		}
	}
	return kept
}

func iou(a, b image.Rectangle) float64 {
	in := a.Intersect(b)
	inter := in.Dx() * in.Dy()
	union := a.Dx()*a.Dy() + b.Dx()*b.Dy() - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func (e *fakeEngine) Close() error { e.closed = true; return nil }

// row builds one output row in model coordinates.
func row(cx, cy, w, h float32, scores ...float32) []float32 {
	return append([]float32{cx, cy, w, h}, scores...)
}

func tensor(rows ...[]float32) Tensor {
	t := Tensor{Rows: len(rows), Dims: len(rows[0])}
	for _, r := range rows {
		t.Data = append(t.Data, r...)
	}
	return t
}

func TestDetectConvertsAndLetterboxes(t *testing.T) {
	eng := &fakeEngine{t: tensor(row(320, 320, 64, 32, 0.95))}
	d := New(eng, DefaultConfig())

	frame := capture.NewFrame(1280, 720, capture.FormatBGRA)
	got, err := d.Detect(frame)
	if err != nil {
		t.Fatal(err)
	}
	if eng.gotCanvas != 1280 {
		t.Errorf("canvas = %d, want max(w,h)=1280", eng.gotCanvas)
	}
	if eng.gotFormat != capture.FormatBGR {
		t.Errorf("engine got %v frame, want BGR", eng.gotFormat)
	}
	want := Box{Left: 576, Top: 608, Width: 128, Height: 64}
	if len(got) != 1 || got[0].Box != want {
		t.Fatalf("Detect = %+v, want %+v", got, want)
	}
}

func TestDetectThresholdIsStrict(t *testing.T) {
	eng := &fakeEngine{t: tensor(
		row(100, 100, 10, 10, 0.90),
		row(300, 300, 10, 10, 0.9001),
	)}
	got, err := New(eng, DefaultConfig()).Detect(capture.NewFrame(640, 640, capture.FormatBGR))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Left != 295 {
		t.Fatalf("got %+v, want only the row scoring above 0.90", got)
	}
}

func TestDetectNoDetections(t *testing.T) {
	eng := &fakeEngine{t: tensor(row(1, 1, 1, 1, 0.1))}
	got, err := New(eng, DefaultConfig()).Detect(capture.NewFrame(10, 10, capture.FormatBGRA))
	if err != nil || len(got) != 0 {
		t.Fatalf("Detect = %v, %v; want empty, nil", got, err)
	}
}

func TestDetectMalformedFrame(t *testing.T) {
	eng := &fakeEngine{}
	_, err := New(eng, DefaultConfig()).Detect(&capture.Frame{Width: 0, Height: 5})
	if !errors.Is(err, capture.ErrMalformedFrame) {
		t.Fatalf("err = %v, want ErrMalformedFrame", err)
	}
}

func TestDetectEngineError(t *testing.T) {
	boom := errors.New("onnx exploded")
	eng := &fakeEngine{err: boom}
	_, err := New(eng, DefaultConfig()).Detect(capture.NewFrame(4, 4, capture.FormatBGR))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestDetectMultiClassPicksBest(t *testing.T) {
	eng := &fakeEngine{t: tensor(row(50, 50, 10, 10, 0.2, 0.97))}
	got, err := New(eng, DefaultConfig()).Detect(capture.NewFrame(640, 640, capture.FormatBGR))
	if err != nil || len(got) != 1 || got[0].Class != 1 {
		t.Fatalf("got %+v, %v", got, err)
	}
}

func TestLetterboxRoundTrip(t *testing.T) {
	// A box drawn in frame space, expressed in model space the way the network
	// sees it, must decode back to the same box within a pixel.
	frames := [][2]int{{1920, 1080}, {800, 1200}, {640, 640}, {2560, 1440}}
	box := Box{Left: 123, Top: 77, Width: 301, Height: 155}
	for _, fs := range frames {
		canvas := Canvas(fs[0], fs[1])
		s := float32(InputSize) / float32(canvas)
		cx := (float32(box.Left) + float32(box.Width)/2) * s
		cy := (float32(box.Top) + float32(box.Height)/2) * s
		r := row(cx, cy, float32(box.Width)*s, float32(box.Height)*s, 0.99)
		got, err := Decode(tensor(r), canvas, InputSize, ScoreThreshold)
		if err != nil || len(got) != 1 {
			t.Fatalf("%v: Decode = %v, %v", fs, got, err)
		}
		g := got[0].Box
		if abs(g.Left-box.Left) > 1 || abs(g.Top-box.Top) > 1 || abs(g.Width-box.Width) > 1 || abs(g.Height-box.Height) > 1 {
			t.Errorf("%v: round trip %+v, want %+v ±1", fs, g, box)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestDecodeRejectsShortOutput(t *testing.T) {
	if _, err := Decode(Tensor{Rows: 1, Dims: 4, Data: make([]float32, 4)}, 640, 640, 0.9); err == nil {
		t.Error("expected error for 4-value rows")
	}
	if _, err := Decode(Tensor{Rows: 2, Dims: 5, Data: make([]float32, 5)}, 640, 640, 0.9); err == nil {
		t.Error("expected error for truncated data")
	}
}

func TestDetectSuppressesOverlaps(t *testing.T) {
	// on a 640 frame model and frame coordinates coincide
	eng := &fakeEngine{t: tensor(
		row(50, 50, 100, 100, 0.95),
		row(60, 60, 100, 100, 0.99), // IoU with the first ≈ 0.68
		row(325, 325, 50, 50, 0.92),
		row(400, 400, 10, 10, 0.80),
	)}
	got, err := New(eng, DefaultConfig()).Detect(capture.NewFrame(640, 640, capture.FormatBGR))
	if err != nil {
		t.Fatal(err)
	}
	want := []Candidate{
		{Box: Box{10, 10, 100, 100}, Score: 0.99},
		{Box: Box{300, 300, 50, 50}, Score: 0.92},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Detect = %+v, want %+v", got, want)
	}
	if eng.gotThr != [2]float32{NMSScore, NMSIoU} {
		t.Errorf("suppression thresholds = %v, want [%v %v]", eng.gotThr, NMSScore, NMSIoU)
	}
}

func TestDetectClipsToFrame(t *testing.T) {
	// canvas 1280 so model units scale by 2
	eng := &fakeEngine{t: tensor(
		row(20, 400, 80, 120, 0.95), // spills left and into the bottom padding
		row(300, 500, 20, 10, 0.96), // entirely inside the padding
	)}
	frame := capture.NewFrame(1280, 720, capture.FormatBGRA)
	got, err := New(eng, DefaultConfig()).Detect(frame)
	if err != nil {
		t.Fatal(err)
	}
	want := Box{Left: 0, Top: 680, Width: 120, Height: 40}
	if len(got) != 1 || got[0].Box != want {
		t.Fatalf("Detect = %+v, want one box %+v", got, want)
	}
	bounds := image.Rect(0, 0, frame.Width, frame.Height)
	for _, c := range got {
		if !c.Rect().In(bounds) {
			t.Errorf("box %+v escapes the %v frame", c.Box, bounds)
		}
	}
}

func TestLoadLabels(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name, body string
		want       []string
		wantErr    bool
	}{
		{"list", "names: [Tooltip, Stash]\n", []string{"Tooltip", "Stash"}, false},
		{"map", "nc: 2\nnames:\n  1: Stash\n  0: Tooltip\n", []string{"Tooltip", "Stash"}, false},
		{"gap", "names:\n  0: a\n  2: c\n", nil, true},
		{"missing", "nc: 1\n", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(dir, tt.name+".yaml")
			if err := os.WriteFile(p, []byte(tt.body), 0o644); err != nil {
				t.Fatal(err)
			}
			got, err := LoadLabels(p)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("labels = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCloseIdempotent(t *testing.T) {
	eng := &fakeEngine{}
	d := New(eng, DefaultConfig())
	if err := d.Close(); err != nil || !eng.closed {
		t.Fatalf("Close = %v closed=%v", err, eng.closed)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Detect(capture.NewFrame(2, 2, capture.FormatBGR)); err == nil {
		t.Error("Detect after Close should fail")
	}
}
