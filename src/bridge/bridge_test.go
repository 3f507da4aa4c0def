package bridge

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tooltip-ocr/src/capture"
	"tooltip-ocr/src/detector"
	"tooltip-ocr/src/history"
	"tooltip-ocr/src/logutil"
	"tooltip-ocr/src/pipeline"
	"tooltip-ocr/src/window"
	"tooltip-ocr/src/worker"
)

type fakeCapture struct {
	closed atomic.Bool
	noWin  bool
	// number of calls that fail with every method exhausted
	fail atomic.Int32
}

func (c *fakeCapture) Capture(context.Context) (*capture.Frame, window.Info, error) {
	if c.fail.Add(-1) >= 0 {
		err := fmt.Errorf("%w: %w", capture.ErrAllMethodsFailed, errors.Join(
			fmt.Errorf("wgc: %w", capture.ErrWaitTimeout),
			fmt.Errorf("d3d: %w", capture.ErrWaitTimeout),
			errors.New("gdi: BitBlt failed"),
		))
		return nil, window.Info{Handle: 7}, err
	}
	if c.noWin {
		return nil, window.Info{}, nil
	}
	return capture.NewFrame(320, 200, capture.FormatBGRA), window.Info{Handle: 7}, nil
}

func (c *fakeCapture) Close() error { c.closed.Store(true); return nil }

type fakeDetector struct {
	closed atomic.Bool
	cands  []detector.Candidate
	block  chan struct{}
}

func (d *fakeDetector) Detect(*capture.Frame) ([]detector.Candidate, error) {
	if d.block != nil {
		<-d.block
	}
	return d.cands, nil
}

func (d *fakeDetector) Close() error { d.closed.Store(true); return nil }

type fakeReader struct {
	closed atomic.Bool
	texts  []string
	calls  atomic.Int32
	panics bool
}

func (r *fakeReader) Read(*capture.Frame, image.Rectangle) (string, error) {
	if r.panics {
		panic("tesseract crashed")
	}
	i := int(r.calls.Add(1)) - 1
	if i < len(r.texts) {
		return r.texts[i], nil
	}
	return "", nil
}

func (r *fakeReader) Close() error { r.closed.Store(true); return nil }

type fakes struct {
	capture  *fakeCapture
	detector *fakeDetector
	reader   *fakeReader
	made     atomic.Int32
}

func (f *fakes) factory() Factory {
	return Factory{
		Capture: func() (CaptureCloser, error) {
			f.made.Add(1)
			return f.capture, nil
		},
		Detector: func(string) (DetectCloser, error) { return f.detector, nil },
		Reader:   func(string) (ReadCloser, error) { return f.reader, nil },
	}
}

func box(x int) detector.Candidate {
	return detector.Candidate{Box: detector.Box{Left: x, Top: 20, Width: 100, Height: 60}, Score: 0.95}
}

func newFakes() *fakes {
	return &fakes{
		capture:  &fakeCapture{},
		detector: &fakeDetector{cands: []detector.Candidate{box(10)}},
		reader:   &fakeReader{texts: []string{"Longsword\nRare"}},
	}
}

func wait(t *testing.T, f *worker.Future[*Result]) (*Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.Wait(ctx)
}

func TestInitializeRejectsEmptyPaths(t *testing.T) {
	tests := []struct {
		name, data, model string
	}{
		{"no data", "", "model.onnx"},
		{"no model", "tessdata", ""},
		{"neither", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fk := newFakes()
			b := New(Options{Factory: fk.factory()})
			var mu sync.Mutex
			var logged []string
			ok := b.Initialize(tt.data, tt.model, func(_ logutil.Level, msg string) {
				mu.Lock()
				logged = append(logged, msg)
				mu.Unlock()
			})
			if ok {
				t.Fatal("Initialize succeeded with an empty path")
			}
			if fk.made.Load() != 0 {
				t.Error("capture was created for invalid input")
			}
			mu.Lock()
			defer mu.Unlock()
			if len(logged) == 0 || !strings.Contains(logged[0], "required") {
				t.Errorf("logged %q", logged)
			}
		})
	}
}

func TestInitializeFailureReleasesStages(t *testing.T) {
	fk := newFakes()
	f := fk.factory()
	f.Capture = func() (CaptureCloser, error) { return nil, capture.ErrAllMethodsFailed }
	b := New(Options{Factory: f})
	if b.Initialize("tessdata", "model.onnx", nil) {
		t.Fatal("Initialize succeeded")
	}
	if !fk.detector.closed.Load() || !fk.reader.closed.Load() {
		t.Error("stages built before the failure were not closed")
	}
	if _, err := wait(t, b.GetTooltip(context.Background())); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("err = %v, want ErrNotInitialized", err)
	}
}

func TestGetTooltip(t *testing.T) {
	fk := newFakes()
	b := New(Options{Factory: fk.factory()})
	if !b.Initialize("tessdata", "model.onnx", nil) {
		t.Fatal("Initialize failed")
	}
	defer b.Cleanup()

	res, err := wait(t, b.GetTooltip(context.Background()))
	if err != nil {
		t.Fatal(err)
	}
	want := Result{Text: "Longsword\nRare", X: 10, Y: 20, Width: 100, Height: 60}
	if res == nil || *res != want {
		t.Errorf("got %+v, want %+v", res, want)
	}
}

func TestGetTooltipNothingOnScreen(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakes)
	}{
		{"no window", func(f *fakes) { f.capture.noWin = true }},
		{"no detections", func(f *fakes) { f.detector.cands = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fk := newFakes()
			tt.setup(fk)
			b := New(Options{Factory: fk.factory()})
			if !b.Initialize("tessdata", "model.onnx", nil) {
				t.Fatal("Initialize failed")
			}
			defer b.Cleanup()
			res, err := wait(t, b.GetTooltip(context.Background()))
			if err != nil || res != nil {
				t.Errorf("got %+v, %v; want nil, nil", res, err)
			}
		})
	}
}

func TestGetTooltipRecoversAfterCaptureFailure(t *testing.T) {
	fk := newFakes()
	fk.capture.fail.Store(1)
	b := New(Options{Factory: fk.factory()})
	if !b.Initialize("tessdata", "model.onnx", nil) {
		t.Fatal("Initialize failed")
	}
	defer b.Cleanup()

	res, err := wait(t, b.GetTooltip(context.Background()))
	if err == nil {
		t.Fatalf("first scan resolved to %+v, want a rejection", res)
	}
	if !errors.Is(err, capture.ErrAllMethodsFailed) {
		t.Errorf("err = %v, want ErrAllMethodsFailed", err)
	}
	if msg := Message(err); !strings.Contains(msg, "all capture methods failed") {
		t.Errorf("Message = %q", msg)
	}

	res, err = wait(t, b.GetTooltip(context.Background()))
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if res == nil || res.Text != "Longsword\nRare" {
		t.Errorf("second scan = %+v, want the tooltip", res)
	}
}

func TestGetTooltipAllRejected(t *testing.T) {
	fk := newFakes()
	fk.detector.cands = []detector.Candidate{box(10), box(200)}
	fk.reader.texts = []string{"Item Statistics\nGrimVault", "Item Statistics"}
	b := New(Options{Factory: fk.factory()})
	if !b.Initialize("tessdata", "model.onnx", nil) {
		t.Fatal("Initialize failed")
	}
	defer b.Cleanup()

	_, err := wait(t, b.GetTooltip(context.Background()))
	if !errors.Is(err, pipeline.ErrAllCandidatesRejected) {
		t.Fatalf("err = %v", err)
	}
	if msg := Message(err); !strings.Contains(msg, "GrimVault") {
		t.Errorf("Message = %q", msg)
	}
}

func TestGetTooltipPanicBecomesError(t *testing.T) {
	fk := newFakes()
	fk.reader.panics = true
	b := New(Options{Factory: fk.factory()})
	if !b.Initialize("tessdata", "model.onnx", nil) {
		t.Fatal("Initialize failed")
	}
	defer b.Cleanup()

	_, err := wait(t, b.GetTooltip(context.Background()))
	var pe *worker.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want PanicError", err)
	}
	if !strings.HasPrefix(Message(err), "unknown failure") {
		t.Errorf("Message = %q", Message(err))
	}

	// the bridge stays usable
	fk.reader.panics = false
	if _, err := wait(t, b.GetTooltip(context.Background())); err != nil {
		t.Errorf("second request: %v", err)
	}
}

func TestCleanupIdempotent(t *testing.T) {
	fk := newFakes()
	b := New(Options{Factory: fk.factory()})
	if !b.Cleanup() {
		t.Error("Cleanup before Initialize failed")
	}
	if !b.Initialize("tessdata", "model.onnx", nil) {
		t.Fatal("Initialize failed")
	}
	for i := 0; i < 3; i++ {
		if !b.Cleanup() {
			t.Fatalf("Cleanup #%d failed", i)
		}
	}
	if !fk.capture.closed.Load() || !fk.detector.closed.Load() || !fk.reader.closed.Load() {
		t.Error("not every stage was closed")
	}
	if _, err := wait(t, b.GetTooltip(context.Background())); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("err = %v after Cleanup", err)
	}
}

func TestCleanupWaitsForDetection(t *testing.T) {
	fk := newFakes()
	fk.detector.block = make(chan struct{})
	b := New(Options{Factory: fk.factory()})
	if !b.Initialize("tessdata", "model.onnx", nil) {
		t.Fatal("Initialize failed")
	}

	fut := b.GetTooltip(context.Background())
	time.Sleep(20 * time.Millisecond)

	cleaned := make(chan struct{})
	go func() {
		b.Cleanup()
		close(cleaned)
	}()
	select {
	case <-cleaned:
		t.Fatal("Cleanup returned while detection was running")
	case <-time.After(50 * time.Millisecond):
	}
	if fk.detector.closed.Load() {
		t.Fatal("detector closed mid-inference")
	}

	close(fk.detector.block)
	<-cleaned
	// OCR may win the race against Cleanup for the last stage lock
	if _, err := wait(t, fut); err != nil && !errors.Is(err, ErrNotInitialized) {
		t.Errorf("in-flight request err = %v", err)
	}
}

func TestGetTooltipConcurrent(t *testing.T) {
	fk := newFakes()
	fk.reader.texts = nil
	fk.detector.cands = nil
	b := New(Options{Factory: fk.factory()})
	if !b.Initialize("tessdata", "model.onnx", nil) {
		t.Fatal("Initialize failed")
	}
	defer b.Cleanup()

	futs := make([]*worker.Future[*Result], 8)
	for i := range futs {
		futs[i] = b.GetTooltip(context.Background())
	}
	for _, f := range futs {
		if _, err := wait(t, f); err != nil {
			t.Error(err)
		}
	}
}

func TestHistoryRecordsResults(t *testing.T) {
	fk := newFakes()
	path := filepath.Join(t.TempDir(), "history.db")
	b := New(Options{Factory: fk.factory(), HistoryPath: path})
	if !b.Initialize("tessdata", "model.onnx", nil) {
		t.Fatal("Initialize failed")
	}
	if _, err := wait(t, b.GetTooltip(context.Background())); err != nil {
		t.Fatal(err)
	}
	b.Cleanup()

	store, err := history.Open(path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer store.Close()
	got, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Text != "Longsword\nRare" || got[0].X != 10 {
		t.Errorf("history = %+v", got)
	}
	if len(got[0].Thumbnail) == 0 {
		t.Error("no thumbnail stored")
	}
}
