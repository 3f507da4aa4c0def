// Package bridge is the host-facing surface: Initialize once, request tooltips
// asynchronously, Cleanup at exit. Each request runs the pipeline on its own
// goroutine; the capture, detection and OCR stages are each serialized by
// their own lock.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"tooltip-ocr/src/capture"
	"tooltip-ocr/src/detector"
	"tooltip-ocr/src/history"
	"tooltip-ocr/src/logutil"
	"tooltip-ocr/src/pipeline"
	"tooltip-ocr/src/window"
	"tooltip-ocr/src/worker"
)

var ErrNotInitialized = errors.New("bridge not initialized")

// Result is the payload handed to the host.
type Result struct {
	Text   string `json:"text"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// LogFunc receives log entries on the log channel's consumer goroutine.
type LogFunc func(level logutil.Level, message string)

type CaptureCloser interface {
	capture.Capturer
	Close() error
}

type DetectCloser interface {
	pipeline.Detector
	Close() error
}

type ReadCloser interface {
	pipeline.Reader
	Close() error
}

// Factory builds the three stages. Tests swap in fakes.
type Factory struct {
	Capture  func() (CaptureCloser, error)
	Detector func(modelPath string) (DetectCloser, error)
	Reader   func(ocrDataPath string) (ReadCloser, error)
}

type Options struct {
	Factory     Factory
	Deadline    time.Duration
	LogLevel    logutil.Level
	LogBuffer   int
	HistoryPath string
	Recorder    pipeline.Recorder
	// InFlight is called when a request starts; the returned func when it ends.
	InFlight func() func()
}

type Bridge struct {
	opts Options

	state sync.Mutex
	ready bool
	logs  *logutil.Channel
	pipe  *pipeline.Pipeline
	hist  *history.Store

	// stage locks; Cleanup takes them in this order
	captureMu sync.Mutex
	dnnMu     sync.Mutex
	ocrMu     sync.Mutex
	capturer  CaptureCloser
	detector  DetectCloser
	reader    ReadCloser
}

func New(opts Options) *Bridge {
	if opts.Deadline <= 0 {
		opts.Deadline = 10 * time.Second
	}
	return &Bridge{opts: opts}
}

// Initialize loads the OCR data and model and brings up capture. It returns
// false on any failure, leaving the bridge uninitialized. Empty paths fail
// before capture is touched.
func (b *Bridge) Initialize(ocrDataPath, modelPath string, logCallback LogFunc) bool {
	b.state.Lock()
	defer b.state.Unlock()
	if b.ready {
		b.logs.Warnf("Initialize called twice; keeping the existing setup")
		return true
	}

	var sink logutil.Sink
	if logCallback != nil {
		sink = func(e logutil.Entry) { logCallback(e.Level, e.Message) }
	}
	logs := logutil.NewChannel(b.opts.LogBuffer, b.opts.LogLevel, sink)

	if ocrDataPath == "" || modelPath == "" {
		logs.Errorf("Initialize: OCR data path and model path are required")
		logs.Close()
		return false
	}

	reader, err := b.opts.Factory.Reader(ocrDataPath)
	if err != nil {
		logs.Errorf("Initialize: text extractor: %v", err)
		logs.Close()
		return false
	}
	det, err := b.opts.Factory.Detector(modelPath)
	if err != nil {
		logs.Errorf("Initialize: detector: %v", err)
		reader.Close()
		logs.Close()
		return false
	}
	capt, err := b.opts.Factory.Capture()
	if err != nil {
		logs.Errorf("Initialize: capture: %v", err)
		det.Close()
		reader.Close()
		logs.Close()
		return false
	}

	var hist *history.Store
	if b.opts.HistoryPath != "" {
		if hist, err = history.Open(b.opts.HistoryPath); err != nil {
			// history is optional
			logs.Warnf("Initialize: history disabled: %v", err)
			hist = nil
		}
	}

	b.captureMu.Lock()
	b.capturer = capt
	b.captureMu.Unlock()
	b.dnnMu.Lock()
	b.detector = det
	b.dnnMu.Unlock()
	b.ocrMu.Lock()
	b.reader = reader
	b.ocrMu.Unlock()

	pipe, err := pipeline.New(pipeline.Options{
		Capture:  lockedCapture{b},
		Detector: lockedDetector{b},
		Reader:   lockedReader{b},
		Recorder: b.opts.Recorder,
	})
	if err != nil {
		logs.Errorf("Initialize: %v", err)
		b.release()
		if hist != nil {
			hist.Close()
		}
		logs.Close()
		return false
	}

	b.logs, b.pipe, b.hist = logs, pipe, hist
	b.ready = true
	logs.Infof("Initialize: ready (ocr data %s, model %s)", ocrDataPath, modelPath)
	return true
}

// GetTooltip starts one scan. The future resolves to nil when no tooltip is on
// screen, or fails with a descriptive error.
func (b *Bridge) GetTooltip(ctx context.Context) *worker.Future[*Result] {
	b.state.Lock()
	ready, pipe, logs, hist := b.ready, b.pipe, b.logs, b.hist
	b.state.Unlock()

	if !ready {
		return worker.Go(ctx, func(context.Context) (*Result, error) { return nil, ErrNotInitialized })
	}

	id := uuid.NewString()[:8]
	return worker.Go(ctx, func(ctx context.Context) (*Result, error) {
		if b.opts.InFlight != nil {
			defer b.opts.InFlight()()
		}
		ctx, cancel := context.WithTimeout(ctx, b.opts.Deadline)
		defer cancel()

		start := time.Now()
		logs.Debugf("request %s: started", id)
		tip, err := pipe.Run(ctx)
		if err != nil {
			logs.Errorf("request %s: %v", id, err)
			return nil, err
		}
		if tip == nil {
			logs.Infof("request %s: no tooltip (%v)", id, time.Since(start).Round(time.Millisecond))
			return nil, nil
		}
		logs.Infof("request %s: tooltip %v, %d chars (%v)", id, tip.Box, len(tip.Text), time.Since(start).Round(time.Millisecond))
		if hist != nil {
			b.record(ctx, id, tip, logs, hist)
		}
		return &Result{
			Text:   tip.Text,
			X:      tip.Box.Left,
			Y:      tip.Box.Top,
			Width:  tip.Box.Width,
			Height: tip.Box.Height,
		}, nil
	})
}

func (b *Bridge) record(ctx context.Context, id string, tip *pipeline.Tooltip, logs *logutil.Channel, hist *history.Store) {
	var crop image.Image
	if tip.Frame != nil {
		if f, err := tip.Frame.Crop(tip.Box.Rect()); err == nil {
			crop = f.Image()
		}
	}
	entry := history.Entry{
		RequestID: id,
		Text:      tip.Text,
		X:         tip.Box.Left,
		Y:         tip.Box.Top,
		Width:     tip.Box.Width,
		Height:    tip.Box.Height,
	}
	if _, err := hist.Add(ctx, entry, crop); err != nil {
		logs.Warnf("request %s: history: %v", id, err)
	}
}

// Cleanup releases everything. It waits for in-progress stages by taking the
// capture, detection and OCR locks in that order. Safe to call repeatedly.
func (b *Bridge) Cleanup() bool {
	b.state.Lock()
	defer b.state.Unlock()
	if !b.ready {
		return true
	}
	b.ready = false
	b.logs.Infof("Cleanup: releasing resources")
	b.release()
	if b.hist != nil {
		if err := b.hist.Close(); err != nil {
			log.Printf("Cleanup: history: %v", err)
		}
		b.hist = nil
	}
	b.pipe = nil
	b.logs.Close()
	b.logs = nil
	return true
}

func (b *Bridge) release() {
	b.captureMu.Lock()
	defer b.captureMu.Unlock()
	b.dnnMu.Lock()
	defer b.dnnMu.Unlock()
	b.ocrMu.Lock()
	defer b.ocrMu.Unlock()

	stages := []struct {
		name string
		c    interface{ Close() error }
	}{
		{"capture", b.capturer}, {"detector", b.detector}, {"ocr", b.reader},
	}
	for _, s := range stages {
		if s.c == nil {
			continue
		}
		if err := s.c.Close(); err != nil {
			log.Printf("Cleanup: %s: %v", s.name, err)
		}
	}
	b.capturer, b.detector, b.reader = nil, nil, nil
}

// Stage adapters hold the stage lock for the duration of one call.

type lockedCapture struct{ b *Bridge }

func (l lockedCapture) Capture(ctx context.Context) (*capture.Frame, window.Info, error) {
	l.b.captureMu.Lock()
	defer l.b.captureMu.Unlock()
	if l.b.capturer == nil {
		return nil, window.Info{}, ErrNotInitialized
	}
	return l.b.capturer.Capture(ctx)
}

type lockedDetector struct{ b *Bridge }

func (l lockedDetector) Detect(f *capture.Frame) ([]detector.Candidate, error) {
	l.b.dnnMu.Lock()
	defer l.b.dnnMu.Unlock()
	if l.b.detector == nil {
		return nil, ErrNotInitialized
	}
	return l.b.detector.Detect(f)
}

type lockedReader struct{ b *Bridge }

func (l lockedReader) Read(f *capture.Frame, box image.Rectangle) (string, error) {
	l.b.ocrMu.Lock()
	defer l.b.ocrMu.Unlock()
	if l.b.reader == nil {
		return "", ErrNotInitialized
	}
	return l.b.reader.Read(f, box)
}

// DroppedLogs counts log entries lost to a full log channel.
func (b *Bridge) DroppedLogs() uint64 {
	if b == nil {
		return 0
	}
	b.state.Lock()
	defer b.state.Unlock()
	if b.logs == nil {
		return 0
	}
	return b.logs.Dropped()
}

// Message renders an error the way the host shows it.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var pe *worker.PanicError
	if errors.As(err, &pe) {
		return pe.Error()
	}
	return fmt.Sprintf("tooltip scan failed: %v", err)
}
