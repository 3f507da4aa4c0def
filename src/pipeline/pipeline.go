// Package pipeline runs one tooltip scan: capture the game window, detect
// tooltip boxes, and read the first box that is not a false positive.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"strings"
	"time"

	"tooltip-ocr/src/capture"
	"tooltip-ocr/src/detector"
	"tooltip-ocr/src/window"
)

// FalsePositive is the text that marks a tooltip drawn by the GrimVault overlay
// rather than the game.
const FalsePositive = "Item Statistics"

var ErrAllCandidatesRejected = errors.New("all identified tooltips belong to GrimVault")

type Detector interface {
	Detect(frame *capture.Frame) ([]detector.Candidate, error)
}

type Reader interface {
	Read(frame *capture.Frame, box image.Rectangle) (string, error)
}

// Filter reports whether text must be skipped.
type Filter func(text string) bool

// RejectOverlay skips text containing FalsePositive. The match is a
// case-sensitive substring.
func RejectOverlay(text string) bool {
	return strings.Contains(text, FalsePositive)
}

// Recorder receives stage timings and the outcome of each run.
type Recorder interface {
	ObserveStage(stage string, d time.Duration)
	ObserveOutcome(outcome string)
}

const (
	OutcomeFound       = "found"
	OutcomeNoWindow    = "no_window"
	OutcomeNoDetection = "no_detection"
	OutcomeRejected    = "rejected"
	OutcomeError       = "error"
)

type Options struct {
	Capture  capture.Capturer
	Detector Detector
	Reader   Reader
	Filter   Filter
	Recorder Recorder
}

// Tooltip is a recognized tooltip. Box is in captured-frame pixels.
type Tooltip struct {
	Text   string
	Box    detector.Box
	Score  float32
	Window window.Info
	Frame  *capture.Frame
}

type Pipeline struct {
	opts Options
}

func New(opts Options) (*Pipeline, error) {
	if opts.Capture == nil {
		return nil, errors.New("Capture is required")
	}
	if opts.Detector == nil {
		return nil, errors.New("Detector is required")
	}
	if opts.Reader == nil {
		return nil, errors.New("Reader is required")
	}
	if opts.Filter == nil {
		opts.Filter = RejectOverlay
	}
	return &Pipeline{opts: opts}, nil
}

// Run returns nil, nil when the window is absent or nothing was detected.
func (p *Pipeline) Run(ctx context.Context) (*Tooltip, error) {
	tip, outcome, err := p.run(ctx)
	if p.opts.Recorder != nil {
		p.opts.Recorder.ObserveOutcome(outcome)
	}
	return tip, err
}

func (p *Pipeline) run(ctx context.Context) (*Tooltip, string, error) {
	start := time.Now()
	frame, win, err := p.opts.Capture.Capture(ctx)
	p.stage("capture", start)
	if err != nil {
		return nil, OutcomeError, fmt.Errorf("capture: %w", err)
	}
	if frame == nil {
		log.Printf("Pipeline: target window not available")
		return nil, OutcomeNoWindow, nil
	}

	start = time.Now()
	cands, err := p.opts.Detector.Detect(frame)
	p.stage("detect", start)
	if err != nil {
		return nil, OutcomeError, fmt.Errorf("detect: %w", err)
	}
	if len(cands) == 0 {
		return nil, OutcomeNoDetection, nil
	}

	for i, c := range cands {
		if err := ctx.Err(); err != nil {
			return nil, OutcomeError, err
		}
		start = time.Now()
		text, err := p.opts.Reader.Read(frame, c.Rect())
		p.stage("ocr", start)
		if err != nil {
			return nil, OutcomeError, fmt.Errorf("ocr: %w", err)
		}
		if p.opts.Filter(text) {
			log.Printf("Pipeline: candidate %d at %v rejected as overlay tooltip", i, c.Box)
			continue
		}
		return &Tooltip{Text: text, Box: c.Box, Score: c.Score, Window: win, Frame: frame}, OutcomeFound, nil
	}
	return nil, OutcomeRejected, ErrAllCandidatesRejected
}

func (p *Pipeline) stage(name string, start time.Time) {
	if p.opts.Recorder != nil {
		p.opts.Recorder.ObserveStage(name, time.Since(start))
	}
}
