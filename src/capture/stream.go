package capture

import (
	"context"
	"log"
	"sync"
	"time"

	"tooltip-ocr/src/window"
)

// Stream polls a Capturer in the background and serves the latest frame from a
// Slot, so readers never wait on a capture.
type Stream struct {
	src      Capturer
	slot     Slot
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewStream(src Capturer, interval time.Duration) *Stream {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Stream{src: src, interval: interval}
}

// Start launches the polling goroutine. Calling Start twice is a no-op.
func (s *Stream) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
}

func (s *Stream) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		s.poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (s *Stream) poll(ctx context.Context) {
	f, info, err := s.src.Capture(ctx)
	switch {
	case err != nil:
		if ctx.Err() == nil {
			log.Printf("capture: stream poll failed: %v", err)
		}
	case f == nil:
		s.slot.Reset()
	default:
		s.slot.Publish(f, info)
	}
}

// Capture returns the newest frame without blocking on the source.
func (s *Stream) Capture(ctx context.Context) (*Frame, window.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, window.Info{}, err
	}
	f, info, _ := s.slot.Take()
	return f, info, nil
}

func (s *Stream) Stats() SlotStats { return s.slot.Stats() }

// Stop ends polling and waits for the goroutine to exit.
func (s *Stream) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
