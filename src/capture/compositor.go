package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"tooltip-ocr/src/window"
)

// CompositorSession is a running capture session for one window. TryNext never
// blocks: ok is false when no frame is queued.
type CompositorSession interface {
	TryNext() (f *Frame, ok bool, err error)
	Close() error
}

type OpenSession func(hwnd uintptr) (CompositorSession, error)

// CompositorSource captures through the window compositor. Sessions are built
// lazily per window handle; the pool buffers one frame, so stale frames are
// drained before the pull.
type CompositorSource struct {
	open    OpenSession
	probe   func() error
	session CompositorSession
	hwnd    uintptr

	WarmUp      time.Duration
	Discards    int
	DiscardGap  time.Duration
	PullTimeout time.Duration
	Poll        time.Duration

	sleep func(time.Duration)
	now   func() time.Time
}

// NewCompositorSource builds a source. probe, when set, runs at Init and
// reports whether the platform supports compositor capture.
func NewCompositorSource(open OpenSession, probe func() error) *CompositorSource {
	return &CompositorSource{
		open:        open,
		probe:       probe,
		WarmUp:      50 * time.Millisecond,
		Discards:    3,
		DiscardGap:  25 * time.Millisecond,
		PullTimeout: 500 * time.Millisecond,
		Poll:        5 * time.Millisecond,
		sleep:       time.Sleep,
		now:         time.Now,
	}
}

func (s *CompositorSource) Method() Method { return MethodCompositor }

func (s *CompositorSource) Init() error {
	if s.probe == nil {
		return nil
	}
	return s.probe()
}

func (s *CompositorSource) Capture(ctx context.Context, win window.Info) (*Frame, error) {
	if s.session != nil && s.hwnd != win.Handle {
		s.release()
	}
	if s.session == nil {
		sess, err := s.open(win.Handle)
		if err != nil {
			return nil, fmt.Errorf("start session: %w", err)
		}
		s.session = sess
		s.hwnd = win.Handle
		s.sleep(s.WarmUp)
	}

	f, err := s.pull(ctx)
	if err != nil {
		// timeouts keep the session; anything else rebuilds it on the next call
		if !errors.Is(err, ErrWaitTimeout) && ctx.Err() == nil {
			s.release()
		}
		return nil, err
	}
	return cropClient(f, win)
}

func (s *CompositorSource) pull(ctx context.Context) (*Frame, error) {
	for i := 0; i < s.Discards; i++ {
		if _, _, err := s.session.TryNext(); err != nil {
			return nil, err
		}
		s.sleep(s.DiscardGap)
	}
	deadline := s.now().Add(s.PullTimeout)
	for {
		f, ok, err := s.session.TryNext()
		if err != nil {
			return nil, err
		}
		if ok {
			return f, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.now().Before(deadline) {
			return nil, ErrWaitTimeout
		}
		s.sleep(s.Poll)
	}
}

// cropClient trims the window frame when the capture covers the full window.
// Compositor frames start at the visible frame, not at GetWindowRect, which
// includes the invisible resize borders.
func cropClient(f *Frame, win window.Info) (*Frame, error) {
	if win.Client.Empty() || (f.Width == win.Client.Width && f.Height == win.Client.Height) {
		return f, nil
	}
	origin := win.Visible
	if origin.Empty() {
		origin = win.Bounds
	}
	off := rect(win.Client).Sub(rect(origin).Min)
	return f.Crop(off)
}

func (s *CompositorSource) release() {
	if s.session != nil {
		if err := s.session.Close(); err != nil {
			log.Printf("capture: closing compositor session: %v", err)
		}
		s.session = nil
	}
	s.hwnd = 0
}

func (s *CompositorSource) Close() error {
	s.release()
	return nil
}
