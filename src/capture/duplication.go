package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"tooltip-ocr/src/window"
)

// Duplicator is one desktop duplication bound to one output. Acquire returns a
// deep copy of the whole output.
type Duplicator interface {
	Acquire(timeout time.Duration) (*Frame, error)
	// Desktop is the output's rectangle in desktop coordinates.
	Desktop() window.Bounds
	Close() error
}

// OpenDuplicator creates a fresh device and duplication for the output that
// hosts monitor.
type OpenDuplicator func(monitor uintptr) (Duplicator, error)

// DuplicationSource captures through output duplication. The duplication is
// bound to the monitor hosting the window and rebuilt when that changes or the
// device is lost.
type DuplicationSource struct {
	open     OpenDuplicator
	dup      Duplicator
	monitor  uintptr
	Attempts int
	Timeout  time.Duration
	Backoff  time.Duration
	// Probe, when set, runs at Init.
	Probe func() error
	sleep func(time.Duration)
}

func NewDuplicationSource(open OpenDuplicator) *DuplicationSource {
	return &DuplicationSource{
		open:     open,
		Attempts: 3,
		Timeout:  100 * time.Millisecond,
		Backoff:  20 * time.Millisecond,
		sleep:    time.Sleep,
	}
}

func (s *DuplicationSource) Method() Method { return MethodDuplication }

func (s *DuplicationSource) Init() error {
	if s.Probe == nil {
		return nil
	}
	return s.Probe()
}

func (s *DuplicationSource) Capture(ctx context.Context, win window.Info) (*Frame, error) {
	if s.dup != nil && win.Monitor != s.monitor {
		log.Printf("capture: window moved to another monitor, rebinding duplication")
		s.release()
	}
	if s.dup == nil {
		if err := s.rebuild(win.Monitor); err != nil {
			return nil, err
		}
	}

	var last error
	for attempt := 1; attempt <= s.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := s.dup.Acquire(s.Timeout)
		if err == nil {
			return s.cropToWindow(f, win)
		}
		last = err
		switch {
		case errors.Is(err, ErrAccessLost):
			log.Printf("capture: duplication access lost (attempt %d), recreating device", attempt)
			s.release()
			if err := s.rebuild(win.Monitor); err != nil {
				return nil, err
			}
		case errors.Is(err, ErrWaitTimeout):
		default:
			return nil, err
		}
		if attempt < s.Attempts {
			s.sleep(s.Backoff * time.Duration(attempt))
		}
	}
	return nil, fmt.Errorf("duplication gave no frame after %d attempts: %w", s.Attempts, last)
}

func (s *DuplicationSource) cropToWindow(f *Frame, win window.Info) (*Frame, error) {
	desk := s.dup.Desktop()
	area := rect(Area(win)).Sub(rect(desk).Min)
	return f.Crop(area)
}

func (s *DuplicationSource) rebuild(monitor uintptr) error {
	d, err := s.open(monitor)
	if err != nil {
		return fmt.Errorf("open duplication: %w", err)
	}
	s.dup = d
	s.monitor = monitor
	return nil
}

func (s *DuplicationSource) release() {
	if s.dup != nil {
		if err := s.dup.Close(); err != nil {
			log.Printf("capture: closing duplication: %v", err)
		}
		s.dup = nil
	}
	s.monitor = 0
}

func (s *DuplicationSource) Close() error {
	s.release()
	return nil
}
