// Package capture produces still frames of the target window. Three sources are
// tried in a fixed order (compositor, duplication, pixel copy); the Backend
// re-evaluates that order on every call and never permanently demotes a source
// for a transient failure.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"strings"
	"sync"
	"time"

	"tooltip-ocr/src/window"
)

type Method string

const (
	MethodCompositor  Method = "wgc"
	MethodDuplication Method = "d3d"
	MethodPixelCopy   Method = "gdi"
)

// Order is the fixed priority of capture methods.
var Order = []Method{MethodCompositor, MethodDuplication, MethodPixelCopy}

// ParseMethod accepts the settings.ini spellings plus a few aliases.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "wgc", "compositor":
		return MethodCompositor, nil
	case "d3d", "dxgi", "duplication":
		return MethodDuplication, nil
	case "gdi", "bitblt", "pixelcopy":
		return MethodPixelCopy, nil
	}
	return "", fmt.Errorf("unknown capture method %q", s)
}

func (m Method) String() string {
	switch m {
	case MethodCompositor:
		return "compositor"
	case MethodDuplication:
		return "duplication"
	case MethodPixelCopy:
		return "pixel-copy"
	}
	return string(m)
}

var (
	ErrAllMethodsFailed = errors.New("all capture methods failed")
	// ErrUnsupported marks a source that can never work on this machine.
	ErrUnsupported = errors.New("capture method unsupported")
	// ErrAccessLost means the device or duplication must be rebuilt.
	ErrAccessLost  = errors.New("capture access lost")
	ErrWaitTimeout = errors.New("timed out waiting for a frame")
	ErrClosed      = errors.New("capture backend closed")
)

// Source is one capture strategy. Capture returns a frame of the window's
// capture area; it must not keep a reference to the returned frame.
type Source interface {
	Method() Method
	Capture(ctx context.Context, win window.Info) (*Frame, error)
	Close() error
}

// Initializer is implemented by sources that need one-time setup. Returning an
// error wrapping ErrUnsupported removes the source for the backend's lifetime.
type Initializer interface {
	Init() error
}

// Recorder receives one observation per source attempt.
type Recorder interface {
	ObserveCapture(m Method, d time.Duration, err error)
}

// Capturer is the contract the pipeline depends on. A nil frame with a nil
// error means the window is not available.
type Capturer interface {
	Capture(ctx context.Context) (*Frame, window.Info, error)
}

// Area returns the part of the window that gets captured: the client area when
// known, else the full window rectangle.
func Area(win window.Info) window.Bounds {
	if !win.Client.Empty() {
		return win.Client
	}
	return win.Bounds
}

func rect(b window.Bounds) image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

type Options struct {
	Locator   window.Locator
	Signature window.Signature
	Sources   []Source
	Preferred Method
	Recorder  Recorder
}

// Backend selects a source per call. All calls are serialized.
type Backend struct {
	mu        sync.Mutex
	locator   window.Locator
	sig       window.Signature
	sources   map[Method]Source
	disabled  map[Method]bool
	preferred Method
	rec       Recorder
	closed    bool
}

func NewBackend(opts Options) *Backend {
	b := &Backend{
		locator:   opts.Locator,
		sig:       opts.Signature,
		sources:   make(map[Method]Source, len(opts.Sources)),
		disabled:  make(map[Method]bool),
		preferred: opts.Preferred,
		rec:       opts.Recorder,
	}
	for _, s := range opts.Sources {
		b.sources[s.Method()] = s
	}
	if b.preferred == "" {
		b.preferred = MethodCompositor
	}
	return b
}

// Initialize runs one-time setup for every source. Unsupported sources are
// dropped; it fails only when no source is left.
func (b *Backend) Initialize(preferred Method) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if preferred != "" {
		b.preferred = preferred
	}
	usable := 0
	for _, m := range Order {
		s, ok := b.sources[m]
		if !ok {
			continue
		}
		if in, ok := s.(Initializer); ok {
			if err := in.Init(); err != nil {
				log.Printf("capture: %s unavailable: %v", m, err)
				if errors.Is(err, ErrUnsupported) {
					b.disabled[m] = true
					continue
				}
			}
		}
		usable++
	}
	if usable == 0 {
		return fmt.Errorf("no capture method available")
	}
	log.Printf("capture: initialized, order %v", b.chain())
	return nil
}

// chain is Order starting at the preferred method.
func (b *Backend) chain() []Method {
	start := 0
	for i, m := range Order {
		if m == b.preferred {
			start = i
			break
		}
	}
	out := make([]Method, 0, len(Order))
	for _, m := range Order[start:] {
		if _, ok := b.sources[m]; ok && !b.disabled[m] {
			out = append(out, m)
		}
	}
	return out
}

// Capture locates the window and walks the source chain. When the window is
// not found it returns (nil, Info{}, nil).
func (b *Backend) Capture(ctx context.Context) (*Frame, window.Info, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, window.Info{}, ErrClosed
	}

	win, ok, err := b.locator.Locate(b.sig)
	if err != nil {
		return nil, window.Info{}, fmt.Errorf("locate window: %w", err)
	}
	if !ok || Area(win).Empty() {
		return nil, window.Info{}, nil
	}

	var errs []error
	for _, m := range b.chain() {
		if err := ctx.Err(); err != nil {
			return nil, win, err
		}
		start := time.Now()
		f, err := b.sources[m].Capture(ctx, win)
		if b.rec != nil {
			b.rec.ObserveCapture(m, time.Since(start), err)
		}
		if err == nil && f != nil {
			return f, win, nil
		}
		if err == nil {
			err = errors.New("no frame")
		}
		log.Printf("capture: %s failed: %v", m, err)
		errs = append(errs, fmt.Errorf("%s: %w", m, err))
	}
	return nil, win, fmt.Errorf("%w: %w", ErrAllMethodsFailed, errors.Join(errs...))
}

// Close releases every source. Safe to call more than once.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	var errs []error
	for _, m := range Order {
		if s, ok := b.sources[m]; ok {
			if err := s.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
