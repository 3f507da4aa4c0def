package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"tooltip-ocr/src/window"
)

type fakeSession struct {
	// queue of TryNext results; true means a frame is available
	ready  []bool
	calls  int
	err    error
	closed bool
}

func (s *fakeSession) TryNext() (*Frame, bool, error) {
	i := s.calls
	s.calls++
	if s.err != nil {
		return nil, false, s.err
	}
	if i < len(s.ready) && s.ready[i] {
		f := NewFrame(4, 4, FormatBGRA)
		f.Pix[0] = byte(i)
		return f, true, nil
	}
	return nil, false, nil
}

func (s *fakeSession) Close() error { s.closed = true; return nil }

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time        { return c.t }
func (c *fakeClock) sleep(d time.Duration) { c.t = c.t.Add(d) }

func newTestCompositor(open OpenSession) (*CompositorSource, *fakeClock, *[]time.Duration) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	var sleeps []time.Duration
	s := NewCompositorSource(open, nil)
	s.now = clock.now
	s.sleep = func(d time.Duration) {
		sleeps = append(sleeps, d)
		clock.sleep(d)
	}
	return s, clock, &sleeps
}

func TestCompositorWarmUpAndDiscards(t *testing.T) {
	sess := &fakeSession{ready: []bool{true, true, true, false, true}}
	s, _, sleeps := newTestCompositor(func(uintptr) (CompositorSession, error) { return sess, nil })

	f, err := s.Capture(context.Background(), window.Info{Handle: 9})
	if err != nil {
		t.Fatal(err)
	}
	if f.Pix[0] != 4 {
		t.Errorf("got frame %d, want the first frame after discards (4)", f.Pix[0])
	}
	got := *sleeps
	if len(got) < 4 || got[0] != 50*time.Millisecond {
		t.Fatalf("sleeps = %v, want 50ms warm-up first", got)
	}
	for i := 1; i <= 3; i++ {
		if got[i] != 25*time.Millisecond {
			t.Errorf("discard gap %d = %v, want 25ms", i, got[i])
		}
	}
}

func TestCompositorReusesSessionPerHandle(t *testing.T) {
	var opened []uintptr
	var sessions []*fakeSession
	s, _, _ := newTestCompositor(func(h uintptr) (CompositorSession, error) {
		opened = append(opened, h)
		sess := &fakeSession{ready: []bool{false, false, false, true, false, false, false, true}}
		sessions = append(sessions, sess)
		return sess, nil
	})

	for _, h := range []uintptr{1, 1, 2} {
		if _, err := s.Capture(context.Background(), window.Info{Handle: h}); err != nil {
			t.Fatalf("handle %d: %v", h, err)
		}
	}
	if len(opened) != 2 || opened[1] != 2 {
		t.Fatalf("opened = %v, want [1 2]", opened)
	}
	if !sessions[0].closed {
		t.Error("session for the old handle was not closed")
	}
}

func TestCompositorTimeoutKeepsSession(t *testing.T) {
	opens := 0
	sess := &fakeSession{}
	s, _, _ := newTestCompositor(func(uintptr) (CompositorSession, error) {
		opens++
		return sess, nil
	})

	for i := 0; i < 2; i++ {
		_, err := s.Capture(context.Background(), window.Info{Handle: 1})
		if !errors.Is(err, ErrWaitTimeout) {
			t.Fatalf("call %d: err = %v, want ErrWaitTimeout", i, err)
		}
	}
	if opens != 1 {
		t.Errorf("opens = %d, want 1", opens)
	}
	if sess.closed {
		t.Error("a timeout must not close the session")
	}
}

func TestCompositorSessionErrorDropsSession(t *testing.T) {
	sess := &fakeSession{err: ErrAccessLost}
	s, _, _ := newTestCompositor(func(uintptr) (CompositorSession, error) { return sess, nil })

	if _, err := s.Capture(context.Background(), window.Info{Handle: 1}); !errors.Is(err, ErrAccessLost) {
		t.Fatalf("err = %v, want ErrAccessLost", err)
	}
	if !sess.closed {
		t.Error("failed session should be released for lazy rebuild")
	}
}

func TestCompositorOpenFailure(t *testing.T) {
	boom := errors.New("CreateForWindow failed")
	s, _, _ := newTestCompositor(func(uintptr) (CompositorSession, error) { return nil, boom })
	if _, err := s.Capture(context.Background(), window.Info{Handle: 1}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestCompositorCropsToClient(t *testing.T) {
	sess := &fakeSession{ready: []bool{false, false, false, true}}
	s, _, _ := newTestCompositor(func(uintptr) (CompositorSession, error) { return sess, nil })
	win := window.Info{
		Handle: 1,
		Bounds: window.Bounds{X: 100, Y: 100, Width: 4, Height: 4},
		Client: window.Bounds{X: 101, Y: 102, Width: 2, Height: 2},
	}
	f, err := s.Capture(context.Background(), win)
	if err != nil {
		t.Fatal(err)
	}
	if f.Width != 2 || f.Height != 2 {
		t.Errorf("frame %dx%d, want client 2x2", f.Width, f.Height)
	}
}

func TestCropClientUsesVisibleFrame(t *testing.T) {
	// 7px invisible border on the left of GetWindowRect
	win := window.Info{
		Bounds:  window.Bounds{X: 100, Y: 100, Width: 24, Height: 10},
		Visible: window.Bounds{X: 107, Y: 100, Width: 10, Height: 6},
		Client:  window.Bounds{X: 108, Y: 104, Width: 8, Height: 2},
	}
	f := NewFrame(10, 6, FormatBGRA)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			f.Pix[y*f.Stride+x*4] = byte(x)
			f.Pix[y*f.Stride+x*4+1] = byte(y)
		}
	}

	got, err := cropClient(f, win)
	if err != nil {
		t.Fatal(err)
	}
	if got.Width != 8 || got.Height != 2 {
		t.Fatalf("frame %dx%d, want 8x2", got.Width, got.Height)
	}
	if x, y := got.Pix[0], got.Pix[1]; x != 1 || y != 4 {
		t.Errorf("client origin maps to frame (%d,%d), want (1,4)", x, y)
	}

	win.Visible = window.Bounds{}
	got, err = cropClient(f, win)
	if err != nil {
		t.Fatal(err)
	}
	if x := got.Pix[0]; x != 8 {
		t.Errorf("without a visible frame the origin falls back to the window rect: x = %d, want 8", x)
	}
}
