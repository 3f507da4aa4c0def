package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestGoResolves(t *testing.T) {
	f := Go(context.Background(), func(context.Context) (int, error) { return 7, nil })
	v, err := f.Wait(context.Background())
	if v != 7 || err != nil {
		t.Fatalf("Wait = %d, %v", v, err)
	}
}

func TestGoRecoversPanic(t *testing.T) {
	f := Go(context.Background(), func(context.Context) (string, error) {
		var m map[string]int
		m["boom"] = 1
		return "", nil
	})
	_, err := f.Wait(context.Background())
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PanicError", err)
	}
	if !strings.HasPrefix(err.Error(), "unknown failure:") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestWaitHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	f := Go(context.Background(), func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestThen(t *testing.T) {
	got := make(chan int, 1)
	Go(context.Background(), func(context.Context) (int, error) { return 3, nil }).
		Then(func(v int, _ error) { got <- v })
	select {
	case v := <-got:
		if v != 3 {
			t.Errorf("Then got %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Then callback never ran")
	}
}

func TestPoolDropsWhenFull(t *testing.T) {
	p := NewPool[int](1)
	release := make(chan struct{})
	first := p.Submit(context.Background(), func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	if first == nil {
		t.Fatal("first submit dropped")
	}
	if p.Submit(context.Background(), func(context.Context) (int, error) { return 2, nil }) != nil {
		t.Fatal("second submit should be dropped while the slot is busy")
	}
	close(release)
	if v, _ := first.Wait(context.Background()); v != 1 {
		t.Fatalf("first = %d", v)
	}
	p.Wait()
	if p.Submit(context.Background(), func(context.Context) (int, error) { return 3, nil }) == nil {
		t.Fatal("slot not released after completion")
	}
	p.Wait()
}
