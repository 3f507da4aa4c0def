package worker

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
)

// Func is one unit of work.
type Func[T any] func(ctx context.Context) (T, error)

// Future is the eventual result of a Func started with Go.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// PanicError is what a Future resolves to when its Func panics.
type PanicError struct {
	Value    any
	Platform string
	Stack    []byte
}

func (e *PanicError) Error() string {
	msg := fmt.Sprintf("unknown failure: %v", e.Value)
	if e.Platform != "" {
		msg += " (last platform error: " + e.Platform + ")"
	}
	return msg
}

// Go runs fn on its own goroutine. A panic inside fn resolves the future with a
// *PanicError instead of crashing the process.
func Go[T any](ctx context.Context, fn Func[T]) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				pe := &PanicError{Value: r, Platform: lastPlatformError(), Stack: debug.Stack()}
				log.Printf("Worker: recovered panic: %v\n%s", r, pe.Stack)
				f.err = pe
			}
		}()
		f.val, f.err = fn(ctx)
	}()
	return f
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the result is ready or ctx ends. The work keeps running in
// the background when ctx ends first.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then calls cb from a new goroutine once the result is ready.
func (f *Future[T]) Then(cb func(T, error)) {
	go func() {
		<-f.done
		cb(f.val, f.err)
	}()
}

// Pool bounds how many Funcs run at once. Submit never queues: when every slot
// is busy the work is dropped and Submit returns nil.
type Pool[T any] struct {
	slots chan struct{}
	wg    sync.WaitGroup
}

// NewPool creates a pool with size concurrent slots (at least one).
func NewPool[T any](size int) *Pool[T] {
	if size <= 0 {
		size = 1
	}
	return &Pool[T]{slots: make(chan struct{}, size)}
}

func (p *Pool[T]) Submit(ctx context.Context, fn Func[T]) *Future[T] {
	select {
	case p.slots <- struct{}{}:
	default:
		return nil
	}
	p.wg.Add(1)
	return Go(ctx, func(ctx context.Context) (T, error) {
		defer func() {
			<-p.slots
			p.wg.Done()
		}()
		return fn(ctx)
	})
}

// Wait blocks until all submitted work finished.
func (p *Pool[T]) Wait() {
	p.wg.Wait()
}
