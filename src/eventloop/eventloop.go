// Package eventloop is the resident's single-threaded coordinator: hotkey and
// tray triggers plus delegated run-once requests all funnel into one select
// loop, and scan results come back to it before they are delivered.
package eventloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"tooltip-ocr/src/bridge"
	"tooltip-ocr/src/singleinstance"
	"tooltip-ocr/src/worker"
)

var ErrBusy = errors.New("Busy, please retry")

// Scanner is the bridge as seen by the loop.
type Scanner interface {
	GetTooltip(ctx context.Context) *worker.Future[*bridge.Result]
}

// Desktop holds the side effects of a locally triggered scan. ShowResult and
// ShowError run on their own goroutine so a dialog never stalls the loop.
type Desktop struct {
	CopyText      func(text string) error
	ShowResult    func(text string)
	ShowError     func(msg string)
	UpdateTooltip func(text string)
	SetAboutExtra func(text string)
}

type Options struct {
	Server      singleinstance.Server
	Deadline    time.Duration
	Concurrency int
	Desktop     Desktop
}

type Loop struct {
	scanner  Scanner
	srv      singleinstance.Server
	pool     *worker.Pool[*bridge.Result]
	deadline time.Duration
	desk     Desktop

	inflight atomic.Int32
	results  chan result
	triggers chan struct{}
}

type result struct {
	res    *bridge.Result
	err    error
	target resultTarget
	cancel context.CancelFunc
}

type resultTarget interface {
	OnSuccess(res *bridge.Result) error
	OnEmpty()
	OnError(err error)
	Close()
}

func New(scanner Scanner, opts Options) *Loop {
	if opts.Deadline <= 0 {
		opts.Deadline = 10 * time.Second
	}
	if opts.Server == nil {
		opts.Server = singleinstance.NewServer()
	}
	return &Loop{
		scanner:  scanner,
		srv:      opts.Server,
		pool:     worker.NewPool[*bridge.Result](opts.Concurrency),
		deadline: opts.Deadline,
		desk:     opts.Desktop,
		results:  make(chan result, 4),
		triggers: make(chan struct{}, 4),
	}
}

// Trigger requests a local scan. Safe from any goroutine; extra triggers while
// the queue is full are dropped.
func (l *Loop) Trigger() {
	select {
	case l.triggers <- struct{}{}:
	default:
	}
}

// Run starts the single-instance server and processes requests until ctx ends.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.srv.Start(ctx); err != nil {
		return err
	}
	defer l.srv.Close()
	if p := l.srv.Port(); p > 0 {
		log.Printf("Resident listening on 127.0.0.1:%d", p)
		call(l.desk.SetAboutExtra, fmt.Sprintf("Resident TCP port: %d", p))
	}
	defer l.pool.Wait()

	reqCh := make(chan singleinstance.Conn, 4)
	go func() {
		defer close(reqCh)
		for {
			conn, err := l.srv.Next(ctx)
			if err != nil {
				return
			}
			select {
			case reqCh <- conn:
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.triggers:
			l.start(ctx, desktopTarget{l.desk})
		case conn, ok := <-reqCh:
			if !ok {
				return nil
			}
			l.start(ctx, delegatedTarget{conn: conn, desk: l.desk})
		case r := <-l.results:
			l.handleResult(r)
		}
	}
}

func (l *Loop) start(ctx context.Context, target resultTarget) {
	jobCtx, cancel := context.WithTimeout(ctx, l.deadline)
	fut := l.pool.Submit(jobCtx, func(ctx context.Context) (*bridge.Result, error) {
		return l.scanner.GetTooltip(ctx).Wait(ctx)
	})
	if fut == nil {
		cancel()
		log.Printf("eventloop: busy, rejecting request")
		target.OnError(ErrBusy)
		target.Close()
		return
	}
	l.setBusy(l.inflight.Add(1))
	fut.Then(func(res *bridge.Result, err error) {
		select {
		case l.results <- result{res: res, err: err, target: target, cancel: cancel}:
		case <-ctx.Done():
			cancel()
			target.Close()
		}
	})
}

func (l *Loop) handleResult(r result) {
	defer func() {
		r.cancel()
		r.target.Close()
		l.setBusy(l.inflight.Add(-1))
	}()
	switch {
	case r.err != nil:
		log.Printf("eventloop: scan failed: %v", r.err)
		r.target.OnError(r.err)
	case r.res == nil:
		log.Printf("eventloop: no tooltip")
		r.target.OnEmpty()
	default:
		if err := r.target.OnSuccess(r.res); err != nil {
			log.Printf("eventloop: delivery error: %v", err)
			r.target.OnError(err)
		}
	}
}

func (l *Loop) setBusy(n int32) {
	if n > 0 {
		call(l.desk.UpdateTooltip, "Tooltip OCR: scanning...")
	} else {
		call(l.desk.UpdateTooltip, "Tooltip OCR")
	}
}

func call(fn func(string), s string) {
	if fn != nil {
		fn(s)
	}
}

// desktopTarget copies the text and shows a short confirmation.
type desktopTarget struct{ desk Desktop }

func (t desktopTarget) OnSuccess(res *bridge.Result) error {
	if t.desk.CopyText != nil {
		if err := t.desk.CopyText(res.Text); err != nil {
			return err
		}
	}
	if t.desk.ShowResult != nil {
		go t.desk.ShowResult(res.Text)
	}
	return nil
}

func (t desktopTarget) OnEmpty() {}

func (t desktopTarget) OnError(err error) {
	if t.desk.ShowError != nil {
		go t.desk.ShowError(bridge.Message(err))
	}
}

func (desktopTarget) Close() {}

// delegatedTarget answers a run-once client.
type delegatedTarget struct {
	conn singleinstance.Conn
	desk Desktop
}

func (t delegatedTarget) OnSuccess(res *bridge.Result) error {
	if t.conn.Request().Copy && t.desk.CopyText != nil {
		if err := t.desk.CopyText(res.Text); err != nil {
			log.Printf("eventloop: clipboard: %v", err)
		}
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return t.conn.RespondSuccess(payload)
}

func (t delegatedTarget) OnEmpty() { _ = t.conn.RespondEmpty() }

func (t delegatedTarget) OnError(err error) { _ = t.conn.RespondError(bridge.Message(err)) }

func (t delegatedTarget) Close() { _ = t.conn.Close() }
