package logutil

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

type Entry struct {
	Time    time.Time
	Level   Level
	Message string
}

// Sink consumes entries on the channel's single consumer goroutine.
type Sink func(Entry)

// Channel is a bounded, non-blocking log pipe from any goroutine to one
// consumer. Entries are dropped when the buffer is full.
type Channel struct {
	ch      chan Entry
	min     Level
	sink    Sink
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

func NewChannel(size int, min Level, sink Sink) *Channel {
	if size <= 0 {
		size = 256
	}
	c := &Channel{
		ch:   make(chan Entry, size),
		min:  min,
		sink: sink,
		done: make(chan struct{}),
	}
	go c.consume()
	return c
}

func (c *Channel) consume() {
	defer close(c.done)
	for e := range c.ch {
		c.deliver(e)
	}
}

func (c *Channel) deliver(e Entry) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("logutil: log sink panicked: %v", r)
		}
	}()
	if c.sink != nil {
		c.sink(e)
	}
}

// Logf mirrors the message to the standard logger and forwards it to the sink
// when level passes the threshold. It never blocks.
func (c *Channel) Logf(level Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[%s] %s", strings.ToUpper(level.String()), msg)
	if c == nil || level < c.min {
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- Entry{Time: time.Now(), Level: level, Message: msg}:
	default:
		c.dropped.Add(1)
	}
}

func (c *Channel) Debugf(format string, args ...any) { c.Logf(LevelDebug, format, args...) }
func (c *Channel) Infof(format string, args ...any)  { c.Logf(LevelInfo, format, args...) }
func (c *Channel) Warnf(format string, args ...any)  { c.Logf(LevelWarn, format, args...) }
func (c *Channel) Errorf(format string, args ...any) { c.Logf(LevelError, format, args...) }

// Dropped counts entries lost to a full buffer.
func (c *Channel) Dropped() uint64 { return c.dropped.Load() }

// Close stops accepting entries and waits for the consumer to drain.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.ch)
	c.mu.Unlock()
	<-c.done
}
