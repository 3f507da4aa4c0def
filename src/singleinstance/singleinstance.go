package singleinstance

// Single-instance ownership and scan delegation between processes.

import (
	"context"
	"errors"
)

// ErrNoTooltip is returned by a client when the resident scanned but found
// nothing on screen.
var ErrNoTooltip = errors.New("no tooltip on screen")

// Server owns the TCP endpoint and answers scan requests.
type Server interface {
	// Start listens on the first port of the configured range.
	Start(ctx context.Context) error
	// Port returns the bound TCP port, or 0 if not started.
	Port() int
	// Next returns the next accepted scan request, or ctx error.
	Next(ctx context.Context) (Conn, error)
	Close() error
}

// Conn is one pending scan request.
type Conn interface {
	Request() Request
	// RespondSuccess sends the tooltip payload (JSON).
	RespondSuccess(payload []byte) error
	// RespondEmpty reports that nothing was on screen.
	RespondEmpty() error
	RespondError(msg string) error
	Close() error
}

type Request struct {
	// Copy asks the resident to also place the text on its clipboard.
	Copy bool
}

// Client delegates a scan to a running resident.
type Client interface {
	// TryScan returns delegated=false, err=nil when no resident answers.
	TryScan(ctx context.Context, req Request) (delegated bool, payload []byte, err error)
}

func NewServer() Server { return newTcpServer() }

func NewClient() Client { return newTcpClient() }
