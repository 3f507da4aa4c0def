// Package mcp exposes tooltip scanning as MCP tools over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"tooltip-ocr/src/bridge"
	"tooltip-ocr/src/history"
	"tooltip-ocr/src/worker"
)

const (
	ServerName    = "tooltip-ocr"
	ServerVersion = "0.1.0"

	maxTimeout     = 60 * time.Second
	defaultTimeout = 10 * time.Second
)

type Scanner interface {
	GetTooltip(ctx context.Context) *worker.Future[*bridge.Result]
}

type Server struct {
	mcpServer *mcpsdk.Server
	scanner   Scanner
	history   *history.Store
}

// NewServer registers the tools. hist may be nil, which hides recent_scans.
func NewServer(scanner Scanner, hist *history.Store) *Server {
	s := &Server{scanner: scanner, history: hist}
	s.mcpServer = mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}, nil)
	s.registerTools()
	return s
}

// Run serves on stdio until the client disconnects or ctx ends.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_tooltip",
		Description: "Capture the Dark and Darker window, find the item tooltip on screen and return its text and position in window pixels. found=false when no tooltip is visible.",
	}, s.handleGetTooltip)

	if s.history != nil {
		mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
			Name:        "recent_scans",
			Description: "List the most recent successful tooltip scans, newest first.",
		}, s.handleRecentScans)
	}
}

type GetTooltipInput struct {
	TimeoutSeconds int `json:"timeout_seconds,omitempty" jsonschema:"Maximum seconds to wait for the scan (default 10, max 60)"`
}

type GetTooltipOutput struct {
	Found  bool   `json:"found"`
	Text   string `json:"text,omitempty"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func timeout(sec int) time.Duration {
	d := time.Duration(sec) * time.Second
	switch {
	case d <= 0:
		return defaultTimeout
	case d > maxTimeout:
		return maxTimeout
	}
	return d
}

func (s *Server) handleGetTooltip(ctx context.Context, _ *mcpsdk.CallToolRequest, args GetTooltipInput) (*mcpsdk.CallToolResult, GetTooltipOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout(args.TimeoutSeconds))
	defer cancel()

	res, err := s.scanner.GetTooltip(ctx).Wait(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, GetTooltipOutput{}, fmt.Errorf("scan timed out after %v", timeout(args.TimeoutSeconds))
		}
		return nil, GetTooltipOutput{}, errors.New(bridge.Message(err))
	}
	if res == nil {
		return nil, GetTooltipOutput{}, nil
	}
	return nil, GetTooltipOutput{
		Found:  true,
		Text:   res.Text,
		X:      res.X,
		Y:      res.Y,
		Width:  res.Width,
		Height: res.Height,
	}, nil
}

type RecentScansInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Number of scans to return (default 10, max 100)"`
}

type Scan struct {
	ScannedAt time.Time `json:"scanned_at"`
	Text      string    `json:"text"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
}

type RecentScansOutput struct {
	Scans []Scan `json:"scans"`
}

func (s *Server) handleRecentScans(ctx context.Context, _ *mcpsdk.CallToolRequest, args RecentScansInput) (*mcpsdk.CallToolResult, RecentScansOutput, error) {
	limit := args.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	entries, err := s.history.Recent(ctx, limit)
	if err != nil {
		return nil, RecentScansOutput{}, fmt.Errorf("read history: %w", err)
	}
	out := RecentScansOutput{Scans: make([]Scan, 0, len(entries))}
	for _, e := range entries {
		out.Scans = append(out.Scans, Scan{
			ScannedAt: e.ScannedAt.UTC(),
			Text:      e.Text,
			X:         e.X,
			Y:         e.Y,
			Width:     e.Width,
			Height:    e.Height,
		})
	}
	return nil, out, nil
}
