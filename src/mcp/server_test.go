package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"tooltip-ocr/src/bridge"
	"tooltip-ocr/src/history"
	"tooltip-ocr/src/pipeline"
	"tooltip-ocr/src/worker"
)

type fakeScanner struct {
	res *bridge.Result
	err error
}

func (f fakeScanner) GetTooltip(ctx context.Context) *worker.Future[*bridge.Result] {
	return worker.Go(ctx, func(context.Context) (*bridge.Result, error) { return f.res, f.err })
}

func TestHandleGetTooltip(t *testing.T) {
	tests := []struct {
		name    string
		scanner fakeScanner
		want    GetTooltipOutput
		wantErr string
	}{
		{"found", fakeScanner{res: &bridge.Result{Text: "Longsword", X: 5, Y: 6, Width: 70, Height: 80}},
			GetTooltipOutput{Found: true, Text: "Longsword", X: 5, Y: 6, Width: 70, Height: 80}, ""},
		{"nothing", fakeScanner{}, GetTooltipOutput{}, ""},
		{"rejected", fakeScanner{err: pipeline.ErrAllCandidatesRejected}, GetTooltipOutput{}, "GrimVault"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(tt.scanner, nil)
			_, got, err := s.handleGetTooltip(context.Background(), nil, GetTooltipInput{})
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

type slowScanner struct{}

func (slowScanner) GetTooltip(ctx context.Context) *worker.Future[*bridge.Result] {
	return worker.Go(ctx, func(ctx context.Context) (*bridge.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

func TestHandleGetTooltipTimeout(t *testing.T) {
	s := NewServer(slowScanner{}, nil)
	start := time.Now()
	_, _, err := s.handleGetTooltip(context.Background(), nil, GetTooltipInput{TimeoutSeconds: 1})
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("err = %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout not honored")
	}
}

func TestTimeoutClamp(t *testing.T) {
	for in, want := range map[int]time.Duration{0: defaultTimeout, -3: defaultTimeout, 5: 5 * time.Second, 600: maxTimeout} {
		if got := timeout(in); got != want {
			t.Errorf("timeout(%d) = %v, want %v", in, got, want)
		}
	}
}

func connect(t *testing.T, s *Server) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	st, ct := mcpsdk.NewInMemoryTransports()
	ss, err := s.mcpServer.Connect(ctx, st, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ss.Close() })
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "0"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func TestGetTooltipOverTransport(t *testing.T) {
	s := NewServer(fakeScanner{res: &bridge.Result{Text: "Buckler", Width: 10, Height: 20}}, nil)
	cs := connect(t, s)

	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{Name: "get_tooltip", Arguments: map[string]any{}})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %+v", res.Content)
	}
	raw, err := json.Marshal(res.StructuredContent)
	if err != nil {
		t.Fatal(err)
	}
	var got GetTooltipOutput
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if !got.Found || got.Text != "Buckler" || got.Height != 20 {
		t.Errorf("got %+v", got)
	}
}

func TestToolErrorOverTransport(t *testing.T) {
	s := NewServer(fakeScanner{err: errors.New("capture: all capture methods failed")}, nil)
	cs := connect(t, s)

	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{Name: "get_tooltip", Arguments: map[string]any{}})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("expected IsError")
	}
}

func TestRecentScans(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "h.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer store.Close()
	ctx := context.Background()
	for _, text := range []string{"first", "second"} {
		if _, err := store.Add(ctx, history.Entry{RequestID: text, Text: text, Width: 1, Height: 1}, nil); err != nil {
			t.Fatal(err)
		}
	}

	s := NewServer(fakeScanner{}, store)
	_, out, err := s.handleRecentScans(ctx, nil, RecentScansInput{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Scans) != 1 || out.Scans[0].Text != "second" {
		t.Errorf("scans = %+v", out.Scans)
	}
}
