package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tooltip-ocr/src/bridge"
	"tooltip-ocr/src/bridge/stages"
	"tooltip-ocr/src/capture"
	"tooltip-ocr/src/config"
	"tooltip-ocr/src/history"
	"tooltip-ocr/src/logutil"
	"tooltip-ocr/src/pipeline"
	"tooltip-ocr/src/window"
)

const (
	maxFileSizeMB = 20
	maxFileSize   = maxFileSizeMB * 1024 * 1024
)

type cliOptions struct {
	envPath    string
	tessdata   string
	model      string
	jsonOutput bool
	verbose    bool

	filePath string
	limit    int
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &cliOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(os.Args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "tooltip-cli",
		Short:         "Read game tooltips from the screen or from screenshots",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Configure logging BEFORE any other operations.
			if opts.verbose {
				logutil.Setup(false, os.Stderr)
			} else {
				logutil.Setup(false, io.Discard)
			}
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.envPath, "env", "", "Path to a .env file (highest precedence)")
	pf.StringVar(&opts.tessdata, "tessdata", "", "Tesseract data directory")
	pf.StringVar(&opts.model, "model", "", "Tooltip detection model (.onnx)")
	pf.BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")

	scan := &cobra.Command{
		Use:   "scan",
		Short: "Scan the game window once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), *opts, cmd.OutOrStdout())
		},
	}

	img := &cobra.Command{
		Use:   "image",
		Short: "Find and read the tooltip in a saved screenshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImage(*opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	img.Flags().StringVar(&opts.filePath, "file", "", "Path to PNG file (use '-' for stdin)")
	_ = img.MarkFlagRequired("file")

	hist := &cobra.Command{
		Use:   "history",
		Short: "List recent scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), *opts, cmd.OutOrStdout())
		},
	}
	hist.Flags().IntVar(&opts.limit, "limit", 20, "Number of entries to show")

	root.AddCommand(scan, img, hist)
	return root
}

func loadConfig(opts cliOptions) (*config.Config, error) {
	cfg, err := config.LoadWithOptions(config.LoadOptions{
		EnvPathOverride:  opts.envPath,
		TessdataOverride: opts.tessdata,
		ModelOverride:    opts.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.verbose {
		fmt.Fprintf(os.Stderr, "[verbose] tessdata=%s model=%s capture=%s\n",
			cfg.TessdataPath, cfg.ModelPath, cfg.Settings.CaptureMethod)
	}
	return cfg, nil
}

// Output is what every reading subcommand prints.
type Output struct {
	Found     bool    `json:"found"`
	Text      string  `json:"text,omitempty"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Source    string  `json:"source"`
	Timestamp string  `json:"timestamp"`
	Duration  float64 `json:"duration_seconds"`
}

func runScan(ctx context.Context, opts cliOptions, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	level, _ := logutil.ParseLevel(cfg.LogLevel)
	b := bridge.New(bridge.Options{
		Factory:     stages.NewFactory(cfg, nil),
		Deadline:    time.Duration(cfg.RequestDeadline) * time.Second,
		LogLevel:    level,
		HistoryPath: cfg.HistoryDB,
	})
	var sink bridge.LogFunc
	if opts.verbose {
		sink = func(l logutil.Level, msg string) { fmt.Fprintf(os.Stderr, "[%s] %s\n", l, msg) }
	}
	if !b.Initialize(cfg.TessdataPath, cfg.ModelPath, sink) {
		return errors.New("initialization failed (use -v for details)")
	}
	defer b.Cleanup()

	start := time.Now()
	res, err := b.GetTooltip(ctx).Wait(ctx)
	if err != nil {
		return errors.New(bridge.Message(err))
	}
	out := Output{Source: "screen", Timestamp: time.Now().UTC().Format(time.RFC3339), Duration: time.Since(start).Seconds()}
	if res != nil {
		out.Found, out.Text = true, res.Text
		out.X, out.Y, out.Width, out.Height = res.X, res.Y, res.Width, res.Height
	}
	return writeOutput(w, out, opts.jsonOutput)
}

func runImage(opts cliOptions, stdin io.Reader, w io.Writer) error {
	data, err := readInput(opts.filePath, stdin)
	if err != nil {
		return err
	}
	if err := validatePNG(data); err != nil {
		return err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode %s: %w", opts.filePath, err)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if cfg.TessdataPath == "" || cfg.ModelPath == "" {
		return errors.New("TESSDATA_PATH and MODEL_PATH are required")
	}
	factory := stages.NewFactory(cfg, nil)
	det, err := factory.Detector(cfg.ModelPath)
	if err != nil {
		return err
	}
	defer det.Close()
	reader, err := factory.Reader(cfg.TessdataPath)
	if err != nil {
		return err
	}
	defer reader.Close()

	p, err := pipeline.New(pipeline.Options{
		Capture:  staticCapture{capture.FromImage(img)},
		Detector: det,
		Reader:   reader,
	})
	if err != nil {
		return err
	}
	start := time.Now()
	tip, err := p.Run(context.Background())
	if err != nil {
		return err
	}
	out := Output{Source: opts.filePath, Timestamp: time.Now().UTC().Format(time.RFC3339), Duration: time.Since(start).Seconds()}
	if tip != nil {
		out.Found, out.Text = true, tip.Text
		out.X, out.Y, out.Width, out.Height = tip.Box.Left, tip.Box.Top, tip.Box.Width, tip.Box.Height
	}
	return writeOutput(w, out, opts.jsonOutput)
}

// staticCapture serves one decoded screenshot as if it were the game window.
type staticCapture struct{ f *capture.Frame }

func (s staticCapture) Capture(context.Context) (*capture.Frame, window.Info, error) {
	b := window.Bounds{Width: s.f.Width, Height: s.f.Height}
	return s.f, window.Info{Bounds: b, Client: b, DPIScale: 1}, nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(io.LimitReader(r, maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("input file is empty")
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	}
	return data, nil
}

var pngMagic = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

func validatePNG(data []byte) error {
	if len(data) < len(pngMagic) || !bytes.Equal(data[:len(pngMagic)], pngMagic) {
		return fmt.Errorf("input is not a valid PNG file (invalid magic number)")
	}
	return nil
}

func writeOutput(w io.Writer, out Output, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("failed to encode JSON output: %w", err)
		}
		return nil
	}
	if !out.Found {
		log.Printf("no tooltip found in %s", out.Source)
		return nil
	}
	_, err := fmt.Fprintln(w, out.Text)
	return err
}

func runHistory(ctx context.Context, opts cliOptions, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if cfg.HistoryDB == "" {
		return errors.New("HISTORY_DB is not set")
	}
	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()
	entries, err := store.Recent(ctx, opts.limit)
	if err != nil {
		return err
	}
	if opts.jsonOutput {
		return writeHistoryJSON(w, entries)
	}
	return writeHistory(w, entries, isTerminal(w))
}

type historyJSON struct {
	ID        int64  `json:"id"`
	RequestID string `json:"request_id"`
	ScannedAt string `json:"scanned_at"`
	Text      string `json:"text"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

func writeHistoryJSON(w io.Writer, entries []history.Entry) error {
	out := make([]historyJSON, len(entries))
	for i, e := range entries {
		out[i] = historyJSON{e.ID, e.RequestID, e.ScannedAt.UTC().Format(time.RFC3339), e.Text, e.X, e.Y, e.Width, e.Height}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// writeHistory prints one entry per line. On a terminal the text is cut to
// the first line and a header is added.
func writeHistory(w io.Writer, entries []history.Entry, tty bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if tty {
		fmt.Fprintln(tw, "ID\tTIME\tBOX\tTEXT")
	}
	for _, e := range entries {
		text := strings.ReplaceAll(e.Text, "\n", " | ")
		if tty {
			text, _, _ = strings.Cut(e.Text, "\n")
		}
		fmt.Fprintf(tw, "%d\t%s\t%dx%d@%d,%d\t%s\n",
			e.ID, e.ScannedAt.Local().Format("2006-01-02 15:04:05"), e.Width, e.Height, e.X, e.Y, text)
	}
	return tw.Flush()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
