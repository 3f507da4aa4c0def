package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tooltip-ocr/src/bridge"
	"tooltip-ocr/src/bridge/stages"
	"tooltip-ocr/src/config"
	"tooltip-ocr/src/history"
	"tooltip-ocr/src/logutil"
	"tooltip-ocr/src/mcp"
	"tooltip-ocr/src/runtimeinit"
)

type serverOptions struct {
	envPath  string
	tessdata string
	model    string
}

func main() {
	if err := newRootCmd(&serverOptions{}).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(opts *serverOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tooltip-mcp",
		Short:         "Serve tooltip scans to MCP clients over stdio",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(*opts)
		},
	}
	cmd.Flags().StringVar(&opts.envPath, "env", "", "Path to a .env file (highest precedence)")
	cmd.Flags().StringVar(&opts.tessdata, "tessdata", "", "Tesseract data directory")
	cmd.Flags().StringVar(&opts.model, "model", "", "Tooltip detection model (.onnx)")
	return cmd
}

func serve(opts serverOptions) error {
	// stdout carries the protocol; logs must stay off it
	cfg, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions: config.LoadOptions{
			EnvPathOverride:  opts.envPath,
			TessdataOverride: opts.tessdata,
			ModelOverride:    opts.model,
		},
		SetupLogging: func(file bool) { logutil.Setup(file, os.Stderr) },
	})
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
	if !b.Initialize(cfg.TessdataPath, cfg.ModelPath, nil) {
		return fmt.Errorf("initialization failed, see stderr")
	}
	defer b.Cleanup()

	var hist *history.Store
	if cfg.HistoryDB != "" {
		if hist, err = history.Open(cfg.HistoryDB); err != nil {
			log.Printf("mcp: recent_scans disabled: %v", err)
			hist = nil
		} else {
			defer hist.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Printf("mcp: serving on stdio")
	return mcp.NewServer(b, hist).Run(ctx)
}
