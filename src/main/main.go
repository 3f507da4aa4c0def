package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tooltip-ocr/src/bridge"
	"tooltip-ocr/src/bridge/stages"
	"tooltip-ocr/src/clipboard"
	"tooltip-ocr/src/config"
	"tooltip-ocr/src/eventloop"
	"tooltip-ocr/src/hotkey"
	"tooltip-ocr/src/logutil"
	"tooltip-ocr/src/metrics"
	"tooltip-ocr/src/notification"
	"tooltip-ocr/src/runtimeinit"
	"tooltip-ocr/src/singleinstance"
	"tooltip-ocr/src/tray"
)

type mainOptions struct {
	runOnce  bool
	stdout   bool
	envPath  string
	tessdata string
	model    string
}

func (o mainOptions) loadOptions() config.LoadOptions {
	return config.LoadOptions{
		EnvPathOverride:  o.envPath,
		TessdataOverride: o.tessdata,
		ModelOverride:    o.model,
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args := normalizeLegacyArgs(os.Args)
	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tooltip-ocr",
		Short:         "Read game tooltips from the screen",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.runOnce {
				return runOnce(*opts)
			}
			return runResident(*opts)
		},
	}
	cmd.Flags().BoolVar(&opts.runOnce, "run-once", false, "Scan once, copy the text to the clipboard, and exit")
	cmd.Flags().BoolVar(&opts.stdout, "stdout", false, "With --run-once, print the tooltip JSON instead of copying")
	cmd.Flags().StringVar(&opts.envPath, "env", "", "Path to a .env file (highest precedence)")
	cmd.Flags().StringVar(&opts.tessdata, "tessdata", "", "Tesseract data directory")
	cmd.Flags().StringVar(&opts.model, "model", "", "Tooltip detection model (.onnx)")
	return cmd
}

// normalizeLegacyArgs maps single-dash long flags to their cobra form.
func normalizeLegacyArgs(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 1; i < len(out); i++ {
		a := out[i]
		if !strings.HasPrefix(a, "-") || strings.HasPrefix(a, "--") || len(a) < 3 {
			continue
		}
		name := strings.SplitN(a[1:], "=", 2)[0]
		switch name {
		case "run-once", "stdout", "env", "tessdata", "model":
			out[i] = "-" + a
		}
	}
	return out
}

func runOnce(opts mainOptions) error {
	// .env may carry SINGLEINSTANCE_PORT_* which must apply before delegation
	_, _ = config.LoadWithOptions(opts.loadOptions())
	logutil.Setup(false, os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return handleRunOnceWithDelegation(ctx, opts, singleinstance.NewClient(), func() error {
		return runStandalone(ctx, opts)
	})
}

// handleRunOnceWithDelegation asks a running resident first and falls back to
// an in-process scan when none answers or delegation fails.
func handleRunOnceWithDelegation(ctx context.Context, opts mainOptions, client singleinstance.Client, fallback func() error) error {
	delegated, payload, err := client.TryScan(ctx, singleinstance.Request{Copy: !opts.stdout})
	switch {
	case !delegated:
		log.Printf("No resident detected, running standalone")
		return fallback()
	case errors.Is(err, singleinstance.ErrNoTooltip):
		log.Printf("Delegated to resident: no tooltip on screen")
		return nil
	case err != nil:
		log.Printf("Delegation error: %v; falling back to standalone", err)
		return fallback()
	}
	log.Printf("Delegated to resident")
	if opts.stdout {
		fmt.Println(string(payload))
	}
	return nil
}

func runStandalone(ctx context.Context, opts mainOptions) error {
	cfg, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions:   opts.loadOptions(),
		SetupLogging:  func(file bool) { logutil.Setup(file, os.Stderr) },
		NeedClipboard: !opts.stdout,
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
		return fmt.Errorf("initialization failed, see log for details")
	}
	defer b.Cleanup()

	res, err := b.GetTooltip(ctx).Wait(ctx)
	if err != nil {
		return errors.New(bridge.Message(err))
	}
	if res == nil {
		log.Printf("No tooltip on screen")
		return nil
	}
	if opts.stdout {
		out, err := json.Marshal(res)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	if err := clipboard.Write(res.Text); err != nil {
		return err
	}
	log.Printf("Tooltip copied to clipboard (%d chars)", len(res.Text))
	return nil
}

func runResident(opts mainOptions) error {
	// Ensure DPI awareness before creating any windows or querying metrics
	enableDPIAwareness()
	runtime.LockOSThread()

	_, _ = config.LoadWithOptions(opts.loadOptions())
	startPort, _ := singleinstance.PortRange()
	lis, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", startPort))
	if err != nil {
		fmt.Printf("one is already running on port %d\n", startPort)
		os.Exit(1)
	}
	_ = lis.Close()
	log.Printf("Pre-flight: port %d free", startPort)

	cfg, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions:        opts.loadOptions(),
		SetupLogging:       func(file bool) { logutil.Setup(file, os.Stderr) },
		ShowBlockingErrors: true,
		NeedClipboard:      true,
	})
	if err != nil {
		return err
	}
	logMonitorConfiguration()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var b *bridge.Bridge
	m := metrics.New(func() uint64 { return b.DroppedLogs() })
	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Printf("metrics: %v", err)
			}
		}()
	}

	level, err := logutil.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Printf("%v; using info", err)
	}
	b = bridge.New(bridge.Options{
		Factory:     stages.NewFactory(cfg, m),
		Deadline:    time.Duration(cfg.RequestDeadline) * time.Second,
		LogLevel:    level,
		HistoryPath: cfg.HistoryDB,
		Recorder:    m,
		InFlight:    m.RequestStarted,
	})
	if !b.Initialize(cfg.TessdataPath, cfg.ModelPath, nil) {
		notification.ShowBlockingError("Tooltip OCR", "Initialization failed. See tooltip_ocr_debug.log for details.")
		return fmt.Errorf("initialization failed")
	}
	defer b.Cleanup()

	loop := eventloop.New(b, eventloop.Options{
		Deadline:    time.Duration(cfg.RequestDeadline) * time.Second,
		Concurrency: 2,
		Desktop: eventloop.Desktop{
			CopyText:      clipboard.Write,
			ShowResult:    notification.ShowResult,
			ShowError:     func(msg string) { notification.ShowError("Tooltip OCR", msg) },
			UpdateTooltip: tray.UpdateTooltip,
			SetAboutExtra: tray.SetAboutExtra,
		},
	})
	if err := hotkey.Listen(ctx, cfg.Hotkey, loop.Trigger); err != nil {
		log.Printf("Hotkey disabled: %v", err)
	}
	log.Printf("Tooltip OCR ready. Hotkey: %s", cfg.Hotkey)

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-ch:
			tray.Quit()
		case <-ctx.Done():
		}
	}()

	loopDone := make(chan error, 1)
	go func() {
		err := loop.Run(ctx)
		loopDone <- err
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("event loop stopped: %v", err)
			tray.Quit()
		}
	}()

	tray.Run(tray.Callbacks{OnScan: loop.Trigger, OnQuit: cancel})
	cancel()
	<-loopDone
	return nil
}
