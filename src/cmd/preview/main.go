package main

import (
	"context"
	"fmt"
	"image"
	"log"
	"os"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/spf13/cobra"

	"tooltip-ocr/src/bridge"
	"tooltip-ocr/src/bridge/stages"
	"tooltip-ocr/src/capture"
	"tooltip-ocr/src/config"
	"tooltip-ocr/src/detector"
	"tooltip-ocr/src/logutil"
	"tooltip-ocr/src/pipeline"
	"tooltip-ocr/src/runtimeinit"
)

type previewOptions struct {
	envPath  string
	tessdata string
	model    string
	interval time.Duration
}

func main() {
	if err := newRootCmd(&previewOptions{}).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(opts *previewOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tooltip-preview",
		Short:         "Live view of the captured game window with detected tooltips",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(*opts)
		},
	}
	cmd.Flags().StringVar(&opts.envPath, "env", "", "Path to a .env file (highest precedence)")
	cmd.Flags().StringVar(&opts.tessdata, "tessdata", "", "Tesseract data directory")
	cmd.Flags().StringVar(&opts.model, "model", "", "Tooltip detection model (.onnx)")
	cmd.Flags().DurationVar(&opts.interval, "interval", 500*time.Millisecond, "Refresh interval")
	return cmd
}

// snapshot is the latest capture and what the detector found in it.
type snapshot struct {
	frame *capture.Frame
	cands []detector.Candidate
}

type preview struct {
	capt   bridge.CaptureCloser
	det    bridge.DetectCloser
	reader bridge.ReadCloser

	mu   sync.Mutex
	last snapshot

	img    *canvas.Image
	status *widget.Label
	text   *widget.Entry
}

func runPreview(opts previewOptions) error {
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

	factory := stages.NewFactory(cfg, nil)
	p := &preview{}
	if p.reader, err = factory.Reader(cfg.TessdataPath); err != nil {
		return err
	}
	defer p.reader.Close()
	if p.det, err = factory.Detector(cfg.ModelPath); err != nil {
		return err
	}
	defer p.det.Close()
	if p.capt, err = factory.Capture(); err != nil {
		return err
	}
	defer p.capt.Close()

	a := app.NewWithID("com.tooltip-ocr.preview")
	w := a.NewWindow("Tooltip OCR preview")
	w.Resize(fyne.NewSize(1024, 720))

	p.img = canvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, 1, 1)))
	p.img.FillMode = canvas.ImageFillContain
	p.status = widget.NewLabel("waiting for the game window...")
	p.text = widget.NewMultiLineEntry()
	p.text.SetPlaceHolder("Press Read to OCR the highlighted tooltip")
	read := widget.NewButton("Read", p.readTooltip)

	side := container.NewBorder(read, nil, nil, nil, p.text)
	split := container.NewHSplit(p.img, side)
	split.Offset = 0.7
	w.SetContent(container.NewBorder(nil, p.status, nil, nil, split))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.loop(ctx, opts.interval)

	w.SetMaster()
	w.ShowAndRun()
	return nil
}

func (p *preview) loop(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.refresh(ctx)
		}
	}
}

func (p *preview) refresh(ctx context.Context) {
	start := time.Now()
	frame, win, err := p.capt.Capture(ctx)
	if err != nil || frame == nil {
		msg := "game window not found"
		if err != nil {
			msg = err.Error()
		}
		fyne.Do(func() { p.status.SetText(msg) })
		return
	}
	cands, err := p.det.Detect(frame)
	if err != nil {
		log.Printf("preview: detect: %v", err)
	}
	p.mu.Lock()
	p.last = snapshot{frame: frame, cands: cands}
	p.mu.Unlock()

	rendered := annotate(frame, cands, 0)
	status := fmt.Sprintf("%s  %dx%d  %d candidate(s)  %v",
		win.Title, frame.Width, frame.Height, len(cands), time.Since(start).Round(time.Millisecond))
	fyne.Do(func() {
		p.img.Image = rendered
		p.img.Refresh()
		p.status.SetText(status)
	})
}

// readTooltip runs OCR on the last snapshot without capturing again.
func (p *preview) readTooltip() {
	p.mu.Lock()
	snap := p.last
	p.mu.Unlock()
	if snap.frame == nil || len(snap.cands) == 0 {
		p.text.SetText("no tooltip detected")
		return
	}
	go func() {
		var text string
		for _, c := range snap.cands {
			t, err := p.reader.Read(snap.frame, c.Rect())
			if err != nil {
				text = "OCR failed: " + err.Error()
				break
			}
			if !pipeline.RejectOverlay(t) {
				text = t
				break
			}
			text = pipeline.ErrAllCandidatesRejected.Error()
		}
		fyne.Do(func() { p.text.SetText(text) })
	}()
}
