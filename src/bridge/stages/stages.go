// Package stages builds the production capture, detection and OCR stages for
// the bridge. It is kept apart from bridge so that package and its callers
// build without OpenCV or Tesseract.
package stages

import (
	"context"
	"fmt"
	"log"

	"tooltip-ocr/src/bridge"
	"tooltip-ocr/src/capture"
	"tooltip-ocr/src/config"
	"tooltip-ocr/src/detector"
	"tooltip-ocr/src/ocr"
	"tooltip-ocr/src/ocr/tesseract"
	"tooltip-ocr/src/vision"
	"tooltip-ocr/src/window"
)

// NewFactory wires the production stages from cfg. rec may be nil.
func NewFactory(cfg *config.Config, rec capture.Recorder) bridge.Factory {
	settings := cfg.Settings
	if settings == nil {
		settings = config.DefaultSettings()
	}
	return bridge.Factory{
		Capture: func() (bridge.CaptureCloser, error) {
			backend := capture.NewBackend(capture.Options{
				Locator:   window.NewLocator(),
				Signature: settings.Window,
				Sources:   capture.DefaultSources(),
				Recorder:  rec,
			})
			if err := backend.Initialize(settings.CaptureMethod); err != nil {
				backend.Close()
				return nil, err
			}
			if settings.CaptureMode != config.CaptureModeStream {
				return backend, nil
			}
			stream := capture.NewStream(backend, 0)
			stream.Start(context.Background())
			log.Printf("stages: capture running in stream mode")
			return &streamCapturer{Stream: stream, backend: backend}, nil
		},
		Detector: func(modelPath string) (bridge.DetectCloser, error) {
			dcfg := detector.DefaultConfig()
			if cfg.LabelsPath != "" {
				labels, err := detector.LoadLabels(cfg.LabelsPath)
				if err != nil {
					return nil, err
				}
				dcfg.Labels = labels
			}
			engine, err := vision.NewNetEngine(modelPath, cfg.DNNBackend)
			if err != nil {
				return nil, err
			}
			return detector.New(engine, dcfg), nil
		},
		Reader: func(dataPath string) (bridge.ReadCloser, error) {
			recog, err := tesseract.New(dataPath)
			if err != nil {
				return nil, fmt.Errorf("load OCR data: %w", err)
			}
			return ocr.NewExtractor(vision.NewCleaner(ocr.Trim), recog), nil
		},
	}
}

type streamCapturer struct {
	*capture.Stream
	backend *capture.Backend
}

func (s *streamCapturer) Close() error {
	s.Stream.Stop()
	return s.backend.Close()
}
