package runtimeinit

import (
	"fmt"
	"log"
	"os"

	"tooltip-ocr/src/clipboard"
	"tooltip-ocr/src/config"
	"tooltip-ocr/src/notification"
)

type Options struct {
	LoadOptions config.LoadOptions
	SetupLogging func(bool)
	// ShowBlockingErrors surfaces startup failures in a dialog (resident mode).
	ShowBlockingErrors bool
	// NeedClipboard fails startup when the clipboard cannot be opened.
	NeedClipboard bool
}

// Bootstrap loads configuration, sets up logging and checks that the OCR data
// and model are present.
func Bootstrap(opts Options) (*config.Config, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.SetupLogging != nil {
		opts.SetupLogging(cfg.EnableFileLogging)
	}

	if err := checkPaths(cfg); err != nil {
		if opts.ShowBlockingErrors {
			notification.ShowBlockingError("Tooltip OCR", err.Error())
		}
		return nil, err
	}
	log.Printf("Startup: tessdata %s, model %s, capture %s/%s",
		cfg.TessdataPath, cfg.ModelPath, cfg.Settings.CaptureMethod, cfg.Settings.CaptureMode)

	if opts.NeedClipboard {
		if err := clipboard.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialize clipboard: %w", err)
		}
	}
	return cfg, nil
}

func checkPaths(cfg *config.Config) error {
	if cfg.TessdataPath == "" {
		return fmt.Errorf("TESSDATA_PATH is required. Set it in your .env file or pass --tessdata")
	}
	if cfg.ModelPath == "" {
		return fmt.Errorf("MODEL_PATH is required. Set it in your .env file or pass --model")
	}
	if st, err := os.Stat(cfg.TessdataPath); err != nil || !st.IsDir() {
		return fmt.Errorf("tessdata directory %s not found", cfg.TessdataPath)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return fmt.Errorf("model %s not found: %w", cfg.ModelPath, err)
	}
	return nil
}
