package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvPathVar         = "TOOLTIP_OCR_ENV"
	DefaultHotkey      = "Ctrl+Alt+T"
	DefaultDeadlineSec = 10
	DefaultLogLevel    = "info"
)

type LoadOptions struct {
	EnvPathOverride  string
	TessdataOverride string
	ModelOverride    string
	SettingsPath     string
}

type Config struct {
	TessdataPath      string
	ModelPath         string
	LabelsPath        string
	EnableFileLogging bool
	LogLevel          string
	Hotkey            string
	RequestDeadline   int
	MetricsAddr       string
	HistoryDB         string
	DNNBackend        string
	Settings          *Settings
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) explicit override, 2) .env in the executable directory,
	// 3) the file named by TOOLTIP_OCR_ENV
	envPath := resolveEnvPath(opts)
	dotenvValues := readDotenvValues(envPath)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	deadline := DefaultDeadlineSec
	if v := os.Getenv("REQUEST_DEADLINE_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			deadline = n
		}
	}

	settingsPath := opts.SettingsPath
	if settingsPath == "" {
		settingsPath = DefaultSettingsPath()
	}
	settings, err := LoadSettings(settingsPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		TessdataPath:      firstNonEmpty(opts.TessdataOverride, dotenvValues["TESSDATA_PATH"], os.Getenv("TESSDATA_PATH")),
		ModelPath:         firstNonEmpty(opts.ModelOverride, dotenvValues["MODEL_PATH"], os.Getenv("MODEL_PATH")),
		LabelsPath:        os.Getenv("MODEL_LABELS_PATH"),
		EnableFileLogging: strings.ToLower(os.Getenv("ENABLE_FILE_LOGGING")) == "true",
		LogLevel:          getEnvWithDefault("LOG_LEVEL", DefaultLogLevel),
		Hotkey:            getEnvWithDefault("HOTKEY", DefaultHotkey),
		RequestDeadline:   deadline,
		MetricsAddr:       os.Getenv("METRICS_ADDR"),
		HistoryDB:         os.Getenv("HISTORY_DB"),
		DNNBackend:        getEnvWithDefault("DNN_BACKEND", "cpu"),
		Settings:          settings,
	}
	return cfg, nil
}

func resolveEnvPath(opts LoadOptions) string {
	if p := strings.TrimSpace(opts.EnvPathOverride); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if execPath, err := os.Executable(); err == nil {
		exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(exeEnv); err == nil {
			return exeEnv
		}
	}

	if alt := os.Getenv(EnvPathVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func readDotenvValues(envPath string) map[string]string {
	if envPath == "" {
		return map[string]string{}
	}

	values, err := godotenv.Read(envPath)
	if err != nil {
		return map[string]string{}
	}

	return values
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
