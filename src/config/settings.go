package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"

	"tooltip-ocr/src/capture"
	"tooltip-ocr/src/window"
)

const (
	settingsDir  = "DarkAndDarkerTooltip"
	settingsFile = "settings.ini"

	CaptureModePull   = "pull"
	CaptureModeStream = "stream"
)

// Settings mirrors settings.ini, the user-editable file shared with the
// desktop app.
type Settings struct {
	CaptureMethod   capture.Method
	CaptureMode     string
	Telemetry       bool
	AutoUpdates     bool
	LaunchOnStartup bool
	Window          window.Signature

	path string
}

func DefaultSettings() *Settings {
	return &Settings{
		CaptureMethod: capture.MethodCompositor,
		CaptureMode:   CaptureModePull,
		Telemetry:     true,
		AutoUpdates:   true,
		Window:        window.DefaultSignature(),
	}
}

// DefaultSettingsPath is settings.ini under the user config directory.
func DefaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return settingsFile
	}
	return filepath.Join(dir, settingsDir, settingsFile)
}

// LoadSettings reads path; a missing file yields defaults.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()
	s.path = path
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return s, nil
	}

	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	capSec := f.Section("capture")
	method, err := capture.ParseMethod(capSec.Key("method").MustString(string(s.CaptureMethod)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.CaptureMethod = method
	switch mode := capSec.Key("mode").MustString(CaptureModePull); mode {
	case CaptureModePull, CaptureModeStream:
		s.CaptureMode = mode
	default:
		return nil, fmt.Errorf("%s: unknown capture mode %q", path, mode)
	}

	app := f.Section("app")
	s.Telemetry = app.Key("telemetry").MustBool(s.Telemetry)
	s.AutoUpdates = app.Key("auto_updates").MustBool(s.AutoUpdates)
	s.LaunchOnStartup = app.Key("launch_on_startup").MustBool(s.LaunchOnStartup)

	win := f.Section("window")
	s.Window.Process = win.Key("process").MustString(s.Window.Process)
	s.Window.Title = win.Key("title").MustString(s.Window.Title)
	return s, nil
}

// Save writes the settings back to the file they were loaded from.
func (s *Settings) Save() error {
	return s.SaveTo(s.path)
}

func (s *Settings) SaveTo(path string) error {
	if path == "" {
		return fmt.Errorf("settings path is empty")
	}
	f := ini.Empty()
	capSec := f.Section("capture")
	capSec.Key("method").SetValue(string(s.CaptureMethod))
	capSec.Key("mode").SetValue(s.CaptureMode)

	app := f.Section("app")
	app.Key("telemetry").SetValue(fmt.Sprint(s.Telemetry))
	app.Key("auto_updates").SetValue(fmt.Sprint(s.AutoUpdates))
	app.Key("launch_on_startup").SetValue(fmt.Sprint(s.LaunchOnStartup))

	win := f.Section("window")
	win.Key("process").SetValue(s.Window.Process)
	win.Key("title").SetValue(s.Window.Title)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := f.SaveTo(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	s.path = path
	return nil
}

func (s *Settings) Path() string { return s.path }
