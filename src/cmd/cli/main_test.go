package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tooltip-ocr/src/history"
)

func TestPNGValidation(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"ValidPNG", []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x00}, false},
		{"InvalidMagic", []byte{0x00, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, true},
		{"TooShort", []byte{0x89, 'P', 'N', 'G'}, true},
		{"Empty", []byte{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePNG(tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("validatePNG() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestReadInput(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "shot.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := readInput(path, nil)
	if err != nil || !bytes.Equal(got, buf.Bytes()) {
		t.Fatalf("file: %d bytes, %v", len(got), err)
	}
	got, err = readInput("-", bytes.NewReader(buf.Bytes()))
	if err != nil || !bytes.Equal(got, buf.Bytes()) {
		t.Fatalf("stdin: %d bytes, %v", len(got), err)
	}
	if _, err := readInput("-", strings.NewReader("")); err == nil {
		t.Error("empty input accepted")
	}
	if _, err := readInput(filepath.Join(t.TempDir(), "missing.png"), nil); err == nil {
		t.Error("missing file accepted")
	}
}

func TestWriteOutput(t *testing.T) {
	out := Output{Found: true, Text: "Longsword\nRare", X: 1, Y: 2, Width: 3, Height: 4, Source: "screen"}

	var text bytes.Buffer
	if err := writeOutput(&text, out, false); err != nil {
		t.Fatal(err)
	}
	if text.String() != "Longsword\nRare\n" {
		t.Errorf("text output = %q", text.String())
	}

	var js bytes.Buffer
	if err := writeOutput(&js, out, true); err != nil {
		t.Fatal(err)
	}
	var got Output
	if err := json.Unmarshal(js.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got != out {
		t.Errorf("json round trip = %+v", got)
	}

	var empty bytes.Buffer
	writeOutput(&empty, Output{Source: "screen"}, false)
	if empty.Len() != 0 {
		t.Errorf("nothing found should print nothing, got %q", empty.String())
	}
}

func TestWriteHistory(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []history.Entry{
		{ID: 2, ScannedAt: at, Text: "Longsword\nRare", X: 10, Y: 20, Width: 100, Height: 60},
		{ID: 1, ScannedAt: at, Text: "Buckler", Width: 50, Height: 40},
	}

	var plain bytes.Buffer
	if err := writeHistory(&plain, entries, false); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(plain.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "Longsword | Rare") || !strings.Contains(lines[0], "100x60@10,20") {
		t.Errorf("plain = %q", plain.String())
	}

	var tty bytes.Buffer
	writeHistory(&tty, entries, true)
	if !strings.HasPrefix(tty.String(), "ID") || strings.Contains(tty.String(), "Rare") {
		t.Errorf("tty = %q", tty.String())
	}
}

func TestNewRootCmd(t *testing.T) {
	opts := &cliOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs([]string{"image"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "file") {
		t.Errorf("image without --file: %v", err)
	}

	for _, name := range []string{"scan", "image", "history"} {
		if c, _, err := cmd.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("subcommand %s missing", name)
		}
	}
}

func TestHistoryCommandNeedsDB(t *testing.T) {
	t.Setenv("HISTORY_DB", "")
	opts := cliOptions{envPath: filepath.Join(t.TempDir(), "none.env")}
	if err := runHistory(context.Background(), opts, &bytes.Buffer{}); err == nil {
		t.Error("history without HISTORY_DB succeeded")
	}
}
