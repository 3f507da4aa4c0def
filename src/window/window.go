// Package window finds the game client's top-level window and reports where it
// sits on the desktop.
package window

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	DefaultProcess = "DungeonCrawler.exe"
	DefaultTitle   = "Dark and Darker  "
)

// Signature identifies the target window. Process is matched case-insensitively
// against the executable base name; Title must match exactly.
type Signature struct {
	Process string
	Title   string
}

func DefaultSignature() Signature {
	return Signature{Process: DefaultProcess, Title: DefaultTitle}
}

// Bounds is a rectangle in physical desktop pixels.
type Bounds struct {
	X      int
	Y      int
	Width  int
	Height int
}

func (b Bounds) Empty() bool { return b.Width <= 0 || b.Height <= 0 }

func (b Bounds) String() string {
	return fmt.Sprintf("%dx%d@%d,%d", b.Width, b.Height, b.X, b.Y)
}

// Info is a snapshot of the located window. Handle and Monitor are opaque
// platform handles (HWND / HMONITOR on Windows).
type Info struct {
	Handle   uintptr
	PID      uint32
	Title    string
	Bounds   Bounds
	// Visible is the window rect without the invisible resize borders, the
	// area compositor capture covers. Empty when unknown.
	Visible  Bounds
	Client   Bounds
	Monitor  uintptr
	WorkArea Bounds
	DPIScale float64
}

// Locator resolves a Signature to the current window. ok is false when the
// window is absent, minimized or invisible; err is reserved for platform
// failures.
type Locator interface {
	Locate(sig Signature) (info Info, ok bool, err error)
}

// Candidate is one visible top-level window seen during enumeration.
type Candidate struct {
	Handle  uintptr
	PID     uint32
	Title   string
	ExePath string
	Iconic  bool
	Visible bool
}

// Match picks the window for sig out of candidates. Executable matches win over
// title matches; minimized and hidden windows never match.
func Match(sig Signature, candidates []Candidate) (Candidate, bool) {
	proc := strings.ToLower(strings.TrimSpace(sig.Process))
	if proc != "" {
		for _, c := range candidates {
			if !c.Visible || c.Iconic || c.ExePath == "" {
				continue
			}
			if strings.ToLower(baseName(c.ExePath)) == proc {
				return c, true
			}
		}
	}
	if sig.Title != "" {
		for _, c := range candidates {
			if !c.Visible || c.Iconic {
				continue
			}
			if c.Title == sig.Title {
				return c, true
			}
		}
	}
	return Candidate{}, false
}

// baseName handles both separators so Windows paths work on any host.
func baseName(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return filepath.Base(p)
}
