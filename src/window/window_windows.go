//go:build windows

package window

import (
	"fmt"
	"log"
	"sync"
	"unsafe"

	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/windows"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")
	shcore = windows.NewLazySystemDLL("Shcore.dll")
	dwmapi = windows.NewLazySystemDLL("dwmapi.dll")

	procGetWindowTextW      = user32.NewProc("GetWindowTextW")
	procGetWindowTextLength = user32.NewProc("GetWindowTextLengthW")
	procIsIconic            = user32.NewProc("IsIconic")
	procGetWindowRect       = user32.NewProc("GetWindowRect")
	procGetClientRect       = user32.NewProc("GetClientRect")
	procClientToScreen      = user32.NewProc("ClientToScreen")
	procMonitorFromWindow   = user32.NewProc("MonitorFromWindow")
	procGetMonitorInfoW     = user32.NewProc("GetMonitorInfoW")
	procGetDpiForMonitor    = shcore.NewProc("GetDpiForMonitor")
	procDwmGetWindowAttr    = dwmapi.NewProc("DwmGetWindowAttribute")
)

const (
	monitorDefaultToNearest  = 2
	mdtEffectiveDPI          = 0
	baseDPI                  = 96.0
	dwmwaExtendedFrameBounds = 9
)

type monitorInfo struct {
	CbSize    uint32
	RcMonitor windows.Rect
	RcWork    windows.Rect
	DwFlags   uint32
}

type point struct{ X, Y int32 }

// enumeration state; windows.NewCallback slots are finite so one callback is
// shared and guarded.
var (
	enumMu    sync.Mutex
	enumFound []windows.HWND
	enumCB    = windows.NewCallback(func(hwnd windows.HWND, _ uintptr) uintptr {
		enumFound = append(enumFound, hwnd)
		return 1
	})
)

// Win32Locator enumerates top-level windows through user32.
type Win32Locator struct {
	mu    sync.Mutex
	names map[uint32]string
}

func NewLocator() *Win32Locator {
	return &Win32Locator{names: make(map[uint32]string)}
}

func (l *Win32Locator) Locate(sig Signature) (Info, bool, error) {
	hwnds, err := topLevelWindows()
	if err != nil {
		return Info{}, false, err
	}

	l.mu.Lock()
	seen := make(map[uint32]bool, len(l.names))
	cands := make([]Candidate, 0, len(hwnds))
	for _, h := range hwnds {
		var pid uint32
		if _, err := windows.GetWindowThreadProcessId(h, &pid); err != nil {
			continue
		}
		seen[pid] = true
		cands = append(cands, Candidate{
			Handle:  uintptr(h),
			PID:     pid,
			Title:   windowText(h),
			ExePath: l.processName(pid),
			Iconic:  isIconic(h),
			Visible: windows.IsWindowVisible(h),
		})
	}
	// forget processes that no longer own a window so the cache stays small
	for pid := range l.names {
		if !seen[pid] {
			delete(l.names, pid)
		}
	}
	l.mu.Unlock()

	c, ok := Match(sig, cands)
	if !ok {
		return Info{}, false, nil
	}
	info, err := describe(windows.HWND(c.Handle))
	if err != nil {
		return Info{}, false, err
	}
	info.PID = c.PID
	info.Title = c.Title
	return info, true, nil
}

func (l *Win32Locator) processName(pid uint32) string {
	if name, ok := l.names[pid]; ok {
		return name
	}
	name := ""
	if p, err := process.NewProcess(int32(pid)); err == nil {
		if n, err := p.Name(); err == nil {
			name = n
		}
	}
	l.names[pid] = name
	return name
}

// Foreground returns the title of the window that currently has focus.
func Foreground() (string, error) {
	h := windows.GetForegroundWindow()
	if h == 0 {
		return "", fmt.Errorf("no foreground window")
	}
	return windowText(h), nil
}

func topLevelWindows() ([]windows.HWND, error) {
	enumMu.Lock()
	defer enumMu.Unlock()
	enumFound = enumFound[:0]
	if err := windows.EnumWindows(enumCB, nil); err != nil {
		return nil, fmt.Errorf("EnumWindows: %w", err)
	}
	out := make([]windows.HWND, len(enumFound))
	copy(out, enumFound)
	return out, nil
}

func describe(h windows.HWND) (Info, error) {
	var wr windows.Rect
	if r, _, e := procGetWindowRect.Call(uintptr(h), uintptr(unsafe.Pointer(&wr))); r == 0 {
		return Info{}, fmt.Errorf("GetWindowRect: %w", e)
	}
	info := Info{
		Handle: uintptr(h),
		Bounds: rectBounds(wr),
	}
	info.Visible = info.Bounds
	if err := procDwmGetWindowAttr.Find(); err == nil {
		var fr windows.Rect
		hr, _, _ := procDwmGetWindowAttr.Call(uintptr(h), dwmwaExtendedFrameBounds, uintptr(unsafe.Pointer(&fr)), unsafe.Sizeof(fr))
		if hr == 0 {
			info.Visible = rectBounds(fr)
		}
	}

	var cr windows.Rect
	if r, _, _ := procGetClientRect.Call(uintptr(h), uintptr(unsafe.Pointer(&cr))); r != 0 {
		origin := point{}
		if r, _, _ := procClientToScreen.Call(uintptr(h), uintptr(unsafe.Pointer(&origin))); r != 0 {
			info.Client = Bounds{
				X:      int(origin.X),
				Y:      int(origin.Y),
				Width:  int(cr.Right - cr.Left),
				Height: int(cr.Bottom - cr.Top),
			}
		}
	}

	mon, _, _ := procMonitorFromWindow.Call(uintptr(h), monitorDefaultToNearest)
	info.Monitor = mon
	info.DPIScale = 1.0
	if mon != 0 {
		mi := monitorInfo{CbSize: uint32(unsafe.Sizeof(monitorInfo{}))}
		if r, _, _ := procGetMonitorInfoW.Call(mon, uintptr(unsafe.Pointer(&mi))); r != 0 {
			info.WorkArea = rectBounds(mi.RcWork)
		}
		if err := procGetDpiForMonitor.Find(); err == nil {
			var dx, dy uint32
			hr, _, _ := procGetDpiForMonitor.Call(mon, mdtEffectiveDPI, uintptr(unsafe.Pointer(&dx)), uintptr(unsafe.Pointer(&dy)))
			if hr == 0 && dx > 0 {
				info.DPIScale = float64(dx) / baseDPI
			} else {
				log.Printf("window: GetDpiForMonitor failed (0x%08X), assuming 96 DPI", uint32(hr))
			}
		}
	}
	return info, nil
}

func windowText(h windows.HWND) string {
	n, _, _ := procGetWindowTextLength.Call(uintptr(h))
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	procGetWindowTextW.Call(uintptr(h), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf)
}

func isIconic(h windows.HWND) bool {
	r, _, _ := procIsIconic.Call(uintptr(h))
	return r != 0
}

func rectBounds(r windows.Rect) Bounds {
	return Bounds{X: int(r.Left), Y: int(r.Top), Width: int(r.Right - r.Left), Height: int(r.Bottom - r.Top)}
}
