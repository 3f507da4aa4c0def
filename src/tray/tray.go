// Package tray owns the notification-area icon: Scan and Quit entries plus a
// tooltip that reflects whether a scan is running.
package tray

import (
	"log"
	"sync"

	"github.com/getlantern/systray"
)

const DefaultTooltip = "Tooltip OCR"

type Callbacks struct {
	OnScan func()
	OnQuit func()
}

var (
	mu    sync.Mutex
	ready bool
	about *systray.MenuItem
	extra string
)

// Run blocks on the systray message loop until Quit is chosen or Quit is
// called. It must run on the main goroutine.
func Run(cb Callbacks) {
	systray.Run(func() { onReady(cb) }, func() {
		log.Printf("tray: exited")
	})
}

func onReady(cb Callbacks) {
	systray.SetIcon(Icon())
	systray.SetTitle(DefaultTooltip)
	systray.SetTooltip(DefaultTooltip)

	scan := systray.AddMenuItem("Scan tooltip", "Read the tooltip under the cursor")
	systray.AddSeparator()
	info := systray.AddMenuItem("About", "")
	info.Disable()
	quit := systray.AddMenuItem("Quit", "Quit the application")

	mu.Lock()
	ready, about = true, info
	if extra != "" {
		info.SetTitle(extra)
	}
	mu.Unlock()

	go func() {
		for {
			select {
			case <-scan.ClickedCh:
				if cb.OnScan != nil {
					cb.OnScan()
				}
			case <-quit.ClickedCh:
				if cb.OnQuit != nil {
					cb.OnQuit()
				}
				systray.Quit()
				return
			}
		}
	}()
}

// UpdateTooltip is a no-op until the tray is ready.
func UpdateTooltip(text string) {
	mu.Lock()
	defer mu.Unlock()
	if ready {
		systray.SetTooltip(text)
	}
}

// SetAboutExtra sets the disabled info entry, e.g. the resident port.
func SetAboutExtra(text string) {
	mu.Lock()
	defer mu.Unlock()
	extra = text
	if about != nil {
		about.SetTitle(text)
	}
}

func Quit() { systray.Quit() }
