//go:build windows

package main

import (
	"log"

	"golang.org/x/sys/windows"
)

const (
	processPerMonitorDPIAware = 2
	smCMonitors               = 80
	smCXVirtualScreen         = 78
	smCYVirtualScreen         = 79
)

var (
	shcore                     = windows.NewLazySystemDLL("shcore.dll")
	user32                     = windows.NewLazySystemDLL("user32.dll")
	procSetProcessDpiAwareness = shcore.NewProc("SetProcessDpiAwareness")
	procSetProcessDPIAware     = user32.NewProc("SetProcessDPIAware")
	procGetSystemMetrics       = user32.NewProc("GetSystemMetrics")
)

// enableDPIAwareness makes window and monitor rectangles physical pixels, which
// is what every capture path crops in.
func enableDPIAwareness() {
	if procSetProcessDpiAwareness.Find() == nil {
		if hr, _, _ := procSetProcessDpiAwareness.Call(processPerMonitorDPIAware); hr != 0 {
			log.Printf("DPI: SetProcessDpiAwareness failed: 0x%08X", uint32(hr))
		}
		return
	}
	if procSetProcessDPIAware.Find() == nil {
		procSetProcessDPIAware.Call()
		log.Printf("DPI: using system DPI awareness (fallback)")
		return
	}
	log.Printf("DPI: no DPI awareness API available")
}

func logMonitorConfiguration() {
	metric := func(i uintptr) int32 {
		r, _, _ := procGetSystemMetrics.Call(i)
		return int32(r)
	}
	log.Printf("MONITOR: %d monitors, virtual screen %dx%d",
		metric(smCMonitors), metric(smCXVirtualScreen), metric(smCYVirtualScreen))
}
