//go:build windows

package worker

import "golang.org/x/sys/windows"

func lastPlatformError() string {
	if err := windows.GetLastError(); err != nil {
		return err.Error()
	}
	return ""
}
