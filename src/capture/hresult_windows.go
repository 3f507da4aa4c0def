//go:build windows

package capture

import (
	"strings"

	"golang.org/x/sys/windows"
)

func systemMessage(code uint32) string {
	buf := make([]uint16, 512)
	n, err := windows.FormatMessage(
		windows.FORMAT_MESSAGE_FROM_SYSTEM|windows.FORMAT_MESSAGE_IGNORE_INSERTS,
		0, code, 0, buf, nil)
	if err != nil || n == 0 {
		return ""
	}
	return strings.TrimSpace(windows.UTF16ToString(buf[:n]))
}
