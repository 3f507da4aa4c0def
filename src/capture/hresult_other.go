//go:build !windows

package capture

func systemMessage(uint32) string { return "" }
