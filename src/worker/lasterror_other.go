//go:build !windows

package worker

func lastPlatformError() string { return "" }
