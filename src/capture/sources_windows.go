//go:build windows

package capture

// DefaultSources returns the three platform sources in priority order.
func DefaultSources() []Source {
	return []Source{
		NewCompositorSource(openWGCSession, probeCompositor),
		NewDuplicationSource(openDXGIDuplicator),
		NewPixelCopySource(nil),
	}
}
