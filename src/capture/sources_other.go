//go:build !windows

package capture

import "fmt"

// DefaultSources returns the sources usable on this platform. Compositor and
// duplication capture are Windows APIs; they report unsupported at Init.
func DefaultSources() []Source {
	dup := NewDuplicationSource(unsupportedDuplicator)
	dup.Probe = func() error {
		_, err := unsupportedDuplicator(0)
		return err
	}
	return []Source{
		NewCompositorSource(unsupportedSession, unsupportedProbe),
		dup,
		NewPixelCopySource(nil),
	}
}

func unsupportedProbe() error {
	return fmt.Errorf("%w: compositor capture needs windows", ErrUnsupported)
}

func unsupportedSession(uintptr) (CompositorSession, error) {
	return nil, unsupportedProbe()
}

func unsupportedDuplicator(uintptr) (Duplicator, error) {
	return nil, fmt.Errorf("%w: desktop duplication needs windows", ErrUnsupported)
}
