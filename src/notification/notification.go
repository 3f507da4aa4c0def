// Package notification shows short user-facing messages.
package notification

import (
	"log"
	"unicode/utf8"
)

const maxPreview = 200

// ShowResult displays a non-blocking popup with the start of the tooltip text.
func ShowResult(text string) {
	preview := Truncate(text, maxPreview)
	go func() {
		if err := showPopup("Tooltip copied", preview); err != nil {
			log.Printf("Failed to show notification: %v", err)
		}
	}()
}

// ShowError shows an error dialog without waiting for it.
func ShowError(title, message string) {
	go ShowBlockingError(title, message)
}

// ShowBlockingError shows an error dialog and waits for it to be dismissed.
func ShowBlockingError(title, message string) {
	if err := showError(title, message); err != nil {
		log.Printf("%s: %s (dialog failed: %v)", title, message, err)
	}
}

// Truncate cuts s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
