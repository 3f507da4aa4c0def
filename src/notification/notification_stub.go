//go:build !windows

package notification

import "log"

func showPopup(title, text string) error {
	log.Printf("%s: %s", title, text)
	return nil
}

func showError(title, message string) error {
	log.Printf("%s: %s", title, message)
	return nil
}
