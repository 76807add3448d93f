package tray

import (
	"io"

	"github.com/gen2brain/beeep"
	"github.com/pkg/browser"
)

// BrowserWindow shows the front-end by opening URL in the default browser.
type BrowserWindow struct {
	URL string
}

func init() {
	// xdg-open and friends are chatty; keep them off the terminal
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
}

// Show opens URL; it returns once the browser has been launched.
func (w BrowserWindow) Show() error { return browser.OpenURL(w.URL) }

// DesktopNotifier raises native desktop notifications.
type DesktopNotifier struct{}

// Notify shows title and message with the default application icon.
func (DesktopNotifier) Notify(title, message string) error {
	return beeep.Notify(title, message, "")
}
