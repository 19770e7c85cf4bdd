//go:build nowebview

package window

import "errors"

// Stub implementation for builds without a native webview.
// Build without -tags nowebview to enable the desktop window.

// ErrUnavailable is returned by Open in builds without a webview
var ErrUnavailable = errors.New("desktop window not available in this build")

// Open waits for done and reports that no window could be shown
func Open(title, url string, done <-chan struct{}) error {
	<-done
	return ErrUnavailable
}
