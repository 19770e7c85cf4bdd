//go:build !nowebview

// Package window hosts the web application in a native desktop window.
package window

import (
	webview "github.com/webview/webview_go"
)

// Open shows url in a native window and blocks until the user closes it or
// done is closed
func Open(title, url string, done <-chan struct{}) error {
	w := webview.New(false)
	defer w.Destroy()

	w.SetTitle(title)
	w.SetSize(1280, 800, webview.HintNone)
	w.Navigate(url)

	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-done:
			w.Terminate()
		case <-closed:
		}
	}()

	// Run blocks until the window is closed
	w.Run()
	return nil
}
