package app

import "github.com/atotto/clipboard"

// Clipboard reads and writes the system clipboard
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

type systemClipboard struct{}

// SystemClipboard returns the OS clipboard. On Linux it needs xclip,
// xsel or wl-clipboard; without them every call fails and the caller
// logs the error.
func SystemClipboard() Clipboard {
	return systemClipboard{}
}

func (systemClipboard) ReadAll() (string, error) {
	return clipboard.ReadAll()
}

func (systemClipboard) WriteAll(text string) error {
	return clipboard.WriteAll(text)
}

// Unsupported reports whether the system clipboard is unavailable
func Unsupported() bool {
	return clipboard.Unsupported
}
