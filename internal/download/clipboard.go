package download

import "github.com/atotto/clipboard"

// Clipboard writes text to the system clipboard
type Clipboard struct{}

// Copy places text on the clipboard
func (Clipboard) Copy(text string) error {
	if clipboard.Unsupported {
		return errClipboardUnsupported
	}
	return clipboard.WriteAll(text)
}
