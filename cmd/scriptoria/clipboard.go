package main

import (
	"fmt"
	"io"

	"github.com/atotto/clipboard"
)

// writeClipboard is replaced in tests.
var writeClipboard = clipboard.WriteAll

// copyResult puts text on the system clipboard and reports the outcome on w.
// A failure is only a warning since the text has already been printed.
func copyResult(w io.Writer, text string) {
	if text == "" {
		return
	}
	if clipboard.Unsupported {
		fmt.Fprintln(w, "warning: no clipboard available (install xclip, xsel or wl-clipboard)")
		return
	}
	if err := writeClipboard(text); err != nil {
		fmt.Fprintf(w, "warning: copy to clipboard failed: %v\n", err)
		return
	}
	fmt.Fprintln(w, "Copied to clipboard.")
}
