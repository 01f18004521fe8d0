//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package notify

import (
	"os"

	"golang.org/x/term"
)

// IsBackground reports whether stdin is not a terminal.
func IsBackground() bool {
	return !term.IsTerminal(int(os.Stdin.Fd()))
}
