//go:build linux || darwin || freebsd || netbsd || openbsd

package notify

import (
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// IsBackground reports whether the process runs detached from the foreground
// job of its controlling terminal, e.g. after `blescope watch ... &` or Ctrl+Z/bg.
// A process without a terminal on stdin counts as backgrounded.
func IsBackground() bool {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return true
	}
	fg, err := unix.IoctlGetInt(fd, unix.TIOCGPGRP)
	if err != nil {
		return false
	}
	return fg != unix.Getpgrp()
}
