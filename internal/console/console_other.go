//go:build !linux && !darwin

package console

import (
	"io"
	"os"
)

// WaitKey reads one byte from fd. Without termios support the terminal stays
// line buffered, so the byte arrives after Enter.
func WaitKey(fd int) (byte, error) {
	if key, ok := popKey(fd); ok {
		return key, nil
	}

	f := os.Stdin
	if fd != int(os.Stdin.Fd()) {
		f = os.NewFile(uintptr(fd), "console")
	}

	var buf [1]byte
	if _, err := io.ReadFull(f, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// KeyPending is only supported on Linux and macOS terminals.
func KeyPending(fd int) (bool, error) {
	if hasKey(fd) {
		return true, nil
	}
	return false, ErrNotTerminal
}
