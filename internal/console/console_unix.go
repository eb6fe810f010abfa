//go:build linux || darwin

package console

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// WaitKey blocks until one byte is read from fd. On a terminal, canonical
// mode and echo are switched off for the read and the previous settings are
// restored before returning. Other descriptors are read as-is.
func WaitKey(fd int) (byte, error) {
	if key, ok := popKey(fd); ok {
		return key, nil
	}

	old, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return readByte(fd)
	}

	raw := *old
	raw.Lflag &^= unix.ICANON | unix.ECHO
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0

	return withTermios(fd, old, &raw, func() (byte, error) {
		return readByte(fd)
	})
}

// KeyPending reports whether a keystroke is waiting on the terminal fd,
// without blocking. A key found this way is kept for the next WaitKey.
// The terminal settings are restored before returning.
func KeyPending(fd int) (bool, error) {
	if hasKey(fd) {
		return true, nil
	}

	old, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return false, fmt.Errorf("%w: fd %d: %v", ErrNotTerminal, fd, err)
	}

	poll := *old
	poll.Lflag &^= unix.ICANON | unix.ECHO
	poll.Cc[unix.VMIN] = 0
	poll.Cc[unix.VTIME] = 0

	key, err := withTermios(fd, old, &poll, func() (byte, error) {
		return readByte(fd)
	})
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	unread(fd, key)
	return true, nil
}

func withTermios(fd int, old, tmp *unix.Termios, fn func() (byte, error)) (key byte, err error) {
	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, tmp); err != nil {
		return 0, fmt.Errorf("set terminal mode: %w", err)
	}
	defer func() {
		if rerr := unix.IoctlSetTermios(fd, ioctlSetTermios, old); rerr != nil && err == nil {
			err = fmt.Errorf("restore terminal mode: %w", rerr)
		}
	}()

	return fn()
}

func readByte(fd int) (byte, error) {
	var buf [1]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, io.EOF
		}
		return buf[0], nil
	}
}
