// Package console holds the small terminal helpers used by the command line
// tools: a cancellable pause and single-keystroke input.
package console

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotTerminal is returned by KeyPending when fd is not a terminal.
var ErrNotTerminal = errors.New("not a terminal")

// Pause blocks for at least d or until ctx is done.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Keys seen by KeyPending are held here until WaitKey consumes them.
var pushback = struct {
	sync.Mutex
	keys map[int][]byte
}{keys: make(map[int][]byte)}

func unread(fd int, key byte) {
	pushback.Lock()
	defer pushback.Unlock()
	pushback.keys[fd] = append(pushback.keys[fd], key)
}

func popKey(fd int) (byte, bool) {
	pushback.Lock()
	defer pushback.Unlock()
	keys := pushback.keys[fd]
	if len(keys) == 0 {
		return 0, false
	}
	pushback.keys[fd] = keys[1:]
	return keys[0], true
}

func hasKey(fd int) bool {
	pushback.Lock()
	defer pushback.Unlock()
	return len(pushback.keys[fd]) > 0
}
