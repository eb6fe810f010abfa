package console

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPause_WaitsAtLeastDuration(t *testing.T) {
	for _, ms := range []int{0, 1, 10, 1000} {
		t.Run(fmt.Sprintf("%dms", ms), func(t *testing.T) {
			d := time.Duration(ms) * time.Millisecond

			start := time.Now()
			require.NoError(t, Pause(context.Background(), d))
			assert.GreaterOrEqual(t, time.Since(start), d)
		})
	}
}

func TestPause_Canceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Pause(ctx, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPause_ZeroOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, Pause(ctx, 0), context.Canceled)
}

func TestPushback(t *testing.T) {
	const fd = 1 << 20 // never a real descriptor in tests

	assert.False(t, hasKey(fd))
	unread(fd, 'a')
	unread(fd, 'b')
	assert.True(t, hasKey(fd))

	pending, err := KeyPending(fd)
	require.NoError(t, err)
	assert.True(t, pending)

	key, err := WaitKey(fd)
	require.NoError(t, err)
	assert.Equal(t, byte('a'), key)

	key, err = WaitKey(fd)
	require.NoError(t, err)
	assert.Equal(t, byte('b'), key)
	assert.False(t, hasKey(fd))
}
