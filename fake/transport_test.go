package fake

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-mq/api"
)

func counter(n *atomic.Int64) api.ReleaseFunc {
	return func(uintptr) { n.Add(1) }
}

func TestEngine_ReleaseModes(t *testing.T) {
	cases := []struct {
		mode ReleaseMode
		want int64
	}{
		{ReleaseSync, 1},
		{ReleaseDuplicate, 2},
		{ReleaseNever, 0},
	}
	for _, tc := range cases {
		var n atomic.Int64
		e := NewEngine(0, WithReleaseMode(tc.mode))
		require.NoError(t, e.SendZeroCopy([]byte("x"), 7, counter(&n)))
		assert.Equal(t, tc.want, n.Load(), "mode %d", tc.mode)
		require.NoError(t, e.Close())
	}
}

func TestEngine_AsyncDrainsOnClose(t *testing.T) {
	var n atomic.Int64
	e := NewEngine(2, WithReleaseMode(ReleaseAsync))
	for i := 0; i < 100; i++ {
		require.NoError(t, e.SendZeroCopy(nil, uintptr(i), counter(&n)))
	}
	require.NoError(t, e.Close())
	assert.Equal(t, int64(100), n.Load())
	assert.Zero(t, e.Pending())
}

func TestEngine_HintEchoed(t *testing.T) {
	var got uintptr
	e := NewEngine(0)
	require.NoError(t, e.SendZeroCopy(nil, 99, func(h uintptr) { got = h }))
	assert.Equal(t, uintptr(99), got)
}

func TestEngine_LoopbackAndDeliver(t *testing.T) {
	e := NewEngine(0, WithLoopback())
	require.NoError(t, e.SendZeroCopy([]byte("abc"), 1, nil))
	e.Deliver([]byte("defg"))

	buf := make([]byte, 8)
	n, err := e.Recv(buf)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(buf[:n]))

	n, err = e.Recv(buf[:2])
	assert.ErrorIs(t, err, ErrTruncated)
	assert.Equal(t, 2, n)

	_, err = e.Recv(buf)
	assert.ErrorIs(t, err, ErrNoMessage)

	require.NoError(t, e.Close())
	_, err = e.Recv(buf)
	assert.ErrorIs(t, err, api.ErrTransportClosed)
	assert.ErrorIs(t, e.SendZeroCopy(nil, 1, nil), api.ErrTransportClosed)
}

func TestAllocator_FailAfter(t *testing.T) {
	a := NewAllocator()
	a.FailAfter(2)
	_, err := a.Alloc(8)
	require.NoError(t, err)
	_, err = a.Alloc(8)
	require.NoError(t, err)
	_, err = a.Alloc(8)
	assert.ErrorIs(t, err, ErrOutOfMemory)
	assert.Equal(t, int64(2), a.Allocs())
}
