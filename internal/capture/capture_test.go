package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameBufferEmpty(t *testing.T) {
	b := NewFrameBuffer(time.Second)
	_, err := b.CaptureFrame(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestFrameBufferLatestWins(t *testing.T) {
	clock := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	b := NewFrameBuffer(5 * time.Second)
	b.now = func() time.Time { return clock }

	require.NoError(t, b.Push([]byte("one"), clock))
	require.NoError(t, b.Push([]byte("two"), clock))

	got, err := b.CaptureFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)

	// Returned frame is a copy.
	got[0] = 'X'
	again, _ := b.CaptureFrame(context.Background())
	assert.Equal(t, []byte("two"), again)

	assert.Equal(t, uint64(2), b.Stats().Frames)
}

func TestFrameBufferStale(t *testing.T) {
	clock := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	b := NewFrameBuffer(5 * time.Second)
	b.now = func() time.Time { return clock }

	require.NoError(t, b.Push([]byte("frame"), clock))
	clock = clock.Add(6 * time.Second)

	_, err := b.CaptureFrame(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestFrameBufferClose(t *testing.T) {
	b := NewFrameBuffer(0)
	require.NoError(t, b.Push([]byte("frame"), time.Time{}))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err := b.CaptureFrame(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)
	assert.ErrorIs(t, b.Push([]byte("late"), time.Time{}), ErrNoFrame)
	assert.True(t, b.Stats().IsReleased)
}

func TestFrameBufferRejectsEmptyPush(t *testing.T) {
	b := NewFrameBuffer(0)
	assert.Error(t, b.Push(nil, time.Time{}))
}

func TestFrameBufferCancelledContext(t *testing.T) {
	b := NewFrameBuffer(0)
	require.NoError(t, b.Push([]byte("frame"), time.Time{}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.CaptureFrame(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFrameBufferStatsLastFrame(t *testing.T) {
	clock := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	b := NewFrameBuffer(0)
	assert.Nil(t, b.Stats().LastFrame)

	require.NoError(t, b.Push([]byte("one"), clock))
	st := b.Stats()
	require.NotNil(t, st.LastFrame)
	assert.True(t, st.LastFrame.Equal(clock))
	assert.Equal(t, 3, st.Bytes)
}
