package bridge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJitterFIFO(t *testing.T) {
	j := newJitterBuffer()
	j.Push([]byte{1})
	j.Push([]byte{2})
	require.Equal(t, 2, j.Depth())
	require.Equal(t, []byte{1}, j.Pop())
	require.Equal(t, []byte{2}, j.Pop())
	require.Nil(t, j.Pop())
}

func TestJitterShedsOldest(t *testing.T) {
	j := newJitterBuffer()
	for i := byte(0); i < 6; i++ {
		j.Push([]byte{i})
	}
	// Depth is capped; the oldest frames were shed
	require.Equal(t, jitterDropDepth, j.Depth())
	require.Equal(t, []byte{2}, j.Pop())
}

func TestJitterCopiesFrames(t *testing.T) {
	j := newJitterBuffer()
	frame := []byte{9, 9}
	j.Push(frame)
	frame[0] = 0
	require.Equal(t, []byte{9, 9}, j.Pop())
}
