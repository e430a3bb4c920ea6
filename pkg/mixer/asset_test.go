package mixer

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pcmBytes renders n samples of a constant value as little-endian PCM16.
func pcmBytes(value int16, n int) []byte {
	buf := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		buf[2*i] = byte(value)
		buf[2*i+1] = byte(value >> 8)
	}
	return buf
}

func TestAssetsPlayBackToBack(t *testing.T) {
	m := New()
	m.Start()
	defer m.Stop()

	// Two short assets, each a couple of frames long
	m.assets.decode = func(url string) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(pcmBytes(1000, 2*frameSamples))), nil
	}

	first, err := m.PlayAsset("jingle-1")
	require.NoError(t, err)
	second, err := m.PlayAsset("jingle-2")
	require.NoError(t, err)

	select {
	case <-second:
	case <-time.After(5 * time.Second):
		t.Fatal("second asset never completed")
	}

	// Playback is strictly sequential: by the time the second asset is
	// done the first must have completed
	select {
	case <-first:
	default:
		t.Fatal("second asset finished before the first")
	}
}

func TestAssetQueueFull(t *testing.T) {
	m := New()

	// Block the runner inside the first decode so queued jobs pile up
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	m.assets.decode = func(url string) (io.ReadCloser, error) {
		once.Do(func() { close(started) })
		<-release
		return nil, fmt.Errorf("decode aborted")
	}

	_, err := m.PlayAsset("blocker")
	require.NoError(t, err)
	<-started

	for i := 0; i < assetQueueDepth; i++ {
		_, err = m.PlayAsset("queued")
		require.NoError(t, err)
	}

	_, err = m.PlayAsset("overflow")
	require.ErrorIs(t, err, ErrAssetQueueFull)
	close(release)
}

func TestAssetDecodeFailureClosesDone(t *testing.T) {
	m := New()
	m.assets.decode = func(url string) (io.ReadCloser, error) {
		return nil, fmt.Errorf("no such asset")
	}

	done, err := m.PlayAsset("missing")
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done never closed on decode failure")
	}
}
