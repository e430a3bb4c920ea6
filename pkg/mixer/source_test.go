package mixer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileInputDrainsBeforeDone(t *testing.T) {
	in := NewFileInput()
	in.Push([]int16{1, 2, 3})
	in.Finish()

	// Buffered tail is still readable after Finish
	dst := make([]int16, frameSamples)
	require.Equal(t, 3, in.ReadFrame(dst))

	select {
	case <-in.Done():
		t.Fatal("done closed before the tail drained")
	default:
	}

	// The first empty read after exhaustion signals completion
	require.Equal(t, 0, in.ReadFrame(dst))
	select {
	case <-in.Done():
	case <-time.After(time.Second):
		t.Fatal("done never closed")
	}
}

func TestFileInputCloseFinishes(t *testing.T) {
	in := NewFileInput()
	require.NoError(t, in.Close())
	require.NoError(t, in.Close())

	require.Equal(t, 0, in.ReadFrame(make([]int16, frameSamples)))
	select {
	case <-in.Done():
	case <-time.After(time.Second):
		t.Fatal("done never closed")
	}
}

func TestCaptureInputPushRead(t *testing.T) {
	in := NewCaptureInput(KindMicrophone, nil)
	require.Equal(t, KindMicrophone, in.Kind())

	in.Push([]int16{10, 20})
	dst := make([]int16, frameSamples)
	require.Equal(t, 2, in.ReadFrame(dst))
	require.Equal(t, []int16{10, 20}, dst[:2])

	// Nil handle is fine
	require.NoError(t, in.Close())
}
