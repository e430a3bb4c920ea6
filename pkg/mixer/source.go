package mixer

import (
	"sync"

	"github.com/cloudgroundcontrol/callin-studio/pkg/audio"
)

// SourceKind is a closed set. Each kind carries only the fields it needs:
// capture-based kinds own a releasable handle, file playback owns a
// completion channel.
type SourceKind string

const (
	KindMicrophone   SourceKind = "microphone"
	KindBridgedCall  SourceKind = "bridged-caller"
	KindFilePlayback SourceKind = "file-playback"
	KindRoom         SourceKind = "room-subscription"
)

// Input feeds one mixer node. ReadFrame must never block; a source with
// nothing buffered returns 0 and the node substitutes silence.
type Input interface {
	Kind() SourceKind
	ReadFrame(dst []int16) int
	Close() error
}

// Releaser frees an underlying capture resource (device, subscription).
type Releaser interface {
	Release() error
}

// ReleaserFunc adapts a function to the Releaser interface.
type ReleaserFunc func() error

func (f ReleaserFunc) Release() error { return f() }

// CaptureInput backs microphone, bridged-caller and room-subscription
// sources. The capture goroutine pushes samples, the frame loop reads
// them, and Close releases the handle exactly once however many times
// detach runs.
type CaptureInput struct {
	kind    SourceKind
	ring    *audio.Ring
	handle  Releaser
	once    sync.Once
	onceErr error
}

const captureBufferSamples = sampleRate / 2 // half a second of slack

func NewCaptureInput(kind SourceKind, handle Releaser) *CaptureInput {
	return &CaptureInput{
		kind:   kind,
		ring:   audio.NewRing(captureBufferSamples),
		handle: handle,
	}
}

func (c *CaptureInput) Kind() SourceKind { return c.kind }

// Push hands captured samples to the mixer. Safe from exactly one
// producer goroutine.
func (c *CaptureInput) Push(samples []int16) int {
	return c.ring.Write(samples)
}

func (c *CaptureInput) ReadFrame(dst []int16) int {
	return c.ring.Read(dst)
}

func (c *CaptureInput) Close() error {
	c.once.Do(func() {
		if c.handle != nil {
			c.onceErr = c.handle.Release()
		}
	})
	return c.onceErr
}

// FileInput backs one-shot asset playback. The decoder goroutine pushes
// samples and calls Finish at EOF; Done closes once the buffered tail
// has drained through the graph.
type FileInput struct {
	ring     *audio.Ring
	done     chan struct{}
	finished chan struct{}
	closed   sync.Once
}

func NewFileInput() *FileInput {
	return &FileInput{
		ring:     audio.NewRing(captureBufferSamples),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (f *FileInput) Kind() SourceKind { return KindFilePlayback }

func (f *FileInput) Push(samples []int16) int {
	return f.ring.Write(samples)
}

// Finish marks the decoder stream as exhausted.
func (f *FileInput) Finish() {
	f.closed.Do(func() { close(f.finished) })
}

// Done closes when the asset has fully played out.
func (f *FileInput) Done() <-chan struct{} { return f.done }

func (f *FileInput) ReadFrame(dst []int16) int {
	n := f.ring.Read(dst)
	if n == 0 {
		select {
		case <-f.finished:
			select {
			case <-f.done:
			default:
				close(f.done)
			}
		default:
		}
	}
	return n
}

func (f *FileInput) Close() error {
	f.Finish()
	return nil
}
