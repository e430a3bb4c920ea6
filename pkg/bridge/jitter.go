package bridge

import (
	"sync"

	"github.com/cloudgroundcontrol/callin-studio/pkg/metrics"
)

// jitterBuffer paces outbound frames to the phone codec's cadence.
// Target depth is one frame; anything past the drop threshold sheds the
// oldest frame so latency cannot creep. It also rides out room
// handovers: frames already buffered keep playing while the new room
// leg attaches.
type jitterBuffer struct {
	lock   sync.Mutex
	frames [][]byte
	max    int
}

const jitterTargetDepth = 1
const jitterDropDepth = 4

func newJitterBuffer() *jitterBuffer {
	return &jitterBuffer{max: jitterDropDepth}
}

func (j *jitterBuffer) Push(frame []byte) {
	j.lock.Lock()
	defer j.lock.Unlock()
	if len(j.frames) >= j.max {
		j.frames = j.frames[1:]
		metrics.BridgeJitterDropped.Inc()
	}
	copied := make([]byte, len(frame))
	copy(copied, frame)
	j.frames = append(j.frames, copied)
}

// Pop returns the next frame, or nil when the buffer is empty and the
// caller should substitute silence.
func (j *jitterBuffer) Pop() []byte {
	j.lock.Lock()
	defer j.lock.Unlock()
	if len(j.frames) == 0 {
		return nil
	}
	frame := j.frames[0]
	j.frames = j.frames[1:]
	return frame
}

func (j *jitterBuffer) Depth() int {
	j.lock.Lock()
	defer j.lock.Unlock()
	return len(j.frames)
}
