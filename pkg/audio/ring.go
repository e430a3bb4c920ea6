package audio

import "sync/atomic"

// Ring is a single-producer single-consumer sample buffer. Capture and
// decode goroutines push on one side, a frame-clocked loop pops on the
// other, neither taking a lock. Capacity is rounded up to a power of two.
type Ring struct {
	buf  []int16
	mask uint64
	head uint64 // written by producer
	tail uint64 // written by consumer
}

func NewRing(capacity int) *Ring {
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &Ring{
		buf:  make([]int16, size),
		mask: uint64(size - 1),
	}
}

// Write appends samples, dropping the excess when the buffer is full.
// Returns the number of samples accepted.
func (r *Ring) Write(samples []int16) int {
	head := atomic.LoadUint64(&r.head)
	tail := atomic.LoadUint64(&r.tail)
	free := uint64(len(r.buf)) - (head - tail)
	n := uint64(len(samples))
	if n > free {
		n = free
	}
	for i := uint64(0); i < n; i++ {
		r.buf[(head+i)&r.mask] = samples[i]
	}
	atomic.StoreUint64(&r.head, head+n)
	return int(n)
}

// Read fills dst with up to len(dst) samples, returning how many were
// available. It never blocks.
func (r *Ring) Read(dst []int16) int {
	head := atomic.LoadUint64(&r.head)
	tail := atomic.LoadUint64(&r.tail)
	avail := head - tail
	n := uint64(len(dst))
	if n > avail {
		n = avail
	}
	for i := uint64(0); i < n; i++ {
		dst[i] = r.buf[(tail+i)&r.mask]
	}
	atomic.StoreUint64(&r.tail, tail+n)
	return int(n)
}

func (r *Ring) Len() int {
	return int(atomic.LoadUint64(&r.head) - atomic.LoadUint64(&r.tail))
}
