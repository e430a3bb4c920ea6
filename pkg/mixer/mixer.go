package mixer

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudgroundcontrol/callin-studio/pkg/metrics"
	"github.com/labstack/gommon/log"
)

const (
	sampleRate   = 48000
	frameMs      = 10
	frameSamples = sampleRate * frameMs / 1000
)

var ErrSourceExists = errors.New("source id already attached")
var ErrSourceNotFound = errors.New("source not found")
var ErrVolumeOutOfRange = errors.New("volume must be within 0-100")

// Sink receives finished master-bus frames. WriteFrame runs inside the
// frame budget and must not block.
type Sink interface {
	WriteFrame(frame []int16) error
}

type node struct {
	id     string
	input  Input
	volume int32 // 0-100, atomic
	muted  int32 // atomic bool
	level  int32 // last frame level, atomic
}

func defaultVolume(kind SourceKind) int32 {
	// Host mic rides high; bridged and room sources sit lower so several
	// unmuted callers don't immediately clip the sum.
	switch kind {
	case KindMicrophone:
		return 85
	case KindFilePlayback:
		return 70
	default:
		return 60
	}
}

// Mixer composes every attached source into one master bus: per-source
// gain, level tap, sum, soft-knee compression, master tap, then sinks.
type Mixer struct {
	lock  sync.Mutex   // guards structural changes and the sinks slice
	nodes atomic.Value // []*node snapshot read by the frame loop
	sinks atomic.Value // []Sink snapshot

	comp        *compressor
	masterLevel int32
	assets      *assetPlayer
	record      *recordingSink

	done   chan struct{}
	closed chan struct{}

	scratch []int16
	sum     []int32
}

func New() *Mixer {
	m := &Mixer{
		comp:    newCompressor(),
		done:    make(chan struct{}),
		closed:  make(chan struct{}),
		scratch: make([]int16, frameSamples),
		sum:     make([]int32, frameSamples),
	}
	m.nodes.Store([]*node{})
	m.sinks.Store([]Sink{})
	m.assets = newAssetPlayer(m)
	return m
}

// Start runs the frame-clocked loop until Stop.
func (m *Mixer) Start() {
	go m.run()
}

func (m *Mixer) Stop() {
	close(m.done)
	<-m.closed
}

func (m *Mixer) run() {
	defer close(m.closed)
	ticker := time.NewTicker(frameMs * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.processFrame()
		}
	}
}

// AttachSource wires an input through its own gain stage into the master
// bus. All-or-nothing: on error no partial node is registered.
func (m *Mixer) AttachSource(id string, input Input) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	current := m.nodes.Load().([]*node)
	for _, n := range current {
		if n.id == id {
			return ErrSourceExists
		}
	}

	n := &node{
		id:     id,
		input:  input,
		volume: defaultVolume(input.Kind()),
	}

	// Copy-on-write so the frame loop never sees a list mutate mid-frame
	next := make([]*node, len(current), len(current)+1)
	copy(next, current)
	next = append(next, n)
	m.nodes.Store(next)
	log.Debugf("attached source | id: %s, kind: %s, volume: %d", id, input.Kind(), n.volume)
	return nil
}

// DetachSource disconnects the chain and releases the capture handle.
// Idempotent: detaching an unknown id is a no-op.
func (m *Mixer) DetachSource(id string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	current := m.nodes.Load().([]*node)
	next := make([]*node, 0, len(current))
	var detached *node
	for _, n := range current {
		if n.id == id {
			detached = n
			continue
		}
		next = append(next, n)
	}
	if detached == nil {
		return nil
	}
	m.nodes.Store(next)

	if err := detached.input.Close(); err != nil {
		return err
	}
	log.Debugf("detached source | id: %s", id)
	return nil
}

// SetVolume adjusts only the per-source gain stage; the underlying track
// is untouched.
func (m *Mixer) SetVolume(id string, volume int) error {
	if volume < 0 || volume > 100 {
		return ErrVolumeOutOfRange
	}
	n := m.findNode(id)
	if n == nil {
		return ErrSourceNotFound
	}
	atomic.StoreInt32(&n.volume, int32(volume))
	return nil
}

func (m *Mixer) SetMuted(id string, muted bool) error {
	n := m.findNode(id)
	if n == nil {
		return ErrSourceNotFound
	}
	var v int32
	if muted {
		v = 1
	}
	atomic.StoreInt32(&n.muted, v)
	return nil
}

// Level returns the display level of one source in [0,100].
func (m *Mixer) Level(id string) (int, error) {
	n := m.findNode(id)
	if n == nil {
		return 0, ErrSourceNotFound
	}
	return int(atomic.LoadInt32(&n.level)), nil
}

// MasterLevel returns the display level of the master bus in [0,100].
func (m *Mixer) MasterLevel() int {
	return int(atomic.LoadInt32(&m.masterLevel))
}

// AddSink forwards finished master frames to another consumer.
func (m *Mixer) AddSink(s Sink) {
	m.lock.Lock()
	defer m.lock.Unlock()
	current := m.sinks.Load().([]Sink)
	next := make([]Sink, len(current), len(current)+1)
	copy(next, current)
	next = append(next, s)
	m.sinks.Store(next)
}

func (m *Mixer) RemoveSink(s Sink) {
	m.lock.Lock()
	defer m.lock.Unlock()
	current := m.sinks.Load().([]Sink)
	next := make([]Sink, 0, len(current))
	for _, existing := range current {
		if existing == s {
			continue
		}
		next = append(next, existing)
	}
	m.sinks.Store(next)
}

func (m *Mixer) findNode(id string) *node {
	for _, n := range m.nodes.Load().([]*node) {
		if n.id == id {
			return n
		}
	}
	return nil
}

// processFrame runs one pass of the graph. No allocation, no locks, no
// blocking I/O: it must finish inside the frame interval.
func (m *Mixer) processFrame() {
	nodes := m.nodes.Load().([]*node)

	for i := range m.sum {
		m.sum[i] = 0
	}

	for _, n := range nodes {
		got := n.input.ReadFrame(m.scratch)
		for i := got; i < frameSamples; i++ {
			m.scratch[i] = 0
		}

		// Gain first so the meter shows what the bus actually receives;
		// the tap stays ahead of the mute stage so muted meters keep
		// moving
		gain := atomic.LoadInt32(&n.volume)
		for i, s := range m.scratch {
			m.scratch[i] = int16(int32(s) * gain / 100)
		}
		atomic.StoreInt32(&n.level, int32(levelOf(m.scratch)))

		if atomic.LoadInt32(&n.muted) == 1 {
			continue
		}
		for i, s := range m.scratch {
			m.sum[i] += int32(s)
		}
	}

	// Compress the sum so stacked sources don't hard-clip
	var peak int32
	for _, v := range m.sum {
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	gain := m.comp.gainFor(float64(peak), frameMs)

	clipped := false
	out := m.scratch
	for i, v := range m.sum {
		scaled := int32(float64(v) * gain)
		if scaled > 32767 {
			scaled = 32767
			clipped = true
		} else if scaled < -32768 {
			scaled = -32768
			clipped = true
		}
		out[i] = int16(scaled)
	}
	if clipped {
		metrics.MixerClippedFrames.Inc()
	}

	atomic.StoreInt32(&m.masterLevel, int32(levelOf(out)))

	for _, s := range m.sinks.Load().([]Sink) {
		if err := s.WriteFrame(out); err != nil {
			log.Warnf("sink write failed | error: %v", err)
		}
	}
}
