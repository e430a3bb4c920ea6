package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudgroundcontrol/callin-studio/pkg/room"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct{}

func (fakeTokens) IssueToken(roomName string, identity string, caps room.Capabilities) (string, error) {
	return "token-" + roomName, nil
}

func (fakeTokens) URL() string { return "ws://fabric.test" }

type fakeLeg struct {
	lock      sync.Mutex
	published [][]byte
	mix       []int16
	closed    bool
}

func (f *fakeLeg) PublishFrame(ulaw []byte) error {
	copied := make([]byte, len(ulaw))
	copy(copied, ulaw)
	f.lock.Lock()
	f.published = append(f.published, copied)
	f.lock.Unlock()
	return nil
}

func (f *fakeLeg) ReadMix(dst []int16) int {
	f.lock.Lock()
	defer f.lock.Unlock()
	n := copy(dst, f.mix)
	return n
}

func (f *fakeLeg) Close() {
	f.lock.Lock()
	f.closed = true
	f.lock.Unlock()
}

func (f *fakeLeg) frames() [][]byte {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([][]byte(nil), f.published...)
}

func (f *fakeLeg) isClosed() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.closed
}

// fakeFabric hands out fake legs and can be told to fail. Setting gate
// stalls the next connect until the channel is closed; gateHit reports
// that the stalled connect has started.
type fakeFabric struct {
	lock     sync.Mutex
	legs     []*fakeLeg
	failures int
	onLost   func()
	gate     chan struct{}
	gateHit  chan struct{}
}

func (f *fakeFabric) connect(url string, token string, identity string, onLost func()) (roomLeg, error) {
	f.lock.Lock()
	gate, hit := f.gate, f.gateHit
	f.gate, f.gateHit = nil, nil
	f.lock.Unlock()
	if gate != nil {
		if hit != nil {
			close(hit)
		}
		<-gate
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("fabric unavailable")
	}
	leg := &fakeLeg{}
	f.legs = append(f.legs, leg)
	f.onLost = onLost
	return leg, nil
}

func (f *fakeFabric) latest() *fakeLeg {
	f.lock.Lock()
	defer f.lock.Unlock()
	if len(f.legs) == 0 {
		return nil
	}
	return f.legs[len(f.legs)-1]
}

func (f *fakeFabric) connections() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.legs)
}

func newTestManager() (*Manager, *fakeFabric) {
	fabric := &fakeFabric{}
	m := NewManager(fakeTokens{})
	m.connect = fabric.connect
	return m, fabric
}

func TestOpenDuplicate(t *testing.T) {
	m, _ := newTestManager()
	require.NoError(t, m.Open(context.Background(), "PA_1", "CALL_1", "lobby_ep"))
	require.ErrorIs(t, m.Open(context.Background(), "PA_1", "CALL_2", "lobby_ep"), ErrSessionExists)
	m.Shutdown()
}

func TestOpenAttachesLeg(t *testing.T) {
	m, fabric := newTestManager()
	require.NoError(t, m.Open(context.Background(), "PA_1", "CALL_1", "lobby_ep"))
	defer m.Shutdown()

	require.Equal(t, 1, fabric.connections())

	infos := m.Active()
	require.Len(t, infos, 1)
	require.Equal(t, "PA_1", infos[0].ParticipantID)
	require.Equal(t, "lobby_ep", infos[0].Room)
	require.Equal(t, "TB_PA_1", infos[0].Identity)
}

func TestMutedLegPublishesSilence(t *testing.T) {
	m, fabric := newTestManager()
	require.NoError(t, m.Open(context.Background(), "PA_1", "CALL_1", "lobby_ep"))
	defer m.Shutdown()

	s, err := m.byID("PA_1")
	require.NoError(t, err)
	leg := fabric.latest()

	// Sessions start muted: the track stays alive with silence
	voiced := make([]byte, FrameSamples)
	for i := range voiced {
		voiced[i] = 0x42
	}
	s.handleMedia(voiced)
	require.Equal(t, silenceFrame, leg.frames()[0])

	require.NoError(t, m.SetMuted("PA_1", false))
	s.handleMedia(voiced)
	require.Equal(t, voiced, leg.frames()[1])

	require.NoError(t, m.SetMuted("PA_1", true))
	s.handleMedia(voiced)
	require.Equal(t, silenceFrame, leg.frames()[2])
}

func TestReassignSwapsLegs(t *testing.T) {
	m, fabric := newTestManager()
	require.NoError(t, m.Open(context.Background(), "PA_1", "CALL_1", "lobby_ep"))
	defer m.Shutdown()
	first := fabric.latest()

	// Same room is a no-op
	require.NoError(t, m.Reassign(context.Background(), "PA_1", "lobby_ep"))
	require.Equal(t, 1, fabric.connections())

	require.NoError(t, m.Reassign(context.Background(), "PA_1", "screen_PA_1"))
	require.Equal(t, 2, fabric.connections())
	require.True(t, first.isClosed())

	s, err := m.byID("PA_1")
	require.NoError(t, err)
	require.Equal(t, "screen_PA_1", s.Room())
}

func TestReassignKeepsBufferedFrames(t *testing.T) {
	m, fabric := newTestManager()
	require.NoError(t, m.Open(context.Background(), "PA_1", "CALL_1", "lobby_ep"))
	defer m.Shutdown()

	s, err := m.byID("PA_1")
	require.NoError(t, err)
	s.jitter.Push([]byte{7})

	require.NoError(t, m.Reassign(context.Background(), "PA_1", "onair_ep"))
	require.Equal(t, 2, fabric.connections())

	// Handover must not flush outbound audio
	require.Equal(t, []byte{7}, s.jitter.Pop())
}

func TestRoomLostDegradesAndRecovers(t *testing.T) {
	m, fabric := newTestManager()
	require.NoError(t, m.Open(context.Background(), "PA_1", "CALL_1", "lobby_ep"))
	defer m.Shutdown()

	s, err := m.byID("PA_1")
	require.NoError(t, err)

	// Drop the fabric and report the loss
	fabric.lock.Lock()
	fabric.failures = 1
	onLost := fabric.onLost
	fabric.lock.Unlock()
	onLost()

	// Inbound frames are dropped, not errored, while the leg is down
	s.lock.Lock()
	downed := s.leg == nil
	s.lock.Unlock()
	require.True(t, downed)
	s.handleMedia(make([]byte, FrameSamples))

	// The retry loop reattaches once the fabric returns
	require.Eventually(t, func() bool {
		s.lock.Lock()
		defer s.lock.Unlock()
		return s.leg != nil
	}, 5*time.Second, 50*time.Millisecond)
	require.Equal(t, 2, fabric.connections())
}

func TestOpenSurvivesAttachFailure(t *testing.T) {
	m, fabric := newTestManager()
	fabric.failures = 1

	// The phone call is live even though the room leg failed
	require.NoError(t, m.Open(context.Background(), "PA_1", "CALL_1", "lobby_ep"))
	defer m.Shutdown()
	require.Len(t, m.Active(), 1)

	// Background retry brings the leg up
	s, err := m.byID("PA_1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s.lock.Lock()
		defer s.lock.Unlock()
		return s.leg != nil
	}, 5*time.Second, 50*time.Millisecond)
}

func TestCloseUnknownIsNoop(t *testing.T) {
	m, _ := newTestManager()
	require.NoError(t, m.Close("ghost"))
}

func TestCloseReleasesEverything(t *testing.T) {
	m, fabric := newTestManager()
	require.NoError(t, m.Open(context.Background(), "PA_1", "CALL_1", "lobby_ep"))

	require.NoError(t, m.Close("PA_1"))
	require.Empty(t, m.Active())
	require.True(t, fabric.latest().isClosed())

	// Close is idempotent
	require.NoError(t, m.Close("PA_1"))
}

func TestEnsureReattachesDriftedLeg(t *testing.T) {
	m, fabric := newTestManager()
	require.NoError(t, m.Open(context.Background(), "PA_1", "CALL_1", "lobby_ep"))
	defer m.Shutdown()

	s, err := m.byID("PA_1")
	require.NoError(t, err)
	s.lock.Lock()
	s.leg = nil
	s.lock.Unlock()

	require.NoError(t, m.Ensure(context.Background(), "PA_1", "lobby_ep"))
	require.Equal(t, 2, fabric.connections())

	// Matching room and attached leg is a no-op
	require.NoError(t, m.Ensure(context.Background(), "PA_1", "lobby_ep"))
	require.Equal(t, 2, fabric.connections())

	// Drifted room name forces a reassign
	require.NoError(t, m.Ensure(context.Background(), "PA_1", "onair_ep"))
	require.Equal(t, 3, fabric.connections())
	require.Equal(t, "onair_ep", s.Room())
}

func TestAttachClosesReplacedLeg(t *testing.T) {
	m, fabric := newTestManager()
	require.NoError(t, m.Open(context.Background(), "PA_1", "CALL_1", "lobby_ep"))
	defer m.Shutdown()
	first := fabric.latest()

	// A repair attach racing the retry loop must not leak the leg it
	// replaces
	s, err := m.byID("PA_1")
	require.NoError(t, err)
	require.NoError(t, s.attachRoom())
	require.Equal(t, 2, fabric.connections())
	require.True(t, first.isClosed())
}

func TestReassignWinsOverStaleAttach(t *testing.T) {
	m, fabric := newTestManager()
	require.NoError(t, m.Open(context.Background(), "PA_1", "CALL_1", "lobby_ep"))
	defer m.Shutdown()

	s, err := m.byID("PA_1")
	require.NoError(t, err)

	// Park a retry attach for the lobby mid-connect
	gate := make(chan struct{})
	hit := make(chan struct{})
	fabric.lock.Lock()
	fabric.gate = gate
	fabric.gateHit = hit
	fabric.lock.Unlock()

	attached := make(chan error, 1)
	go func() { attached <- s.attachRoom() }()
	<-hit

	// The caller is approved to on air while the retry is still stalled
	require.NoError(t, m.Reassign(context.Background(), "PA_1", "onair_ep"))
	onAir := fabric.latest()

	close(gate)
	require.NoError(t, <-attached)

	// The stale lobby leg never replaces the on-air leg
	require.True(t, fabric.latest().isClosed())
	s.lock.Lock()
	current := s.leg
	s.lock.Unlock()
	require.Same(t, onAir, current)
	require.Equal(t, "onair_ep", s.Room())
}

func TestPhoneCloseSignalsCompletion(t *testing.T) {
	m, _ := newTestManager()
	completed := make(chan string, 1)
	m.OnPhoneClosed = func(id string) { completed <- id }

	require.NoError(t, m.Open(context.Background(), "PA_1", "CALL_1", "lobby_ep"))
	s, err := m.byID("PA_1")
	require.NoError(t, err)

	s.shutdown(true)
	select {
	case id := <-completed:
		require.Equal(t, "PA_1", id)
	case <-time.After(time.Second):
		t.Fatal("completion signal never fired")
	}
	require.Empty(t, m.Active())
}
