package bridge

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudgroundcontrol/callin-studio/pkg/audio"
	"github.com/cloudgroundcontrol/callin-studio/pkg/metrics"
	"github.com/gorilla/websocket"
	"github.com/labstack/gommon/log"
)

// Session pairs one phone call leg to one room. It exists exactly as
// long as its participant is non-terminal: opened on admit, reassigned
// as the participant moves through screening to on air, torn down on
// completion or rejection.
type Session struct {
	ParticipantID string
	CallRef       string
	Identity      string

	mgr *Manager

	lock     sync.Mutex
	roomName string
	leg      roomLeg
	conn     *websocket.Conn

	muted    int32
	retrying int32
	jitter   *jitterBuffer
	done     chan struct{}
	closed   sync.Once

	// Pacer scratch, sized once
	mix48  []int16
	pcm8   []int16
	ulaw   []byte
	silent int32 // consecutive silent ticks, for logging only
}

func newSession(mgr *Manager, participantID string, callRef string, roomName string) *Session {
	return &Session{
		ParticipantID: participantID,
		CallRef:       callRef,
		Identity:      "TB_" + participantID,
		mgr:           mgr,
		roomName:      roomName,
		muted:         1,
		jitter:        newJitterBuffer(),
		done:          make(chan struct{}),
		mix48:         make([]int16, FrameSamples*audio.Ratio),
		pcm8:          make([]int16, FrameSamples),
		ulaw:          make([]byte, FrameSamples),
	}
}

func (s *Session) Room() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.roomName
}

func (s *Session) SetMuted(muted bool) {
	var v int32
	if muted {
		v = 1
	}
	atomic.StoreInt32(&s.muted, v)
}

func (s *Session) Muted() bool {
	return atomic.LoadInt32(&s.muted) == 1
}

// handleMedia publishes one inbound phone frame into the room. A muted
// leg keeps the track alive with silence so unmute has no rejoin cost.
func (s *Session) handleMedia(frame []byte) {
	s.lock.Lock()
	leg := s.leg
	s.lock.Unlock()
	if leg == nil {
		// Room side is down; the phone call outlives it
		metrics.BridgeFramesLost.Inc()
		return
	}
	if s.Muted() {
		frame = silenceFrame
	}
	if err := leg.PublishFrame(frame); err != nil {
		log.Debugf("publish failed | participant: %s, error: %v", s.ParticipantID, err)
	}
}

// reassign moves the session to another room. Outbound frames already
// buffered keep playing through the handover instead of being flushed.
func (s *Session) reassign(roomName string) error {
	s.lock.Lock()
	old := s.leg
	s.leg = nil
	s.roomName = roomName
	s.lock.Unlock()

	if old != nil {
		old.Close()
	}
	return s.attachRoom()
}

// attachRoom connects the room leg for the current room name.
func (s *Session) attachRoom() error {
	s.lock.Lock()
	roomName := s.roomName
	s.lock.Unlock()

	token, err := s.mgr.tokens.IssueToken(roomName, s.Identity, publishCaps)
	if err != nil {
		return err
	}
	leg, err := s.mgr.connect(s.mgr.tokens.URL(), token, s.Identity, s.onRoomLost)
	if err != nil {
		return err
	}

	s.lock.Lock()
	// Torn down or reassigned while connecting: the leg just built is
	// stale, so drop it instead of installing it
	select {
	case <-s.done:
		s.lock.Unlock()
		leg.Close()
		return nil
	default:
	}
	if s.roomName != roomName {
		s.lock.Unlock()
		leg.Close()
		return nil
	}
	old := s.leg
	s.leg = leg
	s.lock.Unlock()

	// A concurrent attach may have installed a leg first; close the
	// loser so it never lingers in the room
	if old != nil {
		old.Close()
	}
	return nil
}

// onRoomLost degrades the outbound path to silence and retries
// resubscription on backoff. A room-side fault never ends the phone
// call; the call is the scarce resource.
func (s *Session) onRoomLost() {
	select {
	case <-s.done:
		return
	default:
	}
	if !atomic.CompareAndSwapInt32(&s.retrying, 0, 1) {
		return
	}

	s.lock.Lock()
	s.leg = nil
	s.lock.Unlock()
	log.Warnf("room leg lost, retrying | participant: %s, room: %s", s.ParticipantID, s.Room())

	go func() {
		defer atomic.StoreInt32(&s.retrying, 0)
		backoff := 500 * time.Millisecond
		for {
			select {
			case <-s.done:
				return
			case <-time.After(backoff):
			}
			if err := s.attachRoom(); err == nil {
				metrics.BridgeResubscribes.Inc()
				log.Infof("room leg recovered | participant: %s, room: %s", s.ParticipantID, s.Room())
				return
			}
			if backoff < 8*time.Second {
				backoff *= 2
			}
		}
	}()
}

// runPacer is the outbound frame clock: every 20 ms it pulls the room
// mix, downsamples and compands it into a μ-law frame, and paces it to
// the phone through the jitter buffer. Missing audio becomes silence
// within one frame interval.
func (s *Session) runPacer() {
	ticker := time.NewTicker(FrameIntervalMs * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		s.lock.Lock()
		leg := s.leg
		conn := s.conn
		s.lock.Unlock()

		if leg != nil {
			if got := leg.ReadMix(s.mix48); got > 0 {
				narrow := audio.Downsample48to8(s.mix48, s.pcm8)
				s.jitter.Push(audio.EncodeMuLawFrame(narrow, s.ulaw))
			}
		}

		if conn == nil {
			continue
		}
		frame := s.jitter.Pop()
		if frame == nil {
			frame = silenceFrame
		}
		msg := Message{
			Event: EventMedia,
			Media: &MediaPayload{Payload: base64.StdEncoding.EncodeToString(frame)},
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if err = conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Debugf("media channel write failed | participant: %s, error: %v", s.ParticipantID, err)
		}
	}
}

// shutdown releases owned resources in fixed order: stop the pacer,
// leave the room, then let the manager drop the registration. fromPhone
// marks a hard phone disconnect and triggers the completion signal.
func (s *Session) shutdown(fromPhone bool) {
	s.closed.Do(func() {
		close(s.done)

		s.lock.Lock()
		leg := s.leg
		conn := s.conn
		s.leg = nil
		s.conn = nil
		s.lock.Unlock()

		if leg != nil {
			leg.Close()
		}
		if conn != nil {
			conn.Close()
		}

		s.mgr.remove(s)
		metrics.ActiveBridges.Dec()
		log.Infof("bridge session closed | participant: %s, fromPhone: %v", s.ParticipantID, fromPhone)

		if fromPhone && s.mgr.OnPhoneClosed != nil {
			go s.mgr.OnPhoneClosed(s.ParticipantID)
		}
	})
}
