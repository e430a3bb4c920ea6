package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudgroundcontrol/callin-studio/pkg/metrics"
	"github.com/cloudgroundcontrol/callin-studio/pkg/room"
	"github.com/labstack/gommon/log"
)

var ErrSessionExists = errors.New("bridge session already open for participant")
var ErrSessionNotFound = errors.New("bridge session not found")
var ErrUnknownCall = errors.New("no session for call reference")

// TokenSource issues join credentials for the bridge's room legs.
type TokenSource interface {
	IssueToken(room string, identity string, caps room.Capabilities) (string, error)
	URL() string
}

var publishCaps = room.Capabilities{Publish: true, Subscribe: true, Hidden: true}

// SessionInfo is a reconciliation-facing snapshot of one session.
type SessionInfo struct {
	ParticipantID string
	Room          string
	Identity      string
}

// Manager owns the process-wide registry of bridge sessions.
type Manager struct {
	tokens  TokenSource
	connect roomConnector

	lock          sync.Mutex
	byParticipant map[string]*Session
	byCallRef     map[string]*Session

	// OnPhoneClosed fires when the phone side hangs up; the state
	// machine drives the participant to completed from there.
	OnPhoneClosed func(participantID string)
}

func NewManager(tokens TokenSource) *Manager {
	return &Manager{
		tokens:        tokens,
		connect:       connectRoomLeg,
		byParticipant: make(map[string]*Session),
		byCallRef:     make(map[string]*Session),
	}
}

// Open creates a session pairing the call to the given room and starts
// its outbound pacer. The media socket attaches later, when the phone
// network opens the frame channel.
func (m *Manager) Open(ctx context.Context, participantID string, callRef string, roomName string) error {
	m.lock.Lock()
	if _, found := m.byParticipant[participantID]; found {
		m.lock.Unlock()
		return ErrSessionExists
	}
	s := newSession(m, participantID, callRef, roomName)
	m.byParticipant[participantID] = s
	m.byCallRef[callRef] = s
	m.lock.Unlock()

	if err := s.attachRoom(); err != nil {
		// Keep the session: the phone call is live and the reconciler
		// retries the room leg. Losing the room must not lose the call.
		log.Warnf("room leg attach failed, will retry | participant: %s, error: %v", participantID, err)
		s.onRoomLost()
	}

	go s.runPacer()
	metrics.ActiveBridges.Inc()
	log.Infof("bridge session open | participant: %s, room: %s", participantID, roomName)
	return nil
}

// Reassign moves a session to another room, buffering outbound audio
// through the handover.
func (m *Manager) Reassign(ctx context.Context, participantID string, roomName string) error {
	s, err := m.byID(participantID)
	if err != nil {
		return err
	}
	if s.Room() == roomName {
		return nil
	}
	return s.reassign(roomName)
}

func (m *Manager) SetMuted(participantID string, muted bool) error {
	s, err := m.byID(participantID)
	if err != nil {
		return err
	}
	s.SetMuted(muted)
	return nil
}

// Close tears a session down from the room side (reject, complete,
// episode end). Closing an unknown participant is a no-op.
func (m *Manager) Close(participantID string) error {
	m.lock.Lock()
	s, found := m.byParticipant[participantID]
	m.lock.Unlock()
	if !found {
		return nil
	}
	s.shutdown(false)
	return nil
}

// Ensure re-attaches the room leg if the session drifted from its
// intended room. Called by the reconciliation sweep.
func (m *Manager) Ensure(ctx context.Context, participantID string, roomName string) error {
	s, err := m.byID(participantID)
	if err != nil {
		return err
	}
	if s.Room() == roomName {
		s.lock.Lock()
		attached := s.leg != nil
		s.lock.Unlock()
		if attached {
			return nil
		}
		return s.attachRoom()
	}
	return s.reassign(roomName)
}

// Active snapshots all open sessions.
func (m *Manager) Active() []SessionInfo {
	m.lock.Lock()
	defer m.lock.Unlock()
	infos := make([]SessionInfo, 0, len(m.byParticipant))
	for _, s := range m.byParticipant {
		infos = append(infos, SessionInfo{
			ParticipantID: s.ParticipantID,
			Room:          s.Room(),
			Identity:      s.Identity,
		})
	}
	return infos
}

// Shutdown closes every session, releasing phone and room resources.
func (m *Manager) Shutdown() {
	for _, info := range m.Active() {
		_ = m.Close(info.ParticipantID)
	}
}

func (m *Manager) byID(participantID string) (*Session, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	s, found := m.byParticipant[participantID]
	if !found {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *Manager) byCall(callRef string) (*Session, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	s, found := m.byCallRef[callRef]
	if !found {
		return nil, ErrUnknownCall
	}
	return s, nil
}

func (m *Manager) remove(s *Session) {
	m.lock.Lock()
	delete(m.byParticipant, s.ParticipantID)
	delete(m.byCallRef, s.CallRef)
	m.lock.Unlock()
}
