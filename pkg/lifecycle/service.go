package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudgroundcontrol/callin-studio/pkg/episode"
	"github.com/cloudgroundcontrol/callin-studio/pkg/notifier"
	"github.com/cloudgroundcontrol/callin-studio/pkg/room"
	"github.com/labstack/gommon/log"
	"github.com/livekit/protocol/utils"
)

// Bridge is the telephony adapter the state machine drives. Implemented
// by bridge.Manager.
type Bridge interface {
	Open(ctx context.Context, participantID string, callRef string, roomName string) error
	Reassign(ctx context.Context, participantID string, roomName string) error
	SetMuted(participantID string, muted bool) error
	Close(participantID string) error
}

// Rooms is the slice of the room manager the state machine needs.
type Rooms interface {
	CreateRoom(ctx context.Context, name string, class room.Class) error
	DestroyRoom(ctx context.Context, name string) error
}

// Detacher releases any mixer source a participant owned. Implemented
// by mixer.Mixer.
type Detacher interface {
	DetachSource(id string) error
}

type AdmitRequest struct {
	CallerRef string
	CallRef   string
	EpisodeID string
}

type Service interface {
	// Admit creates a participant in queued, assigned to the episode
	// lobby with the bridged leg muted. Any open non-terminal record for
	// the same caller on the same episode is force-completed first.
	Admit(ctx context.Context, req AdmitRequest) (Snapshot, error)

	// PickUp moves queued→screening into a fresh per-participant
	// screening room. A screener with an active screening session gets
	// ErrAlreadyScreening.
	PickUp(ctx context.Context, id string, screenerID string) error

	// Approve moves screening→hold and reassigns the caller to the
	// episode's on-air room, still muted.
	Approve(ctx context.Context, id string, meta map[string]string) error

	// PutOnAir unmutes the bridged leg (hold→on-air).
	PutOnAir(ctx context.Context, id string) error

	// PutOnHold mutes without leaving the room (on-air→hold), so going
	// back on air has no rejoin latency.
	PutOnHold(ctx context.Context, id string) error

	// Reject and Complete drive any non-terminal state to its terminal.
	// Redelivery against an already-terminal participant is a no-op.
	Reject(ctx context.Context, id string) error
	Complete(ctx context.Context, id string) error

	Get(id string) (Snapshot, error)
	FindByCallRef(callRef string) (Snapshot, error)
	List(episodeID string) []Snapshot

	Shutdown(ctx context.Context)
}

type service struct {
	bridge   Bridge
	rooms    Rooms
	episodes episode.Store
	notify   notifier.Notifier
	detach   Detacher

	lock         sync.Mutex
	participants map[string]*Participant
	screeners    map[string]string // screener identity -> participant id
}

func NewService(bridge Bridge, rooms Rooms, episodes episode.Store, notify notifier.Notifier, detach Detacher) Service {
	return &service{
		bridge:       bridge,
		rooms:        rooms,
		episodes:     episodes,
		notify:       notify,
		detach:       detach,
		participants: make(map[string]*Participant),
		screeners:    make(map[string]string),
	}
}

func lobbyRoom(episodeID string) string         { return "lobby_" + episodeID }
func screeningRoom(participantID string) string { return "screen_" + participantID }

func (s *service) onAirRoom(ctx context.Context, episodeID string) string {
	ep, err := s.episodes.Get(ctx, episodeID)
	if err == nil && ep.OnAirRoom != "" {
		return ep.OnAirRoom
	}
	return "onair_" + episodeID
}

func (s *service) Admit(ctx context.Context, req AdmitRequest) (Snapshot, error) {
	// Duplicate signal for a caller with an open record is stale-session
	// cleanup, not an error: force-complete the old record, then admit.
	if stale := s.findOpen(req.CallerRef, req.EpisodeID); stale != nil {
		log.Warnf("force-completing stale record | caller: %s, participant: %s, episode: %s",
			req.CallerRef, stale.ID, req.EpisodeID)
		if err := s.Complete(ctx, stale.ID); err != nil {
			log.Errorf("stale cleanup failed | participant: %s, error: %v", stale.ID, err)
		}
	}

	p := newParticipant(utils.NewGuid("PA_"), req.CallerRef, req.CallRef, req.EpisodeID)
	lobby := lobbyRoom(req.EpisodeID)

	// Room existence is a prerequisite for admission; this is the one
	// side effect Admit cannot proceed without.
	if err := s.rooms.CreateRoom(ctx, lobby, room.ClassLobby); err != nil {
		return Snapshot{}, fmt.Errorf("admit %s: %w", req.CallerRef, err)
	}

	p.mu.Lock()
	p.Room = lobby
	snap := p.snapshot()
	p.mu.Unlock()

	s.lock.Lock()
	s.participants[p.ID] = p
	s.lock.Unlock()

	if err := s.bridge.Open(ctx, p.ID, req.CallRef, lobby); err != nil {
		log.Errorf("bridge open failed, reconciler will retry | participant: %s, error: %v", p.ID, err)
	}

	log.Infof("admitted caller | participant: %s, caller: %s, episode: %s", p.ID, req.CallerRef, req.EpisodeID)
	s.publishState(p)
	return snap, nil
}

func (s *service) PickUp(ctx context.Context, id string, screenerID string) error {
	p, err := s.byID(id)
	if err != nil {
		return err
	}

	// Guard is per-screener, not global: two screeners can screen two
	// different callers at once. The slot is claimed before the
	// transition fires so concurrent pickups by the same screener cannot
	// both pass the check; a rejected transition releases the claim.
	claimed, err := s.claimScreener(screenerID, id)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err = p.fire(ctx, eventPickUp); err != nil {
		// Roll back a claim this call took; a redelivered pickup must
		// not release the claim backing the live screening session
		if claimed {
			s.unclaimScreener(screenerID, id)
		}
		return s.guard(p, eventPickUp, err)
	}

	screening := screeningRoom(p.ID)
	if err = s.rooms.CreateRoom(ctx, screening, room.ClassScreening); err != nil {
		log.Errorf("screening room create failed | participant: %s, error: %v", p.ID, err)
	}
	p.Room = screening
	p.ScreenerID = screenerID

	if err = s.bridge.Reassign(ctx, p.ID, screening); err != nil {
		log.Errorf("bridge reassign failed, reconciler will retry | participant: %s, error: %v", p.ID, err)
	}

	log.Infof("picked up | participant: %s, screener: %s", p.ID, screenerID)
	s.publishLocked(p)
	return nil
}

func (s *service) Approve(ctx context.Context, id string, meta map[string]string) error {
	p, err := s.byID(id)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err = p.fire(ctx, eventApprove); err != nil {
		return s.guard(p, eventApprove, err)
	}

	onAir := s.onAirRoom(ctx, p.EpisodeID)
	if err = s.rooms.CreateRoom(ctx, onAir, room.ClassOnAir); err != nil {
		log.Errorf("on-air room create failed | participant: %s, error: %v", p.ID, err)
	}

	oldRoom := p.Room
	p.Room = onAir
	p.Meta = meta
	// Approved callers hear the room but are not heard until put on air
	p.Muted = true
	s.releaseScreener(p)

	if err = s.bridge.Reassign(ctx, p.ID, onAir); err != nil {
		log.Errorf("bridge reassign failed, reconciler will retry | participant: %s, error: %v", p.ID, err)
	}
	if oldRoom != "" && oldRoom != onAir {
		s.destroyIfScreening(ctx, oldRoom)
	}

	log.Infof("approved | participant: %s, room: %s", p.ID, onAir)
	s.publishLocked(p)
	return nil
}

func (s *service) PutOnAir(ctx context.Context, id string) error {
	p, err := s.byID(id)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Room == "" {
		return &InvalidTransitionError{Participant: p.ID, Current: p.State(), Attempted: eventOnAir}
	}
	if err = p.fire(ctx, eventOnAir); err != nil {
		return s.guard(p, eventOnAir, err)
	}

	p.Muted = false
	if err = s.bridge.SetMuted(p.ID, false); err != nil {
		log.Errorf("unmute failed | participant: %s, error: %v", p.ID, err)
	}

	log.Infof("on air | participant: %s", p.ID)
	s.publishLocked(p)
	return nil
}

func (s *service) PutOnHold(ctx context.Context, id string) error {
	p, err := s.byID(id)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err = p.fire(ctx, eventHold); err != nil {
		return s.guard(p, eventHold, err)
	}

	// Mute only; leaving the room would cost a rejoin when they return
	p.Muted = true
	if err = s.bridge.SetMuted(p.ID, true); err != nil {
		log.Errorf("mute failed | participant: %s, error: %v", p.ID, err)
	}
	// A caller parked straight from screening frees their screener
	s.releaseScreener(p)

	log.Infof("on hold | participant: %s", p.ID)
	s.publishLocked(p)
	return nil
}

func (s *service) Reject(ctx context.Context, id string) error {
	return s.terminate(ctx, id, eventReject)
}

func (s *service) Complete(ctx context.Context, id string) error {
	return s.terminate(ctx, id, eventComplete)
}

// terminate drives a participant to a terminal state and releases its
// resources in fixed order: bridge first, then room, then any mixer
// source it owned.
func (s *service) terminate(ctx context.Context, id string, event string) error {
	p, err := s.byID(id)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Redelivered terminal events are no-ops, not errors
	if p.State().Terminal() {
		return nil
	}
	if err = p.fire(ctx, event); err != nil {
		return s.guard(p, event, err)
	}

	if err = s.bridge.Close(p.ID); err != nil {
		log.Errorf("bridge close failed | participant: %s, error: %v", p.ID, err)
	}
	if p.Room != "" {
		s.destroyIfScreening(ctx, p.Room)
		p.Room = ""
	}
	if s.detach != nil {
		if err = s.detach.DetachSource(p.ID); err != nil {
			log.Errorf("source detach failed | participant: %s, error: %v", p.ID, err)
		}
	}
	s.releaseScreener(p)

	log.Infof("terminal | participant: %s, state: %s", p.ID, p.State())
	s.publishLocked(p)
	return nil
}

func (s *service) Get(id string) (Snapshot, error) {
	p, err := s.byID(id)
	if err != nil {
		return Snapshot{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot(), nil
}

// FindByCallRef resolves the participant owning a phone call leg. When
// a caller has been re-admitted, the newest record wins.
func (s *service) FindByCallRef(callRef string) (Snapshot, error) {
	s.lock.Lock()
	var match *Participant
	for _, p := range s.participants {
		if p.CallRef != callRef {
			continue
		}
		if match == nil || p.CreatedAt.After(match.CreatedAt) {
			match = p
		}
	}
	s.lock.Unlock()

	if match == nil {
		return Snapshot{}, ErrParticipantNotFound
	}
	match.mu.Lock()
	defer match.mu.Unlock()
	return match.snapshot(), nil
}

func (s *service) List(episodeID string) []Snapshot {
	s.lock.Lock()
	all := make([]*Participant, 0, len(s.participants))
	for _, p := range s.participants {
		all = append(all, p)
	}
	s.lock.Unlock()

	snaps := make([]Snapshot, 0, len(all))
	for _, p := range all {
		if episodeID != "" && p.EpisodeID != episodeID {
			continue
		}
		p.mu.Lock()
		snaps = append(snaps, p.snapshot())
		p.mu.Unlock()
	}
	return snaps
}

// Shutdown signals every owned session to release resources.
func (s *service) Shutdown(ctx context.Context) {
	for _, snap := range s.List("") {
		if snap.State.Terminal() {
			continue
		}
		if err := s.Complete(ctx, snap.ID); err != nil {
			log.Errorf("shutdown complete failed | participant: %s, error: %v", snap.ID, err)
		}
	}
}

func (s *service) byID(id string) (*Participant, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	p, found := s.participants[id]
	if !found {
		return nil, ErrParticipantNotFound
	}
	return p, nil
}

// findOpen returns a non-terminal participant for the caller on the
// episode, if any. Records on other episodes are left alone.
func (s *service) findOpen(callerRef string, episodeID string) *Participant {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, p := range s.participants {
		if p.CallerRef == callerRef && p.EpisodeID == episodeID && !p.State().Terminal() {
			return p
		}
	}
	return nil
}

// guard wraps a state machine rejection with the current state attached.
func (s *service) guard(p *Participant, event string, err error) error {
	log.Debugf("transition rejected | participant: %s, event: %s, state: %s, error: %v", p.ID, event, p.State(), err)
	return &InvalidTransitionError{Participant: p.ID, Current: p.State(), Attempted: event}
}

// claimScreener reserves the screener's single screening slot, reporting
// whether this call took the claim. A claim whose participant is gone or
// terminal is stale and may be taken over.
func (s *service) claimScreener(screenerID string, id string) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if held, busy := s.screeners[screenerID]; busy {
		if held == id {
			return false, nil
		}
		if other, ok := s.participants[held]; ok && !other.State().Terminal() {
			return false, ErrAlreadyScreening
		}
	}
	s.screeners[screenerID] = id
	return true, nil
}

func (s *service) unclaimScreener(screenerID string, id string) {
	s.lock.Lock()
	if s.screeners[screenerID] == id {
		delete(s.screeners, screenerID)
	}
	s.lock.Unlock()
}

func (s *service) releaseScreener(p *Participant) {
	if p.ScreenerID == "" {
		return
	}
	s.lock.Lock()
	if s.screeners[p.ScreenerID] == p.ID {
		delete(s.screeners, p.ScreenerID)
	}
	s.lock.Unlock()
}

// destroyIfScreening tears down per-participant screening rooms; shared
// lobby and on-air rooms live with the episode.
func (s *service) destroyIfScreening(ctx context.Context, name string) {
	if len(name) < 7 || name[:7] != "screen_" {
		return
	}
	if err := s.rooms.DestroyRoom(ctx, name); err != nil {
		log.Debugf("screening room destroy deferred | room: %s, error: %v", name, err)
	}
}

func (s *service) publishState(p *Participant) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s.publishLocked(p)
}

// publishLocked emits a state-changed event; the caller holds p.mu.
// Delivery is fire-and-forget and never gates the transition.
func (s *service) publishLocked(p *Participant) {
	if s.notify == nil {
		return
	}
	s.notify.Publish(notifier.Event{
		Episode:     p.EpisodeID,
		Kind:        notifier.ParticipantStateChanged,
		Participant: p.ID,
		Room:        p.Room,
		State:       string(p.State()),
	})
}
