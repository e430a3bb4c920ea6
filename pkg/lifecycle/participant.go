package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// State is a participant's position in the caller journey.
type State string

const (
	StateQueued    State = "queued"
	StateScreening State = "screening"
	StateHold      State = "hold"
	StateOnAir     State = "on-air"
	StateCompleted State = "completed"
	StateRejected  State = "rejected"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateRejected
}

// Transition event names. hold⇄on-air is the only reversible edge
// besides screening→hold; completed and rejected absorb everything.
const (
	eventPickUp   = "pickup"
	eventApprove  = "approve"
	eventOnAir    = "onair"
	eventHold     = "hold"
	eventComplete = "complete"
	eventReject   = "reject"
)

// Participant is the authoritative record for one caller on one episode.
// It is mutated only by the Service, which serializes all operations on
// the same participant.
type Participant struct {
	ID         string
	CallerRef  string
	CallRef    string
	EpisodeID  string
	Room       string
	ScreenerID string
	Muted      bool
	Meta       map[string]string
	CreatedAt  time.Time

	// Transitions holds the time each state was last entered.
	Transitions map[State]time.Time

	mu      sync.Mutex
	machine *fsm.FSM
}

func newParticipant(id string, callerRef string, callRef string, episodeID string) *Participant {
	p := &Participant{
		ID:          id,
		CallerRef:   callerRef,
		CallRef:     callRef,
		EpisodeID:   episodeID,
		Muted:       true,
		CreatedAt:   time.Now(),
		Transitions: map[State]time.Time{StateQueued: time.Now()},
	}
	p.machine = fsm.NewFSM(
		string(StateQueued),
		fsm.Events{
			{Name: eventPickUp, Src: []string{string(StateQueued)}, Dst: string(StateScreening)},
			{Name: eventApprove, Src: []string{string(StateScreening)}, Dst: string(StateHold)},
			{Name: eventOnAir, Src: []string{string(StateHold)}, Dst: string(StateOnAir)},
			{Name: eventHold, Src: []string{string(StateOnAir), string(StateScreening)}, Dst: string(StateHold)},
			{Name: eventComplete, Src: nonTerminalStates(), Dst: string(StateCompleted)},
			{Name: eventReject, Src: nonTerminalStates(), Dst: string(StateRejected)},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				p.Transitions[State(e.Dst)] = time.Now()
			},
		},
	)
	return p
}

func nonTerminalStates() []string {
	return []string{
		string(StateQueued),
		string(StateScreening),
		string(StateHold),
		string(StateOnAir),
	}
}

// State reads the current lifecycle state. Callers outside a held
// participant lock get a snapshot that may already be stale.
func (p *Participant) State() State {
	return State(p.machine.Current())
}

// fire runs one transition event; the caller holds p.mu.
func (p *Participant) fire(ctx context.Context, event string) error {
	return p.machine.Event(ctx, event)
}

// Snapshot copies the exported fields for handing out of the registry.
type Snapshot struct {
	ID          string              `json:"id"`
	CallerRef   string              `json:"callerRef"`
	EpisodeID   string              `json:"episode"`
	State       State               `json:"state"`
	Room        string              `json:"room"`
	ScreenerID  string              `json:"screener,omitempty"`
	Muted       bool                `json:"muted"`
	Meta        map[string]string   `json:"meta,omitempty"`
	Transitions map[State]time.Time `json:"transitions"`
}

func (p *Participant) snapshot() Snapshot {
	transitions := make(map[State]time.Time, len(p.Transitions))
	for k, v := range p.Transitions {
		transitions[k] = v
	}
	meta := make(map[string]string, len(p.Meta))
	for k, v := range p.Meta {
		meta[k] = v
	}
	return Snapshot{
		ID:          p.ID,
		CallerRef:   p.CallerRef,
		EpisodeID:   p.EpisodeID,
		State:       p.State(),
		Room:        p.Room,
		ScreenerID:  p.ScreenerID,
		Muted:       p.Muted,
		Meta:        meta,
		Transitions: transitions,
	}
}
