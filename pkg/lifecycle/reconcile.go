package lifecycle

import (
	"context"
	"time"

	"github.com/cloudgroundcontrol/callin-studio/pkg/bridge"
	"github.com/cloudgroundcontrol/callin-studio/pkg/metrics"
	"github.com/labstack/gommon/log"
)

// BridgeAuditor is the reconciliation-facing slice of the bridge
// manager: enumerate sessions, repair drifted ones, close orphans.
type BridgeAuditor interface {
	Active() []bridge.SessionInfo
	Ensure(ctx context.Context, participantID string, roomName string) error
	Close(participantID string) error
}

// MembershipLister reads actual room membership from the fabric.
type MembershipLister interface {
	Members(ctx context.Context, name string) ([]string, error)
}

// Reconciler periodically repairs drift between intended and actual
// room/bridge state. Transitions never wait on membership confirmation;
// this sweep is what makes that optimism safe.
type Reconciler struct {
	svc      Service
	bridges  BridgeAuditor
	rooms    MembershipLister
	interval time.Duration

	// consecutive failed repairs per room, for operator escalation
	failures map[string]int
}

const escalateAfter = 3

func NewReconciler(svc Service, bridges BridgeAuditor, rooms MembershipLister, interval time.Duration) *Reconciler {
	return &Reconciler{
		svc:      svc,
		bridges:  bridges,
		rooms:    rooms,
		interval: interval,
		failures: make(map[string]int),
	}
}

// Run sweeps until the context ends. The first sweep happens right away
// so a restarted process repairs drift before the first tick.
func (r *Reconciler) Run(ctx context.Context) {
	r.Sweep(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one reconciliation pass.
func (r *Reconciler) Sweep(ctx context.Context) {
	r.repairParticipants(ctx)
	r.closeOrphans()
}

func (r *Reconciler) repairParticipants(ctx context.Context) {
	for _, snap := range r.svc.List("") {
		if snap.State.Terminal() || snap.Room == "" {
			continue
		}

		members, err := r.rooms.Members(ctx, snap.Room)
		if err != nil {
			r.noteFailure(snap.Room, err)
			continue
		}

		if containsIdentity(members, "TB_"+snap.ID) {
			delete(r.failures, snap.Room)
			continue
		}

		// Intended membership is missing: re-attach the bridge leg
		log.Warnf("bridge drift detected | participant: %s, room: %s", snap.ID, snap.Room)
		if err = r.bridges.Ensure(ctx, snap.ID, snap.Room); err != nil {
			metrics.ReconcileFailures.Inc()
			r.noteFailure(snap.Room, err)
			continue
		}
		metrics.ReconcileRepairs.Inc()
		delete(r.failures, snap.Room)
		log.Infof("repaired bridge | participant: %s, room: %s", snap.ID, snap.Room)
	}
}

// closeOrphans tears down bridges whose participant is gone or terminal,
// the self-healing path for partial teardown.
func (r *Reconciler) closeOrphans() {
	for _, info := range r.bridges.Active() {
		snap, err := r.svc.Get(info.ParticipantID)
		if err == nil && !snap.State.Terminal() {
			continue
		}
		log.Warnf("closing orphaned bridge | participant: %s, room: %s", info.ParticipantID, info.Room)
		if err = r.bridges.Close(info.ParticipantID); err != nil {
			log.Errorf("orphan close failed | participant: %s, error: %v", info.ParticipantID, err)
		} else {
			metrics.ReconcileRepairs.Inc()
		}
	}
}

func (r *Reconciler) noteFailure(roomName string, err error) {
	r.failures[roomName]++
	if r.failures[roomName] >= escalateAfter {
		// Operator alert channel is the error log by convention
		log.Errorf("reconciliation failing repeatedly, needs operator | room: %s, consecutive: %d, error: %v",
			roomName, r.failures[roomName], err)
		return
	}
	log.Warnf("reconciliation repair failed | room: %s, consecutive: %d, error: %v", roomName, r.failures[roomName], err)
}

func containsIdentity(members []string, identity string) bool {
	for _, m := range members {
		if m == identity {
			return true
		}
	}
	return false
}
