package lifecycle

import (
	"errors"
	"fmt"
)

var ErrParticipantNotFound = errors.New("participant not found")

// ErrAlreadyScreening guards the per-screener limit: one active
// screening session per screener identity.
var ErrAlreadyScreening = errors.New("screener already has an active screening session")

// InvalidTransitionError rejects a guard violation synchronously, with
// the participant's current state attached.
type InvalidTransitionError struct {
	Participant string
	Current     State
	Attempted   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %q for participant %s in state %q", e.Attempted, e.Participant, e.Current)
}

// IsInvalidTransition reports whether err is a guard violation.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}
