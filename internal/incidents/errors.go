package incidents

import (
	"errors"
	"fmt"

	"github.com/bissquit/incident-sla/internal/domain"
)

// Incident errors.
var (
	ErrIncidentNotFound  = errors.New("incident not found")
	ErrStateConflict     = errors.New("incident state was changed concurrently")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrIncidentNotOpen   = errors.New("incident is not open")
	ErrUnknownEvent      = errors.New("unknown lifecycle event")
	ErrInvalidPeriod     = errors.New("invalid report period")
)

// InvalidTransitionError is returned when an event is not allowed in the current state.
// It matches ErrInvalidTransition with errors.Is.
type InvalidTransitionError struct {
	From  domain.IncidentState
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s incident in state %s", e.Event, e.From)
}

// Is reports whether target is ErrInvalidTransition.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
