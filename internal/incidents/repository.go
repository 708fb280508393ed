package incidents

import (
	"context"
	"time"

	"github.com/bissquit/incident-sla/internal/domain"
)

// Repository defines the interface for incident storage.
//
// Every mutating method is a single conditional write on one record. Methods
// returning a bool report whether this caller's write won.
type Repository interface {
	CreateIncident(ctx context.Context, incident *domain.Incident) error
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	UpdateClassification(ctx context.Context, id string, c Classification) (*domain.Incident, error)

	// LoadOpenIncidents returns incidents in NEW, IN_PROGRESS or ON_HOLD.
	LoadOpenIncidents(ctx context.Context) ([]*domain.Incident, error)

	// CompareAndSetBreach marks slaType breached only if its current marker
	// equals wasBreached. The aggregate SLABreached flag is set along with it.
	CompareAndSetBreach(ctx context.Context, id string, slaType domain.SLAType, wasBreached bool) (bool, error)

	// RecordWarningSent inserts the (slaType, target) warning marker if absent.
	RecordWarningSent(ctx context.Context, id string, slaType domain.SLAType, target time.Time) (bool, error)

	// ApplyLifecycleTransition applies t if the incident is still in t.From.
	// Returns ErrStateConflict otherwise.
	ApplyLifecycleTransition(ctx context.Context, id string, t Transition) (*domain.Incident, error)

	// SLACompliance counts incidents created in [from, to] per priority.
	// Priorities without incidents may be omitted.
	SLACompliance(ctx context.Context, from, to time.Time) ([]ComplianceCounts, error)
}

// Transition is the persisted effect of a lifecycle event.
type Transition struct {
	Event Event
	From  domain.IncidentState
	To    domain.IncidentState
	At    time.Time

	// ResponseTime is only ever written when the stored value is unset.
	ResponseTime *time.Time
	ResolvedAt   *time.Time
	ClosedAt     *time.Time

	// ClearBreaches resets SLABreached and the per-type markers.
	ClearBreaches bool
}

// Classification holds the fields rewritten by an impact/urgency change.
type Classification struct {
	Impact              domain.Level
	Urgency             domain.Level
	Priority            domain.Priority
	SLATargetResponse   time.Time
	SLATargetResolution time.Time
	UpdatedAt           time.Time
}
