// Package incidents implements the incident lifecycle and the CRUD surface
// that stamps SLA targets onto new incidents.
package incidents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/incident-sla/internal/domain"
	"github.com/bissquit/incident-sla/internal/sla"
)

// Service implements incident business logic.
type Service struct {
	repo      Repository
	engine    *sla.Engine
	lifecycle *Lifecycle
	now       func() time.Time
}

// NewService creates a new incident service. It shares the lifecycle's clock.
func NewService(repo Repository, engine *sla.Engine, lifecycle *Lifecycle) *Service {
	return &Service{
		repo:      repo,
		engine:    engine,
		lifecycle: lifecycle,
		now:       lifecycle.now,
	}
}

// CreateIncidentInput holds data for creating an incident.
type CreateIncidentInput struct {
	Number  string
	Title   string
	Impact  string
	Urgency string
}

// CreateIncident computes priority and SLA targets and stores a NEW incident.
func (s *Service) CreateIncident(ctx context.Context, input CreateIncidentInput) (*domain.Incident, error) {
	now := s.now().UTC()
	impact := domain.ParseLevel(input.Impact)
	urgency := domain.ParseLevel(input.Urgency)

	targets, err := s.engine.ComputeTargets(now, impact, urgency)
	if err != nil {
		return nil, fmt.Errorf("compute sla targets: %w", err)
	}

	incident := &domain.Incident{
		Number:              input.Number,
		Title:               input.Title,
		State:               domain.IncidentStateNew,
		Impact:              impact,
		Urgency:             urgency,
		Priority:            targets.Priority,
		CreatedAt:           now,
		UpdatedAt:           now,
		SLATargetResponse:   targets.Response,
		SLATargetResolution: targets.Resolution,
	}

	if err := s.repo.CreateIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	slog.Info("incident created",
		"incident_id", incident.ID,
		"number", incident.Number,
		"priority", incident.Priority,
		"sla_target_response", incident.SLATargetResponse,
		"sla_target_resolution", incident.SLATargetResolution,
	)
	return incident, nil
}

// GetIncident returns an incident by ID.
func (s *Service) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	return s.repo.GetIncident(ctx, id)
}

// Reclassify changes impact and urgency of an open incident and recomputes
// its targets from the original creation time.
func (s *Service) Reclassify(ctx context.Context, id, impact, urgency string) (*domain.Incident, error) {
	incident, err := s.repo.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if !incident.State.IsOpen() {
		return nil, ErrIncidentNotOpen
	}

	c := Classification{
		Impact:    domain.ParseLevel(impact),
		Urgency:   domain.ParseLevel(urgency),
		UpdatedAt: s.now().UTC(),
	}

	targets, err := s.engine.ComputeTargets(incident.CreatedAt, c.Impact, c.Urgency)
	if err != nil {
		return nil, fmt.Errorf("compute sla targets: %w", err)
	}
	c.Priority = targets.Priority
	c.SLATargetResponse = targets.Response
	c.SLATargetResolution = targets.Resolution

	updated, err := s.repo.UpdateClassification(ctx, id, c)
	if err != nil {
		return nil, fmt.Errorf("update classification: %w", err)
	}

	slog.Info("incident reclassified",
		"incident_id", id,
		"priority_from", incident.Priority,
		"priority_to", updated.Priority,
	)
	return updated, nil
}

// TransitionIncident loads an incident and applies a lifecycle event to it.
func (s *Service) TransitionIncident(ctx context.Context, id string, event Event) (*domain.Incident, error) {
	if !event.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}

	incident, err := s.repo.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.lifecycle.Transition(ctx, incident, event)
}
