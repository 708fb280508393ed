// Package memory provides an in-process implementation of incidents.Repository.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bissquit/incident-sla/internal/domain"
	"github.com/bissquit/incident-sla/internal/incidents"
	"github.com/google/uuid"
)

// Repository keeps incidents in a map guarded by a mutex.
// Stored values are never handed out; callers always receive clones.
type Repository struct {
	mu        sync.Mutex
	incidents map[string]*domain.Incident
	seq       int
}

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{
		incidents: make(map[string]*domain.Incident),
	}
}

// CreateIncident stores a new incident, assigning ID and Number when empty.
func (r *Repository) CreateIncident(_ context.Context, incident *domain.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if incident.ID != "" {
		if _, exists := r.incidents[incident.ID]; exists {
			return fmt.Errorf("create incident: duplicate id %s", incident.ID)
		}
	} else {
		incident.ID = uuid.NewString()
	}

	r.seq++
	if incident.Number == "" {
		incident.Number = fmt.Sprintf("INC%07d", r.seq)
	}
	if incident.UpdatedAt.IsZero() {
		incident.UpdatedAt = incident.CreatedAt
	}

	r.incidents[incident.ID] = incident.Clone()
	return nil
}

// GetIncident returns a copy of the incident.
func (r *Repository) GetIncident(_ context.Context, id string) (*domain.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inc, ok := r.incidents[id]
	if !ok {
		return nil, incidents.ErrIncidentNotFound
	}
	return inc.Clone(), nil
}

// UpdateClassification rewrites impact, urgency, priority and targets of an open incident.
func (r *Repository) UpdateClassification(_ context.Context, id string, c incidents.Classification) (*domain.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inc, ok := r.incidents[id]
	if !ok {
		return nil, incidents.ErrIncidentNotFound
	}
	if !inc.State.IsOpen() {
		return nil, incidents.ErrIncidentNotOpen
	}

	inc.Impact = c.Impact
	inc.Urgency = c.Urgency
	inc.Priority = c.Priority
	inc.SLATargetResponse = c.SLATargetResponse
	inc.SLATargetResolution = c.SLATargetResolution
	inc.UpdatedAt = c.UpdatedAt

	return inc.Clone(), nil
}

// LoadOpenIncidents returns open incidents ordered by creation time.
func (r *Repository) LoadOpenIncidents(_ context.Context) ([]*domain.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]*domain.Incident, 0, len(r.incidents))
	for _, inc := range r.incidents {
		if inc.State.IsOpen() {
			result = append(result, inc.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// CompareAndSetBreach marks slaType breached if its marker equals wasBreached.
func (r *Repository) CompareAndSetBreach(_ context.Context, id string, slaType domain.SLAType, wasBreached bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inc, ok := r.incidents[id]
	if !ok {
		return false, incidents.ErrIncidentNotFound
	}
	// Only the false to true edge is a winning write.
	if wasBreached || inc.IsBreached(slaType) {
		return false, nil
	}

	inc.Breaches = append(inc.Breaches, slaType)
	inc.SLABreached = true
	return true, nil
}

// RecordWarningSent adds the warning marker unless it already exists.
func (r *Repository) RecordWarningSent(_ context.Context, id string, slaType domain.SLAType, target time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inc, ok := r.incidents[id]
	if !ok {
		return false, incidents.ErrIncidentNotFound
	}
	if inc.WarningSent(slaType, target) {
		return false, nil
	}

	inc.WarningsSent = append(inc.WarningsSent, domain.SLAWarning{Type: slaType, Target: target})
	return true, nil
}

// ApplyLifecycleTransition applies t if the incident is still in t.From.
func (r *Repository) ApplyLifecycleTransition(_ context.Context, id string, t incidents.Transition) (*domain.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inc, ok := r.incidents[id]
	if !ok {
		return nil, incidents.ErrIncidentNotFound
	}
	if inc.State != t.From {
		return nil, incidents.ErrStateConflict
	}

	inc.State = t.To
	inc.UpdatedAt = t.At
	if inc.ResponseTime == nil && t.ResponseTime != nil {
		v := *t.ResponseTime
		inc.ResponseTime = &v
	}
	inc.ResolvedAt = copyTime(t.ResolvedAt)
	inc.ClosedAt = copyTime(t.ClosedAt)
	if t.ClearBreaches {
		inc.SLABreached = false
		inc.Breaches = nil
	}

	return inc.Clone(), nil
}

// SLACompliance counts incidents created in [from, to] per priority.
func (r *Repository) SLACompliance(_ context.Context, from, to time.Time) ([]incidents.ComplianceCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[domain.Priority]*incidents.ComplianceCounts)
	for _, inc := range r.incidents {
		if inc.CreatedAt.Before(from) || inc.CreatedAt.After(to) {
			continue
		}
		c, ok := counts[inc.Priority]
		if !ok {
			c = &incidents.ComplianceCounts{Priority: inc.Priority}
			counts[inc.Priority] = c
		}
		c.Total++
		if inc.SLABreached {
			c.Breached++
		}
		if inc.IsBreached(domain.SLATypeResponse) {
			c.ResponseBreached++
		}
		if inc.IsBreached(domain.SLATypeResolution) {
			c.ResolutionBreached++
		}
	}

	result := make([]incidents.ComplianceCounts, 0, len(counts))
	for _, c := range counts {
		result = append(result, *c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Priority < result[j].Priority })
	return result, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
