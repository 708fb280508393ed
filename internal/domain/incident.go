package domain

import (
	"slices"
	"strings"
	"time"
)

// IncidentState represents the lifecycle state of an incident.
type IncidentState string

// Incident states.
const (
	IncidentStateNew        IncidentState = "NEW"
	IncidentStateInProgress IncidentState = "IN_PROGRESS"
	IncidentStateOnHold     IncidentState = "ON_HOLD"
	IncidentStateResolved   IncidentState = "RESOLVED"
	IncidentStateClosed     IncidentState = "CLOSED"
	IncidentStateCancelled  IncidentState = "CANCELLED"
)

// OpenIncidentStates lists the states that are subject to SLA scanning.
var OpenIncidentStates = []IncidentState{
	IncidentStateNew,
	IncidentStateInProgress,
	IncidentStateOnHold,
}

// IsOpen checks if the state is scanned for SLA breaches.
func (s IncidentState) IsOpen() bool {
	return slices.Contains(OpenIncidentStates, s)
}

// IsValid checks if the state is known.
func (s IncidentState) IsValid() bool {
	switch s {
	case IncidentStateNew, IncidentStateInProgress, IncidentStateOnHold,
		IncidentStateResolved, IncidentStateClosed, IncidentStateCancelled:
		return true
	}
	return false
}

// Level is used for both impact and urgency.
type Level string

// Impact and urgency levels.
const (
	LevelCritical Level = "CRITICAL"
	LevelHigh     Level = "HIGH"
	LevelMedium   Level = "MEDIUM"
	LevelLow      Level = "LOW"
)

// ParseLevel normalizes user input ("high", " High ") to a Level.
// Unknown values are returned as-is and resolve to the default priority.
func ParseLevel(s string) Level {
	return Level(strings.ToUpper(strings.TrimSpace(s)))
}

// IsValid checks if the level is known.
func (l Level) IsValid() bool {
	return l == LevelCritical || l == LevelHigh || l == LevelMedium || l == LevelLow
}

// Priority is derived from impact and urgency.
type Priority string

// Priorities.
const (
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
	PriorityP4 Priority = "P4"
)

// Priorities lists all priorities from highest to lowest.
var Priorities = []Priority{PriorityP1, PriorityP2, PriorityP3, PriorityP4}

// SLAType identifies which SLA clock is being evaluated.
type SLAType string

// SLA types.
const (
	SLATypeResponse   SLAType = "RESPONSE"
	SLATypeResolution SLAType = "RESOLUTION"
)

// IsValid checks if the SLA type is known.
func (t SLAType) IsValid() bool {
	return t == SLATypeResponse || t == SLATypeResolution
}

// SLAWarning identifies a warning that has already been sent.
// The target is part of the key: a reclassified incident gets a new target
// and therefore a new warning.
type SLAWarning struct {
	Type   SLAType   `json:"sla_type"`
	Target time.Time `json:"target"`
}

// Incident is the part of an incident record owned by the SLA engine.
type Incident struct {
	ID        string        `json:"id"`
	Number    string        `json:"number"`
	Title     string        `json:"title"`
	State     IncidentState `json:"state"`
	Impact    Level         `json:"impact"`
	Urgency   Level         `json:"urgency"`
	Priority  Priority      `json:"priority"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`

	ResponseTime *time.Time `json:"response_time"`
	ResolvedAt   *time.Time `json:"resolved_at"`
	ClosedAt     *time.Time `json:"closed_at"`

	SLATargetResponse   time.Time    `json:"sla_target_response"`
	SLATargetResolution time.Time    `json:"sla_target_resolution"`
	SLABreached         bool         `json:"sla_breached"`
	Breaches            []SLAType    `json:"sla_breaches"`
	WarningsSent        []SLAWarning `json:"sla_warnings_sent"`
}

// IsBreached checks if the given SLA type has already been marked breached.
func (i *Incident) IsBreached(t SLAType) bool {
	for _, b := range i.Breaches {
		if b == t {
			return true
		}
	}
	return false
}

// WarningSent checks if a warning was already sent for the SLA type and target.
func (i *Incident) WarningSent(t SLAType, target time.Time) bool {
	for _, w := range i.WarningsSent {
		if w.Type == t && w.Target.Equal(target) {
			return true
		}
	}
	return false
}

// TargetFor returns the target instant for the given SLA type.
func (i *Incident) TargetFor(t SLAType) time.Time {
	if t == SLATypeResponse {
		return i.SLATargetResponse
	}
	return i.SLATargetResolution
}

// Clone returns a deep copy of the incident.
func (i *Incident) Clone() *Incident {
	c := *i
	c.ResponseTime = cloneTime(i.ResponseTime)
	c.ResolvedAt = cloneTime(i.ResolvedAt)
	c.ClosedAt = cloneTime(i.ClosedAt)
	c.Breaches = append([]SLAType(nil), i.Breaches...)
	c.WarningsSent = append([]SLAWarning(nil), i.WarningsSent...)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
