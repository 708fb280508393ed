package sla

import (
	"fmt"

	"github.com/bissquit/incident-sla/internal/domain"
)

// Definition holds the SLA targets for a single priority.
type Definition struct {
	ResponseMinutes   int  `json:"response_minutes"`
	ResolutionMinutes int  `json:"resolution_minutes"`
	BusinessHoursOnly bool `json:"business_hours_only"`
}

// DefaultDefinitions returns the built-in SLA targets.
// P1 and P2 run around the clock, P3 and P4 only during business hours.
func DefaultDefinitions() map[domain.Priority]Definition {
	return map[domain.Priority]Definition{
		domain.PriorityP1: {ResponseMinutes: 15, ResolutionMinutes: 60},
		domain.PriorityP2: {ResponseMinutes: 30, ResolutionMinutes: 240},
		domain.PriorityP3: {ResponseMinutes: 120, ResolutionMinutes: 480, BusinessHoursOnly: true},
		domain.PriorityP4: {ResponseMinutes: 480, ResolutionMinutes: 1440, BusinessHoursOnly: true},
	}
}

// Catalog is an immutable priority to SLA definition lookup table.
type Catalog struct {
	entries [4]Definition
}

func priorityIndex(p domain.Priority) int {
	switch p {
	case domain.PriorityP1:
		return 0
	case domain.PriorityP2:
		return 1
	case domain.PriorityP3:
		return 2
	case domain.PriorityP4:
		return 3
	}
	return -1
}

// NewCatalog builds a catalog from the defaults overlaid with overrides.
func NewCatalog(overrides map[domain.Priority]Definition) (*Catalog, error) {
	defs := DefaultDefinitions()
	for p, d := range overrides {
		if priorityIndex(p) < 0 {
			return nil, &ConfigError{Field: "sla.catalog", Reason: fmt.Sprintf("unknown priority %q", p)}
		}
		defs[p] = d
	}

	c := &Catalog{}
	for _, p := range domain.Priorities {
		d := defs[p]
		if d.ResponseMinutes <= 0 || d.ResolutionMinutes <= 0 {
			return nil, &ConfigError{Field: "sla.catalog." + string(p), Reason: "targets must be positive"}
		}
		if d.ResolutionMinutes < d.ResponseMinutes {
			return nil, &ConfigError{Field: "sla.catalog." + string(p), Reason: "resolution target is shorter than response target"}
		}
		c.entries[priorityIndex(p)] = d
	}
	return c, nil
}

// DefaultCatalog returns a catalog with the built-in definitions.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(nil)
	if err != nil {
		panic(err)
	}
	return c
}

// TargetsFor returns the definition for the priority.
// Unknown priorities fall back to the P3 entry.
func (c *Catalog) TargetsFor(p domain.Priority) Definition {
	idx := priorityIndex(p)
	if idx < 0 {
		idx = priorityIndex(DefaultPriority)
	}
	return c.entries[idx]
}
