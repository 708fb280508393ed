package sla

import (
	"fmt"
	"time"

	"github.com/bissquit/incident-sla/internal/domain"
)

// TargetInstant returns the instant at which durationMinutes of SLA time
// have elapsed since start.
//
// Without businessHoursOnly the result is simply start + duration. Otherwise
// the clock only advances during the calendar's working time, rolling over
// evenings, non-working days and weekends.
func TargetInstant(start time.Time, durationMinutes int, cal BusinessCalendar, businessHoursOnly bool) (time.Time, error) {
	remaining := time.Duration(max(durationMinutes, 0)) * time.Minute
	if !businessHoursOnly {
		return start.Add(remaining), nil
	}

	if err := cal.Validate(); err != nil {
		return time.Time{}, err
	}

	current := start.In(cal.location())
	for remaining > 0 {
		if !cal.isWorkingDay(current.Weekday()) {
			current = cal.nextWorkingDayStart(current)
			continue
		}

		dayStart := cal.dayStart(current)
		if current.Before(dayStart) {
			current = dayStart
			continue
		}

		dayEnd := cal.dayEnd(current)
		if !current.Before(dayEnd) {
			current = cal.nextWorkingDayStart(current)
			continue
		}

		step := min(remaining, dayEnd.Sub(current))
		current = current.Add(step)
		remaining -= step
	}

	return current.In(start.Location()), nil
}

// Targets is the result of an SLA computation for one incident.
type Targets struct {
	Priority   domain.Priority
	Response   time.Time
	Resolution time.Time
}

// Engine bundles the catalog and calendar used at incident creation time.
type Engine struct {
	catalog  *Catalog
	calendar BusinessCalendar
}

// NewEngine creates an SLA engine. The calendar is validated up front so
// misconfiguration fails at startup rather than on the first incident.
func NewEngine(catalog *Catalog, calendar BusinessCalendar) (*Engine, error) {
	if err := calendar.Validate(); err != nil {
		return nil, err
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Engine{catalog: catalog, calendar: calendar}, nil
}

// Catalog returns the engine's SLA catalog.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Calendar returns the engine's business calendar.
func (e *Engine) Calendar() BusinessCalendar {
	return e.calendar
}

// ComputeTargets derives priority and both SLA deadlines, measured from createdAt.
func (e *Engine) ComputeTargets(createdAt time.Time, impact, urgency domain.Level) (Targets, error) {
	return ComputeTargets(createdAt, impact, urgency, e.catalog, e.calendar)
}

// ComputeTargets resolves the priority for impact and urgency and computes
// the response and resolution targets from the catalog entry.
func ComputeTargets(createdAt time.Time, impact, urgency domain.Level, catalog *Catalog, cal BusinessCalendar) (Targets, error) {
	priority := ResolvePriority(impact, urgency)
	def := catalog.TargetsFor(priority)

	response, err := TargetInstant(createdAt, def.ResponseMinutes, cal, def.BusinessHoursOnly)
	if err != nil {
		return Targets{}, fmt.Errorf("response target: %w", err)
	}

	resolution, err := TargetInstant(createdAt, def.ResolutionMinutes, cal, def.BusinessHoursOnly)
	if err != nil {
		return Targets{}, fmt.Errorf("resolution target: %w", err)
	}

	return Targets{
		Priority:   priority,
		Response:   response,
		Resolution: resolution,
	}, nil
}
