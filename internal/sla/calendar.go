package sla

import (
	"fmt"
	"strings"
	"time"
)

// BusinessCalendar describes when business-hours SLA clocks advance.
// Hours are local clock hours in Location, half-open [StartHour, EndHour).
type BusinessCalendar struct {
	WorkingDays []time.Weekday
	StartHour   int
	EndHour     int
	Location    *time.Location
}

// DefaultCalendar returns Monday to Friday, 09:00 to 18:00 UTC.
func DefaultCalendar() BusinessCalendar {
	return BusinessCalendar{
		WorkingDays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		StartHour:   9,
		EndHour:     18,
		Location:    time.UTC,
	}
}

// NewBusinessCalendar builds and validates a calendar.
func NewBusinessCalendar(days []time.Weekday, startHour, endHour int, loc *time.Location) (BusinessCalendar, error) {
	cal := BusinessCalendar{
		WorkingDays: append([]time.Weekday(nil), days...),
		StartHour:   startHour,
		EndHour:     endHour,
		Location:    loc,
	}
	if err := cal.Validate(); err != nil {
		return BusinessCalendar{}, err
	}
	return cal, nil
}

// Validate rejects calendars without any working time.
func (c BusinessCalendar) Validate() error {
	if c.StartHour < 0 || c.StartHour > 23 {
		return &ConfigError{Field: "calendar.start_hour", Reason: fmt.Sprintf("%d is outside 0..23", c.StartHour)}
	}
	if c.EndHour < 1 || c.EndHour > 24 {
		return &ConfigError{Field: "calendar.end_hour", Reason: fmt.Sprintf("%d is outside 1..24", c.EndHour)}
	}
	if c.StartHour >= c.EndHour {
		return &ConfigError{Field: "calendar", Reason: fmt.Sprintf("start hour %d is not before end hour %d", c.StartHour, c.EndHour)}
	}
	for _, d := range c.WorkingDays {
		if d >= time.Sunday && d <= time.Saturday {
			return nil
		}
	}
	return &ConfigError{Field: "calendar.working_days", Reason: "no working days"}
}

// ParseWeekday parses "mon", "Monday", "MON" and similar.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return 0, &ConfigError{Field: "calendar.working_days", Reason: fmt.Sprintf("unknown weekday %q", s)}
}

func (c BusinessCalendar) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func (c BusinessCalendar) isWorkingDay(d time.Weekday) bool {
	for _, wd := range c.WorkingDays {
		if wd == d {
			return true
		}
	}
	return false
}

// IsWithinBusinessHours checks if t falls inside working time.
func (c BusinessCalendar) IsWithinBusinessHours(t time.Time) bool {
	t = t.In(c.location())
	if !c.isWorkingDay(t.Weekday()) {
		return false
	}
	return !t.Before(c.dayStart(t)) && t.Before(c.dayEnd(t))
}

func (c BusinessCalendar) dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, c.StartHour, 0, 0, 0, c.location())
}

// dayEnd normalizes EndHour 24 to the following midnight.
func (c BusinessCalendar) dayEnd(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, c.EndHour, 0, 0, 0, c.location())
}

// nextWorkingDayStart returns StartHour:00 of the first working day after t's date.
// Callers must have validated the calendar.
func (c BusinessCalendar) nextWorkingDayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	for i := 1; i <= 7; i++ {
		next := time.Date(y, m, d+i, c.StartHour, 0, 0, 0, c.location())
		if c.isWorkingDay(next.Weekday()) {
			return next
		}
	}
	return time.Date(y, m, d+7, c.StartHour, 0, 0, 0, c.location())
}
