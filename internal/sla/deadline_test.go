package sla

import (
	"errors"
	"testing"
	"time"

	"github.com/bissquit/incident-sla/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func TestTargetInstant_BusinessHours(t *testing.T) {
	cal := DefaultCalendar()

	tests := []struct {
		name     string
		start    time.Time
		minutes  int
		expected time.Time
	}{
		{
			name:     "crosses a weekend",
			start:    at(2026, time.October, 16, 17, 30), // Friday
			minutes:  120,
			expected: at(2026, time.October, 19, 10, 30), // Monday
		},
		{
			name:     "inside a single day",
			start:    at(2026, time.October, 19, 10, 0),
			minutes:  90,
			expected: at(2026, time.October, 19, 11, 30),
		},
		{
			name:     "before opening is clamped to start hour",
			start:    at(2026, time.October, 19, 7, 0),
			minutes:  60,
			expected: at(2026, time.October, 19, 10, 0),
		},
		{
			name:     "after closing rolls to next working day",
			start:    at(2026, time.October, 19, 19, 0),
			minutes:  60,
			expected: at(2026, time.October, 20, 10, 0),
		},
		{
			name:     "starting on saturday",
			start:    at(2026, time.October, 17, 12, 0),
			minutes:  30,
			expected: at(2026, time.October, 19, 9, 30),
		},
		{
			name:     "ends exactly at closing",
			start:    at(2026, time.October, 19, 17, 0),
			minutes:  60,
			expected: at(2026, time.October, 19, 18, 0),
		},
		{
			name:     "spans several working days",
			start:    at(2026, time.October, 19, 9, 0),
			minutes:  1440,
			expected: at(2026, time.October, 21, 15, 0),
		},
		{
			name:     "year rollover",
			start:    at(2026, time.December, 31, 17, 0), // Thursday
			minutes:  120,
			expected: at(2027, time.January, 1, 10, 0),
		},
		{
			name:     "zero duration returns start",
			start:    at(2026, time.October, 17, 12, 0),
			minutes:  0,
			expected: at(2026, time.October, 17, 12, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TargetInstant(tt.start, tt.minutes, cal, true)
			require.NoError(t, err)
			assert.True(t, tt.expected.Equal(got), "expected %v, got %v", tt.expected, got)
		})
	}
}

func TestTargetInstant_PartialMinute(t *testing.T) {
	start := time.Date(2026, time.October, 19, 17, 59, 30, 0, time.UTC)

	got, err := TargetInstant(start, 1, DefaultCalendar(), true)
	require.NoError(t, err)

	expected := time.Date(2026, time.October, 20, 9, 0, 30, 0, time.UTC)
	assert.True(t, expected.Equal(got), "expected %v, got %v", expected, got)
}

func TestTargetInstant_WallClock(t *testing.T) {
	degenerate := BusinessCalendar{StartHour: 18, EndHour: 9}
	start := at(2026, time.October, 17, 23, 15)

	for _, cal := range []BusinessCalendar{DefaultCalendar(), degenerate, {}} {
		got, err := TargetInstant(start, 60, cal, false)
		require.NoError(t, err)
		assert.True(t, start.Add(time.Hour).Equal(got))
	}
}

func TestTargetInstant_ConfiguredZone(t *testing.T) {
	zone := time.FixedZone("UTC+3", 3*60*60)
	cal := DefaultCalendar()
	cal.Location = zone

	// Friday 17:30 local.
	start := time.Date(2026, time.October, 16, 14, 30, 0, 0, time.UTC)

	got, err := TargetInstant(start, 120, cal, true)
	require.NoError(t, err)

	expected := time.Date(2026, time.October, 19, 10, 30, 0, 0, zone)
	assert.True(t, expected.Equal(got), "expected %v, got %v", expected, got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestTargetInstant_RoundTheClockCalendar(t *testing.T) {
	cal := BusinessCalendar{
		WorkingDays: []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday},
		StartHour:   0,
		EndHour:     24,
		Location:    time.UTC,
	}
	start := at(2026, time.October, 17, 22, 45)

	got, err := TargetInstant(start, 480, cal, true)
	require.NoError(t, err)
	assert.True(t, start.Add(8*time.Hour).Equal(got), "got %v", got)
}

func TestTargetInstant_DegenerateCalendar(t *testing.T) {
	tests := []struct {
		name string
		cal  BusinessCalendar
	}{
		{"inverted hours", BusinessCalendar{WorkingDays: []time.Weekday{time.Monday}, StartHour: 18, EndHour: 9}},
		{"empty window", BusinessCalendar{WorkingDays: []time.Weekday{time.Monday}, StartHour: 9, EndHour: 9}},
		{"no working days", BusinessCalendar{StartHour: 9, EndHour: 18}},
		{"hour out of range", BusinessCalendar{WorkingDays: []time.Weekday{time.Monday}, StartHour: 9, EndHour: 25}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TargetInstant(at(2026, time.October, 19, 10, 0), 60, tt.cal, true)
			require.Error(t, err)

			var cfgErr *ConfigError
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestTargetInstant_NeverBeforeStart(t *testing.T) {
	cal := DefaultCalendar()
	base := at(2026, time.October, 12, 0, 0)

	for hour := 0; hour < 7*24; hour += 5 {
		start := base.Add(time.Duration(hour)*time.Hour + 17*time.Minute)
		for _, minutes := range []int{0, 1, 15, 60, 240, 480, 1440} {
			for _, businessHours := range []bool{true, false} {
				got, err := TargetInstant(start, minutes, cal, businessHours)
				require.NoError(t, err)
				assert.False(t, got.Before(start), "start=%v minutes=%d got=%v", start, minutes, got)
			}
		}
	}
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("mon")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, d)

	d, err = ParseWeekday(" Saturday ")
	require.NoError(t, err)
	assert.Equal(t, time.Saturday, d)

	_, err = ParseWeekday("funday")
	assert.Error(t, err)
}

func TestNewEngine_RejectsDegenerateCalendar(t *testing.T) {
	_, err := NewEngine(nil, BusinessCalendar{StartHour: 9, EndHour: 18})

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "calendar.working_days", cfgErr.Field)
}

func TestEngine_ComputeTargets(t *testing.T) {
	engine, err := NewEngine(DefaultCatalog(), DefaultCalendar())
	require.NoError(t, err)

	t.Run("P1 runs around the clock", func(t *testing.T) {
		createdAt := at(2026, time.October, 17, 3, 0) // Saturday night

		targets, err := engine.ComputeTargets(createdAt, domain.LevelCritical, domain.LevelCritical)
		require.NoError(t, err)

		assert.Equal(t, domain.PriorityP1, targets.Priority)
		assert.True(t, createdAt.Add(15*time.Minute).Equal(targets.Response))
		assert.True(t, createdAt.Add(time.Hour).Equal(targets.Resolution))
	})

	t.Run("P3 uses business hours", func(t *testing.T) {
		createdAt := at(2026, time.October, 16, 17, 0) // Friday

		targets, err := engine.ComputeTargets(createdAt, domain.LevelMedium, domain.LevelMedium)
		require.NoError(t, err)

		assert.Equal(t, domain.PriorityP3, targets.Priority)
		assert.True(t, at(2026, time.October, 19, 10, 0).Equal(targets.Response), "response %v", targets.Response)
		assert.True(t, at(2026, time.October, 19, 16, 0).Equal(targets.Resolution), "resolution %v", targets.Resolution)
	})

	t.Run("unknown levels use P3", func(t *testing.T) {
		createdAt := at(2026, time.October, 19, 9, 0)

		targets, err := engine.ComputeTargets(createdAt, "", domain.LevelHigh)
		require.NoError(t, err)

		assert.Equal(t, domain.PriorityP3, targets.Priority)
		assert.False(t, targets.Response.Before(createdAt))
		assert.False(t, targets.Resolution.Before(createdAt))
	})
}
