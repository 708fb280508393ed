package incidents

import (
	"errors"
	"testing"
	"time"

	"github.com/bissquit/incident-sla/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextState(t *testing.T) {
	tests := []struct {
		from  domain.IncidentState
		event Event
		to    domain.IncidentState
	}{
		{domain.IncidentStateNew, EventStart, domain.IncidentStateInProgress},
		{domain.IncidentStateOnHold, EventStart, domain.IncidentStateInProgress},
		{domain.IncidentStateNew, EventHold, domain.IncidentStateOnHold},
		{domain.IncidentStateInProgress, EventHold, domain.IncidentStateOnHold},
		{domain.IncidentStateInProgress, EventResolve, domain.IncidentStateResolved},
		{domain.IncidentStateOnHold, EventResolve, domain.IncidentStateResolved},
		{domain.IncidentStateResolved, EventClose, domain.IncidentStateClosed},
		{domain.IncidentStateResolved, EventReopen, domain.IncidentStateInProgress},
		{domain.IncidentStateClosed, EventReopen, domain.IncidentStateInProgress},
		{domain.IncidentStateNew, EventCancel, domain.IncidentStateCancelled},
		{domain.IncidentStateClosed, EventCancel, domain.IncidentStateCancelled},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			to, err := NextState(tt.from, tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestNextState_Invalid(t *testing.T) {
	tests := []struct {
		from  domain.IncidentState
		event Event
	}{
		{domain.IncidentStateNew, EventResolve},
		{domain.IncidentStateNew, EventClose},
		{domain.IncidentStateNew, EventReopen},
		{domain.IncidentStateInProgress, EventStart},
		{domain.IncidentStateInProgress, EventClose},
		{domain.IncidentStateOnHold, EventHold},
		{domain.IncidentStateResolved, EventResolve},
		{domain.IncidentStateClosed, EventClose},
		{domain.IncidentStateCancelled, EventCancel},
		{domain.IncidentStateCancelled, EventReopen},
		{domain.IncidentStateCancelled, EventStart},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			_, err := NextState(tt.from, tt.event)
			require.Error(t, err)

			var transitionErr *InvalidTransitionError
			require.True(t, errors.As(err, &transitionErr))
			assert.Equal(t, tt.from, transitionErr.From)
			assert.Equal(t, tt.event, transitionErr.Event)
			assert.ErrorIs(t, err, ErrInvalidTransition)
		})
	}
}

func TestNextState_UnknownEvent(t *testing.T) {
	_, err := NextState(domain.IncidentStateNew, "escalate")
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestPlanTransition(t *testing.T) {
	created := time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)
	now := created.Add(time.Hour)
	earlier := created.Add(10 * time.Minute)

	t.Run("start records first response", func(t *testing.T) {
		inc := &domain.Incident{State: domain.IncidentStateNew}

		tr, err := PlanTransition(inc, EventStart, now, ReopenKeepBreach)
		require.NoError(t, err)
		require.NotNil(t, tr.ResponseTime)
		assert.Equal(t, now, *tr.ResponseTime)
		assert.Nil(t, inc.ResponseTime, "input must not be mutated")
	})

	t.Run("start keeps existing response", func(t *testing.T) {
		inc := &domain.Incident{State: domain.IncidentStateOnHold, ResponseTime: &earlier}

		tr, err := PlanTransition(inc, EventStart, now, ReopenKeepBreach)
		require.NoError(t, err)
		assert.Equal(t, earlier, *tr.ResponseTime)
	})

	t.Run("resolve and close stamp timestamps", func(t *testing.T) {
		inc := &domain.Incident{State: domain.IncidentStateInProgress}

		tr, err := PlanTransition(inc, EventResolve, now, ReopenKeepBreach)
		require.NoError(t, err)
		assert.Equal(t, now, *tr.ResolvedAt)
		assert.Nil(t, tr.ClosedAt)

		inc.State = domain.IncidentStateResolved
		inc.ResolvedAt = &earlier
		tr, err = PlanTransition(inc, EventClose, now, ReopenKeepBreach)
		require.NoError(t, err)
		assert.Equal(t, earlier, *tr.ResolvedAt)
		assert.Equal(t, now, *tr.ClosedAt)
	})

	t.Run("reopen clears timestamps and follows policy", func(t *testing.T) {
		inc := &domain.Incident{
			State:        domain.IncidentStateClosed,
			ResponseTime: &earlier,
			ResolvedAt:   &earlier,
			ClosedAt:     &earlier,
		}

		keep, err := PlanTransition(inc, EventReopen, now, ReopenKeepBreach)
		require.NoError(t, err)
		assert.Nil(t, keep.ResolvedAt)
		assert.Nil(t, keep.ClosedAt)
		assert.Equal(t, earlier, *keep.ResponseTime)
		assert.False(t, keep.ClearBreaches)

		cleared, err := PlanTransition(inc, EventReopen, now, ReopenClearBreach)
		require.NoError(t, err)
		assert.True(t, cleared.ClearBreaches)
	})
}
