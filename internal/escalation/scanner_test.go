package escalation_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bissquit/incident-sla/internal/domain"
	"github.com/bissquit/incident-sla/internal/escalation"
	"github.com/bissquit/incident-sla/internal/incidents"
	"github.com/bissquit/incident-sla/internal/incidents/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)

type call struct {
	kind    escalation.AlertKind
	id      string
	slaType domain.SLAType
	delta   time.Duration
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (n *recordingNotifier) NotifyWarning(_ context.Context, inc *domain.Incident, slaType domain.SLAType, remaining time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, call{escalation.AlertKindWarning, inc.ID, slaType, remaining})
	return n.err
}

func (n *recordingNotifier) NotifyBreach(_ context.Context, inc *domain.Incident, slaType domain.SLAType, overdueBy time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, call{escalation.AlertKindBreach, inc.ID, slaType, overdueBy})
	return n.err
}

func (n *recordingNotifier) Calls() []call {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]call(nil), n.calls...)
}

// countingStore counts conditional write attempts.
type countingStore struct {
	*memory.Repository
	writes  atomic.Int32
	loadErr error
	casErr  error
}

func (s *countingStore) LoadOpenIncidents(ctx context.Context) ([]*domain.Incident, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.Repository.LoadOpenIncidents(ctx)
}

func (s *countingStore) CompareAndSetBreach(ctx context.Context, id string, slaType domain.SLAType, wasBreached bool) (bool, error) {
	s.writes.Add(1)
	if s.casErr != nil {
		return false, s.casErr
	}
	return s.Repository.CompareAndSetBreach(ctx, id, slaType, wasBreached)
}

func (s *countingStore) RecordWarningSent(ctx context.Context, id string, slaType domain.SLAType, target time.Time) (bool, error) {
	s.writes.Add(1)
	return s.Repository.RecordWarningSent(ctx, id, slaType, target)
}

func seed(t *testing.T, store *countingStore, state domain.IncidentState, response, resolution time.Duration) *domain.Incident {
	t.Helper()
	inc := &domain.Incident{
		Title:               "scanner",
		State:               state,
		Priority:            domain.PriorityP2,
		CreatedAt:           created,
		UpdatedAt:           created,
		SLATargetResponse:   created.Add(response),
		SLATargetResolution: created.Add(resolution),
	}
	require.NoError(t, store.CreateIncident(context.Background(), inc))
	return inc
}

func newScanner(store *countingStore, notifier escalation.Notifier, now time.Time) *escalation.Scanner {
	return escalation.NewScanner(store, notifier, escalation.ScannerConfig{Workers: 4},
		escalation.WithScannerClock(func() time.Time { return now }))
}

func TestScanner_BreachIsNotifiedOnce(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Repository: memory.NewRepository()}
	notifier := &recordingNotifier{}

	// Response target passed 5 minutes ago; resolution is hours away.
	inc := seed(t, store, domain.IncidentStateNew, 30*time.Minute, 8*time.Hour)
	scanner := newScanner(store, notifier, created.Add(35*time.Minute))

	result, err := scanner.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 1, result.Breaches)
	assert.Zero(t, result.Warnings)

	calls := notifier.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, call{escalation.AlertKindBreach, inc.ID, domain.SLATypeResponse, 5 * time.Minute}, calls[0])

	got, err := store.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	assert.True(t, got.SLABreached)

	store.writes.Store(0)
	result, err = scanner.Scan(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Breaches)
	assert.Len(t, notifier.Calls(), 1)
	assert.Zero(t, store.writes.Load(), "second scan must not write")
}

func TestScanner_BreachAtExactTarget(t *testing.T) {
	store := &countingStore{Repository: memory.NewRepository()}
	notifier := &recordingNotifier{}
	seed(t, store, domain.IncidentStateNew, 30*time.Minute, 8*time.Hour)

	result, err := newScanner(store, notifier, created.Add(30*time.Minute)).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Breaches)
}

func TestScanner_WarningIsSentOncePerTarget(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Repository: memory.NewRepository()}
	notifier := &recordingNotifier{}

	// Response due in 10 minutes, inside the 15 minute lead.
	inc := seed(t, store, domain.IncidentStateNew, 30*time.Minute, 8*time.Hour)
	scanner := newScanner(store, notifier, created.Add(20*time.Minute))

	result, err := scanner.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Warnings)

	calls := notifier.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, call{escalation.AlertKindWarning, inc.ID, domain.SLATypeResponse, 10 * time.Minute}, calls[0])

	store.writes.Store(0)
	_, err = scanner.Scan(ctx)
	require.NoError(t, err)
	assert.Len(t, notifier.Calls(), 1)
	assert.Zero(t, store.writes.Load())
}

func TestScanner_OutsideWarningLead(t *testing.T) {
	store := &countingStore{Repository: memory.NewRepository()}
	notifier := &recordingNotifier{}

	// Response due in 20 minutes, resolution in 31 minutes: both outside their leads.
	seed(t, store, domain.IncidentStateNew, 30*time.Minute, 41*time.Minute)

	result, err := newScanner(store, notifier, created.Add(10*time.Minute)).Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Warnings)
	assert.Zero(t, result.Breaches)
	assert.Empty(t, notifier.Calls())
	assert.Zero(t, store.writes.Load())
}

func TestScanner_ResolutionLeadIsLonger(t *testing.T) {
	store := &countingStore{Repository: memory.NewRepository()}
	notifier := &recordingNotifier{}

	// 25 minutes to both targets: inside the resolution lead only.
	inc := seed(t, store, domain.IncidentStateNew, 35*time.Minute, 35*time.Minute)

	_, err := newScanner(store, notifier, created.Add(10*time.Minute)).Scan(context.Background())
	require.NoError(t, err)

	calls := notifier.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, call{escalation.AlertKindWarning, inc.ID, domain.SLATypeResolution, 25 * time.Minute}, calls[0])
}

func TestScanner_BothTypesEvaluated(t *testing.T) {
	store := &countingStore{Repository: memory.NewRepository()}
	notifier := &recordingNotifier{}

	seed(t, store, domain.IncidentStateOnHold, 30*time.Minute, time.Hour)

	result, err := newScanner(store, notifier, created.Add(2*time.Hour)).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Breaches)

	types := make([]domain.SLAType, 0, 2)
	for _, c := range notifier.Calls() {
		assert.Equal(t, escalation.AlertKindBreach, c.kind)
		types = append(types, c.slaType)
	}
	assert.ElementsMatch(t, []domain.SLAType{domain.SLATypeResponse, domain.SLATypeResolution}, types)
}

func TestScanner_RespondedIncidentSkipsResponse(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Repository: memory.NewRepository()}
	notifier := &recordingNotifier{}

	inc := seed(t, store, domain.IncidentStateInProgress, 30*time.Minute, 8*time.Hour)
	responded := created.Add(40 * time.Minute)
	_, err := store.ApplyLifecycleTransition(ctx, inc.ID, incidents.Transition{
		Event:        incidents.EventStart,
		From:         domain.IncidentStateInProgress,
		To:           domain.IncidentStateInProgress,
		At:           responded,
		ResponseTime: &responded,
	})
	require.NoError(t, err)

	result, err := newScanner(store, notifier, created.Add(time.Hour)).Scan(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Breaches)
	assert.Empty(t, notifier.Calls())
}

func TestScanner_SkipsClosedStates(t *testing.T) {
	store := &countingStore{Repository: memory.NewRepository()}
	notifier := &recordingNotifier{}

	for _, s := range []domain.IncidentState{
		domain.IncidentStateResolved,
		domain.IncidentStateClosed,
		domain.IncidentStateCancelled,
	} {
		seed(t, store, s, time.Minute, 2*time.Minute)
	}

	result, err := newScanner(store, notifier, created.Add(24*time.Hour)).Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Scanned)
	assert.Empty(t, notifier.Calls())
}

func TestScanner_NotifierFailureKeepsBreach(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Repository: memory.NewRepository()}
	notifier := &recordingNotifier{err: errors.New("smtp down")}

	inc := seed(t, store, domain.IncidentStateNew, 30*time.Minute, 8*time.Hour)

	result, err := newScanner(store, notifier, created.Add(time.Hour)).Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Breaches)
	assert.Zero(t, result.Errors)

	got, err := store.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	assert.True(t, got.IsBreached(domain.SLATypeResponse))
}

func TestScanner_StoreErrors(t *testing.T) {
	t.Run("load failure", func(t *testing.T) {
		store := &countingStore{Repository: memory.NewRepository(), loadErr: errors.New("db down")}
		_, err := newScanner(store, &recordingNotifier{}, created).Scan(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load open incidents")
	})

	t.Run("write failure is counted and does not notify", func(t *testing.T) {
		store := &countingStore{Repository: memory.NewRepository(), casErr: errors.New("timeout")}
		notifier := &recordingNotifier{}
		seed(t, store, domain.IncidentStateNew, 30*time.Minute, 8*time.Hour)

		result, err := newScanner(store, notifier, created.Add(time.Hour)).Scan(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, result.Errors)
		assert.Empty(t, notifier.Calls())
	})
}

func TestScanner_ConcurrentScansNotifyOnce(t *testing.T) {
	store := &countingStore{Repository: memory.NewRepository()}
	notifier := &recordingNotifier{}

	for i := 0; i < 20; i++ {
		seed(t, store, domain.IncidentStateNew, 30*time.Minute, 8*time.Hour)
	}
	scanner := newScanner(store, notifier, created.Add(time.Hour))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = scanner.Scan(context.Background())
		}()
	}
	wg.Wait()

	assert.Len(t, notifier.Calls(), 20)
}

func TestScanner_NilNotifier(t *testing.T) {
	store := &countingStore{Repository: memory.NewRepository()}
	seed(t, store, domain.IncidentStateNew, 30*time.Minute, 8*time.Hour)

	result, err := escalation.NewScanner(store, nil, escalation.ScannerConfig{},
		escalation.WithScannerClock(func() time.Time { return created.Add(time.Hour) })).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Breaches)
}
