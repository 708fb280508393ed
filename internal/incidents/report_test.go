package incidents_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bissquit/incident-sla/internal/domain"
	"github.com/bissquit/incident-sla/internal/incidents"
	"github.com/bissquit/incident-sla/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReportPeriod(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "", want: 30 * 24 * time.Hour},
		{in: "7d", want: 7 * 24 * time.Hour},
		{in: " 90D ", want: 90 * 24 * time.Hour},
		{in: "12h", want: 12 * time.Hour},
		{in: "366d", want: 366 * 24 * time.Hour},
		{in: "367d", wantErr: true},
		{in: "0d", wantErr: true},
		{in: "-5d", wantErr: true},
		{in: "month", wantErr: true},
		{in: "d", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := incidents.ParseReportPeriod(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, incidents.ErrInvalidPeriod)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_SLAReport(t *testing.T) {
	ctx := context.Background()
	svc, repo, clock := newTestService(t, created)

	create := func(impact, urgency string) *domain.Incident {
		inc, err := svc.CreateIncident(ctx, incidents.CreateIncidentInput{Title: "t", Impact: impact, Urgency: urgency})
		require.NoError(t, err)
		return inc
	}
	breach := func(inc *domain.Incident, slaType domain.SLAType) {
		won, err := repo.CompareAndSetBreach(ctx, inc.ID, slaType, false)
		require.NoError(t, err)
		require.True(t, won)
	}

	old := create("critical", "critical")
	breach(old, domain.SLATypeResponse)

	clock.Advance(40 * 24 * time.Hour)
	recent := create("critical", "critical")
	breach(recent, domain.SLATypeResolution)
	create("low", "low")

	t.Run("default period", func(t *testing.T) {
		report, err := svc.SLAReport(ctx, "")
		require.NoError(t, err)

		assert.Equal(t, "30d", report.Period)
		assert.True(t, clock.Now().Equal(report.To))
		assert.Equal(t, 30*24*time.Hour, report.To.Sub(report.From))
		assert.Equal(t, 2, report.Total)
		assert.Equal(t, 1, report.Breached)
		assert.Equal(t, 50.0, report.CompliancePercent)

		require.Len(t, report.ByPriority, 4)
		p1 := report.ByPriority[0]
		assert.Equal(t, domain.PriorityP1, p1.Priority)
		assert.Equal(t, 1, p1.Total)
		assert.Equal(t, 0, p1.ResponseBreached)
		assert.Equal(t, 1, p1.ResolutionBreached)
		assert.Equal(t, 0.0, p1.CompliancePercent)

		p2 := report.ByPriority[1]
		assert.Equal(t, domain.PriorityP2, p2.Priority)
		assert.Zero(t, p2.Total)
		assert.Equal(t, 100.0, p2.CompliancePercent)

		p4 := report.ByPriority[3]
		assert.Equal(t, domain.PriorityP4, p4.Priority)
		assert.Equal(t, 1, p4.Total)
		assert.Equal(t, 100.0, p4.CompliancePercent)
	})

	t.Run("longer period includes older incidents", func(t *testing.T) {
		report, err := svc.SLAReport(ctx, "60d")
		require.NoError(t, err)

		assert.Equal(t, 3, report.Total)
		assert.Equal(t, 2, report.Breached)
		assert.Equal(t, 33.33, report.CompliancePercent)
		assert.Equal(t, 2, report.ByPriority[0].Total)
		assert.Equal(t, 1, report.ByPriority[0].ResponseBreached)
		assert.Equal(t, 1, report.ByPriority[0].ResolutionBreached)
	})

	t.Run("reopen with cleared breaches counts as compliant", func(t *testing.T) {
		_, err := repo.ApplyLifecycleTransition(ctx, recent.ID, incidents.Transition{
			From:          domain.IncidentStateNew,
			To:            domain.IncidentStateInProgress,
			At:            clock.Now(),
			ClearBreaches: true,
		})
		require.NoError(t, err)

		report, err := svc.SLAReport(ctx, "30d")
		require.NoError(t, err)
		assert.Zero(t, report.Breached)
		assert.Equal(t, 100.0, report.CompliancePercent)
	})

	t.Run("invalid period", func(t *testing.T) {
		_, err := svc.SLAReport(ctx, "forever")
		assert.ErrorIs(t, err, incidents.ErrInvalidPeriod)
	})
}

func TestHandler_SLAReport(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestService(t, created)

	inc, err := svc.CreateIncident(ctx, incidents.CreateIncidentInput{Title: "t", Impact: "high", Urgency: "high"})
	require.NoError(t, err)
	_, err = repo.CompareAndSetBreach(ctx, inc.ID, domain.SLATypeResponse, false)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Route("/api/v1", incidents.NewHandler(svc).RegisterRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	client := testutil.NewClientWithValidation(t, srv.URL, specPath)

	t.Run("ok", func(t *testing.T) {
		resp, err := client.GET("/api/v1/reports/sla?period=7d")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		report := testutil.DecodeData[incidents.SLAReport](t, resp)
		assert.Equal(t, "7d", report.Period)
		assert.Equal(t, 1, report.Total)
		assert.Equal(t, 1, report.Breached)
		require.Len(t, report.ByPriority, 4)
		assert.Equal(t, domain.PriorityP2, report.ByPriority[1].Priority)
		assert.Equal(t, 1, report.ByPriority[1].ResponseBreached)
	})

	t.Run("invalid period", func(t *testing.T) {
		resp, err := client.GET("/api/v1/reports/sla?period=soon")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
