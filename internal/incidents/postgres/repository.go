// Package postgres provides PostgreSQL implementation of incidents repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/incident-sla/internal/domain"
	"github.com/bissquit/incident-sla/internal/incidents"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgForeignKeyViolation = "23503"

const incidentColumns = `
	id, number, title, state, impact, urgency, priority,
	created_at, updated_at, response_time, resolved_at, closed_at,
	sla_target_response, sla_target_resolution,
	sla_breached, response_breached, resolution_breached
`

// Repository implements incidents.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateIncident inserts a new incident. An empty Number is generated from a sequence.
func (r *Repository) CreateIncident(ctx context.Context, incident *domain.Incident) error {
	query := `
		INSERT INTO incidents (
			number, title, state, impact, urgency, priority,
			created_at, updated_at, sla_target_response, sla_target_resolution
		) VALUES (
			COALESCE(NULLIF($1, ''), 'INC' || lpad(nextval('incident_number_seq')::text, 7, '0')),
			$2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		RETURNING id, number
	`
	err := r.db.QueryRow(ctx, query,
		incident.Number,
		incident.Title,
		incident.State,
		incident.Impact,
		incident.Urgency,
		incident.Priority,
		incident.CreatedAt,
		incident.UpdatedAt,
		incident.SLATargetResponse,
		incident.SLATargetResolution,
	).Scan(&incident.ID, &incident.Number)

	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// GetIncident retrieves an incident by ID.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`

	incident, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}

	if err := r.attachWarnings(ctx, []*domain.Incident{incident}); err != nil {
		return nil, err
	}
	return incident, nil
}

// UpdateClassification rewrites impact, urgency, priority and targets of an open incident.
func (r *Repository) UpdateClassification(ctx context.Context, id string, c incidents.Classification) (*domain.Incident, error) {
	query := `
		UPDATE incidents
		SET impact = $2, urgency = $3, priority = $4,
			sla_target_response = $5, sla_target_resolution = $6, updated_at = $7
		WHERE id = $1 AND state IN ('NEW', 'IN_PROGRESS', 'ON_HOLD')
		RETURNING ` + incidentColumns

	incident, err := scanIncident(r.db.QueryRow(ctx, query,
		id,
		c.Impact,
		c.Urgency,
		c.Priority,
		c.SLATargetResponse,
		c.SLATargetResolution,
		c.UpdatedAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.missOrConflict(ctx, id, incidents.ErrIncidentNotOpen)
		}
		return nil, fmt.Errorf("update classification: %w", err)
	}

	if err := r.attachWarnings(ctx, []*domain.Incident{incident}); err != nil {
		return nil, err
	}
	return incident, nil
}

// LoadOpenIncidents returns incidents in NEW, IN_PROGRESS or ON_HOLD.
func (r *Repository) LoadOpenIncidents(ctx context.Context) ([]*domain.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE state IN ('NEW', 'IN_PROGRESS', 'ON_HOLD')
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load open incidents: %w", err)
	}
	defer rows.Close()

	result := make([]*domain.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		result = append(result, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}

	if err := r.attachWarnings(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// CompareAndSetBreach marks slaType breached if its marker is still unset.
func (r *Repository) CompareAndSetBreach(ctx context.Context, id string, slaType domain.SLAType, wasBreached bool) (bool, error) {
	if wasBreached {
		return false, nil
	}

	var column string
	switch slaType {
	case domain.SLATypeResponse:
		column = "response_breached"
	case domain.SLATypeResolution:
		column = "resolution_breached"
	default:
		return false, fmt.Errorf("unknown sla type: %s", slaType)
	}

	query := `UPDATE incidents SET ` + column + ` = TRUE, sla_breached = TRUE WHERE id = $1 AND ` + column + ` = FALSE`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("mark breach: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, r.missOrConflict(ctx, id, nil)
}

// RecordWarningSent inserts the warning marker unless it already exists.
func (r *Repository) RecordWarningSent(ctx context.Context, id string, slaType domain.SLAType, target time.Time) (bool, error) {
	query := `
		INSERT INTO incident_sla_warnings (incident_id, sla_type, target)
		VALUES ($1, $2, $3)
		ON CONFLICT (incident_id, sla_type, target) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, id, slaType, target)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return false, incidents.ErrIncidentNotFound
		}
		return false, fmt.Errorf("record warning: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ApplyLifecycleTransition applies t if the incident is still in t.From.
func (r *Repository) ApplyLifecycleTransition(ctx context.Context, id string, t incidents.Transition) (*domain.Incident, error) {
	query := `
		UPDATE incidents
		SET state = $3,
			updated_at = $4,
			response_time = COALESCE(response_time, $5),
			resolved_at = $6,
			closed_at = $7,
			sla_breached = CASE WHEN $8 THEN FALSE ELSE sla_breached END,
			response_breached = CASE WHEN $8 THEN FALSE ELSE response_breached END,
			resolution_breached = CASE WHEN $8 THEN FALSE ELSE resolution_breached END
		WHERE id = $1 AND state = $2
		RETURNING ` + incidentColumns

	incident, err := scanIncident(r.db.QueryRow(ctx, query,
		id,
		t.From,
		t.To,
		t.At,
		t.ResponseTime,
		t.ResolvedAt,
		t.ClosedAt,
		t.ClearBreaches,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.missOrConflict(ctx, id, incidents.ErrStateConflict)
		}
		return nil, fmt.Errorf("apply transition: %w", err)
	}

	if err := r.attachWarnings(ctx, []*domain.Incident{incident}); err != nil {
		return nil, err
	}
	return incident, nil
}

// missOrConflict returns ErrIncidentNotFound if id does not exist, conflict otherwise.
func (r *Repository) missOrConflict(ctx context.Context, id string, conflict error) error {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM incidents WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check incident exists: %w", err)
	}
	if !exists {
		return incidents.ErrIncidentNotFound
	}
	return conflict
}

func (r *Repository) attachWarnings(ctx context.Context, list []*domain.Incident) error {
	if len(list) == 0 {
		return nil
	}

	byID := make(map[string]*domain.Incident, len(list))
	ids := make([]string, 0, len(list))
	for _, inc := range list {
		byID[inc.ID] = inc
		ids = append(ids, inc.ID)
	}

	rows, err := r.db.Query(ctx, `
		SELECT incident_id, sla_type, target
		FROM incident_sla_warnings
		WHERE incident_id = ANY($1::uuid[])
		ORDER BY sent_at
	`, ids)
	if err != nil {
		return fmt.Errorf("load warnings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			incidentID string
			w          domain.SLAWarning
		)
		if err := rows.Scan(&incidentID, &w.Type, &w.Target); err != nil {
			return fmt.Errorf("scan warning: %w", err)
		}
		if inc, ok := byID[incidentID]; ok {
			inc.WarningsSent = append(inc.WarningsSent, w)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate warnings: %w", err)
	}
	return nil
}

// SLACompliance counts incidents created in [from, to] per priority.
func (r *Repository) SLACompliance(ctx context.Context, from, to time.Time) ([]incidents.ComplianceCounts, error) {
	query := `
		SELECT priority,
			COUNT(*),
			COUNT(*) FILTER (WHERE sla_breached),
			COUNT(*) FILTER (WHERE response_breached),
			COUNT(*) FILTER (WHERE resolution_breached)
		FROM incidents
		WHERE created_at >= $1 AND created_at <= $2
		GROUP BY priority
		ORDER BY priority
	`
	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("sla compliance: %w", err)
	}
	defer rows.Close()

	result := make([]incidents.ComplianceCounts, 0, len(domain.Priorities))
	for rows.Next() {
		var c incidents.ComplianceCounts
		if err := rows.Scan(&c.Priority, &c.Total, &c.Breached, &c.ResponseBreached, &c.ResolutionBreached); err != nil {
			return nil, fmt.Errorf("scan compliance row: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate compliance rows: %w", err)
	}
	return result, nil
}

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var (
		inc                                  domain.Incident
		responseBreached, resolutionBreached bool
	)
	err := row.Scan(
		&inc.ID,
		&inc.Number,
		&inc.Title,
		&inc.State,
		&inc.Impact,
		&inc.Urgency,
		&inc.Priority,
		&inc.CreatedAt,
		&inc.UpdatedAt,
		&inc.ResponseTime,
		&inc.ResolvedAt,
		&inc.ClosedAt,
		&inc.SLATargetResponse,
		&inc.SLATargetResolution,
		&inc.SLABreached,
		&responseBreached,
		&resolutionBreached,
	)
	if err != nil {
		return nil, err
	}

	if responseBreached {
		inc.Breaches = append(inc.Breaches, domain.SLATypeResponse)
	}
	if resolutionBreached {
		inc.Breaches = append(inc.Breaches, domain.SLATypeResolution)
	}
	return &inc, nil
}
