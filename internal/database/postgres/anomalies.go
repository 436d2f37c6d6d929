package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jsvoboda/faceguard/internal/database"
)

// AnomalyRepository provides PostgreSQL-backed anomaly event storage.
type AnomalyRepository struct {
	pool *Pool
}

// NewAnomalyRepository creates a new PostgreSQL anomaly repository.
func NewAnomalyRepository(pool *Pool) *AnomalyRepository {
	return &AnomalyRepository{pool: pool}
}

// Record appends an anomaly event and returns its assigned ID.
func (r *AnomalyRepository) Record(ctx context.Context, event *database.StoredAnomalyEvent) (int64, error) {
	var identityID sql.NullString
	if event.IdentityID != "" {
		identityID = sql.NullString{String: event.IdentityID, Valid: true}
	}

	detail := event.Detail
	if len(detail) == 0 {
		detail = []byte("{}")
	}

	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO anomaly_events (category, severity, identity_id, detail)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, event.Category, event.Severity, identityID, []byte(detail)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("record anomaly event: %w", err)
	}
	return id, nil
}

// Recent returns the most recent anomaly events, newest first.
func (r *AnomalyRepository) Recent(ctx context.Context, limit int) ([]database.StoredAnomalyEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, category, severity, identity_id, detail, created_at
		FROM anomaly_events
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query anomaly events: %w", err)
	}
	defer rows.Close()

	var events []database.StoredAnomalyEvent
	for rows.Next() {
		var event database.StoredAnomalyEvent
		var identityID sql.NullString
		var detail []byte
		if err := rows.Scan(&event.ID, &event.Category, &event.Severity, &identityID, &detail, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan anomaly event: %w", err)
		}
		if identityID.Valid {
			event.IdentityID = identityID.String
		}
		event.Detail = detail
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate anomaly events: %w", err)
	}
	return events, nil
}

// Verify interface compliance.
var _ database.AnomalyWriter = (*AnomalyRepository)(nil)
