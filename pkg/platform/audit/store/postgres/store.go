package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/google/uuid"

	audit "openbadges/pkg/platform/audit"
)

const eventColumns = `timestamp, action, actor_id, issuer_id, credential_id, status_list_id, reason, request_id`

// Store implements audit.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts an audit event into the audit_events table.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	return s.AppendWithID(ctx, uuid.New(), event)
}

// AppendWithID inserts an event under a caller-chosen id. Replays of the
// same id are ignored.
func (s *Store) AppendWithID(ctx context.Context, eventID uuid.UUID, event audit.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, `+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`,
		eventID,
		event.Timestamp,
		event.Action,
		event.ActorID,
		event.IssuerID,
		event.CredentialID,
		event.StatusListID,
		event.Reason,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByCredential returns events for one credential, newest first.
func (s *Store) ListByCredential(ctx context.Context, credentialID string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM audit_events
		WHERE credential_id = $1
		ORDER BY timestamp DESC
	`, credentialID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// clampLimit keeps the LIMIT argument inside int32 so the driver cannot
// wrap it negative.
func clampLimit(limit int) int32 {
	switch {
	case limit < 0:
		return 0
	case limit > math.MaxInt32:
		return math.MaxInt32
	}
	return int32(limit) //nolint:gosec // bounded above
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var event audit.Event
		err := rows.Scan(
			&event.Timestamp,
			&event.Action,
			&event.ActorID,
			&event.IssuerID,
			&event.CredentialID,
			&event.StatusListID,
			&event.Reason,
			&event.RequestID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
