package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"openbadges/internal/keys/models"
	id "openbadges/pkg/domain"
	"openbadges/pkg/platform/sentinel"
)

// PostgresStore persists issuer keys in PostgreSQL. A partial unique index on
// (issuer_id) WHERE status = 'active' makes first-time creation race-safe.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed key store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const keyColumns = `id, issuer_id, algorithm, public_key, encrypted_private_key, controller_id,
	status, previous_key_id, created_at, rotated_at, revoked_at`

func (s *PostgresStore) GetActive(ctx context.Context, issuerID id.IssuerID) (*models.KeyRecord, error) {
	query := `SELECT ` + keyColumns + ` FROM issuer_keys WHERE issuer_id = $1 AND status = 'active'`
	return s.findOne(ctx, "find active issuer key", query, issuerID.String())
}

func (s *PostgresStore) InsertIfAbsent(ctx context.Context, record *models.KeyRecord) (*models.KeyRecord, error) {
	query := `
		INSERT INTO issuer_keys (` + keyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (issuer_id) WHERE status = 'active' DO NOTHING
		RETURNING id
	`
	var storedID uuid.UUID
	err := s.db.QueryRowContext(ctx, query, recordArgs(record)...).Scan(&storedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// lost the race: hand back the winner's row
			return s.GetActive(ctx, record.IssuerID)
		}
		return nil, fmt.Errorf("insert issuer key: %w", err)
	}
	return record.Clone(), nil
}

func (s *PostgresStore) FindByID(ctx context.Context, keyID id.KeyID) (*models.KeyRecord, error) {
	query := `SELECT ` + keyColumns + ` FROM issuer_keys WHERE id = $1`
	return s.findOne(ctx, "find issuer key by id", query, uuid.UUID(keyID))
}

func (s *PostgresStore) FindByControllerID(ctx context.Context, controllerID string) (*models.KeyRecord, error) {
	query := `SELECT ` + keyColumns + ` FROM issuer_keys WHERE controller_id = $1`
	return s.findOne(ctx, "find issuer key by controller", query, controllerID)
}

func (s *PostgresStore) FindState(ctx context.Context, keyID id.KeyID) (*models.KeyState, error) {
	var (
		status    string
		revokedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, revoked_at FROM issuer_keys WHERE id = $1`, uuid.UUID(keyID)).Scan(&status, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find issuer key state: %w", err)
	}
	state := &models.KeyState{Status: models.KeyStatus(status)}
	if revokedAt.Valid {
		t := revokedAt.Time
		state.RevokedAt = &t
	}
	return state, nil
}

func (s *PostgresStore) Rotate(ctx context.Context, oldID id.KeyID, next *models.KeyRecord, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rotate tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE issuer_keys SET status = 'rotated', rotated_at = $2 WHERE id = $1 AND status = 'active'`,
		uuid.UUID(oldID), at)
	if err != nil {
		return fmt.Errorf("retire issuer key: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("retire issuer key rows: %w", err)
	} else if n == 0 {
		return sentinel.ErrConflict
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO issuer_keys (`+keyColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		recordArgs(next)...); err != nil {
		return fmt.Errorf("insert rotated issuer key: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rotate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Revoke(ctx context.Context, keyID id.KeyID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE issuer_keys SET status = 'revoked', revoked_at = COALESCE(revoked_at, $2)
		WHERE id = $1
	`, uuid.UUID(keyID), at)
	if err != nil {
		return fmt.Errorf("revoke issuer key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke issuer key rows: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) findOne(ctx context.Context, op, query string, arg any) (*models.KeyRecord, error) {
	record, err := scanKey(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return record, nil
}

func recordArgs(r *models.KeyRecord) []any {
	var previous *uuid.UUID
	if r.PreviousKeyID != nil {
		p := uuid.UUID(*r.PreviousKeyID)
		previous = &p
	}
	return []any{
		uuid.UUID(r.ID),
		r.IssuerID.String(),
		r.Algorithm,
		r.PublicKey,
		r.EncryptedPrivateKey,
		r.ControllerID,
		string(r.Status),
		previous,
		r.CreatedAt,
		r.RotatedAt,
		r.RevokedAt,
	}
}

type keyRow interface {
	Scan(dest ...any) error
}

func scanKey(row keyRow) (*models.KeyRecord, error) {
	var (
		record    models.KeyRecord
		keyID     uuid.UUID
		issuerID  string
		status    string
		previous  uuid.NullUUID
		rotatedAt sql.NullTime
		revokedAt sql.NullTime
	)
	if err := row.Scan(&keyID, &issuerID, &record.Algorithm, &record.PublicKey, &record.EncryptedPrivateKey,
		&record.ControllerID, &status, &previous, &record.CreatedAt, &rotatedAt, &revokedAt); err != nil {
		return nil, err
	}
	record.ID = id.KeyID(keyID)
	record.IssuerID = id.IssuerID(issuerID)
	record.Status = models.KeyStatus(status)
	if previous.Valid {
		prev := id.KeyID(previous.UUID)
		record.PreviousKeyID = &prev
	}
	if rotatedAt.Valid {
		t := rotatedAt.Time
		record.RotatedAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		record.RevokedAt = &t
	}
	return &record, nil
}
