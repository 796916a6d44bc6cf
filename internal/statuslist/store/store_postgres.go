package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"openbadges/internal/statuslist/models"
	id "openbadges/pkg/domain"
	"openbadges/pkg/platform/sentinel"
)

const (
	mappingPrimaryKey = "status_list_mappings_pkey"
	listColumns       = `id, issuer_id, purpose, bit_length, encoded_list, credential, version, allocated, created_at, updated_at`
)

// PostgresStore persists status lists in PostgreSQL. Version checks and the
// mapping unique constraints make concurrent writers across processes safe.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed status list store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, list *models.StatusList) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO status_lists (`+listColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		uuid.UUID(list.ID),
		list.IssuerID.String(),
		string(list.Purpose),
		list.BitLength,
		list.EncodedBits,
		string(list.Credential),
		list.Version,
		list.Allocated,
		list.CreatedAt,
		list.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("create status list: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, listID id.StatusListID) (*models.StatusList, error) {
	list, err := scanList(s.db.QueryRowContext(ctx,
		`SELECT `+listColumns+` FROM status_lists WHERE id = $1`, uuid.UUID(listID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find status list: %w", err)
	}
	return list, nil
}

func (s *PostgresStore) FindActive(ctx context.Context, issuerID id.IssuerID, purpose models.Purpose) (*models.StatusList, error) {
	list, err := scanList(s.db.QueryRowContext(ctx, `
		SELECT `+listColumns+` FROM status_lists
		WHERE issuer_id = $1 AND purpose = $2 AND allocated < bit_length
		ORDER BY created_at DESC
		LIMIT 1
	`, issuerID.String(), string(purpose)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find active status list: %w", err)
	}
	return list, nil
}

func (s *PostgresStore) Save(ctx context.Context, list *models.StatusList, expectedVersion int64, change *models.StatusChange) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin status list tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var version int64
	err = tx.QueryRowContext(ctx, `
		UPDATE status_lists
		SET encoded_list = $3, credential = $4, updated_at = $5, version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version
	`, uuid.UUID(list.ID), expectedVersion, list.EncodedBits, string(list.Credential), list.UpdatedAt).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return staleVersion(ctx, tx, list.ID)
	}
	if err != nil {
		return 0, fmt.Errorf("save status list: %w", err)
	}

	if change != nil {
		if err := applyChange(ctx, tx, change); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit status list: %w", err)
	}
	return version, nil
}

// staleVersion distinguishes a stale version from a missing list.
func staleVersion(ctx context.Context, tx *sql.Tx, listID id.StatusListID) (int64, error) {
	var current int64
	err := tx.QueryRowContext(ctx, `SELECT version FROM status_lists WHERE id = $1`, uuid.UUID(listID)).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, sentinel.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read status list version: %w", err)
	}
	return current, sentinel.ErrConflict
}

func applyChange(ctx context.Context, tx *sql.Tx, change *models.StatusChange) error {
	if change.Revocation == nil {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM status_revocations WHERE credential_id = $1`, change.CredentialID.String()); err != nil {
			return fmt.Errorf("delete revocation: %w", err)
		}
		return nil
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO status_revocations (credential_id, reason, revoked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (credential_id) DO UPDATE SET reason = EXCLUDED.reason, revoked_at = EXCLUDED.revoked_at
	`, change.CredentialID.String(), change.Revocation.Reason, change.Revocation.RevokedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("save revocation: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertMapping(ctx context.Context, mapping *models.IndexMapping) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mapping tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO status_list_mappings (credential_id, status_list_id, bit_index, created_at)
		VALUES ($1, $2, $3, $4)
	`, mapping.CredentialID.String(), uuid.UUID(mapping.StatusListID), mapping.BitIndex, mapping.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch {
			case pgErr.Code == "23505" && pgErr.ConstraintName == mappingPrimaryKey:
				return sentinel.ErrAlreadyExists
			case pgErr.Code == "23505":
				return sentinel.ErrConflict
			case pgErr.Code == "23503":
				return sentinel.ErrNotFound
			}
		}
		return fmt.Errorf("insert status mapping: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE status_lists SET allocated = allocated + 1 WHERE id = $1`,
		uuid.UUID(mapping.StatusListID)); err != nil {
		return fmt.Errorf("bump allocation count: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mapping: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindMapping(ctx context.Context, credentialID id.CredentialID) (*models.IndexMapping, error) {
	return s.findMapping(ctx, `WHERE credential_id = $1`, credentialID.String())
}

func (s *PostgresStore) MappingAt(ctx context.Context, listID id.StatusListID, index int) (*models.IndexMapping, error) {
	return s.findMapping(ctx, `WHERE status_list_id = $1 AND bit_index = $2`, uuid.UUID(listID), index)
}

func (s *PostgresStore) findMapping(ctx context.Context, where string, args ...any) (*models.IndexMapping, error) {
	var (
		mapping      models.IndexMapping
		credentialID string
		listID       uuid.UUID
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT credential_id, status_list_id, bit_index, created_at FROM status_list_mappings `+where, args...).
		Scan(&credentialID, &listID, &mapping.BitIndex, &mapping.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find status mapping: %w", err)
	}
	mapping.CredentialID = id.CredentialID(credentialID)
	mapping.StatusListID = id.StatusListID(listID)
	return &mapping, nil
}

func (s *PostgresStore) FindRevocation(ctx context.Context, credentialID id.CredentialID) (*models.RevocationEntry, error) {
	entry := models.RevocationEntry{CredentialID: credentialID}
	err := s.db.QueryRowContext(ctx,
		`SELECT reason, revoked_at FROM status_revocations WHERE credential_id = $1`, credentialID.String()).
		Scan(&entry.Reason, &entry.RevokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find revocation: %w", err)
	}
	return &entry, nil
}

type listRow interface {
	Scan(dest ...any) error
}

func scanList(row listRow) (*models.StatusList, error) {
	var (
		list       models.StatusList
		listID     uuid.UUID
		issuerID   string
		purpose    string
		credential string
	)
	if err := row.Scan(&listID, &issuerID, &purpose, &list.BitLength, &list.EncodedBits, &credential,
		&list.Version, &list.Allocated, &list.CreatedAt, &list.UpdatedAt); err != nil {
		return nil, err
	}
	list.ID = id.StatusListID(listID)
	list.IssuerID = id.IssuerID(issuerID)
	list.Purpose = models.Purpose(purpose)
	list.Credential = []byte(credential)
	return &list, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
