package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"openbadges/internal/issuance/models"
	id "openbadges/pkg/domain"
	"openbadges/pkg/platform/sentinel"
)

const pgUniqueViolation = "23505"

// PostgresStore persists assertions in PostgreSQL. Documents are stored as
// TEXT so the signed byte sequence survives unchanged.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const assertionColumns = `id, issuer_id, document, revoked, created_at, updated_at`

func (s *PostgresStore) Save(ctx context.Context, a *models.Assertion) error {
	query := `INSERT INTO assertions (` + assertionColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.ExecContext(ctx, query,
		a.ID.String(), a.IssuerID.String(), string(a.Document), a.Revoked, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("insert assertion: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, assertionID id.CredentialID) (*models.Assertion, error) {
	query := `SELECT ` + assertionColumns + ` FROM assertions WHERE id = $1`
	a, err := scanAssertion(s.db.QueryRowContext(ctx, query, assertionID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find assertion: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) Update(ctx context.Context, assertionID id.CredentialID, document []byte, revoked bool, at time.Time) error {
	query := `UPDATE assertions SET document = $2, revoked = $3, updated_at = $4 WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query, assertionID.String(), string(document), revoked, at)
	if err != nil {
		return fmt.Errorf("update assertion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update assertion: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByIssuer(ctx context.Context, issuerID id.IssuerID) ([]*models.Assertion, error) {
	query := `SELECT ` + assertionColumns + ` FROM assertions WHERE issuer_id = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, issuerID.String())
	if err != nil {
		return nil, fmt.Errorf("list assertions: %w", err)
	}
	defer rows.Close()

	var out []*models.Assertion
	for rows.Next() {
		a, err := scanAssertion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assertion: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list assertions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssertion(row rowScanner) (*models.Assertion, error) {
	var (
		a        models.Assertion
		assertID string
		issuerID string
		document string
	)
	if err := row.Scan(&assertID, &issuerID, &document, &a.Revoked, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.ID = id.CredentialID(assertID)
	a.IssuerID = id.IssuerID(issuerID)
	a.Document = []byte(document)
	return &a, nil
}
