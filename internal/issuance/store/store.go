package store

import (
	"context"
	"time"

	"openbadges/internal/issuance/models"
	id "openbadges/pkg/domain"
)

// Store persists issued assertions. Implementations return sentinel errors.
type Store interface {
	// Save stores a new assertion; ErrAlreadyExists if the id is taken.
	Save(ctx context.Context, a *models.Assertion) error
	Get(ctx context.Context, assertionID id.CredentialID) (*models.Assertion, error)
	// Update replaces the document and revoked flag of an existing assertion.
	Update(ctx context.Context, assertionID id.CredentialID, document []byte, revoked bool, at time.Time) error
	ListByIssuer(ctx context.Context, issuerID id.IssuerID) ([]*models.Assertion, error)
}
