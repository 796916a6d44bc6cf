package store

import (
	"context"

	"openbadges/internal/statuslist/models"
	id "openbadges/pkg/domain"
)

// Store persists status lists and index mappings.
//
// Save is a compare-and-swap on Version: it succeeds only when the stored
// version equals expectedVersion and returns sentinel.ErrConflict otherwise.
// A non-nil change is applied in the same write, so the bits and the
// revocation record never disagree; ErrNotFound for an unmapped credential
// leaves the list untouched.
// InsertMapping enforces both uniqueness rules: ErrAlreadyExists when the
// credential is already mapped, ErrConflict when the index is taken.
type Store interface {
	Create(ctx context.Context, list *models.StatusList) error
	Get(ctx context.Context, listID id.StatusListID) (*models.StatusList, error)
	// FindActive returns the issuer's newest list for purpose that still has
	// free indices.
	FindActive(ctx context.Context, issuerID id.IssuerID, purpose models.Purpose) (*models.StatusList, error)
	Save(ctx context.Context, list *models.StatusList, expectedVersion int64, change *models.StatusChange) (int64, error)

	InsertMapping(ctx context.Context, mapping *models.IndexMapping) error
	FindMapping(ctx context.Context, credentialID id.CredentialID) (*models.IndexMapping, error)
	MappingAt(ctx context.Context, listID id.StatusListID, index int) (*models.IndexMapping, error)

	FindRevocation(ctx context.Context, credentialID id.CredentialID) (*models.RevocationEntry, error)
}
