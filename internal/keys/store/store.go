package store

import (
	"context"
	"time"

	"openbadges/internal/keys/models"
	id "openbadges/pkg/domain"
)

// Store persists issuer key records. Implementations return sentinel errors
// (ErrNotFound, ErrConflict) so the manager can translate them once.
type Store interface {
	// GetActive returns the issuer's current signing key.
	GetActive(ctx context.Context, issuerID id.IssuerID) (*models.KeyRecord, error)
	// InsertIfAbsent stores record as the issuer's active key unless one already
	// exists, in which case the existing record is returned instead. Exactly one
	// of several concurrent first-time callers wins.
	InsertIfAbsent(ctx context.Context, record *models.KeyRecord) (*models.KeyRecord, error)
	FindByID(ctx context.Context, keyID id.KeyID) (*models.KeyRecord, error)
	FindByControllerID(ctx context.Context, controllerID string) (*models.KeyRecord, error)
	// FindState returns the current lifecycle status of a key.
	FindState(ctx context.Context, keyID id.KeyID) (*models.KeyState, error)
	// Rotate marks the active record oldID as rotated and inserts next as the
	// issuer's active key in one step. ErrConflict if oldID is no longer active.
	Rotate(ctx context.Context, oldID id.KeyID, next *models.KeyRecord, at time.Time) error
	Revoke(ctx context.Context, keyID id.KeyID, at time.Time) error
}
