package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openbadges/internal/keys/models"
	id "openbadges/pkg/domain"
	"openbadges/pkg/platform/sentinel"
	"openbadges/pkg/testutil"
)

func newRecord(issuer id.IssuerID, controller string) *models.KeyRecord {
	return &models.KeyRecord{
		ID:                  id.NewKeyID(),
		IssuerID:            issuer,
		Algorithm:           models.AlgorithmEd25519,
		PublicKey:           []byte{1, 2, 3},
		EncryptedPrivateKey: []byte{4, 5, 6},
		ControllerID:        controller,
		Status:              models.KeyStatusActive,
		CreatedAt:           time.Now(),
	}
}

func TestInMemoryStoreOperations(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	issuer := id.IssuerID("issuer-1")

	// Nothing yet
	_, err := store.GetActive(ctx, issuer)
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	// First insert wins
	first := newRecord(issuer, "did:key:zFirst")
	stored, err := store.InsertIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)

	// Second insert returns the winner
	second := newRecord(issuer, "did:key:zSecond")
	stored, err = store.InsertIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)
	_, err = store.FindByControllerID(ctx, "did:key:zSecond")
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	// Copy integrity
	stored.PublicKey[0] = 99
	fetched, err := store.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, byte(1), fetched.PublicKey[0])

	// Rotate
	rotatedAt := time.Now()
	next := newRecord(issuer, "did:key:zNext")
	next.PreviousKeyID = &first.ID
	require.NoError(t, store.Rotate(ctx, first.ID, next, rotatedAt))

	active, err := store.GetActive(ctx, issuer)
	require.NoError(t, err)
	assert.Equal(t, next.ID, active.ID)
	require.NotNil(t, active.PreviousKeyID)
	assert.Equal(t, first.ID, *active.PreviousKeyID)

	old, err := store.FindByControllerID(ctx, "did:key:zFirst")
	require.NoError(t, err)
	assert.Equal(t, models.KeyStatusRotated, old.Status)
	require.NotNil(t, old.RotatedAt)

	// Rotating a retired key conflicts
	err = store.Rotate(ctx, first.ID, newRecord(issuer, "did:key:zOther"), rotatedAt)
	require.ErrorIs(t, err, sentinel.ErrConflict)

	// Revoke is idempotent and clears the active slot
	require.NoError(t, store.Revoke(ctx, next.ID, time.Now()))
	require.NoError(t, store.Revoke(ctx, next.ID, time.Now()))
	_, err = store.GetActive(ctx, issuer)
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	revoked, err := store.FindByID(ctx, next.ID)
	require.NoError(t, err)
	assert.Equal(t, models.KeyStatusRevoked, revoked.Status)

	state, err := store.FindState(ctx, next.ID)
	require.NoError(t, err)
	assert.Equal(t, models.KeyStatusRevoked, state.Status)
	require.NotNil(t, state.RevokedAt)
	state, err = store.FindState(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.KeyStatusRotated, state.Status)
	assert.Nil(t, state.RevokedAt)
	_, err = store.FindState(ctx, id.NewKeyID())
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	require.ErrorIs(t, store.Revoke(ctx, id.NewKeyID(), time.Now()), sentinel.ErrNotFound)
}

func TestInMemoryStoreConcurrentInsert(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	issuer := id.IssuerID("issuer-race")

	outcomes := testutil.Collect(32, func(idx int) (*models.KeyRecord, error) {
		controller := "did:key:zRace" + string(rune('A'+idx))
		return store.InsertIfAbsent(ctx, newRecord(issuer, controller))
	})

	var winner id.KeyID
	for i, o := range outcomes {
		require.NoError(t, o.Err)
		if i == 0 {
			winner = o.Value.ID
		}
		assert.Equal(t, winner, o.Value.ID)
	}
}
