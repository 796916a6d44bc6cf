package store

import (
	"context"
	"sync"
	"time"

	"openbadges/internal/keys/models"
	id "openbadges/pkg/domain"
	"openbadges/pkg/platform/sentinel"
)

// InMemoryStore is an in-memory key store for tests and single-process use.
// It is safe for concurrent access but does not persist across restarts.
type InMemoryStore struct {
	mu           sync.RWMutex
	records      map[id.KeyID]*models.KeyRecord
	active       map[id.IssuerID]id.KeyID
	byController map[string]id.KeyID
}

// NewInMemoryStore constructs an empty key store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records:      make(map[id.KeyID]*models.KeyRecord),
		active:       make(map[id.IssuerID]id.KeyID),
		byController: make(map[string]id.KeyID),
	}
}

func (s *InMemoryStore) GetActive(_ context.Context, issuerID id.IssuerID) (*models.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keyID, ok := s.active[issuerID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.records[keyID].Clone(), nil
}

func (s *InMemoryStore) InsertIfAbsent(_ context.Context, record *models.KeyRecord) (*models.KeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.active[record.IssuerID]; ok {
		return s.records[existing].Clone(), nil
	}
	if _, taken := s.byController[record.ControllerID]; taken {
		return nil, sentinel.ErrConflict
	}
	s.put(record)
	return record.Clone(), nil
}

func (s *InMemoryStore) FindByID(_ context.Context, keyID id.KeyID) (*models.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[keyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *InMemoryStore) FindByControllerID(_ context.Context, controllerID string) (*models.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keyID, ok := s.byController[controllerID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.records[keyID].Clone(), nil
}

func (s *InMemoryStore) FindState(_ context.Context, keyID id.KeyID) (*models.KeyState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[keyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	state := &models.KeyState{Status: rec.Status}
	if rec.RevokedAt != nil {
		t := *rec.RevokedAt
		state.RevokedAt = &t
	}
	return state, nil
}

func (s *InMemoryStore) Rotate(_ context.Context, oldID id.KeyID, next *models.KeyRecord, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.records[oldID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if old.Status != models.KeyStatusActive || s.active[old.IssuerID] != oldID {
		return sentinel.ErrConflict
	}
	if _, taken := s.byController[next.ControllerID]; taken {
		return sentinel.ErrConflict
	}
	rotatedAt := at
	old.Status = models.KeyStatusRotated
	old.RotatedAt = &rotatedAt
	s.put(next)
	return nil
}

func (s *InMemoryStore) Revoke(_ context.Context, keyID id.KeyID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[keyID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if rec.Status == models.KeyStatusRevoked {
		return nil
	}
	revokedAt := at
	rec.Status = models.KeyStatusRevoked
	rec.RevokedAt = &revokedAt
	if s.active[rec.IssuerID] == keyID {
		delete(s.active, rec.IssuerID)
	}
	return nil
}

func (s *InMemoryStore) put(record *models.KeyRecord) {
	stored := record.Clone()
	s.records[stored.ID] = stored
	s.byController[stored.ControllerID] = stored.ID
	if stored.Status == models.KeyStatusActive {
		s.active[stored.IssuerID] = stored.ID
	}
}
