package store

import (
	"context"
	"sync"

	"openbadges/internal/statuslist/models"
	id "openbadges/pkg/domain"
	"openbadges/pkg/platform/sentinel"
)

type slotKey struct {
	list  id.StatusListID
	index int
}

// InMemoryStore is an in-memory status list store for tests and
// single-process deployments.
type InMemoryStore struct {
	mu          sync.RWMutex
	lists       map[id.StatusListID]*models.StatusList
	mappings    map[id.CredentialID]*models.IndexMapping
	slots       map[slotKey]id.CredentialID
	revocations map[id.CredentialID]*models.RevocationEntry
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		lists:       make(map[id.StatusListID]*models.StatusList),
		mappings:    make(map[id.CredentialID]*models.IndexMapping),
		slots:       make(map[slotKey]id.CredentialID),
		revocations: make(map[id.CredentialID]*models.RevocationEntry),
	}
}

func (s *InMemoryStore) Create(_ context.Context, list *models.StatusList) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lists[list.ID]; ok {
		return sentinel.ErrAlreadyExists
	}
	s.lists[list.ID] = list.Clone()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, listID id.StatusListID) (*models.StatusList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list, ok := s.lists[listID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return list.Clone(), nil
}

func (s *InMemoryStore) FindActive(_ context.Context, issuerID id.IssuerID, purpose models.Purpose) (*models.StatusList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var newest *models.StatusList
	for _, list := range s.lists {
		if list.IssuerID != issuerID || list.Purpose != purpose || list.Full() {
			continue
		}
		if newest == nil || list.CreatedAt.After(newest.CreatedAt) {
			newest = list
		}
	}
	if newest == nil {
		return nil, sentinel.ErrNotFound
	}
	return newest.Clone(), nil
}

func (s *InMemoryStore) Save(_ context.Context, list *models.StatusList, expectedVersion int64, change *models.StatusChange) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.lists[list.ID]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return stored.Version, sentinel.ErrConflict
	}
	if change != nil {
		if _, ok := s.mappings[change.CredentialID]; !ok {
			return 0, sentinel.ErrNotFound
		}
	}

	stored.EncodedBits = list.EncodedBits
	stored.Credential = append([]byte(nil), list.Credential...)
	stored.UpdatedAt = list.UpdatedAt
	stored.Version++
	if change != nil {
		if change.Revocation != nil {
			entry := *change.Revocation
			entry.CredentialID = change.CredentialID
			s.revocations[change.CredentialID] = &entry
		} else {
			delete(s.revocations, change.CredentialID)
		}
	}
	return stored.Version, nil
}

func (s *InMemoryStore) InsertMapping(_ context.Context, mapping *models.IndexMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.lists[mapping.StatusListID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if _, ok := s.mappings[mapping.CredentialID]; ok {
		return sentinel.ErrAlreadyExists
	}
	slot := slotKey{list: mapping.StatusListID, index: mapping.BitIndex}
	if _, taken := s.slots[slot]; taken {
		return sentinel.ErrConflict
	}
	stored := *mapping
	s.mappings[mapping.CredentialID] = &stored
	s.slots[slot] = mapping.CredentialID
	list.Allocated++
	return nil
}

func (s *InMemoryStore) FindMapping(_ context.Context, credentialID id.CredentialID) (*models.IndexMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mapping, ok := s.mappings[credentialID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *mapping
	return &out, nil
}

func (s *InMemoryStore) MappingAt(_ context.Context, listID id.StatusListID, index int) (*models.IndexMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	credentialID, ok := s.slots[slotKey{list: listID, index: index}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *s.mappings[credentialID]
	return &out, nil
}

func (s *InMemoryStore) FindRevocation(_ context.Context, credentialID id.CredentialID) (*models.RevocationEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.revocations[credentialID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *entry
	return &out, nil
}
