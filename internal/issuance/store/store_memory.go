package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"openbadges/internal/issuance/models"
	id "openbadges/pkg/domain"
	"openbadges/pkg/platform/sentinel"
)

// InMemoryStore keeps assertions in a map. Safe for concurrent use.
type InMemoryStore struct {
	mu         sync.RWMutex
	assertions map[id.CredentialID]*models.Assertion
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{assertions: make(map[id.CredentialID]*models.Assertion)}
}

func (s *InMemoryStore) Save(_ context.Context, a *models.Assertion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assertions[a.ID]; ok {
		return sentinel.ErrAlreadyExists
	}
	s.assertions[a.ID] = a.Clone()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, assertionID id.CredentialID) (*models.Assertion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assertions[assertionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *InMemoryStore) Update(_ context.Context, assertionID id.CredentialID, document []byte, revoked bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assertions[assertionID]
	if !ok {
		return sentinel.ErrNotFound
	}
	a.Document = append([]byte(nil), document...)
	a.Revoked = revoked
	a.UpdatedAt = at
	return nil
}

func (s *InMemoryStore) ListByIssuer(_ context.Context, issuerID id.IssuerID) ([]*models.Assertion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Assertion
	for _, a := range s.assertions {
		if a.IssuerID == issuerID {
			out = append(out, a.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Assertion) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}
