// Package memory keeps audit events in process memory for development and
// tests.
package memory

import (
	"context"
	"sort"
	"sync"

	audit "openbadges/pkg/platform/audit"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListByCredential returns the credential's events, newest first.
func (s *InMemoryStore) ListByCredential(_ context.Context, credentialID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.CredentialID == credentialID {
			out = append(out, e)
		}
	}
	newestFirst(out)
	return out, nil
}

func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	out := append([]audit.Event(nil), s.events...)
	s.mu.RUnlock()
	newestFirst(out)
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// newestFirst sorts by timestamp descending; equal timestamps keep the
// later append first.
func newestFirst(events []audit.Event) {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
}
