package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	audit "openbadges/pkg/platform/audit"
	"openbadges/pkg/testutil"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
}

func (s *InMemoryStoreSuite) TestListByCredentialNewestFirst() {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.Append(ctx, audit.Event{Action: "credential_issued", CredentialID: "urn:uuid:a", Timestamp: base}))
	s.Require().NoError(s.store.Append(ctx, audit.Event{Action: "credential_issued", CredentialID: "urn:uuid:b", Timestamp: base}))
	s.Require().NoError(s.store.Append(ctx, audit.Event{Action: "credential_revoked", CredentialID: "urn:uuid:a", Timestamp: base.Add(time.Minute)}))

	events, err := s.store.ListByCredential(ctx, "urn:uuid:a")
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal("credential_revoked", events[0].Action)
	s.Equal("credential_issued", events[1].Action)
}

func (s *InMemoryStoreSuite) TestListRecent() {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := range 5 {
		s.Require().NoError(s.store.Append(ctx, audit.Event{
			Action:    "credential_issued",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	s.Run("limit truncates", func() {
		events, err := s.store.ListRecent(ctx, 2)
		s.Require().NoError(err)
		s.Require().Len(events, 2)
		s.Equal(base.Add(4*time.Second), events[0].Timestamp)
	})

	s.Run("equal timestamps keep latest append first", func() {
		st := NewInMemoryStore()
		s.Require().NoError(st.Append(ctx, audit.Event{Action: "first", Timestamp: base}))
		s.Require().NoError(st.Append(ctx, audit.Event{Action: "second", Timestamp: base}))
		events, err := st.ListRecent(ctx, 10)
		s.Require().NoError(err)
		s.Equal("second", events[0].Action)
	})
}

func (s *InMemoryStoreSuite) TestConcurrentAppend() {
	ctx := context.Background()
	result := testutil.RunConcurrent(32, func(int) error {
		return s.store.Append(ctx, audit.Event{Action: "credential_issued", CredentialID: "urn:uuid:c"})
	})
	s.Equal(int32(32), result.Successes)

	events, err := s.store.ListByCredential(ctx, "urn:uuid:c")
	s.Require().NoError(err)
	s.Len(events, 32)
}
