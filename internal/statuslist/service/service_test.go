package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"openbadges/internal/credential"
	"openbadges/internal/keys/envelope"
	keyservice "openbadges/internal/keys/service"
	keystore "openbadges/internal/keys/store"
	"openbadges/internal/statuslist/bitstring"
	"openbadges/internal/statuslist/models"
	"openbadges/internal/statuslist/store"
	id "openbadges/pkg/domain"
	dErrors "openbadges/pkg/domain-errors"
	"openbadges/pkg/platform/sentinel"
	"openbadges/pkg/testutil"
)

const baseURL = "https://badges.example/v1/status-lists"

type StatusListSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	keys    *keyservice.Manager
	service *Service
}

func TestStatusListSuite(t *testing.T) {
	suite.Run(t, new(StatusListSuite))
}

func (s *StatusListSuite) SetupTest() {
	master := make([]byte, 32)
	_, err := rand.Read(master)
	s.Require().NoError(err)
	env, err := envelope.NewAESGCM(master)
	s.Require().NoError(err)

	s.keys = keyservice.NewManager(keystore.NewInMemoryStore(), env)
	s.store = store.NewInMemoryStore()
	s.service = s.newService(s.store, 128)
}

func (s *StatusListSuite) newService(st store.Store, defaultLength int, opts ...Option) *Service {
	base := []Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}
	return New(st, s.keys, Config{BaseURL: baseURL + "/", DefaultLength: defaultLength}, append(base, opts...)...)
}

func (s *StatusListSuite) verifyListCredential(list *models.StatusList) *credential.Credential {
	doc, err := credential.Parse(list.Credential)
	s.Require().NoError(err)
	s.Require().NotNil(doc.Proof)

	resolved, err := s.keys.ResolveVerificationMethod(context.Background(), doc.Proof.VerificationMethod)
	s.Require().NoError(err)
	s.True(credential.Verify(doc, resolved.PublicKey).Valid, "list credential must verify")
	return doc
}

func (s *StatusListSuite) TestCreateStatusList() {
	ctx := context.Background()
	list, err := s.service.CreateStatusList(ctx, "issuer-1", models.PurposeRevocation, 0)
	s.Require().NoError(err)

	s.Equal(128, list.BitLength)
	s.Equal(int64(1), list.Version)

	doc := s.verifyListCredential(list)
	s.Equal(baseURL+"/"+list.ID.String(), doc.ID)
	s.True(doc.HasType(credential.TypeStatusListCredential))
	s.Equal("issuer-1", doc.IssuerID())
	s.Equal(list.EncodedBits, doc.CredentialSubject["encodedList"])
	s.Equal("revocation", doc.CredentialSubject["statusPurpose"])

	s.Run("rejects bad input", func() {
		_, err := s.service.CreateStatusList(ctx, "issuer-1", models.PurposeRevocation, 12)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		_, err = s.service.CreateStatusList(ctx, "issuer-1", "bogus", 8)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		_, err = s.service.CreateStatusList(ctx, "", models.PurposeRevocation, 8)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *StatusListSuite) TestAssignRevokeCheck() {
	ctx := context.Background()
	list, err := s.service.CreateStatusList(ctx, "issuer-1", models.PurposeRevocation, 128)
	s.Require().NoError(err)

	mapping, err := s.service.AssignIndex(ctx, list.ID, "urn:uuid:A")
	s.Require().NoError(err)
	s.Equal(StartIndex("urn:uuid:A", 128), mapping.BitIndex)

	_, err = s.service.Revoke(ctx, "urn:uuid:A", "issued in error")
	s.Require().NoError(err)

	set, err := s.service.CheckBit(ctx, list.ID, mapping.BitIndex)
	s.Require().NoError(err)
	s.True(set)

	never := (mapping.BitIndex + 1) % 128
	set, err = s.service.CheckBit(ctx, list.ID, never)
	s.Require().NoError(err)
	s.False(set)

	s.Run("status reports the reason", func() {
		status, err := s.service.CheckCredential(ctx, "urn:uuid:A", nil)
		s.Require().NoError(err)
		s.True(status.Revoked)
		s.Equal("issued in error", status.Reason)
		s.NotNil(status.RevokedAt)
	})

	s.Run("list credential re-signed with new bits", func() {
		updated, err := s.service.GetStatusList(ctx, list.ID)
		s.Require().NoError(err)
		s.Equal(int64(2), updated.Version)
		doc := s.verifyListCredential(updated)
		s.Equal(updated.EncodedBits, doc.CredentialSubject["encodedList"])
	})

	s.Run("assign is idempotent for the same credential", func() {
		again, err := s.service.AssignIndex(ctx, list.ID, "urn:uuid:A")
		s.Require().NoError(err)
		s.Equal(mapping.BitIndex, again.BitIndex)
	})

	s.Run("out of range index", func() {
		_, err := s.service.CheckBit(ctx, list.ID, 128)
		s.True(dErrors.HasCode(err, dErrors.CodeOutOfRange))
		_, err = s.service.SetBit(ctx, list.ID, -1, true)
		s.True(dErrors.HasCode(err, dErrors.CodeOutOfRange))
	})
}

func (s *StatusListSuite) TestRevokeIsIdempotent() {
	ctx := context.Background()
	list, err := s.service.CreateStatusList(ctx, "issuer-1", models.PurposeRevocation, 128)
	s.Require().NoError(err)
	_, err = s.service.AssignIndex(ctx, list.ID, "urn:uuid:A")
	s.Require().NoError(err)

	_, err = s.service.Revoke(ctx, "urn:uuid:A", "first")
	s.Require().NoError(err)
	afterFirst, err := s.store.Get(ctx, list.ID)
	s.Require().NoError(err)

	status, err := s.service.Revoke(ctx, "urn:uuid:A", "second")
	s.Require().NoError(err)
	s.True(status.Revoked)
	s.Equal("first", status.Reason)

	afterSecond, err := s.store.Get(ctx, list.ID)
	s.Require().NoError(err)
	s.Equal(afterFirst.Version, afterSecond.Version)
	s.Equal(afterFirst.EncodedBits, afterSecond.EncodedBits)
	s.Equal(afterFirst.Credential, afterSecond.Credential, "no re-signing on a no-op")
}

func (s *StatusListSuite) TestReinstate() {
	ctx := context.Background()
	list, err := s.service.CreateStatusList(ctx, "issuer-1", models.PurposeRevocation, 128)
	s.Require().NoError(err)
	mapping, err := s.service.AssignIndex(ctx, list.ID, "urn:uuid:A")
	s.Require().NoError(err)

	_, err = s.service.Revoke(ctx, "urn:uuid:A", "oops")
	s.Require().NoError(err)
	status, err := s.service.Reinstate(ctx, "urn:uuid:A")
	s.Require().NoError(err)
	s.False(status.Revoked)
	s.Empty(status.Reason)

	set, err := s.service.CheckBit(ctx, list.ID, mapping.BitIndex)
	s.Require().NoError(err)
	s.False(set)

	s.Run("unknown credential", func() {
		_, err := s.service.Revoke(ctx, "urn:uuid:nobody", "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *StatusListSuite) TestIndicesAreUniqueUntilFull() {
	ctx := context.Background()
	list, err := s.service.CreateStatusList(ctx, "issuer-1", models.PurposeRevocation, 128)
	s.Require().NoError(err)

	seen := make(map[int]bool)
	for i := 0; i < 128; i++ {
		mapping, err := s.service.AssignIndex(ctx, list.ID, id.CredentialID(fmt.Sprintf("urn:uuid:%d", i)))
		s.Require().NoError(err)
		s.False(seen[mapping.BitIndex], "index %d assigned twice", mapping.BitIndex)
		seen[mapping.BitIndex] = true
	}
	s.Len(seen, 128)

	_, err = s.service.AssignIndex(ctx, list.ID, "urn:uuid:overflow")
	s.True(dErrors.HasCode(err, dErrors.CodeExhausted))
	s.ErrorIs(err, ErrStatusListFull)
}

func (s *StatusListSuite) TestConcurrentAssignAndRevoke() {
	ctx := context.Background()
	list, err := s.service.CreateStatusList(ctx, "issuer-1", models.PurposeRevocation, 128)
	s.Require().NoError(err)

	outcomes := testutil.Collect(64, func(idx int) (*models.IndexMapping, error) {
		return s.service.AssignIndex(ctx, list.ID, id.CredentialID(fmt.Sprintf("urn:uuid:c%d", idx)))
	})
	seen := make(map[int]bool)
	for _, o := range outcomes {
		s.Require().NoError(o.Err)
		s.False(seen[o.Value.BitIndex])
		seen[o.Value.BitIndex] = true
	}

	result := testutil.RunConcurrent(64, func(idx int) error {
		_, err := s.service.Revoke(ctx, id.CredentialID(fmt.Sprintf("urn:uuid:c%d", idx)), "")
		return err
	})
	s.Equal(int32(64), result.Successes)

	final, err := s.store.Get(ctx, list.ID)
	s.Require().NoError(err)
	bits, err := bitstring.Decode(final.EncodedBits, final.BitLength)
	s.Require().NoError(err)
	s.Equal(64, bits.CountSet(), "no revocation may be lost")
	s.Equal(int64(65), final.Version)
}

// racingStore lets another writer slip in between our read and our save once.
type racingStore struct {
	*store.InMemoryStore
	raced atomic.Bool
}

func (r *racingStore) Save(ctx context.Context, list *models.StatusList, expectedVersion int64, change *models.StatusChange) (int64, error) {
	if r.raced.CompareAndSwap(false, true) {
		current, err := r.InMemoryStore.Get(ctx, list.ID)
		if err != nil {
			return 0, err
		}
		other, _, err := bitstring.SetBit(current.EncodedBits, current.BitLength, 0, true)
		if err != nil {
			return 0, err
		}
		current.EncodedBits = other
		if _, err := r.InMemoryStore.Save(ctx, current, current.Version, nil); err != nil {
			return 0, err
		}
	}
	return r.InMemoryStore.Save(ctx, list, expectedVersion, change)
}

func (s *StatusListSuite) TestStaleWriteIsRetried() {
	ctx := context.Background()
	racing := &racingStore{InMemoryStore: store.NewInMemoryStore()}
	svc := s.newService(racing, 128)

	list, err := svc.CreateStatusList(ctx, "issuer-1", models.PurposeRevocation, 128)
	s.Require().NoError(err)
	racing.raced.Store(false)

	changed, err := svc.SetBit(ctx, list.ID, 5, true)
	s.Require().NoError(err)
	s.True(changed)

	final, err := racing.Get(ctx, list.ID)
	s.Require().NoError(err)
	s.Equal(int64(3), final.Version)
	for _, idx := range []int{0, 5} {
		set, err := bitstring.CheckBit(final.EncodedBits, final.BitLength, idx)
		s.Require().NoError(err)
		s.True(set, "bit %d must survive the race", idx)
	}
}

// flakyStore fails the next save that carries a status change.
type flakyStore struct {
	*store.InMemoryStore
	failNext atomic.Bool
}

func (f *flakyStore) Save(ctx context.Context, list *models.StatusList, expectedVersion int64, change *models.StatusChange) (int64, error) {
	if change != nil && f.failNext.CompareAndSwap(true, false) {
		return 0, errors.New("connection reset by peer")
	}
	return f.InMemoryStore.Save(ctx, list, expectedVersion, change)
}

func (s *StatusListSuite) TestFailedRevocationLeavesNoPartialWrite() {
	ctx := context.Background()
	flaky := &flakyStore{InMemoryStore: store.NewInMemoryStore()}
	svc := s.newService(flaky, 128)

	list, err := svc.CreateStatusList(ctx, "issuer-1", models.PurposeRevocation, 128)
	s.Require().NoError(err)
	_, err = svc.AssignIndex(ctx, list.ID, "urn:uuid:A")
	s.Require().NoError(err)

	flaky.failNext.Store(true)
	_, err = svc.Revoke(ctx, "urn:uuid:A", "key compromised")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	unchanged, err := flaky.Get(ctx, list.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), unchanged.Version, "bits must not move without the record")
	_, err = flaky.FindRevocation(ctx, "urn:uuid:A")
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Run("retry records bit and reason together", func() {
		status, err := svc.Revoke(ctx, "urn:uuid:A", "key compromised")
		s.Require().NoError(err)
		s.True(status.Revoked)
		s.Equal("key compromised", status.Reason)

		final, err := flaky.Get(ctx, list.ID)
		s.Require().NoError(err)
		s.Equal(int64(2), final.Version)
	})
}

// versionedCache mirrors the Redis cache contract: writes never move an
// entry to an older version, and invalidation leaves a version floor.
type versionedCache struct {
	mu       sync.Mutex
	entries  map[id.StatusListID]*models.StatusList
	floors   map[id.StatusListID]int64
	failSets int
}

func newVersionedCache() *versionedCache {
	return &versionedCache{
		entries: make(map[id.StatusListID]*models.StatusList),
		floors:  make(map[id.StatusListID]int64),
	}
}

func (c *versionedCache) Get(_ context.Context, listID id.StatusListID) (*models.StatusList, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list, ok := c.entries[listID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return list.Clone(), nil
}

func (c *versionedCache) Set(_ context.Context, list *models.StatusList) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSets > 0 {
		c.failSets--
		return errors.New("cache unavailable")
	}
	if list.Version < c.floors[list.ID] {
		return nil
	}
	c.floors[list.ID] = list.Version
	c.entries[list.ID] = list.Clone()
	return nil
}

func (c *versionedCache) Invalidate(_ context.Context, listID id.StatusListID, version int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if version < c.floors[listID] {
		return nil
	}
	c.floors[listID] = version
	delete(c.entries, listID)
	return nil
}

// pausingStore holds the next Get after it has read the list, until released.
type pausingStore struct {
	*store.InMemoryStore
	armed   atomic.Bool
	reached chan struct{}
	release chan struct{}
}

func (p *pausingStore) Get(ctx context.Context, listID id.StatusListID) (*models.StatusList, error) {
	list, err := p.InMemoryStore.Get(ctx, listID)
	if p.armed.CompareAndSwap(true, false) {
		close(p.reached)
		<-p.release
	}
	return list, err
}

func (s *StatusListSuite) TestCacheFillRacingRevoke() {
	for name, failWriteThrough := range map[string]bool{
		"write-through":         false,
		"invalidation fallback": true,
	} {
		s.Run(name, func() {
			ctx := context.Background()
			paused := &pausingStore{
				InMemoryStore: store.NewInMemoryStore(),
				reached:       make(chan struct{}),
				release:       make(chan struct{}),
			}
			cache := newVersionedCache()
			svc := s.newService(paused, 128, WithCache(cache))

			list, err := svc.CreateStatusList(ctx, "issuer-1", models.PurposeRevocation, 128)
			s.Require().NoError(err)
			mapping, err := svc.AssignIndex(ctx, list.ID, "urn:uuid:A")
			s.Require().NoError(err)

			// a reader misses the cache and reads version 1
			paused.armed.Store(true)
			filled := make(chan error, 1)
			go func() {
				_, err := svc.GetStatusList(ctx, list.ID)
				filled <- err
			}()
			<-paused.reached

			if failWriteThrough {
				cache.mu.Lock()
				cache.failSets = 1
				cache.mu.Unlock()
			}
			_, err = svc.Revoke(ctx, "urn:uuid:A", "compromised")
			s.Require().NoError(err)

			// the reader now tries to cache what it read before the revoke
			close(paused.release)
			s.Require().NoError(<-filled)

			set, err := svc.CheckBit(ctx, list.ID, mapping.BitIndex)
			s.Require().NoError(err)
			s.True(set, "revoked bit must not be served stale")

			cached, err := cache.Get(ctx, list.ID)
			s.Require().NoError(err)
			s.Equal(int64(2), cached.Version)
		})
	}
}

func (s *StatusListSuite) TestAllocateForIssuerRollsOver() {
	ctx := context.Background()
	svc := s.newService(s.store, 8)

	lists := make(map[id.StatusListID]int)
	for i := 0; i < 12; i++ {
		mapping, err := svc.AllocateForIssuer(ctx, "issuer-1", models.PurposeRevocation, id.CredentialID(fmt.Sprintf("urn:uuid:%d", i)))
		s.Require().NoError(err)
		lists[mapping.StatusListID]++
	}
	s.Len(lists, 2)

	s.Run("existing mapping is returned", func() {
		first, err := svc.AllocateForIssuer(ctx, "issuer-1", models.PurposeRevocation, "urn:uuid:0")
		s.Require().NoError(err)
		again, err := svc.AllocateForIssuer(ctx, "issuer-1", models.PurposeRevocation, "urn:uuid:0")
		s.Require().NoError(err)
		s.Equal(first.BitIndex, again.BitIndex)
		s.Equal(first.StatusListID, again.StatusListID)
	})

	s.Run("status entry points at the list", func() {
		mapping, err := svc.AllocateForIssuer(ctx, "issuer-1", models.PurposeRevocation, "urn:uuid:0")
		s.Require().NoError(err)
		entry := svc.StatusEntry(mapping, models.PurposeRevocation)
		s.Equal(baseURL+"/"+mapping.StatusListID.String(), entry.StatusListCredential)
		s.Equal(mapping.BitIndex, entry.StatusListIndex)

		parsed, err := ListIDFromURL(entry.StatusListCredential)
		s.Require().NoError(err)
		s.Equal(mapping.StatusListID, parsed)
	})
}

func (s *StatusListSuite) TestCheckCredentialFromEntry() {
	ctx := context.Background()
	list, err := s.service.CreateStatusList(ctx, "issuer-1", models.PurposeRevocation, 128)
	s.Require().NoError(err)
	_, err = s.service.SetBit(ctx, list.ID, 9, true)
	s.Require().NoError(err)

	entry := &credential.StatusEntry{StatusListCredential: s.service.ListURL(list.ID), StatusListIndex: 9}
	status, err := s.service.CheckCredential(ctx, "urn:uuid:unmapped", entry)
	s.Require().NoError(err)
	s.True(status.Revoked)

	_, err = s.service.CheckCredential(ctx, "urn:uuid:unmapped", nil)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.CheckCredential(ctx, "urn:uuid:unmapped", &credential.StatusEntry{StatusListCredential: "https://elsewhere/list"})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *StatusListSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.service.AssignIndex(ctx, id.NewStatusListID(), "urn:uuid:A")
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestStartIndexIsStable(t *testing.T) {
	a := StartIndex("urn:uuid:A", 131072)
	b := StartIndex("urn:uuid:A", 131072)
	if a != b || a < 0 || a >= 131072 {
		t.Fatalf("unstable or out of range start index: %d %d", a, b)
	}
}
