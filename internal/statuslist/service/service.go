// Package service implements the status list engine: list creation, stable
// index assignment and serialized, version-checked bit updates.
package service

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/zeebo/blake3"

	"openbadges/internal/credential"
	keymodels "openbadges/internal/keys/models"
	"openbadges/internal/platform/metrics"
	"openbadges/internal/statuslist/bitstring"
	"openbadges/internal/statuslist/models"
	"openbadges/internal/statuslist/store"
	id "openbadges/pkg/domain"
	dErrors "openbadges/pkg/domain-errors"
	"openbadges/pkg/platform/sentinel"
	platformsync "openbadges/pkg/platform/sync"
)

var (
	// ErrStatusListFull means every index of the list is mapped.
	ErrStatusListFull = errors.New("status list has no free index")
	// ErrVersionConflict means the list changed underneath a write more
	// times than the retry budget allowed.
	ErrVersionConflict = fmt.Errorf("status list version conflict: %w", sentinel.ErrConflict)
)

// StatusListContext is the JSON-LD context for StatusList2021 documents.
const StatusListContext = credential.ContextStatusList2021

// KeyProvider supplies the issuer key used to sign list credentials.
type KeyProvider interface {
	GetOrCreateIssuerKey(ctx context.Context, issuerID id.IssuerID) (*keymodels.KeyPair, error)
}

// Cache is a read-through cache of status lists. Misses return
// sentinel.ErrNotFound. Set never replaces a newer version than the one it
// is given, and Invalidate leaves version as a floor so a fill that read an
// older list before the write cannot land after it.
type Cache interface {
	Get(ctx context.Context, listID id.StatusListID) (*models.StatusList, error)
	Set(ctx context.Context, list *models.StatusList) error
	Invalidate(ctx context.Context, listID id.StatusListID, version int64) error
}

// Config holds status list settings.
type Config struct {
	// BaseURL prefixes list identifiers to form statusListCredential URLs.
	BaseURL       string
	DefaultLength int
	WriteRetries  int
	// Contexts is the @context array placed on list credentials, in order.
	Contexts []string
}

// Option configures the Service.
type Option func(*Service)

// Service owns status lists.
type Service struct {
	store   store.Store
	keys    KeyProvider
	cfg     Config
	cache   Cache
	locks   *platformsync.ShardedMutex
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a status list service.
func New(st store.Store, keys KeyProvider, cfg Config, opts ...Option) *Service {
	if cfg.DefaultLength == 0 {
		cfg.DefaultLength = bitstring.DefaultLength
	}
	if cfg.WriteRetries <= 0 {
		cfg.WriteRetries = 5
	}
	if len(cfg.Contexts) == 0 {
		cfg.Contexts = []string{credential.ContextCredentialsV1, StatusListContext}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	s := &Service{
		store:  st,
		keys:   keys,
		cfg:    cfg,
		locks:  platformsync.NewShardedMutex(),
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithLogger configures a logger for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics configures Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCache installs a read cache for lists.
func WithCache(c Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// CreateStatusList allocates a zero-filled list of bitLength bits (the
// configured default when zero) and signs it as a StatusList2021Credential.
func (s *Service) CreateStatusList(ctx context.Context, issuerID id.IssuerID, purpose models.Purpose, bitLength int) (*models.StatusList, error) {
	if issuerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "issuer ID required")
	}
	if !purpose.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unsupported status purpose")
	}
	if bitLength == 0 {
		bitLength = s.cfg.DefaultLength
	}
	bits, err := bitstring.New(bitLength)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid status list length")
	}
	encoded, err := bits.Encode()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode status list")
	}

	now := s.now().UTC()
	list := &models.StatusList{
		ID:          id.NewStatusListID(),
		IssuerID:    issuerID,
		Purpose:     purpose,
		BitLength:   bitLength,
		EncodedBits: encoded,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	list.Credential, err = s.signList(ctx, list, encoded)
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, list); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store status list")
	}
	s.metrics.IncrementStatusListsCreated()
	s.logger.InfoContext(ctx, "status list created",
		"status_list_id", list.ID,
		"issuer_id", issuerID,
		"purpose", purpose,
		"bit_length", bitLength,
	)
	return list, nil
}

// GetStatusList returns the current list, served from cache when possible.
func (s *Service) GetStatusList(ctx context.Context, listID id.StatusListID) (*models.StatusList, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, listID)
		switch {
		case err == nil:
			s.metrics.IncrementStatusCacheLookup("hit")
			return cached, nil
		case errors.Is(err, sentinel.ErrNotFound):
			s.metrics.IncrementStatusCacheLookup("miss")
		default:
			s.metrics.IncrementStatusCacheLookup("error")
			s.logger.WarnContext(ctx, "status list cache read failed", "status_list_id", listID, "error", err)
		}
	}

	list, err := s.store.Get(ctx, listID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "status list not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load status list")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, list); err != nil {
			s.logger.WarnContext(ctx, "status list cache write failed", "status_list_id", listID, "error", err)
		}
	}
	return list, nil
}

// AssignIndex maps credentialID to a free bit of the list. The probe starts
// at a BLAKE3 hash of the credential id modulo the list length and moves
// forward one slot at a time, wrapping at the end. The mapping is persisted
// before returning; assigning an already-mapped credential returns its
// existing mapping.
func (s *Service) AssignIndex(ctx context.Context, listID id.StatusListID, credentialID id.CredentialID) (*models.IndexMapping, error) {
	if credentialID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "credential ID required")
	}

	var mapping *models.IndexMapping
	err := s.withLock(ctx, listID.String(), func(ctx context.Context) error {
		existing, err := s.findMapping(ctx, credentialID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.StatusListID != listID {
				return dErrors.New(dErrors.CodeConflict, "credential already mapped to another status list")
			}
			mapping = existing
			return nil
		}

		list, err := s.store.Get(ctx, listID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "status list not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load status list")
		}
		if list.Full() {
			return dErrors.Wrap(ErrStatusListFull, dErrors.CodeExhausted, "status list is full")
		}

		mapping, err = s.probe(ctx, list, credentialID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return mapping, nil
}

func (s *Service) probe(ctx context.Context, list *models.StatusList, credentialID id.CredentialID) (*models.IndexMapping, error) {
	start := StartIndex(credentialID, list.BitLength)
	now := s.now().UTC()

	for probe := 0; probe < list.BitLength; probe++ {
		candidate := &models.IndexMapping{
			CredentialID: credentialID,
			StatusListID: list.ID,
			BitIndex:     (start + probe) % list.BitLength,
			CreatedAt:    now,
		}
		err := s.store.InsertMapping(ctx, candidate)
		switch {
		case err == nil:
			s.metrics.ObserveStatusIndexProbes(probe + 1)
			s.logger.DebugContext(ctx, "status index assigned",
				"status_list_id", list.ID,
				"credential_id", credentialID,
				"bit_index", candidate.BitIndex,
				"probes", probe+1,
			)
			return candidate, nil
		case errors.Is(err, sentinel.ErrConflict):
			continue
		case errors.Is(err, sentinel.ErrAlreadyExists):
			// mapped by another process since we looked
			existing, findErr := s.findMapping(ctx, credentialID)
			if findErr != nil {
				return nil, findErr
			}
			if existing == nil || existing.StatusListID != list.ID {
				return nil, dErrors.New(dErrors.CodeConflict, "credential already mapped to another status list")
			}
			return existing, nil
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store status mapping")
		}
	}
	return nil, dErrors.Wrap(ErrStatusListFull, dErrors.CodeExhausted, "status list is full")
}

// StartIndex is the first slot probed for credentialID in a list of length bits.
func StartIndex(credentialID id.CredentialID, length int) int {
	sum := blake3.Sum256([]byte(credentialID))
	return int(binary.BigEndian.Uint64(sum[:8]) % uint64(length))
}

// AllocateForIssuer assigns credentialID a slot in the issuer's active list
// for purpose, creating a new list when none has room.
func (s *Service) AllocateForIssuer(ctx context.Context, issuerID id.IssuerID, purpose models.Purpose, credentialID id.CredentialID) (*models.IndexMapping, error) {
	existing, err := s.findMapping(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	const attempts = 3
	for range attempts {
		list, err := s.activeList(ctx, issuerID, purpose)
		if err != nil {
			return nil, err
		}
		mapping, err := s.AssignIndex(ctx, list.ID, credentialID)
		if err == nil {
			return mapping, nil
		}
		if !errors.Is(err, ErrStatusListFull) {
			return nil, err
		}
		// filled by concurrent issuance; look again
	}
	return nil, dErrors.Wrap(ErrStatusListFull, dErrors.CodeExhausted, "no status list with free capacity")
}

func (s *Service) activeList(ctx context.Context, issuerID id.IssuerID, purpose models.Purpose) (*models.StatusList, error) {
	list, err := s.store.FindActive(ctx, issuerID, purpose)
	if err == nil {
		return list, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to find active status list")
	}

	// one creator per issuer in this process
	err = s.withLock(ctx, "issuer:"+issuerID.String()+":"+string(purpose), func(ctx context.Context) error {
		list, err = s.store.FindActive(ctx, issuerID, purpose)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to find active status list")
		}
		list, err = s.CreateStatusList(ctx, issuerID, purpose, 0)
		return err
	})
	return list, err
}

// StatusEntry builds the credentialStatus member for a mapping.
func (s *Service) StatusEntry(mapping *models.IndexMapping, purpose models.Purpose) credential.StatusEntry {
	listURL := s.ListURL(mapping.StatusListID)
	return credential.StatusEntry{
		ID:                   listURL + "#" + strconv.Itoa(mapping.BitIndex),
		Type:                 credential.TypeStatusListEntry,
		StatusPurpose:        string(purpose),
		StatusListIndex:      mapping.BitIndex,
		StatusListCredential: listURL,
	}
}

// ListURL is the public URL of a list's credential.
func (s *Service) ListURL(listID id.StatusListID) string {
	return s.cfg.BaseURL + "/" + listID.String()
}

// ListIDFromURL recovers the list id from a statusListCredential URL.
func ListIDFromURL(url string) (id.StatusListID, error) {
	url = strings.TrimRight(url, "/")
	if i := strings.LastIndexByte(url, '/'); i >= 0 {
		url = url[i+1:]
	}
	return id.ParseStatusListID(url)
}

// Revoke sets the credential's bit. Revoking an already-revoked credential
// changes nothing: no write, no re-signing, and the first reason is kept.
func (s *Service) Revoke(ctx context.Context, credentialID id.CredentialID, reason string) (*models.CredentialStatus, error) {
	return s.changeStatus(ctx, credentialID, true, reason)
}

// Reinstate clears the credential's bit. It is the only way a set bit
// returns to zero.
func (s *Service) Reinstate(ctx context.Context, credentialID id.CredentialID) (*models.CredentialStatus, error) {
	return s.changeStatus(ctx, credentialID, false, "")
}

func (s *Service) changeStatus(ctx context.Context, credentialID id.CredentialID, revoke bool, reason string) (*models.CredentialStatus, error) {
	mapping, err := s.findMapping(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "credential has no status entry")
	}

	change := &models.StatusChange{CredentialID: credentialID}
	if revoke {
		change.Revocation = &models.RevocationEntry{
			CredentialID: credentialID,
			Reason:       reason,
			RevokedAt:    s.now().UTC(),
		}
	}
	changed, err := s.setBit(ctx, mapping.StatusListID, mapping.BitIndex, revoke, change)
	if err != nil {
		return nil, err
	}

	action := "noop"
	if changed && revoke {
		action = "revoke"
	} else if changed {
		action = "reinstate"
	}
	s.metrics.IncrementStatusChange(action)
	s.logger.InfoContext(ctx, "credential status updated",
		"credential_id", credentialID,
		"status_list_id", mapping.StatusListID,
		"bit_index", mapping.BitIndex,
		"action", action,
	)
	return s.CheckCredential(ctx, credentialID, nil)
}

// SetBit writes one bit of a list directly. It exists for operators
// correcting a list; credential flows use Revoke and Reinstate.
func (s *Service) SetBit(ctx context.Context, listID id.StatusListID, index int, value bool) (bool, error) {
	return s.setBit(ctx, listID, index, value, nil)
}

// setBit performs the read-modify-write of one bit under the list lock,
// re-signing and saving against the version that was read. A version
// conflict (another process wrote first) restarts from a fresh read.
// change, when given, is committed by the same save as the bits.
func (s *Service) setBit(ctx context.Context, listID id.StatusListID, index int, value bool, change *models.StatusChange) (bool, error) {
	var (
		changed bool
		saved   *models.StatusList
	)
	err := s.withLock(ctx, listID.String(), func(ctx context.Context) error {
		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = 5 * time.Millisecond
		policy.MaxInterval = 200 * time.Millisecond

		op := func() error {
			list, err := s.store.Get(ctx, listID)
			if err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return backoff.Permanent(dErrors.New(dErrors.CodeNotFound, "status list not found"))
				}
				return backoff.Permanent(dErrors.Wrap(err, dErrors.CodeInternal, "failed to load status list"))
			}

			encoded, bitChanged, err := bitstring.SetBit(list.EncodedBits, list.BitLength, index, value)
			if err != nil {
				return backoff.Permanent(bitError(err))
			}
			if !bitChanged {
				changed = false
				return nil
			}

			updated := list.Clone()
			updated.EncodedBits = encoded
			updated.UpdatedAt = s.now().UTC()
			if updated.Credential, err = s.signList(ctx, updated, encoded); err != nil {
				return backoff.Permanent(err)
			}

			version, err := s.store.Save(ctx, updated, list.Version, change)
			if err != nil {
				switch {
				case errors.Is(err, sentinel.ErrConflict):
					return ErrVersionConflict
				case errors.Is(err, sentinel.ErrNotFound):
					return backoff.Permanent(dErrors.Wrap(err, dErrors.CodeNotFound, "status list or mapping not found"))
				}
				return backoff.Permanent(dErrors.Wrap(err, dErrors.CodeInternal, "failed to save status list"))
			}
			updated.Version = version
			saved = updated
			changed = true
			return nil
		}

		notify := func(err error, wait time.Duration) {
			s.metrics.IncrementStatusWriteRetries()
			s.logger.DebugContext(ctx, "status list write conflict, retrying",
				"status_list_id", listID,
				"wait", wait,
			)
		}

		b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.cfg.WriteRetries)), ctx)
		if err := backoff.RetryNotify(op, b, notify); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Wrap(err, dErrors.CodeConflict, "status list changed concurrently, retry")
			}
			return err
		}

		if changed {
			s.publish(ctx, saved)
		}
		return nil
	})
	return changed, err
}

// CheckBit reads one bit of a list.
func (s *Service) CheckBit(ctx context.Context, listID id.StatusListID, index int) (bool, error) {
	list, err := s.GetStatusList(ctx, listID)
	if err != nil {
		return false, err
	}
	set, err := bitstring.CheckBit(list.EncodedBits, list.BitLength, index)
	if err != nil {
		return false, bitError(err)
	}
	return set, nil
}

// CheckCredential reports the revocation state of a credential. The mapping
// created at issuance is authoritative; when there is none, entry (the
// credential's own credentialStatus) is used if it points at a local list.
// A credential with neither yields a CodeNotFound error.
func (s *Service) CheckCredential(ctx context.Context, credentialID id.CredentialID, entry *credential.StatusEntry) (*models.CredentialStatus, error) {
	mapping, err := s.findMapping(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		if entry == nil {
			return nil, dErrors.New(dErrors.CodeNotFound, "credential has no status entry")
		}
		listID, err := ListIDFromURL(entry.StatusListCredential)
		if err != nil {
			return nil, dErrors.New(dErrors.CodeNotFound, "status list not recognized")
		}
		mapping = &models.IndexMapping{CredentialID: credentialID, StatusListID: listID, BitIndex: entry.StatusListIndex}
	}

	set, err := s.CheckBit(ctx, mapping.StatusListID, mapping.BitIndex)
	if err != nil {
		return nil, err
	}
	status := &models.CredentialStatus{
		CredentialID: credentialID,
		StatusListID: mapping.StatusListID,
		BitIndex:     mapping.BitIndex,
		Revoked:      set,
	}
	if set {
		rev, err := s.store.FindRevocation(ctx, credentialID)
		switch {
		case err == nil:
			status.Reason = rev.Reason
			revokedAt := rev.RevokedAt
			status.RevokedAt = &revokedAt
		case !errors.Is(err, sentinel.ErrNotFound):
			s.logger.WarnContext(ctx, "revocation reason lookup failed", "credential_id", credentialID, "error", err)
		}
	}
	return status, nil
}

func (s *Service) findMapping(ctx context.Context, credentialID id.CredentialID) (*models.IndexMapping, error) {
	mapping, err := s.store.FindMapping(ctx, credentialID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load status mapping")
	}
	return mapping, nil
}

// publish writes a freshly saved list through to the cache. When that fails
// the entry is invalidated at the saved version instead, so older fills in
// flight are refused either way.
func (s *Service) publish(ctx context.Context, list *models.StatusList) {
	if s.cache == nil {
		return
	}
	err := s.cache.Set(ctx, list)
	if err == nil {
		return
	}
	s.logger.WarnContext(ctx, "status list cache write-through failed", "status_list_id", list.ID, "error", err)
	if err := s.cache.Invalidate(ctx, list.ID, list.Version); err != nil {
		s.logger.WarnContext(ctx, "status list cache invalidation failed", "status_list_id", list.ID, "error", err)
	}
}

func bitError(err error) error {
	switch {
	case errors.Is(err, bitstring.ErrOutOfRange):
		return dErrors.Wrap(err, dErrors.CodeOutOfRange, "status list index out of range")
	case errors.Is(err, bitstring.ErrCorrupt), errors.Is(err, bitstring.ErrInvalidLength):
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "stored status list is corrupt")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "status list update failed")
	}
}
