// Package service implements the issuer key manager: key generation, did:key
// identity, envelope-encrypted storage and verification-method resolution.
package service

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"openbadges/internal/keys/didkey"
	"openbadges/internal/keys/envelope"
	"openbadges/internal/keys/models"
	"openbadges/internal/keys/store"
	"openbadges/internal/platform/metrics"
	id "openbadges/pkg/domain"
	dErrors "openbadges/pkg/domain-errors"
	"openbadges/pkg/platform/sentinel"
)

// keyFlightTimeout bounds a shared get-or-create flight.
const keyFlightTimeout = 10 * time.Second

// ErrEntropy marks a failure of the randomness source during key generation.
// Callers treat it as fatal.
var ErrEntropy = errors.New("entropy source failure")

// Option configures the Manager.
type Option func(*Manager)

// Manager owns issuer signing keys. Private keys exist in plaintext only in
// returned KeyPair values; the store sees envelope ciphertext.
type Manager struct {
	store    store.Store
	envelope envelope.Envelope
	cache    KeyCache
	group    singleflight.Group
	random   io.Reader
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewManager creates a key manager with the required dependencies.
func NewManager(st store.Store, env envelope.Envelope, opts ...Option) *Manager {
	m := &Manager{
		store:    st,
		envelope: env,
		cache:    noopKeyCache{},
		random:   rand.Reader,
		now:      time.Now,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithLogger configures a logger for the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics configures Prometheus collectors.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithKeyCache installs a cache for ResolveVerificationMethod.
func WithKeyCache(cache KeyCache) Option {
	return func(m *Manager) {
		if cache != nil {
			m.cache = cache
		}
	}
}

// WithRandom overrides the entropy source used for key generation.
func WithRandom(r io.Reader) Option {
	return func(m *Manager) {
		m.random = r
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// GenerateKeyPair produces a fresh Ed25519 keypair not bound to any issuer.
func (m *Manager) GenerateKeyPair() (*models.KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(m.random)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEntropy, err)
	}
	return &models.KeyPair{
		ID:           id.NewKeyID(),
		Algorithm:    models.AlgorithmEd25519,
		PublicKey:    pub,
		PrivateKey:   priv,
		ControllerID: didkey.DeriveControllerID(pub),
		CreatedAt:    m.now().UTC(),
	}, nil
}

// GetOrCreateIssuerKey returns the issuer's active signing key, creating one
// on first use. Concurrent first calls for the same issuer converge on a
// single stored key: in-process callers share one flight, and across
// processes the store's insert-if-absent picks the winner.
func (m *Manager) GetOrCreateIssuerKey(ctx context.Context, issuerID id.IssuerID) (*models.KeyPair, error) {
	if issuerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "issuer ID required")
	}

	// the shared flight is detached from its first caller; each caller stops
	// waiting on its own ctx
	flight := m.group.DoChan(issuerID.String(), func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), keyFlightTimeout)
		defer cancel()
		return m.loadOrCreate(flightCtx, issuerID)
	})
	select {
	case <-ctx.Done():
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "issuer key request cancelled")
	case res := <-flight:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneKeyPair(res.Val.(*models.KeyPair)), nil
	}
}

func (m *Manager) loadOrCreate(ctx context.Context, issuerID id.IssuerID) (*models.KeyPair, error) {
	record, err := m.store.GetActive(ctx, issuerID)
	if err == nil {
		return m.open(record)
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load issuer key")
	}

	candidate, err := m.sealNew(issuerID)
	if err != nil {
		return nil, err
	}

	stored, err := m.store.InsertIfAbsent(ctx, candidate)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store issuer key")
	}
	if stored.ID == candidate.ID {
		m.metrics.IncrementIssuerKeysCreated()
		m.logger.InfoContext(ctx, "issuer key created",
			"issuer_id", issuerID,
			"key_id", stored.ID,
			"controller_id", stored.ControllerID,
		)
	}
	return m.open(stored)
}

// RotateIssuerKey retires the issuer's active key and installs a new one
// linked through PreviousKeyID. Credentials signed by the old key keep
// verifying.
func (m *Manager) RotateIssuerKey(ctx context.Context, issuerID id.IssuerID) (*models.KeyPair, error) {
	current, err := m.store.GetActive(ctx, issuerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "issuer has no active key")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load issuer key")
	}

	next, err := m.sealNew(issuerID)
	if err != nil {
		return nil, err
	}
	previous := current.ID
	next.PreviousKeyID = &previous

	if err := m.store.Rotate(ctx, current.ID, next, m.now().UTC()); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "issuer key changed concurrently")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to rotate issuer key")
	}
	m.metrics.IncrementIssuerKeysCreated()

	m.logger.InfoContext(ctx, "issuer key rotated",
		"issuer_id", issuerID,
		"previous_key_id", current.ID,
		"key_id", next.ID,
	)
	return m.open(next)
}

// RevokeKey marks a key revoked. Signatures made with it stop verifying.
func (m *Manager) RevokeKey(ctx context.Context, keyID id.KeyID) error {
	record, err := m.store.FindByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "key not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load key")
	}
	if err := m.store.Revoke(ctx, keyID, m.now().UTC()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke key")
	}
	m.logger.WarnContext(ctx, "issuer key revoked",
		"issuer_id", record.IssuerID,
		"key_id", keyID,
	)
	return nil
}

// ResolveVerificationMethod maps a proof's verificationMethod to the public
// key that must have produced it. Rotated keys resolve; revoked keys resolve
// with their status so the verifier can reject them. Only the key identity
// comes from the cache; status is read from the store on every call.
func (m *Manager) ResolveVerificationMethod(ctx context.Context, verificationMethod string) (*models.ResolvedKey, error) {
	controllerID := didkey.ControllerOf(verificationMethod)
	if controllerID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "verification method required")
	}

	if cached, ok := m.cache.Get(controllerID); ok {
		m.metrics.IncrementKeyCacheLookup(true)
		state, err := m.store.FindState(ctx, cached.KeyID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeNotFound, "unknown verification method")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load key status")
		}
		cached.Status = state.Status
		cached.RevokedAt = state.RevokedAt
		return cached, nil
	}
	m.metrics.IncrementKeyCacheLookup(false)

	record, err := m.store.FindByControllerID(ctx, controllerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unknown verification method")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve verification method")
	}

	// the identifier is self-describing; a stored key that disagrees with it is corrupt
	derived, err := didkey.ParseControllerID(controllerID)
	if err != nil || !bytes.Equal(derived, record.PublicKey) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "stored key does not match controller id")
	}

	resolved := &models.ResolvedKey{
		KeyID:        record.ID,
		IssuerID:     record.IssuerID,
		ControllerID: record.ControllerID,
		PublicKey:    ed25519.PublicKey(record.PublicKey),
		Status:       record.Status,
		RevokedAt:    record.RevokedAt,
	}
	m.cache.Set(controllerID, resolved)
	return resolved, nil
}

// sealNew generates a keypair for issuerID and envelope-encrypts it.
func (m *Manager) sealNew(issuerID id.IssuerID) (*models.KeyRecord, error) {
	pair, err := m.GenerateKeyPair()
	if err != nil {
		m.logger.Error("key generation failed", "issuer_id", issuerID, "error", err)
		return nil, err
	}
	sealed, err := m.envelope.Encrypt(pair.PrivateKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encrypt private key")
	}
	return &models.KeyRecord{
		ID:                  pair.ID,
		IssuerID:            issuerID,
		Algorithm:           pair.Algorithm,
		PublicKey:           append([]byte(nil), pair.PublicKey...),
		EncryptedPrivateKey: sealed,
		ControllerID:        pair.ControllerID,
		Status:              models.KeyStatusActive,
		CreatedAt:           pair.CreatedAt,
	}, nil
}

// open decrypts a stored record into a usable keypair.
func (m *Manager) open(record *models.KeyRecord) (*models.KeyPair, error) {
	plain, err := m.envelope.Decrypt(record.EncryptedPrivateKey)
	if err != nil {
		var decErr *envelope.DecryptionError
		if errors.As(err, &decErr) {
			return nil, dErrors.Wrap(err, dErrors.CodeDecryption, "issuer private key could not be decrypted")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decrypt issuer private key")
	}
	if len(plain) != ed25519.PrivateKeySize {
		return nil, dErrors.New(dErrors.CodeDecryption, "issuer private key has unexpected size")
	}
	priv := ed25519.PrivateKey(plain)
	if !bytes.Equal(priv.Public().(ed25519.PublicKey), record.PublicKey) {
		return nil, dErrors.New(dErrors.CodeDecryption, "issuer private key does not match public key")
	}
	return &models.KeyPair{
		ID:           record.ID,
		IssuerID:     record.IssuerID,
		Algorithm:    record.Algorithm,
		PublicKey:    ed25519.PublicKey(append([]byte(nil), record.PublicKey...)),
		PrivateKey:   priv,
		ControllerID: record.ControllerID,
		CreatedAt:    record.CreatedAt,
	}, nil
}

func cloneKeyPair(k *models.KeyPair) *models.KeyPair {
	out := *k
	out.PublicKey = append(ed25519.PublicKey(nil), k.PublicKey...)
	out.PrivateKey = append(ed25519.PrivateKey(nil), k.PrivateKey...)
	return &out
}
