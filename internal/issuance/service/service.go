// Package service issues Open Badges credentials: it obtains the issuer key,
// reserves a status list slot, embeds credentialStatus, signs and stores
// the result, and later bakes or revokes it.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"openbadges/internal/credential"
	"openbadges/internal/issuance/models"
	"openbadges/internal/issuance/store"
	keymodels "openbadges/internal/keys/models"
	"openbadges/internal/platform/metrics"
	statusmodels "openbadges/internal/statuslist/models"
	id "openbadges/pkg/domain"
	dErrors "openbadges/pkg/domain-errors"
	"openbadges/pkg/platform/audit"
	"openbadges/pkg/platform/sentinel"
)

// DefaultContexts is the @context of issued credentials when the request
// gives none.
var DefaultContexts = []any{
	credential.ContextCredentialsV1,
	credential.ContextOpenBadgesV3,
	credential.ContextStatusList2021,
}

// KeyProvider supplies issuer signing keys.
type KeyProvider interface {
	GetOrCreateIssuerKey(ctx context.Context, issuerID id.IssuerID) (*keymodels.KeyPair, error)
}

// StatusRegistry reserves status list slots and flips them.
type StatusRegistry interface {
	AllocateForIssuer(ctx context.Context, issuerID id.IssuerID, purpose statusmodels.Purpose, credentialID id.CredentialID) (*statusmodels.IndexMapping, error)
	StatusEntry(mapping *statusmodels.IndexMapping, purpose statusmodels.Purpose) credential.StatusEntry
	Revoke(ctx context.Context, credentialID id.CredentialID, reason string) (*statusmodels.CredentialStatus, error)
	Reinstate(ctx context.Context, credentialID id.CredentialID) (*statusmodels.CredentialStatus, error)
}

// Baker embeds a payload in an image.
type Baker interface {
	Bake(img, payload []byte) ([]byte, error)
}

// IssueRequest asks for one credential. Hosted credentials are stored
// without a proof and verified as legacy assertions.
type IssueRequest struct {
	IssuerID   id.IssuerID
	Credential *credential.Credential
	Hosted     bool
}

// IssueResult is the stored assertion and the credential it holds.
type IssueResult struct {
	Assertion  *models.Assertion
	Credential *credential.Credential
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithAuditor records issue and status changes in the audit trail. Without
// one, they are only written to the service logger.
func WithAuditor(a *audit.Logger) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// WithPurpose selects the status purpose of new credentials.
func WithPurpose(p statusmodels.Purpose) Option {
	return func(s *Service) {
		s.purpose = p
	}
}

// WithContexts sets the @context array given to credentials that arrive
// without one. Order is preserved.
func WithContexts(contexts []string) Option {
	return func(s *Service) {
		if len(contexts) == 0 {
			return
		}
		s.contexts = make([]any, len(contexts))
		for i, c := range contexts {
			s.contexts[i] = c
		}
	}
}

// Service issues and manages assertions.
type Service struct {
	store    store.Store
	contexts []any
	keys     KeyProvider
	status   StatusRegistry
	baker    Baker
	purpose  statusmodels.Purpose
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
	auditor  *audit.Logger
}

// New creates an issuance service. All collaborators are required.
func New(st store.Store, keys KeyProvider, status StatusRegistry, baker Baker, opts ...Option) *Service {
	if st == nil || keys == nil || status == nil || baker == nil {
		panic("issuance.New: store, keys, status and baker are required")
	}
	s := &Service{
		store:    st,
		keys:     keys,
		status:   status,
		baker:    baker,
		purpose:  statusmodels.PurposeRevocation,
		contexts: DefaultContexts,
		now:      time.Now,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.auditor == nil {
		s.auditor = audit.NewLogger(s.logger, nil)
	}
	return s
}

// Issue completes, signs and stores a credential. The status slot is
// reserved and written into credentialStatus before signing so the proof
// covers it.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	if req.IssuerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "issuer ID required")
	}
	if req.Credential == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "credential required")
	}
	c, err := req.Credential.Clone()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "credential cannot be serialized")
	}
	c.Proof = nil
	now := s.now().UTC()
	if err := s.complete(c, req.IssuerID, now); err != nil {
		return nil, err
	}

	var key *keymodels.KeyPair
	if !req.Hosted {
		if key, err = s.keys.GetOrCreateIssuerKey(ctx, req.IssuerID); err != nil {
			return nil, err
		}
	}

	credID := id.CredentialID(c.ID)
	mapping, err := s.status.AllocateForIssuer(ctx, req.IssuerID, s.purpose, credID)
	if err != nil {
		return nil, err
	}
	c.SetStatusEntry(s.status.StatusEntry(mapping, s.purpose))

	if key != nil {
		if c, err = credential.Sign(c, key, now); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "failed to sign credential")
		}
	}
	doc, err := c.MarshalJSON()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "failed to serialize credential")
	}

	assertion := &models.Assertion{
		ID:        credID,
		IssuerID:  req.IssuerID,
		Document:  doc,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Save(ctx, assertion); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			return nil, dErrors.New(dErrors.CodeConflict, "credential id already issued")
		}
		s.logger.ErrorContext(ctx, "assertion not stored after status allocation",
			"credential_id", credID,
			"status_list_id", mapping.StatusListID,
			"bit_index", mapping.BitIndex,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store assertion")
	}

	s.metrics.IncrementCredentialsIssued(c.Generation().String())
	s.auditor.Log(ctx, audit.EventCredentialIssued,
		"credential_id", credID,
		"issuer_id", req.IssuerID,
		"generation", c.Generation().String(),
		"status_list_id", mapping.StatusListID,
		"bit_index", mapping.BitIndex,
	)
	return &IssueResult{Assertion: assertion, Credential: c}, nil
}

// complete fills defaults and rejects credentials that cannot be issued.
func (s *Service) complete(c *credential.Credential, issuerID id.IssuerID, now time.Time) error {
	if c.ID == "" {
		c.ID = id.NewCredentialID().String()
	}
	if len(c.Context) == 0 {
		c.Context = append([]any(nil), s.contexts...)
	}
	for _, t := range []string{credential.TypeVerifiableCredential, credential.TypeOpenBadgeCredential} {
		if !c.HasType(t) {
			c.Type = append(c.Type, t)
		}
	}
	switch given := c.IssuerID(); {
	case c.Issuer == nil:
		c.Issuer = issuerID.String()
	case given != issuerID.String():
		return dErrors.New(dErrors.CodeInvalidInput, "credential issuer does not match issuer ID")
	}
	if c.IssuanceDate == "" {
		c.IssuanceDate = credential.FormatTime(now)
	}
	if c.CredentialStatus != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "credentialStatus is assigned at issuance")
	}
	if _, ok := c.CredentialSubject["achievement"].(map[string]any); !ok {
		return dErrors.New(dErrors.CodeValidation, "credentialSubject.achievement is required")
	}
	if _, _, err := c.Expiration(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid expiration date")
	}
	return nil
}

// Get returns a stored assertion.
func (s *Service) Get(ctx context.Context, assertionID id.CredentialID) (*models.Assertion, error) {
	a, err := s.store.Get(ctx, assertionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "assertion not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load assertion")
	}
	return a, nil
}

// GetAssertion returns the stored document of an assertion.
func (s *Service) GetAssertion(ctx context.Context, assertionID id.CredentialID) ([]byte, error) {
	a, err := s.Get(ctx, assertionID)
	if err != nil {
		return nil, err
	}
	return a.Document, nil
}

// Bake embeds the stored assertion in img.
func (s *Service) Bake(ctx context.Context, assertionID id.CredentialID, img []byte) ([]byte, error) {
	a, err := s.Get(ctx, assertionID)
	if err != nil {
		return nil, err
	}
	return s.baker.Bake(img, a.Document)
}

// Revoke marks the assertion revoked in its status list. Repeating it is a
// no-op that keeps the first reason.
func (s *Service) Revoke(ctx context.Context, assertionID id.CredentialID, reason string) (*statusmodels.CredentialStatus, error) {
	return s.setRevoked(ctx, assertionID, true, reason)
}

// Reinstate clears a revocation.
func (s *Service) Reinstate(ctx context.Context, assertionID id.CredentialID) (*statusmodels.CredentialStatus, error) {
	return s.setRevoked(ctx, assertionID, false, "")
}

func (s *Service) setRevoked(ctx context.Context, assertionID id.CredentialID, revoke bool, reason string) (*statusmodels.CredentialStatus, error) {
	a, err := s.Get(ctx, assertionID)
	if err != nil {
		return nil, err
	}

	var status *statusmodels.CredentialStatus
	if revoke {
		status, err = s.status.Revoke(ctx, assertionID, reason)
	} else {
		status, err = s.status.Reinstate(ctx, assertionID)
	}
	if err != nil {
		return nil, err
	}

	if a.Revoked == status.Revoked {
		return status, nil
	}
	if err := s.store.Update(ctx, assertionID, a.Document, status.Revoked, s.now().UTC()); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update assertion")
	}
	action := audit.EventCredentialReinstated
	if status.Revoked {
		action = audit.EventCredentialRevoked
	}
	s.auditor.Log(ctx, action,
		"credential_id", assertionID,
		"issuer_id", a.IssuerID,
		"status_list_id", status.StatusListID,
		"bit_index", status.BitIndex,
		"reason", status.Reason,
	)
	return status, nil
}
