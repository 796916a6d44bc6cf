// Package verification runs the checks that decide whether a credential is
// valid: structure, signature (proven credentials only), revocation and
// expiration (when the credential expires). Every applicable check runs so
// the result explains every problem at once.
package verification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"openbadges/internal/badge"
	"openbadges/internal/credential"
	keymodels "openbadges/internal/keys/models"
	"openbadges/internal/platform/metrics"
	"openbadges/internal/platform/tracer"
	"openbadges/internal/verification/ports"
	id "openbadges/pkg/domain"
	dErrors "openbadges/pkg/domain-errors"
)

// Service verifies credentials.
type Service struct {
	keys       ports.KeyResolver
	status     ports.StatusChecker
	assertions ports.AssertionSource
	extractor  ports.BadgeExtractor
	now        func() time.Time
	tracer     tracer.Tracer
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures the Service.
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

// WithClock overrides the time used for expiration checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithAssertionSource enables VerifyAssertion.
func WithAssertionSource(src ports.AssertionSource) Option {
	return func(s *Service) {
		s.assertions = src
	}
}

// WithBadgeExtractor replaces the codec used by VerifyImage.
func WithBadgeExtractor(x ports.BadgeExtractor) Option {
	return func(s *Service) {
		if x != nil {
			s.extractor = x
		}
	}
}

// New creates a verification service. Both ports are required.
func New(keys ports.KeyResolver, status ports.StatusChecker, opts ...Option) *Service {
	if keys == nil {
		panic("verification.New: key resolver is required")
	}
	if status == nil {
		panic("verification.New: status checker is required")
	}
	s := &Service{
		keys:      keys,
		status:    status,
		extractor: badge.NewCodec(),
		now:       time.Now,
		tracer:    tracer.NewNoop(),
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify parses data as a credential and verifies it. A document that does
// not parse yields a result with a failed structure check.
func (s *Service) Verify(ctx context.Context, data []byte) *Result {
	c, err := credential.Parse(data)
	if err != nil {
		res := &Result{Generation: "unknown"}
		res.fail("credential could not be parsed: " + err.Error())
		res.finish()
		s.metrics.ObserveVerification(res.Generation, false, 0)
		return res
	}
	return s.VerifyCredential(ctx, c)
}

// VerifyCredential runs every applicable check against c. The generation is
// chosen by proof presence: proven credentials get a signature check, legacy
// ones never do.
func (s *Service) VerifyCredential(ctx context.Context, c *credential.Credential) *Result {
	start := time.Now()
	gen := c.Generation()
	ctx, span := s.tracer.Start(ctx, tracer.SpanVerify,
		tracer.String(tracer.AttrCredentialID, c.ID),
		tracer.String(tracer.AttrGeneration, gen.String()),
	)

	res := &Result{Generation: gen.String()}
	res.Checks.Structure = s.run(ctx, tracer.SpanCheckStructure, func(ctx context.Context) bool {
		return s.checkStructure(c, res)
	})
	if gen == credential.GenerationProven {
		res.Checks.Signature = ptr(s.run(ctx, tracer.SpanCheckSignature, func(ctx context.Context) bool {
			return s.checkSignature(ctx, c, res)
		}))
	}
	res.Checks.Revocation = ptr(s.run(ctx, tracer.SpanCheckRevocation, func(ctx context.Context) bool {
		return s.checkRevocation(ctx, c, res)
	}))
	if _, expires, _ := c.Expiration(); expires {
		res.Checks.Expiration = ptr(s.run(ctx, tracer.SpanCheckExpiration, func(context.Context) bool {
			return s.checkExpiration(c, res)
		}))
	}
	res.finish()

	span.SetAttributes(
		tracer.Bool(tracer.AttrValid, res.Valid),
		tracer.Int64(tracer.AttrErrorCount, int64(len(res.Errors))),
	)
	span.End(nil)

	s.metrics.ObserveVerification(res.Generation, res.Valid, time.Since(start).Seconds())
	s.logger.DebugContext(ctx, "credential verified",
		"credential_id", c.ID,
		"generation", res.Generation,
		"valid", res.Valid,
		"errors", len(res.Errors),
		"warnings", len(res.Warnings),
	)
	return res
}

// VerifyImage extracts the credential baked into img and verifies it.
// Extraction failures, including an image with no payload, are returned as
// errors since no verification could be attempted.
func (s *Service) VerifyImage(ctx context.Context, img []byte) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanExtractBadge,
		tracer.String(tracer.AttrImageKind, badge.Sniff(img).String()),
	)
	payload, err := s.extractor.Extract(img)
	span.End(err)
	if err != nil {
		return nil, err
	}
	return s.Verify(ctx, payload), nil
}

// VerifyAssertion verifies a stored assertion by id.
func (s *Service) VerifyAssertion(ctx context.Context, assertionID id.CredentialID) (*Result, error) {
	if s.assertions == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "assertion source not configured")
	}
	ctx, span := s.tracer.Start(ctx, tracer.SpanResolveAssertion,
		tracer.String(tracer.AttrCredentialID, assertionID.String()),
	)
	doc, err := s.assertions.GetAssertion(ctx, assertionID)
	span.End(err)
	if err != nil {
		return nil, err
	}
	return s.Verify(ctx, doc), nil
}

func (s *Service) run(ctx context.Context, name string, check func(context.Context) bool) bool {
	ctx, span := s.tracer.Start(ctx, name)
	passed := check(ctx)
	span.SetAttributes(tracer.Bool(tracer.AttrPassed, passed))
	span.End(nil)
	return passed
}

func (s *Service) checkStructure(c *credential.Credential, res *Result) bool {
	errs, warnings := structureProblems(c)
	for _, e := range errs {
		res.fail("structure: " + e)
	}
	for _, w := range warnings {
		res.warn(w)
	}
	issued := c.IssuanceDate
	if v, ok := c.Extension(credential.LegacyIssuedOn); ok && issued == "" {
		issued, _ = v.(string)
	}
	if t, err := credential.ParseTime(issued); err == nil && t.After(s.now()) {
		res.warn("issuance date is in the future")
	}
	return len(errs) == 0
}

// checkSignature resolves the proof's key and verifies the proof. A revoked
// key fails the check; a rotated key still verifies what it signed.
func (s *Service) checkSignature(ctx context.Context, c *credential.Credential, res *Result) bool {
	vm := c.Proof.VerificationMethod
	if vm == "" {
		res.fail("signature: proof has no verificationMethod")
		return false
	}

	key, err := s.keys.ResolveVerificationMethod(ctx, vm)
	if err != nil {
		switch {
		case dErrors.HasCode(err, dErrors.CodeNotFound), dErrors.HasCode(err, dErrors.CodeInvalidInput):
			res.fail(fmt.Sprintf("signature: verification method %s is not known", vm))
		default:
			s.logger.WarnContext(ctx, "verification method lookup failed", "verification_method", vm, "error", err)
			res.fail("signature: signing key could not be resolved")
		}
		return false
	}

	if key.Status == keymodels.KeyStatusRevoked {
		res.fail("signature: signing key has been revoked")
		return false
	}
	if issuer := c.IssuerID(); issuer != key.IssuerID.String() && issuer != key.ControllerID {
		res.fail(fmt.Sprintf("signature: issuer %q does not control %s", issuer, vm))
		return false
	}

	outcome := credential.Verify(c, key.PublicKey)
	if !outcome.Valid {
		msg := "signature: " + string(outcome.Reason)
		if outcome.Err != nil {
			msg += ": " + outcome.Err.Error()
		}
		res.fail(msg)
		return false
	}
	if key.Status == keymodels.KeyStatusRotated {
		res.warn("signed with a key that has since been rotated")
	}
	return true
}

// checkRevocation consults the status list. A credential with no status
// recorded anywhere passes with a warning; a lookup failure fails closed.
func (s *Service) checkRevocation(ctx context.Context, c *credential.Credential, res *Result) bool {
	var entry *credential.StatusEntry
	e, ok, err := c.StatusEntry()
	if err != nil {
		res.fail("revocation: " + err.Error())
		return false
	}
	if ok {
		entry = &e
	}

	status, err := s.status.CheckCredential(ctx, id.CredentialID(c.ID), entry)
	switch {
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		res.warn("no revocation status is recorded for this credential")
		return true
	case err != nil:
		s.logger.WarnContext(ctx, "revocation lookup failed", "credential_id", c.ID, "error", err)
		res.fail("revocation: status could not be determined")
		return false
	}

	if status.Revoked {
		msg := "credential has been revoked"
		if entry != nil && entry.StatusPurpose == "suspension" {
			msg = "credential has been suspended"
		}
		if status.Reason != "" {
			msg += ": " + status.Reason
		}
		res.fail(msg)
		return false
	}
	return true
}

func (s *Service) checkExpiration(c *credential.Credential, res *Result) bool {
	exp, _, err := c.Expiration()
	if err != nil {
		res.fail("expiration: " + err.Error())
		return false
	}
	if !s.now().Before(exp) {
		res.fail("credential expired at " + credential.FormatTime(exp))
		return false
	}
	return true
}
