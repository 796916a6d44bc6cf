package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"openbadges/internal/badge"
	"openbadges/internal/credential"
	issuancestore "openbadges/internal/issuance/store"
	"openbadges/internal/keys/envelope"
	keyservice "openbadges/internal/keys/service"
	keystore "openbadges/internal/keys/store"
	"openbadges/internal/platform/config"
	statusservice "openbadges/internal/statuslist/service"
	statusstore "openbadges/internal/statuslist/store"
	"openbadges/internal/verification"
	id "openbadges/pkg/domain"
	dErrors "openbadges/pkg/domain-errors"
	"openbadges/pkg/platform/audit"
	"openbadges/pkg/platform/audit/publisher"
	auditstore "openbadges/pkg/platform/audit/store/memory"
	"openbadges/pkg/platform/middleware/admin"
	"openbadges/pkg/testutil"
)

const issuer = id.IssuerID("https://issuer.example")

type IssuanceSuite struct {
	suite.Suite
	keys     *keyservice.Manager
	status   *statusservice.Service
	service  *Service
	verifier *verification.Service
}

func TestIssuanceSuite(t *testing.T) {
	suite.Run(t, new(IssuanceSuite))
}

func (s *IssuanceSuite) SetupTest() {
	master := make([]byte, 32)
	_, err := rand.Read(master)
	s.Require().NoError(err)
	env, err := envelope.NewAESGCM(master)
	s.Require().NoError(err)

	s.keys = keyservice.NewManager(keystore.NewInMemoryStore(), env)
	s.status = statusservice.New(statusstore.NewInMemoryStore(), s.keys, statusservice.Config{
		BaseURL:       "https://badges.example/v1/status-lists",
		DefaultLength: 64,
	})
	s.service = New(issuancestore.NewInMemoryStore(), s.keys, s.status, badge.NewCodec())
	s.verifier = verification.New(s.keys, s.status, verification.WithAssertionSource(s.service))
}

func achievement(name string) *credential.Credential {
	return testutil.NewIssueRequestBuilder().WithAchievement(name).Build()
}

func (s *IssuanceSuite) TestIssueProvenCredential() {
	ctx := context.Background()
	res, err := s.service.Issue(ctx, IssueRequest{IssuerID: issuer, Credential: achievement("Coding")})
	s.Require().NoError(err)

	c := res.Credential
	s.Require().NotNil(c.Proof)
	s.Equal(credential.GenerationProven, c.Generation())
	s.Equal(issuer.String(), c.IssuerID())
	s.True(c.HasType(credential.TypeOpenBadgeCredential))

	entry, ok, err := c.StatusEntry()
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal("revocation", entry.StatusPurpose)

	key, err := s.keys.GetOrCreateIssuerKey(ctx, issuer)
	s.Require().NoError(err)
	s.Equal(key.VerificationMethod(), c.Proof.VerificationMethod)

	result, err := s.verifier.VerifyAssertion(ctx, res.Assertion.ID)
	s.Require().NoError(err)
	s.True(result.Valid, "errors: %v", result.Errors)
	s.Require().NotNil(result.Checks.Signature)
	s.True(*result.Checks.Signature)
	s.Empty(result.Warnings)
}

func (s *IssuanceSuite) TestIssueHostedCredential() {
	ctx := context.Background()
	res, err := s.service.Issue(ctx, IssueRequest{IssuerID: issuer, Credential: achievement("Hosting"), Hosted: true})
	s.Require().NoError(err)
	s.Nil(res.Credential.Proof)

	result, err := s.verifier.VerifyAssertion(ctx, res.Assertion.ID)
	s.Require().NoError(err)
	s.True(result.Valid, "errors: %v", result.Errors)
	s.Equal("legacy", result.Generation)
	s.Nil(result.Checks.Signature)
}

func (s *IssuanceSuite) TestRevokeAndReinstate() {
	ctx := context.Background()
	res, err := s.service.Issue(ctx, IssueRequest{IssuerID: issuer, Credential: achievement("Coding")})
	s.Require().NoError(err)
	assertionID := res.Assertion.ID

	status, err := s.service.Revoke(ctx, assertionID, "issued in error")
	s.Require().NoError(err)
	s.True(status.Revoked)

	stored, err := s.service.Get(ctx, assertionID)
	s.Require().NoError(err)
	s.True(stored.Revoked)
	s.Equal(res.Assertion.Document, stored.Document, "revocation never rewrites the signed document")

	result, err := s.verifier.VerifyAssertion(ctx, assertionID)
	s.Require().NoError(err)
	s.False(result.Valid)
	s.True(*result.Checks.Signature)
	s.False(*result.Checks.Revocation)
	s.Contains(result.Errors, "credential has been revoked: issued in error")

	s.Run("second revoke is a no-op", func() {
		again, err := s.service.Revoke(ctx, assertionID, "other reason")
		s.Require().NoError(err)
		s.True(again.Revoked)
		s.Equal("issued in error", again.Reason)
	})

	s.Run("reinstate", func() {
		status, err := s.service.Reinstate(ctx, assertionID)
		s.Require().NoError(err)
		s.False(status.Revoked)

		result, err := s.verifier.VerifyAssertion(ctx, assertionID)
		s.Require().NoError(err)
		s.True(result.Valid, "errors: %v", result.Errors)
	})

	s.Run("unknown assertion", func() {
		_, err := s.service.Revoke(ctx, "urn:uuid:nope", "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *IssuanceSuite) TestBakeAndVerifyImage() {
	ctx := context.Background()
	res, err := s.service.Issue(ctx, IssueRequest{IssuerID: issuer, Credential: achievement("Baking")})
	s.Require().NoError(err)

	var src bytes.Buffer
	s.Require().NoError(png.Encode(&src, image.NewGray(image.Rect(0, 0, 16, 16))))
	baked, err := s.service.Bake(ctx, res.Assertion.ID, src.Bytes())
	s.Require().NoError(err)

	extracted, err := badge.Extract(baked)
	s.Require().NoError(err)
	s.Equal(string(res.Assertion.Document), string(extracted))

	result, err := s.verifier.VerifyImage(ctx, baked)
	s.Require().NoError(err)
	s.True(result.Valid, "errors: %v", result.Errors)

	_, err = s.service.Bake(ctx, res.Assertion.ID, []byte("GIF89a"))
	s.True(dErrors.HasCode(err, dErrors.CodeUnsupportedMedia))
}

func (s *IssuanceSuite) TestIssueRejects() {
	ctx := context.Background()

	s.Run("missing achievement", func() {
		_, err := s.service.Issue(ctx, IssueRequest{IssuerID: issuer, Credential: &credential.Credential{}})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("issuer mismatch", func() {
		c := achievement("x")
		c.Issuer = "https://someone.else"
		_, err := s.service.Issue(ctx, IssueRequest{IssuerID: issuer, Credential: c})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("preset credentialStatus", func() {
		c := achievement("x")
		c.CredentialStatus = map[string]any{"id": "elsewhere"}
		_, err := s.service.Issue(ctx, IssueRequest{IssuerID: issuer, Credential: c})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("missing issuer", func() {
		_, err := s.service.Issue(ctx, IssueRequest{Credential: achievement("x")})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("duplicate id", func() {
		c := achievement("x")
		c.ID = "urn:uuid:0b5f8a4e-fixed"
		_, err := s.service.Issue(ctx, IssueRequest{IssuerID: issuer, Credential: c})
		s.Require().NoError(err)
		_, err = s.service.Issue(ctx, IssueRequest{IssuerID: issuer, Credential: c})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *IssuanceSuite) TestConcurrentIssuance() {
	ctx := context.Background()
	outcomes := testutil.Collect(40, func(idx int) (*IssueResult, error) {
		return s.service.Issue(ctx, IssueRequest{IssuerID: issuer, Credential: achievement(fmt.Sprintf("badge-%d", idx))})
	})

	slots := make(map[string]bool)
	methods := make(map[string]bool)
	for _, o := range outcomes {
		s.Require().NoError(o.Err)
		entry, ok, err := o.Value.Credential.StatusEntry()
		s.Require().NoError(err)
		s.Require().True(ok)
		slot := entry.ID
		s.False(slots[slot], "slot %s assigned twice", slot)
		slots[slot] = true
		methods[o.Value.Credential.Proof.VerificationMethod] = true
	}
	s.Len(slots, 40)
	s.Len(methods, 1, "all credentials signed by the one issuer key")
}

func (s *IssuanceSuite) TestClockIsUsedForIssuanceDate() {
	fixed := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	svc := New(issuancestore.NewInMemoryStore(), s.keys, s.status, badge.NewCodec(), WithClock(func() time.Time { return fixed }))
	res, err := svc.Issue(context.Background(), IssueRequest{IssuerID: issuer, Credential: achievement("x")})
	s.Require().NoError(err)
	s.Equal("2025-03-04T05:06:07Z", res.Credential.IssuanceDate)
	s.Equal("2025-03-04T05:06:07Z", res.Credential.Proof.Created)
}

func (s *IssuanceSuite) TestConfiguredContextsKeepOrder() {
	contexts := []string{
		credential.ContextCredentialsV1,
		"https://purl.imsglobal.org/spec/ob/v3p0/context.json",
		credential.ContextStatusList2021,
	}
	svc := New(issuancestore.NewInMemoryStore(), s.keys, s.status, badge.NewCodec(), WithContexts(contexts))

	res, err := svc.Issue(context.Background(), IssueRequest{IssuerID: issuer, Credential: achievement("ctx")})
	s.Require().NoError(err)
	s.Equal([]any{contexts[0], contexts[1], contexts[2]}, res.Credential.Context)

	result := s.verifier.VerifyCredential(context.Background(), res.Credential)
	s.True(result.Valid, "errors: %v", result.Errors)
}

func (s *IssuanceSuite) TestDefaultContextsMatchConfig() {
	svc := New(issuancestore.NewInMemoryStore(), s.keys, s.status, badge.NewCodec())
	res, err := svc.Issue(context.Background(), IssueRequest{IssuerID: issuer, Credential: achievement("defaults")})
	s.Require().NoError(err)

	want := make([]any, 0, len(config.DefaultContexts))
	for _, c := range config.DefaultContexts {
		want = append(want, c)
	}
	s.Equal(want, res.Credential.Context)
	s.Contains(res.Credential.Context, any(credential.ContextOpenBadgesV3))
}

func (s *IssuanceSuite) TestAuditTrail() {
	trail := auditstore.NewInMemoryStore()
	auditor := audit.NewLogger(nil, publisher.NewPublisher(trail))
	svc := New(issuancestore.NewInMemoryStore(), s.keys, s.status, badge.NewCodec(), WithAuditor(auditor))
	ctx := context.WithValue(context.Background(), admin.ContextKeyAdminActorID, "ops@example.org")

	res, err := svc.Issue(ctx, IssueRequest{IssuerID: issuer, Credential: achievement("audited")})
	s.Require().NoError(err)
	credID := res.Assertion.ID

	_, err = svc.Revoke(ctx, credID, "issued in error")
	s.Require().NoError(err)
	_, err = svc.Revoke(ctx, credID, "again")
	s.Require().NoError(err)
	_, err = svc.Reinstate(ctx, credID)
	s.Require().NoError(err)

	events, err := trail.ListRecent(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(events, 3, "repeated revoke records nothing")
	s.Equal(string(audit.EventCredentialReinstated), events[0].Action)
	s.Equal(string(audit.EventCredentialRevoked), events[1].Action)
	s.Equal("issued in error", events[1].Reason)
	s.Equal(string(audit.EventCredentialIssued), events[2].Action)
	for _, e := range events {
		s.Equal(credID.String(), e.CredentialID)
		s.Equal(issuer.String(), e.IssuerID)
		s.Equal("ops@example.org", e.ActorID)
		s.NotEmpty(e.StatusListID)
	}
}
