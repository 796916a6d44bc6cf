package verification

//go:generate mockgen -source=ports/ports.go -destination=mocks/mocks.go -package=mocks KeyResolver,StatusChecker,AssertionSource

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"openbadges/internal/badge"
	"openbadges/internal/credential"
	"openbadges/internal/keys/didkey"
	keymodels "openbadges/internal/keys/models"
	statusmodels "openbadges/internal/statuslist/models"
	"openbadges/internal/verification/mocks"
	id "openbadges/pkg/domain"
	dErrors "openbadges/pkg/domain-errors"
	"openbadges/pkg/testutil"
)

const (
	issuerID  = "https://issuer.example"
	listURL   = "https://badges.example/v1/status-lists/3f1c2a44-8a4e-4f0c-9a61-0b7c1d2e3f40"
	legacyDoc = `{
		"@context": "https://w3id.org/openbadges/v2",
		"type": "Assertion",
		"id": "https://issuer.example/assertions/1",
		"recipient": {"type": "email", "hashed": false, "identity": "learner@example.org"},
		"badge": "https://issuer.example/badges/coding",
		"verification": {"type": "hosted"},
		"issuedOn": "2024-01-01T00:00:00Z"
	}`
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type VerificationSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	keys     *mocks.MockKeyResolver
	status   *mocks.MockStatusChecker
	service  *Service
	pair     keymodels.KeyPair
	resolved *keymodels.ResolvedKey
}

func TestVerificationSuite(t *testing.T) {
	suite.Run(t, new(VerificationSuite))
}

func (s *VerificationSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.keys = mocks.NewMockKeyResolver(s.ctrl)
	s.status = mocks.NewMockStatusChecker(s.ctrl)
	s.service = New(s.keys, s.status, WithClock(func() time.Time { return fixedNow }))

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)
	s.pair = keymodels.KeyPair{
		ID:           id.NewKeyID(),
		IssuerID:     issuerID,
		Algorithm:    keymodels.AlgorithmEd25519,
		PublicKey:    pub,
		PrivateKey:   priv,
		ControllerID: didkey.DeriveControllerID(pub),
	}
	s.resolved = &keymodels.ResolvedKey{
		KeyID:        s.pair.ID,
		IssuerID:     issuerID,
		ControllerID: s.pair.ControllerID,
		PublicKey:    pub,
		Status:       keymodels.KeyStatusActive,
	}
}

func (s *VerificationSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *VerificationSuite) unsigned() *credential.Credential {
	return testutil.NewCredentialBuilder().
		WithRevocationEntry(listURL, 42).
		Build()
}

func (s *VerificationSuite) sign(c *credential.Credential) *credential.Credential {
	signed, err := credential.Sign(c, s.pair, fixedNow.Add(-time.Hour))
	s.Require().NoError(err)
	return signed
}

func (s *VerificationSuite) expectKey() {
	s.keys.EXPECT().ResolveVerificationMethod(gomock.Any(), s.pair.VerificationMethod()).Return(s.resolved, nil)
}

func (s *VerificationSuite) expectStatus(revoked bool, reason string) {
	s.status.EXPECT().CheckCredential(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&statusmodels.CredentialStatus{Revoked: revoked, Reason: reason}, nil)
}

func (s *VerificationSuite) TestValidProvenCredential() {
	c := s.sign(s.unsigned())
	s.expectKey()
	s.status.EXPECT().
		CheckCredential(gomock.Any(), id.CredentialID(c.ID), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ id.CredentialID, entry *credential.StatusEntry) (*statusmodels.CredentialStatus, error) {
			s.Require().NotNil(entry)
			s.Equal(42, entry.StatusListIndex)
			return &statusmodels.CredentialStatus{}, nil
		})

	res := s.service.VerifyCredential(context.Background(), c)

	s.True(res.Valid, "errors: %v", res.Errors)
	s.Equal("proven", res.Generation)
	s.True(res.Checks.Structure)
	s.Require().NotNil(res.Checks.Signature)
	s.True(*res.Checks.Signature)
	s.Require().NotNil(res.Checks.Revocation)
	s.True(*res.Checks.Revocation)
	s.Nil(res.Checks.Expiration, "no expirationDate, no expiration check")
	s.Empty(res.Errors)
}

func (s *VerificationSuite) TestTamperedCredentialRunsEveryCheck() {
	c := s.sign(s.unsigned())
	c.CredentialSubject["achievement"].(map[string]any)["name"] = "Coding!"
	s.expectKey()
	s.expectStatus(true, "misconduct")

	res := s.service.VerifyCredential(context.Background(), c)

	s.False(res.Valid)
	s.True(res.Checks.Structure)
	s.False(*res.Checks.Signature)
	s.False(*res.Checks.Revocation)
	s.Contains(res.Errors, "signature: "+string(credential.ReasonSignatureMismatch))
	s.Contains(res.Errors, "credential has been revoked: misconduct")
}

func (s *VerificationSuite) TestLegacyRevoked() {
	s.status.EXPECT().
		CheckCredential(gomock.Any(), id.CredentialID("https://issuer.example/assertions/1"), (*credential.StatusEntry)(nil)).
		Return(&statusmodels.CredentialStatus{Revoked: true}, nil)

	res := s.service.Verify(context.Background(), []byte(legacyDoc))

	s.False(res.Valid)
	s.Equal("legacy", res.Generation)
	s.True(res.Checks.Structure, "errors: %v", res.Errors)
	s.Nil(res.Checks.Signature)
	s.Require().NotNil(res.Checks.Revocation)
	s.False(*res.Checks.Revocation)
	s.Nil(res.Checks.Expiration)
}

func (s *VerificationSuite) TestLegacyWithoutStatus() {
	s.status.EXPECT().CheckCredential(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeNotFound, "credential has no status entry"))

	res := s.service.Verify(context.Background(), []byte(legacyDoc))

	s.True(res.Valid, "errors: %v", res.Errors)
	s.True(*res.Checks.Revocation)
	s.Contains(res.Warnings, "no revocation status is recorded for this credential")
}

func (s *VerificationSuite) TestAutoDetection() {
	s.Run("proof present always yields a signature check", func() {
		c := s.sign(s.unsigned())
		s.keys.EXPECT().ResolveVerificationMethod(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "unknown verification method"))
		s.expectStatus(false, "")

		res := s.service.VerifyCredential(context.Background(), c)
		s.Require().NotNil(res.Checks.Signature)
		s.False(*res.Checks.Signature)
		s.False(res.Valid)
	})

	s.Run("no proof never yields a signature check", func() {
		s.expectStatus(false, "")
		res := s.service.VerifyCredential(context.Background(), s.unsigned())
		s.Nil(res.Checks.Signature)
		s.Equal("legacy", res.Generation)
	})
}

func (s *VerificationSuite) TestExpiration() {
	s.Run("expired", func() {
		c := s.unsigned()
		c.ExpirationDate = "2025-05-01T00:00:00Z"
		c = s.sign(c)
		s.expectKey()
		s.expectStatus(false, "")

		res := s.service.VerifyCredential(context.Background(), c)
		s.False(res.Valid)
		s.Require().NotNil(res.Checks.Expiration)
		s.False(*res.Checks.Expiration)
		s.True(*res.Checks.Signature)
		s.Contains(res.Errors, "credential expired at 2025-05-01T00:00:00Z")
	})

	s.Run("not yet expired", func() {
		c := s.unsigned()
		c.ExpirationDate = "2026-05-01T00:00:00Z"
		c = s.sign(c)
		s.expectKey()
		s.expectStatus(false, "")

		res := s.service.VerifyCredential(context.Background(), c)
		s.True(res.Valid, "errors: %v", res.Errors)
		s.True(*res.Checks.Expiration)
	})

	s.Run("legacy expires member", func() {
		c, err := credential.Parse([]byte(legacyDoc))
		s.Require().NoError(err)
		c.SetExtension(credential.LegacyExpires, "2024-06-01")
		s.expectStatus(false, "")

		res := s.service.VerifyCredential(context.Background(), c)
		s.Require().NotNil(res.Checks.Expiration)
		s.False(*res.Checks.Expiration)
	})
}

func (s *VerificationSuite) TestKeyPolicy() {
	s.Run("revoked key fails", func() {
		c := s.sign(s.unsigned())
		revoked := *s.resolved
		revoked.Status = keymodels.KeyStatusRevoked
		s.keys.EXPECT().ResolveVerificationMethod(gomock.Any(), gomock.Any()).Return(&revoked, nil)
		s.expectStatus(false, "")

		res := s.service.VerifyCredential(context.Background(), c)
		s.False(*res.Checks.Signature)
		s.Contains(res.Errors, "signature: signing key has been revoked")
	})

	s.Run("rotated key still verifies", func() {
		c := s.sign(s.unsigned())
		rotated := *s.resolved
		rotated.Status = keymodels.KeyStatusRotated
		s.keys.EXPECT().ResolveVerificationMethod(gomock.Any(), gomock.Any()).Return(&rotated, nil)
		s.expectStatus(false, "")

		res := s.service.VerifyCredential(context.Background(), c)
		s.True(res.Valid, "errors: %v", res.Errors)
		s.Contains(res.Warnings, "signed with a key that has since been rotated")
	})

	s.Run("key of another issuer", func() {
		c := s.unsigned()
		c.Issuer = "https://impostor.example"
		c = s.sign(c)
		s.expectKey()
		s.expectStatus(false, "")

		res := s.service.VerifyCredential(context.Background(), c)
		s.False(*res.Checks.Signature)
	})

	s.Run("resolver outage fails closed", func() {
		c := s.sign(s.unsigned())
		s.keys.EXPECT().ResolveVerificationMethod(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.Wrap(errors.New("connection refused"), dErrors.CodeInternal, "failed to resolve verification method"))
		s.expectStatus(false, "")

		res := s.service.VerifyCredential(context.Background(), c)
		s.False(*res.Checks.Signature)
		s.Contains(res.Errors, "signature: signing key could not be resolved")
	})
}

func (s *VerificationSuite) TestRevocationFailsClosed() {
	c := s.sign(s.unsigned())
	s.expectKey()
	s.status.EXPECT().CheckCredential(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, dErrors.Wrap(errors.New("timeout"), dErrors.CodeInternal, "failed to load status list"))

	res := s.service.VerifyCredential(context.Background(), c)
	s.False(res.Valid)
	s.False(*res.Checks.Revocation)
	s.True(*res.Checks.Signature)
}

func (s *VerificationSuite) TestStructure() {
	s.Run("unparseable document", func() {
		res := s.service.Verify(context.Background(), []byte(`{"id":`))
		s.False(res.Valid)
		s.False(res.Checks.Structure)
		s.Equal("unknown", res.Generation)
		s.Len(res.Errors, 1)
		s.NotNil(res.Warnings)
	})

	s.Run("missing fields still run other checks", func() {
		c := s.unsigned()
		c.IssuanceDate = ""
		delete(c.CredentialSubject, "achievement")
		c = s.sign(c)
		s.expectKey()
		s.expectStatus(false, "")

		res := s.service.VerifyCredential(context.Background(), c)
		s.False(res.Checks.Structure)
		s.True(*res.Checks.Signature)
		s.Contains(res.Errors, "structure: missing issuanceDate")
		s.Contains(res.Errors, "structure: missing credentialSubject.achievement")
	})

	s.Run("unknown member is a warning", func() {
		c := s.unsigned()
		c.SetExtension("favouriteColour", "teal")
		c = s.sign(c)
		s.expectKey()
		s.expectStatus(false, "")

		res := s.service.VerifyCredential(context.Background(), c)
		s.True(res.Valid, "errors: %v", res.Errors)
		s.Contains(res.Warnings, `unrecognized member "favouriteColour" ignored`)
	})

	s.Run("bad credentialStatus fails revocation", func() {
		c := s.unsigned()
		c.CredentialStatus["statusListIndex"] = "forty-two"
		c = s.sign(c)
		s.expectKey()

		res := s.service.VerifyCredential(context.Background(), c)
		s.False(*res.Checks.Revocation)
		s.False(res.Valid)
	})
}

func (s *VerificationSuite) TestVerifyImage() {
	c := s.sign(s.unsigned())
	payload, err := c.MarshalJSON()
	s.Require().NoError(err)

	var src bytes.Buffer
	s.Require().NoError(png.Encode(&src, image.NewGray(image.Rect(0, 0, 16, 16))))
	baked, err := badge.Bake(src.Bytes(), payload)
	s.Require().NoError(err)

	s.expectKey()
	s.expectStatus(false, "")
	res, err := s.service.VerifyImage(context.Background(), baked)
	s.Require().NoError(err)
	s.True(res.Valid, "errors: %v", res.Errors)

	s.Run("image without a badge", func() {
		_, err := s.service.VerifyImage(context.Background(), src.Bytes())
		s.ErrorIs(err, badge.ErrNotFound)
	})
}

func (s *VerificationSuite) TestVerifyAssertion() {
	assertions := mocks.NewMockAssertionSource(s.ctrl)
	svc := New(s.keys, s.status, WithClock(func() time.Time { return fixedNow }), WithAssertionSource(assertions))

	assertions.EXPECT().GetAssertion(gomock.Any(), id.CredentialID("https://issuer.example/assertions/1")).Return([]byte(legacyDoc), nil)
	s.expectStatus(false, "")
	res, err := svc.VerifyAssertion(context.Background(), "https://issuer.example/assertions/1")
	s.Require().NoError(err)
	s.True(res.Valid, "errors: %v", res.Errors)

	assertions.EXPECT().GetAssertion(gomock.Any(), gomock.Any()).Return(nil, dErrors.New(dErrors.CodeNotFound, "assertion not found"))
	_, err = svc.VerifyAssertion(context.Background(), "urn:uuid:missing")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.VerifyAssertion(context.Background(), "urn:uuid:any")
	s.Error(err)
}
