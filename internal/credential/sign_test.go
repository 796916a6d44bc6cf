package credential

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type SignSuite struct {
	suite.Suite
	pub    ed25519.PublicKey
	signer Ed25519Signer
	now    time.Time
}

func TestSignSuite(t *testing.T) {
	suite.Run(t, new(SignSuite))
}

func (s *SignSuite) SetupTest() {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)
	s.pub = pub
	s.signer = Ed25519Signer{PrivateKey: priv, Method: "did:key:zTest#zTest"}
	s.now = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
}

func (s *SignSuite) parse(doc string) *Credential {
	c, err := Parse([]byte(doc))
	s.Require().NoError(err)
	return c
}

func (s *SignSuite) TestSignAndVerify() {
	c := s.parse(`{"id":"urn:x","type":["VerifiableCredential"],"credentialSubject":{"achievement":{"name":"Coding"}}}`)

	signed, err := Sign(c, s.signer, s.now)
	s.Require().NoError(err)
	s.Nil(c.Proof, "input must not be modified")

	s.Require().NotNil(signed.Proof)
	s.Equal(ProofTypeEd25519, signed.Proof.Type)
	s.Equal("2026-02-03T04:05:06Z", signed.Proof.Created)
	s.Equal("did:key:zTest#zTest", signed.Proof.VerificationMethod)
	s.Equal(ProofPurposeAssertion, signed.Proof.ProofPurpose)
	s.NotContains(signed.Proof.ProofValue, "=")

	s.True(Verify(signed, s.pub).Valid)

	s.Run("nested tamper is detected", func() {
		tampered, err := signed.Clone()
		s.Require().NoError(err)
		achievement := tampered.CredentialSubject["achievement"].(map[string]any)
		achievement["name"] = "Coding!"

		outcome := Verify(tampered, s.pub)
		s.False(outcome.Valid)
		s.Equal(ReasonSignatureMismatch, outcome.Reason)
	})

	s.Run("survives a serialization round trip", func() {
		data, err := signed.MarshalJSON()
		s.Require().NoError(err)
		s.True(Verify(s.parse(string(data)), s.pub).Valid)
	})
}

func (s *SignSuite) TestEveryFieldIsCovered() {
	base := s.parse(`{
		"@context": ["https://www.w3.org/2018/credentials/v1"],
		"id": "urn:uuid:1",
		"type": ["VerifiableCredential", "OpenBadgeCredential"],
		"issuer": "did:key:zIssuer",
		"issuanceDate": "2026-01-01T00:00:00Z",
		"expirationDate": "2027-01-01T00:00:00Z",
		"credentialSubject": {"id": "did:example:alice", "achievement": {"name": "Go", "criteria": {"narrative": "ship it"}}},
		"credentialStatus": {"id": "s#1", "type": "StatusList2021Entry", "statusListIndex": "1"},
		"credentialSchema": {"id": "https://schema", "type": "JsonSchema"},
		"evidence": [{"id": "e1"}]
	}`)
	signed, err := Sign(base, s.signer, s.now)
	s.Require().NoError(err)

	mutations := map[string]func(c *Credential){
		"context":    func(c *Credential) { c.Context = append(c.Context, "https://extra") },
		"id":         func(c *Credential) { c.ID = "urn:uuid:2" },
		"type":       func(c *Credential) { c.Type = c.Type[:1] },
		"issuer":     func(c *Credential) { c.Issuer = "did:key:zOther" },
		"issuance":   func(c *Credential) { c.IssuanceDate = "2026-01-02T00:00:00Z" },
		"expiration": func(c *Credential) { c.ExpirationDate = "" },
		"deep subject": func(c *Credential) {
			c.CredentialSubject["achievement"].(map[string]any)["criteria"].(map[string]any)["narrative"] = "ship it!"
		},
		"status": func(c *Credential) { c.CredentialStatus["statusListIndex"] = "2" },
		"schema": func(c *Credential) { c.CredentialSchema = nil },
		"extension": func(c *Credential) {
			c.Extensions["evidence"] = []any{map[string]any{"id": "e2"}}
		},
		"added extension": func(c *Credential) { c.SetExtension("note", "x") },
	}

	for name, mutate := range mutations {
		s.Run(name, func() {
			tampered, err := signed.Clone()
			s.Require().NoError(err)
			mutate(tampered)
			s.False(Verify(tampered, s.pub).Valid)
		})
	}
}

func (s *SignSuite) TestResigningReplacesProof() {
	c := s.parse(`{"id":"urn:x","proof":{"type":"Ed25519Signature2020","proofValue":"stale"}}`)
	signed, err := Sign(c, s.signer, s.now)
	s.Require().NoError(err)
	s.NotEqual("stale", signed.Proof.ProofValue)
	s.True(Verify(signed, s.pub).Valid)
}

func (s *SignSuite) TestVerifyFailsClosed() {
	signed, err := Sign(s.parse(`{"id":"urn:x"}`), s.signer, s.now)
	s.Require().NoError(err)

	otherPub, _, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)

	cases := map[string]struct {
		cred   func() *Credential
		pub    ed25519.PublicKey
		reason Reason
	}{
		"missing proof": {
			cred:   func() *Credential { return s.parse(`{"id":"urn:x"}`) },
			pub:    s.pub,
			reason: ReasonMissingProof,
		},
		"nil credential": {
			cred:   func() *Credential { return nil },
			pub:    s.pub,
			reason: ReasonMissingProof,
		},
		"unsupported proof type": {
			cred: func() *Credential {
				c, _ := signed.Clone()
				c.Proof.Type = "RsaSignature2018"
				return c
			},
			pub:    s.pub,
			reason: ReasonUnsupportedProofType,
		},
		"undecodable proof value": {
			cred: func() *Credential {
				c, _ := signed.Clone()
				c.Proof.ProofValue = "!!!"
				return c
			},
			pub:    s.pub,
			reason: ReasonMalformedSignature,
		},
		"short proof value": {
			cred: func() *Credential {
				c, _ := signed.Clone()
				c.Proof.ProofValue = "AAAA"
				return c
			},
			pub:    s.pub,
			reason: ReasonMalformedSignature,
		},
		"wrong key": {
			cred:   func() *Credential { return signed },
			pub:    otherPub,
			reason: ReasonSignatureMismatch,
		},
		"short key": {
			cred:   func() *Credential { return signed },
			pub:    s.pub[:10],
			reason: ReasonInvalidKey,
		},
		"cyclic subject": {
			cred: func() *Credential {
				c, _ := signed.Clone()
				loop := map[string]any{}
				loop["self"] = loop
				c.CredentialSubject = loop
				return c
			},
			pub:    s.pub,
			reason: ReasonCanonicalization,
		},
	}

	for name, tc := range cases {
		s.Run(name, func() {
			outcome := Verify(tc.cred(), tc.pub)
			s.False(outcome.Valid)
			s.Equal(tc.reason, outcome.Reason)
		})
	}
}

func (s *SignSuite) TestSignRejectsCyclicInput() {
	loop := map[string]any{}
	loop["self"] = loop
	_, err := Sign(&Credential{ID: "urn:x", CredentialSubject: loop}, s.signer, s.now)
	s.ErrorIs(err, ErrCanonicalization)
}
