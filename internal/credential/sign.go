package credential

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// Signer is the key material needed to produce a proof.
type Signer interface {
	VerificationMethod() string
	Sign(message []byte) []byte
}

// Ed25519Signer signs with an in-memory private key.
type Ed25519Signer struct {
	PrivateKey ed25519.PrivateKey
	Method     string
}

func (s Ed25519Signer) VerificationMethod() string { return s.Method }

func (s Ed25519Signer) Sign(message []byte) []byte {
	return ed25519.Sign(s.PrivateKey, message)
}

// Sign returns a signed copy of c. Any existing proof is discarded first,
// and c itself is not modified.
func Sign(c *Credential, signer Signer, created time.Time) (*Credential, error) {
	payload, err := Canonicalize(c)
	if err != nil {
		return nil, err
	}
	signed, err := Parse(payload)
	if err != nil {
		return nil, fmt.Errorf("clone credential: %w", err)
	}

	signed.Proof = &Proof{
		Type:               ProofTypeEd25519,
		Created:            FormatTime(created),
		VerificationMethod: signer.VerificationMethod(),
		ProofPurpose:       ProofPurposeAssertion,
		ProofValue:         base64.RawURLEncoding.EncodeToString(signer.Sign(payload)),
	}
	return signed, nil
}

// Reason explains a failed verification.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonMissingProof         Reason = "proof missing"
	ReasonUnsupportedProofType Reason = "unsupported proof type"
	ReasonCanonicalization     Reason = "canonicalization failed"
	ReasonMalformedSignature   Reason = "malformed signature"
	ReasonInvalidKey           Reason = "invalid public key"
	ReasonSignatureMismatch    Reason = "signature mismatch"
)

// VerifyOutcome is the result of checking a proof. It is never an error:
// malformed input produces Valid=false with a Reason.
type VerifyOutcome struct {
	Valid  bool
	Reason Reason
	Err    error
}

func invalid(reason Reason, err error) VerifyOutcome {
	return VerifyOutcome{Reason: reason, Err: err}
}

// Verify checks c's proof against pub. It fails closed.
func Verify(c *Credential, pub ed25519.PublicKey) VerifyOutcome {
	if c == nil || c.Proof == nil {
		return invalid(ReasonMissingProof, nil)
	}
	if c.Proof.Type != ProofTypeEd25519 {
		return invalid(ReasonUnsupportedProofType, fmt.Errorf("proof type %q", c.Proof.Type))
	}
	if len(pub) != ed25519.PublicKeySize {
		return invalid(ReasonInvalidKey, fmt.Errorf("public key is %d bytes", len(pub)))
	}

	sig, err := base64.RawURLEncoding.DecodeString(c.Proof.ProofValue)
	if err != nil {
		return invalid(ReasonMalformedSignature, err)
	}
	if len(sig) != ed25519.SignatureSize {
		return invalid(ReasonMalformedSignature, errors.New("signature has wrong length"))
	}

	payload, err := Canonicalize(c)
	if err != nil {
		return invalid(ReasonCanonicalization, err)
	}
	if !ed25519.Verify(pub, payload, sig) {
		return invalid(ReasonSignatureMismatch, nil)
	}
	return VerifyOutcome{Valid: true}
}
