package models

import (
	"crypto/ed25519"
	"time"

	id "openbadges/pkg/domain"
)

// AlgorithmEd25519 is the only signing algorithm issued by this service.
const AlgorithmEd25519 = "Ed25519"

// KeyStatus tracks the lifecycle of an issuer key record.
type KeyStatus string

const (
	KeyStatusActive  KeyStatus = "active"
	KeyStatusRotated KeyStatus = "rotated"
	KeyStatusRevoked KeyStatus = "revoked"
)

// KeyPair is a decrypted, ready-to-use issuer signing key.
// It never leaves the process; only KeyRecord is persisted.
type KeyPair struct {
	ID           id.KeyID
	IssuerID     id.IssuerID
	Algorithm    string
	PublicKey    ed25519.PublicKey
	PrivateKey   ed25519.PrivateKey
	ControllerID string
	CreatedAt    time.Time
}

// VerificationMethod returns the key reference placed in proofs.
func (k KeyPair) VerificationMethod() string {
	return k.ControllerID + "#" + fragmentOf(k.ControllerID)
}

// Sign produces an Ed25519 signature over message.
func (k KeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(k.PrivateKey, message)
}

// KeyRecord is the persisted form of an issuer key. The private key is held
// only as envelope ciphertext.
//
// Records are immutable except for the status transition on rotation or
// revocation; a rotation inserts a new record pointing back via PreviousKeyID.
type KeyRecord struct {
	ID                  id.KeyID
	IssuerID            id.IssuerID
	Algorithm           string
	PublicKey           []byte
	EncryptedPrivateKey []byte
	ControllerID        string
	Status              KeyStatus
	PreviousKeyID       *id.KeyID
	CreatedAt           time.Time
	RotatedAt           *time.Time
	RevokedAt           *time.Time
}

// Clone returns a deep copy so stores never hand out shared slices.
func (r *KeyRecord) Clone() *KeyRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.PublicKey = append([]byte(nil), r.PublicKey...)
	out.EncryptedPrivateKey = append([]byte(nil), r.EncryptedPrivateKey...)
	if r.PreviousKeyID != nil {
		prev := *r.PreviousKeyID
		out.PreviousKeyID = &prev
	}
	if r.RotatedAt != nil {
		t := *r.RotatedAt
		out.RotatedAt = &t
	}
	if r.RevokedAt != nil {
		t := *r.RevokedAt
		out.RevokedAt = &t
	}
	return &out
}

// KeyState is the mutable part of a key record.
type KeyState struct {
	Status    KeyStatus
	RevokedAt *time.Time
}

// ResolvedKey is the public view of a key used by verifiers. Historical
// (rotated) keys resolve too so older credentials keep verifying.
type ResolvedKey struct {
	KeyID        id.KeyID
	IssuerID     id.IssuerID
	ControllerID string
	PublicKey    ed25519.PublicKey
	Status       KeyStatus
	RevokedAt    *time.Time
}

func fragmentOf(controllerID string) string {
	const prefix = "did:key:"
	if len(controllerID) > len(prefix) && controllerID[:len(prefix)] == prefix {
		return controllerID[len(prefix):]
	}
	return controllerID
}
