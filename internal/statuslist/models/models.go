package models

import (
	"time"

	id "openbadges/pkg/domain"
)

// Purpose is the statusPurpose a list encodes.
type Purpose string

const (
	PurposeRevocation Purpose = "revocation"
	PurposeSuspension Purpose = "suspension"
)

func (p Purpose) IsValid() bool {
	return p == PurposeRevocation || p == PurposeSuspension
}

// StatusList is one issuer's shared bit array. BitLength never changes after
// creation; Version increases by one on every persisted change to
// EncodedBits.
type StatusList struct {
	ID          id.StatusListID
	IssuerID    id.IssuerID
	Purpose     Purpose
	BitLength   int
	EncodedBits string
	Version     int64
	// Credential is the signed StatusList2021Credential JSON for the
	// current EncodedBits.
	Credential []byte
	// Allocated counts mapped indices, so callers can tell when a list is full.
	Allocated int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Full reports whether every index has been assigned.
func (l *StatusList) Full() bool {
	return l.Allocated >= l.BitLength
}

// Clone returns a copy that shares nothing with l.
func (l *StatusList) Clone() *StatusList {
	if l == nil {
		return nil
	}
	out := *l
	out.Credential = append([]byte(nil), l.Credential...)
	return &out
}

// IndexMapping binds a credential to one bit. Created once at issuance and
// never modified.
type IndexMapping struct {
	CredentialID id.CredentialID
	StatusListID id.StatusListID
	BitIndex     int
	CreatedAt    time.Time
}

// RevocationEntry records why a credential was revoked. It lives beside the
// mapping so the mapping itself stays immutable.
type RevocationEntry struct {
	CredentialID id.CredentialID
	Reason       string
	RevokedAt    time.Time
}

// StatusChange is the revocation bookkeeping committed in the same write as
// a list update. A nil Revocation clears the credential's record.
type StatusChange struct {
	CredentialID id.CredentialID
	Revocation   *RevocationEntry
}

// CredentialStatus is the outcome of a status lookup for one credential.
type CredentialStatus struct {
	CredentialID id.CredentialID
	StatusListID id.StatusListID
	BitIndex     int
	Revoked      bool
	Reason       string
	RevokedAt    *time.Time
}
