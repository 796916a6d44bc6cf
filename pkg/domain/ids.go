// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "openbadges/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing a KeyID where a StatusListID is expected.
type (
	KeyID        uuid.UUID
	StatusListID uuid.UUID
)

// IssuerID identifies an issuing organization. Issuer identifiers come from the
// external issuer registry and are opaque strings (URLs, slugs or UUIDs).
type IssuerID string

// CredentialID is the identifier of an issued credential or hosted assertion.
// Newly issued credentials use the "urn:uuid:" form.
type CredentialID string

const credentialURNPrefix = "urn:uuid:"

// NewKeyID generates a random key identifier.
func NewKeyID() KeyID { return KeyID(uuid.New()) }

// NewStatusListID generates a random status list identifier.
func NewStatusListID() StatusListID { return StatusListID(uuid.New()) }

// NewCredentialID generates a fresh "urn:uuid:" credential identifier.
func NewCredentialID() CredentialID {
	return CredentialID(credentialURNPrefix + uuid.NewString())
}

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseKeyID(s string) (KeyID, error) {
	id, err := parseUUID(s, "key ID")
	return KeyID(id), err
}

func ParseStatusListID(s string) (StatusListID, error) {
	id, err := parseUUID(s, "status list ID")
	return StatusListID(id), err
}

func ParseIssuerID(s string) (IssuerID, error) {
	if strings.TrimSpace(s) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "issuer ID cannot be empty")
	}
	return IssuerID(s), nil
}

func ParseCredentialID(s string) (CredentialID, error) {
	if strings.TrimSpace(s) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "credential ID cannot be empty")
	}
	return CredentialID(s), nil
}

// String methods - for logging and debugging.

func (id KeyID) String() string        { return uuid.UUID(id).String() }
func (id StatusListID) String() string { return uuid.UUID(id).String() }
func (id IssuerID) String() string     { return string(id) }
func (id CredentialID) String() string { return string(id) }

// IsNil methods - for validation.

func (id KeyID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id StatusListID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id IssuerID) IsNil() bool     { return id == "" }
func (id CredentialID) IsNil() bool { return id == "" }

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return id, nil
}
