package models

import (
	"time"

	id "openbadges/pkg/domain"
)

// Assertion is an issued credential as stored. Document holds the exact
// JSON bytes handed out, so a signed document re-served later still verifies.
type Assertion struct {
	ID        id.CredentialID
	IssuerID  id.IssuerID
	Document  []byte
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy.
func (a *Assertion) Clone() *Assertion {
	if a == nil {
		return nil
	}
	out := *a
	out.Document = append([]byte(nil), a.Document...)
	return &out
}
