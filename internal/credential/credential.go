// Package credential models Open Badges credentials and produces and checks
// their Ed25519 proofs over a deterministic canonical serialization.
package credential

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"
)

// Well-known values placed in credentials issued by this service.
const (
	TypeVerifiableCredential = "VerifiableCredential"
	TypeOpenBadgeCredential  = "OpenBadgeCredential"
	TypeStatusListCredential = "StatusList2021Credential"
	TypeStatusListEntry      = "StatusList2021Entry"

	ProofTypeEd25519      = "Ed25519Signature2020"
	ProofPurposeAssertion = "assertionMethod"

	ContextCredentialsV1  = "https://www.w3.org/2018/credentials/v1"
	ContextCredentialsV2  = "https://www.w3.org/ns/credentials/v2"
	ContextOpenBadgesV3   = "https://purl.imsglobal.org/spec/ob/v3p0/context-3.0.3.json"
	ContextStatusList2021 = "https://w3id.org/vc/status-list/2021/v1"
)

// DefaultContexts is the @context order of issued credentials.
func DefaultContexts() []string {
	return []string{ContextCredentialsV1, ContextOpenBadgesV3, ContextStatusList2021}
}

// Generation distinguishes hosted legacy assertions from credentials that
// carry their own proof. It is decided once, by proof presence.
type Generation int

const (
	GenerationLegacy Generation = iota + 1
	GenerationProven
)

func (g Generation) String() string {
	switch g {
	case GenerationLegacy:
		return "legacy"
	case GenerationProven:
		return "proven"
	default:
		return "unknown"
	}
}

// Credential is a JSON-LD shaped credential document. Top-level fields are
// serialized in declaration order followed by Extensions sorted by key;
// nested objects are free-form and serialized with sorted keys.
type Credential struct {
	Context           []any
	ID                string
	Type              []string
	Issuer            any // string or object with an "id"
	IssuanceDate      string
	ExpirationDate    string
	CredentialSubject map[string]any
	CredentialStatus  map[string]any
	CredentialSchema  any
	Proof             *Proof

	// Extensions holds every other top-level member, including the
	// Open Badges 2.0 hosted assertion fields.
	Extensions map[string]any
}

// Proof is a detached Ed25519 signature over the canonical credential bytes.
type Proof struct {
	Type               string `json:"type"`
	Created            string `json:"created"`
	VerificationMethod string `json:"verificationMethod"`
	ProofPurpose       string `json:"proofPurpose"`
	ProofValue         string `json:"proofValue"`
}

// Legacy (Open Badges 2.0 hosted) assertion members, carried as extensions.
const (
	LegacyRecipient    = "recipient"
	LegacyBadge        = "badge"
	LegacyVerification = "verification"
	LegacyIssuedOn     = "issuedOn"
	LegacyExpires      = "expires"
)

// Generation reports which verification path applies to c.
func (c *Credential) Generation() Generation {
	if c.Proof != nil {
		return GenerationProven
	}
	return GenerationLegacy
}

// HasType reports whether t is among the credential's types.
func (c *Credential) HasType(t string) bool {
	return slices.Contains(c.Type, t)
}

// IssuerID returns the issuer identifier whether the issuer is given as a
// plain string or as an object.
func (c *Credential) IssuerID() string {
	switch v := c.Issuer.(type) {
	case string:
		return v
	case map[string]any:
		if s, ok := v["id"].(string); ok {
			return s
		}
	}
	return ""
}

// Extension returns a top-level member outside the typed set.
func (c *Credential) Extension(name string) (any, bool) {
	v, ok := c.Extensions[name]
	return v, ok
}

// SetExtension stores a top-level member outside the typed set.
func (c *Credential) SetExtension(name string, value any) {
	if c.Extensions == nil {
		c.Extensions = make(map[string]any)
	}
	c.Extensions[name] = value
}

// Expiration returns the expiry instant if the credential declares one,
// either as expirationDate or the legacy "expires" member.
func (c *Credential) Expiration() (time.Time, bool, error) {
	raw := c.ExpirationDate
	if raw == "" {
		if v, ok := c.Extensions[LegacyExpires].(string); ok {
			raw = v
		}
	}
	if raw == "" {
		return time.Time{}, false, nil
	}
	t, err := ParseTime(raw)
	if err != nil {
		return time.Time{}, true, fmt.Errorf("invalid expiration date: %w", err)
	}
	return t, true, nil
}

// ParseTime accepts RFC 3339 timestamps and, for legacy assertions, plain dates.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// FormatTime renders t the way issued credentials carry timestamps.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// StatusEntry is the typed view of a StatusList2021Entry credentialStatus.
type StatusEntry struct {
	ID                   string
	Type                 string
	StatusPurpose        string
	StatusListIndex      int
	StatusListCredential string
}

// StatusEntry decodes credentialStatus. ok is false when none is present.
func (c *Credential) StatusEntry() (entry StatusEntry, ok bool, err error) {
	if c.CredentialStatus == nil {
		return StatusEntry{}, false, nil
	}
	s := c.CredentialStatus
	entry.ID, _ = s["id"].(string)
	entry.Type, _ = s["type"].(string)
	entry.StatusPurpose, _ = s["statusPurpose"].(string)
	entry.StatusListCredential, _ = s["statusListCredential"].(string)

	switch v := s["statusListIndex"].(type) {
	case string:
		entry.StatusListIndex, err = strconv.Atoi(v)
	case float64:
		entry.StatusListIndex = int(v)
	case int:
		entry.StatusListIndex = v
	case json.Number:
		var n int64
		n, err = v.Int64()
		entry.StatusListIndex = int(n)
	default:
		err = fmt.Errorf("statusListIndex missing")
	}
	if err != nil {
		return StatusEntry{}, true, fmt.Errorf("invalid credentialStatus: %w", err)
	}
	if entry.StatusListIndex < 0 {
		return StatusEntry{}, true, fmt.Errorf("invalid credentialStatus: negative statusListIndex")
	}
	return entry, true, nil
}

// SetStatusEntry embeds e as the credential's credentialStatus.
// statusListIndex is written as a decimal string.
func (c *Credential) SetStatusEntry(e StatusEntry) {
	c.CredentialStatus = map[string]any{
		"id":                   e.ID,
		"type":                 e.Type,
		"statusPurpose":        e.StatusPurpose,
		"statusListIndex":      strconv.Itoa(e.StatusListIndex),
		"statusListCredential": e.StatusListCredential,
	}
}
