package testutil

import (
	"strconv"
	"time"

	"openbadges/internal/credential"
	id "openbadges/pkg/domain"
)

// TestIDs provides fixed identifiers for deterministic test data.
var TestIDs = struct {
	Issuer1     id.IssuerID
	Issuer2     id.IssuerID
	Credential1 id.CredentialID
	Credential2 id.CredentialID
	Learner     string
}{
	Issuer1:     id.IssuerID("https://issuer.example"),
	Issuer2:     id.IssuerID("https://other-issuer.example"),
	Credential1: id.CredentialID("urn:uuid:7d0e9a5c-1111-4e6e-8a3b-5d7f00c0ffee"),
	Credential2: id.CredentialID("urn:uuid:7d0e9a5c-2222-4e6e-8a3b-5d7f00c0ffee"),
	Learner:     "did:example:learner",
}

// DefaultContexts is the @context used by built credentials.
var DefaultContexts = []any{
	credential.ContextCredentialsV1,
	credential.ContextOpenBadgesV3,
}

// CredentialBuilder provides a fluent interface for building Open Badges
// credentials. Build returns a fresh value on every call.
type CredentialBuilder struct {
	id           string
	issuer       any
	contexts     []any
	issuanceDate string
	expiration   string
	subjectID    string
	achievement  map[string]any
	status       *credential.StatusEntry
	bare         bool
}

// NewCredentialBuilder starts from a complete, unsigned credential issued
// by TestIDs.Issuer1.
func NewCredentialBuilder() *CredentialBuilder {
	return &CredentialBuilder{
		id:           TestIDs.Credential1.String(),
		issuer:       map[string]any{"id": TestIDs.Issuer1.String(), "name": "Example Issuer"},
		contexts:     DefaultContexts,
		issuanceDate: "2025-01-01T00:00:00Z",
		subjectID:    TestIDs.Learner,
		achievement: map[string]any{
			"id":       "https://issuer.example/achievements/1",
			"name":     "Coding",
			"criteria": map[string]any{"narrative": "Wrote code"},
		},
	}
}

// NewIssueRequestBuilder starts from the minimal credential an issuer
// submits: a subject and achievement, with everything else left for the
// issuance service to fill.
func NewIssueRequestBuilder() *CredentialBuilder {
	b := NewCredentialBuilder()
	b.bare = true
	return b
}

func (b *CredentialBuilder) WithID(credentialID id.CredentialID) *CredentialBuilder {
	b.id = credentialID.String()
	return b
}

// WithIssuer sets the issuer as a plain id string.
func (b *CredentialBuilder) WithIssuer(issuerID id.IssuerID) *CredentialBuilder {
	b.issuer = issuerID.String()
	return b
}

func (b *CredentialBuilder) WithContexts(contexts ...any) *CredentialBuilder {
	b.contexts = contexts
	return b
}

func (b *CredentialBuilder) WithAchievement(name string) *CredentialBuilder {
	b.achievement = map[string]any{
		"id":       "https://issuer.example/achievements/1",
		"name":     name,
		"criteria": map[string]any{"narrative": "Earned " + name},
	}
	return b
}

func (b *CredentialBuilder) IssuedAt(t time.Time) *CredentialBuilder {
	b.issuanceDate = credential.FormatTime(t)
	return b
}

func (b *CredentialBuilder) ExpiresAt(t time.Time) *CredentialBuilder {
	b.expiration = credential.FormatTime(t)
	return b
}

// WithStatus embeds a credentialStatus entry.
func (b *CredentialBuilder) WithStatus(entry credential.StatusEntry) *CredentialBuilder {
	b.status = &entry
	return b
}

// WithRevocationEntry embeds a revocation entry pointing at bit index of
// the list at listURL.
func (b *CredentialBuilder) WithRevocationEntry(listURL string, index int) *CredentialBuilder {
	return b.WithStatus(credential.StatusEntry{
		ID:                   listURL + "#" + strconv.Itoa(index),
		Type:                 credential.TypeStatusListEntry,
		StatusPurpose:        "revocation",
		StatusListIndex:      index,
		StatusListCredential: listURL,
	})
}

func (b *CredentialBuilder) Build() *credential.Credential {
	achievement := make(map[string]any, len(b.achievement))
	for k, v := range b.achievement {
		achievement[k] = v
	}
	c := &credential.Credential{
		CredentialSubject: map[string]any{
			"id":          b.subjectID,
			"type":        []any{"AchievementSubject"},
			"achievement": achievement,
		},
	}
	if b.bare {
		return c
	}
	c.Context = append([]any(nil), b.contexts...)
	c.ID = b.id
	c.Type = []string{credential.TypeVerifiableCredential, credential.TypeOpenBadgeCredential}
	c.Issuer = b.issuer
	c.IssuanceDate = b.issuanceDate
	c.ExpirationDate = b.expiration
	if b.status != nil {
		c.SetStatusEntry(*b.status)
	}
	return c
}
