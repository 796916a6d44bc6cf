package verification

import (
	"fmt"
	"slices"
	"strings"

	"openbadges/internal/credential"
)

// Base contexts accepted as the first @context entry.
var baseContexts = []string{
	credential.ContextCredentialsV1,
	credential.ContextCredentialsV2,
}

// Top-level members recognized outside the typed credential fields.
var (
	provenExtensions = []string{
		"name", "description", "image", "awardedDate", "endorsement", "endorsementJwt",
		"evidence", "refreshService", "termsOfUse", "validFrom", "validUntil",
	}
	legacyExtensions = []string{
		credential.LegacyRecipient, credential.LegacyBadge, credential.LegacyVerification,
		credential.LegacyIssuedOn, credential.LegacyExpires,
		"image", "evidence", "narrative", "revoked", "revocationReason", "related", "endorsement",
	}
)

// structureProblems applies the required-field rules of c's generation.
// Problems that do not block verification are returned as warnings.
func structureProblems(c *credential.Credential) (errs, warnings []string) {
	if c.ID == "" {
		errs = append(errs, "missing id")
	}
	if c.Generation() == credential.GenerationProven {
		errs = append(errs, provenStructure(c)...)
		warnings = append(warnings, unknownMembers(c, provenExtensions)...)
	} else {
		errs = append(errs, legacyStructure(c)...)
		warnings = append(warnings, legacyVerificationWarnings(c)...)
		warnings = append(warnings, unknownMembers(c, legacyExtensions)...)
	}
	return errs, warnings
}

func provenStructure(c *credential.Credential) []string {
	var errs []string
	if len(c.Context) == 0 {
		errs = append(errs, "missing @context")
	} else if first, _ := c.Context[0].(string); !slices.Contains(baseContexts, first) {
		errs = append(errs, fmt.Sprintf("first @context must be a credentials context, got %v", c.Context[0]))
	}
	if !c.HasType(credential.TypeVerifiableCredential) {
		errs = append(errs, "type must include "+credential.TypeVerifiableCredential)
	}
	if c.IssuerID() == "" {
		errs = append(errs, "missing issuer")
	}
	if c.IssuanceDate == "" {
		errs = append(errs, "missing issuanceDate")
	} else if _, err := credential.ParseTime(c.IssuanceDate); err != nil {
		errs = append(errs, "invalid issuanceDate: "+err.Error())
	}
	if c.CredentialSubject == nil {
		errs = append(errs, "missing credentialSubject")
	} else if _, ok := c.CredentialSubject["achievement"].(map[string]any); !ok {
		errs = append(errs, "missing credentialSubject.achievement")
	}

	p := c.Proof
	if p.VerificationMethod == "" {
		errs = append(errs, "proof is missing verificationMethod")
	}
	if p.ProofPurpose != credential.ProofPurposeAssertion {
		errs = append(errs, fmt.Sprintf("proof purpose must be %s, got %q", credential.ProofPurposeAssertion, p.ProofPurpose))
	}
	if p.ProofValue == "" {
		errs = append(errs, "proof is missing proofValue")
	}
	if p.Created == "" {
		errs = append(errs, "proof is missing created")
	}
	return errs
}

// legacyStructure accepts both the Open Badges 2.0 hosted layout and an
// unsigned credential layout, member by member.
func legacyStructure(c *credential.Credential) []string {
	var errs []string
	ext := func(name string) any {
		v, _ := c.Extension(name)
		return v
	}

	if _, ok := ext(credential.LegacyRecipient).(map[string]any); !ok && c.CredentialSubject == nil {
		errs = append(errs, "missing recipient")
	}
	_, hasBadge := ext(credential.LegacyBadge).(string)
	if !hasBadge {
		_, hasBadge = ext(credential.LegacyBadge).(map[string]any)
	}
	if !hasBadge && c.CredentialSubject != nil {
		_, hasBadge = c.CredentialSubject["achievement"].(map[string]any)
	}
	if !hasBadge {
		errs = append(errs, "missing badge")
	}

	issued, _ := ext(credential.LegacyIssuedOn).(string)
	if issued == "" {
		issued = c.IssuanceDate
	}
	if issued == "" {
		errs = append(errs, "missing issuedOn")
	} else if _, err := credential.ParseTime(issued); err != nil {
		errs = append(errs, "invalid issuedOn: "+err.Error())
	}
	return errs
}

func unknownMembers(c *credential.Credential, known []string) []string {
	var warnings []string
	for name := range c.Extensions {
		if strings.HasPrefix(name, "@") || slices.Contains(known, name) {
			continue
		}
		warnings = append(warnings, fmt.Sprintf("unrecognized member %q ignored", name))
	}
	slices.Sort(warnings)
	return warnings
}

// legacyVerificationWarnings flags hosted assertions whose verification
// object is absent or not of the hosted type.
func legacyVerificationWarnings(c *credential.Credential) []string {
	v, ok := c.Extension(credential.LegacyVerification)
	if !ok {
		if c.CredentialSubject == nil {
			return []string{"legacy assertion has no verification object"}
		}
		return nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return []string{"legacy verification member is not an object"}
	}
	if t, _ := obj["type"].(string); !strings.EqualFold(t, "hosted") && !strings.EqualFold(t, "HostedBadge") {
		return []string{fmt.Sprintf("legacy verification type %q is not hosted", t)}
	}
	return nil
}
