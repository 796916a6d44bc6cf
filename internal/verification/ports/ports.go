// Package ports declares what the verification pipeline needs from the key,
// status list and assertion modules.
package ports

import (
	"context"

	"openbadges/internal/credential"
	keymodels "openbadges/internal/keys/models"
	statusmodels "openbadges/internal/statuslist/models"
	id "openbadges/pkg/domain"
)

// KeyResolver finds the public key behind a proof's verificationMethod,
// including rotated and revoked keys. Unknown methods are CodeNotFound.
type KeyResolver interface {
	ResolveVerificationMethod(ctx context.Context, verificationMethod string) (*keymodels.ResolvedKey, error)
}

// StatusChecker reports a credential's revocation bit. entry is the
// credential's own credentialStatus, used when no mapping is recorded.
// A credential with neither is CodeNotFound.
type StatusChecker interface {
	CheckCredential(ctx context.Context, credentialID id.CredentialID, entry *credential.StatusEntry) (*statusmodels.CredentialStatus, error)
}

// AssertionSource loads a stored assertion document by id.
type AssertionSource interface {
	GetAssertion(ctx context.Context, assertionID id.CredentialID) ([]byte, error)
}

// BadgeExtractor pulls the embedded credential out of a baked image.
type BadgeExtractor interface {
	Extract(img []byte) ([]byte, error)
}
