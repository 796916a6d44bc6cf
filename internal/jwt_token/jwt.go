// Package jwttoken mints and validates the HS256 bearer tokens that
// authorize status changes on issued assertions.
package jwttoken

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	dErrors "openbadges/pkg/domain-errors"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// ScopeIssue allows issuing assertions.
	ScopeIssue = "assertions:issue"
	// ScopeStatusWrite allows revoking and reinstating assertions.
	ScopeStatusWrite = "status:write"
)

// AdminClaims are the claims of an admin token. Subject names the actor
// recorded against the change.
type AdminClaims struct {
	Scope []string `json:"scope"`
	jwt.RegisteredClaims
}

// HasScope reports whether the token grants scope.
func (c *AdminClaims) HasScope(scope string) bool {
	for _, s := range c.Scope {
		if s == scope {
			return true
		}
	}
	return false
}

// JWTService handles admin token creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	tokenTTL   time.Duration
	now        func() time.Time
}

func NewJWTService(signingKey, issuer, audience string, tokenTTL time.Duration) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		tokenTTL:   tokenTTL,
		now:        time.Now,
	}
}

// GenerateAdminToken signs a token for actor carrying scopes.
func (s *JWTService) GenerateAdminToken(actor string, scopes []string) (string, error) {
	if actor == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "actor cannot be empty")
	}
	if len(scopes) == 0 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "scopes cannot be empty")
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	now := s.now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{
		Scope: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        hex.EncodeToString(b),
		},
	})
	return token.SignedString(s.signingKey)
}

// ValidateAdminToken checks signature, algorithm, expiry, issuer and
// audience. Every failure is CodeUnauthorized.
func (s *JWTService) ValidateAdminToken(tokenString string) (*AdminClaims, error) {
	if tokenString == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "empty token")
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*AdminClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}
