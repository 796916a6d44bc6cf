package admin

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	jwttoken "openbadges/internal/jwt_token"
	dErrors "openbadges/pkg/domain-errors"
	"openbadges/pkg/platform/httputil"
	request "openbadges/pkg/platform/middleware/request"
)

// TokenValidator checks an admin bearer token.
type TokenValidator interface {
	ValidateAdminToken(token string) (*jwttoken.AdminClaims, error)
}

type contextKeyAdminActorID struct{}

// ContextKeyAdminActorID is exported for use in handlers and tests.
var ContextKeyAdminActorID = contextKeyAdminActorID{}

// GetAdminActorID returns the token subject of an authorized admin request,
// or "" outside one.
func GetAdminActorID(ctx context.Context) string {
	if actorID, ok := ctx.Value(ContextKeyAdminActorID).(string); ok {
		return actorID
	}
	return ""
}

// RequireScope admits requests bearing a valid admin token that grants
// scope. Missing or invalid tokens get 401; valid tokens without the scope
// get 403.
func RequireScope(validator TokenValidator, scope string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				logger.WarnContext(ctx, "admin token missing", "request_id", requestID)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}

			claims, err := validator.ValidateAdminToken(token)
			if err != nil {
				logger.WarnContext(ctx, "admin token rejected",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, err)
				return
			}
			if !claims.HasScope(scope) {
				logger.WarnContext(ctx, "admin token lacks scope",
					"actor", claims.Subject,
					"scope", scope,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "token does not grant "+scope))
				return
			}

			ctx = context.WithValue(ctx, ContextKeyAdminActorID, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
