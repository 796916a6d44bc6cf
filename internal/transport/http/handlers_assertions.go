package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"openbadges/internal/badge"
	"openbadges/internal/credential"
	issuancemodels "openbadges/internal/issuance/models"
	"openbadges/internal/issuance/service"
	jwttoken "openbadges/internal/jwt_token"
	statusmodels "openbadges/internal/statuslist/models"
	id "openbadges/pkg/domain"
	dErrors "openbadges/pkg/domain-errors"
	"openbadges/pkg/platform/httputil"
	"openbadges/pkg/platform/middleware/admin"
	request "openbadges/pkg/platform/middleware/request"
	"openbadges/pkg/platform/validation"

	"github.com/go-chi/chi/v5"
)

// AssertionService issues, serves, bakes and revokes assertions.
type AssertionService interface {
	Issue(ctx context.Context, req service.IssueRequest) (*service.IssueResult, error)
	Get(ctx context.Context, assertionID id.CredentialID) (*issuancemodels.Assertion, error)
	Bake(ctx context.Context, assertionID id.CredentialID, img []byte) ([]byte, error)
	Revoke(ctx context.Context, assertionID id.CredentialID, reason string) (*statusmodels.CredentialStatus, error)
	Reinstate(ctx context.Context, assertionID id.CredentialID) (*statusmodels.CredentialStatus, error)
}

// AssertionHandler serves assertion endpoints. Issuing and status changes
// require a scoped admin token.
type AssertionHandler struct {
	logger     *slog.Logger
	assertions AssertionService
	tokens     admin.TokenValidator
}

func NewAssertionHandler(assertions AssertionService, tokens admin.TokenValidator, logger *slog.Logger) *AssertionHandler {
	return &AssertionHandler{logger: logger, assertions: assertions, tokens: tokens}
}

func (h *AssertionHandler) Register(r chi.Router) {
	r.Get("/v1/assertions/{id}", h.handleGetAssertion)
	r.Post("/v1/assertions/{id}/bake", h.handleBake)

	r.Group(func(r chi.Router) {
		r.Use(admin.RequireScope(h.tokens, jwttoken.ScopeIssue, h.logger))
		r.Post("/v1/issuers/{issuerID}/assertions", h.handleIssue)
	})
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireScope(h.tokens, jwttoken.ScopeStatusWrite, h.logger))
		r.Post("/v1/assertions/{id}/revoke", h.handleRevoke)
		r.Post("/v1/assertions/{id}/reinstate", h.handleReinstate)
	})
}

type issueRequest struct {
	Credential *credential.Credential `json:"credential"`
	Hosted     bool                   `json:"hosted"`
}

func (r *issueRequest) Validate() error {
	if r.Credential == nil {
		return dErrors.New(dErrors.CodeValidation, "credential is required")
	}
	return nil
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

func (r *revokeRequest) Normalize() {
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *revokeRequest) Validate() error {
	return validation.CheckStringLength("reason", r.Reason, validation.MaxReasonLength)
}

type statusResponse struct {
	CredentialID string     `json:"credential_id"`
	StatusListID string     `json:"status_list_id"`
	BitIndex     int        `json:"bit_index"`
	Revoked      bool       `json:"revoked"`
	Reason       string     `json:"reason,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
}

func toStatusResponse(st *statusmodels.CredentialStatus) statusResponse {
	return statusResponse{
		CredentialID: st.CredentialID.String(),
		StatusListID: st.StatusListID.String(),
		BitIndex:     st.BitIndex,
		Revoked:      st.Revoked,
		Reason:       st.Reason,
		RevokedAt:    st.RevokedAt,
	}
}

func (h *AssertionHandler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	rawIssuer, err := pathParam(r, "issuerID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	issuerID, err := id.ParseIssuerID(rawIssuer)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[issueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.assertions.Issue(ctx, service.IssueRequest{
		IssuerID:   issuerID,
		Credential: req.Credential,
		Hosted:     req.Hosted,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "issuance failed",
			"error", err,
			"issuer_id", issuerID.String(),
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "assertion issued",
		"assertion_id", res.Assertion.ID.String(),
		"issuer_id", issuerID.String(),
		"actor", admin.GetAdminActorID(ctx),
		"request_id", requestID,
	)
	w.Header().Set("Location", "/v1/assertions/"+url.PathEscape(res.Assertion.ID.String()))
	httputil.WriteJSON(w, http.StatusCreated, res.Credential)
}

// handleGetAssertion serves the stored document byte for byte, so hosted
// verification sees exactly what was signed.
func (h *AssertionHandler) handleGetAssertion(w http.ResponseWriter, r *http.Request) {
	assertionID, err := assertionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	a, err := h.assertions.Get(r.Context(), assertionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.Document)
}

func (h *AssertionHandler) handleBake(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	assertionID, err := assertionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	img, ok := httputil.ReadBody(w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	baked, err := h.assertions.Bake(ctx, assertionID, img)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", imageContentType(badge.Sniff(baked)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(baked)
}

func (h *AssertionHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	assertionID, err := assertionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req := &revokeRequest{}
	if r.ContentLength != 0 {
		decoded, ok := httputil.DecodeAndPrepare[revokeRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}
		req = decoded
	}

	st, err := h.assertions.Revoke(ctx, assertionID, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "assertion revoked",
		"assertion_id", assertionID.String(),
		"actor", admin.GetAdminActorID(ctx),
		"request_id", requestID,
	)
	httputil.WriteJSON(w, http.StatusOK, toStatusResponse(st))
}

func (h *AssertionHandler) handleReinstate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	assertionID, err := assertionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	st, err := h.assertions.Reinstate(ctx, assertionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "assertion reinstated",
		"assertion_id", assertionID.String(),
		"actor", admin.GetAdminActorID(ctx),
		"request_id", request.GetRequestID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, toStatusResponse(st))
}

// pathParam returns the unescaped URL parameter, rejecting oversized values.
func pathParam(r *http.Request, name string) (string, error) {
	raw := chi.URLParam(r, name)
	v, err := url.PathUnescape(raw)
	if err != nil {
		v = raw
	}
	if err := validation.CheckStringLength(name, v, validation.MaxIDLength); err != nil {
		return "", err
	}
	return v, nil
}

func assertionIDParam(r *http.Request) (id.CredentialID, error) {
	raw, err := pathParam(r, "id")
	if err != nil {
		return "", err
	}
	return id.ParseCredentialID(raw)
}

func imageContentType(kind badge.Kind) string {
	switch kind {
	case badge.KindPNG:
		return "image/png"
	case badge.KindSVG:
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}
