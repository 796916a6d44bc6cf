package httptransport

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"

	"openbadges/internal/badge"
	"openbadges/internal/verification"
	id "openbadges/pkg/domain"
	dErrors "openbadges/pkg/domain-errors"
	"openbadges/pkg/platform/httputil"
	request "openbadges/pkg/platform/middleware/request"

	"github.com/go-chi/chi/v5"
)

// Verifier runs the verification pipeline.
type Verifier interface {
	Verify(ctx context.Context, data []byte) *verification.Result
	VerifyImage(ctx context.Context, img []byte) (*verification.Result, error)
	VerifyAssertion(ctx context.Context, assertionID id.CredentialID) (*verification.Result, error)
}

// BadgeExtractor pulls the embedded credential out of a baked image.
type BadgeExtractor interface {
	Extract(img []byte) ([]byte, error)
}

// VerifyHandler serves the public verification endpoints.
type VerifyHandler struct {
	logger    *slog.Logger
	verifier  Verifier
	extractor BadgeExtractor
}

func NewVerifyHandler(verifier Verifier, extractor BadgeExtractor, logger *slog.Logger) *VerifyHandler {
	return &VerifyHandler{logger: logger, verifier: verifier, extractor: extractor}
}

func (h *VerifyHandler) Register(r chi.Router) {
	r.Post("/v1/verify", h.handleVerify)
	r.Post("/v1/badges/extract", h.handleExtract)
	r.Get("/v1/assertions/{id}/verify", h.handleVerifyAssertion)
}

// handleVerify accepts either a credential JSON document or a baked PNG/SVG
// and always answers 200 with the verification result when verification
// could be attempted.
func (h *VerifyHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	body, ok := httputil.ReadBody(w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if isJSONDocument(body) {
		httputil.WriteJSON(w, http.StatusOK, h.verifier.Verify(ctx, body))
		return
	}
	if badge.Sniff(body) == badge.KindUnknown {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnsupportedMedia, "body must be a credential JSON document, PNG or SVG"))
		return
	}

	res, err := h.verifier.VerifyImage(ctx, body)
	if err != nil {
		h.logger.InfoContext(ctx, "badge image could not be verified",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *VerifyHandler) handleExtract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	body, ok := httputil.ReadBody(w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	payload, err := h.extractor.Extract(body)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (h *VerifyHandler) handleVerifyAssertion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	assertionID, err := assertionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.verifier.VerifyAssertion(ctx, assertionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func isJSONDocument(body []byte) bool {
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")), " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}
