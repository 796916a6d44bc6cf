package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"openbadges/internal/statuslist/models"
	id "openbadges/pkg/domain"
	"openbadges/pkg/platform/httputil"

	"github.com/go-chi/chi/v5"
)

// StatusListReader loads published status lists.
type StatusListReader interface {
	GetStatusList(ctx context.Context, listID id.StatusListID) (*models.StatusList, error)
}

// StatusListHandler publishes signed status list credentials. Verifiers
// fetch these by the statusListCredential URL embedded in each credential.
type StatusListHandler struct {
	logger *slog.Logger
	lists  StatusListReader
}

func NewStatusListHandler(lists StatusListReader, logger *slog.Logger) *StatusListHandler {
	return &StatusListHandler{logger: logger, lists: lists}
}

func (h *StatusListHandler) Register(r chi.Router) {
	r.Get("/v1/status-lists/{id}", h.handleGetStatusList)
}

// handleGetStatusList serves the signed list with an ETag derived from its
// version; a matching If-None-Match answers 304.
func (h *StatusListHandler) handleGetStatusList(w http.ResponseWriter, r *http.Request) {
	listID, err := id.ParseStatusListID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	list, err := h.lists.GetStatusList(r.Context(), listID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	etag := `"` + strconv.FormatInt(list.Version, 10) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=60")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(list.Credential)
}
