package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jwebster45206/arq-village/pkg/activity"
	"github.com/jwebster45206/arq-village/pkg/storage"
)

const defaultActivityLimit = 50

type ActivityResponse struct {
	Entries []activity.Entry `json:"entries"`
}

// ActivityHandler lists the newest activity entries.
type ActivityHandler struct {
	storage storage.Storage
	logger  *slog.Logger
}

func NewActivityHandler(storage storage.Storage, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{storage: storage, logger: logger}
}

// GET /v1/activity?limit=n
func (h *ActivityHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, h.logger, http.MethodGet)
		return
	}

	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > storage.ActivityLimit {
			writeError(w, h.logger, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(storage.ActivityLimit))
			return
		}
		limit = n
	}

	entries, err := h.storage.ListActivity(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list activity", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load activity.")
		return
	}
	if entries == nil {
		entries = []activity.Entry{}
	}
	writeJSON(w, h.logger, http.StatusOK, ActivityResponse{Entries: entries})
}
