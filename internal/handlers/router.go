package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jwebster45206/arq-village/internal/inference"
	"github.com/jwebster45206/arq-village/internal/services/events"
	"github.com/jwebster45206/arq-village/pkg/storage"
)

type RouterResponse struct {
	State inference.State  `json:"state"`
	Usage map[string]int64 `json:"usage"`
}

type CredentialRequest struct {
	APIKey string `json:"api_key"`
}

// RouterHandler reports provider state and usage and accepts a new hosted
// credential.
type RouterHandler struct {
	router    Router
	usage     UsageReader
	storage   storage.Storage
	publisher events.Publisher
	logger    *slog.Logger
}

func NewRouterHandler(router Router, usage UsageReader, storage storage.Storage, publisher events.Publisher, logger *slog.Logger) *RouterHandler {
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &RouterHandler{
		router:    router,
		usage:     usage,
		storage:   storage,
		publisher: publisher,
		logger:    logger,
	}
}

// Routes:
// GET /v1/router            - provider state and usage counters
// POST /v1/router/refresh   - re-probe providers
// PUT /v1/router/credential - set or clear the hosted API key
func (h *RouterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch strings.TrimSuffix(r.URL.Path, "/") {
	case "/v1/router":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, h.logger, http.MethodGet)
			return
		}
		h.respond(w, r, h.router.State())
	case "/v1/router/refresh":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, h.logger, http.MethodPost)
			return
		}
		h.respond(w, r, h.router.Refresh(r.Context()))
	case "/v1/router/credential":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, h.logger, http.MethodPut)
			return
		}
		h.updateCredential(w, r)
	default:
		writeError(w, h.logger, http.StatusNotFound, "Not found.")
	}
}

func (h *RouterHandler) respond(w http.ResponseWriter, r *http.Request, st inference.State) {
	// every provider is reported, unused ones as zero
	usage := make(map[string]int64, len(inference.Providers))
	for _, src := range inference.Providers {
		usage[string(src)] = 0
	}
	if h.usage != nil {
		u, err := h.usage.Usage(r.Context())
		if err != nil {
			h.logger.Warn("Failed to read usage counters", "error", err)
		}
		for src, n := range u {
			usage[src] = n
		}
	}
	writeJSON(w, h.logger, http.StatusOK, RouterResponse{State: st, Usage: usage})
}

// updateCredential stores the key for the worker, swaps it into this
// process's router, and tells the worker to reload. An empty key clears it.
func (h *RouterHandler) updateCredential(w http.ResponseWriter, r *http.Request) {
	var req CredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body. Expected JSON with 'api_key' field.")
		return
	}
	key := strings.TrimSpace(req.APIKey)
	if key != "" && !inference.ValidCredential(key) {
		writeError(w, h.logger, http.StatusBadRequest, "That doesn't look like a real API key.")
		return
	}

	ctx := r.Context()
	if err := h.storage.SaveCredential(ctx, key); err != nil {
		h.logger.Error("Failed to store credential", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to store the credential.")
		return
	}

	st := h.router.UpdateCredential(ctx, key)
	if err := h.publisher.Publish(ctx, events.EventTypeCredentialUpdated, events.CredentialData{Present: key != ""}); err != nil {
		h.logger.Warn("Failed to publish credential update", "error", err)
	}

	h.logger.Info("Hosted credential updated", "present", key != "", "current", st.Current)
	h.respond(w, r, st)
}
