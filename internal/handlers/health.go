package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jwebster45206/arq-village/internal/inference"
	"github.com/jwebster45206/arq-village/pkg/storage"
)

type HealthResponse struct {
	Status     string         `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	Service    string         `json:"service"`
	Components map[string]any `json:"components"`
}

// RouterState reports the current provider state.
type RouterState interface {
	State() inference.State
}

type HealthHandler struct {
	storage storage.Storage
	router  RouterState
	logger  *slog.Logger
}

func NewHealthHandler(storage storage.Storage, router RouterState, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		storage: storage,
		router:  router,
		logger:  logger,
	}
}

// ServeHTTP reports redis reachability and the active inference provider.
// Running on the fallback provider is degraded service, not an outage, so it
// never fails the check.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, h.logger, http.MethodGet)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := make(map[string]any)
	overallStatus := "healthy"

	if err := h.storage.Ping(ctx); err != nil {
		h.logger.Warn("Storage health check failed", "error", err)
		components["redis"] = "unhealthy"
		overallStatus = "degraded"
	} else {
		components["redis"] = "healthy"
	}

	if h.router != nil {
		st := h.router.State()
		components["inference"] = st.Current
		if st.LocalModel != "" {
			components["local_model"] = st.LocalModel
		}
	}

	response := HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Service:    "arq-village",
		Components: components,
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, h.logger, statusCode, response)
}
