package handlers

import (
	"log/slog"
	"net/http"

	"github.com/jwebster45206/arq-village/internal/services/events"
	"github.com/jwebster45206/arq-village/pkg/state"
	"github.com/jwebster45206/arq-village/pkg/storage"
	"github.com/jwebster45206/arq-village/pkg/world"
)

// AgentHandler serves Arq's current state.
type AgentHandler struct {
	storage storage.Storage
	world   *world.World
	logger  *slog.Logger
}

func NewAgentHandler(storage storage.Storage, w *world.World, logger *slog.Logger) *AgentHandler {
	return &AgentHandler{storage: storage, world: w, logger: logger}
}

// GET /v1/agent. Before the worker has saved anything, Arq is reported idle at
// the spawn point.
func (h *AgentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, h.logger, http.MethodGet)
		return
	}

	agent, err := h.storage.LoadAgent(r.Context())
	if err != nil {
		h.logger.Error("Failed to load agent", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load Arq's state.")
		return
	}
	if agent == nil {
		agent = state.NewAgentState(h.world)
	}
	writeJSON(w, h.logger, http.StatusOK, agent)
}

type DecideResponse struct {
	Status string `json:"status"`
}

// DecideHandler asks the worker to run a decision cycle now.
type DecideHandler struct {
	publisher events.Publisher
	logger    *slog.Logger
}

func NewDecideHandler(publisher events.Publisher, logger *slog.Logger) *DecideHandler {
	return &DecideHandler{publisher: publisher, logger: logger}
}

// POST /v1/agent/decide. The worker drops the request if a cycle is already
// running, so 202 only means the request was delivered.
func (h *DecideHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, h.logger, http.MethodPost)
		return
	}

	if err := h.publisher.Publish(r.Context(), events.EventTypeDecisionRequested, events.DecisionRequestData{
		RequestedBy: r.RemoteAddr,
	}); err != nil {
		h.logger.Error("Failed to request decision", "error", err)
		writeError(w, h.logger, http.StatusServiceUnavailable, "Failed to reach the worker.")
		return
	}
	writeJSON(w, h.logger, http.StatusAccepted, DecideResponse{Status: "requested"})
}
