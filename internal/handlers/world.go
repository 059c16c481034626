package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/arq-village/internal/services/events"
	"github.com/jwebster45206/arq-village/pkg/state"
	"github.com/jwebster45206/arq-village/pkg/storage"
	"github.com/jwebster45206/arq-village/pkg/world"
)

// currentWorld applies every stored change to base.
func currentWorld(ctx context.Context, base *world.World, store storage.Storage) (*world.World, error) {
	changes, err := store.ListWorldChanges(ctx)
	if err != nil {
		return nil, err
	}
	return base.WithChanges(changes), nil
}

type WorldResponse struct {
	Name      string                    `json:"name"`
	Rows      []string                  `json:"rows"`
	Legend    map[string]world.CellKind `json:"legend"`
	Locations []world.Location          `json:"locations"`
	Changes   []world.WorldChange       `json:"changes"`
}

// WorldHandler serves the map and accepts permanent world changes.
type WorldHandler struct {
	base      *world.World
	storage   storage.Storage
	publisher events.Publisher
	logger    *slog.Logger
}

func NewWorldHandler(base *world.World, storage storage.Storage, publisher events.Publisher, logger *slog.Logger) *WorldHandler {
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &WorldHandler{base: base, storage: storage, publisher: publisher, logger: logger}
}

// Routes:
// GET /v1/world          - map with changes applied
// POST /v1/world/changes - add a change
func (h *WorldHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/v1/world", "/v1/world/":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, h.logger, http.MethodGet)
			return
		}
		h.get(w, r)
	case "/v1/world/changes":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, h.logger, http.MethodPost)
			return
		}
		h.addChange(w, r)
	default:
		writeError(w, h.logger, http.StatusNotFound, "Not found.")
	}
}

func (h *WorldHandler) get(w http.ResponseWriter, r *http.Request) {
	current, err := currentWorld(r.Context(), h.base, h.storage)
	if err != nil {
		h.logger.Error("Failed to load world changes", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load the world.")
		return
	}
	changes := current.Grid.Changes()
	storage.SortChanges(changes)

	writeJSON(w, h.logger, http.StatusOK, WorldResponse{
		Name:      current.Name,
		Rows:      current.Render(),
		Legend:    current.Legend(),
		Locations: current.Locations.All(),
		Changes:   changes,
	})
}

func (h *WorldHandler) addChange(w http.ResponseWriter, r *http.Request) {
	var change world.WorldChange
	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body. Expected JSON with 'row', 'col' and 'kind'.")
		return
	}
	if !change.Kind.Valid() {
		writeError(w, h.logger, http.StatusBadRequest, fmt.Sprintf("Unknown cell kind %q.", change.Kind))
		return
	}
	if !h.base.Grid.InBounds(change.Row, change.Col) {
		writeError(w, h.logger, http.StatusBadRequest, "Cell is outside the map.")
		return
	}

	changed := h.base.Grid.WithChanges([]world.WorldChange{change})
	if loc, ok := h.base.Locations.At(world.Position{Row: change.Row, Col: change.Col}); ok && !changed.IsWalkable(change.Row, change.Col) {
		writeError(w, h.logger, http.StatusConflict, fmt.Sprintf("The %s must stay walkable.", loc.Name))
		return
	}

	if err := h.storage.AddWorldChange(r.Context(), change); err != nil {
		h.logger.Error("Failed to store world change", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to store the change.")
		return
	}
	if err := h.publisher.Publish(r.Context(), events.EventTypeWorldChangeApplied, change); err != nil {
		h.logger.Warn("Failed to publish world change", "error", err)
	}

	h.logger.Info("World change applied", "row", change.Row, "col", change.Col, "kind", change.Kind)
	writeJSON(w, h.logger, http.StatusCreated, change)
}

type PathResponse struct {
	From  string           `json:"from"`
	To    string           `json:"to"`
	Steps int              `json:"steps"`
	Route []world.Position `json:"route"`
}

// PathHandler computes a route between two locations on the current map.
type PathHandler struct {
	base    *world.World
	storage storage.Storage
	logger  *slog.Logger
}

func NewPathHandler(base *world.World, storage storage.Storage, logger *slog.Logger) *PathHandler {
	return &PathHandler{base: base, storage: storage, logger: logger}
}

// GET /v1/path?from=key&to=key. A missing from means Arq's current position.
func (h *PathHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, h.logger, http.MethodGet)
		return
	}

	ctx := r.Context()
	current, err := currentWorld(ctx, h.base, h.storage)
	if err != nil {
		h.logger.Error("Failed to load world changes", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load the world.")
		return
	}

	toKey := r.URL.Query().Get("to")
	to, ok := current.Locations.Get(toKey)
	if !ok {
		writeError(w, h.logger, http.StatusBadRequest, fmt.Sprintf("Unknown destination %q.", toKey))
		return
	}

	fromKey := r.URL.Query().Get("from")
	var start world.Position
	if fromKey == "" {
		agent, err := h.storage.LoadAgent(ctx)
		if err != nil {
			h.logger.Error("Failed to load agent", "error", err)
			writeError(w, h.logger, http.StatusInternalServerError, "Failed to load Arq's state.")
			return
		}
		if agent == nil {
			agent = state.NewAgentState(current)
		}
		start = agent.Position
		fromKey = agent.Location
	} else {
		from, ok := current.Locations.Get(fromKey)
		if !ok {
			writeError(w, h.logger, http.StatusBadRequest, fmt.Sprintf("Unknown origin %q.", fromKey))
			return
		}
		start = from.Position()
	}

	route := current.Grid.FindPath(start.Row, start.Col, to.Row, to.Col)
	if len(route) == 0 && start != to.Position() {
		writeError(w, h.logger, http.StatusNotFound, fmt.Sprintf("No path to the %s.", to.Name))
		return
	}
	if route == nil {
		route = []world.Position{}
	}

	writeJSON(w, h.logger, http.StatusOK, PathResponse{
		From:  fromKey,
		To:    to.Key,
		Steps: len(route),
		Route: route,
	})
}
