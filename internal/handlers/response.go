package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/arq-village/internal/inference"
	"github.com/jwebster45206/arq-village/internal/memory"
	"github.com/jwebster45206/arq-village/pkg/activity"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// Router is the slice of the inference router the API uses.
type Router interface {
	Infer(ctx context.Context, system, user string, tier inference.Tier) inference.Result
	State() inference.State
	Refresh(ctx context.Context) inference.State
	UpdateCredential(ctx context.Context, key string) inference.State
}

var _ Router = (*inference.Router)(nil)

// MemoryStore is what chat needs from the memory database.
type MemoryStore interface {
	RecentSnippets(ctx context.Context, limit int) ([]string, error)
	Add(ctx context.Context, m memory.Memory) (memory.Memory, error)
}

// UsageReader reports per-source inference counts.
type UsageReader interface {
	Usage(ctx context.Context) (map[string]int64, error)
}

// ActivityLog receives human-readable activity lines.
type ActivityLog interface {
	Logf(ctx context.Context, kind activity.Kind, format string, args ...any) activity.Entry
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err, "status", status)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, msg string) {
	writeJSON(w, logger, status, ErrorResponse{Error: msg})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, logger *slog.Logger, allowed ...string) {
	logger.Warn("Method not allowed",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	writeError(w, logger, http.StatusMethodNotAllowed, "Method not allowed.")
}

func jsonRaw(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
