package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jwebster45206/arq-village/internal/services/events"
	"github.com/jwebster45206/arq-village/pkg/state"
	"github.com/jwebster45206/arq-village/pkg/storage"
	"github.com/jwebster45206/arq-village/pkg/world"
)

// Agent owns the in-memory AgentState of the worker process. Every change is
// persisted and published so the API and console see it.
type Agent struct {
	// persistMu is held from mutation through save so snapshots reach
	// storage in the order they were taken. Lock it before mu.
	persistMu  sync.Mutex
	mu         sync.Mutex
	state      *state.AgentState
	thoughtSeq uint64

	store     storage.Storage
	publisher events.Publisher
	logger    *slog.Logger
}

// LoadAgent restores the stored agent, or spawns a new one when nothing is
// stored or the stored position is no longer walkable.
func LoadAgent(ctx context.Context, store storage.Storage, publisher events.Publisher, w *world.World, logger *slog.Logger) (*Agent, error) {
	s, err := store.LoadAgent(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load agent: %w", err)
	}

	switch {
	case s == nil:
		logger.Info("No stored agent, spawning", "spawn", w.Spawn)
		s = state.NewAgentState(w)
	case !w.Grid.IsWalkable(s.Position.Row, s.Position.Col):
		logger.Warn("Stored position is not walkable, respawning",
			"row", s.Position.Row, "col", s.Position.Col)
		s = state.NewAgentState(w)
	default:
		// a walk interrupted by a restart never finishes
		s.Status = state.StatusIdle
		s.Destination = ""
		s.Thought = ""
	}

	if publisher == nil {
		publisher = events.Discard{}
	}
	a := &Agent{state: s, store: store, publisher: publisher, logger: logger}
	if err := store.SaveAgent(ctx, s.Clone()); err != nil {
		return nil, fmt.Errorf("failed to save agent: %w", err)
	}
	return a, nil
}

// Snapshot returns a copy of the current state.
func (a *Agent) Snapshot() *state.AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Clone()
}

// Update applies fn under the lock, then persists and publishes the result.
func (a *Agent) Update(ctx context.Context, fn func(s *state.AgentState)) *state.AgentState {
	a.persistMu.Lock()
	defer a.persistMu.Unlock()

	a.mu.Lock()
	fn(a.state)
	snap := a.state.Clone()
	a.mu.Unlock()

	a.persist(ctx, snap)
	return snap
}

// ShowThought sets the visible thought and returns a token for ClearThought.
func (a *Agent) ShowThought(ctx context.Context, thought string, mood state.Mood, source string) uint64 {
	a.persistMu.Lock()
	defer a.persistMu.Unlock()

	a.mu.Lock()
	a.thoughtSeq++
	seq := a.thoughtSeq
	a.state.Thought = thought
	snap := a.state.Clone()
	a.mu.Unlock()

	a.persist(ctx, snap)
	if err := a.publisher.Publish(ctx, events.EventTypeAgentThought, events.ThoughtData{
		Thought: thought,
		Mood:    string(mood),
		Source:  source,
	}); err != nil {
		a.logger.Warn("Failed to publish thought", "error", err)
	}
	return seq
}

// ClearThought clears the thought shown under seq. A newer thought is left
// alone.
func (a *Agent) ClearThought(ctx context.Context, seq uint64) bool {
	a.persistMu.Lock()
	defer a.persistMu.Unlock()

	a.mu.Lock()
	if seq != a.thoughtSeq || a.state.Thought == "" {
		a.mu.Unlock()
		return false
	}
	a.state.Thought = ""
	snap := a.state.Clone()
	a.mu.Unlock()

	a.persist(ctx, snap)
	return true
}

// persist must be called with persistMu held.
func (a *Agent) persist(ctx context.Context, snap *state.AgentState) {
	ctx = context.WithoutCancel(ctx)
	if err := a.store.SaveAgent(ctx, snap); err != nil {
		a.logger.Error("Failed to save agent state", "error", err)
	}
	if err := a.publisher.Publish(ctx, events.EventTypeAgentUpdated, snap); err != nil {
		a.logger.Warn("Failed to publish agent state", "error", err)
	}
}
