package storage

import (
	"context"

	"github.com/jwebster45206/arq-village/pkg/activity"
	"github.com/jwebster45206/arq-village/pkg/state"
	"github.com/jwebster45206/arq-village/pkg/world"
)

// ActivityLimit is how many activity entries are kept in the live log.
const ActivityLimit = 200

// Storage defines a unified interface for the shared state both processes read
// and write.
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// Agent snapshot. LoadAgent returns nil, nil when nothing is stored yet.
	SaveAgent(ctx context.Context, s *state.AgentState) error
	LoadAgent(ctx context.Context) (*state.AgentState, error)

	// Activity log, newest first, capped at ActivityLimit.
	AppendActivity(ctx context.Context, e activity.Entry) error
	ListActivity(ctx context.Context, limit int) ([]activity.Entry, error)

	// Hosted credential supplied through the settings endpoint. An empty
	// string means none is cached.
	SaveCredential(ctx context.Context, key string) error
	LoadCredential(ctx context.Context) (string, error)

	// Permanent world overlay cells. A later change to the same cell wins.
	AddWorldChange(ctx context.Context, c world.WorldChange) error
	ListWorldChanges(ctx context.Context) ([]world.WorldChange, error)
}
