package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Channel is the Redis Pub/Sub channel every process publishes on.
const Channel = "arq-events"

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeAgentUpdated       EventType = "agent.updated"
	EventTypeAgentThought       EventType = "agent.thought"
	EventTypeRouterState        EventType = "router.state"
	EventTypeActivityLogged     EventType = "activity.logged"
	EventTypeCredentialUpdated  EventType = "settings.credential_updated"
	EventTypeDecisionRequested  EventType = "agent.decide_requested"
	EventTypeWorldChangeApplied EventType = "world.change_applied"
	EventTypeChatReceived       EventType = "agent.chat_received"
)

// Event is the envelope sent over Pub/Sub and the WebSocket stream.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.Type)
	}
	return json.Unmarshal(e.Data, v)
}

// Publisher is what components depend on to emit events.
type Publisher interface {
	Publish(ctx context.Context, eventType EventType, data any) error
}

// Broadcaster publishes events to Redis Pub/Sub
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

var _ Publisher = (*Broadcaster)(nil)

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// Publish wraps data in an Event and publishes it.
func (b *Broadcaster) Publish(ctx context.Context, eventType EventType, data any) error {
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			b.logger.Error("Failed to marshal event data", "error", err, "event_type", eventType)
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
		event.Data = raw
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, Channel, payload).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", Channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", Channel,
		"event_type", event.Type,
		"event_id", event.ID,
	)

	return nil
}

// ThoughtData is the payload of agent.thought.
type ThoughtData struct {
	Thought string `json:"thought"`
	Mood    string `json:"mood,omitempty"`
	Source  string `json:"source,omitempty"`
}

// CredentialData is the payload of settings.credential_updated. The key itself
// never goes over the channel; listeners reload it from storage.
type CredentialData struct {
	Present bool `json:"present"`
}

// DecisionRequestData is the payload of agent.decide_requested.
type DecisionRequestData struct {
	RequestedBy string `json:"requested_by"`
}

// ChatData is the payload of agent.chat_received.
type ChatData struct {
	Message string `json:"message"`
	Reply   string `json:"reply"`
	Source  string `json:"source"`
}

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) Publish(context.Context, EventType, any) error { return nil }
