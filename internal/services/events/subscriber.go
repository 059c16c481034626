package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Subscriber reads events from the Pub/Sub channel.
type Subscriber struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

func NewSubscriber(redisClient *redis.Client, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		redisClient: redisClient,
		logger:      logger,
	}
}

// Subscribe confirms the subscription and then streams decoded events until
// ctx is done or the returned close func is called. Malformed payloads are
// logged and skipped.
func (s *Subscriber) Subscribe(ctx context.Context) (<-chan Event, func() error, error) {
	ps := s.redisClient.Subscribe(ctx, Channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", Channel, err)
	}

	out := make(chan Event, 32)
	msgs := ps.Channel()
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					s.logger.Warn("Dropping malformed event", "error", err, "channel", msg.Channel)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, ps.Close, nil
}
