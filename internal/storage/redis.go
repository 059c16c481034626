package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/arq-village/pkg/activity"
	"github.com/jwebster45206/arq-village/pkg/state"
	"github.com/jwebster45206/arq-village/pkg/storage"
	"github.com/jwebster45206/arq-village/pkg/world"
)

const (
	keyAgent        = "agent:state"
	keyActivity     = "activity:log"
	keyCredential   = "settings:anthropic_key"
	keyWorldChanges = "world:changes"
)

// RedisStorage implements the Storage interface using Redis
type RedisStorage struct {
	client *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// Ensure RedisStorage implements Storage interface
var _ storage.Storage = (*RedisStorage)(nil)

// NewRedisStorage creates a new Redis storage instance. redisURL is either a
// bare host:port or a redis:// URL.
func NewRedisStorage(redisURL string, logger *slog.Logger) *RedisStorage {
	opts := &redis.Options{Addr: redisURL}
	if strings.Contains(redisURL, "://") {
		if parsed, err := redis.ParseURL(redisURL); err == nil {
			opts = parsed
		} else {
			logger.Warn("Invalid redis URL, using it as an address", "error", err)
		}
	}
	return NewRedisStorageFromClient(redis.NewClient(opts), logger)
}

// NewRedisStorageFromClient wraps an existing client.
func NewRedisStorageFromClient(client *redis.Client, logger *slog.Logger) *RedisStorage {
	return &RedisStorage{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Client exposes the underlying client for Pub/Sub.
func (r *RedisStorage) Client() *redis.Client {
	return r.client
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	cmd := r.client.Ping(ctx)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context, maxRetries int, retryDelay time.Duration) error {
	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

// Agent state

func (r *RedisStorage) SaveAgent(ctx context.Context, s *state.AgentState) error {
	if s == nil {
		return fmt.Errorf("agent state cannot be nil")
	}
	s.UpdatedAt = r.now().UTC()

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal agent state: %w", err)
	}
	if err := r.client.Set(ctx, keyAgent, data, 0).Err(); err != nil {
		r.logger.Error("Failed to save agent state", "error", err)
		return fmt.Errorf("failed to save agent state: %w", err)
	}
	return nil
}

func (r *RedisStorage) LoadAgent(ctx context.Context) (*state.AgentState, error) {
	data, err := r.client.Get(ctx, keyAgent).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		r.logger.Error("Failed to load agent state", "error", err)
		return nil, fmt.Errorf("failed to load agent state: %w", err)
	}

	var s state.AgentState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent state: %w", err)
	}
	return &s, nil
}

// Activity log

func (r *RedisStorage) AppendActivity(ctx context.Context, e activity.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, keyActivity, data)
	pipe.LTrim(ctx, keyActivity, 0, storage.ActivityLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to append activity", "error", err)
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

func (r *RedisStorage) ListActivity(ctx context.Context, limit int) ([]activity.Entry, error) {
	if limit <= 0 || limit > storage.ActivityLimit {
		limit = storage.ActivityLimit
	}
	raw, err := r.client.LRange(ctx, keyActivity, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}

	out := make([]activity.Entry, 0, len(raw))
	for _, item := range raw {
		var e activity.Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			r.logger.Warn("Skipping malformed activity entry", "error", err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Credential

func (r *RedisStorage) SaveCredential(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	var err error
	if key == "" {
		err = r.client.Del(ctx, keyCredential).Err()
	} else {
		err = r.client.Set(ctx, keyCredential, key, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

func (r *RedisStorage) LoadCredential(ctx context.Context) (string, error) {
	key, err := r.client.Get(ctx, keyCredential).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to load credential: %w", err)
	}
	return key, nil
}

// World changes are a hash of "row,col" to cell kind.

func (r *RedisStorage) AddWorldChange(ctx context.Context, c world.WorldChange) error {
	field := fmt.Sprintf("%d,%d", c.Row, c.Col)
	if err := r.client.HSet(ctx, keyWorldChanges, field, string(c.Kind)).Err(); err != nil {
		return fmt.Errorf("failed to add world change: %w", err)
	}
	return nil
}

func (r *RedisStorage) ListWorldChanges(ctx context.Context) ([]world.WorldChange, error) {
	all, err := r.client.HGetAll(ctx, keyWorldChanges).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list world changes: %w", err)
	}

	out := make([]world.WorldChange, 0, len(all))
	for field, kind := range all {
		rowStr, colStr, ok := strings.Cut(field, ",")
		if !ok {
			r.logger.Warn("Skipping malformed world change", "field", field)
			continue
		}
		row, err1 := strconv.Atoi(rowStr)
		col, err2 := strconv.Atoi(colStr)
		if err1 != nil || err2 != nil {
			r.logger.Warn("Skipping malformed world change", "field", field)
			continue
		}
		out = append(out, world.WorldChange{Row: row, Col: col, Kind: world.CellKind(kind)})
	}
	storage.SortChanges(out)
	return out, nil
}
