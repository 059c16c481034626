package events

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestBroadcaster_PublishAndSubscribe(t *testing.T) {
	client := setupRedis(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := NewSubscriber(client, logger)
	stream, closeSub, err := sub.Subscribe(ctx)
	require.NoError(t, err)
	defer func() { _ = closeSub() }()

	b := NewBroadcaster(client, logger)
	require.NoError(t, b.Publish(ctx, EventTypeAgentThought, ThoughtData{Thought: "The pond looks calm.", Mood: "calm"}))

	select {
	case ev := <-stream:
		assert.Equal(t, EventTypeAgentThought, ev.Type)
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())

		var data ThoughtData
		require.NoError(t, ev.Decode(&data))
		assert.Equal(t, "The pond looks calm.", data.Thought)
		assert.Equal(t, "calm", data.Mood)
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestBroadcaster_SkipsMalformedPayload(t *testing.T) {
	client := setupRedis(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, closeSub, err := NewSubscriber(client, logger).Subscribe(ctx)
	require.NoError(t, err)
	defer func() { _ = closeSub() }()

	require.NoError(t, client.Publish(ctx, Channel, "not json").Err())
	require.NoError(t, NewBroadcaster(client, logger).Publish(ctx, EventTypeDecisionRequested, nil))

	select {
	case ev := <-stream:
		assert.Equal(t, EventTypeDecisionRequested, ev.Type)
		assert.Error(t, ev.Decode(&DecisionRequestData{}), "event without data")
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscriber_StopsOnCancel(t *testing.T) {
	client := setupRedis(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	stream, closeSub, err := NewSubscriber(client, logger).Subscribe(ctx)
	require.NoError(t, err)
	defer func() { _ = closeSub() }()

	cancel()
	select {
	case _, ok := <-stream:
		assert.False(t, ok, "stream should close after cancel")
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close")
	}
}

func TestDiscard(t *testing.T) {
	var p Publisher = Discard{}
	assert.NoError(t, p.Publish(context.Background(), EventTypeAgentUpdated, map[string]string{"a": "b"}))
}
