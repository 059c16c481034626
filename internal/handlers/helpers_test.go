package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/arq-village/internal/inference"
	"github.com/jwebster45206/arq-village/internal/memory"
	"github.com/jwebster45206/arq-village/internal/services/events"
	"github.com/jwebster45206/arq-village/pkg/activity"
	"github.com/jwebster45206/arq-village/pkg/world"
)

const testKey = "sk-ant-REDACTED"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testWorld(t *testing.T) *world.World {
	t.Helper()
	w, err := world.Default()
	require.NoError(t, err)
	return w
}

// newTestRouter builds a real router. Pass an untyped nil to leave a provider
// out.
func newTestRouter(local inference.Local, hosted inference.Hosted) *inference.Router {
	return inference.NewRouter(local, hosted, inference.Config{
		LocalModel:   "mock-model",
		FastModel:    "haiku-test",
		QualityModel: "sonnet-test",
	}, testLogger()).WithRand(rand.New(rand.NewSource(1)))
}

type published struct {
	Type events.EventType
	Data any
}

type capturePublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, t events.EventType, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Type: t, Data: data})
	return p.err
}

func (p *capturePublisher) Types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fakeMemories struct {
	mu    sync.Mutex
	added []memory.Memory
}

func (f *fakeMemories) RecentSnippets(context.Context, int) ([]string, error) {
	return []string{"We talked about tulips."}, nil
}

func (f *fakeMemories) Add(_ context.Context, m memory.Memory) (memory.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, m)
	return m, nil
}

type captureLog struct {
	mu      sync.Mutex
	entries []activity.Entry
}

func (c *captureLog) Logf(_ context.Context, kind activity.Kind, format string, args ...any) activity.Entry {
	e := activity.NewEntry(kind, fmt.Sprintf(format, args...), time.Now())
	c.mu.Lock()
	c.entries = append(c.entries, e)
	c.mu.Unlock()
	return e
}

type fakeUsage map[string]int64

func (u fakeUsage) Usage(context.Context) (map[string]int64, error) {
	return map[string]int64(u), nil
}
