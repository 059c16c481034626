package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/arq-village/internal/inference"
	"github.com/jwebster45206/arq-village/internal/logger"
	"github.com/jwebster45206/arq-village/internal/memory"
	"github.com/jwebster45206/arq-village/internal/planner"
	"github.com/jwebster45206/arq-village/pkg/activity"
	"github.com/jwebster45206/arq-village/pkg/state"
	"github.com/jwebster45206/arq-village/pkg/storage"
	"github.com/jwebster45206/arq-village/pkg/world"
)

// a (0,0) and b (0,4) are joined along row 0; island sits behind a wall.
const testWorldYAML = `
name: Test
spawn: a
legend:
  ".": grass
  "#": wall
rows:
  - "....."
  - ".###."
  - "....."
  - "#####"
  - "....."
locations:
  - key: a
    row: 0
    col: 0
  - key: b
    row: 0
    col: 4
    work: true
  - key: island
    row: 4
    col: 2
`

const (
	testStep    = 100 * time.Millisecond
	testThought = 5 * time.Second
)

type fakeDecider struct {
	mu      sync.Mutex
	intent  *planner.MoveIntent
	calls   int
	current []string
	gate    chan struct{}
	entered chan struct{}
}

func (d *fakeDecider) DecideNextMove(ctx context.Context, current string, recent []string, mood state.Mood, lastChat string) *planner.MoveIntent {
	d.mu.Lock()
	d.calls++
	d.current = append(d.current, current)
	intent := d.intent
	gate, entered := d.gate, d.entered
	d.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil
		}
	}
	if intent == nil {
		return nil
	}
	cp := *intent
	return &cp
}

func (d *fakeDecider) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
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

func (c *captureLog) Entries(kind activity.Kind) []activity.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []activity.Entry
	for _, e := range c.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type fakeInferer struct {
	mu     sync.Mutex
	result inference.Result
	calls  []inference.Tier
}

func (f *fakeInferer) Infer(_ context.Context, _, _ string, tier inference.Tier) inference.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tier)
	return f.result
}

type fakeMemories struct {
	mu    sync.Mutex
	added []memory.Memory
}

func (f *fakeMemories) RecentSnippets(context.Context, int) ([]string, error) {
	return []string{"The library was quiet."}, nil
}

func (f *fakeMemories) Add(_ context.Context, m memory.Memory) (memory.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, m)
	return m, nil
}

func (f *fakeMemories) Added() []memory.Memory {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]memory.Memory(nil), f.added...)
}

type loopFixture struct {
	world   *world.World
	store   *storage.MockStorage
	agent   *Agent
	decider *fakeDecider
	log     *captureLog
	clock   *FakeClock
	loop    *DecisionLoop
}

func newLoopFixture(t *testing.T) *loopFixture {
	t.Helper()
	w, err := world.Parse([]byte(testWorldYAML))
	require.NoError(t, err)

	store := storage.NewMockStorage()
	agent, err := LoadAgent(context.Background(), store, nil, w, logger.Discard())
	require.NoError(t, err)

	f := &loopFixture{
		world:   w,
		store:   store,
		agent:   agent,
		decider: &fakeDecider{},
		log:     &captureLog{},
		clock:   NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)),
	}
	f.loop = NewDecisionLoop(LoopConfig{
		InitialDelay:    time.Second,
		Period:          10 * time.Second,
		StepDelay:       testStep,
		ThoughtDuration: testThought,
	}, w, agent, f.decider, f.log, logger.Discard()).WithClock(f.clock)
	return f
}

// step advances the clock through n walk steps.
func (f *loopFixture) step(n int) {
	for i := 0; i < n; i++ {
		f.clock.BlockUntil(1)
		f.clock.Advance(testStep)
	}
}
