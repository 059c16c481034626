package worker

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/jwebster45206/arq-village/internal/inference"
	"github.com/jwebster45206/arq-village/internal/memory"
	"github.com/jwebster45206/arq-village/pkg/activity"
	"github.com/jwebster45206/arq-village/pkg/prompts"
	"github.com/jwebster45206/arq-village/pkg/state"
	"github.com/jwebster45206/arq-village/pkg/textfilter"
	"github.com/jwebster45206/arq-village/pkg/world"
)

// Inferer is the router call the task runner makes.
type Inferer interface {
	Infer(ctx context.Context, system, user string, tier inference.Tier) inference.Result
}

// MemoryStore is the memory access work tasks need.
type MemoryStore interface {
	RecentSnippets(ctx context.Context, limit int) ([]string, error)
	Add(ctx context.Context, m memory.Memory) (memory.Memory, error)
}

// TaskRunner occasionally has Arq do some work after arriving at a work
// location. The note it writes is kept as a memory.
type TaskRunner struct {
	inferer  Inferer
	memories MemoryStore
	activity ActivityLog
	chance   float64
	logger   *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewTaskRunner(inferer Inferer, memories MemoryStore, activityLog ActivityLog, chance float64, logger *slog.Logger) *TaskRunner {
	return &TaskRunner{
		inferer:  inferer,
		memories: memories,
		activity: activityLog,
		chance:   chance,
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithRand makes the work roll deterministic.
func (t *TaskRunner) WithRand(rng *rand.Rand) *TaskRunner {
	t.rng = rng
	return t
}

func (t *TaskRunner) roll() bool {
	if t.chance <= 0 {
		return false
	}
	t.rngMu.Lock()
	defer t.rngMu.Unlock()
	return t.rng.Float64() < t.chance
}

// MaybeWork rolls the work chance and, on success, runs one task at loc.
// It reports whether a work note was stored.
func (t *TaskRunner) MaybeWork(ctx context.Context, log *slog.Logger, loc world.Location, mood state.Mood) bool {
	if !t.roll() {
		return false
	}
	return t.Work(ctx, log, loc, mood)
}

// Work runs a task-tier inference for a short work note.
func (t *TaskRunner) Work(ctx context.Context, log *slog.Logger, loc world.Location, mood state.Mood) bool {
	snippets, err := t.memories.RecentSnippets(ctx, prompts.MemorySnippetLimit)
	if err != nil {
		log.Warn("Failed to recall memories for task", "error", err)
	}

	system, user := prompts.TaskPrompt(loc, mood, snippets)
	result := t.inferer.Infer(ctx, system, user, inference.TierTask)
	if !result.OK() {
		log.Warn("Work task got no answer", "location", loc.Key, "source", result.Source)
		return false
	}

	note := textfilter.TruncateWords(result.Response, 60)
	if _, err := t.memories.Add(ctx, memory.Memory{
		Kind:     memory.KindWork,
		Text:     note,
		Location: loc.Key,
	}); err != nil {
		log.Error("Failed to store work memory", "error", err)
	}

	t.activity.Logf(ctx, activity.KindWork, "Worked at the %s: %s", loc.Name, textfilter.Preview(note, 120))
	log.Info("Work task complete", "location", loc.Key, "source", result.Source)
	return true
}
