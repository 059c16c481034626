package worker

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/arq-village/internal/logger"
	"github.com/jwebster45206/arq-village/internal/planner"
	"github.com/jwebster45206/arq-village/pkg/activity"
	"github.com/jwebster45206/arq-village/pkg/state"
	"github.com/jwebster45206/arq-village/pkg/world"
)

// Decider picks the next move. *planner.Planner implements it.
type Decider interface {
	DecideNextMove(ctx context.Context, current string, recent []string, mood state.Mood, lastChat string) *planner.MoveIntent
}

// ActivityLog receives human-readable activity lines.
type ActivityLog interface {
	Logf(ctx context.Context, kind activity.Kind, format string, args ...any) activity.Entry
}

// LoopConfig holds the loop timings.
type LoopConfig struct {
	InitialDelay    time.Duration
	Period          time.Duration
	Jitter          float64 // extra delay per cycle, as a fraction of Period
	StepDelay       time.Duration
	ThoughtDuration time.Duration
}

// DecisionLoop runs Arq's autonomous decide-and-walk cycles. At most one cycle
// runs at a time; a trigger that arrives while a cycle is in flight is dropped.
type DecisionLoop struct {
	cfg      LoopConfig
	agent    *Agent
	decider  Decider
	tasks    *TaskRunner
	activity ActivityLog
	clock    Clock
	logger   *slog.Logger

	worldMu sync.RWMutex
	world   *world.World

	rngMu sync.Mutex
	rng   *rand.Rand

	busy atomic.Bool
	wg   sync.WaitGroup

	// stopMu orders wg.Add in TriggerCycle against Run's final wg.Wait.
	stopMu  sync.Mutex
	stopped bool
}

func NewDecisionLoop(cfg LoopConfig, w *world.World, agent *Agent, decider Decider, activityLog ActivityLog, logger *slog.Logger) *DecisionLoop {
	return &DecisionLoop{
		cfg:      cfg,
		world:    w,
		agent:    agent,
		decider:  decider,
		activity: activityLog,
		clock:    RealClock(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:   logger,
	}
}

// WithClock replaces the wall clock.
func (l *DecisionLoop) WithClock(c Clock) *DecisionLoop {
	l.clock = c
	return l
}

// WithRand makes jitter deterministic.
func (l *DecisionLoop) WithRand(rng *rand.Rand) *DecisionLoop {
	l.rng = rng
	return l
}

// WithTasks enables work tasks at work locations.
func (l *DecisionLoop) WithTasks(t *TaskRunner) *DecisionLoop {
	l.tasks = t
	return l
}

// World returns the world used for the next cycle.
func (l *DecisionLoop) World() *world.World {
	l.worldMu.RLock()
	defer l.worldMu.RUnlock()
	return l.world
}

// SetWorld swaps the world, e.g. after new world changes. A walk in progress
// keeps the route it already computed.
func (l *DecisionLoop) SetWorld(w *world.World) {
	l.worldMu.Lock()
	defer l.worldMu.Unlock()
	l.world = w
}

// Busy reports whether a cycle is in flight.
func (l *DecisionLoop) Busy() bool {
	return l.busy.Load()
}

// Run waits the initial delay, then triggers a cycle every Period plus jitter
// until ctx is done. It returns after every cycle goroutine has finished.
func (l *DecisionLoop) Run(ctx context.Context) error {
	defer l.stop()

	l.logger.Info("Decision loop starting",
		"initial_delay", l.cfg.InitialDelay,
		"period", l.cfg.Period,
		"jitter", l.cfg.Jitter)

	if err := sleep(ctx, l.clock, l.cfg.InitialDelay); err != nil {
		l.logger.Info("Decision loop stopped")
		return nil
	}
	for {
		if !l.TriggerCycle(ctx) {
			l.logger.Debug("Cycle skipped, previous cycle still running")
		}
		if err := sleep(ctx, l.clock, l.nextDelay()); err != nil {
			l.logger.Info("Decision loop stopped")
			return nil
		}
	}
}

// stop refuses new cycles, then waits for the running ones.
func (l *DecisionLoop) stop() {
	l.stopMu.Lock()
	l.stopped = true
	l.stopMu.Unlock()
	l.wg.Wait()
}

// Wait blocks until every cycle and pending thought clear has finished.
func (l *DecisionLoop) Wait() {
	l.wg.Wait()
}

func (l *DecisionLoop) nextDelay() time.Duration {
	d := l.cfg.Period
	if l.cfg.Jitter > 0 && l.cfg.Period > 0 {
		l.rngMu.Lock()
		f := l.rng.Float64()
		l.rngMu.Unlock()
		d += time.Duration(f * l.cfg.Jitter * float64(l.cfg.Period))
	}
	return d
}

// TriggerCycle starts a cycle in the background. It returns false without
// doing anything when a cycle is already running or the loop has stopped.
func (l *DecisionLoop) TriggerCycle(ctx context.Context) bool {
	l.stopMu.Lock()
	defer l.stopMu.Unlock()
	if l.stopped || ctx.Err() != nil {
		return false
	}
	if !l.busy.CompareAndSwap(false, true) {
		return false
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.busy.Store(false)
		l.runCycle(ctx)
	}()
	return true
}

func (l *DecisionLoop) runCycle(ctx context.Context) {
	log := logger.WithCycleID(l.logger, uuid.NewString()[:8])
	defer func() {
		if r := recover(); r != nil {
			log.Error("Decision cycle panicked", "panic", r)
		}
	}()

	start := l.clock.Now()
	w := l.World()
	snap := l.agent.Snapshot()

	here, ok := w.Locations.Nearest(snap.Position)
	if !ok {
		log.Error("World has no locations")
		return
	}

	intent := l.decider.DecideNextMove(ctx, here.Key, snap.RecentLocations, snap.Mood, snap.LastChat)
	if intent == nil {
		log.Info("No valid move this cycle", "location", here.Key)
		return
	}

	dest, ok := w.Locations.Get(intent.Destination)
	if !ok {
		log.Warn("Planner returned an unknown destination", "destination", intent.Destination)
		return
	}

	route := w.Grid.FindPath(snap.Position.Row, snap.Position.Col, dest.Row, dest.Col)
	if len(route) == 0 {
		if snap.Position == dest.Position() {
			log.Info("Already there", "destination", dest.Key, "source", intent.Source)
			l.arrive(ctx, log, dest, intent)
			return
		}
		log.Warn("Destination unreachable",
			"destination", dest.Key,
			"row", snap.Position.Row,
			"col", snap.Position.Col)
		l.activity.Logf(ctx, activity.KindSystem, "Couldn't find a way to the %s", dest.Name)
		return
	}

	log.Info("Walking",
		"from", here.Key,
		"destination", dest.Key,
		"steps", len(route),
		"source", intent.Source)
	l.activity.Logf(ctx, activity.KindMove, "Heading from the %s to the %s", here.Name, dest.Name)

	if err := l.walk(ctx, snap.Position, route, dest.Key); err != nil {
		log.Info("Walk interrupted", "error", err)
		l.agent.Update(ctx, func(s *state.AgentState) {
			s.Status = state.StatusIdle
			s.Destination = ""
		})
		return
	}

	l.arrive(ctx, log, dest, intent)
	log.Info("Decision cycle complete",
		"destination", dest.Key,
		"duration_ms", l.clock.Now().Sub(start).Milliseconds())
}

// walk moves one cell per StepDelay along route.
func (l *DecisionLoop) walk(ctx context.Context, from world.Position, route []world.Position, destination string) error {
	l.agent.Update(ctx, func(s *state.AgentState) {
		s.Status = state.StatusWalking
		s.Destination = destination
	})

	prev := from
	for _, step := range route {
		if err := sleep(ctx, l.clock, l.cfg.StepDelay); err != nil {
			return err
		}
		next := step
		last := prev
		l.agent.Update(ctx, func(s *state.AgentState) {
			s.Facing = world.Facing(last, next, s.Facing)
			s.Position = next
		})
		prev = step
	}
	return nil
}

// arrive settles Arq at dest: idle, new mood, thought shown, maybe some work.
func (l *DecisionLoop) arrive(ctx context.Context, log *slog.Logger, dest world.Location, intent *planner.MoveIntent) {
	snap := l.agent.Update(ctx, func(s *state.AgentState) {
		s.Status = state.StatusIdle
		s.Destination = ""
		s.Location = dest.Key
		s.Mood = intent.Mood
		s.RememberLocation(dest.Key, state.RecentLocationLimit)
	})

	if intent.Thought != "" {
		l.activity.Logf(ctx, activity.KindThought, "%s", intent.Thought)
		seq := l.agent.ShowThought(ctx, intent.Thought, intent.Mood, string(intent.Source))
		l.scheduleThoughtClear(ctx, seq)
	}

	if l.tasks != nil && dest.Work {
		l.tasks.MaybeWork(ctx, log, dest, snap.Mood)
	}
}

func (l *DecisionLoop) scheduleThoughtClear(ctx context.Context, seq uint64) {
	if l.cfg.ThoughtDuration <= 0 {
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := sleep(ctx, l.clock, l.cfg.ThoughtDuration); err != nil {
			return
		}
		l.agent.ClearThought(ctx, seq)
	}()
}
