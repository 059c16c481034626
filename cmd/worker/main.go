package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/arq-village/internal/config"
	"github.com/jwebster45206/arq-village/internal/inference"
	"github.com/jwebster45206/arq-village/internal/logger"
	"github.com/jwebster45206/arq-village/internal/memory"
	"github.com/jwebster45206/arq-village/internal/planner"
	"github.com/jwebster45206/arq-village/internal/recorder"
	"github.com/jwebster45206/arq-village/internal/services"
	"github.com/jwebster45206/arq-village/internal/services/events"
	"github.com/jwebster45206/arq-village/internal/storage"
	"github.com/jwebster45206/arq-village/internal/worker"
	"github.com/jwebster45206/arq-village/pkg/world"
)

const (
	memoryKeep     = 1000
	pruneInterval  = time.Hour
	storageTimeout = 2 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Arq Village Worker",
		"environment", cfg.Environment,
		"redis_url", cfg.RedisURL,
		"decision_period", cfg.DecisionPeriod)

	baseWorld, err := loadWorld(cfg)
	if err != nil {
		log.Error("Failed to load world", "error", err, "world_file", cfg.WorldFile)
		os.Exit(1)
	}

	store := storage.NewRedisStorage(cfg.RedisURL, log)
	storageCtx, storageCancel := context.WithTimeout(context.Background(), storageTimeout)
	defer storageCancel()
	if err := store.WaitForConnection(storageCtx, 30, 2*time.Second); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing storage connection", "error", err)
		}
	}()
	log.Info("Storage service initialized successfully")

	memories, err := memory.Open(cfg.MemoryDB)
	if err != nil {
		log.Error("Failed to open memory database", "error", err, "path", cfg.MemoryDB)
		os.Exit(1)
	}
	defer func() {
		if err := memories.Close(); err != nil {
			log.Error("Error closing memory database", "error", err)
		}
	}()

	archive := storage.NewArchive(cfg.ArchiveDir, "worker")
	defer func() {
		if err := archive.Close(); err != nil {
			log.Error("Error closing activity archive", "error", err)
		}
	}()

	broadcaster := events.NewBroadcaster(store.Client(), log)
	subscriber := events.NewSubscriber(store.Client(), log)
	rec := recorder.New(store, broadcaster, log).WithArchive(archive).WithUsage(memories)

	router := newRouter(cfg, store, broadcaster, rec, log)
	initCtx, initCancel := context.WithTimeout(context.Background(), time.Minute)
	st := router.Init(initCtx)
	initCancel()
	log.Info("Inference router ready", "current", st.Current, "local_model", st.LocalModel)

	changes, err := store.ListWorldChanges(storageCtx)
	if err != nil {
		log.Error("Failed to load world changes", "error", err)
		os.Exit(1)
	}
	current := baseWorld.WithChanges(changes)

	agent, err := worker.LoadAgent(storageCtx, store, broadcaster, current, log)
	if err != nil {
		log.Error("Failed to load agent state", "error", err)
		os.Exit(1)
	}

	decider, err := planner.New(router, memories, current.Locations, log)
	if err != nil {
		log.Error("Failed to create planner", "error", err)
		os.Exit(1)
	}
	tasks := worker.NewTaskRunner(router, memories, rec, cfg.WorkChance, log)

	loop := worker.NewDecisionLoop(worker.LoopConfig{
		InitialDelay:    cfg.DecisionInitialDelay,
		Period:          cfg.DecisionPeriod,
		Jitter:          cfg.DecisionJitter,
		StepDelay:       cfg.WalkStepDelay,
		ThoughtDuration: cfg.ThoughtDuration,
	}, current, agent, decider, rec, log).WithTasks(tasks)

	w := worker.New(loop, agent, store, subscriber, router, baseWorld, log, os.Getenv("WORKER_ID"))

	pruneCtx, stopPrune := context.WithCancel(context.Background())
	defer stopPrune()
	go pruneMemories(pruneCtx, memories, log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Start(); err != nil {
			log.Error("Worker error", "error", err)
		}
	}()

	log.Info("Worker started, Arq is awake")

	select {
	case <-quit:
		log.Info("Worker shutdown signal received")
		w.Stop()
		<-done
	case <-done:
	}

	log.Info("Worker exited")
}

func loadWorld(cfg *config.Config) (*world.World, error) {
	if cfg.WorldFile == "" {
		return world.Default()
	}
	return world.Load(cfg.WorldFile)
}

// newRouter wires Ollama and Anthropic into the provider chain. A key saved
// through the API wins over ANTHROPIC_API_KEY.
func newRouter(cfg *config.Config, store *storage.RedisStorage, publisher events.Publisher, rec *recorder.Recorder, log *slog.Logger) *inference.Router {
	key := cfg.AnthropicAPIKey
	if stored, err := store.LoadCredential(context.Background()); err != nil {
		log.Warn("Failed to load stored credential", "error", err)
	} else if stored != "" {
		key = stored
	}

	router := inference.NewRouter(
		services.NewOllamaService(cfg.OllamaURL, log),
		services.NewAnthropicService(key, log),
		inference.Config{
			LocalModel:   cfg.OllamaModel,
			LocalFamily:  cfg.OllamaModelFamily,
			FastModel:    cfg.AnthropicFastModel,
			QualityModel: cfg.AnthropicQualityModel,
		},
		log,
	)
	router.OnAttempt(rec.AttemptHook)
	router.Subscribe(func(s inference.State) {
		if err := publisher.Publish(context.Background(), events.EventTypeRouterState, s); err != nil {
			log.Warn("Failed to publish router state", "error", err)
		}
	})
	return router
}

func pruneMemories(ctx context.Context, memories *memory.Store, log *slog.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := memories.Prune(ctx, memoryKeep)
			if err != nil {
				log.Warn("Failed to prune memories", "error", err)
				continue
			}
			if n > 0 {
				log.Info("Pruned old memories", "removed", n)
			}
		}
	}
}
