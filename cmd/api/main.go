package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/arq-village/internal/config"
	"github.com/jwebster45206/arq-village/internal/handlers"
	"github.com/jwebster45206/arq-village/internal/inference"
	"github.com/jwebster45206/arq-village/internal/logger"
	"github.com/jwebster45206/arq-village/internal/memory"
	"github.com/jwebster45206/arq-village/internal/middleware"
	"github.com/jwebster45206/arq-village/internal/recorder"
	"github.com/jwebster45206/arq-village/internal/services"
	"github.com/jwebster45206/arq-village/internal/services/events"
	"github.com/jwebster45206/arq-village/internal/storage"
	"github.com/jwebster45206/arq-village/pkg/world"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Arq Village API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"ollama_url", cfg.OllamaURL,
		"ollama_model", cfg.OllamaModel)

	baseWorld, err := loadWorld(cfg)
	if err != nil {
		log.Error("Failed to load world", "error", err, "world_file", cfg.WorldFile)
		os.Exit(1)
	}

	store := storage.NewRedisStorage(cfg.RedisURL, log)
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()
	if err := store.WaitForConnection(storageCtx, 30, 2*time.Second); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	log.Info("Storage connection established successfully")

	memories, err := memory.Open(cfg.MemoryDB)
	if err != nil {
		log.Error("Failed to open memory database", "error", err, "path", cfg.MemoryDB)
		os.Exit(1)
	}

	archive := storage.NewArchive(cfg.ArchiveDir, "api")
	broadcaster := events.NewBroadcaster(store.Client(), log)
	subscriber := events.NewSubscriber(store.Client(), log)
	rec := recorder.New(store, broadcaster, log).WithArchive(archive).WithUsage(memories)

	router := newRouter(cfg, store, broadcaster, rec, log)

	// Probe in the background so the API answers while Ollama is still
	// starting; the first Infer joins the same probe.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		router.Init(ctx)
	}()

	mux := http.NewServeMux()

	mux.Handle("/health", handlers.NewHealthHandler(store, router, log))
	mux.Handle("/v1/chat", handlers.NewChatHandler(router, store, memories, rec, broadcaster, baseWorld, log))
	mux.Handle("/v1/agent", handlers.NewAgentHandler(store, baseWorld, log))
	mux.Handle("/v1/agent/decide", handlers.NewDecideHandler(broadcaster, log))
	mux.Handle("/v1/activity", handlers.NewActivityHandler(store, log))

	worldHandler := handlers.NewWorldHandler(baseWorld, store, broadcaster, log)
	mux.Handle("/v1/world", worldHandler)
	mux.Handle("/v1/world/", worldHandler)
	mux.Handle("/v1/path", handlers.NewPathHandler(baseWorld, store, log))

	routerHandler := handlers.NewRouterHandler(router, memories, store, broadcaster, log)
	mux.Handle("/v1/router", routerHandler)
	mux.Handle("/v1/router/", routerHandler)

	mux.Handle("/v1/events", handlers.NewEventsHandler(subscriber, store, log))

	handler := middleware.Logger(log, mux)
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: chat can wait minutes on the provider chain and
		// /v1/events is long-lived.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	if err := archive.Close(); err != nil {
		log.Error("Error closing activity archive", "error", err)
	}
	if err := memories.Close(); err != nil {
		log.Error("Error closing memory database", "error", err)
	}
	if err := store.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}

	log.Info("Server exited")
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
