package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/arq-village/internal/inference"
	"github.com/jwebster45206/arq-village/internal/logger"
	"github.com/jwebster45206/arq-village/internal/services/events"
	"github.com/jwebster45206/arq-village/pkg/state"
	"github.com/jwebster45206/arq-village/pkg/storage"
	"github.com/jwebster45206/arq-village/pkg/world"
)

const resubscribeDelay = 2 * time.Second

// EventSource is where the worker hears about changes made through the API.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan events.Event, func() error, error)
}

// CredentialUpdater is the router call made when the hosted key changes.
type CredentialUpdater interface {
	UpdateCredential(ctx context.Context, key string) inference.State
}

// Worker runs the decision loop and reacts to API events: credential changes,
// manual decision triggers, chat lines and world changes.
type Worker struct {
	id        string
	loop      *DecisionLoop
	agent     *Agent
	store     storage.Storage
	source    EventSource
	router    CredentialUpdater
	baseWorld *world.World
	log       *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a new worker instance
func New(loop *DecisionLoop, agent *Agent, store storage.Storage, source EventSource, router CredentialUpdater, baseWorld *world.World, log *slog.Logger, workerID string) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}

	return &Worker{
		id:        workerID,
		loop:      loop,
		agent:     agent,
		store:     store,
		source:    source,
		router:    router,
		baseWorld: baseWorld,
		log:       log.With("worker_id", workerID),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start runs the decision loop and the event listener until Stop is called.
func (w *Worker) Start() error {
	w.log.Info("Worker starting")

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.listen()
	}()

	err := w.loop.Run(w.ctx)
	<-done
	w.log.Info("Worker shutting down")
	return err
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.log.Info("Worker stop requested")
	w.cancel()
}

// listen keeps a subscription open, resubscribing after Redis hiccups.
func (w *Worker) listen() {
	for {
		ch, closeFn, err := w.source.Subscribe(w.ctx)
		if err != nil {
			w.log.Warn("Failed to subscribe to events", "error", err)
		} else {
			for event := range ch {
				w.handleEvent(event)
			}
			if err := closeFn(); err != nil {
				w.log.Debug("Failed to close subscription", "error", err)
			}
		}

		if sleep(w.ctx, RealClock(), resubscribeDelay) != nil {
			return
		}
	}
}

func (w *Worker) handleEvent(event events.Event) {
	ctx := w.ctx
	switch event.Type {
	case events.EventTypeCredentialUpdated:
		key, err := w.store.LoadCredential(ctx)
		if err != nil {
			logger.WithError(w.log, err).Error("Failed to reload credential")
			return
		}
		st := w.router.UpdateCredential(ctx, key)
		w.log.Info("Hosted credential reloaded", "current", st.Current)

	case events.EventTypeDecisionRequested:
		var data events.DecisionRequestData
		_ = event.Decode(&data)
		if !w.loop.TriggerCycle(ctx) {
			w.log.Info("Manual decision ignored, a cycle is running", "requested_by", data.RequestedBy)
			return
		}
		w.log.Info("Manual decision triggered", "requested_by", data.RequestedBy)

	case events.EventTypeChatReceived:
		var data events.ChatData
		if err := event.Decode(&data); err != nil {
			w.log.Warn("Malformed chat event", "error", err)
			return
		}
		w.agent.Update(ctx, func(s *state.AgentState) {
			s.LastChat = data.Message
		})

	case events.EventTypeWorldChangeApplied:
		if err := w.reloadWorld(ctx); err != nil {
			logger.WithError(w.log, err).Error("Failed to reload world changes")
		}
	}
}

// reloadWorld re-applies every stored world change on top of the base world.
func (w *Worker) reloadWorld(ctx context.Context) error {
	changes, err := w.store.ListWorldChanges(ctx)
	if err != nil {
		return err
	}
	w.loop.SetWorld(w.baseWorld.WithChanges(changes))
	w.log.Info("World changes applied", "count", len(changes))
	return nil
}
