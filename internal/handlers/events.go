package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jwebster45206/arq-village/internal/services/events"
	"github.com/jwebster45206/arq-village/pkg/storage"
)

const (
	wsWriteWait    = 5 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

// EventSource yields events published by any process.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan events.Event, func() error, error)
}

// EventsHandler streams events to WebSocket clients.
type EventsHandler struct {
	source   EventSource
	storage  storage.Storage
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(source EventSource, storage storage.Storage, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		source:  source,
		storage: storage,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // console and local pages
		},
	}
}

// ServeHTTP upgrades to a WebSocket and forwards every event as a JSON text
// message. The first message is the current agent state.
// GET /v1/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, h.logger, http.MethodGet)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch, closeSub, err := h.source.Subscribe(ctx)
	if err != nil {
		h.logger.Error("Failed to subscribe to events", "error", err)
		writeError(w, h.logger, http.StatusServiceUnavailable, "Event stream unavailable.")
		return
	}
	defer func() {
		if err := closeSub(); err != nil {
			h.logger.Debug("Failed to close subscription", "error", err)
		}
	}()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("Event stream connected", "remote_addr", r.RemoteAddr)

	// Reader: we only care about pongs and the close frame.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	defer func() {
		_ = conn.Close()
		<-readerDone
	}()

	if err := h.sendSnapshot(ctx, conn); err != nil {
		h.logger.Debug("Failed to send snapshot", "error", err)
		return
	}

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Event stream disconnected", "remote_addr", r.RemoteAddr)
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(conn, event); err != nil {
				h.logger.Debug("Failed to write event", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (h *EventsHandler) sendSnapshot(ctx context.Context, conn *websocket.Conn) error {
	agent, err := h.storage.LoadAgent(ctx)
	if err != nil || agent == nil {
		return nil
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTypeAgentUpdated,
		Timestamp: time.Now().UTC(),
	}
	if event.Data, err = jsonRaw(agent); err != nil {
		return err
	}
	return writeEvent(conn, event)
}

func writeEvent(conn *websocket.Conn, event events.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(event)
}
