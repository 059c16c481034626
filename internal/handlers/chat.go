package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jwebster45206/arq-village/internal/inference"
	"github.com/jwebster45206/arq-village/internal/memory"
	"github.com/jwebster45206/arq-village/internal/services/events"
	"github.com/jwebster45206/arq-village/pkg/activity"
	"github.com/jwebster45206/arq-village/pkg/chat"
	"github.com/jwebster45206/arq-village/pkg/prompts"
	"github.com/jwebster45206/arq-village/pkg/state"
	"github.com/jwebster45206/arq-village/pkg/storage"
	"github.com/jwebster45206/arq-village/pkg/textfilter"
	"github.com/jwebster45206/arq-village/pkg/world"
)

// NoConnectionMessage is Arq's reply when no provider answers.
const NoConnectionMessage = "Sorry, I can't think clearly right now. My connection seems to be down. Let's talk again in a little while!"

// chatTimeout covers the whole provider chain at the chat tier.
const chatTimeout = 3 * time.Minute

// ChatHandler handles chat requests
type ChatHandler struct {
	router    Router
	storage   storage.Storage
	memories  MemoryStore
	activity  ActivityLog
	publisher events.Publisher
	world     *world.World
	logger    *slog.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(router Router, storage storage.Storage, memories MemoryStore, activityLog ActivityLog, publisher events.Publisher, w *world.World, logger *slog.Logger) *ChatHandler {
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &ChatHandler{
		router:    router,
		storage:   storage,
		memories:  memories,
		activity:  activityLog,
		publisher: publisher,
		world:     w,
		logger:    logger,
	}
}

// ServeHTTP handles HTTP requests for chat
// POST /v1/chat
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, h.logger, http.MethodPost)
		return
	}

	var request chat.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		writeJSON(w, h.logger, http.StatusBadRequest, chat.ChatResponse{
			Error: "Invalid request body. Expected JSON with 'message' field.",
		})
		return
	}
	if err := request.Validate(); err != nil {
		writeJSON(w, h.logger, http.StatusBadRequest, chat.ChatResponse{Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), chatTimeout)
	defer cancel()

	agent, err := h.storage.LoadAgent(ctx)
	if err != nil {
		h.logger.Error("Failed to load agent for chat", "error", err)
		writeJSON(w, h.logger, http.StatusInternalServerError, chat.ChatResponse{
			Error: "Failed to load Arq's state.",
		})
		return
	}
	if agent == nil {
		agent = state.NewAgentState(h.world)
	}
	here, _ := h.world.Locations.Nearest(agent.Position)

	var snippets []string
	if h.memories != nil {
		snippets, err = h.memories.RecentSnippets(ctx, prompts.MemorySnippetLimit)
		if err != nil {
			h.logger.Warn("Failed to recall memories for chat", "error", err)
		}
	}

	system := prompts.ChatSystemPrompt(agent, here, snippets)
	result := h.router.Infer(ctx, system, request.Message, inference.TierChat)

	if !result.OK() {
		h.logger.Warn("Chat fell back, no provider answered", "location", here.Key)
		writeJSON(w, h.logger, http.StatusOK, chat.ChatResponse{
			Message: NoConnectionMessage,
			Source:  string(inference.SourceFallback),
			Mood:    string(agent.Mood),
		})
		return
	}

	h.remember(ctx, request.Message, result, here)

	writeJSON(w, h.logger, http.StatusOK, chat.ChatResponse{
		Message: result.Response,
		Source:  string(result.Source),
		Mood:    string(agent.Mood),
	})
}

// remember records the exchange: a memory, an activity line, and an event
// that lets the worker hand the line to the planner.
func (h *ChatHandler) remember(ctx context.Context, message string, result inference.Result, here world.Location) {
	ctx = context.WithoutCancel(ctx)

	if h.memories != nil {
		text := fmt.Sprintf("My friend said %q and I answered %q", textfilter.Preview(message, 100), textfilter.Preview(result.Response, 100))
		if _, err := h.memories.Add(ctx, memory.Memory{
			Kind:     memory.KindChat,
			Text:     text,
			Location: here.Key,
		}); err != nil {
			h.logger.Error("Failed to store chat memory", "error", err)
		}
	}

	if h.activity != nil {
		h.activity.Logf(ctx, activity.KindChat, "Chatted at the %s: %s", here.Name, textfilter.Preview(message, 80))
	}

	if err := h.publisher.Publish(ctx, events.EventTypeChatReceived, events.ChatData{
		Message: message,
		Reply:   result.Response,
		Source:  string(result.Source),
	}); err != nil {
		h.logger.Warn("Failed to publish chat event", "error", err)
	}
}
