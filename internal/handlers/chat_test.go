package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/arq-village/internal/inference"
	"github.com/jwebster45206/arq-village/internal/memory"
	"github.com/jwebster45206/arq-village/internal/services"
	"github.com/jwebster45206/arq-village/internal/services/events"
	"github.com/jwebster45206/arq-village/pkg/chat"
	"github.com/jwebster45206/arq-village/pkg/state"
	"github.com/jwebster45206/arq-village/pkg/storage"
)

func TestChatHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		body           any
		setup          func(local, hosted *services.MockLLM)
		expectedStatus int
		expectedError  string
		expectedMsg    string
		expectedSource string
		expectStored   bool
	}{
		{
			name:   "local model answers",
			method: http.MethodPost,
			body:   chat.ChatRequest{Message: "Hi Arq!"},
			setup: func(local, hosted *services.MockLLM) {
				local.SetGenerateResponse("Hello, friend! The garden looks bright today.")
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "Hello, friend! The garden looks bright today.",
			expectedSource: "local",
			expectStored:   true,
		},
		{
			name:   "hosted answers when local is down",
			method: http.MethodPost,
			body:   chat.ChatRequest{Message: "How are you?"},
			setup: func(local, hosted *services.MockLLM) {
				local.SetUnreachable(errors.New("connection refused"))
				hosted.SetAPIKey(testKey)
				hosted.SetGenerateResponse("I'm great, thanks for asking!")
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    "I'm great, thanks for asking!",
			expectedSource: "haiku",
			expectStored:   true,
		},
		{
			name:   "nothing answers",
			method: http.MethodPost,
			body:   chat.ChatRequest{Message: "Hello?"},
			setup: func(local, hosted *services.MockLLM) {
				local.SetGenerateError(errors.New("model crashed"))
			},
			expectedStatus: http.StatusOK,
			expectedMsg:    NoConnectionMessage,
			expectedSource: "fallback",
		},
		{
			name:   "wrong script gets a canned local reply",
			method: http.MethodPost,
			body:   chat.ChatRequest{Message: "Tell me a story"},
			setup: func(local, hosted *services.MockLLM) {
				local.SetGenerateResponse("我想去花园看看。")
			},
			expectedStatus: http.StatusOK,
			expectedSource: "local",
			expectStored:   true,
		},
		{
			name:           "method not allowed",
			method:         http.MethodGet,
			expectedStatus: http.StatusMethodNotAllowed,
			expectedError:  "Method not allowed.",
		},
		{
			name:           "invalid JSON body",
			method:         http.MethodPost,
			body:           "invalid json",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid request body. Expected JSON with 'message' field.",
		},
		{
			name:           "empty message",
			method:         http.MethodPost,
			body:           chat.ChatRequest{Message: "   "},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "message cannot be empty",
		},
		{
			name:           "message too long",
			method:         http.MethodPost,
			body:           chat.ChatRequest{Message: strings.Repeat("a", chat.MaxMessageLength+1)},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "message exceeds 1000 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := services.NewMockLLM()
			hosted := services.NewMockLLM()
			if tt.setup != nil {
				tt.setup(local, hosted)
			}
			pub := &capturePublisher{}
			mem := &fakeMemories{}
			log := &captureLog{}
			handler := NewChatHandler(newTestRouter(local, hosted), storage.NewMockStorage(), mem, log, pub, testWorld(t), testLogger())

			var body []byte
			switch b := tt.body.(type) {
			case nil:
			case string:
				body = []byte(b)
			default:
				body, _ = json.Marshal(b)
			}
			req := httptest.NewRequest(tt.method, "/v1/chat", bytes.NewReader(body))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			require.Equal(t, tt.expectedStatus, rr.Code)

			var resp chat.ChatResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, resp.Error)
				return
			}

			assert.Empty(t, resp.Error)
			assert.Equal(t, tt.expectedSource, resp.Source)
			assert.NotEmpty(t, resp.Message)
			if tt.expectedMsg != "" {
				assert.Equal(t, tt.expectedMsg, resp.Message)
			}
			assert.Equal(t, "happy", resp.Mood)

			if tt.expectStored {
				require.Len(t, mem.added, 1)
				assert.Equal(t, memory.KindChat, mem.added[0].Kind)
				assert.Equal(t, []events.EventType{events.EventTypeChatReceived}, pub.Types())
				assert.Len(t, log.entries, 1)
			} else {
				assert.Empty(t, mem.added)
				assert.Empty(t, pub.Types())
			}
		})
	}
}

func TestChatHandler_PromptUsesAgentState(t *testing.T) {
	w := testWorld(t)
	store := storage.NewMockStorage()
	garden, _ := w.Locations.Get("garden")
	require.NoError(t, store.SaveAgent(context.Background(), &state.AgentState{
		Position: garden.Position(),
		Mood:     state.MoodThoughtful,
		Status:   state.StatusIdle,
		Location: "garden",
	}))

	local := services.NewMockLLM()
	local.SetGenerateResponse("The tulips are pretty.")
	router := newTestRouter(local, nil)
	handler := NewChatHandler(router, store, &fakeMemories{}, nil, nil, w, testLogger())

	body, _ := json.Marshal(chat.ChatRequest{Message: "What do you see?"})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code)

	calls := local.GetCalls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].System, "You are at the Flower Garden.")
	assert.Contains(t, calls[0].System, "You feel thoughtful.")
	assert.Contains(t, calls[0].System, "We talked about tulips.")
	assert.Equal(t, "What do you see?", calls[0].Prompt)
	assert.Equal(t, inference.DefaultTierSettings()[inference.TierChat].MaxTokens, calls[0].MaxTokens)

	var resp chat.ChatResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "thoughtful", resp.Mood)
}
