package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jwebster45206/arq-village/internal/inference"
	"github.com/jwebster45206/arq-village/pkg/storage"
)

type staticState inference.State

func (s staticState) State() inference.State { return inference.State(s) }

func TestHealthHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name              string
		method            string
		pingErr           error
		state             inference.State
		expectedStatus    int
		expectedHealth    string
		expectedRedis     string
		expectedInference string
	}{
		{
			name:              "all healthy",
			method:            http.MethodGet,
			state:             inference.State{Initialized: true, LocalAvailable: true, LocalModel: "llama3.2:3b", Current: inference.CurrentLocal},
			expectedStatus:    http.StatusOK,
			expectedHealth:    "healthy",
			expectedRedis:     "healthy",
			expectedInference: "local",
		},
		{
			name:              "fallback inference is still healthy",
			method:            http.MethodGet,
			state:             inference.State{Initialized: true, Current: inference.CurrentFallback},
			expectedStatus:    http.StatusOK,
			expectedHealth:    "healthy",
			expectedRedis:     "healthy",
			expectedInference: "fallback",
		},
		{
			name:              "redis down",
			method:            http.MethodGet,
			pingErr:           errors.New("connection refused"),
			state:             inference.State{Current: inference.CurrentChecking},
			expectedStatus:    http.StatusServiceUnavailable,
			expectedHealth:    "degraded",
			expectedRedis:     "unhealthy",
			expectedInference: "checking",
		},
		{
			name:           "wrong method",
			method:         http.MethodPost,
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMockStorage()
			store.SetPingError(tt.pingErr)
			handler := NewHealthHandler(store, staticState(tt.state), testLogger())

			req := httptest.NewRequest(tt.method, "/health", nil)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
			if tt.expectedHealth == "" {
				return
			}

			var response HealthResponse
			if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if response.Status != tt.expectedHealth {
				t.Errorf("Expected status %q, got %q", tt.expectedHealth, response.Status)
			}
			if response.Components["redis"] != tt.expectedRedis {
				t.Errorf("Expected redis %q, got %v", tt.expectedRedis, response.Components["redis"])
			}
			if response.Components["inference"] != tt.expectedInference {
				t.Errorf("Expected inference %q, got %v", tt.expectedInference, response.Components["inference"])
			}
		})
	}
}
