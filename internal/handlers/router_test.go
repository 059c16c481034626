package handlers

import (
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
	"github.com/jwebster45206/arq-village/internal/services"
	"github.com/jwebster45206/arq-village/internal/services/events"
	"github.com/jwebster45206/arq-village/pkg/storage"
)

func TestRouterHandler_Get(t *testing.T) {
	router := newTestRouter(services.NewMockLLM(), services.NewMockLLM())
	router.Init(context.Background())
	handler := NewRouterHandler(router, fakeUsage{"local": 3, "haiku": 1}, storage.NewMockStorage(), nil, testLogger())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/router", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp RouterResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, inference.CurrentLocal, resp.State.Current)
	assert.True(t, resp.State.Initialized)
	assert.Equal(t, "mock-model", resp.State.LocalModel)
	assert.Equal(t, map[string]int64{"local": 3, "haiku": 1, "sonnet": 0}, resp.Usage)
}

func TestRouterHandler_Refresh(t *testing.T) {
	local := services.NewMockLLM()
	local.SetUnreachable(errors.New("connection refused"))
	router := newTestRouter(local, services.NewMockLLM())
	require.Equal(t, inference.CurrentFallback, router.Init(context.Background()).Current)

	// Ollama comes up after the first probe
	local.PingFunc = nil
	local.ListModelsFunc = nil

	handler := NewRouterHandler(router, nil, storage.NewMockStorage(), nil, testLogger())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/router/refresh", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp RouterResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, inference.CurrentLocal, resp.State.Current)
	assert.Equal(t, map[string]int64{"local": 0, "haiku": 0, "sonnet": 0}, resp.Usage)
}

func TestRouterHandler_Credential(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		saveErr        error
		expectedStatus int
		expectedKey    string
		expectedHosted bool
		expectPublish  bool
	}{
		{
			name:           "valid key",
			body:           `{"api_key":"  ` + testKey + `  "}`,
			expectedStatus: http.StatusOK,
			expectedKey:    testKey,
			expectedHosted: true,
			expectPublish:  true,
		},
		{
			name:           "clearing the key",
			body:           `{"api_key":""}`,
			expectedStatus: http.StatusOK,
			expectedKey:    "",
			expectPublish:  true,
		},
		{
			name:           "placeholder key",
			body:           `{"api_key":"<your-api-key-goes-right-here>"}`,
			expectedStatus: http.StatusBadRequest,
			expectedKey:    "previous",
		},
		{
			name:           "too short",
			body:           `{"api_key":"sk-ant-123"}`,
			expectedStatus: http.StatusBadRequest,
			expectedKey:    "previous",
		},
		{
			name:           "invalid JSON",
			body:           `{"api_key":`,
			expectedStatus: http.StatusBadRequest,
			expectedKey:    "previous",
		},
		{
			name:           "storage failure",
			body:           `{"api_key":"` + testKey + `"}`,
			saveErr:        errors.New("redis down"),
			expectedStatus: http.StatusInternalServerError,
			expectedKey:    "previous",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := services.NewMockLLM()
			local.SetUnreachable(errors.New("connection refused"))
			hosted := services.NewMockLLM()
			router := newTestRouter(local, hosted)
			router.Init(context.Background())

			store := storage.NewMockStorage()
			require.NoError(t, store.SaveCredential(context.Background(), "previous"))
			store.SetSaveError(tt.saveErr)
			pub := &capturePublisher{}
			handler := NewRouterHandler(router, nil, store, pub, testLogger())

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/v1/router/credential", strings.NewReader(tt.body)))
			require.Equal(t, tt.expectedStatus, rr.Code)

			stored, _ := store.LoadCredential(context.Background())
			assert.Equal(t, tt.expectedKey, stored)

			if tt.expectPublish {
				assert.Equal(t, []events.EventType{events.EventTypeCredentialUpdated}, pub.Types())
				assert.Equal(t, events.CredentialData{Present: tt.expectedKey != ""}, pub.events[0].Data)
				assert.Equal(t, tt.expectedKey, hosted.APIKey())

				var resp RouterResponse
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
				assert.Equal(t, tt.expectedHosted, resp.State.HostedKeyAvailable)
				if tt.expectedHosted {
					assert.Equal(t, inference.CurrentHosted, resp.State.Current)
				} else {
					assert.Equal(t, inference.CurrentFallback, resp.State.Current)
				}
			} else {
				assert.Empty(t, pub.Types())
				assert.Empty(t, hosted.APIKey())
			}
		})
	}
}

func TestRouterHandler_Routing(t *testing.T) {
	handler := NewRouterHandler(newTestRouter(nil, nil), nil, storage.NewMockStorage(), nil, testLogger())

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodPost, "/v1/router", http.StatusMethodNotAllowed},
		{http.MethodGet, "/v1/router/refresh", http.StatusMethodNotAllowed},
		{http.MethodPost, "/v1/router/credential", http.StatusMethodNotAllowed},
		{http.MethodGet, "/v1/router/unknown", http.StatusNotFound},
		{http.MethodGet, "/v1/router/", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}
