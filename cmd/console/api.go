package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jwebster45206/arq-village/internal/handlers"
	"github.com/jwebster45206/arq-village/internal/services/events"
	"github.com/jwebster45206/arq-village/pkg/chat"
	"github.com/jwebster45206/arq-village/pkg/state"
)

const reconnectDelay = 3 * time.Second

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	// degraded still means the API itself is up
	return resp.StatusCode == http.StatusOK
}

// doJSON sends a request and decodes the reply into out. Non-expected status
// codes are turned into errors carrying the API's error message.
func doJSON(client *http.Client, method, url string, in any, expected int, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != expected {
		var errorResp handlers.ErrorResponse
		if err := json.Unmarshal(raw, &errorResp); err != nil || errorResp.Error == "" {
			return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(raw))
		}
		return fmt.Errorf("%s", errorResp.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func getWorld(client *http.Client, baseURL string) (*handlers.WorldResponse, error) {
	var w handlers.WorldResponse
	if err := doJSON(client, http.MethodGet, baseURL+"/v1/world", nil, http.StatusOK, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func getAgent(client *http.Client, baseURL string) (*state.AgentState, error) {
	var a state.AgentState
	if err := doJSON(client, http.MethodGet, baseURL+"/v1/agent", nil, http.StatusOK, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func getRouter(client *http.Client, baseURL string) (*handlers.RouterResponse, error) {
	var r handlers.RouterResponse
	if err := doJSON(client, http.MethodGet, baseURL+"/v1/router", nil, http.StatusOK, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func refreshRouter(client *http.Client, baseURL string) (*handlers.RouterResponse, error) {
	var r handlers.RouterResponse
	if err := doJSON(client, http.MethodPost, baseURL+"/v1/router/refresh", nil, http.StatusOK, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func sendChat(client *http.Client, baseURL, message string) (*chat.ChatResponse, error) {
	var resp chat.ChatResponse
	if err := doJSON(client, http.MethodPost, baseURL+"/v1/chat", chat.ChatRequest{Message: message}, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func requestDecision(client *http.Client, baseURL string) error {
	return doJSON(client, http.MethodPost, baseURL+"/v1/agent/decide", nil, http.StatusAccepted, nil)
}

// eventsURL turns the API base URL into the WebSocket endpoint.
func eventsURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://") + "/v1/events"
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://") + "/v1/events"
	default:
		return "ws://" + baseURL + "/v1/events"
	}
}

// listenToEvents streams events into send until ctx is done, reconnecting
// after the connection drops. status reports connection changes.
func listenToEvents(ctx context.Context, baseURL string, send func(events.Event), status func(connected bool, err error)) {
	url := eventsURL(baseURL)
	for {
		err := streamEvents(ctx, url, send, func() { status(true, nil) })
		if ctx.Err() != nil {
			return
		}
		status(false, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func streamEvents(ctx context.Context, url string, send func(events.Event), connected func()) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to event stream: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	connected()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() { _ = conn.Close() }()

	for {
		var event events.Event
		if err := conn.ReadJSON(&event); err != nil {
			return fmt.Errorf("event stream closed: %w", err)
		}
		send(event)
	}
}
