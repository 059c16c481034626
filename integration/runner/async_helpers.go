package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jwebster45206/arq-village/internal/handlers"
	"github.com/jwebster45206/arq-village/pkg/activity"
)

const (
	// PollInterval is how often to check the activity log
	PollInterval = 1 * time.Second
	// ActivityTimeout is the default wait for an activity entry. A decision
	// may walk the whole provider chain before anything is logged.
	ActivityTimeout = 90 * time.Second
)

// GetActivity fetches the newest activity entries.
func GetActivity(ctx context.Context, client *http.Client, baseURL string, limit int) ([]activity.Entry, error) {
	url := fmt.Sprintf("%s/v1/activity?limit=%d", baseURL, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create activity request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("activity endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var out handlers.ActivityResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode activity: %w", err)
	}
	return out.Entries, nil
}

// PollForActivity waits until an entry of kind stamped after since shows up.
func PollForActivity(ctx context.Context, client *http.Client, baseURL string, kind activity.Kind, since time.Time, timeout time.Duration) (activity.Entry, error) {
	if timeout <= 0 {
		timeout = ActivityTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		entries, err := GetActivity(ctx, client, baseURL, 20)
		if err == nil {
			for _, e := range entries {
				if e.Kind == kind && !e.Timestamp.Before(since) {
					return e, nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return activity.Entry{}, fmt.Errorf("timeout waiting for %s activity", kind)
		case <-ticker.C:
		}
	}
}
