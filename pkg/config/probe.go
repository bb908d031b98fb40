package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// ProbeBridge checks whether a bridge is already serving on the given port.
// Returns the projectId it reports, or an error when nothing answers — a
// stale bridge.json after a crash is expected and not fatal.
func ProbeBridge(ctx context.Context, port int) (string, error) {
	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("no bridge answering on port %d: %w", port, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected health status %d on port %d", resp.StatusCode, port)
	}

	var health struct {
		ProjectID string `json:"projectId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return "", fmt.Errorf("decode health response: %w", err)
	}
	return health.ProjectID, nil
}

// WaitReady polls the local health endpoint until the listener is
// demonstrably serving. Called before bridge.json is written so clients
// never find a contact file pointing at a dead port.
func WaitReady(ctx context.Context, port int) error {
	backoff := retry.WithMaxRetries(40, retry.NewConstant(50*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if _, err := ProbeBridge(ctx, port); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
