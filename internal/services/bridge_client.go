package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPConsistencyBridge is an HTTP implementation of the ConsistencyBridge
// interface. It posts step completions to the second system with a bearer
// credential. The client timeout is the only cancellation applied to bridge
// calls.
type HTTPConsistencyBridge struct {
	url    string
	token  string
	client *http.Client
}

// NewHTTPConsistencyBridge creates a new HTTPConsistencyBridge.
func NewHTTPConsistencyBridge(url, token string, timeout time.Duration) *HTTPConsistencyBridge {
	return &HTTPConsistencyBridge{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

// NotifyStepCompletion posts the completion payload to the bridge endpoint.
func (b *HTTPConsistencyBridge) NotifyStepCompletion(ctx context.Context, payload StepCompletionPayload) error {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal bridge payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", b.url+"/workflow-sync", bytes.NewBuffer(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create bridge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.token)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("bridge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("bridge rejected step completion: status code %d", resp.StatusCode)
	}
	return nil
}
