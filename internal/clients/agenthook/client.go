// Package agenthook dispatches classification jobs to the autonomous
// agent runtime. The request service sends each incoming prompt here and
// the agent answers asynchronously via the internal callback endpoint.
package agenthook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// sessionPrefix namespaces hook sessions so concurrent requests never
// share agent conversation state.
const sessionPrefix = "hook:1lyagent:"

// Client delivers prompts to the agent hook endpoint.
type Client struct {
	agentURL    string
	hookToken   string
	callbackURL string
	http        *http.Client
}

// New constructs a Client. callbackURL is the public base URL of this
// backend, used to tell the agent where to POST results.
func New(agentURL, hookToken, callbackURL string) *Client {
	return &Client{
		agentURL:    agentURL,
		hookToken:   hookToken,
		callbackURL: callbackURL,
		http:        &http.Client{Timeout: 30 * time.Second},
	}
}

// Dispatch sends the prompt to the agent, tagged with the request ID so
// the callback can be correlated. Returns the agent run ID when the hook
// reports one.
func (c *Client) Dispatch(ctx context.Context, requestID, prompt string) (string, error) {
	message := fmt.Sprintf(
		"New user request (requestId: %s).\n\nPrompt:\n%s\n\nClassify this request and report the result to %s/api/agent/callback with the requestId.",
		requestID, prompt, c.callbackURL,
	)

	body, err := json.Marshal(map[string]string{
		"message":    message,
		"sessionKey": sessionPrefix + requestID,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.agentURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.hookToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("agenthook: status %d: %s", resp.StatusCode, string(raw))
	}

	var out struct {
		RunID string `json:"runId"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		// Some hook deployments return an empty body on accept.
		return "", nil
	}
	return out.RunID, nil
}
