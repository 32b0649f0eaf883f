// Package tools provides the confirm-gated tool-execution boundary: a
// single request/response call to an external automation webhook.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const sourceTag = "voicegate"

// Result is a successful tool execution.
type Result struct {
	Output string
}

// CallError is a failed webhook call. Exactly one call is made per
// execution; retries are the caller's decision.
type CallError struct {
	StatusCode int // 0 when the call never reached the endpoint
	Message    string
}

func (e *CallError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("tool webhook: status %d: %s", e.StatusCode, e.Message)
	}
	return "tool webhook: " + e.Message
}

// Webhook executes staged tool requests against one configured endpoint.
type Webhook struct {
	url        string
	httpClient *http.Client
}

// NewWebhook creates a webhook client for the given endpoint URL.
func NewWebhook(url string) *Webhook {
	return NewWebhookWithClient(url, &http.Client{})
}

// NewWebhookWithClient creates a webhook client with a custom HTTP client.
func NewWebhookWithClient(url string, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{}
	}
	return &Webhook{url: strings.TrimSpace(url), httpClient: client}
}

type webhookRequest struct {
	Text   string `json:"text"`
	Intent string `json:"intent"`
	Source string `json:"source"`
}

type webhookResponse struct {
	Output  string `json:"output,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Execute submits the staged text to the endpoint and parses its result.
// The deadline comes from ctx; no retries are performed.
func (w *Webhook) Execute(ctx context.Context, text, intent string) (Result, error) {
	payload, err := json.Marshal(webhookRequest{Text: text, Intent: intent, Source: sourceTag})
	if err != nil {
		return Result{}, fmt.Errorf("marshal webhook request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return Result{}, &CallError{Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := strings.TrimSpace(string(raw))
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return Result{}, &CallError{StatusCode: resp.StatusCode, Message: message}
	}

	var decoded webhookResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Result{}, &CallError{StatusCode: resp.StatusCode, Message: "decode response: " + err.Error()}
	}
	if strings.TrimSpace(decoded.Error) != "" {
		return Result{}, &CallError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(decoded.Error)}
	}

	output := strings.TrimSpace(decoded.Output)
	if output == "" {
		output = strings.TrimSpace(decoded.Message)
	}
	return Result{Output: output}, nil
}
