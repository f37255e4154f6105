package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agentmesh/core/internal/agent"
)

// httpLLMClient is the minimal agent.Client this binary wires into
// facade.FromConfig. Per spec §1 Non-goals, a real LLM provider HTTP
// client (retries, streaming, tool-call translation — see the teacher's
// internal/agent/providers package) is deliberately out of scope for the
// whole exercise, not just the library: this is the smallest thing that
// can drive an OpenAI-compatible /chat/completions endpoint, for an
// operator who wants `agentmeshd serve` to actually talk to something.
// Production use should replace this with a proper provider client.
type httpLLMClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newHTTPLLMClient(baseURL, apiKey string) *httpLLMClient {
	return &httpLLMClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

type chatCompletionRequest struct {
	Model    string            `json:"model"`
	Messages []chatChoiceInput `json:"messages"`
}

type chatChoiceInput struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatChoiceInput `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete implements agent.Client against an OpenAI-compatible
// /v1/chat/completions endpoint: the system prompt becomes the first
// "system" message, followed by req.Messages verbatim.
func (c *httpLLMClient) Complete(ctx context.Context, req agent.CompletionRequest) (string, error) {
	body := chatCompletionRequest{Model: req.Model}
	if req.System != "" {
		body.Messages = append(body.Messages, chatChoiceInput{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatChoiceInput{Role: m.Role, Content: m.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("llmclient: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("llmclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("llmclient: request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llmclient: read response: %w", err)
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("llmclient: decode response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("llmclient: provider error: %s", out.Error.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("llmclient: provider returned status %d", resp.StatusCode)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("llmclient: provider returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}
