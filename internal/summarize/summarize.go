// Package summarize turns an email into a short chat-sized digest using a
// local Ollama model. Summarization is best effort: callers fall back to a
// raw excerpt when it fails.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Summarizer produces a digest for one email.
type Summarizer interface {
	Summarize(ctx context.Context, body, subject, sender string) (string, error)
}

// OllamaClient summarizes emails through the Ollama chat API.
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaClient creates a client for the Ollama instance at baseURL.
func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// Summarize sends the email to the model and returns its digest.
func (c *OllamaClient) Summarize(ctx context.Context, body, subject, sender string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:  c.model,
		Stream: false,
		Messages: []chatMessage{
			{Role: "user", Content: fmt.Sprintf("sender: %s\nsubject: %s\nbody: %s", sender, subject, body)},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding ollama response: %w", err)
	}

	summary := strings.TrimSpace(parsed.Message.Content)
	if summary == "" {
		return "", fmt.Errorf("ollama returned an empty summary")
	}
	return summary, nil
}
