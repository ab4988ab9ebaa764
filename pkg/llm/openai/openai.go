// Package openai implements the llm.Suggester interface against an
// OpenAI-compatible chat completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/testcraft/testcraft/pkg/llm"
	"github.com/testcraft/testcraft/pkg/models"
)

// Ensure Client implements llm.Suggester interface at compile time
var _ llm.Suggester = (*Client)(nil)

const systemPrompt = "You are a senior QA engineer reviewing a user story before test design. " +
	"Point out missing or ambiguous acceptance criteria, risky areas, and test scenarios worth covering. " +
	"Answer with a short bulleted list."

// Client calls the chat completions API with retries.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client

	// mockResponder, when set, short-circuits the HTTP call. Used in tests.
	mockResponder func(prompt string) (string, error)
}

// NewClient creates a new suggestion client.
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// WithMockResponder returns a client that answers from fn instead of the API.
func (c *Client) WithMockResponder(fn func(prompt string) (string, error)) *Client {
	clone := *c
	clone.mockResponder = fn
	return &clone
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Suggest asks the model for review notes on a story. Transient failures are
// retried up to 3 times with exponential backoff.
func (c *Client) Suggest(ctx context.Context, story models.UserStory) (string, error) {
	prompt := buildPrompt(story)

	if c.mockResponder != nil {
		return c.mockResponder(prompt)
	}

	var lastErr error
	for i := 0; i < 3; i++ {
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * time.Second
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		suggestion, err := c.complete(ctx, prompt)
		if err == nil {
			return suggestion, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("suggestion failed after retries: %w", lastErr)
}

func buildPrompt(story models.UserStory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", story.Title)
	if story.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", story.Description)
	}
	if story.AcceptanceCriteria != "" {
		fmt.Fprintf(&b, "Acceptance criteria: %s\n", story.AcceptanceCriteria)
	} else {
		b.WriteString("Acceptance criteria: (none recorded)\n")
	}
	return b.String()
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("chat completions returned status %d: %s", resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("chat completions error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("chat completions returned no choices")
	}
	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}
