// Package claude wraps the Anthropic messages API.
package claude

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 1500

	requestTimeout = 60 * time.Second
)

// StatusError is returned when the API answers with a non-success HTTP
// status. The responder renders it into the user-visible error string.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("claude API returned status %d", e.StatusCode)
}

type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewClient builds a client around a freshly fetched API key. The chat path
// constructs one per request so the key is never cached in-process.
func NewClient(apiKey, model string, maxTokens int64) *Client {
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Client{
		client: anthropic.NewClient(
			option.WithAPIKey(apiKey),
			option.WithRequestTimeout(requestTimeout),
		),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Generate sends a single user turn with the given system prompt and returns
// the generated text plus total token usage. One attempt, no retry.
func (c *Client) Generate(ctx context.Context, systemPrompt, userMessage string) (string, int64, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)),
		},
	})
	if err != nil {
		var apierr *anthropic.Error
		if errors.As(err, &apierr) {
			log.WithField("status", apierr.StatusCode).Warn("claude API returned an error status")
			return "", 0, &StatusError{StatusCode: apierr.StatusCode}
		}
		return "", 0, err
	}

	if len(msg.Content) == 0 {
		return "", 0, fmt.Errorf("claude returned no content blocks")
	}

	tokens := msg.Usage.InputTokens + msg.Usage.OutputTokens
	return msg.Content[0].Text, tokens, nil
}
