// Package chat composes the system prompt and produces a reply to a single
// user message.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/flowerclub/agentforge/pkg/claude"
	"github.com/flowerclub/agentforge/pkg/lookup"
	"github.com/flowerclub/agentforge/pkg/secrets"
)

// LLM generates text for a system prompt and a single user turn.
type LLM interface {
	Generate(ctx context.Context, systemPrompt, userMessage string) (string, int64, error)
}

// Reply is the outcome of one chat turn. Text is always populated: LLM
// failures are rendered as inline error strings rather than surfaced as
// errors.
type Reply struct {
	Text        string
	HasRealData bool
	TokensUsed  int64
}

// Responder answers user messages. The LLM credential is fetched from the
// secret store on every request; lookup enrichment is optional.
type Responder struct {
	Secrets    secrets.Accessor
	SecretName string
	Lookup     lookup.Dispatcher
	Model      string
	MaxTokens  int64

	// NewLLM builds the per-request LLM client. Tests swap in a fake.
	NewLLM func(apiKey string) LLM
}

func NewResponder(accessor secrets.Accessor, secretName string, dispatcher lookup.Dispatcher, model string, maxTokens int64) *Responder {
	return &Responder{
		Secrets:    accessor,
		SecretName: secretName,
		Lookup:     dispatcher,
		Model:      model,
		MaxTokens:  maxTokens,
		NewLLM: func(apiKey string) LLM {
			return claude.NewClient(apiKey, model, maxTokens)
		},
	}
}

// Respond builds the full system prompt (static role text, optional prior
// conversation block, optional customer data context) and calls the LLM once.
// It returns an error only when the credential can't be retrieved; every LLM
// failure is converted into an inline error string.
func (r *Responder) Respond(ctx context.Context, systemPrompt, history, userMessage string) (*Reply, error) {
	apiKey, err := r.Secrets.AccessSecret(ctx, r.SecretName)
	if err != nil {
		return nil, err
	}

	var result *lookup.Result
	if r.Lookup != nil {
		result = r.Lookup.Lookup(ctx, userMessage)
	}

	prompt := systemPrompt
	if history != "" {
		prompt += "\n\nContexto da conversa:\n" + history
	}
	if result != nil {
		prompt += formatContextBlock(result)
	}

	text, tokens, err := r.NewLLM(apiKey).Generate(ctx, prompt, userMessage)
	if err != nil {
		return &Reply{Text: renderError(err), HasRealData: result != nil}, nil
	}

	return &Reply{Text: text, HasRealData: result != nil, TokensUsed: tokens}, nil
}

// formatContextBlock renders the lookup payload as an indented JSON block
// appended to the system prompt.
func formatContextBlock(result *lookup.Result) string {
	data, err := json.MarshalIndent(result.Data, "", "  ")
	if err != nil {
		log.WithError(err).Warn("couldn't render customer data context")
		return ""
	}
	return fmt.Sprintf("\n\nDADOS REAIS (%s):\n%s", result.Type, data)
}

func renderError(err error) string {
	var statusErr *claude.StatusError
	if errors.As(err, &statusErr) {
		return fmt.Sprintf("Erro API Claude: %d", statusErr.StatusCode)
	}
	return fmt.Sprintf("Erro: %s", err)
}
