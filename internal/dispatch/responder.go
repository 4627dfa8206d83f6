package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/jordanhubbard/gauntlet/internal/provider"
	"github.com/jordanhubbard/gauntlet/pkg/models"
)

// RespondContext tells a responder what it is answering.
type RespondContext struct {
	ScenarioID  string            `json:"scenario_id"`
	ExecutionID string            `json:"execution_id"`
	Category    models.Category   `json:"category"`
	Tier        models.Tier       `json:"tier"`
	Multiplier  models.Multiplier `json:"multiplier"`
	Phase       models.Phase      `json:"phase,omitempty"`
	Peers       []string          `json:"peers,omitempty"`
	Deadline    time.Time         `json:"deadline"`
}

// Responder produces an agent's answer to a rendered prompt. Implementations
// should return promptly once ctx is done.
type Responder interface {
	Respond(ctx context.Context, agentID, prompt string, rc RespondContext) (string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, agentID, prompt string, rc RespondContext) (string, error)

// Respond calls f.
func (f ResponderFunc) Respond(ctx context.Context, agentID, prompt string, rc RespondContext) (string, error) {
	return f(ctx, agentID, prompt, rc)
}

// StaticResponder answers every prompt with the same text. Used for smoke runs.
type StaticResponder struct {
	Reply string
}

// Respond returns the fixed reply.
func (s StaticResponder) Respond(ctx context.Context, agentID, prompt string, rc RespondContext) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.Reply, nil
}

// ProviderResponder answers through an OpenAI-compatible model, treating the
// model as the agent.
type ProviderResponder struct {
	provider *provider.RegisteredProvider
	// MaxTokens caps the answer length; zero leaves it to the server.
	MaxTokens int
}

// NewProviderResponder binds a registered provider.
func NewProviderResponder(p *provider.RegisteredProvider) *ProviderResponder {
	return &ProviderResponder{provider: p}
}

// Respond sends the prompt as a single user turn.
func (p *ProviderResponder) Respond(ctx context.Context, agentID, prompt string, rc RespondContext) (string, error) {
	system := fmt.Sprintf("You are agent %s taking a %s tier %s skill test.", agentID, rc.Tier, rc.Category)
	if rc.Phase != "" {
		system += fmt.Sprintf(" You are in the %s phase of a group exercise.", rc.Phase)
	}
	resp, err := p.provider.Protocol.CreateChatCompletion(ctx, &provider.ChatCompletionRequest{
		Model: p.provider.Model,
		Messages: []provider.ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		MaxTokens: p.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("provider %s: %w", p.provider.ID, err)
	}
	return resp.Text(), nil
}
