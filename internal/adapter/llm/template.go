package llm

import (
	"context"
	"fmt"

	"agency-ai/internal/domain"
)

// TemplateProvider is the reference inference behavior: a deterministic
// acknowledgment naming the agent and echoing the task message. It needs
// no network or credentials and is the default provider, keeping the
// workforce runnable out of the box. It reports no token usage; the
// executor estimates downstream.
type TemplateProvider struct {
	name string
}

// NewTemplateProvider creates the deterministic reference provider.
func NewTemplateProvider(name string) *TemplateProvider {
	if name == "" {
		name = "template"
	}
	return &TemplateProvider{name: name}
}

// Generate implements domain.InferenceProvider.
func (p *TemplateProvider) Generate(ctx context.Context, req domain.InferenceRequest) (*domain.InferenceResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	agent := req.Agent
	if agent == "" {
		agent = "agent"
	}

	return &domain.InferenceResponse{
		Text:  fmt.Sprintf("%s completed the task: %s", agent, req.Message),
		Model: req.Model,
	}, nil
}

// Name implements domain.InferenceProvider.
func (p *TemplateProvider) Name() string { return p.name }

var _ domain.InferenceProvider = (*TemplateProvider)(nil)
