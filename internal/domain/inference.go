package domain

import "context"

// InferenceRequest is sent to an inference provider: a system prompt,
// the user-facing message, and the model to use. Agent is the display
// name of the agent the task runs on; local providers render it into
// the response.
type InferenceRequest struct {
	Agent       string  `json:"agent,omitempty"`
	System      string  `json:"system,omitempty"`
	Message     string  `json:"message"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// TokenUsage tracks token consumption for a single inference call.
// Providers that cannot report usage leave it zero; the executor
// estimates in that case.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Total returns the combined token count.
func (u TokenUsage) Total() int64 { return u.InputTokens + u.OutputTokens }

// IsZero reports whether the provider reported no usage at all.
func (u TokenUsage) IsZero() bool { return u.InputTokens == 0 && u.OutputTokens == 0 }

// Add accumulates another call's usage.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
	}
}

// InferenceResponse is returned from an inference provider.
type InferenceResponse struct {
	Text  string     `json:"text"`
	Model string     `json:"model"`
	Usage TokenUsage `json:"usage"`
}

// InferenceProvider is the interface for any response-generation backend.
// Failures wrap ErrInference; rate limiting wraps ErrRateLimit.
type InferenceProvider interface {
	// Generate produces a response for the request. It must honor ctx
	// cancellation and deadlines.
	Generate(ctx context.Context, req InferenceRequest) (*InferenceResponse, error)
	// Name returns the provider's identifier (e.g., "openai", "bedrock").
	Name() string
}

// TokenEstimator approximates token counts for providers that do not
// report usage, keeping the usage counters meaningful.
type TokenEstimator interface {
	Estimate(model, text string) int64
}

// ModelPrice is the per-1K-token price for one model.
type ModelPrice struct {
	InputPer1K  float64 `json:"input_per_1k"  yaml:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k" yaml:"output_per_1k"`
}

// PricingTable maps model identifiers to prices. Unknown models cost zero.
type PricingTable map[string]ModelPrice

// CostOf returns the monetary cost of one call's usage.
func (p PricingTable) CostOf(model string, usage TokenUsage) float64 {
	price, ok := p[model]
	if !ok {
		return 0
	}
	return float64(usage.InputTokens)/1000*price.InputPer1K +
		float64(usage.OutputTokens)/1000*price.OutputPer1K
}
