package domain

import "time"

// TaskSpec is the ephemeral input bundle delegated to an agent.
// Message is required; everything else is optional context.
type TaskSpec struct {
	Message  string            `json:"message"`
	Inputs   map[string]string `json:"inputs,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	// Timeout bounds the execution; zero means the executor default.
	Timeout time.Duration `json:"timeout,omitempty"`
	// Capabilities are required tags for capability-based selection.
	// The default lead strategy ignores them.
	Capabilities []string `json:"capabilities,omitempty"`
}

// ExecutionResult is the ephemeral output bundle of one execution.
type ExecutionResult struct {
	TaskID    string        `json:"task_id"`
	AgentID   string        `json:"agent_id"`
	AgentName string        `json:"agent_name"`
	Model     string        `json:"model"`
	Response  string        `json:"response"`
	Completed bool          `json:"completed"`
	Usage     TokenUsage    `json:"usage"`
	Cost      float64       `json:"cost"`
	Duration  time.Duration `json:"duration"`
}

// ExecutionRecord is one row of the usage ledger: the durable trace of a
// single execution attempt, successful or not.
type ExecutionRecord struct {
	ID           string        `json:"id"`
	AgentID      string        `json:"agent_id"`
	OwnerID      string        `json:"owner_id,omitempty"`
	Model        string        `json:"model"`
	InputTokens  int64         `json:"input_tokens"`
	OutputTokens int64         `json:"output_tokens"`
	Cost         float64       `json:"cost"`
	Completed    bool          `json:"completed"`
	ErrorCode    string        `json:"error_code,omitempty"`
	Duration     time.Duration `json:"duration"`
	CreatedAt    time.Time     `json:"created_at"`
}

// UsageFilter narrows ledger queries. Zero fields match everything.
type UsageFilter struct {
	AgentID string    `json:"agent_id,omitempty"`
	OwnerID string    `json:"owner_id,omitempty"`
	Since   time.Time `json:"since,omitempty"`
	Until   time.Time `json:"until,omitempty"`
}

// UsageStats aggregates the ledger rows matching a filter.
type UsageStats struct {
	Executions   int64   `json:"executions"`
	Completed    int64   `json:"completed"`
	Failed       int64   `json:"failed"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}
