package domain

import "time"

// AgentStatus is the lifecycle state of an agent record.
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentBusy    AgentStatus = "busy"
	AgentError   AgentStatus = "error"
	AgentOffline AgentStatus = "offline"
)

// AgentUsage holds the cumulative usage counters for one agent.
// TasksCompleted grows by exactly one per successful execution and
// never on failure.
type AgentUsage struct {
	InputTokens    int64   `json:"input_tokens"`
	OutputTokens   int64   `json:"output_tokens"`
	Cost           float64 `json:"cost"`
	TasksCompleted int64   `json:"tasks_completed"`
}

// AgentRecord describes one agent in the workforce: identity, capability
// tags, execution configuration, status, usage counters and ownership.
// Values of this type are snapshots; the registry owns the live state.
type AgentRecord struct {
	ID           string      `json:"id"            yaml:"id"`
	Name         string      `json:"name"          yaml:"name"`
	Type         string      `json:"type"          yaml:"type"`
	Capabilities []string    `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Model        string      `json:"model"         yaml:"model"`
	Tools        []string    `json:"tools,omitempty" yaml:"tools,omitempty"`
	Prompt       string      `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Status       AgentStatus `json:"status"`
	Usage        AgentUsage  `json:"usage"`
	CreatedAt    time.Time   `json:"created_at"`
	LastActive   time.Time   `json:"last_active"`
	CreatedBy    string      `json:"created_by,omitempty" yaml:"created_by,omitempty"`
	OwnerID      string      `json:"owner_id,omitempty"   yaml:"owner_id,omitempty"`
}

// Clone returns a deep copy so callers never share slices with the
// registry's live record.
func (r AgentRecord) Clone() AgentRecord {
	c := r
	if r.Capabilities != nil {
		c.Capabilities = append([]string(nil), r.Capabilities...)
	}
	if r.Tools != nil {
		c.Tools = append([]string(nil), r.Tools...)
	}
	return c
}

// AgentDefinition is the creation-time bundle for a new agent. Missing
// fields are filled from the matching type template, if any.
type AgentDefinition struct {
	ID           string   `json:"id,omitempty"           yaml:"id,omitempty"`
	Name         string   `json:"name"                   yaml:"name"`
	Type         string   `json:"type"                   yaml:"type"`
	Capabilities []string `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Model        string   `json:"model,omitempty"        yaml:"model,omitempty"`
	Tools        []string `json:"tools,omitempty"        yaml:"tools,omitempty"`
	Prompt       string   `json:"prompt,omitempty"       yaml:"prompt,omitempty"`
	CreatedBy    string   `json:"created_by,omitempty"   yaml:"created_by,omitempty"`
	OwnerID      string   `json:"owner_id,omitempty"     yaml:"owner_id,omitempty"`
}

// AgentTemplate is the per-type default configuration applied when an
// agent is created from a bare type name.
type AgentTemplate struct {
	Type         string   `json:"type"                   yaml:"type"`
	Capabilities []string `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Prompt       string   `json:"prompt,omitempty"       yaml:"prompt,omitempty"`
	Model        string   `json:"model,omitempty"        yaml:"model,omitempty"`
}

// CapabilitiesSummary is the discovery view over the whole registry:
// the deduplicated sorted union of all capability tags and agent types.
type CapabilitiesSummary struct {
	Capabilities []string `json:"capabilities"`
	Types        []string `json:"types"`
	TotalAgents  int      `json:"total_agents"`
}

// AgentFilter narrows a registry listing. Empty fields match everything;
// set fields combine with logical AND.
type AgentFilter struct {
	Type    string      `json:"type,omitempty"`
	Status  AgentStatus `json:"status,omitempty"`
	OwnerID string      `json:"owner_id,omitempty"`
}

// Matches reports whether the record satisfies every set filter field.
func (f AgentFilter) Matches(r AgentRecord) bool {
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.OwnerID != "" && r.OwnerID != f.OwnerID {
		return false
	}
	return true
}
