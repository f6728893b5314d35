package domain

import (
	"context"
	"time"
)

// AgentStore persists agent record snapshots. The in-memory registry
// stays authoritative; the store exists so a restarted process can
// reconstruct its agent population.
type AgentStore interface {
	SaveAgent(ctx context.Context, rec AgentRecord) error
	GetAgent(ctx context.Context, id string) (*AgentRecord, error)
	// ListAgents returns all snapshots in original registration order.
	ListAgents(ctx context.Context) ([]AgentRecord, error)
	DeleteAgent(ctx context.Context, id string) error
}

// UsageStore persists the execution ledger and serves aggregate queries.
type UsageStore interface {
	AppendExecution(ctx context.Context, rec ExecutionRecord) error
	UsageStats(ctx context.Context, f UsageFilter) (*UsageStats, error)
	// RecentExecutions returns up to limit ledger rows matching the
	// filter, newest first.
	RecentExecutions(ctx context.Context, f UsageFilter, limit int) ([]ExecutionRecord, error)
	// PruneExecutions deletes ledger rows created before the cutoff and
	// returns how many were removed.
	PruneExecutions(ctx context.Context, before time.Time) (int64, error)
}
