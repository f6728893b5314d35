package store

import (
	"context"
	"sync"
	"time"

	"agency-ai/internal/domain"
)

// MemoryStore implements domain.AgentStore and domain.UsageStore in
// process memory. It backs the "memory" driver and unit tests.
type MemoryStore struct {
	mu         sync.RWMutex
	agents     map[string]domain.AgentRecord
	agentOrder []string
	executions []domain.ExecutionRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents: make(map[string]domain.AgentRecord),
	}
}

// Close is a no-op, matching the SQLite store's lifecycle.
func (s *MemoryStore) Close() error { return nil }

// --- domain.AgentStore ---

// SaveAgent upserts one snapshot, preserving first-insert order.
func (s *MemoryStore) SaveAgent(_ context.Context, rec domain.AgentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.agents[rec.ID]; !exists {
		s.agentOrder = append(s.agentOrder, rec.ID)
	}
	s.agents[rec.ID] = rec.Clone()
	return nil
}

// GetAgent returns one snapshot by id.
func (s *MemoryStore) GetAgent(_ context.Context, id string) (*domain.AgentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.agents[id]
	if !ok {
		return nil, domain.NewDomainError("MemoryStore.GetAgent", domain.ErrNotFound, id)
	}
	c := rec.Clone()
	return &c, nil
}

// ListAgents returns all snapshots in original registration order.
func (s *MemoryStore) ListAgents(_ context.Context) ([]domain.AgentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := make([]domain.AgentRecord, 0, len(s.agentOrder))
	for _, id := range s.agentOrder {
		recs = append(recs, s.agents[id].Clone())
	}
	return recs, nil
}

// DeleteAgent removes one snapshot.
func (s *MemoryStore) DeleteAgent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[id]; !ok {
		return domain.NewDomainError("MemoryStore.DeleteAgent", domain.ErrNotFound, id)
	}
	delete(s.agents, id)
	for i, aid := range s.agentOrder {
		if aid == id {
			s.agentOrder = append(s.agentOrder[:i], s.agentOrder[i+1:]...)
			break
		}
	}
	return nil
}

// --- domain.UsageStore ---

// AppendExecution records one ledger row.
func (s *MemoryStore) AppendExecution(_ context.Context, rec domain.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions = append(s.executions, rec)
	return nil
}

// UsageStats aggregates rows matching the filter.
func (s *MemoryStore) UsageStats(_ context.Context, f domain.UsageFilter) (*domain.UsageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats domain.UsageStats
	for _, rec := range s.executions {
		if !matchesUsageFilter(f, rec) {
			continue
		}
		stats.Executions++
		if rec.Completed {
			stats.Completed++
		} else {
			stats.Failed++
		}
		stats.InputTokens += rec.InputTokens
		stats.OutputTokens += rec.OutputTokens
		stats.Cost += rec.Cost
	}
	return &stats, nil
}

// RecentExecutions returns up to limit matching rows, newest first.
func (s *MemoryStore) RecentExecutions(_ context.Context, f domain.UsageFilter, limit int) ([]domain.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var recs []domain.ExecutionRecord
	for i := len(s.executions) - 1; i >= 0 && len(recs) < limit; i-- {
		if matchesUsageFilter(f, s.executions[i]) {
			recs = append(recs, s.executions[i])
		}
	}
	return recs, nil
}

// PruneExecutions deletes rows created before the cutoff.
func (s *MemoryStore) PruneExecutions(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.executions[:0]
	var removed int64
	for _, rec := range s.executions {
		if rec.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.executions = kept
	return removed, nil
}

func matchesUsageFilter(f domain.UsageFilter, rec domain.ExecutionRecord) bool {
	if f.AgentID != "" && rec.AgentID != f.AgentID {
		return false
	}
	if f.OwnerID != "" && rec.OwnerID != f.OwnerID {
		return false
	}
	if !f.Since.IsZero() && rec.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !rec.CreatedAt.Before(f.Until) {
		return false
	}
	return true
}

// Compile-time interface checks.
var (
	_ domain.AgentStore = (*MemoryStore)(nil)
	_ domain.UsageStore = (*MemoryStore)(nil)
)
