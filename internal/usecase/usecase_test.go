package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"agency-ai/internal/domain"
)

// --- Mocks ---

// mockProvider is a scriptable inference provider. Zero value returns a
// canned acknowledgment; set fields to inject failures, latency or usage.
type mockProvider struct {
	mu    sync.Mutex
	calls int

	text  string
	usage domain.TokenUsage
	err   error
	delay time.Duration
	// gate, when set, blocks Generate until the channel is closed. Used
	// to hold an execution in flight.
	gate    chan struct{}
	started chan struct{} // closed on first Generate entry when set
}

func (m *mockProvider) Generate(ctx context.Context, req domain.InferenceRequest) (*domain.InferenceResponse, error) {
	m.mu.Lock()
	m.calls++
	first := m.calls == 1
	m.mu.Unlock()

	if m.started != nil && first {
		close(m.started)
	}
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}

	text := m.text
	if text == "" {
		text = "ack: " + req.Message
	}
	return &domain.InferenceResponse{Text: text, Model: req.Model, Usage: m.usage}, nil
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// memAgentStore is an in-memory AgentStore preserving save order, with
// injectable failures.
type memAgentStore struct {
	mu      sync.Mutex
	byID    map[string]domain.AgentRecord
	order   []string
	saveErr error
	listErr error
}

func newMemAgentStore() *memAgentStore {
	return &memAgentStore{byID: make(map[string]domain.AgentRecord)}
}

func (s *memAgentStore) SaveAgent(_ context.Context, rec domain.AgentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if _, ok := s.byID[rec.ID]; !ok {
		s.order = append(s.order, rec.ID)
	}
	s.byID[rec.ID] = rec.Clone()
	return nil
}

func (s *memAgentStore) GetAgent(_ context.Context, id string) (*domain.AgentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := rec.Clone()
	return &c, nil
}

func (s *memAgentStore) ListAgents(_ context.Context) ([]domain.AgentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]domain.AgentRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out, nil
}

func (s *memAgentStore) DeleteAgent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *memAgentStore) saved(id string) (domain.AgentRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	return rec, ok
}

// memUsageStore captures appended execution rows.
type memUsageStore struct {
	mu   sync.Mutex
	rows []domain.ExecutionRecord
}

func (s *memUsageStore) AppendExecution(_ context.Context, rec domain.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rec)
	return nil
}

func (s *memUsageStore) UsageStats(_ context.Context, f domain.UsageFilter) (*domain.UsageStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &domain.UsageStats{}
	for _, r := range s.rows {
		if f.AgentID != "" && r.AgentID != f.AgentID {
			continue
		}
		stats.Executions++
		if r.Completed {
			stats.Completed++
		} else {
			stats.Failed++
		}
		stats.InputTokens += r.InputTokens
		stats.OutputTokens += r.OutputTokens
		stats.Cost += r.Cost
	}
	return stats, nil
}

func (s *memUsageStore) RecentExecutions(_ context.Context, _ domain.UsageFilter, limit int) ([]domain.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ExecutionRecord, 0, len(s.rows))
	for i := len(s.rows) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.rows[i])
	}
	return out, nil
}

func (s *memUsageStore) PruneExecutions(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	var pruned int64
	for _, r := range s.rows {
		if r.CreatedAt.Before(before) {
			pruned++
			continue
		}
		kept = append(kept, r)
	}
	s.rows = kept
	return pruned, nil
}

func (s *memUsageStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *memUsageStore) row(i int) domain.ExecutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[i]
}

// collectBus is an EventBus that records every published event.
type collectBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *collectBus) Publish(_ context.Context, event domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *collectBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *collectBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }
func (b *collectBus) Close()                                                 {}

func (b *collectBus) types() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.EventType, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

// fixedEstimator reports a constant token count per call.
type fixedEstimator struct{ n int64 }

func (e fixedEstimator) Estimate(_, _ string) int64 { return e.n }

// --- Helpers ---

func newTestLogger() *slog.Logger { return slog.Default() }

func testAgent(id, name, typ string, caps ...string) domain.AgentRecord {
	now := time.Now()
	return domain.AgentRecord{
		ID:           id,
		Name:         name,
		Type:         typ,
		Capabilities: caps,
		Model:        "test-model",
		Status:       domain.AgentIdle,
		CreatedAt:    now,
		LastActive:   now,
	}
}

func mustRegister(reg *Registry, recs ...domain.AgentRecord) {
	for _, rec := range recs {
		if err := reg.Register(context.Background(), rec); err != nil {
			panic(fmt.Sprintf("register %s: %v", rec.ID, err))
		}
	}
}

func newTestExecutor(reg *Registry, provider domain.InferenceProvider, opts ExecutorOptions) *Executor {
	return NewExecutor(reg, provider, opts, newTestLogger())
}
