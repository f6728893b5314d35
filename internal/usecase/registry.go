package usecase

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"agency-ai/internal/domain"
)

// agentEntry is the live, mutable state for one registered agent. All
// field mutation goes through its methods under its own lock so registry
// snapshots never observe torn counters or half-applied transitions.
type agentEntry struct {
	mu  sync.RWMutex
	rec domain.AgentRecord
}

func (e *agentEntry) snapshot() domain.AgentRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rec.Clone()
}

// beginTask marks the record busy and stamps last-active. Called before
// any fallible work so observers can see "busy" for the whole execution.
func (e *agentEntry) beginTask(now time.Time) (prev domain.AgentStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev = e.rec.Status
	e.rec.Status = domain.AgentBusy
	e.rec.LastActive = now
	return prev
}

// completeTask applies a successful execution: accumulate usage, bump the
// completed counter by exactly one, return to idle.
func (e *agentEntry) completeTask(usage domain.TokenUsage, cost float64) domain.AgentRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec.Usage.InputTokens += usage.InputTokens
	e.rec.Usage.OutputTokens += usage.OutputTokens
	e.rec.Usage.Cost += cost
	e.rec.Usage.TasksCompleted++
	e.rec.Status = domain.AgentIdle
	return e.rec.Clone()
}

// failTask applies a failed execution: status goes to error, counters
// stay untouched.
func (e *agentEntry) failTask() domain.AgentRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec.Status = domain.AgentError
	return e.rec.Clone()
}

// Registry is the single authoritative mapping from agent ID to record
// for a process. Listings preserve registration order.
type Registry struct {
	mu          sync.RWMutex
	agents      map[string]*agentEntry
	order       []string // agent IDs in registration order
	maxPerOwner int      // 0 = unlimited
	store       domain.AgentStore
	bus         domain.EventBus
	logger      *slog.Logger
}

// NewRegistry creates a Registry. store and bus may be nil; maxPerOwner
// of zero disables the per-owner quota.
func NewRegistry(store domain.AgentStore, bus domain.EventBus, maxPerOwner int, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = discardLogger()
	}
	return &Registry{
		agents:      make(map[string]*agentEntry),
		maxPerOwner: maxPerOwner,
		store:       store,
		bus:         bus,
		logger:      logger,
	}
}

// Register inserts a fully-formed record. Returns ErrDuplicate (agent
// subsystem) if the ID is already taken; the existing record is left
// unmodified. Enforces the per-owner quota when configured.
func (r *Registry) Register(ctx context.Context, rec domain.AgentRecord) error {
	r.mu.Lock()
	if _, exists := r.agents[rec.ID]; exists {
		r.mu.Unlock()
		return domain.NewSubSystemError("agent", "Registry.Register", domain.ErrDuplicate, rec.ID)
	}
	if r.maxPerOwner > 0 && r.countByOwnerLocked(rec.OwnerID) >= r.maxPerOwner {
		r.mu.Unlock()
		return domain.NewSubSystemError("agent", "Registry.Register", domain.ErrLimitReached, rec.OwnerID)
	}
	r.agents[rec.ID] = &agentEntry{rec: rec.Clone()}
	r.order = append(r.order, rec.ID)
	r.mu.Unlock()

	r.logger.Info("agent registered",
		"agent_id", rec.ID, "name", rec.Name, "type", rec.Type, "owner", rec.OwnerID)
	r.persist(ctx, rec)
	publishEvent(r.bus, ctx, domain.EventAgentRegistered, rec.ID, rec)
	return nil
}

// Create builds a record from a definition, applying template defaults
// for the definition's type, mints an ID when absent, and registers it.
func (r *Registry) Create(ctx context.Context, def domain.AgentDefinition, templates *TemplateSet) (domain.AgentRecord, error) {
	if def.Name == "" || def.Type == "" {
		return domain.AgentRecord{}, domain.NewDomainError("Registry.Create", domain.ErrInvalidInput, "name and type are required")
	}
	if templates != nil {
		def = templates.Apply(def)
	}

	now := time.Now()
	rec := domain.AgentRecord{
		ID:           def.ID,
		Name:         def.Name,
		Type:         def.Type,
		Capabilities: append([]string(nil), def.Capabilities...),
		Model:        def.Model,
		Tools:        append([]string(nil), def.Tools...),
		Prompt:       def.Prompt,
		Status:       domain.AgentIdle,
		CreatedAt:    now,
		LastActive:   now,
		CreatedBy:    def.CreatedBy,
		OwnerID:      def.OwnerID,
	}
	if rec.ID == "" {
		rec.ID = generateULID(now)
	}
	if err := r.Register(ctx, rec); err != nil {
		return domain.AgentRecord{}, err
	}
	return rec, nil
}

// Get returns a snapshot of the record, or ErrNotFound (agent subsystem).
func (r *Registry) Get(agentID string) (domain.AgentRecord, error) {
	entry, err := r.lookup(agentID)
	if err != nil {
		return domain.AgentRecord{}, err
	}
	return entry.snapshot(), nil
}

// List returns snapshots of all records matching the filter, in
// registration order. An empty filter matches everything.
func (r *Registry) List(filter domain.AgentFilter) []domain.AgentRecord {
	r.mu.RLock()
	entries := make([]*agentEntry, 0, len(r.order))
	for _, id := range r.order {
		entries = append(entries, r.agents[id])
	}
	r.mu.RUnlock()

	out := make([]domain.AgentRecord, 0, len(entries))
	for _, e := range entries {
		rec := e.snapshot()
		if filter.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// CapabilitiesSummary returns the deduplicated, sorted union of every
// record's capability tags and distinct types, plus the agent count.
func (r *Registry) CapabilitiesSummary() domain.CapabilitiesSummary {
	records := r.List(domain.AgentFilter{})

	capSet := make(map[string]struct{})
	typeSet := make(map[string]struct{})
	for _, rec := range records {
		for _, c := range rec.Capabilities {
			capSet[c] = struct{}{}
		}
		if rec.Type != "" {
			typeSet[rec.Type] = struct{}{}
		}
	}

	summary := domain.CapabilitiesSummary{
		Capabilities: make([]string, 0, len(capSet)),
		Types:        make([]string, 0, len(typeSet)),
		TotalAgents:  len(records),
	}
	for c := range capSet {
		summary.Capabilities = append(summary.Capabilities, c)
	}
	for t := range typeSet {
		summary.Types = append(summary.Types, t)
	}
	sort.Strings(summary.Capabilities)
	sort.Strings(summary.Types)
	return summary
}

// Rename updates the agent's display name.
func (r *Registry) Rename(ctx context.Context, agentID, name string) (domain.AgentRecord, error) {
	if name == "" {
		return domain.AgentRecord{}, domain.NewDomainError("Registry.Rename", domain.ErrInvalidInput, "name must not be empty")
	}
	return r.update(ctx, "Registry.Rename", agentID, func(rec *domain.AgentRecord) {
		rec.Name = name
	})
}

// SetCapabilities replaces the agent's capability tags.
func (r *Registry) SetCapabilities(ctx context.Context, agentID string, caps []string) (domain.AgentRecord, error) {
	return r.update(ctx, "Registry.SetCapabilities", agentID, func(rec *domain.AgentRecord) {
		rec.Capabilities = append([]string(nil), caps...)
	})
}

// MarkOffline transitions an agent to offline. Busy agents are refused:
// the execution contract owns the busy state.
func (r *Registry) MarkOffline(ctx context.Context, agentID string) error {
	entry, err := r.lookup(agentID)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	if entry.rec.Status == domain.AgentBusy {
		entry.mu.Unlock()
		return domain.NewDomainError("Registry.MarkOffline", domain.ErrInvalidInput, "agent is busy")
	}
	prev := entry.rec.Status
	entry.rec.Status = domain.AgentOffline
	rec := entry.rec.Clone()
	entry.mu.Unlock()

	r.logger.Info("agent marked offline", "agent_id", agentID)
	r.persist(ctx, rec)
	publishEvent(r.bus, ctx, domain.EventAgentStatusChanged, agentID, domain.StatusChangePayload{
		From: prev, To: domain.AgentOffline,
	})
	return nil
}

// SweepOffline marks idle agents whose last activity is older than the
// window as offline. Busy and error agents are left alone. Returns the
// IDs transitioned; used by the maintenance scheduler.
func (r *Registry) SweepOffline(ctx context.Context, olderThan time.Duration) []string {
	cutoff := time.Now().Add(-olderThan)

	r.mu.RLock()
	entries := make([]*agentEntry, 0, len(r.order))
	for _, id := range r.order {
		entries = append(entries, r.agents[id])
	}
	r.mu.RUnlock()

	var swept []string
	for _, e := range entries {
		e.mu.Lock()
		if e.rec.Status == domain.AgentIdle && e.rec.LastActive.Before(cutoff) {
			e.rec.Status = domain.AgentOffline
			rec := e.rec.Clone()
			e.mu.Unlock()
			swept = append(swept, rec.ID)
			r.persist(ctx, rec)
			publishEvent(r.bus, ctx, domain.EventAgentStatusChanged, rec.ID, domain.StatusChangePayload{
				From: domain.AgentIdle, To: domain.AgentOffline,
			})
			continue
		}
		e.mu.Unlock()
	}

	if len(swept) > 0 {
		r.logger.Info("inactive agents marked offline", "count", len(swept), "window", olderThan)
	}
	return swept
}

// LoadPersisted repopulates the registry from the snapshot store in the
// original registration order. Records persisted mid-execution load as
// error: nothing can still be busy after a restart.
func (r *Registry) LoadPersisted(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, nil
	}
	records, err := r.store.ListAgents(ctx)
	if err != nil {
		return 0, domain.WrapOp("Registry.LoadPersisted", err)
	}

	loaded := 0
	for _, rec := range records {
		if rec.Status == domain.AgentBusy {
			rec.Status = domain.AgentError
			r.logger.Warn("agent was busy at shutdown, loading as error", "agent_id", rec.ID)
		}
		r.mu.Lock()
		if _, exists := r.agents[rec.ID]; exists {
			r.mu.Unlock()
			continue
		}
		r.agents[rec.ID] = &agentEntry{rec: rec.Clone()}
		r.order = append(r.order, rec.ID)
		r.mu.Unlock()
		loaded++
	}
	if loaded > 0 {
		r.logger.Info("agents loaded from store", "count", loaded)
	}
	return loaded, nil
}

// Reset drops every record. Used by the facade to roll back a failed
// initialization; not part of the public surface beyond that.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = make(map[string]*agentEntry)
	r.order = nil
}

// lookup returns the live entry for an agent ID.
func (r *Registry) lookup(agentID string) (*agentEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.agents[agentID]
	if !ok {
		return nil, domain.NewSubSystemError("agent", "Registry.Get", domain.ErrNotFound, agentID)
	}
	return entry, nil
}

// update applies fn to the record under its lock and persists the result.
func (r *Registry) update(ctx context.Context, op, agentID string, fn func(*domain.AgentRecord)) (domain.AgentRecord, error) {
	entry, err := r.lookup(agentID)
	if err != nil {
		return domain.AgentRecord{}, domain.WrapOp(op, err)
	}

	entry.mu.Lock()
	fn(&entry.rec)
	rec := entry.rec.Clone()
	entry.mu.Unlock()

	r.persist(ctx, rec)
	publishEvent(r.bus, ctx, domain.EventAgentUpdated, agentID, rec)
	return rec, nil
}

func (r *Registry) countByOwnerLocked(ownerID string) int {
	n := 0
	for _, e := range r.agents {
		e.mu.RLock()
		if e.rec.OwnerID == ownerID {
			n++
		}
		e.mu.RUnlock()
	}
	return n
}

// persist writes a snapshot through the store. Best effort: the registry
// stays authoritative, so store failures are logged and never propagate.
func (r *Registry) persist(ctx context.Context, rec domain.AgentRecord) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveAgent(ctx, rec); err != nil {
		r.logger.Error("agent snapshot write failed", "agent_id", rec.ID, "error", err)
	}
}

func generateULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// publishEvent publishes a domain event on the bus if one is configured.
func publishEvent(bus domain.EventBus, ctx context.Context, eventType domain.EventType, agentID string, payload any) {
	if bus == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err == nil {
			raw = data
		}
	}
	bus.Publish(ctx, domain.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		AgentID:   agentID,
		Payload:   raw,
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
