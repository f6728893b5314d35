package usecase

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"agency-ai/internal/domain"
	"agency-ai/internal/infra/tracer"
)

// SelectionStrategy picks the agent that should execute a task. Selection
// and execution are decoupled so richer policies can be substituted
// without touching the execution contract.
type SelectionStrategy interface {
	Select(reg *Registry, spec domain.TaskSpec) (domain.AgentRecord, error)
}

// LeadStrategy always selects the lead agent: the first-registered agent
// of the configured lead type. This is the delegator-of-first-resort
// policy.
type LeadStrategy struct {
	leadType string
}

// NewLeadStrategy creates the default selection policy. leadType is the
// agent type that marks the lead (e.g., "ceo").
func NewLeadStrategy(leadType string) *LeadStrategy {
	return &LeadStrategy{leadType: leadType}
}

func (s *LeadStrategy) Select(reg *Registry, _ domain.TaskSpec) (domain.AgentRecord, error) {
	leads := reg.List(domain.AgentFilter{Type: s.leadType})
	if len(leads) == 0 {
		return domain.AgentRecord{}, domain.NewDomainError("LeadStrategy.Select", domain.ErrNoLeadAgent, s.leadType)
	}
	return leads[0], nil
}

// CapabilityStrategy selects the first idle agent carrying every
// capability the task requires, falling back to the lead when the task
// names none or no specialist matches.
type CapabilityStrategy struct {
	fallback SelectionStrategy
}

// NewCapabilityStrategy creates a capability-matching policy with the
// given fallback (usually a LeadStrategy).
func NewCapabilityStrategy(fallback SelectionStrategy) *CapabilityStrategy {
	return &CapabilityStrategy{fallback: fallback}
}

func (s *CapabilityStrategy) Select(reg *Registry, spec domain.TaskSpec) (domain.AgentRecord, error) {
	if len(spec.Capabilities) == 0 {
		return s.fallback.Select(reg, spec)
	}
	for _, rec := range reg.List(domain.AgentFilter{Status: domain.AgentIdle}) {
		if hasAllCapabilities(rec, spec.Capabilities) {
			return rec, nil
		}
	}
	return s.fallback.Select(reg, spec)
}

func hasAllCapabilities(rec domain.AgentRecord, required []string) bool {
	have := make(map[string]struct{}, len(rec.Capabilities))
	for _, c := range rec.Capabilities {
		have[c] = struct{}{}
	}
	for _, c := range required {
		if _, ok := have[c]; !ok {
			return false
		}
	}
	return true
}

// RoundRobinStrategy cycles through the idle agents of one type.
type RoundRobinStrategy struct {
	agentType string
	mu        sync.Mutex
	next      int
}

// NewRoundRobinStrategy creates a policy cycling agents of agentType.
func NewRoundRobinStrategy(agentType string) *RoundRobinStrategy {
	return &RoundRobinStrategy{agentType: agentType}
}

func (s *RoundRobinStrategy) Select(reg *Registry, _ domain.TaskSpec) (domain.AgentRecord, error) {
	candidates := reg.List(domain.AgentFilter{Type: s.agentType, Status: domain.AgentIdle})
	if len(candidates) == 0 {
		return domain.AgentRecord{}, domain.NewDomainError("RoundRobinStrategy.Select", domain.ErrNoLeadAgent, s.agentType)
	}
	s.mu.Lock()
	rec := candidates[s.next%len(candidates)]
	s.next++
	s.mu.Unlock()
	return rec, nil
}

// Coordinator routes a task specification to an agent and executes it.
type Coordinator struct {
	registry *Registry
	executor *Executor
	strategy SelectionStrategy
	limiter  *rate.Limiter // optional delegation rate limit
	logger   *slog.Logger
}

// NewCoordinator creates a Coordinator. limiter may be nil to disable
// delegation rate limiting.
func NewCoordinator(registry *Registry, executor *Executor, strategy SelectionStrategy, limiter *rate.Limiter, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = discardLogger()
	}
	return &Coordinator{
		registry: registry,
		executor: executor,
		strategy: strategy,
		limiter:  limiter,
		logger:   logger,
	}
}

// Delegate selects an agent for the task and executes it, returning the
// execution result unchanged. No retry: retry policy belongs to callers.
func (c *Coordinator) Delegate(ctx context.Context, spec domain.TaskSpec) (*domain.ExecutionResult, error) {
	ctx, span := tracer.StartSpan(ctx, "coordinator.delegate")
	defer span.End()

	if c.limiter != nil && !c.limiter.Allow() {
		err := domain.NewDomainError("Coordinator.Delegate", domain.ErrRateLimit, "")
		tracer.RecordError(span, err)
		return nil, err
	}

	agent, err := c.strategy.Select(c.registry, spec)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(tracer.StringAttr("agent.id", agent.ID))

	c.logger.Debug("task delegated", "agent_id", agent.ID, "agent_name", agent.Name)
	result, err := c.executor.Execute(ctx, agent.ID, spec)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	tracer.SetOK(span)
	return result, nil
}
