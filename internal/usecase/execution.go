package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"agency-ai/internal/domain"
	"agency-ai/internal/infra/tracer"
)

// Executor implements the task execution contract for one agent: status
// goes busy before any fallible work, then idle on success or error on
// failure; the completed-task counter moves only on success.
type Executor struct {
	registry  *Registry
	provider  domain.InferenceProvider
	locker    *AgentLocker
	ledger    domain.UsageStore     // optional
	bus       domain.EventBus       // optional
	estimator domain.TokenEstimator // optional
	pricing   domain.PricingTable   // optional
	timeout   time.Duration         // default per-execution timeout, 0 = none
	logger    *slog.Logger
}

// ExecutorOptions carries the optional collaborators of an Executor.
type ExecutorOptions struct {
	Ledger    domain.UsageStore
	Bus       domain.EventBus
	Estimator domain.TokenEstimator
	Pricing   domain.PricingTable
	Timeout   time.Duration
}

// NewExecutor creates an Executor bound to a registry and a provider.
func NewExecutor(registry *Registry, provider domain.InferenceProvider, opts ExecutorOptions, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = discardLogger()
	}
	return &Executor{
		registry:  registry,
		provider:  provider,
		locker:    NewAgentLocker(),
		ledger:    opts.Ledger,
		bus:       opts.Bus,
		estimator: opts.Estimator,
		pricing:   opts.Pricing,
		timeout:   opts.Timeout,
		logger:    logger,
	}
}

// Execute runs one task against one agent. Executions against the same
// agent ID are serialized; different agents proceed independently.
func (e *Executor) Execute(ctx context.Context, agentID string, spec domain.TaskSpec) (*domain.ExecutionResult, error) {
	if spec.Message == "" {
		return nil, domain.NewDomainError("Executor.Execute", domain.ErrInvalidInput, "task message is required")
	}

	entry, err := e.registry.lookup(agentID)
	if err != nil {
		return nil, err
	}

	// Serialize per agent. A caller cancelled while waiting here never
	// started executing: the record is untouched.
	release, err := e.locker.Acquire(ctx, agentID)
	if err != nil {
		return nil, domain.WrapOp("Executor.Execute", err)
	}
	defer release()

	start := time.Now()
	taskID := generateULID(start)

	ctx, span := tracer.StartSpan(ctx, "executor.execute",
		trace.WithAttributes(
			tracer.StringAttr("agent.id", agentID),
			tracer.StringAttr("task.id", taskID),
		))
	defer span.End()

	// Busy before any fallible work, so observers see it mid-flight.
	prev := entry.beginTask(start)
	agent := entry.snapshot()
	publishEvent(e.bus, ctx, domain.EventAgentStatusChanged, agentID, domain.StatusChangePayload{
		From: prev, To: domain.AgentBusy,
	})
	publishEvent(e.bus, ctx, domain.EventTaskStarted, agentID, domain.TaskEventPayload{
		TaskID: taskID, AgentName: agent.Name, Model: agent.Model,
	})

	genCtx := ctx
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, genErr := e.provider.Generate(genCtx, domain.InferenceRequest{
		Agent:   agent.Name,
		System:  agent.Prompt,
		Message: spec.Message,
		Model:   agent.Model,
	})
	if genErr == nil && genCtx.Err() != nil {
		// Provider returned after the deadline without erroring.
		genErr = genCtx.Err()
	}
	if genErr != nil {
		return nil, e.fail(ctx, span, entry, agent, taskID, start, genErr)
	}

	usage := resp.Usage
	if usage.IsZero() && e.estimator != nil {
		usage = domain.TokenUsage{
			InputTokens:  e.estimator.Estimate(agent.Model, agent.Prompt+"\n"+spec.Message),
			OutputTokens: e.estimator.Estimate(agent.Model, resp.Text),
		}
	}
	model := resp.Model
	if model == "" {
		model = agent.Model
	}
	cost := e.pricing.CostOf(model, usage)

	updated := entry.completeTask(usage, cost)
	duration := time.Since(start)

	publishEvent(e.bus, ctx, domain.EventAgentStatusChanged, agentID, domain.StatusChangePayload{
		From: domain.AgentBusy, To: domain.AgentIdle,
	})
	publishEvent(e.bus, ctx, domain.EventTaskCompleted, agentID, domain.TaskEventPayload{
		TaskID: taskID, AgentName: agent.Name, Model: model,
	})
	e.appendLedger(ctx, domain.ExecutionRecord{
		ID:           taskID,
		AgentID:      agentID,
		OwnerID:      agent.OwnerID,
		Model:        model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		Cost:         cost,
		Completed:    true,
		Duration:     duration,
		CreatedAt:    start,
	})

	span.SetAttributes(
		tracer.IntAttr("usage.input_tokens", int(usage.InputTokens)),
		tracer.IntAttr("usage.output_tokens", int(usage.OutputTokens)),
	)
	tracer.SetOK(span)
	e.logger.Info("task executed",
		"agent_id", agentID, "task_id", taskID, "model", model,
		"input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens,
		"tasks_completed", updated.Usage.TasksCompleted,
		"duration", duration)

	return &domain.ExecutionResult{
		TaskID:    taskID,
		AgentID:   agentID,
		AgentName: agent.Name,
		Model:     model,
		Response:  resp.Text,
		Completed: true,
		Usage:     usage,
		Cost:      cost,
		Duration:  duration,
	}, nil
}

// fail applies the failure path: status to error, counters untouched,
// typed error carrying the agent ID and the cause.
func (e *Executor) fail(ctx context.Context, span trace.Span, entry *agentEntry, agent domain.AgentRecord, taskID string, start time.Time, cause error) error {
	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, context.Canceled) {
		cause = fmt.Errorf("%w: %w", domain.ErrTimeout, cause)
	}

	entry.failTask()
	duration := time.Since(start)
	execErr := domain.NewExecutionError(agent.ID, taskID, cause)
	code := string(domain.ErrorCodeOf(execErr))

	publishEvent(e.bus, ctx, domain.EventAgentStatusChanged, agent.ID, domain.StatusChangePayload{
		From: domain.AgentBusy, To: domain.AgentError,
	})
	publishEvent(e.bus, ctx, domain.EventTaskFailed, agent.ID, domain.TaskEventPayload{
		TaskID: taskID, AgentName: agent.Name, Model: agent.Model, ErrorCode: code,
	})
	e.appendLedger(ctx, domain.ExecutionRecord{
		ID:        taskID,
		AgentID:   agent.ID,
		OwnerID:   agent.OwnerID,
		Model:     agent.Model,
		Completed: false,
		ErrorCode: code,
		Duration:  duration,
		CreatedAt: start,
	})

	tracer.RecordError(span, execErr)
	e.logger.Error("task execution failed",
		"agent_id", agent.ID, "task_id", taskID, "code", code, "error", cause)
	return execErr
}

// appendLedger writes one execution row. Best effort: ledger failures are
// logged and never affect the execution outcome.
func (e *Executor) appendLedger(ctx context.Context, rec domain.ExecutionRecord) {
	if e.ledger == nil {
		return
	}
	if err := e.ledger.AppendExecution(ctx, rec); err != nil {
		e.logger.Error("usage ledger write failed", "task_id", rec.ID, "error", err)
	}
}
