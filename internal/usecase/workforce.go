package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"agency-ai/internal/domain"
)

// WorkforceState is the facade lifecycle: uninitialized -> initializing
// -> ready. There is no transition back; a failed initialization rolls
// back to uninitialized for a clean retry.
type WorkforceState string

const (
	WorkforceUninitialized WorkforceState = "uninitialized"
	WorkforceInitializing  WorkforceState = "initializing"
	WorkforceReady         WorkforceState = "ready"
)

// WorkforceStatus is the ops view of the facade.
type WorkforceStatus struct {
	State      WorkforceState `json:"state"`
	AgentCount int            `json:"agent_count"`
	LeadID     string         `json:"lead_id,omitempty"`
	ReadySince time.Time      `json:"ready_since,omitempty"`
}

// Workforce is the process-wide entry point: it bootstraps the registry
// with the default lead agent and exposes the registry and delegation
// operations to the transport layer. Construct one per process and
// inject it; there is no package-level singleton.
type Workforce struct {
	registry    *Registry
	coordinator *Coordinator
	templates   *TemplateSet
	leadDef     domain.AgentDefinition
	extraDefs   []domain.AgentDefinition
	bus         domain.EventBus
	logger      *slog.Logger

	initMu  sync.Mutex // serializes Initialize
	stateMu sync.RWMutex
	state   WorkforceState
	leadID  string
	ready   time.Time
}

// NewWorkforce creates the facade. leadDef is the default lead agent
// registered on Initialize; extraDefs are additional agents registered
// alongside it.
func NewWorkforce(registry *Registry, coordinator *Coordinator, templates *TemplateSet, leadDef domain.AgentDefinition, extraDefs []domain.AgentDefinition, bus domain.EventBus, logger *slog.Logger) *Workforce {
	if logger == nil {
		logger = discardLogger()
	}
	return &Workforce{
		registry:    registry,
		coordinator: coordinator,
		templates:   templates,
		leadDef:     leadDef,
		extraDefs:   extraDefs,
		bus:         bus,
		logger:      logger,
		state:       WorkforceUninitialized,
	}
}

// Initialize is idempotent: the first call loads persisted agents,
// registers the default lead agent and any configured extras, and
// transitions the facade to ready. Later calls return the existing lead
// without registering anything. A failure rolls everything back to
// uninitialized so the call can be retried cleanly.
func (w *Workforce) Initialize(ctx context.Context) (domain.AgentRecord, error) {
	w.initMu.Lock()
	defer w.initMu.Unlock()

	if w.State() == WorkforceReady {
		return w.registry.Get(w.currentLeadID())
	}
	w.setState(WorkforceInitializing)

	lead, err := w.initialize(ctx)
	if err != nil {
		w.registry.Reset()
		w.setState(WorkforceUninitialized)
		w.logger.Error("workforce initialization failed", "error", err)
		return domain.AgentRecord{}, domain.WrapOp("Workforce.Initialize", err)
	}

	w.stateMu.Lock()
	w.state = WorkforceReady
	w.leadID = lead.ID
	w.ready = time.Now()
	w.stateMu.Unlock()

	publishEvent(w.bus, ctx, domain.EventWorkforceInitialized, lead.ID, lead)
	w.logger.Info("workforce ready",
		"lead_id", lead.ID, "lead_name", lead.Name, "agents", w.registry.Count())
	return lead, nil
}

func (w *Workforce) initialize(ctx context.Context) (domain.AgentRecord, error) {
	loaded, err := w.registry.LoadPersisted(ctx)
	if err != nil {
		return domain.AgentRecord{}, err
	}

	// Adopt a persisted lead if one came back from the store; register
	// the configured one otherwise. Never create a duplicate lead.
	var lead domain.AgentRecord
	if leads := w.registry.List(domain.AgentFilter{Type: w.leadDef.Type}); len(leads) > 0 {
		lead = leads[0]
	} else {
		lead, err = w.registry.Create(ctx, w.leadDef, w.templates)
		if err != nil {
			return domain.AgentRecord{}, err
		}
	}

	// Additional configured agents, matched by name+type against what the
	// store already returned so restarts do not re-register them.
	existing := make(map[string]struct{}, loaded)
	for _, rec := range w.registry.List(domain.AgentFilter{}) {
		existing[rec.Name+"\x00"+rec.Type] = struct{}{}
	}
	for _, def := range w.extraDefs {
		if _, ok := existing[def.Name+"\x00"+def.Type]; ok {
			continue
		}
		if _, err := w.registry.Create(ctx, def, w.templates); err != nil {
			return domain.AgentRecord{}, err
		}
	}
	return lead, nil
}

// LeadAgent returns the lead agent record, or ErrNoLeadAgent when the
// workforce has not been initialized.
func (w *Workforce) LeadAgent() (domain.AgentRecord, error) {
	if w.State() != WorkforceReady {
		return domain.AgentRecord{}, domain.NewDomainError("Workforce.LeadAgent", domain.ErrNoLeadAgent, "workforce not initialized")
	}
	return w.registry.Get(w.currentLeadID())
}

// ListAllAgents returns every agent in registration order.
func (w *Workforce) ListAllAgents() []domain.AgentRecord {
	return w.registry.List(domain.AgentFilter{})
}

// ListAgents returns the agents matching the filter in registration order.
func (w *Workforce) ListAgents(filter domain.AgentFilter) []domain.AgentRecord {
	return w.registry.List(filter)
}

// Agent returns one agent by ID.
func (w *Workforce) Agent(id string) (domain.AgentRecord, error) {
	return w.registry.Get(id)
}

// CapabilitiesSummary returns the registry-wide discovery summary.
func (w *Workforce) CapabilitiesSummary() domain.CapabilitiesSummary {
	return w.registry.CapabilitiesSummary()
}

// Delegate routes the task to an agent via the coordinator. Fails with
// ErrNoLeadAgent before initialization.
func (w *Workforce) Delegate(ctx context.Context, spec domain.TaskSpec) (*domain.ExecutionResult, error) {
	if w.State() != WorkforceReady {
		return nil, domain.NewDomainError("Workforce.Delegate", domain.ErrNoLeadAgent, "workforce not initialized")
	}
	return w.coordinator.Delegate(ctx, spec)
}

// RegisterAgent creates an agent from a definition, stamping the caller's
// owner ID from ctx when the definition carries none. Requires the
// workforce to be ready.
func (w *Workforce) RegisterAgent(ctx context.Context, def domain.AgentDefinition) (domain.AgentRecord, error) {
	if w.State() != WorkforceReady {
		return domain.AgentRecord{}, domain.NewDomainError("Workforce.RegisterAgent", domain.ErrNotInitialized, "")
	}
	if def.OwnerID == "" {
		def.OwnerID = domain.OwnerFromContext(ctx)
	}
	return w.registry.Create(ctx, def, w.templates)
}

// CreateFromTemplate registers an agent of a templated type. Requires the
// workforce to be ready.
func (w *Workforce) CreateFromTemplate(ctx context.Context, typ, name string) (domain.AgentRecord, error) {
	if w.State() != WorkforceReady {
		return domain.AgentRecord{}, domain.NewDomainError("Workforce.CreateFromTemplate", domain.ErrNotInitialized, "")
	}
	return w.registry.CreateFromTemplate(ctx, w.templates, typ, name, domain.OwnerFromContext(ctx))
}

// State returns the current lifecycle state.
func (w *Workforce) State() WorkforceState {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.state
}

// Status returns the ops view.
func (w *Workforce) Status() WorkforceStatus {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return WorkforceStatus{
		State:      w.state,
		AgentCount: w.registry.Count(),
		LeadID:     w.leadID,
		ReadySince: w.ready,
	}
}

func (w *Workforce) setState(s WorkforceState) {
	w.stateMu.Lock()
	w.state = s
	w.stateMu.Unlock()
}

func (w *Workforce) currentLeadID() string {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.leadID
}
