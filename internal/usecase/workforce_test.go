package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agency-ai/internal/domain"
)

func ceoDefinition() domain.AgentDefinition {
	return domain.AgentDefinition{Name: "Marketing CEO", Type: "ceo"}
}

func newTestWorkforce(store domain.AgentStore, bus domain.EventBus, extras ...domain.AgentDefinition) (*Workforce, *Registry) {
	reg := NewRegistry(store, bus, 0, newTestLogger())
	exec := newTestExecutor(reg, &mockProvider{usage: domain.TokenUsage{InputTokens: 10, OutputTokens: 5}}, ExecutorOptions{Bus: bus})
	coord := NewCoordinator(reg, exec, NewLeadStrategy("ceo"), nil, newTestLogger())
	templates := NewTemplateSet(DefaultTemplates())
	w := NewWorkforce(reg, coord, templates, ceoDefinition(), extras, bus, newTestLogger())
	return w, reg
}

func TestWorkforceInitialize(t *testing.T) {
	bus := &collectBus{}
	w, reg := newTestWorkforce(nil, bus)

	assert.Equal(t, WorkforceUninitialized, w.State())

	lead, err := w.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, WorkforceReady, w.State())
	assert.Equal(t, "Marketing CEO", lead.Name)
	assert.Equal(t, "ceo", lead.Type)
	assert.Contains(t, lead.Capabilities, "task_delegation", "lead gets the template capability set")
	assert.Equal(t, domain.AgentIdle, lead.Status)
	assert.Equal(t, 1, reg.Count())

	types := bus.types()
	assert.Contains(t, types, domain.EventWorkforceInitialized)

	status := w.Status()
	assert.Equal(t, WorkforceReady, status.State)
	assert.Equal(t, lead.ID, status.LeadID)
	assert.Equal(t, 1, status.AgentCount)
	assert.False(t, status.ReadySince.IsZero())
}

func TestWorkforceInitializeIdempotent(t *testing.T) {
	w, reg := newTestWorkforce(nil, nil)

	first, err := w.Initialize(context.Background())
	require.NoError(t, err)
	second, err := w.Initialize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, reg.Count(), "re-initialization must not register more agents")
}

func TestWorkforceInitializeConcurrent(t *testing.T) {
	w, reg := newTestWorkforce(nil, nil)

	const n = 10
	var wg sync.WaitGroup
	leads := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lead, err := w.Initialize(context.Background())
			if err == nil {
				leads <- lead.ID
			}
		}()
	}
	wg.Wait()
	close(leads)

	var first string
	for id := range leads {
		if first == "" {
			first = id
		}
		assert.Equal(t, first, id, "every caller sees the same lead")
	}
	assert.Equal(t, 1, reg.Count())
}

func TestWorkforceInitializeWithExtras(t *testing.T) {
	w, reg := newTestWorkforce(nil, nil,
		domain.AgentDefinition{Name: "Blog Writer", Type: "content_creator"},
		domain.AgentDefinition{Name: "SEO Lead", Type: "seo_specialist"},
	)

	lead, err := w.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, reg.Count())

	// The lead registers first.
	all := w.ListAllAgents()
	require.Len(t, all, 3)
	assert.Equal(t, lead.ID, all[0].ID)
	assert.Equal(t, "Blog Writer", all[1].Name)
	assert.Equal(t, "SEO Lead", all[2].Name)
}

func TestWorkforceInitializeRollsBackOnFailure(t *testing.T) {
	store := newMemAgentStore()
	store.listErr = errors.New("database offline")
	w, reg := newTestWorkforce(store, nil)

	_, err := w.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, WorkforceUninitialized, w.State())
	assert.Equal(t, 0, reg.Count(), "failed initialization leaves the registry empty")

	// Clean retry after the store recovers.
	store.mu.Lock()
	store.listErr = nil
	store.mu.Unlock()
	lead, err := w.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, WorkforceReady, w.State())
	assert.Equal(t, "Marketing CEO", lead.Name)
}

func TestWorkforceInitializeAdoptsPersistedLead(t *testing.T) {
	store := newMemAgentStore()
	persisted := testAgent("ceo-persisted", "Restored CEO", "ceo")
	require.NoError(t, store.SaveAgent(context.Background(), persisted))

	w, reg := newTestWorkforce(store, nil)
	lead, err := w.Initialize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ceo-persisted", lead.ID, "persisted lead is adopted, not duplicated")
	assert.Equal(t, 1, reg.Count())
}

func TestWorkforceInitializeSkipsPersistedExtras(t *testing.T) {
	store := newMemAgentStore()
	writer := testAgent("writer-1", "Blog Writer", "content_creator")
	require.NoError(t, store.SaveAgent(context.Background(), writer))

	w, reg := newTestWorkforce(store, nil,
		domain.AgentDefinition{Name: "Blog Writer", Type: "content_creator"},
	)
	_, err := w.Initialize(context.Background())
	require.NoError(t, err)

	// Lead + the one persisted writer; the configured extra matched by
	// name and type and was not re-registered.
	assert.Equal(t, 2, reg.Count())
}

func TestWorkforceLeadAgentBeforeInitialize(t *testing.T) {
	w, _ := newTestWorkforce(nil, nil)
	_, err := w.LeadAgent()
	assert.ErrorIs(t, err, domain.ErrNoLeadAgent)
}

func TestWorkforceDelegateBeforeInitialize(t *testing.T) {
	w, _ := newTestWorkforce(nil, nil)
	_, err := w.Delegate(context.Background(), domain.TaskSpec{Message: "launch"})
	assert.ErrorIs(t, err, domain.ErrNoLeadAgent)
	assert.Equal(t, domain.CodeNoLeadAgent, domain.ErrorCodeOf(err))
}

// The canonical scenario: initialize, delegate twice, watch the lead's
// counters move by exactly one per completed task.
func TestWorkforceDelegateToLead(t *testing.T) {
	w, _ := newTestWorkforce(nil, nil)
	lead, err := w.Initialize(context.Background())
	require.NoError(t, err)

	result, err := w.Delegate(context.Background(), domain.TaskSpec{Message: "Plan the Q4 campaign"})
	require.NoError(t, err)
	assert.Equal(t, lead.ID, result.AgentID)
	assert.True(t, result.Completed)

	rec, err := w.Agent(lead.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Usage.TasksCompleted)
	assert.Equal(t, domain.AgentIdle, rec.Status)

	_, err = w.Delegate(context.Background(), domain.TaskSpec{Message: "Review the copy"})
	require.NoError(t, err)
	rec, _ = w.Agent(lead.ID)
	assert.Equal(t, int64(2), rec.Usage.TasksCompleted)
	assert.Equal(t, int64(20), rec.Usage.InputTokens)
	assert.Equal(t, int64(10), rec.Usage.OutputTokens)
}

func TestWorkforceRegisterAgent(t *testing.T) {
	w, _ := newTestWorkforce(nil, nil)

	// Registration requires a ready workforce.
	_, err := w.RegisterAgent(context.Background(), domain.AgentDefinition{Name: "X", Type: "content_creator"})
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	_, err = w.Initialize(context.Background())
	require.NoError(t, err)

	// Owner comes from the caller context when the definition has none.
	ctx := domain.ContextWithOwner(context.Background(), "owner-42")
	rec, err := w.RegisterAgent(ctx, domain.AgentDefinition{Name: "Writer", Type: "content_creator"})
	require.NoError(t, err)
	assert.Equal(t, "owner-42", rec.OwnerID)

	listed := w.ListAgents(domain.AgentFilter{OwnerID: "owner-42"})
	require.Len(t, listed, 1)
	assert.Equal(t, rec.ID, listed[0].ID)
}

func TestWorkforceCreateFromTemplate(t *testing.T) {
	w, _ := newTestWorkforce(nil, nil)
	_, err := w.Initialize(context.Background())
	require.NoError(t, err)

	rec, err := w.CreateFromTemplate(context.Background(), "seo_specialist", "SEO Sam")
	require.NoError(t, err)
	assert.Equal(t, "seo_specialist", rec.Type)
	assert.Contains(t, rec.Capabilities, "keyword_research")

	_, err = w.CreateFromTemplate(context.Background(), "fortune_teller", "Nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.CodeTemplateNotFound, domain.ErrorCodeOf(err))
}

func TestWorkforceCapabilitiesSummary(t *testing.T) {
	w, _ := newTestWorkforce(nil, nil)
	_, err := w.Initialize(context.Background())
	require.NoError(t, err)
	_, err = w.CreateFromTemplate(context.Background(), "content_creator", "Writer")
	require.NoError(t, err)

	summary := w.CapabilitiesSummary()
	assert.Equal(t, 2, summary.TotalAgents)
	assert.Contains(t, summary.Types, "ceo")
	assert.Contains(t, summary.Types, "content_creator")
	assert.Contains(t, summary.Capabilities, "copywriting")
	assert.Contains(t, summary.Capabilities, "strategic_planning")
}
