package usecase

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"agency-ai/internal/domain"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry(nil, nil, 0, newTestLogger())
	rec := testAgent("ceo-1", "CEO", "ceo", "strategic_planning", "task_delegation")
	if err := reg.Register(context.Background(), rec); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := reg.Get("ceo-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "CEO" || got.Type != "ceo" {
		t.Errorf("Get = %q/%q, want CEO/ceo", got.Name, got.Type)
	}
	if !reflect.DeepEqual(got.Capabilities, []string{"strategic_planning", "task_delegation"}) {
		t.Errorf("Capabilities = %v", got.Capabilities)
	}
	if got.Status != domain.AgentIdle {
		t.Errorf("Status = %q, want idle", got.Status)
	}
}

func TestRegistryDuplicateLeavesExistingUntouched(t *testing.T) {
	reg := NewRegistry(nil, nil, 0, newTestLogger())
	mustRegister(reg, testAgent("a1", "Original", "ceo"))

	dup := testAgent("a1", "Impostor", "content_creator")
	err := reg.Register(context.Background(), dup)
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if code := domain.ErrorCodeOf(err); code != domain.CodeAgentDuplicate {
		t.Errorf("code = %s, want %s", code, domain.CodeAgentDuplicate)
	}

	got, err := reg.Get("a1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Original" || got.Type != "ceo" {
		t.Errorf("existing record modified by duplicate register: %q/%q", got.Name, got.Type)
	}
	if reg.Count() != 1 {
		t.Errorf("Count = %d, want 1", reg.Count())
	}
}

func TestRegistryGetNotFound(t *testing.T) {
	reg := NewRegistry(nil, nil, 0, newTestLogger())
	_, err := reg.Get("nonexistent")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if code := domain.ErrorCodeOf(err); code != domain.CodeAgentNotFound {
		t.Errorf("code = %s, want %s", code, domain.CodeAgentNotFound)
	}
}

func TestRegistryListInsertionOrder(t *testing.T) {
	reg := NewRegistry(nil, nil, 0, newTestLogger())
	ids := []string{"z9", "a1", "m5", "b2"}
	for i, id := range ids {
		mustRegister(reg, testAgent(id, fmt.Sprintf("Agent %d", i), "content_creator"))
	}

	list := reg.List(domain.AgentFilter{})
	if len(list) != len(ids) {
		t.Fatalf("List length = %d, want %d", len(list), len(ids))
	}
	for i, rec := range list {
		if rec.ID != ids[i] {
			t.Errorf("List[%d].ID = %q, want %q (registration order)", i, rec.ID, ids[i])
		}
	}
}

func TestRegistryListFilters(t *testing.T) {
	reg := NewRegistry(nil, nil, 0, newTestLogger())
	a := testAgent("a", "A", "ceo")
	a.OwnerID = "owner-1"
	b := testAgent("b", "B", "content_creator")
	b.OwnerID = "owner-1"
	c := testAgent("c", "C", "content_creator")
	c.OwnerID = "owner-2"
	mustRegister(reg, a, b, c)

	tests := []struct {
		name   string
		filter domain.AgentFilter
		want   []string
	}{
		{"all", domain.AgentFilter{}, []string{"a", "b", "c"}},
		{"by type", domain.AgentFilter{Type: "content_creator"}, []string{"b", "c"}},
		{"by owner", domain.AgentFilter{OwnerID: "owner-1"}, []string{"a", "b"}},
		{"type and owner", domain.AgentFilter{Type: "content_creator", OwnerID: "owner-1"}, []string{"b"}},
		{"by status", domain.AgentFilter{Status: domain.AgentIdle}, []string{"a", "b", "c"}},
		{"no match", domain.AgentFilter{Type: "seo_specialist"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, rec := range reg.List(tt.filter) {
				got = append(got, rec.ID)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("List(%+v) = %v, want %v", tt.filter, got, tt.want)
			}
		})
	}
}

func TestRegistryCapabilitiesSummary(t *testing.T) {
	reg := NewRegistry(nil, nil, 0, newTestLogger())
	mustRegister(reg,
		testAgent("x", "X", "ceo", "a", "b"),
		testAgent("y", "Y", "content_creator", "b", "c"),
	)

	summary := reg.CapabilitiesSummary()
	if !reflect.DeepEqual(summary.Capabilities, []string{"a", "b", "c"}) {
		t.Errorf("Capabilities = %v, want [a b c]", summary.Capabilities)
	}
	if !reflect.DeepEqual(summary.Types, []string{"ceo", "content_creator"}) {
		t.Errorf("Types = %v, want [ceo content_creator]", summary.Types)
	}
	if summary.TotalAgents != 2 {
		t.Errorf("TotalAgents = %d, want 2", summary.TotalAgents)
	}
}

func TestRegistryCapabilitiesSummaryEmpty(t *testing.T) {
	reg := NewRegistry(nil, nil, 0, newTestLogger())
	summary := reg.CapabilitiesSummary()
	if len(summary.Capabilities) != 0 || len(summary.Types) != 0 || summary.TotalAgents != 0 {
		t.Errorf("summary of empty registry = %+v", summary)
	}
}

func TestRegistryCreateAppliesTemplate(t *testing.T) {
	reg := NewRegistry(nil, nil, 0, newTestLogger())
	templates := NewTemplateSet(DefaultTemplates())

	rec, err := reg.Create(context.Background(), domain.AgentDefinition{
		Name: "Marketing CEO",
		Type: "ceo",
	}, templates)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID == "" {
		t.Error("Create minted no ID")
	}
	want := []string{"strategic_planning", "task_delegation", "team_coordination"}
	if !reflect.DeepEqual(rec.Capabilities, want) {
		t.Errorf("Capabilities = %v, want %v", rec.Capabilities, want)
	}
	if rec.Prompt == "" {
		t.Error("template prompt not applied")
	}

	// Explicit fields win over the template.
	rec2, err := reg.Create(context.Background(), domain.AgentDefinition{
		Name:         "Custom CEO",
		Type:         "ceo",
		Capabilities: []string{"only_this"},
	}, templates)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !reflect.DeepEqual(rec2.Capabilities, []string{"only_this"}) {
		t.Errorf("explicit capabilities overridden: %v", rec2.Capabilities)
	}
}

func TestRegistryCreateValidatesInput(t *testing.T) {
	reg := NewRegistry(nil, nil, 0, newTestLogger())
	_, err := reg.Create(context.Background(), domain.AgentDefinition{Type: "ceo"}, nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("missing name: expected ErrInvalidInput, got %v", err)
	}
	_, err = reg.Create(context.Background(), domain.AgentDefinition{Name: "X"}, nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("missing type: expected ErrInvalidInput, got %v", err)
	}
}

func TestRegistryOwnerQuota(t *testing.T) {
	reg := NewRegistry(nil, nil, 2, newTestLogger())
	a := testAgent("a", "A", "ceo")
	a.OwnerID = "owner-1"
	b := testAgent("b", "B", "ceo")
	b.OwnerID = "owner-1"
	mustRegister(reg, a, b)

	c := testAgent("c", "C", "ceo")
	c.OwnerID = "owner-1"
	err := reg.Register(context.Background(), c)
	if !errors.Is(err, domain.ErrLimitReached) {
		t.Fatalf("expected ErrLimitReached, got %v", err)
	}
	if code := domain.ErrorCodeOf(err); code != domain.CodeAgentLimit {
		t.Errorf("code = %s, want %s", code, domain.CodeAgentLimit)
	}

	// A different owner is unaffected.
	d := testAgent("d", "D", "ceo")
	d.OwnerID = "owner-2"
	if err := reg.Register(context.Background(), d); err != nil {
		t.Errorf("other owner blocked by quota: %v", err)
	}
}

func TestRegistryRename(t *testing.T) {
	reg := NewRegistry(nil, nil, 0, newTestLogger())
	mustRegister(reg, testAgent("a", "Old", "ceo"))

	rec, err := reg.Rename(context.Background(), "a", "New")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if rec.Name != "New" {
		t.Errorf("Name = %q, want New", rec.Name)
	}

	if _, err := reg.Rename(context.Background(), "a", ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("empty name: expected ErrInvalidInput, got %v", err)
	}
	if _, err := reg.Rename(context.Background(), "ghost", "X"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown agent: expected ErrNotFound, got %v", err)
	}
}

func TestRegistrySetCapabilities(t *testing.T) {
	reg := NewRegistry(nil, nil, 0, newTestLogger())
	mustRegister(reg, testAgent("a", "A", "ceo", "x"))

	rec, err := reg.SetCapabilities(context.Background(), "a", []string{"y", "z"})
	if err != nil {
		t.Fatalf("SetCapabilities: %v", err)
	}
	if !reflect.DeepEqual(rec.Capabilities, []string{"y", "z"}) {
		t.Errorf("Capabilities = %v, want [y z]", rec.Capabilities)
	}
}

func TestRegistryMarkOffline(t *testing.T) {
	reg := NewRegistry(nil, nil, 0, newTestLogger())
	mustRegister(reg, testAgent("a", "A", "ceo"))

	if err := reg.MarkOffline(context.Background(), "a"); err != nil {
		t.Fatalf("MarkOffline: %v", err)
	}
	got, _ := reg.Get("a")
	if got.Status != domain.AgentOffline {
		t.Errorf("Status = %q, want offline", got.Status)
	}
}

func TestRegistryMarkOfflineRefusesBusy(t *testing.T) {
	reg := NewRegistry(nil, nil, 0, newTestLogger())
	mustRegister(reg, testAgent("a", "A", "ceo"))

	entry, err := reg.lookup("a")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	entry.beginTask(time.Now())

	if err := reg.MarkOffline(context.Background(), "a"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for busy agent, got %v", err)
	}
	got, _ := reg.Get("a")
	if got.Status != domain.AgentBusy {
		t.Errorf("Status = %q, want busy", got.Status)
	}
}

func TestRegistrySweepOffline(t *testing.T) {
	reg := NewRegistry(nil, nil, 0, newTestLogger())

	stale := testAgent("stale", "Stale", "ceo")
	stale.LastActive = time.Now().Add(-2 * time.Hour)
	fresh := testAgent("fresh", "Fresh", "ceo")
	busy := testAgent("busy", "Busy", "ceo")
	busy.LastActive = time.Now().Add(-2 * time.Hour)
	mustRegister(reg, stale, fresh, busy)

	// Busy agents are exempt regardless of age.
	entry, _ := reg.lookup("busy")
	entry.beginTask(time.Now().Add(-2 * time.Hour))

	swept := reg.SweepOffline(context.Background(), time.Hour)
	if !reflect.DeepEqual(swept, []string{"stale"}) {
		t.Errorf("swept = %v, want [stale]", swept)
	}

	got, _ := reg.Get("stale")
	if got.Status != domain.AgentOffline {
		t.Errorf("stale status = %q, want offline", got.Status)
	}
	got, _ = reg.Get("fresh")
	if got.Status != domain.AgentIdle {
		t.Errorf("fresh status = %q, want idle", got.Status)
	}
	got, _ = reg.Get("busy")
	if got.Status != domain.AgentBusy {
		t.Errorf("busy status = %q, want busy", got.Status)
	}
}

func TestRegistryPersistsWriteBehind(t *testing.T) {
	store := newMemAgentStore()
	reg := NewRegistry(store, nil, 0, newTestLogger())
	mustRegister(reg, testAgent("a", "A", "ceo"))

	saved, ok := store.saved("a")
	if !ok {
		t.Fatal("register did not persist a snapshot")
	}
	if saved.Name != "A" {
		t.Errorf("persisted Name = %q, want A", saved.Name)
	}

	// Store failures are logged, never surfaced: the registry stays
	// authoritative.
	store.saveErr = errors.New("disk full")
	if err := reg.Register(context.Background(), testAgent("b", "B", "ceo")); err != nil {
		t.Errorf("Register surfaced store error: %v", err)
	}
	if _, err := reg.Get("b"); err != nil {
		t.Errorf("agent missing after store failure: %v", err)
	}
}

func TestRegistryLoadPersisted(t *testing.T) {
	store := newMemAgentStore()
	ctx := context.Background()

	first := testAgent("a", "A", "ceo")
	second := testAgent("b", "B", "content_creator")
	second.Status = domain.AgentBusy // crashed mid-execution
	if err := store.SaveAgent(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveAgent(ctx, second); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry(store, nil, 0, newTestLogger())
	loaded, err := reg.LoadPersisted(ctx)
	if err != nil {
		t.Fatalf("LoadPersisted: %v", err)
	}
	if loaded != 2 {
		t.Errorf("loaded = %d, want 2", loaded)
	}

	list := reg.List(domain.AgentFilter{})
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Errorf("order not preserved: %v", list)
	}
	// Nothing can still be busy after a restart.
	if list[1].Status != domain.AgentError {
		t.Errorf("busy-at-shutdown agent loaded as %q, want error", list[1].Status)
	}
}

func TestRegistrySnapshotsAreIsolated(t *testing.T) {
	reg := NewRegistry(nil, nil, 0, newTestLogger())
	mustRegister(reg, testAgent("a", "A", "ceo", "x"))

	got, _ := reg.Get("a")
	got.Name = "Mutated"
	got.Capabilities[0] = "mutated"

	fresh, _ := reg.Get("a")
	if fresh.Name != "A" || fresh.Capabilities[0] != "x" {
		t.Error("mutating a snapshot leaked into the registry")
	}

	list := reg.List(domain.AgentFilter{})
	list[0].Capabilities[0] = "mutated"
	fresh, _ = reg.Get("a")
	if fresh.Capabilities[0] != "x" {
		t.Error("mutating a listed snapshot leaked into the registry")
	}
}

func TestRegistryConcurrentRegisterAndList(t *testing.T) {
	reg := NewRegistry(nil, nil, 0, newTestLogger())
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			reg.Register(context.Background(), testAgent(id, id, "content_creator"))
		}(fmt.Sprintf("agent_%d", i))
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.List(domain.AgentFilter{})
			reg.CapabilitiesSummary()
		}()
	}
	wg.Wait()

	if reg.Count() != 50 {
		t.Errorf("Count = %d, want 50", reg.Count())
	}
}

func TestRegistryEvents(t *testing.T) {
	bus := &collectBus{}
	reg := NewRegistry(nil, bus, 0, newTestLogger())
	mustRegister(reg, testAgent("a", "A", "ceo"))
	if _, err := reg.Rename(context.Background(), "a", "B"); err != nil {
		t.Fatal(err)
	}

	types := bus.types()
	want := []domain.EventType{domain.EventAgentRegistered, domain.EventAgentUpdated}
	if !reflect.DeepEqual(types, want) {
		t.Errorf("events = %v, want %v", types, want)
	}
}
