package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// MockRepository is a test implementation of Repository.
type MockRepository struct {
	mu      sync.Mutex
	modules map[string]*Module
	// For testing error paths
	createErr       error
	updateErr       error
	deleteErr       error
	updateStateErr  error
	updateHealthErr error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		modules: make(map[string]*Module),
	}
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*Module, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mod, ok := m.modules[id]; ok {
		cpy := *mod
		return &cpy, nil
	}
	return nil, ErrModuleNotFound
}

func (m *MockRepository) GetByAddr(_ context.Context, routerID, addr int) (*Module, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mod := range m.modules {
		if mod.RouterID == routerID && mod.Addr == addr {
			cpy := *mod
			return &cpy, nil
		}
	}
	return nil, ErrModuleNotFound
}

func (m *MockRepository) List(_ context.Context) ([]Module, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	modules := make([]Module, 0, len(m.modules))
	for _, mod := range m.modules {
		modules = append(modules, *mod)
	}
	return modules, nil
}

func (m *MockRepository) ListByRouter(_ context.Context, routerID int) ([]Module, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var modules []Module
	for _, mod := range m.modules {
		if mod.RouterID == routerID {
			modules = append(modules, *mod)
		}
	}
	return modules, nil
}

func (m *MockRepository) ListByKind(_ context.Context, kind ModuleKind) ([]Module, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var modules []Module
	for _, mod := range m.modules {
		if mod.Kind == kind {
			modules = append(modules, *mod)
		}
	}
	return modules, nil
}

func (m *MockRepository) Create(_ context.Context, module *Module) error {
	if m.createErr != nil {
		return m.createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.modules[module.ID]; exists {
		return ErrModuleExists
	}

	cpy := *module
	m.modules[module.ID] = &cpy
	return nil
}

func (m *MockRepository) Update(_ context.Context, module *Module) error {
	if m.updateErr != nil {
		return m.updateErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.modules[module.ID]; !exists {
		return ErrModuleNotFound
	}

	cpy := *module
	m.modules[module.ID] = &cpy
	return nil
}

func (m *MockRepository) Delete(_ context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.modules[id]; !exists {
		return ErrModuleNotFound
	}
	delete(m.modules, id)
	return nil
}

func (m *MockRepository) UpdateState(_ context.Context, id string, state State) error {
	if m.updateStateErr != nil {
		return m.updateStateErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	mod, exists := m.modules[id]
	if !exists {
		return ErrModuleNotFound
	}
	mod.State = state
	now := time.Now().UTC()
	mod.StateUpdatedAt = &now
	return nil
}

func (m *MockRepository) UpdateHealth(_ context.Context, id string, status HealthStatus, lastSeen time.Time) error {
	if m.updateHealthErr != nil {
		return m.updateHealthErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	mod, exists := m.modules[id]
	if !exists {
		return ErrModuleNotFound
	}
	mod.HealthStatus = status
	mod.HealthLastSeen = &lastSeen
	return nil
}

func (m *MockRepository) UpdateHealthByRouter(_ context.Context, routerID int, status HealthStatus, lastSeen time.Time) error {
	if m.updateHealthErr != nil {
		return m.updateHealthErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mod := range m.modules {
		if mod.RouterID == routerID {
			mod.HealthStatus = status
			mod.HealthLastSeen = &lastSeen
		}
	}
	return nil
}

// registryModule creates a module for registry tests.
func registryModule(id, name string, router, addr int) *Module {
	return &Module{
		ID:           id,
		Name:         name,
		Slug:         GenerateSlug(name),
		RouterID:     router,
		Addr:         addr,
		TypeCode:     0x1408,
		TypeName:     "Smart Out 8/R",
		Kind:         KindOutput,
		State:        State{},
		HealthStatus: HealthStatusUnknown,
	}
}

func TestRegistry_CreateModule(t *testing.T) {
	repo := NewMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	t.Run("generates id and slug", func(t *testing.T) {
		module := registryModule("", "Garage Relays", 1, 10)
		module.ID = ""
		module.Slug = ""

		if err := registry.CreateModule(ctx, module); err != nil {
			t.Fatalf("CreateModule() error = %v", err)
		}
		if module.ID == "" {
			t.Error("ID should be generated")
		}
		if module.Slug != "garage-relays" {
			t.Errorf("Slug = %q, want garage-relays", module.Slug)
		}
	})

	t.Run("rejects invalid module", func(t *testing.T) {
		module := registryModule("", "", 1, 11)

		err := registry.CreateModule(ctx, module)
		if !errors.Is(err, ErrInvalidName) {
			t.Errorf("CreateModule() error = %v, want ErrInvalidName", err)
		}
	})
}

func TestRegistry_GetModule(t *testing.T) {
	repo := NewMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	module := registryModule("mod-001", "Cached", 1, 3)
	if err := registry.CreateModule(ctx, module); err != nil {
		t.Fatalf("CreateModule() error = %v", err)
	}

	got, err := registry.GetModule(ctx, "mod-001")
	if err != nil {
		t.Fatalf("GetModule() error = %v", err)
	}

	// Mutating the returned copy must not affect the cache
	got.Name = "Mutated"
	again, err := registry.GetModule(ctx, "mod-001")
	if err != nil {
		t.Fatalf("GetModule() error = %v", err)
	}
	if again.Name != "Cached" {
		t.Errorf("cache was mutated through returned copy: name = %q", again.Name)
	}

	if _, err := registry.GetModule(ctx, "missing"); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("GetModule(missing) error = %v, want ErrModuleNotFound", err)
	}
}

func TestRegistry_GetModuleByAddr(t *testing.T) {
	repo := NewMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	if err := registry.CreateModule(ctx, registryModule("mod-001", "Located", 1, 42)); err != nil {
		t.Fatalf("CreateModule() error = %v", err)
	}

	got, err := registry.GetModuleByAddr(ctx, 1, 42)
	if err != nil {
		t.Fatalf("GetModuleByAddr() error = %v", err)
	}
	if got.ID != "mod-001" {
		t.Errorf("ID = %q, want mod-001", got.ID)
	}

	if _, err := registry.GetModuleByAddr(ctx, 1, 43); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("GetModuleByAddr(unknown) error = %v, want ErrModuleNotFound", err)
	}
}

func TestRegistry_RefreshCache(t *testing.T) {
	repo := NewMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	// Seed repository directly, bypassing the registry
	for _, m := range []*Module{
		registryModule("mod-001", "One", 1, 3),
		registryModule("mod-002", "Two", 1, 7),
	} {
		if err := repo.Create(ctx, m); err != nil {
			t.Fatalf("repo.Create() error = %v", err)
		}
	}

	if registry.GetModuleCount() != 0 {
		t.Fatalf("cache should be empty before refresh")
	}

	if err := registry.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	if registry.GetModuleCount() != 2 {
		t.Errorf("GetModuleCount() = %d, want 2", registry.GetModuleCount())
	}
}

func TestRegistry_UpsertFromBus(t *testing.T) {
	repo := NewMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	t.Run("creates unknown module", func(t *testing.T) {
		module := registryModule("", "Hall Shutters", 1, 3)
		module.ID = ""

		got, err := registry.UpsertFromBus(ctx, module)
		if err != nil {
			t.Fatalf("UpsertFromBus() error = %v", err)
		}
		if got.ID == "" {
			t.Error("ID should be generated")
		}
	})

	t.Run("refreshes type and name on change", func(t *testing.T) {
		swapped := registryModule("", "Hall Blinds", 1, 3)
		swapped.ID = ""
		swapped.TypeCode = 0x0b1e
		swapped.TypeName = "Smart Dimm"
		swapped.Kind = KindDimmer

		got, err := registry.UpsertFromBus(ctx, swapped)
		if err != nil {
			t.Fatalf("UpsertFromBus() error = %v", err)
		}
		if got.TypeCode != 0x0b1e || got.Kind != KindDimmer {
			t.Errorf("got type=%#x kind=%q after swap", got.TypeCode, got.Kind)
		}
		if got.Name != "Hall Blinds" || got.Slug != "hall-blinds" {
			t.Errorf("got name=%q slug=%q after rename", got.Name, got.Slug)
		}
		if registry.GetModuleCount() != 1 {
			t.Errorf("GetModuleCount() = %d, want 1 (upsert must not duplicate)", registry.GetModuleCount())
		}
	})

	t.Run("unchanged module is a no-op", func(t *testing.T) {
		same := registryModule("", "Hall Blinds", 1, 3)
		same.ID = ""
		same.TypeCode = 0x0b1e
		same.TypeName = "Smart Dimm"
		same.Kind = KindDimmer

		got, err := registry.UpsertFromBus(ctx, same)
		if err != nil {
			t.Fatalf("UpsertFromBus() error = %v", err)
		}
		if got.Name != "Hall Blinds" {
			t.Errorf("Name = %q, want Hall Blinds", got.Name)
		}
	})
}

func TestRegistry_SetModuleState(t *testing.T) {
	repo := NewMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	module := registryModule("mod-001", "Stateful", 1, 3)
	if err := registry.CreateModule(ctx, module); err != nil {
		t.Fatalf("CreateModule() error = %v", err)
	}

	state := State{"outputs": []any{map[string]any{"number": float64(0), "on": true}}}
	if err := registry.SetModuleState(ctx, "mod-001", state); err != nil {
		t.Fatalf("SetModuleState() error = %v", err)
	}

	got, err := registry.GetModule(ctx, "mod-001")
	if err != nil {
		t.Fatalf("GetModule() error = %v", err)
	}
	if got.State == nil || got.State["outputs"] == nil {
		t.Error("state not reflected in cache")
	}
	if got.StateUpdatedAt == nil {
		t.Error("StateUpdatedAt should be set")
	}
}

func TestRegistry_SetRouterHealth(t *testing.T) {
	repo := NewMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	for _, m := range []*Module{
		registryModule("mod-001", "One", 1, 3),
		registryModule("mod-002", "Two", 1, 7),
		registryModule("mod-003", "Elsewhere", 2, 3),
	} {
		if err := registry.CreateModule(ctx, m); err != nil {
			t.Fatalf("CreateModule(%s) error = %v", m.ID, err)
		}
	}

	if err := registry.SetRouterHealth(ctx, 1, HealthStatusOffline); err != nil {
		t.Fatalf("SetRouterHealth() error = %v", err)
	}

	offline, err := registry.GetModulesByHealthStatus(ctx, HealthStatusOffline)
	if err != nil {
		t.Fatalf("GetModulesByHealthStatus() error = %v", err)
	}
	if len(offline) != 2 {
		t.Errorf("offline modules = %d, want 2", len(offline))
	}
}

func TestRegistry_DeleteModule(t *testing.T) {
	repo := NewMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	if err := registry.CreateModule(ctx, registryModule("mod-001", "Doomed", 1, 3)); err != nil {
		t.Fatalf("CreateModule() error = %v", err)
	}

	if err := registry.DeleteModule(ctx, "mod-001"); err != nil {
		t.Fatalf("DeleteModule() error = %v", err)
	}
	if registry.GetModuleCount() != 0 {
		t.Errorf("GetModuleCount() = %d after delete, want 0", registry.GetModuleCount())
	}
}

func TestRegistry_GetStats(t *testing.T) {
	repo := NewMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	dimmer := registryModule("mod-001", "Dim", 1, 3)
	dimmer.Kind = KindDimmer
	for _, m := range []*Module{
		dimmer,
		registryModule("mod-002", "Out A", 1, 7),
		registryModule("mod-003", "Out B", 2, 3),
	} {
		if err := registry.CreateModule(ctx, m); err != nil {
			t.Fatalf("CreateModule(%s) error = %v", m.ID, err)
		}
	}

	stats := registry.GetStats()
	if stats.TotalModules != 3 {
		t.Errorf("TotalModules = %d, want 3", stats.TotalModules)
	}
	if stats.ByRouter[1] != 2 || stats.ByRouter[2] != 1 {
		t.Errorf("ByRouter = %v", stats.ByRouter)
	}
	if stats.ByKind[KindDimmer] != 1 || stats.ByKind[KindOutput] != 2 {
		t.Errorf("ByKind = %v", stats.ByKind)
	}
}
