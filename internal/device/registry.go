package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides module management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating CRUD operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Module // Cached modules by ID
	cacheMu sync.RWMutex       // Protects cache
	logger  Logger
}

// NewRegistry creates a new module registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Module),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all modules from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	modules, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading modules: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	// Clear and rebuild cache with deep copies
	r.cache = make(map[string]*Module, len(modules))
	for i := range modules {
		m := modules[i]
		r.cache[m.ID] = m.DeepCopy()
	}

	r.logger.Info("module cache refreshed", "count", len(modules))
	return nil
}

// GetModule retrieves a module by ID.
// Returns ErrModuleNotFound if the module does not exist.
// The returned module is a deep copy; callers can safely modify it.
func (r *Registry) GetModule(ctx context.Context, id string) (*Module, error) {
	// Try cache first
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		// Return a deep copy to prevent external mutation of cache
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might be a new module not yet cached)
	module, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Cache for future lookups (store a deep copy)
	r.cacheMu.Lock()
	r.cache[id] = module.DeepCopy()
	r.cacheMu.Unlock()

	return module, nil
}

// GetModuleByAddr retrieves a module by its bus location.
// The returned module is a deep copy; callers can safely modify it.
func (r *Registry) GetModuleByAddr(ctx context.Context, routerID, addr int) (*Module, error) {
	r.cacheMu.RLock()
	for _, m := range r.cache {
		if m.RouterID == routerID && m.Addr == addr {
			cpy := m.DeepCopy()
			r.cacheMu.RUnlock()
			return cpy, nil
		}
	}
	r.cacheMu.RUnlock()

	module, err := r.repo.GetByAddr(ctx, routerID, addr)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[module.ID] = module.DeepCopy()
	r.cacheMu.Unlock()

	return module, nil
}

// ListModules retrieves all modules.
// The returned modules are deep copies; callers can safely modify them.
func (r *Registry) ListModules(ctx context.Context) ([]Module, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	// Return from cache if populated
	if len(r.cache) > 0 {
		modules := make([]Module, 0, len(r.cache))
		for _, m := range r.cache {
			// Deep copy to prevent external mutation of cache
			modules = append(modules, *m.DeepCopy())
		}
		return modules, nil
	}

	// Fall back to repository
	return r.repo.List(ctx)
}

// GetModulesByRouter retrieves all modules on a specific router.
// The returned modules are deep copies; callers can safely modify them.
func (r *Registry) GetModulesByRouter(ctx context.Context, routerID int) ([]Module, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	// Filter from cache if populated
	if len(r.cache) > 0 {
		var modules []Module
		for _, m := range r.cache {
			if m.RouterID == routerID {
				// Deep copy to prevent external mutation of cache
				modules = append(modules, *m.DeepCopy())
			}
		}
		return modules, nil
	}

	return r.repo.ListByRouter(ctx, routerID)
}

// GetModulesByKind retrieves all modules of a specific kind.
// The returned modules are deep copies; callers can safely modify them.
func (r *Registry) GetModulesByKind(ctx context.Context, kind ModuleKind) ([]Module, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	// Filter from cache if populated
	if len(r.cache) > 0 {
		var modules []Module
		for _, m := range r.cache {
			if m.Kind == kind {
				// Deep copy to prevent external mutation of cache
				modules = append(modules, *m.DeepCopy())
			}
		}
		return modules, nil
	}

	return r.repo.ListByKind(ctx, kind)
}

// GetModulesByHealthStatus retrieves all modules with a specific health status.
// The returned modules are deep copies; callers can safely modify them.
func (r *Registry) GetModulesByHealthStatus(ctx context.Context, status HealthStatus) ([]Module, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	var modules []Module
	for _, m := range r.cache {
		if m.HealthStatus == status {
			// Deep copy to prevent external mutation of cache
			modules = append(modules, *m.DeepCopy())
		}
	}
	return modules, nil
}

// GetModuleBySlug retrieves a module by its URL-safe slug.
// The returned module is a deep copy; callers can safely modify it.
func (r *Registry) GetModuleBySlug(ctx context.Context, slug string) (*Module, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	for _, m := range r.cache {
		if m.Slug == slug {
			// Return a deep copy to prevent external mutation of cache
			return m.DeepCopy(), nil
		}
	}
	return nil, ErrModuleNotFound
}

// CreateModule creates a new module.
// It validates the module, generates ID and slug if needed, and persists it.
func (r *Registry) CreateModule(ctx context.Context, module *Module) error {
	// Generate ID if not provided
	if module.ID == "" {
		module.ID = GenerateID()
	}

	// Generate slug if not provided
	if module.Slug == "" {
		module.Slug = GenerateSlug(module.Name)
	}

	// Validate
	if err := ValidateModule(module); err != nil {
		return err
	}

	// Persist
	if err := r.repo.Create(ctx, module); err != nil {
		return err
	}

	// Update cache (store a deep copy to prevent external modification)
	r.cacheMu.Lock()
	r.cache[module.ID] = module.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("module created", "id", module.ID, "router", module.RouterID, "addr", module.Addr, "name", module.Name)
	return nil
}

// UpdateModule updates an existing module.
// It validates the module and persists the changes.
func (r *Registry) UpdateModule(ctx context.Context, module *Module) error {
	// Regenerate slug if name changed and slug wasn't explicitly set
	existing, err := r.GetModule(ctx, module.ID)
	if err != nil {
		return err
	}
	if module.Name != existing.Name && module.Slug == existing.Slug {
		module.Slug = GenerateSlug(module.Name)
	}

	// Validate
	if err := ValidateModule(module); err != nil {
		return err
	}

	// Persist
	if err := r.repo.Update(ctx, module); err != nil {
		return err
	}

	// Update cache (store a deep copy to prevent external modification)
	r.cacheMu.Lock()
	r.cache[module.ID] = module.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("module updated", "id", module.ID, "name", module.Name)
	return nil
}

// UpsertFromBus reconciles a module found during bus enumeration.
//
// If the address is unknown a new module is created; if it is known, the
// hardware type and name are refreshed (modules can be swapped or renamed
// through the installer software between daemon runs).
//
// Returns the registry module for the address.
func (r *Registry) UpsertFromBus(ctx context.Context, module *Module) (*Module, error) {
	existing, err := r.GetModuleByAddr(ctx, module.RouterID, module.Addr)
	if err != nil {
		if !errors.Is(err, ErrModuleNotFound) {
			return nil, err
		}
		if err := r.CreateModule(ctx, module); err != nil {
			return nil, err
		}
		return module.DeepCopy(), nil
	}

	// No change means no write
	if existing.TypeCode == module.TypeCode && existing.Name == module.Name && existing.Kind == module.Kind {
		return existing, nil
	}

	existing.TypeCode = module.TypeCode
	existing.TypeName = module.TypeName
	existing.Kind = module.Kind
	if existing.Name != module.Name {
		existing.Name = module.Name
		existing.Slug = GenerateSlug(module.Name)
	}
	if err := r.UpdateModule(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// DeleteModule removes a module.
func (r *Registry) DeleteModule(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	// Update cache
	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("module deleted", "id", id)
	return nil
}

// SetModuleState updates the state of a module.
// This is optimised for frequent updates from the poll loop.
func (r *Registry) SetModuleState(ctx context.Context, id string, state State) error {
	if err := r.repo.UpdateState(ctx, id, state); err != nil {
		return err
	}

	// Update cache using deep copy to prevent race conditions
	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		// Create a deep copy with updated state (atomic replacement)
		updated := cached.DeepCopy()
		updated.State = deepCopyMap(state) // Deep copy the new state too
		now := time.Now().UTC()
		updated.StateUpdatedAt = &now
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()

	r.logger.Debug("module state updated", "id", id)
	return nil
}

// SetModuleHealth updates the health status of a module.
func (r *Registry) SetModuleHealth(ctx context.Context, id string, status HealthStatus) error {
	now := time.Now().UTC()
	if err := r.repo.UpdateHealth(ctx, id, status, now); err != nil {
		return err
	}

	// Update cache using deep copy to prevent race conditions
	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		// Create a deep copy with updated health (atomic replacement)
		updated := cached.DeepCopy()
		updated.HealthStatus = status
		updated.HealthLastSeen = &now
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()

	r.logger.Debug("module health updated", "id", id, "status", status)
	return nil
}

// SetRouterHealth updates health for every module on a router.
// Used when the router stops answering polls or recovers.
func (r *Registry) SetRouterHealth(ctx context.Context, routerID int, status HealthStatus) error {
	now := time.Now().UTC()
	if err := r.repo.UpdateHealthByRouter(ctx, routerID, status, now); err != nil {
		return err
	}

	r.cacheMu.Lock()
	for id, cached := range r.cache {
		if cached.RouterID != routerID {
			continue
		}
		updated := cached.DeepCopy()
		updated.HealthStatus = status
		updated.HealthLastSeen = &now
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()

	r.logger.Info("router module health updated", "router", routerID, "status", status)
	return nil
}

// GetModuleCount returns the number of cached modules.
func (r *Registry) GetModuleCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalModules   int
	ByRouter       map[int]int
	ByKind         map[ModuleKind]int
	ByHealthStatus map[HealthStatus]int
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{
		TotalModules:   len(r.cache),
		ByRouter:       make(map[int]int),
		ByKind:         make(map[ModuleKind]int),
		ByHealthStatus: make(map[HealthStatus]int),
	}

	for _, m := range r.cache {
		stats.ByRouter[m.RouterID]++
		stats.ByKind[m.Kind]++
		stats.ByHealthStatus[m.HealthStatus]++
	}

	return stats
}
