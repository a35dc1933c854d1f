package scenario

import (
	"context"
	"fmt"
	"sort"
	"sync"
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

// Registry provides scenario management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating CRUD operations.
//
// All public methods are thread-safe. Returned scenarios are deep
// copies: the engine receives a private graph it can walk without
// racing concurrent edits.
type Registry struct {
	repo    Repository
	cache   map[string]*Scenario
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a new scenario registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Scenario),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all scenarios from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	scenarios, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading scenarios: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Scenario, len(scenarios))
	for i := range scenarios {
		s := scenarios[i]
		r.cache[s.ID] = s.DeepCopy()
	}

	r.logger.Info("scenario cache refreshed", "count", len(scenarios))
	return nil
}

// Get retrieves a scenario by ID.
// The returned scenario is a deep copy; callers can safely modify it.
func (r *Registry) Get(_ context.Context, id string) (*Scenario, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}
	return nil, ErrScenarioNotFound
}

// List retrieves all scenarios from the cache.
// Returns deep copies sorted by name for deterministic ordering.
func (r *Registry) List(_ context.Context) ([]Scenario, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	scenarios := make([]Scenario, 0, len(r.cache))
	for _, s := range r.cache {
		scenarios = append(scenarios, *s.DeepCopy())
	}
	sort.Slice(scenarios, func(i, j int) bool {
		return scenarios[i].Name < scenarios[j].Name
	})
	return scenarios, nil
}

// Create validates, persists, and caches a new scenario.
func (r *Registry) Create(ctx context.Context, s *Scenario) error {
	if s.ID == "" {
		s.ID = GenerateID()
	}

	if err := Validate(s); err != nil {
		return err
	}

	if err := r.repo.Create(ctx, s); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[s.ID] = s.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("scenario created", "id", s.ID, "name", s.Name)
	return nil
}

// Update validates, persists, and updates the cached scenario.
func (r *Registry) Update(ctx context.Context, s *Scenario) error {
	if err := Validate(s); err != nil {
		return err
	}

	if err := r.repo.Update(ctx, s); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[s.ID] = s.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("scenario updated", "id", s.ID, "name", s.Name)
	return nil
}

// Delete removes a scenario from persistence and cache.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("scenario deleted", "id", id)
	return nil
}

// Count returns the number of cached scenarios.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
