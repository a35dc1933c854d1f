package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
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

// StatusListener receives device status transitions. The API layer uses
// this to push device.changed events over the websocket.
type StatusListener func(deviceID string, status Status)

// Registry provides device management with caching and thread safety.
//
// Connection status is runtime state fed by the agents' MQTT status
// topics; it is cached immediately and written back to the repository
// so the inventory survives restarts with a sane last-known state.
//
// Editing sessions are volatile and live only in the registry: a
// session holds a device for a scenario author, and the engine treats
// such a device as unavailable for test runs.
type Registry struct {
	repo     Repository
	cache    map[string]*Device
	sessions map[string]time.Time // deviceID -> session start
	cacheMu  sync.RWMutex
	logger   Logger
	listener StatusListener
}

// NewRegistry creates a new device registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:     repo,
		cache:    make(map[string]*Device),
		sessions: make(map[string]time.Time),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetStatusListener registers a callback for status transitions.
// Must be called before the MQTT status subscription starts.
func (r *Registry) SetStatusListener(fn StatusListener) {
	r.listener = fn
}

// RefreshCache reloads all devices from the repository into the cache.
// Devices come up offline regardless of their stored status: agents
// re-announce themselves on reconnect, and a stale "connected" row must
// not make a dead device look usable.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		d := devices[i]
		d.Status = StatusOffline
		r.cache[d.ID] = d.DeepCopy()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// Get retrieves a device by ID. The returned device is a deep copy.
func (r *Registry) Get(_ context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}
	return nil, ErrDeviceNotFound
}

// List retrieves all devices sorted by name.
func (r *Registry) List(_ context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		devices = append(devices, *d.DeepCopy())
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Name < devices[j].Name
	})
	return devices, nil
}

// ListConnected retrieves connected devices in the testing role,
// sorted by name. This is the pool the engine draws from.
func (r *Registry) ListConnected(_ context.Context) ([]Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	var devices []Device
	for _, d := range r.cache {
		if d.Status == StatusConnected && d.Role != RoleEditing {
			devices = append(devices, *d.DeepCopy())
		}
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Name < devices[j].Name
	})
	return devices, nil
}

// Create validates, persists, and caches a new device.
// New devices default to the testing role and offline status.
func (r *Registry) Create(ctx context.Context, d *Device) error {
	if d.ID == "" {
		d.ID = GenerateID()
	}
	if d.Status == "" {
		d.Status = StatusOffline
	}
	if d.Role == "" {
		d.Role = RoleTesting
	}

	if err := Validate(d); err != nil {
		return err
	}

	if err := r.repo.Create(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device created", "id", d.ID, "name", d.Name, "serial", d.Serial)
	return nil
}

// Update validates, persists, and updates the cached device.
func (r *Registry) Update(ctx context.Context, d *Device) error {
	if err := Validate(d); err != nil {
		return err
	}

	if err := r.repo.Update(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device updated", "id", d.ID, "name", d.Name)
	return nil
}

// Delete removes a device from persistence and cache.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	delete(r.sessions, id)
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "id", id)
	return nil
}

// SetStatus records a status transition reported by a device agent.
// Unknown device IDs are logged and dropped: agents for unregistered
// devices are a configuration problem, not a crash.
func (r *Registry) SetStatus(ctx context.Context, id string, status Status) {
	if !status.Valid() {
		r.logger.Warn("ignoring unknown device status", "device_id", id, "status", status)
		return
	}

	r.cacheMu.Lock()
	d, ok := r.cache[id]
	if !ok {
		r.cacheMu.Unlock()
		r.logger.Warn("status for unregistered device", "device_id", id, "status", status)
		return
	}
	changed := d.Status != status
	d.Status = status
	persisted := d.DeepCopy()
	r.cacheMu.Unlock()

	if !changed {
		return
	}

	if err := r.repo.Update(ctx, persisted); err != nil {
		r.logger.Error("persisting device status", "device_id", id, "error", err)
	}

	r.logger.Info("device status changed", "device_id", id, "status", status)
	if r.listener != nil {
		r.listener(id, status)
	}
}

// BeginSession opens an editing session on a device, moving it to the
// editing role so it is excluded from test execution.
func (r *Registry) BeginSession(_ context.Context, id string) error {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	d, ok := r.cache[id]
	if !ok {
		return ErrDeviceNotFound
	}
	if _, active := r.sessions[id]; active {
		return ErrSessionActive
	}

	r.sessions[id] = time.Now().UTC()
	d.Role = RoleEditing

	r.logger.Info("editing session started", "device_id", id)
	return nil
}

// EndSession closes an editing session and returns the device to the
// testing role.
func (r *Registry) EndSession(_ context.Context, id string) error {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	if _, active := r.sessions[id]; !active {
		return ErrNoSession
	}
	delete(r.sessions, id)

	if d, ok := r.cache[id]; ok {
		d.Role = RoleTesting
	}

	r.logger.Info("editing session ended", "device_id", id)
	return nil
}

// HasActiveSession reports whether a device has a live editing session.
func (r *Registry) HasActiveSession(id string) bool {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	_, active := r.sessions[id]
	return active
}

// Count returns the number of cached devices.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
