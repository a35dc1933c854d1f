package engine

import "sync"

// Logger defines the logging interface used by the engine packages.
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

// lockEntry is one device's critical section. Each entry has its own
// mutex so contention on one device never blocks status checks on
// another.
type lockEntry struct {
	mu    sync.Mutex
	owner string // execution or session ID, empty when free
}

// LockRegistry serialises access to physical devices. A device is
// locked by an owner ID (an execution, or an editing session) and
// stays locked until explicitly released.
//
// The outer mutex only guards map population; per-device state lives
// behind each entry's own lock.
type LockRegistry struct {
	mu     sync.Mutex
	locks  map[string]*lockEntry
	logger Logger
}

// NewLockRegistry creates an empty lock registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{
		locks:  make(map[string]*lockEntry),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *LockRegistry) SetLogger(logger Logger) {
	r.logger = logger
}

// entry returns the lock entry for a device, creating it on first use.
func (r *LockRegistry) entry(deviceID string) *lockEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.locks[deviceID]
	if !ok {
		e = &lockEntry{}
		r.locks[deviceID] = e
	}
	return e
}

// TryAcquire attempts to take the device for ownerID. Returns true on
// success and when ownerID already holds the lock (re-entrant for the
// same owner); false when another owner holds it. Never blocks.
func (r *LockRegistry) TryAcquire(deviceID, ownerID string) bool {
	e := r.entry(deviceID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.owner == "" || e.owner == ownerID {
		e.owner = ownerID
		r.logger.Debug("device lock acquired", "device_id", deviceID, "owner", ownerID)
		return true
	}
	return false
}

// Release frees the device lock. Releasing an unheld lock is a no-op:
// completion paths (normal, cancel, force) may overlap and each is
// allowed to release defensively.
func (r *LockRegistry) Release(deviceID string) {
	e := r.entry(deviceID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.owner == "" {
		r.logger.Debug("release of unheld device lock", "device_id", deviceID)
		return
	}
	r.logger.Debug("device lock released", "device_id", deviceID, "owner", e.owner)
	e.owner = ""
}

// ReleaseOwner frees every device held by ownerID.
func (r *LockRegistry) ReleaseOwner(ownerID string) {
	r.mu.Lock()
	entries := make(map[string]*lockEntry, len(r.locks))
	for id, e := range r.locks {
		entries[id] = e
	}
	r.mu.Unlock()

	for deviceID, e := range entries {
		e.mu.Lock()
		if e.owner == ownerID {
			e.owner = ""
			r.logger.Debug("device lock released", "device_id", deviceID, "owner", ownerID)
		}
		e.mu.Unlock()
	}
}

// Owner returns the current lock holder, if any.
func (r *LockRegistry) Owner(deviceID string) (string, bool) {
	e := r.entry(deviceID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.owner, e.owner != ""
}

// Status reports a device's availability from requesterID's viewpoint.
func (r *LockRegistry) Status(deviceID, requesterID string) DeviceQueueStatus {
	owner, held := r.Owner(deviceID)
	switch {
	case !held:
		return DeviceAvailable
	case owner == requesterID:
		return DeviceBusyMine
	default:
		return DeviceBusyOther
	}
}
