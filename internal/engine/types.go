package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// UnitStatus is the lifecycle state of one execution unit.
type UnitStatus string

const (
	StatusPending        UnitStatus = "pending"
	StatusRunning        UnitStatus = "running"
	StatusPassed         UnitStatus = "passed"
	StatusFailed         UnitStatus = "failed"
	StatusCancelled      UnitStatus = "cancelled"
	StatusForceCompleted UnitStatus = "force_completed"
)

// IsTerminal reports whether the status is a final state.
func (s UnitStatus) IsTerminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusCancelled, StatusForceCompleted:
		return true
	}
	return false
}

// DeviceQueueStatus describes a device's availability from one
// execution's point of view.
type DeviceQueueStatus string

const (
	DeviceAvailable DeviceQueueStatus = "available"
	DeviceBusyMine  DeviceQueueStatus = "busy_mine"
	DeviceBusyOther DeviceQueueStatus = "busy_other"
)

// ExecutionRequest is what a client submits: a cross product of
// devices and scenarios, repeated repeatCount times.
type ExecutionRequest struct {
	RequesterName      string         `json:"requester_name"`
	DeviceIDs          []string       `json:"device_ids"`
	ScenarioIDs        []string       `json:"scenario_ids"`
	RepeatCount        int            `json:"repeat_count"`
	ScenarioIntervalMS int            `json:"scenario_interval_ms"`
	Priority           int            `json:"priority"`
	VariableOverrides  map[string]any `json:"variable_overrides,omitempty"`
}

// Unit is one (device, scenario, repetition) run: the atom of
// scheduling. A unit lives in exactly one device backlog until it is
// dispatched, and ends in exactly one terminal state.
//
// The queue mutates a unit's lifecycle state from its own goroutines,
// so status and the terminal fields live behind the unit's mutex; read
// them through Status and Snapshot.
//
// abort is the cancellation flag for a running unit. The runner checks
// it before every node dispatch; it never interrupts a call already in
// flight (the context does that).
type Unit struct {
	ID          string
	ExecutionID string
	DeviceID    string
	ScenarioID  string
	Repetition  int
	Priority    int
	EnqueuedAt  time.Time

	mu           sync.Mutex
	status       UnitStatus
	failedNodeID string
	message      string
	startedAt    *time.Time
	completedAt  *time.Time

	abort atomic.Bool
	done  chan struct{}
}

// Status returns the unit's current lifecycle state. Safe from any
// goroutine.
func (u *Unit) Status() UnitStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// markRunning moves the unit from pending to running.
func (u *Unit) markRunning() {
	now := time.Now().UTC()
	u.mu.Lock()
	u.status = StatusRunning
	u.startedAt = &now
	u.mu.Unlock()
}

// settle records the unit's terminal state. Called exactly once per
// unit, by whichever path ends it.
func (u *Unit) settle(status UnitStatus, failedNodeID, message string) {
	now := time.Now().UTC()
	u.mu.Lock()
	u.status = status
	u.failedNodeID = failedNodeID
	u.message = message
	u.completedAt = &now
	u.mu.Unlock()
}

// RequestAbort flags a running unit for cancellation. The runner
// observes the flag before its next node dispatch.
func (u *Unit) RequestAbort() {
	u.abort.Store(true)
}

// AbortRequested reports whether cancellation has been requested.
func (u *Unit) AbortRequested() bool {
	return u.abort.Load()
}

// Done returns a channel closed when the unit reaches a terminal state.
func (u *Unit) Done() <-chan struct{} {
	return u.done
}

// Execution is the aggregate for one submitted request: all of its
// units across devices, scenarios, and passes.
//
// PendingDevices and RunningDevices track which devices still owe this
// execution work. They drive the force-complete rule: forcing is only
// sensible when nothing is running but some devices never started.
type Execution struct {
	ID            string    `json:"id"`
	RequesterName string    `json:"requester_name"`
	DeviceCount   int       `json:"device_count"`
	ScenarioCount int       `json:"scenario_count"`
	RepeatCount   int       `json:"repeat_count"`
	StartedAt     time.Time `json:"started_at"`

	mu             sync.Mutex
	pendingDevices map[string]int // device -> pending unit count
	runningDevices map[string]int // device -> running unit count
	unitsTotal     int
	passed         int
	failed         int
	cancelled      int
	forced         int
}

// NewExecution creates the aggregate for a validated request.
func NewExecution(req *ExecutionRequest) *Execution {
	return &Execution{
		ID:             GenerateID(),
		RequesterName:  req.RequesterName,
		DeviceCount:    len(req.DeviceIDs),
		ScenarioCount:  len(req.ScenarioIDs),
		RepeatCount:    req.RepeatCount,
		StartedAt:      time.Now().UTC(),
		pendingDevices: make(map[string]int),
		runningDevices: make(map[string]int),
	}
}

// PendingDevices returns the devices with at least one pending unit.
func (e *Execution) PendingDevices() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.pendingDevices))
	for id := range e.pendingDevices {
		out = append(out, id)
	}
	return out
}

// RunningDevices returns the devices with a unit currently running.
func (e *Execution) RunningDevices() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.runningDevices))
	for id := range e.runningDevices {
		out = append(out, id)
	}
	return out
}

// CanForceComplete reports whether forcing a unit of this execution is
// permitted: nothing running, but pending work stuck behind devices
// that will never pick it up.
func (e *Execution) CanForceComplete() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.runningDevices) == 0 && len(e.pendingDevices) > 0
}

// Counts returns the per-status unit totals.
func (e *Execution) Counts() (total, passed, failed, cancelled, forced int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unitsTotal, e.passed, e.failed, e.cancelled, e.forced
}

// noteEnqueued records a unit entering a device backlog.
func (e *Execution) noteEnqueued(deviceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unitsTotal++
	e.pendingDevices[deviceID]++
}

// noteStarted records a unit moving from pending to running.
func (e *Execution) noteStarted(deviceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	decrementDeviceCount(e.pendingDevices, deviceID)
	e.runningDevices[deviceID]++
}

// noteTerminal records a unit reaching a terminal state.
// wasRunning distinguishes a finished run from a cancelled or forced
// pending unit.
func (e *Execution) noteTerminal(deviceID string, status UnitStatus, wasRunning bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if wasRunning {
		decrementDeviceCount(e.runningDevices, deviceID)
	} else {
		decrementDeviceCount(e.pendingDevices, deviceID)
	}

	switch status {
	case StatusPassed:
		e.passed++
	case StatusFailed:
		e.failed++
	case StatusCancelled:
		e.cancelled++
	case StatusForceCompleted:
		e.forced++
	}
}

func decrementDeviceCount(m map[string]int, deviceID string) {
	if m[deviceID] <= 1 {
		delete(m, deviceID)
		return
	}
	m[deviceID]--
}

// UnitResult is the immutable terminal snapshot of a unit, handed to
// emitters and the report sink.
type UnitResult struct {
	UnitID       string     `json:"unit_id"`
	ExecutionID  string     `json:"execution_id"`
	DeviceID     string     `json:"device_id"`
	ScenarioID   string     `json:"scenario_id"`
	Repetition   int        `json:"repetition"`
	Status       UnitStatus `json:"status"`
	FailedNodeID string     `json:"failed_node_id,omitempty"`
	Message      string     `json:"message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	DurationMS   int64      `json:"duration_ms"`
}

// Snapshot captures the unit's state at this instant. Safe from any
// goroutine; terminal units yield their final, immutable result.
func (u *Unit) Snapshot() UnitResult {
	u.mu.Lock()
	defer u.mu.Unlock()

	var durationMS int64
	if u.startedAt != nil && u.completedAt != nil {
		durationMS = u.completedAt.Sub(*u.startedAt).Milliseconds()
	}

	return UnitResult{
		UnitID:       u.ID,
		ExecutionID:  u.ExecutionID,
		DeviceID:     u.DeviceID,
		ScenarioID:   u.ScenarioID,
		Repetition:   u.Repetition,
		Status:       u.status,
		FailedNodeID: u.failedNodeID,
		Message:      u.message,
		StartedAt:    u.startedAt,
		CompletedAt:  u.completedAt,
		DurationMS:   durationMS,
	}
}

// ExecutionSummary aggregates an execution's terminal units.
type ExecutionSummary struct {
	ExecutionID    string    `json:"execution_id"`
	RequesterName  string    `json:"requester_name"`
	DeviceCount    int       `json:"device_count"`
	ScenarioCount  int       `json:"scenario_count"`
	RepeatCount    int       `json:"repeat_count"`
	UnitsTotal     int       `json:"units_total"`
	UnitsPassed    int       `json:"units_passed"`
	UnitsFailed    int       `json:"units_failed"`
	UnitsCancelled int       `json:"units_cancelled"`
	UnitsForced    int       `json:"units_forced"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
	DurationMS     int64     `json:"duration_ms"`
}

// GenerateID generates a unique identifier for executions and units.
func GenerateID() string {
	return uuid.New().String()
}
