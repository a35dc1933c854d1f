package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kws0109/QA-Automation-sub001/internal/scenario"
)

// workItem pairs a unit with everything needed to run it: the pinned
// scenario graph, the request's variable overrides, and the execution
// aggregate. The graph is a snapshot taken at submit time; edits to a
// scenario never affect runs already admitted.
type workItem struct {
	unit      *Unit
	scn       *scenario.Scenario
	overrides map[string]any
	exec      *Execution
	cancel    context.CancelFunc
}

// deviceQueue is one device's backlog plus its single running slot.
// Each device has its own mutex so a stuck device never blocks the
// others.
type deviceQueue struct {
	mu      sync.Mutex
	backlog []*workItem
	running *workItem
}

// Queue schedules units onto devices.
//
// Invariants:
//   - at most one running unit per device
//   - per-device FIFO: units dispatch in enqueue order, with stable
//     priority ordering (higher priority first, ties keep FIFO)
//   - dequeue happens only when the running slot frees up
//     (completion, cancellation of the runner, force-complete) or when
//     an external lock holder releases the device (Poke)
type Queue struct {
	locks   *LockRegistry
	runner  *Runner
	emitter Emitter
	logger  Logger

	mu      sync.Mutex
	devices map[string]*deviceQueue
	units   map[string]*workItem // live (non-terminal) units by ID
	closed  bool
}

// NewQueue creates a queue scheduling through the given locks and
// runner.
func NewQueue(locks *LockRegistry, runner *Runner) *Queue {
	return &Queue{
		locks:   locks,
		runner:  runner,
		emitter: NoopEmitter{},
		logger:  noopLogger{},
		devices: make(map[string]*deviceQueue),
		units:   make(map[string]*workItem),
	}
}

// SetLogger sets the logger for the queue.
func (q *Queue) SetLogger(logger Logger) {
	q.logger = logger
}

// SetEmitter sets the progress emitter for the queue.
func (q *Queue) SetEmitter(emitter Emitter) {
	q.emitter = emitter
}

// deviceQueueFor returns the queue for a device, creating it on first
// use.
func (q *Queue) deviceQueueFor(deviceID string) *deviceQueue {
	q.mu.Lock()
	defer q.mu.Unlock()
	dq, ok := q.devices[deviceID]
	if !ok {
		dq = &deviceQueue{}
		q.devices[deviceID] = dq
	}
	return dq
}

// NewUnit builds a pending unit for an execution.
func NewUnit(exec *Execution, deviceID, scenarioID string, repetition, priority int) *Unit {
	return &Unit{
		ID:          GenerateID(),
		ExecutionID: exec.ID,
		DeviceID:    deviceID,
		ScenarioID:  scenarioID,
		Repetition:  repetition,
		Priority:    priority,
		status:      StatusPending,
		EnqueuedAt:  time.Now().UTC(),
		done:        make(chan struct{}),
	}
}

// Enqueue admits units into their device backlogs and attempts a
// dispatch on each affected device.
func (q *Queue) Enqueue(exec *Execution, scn *scenario.Scenario, overrides map[string]any, units []*Unit) {
	touched := make(map[string]bool)

	for _, unit := range units {
		item := &workItem{unit: unit, scn: scn, overrides: overrides, exec: exec}

		q.mu.Lock()
		q.units[unit.ID] = item
		q.mu.Unlock()

		dq := q.deviceQueueFor(unit.DeviceID)
		dq.mu.Lock()
		dq.backlog = insertByPriority(dq.backlog, item)
		depth := len(dq.backlog)
		dq.mu.Unlock()

		exec.noteEnqueued(unit.DeviceID)
		touched[unit.DeviceID] = true

		q.logger.Debug("unit enqueued",
			"unit_id", unit.ID,
			"device_id", unit.DeviceID,
			"scenario_id", unit.ScenarioID,
			"repetition", unit.Repetition,
			"depth", depth,
		)
		q.emitter.OnQueueChanged(unit.DeviceID, depth)
	}

	for deviceID := range touched {
		q.dispatch(deviceID)
	}
}

// insertByPriority places an item after every queued item of equal or
// higher priority. Equal priorities keep submission order.
func insertByPriority(backlog []*workItem, item *workItem) []*workItem {
	idx := len(backlog)
	for i, b := range backlog {
		if b.unit.Priority < item.unit.Priority {
			idx = i
			break
		}
	}
	backlog = append(backlog, nil)
	copy(backlog[idx+1:], backlog[idx:])
	backlog[idx] = item
	return backlog
}

// dispatch starts the head of a device backlog if the running slot is
// free and the device lock can be taken. A head blocked by another
// lock owner simply stays pending.
func (q *Queue) dispatch(deviceID string) {
	dq := q.deviceQueueFor(deviceID)

	dq.mu.Lock()
	if dq.running != nil || len(dq.backlog) == 0 {
		dq.mu.Unlock()
		return
	}

	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		dq.mu.Unlock()
		return
	}

	item := dq.backlog[0]
	if !q.locks.TryAcquire(deviceID, item.unit.ExecutionID) {
		dq.mu.Unlock()
		q.logger.Debug("device busy, unit stays pending",
			"unit_id", item.unit.ID, "device_id", deviceID)
		return
	}

	dq.backlog = dq.backlog[1:]
	dq.running = item
	depth := len(dq.backlog)

	item.unit.markRunning()

	ctx, cancel := context.WithCancel(context.Background())
	item.cancel = cancel
	dq.mu.Unlock()

	item.exec.noteStarted(deviceID)
	q.emitter.OnQueueChanged(deviceID, depth)

	q.logger.Info("unit dispatched",
		"unit_id", item.unit.ID,
		"device_id", deviceID,
		"scenario_id", item.unit.ScenarioID,
		"repetition", item.unit.Repetition,
	)

	go q.runItem(ctx, item)
}

// runItem walks the scenario and settles the unit. Completion is the
// sole trigger for dispatching the next unit on the device.
func (q *Queue) runItem(ctx context.Context, item *workItem) {
	outcome := q.runner.Run(ctx, item.unit, item.scn, item.overrides)
	q.complete(item, outcome)
}

// complete settles a finished run and frees the device.
func (q *Queue) complete(item *workItem, outcome RunOutcome) {
	deviceID := item.unit.DeviceID
	dq := q.deviceQueueFor(deviceID)

	dq.mu.Lock()
	item.unit.settle(outcome.Status, outcome.FailedNodeID, outcome.Message)
	dq.running = nil
	res := item.unit.Snapshot()
	dq.mu.Unlock()

	if item.cancel != nil {
		item.cancel()
	}

	q.locks.Release(deviceID)
	item.exec.noteTerminal(deviceID, outcome.Status, true)

	q.mu.Lock()
	delete(q.units, item.unit.ID)
	q.mu.Unlock()

	q.logger.Info("unit completed",
		"unit_id", item.unit.ID,
		"device_id", deviceID,
		"status", outcome.Status,
		"duration_ms", res.DurationMS,
	)

	q.emitter.OnUnitTerminal(res)
	close(item.unit.done)

	q.dispatch(deviceID)
}

// Cancel cancels a unit. A pending unit is removed from its backlog
// synchronously; a running unit only gets its abort flag set and its
// context cancelled, with the terminal event following asynchronously
// once the runner observes the flag.
func (q *Queue) Cancel(unitID string) error {
	q.mu.Lock()
	item, ok := q.units[unitID]
	q.mu.Unlock()
	if !ok {
		return ErrUnitNotFound
	}

	deviceID := item.unit.DeviceID
	dq := q.deviceQueueFor(deviceID)

	dq.mu.Lock()
	if dq.running == item {
		dq.mu.Unlock()
		item.unit.RequestAbort()
		if item.cancel != nil {
			item.cancel()
		}
		q.logger.Info("abort requested for running unit", "unit_id", unitID, "device_id", deviceID)
		return nil
	}

	removed := removeItem(&dq.backlog, item)
	depth := len(dq.backlog)
	if removed {
		item.unit.settle(StatusCancelled, "", "cancelled while pending")
	}
	res := item.unit.Snapshot()
	dq.mu.Unlock()

	if !removed {
		// Lost a race with completion: the unit settled before we
		// reached its backlog.
		return ErrUnitTerminal
	}

	item.exec.noteTerminal(deviceID, StatusCancelled, false)

	q.mu.Lock()
	delete(q.units, unitID)
	q.mu.Unlock()

	q.logger.Info("pending unit cancelled", "unit_id", unitID, "device_id", deviceID)
	q.emitter.OnUnitTerminal(res)
	close(item.unit.done)
	q.emitter.OnQueueChanged(deviceID, depth)

	q.dispatch(deviceID)
	return nil
}

// ForceComplete marks a stuck pending unit terminal without running
// it. Only permitted while the unit's execution has nothing running
// and at least one device that never started; anything else should
// finish or be cancelled normally.
func (q *Queue) ForceComplete(unitID string) error {
	q.mu.Lock()
	item, ok := q.units[unitID]
	q.mu.Unlock()
	if !ok {
		return ErrUnitNotFound
	}

	if !item.exec.CanForceComplete() {
		return ErrForceNotAllowed
	}

	deviceID := item.unit.DeviceID
	dq := q.deviceQueueFor(deviceID)

	dq.mu.Lock()
	if dq.running == item {
		// CanForceComplete raced a dispatch. Treat as not allowed.
		dq.mu.Unlock()
		return ErrForceNotAllowed
	}
	removed := removeItem(&dq.backlog, item)
	depth := len(dq.backlog)
	if removed {
		item.unit.settle(StatusForceCompleted, "", "force-completed by operator")
	}
	res := item.unit.Snapshot()
	dq.mu.Unlock()

	if !removed {
		return ErrUnitTerminal
	}

	// Release the device only if this execution somehow still owns it.
	if owner, held := q.locks.Owner(deviceID); held && owner == item.unit.ExecutionID {
		q.locks.Release(deviceID)
	}

	item.exec.noteTerminal(deviceID, StatusForceCompleted, false)

	q.mu.Lock()
	delete(q.units, unitID)
	q.mu.Unlock()

	q.logger.Warn("unit force-completed", "unit_id", unitID, "device_id", deviceID)
	q.emitter.OnUnitTerminal(res)
	close(item.unit.done)
	q.emitter.OnQueueChanged(deviceID, depth)

	q.dispatch(deviceID)
	return nil
}

// removeItem deletes an item from a backlog, preserving order.
func removeItem(backlog *[]*workItem, item *workItem) bool {
	for i, b := range *backlog {
		if b == item {
			*backlog = append((*backlog)[:i], (*backlog)[i+1:]...)
			return true
		}
	}
	return false
}

// Status reports a device's availability from requesterID's viewpoint.
func (q *Queue) Status(deviceID, requesterID string) DeviceQueueStatus {
	return q.locks.Status(deviceID, requesterID)
}

// Poke retries dispatch on a device. Called when an external lock
// holder (an editing session) releases the device.
func (q *Queue) Poke(deviceID string) {
	q.dispatch(deviceID)
}

// DeviceSnapshot describes one device's queue for the status API.
type DeviceSnapshot struct {
	DeviceID       string   `json:"device_id"`
	Depth          int      `json:"depth"`
	RunningUnitID  string   `json:"running_unit_id,omitempty"`
	PendingUnitIDs []string `json:"pending_unit_ids"`
}

// Snapshot returns the current state of every device queue, sorted by
// device ID for stable output.
func (q *Queue) Snapshot() []DeviceSnapshot {
	q.mu.Lock()
	devices := make(map[string]*deviceQueue, len(q.devices))
	for id, dq := range q.devices {
		devices[id] = dq
	}
	q.mu.Unlock()

	out := make([]DeviceSnapshot, 0, len(devices))
	for id, dq := range devices {
		dq.mu.Lock()
		snap := DeviceSnapshot{
			DeviceID:       id,
			Depth:          len(dq.backlog),
			PendingUnitIDs: make([]string, 0, len(dq.backlog)),
		}
		if dq.running != nil {
			snap.RunningUnitID = dq.running.unit.ID
		}
		for _, item := range dq.backlog {
			snap.PendingUnitIDs = append(snap.PendingUnitIDs, item.unit.ID)
		}
		dq.mu.Unlock()
		out = append(out, snap)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Close stops admissions and aborts every running unit. Pending units
// stay queued; in-flight runs settle as cancelled once their runner
// observes the flag.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	devices := make([]*deviceQueue, 0, len(q.devices))
	for _, dq := range q.devices {
		devices = append(devices, dq)
	}
	q.mu.Unlock()

	for _, dq := range devices {
		dq.mu.Lock()
		running := dq.running
		dq.mu.Unlock()
		if running != nil {
			running.unit.RequestAbort()
			if running.cancel != nil {
				running.cancel()
			}
		}
	}
}
