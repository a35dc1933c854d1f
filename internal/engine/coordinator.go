package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kws0109/QA-Automation-sub001/internal/device"
	"github.com/kws0109/QA-Automation-sub001/internal/scenario"
)

// ScenarioSource resolves scenario graphs at admission time.
// Implemented by scenario.Registry; returned graphs must be private
// copies.
type ScenarioSource interface {
	Get(ctx context.Context, id string) (*scenario.Scenario, error)
}

// DevicePool resolves devices at admission time.
// Implemented by device.Registry.
type DevicePool interface {
	Get(ctx context.Context, id string) (*device.Device, error)
}

// ReportSink persists finished executions. Implemented by the report
// repository.
type ReportSink interface {
	SaveExecution(ctx context.Context, sum *ExecutionSummary, units []UnitResult) error
}

// noopReportSink discards reports.
type noopReportSink struct{}

func (noopReportSink) SaveExecution(context.Context, *ExecutionSummary, []UnitResult) error {
	return nil
}

// activeExecution is the coordinator's bookkeeping for one submitted
// request.
type activeExecution struct {
	exec *Execution

	mu        sync.Mutex
	units     []*Unit
	cancelled bool

	// cancelCh closes on the first markCancelled, so the pass loop's
	// interval wait can be interrupted.
	cancelCh chan struct{}
	done     chan struct{}
}

func (a *activeExecution) addUnits(units []*Unit) {
	a.mu.Lock()
	a.units = append(a.units, units...)
	a.mu.Unlock()
}

func (a *activeExecution) liveUnits() []*Unit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Unit(nil), a.units...)
}

func (a *activeExecution) markCancelled() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancelled {
		return
	}
	a.cancelled = true
	close(a.cancelCh)
}

func (a *activeExecution) isCancelled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancelled
}

// Coordinator turns execution requests into scheduled units.
//
// One request becomes repeatCount passes over its scenario list; within
// a pass scenarios run sequentially (with an optional interval between
// them) while devices run each scenario in parallel. A pass starts only
// after the previous pass is fully terminal; the per-device FIFO below
// preserves that even under priority reordering from other executions.
type Coordinator struct {
	queue     *Queue
	scenarios ScenarioSource
	devices   DevicePool
	reports   ReportSink
	emitter   Emitter
	logger    Logger

	mu     sync.Mutex
	active map[string]*activeExecution
}

// NewCoordinator creates a coordinator over a queue.
func NewCoordinator(queue *Queue, scenarios ScenarioSource, devices DevicePool) *Coordinator {
	return &Coordinator{
		queue:     queue,
		scenarios: scenarios,
		devices:   devices,
		reports:   noopReportSink{},
		emitter:   NoopEmitter{},
		logger:    noopLogger{},
		active:    make(map[string]*activeExecution),
	}
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	c.logger = logger
}

// SetEmitter sets the progress emitter for the coordinator.
func (c *Coordinator) SetEmitter(emitter Emitter) {
	c.emitter = emitter
}

// SetReportSink sets the persistence sink for finished executions.
func (c *Coordinator) SetReportSink(sink ReportSink) {
	c.reports = sink
}

// Submit validates a request, resolves its devices and scenarios, and
// starts the execution in the background. Returns the execution
// aggregate immediately; progress arrives through the emitter.
func (c *Coordinator) Submit(ctx context.Context, req *ExecutionRequest) (*Execution, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	for _, id := range req.DeviceIDs {
		d, err := c.devices.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: device %q not found", ErrValidation, id)
		}
		if d.Status != device.StatusConnected {
			return nil, fmt.Errorf("%w: device %q is offline", ErrValidation, id)
		}
		if d.Role == device.RoleEditing {
			return nil, fmt.Errorf("%w: device %q is held by an editing session", ErrValidation, id)
		}
	}

	// Pin every scenario graph now: units of this execution all run
	// the same snapshot even if the scenario is edited mid-run.
	pinned := make([]*scenario.Scenario, 0, len(req.ScenarioIDs))
	for _, id := range req.ScenarioIDs {
		scn, err := c.scenarios.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: scenario %q not found", ErrValidation, id)
		}
		pinned = append(pinned, scn)
	}

	exec := NewExecution(req)
	act := &activeExecution{
		exec:     exec,
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}

	c.mu.Lock()
	c.active[exec.ID] = act
	c.mu.Unlock()

	c.logger.Info("execution admitted",
		"execution_id", exec.ID,
		"requester", req.RequesterName,
		"devices", len(req.DeviceIDs),
		"scenarios", len(req.ScenarioIDs),
		"repeat_count", req.RepeatCount,
	)

	go c.run(act, req, pinned)

	return exec, nil
}

// run drives the passes of one execution to completion.
func (c *Coordinator) run(act *activeExecution, req *ExecutionRequest, pinned []*scenario.Scenario) {
	exec := act.exec
	interval := time.Duration(req.ScenarioIntervalMS) * time.Millisecond

	for pass := 1; pass <= req.RepeatCount && !act.isCancelled(); pass++ {
		for si, scn := range pinned {
			if si > 0 && interval > 0 {
				select {
				case <-time.After(interval):
				case <-act.cancelCh:
				}
			}
			// Checked after the interval wait: a cancel landing during
			// the wait must not admit the next scenario.
			if act.isCancelled() {
				break
			}

			units := make([]*Unit, 0, len(req.DeviceIDs))
			for _, deviceID := range req.DeviceIDs {
				units = append(units, NewUnit(exec, deviceID, scn.ID, pass, req.Priority))
			}
			act.addUnits(units)

			c.queue.Enqueue(exec, scn, req.VariableOverrides, units)

			for _, unit := range units {
				<-unit.Done()
			}
		}
	}

	c.finish(act)
}

// finish builds the summary, persists it, and retires the execution.
func (c *Coordinator) finish(act *activeExecution) {
	exec := act.exec
	completedAt := time.Now().UTC()
	total, passed, failed, cancelled, forced := exec.Counts()

	sum := &ExecutionSummary{
		ExecutionID:    exec.ID,
		RequesterName:  exec.RequesterName,
		DeviceCount:    exec.DeviceCount,
		ScenarioCount:  exec.ScenarioCount,
		RepeatCount:    exec.RepeatCount,
		UnitsTotal:     total,
		UnitsPassed:    passed,
		UnitsFailed:    failed,
		UnitsCancelled: cancelled,
		UnitsForced:    forced,
		StartedAt:      exec.StartedAt,
		CompletedAt:    completedAt,
		DurationMS:     completedAt.Sub(exec.StartedAt).Milliseconds(),
	}

	units := act.liveUnits()
	results := make([]UnitResult, 0, len(units))
	for _, unit := range units {
		results = append(results, unit.Snapshot())
	}

	if err := c.reports.SaveExecution(context.Background(), sum, results); err != nil {
		c.logger.Error("persisting execution report",
			"execution_id", exec.ID, "error", err)
	}

	c.mu.Lock()
	delete(c.active, exec.ID)
	c.mu.Unlock()

	c.logger.Info("execution complete",
		"execution_id", exec.ID,
		"passed", passed,
		"failed", failed,
		"cancelled", cancelled,
		"forced", forced,
		"duration_ms", sum.DurationMS,
	)

	c.emitter.OnExecutionComplete(*sum)
	close(act.done)
}

// CancelExecution cancels every unit of an execution: pending units
// are removed immediately, running units get their abort flags set.
// No further passes or scenarios are submitted.
func (c *Coordinator) CancelExecution(executionID string) error {
	c.mu.Lock()
	act, ok := c.active[executionID]
	c.mu.Unlock()
	if !ok {
		return ErrExecutionNotFound
	}

	act.markCancelled()

	for _, unit := range act.liveUnits() {
		if unit.Status().IsTerminal() {
			continue
		}
		err := c.queue.Cancel(unit.ID)
		if err != nil && !errors.Is(err, ErrUnitNotFound) && !errors.Is(err, ErrUnitTerminal) {
			c.logger.Warn("cancelling unit", "unit_id", unit.ID, "error", err)
		}
	}

	c.logger.Info("execution cancelled", "execution_id", executionID)
	return nil
}

// CancelUnit cancels a single unit. A unit that already finished while
// its execution is still active reports ErrUnitTerminal, not
// ErrUnitNotFound; cancelling it is a conflict, not a missing target.
func (c *Coordinator) CancelUnit(unitID string) error {
	err := c.queue.Cancel(unitID)
	if errors.Is(err, ErrUnitNotFound) && c.unitFinished(unitID) {
		return ErrUnitTerminal
	}
	return err
}

// ForceCompleteUnit force-completes a stuck pending unit.
func (c *Coordinator) ForceCompleteUnit(unitID string) error {
	err := c.queue.ForceComplete(unitID)
	if errors.Is(err, ErrUnitNotFound) && c.unitFinished(unitID) {
		return ErrUnitTerminal
	}
	return err
}

// unitFinished reports whether a unit of a still-active execution has
// reached a terminal state.
func (c *Coordinator) unitFinished(unitID string) bool {
	c.mu.Lock()
	acts := make([]*activeExecution, 0, len(c.active))
	for _, act := range c.active {
		acts = append(acts, act)
	}
	c.mu.Unlock()

	for _, act := range acts {
		for _, unit := range act.liveUnits() {
			if unit.ID == unitID {
				return unit.Status().IsTerminal()
			}
		}
	}
	return false
}

// GetExecution returns an active execution by ID.
func (c *Coordinator) GetExecution(executionID string) (*Execution, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	act, ok := c.active[executionID]
	if !ok {
		return nil, false
	}
	return act.exec, true
}

// Wait blocks until an execution finishes. Returns immediately for
// unknown (already retired) IDs.
func (c *Coordinator) Wait(executionID string) {
	c.mu.Lock()
	act, ok := c.active[executionID]
	c.mu.Unlock()
	if !ok {
		return
	}
	<-act.done
}

// Close cancels all active executions and waits for them to retire.
func (c *Coordinator) Close() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		if err := c.CancelExecution(id); err != nil {
			continue
		}
	}
	for _, id := range ids {
		c.Wait(id)
	}
}
