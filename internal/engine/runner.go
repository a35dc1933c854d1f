package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kws0109/QA-Automation-sub001/internal/driver"
	"github.com/kws0109/QA-Automation-sub001/internal/scenario"
)

// RunOutcome is the terminal result of walking one scenario graph.
type RunOutcome struct {
	Status       UnitStatus
	FailedNodeID string
	Message      string
}

// nodeHandler executes one node kind and returns the resolved branch
// (empty for linear nodes). A non-nil error fails the unit at this
// node; context cancellation surfaces as ctx.Err().
type nodeHandler func(ctx context.Context, rc *runContext, node *scenario.Node) (string, error)

// Runner walks a scenario graph for a single unit: one node at a time,
// dispatching actions and conditions to the device driver and routing
// through labeled connections.
//
// Node kinds are a closed set; dispatch goes through an explicit
// handler table rather than type switches scattered through the
// walker. Adding a kind means adding a handler here.
type Runner struct {
	driver    driver.Driver
	emitter   Emitter
	logger    Logger
	maxVisits int
	handlers  map[scenario.NodeType]nodeHandler
}

// NewRunner creates a runner. maxVisits is the global node visit
// ceiling; runs exceeding it fail (malformed graph backstop).
func NewRunner(drv driver.Driver, maxVisits int) *Runner {
	r := &Runner{
		driver:    drv,
		emitter:   NoopEmitter{},
		logger:    noopLogger{},
		maxVisits: maxVisits,
	}
	r.handlers = map[scenario.NodeType]nodeHandler{
		scenario.NodeStart:     r.runStart,
		scenario.NodeAction:    r.runAction,
		scenario.NodeCondition: r.runCondition,
		scenario.NodeLoop:      r.runLoop,
		scenario.NodeEnd:       r.runEnd,
	}
	return r
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	r.logger = logger
}

// SetEmitter sets the progress emitter for the runner.
func (r *Runner) SetEmitter(emitter Emitter) {
	r.emitter = emitter
}

// Run walks the scenario graph for one unit until a terminal state.
//
// The abort flag is checked before each node dispatch, never mid
// flight: a driver call already underway finishes (or is cut short by
// ctx) before cancellation is observed.
func (r *Runner) Run(ctx context.Context, unit *Unit, scn *scenario.Scenario, overrides map[string]any) RunOutcome {
	rc := newRunContext(unit, scn, overrides)

	current, err := scn.StartNode()
	if err != nil {
		// No entry point makes the whole unit unrunnable.
		r.logger.Error("scenario has no usable start node",
			"unit_id", unit.ID, "scenario_id", scn.ID, "error", err)
		return RunOutcome{
			Status:  StatusFailed,
			Message: fmt.Sprintf("%v: %v", ErrMissingStartNode, err),
		}
	}

	for {
		if unit.AbortRequested() {
			return RunOutcome{Status: StatusCancelled, Message: "cancelled by request"}
		}

		rc.totalVisits++
		if rc.totalVisits > r.maxVisits {
			msg := fmt.Sprintf("%v: %d node visits", ErrVisitCeiling, r.maxVisits)
			r.emitStep(rc, current, StepFailed, "", msg, 0)
			return RunOutcome{
				Status:       StatusFailed,
				FailedNodeID: current.ID,
				Message:      msg,
			}
		}

		handler, ok := r.handlers[current.Type]
		if !ok {
			// Unreachable after validation; belt and braces for graphs
			// loaded from older schema versions.
			msg := fmt.Sprintf("no handler for node type %q", current.Type)
			r.emitStep(rc, current, StepFailed, "", msg, 0)
			return RunOutcome{Status: StatusFailed, FailedNodeID: current.ID, Message: msg}
		}

		began := time.Now()
		branch, err := handler(ctx, rc, current)
		elapsed := time.Since(began).Milliseconds()

		if err != nil {
			if errors.Is(err, context.Canceled) {
				return RunOutcome{Status: StatusCancelled, Message: "cancelled by request"}
			}
			r.emitStep(rc, current, StepFailed, branch, err.Error(), elapsed)
			return RunOutcome{
				Status:       StatusFailed,
				FailedNodeID: current.ID,
				Message:      err.Error(),
			}
		}

		r.emitStep(rc, current, StepPassed, branch, "", elapsed)

		if current.Type == scenario.NodeEnd {
			return RunOutcome{Status: StatusPassed, Message: "completed"}
		}

		next, done := r.nextNode(rc, current, branch)
		if done {
			// Connections exhausted: the graph ends without an explicit
			// end node. That is a natural pass.
			return RunOutcome{Status: StatusPassed, Message: "completed"}
		}
		if next == nil {
			msg := fmt.Sprintf("connection from %q points to an unknown node", current.ID)
			return RunOutcome{Status: StatusFailed, FailedNodeID: current.ID, Message: msg}
		}
		current = next
	}
}

// nextNode selects the following node. done is true when the graph is
// exhausted. A branch without a matching labeled connection falls back
// to the first outgoing connection with a warning; so does an empty
// branch from a branching node, which means the device answered
// without resolving one.
func (r *Runner) nextNode(rc *runContext, current *scenario.Node, branch string) (next *scenario.Node, done bool) {
	outs := rc.scenario.OutgoingConnections(current.ID)
	if len(outs) == 0 {
		return nil, true
	}

	chosen := outs[0]
	switch {
	case branch == "":
		if branchingNode(current.Type) {
			msg := "device resolved no branch, falling back to first outgoing connection"
			r.logger.Warn("ambiguous branch routing",
				"unit_id", rc.unit.ID,
				"node_id", current.ID,
				"branch", branch,
			)
			r.emitStep(rc, current, StepWarning, branch, msg, 0)
		}
	default:
		matched := false
		for _, c := range outs {
			if c.Label == branch {
				chosen = c
				matched = true
				break
			}
		}
		if !matched {
			msg := fmt.Sprintf("no connection labeled %q, falling back to first outgoing connection", branch)
			r.logger.Warn("ambiguous branch routing",
				"unit_id", rc.unit.ID,
				"node_id", current.ID,
				"branch", branch,
			)
			r.emitStep(rc, current, StepWarning, branch, msg, 0)
		}
	}

	node, ok := rc.scenario.NodeByID(chosen.To)
	if !ok {
		return nil, false
	}
	return node, false
}

// ─── Node Handlers ──────────────────────────────────────────────────────────

func (r *Runner) runStart(_ context.Context, _ *runContext, _ *scenario.Node) (string, error) {
	return "", nil
}

func (r *Runner) runEnd(_ context.Context, _ *runContext, _ *scenario.Node) (string, error) {
	return "", nil
}

func (r *Runner) runAction(ctx context.Context, rc *runContext, node *scenario.Node) (string, error) {
	name := actionName(node)
	params := rc.effectiveParams(node)

	res, err := r.driver.DispatchAction(ctx, rc.unit.DeviceID, name, params)
	if err != nil {
		return "", fmt.Errorf("action %q: %w", name, err)
	}
	if !res.Success {
		return "", fmt.Errorf("action %q failed: %s", name, res.Message)
	}
	return "", nil
}

func (r *Runner) runCondition(ctx context.Context, rc *runContext, node *scenario.Node) (string, error) {
	name := conditionName(node)
	params := rc.effectiveParams(node)

	res, err := r.driver.EvaluateCondition(ctx, rc.unit.DeviceID, name, params)
	if err != nil {
		return "", fmt.Errorf("condition %q: %w", name, err)
	}
	if !res.Success {
		return "", fmt.Errorf("condition %q failed: %s", name, res.Message)
	}
	return res.Branch, nil
}

// runLoop evaluates a loop node. The maxLoops guard wins over the
// loop's own condition: once the visit count exceeds it, the exit
// branch is forced and the situation surfaces as a warning, not a
// failure.
func (r *Runner) runLoop(ctx context.Context, rc *runContext, node *scenario.Node) (string, error) {
	rc.visitCounts[node.ID]++

	if maxLoops, ok := node.IntParam("maxLoops"); ok && maxLoops > 0 {
		if rc.visitCounts[node.ID] > maxLoops {
			msg := fmt.Sprintf("loop exceeded maxLoops=%d, forcing exit", maxLoops)
			r.logger.Warn("loop ceiling reached",
				"unit_id", rc.unit.ID,
				"node_id", node.ID,
				"visits", rc.visitCounts[node.ID],
				"max_loops", maxLoops,
			)
			r.emitStep(rc, node, StepWarning, scenario.BranchExit, msg, 0)
			return scenario.BranchExit, nil
		}
	}

	name := conditionName(node)
	params := rc.effectiveParams(node)

	res, err := r.driver.EvaluateCondition(ctx, rc.unit.DeviceID, name, params)
	if err != nil {
		return "", fmt.Errorf("loop condition %q: %w", name, err)
	}
	if !res.Success {
		return "", fmt.Errorf("loop condition %q failed: %s", name, res.Message)
	}
	return res.Branch, nil
}

// branchingNode reports whether a node kind is expected to resolve a
// branch label.
func branchingNode(t scenario.NodeType) bool {
	return t == scenario.NodeCondition || t == scenario.NodeLoop
}

// actionName resolves what to ask the driver for: an explicit action
// param wins over the node's display name.
func actionName(node *scenario.Node) string {
	if name, ok := node.StringParam("action"); ok && name != "" {
		return name
	}
	return node.Name
}

func conditionName(node *scenario.Node) string {
	if name, ok := node.StringParam("condition"); ok && name != "" {
		return name
	}
	return node.Name
}

func (r *Runner) emitStep(rc *runContext, node *scenario.Node, status StepStatus, branch, message string, durationMS int64) {
	r.emitter.OnStepEvent(StepEvent{
		ExecutionID: rc.unit.ExecutionID,
		UnitID:      rc.unit.ID,
		DeviceID:    rc.unit.DeviceID,
		ScenarioID:  rc.unit.ScenarioID,
		NodeID:      node.ID,
		NodeType:    string(node.Type),
		NodeName:    node.Name,
		Status:      status,
		Branch:      branch,
		Message:     message,
		DurationMS:  durationMS,
		Timestamp:   time.Now().UTC(),
	})
}
