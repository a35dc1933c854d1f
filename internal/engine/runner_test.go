package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kws0109/QA-Automation-sub001/internal/driver"
	"github.com/kws0109/QA-Automation-sub001/internal/scenario"
)

// ─── Mocks ──────────────────────────────────────────────────────────────────

// mockDriver scripts device answers by action/condition name and
// records every dispatch.
type mockDriver struct {
	mu               sync.Mutex
	actionCalls      []string // "<device>:<action>"
	conditionCalls   []string
	actionResults    map[string]driver.ActionResult
	conditionResults map[string]driver.ConditionResult
	errs             map[string]error
	lastParams       map[string]map[string]any
	delay            time.Duration
}

func newMockDriver() *mockDriver {
	return &mockDriver{
		actionResults:    make(map[string]driver.ActionResult),
		conditionResults: make(map[string]driver.ConditionResult),
		errs:             make(map[string]error),
		lastParams:       make(map[string]map[string]any),
	}
}

func (m *mockDriver) wait(ctx context.Context) error {
	if m.delay == 0 {
		return nil
	}
	select {
	case <-time.After(m.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mockDriver) DispatchAction(ctx context.Context, deviceID, action string, params map[string]any) (*driver.ActionResult, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.actionCalls = append(m.actionCalls, deviceID+":"+action)
	m.lastParams[action] = params
	m.mu.Unlock()

	if err, ok := m.errs[action]; ok {
		return nil, err
	}
	if res, ok := m.actionResults[action]; ok {
		return &res, nil
	}
	return &driver.ActionResult{Success: true}, nil
}

func (m *mockDriver) EvaluateCondition(ctx context.Context, deviceID, condition string, params map[string]any) (*driver.ConditionResult, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.conditionCalls = append(m.conditionCalls, deviceID+":"+condition)
	m.lastParams[condition] = params
	m.mu.Unlock()

	if err, ok := m.errs[condition]; ok {
		return nil, err
	}
	if res, ok := m.conditionResults[condition]; ok {
		return &res, nil
	}
	return &driver.ConditionResult{Success: true, Branch: scenario.BranchYes}, nil
}

func (m *mockDriver) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.actionCalls...)
}

func (m *mockDriver) params(name string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastParams[name]
}

// recordingEmitter captures all engine events for assertions.
type recordingEmitter struct {
	mu           sync.Mutex
	steps        []StepEvent
	terminals    []UnitResult
	queueChanges []string // "<device>:<depth>"
	summaries    []ExecutionSummary
}

func (r *recordingEmitter) OnStepEvent(ev StepEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, ev)
}

func (r *recordingEmitter) OnUnitTerminal(res UnitResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminals = append(r.terminals, res)
}

func (r *recordingEmitter) OnQueueChanged(deviceID string, depth int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queueChanges = append(r.queueChanges, fmt.Sprintf("%s:%d", deviceID, depth))
}

func (r *recordingEmitter) OnExecutionComplete(sum ExecutionSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, sum)
}

func (r *recordingEmitter) stepTrace() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.steps))
	for _, s := range r.steps {
		entry := s.NodeID + "(" + string(s.Status)
		if s.Branch != "" {
			entry += ",branch=" + s.Branch
		}
		entry += ")"
		out = append(out, entry)
	}
	return out
}

func (r *recordingEmitter) terminalResults() []UnitResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]UnitResult(nil), r.terminals...)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func testUnit(deviceID, scenarioID string) *Unit {
	exec := NewExecution(&ExecutionRequest{
		RequesterName: "tester",
		DeviceIDs:     []string{deviceID},
		ScenarioIDs:   []string{scenarioID},
		RepeatCount:   1,
	})
	return NewUnit(exec, deviceID, scenarioID, 1, 0)
}

func setupRunner(t *testing.T, drv *mockDriver) (*Runner, *recordingEmitter) {
	t.Helper()
	emitter := &recordingEmitter{}
	r := NewRunner(drv, 1000)
	r.SetEmitter(emitter)
	return r, emitter
}

// linearScenario builds start → action(tap) → end.
func linearScenario() *scenario.Scenario {
	return &scenario.Scenario{
		ID:   "linear",
		Name: "linear",
		Nodes: []scenario.Node{
			{ID: "start", Type: scenario.NodeStart},
			{ID: "tap", Type: scenario.NodeAction, Params: map[string]any{"action": "tap"}},
			{ID: "end", Type: scenario.NodeEnd},
		},
		Connections: []scenario.Connection{
			{ID: "c1", From: "start", To: "tap"},
			{ID: "c2", From: "tap", To: "end"},
		},
	}
}

// branchScenario builds the yes/no graph:
// start → tap → condition(elementExists) → [yes: A, no: B] → end.
func branchScenario() *scenario.Scenario {
	return &scenario.Scenario{
		ID:   "branching",
		Name: "branching",
		Nodes: []scenario.Node{
			{ID: "start", Type: scenario.NodeStart},
			{ID: "tap", Type: scenario.NodeAction, Params: map[string]any{"action": "tap"}},
			{ID: "check", Type: scenario.NodeCondition, Params: map[string]any{"condition": "elementExists"}},
			{ID: "A", Type: scenario.NodeAction, Params: map[string]any{"action": "actionA"}},
			{ID: "B", Type: scenario.NodeAction, Params: map[string]any{"action": "actionB"}},
			{ID: "end", Type: scenario.NodeEnd},
		},
		Connections: []scenario.Connection{
			{ID: "c1", From: "start", To: "tap"},
			{ID: "c2", From: "tap", To: "check"},
			{ID: "c3", From: "check", To: "A", Label: scenario.BranchYes},
			{ID: "c4", From: "check", To: "B", Label: scenario.BranchNo},
			{ID: "c5", From: "A", To: "end"},
			{ID: "c6", From: "B", To: "end"},
		},
	}
}

// ─── Runner Tests ───────────────────────────────────────────────────────────

func TestRunner_LinearGraphPasses(t *testing.T) {
	drv := newMockDriver()
	r, emitter := setupRunner(t, drv)

	out := r.Run(context.Background(), testUnit("dev-1", "linear"), linearScenario(), nil)

	if out.Status != StatusPassed {
		t.Fatalf("Status = %q, want passed (message: %s)", out.Status, out.Message)
	}

	want := []string{"start(passed)", "tap(passed)", "end(passed)"}
	got := emitter.stepTrace()
	if len(got) != len(want) {
		t.Fatalf("step trace = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRunner_BranchNo_SkipsYesPath(t *testing.T) {
	drv := newMockDriver()
	drv.conditionResults["elementExists"] = driver.ConditionResult{Success: true, Branch: scenario.BranchNo}
	r, emitter := setupRunner(t, drv)

	out := r.Run(context.Background(), testUnit("dev-1", "branching"), branchScenario(), nil)

	if out.Status != StatusPassed {
		t.Fatalf("Status = %q, want passed (message: %s)", out.Status, out.Message)
	}

	want := []string{
		"start(passed)",
		"tap(passed)",
		"check(passed,branch=no)",
		"B(passed)",
		"end(passed)",
	}
	got := emitter.stepTrace()
	if len(got) != len(want) {
		t.Fatalf("step trace = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// Node A must never reach the device.
	for _, call := range drv.actions() {
		if strings.HasSuffix(call, ":actionA") {
			t.Error("action A dispatched despite branch=no")
		}
	}
}

func TestRunner_ActionFailure(t *testing.T) {
	drv := newMockDriver()
	drv.actionResults["tap"] = driver.ActionResult{Success: false, Message: "element not found"}
	r, _ := setupRunner(t, drv)

	out := r.Run(context.Background(), testUnit("dev-1", "linear"), linearScenario(), nil)

	if out.Status != StatusFailed {
		t.Fatalf("Status = %q, want failed", out.Status)
	}
	if out.FailedNodeID != "tap" {
		t.Errorf("FailedNodeID = %q, want tap", out.FailedNodeID)
	}
	if !strings.Contains(out.Message, "element not found") {
		t.Errorf("Message = %q, want device failure message", out.Message)
	}
}

func TestRunner_AmbiguousBranchFallsBack(t *testing.T) {
	// Condition resolves yes, but only a no-labeled and an unlabeled
	// connection exist: fallback to the first outgoing with a warning.
	scn := branchScenario()
	scn.Connections[2].Label = "" // former yes branch now unlabeled, first outgoing

	drv := newMockDriver()
	drv.conditionResults["elementExists"] = driver.ConditionResult{Success: true, Branch: scenario.BranchYes}
	r, emitter := setupRunner(t, drv)

	out := r.Run(context.Background(), testUnit("dev-1", "branching"), scn, nil)

	if out.Status != StatusPassed {
		t.Fatalf("Status = %q, want passed despite fallback", out.Status)
	}

	var sawWarning bool
	for _, step := range emitter.stepTrace() {
		if strings.Contains(step, "warning") {
			sawWarning = true
		}
	}
	if !sawWarning {
		t.Error("expected a warning step event for the ambiguous branch")
	}

	// Fallback is the first outgoing connection, which leads to A.
	var dispatchedA bool
	for _, call := range drv.actions() {
		if strings.HasSuffix(call, ":actionA") {
			dispatchedA = true
		}
	}
	if !dispatchedA {
		t.Error("fallback should follow the first outgoing connection to A")
	}
}

func TestRunner_EmptyBranchWarnsAndFallsBack(t *testing.T) {
	// The agent answers the condition without resolving a branch. That
	// breaks the driver contract: route like an unmatched label, first
	// outgoing connection plus a warning.
	drv := newMockDriver()
	drv.conditionResults["elementExists"] = driver.ConditionResult{Success: true}
	r, emitter := setupRunner(t, drv)

	out := r.Run(context.Background(), testUnit("dev-1", "branching"), branchScenario(), nil)

	if out.Status != StatusPassed {
		t.Fatalf("Status = %q, want passed despite fallback", out.Status)
	}

	var sawWarning bool
	for _, step := range emitter.stepTrace() {
		if strings.HasPrefix(step, "check(warning") {
			sawWarning = true
		}
	}
	if !sawWarning {
		t.Error("expected a warning step event for the empty branch")
	}

	// First outgoing from check is the yes connection, leading to A.
	var dispatchedA bool
	for _, call := range drv.actions() {
		if strings.HasSuffix(call, ":actionA") {
			dispatchedA = true
		}
	}
	if !dispatchedA {
		t.Error("empty branch should follow the first outgoing connection to A")
	}
}

func TestRunner_LoopCeilingForcesExit(t *testing.T) {
	// start → loop → (loop: work → loop) / (exit: end). The loop's own
	// condition always says loop; maxLoops=2 must force the exit.
	scn := &scenario.Scenario{
		ID:   "looping",
		Name: "looping",
		Nodes: []scenario.Node{
			{ID: "start", Type: scenario.NodeStart},
			{ID: "loop", Type: scenario.NodeLoop, Params: map[string]any{"condition": "moreItems", "maxLoops": float64(2)}},
			{ID: "work", Type: scenario.NodeAction, Params: map[string]any{"action": "tapNext"}},
			{ID: "end", Type: scenario.NodeEnd},
		},
		Connections: []scenario.Connection{
			{ID: "c1", From: "start", To: "loop"},
			{ID: "c2", From: "loop", To: "work", Label: scenario.BranchLoop},
			{ID: "c3", From: "loop", To: "end", Label: scenario.BranchExit},
			{ID: "c4", From: "work", To: "loop"},
		},
	}

	drv := newMockDriver()
	drv.conditionResults["moreItems"] = driver.ConditionResult{Success: true, Branch: scenario.BranchLoop}
	r, emitter := setupRunner(t, drv)

	out := r.Run(context.Background(), testUnit("dev-1", "looping"), scn, nil)

	if out.Status != StatusPassed {
		t.Fatalf("Status = %q, want passed (ceiling is a warning, not a failure)", out.Status)
	}

	// Two natural iterations, then the forced exit.
	var workCount int
	for _, call := range drv.actions() {
		if strings.HasSuffix(call, ":tapNext") {
			workCount++
		}
	}
	if workCount != 2 {
		t.Errorf("loop body executed %d times, want 2", workCount)
	}

	var sawWarning bool
	for _, step := range emitter.stepTrace() {
		if strings.Contains(step, "warning") && strings.Contains(step, "branch=exit") {
			sawWarning = true
		}
	}
	if !sawWarning {
		t.Error("expected a warning step event when the loop ceiling forces exit")
	}
}

func TestRunner_GlobalVisitCeiling(t *testing.T) {
	// Two actions pointing at each other with no loop node: only the
	// global ceiling can stop this one, and it is a failure.
	scn := &scenario.Scenario{
		ID:   "cyclic",
		Name: "cyclic",
		Nodes: []scenario.Node{
			{ID: "start", Type: scenario.NodeStart},
			{ID: "a", Type: scenario.NodeAction, Params: map[string]any{"action": "ping"}},
			{ID: "b", Type: scenario.NodeAction, Params: map[string]any{"action": "pong"}},
		},
		Connections: []scenario.Connection{
			{ID: "c1", From: "start", To: "a"},
			{ID: "c2", From: "a", To: "b"},
			{ID: "c3", From: "b", To: "a"},
		},
	}

	drv := newMockDriver()
	emitter := &recordingEmitter{}
	r := NewRunner(drv, 25)
	r.SetEmitter(emitter)

	out := r.Run(context.Background(), testUnit("dev-1", "cyclic"), scn, nil)

	if out.Status != StatusFailed {
		t.Fatalf("Status = %q, want failed on visit ceiling", out.Status)
	}
	if !strings.Contains(out.Message, ErrVisitCeiling.Error()) {
		t.Errorf("Message = %q, want the visit ceiling error", out.Message)
	}
}

func TestRunner_NoStartNode(t *testing.T) {
	scn := linearScenario()
	scn.Nodes[0].Type = scenario.NodeAction

	drv := newMockDriver()
	r, _ := setupRunner(t, drv)

	out := r.Run(context.Background(), testUnit("dev-1", "linear"), scn, nil)

	if out.Status != StatusFailed {
		t.Fatalf("Status = %q, want failed", out.Status)
	}
	if len(drv.actions()) != 0 {
		t.Error("no node should dispatch when the graph has no start")
	}
}

func TestRunner_ExhaustedConnectionsPasses(t *testing.T) {
	// Graph without an end node: start → tap, then nothing.
	scn := &scenario.Scenario{
		ID:   "no-end",
		Name: "no-end",
		Nodes: []scenario.Node{
			{ID: "start", Type: scenario.NodeStart},
			{ID: "tap", Type: scenario.NodeAction, Params: map[string]any{"action": "tap"}},
		},
		Connections: []scenario.Connection{
			{ID: "c1", From: "start", To: "tap"},
		},
	}

	drv := newMockDriver()
	r, _ := setupRunner(t, drv)

	out := r.Run(context.Background(), testUnit("dev-1", "no-end"), scn, nil)

	if out.Status != StatusPassed {
		t.Errorf("Status = %q, want passed when connections are exhausted", out.Status)
	}
}

func TestRunner_AbortBeforeDispatch(t *testing.T) {
	drv := newMockDriver()
	r, _ := setupRunner(t, drv)

	unit := testUnit("dev-1", "linear")
	unit.RequestAbort()

	out := r.Run(context.Background(), unit, linearScenario(), nil)

	if out.Status != StatusCancelled {
		t.Fatalf("Status = %q, want cancelled", out.Status)
	}
	if len(drv.actions()) != 0 {
		t.Error("aborted unit must not dispatch anything")
	}
}

func TestRunner_VariableOverrides(t *testing.T) {
	scn := linearScenario()
	scn.Nodes[1].Params["selector"] = "#default"

	drv := newMockDriver()
	r, _ := setupRunner(t, drv)

	overrides := map[string]any{"selector": "#override", "unrelated": "ignored"}
	out := r.Run(context.Background(), testUnit("dev-1", "linear"), scn, overrides)

	if out.Status != StatusPassed {
		t.Fatalf("Status = %q, want passed", out.Status)
	}

	params := drv.params("tap")
	if params["selector"] != "#override" {
		t.Errorf("dispatched selector = %v, want #override", params["selector"])
	}
	if _, ok := params["unrelated"]; ok {
		t.Error("override for a key the node does not declare must not be injected")
	}

	// The shared graph must stay untouched.
	if scn.Nodes[1].Params["selector"] != "#default" {
		t.Error("override leaked into the shared scenario graph")
	}
}
