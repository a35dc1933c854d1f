package engine

import "time"

// StepStatus classifies a single step event.
type StepStatus string

const (
	StepPassed  StepStatus = "passed"
	StepFailed  StepStatus = "failed"
	StepWarning StepStatus = "warning"
)

// StepEvent describes one node visit during a run. Events for a single
// unit arrive in node-visitation order; no ordering holds across units.
type StepEvent struct {
	ExecutionID string     `json:"execution_id"`
	UnitID      string     `json:"unit_id"`
	DeviceID    string     `json:"device_id"`
	ScenarioID  string     `json:"scenario_id"`
	NodeID      string     `json:"node_id"`
	NodeType    string     `json:"node_type"`
	NodeName    string     `json:"node_name,omitempty"`
	Status      StepStatus `json:"status"`
	Branch      string     `json:"branch,omitempty"`
	Message     string     `json:"message,omitempty"`
	DurationMS  int64      `json:"duration_ms"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Emitter receives engine progress. Implementations must not block:
// every callback runs on the hot path of a device worker.
type Emitter interface {
	// OnStepEvent fires once per node visit.
	OnStepEvent(ev StepEvent)

	// OnUnitTerminal fires exactly once per unit, with its final state.
	OnUnitTerminal(res UnitResult)

	// OnQueueChanged fires when a device backlog changes (enqueue,
	// dispatch, cancel, completion). depth counts pending units only.
	OnQueueChanged(deviceID string, depth int)

	// OnExecutionComplete fires once all units of an execution are
	// terminal.
	OnExecutionComplete(sum ExecutionSummary)
}

// NoopEmitter discards all events. Useful as a default and in tests.
type NoopEmitter struct{}

func (NoopEmitter) OnStepEvent(StepEvent)                {}
func (NoopEmitter) OnUnitTerminal(UnitResult)            {}
func (NoopEmitter) OnQueueChanged(string, int)           {}
func (NoopEmitter) OnExecutionComplete(ExecutionSummary) {}

// MultiEmitter fans events out to several emitters in order.
type MultiEmitter []Emitter

func (m MultiEmitter) OnStepEvent(ev StepEvent) {
	for _, e := range m {
		e.OnStepEvent(ev)
	}
}

func (m MultiEmitter) OnUnitTerminal(res UnitResult) {
	for _, e := range m {
		e.OnUnitTerminal(res)
	}
}

func (m MultiEmitter) OnQueueChanged(deviceID string, depth int) {
	for _, e := range m {
		e.OnQueueChanged(deviceID, depth)
	}
}

func (m MultiEmitter) OnExecutionComplete(sum ExecutionSummary) {
	for _, e := range m {
		e.OnExecutionComplete(sum)
	}
}
