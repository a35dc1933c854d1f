package influxdb

import (
	"github.com/kws0109/QA-Automation-sub001/internal/engine"
)

// Emitter feeds engine progress events into InfluxDB as telemetry
// points. It implements engine.Emitter and is fanned in alongside the
// WebSocket emitter via engine.MultiEmitter.
type Emitter struct {
	client *Client
}

// NewEmitter creates a telemetry emitter backed by the given client.
func NewEmitter(client *Client) *Emitter {
	return &Emitter{client: client}
}

// OnStepEvent records the duration of one node dispatch.
func (e *Emitter) OnStepEvent(ev engine.StepEvent) {
	e.client.WriteStepDuration(ev.DeviceID, ev.ScenarioID, ev.NodeType, float64(ev.DurationMS))
}

// OnUnitTerminal records a unit's terminal status and total runtime.
func (e *Emitter) OnUnitTerminal(res engine.UnitResult) {
	e.client.WriteUnitResult(res.DeviceID, res.ScenarioID, string(res.Status), float64(res.DurationMS))
}

// OnQueueChanged records a device's backlog depth.
func (e *Emitter) OnQueueChanged(deviceID string, depth int) {
	e.client.WriteQueueDepth(deviceID, depth)
}

// OnExecutionComplete is a no-op; per-unit points already cover the
// aggregate and the report store keeps the summary.
func (e *Emitter) OnExecutionComplete(engine.ExecutionSummary) {}
