package api

import (
	"github.com/kws0109/QA-Automation-sub001/internal/engine"
)

// HubEmitter bridges engine progress events onto the WebSocket hub.
// Every browser tab subscribed to a channel sees the event; the engine
// never knows the hub exists.
type HubEmitter struct {
	hub *Hub
}

// NewHubEmitter creates an emitter that broadcasts through the given hub.
func NewHubEmitter(hub *Hub) *HubEmitter {
	return &HubEmitter{hub: hub}
}

// OnStepEvent broadcasts a single node result.
func (e *HubEmitter) OnStepEvent(ev engine.StepEvent) {
	e.hub.Broadcast(ChannelStepCompleted, ev)
}

// OnUnitTerminal broadcasts a unit reaching a terminal state.
func (e *HubEmitter) OnUnitTerminal(res engine.UnitResult) {
	e.hub.Broadcast(ChannelUnitCompleted, res)
}

// OnQueueChanged broadcasts a device backlog depth change.
func (e *HubEmitter) OnQueueChanged(deviceID string, depth int) {
	e.hub.Broadcast(ChannelQueueChanged, map[string]any{
		"device_id": deviceID,
		"depth":     depth,
	})
}

// OnExecutionComplete broadcasts the final summary of an execution.
func (e *HubEmitter) OnExecutionComplete(sum engine.ExecutionSummary) {
	e.hub.Broadcast(ChannelExecutionCompleted, sum)
}
