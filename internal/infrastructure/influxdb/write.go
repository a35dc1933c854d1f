package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteStepDuration records how long a single scenario node took on a device.
//
// This is the primary telemetry point for test runs: the flow runner reports
// one point per executed node. The write is non-blocking; data is batched
// and sent asynchronously.
//
// Parameters:
//   - deviceID: The device the step ran on
//   - scenarioID: The scenario being executed
//   - nodeType: The node kind (action, condition, loop)
//   - durationMS: Wall-clock duration of the step in milliseconds
func (c *Client) WriteStepDuration(deviceID, scenarioID, nodeType string, durationMS float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"step_duration",
		map[string]string{
			"device_id":   deviceID,
			"scenario_id": scenarioID,
			"node_type":   nodeType,
		},
		map[string]interface{}{
			"duration_ms": durationMS,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteUnitResult records the terminal state of one execution unit.
//
// The status tag keeps cardinality low (five possible values); the duration
// field carries the measured value.
func (c *Client) WriteUnitResult(deviceID, scenarioID, status string, durationMS float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"unit_result",
		map[string]string{
			"device_id":   deviceID,
			"scenario_id": scenarioID,
			"status":      status,
		},
		map[string]interface{}{
			"duration_ms": durationMS,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteQueueDepth records the current backlog depth for a device.
//
// Written whenever the queue changes; useful for spotting devices that
// accumulate work faster than they drain it.
func (c *Client) WriteQueueDepth(deviceID string, depth int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"queue_depth",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"depth": depth,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
