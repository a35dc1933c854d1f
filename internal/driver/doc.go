// Package driver carries engine commands to the on-device agents.
//
// The engine hands every action and condition node to a Driver and
// only inspects the pass/fail/branch outcome; what "tap" or
// "elementExists" means on a handset is entirely the agent's business.
//
// The MQTT implementation publishes JSON commands to a per-device
// topic and correlates answers from a shared wildcard subscription by
// command_id:
//
//	core ── qaconsole/command/{deviceId} ──► agent
//	core ◄── qaconsole/result/{deviceId} ─── agent
//
// Each in-flight command owns a buffered channel in a pending map;
// answers for unknown IDs (late, after timeout) are logged and
// dropped.
package driver
