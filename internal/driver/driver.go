package driver

import "context"

// ActionResult is a device agent's answer to a dispatched action.
// Success false means the action ran and failed on the device (element
// not found, assertion failed); transport problems are returned as
// errors instead.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ConditionResult is a device agent's answer to a condition evaluation.
// Branch is the resolved routing decision (yes/no).
type ConditionResult struct {
	Success bool   `json:"success"`
	Branch  string `json:"branch"`
	Message string `json:"message,omitempty"`
}

// Driver abstracts the channel to the on-device agents. The engine
// calls it once per action or condition node and never interprets
// device semantics itself.
//
// Both calls honour context cancellation: an aborted unit stops
// waiting for the device immediately, though the agent may still
// finish the command on its own.
type Driver interface {
	DispatchAction(ctx context.Context, deviceID, action string, params map[string]any) (*ActionResult, error)
	EvaluateCondition(ctx context.Context, deviceID, condition string, params map[string]any) (*ConditionResult, error)
}
