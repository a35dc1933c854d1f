package engine

import (
	"fmt"
	"strings"
)

// Admission bounds for execution requests. Requests outside these
// limits are rejected before a single unit is created.
const (
	MaxDevices          = 50
	MaxScenarios        = 100
	MaxRepeatCount      = 10
	MaxScenarioInterval = 60000 // milliseconds
)

// ValidateRequest checks an execution request against the admission
// bounds. It does not resolve scenario or device IDs; existence is the
// coordinator's job.
func ValidateRequest(req *ExecutionRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request is nil", ErrValidation)
	}

	if strings.TrimSpace(req.RequesterName) == "" {
		return fmt.Errorf("%w: requester_name is required", ErrValidation)
	}

	if len(req.DeviceIDs) < 1 || len(req.DeviceIDs) > MaxDevices {
		return fmt.Errorf("%w: device_ids must contain 1-%d entries", ErrValidation, MaxDevices)
	}
	if len(req.ScenarioIDs) < 1 || len(req.ScenarioIDs) > MaxScenarios {
		return fmt.Errorf("%w: scenario_ids must contain 1-%d entries", ErrValidation, MaxScenarios)
	}
	if req.RepeatCount < 1 || req.RepeatCount > MaxRepeatCount {
		return fmt.Errorf("%w: repeat_count must be 1-%d", ErrValidation, MaxRepeatCount)
	}
	if req.ScenarioIntervalMS < 0 || req.ScenarioIntervalMS > MaxScenarioInterval {
		return fmt.Errorf("%w: scenario_interval_ms must be 0-%d", ErrValidation, MaxScenarioInterval)
	}

	if err := checkDuplicates("device_ids", req.DeviceIDs); err != nil {
		return err
	}
	if err := checkDuplicates("scenario_ids", req.ScenarioIDs); err != nil {
		return err
	}

	return nil
}

func checkDuplicates(field string, ids []string) error {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("%w: %s contains an empty id", ErrValidation, field)
		}
		if seen[id] {
			return fmt.Errorf("%w: %s contains duplicate %q", ErrValidation, field, id)
		}
		seen[id] = true
	}
	return nil
}
