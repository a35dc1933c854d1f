package engine

import (
	"github.com/kws0109/QA-Automation-sub001/internal/scenario"
)

// runContext is the mutable state of one runner execution. It lives
// for exactly one unit and is discarded on completion; the engine
// never persists in-flight run state.
type runContext struct {
	unit     *Unit
	scenario *scenario.Scenario

	// visitCounts tracks loop node visits for the maxLoops guard.
	visitCounts map[string]int

	// totalVisits counts every node visit for the global ceiling.
	totalVisits int

	overrides map[string]any
}

func newRunContext(unit *Unit, scn *scenario.Scenario, overrides map[string]any) *runContext {
	return &runContext{
		unit:        unit,
		scenario:    scn,
		visitCounts: make(map[string]int),
		overrides:   overrides,
	}
}

// effectiveParams merges variable overrides onto a copy of the node's
// params. The shared graph is never mutated: two devices running the
// same scenario must not see each other's overrides.
func (rc *runContext) effectiveParams(node *scenario.Node) map[string]any {
	if len(rc.overrides) == 0 {
		return node.Params
	}

	merged := make(map[string]any, len(node.Params)+len(rc.overrides))
	for k, v := range node.Params {
		merged[k] = v
	}
	for k, v := range rc.overrides {
		if _, exists := merged[k]; exists {
			merged[k] = v
		}
	}
	return merged
}
