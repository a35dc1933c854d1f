package engine

import "errors"

var (
	// ErrValidation is the base error for rejected execution requests.
	// Specific failures wrap this sentinel; check with errors.Is.
	ErrValidation = errors.New("engine: validation failed")

	// ErrUnitNotFound is returned when a unit ID is unknown.
	ErrUnitNotFound = errors.New("engine: unit not found")

	// ErrExecutionNotFound is returned when an execution ID is unknown.
	ErrExecutionNotFound = errors.New("engine: execution not found")

	// ErrUnitTerminal is returned when cancelling or forcing a unit
	// that already finished.
	ErrUnitTerminal = errors.New("engine: unit already terminal")

	// ErrForceNotAllowed is returned when force-completing a unit whose
	// execution still has running devices or no pending ones.
	ErrForceNotAllowed = errors.New("engine: force-complete not allowed")

	// ErrMissingStartNode is returned when a scenario graph cannot be
	// entered. Unlike other graph defects this one fails the unit.
	ErrMissingStartNode = errors.New("engine: scenario has no start node")

	// ErrVisitCeiling is returned when a run exceeds the global node
	// visit ceiling, which points at a malformed (cyclic) graph.
	ErrVisitCeiling = errors.New("engine: node visit ceiling exceeded")
)
