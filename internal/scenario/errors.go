package scenario

import "errors"

var (
	// ErrScenarioNotFound is returned when a scenario does not exist.
	ErrScenarioNotFound = errors.New("scenario: scenario not found")

	// ErrScenarioExists is returned when creating a scenario with a
	// duplicate ID.
	ErrScenarioExists = errors.New("scenario: scenario already exists")

	// ErrValidation is the base error for scenario validation failures.
	// Specific failures wrap this sentinel; check with errors.Is.
	ErrValidation = errors.New("scenario: validation failed")

	// ErrNoStartNode is returned when a graph has no start node.
	// Unlike most graph defects this one is fatal: there is nowhere to begin.
	ErrNoStartNode = errors.New("scenario: graph has no start node")

	// ErrMultipleStartNodes is returned when a graph has more than one
	// start node.
	ErrMultipleStartNodes = errors.New("scenario: graph has multiple start nodes")

	// ErrInvalidImport is returned when imported scenario JSON fails
	// schema validation.
	ErrInvalidImport = errors.New("scenario: invalid import payload")
)
