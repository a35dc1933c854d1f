package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Validation limits for scenario fields.
const (
	maxNameLength  = 200
	maxNodeCount   = 500
	maxConnections = 1000
)

// Validate checks a scenario for structural errors before it is
// persisted or executed.
//
// Checks performed:
//   - Name is present and within length limits
//   - At least one node; node IDs are non-empty and unique
//   - Every node type belongs to the closed set
//   - Exactly one start node
//   - Every connection references existing nodes
//
// Missing labels on condition/loop branches are deliberately NOT
// rejected here: the engine handles them at run time with a
// first-connection fallback and a warning.
func Validate(s *Scenario) error {
	if s == nil {
		return fmt.Errorf("%w: scenario is nil", ErrValidation)
	}

	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len(s.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrValidation, maxNameLength)
	}

	if len(s.Nodes) == 0 {
		return fmt.Errorf("%w: scenario has no nodes", ErrValidation)
	}
	if len(s.Nodes) > maxNodeCount {
		return fmt.Errorf("%w: scenario exceeds %d nodes", ErrValidation, maxNodeCount)
	}
	if len(s.Connections) > maxConnections {
		return fmt.Errorf("%w: scenario exceeds %d connections", ErrValidation, maxConnections)
	}

	seen := make(map[string]bool, len(s.Nodes))
	for i := range s.Nodes {
		n := &s.Nodes[i]
		if n.ID == "" {
			return fmt.Errorf("%w: node %d has empty id", ErrValidation, i)
		}
		if seen[n.ID] {
			return fmt.Errorf("%w: duplicate node id %q", ErrValidation, n.ID)
		}
		seen[n.ID] = true

		if !n.Type.Valid() {
			return fmt.Errorf("%w: node %q has unknown type %q", ErrValidation, n.ID, n.Type)
		}
	}

	if _, err := s.StartNode(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	for _, c := range s.Connections {
		if !seen[c.From] {
			return fmt.Errorf("%w: connection %q references unknown source node %q", ErrValidation, c.ID, c.From)
		}
		if !seen[c.To] {
			return fmt.Errorf("%w: connection %q references unknown target node %q", ErrValidation, c.ID, c.To)
		}
	}

	return nil
}

// importPayload is the wire shape accepted by ParseImport.
// Timestamps and server-assigned fields are not importable.
type importPayload struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
}

// ParseImport validates raw scenario JSON against the embedded schema,
// strictly decodes it, and runs structural validation. Returns a
// scenario ready for Create (ID assigned if absent).
func ParseImport(data []byte) (*Scenario, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}

	if err := importSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}

	var payload importPayload
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}

	s := &Scenario{
		ID:          payload.ID,
		Name:        payload.Name,
		Nodes:       payload.Nodes,
		Connections: payload.Connections,
	}
	if payload.Description != "" {
		s.Description = &payload.Description
	}
	if s.ID == "" {
		s.ID = GenerateID()
	}

	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}
