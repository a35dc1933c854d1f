package scenario

import (
	"time"

	"github.com/google/uuid"
)

// NodeType identifies the kind of a scenario graph node.
// The set is closed: the engine dispatches on these values through an
// explicit handler table, so adding a kind means adding a handler too.
type NodeType string

const (
	NodeStart     NodeType = "start"
	NodeAction    NodeType = "action"
	NodeCondition NodeType = "condition"
	NodeLoop      NodeType = "loop"
	NodeEnd       NodeType = "end"
)

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	switch t {
	case NodeStart, NodeAction, NodeCondition, NodeLoop, NodeEnd:
		return true
	}
	return false
}

// Connection label values. Condition nodes branch on yes/no,
// loop nodes on loop/exit. Other connections are unlabeled.
const (
	BranchYes  = "yes"
	BranchNo   = "no"
	BranchLoop = "loop"
	BranchExit = "exit"
)

// Node is a single step in a scenario graph.
//
// Params carries the action payload or condition/loop parameters
// (selector, text, maxLoops, ...). The engine never mutates a node;
// variable overrides are applied to a copy of Params at dispatch time.
type Node struct {
	ID     string         `json:"id"`
	Type   NodeType       `json:"type"`
	Name   string         `json:"name,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// IntParam returns an integer parameter by key.
// JSON numbers decode as float64, so both forms are accepted.
func (n *Node) IntParam(key string) (int, bool) {
	v, ok := n.Params[key]
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	}
	return 0, false
}

// StringParam returns a string parameter by key.
func (n *Node) StringParam(key string) (string, bool) {
	v, ok := n.Params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Connection is a directed edge between two nodes.
type Connection struct {
	ID    string `json:"id"`
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// Scenario is a user-authored test flow: a node/connection graph walked
// by the engine once per (device, repetition) unit.
type Scenario struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description *string      `json:"description,omitempty"`
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// DeepCopy returns a fully independent copy of the scenario.
// Used by the registry so cached graphs are never shared with callers.
func (s *Scenario) DeepCopy() *Scenario {
	if s == nil {
		return nil
	}

	c := *s

	if s.Description != nil {
		d := *s.Description
		c.Description = &d
	}

	c.Nodes = make([]Node, len(s.Nodes))
	for i := range s.Nodes {
		c.Nodes[i] = s.Nodes[i]
		c.Nodes[i].Params = copyParams(s.Nodes[i].Params)
	}

	c.Connections = make([]Connection, len(s.Connections))
	copy(c.Connections, s.Connections)

	return &c
}

// copyParams deep-copies a params map, recursing into nested maps and slices.
func copyParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return copyParams(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = copyValue(x[i])
		}
		return out
	default:
		return v
	}
}

// NodeByID looks up a node by its identifier.
func (s *Scenario) NodeByID(id string) (*Node, bool) {
	for i := range s.Nodes {
		if s.Nodes[i].ID == id {
			return &s.Nodes[i], true
		}
	}
	return nil, false
}

// StartNode returns the graph's single start node.
// Zero start nodes is a fatal graph error; so is more than one.
func (s *Scenario) StartNode() (*Node, error) {
	var start *Node
	for i := range s.Nodes {
		if s.Nodes[i].Type != NodeStart {
			continue
		}
		if start != nil {
			return nil, ErrMultipleStartNodes
		}
		start = &s.Nodes[i]
	}
	if start == nil {
		return nil, ErrNoStartNode
	}
	return start, nil
}

// OutgoingConnections returns the connections leaving a node in
// declaration order. Declaration order matters: the engine falls back to
// the first outgoing connection when no label matches a resolved branch.
func (s *Scenario) OutgoingConnections(nodeID string) []Connection {
	var out []Connection
	for _, c := range s.Connections {
		if c.From == nodeID {
			out = append(out, c)
		}
	}
	return out
}

// GenerateID generates a unique identifier for scenarios.
func GenerateID() string {
	return uuid.New().String()
}
