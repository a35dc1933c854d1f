package scenario

import "testing"

func TestDeepCopy_Independence(t *testing.T) {
	original := validScenario()
	original.Nodes[1].Params["nested"] = map[string]any{"key": "value"}

	c := original.DeepCopy()

	c.Name = "changed"
	c.Nodes[1].Params["action"] = "swipe"
	c.Nodes[1].Params["nested"].(map[string]any)["key"] = "changed"
	c.Connections[0].To = "elsewhere"

	if original.Name != "Login flow" {
		t.Error("DeepCopy() name mutation leaked into original")
	}
	if original.Nodes[1].Params["action"] != "tap" {
		t.Error("DeepCopy() params mutation leaked into original")
	}
	if original.Nodes[1].Params["nested"].(map[string]any)["key"] != "value" {
		t.Error("DeepCopy() nested params mutation leaked into original")
	}
	if original.Connections[0].To != "n2" {
		t.Error("DeepCopy() connection mutation leaked into original")
	}
}

func TestStartNode(t *testing.T) {
	s := validScenario()

	start, err := s.StartNode()
	if err != nil {
		t.Fatalf("StartNode() error = %v", err)
	}
	if start.ID != "n1" {
		t.Errorf("StartNode() = %q, want n1", start.ID)
	}
}

func TestOutgoingConnections_PreservesOrder(t *testing.T) {
	s := &Scenario{
		Name: "branching",
		Nodes: []Node{
			{ID: "n1", Type: NodeStart},
			{ID: "cond", Type: NodeCondition},
			{ID: "a", Type: NodeAction},
			{ID: "b", Type: NodeAction},
		},
		Connections: []Connection{
			{ID: "c1", From: "n1", To: "cond"},
			{ID: "c2", From: "cond", To: "a", Label: BranchYes},
			{ID: "c3", From: "cond", To: "b", Label: BranchNo},
		},
	}

	out := s.OutgoingConnections("cond")
	if len(out) != 2 {
		t.Fatalf("len(OutgoingConnections) = %d, want 2", len(out))
	}
	if out[0].ID != "c2" || out[1].ID != "c3" {
		t.Errorf("OutgoingConnections order = [%s %s], want [c2 c3]", out[0].ID, out[1].ID)
	}

	if got := s.OutgoingConnections("b"); got != nil {
		t.Errorf("OutgoingConnections(b) = %v, want nil", got)
	}
}

func TestIntParam(t *testing.T) {
	n := Node{
		ID:   "loop",
		Type: NodeLoop,
		Params: map[string]any{
			"maxLoops":   float64(3), // JSON decodes numbers as float64
			"intDirect":  5,
			"notANumber": "three",
		},
	}

	if v, ok := n.IntParam("maxLoops"); !ok || v != 3 {
		t.Errorf("IntParam(maxLoops) = %d, %v, want 3, true", v, ok)
	}
	if v, ok := n.IntParam("intDirect"); !ok || v != 5 {
		t.Errorf("IntParam(intDirect) = %d, %v, want 5, true", v, ok)
	}
	if _, ok := n.IntParam("notANumber"); ok {
		t.Error("IntParam(notANumber) = true, want false")
	}
	if _, ok := n.IntParam("missing"); ok {
		t.Error("IntParam(missing) = true, want false")
	}
}
