package policy

import (
	"context"
	"testing"
)

func TestScriptedAdvancesThroughWaypoints(t *testing.T) {
	p, err := NewScripted([]Waypoint{
		{Joints: [7]float64{0.5}, Gripper: 0, Tolerance: 0.05},
		{Joints: [7]float64{1.0}, Gripper: 1, Tolerance: 0.05},
	})
	if err != nil {
		t.Fatalf("NewScripted: %v", err)
	}

	ctx := context.Background()
	obs := Observation{JointPositions: make([]float64, 7)}

	action, err := p.Act(ctx, obs)
	if err != nil {
		t.Fatalf("Act: %v", err)
	}
	if action[0] != 0.5 || action[ActionDims-1] != 0 {
		t.Fatalf("first action = %v, want first waypoint", action)
	}

	// Joints arrive at the first waypoint: the script advances.
	obs.JointPositions[0] = 0.5
	action, err = p.Act(ctx, obs)
	if err != nil {
		t.Fatalf("Act: %v", err)
	}
	if action[0] != 1.0 || action[ActionDims-1] != 1 {
		t.Fatalf("second action = %v, want second waypoint", action)
	}

	// Last waypoint holds once the script is exhausted.
	obs.JointPositions[0] = 1.0
	action, err = p.Act(ctx, obs)
	if err != nil {
		t.Fatalf("Act: %v", err)
	}
	if action[0] != 1.0 {
		t.Fatalf("held action = %v, want last waypoint", action)
	}
}

func TestScriptedReset(t *testing.T) {
	p, err := NewScripted([]Waypoint{
		{Joints: [7]float64{0.2}, Tolerance: 0.01},
		{Joints: [7]float64{0.8}, Tolerance: 0.01},
	})
	if err != nil {
		t.Fatalf("NewScripted: %v", err)
	}
	ctx := context.Background()
	obs := Observation{JointPositions: []float64{0.2, 0, 0, 0, 0, 0, 0}}
	if _, err := p.Act(ctx, obs); err != nil {
		t.Fatalf("Act: %v", err)
	}

	p.Reset()
	obs.JointPositions[0] = 0
	action, err := p.Act(ctx, obs)
	if err != nil {
		t.Fatalf("Act after Reset: %v", err)
	}
	if action[0] != 0.2 {
		t.Fatalf("action after Reset = %v, want first waypoint", action)
	}
}

func TestScriptedRejectsEmptyScript(t *testing.T) {
	if _, err := NewScripted(nil); err == nil {
		t.Fatalf("expected error for empty script")
	}
}

func TestScriptedRejectsWrongJointCount(t *testing.T) {
	p, _ := NewScripted([]Waypoint{{Joints: [7]float64{0.1}}})
	if _, err := p.Act(context.Background(), Observation{JointPositions: []float64{1, 2}}); err == nil {
		t.Fatalf("expected error for wrong joint count")
	}
}
