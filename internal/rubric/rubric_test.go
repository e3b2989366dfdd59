package rubric

import (
	"math"
	"testing"

	"github.com/parallax-robotics/splatview/internal/render"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

func poseAt(x, y, z float64) render.Pose {
	return render.Pose{Position: r3.Vec{X: x, Y: y, Z: z}, Orientation: quat.Number{Real: 1}}
}

func pickPlaceRubric() *Rubric {
	return &Rubric{
		Task: "put the cup on the tray",
		Criteria: []Criterion{
			{Name: "reach cup", Check: Reach("cup", 0.05)},
			{Name: "lift cup", Check: Lift("cup", 0.05, 0.08), DependsOn: []int{0}},
			{Name: "cup over tray", Check: WithinXY("cup", 0.7, 0.2, 0.06), DependsOn: []int{1}},
		},
	}
}

func TestEvaluateFullSuccess(t *testing.T) {
	r := pickPlaceRubric()
	state := WorldState{
		Objects: render.TransformUpdate{
			"cup": poseAt(0.71, 0.21, 0.20),
		},
		EndEffector: poseAt(0.72, 0.20, 0.21),
	}
	eval := r.Evaluate(state)
	if !eval.Success {
		t.Fatalf("Success = false, results = %+v", eval.Results)
	}
	if eval.Progress != 1.0 {
		t.Fatalf("Progress = %v, want 1.0", eval.Progress)
	}
}

func TestEvaluatePartialProgress(t *testing.T) {
	// Reached but not lifted: only the first criterion holds and the
	// placement criterion is gated behind the lift.
	r := pickPlaceRubric()
	state := WorldState{
		Objects: render.TransformUpdate{
			"cup": poseAt(0.5, 0.1, 0.05),
		},
		EndEffector: poseAt(0.51, 0.1, 0.06),
	}
	eval := r.Evaluate(state)
	if eval.Success {
		t.Fatalf("Success = true for partial state")
	}
	if got, want := eval.Progress, 1.0/3.0; math.Abs(got-want) > 1e-12 {
		t.Fatalf("Progress = %v, want %v", got, want)
	}
	if !eval.Results[0].Satisfied {
		t.Fatalf("reach not satisfied: %+v", eval.Results[0])
	}
	if eval.Results[1].Satisfied || eval.Results[1].Gated {
		t.Fatalf("lift result = %+v, want unsatisfied and ungated", eval.Results[1])
	}
	if !eval.Results[2].Gated {
		t.Fatalf("placement should be gated when lift fails: %+v", eval.Results[2])
	}
}

func TestEvaluateGatingSkipsChecker(t *testing.T) {
	ran := false
	r := &Rubric{
		Task: "gated",
		Criteria: []Criterion{
			{Name: "never holds", Check: func(WorldState) (bool, error) { return false, nil }},
			{Name: "downstream", DependsOn: []int{0}, Check: func(WorldState) (bool, error) {
				ran = true
				return true, nil
			}},
		},
	}
	eval := r.Evaluate(WorldState{})
	if ran {
		t.Fatalf("gated checker ran despite failed dependency")
	}
	if !eval.Results[1].Gated {
		t.Fatalf("downstream result = %+v, want gated", eval.Results[1])
	}
}

func TestEvaluateMissingObject(t *testing.T) {
	r := &Rubric{
		Task:     "reach",
		Criteria: []Criterion{{Name: "reach ghost", Check: Reach("ghost", 0.1)}},
	}
	eval := r.Evaluate(WorldState{Objects: render.TransformUpdate{}})
	if eval.Results[0].Satisfied {
		t.Fatalf("missing object satisfied the criterion")
	}
	if eval.Results[0].Error == "" {
		t.Fatalf("missing object did not record an error")
	}
	if eval.Success || eval.Progress != 0 {
		t.Fatalf("eval = %+v, want zero progress", eval)
	}
}

func TestPoseMatchRotation(t *testing.T) {
	target := poseAt(0.3, 0, 0.1)
	check := PoseMatch("block", target, 0.02, 0.2)

	aligned := WorldState{Objects: render.TransformUpdate{"block": poseAt(0.31, 0, 0.1)}}
	if ok, err := check(aligned); err != nil || !ok {
		t.Fatalf("aligned pose: ok=%v err=%v", ok, err)
	}

	// 90 degree rotation about Z exceeds the 0.2 rad tolerance.
	s := math.Sqrt(0.5)
	rotated := WorldState{Objects: render.TransformUpdate{
		"block": render.Pose{Position: r3.Vec{X: 0.3, Z: 0.1}, Orientation: quat.Number{Real: s, Kmag: s}},
	}}
	if ok, err := check(rotated); err != nil || ok {
		t.Fatalf("rotated pose: ok=%v err=%v, want false", ok, err)
	}
}

func TestEmptyRubric(t *testing.T) {
	r := &Rubric{Task: "empty"}
	eval := r.Evaluate(WorldState{})
	if eval.Success {
		t.Fatalf("empty rubric reported success")
	}
	if eval.Progress != 0 {
		t.Fatalf("Progress = %v, want 0", eval.Progress)
	}
}
