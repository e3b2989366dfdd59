// Package rubric scores task progress from world state. A rubric is an
// ordered list of criteria; each criterion checks a geometric condition
// against object and end-effector poses and may depend on earlier criteria
// having passed. Progress is the fraction of satisfied criteria and success
// requires all of them.
package rubric

import (
	"fmt"
	"math"

	"github.com/parallax-robotics/splatview/internal/render"
)

// WorldState is the snapshot a rubric evaluates against.
type WorldState struct {
	// Objects maps scene object names to their current poses.
	Objects render.TransformUpdate
	// EndEffector is the robot end-effector pose.
	EndEffector render.Pose
}

// Checker evaluates one condition against a world state. Missing objects
// return an error rather than failing silently.
type Checker func(state WorldState) (bool, error)

// Criterion is one scored step of a task.
type Criterion struct {
	// Name identifies the criterion in results and reports.
	Name string
	// Check evaluates the condition.
	Check Checker
	// DependsOn lists indices of criteria that must already hold before
	// this one is evaluated. A gated criterion counts as unsatisfied
	// without running its checker.
	DependsOn []int
}

// Rubric is an ordered set of criteria for one task.
type Rubric struct {
	Task     string
	Criteria []Criterion
}

// CriterionResult records the outcome of one criterion.
type CriterionResult struct {
	Name      string `json:"name"`
	Satisfied bool   `json:"satisfied"`
	// Gated is true when a dependency failed and the checker never ran.
	Gated bool   `json:"gated,omitempty"`
	Error string `json:"error,omitempty"`
}

// Evaluation is the result of scoring one world state.
type Evaluation struct {
	Task     string            `json:"task"`
	Results  []CriterionResult `json:"results"`
	Progress float64           `json:"progress"`
	Success  bool              `json:"success"`
}

// Evaluate scores the rubric against a world state. Checker errors mark the
// criterion unsatisfied and are recorded, not returned: a partially
// observable state still yields a usable score.
func (r *Rubric) Evaluate(state WorldState) Evaluation {
	eval := Evaluation{
		Task:    r.Task,
		Results: make([]CriterionResult, len(r.Criteria)),
	}
	satisfied := 0
	for i, c := range r.Criteria {
		res := CriterionResult{Name: c.Name}
		gated := false
		for _, dep := range c.DependsOn {
			if dep < 0 || dep >= i || !eval.Results[dep].Satisfied {
				gated = true
				break
			}
		}
		switch {
		case gated:
			res.Gated = true
		default:
			ok, err := c.Check(state)
			if err != nil {
				res.Error = err.Error()
			}
			res.Satisfied = ok && err == nil
		}
		if res.Satisfied {
			satisfied++
		}
		eval.Results[i] = res
	}
	if len(r.Criteria) > 0 {
		eval.Progress = float64(satisfied) / float64(len(r.Criteria))
	}
	eval.Success = len(r.Criteria) > 0 && satisfied == len(r.Criteria)
	return eval
}

func objectPose(state WorldState, name render.ObjectIdentity) (render.Pose, error) {
	pose, ok := state.Objects[name]
	if !ok {
		return render.Pose{}, fmt.Errorf("rubric: object %q not in world state", name)
	}
	return pose, nil
}

// Reach holds when the end effector is within threshold metres of the object.
func Reach(obj render.ObjectIdentity, threshold float64) Checker {
	return func(state WorldState) (bool, error) {
		pose, err := objectPose(state, obj)
		if err != nil {
			return false, err
		}
		return render.Distance(state.EndEffector, pose) <= threshold, nil
	}
}

// Lift holds when the object sits at least threshold metres above its
// resting height.
func Lift(obj render.ObjectIdentity, restingHeight, threshold float64) Checker {
	return func(state WorldState) (bool, error) {
		pose, err := objectPose(state, obj)
		if err != nil {
			return false, err
		}
		return pose.Position.Z-restingHeight >= threshold, nil
	}
}

// WithinXY holds when the object's horizontal position lies within radius of
// the target point. Height is ignored so lifted and placed objects both pass.
func WithinXY(obj render.ObjectIdentity, targetX, targetY, radius float64) Checker {
	return func(state WorldState) (bool, error) {
		pose, err := objectPose(state, obj)
		if err != nil {
			return false, err
		}
		dx := pose.Position.X - targetX
		dy := pose.Position.Y - targetY
		return math.Hypot(dx, dy) <= radius, nil
	}
}

// PoseMatch holds when the object is within posThreshold metres and
// rotThreshold radians of a target pose.
func PoseMatch(obj render.ObjectIdentity, target render.Pose, posThreshold, rotThreshold float64) Checker {
	return func(state WorldState) (bool, error) {
		pose, err := objectPose(state, obj)
		if err != nil {
			return false, err
		}
		if render.Distance(pose, target) > posThreshold {
			return false, nil
		}
		return render.RotationAngle(pose.Orientation, target.Orientation) <= rotThreshold, nil
	}
}
