package policy

import (
	"context"
	"fmt"
	"math"
)

// Waypoint is one target configuration in a scripted trajectory.
type Waypoint struct {
	Joints  [7]float64 `json:"joints"`
	Gripper float64    `json:"gripper"`
	// Tolerance is the joint-space distance at which the waypoint counts
	// as reached and the script advances.
	Tolerance float64 `json:"tolerance"`
}

// Scripted replays a fixed sequence of waypoints, holding the last one once
// the script is exhausted. It needs no server and gives deterministic
// rollouts for smoke runs and tests.
type Scripted struct {
	waypoints []Waypoint
	current   int
}

// NewScripted builds a scripted policy. At least one waypoint is required.
func NewScripted(waypoints []Waypoint) (*Scripted, error) {
	if len(waypoints) == 0 {
		return nil, fmt.Errorf("scripted policy needs at least one waypoint")
	}
	return &Scripted{waypoints: waypoints}, nil
}

// Reset rewinds the script to its first waypoint.
func (p *Scripted) Reset() {
	p.current = 0
}

// Act emits the current waypoint as the action, advancing once the observed
// joints are within tolerance.
func (p *Scripted) Act(ctx context.Context, obs Observation) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(obs.JointPositions) != 7 {
		return nil, fmt.Errorf("scripted policy: observation has %d joints, want 7", len(obs.JointPositions))
	}

	wp := p.waypoints[p.current]
	if p.current < len(p.waypoints)-1 && jointDistance(obs.JointPositions, wp.Joints) <= wp.Tolerance {
		p.current++
		wp = p.waypoints[p.current]
	}

	action := make([]float64, ActionDims)
	copy(action, wp.Joints[:])
	action[ActionDims-1] = wp.Gripper
	return action, nil
}

func jointDistance(a []float64, b [7]float64) float64 {
	var sum float64
	for i := range b {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

var _ Policy = (*Scripted)(nil)
