// Package policy turns rendered observations into robot actions. The main
// implementation is a websocket client speaking to a remote inference
// server; a scripted policy covers offline runs and tests.
package policy

import (
	"context"

	"github.com/parallax-robotics/splatview/internal/render"
)

// ActionDims is the action vector length: seven joint targets plus one
// gripper command.
const ActionDims = 8

// Observation is one model input: the composited frame plus proprioception.
type Observation struct {
	Image          *render.RenderLayer
	JointPositions []float64
	Gripper        float64
	Instruction    string
}

// Policy produces one action per control step. Act may serve actions from a
// cached chunk without contacting the model. Reset clears any cached chunk
// so the next Act starts a fresh inference.
type Policy interface {
	Act(ctx context.Context, obs Observation) ([]float64, error)
	Reset()
}
