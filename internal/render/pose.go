package render

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ObjectIdentity is a stable key naming one physical object. The physics
// simulator and the splat scene each have their own naming scheme; the
// IdentityMap translates between them.
type ObjectIdentity string

// UnitNormTolerance is the permitted deviation of an orientation quaternion's
// magnitude from 1. Producers are expected to normalize before publishing;
// anything outside this band is treated as malformed.
const UnitNormTolerance = 1e-6

// Pose is a rigid-body position and orientation in world frame.
// Orientation follows the (w, x, y, z) convention used by the simulator.
type Pose struct {
	Position    r3.Vec      `json:"position"`
	Orientation quat.Number `json:"orientation"`
}

// CameraPose is the observation viewpoint for one frame. It is shared
// verbatim between the splat render and the foreground render so the two
// layers are pixel-consistent.
type CameraPose = Pose

// TransformUpdate maps every simulated object to its pose for the current
// physics step. It fully replaces the prior frame's state: consumers must not
// retain poses for objects absent from the map.
type TransformUpdate map[ObjectIdentity]Pose

// IdentityPose returns a pose at the origin with identity orientation.
func IdentityPose() Pose {
	return Pose{Orientation: quat.Number{Real: 1}}
}

// Normalize returns the pose with its orientation scaled to unit magnitude.
// A zero or non-finite quaternion cannot be normalized and is returned
// unchanged; Validate catches that case.
func (p Pose) Normalize() Pose {
	n := quat.Abs(p.Orientation)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return p
	}
	p.Orientation = quat.Scale(1/n, p.Orientation)
	return p
}

// Validate checks that the pose is usable: finite position, finite
// orientation with magnitude within UnitNormTolerance of 1.
func (p Pose) Validate() error {
	if !isFinite(p.Position.X) || !isFinite(p.Position.Y) || !isFinite(p.Position.Z) {
		return fmt.Errorf("%w: non-finite position (%v, %v, %v)",
			ErrMalformedPose, p.Position.X, p.Position.Y, p.Position.Z)
	}
	n := quat.Abs(p.Orientation)
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return fmt.Errorf("%w: non-finite orientation", ErrMalformedPose)
	}
	if math.Abs(n-1) > UnitNormTolerance {
		return fmt.Errorf("%w: orientation magnitude %.9f not unit", ErrMalformedPose, n)
	}
	return nil
}

// RotationAngle returns the geodesic angle in radians between the two
// orientations, in [0, pi]. Used by pose-match success criteria.
func RotationAngle(a, b quat.Number) float64 {
	// |<a,b>| handles the double cover: q and -q are the same rotation.
	dot := a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
	dot = math.Abs(dot)
	if dot > 1 {
		dot = 1
	}
	return 2 * math.Acos(dot)
}

// Distance returns the Euclidean distance between the two pose positions.
func Distance(a, b Pose) float64 {
	return r3.Norm(r3.Sub(a.Position, b.Position))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
