// Package sim provides a scripted, in-process pose oracle for development
// and testing. It stands in for the physics simulator behind the same
// interface boundary: deterministic kinematic object trajectories, a toy
// seven-joint arm, and a pinhole rasterizer producing the foreground layer
// and its ownership mask.
package sim

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/parallax-robotics/splatview/internal/render"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ArmJoints is the arm's degree-of-freedom count; actions carry one extra
// gripper component.
const ArmJoints = 7

// ObjectScript describes one scripted rigid object: straight-line motion
// from Start at Velocity, rasterized as a disc of Radius metres.
type ObjectScript struct {
	Name     render.ObjectIdentity `json:"name"`
	Start    r3.Vec                `json:"start"`
	Velocity r3.Vec                `json:"velocity"`
	Radius   float64               `json:"radius"`
	Color    [3]uint8              `json:"color"`

	// Foreground marks objects the simulator rasterizes itself (dynamic
	// actors). Background-only objects appear solely in the splat layer.
	Foreground bool `json:"foreground"`
}

// OracleConfig holds static configuration for the scripted oracle.
type OracleConfig struct {
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FrameRate float64 `json:"frame_rate"` // physics steps per second
	FocalPx   float64 `json:"focal_px"`

	Objects []ObjectScript `json:"objects"`

	// EEHome is the end effector's rest position; joint motion displaces it.
	EEHome r3.Vec `json:"ee_home"`
}

// DefaultOracleConfig returns a small kitchen-table scene usable in tests
// and local runs.
func DefaultOracleConfig() OracleConfig {
	return OracleConfig{
		Width:     320,
		Height:    240,
		FrameRate: 15.0,
		FocalPx:   220.0,
		EEHome:    r3.Vec{X: 0.4, Y: 0.0, Z: 0.35},
		Objects: []ObjectScript{
			{Name: "cup", Start: r3.Vec{X: 0.5, Y: 0.1, Z: 0.05}, Radius: 0.04, Color: [3]uint8{200, 60, 40}, Foreground: true},
			{Name: "tray", Start: r3.Vec{X: 0.45, Y: -0.2, Z: 0.01}, Radius: 0.09, Color: [3]uint8{120, 90, 40}},
		},
	}
}

// ScriptedOracle implements the pose oracle boundary with deterministic
// kinematics. It also carries the arm state the evaluation loop feeds to the
// policy: commanded joint targets approached with first-order smoothing.
type ScriptedOracle struct {
	cfg OracleConfig

	mu       sync.Mutex
	step     int
	joints   [ArmJoints]float64
	targets  [ArmJoints]float64
	gripper  float64 // 0 open .. 1 closed
	stepFail error   // injected fault for tests
}

// NewScriptedOracle creates an oracle in its reset state.
func NewScriptedOracle(cfg OracleConfig) *ScriptedOracle {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 15.0
	}
	return &ScriptedOracle{cfg: cfg}
}

// Reset rewinds the simulation to step zero.
func (o *ScriptedOracle) Reset(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.step = 0
	o.joints = [ArmJoints]float64{}
	o.targets = [ArmJoints]float64{}
	o.gripper = 0
	return nil
}

// FailNextStep injects an error into the next Step call. Test hook.
func (o *ScriptedOracle) FailNextStep(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stepFail = err
}

// Step advances the world one physics step: object trajectories move by
// dt*velocity and joints approach their commanded targets.
func (o *ScriptedOracle) Step(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stepFail != nil {
		err := o.stepFail
		o.stepFail = nil
		return err
	}
	o.step++
	// First-order joint servo: close 40% of the gap per step.
	for i := range o.joints {
		o.joints[i] += 0.4 * (o.targets[i] - o.joints[i])
	}
	return nil
}

// ApplyAction sets the commanded joint targets (7 values) and gripper (1).
func (o *ScriptedOracle) ApplyAction(action []float64) error {
	if len(action) != ArmJoints+1 {
		return fmt.Errorf("action length %d, want %d", len(action), ArmJoints+1)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	copy(o.targets[:], action[:ArmJoints])
	o.gripper = action[ArmJoints]
	return nil
}

// JointPositions returns the current joint positions.
func (o *ScriptedOracle) JointPositions() []float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]float64, ArmJoints)
	copy(out, o.joints[:])
	return out
}

// GripperPosition returns the current gripper position in [0,1].
func (o *ScriptedOracle) GripperPosition() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gripper
}

// EndEffector returns the end effector pose under a toy forward map: the
// first three joints displace the home position, the wrist joint yaws it.
func (o *ScriptedOracle) EndEffector() render.Pose {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.endEffectorLocked()
}

func (o *ScriptedOracle) endEffectorLocked() render.Pose {
	pos := r3.Vec{
		X: o.cfg.EEHome.X + 0.25*math.Sin(o.joints[0]),
		Y: o.cfg.EEHome.Y + 0.25*math.Sin(o.joints[1]),
		Z: o.cfg.EEHome.Z + 0.20*math.Sin(o.joints[2]),
	}
	yaw := o.joints[6] / 2
	return render.Pose{
		Position:    pos,
		Orientation: quat.Number{Real: math.Cos(yaw), Kmag: math.Sin(yaw)},
	}
}

// objectPoseLocked returns an object's pose at the current step.
func (o *ScriptedOracle) objectPoseLocked(obj ObjectScript) render.Pose {
	t := float64(o.step) / o.cfg.FrameRate
	return render.Pose{
		Position:    r3.Add(obj.Start, r3.Scale(t, obj.Velocity)),
		Orientation: quat.Number{Real: 1},
	}
}

// Transforms returns the full pose snapshot for the most recent step,
// including the robot gripper. Never partially populated: every object the
// oracle knows is present with a complete pose.
func (o *ScriptedOracle) Transforms() (render.TransformUpdate, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	update := make(render.TransformUpdate, len(o.cfg.Objects)+1)
	for _, obj := range o.cfg.Objects {
		update[obj.Name] = o.objectPoseLocked(obj)
	}
	update["robot_gripper"] = o.endEffectorLocked()
	return update, nil
}

// RenderForeground rasterizes the dynamic actors (gripper plus foreground
// objects) as antialiased discs through a pinhole camera, producing the RGB
// layer and the ownership mask together.
func (o *ScriptedOracle) RenderForeground(_ context.Context, camera render.CameraPose) (*render.RenderLayer, *render.OwnershipMask, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	layer := render.NewRenderLayer(o.cfg.Width, o.cfg.Height)
	mask := render.NewOwnershipMask(o.cfg.Width, o.cfg.Height)
	cam := render.Camera{Pose: camera, FocalPx: o.cfg.FocalPx, Width: o.cfg.Width, Height: o.cfg.Height}

	ee := o.endEffectorLocked()
	o.rasterDisc(layer, mask, cam, ee.Position, 0.05, [3]uint8{180, 180, 190})

	for _, obj := range o.cfg.Objects {
		if !obj.Foreground {
			continue
		}
		pose := o.objectPoseLocked(obj)
		o.rasterDisc(layer, mask, cam, pose.Position, obj.Radius, obj.Color)
	}
	return layer, mask, nil
}

// rasterDisc draws a filled disc with a one-pixel soft edge. The soft edge
// writes fractional mask weights, which exercises alpha compositing; binary
// mode rounds them at 0.5.
func (o *ScriptedOracle) rasterDisc(layer *render.RenderLayer, mask *render.OwnershipMask, cam render.Camera, center r3.Vec, radius float64, col [3]uint8) {
	u, v, depth, ok := cam.Project(center)
	if !ok {
		return
	}
	rPx := cam.FocalPx * radius / depth
	if rPx < 0.5 {
		rPx = 0.5
	}

	x0 := int(math.Floor(u - rPx - 1))
	x1 := int(math.Ceil(u + rPx + 1))
	y0 := int(math.Floor(v - rPx - 1))
	y1 := int(math.Ceil(v + rPx + 1))
	for y := max(y0, 0); y <= min(y1, layer.Height-1); y++ {
		for x := max(x0, 0); x <= min(x1, layer.Width-1); x++ {
			d := math.Hypot(float64(x)+0.5-u, float64(y)+0.5-v)
			w := rPx + 0.5 - d // 1px transition band across the silhouette
			if w <= 0 {
				continue
			}
			if w > 1 {
				w = 1
			}
			if float32(w) > mask.At(x, y) {
				mask.Set(x, y, float32(w))
				layer.Set(x, y, col[0], col[1], col[2])
			}
		}
	}
}
