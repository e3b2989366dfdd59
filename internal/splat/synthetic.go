// Package splat provides SplatRenderer implementations: a websocket client
// for the deployed splat rendering backend, and a synthetic in-process
// renderer for development and tests.
package splat

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/parallax-robotics/splatview/internal/render"
	"gonum.org/v1/gonum/spatial/r3"
)

// SceneObject is one repositionable object in the synthetic splat scene.
type SceneObject struct {
	Name   render.ObjectIdentity `json:"name"`
	Home   r3.Vec                `json:"home"`
	Radius float64               `json:"radius"`
	Color  [3]uint8              `json:"color"`
}

// SyntheticConfig holds static configuration for the synthetic renderer.
type SyntheticConfig struct {
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	FocalPx float64 `json:"focal_px"`

	// Sky and Ground tint the vertical background gradient.
	Sky    [3]uint8 `json:"sky"`
	Ground [3]uint8 `json:"ground"`

	Objects []SceneObject `json:"objects"`
}

// DefaultSyntheticConfig matches the scene in sim.DefaultOracleConfig.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Width:   320,
		Height:  240,
		FocalPx: 220.0,
		Sky:     [3]uint8{140, 160, 180},
		Ground:  [3]uint8{70, 60, 50},
		Objects: []SceneObject{
			{Name: "splat/cup", Home: r3.Vec{X: 0.5, Y: 0.1, Z: 0.05}, Radius: 0.04, Color: [3]uint8{210, 80, 60}},
			{Name: "splat/tray", Home: r3.Vec{X: 0.45, Y: -0.2, Z: 0.01}, Radius: 0.09, Color: [3]uint8{150, 110, 60}},
		},
	}
}

// Synthetic is an in-process stand-in for the splat backend. Like the real
// renderer it retains per-object transforms across calls; Render is a pure
// function of that retained state and the camera, so identical transforms
// produce identical images.
type Synthetic struct {
	cfg SyntheticConfig

	mu         sync.RWMutex
	transforms map[render.ObjectIdentity]render.Pose
}

// NewSynthetic creates a synthetic renderer with all objects at home.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	s := &Synthetic{
		cfg:        cfg,
		transforms: make(map[render.ObjectIdentity]render.Pose, len(cfg.Objects)),
	}
	for _, obj := range cfg.Objects {
		s.transforms[obj.Name] = render.Pose{Position: obj.Home, Orientation: render.IdentityPose().Orientation}
	}
	return s
}

// SetObjectTransform repositions one scene object. Unknown identities are
// rejected with render.ErrUnknownObject: a non-fatal warning upstream, never
// a failure of the subsequent render call.
func (s *Synthetic) SetObjectTransform(id render.ObjectIdentity, pose render.Pose) error {
	if err := pose.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transforms[id]; !ok {
		return fmt.Errorf("%w: %q", render.ErrUnknownObject, id)
	}
	s.transforms[id] = pose
	return nil
}

// Render produces the photorealistic background stand-in: a vertical
// gradient plus each object as a shaded disc at its current transform.
func (s *Synthetic) Render(_ context.Context, camera render.CameraPose) (*render.RenderLayer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	layer := render.NewRenderLayer(s.cfg.Width, s.cfg.Height)
	for y := 0; y < s.cfg.Height; y++ {
		t := float64(y) / float64(s.cfg.Height-1)
		r := lerp(s.cfg.Sky[0], s.cfg.Ground[0], t)
		g := lerp(s.cfg.Sky[1], s.cfg.Ground[1], t)
		b := lerp(s.cfg.Sky[2], s.cfg.Ground[2], t)
		for x := 0; x < s.cfg.Width; x++ {
			layer.Set(x, y, r, g, b)
		}
	}

	cam := render.Camera{Pose: camera, FocalPx: s.cfg.FocalPx, Width: s.cfg.Width, Height: s.cfg.Height}
	for _, obj := range s.cfg.Objects {
		pose := s.transforms[obj.Name]
		drawDisc(layer, cam, pose.Position, obj.Radius, obj.Color)
	}
	return layer, nil
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t + 0.5)
}

func drawDisc(layer *render.RenderLayer, cam render.Camera, center r3.Vec, radius float64, col [3]uint8) {
	u, v, depth, ok := cam.Project(center)
	if !ok {
		return
	}
	rPx := cam.FocalPx * radius / depth
	if rPx < 0.5 {
		rPx = 0.5
	}
	x0 := int(math.Floor(u - rPx))
	x1 := int(math.Ceil(u + rPx))
	y0 := int(math.Floor(v - rPx))
	y1 := int(math.Ceil(v + rPx))
	for y := max(y0, 0); y <= min(y1, layer.Height-1); y++ {
		for x := max(x0, 0); x <= min(x1, layer.Width-1); x++ {
			if math.Hypot(float64(x)+0.5-u, float64(y)+0.5-v) <= rPx {
				layer.Set(x, y, col[0], col[1], col[2])
			}
		}
	}
}
