package render

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// RotateVec rotates v by the unit quaternion q (active rotation).
func RotateVec(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vec{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// Camera is a pinhole projection model shared by renderer backends so both
// layers see the exact same perspective. Camera frame convention: X right,
// Y down, Z forward.
type Camera struct {
	Pose    CameraPose
	FocalPx float64 // focal length in pixels
	Width   int
	Height  int
}

// minDepth rejects points at or behind the image plane.
const minDepth = 1e-6

// WorldToCamera transforms a world-frame point into the camera frame.
func (c Camera) WorldToCamera(p r3.Vec) r3.Vec {
	d := r3.Sub(p, c.Pose.Position)
	return RotateVec(quat.Conj(c.Pose.Orientation), d)
}

// Project maps a world-frame point to pixel coordinates. ok is false when
// the point lies behind the camera.
func (c Camera) Project(p r3.Vec) (u, v, depth float64, ok bool) {
	vc := c.WorldToCamera(p)
	if vc.Z < minDepth {
		return 0, 0, vc.Z, false
	}
	cx := float64(c.Width) / 2
	cy := float64(c.Height) / 2
	u = c.FocalPx*vc.X/vc.Z + cx
	v = c.FocalPx*vc.Y/vc.Z + cy
	return u, v, vc.Z, true
}
