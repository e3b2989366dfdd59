package render

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestRotateVec(t *testing.T) {
	// 90 degrees about Z maps +X to +Y.
	z90 := quat.Number{Real: math.Cos(math.Pi / 4), Kmag: math.Sin(math.Pi / 4)}
	got := RotateVec(z90, r3.Vec{X: 1})
	if math.Abs(got.X) > 1e-9 || math.Abs(got.Y-1) > 1e-9 || math.Abs(got.Z) > 1e-9 {
		t.Fatalf("RotateVec = %+v, want (0,1,0)", got)
	}
}

func TestCameraProject(t *testing.T) {
	cam := Camera{
		Pose:    IdentityPose(),
		FocalPx: 100,
		Width:   200,
		Height:  100,
	}

	// A point straight ahead lands on the principal point.
	u, v, depth, ok := cam.Project(r3.Vec{Z: 2})
	if !ok {
		t.Fatalf("point ahead should project")
	}
	if u != 100 || v != 50 {
		t.Errorf("principal point = (%v,%v), want (100,50)", u, v)
	}
	if depth != 2 {
		t.Errorf("depth = %v, want 2", depth)
	}

	// Offset scales inversely with depth.
	u, _, _, _ = cam.Project(r3.Vec{X: 1, Z: 2})
	if math.Abs(u-150) > 1e-9 {
		t.Errorf("u = %v, want 150", u)
	}

	// Points behind the camera are rejected.
	if _, _, _, ok := cam.Project(r3.Vec{Z: -1}); ok {
		t.Errorf("point behind camera should not project")
	}
}
