package policy

import (
	"testing"

	"github.com/parallax-robotics/splatview/internal/render"
)

func TestResizeWithPadNoOp(t *testing.T) {
	layer := render.NewRenderLayer(16, 16)
	if got := ResizeWithPad(layer, 16, 16); got != layer {
		t.Fatalf("matching dimensions should return the layer unchanged")
	}
}

func TestResizeWithPadLetterbox(t *testing.T) {
	// A wide white frame into a square canvas: scaled to fit the width,
	// padded with black bands above and below.
	layer := render.NewRenderLayer(32, 16)
	layer.Fill(255, 255, 255)

	out := ResizeWithPad(layer, 32, 32)
	if out.Width != 32 || out.Height != 32 {
		t.Fatalf("dimensions %dx%d, want 32x32", out.Width, out.Height)
	}

	r, g, b := out.At(16, 2)
	if r != 0 || g != 0 || b != 0 {
		t.Fatalf("top band pixel = (%d,%d,%d), want black padding", r, g, b)
	}
	r, g, b = out.At(16, 16)
	if r != 255 || g != 255 || b != 255 {
		t.Fatalf("center pixel = (%d,%d,%d), want white content", r, g, b)
	}
	r, g, b = out.At(16, 30)
	if r != 0 || g != 0 || b != 0 {
		t.Fatalf("bottom band pixel = (%d,%d,%d), want black padding", r, g, b)
	}
}

func TestResizeWithPadPreservesAspect(t *testing.T) {
	layer := render.NewRenderLayer(40, 20)
	layer.Fill(200, 0, 0)

	out := ResizeWithPad(layer, 20, 20)
	// Content occupies rows 5..14 (20x10 scaled region centered vertically).
	if r, _, _ := out.At(10, 10); r == 0 {
		t.Fatalf("center row should carry content")
	}
	if r, _, _ := out.At(10, 1); r != 0 {
		t.Fatalf("padding row should be black")
	}
}

func TestBinarizeGripper(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0, 0},
		{0.49, 0},
		{0.5, 1},
		{0.7, 1},
		{1, 1},
	}
	for _, c := range cases {
		if got := BinarizeGripper(c.in); got != c.want {
			t.Errorf("BinarizeGripper(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
