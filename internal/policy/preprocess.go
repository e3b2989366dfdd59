package policy

import (
	"image"

	"github.com/parallax-robotics/splatview/internal/render"
	"golang.org/x/image/draw"
)

// ResizeWithPad scales a layer to fit inside width x height while keeping
// its aspect ratio, centering it on a black canvas. Models are trained on a
// fixed input shape; letterboxing avoids distorting the scene geometry.
func ResizeWithPad(layer *render.RenderLayer, width, height int) *render.RenderLayer {
	if layer.Width == width && layer.Height == height {
		return layer
	}

	scaleX := float64(width) / float64(layer.Width)
	scaleY := float64(height) / float64(layer.Height)
	scale := scaleX
	if scaleY < scale {
		scale = scaleY
	}
	dstW := int(float64(layer.Width) * scale)
	dstH := int(float64(layer.Height) * scale)
	offX := (width - dstW) / 2
	offY := (height - dstH) / 2

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	target := image.Rect(offX, offY, offX+dstW, offY+dstH)
	src := layer.ToImage()
	draw.ApproxBiLinear.Scale(canvas, target, src, src.Bounds(), draw.Src, nil)

	return render.LayerFromImage(canvas)
}

// BinarizeGripper snaps a continuous gripper command to fully open or fully
// closed at the 0.5 midpoint. Values at exactly 0.5 close.
func BinarizeGripper(v float64) float64 {
	if v >= 0.5 {
		return 1
	}
	return 0
}
