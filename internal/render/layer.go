package render

import (
	"fmt"
	"image"
	"image/color"
)

// RenderLayer is a dense W×H RGB image with 8-bit channels, stored row-major
// as R,G,B triplets. Both renderers produce layers; the compositor merges two
// of them into a CompositeFrame.
type RenderLayer struct {
	Width  int
	Height int
	Pix    []uint8 // len = Width*Height*3
}

// NewRenderLayer allocates a zeroed (black) layer.
func NewRenderLayer(width, height int) *RenderLayer {
	return &RenderLayer{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*3),
	}
}

// At returns the RGB triplet at pixel (x, y).
func (l *RenderLayer) At(x, y int) (r, g, b uint8) {
	i := (y*l.Width + x) * 3
	return l.Pix[i], l.Pix[i+1], l.Pix[i+2]
}

// Set writes the RGB triplet at pixel (x, y).
func (l *RenderLayer) Set(x, y int, r, g, b uint8) {
	i := (y*l.Width + x) * 3
	l.Pix[i], l.Pix[i+1], l.Pix[i+2] = r, g, b
}

// Fill sets every pixel to the given colour.
func (l *RenderLayer) Fill(r, g, b uint8) {
	for i := 0; i < len(l.Pix); i += 3 {
		l.Pix[i], l.Pix[i+1], l.Pix[i+2] = r, g, b
	}
}

// Clone returns a deep copy. Layers are transient per-frame values but the
// recorder and debug dumps need stable snapshots.
func (l *RenderLayer) Clone() *RenderLayer {
	c := &RenderLayer{Width: l.Width, Height: l.Height, Pix: make([]uint8, len(l.Pix))}
	copy(c.Pix, l.Pix)
	return c
}

// Validate checks that the pixel buffer matches the declared dimensions.
func (l *RenderLayer) Validate() error {
	if l.Width <= 0 || l.Height <= 0 {
		return fmt.Errorf("invalid layer dimensions %dx%d", l.Width, l.Height)
	}
	if want := l.Width * l.Height * 3; len(l.Pix) != want {
		return fmt.Errorf("layer buffer length %d, want %d for %dx%d RGB",
			len(l.Pix), want, l.Width, l.Height)
	}
	return nil
}

// ToImage converts the layer to a stdlib image for PNG dumps and policy input.
func (l *RenderLayer) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, l.Width, l.Height))
	for y := 0; y < l.Height; y++ {
		for x := 0; x < l.Width; x++ {
			r, g, b := l.At(x, y)
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return img
}

// LayerFromImage converts a stdlib image into a RenderLayer, discarding alpha.
func LayerFromImage(img image.Image) *RenderLayer {
	bounds := img.Bounds()
	l := NewRenderLayer(bounds.Dx(), bounds.Dy())
	for y := 0; y < l.Height; y++ {
		for x := 0; x < l.Width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			l.Set(x, y, uint8(r>>8), uint8(g>>8), uint8(b>>8))
		}
	}
	return l
}

// OwnershipMask assigns each pixel a foreground blend weight. Weights are
// nominally in [0,1]; antialiasing can overshoot slightly near silhouette
// edges, so the compositor clamps rather than rejects out-of-range values.
type OwnershipMask struct {
	Width   int
	Height  int
	Weights []float32 // len = Width*Height
}

// NewOwnershipMask allocates a zeroed (all background) mask.
func NewOwnershipMask(width, height int) *OwnershipMask {
	return &OwnershipMask{
		Width:   width,
		Height:  height,
		Weights: make([]float32, width*height),
	}
}

// At returns the weight at pixel (x, y).
func (m *OwnershipMask) At(x, y int) float32 {
	return m.Weights[y*m.Width+x]
}

// Set writes the weight at pixel (x, y).
func (m *OwnershipMask) Set(x, y int, w float32) {
	m.Weights[y*m.Width+x] = w
}

// Coverage returns the fraction of pixels owned by the foreground, counting
// a pixel as owned when its clamped weight is at least 0.5. Used by the mask
// monitor to spot drift between the two scene representations.
func (m *OwnershipMask) Coverage() float64 {
	if len(m.Weights) == 0 {
		return 0
	}
	owned := 0
	for _, w := range m.Weights {
		if w >= 0.5 {
			owned++
		}
	}
	return float64(owned) / float64(len(m.Weights))
}

// Validate checks that the weight buffer matches the declared dimensions.
func (m *OwnershipMask) Validate() error {
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("invalid mask dimensions %dx%d", m.Width, m.Height)
	}
	if want := m.Width * m.Height; len(m.Weights) != want {
		return fmt.Errorf("mask buffer length %d, want %d for %dx%d",
			len(m.Weights), want, m.Width, m.Height)
	}
	return nil
}

// CompositeFrame is the final observation returned to the evaluation loop.
// It has no identity beyond being the most recent compositing result; the
// core never persists it.
type CompositeFrame struct {
	Image      *RenderLayer
	FrameIndex uint64
	// TimestampNanos is the wall-clock time the frame was composited.
	TimestampNanos int64
	// MappingWarnings counts transform updates that could not be applied
	// this frame (unknown objects, malformed poses). Recoverable; recorded
	// so evaluation quality can be audited afterwards.
	MappingWarnings int
}
