package render

// MaskMode selects how the ownership mask is interpreted when merging the
// two render layers.
type MaskMode string

const (
	// MaskModeBinary selects the foreground pixel wherever the mask weight
	// is at least 0.5 and the background pixel otherwise.
	MaskModeBinary MaskMode = "binary"

	// MaskModeAlpha blends per channel: w*foreground + (1-w)*background,
	// with weights clamped to [0,1] and the result clamped to 0-255.
	MaskModeAlpha MaskMode = "alpha"
)

// String returns the string representation of the mode.
func (m MaskMode) String() string { return string(m) }

// IsValid returns true if the mode is a known valid value.
func (m MaskMode) IsValid() bool {
	switch m {
	case MaskModeBinary, MaskModeAlpha:
		return true
	default:
		return false
	}
}

// Composite merges the background layer (splat render) and the foreground
// layer (simulator rasterizer) into one image using the ownership mask.
//
// It is a pure per-frame function: deterministic, total over same-shaped
// inputs, and carrying no state from prior frames — an upstream layer that
// fails intermittently can therefore never ghost into later composites.
// Any dimension disagreement between the three inputs returns a
// *DimensionError; the compositor never resizes.
func Composite(background, foreground *RenderLayer, mask *OwnershipMask, mode MaskMode) (*RenderLayer, error) {
	if background.Width != foreground.Width || background.Height != foreground.Height ||
		mask.Width != background.Width || mask.Height != background.Height {
		return nil, &DimensionError{
			BackgroundW: background.Width, BackgroundH: background.Height,
			ForegroundW: foreground.Width, ForegroundH: foreground.Height,
			MaskW: mask.Width, MaskH: mask.Height,
		}
	}

	out := NewRenderLayer(background.Width, background.Height)
	switch mode {
	case MaskModeAlpha:
		compositeAlpha(out, background, foreground, mask)
	default:
		// Binary is the default: continuous weights degrade to a 0.5 threshold.
		compositeBinary(out, background, foreground, mask)
	}
	return out, nil
}

func compositeBinary(out, bg, fg *RenderLayer, mask *OwnershipMask) {
	for p, w := range mask.Weights {
		i := p * 3
		if w >= 0.5 {
			out.Pix[i], out.Pix[i+1], out.Pix[i+2] = fg.Pix[i], fg.Pix[i+1], fg.Pix[i+2]
		} else {
			out.Pix[i], out.Pix[i+1], out.Pix[i+2] = bg.Pix[i], bg.Pix[i+1], bg.Pix[i+2]
		}
	}
}

func compositeAlpha(out, bg, fg *RenderLayer, mask *OwnershipMask) {
	for p, w := range mask.Weights {
		// Clamp, not reject: antialiased silhouette edges overshoot slightly.
		if w < 0 {
			w = 0
		} else if w > 1 {
			w = 1
		}
		i := p * 3
		for c := 0; c < 3; c++ {
			v := float32(fg.Pix[i+c])*w + float32(bg.Pix[i+c])*(1-w)
			out.Pix[i+c] = clampChannel(v)
		}
	}
}

// clampChannel bounds a blended value to the valid 8-bit colour range,
// guarding against floating overshoot at mask boundaries.
func clampChannel(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
