package render

import (
	"errors"
	"fmt"
)

// Sentinel errors for stage-local, recoverable conditions. These are logged
// as mapping warnings by the synchronizer and never escalate to the pipeline.
var (
	// ErrUnknownObject is returned by a SplatRenderer when asked to move an
	// object that does not exist in its scene.
	ErrUnknownObject = errors.New("unknown scene object")

	// ErrMalformedPose indicates a pose that failed validation (non-finite
	// values or non-unit orientation).
	ErrMalformedPose = errors.New("malformed pose")
)

// DimensionError reports a width/height disagreement between the background
// layer, the foreground layer, and the ownership mask. It is fatal for the
// frame: the compositor refuses to guess rather than silently resize.
type DimensionError struct {
	BackgroundW, BackgroundH int
	ForegroundW, ForegroundH int
	MaskW, MaskH             int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("layer dimension mismatch: background %dx%d, foreground %dx%d, mask %dx%d",
		e.BackgroundW, e.BackgroundH, e.ForegroundW, e.ForegroundH, e.MaskW, e.MaskH)
}

// RendererError wraps a failure of either render call (timeout, crash,
// disconnected backend). Fatal for the frame; no partial composite is emitted.
type RendererError struct {
	Layer string // "background" or "foreground"
	Err   error
}

func (e *RendererError) Error() string {
	return fmt.Sprintf("%s renderer unavailable: %v", e.Layer, e.Err)
}

func (e *RendererError) Unwrap() error { return e.Err }

// PhysicsStepError wraps a failure of the pose oracle to advance. Typically
// episode-ending, since downstream stages have no valid input.
type PhysicsStepError struct {
	Err error
}

func (e *PhysicsStepError) Error() string {
	return fmt.Sprintf("physics step failed: %v", e.Err)
}

func (e *PhysicsStepError) Unwrap() error { return e.Err }
