package render

import (
	"context"
	"sync"
	"time"
)

// PipelineState identifies where the frame pipeline is in one observation step.
type PipelineState string

const (
	StateIdle                    PipelineState = "idle"
	StateSteppingPhysics         PipelineState = "stepping_physics"
	StateSynchronizingTransforms PipelineState = "synchronizing_transforms"
	StateRendering               PipelineState = "rendering"
	StateCompositing             PipelineState = "compositing"
	StateFrameReady              PipelineState = "frame_ready"
	StateErrored                 PipelineState = "errored"
)

// String returns the string representation of the state.
func (s PipelineState) String() string { return string(s) }

// PipelineConfig holds static configuration for the frame pipeline, consumed
// once at environment construction and never mutated mid-episode.
type PipelineConfig struct {
	// MaskMode selects binary selection or alpha blending in the compositor.
	MaskMode MaskMode `json:"mask_mode"`

	// Width and Height, when > 0, are enforced against every layer the
	// renderers produce. Zero accepts whatever the renderers agree on.
	Width  int `json:"width"`
	Height int `json:"height"`

	// MaskObserver, when set, sees every validated ownership mask just
	// before compositing. Used for coverage monitoring.
	MaskObserver func(frameIndex uint64, mask *OwnershipMask, mappingWarnings int) `json:"-"`
}

// DefaultPipelineConfig returns the default configuration.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{MaskMode: MaskModeBinary}
}

// PipelineStats accumulates counters across the life of one pipeline.
type PipelineStats struct {
	FramesProduced  uint64 `json:"frames_produced"`
	FramesErrored   uint64 `json:"frames_errored"`
	MappingWarnings uint64 `json:"mapping_warnings"`
	RenderNanos     int64  `json:"render_nanos"`
}

// Pipeline orchestrates one observation step: step physics, synchronize
// transforms, render both layers, composite, return the frame. One pipeline
// serves one environment instance; stages are strictly sequential within a
// step because each consumes the prior stage's output. The two render calls
// inside the rendering stage are the only safe parallelism point and are
// issued concurrently.
//
// ProduceFrame is the sole entry point and is synchronous from the caller's
// perspective. The pipeline never retries across stage boundaries: a failed
// step lands in StateErrored and the caller decides whether to re-issue the
// whole step or abort the episode.
type Pipeline struct {
	oracle PoseOracle
	splat  SplatRenderer
	sync   *Synchronizer
	cfg    PipelineConfig

	mu         sync.Mutex
	state      PipelineState
	frameIndex uint64
	stats      PipelineStats
}

// NewPipeline wires a pipeline over its three collaborators.
func NewPipeline(oracle PoseOracle, splat SplatRenderer, ids *IdentityMap, cfg PipelineConfig) *Pipeline {
	if !cfg.MaskMode.IsValid() {
		cfg.MaskMode = MaskModeBinary
	}
	return &Pipeline{
		oracle: oracle,
		splat:  splat,
		sync:   NewSynchronizer(splat, ids),
		cfg:    cfg,
		state:  StateIdle,
	}
}

// State returns the pipeline's current state.
func (p *Pipeline) State() PipelineState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns a snapshot of the accumulated counters.
func (p *Pipeline) Stats() PipelineStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// renderResult carries one renderer's output across the join point.
type renderResult struct {
	layer *RenderLayer
	mask  *OwnershipMask
	err   error
}

// ProduceFrame runs one full observation step and returns the composited
// frame. On failure it returns a typed error (*PhysicsStepError,
// *RendererError, *DimensionError) and never a partial image; a visually
// wrong frame would corrupt policy evaluation undetectably, so refusing is
// the contract. Calling ProduceFrame again after an error restarts cleanly
// from Idle with no state carried over from the abandoned step.
func (p *Pipeline) ProduceFrame(ctx context.Context, camera CameraPose) (*CompositeFrame, error) {
	p.mu.Lock()
	// A prior Errored (or any non-idle leftover) state is discarded here:
	// retry policy belongs to the caller, and nothing from an abandoned
	// frame survives into this step.
	p.state = StateSteppingPhysics
	p.frameIndex++
	frameIdx := p.frameIndex
	p.mu.Unlock()

	if err := p.oracle.Step(ctx); err != nil {
		return nil, p.fail(&PhysicsStepError{Err: err})
	}

	p.setState(StateSynchronizingTransforms)
	update, err := p.oracle.Transforms()
	if err != nil {
		return nil, p.fail(&PhysicsStepError{Err: err})
	}
	syncRes := p.sync.Apply(update)
	p.mu.Lock()
	p.stats.MappingWarnings += uint64(syncRes.Warnings)
	p.mu.Unlock()

	p.setState(StateRendering)
	renderStart := time.Now()

	// Both renders share only the read-only camera pose and the transforms
	// already applied above, so they may run concurrently. Join both before
	// inspecting errors so an abandoned call always drains.
	bgCh := make(chan renderResult, 1)
	fgCh := make(chan renderResult, 1)
	go func() {
		layer, err := p.splat.Render(ctx, camera)
		bgCh <- renderResult{layer: layer, err: err}
	}()
	go func() {
		layer, mask, err := p.oracle.RenderForeground(ctx, camera)
		fgCh <- renderResult{layer: layer, mask: mask, err: err}
	}()
	bg := <-bgCh
	fg := <-fgCh

	p.mu.Lock()
	p.stats.RenderNanos += time.Since(renderStart).Nanoseconds()
	p.mu.Unlock()

	if bg.err != nil {
		return nil, p.fail(&RendererError{Layer: "background", Err: bg.err})
	}
	if fg.err != nil {
		return nil, p.fail(&RendererError{Layer: "foreground", Err: fg.err})
	}
	if err := p.checkLayers(bg.layer, fg.layer, fg.mask); err != nil {
		return nil, p.fail(err)
	}

	p.setState(StateCompositing)
	if p.cfg.MaskObserver != nil {
		p.cfg.MaskObserver(frameIdx, fg.mask, syncRes.Warnings)
	}
	img, err := Composite(bg.layer, fg.layer, fg.mask, p.cfg.MaskMode)
	if err != nil {
		return nil, p.fail(err)
	}

	frame := &CompositeFrame{
		Image:           img,
		FrameIndex:      frameIdx,
		TimestampNanos:  time.Now().UnixNano(),
		MappingWarnings: syncRes.Warnings,
	}

	p.mu.Lock()
	p.state = StateFrameReady
	p.stats.FramesProduced++
	// FrameReady immediately re-enters Idle for the next call.
	p.state = StateIdle
	p.mu.Unlock()

	tracef("[Pipeline] Frame %d ready (%dx%d, %d warnings)",
		frameIdx, img.Width, img.Height, syncRes.Warnings)
	return frame, nil
}

// checkLayers validates renderer outputs before compositing: internal buffer
// consistency, agreement between all three inputs, and the configured
// resolution when one is pinned.
func (p *Pipeline) checkLayers(bg, fg *RenderLayer, mask *OwnershipMask) error {
	if err := bg.Validate(); err != nil {
		return &RendererError{Layer: "background", Err: err}
	}
	if err := fg.Validate(); err != nil {
		return &RendererError{Layer: "foreground", Err: err}
	}
	if err := mask.Validate(); err != nil {
		return &RendererError{Layer: "foreground", Err: err}
	}
	mismatch := bg.Width != fg.Width || bg.Height != fg.Height ||
		mask.Width != bg.Width || mask.Height != bg.Height
	if !mismatch && p.cfg.Width > 0 && p.cfg.Height > 0 {
		mismatch = bg.Width != p.cfg.Width || bg.Height != p.cfg.Height
	}
	if mismatch {
		return &DimensionError{
			BackgroundW: bg.Width, BackgroundH: bg.Height,
			ForegroundW: fg.Width, ForegroundH: fg.Height,
			MaskW: mask.Width, MaskH: mask.Height,
		}
	}
	return nil
}

func (p *Pipeline) setState(s PipelineState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// fail records the error transition and passes the error through.
func (p *Pipeline) fail(err error) error {
	p.mu.Lock()
	p.state = StateErrored
	p.stats.FramesErrored++
	p.mu.Unlock()
	opsf("[Pipeline] Frame errored: %v", err)
	return err
}
