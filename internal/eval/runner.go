// Package eval runs policy evaluation episodes: each step produces a
// composited frame, queries the policy, applies the action to the physics
// environment, and scores progress against a task rubric.
package eval

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/parallax-robotics/splatview/internal/policy"
	"github.com/parallax-robotics/splatview/internal/render"
	"github.com/parallax-robotics/splatview/internal/results"
	"github.com/parallax-robotics/splatview/internal/rubric"
)

// Environment is the physics side of an evaluation: the pose oracle the
// frame pipeline consumes, plus episode reset and action application.
type Environment interface {
	render.PoseOracle
	Reset(ctx context.Context) error
	ApplyAction(action []float64) error
	JointPositions() []float64
	GripperPosition() float64
	EndEffector() render.Pose
}

// RunnerConfig holds per-episode settings.
type RunnerConfig struct {
	// MaxSteps bounds an episode's control steps.
	MaxSteps int `json:"max_steps"`
	// FrameRetries is how many times a failed frame is re-issued within
	// one step before the episode aborts. Zero fails fast.
	FrameRetries int `json:"frame_retries"`
	// Instruction is the natural-language task given to the policy.
	Instruction string `json:"instruction"`
	// Camera is the fixed viewpoint frames are rendered from.
	Camera render.CameraPose `json:"camera"`
	// StopOnSuccess ends the episode as soon as the rubric passes.
	StopOnSuccess bool `json:"stop_on_success"`
}

// DefaultRunnerConfig returns conservative episode settings.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		MaxSteps:      200,
		FrameRetries:  0,
		StopOnSuccess: true,
	}
}

// EpisodeOutcome summarizes one rollout. Err holds the failure that ended
// the episode early, if any; a truncated episode is not an error.
type EpisodeOutcome struct {
	EpisodeID       string
	Steps           int
	Progress        float64
	Success         bool
	MappingWarnings int
	Err             error
}

// Runner drives episodes over a fixed environment, pipeline, policy, and
// rubric. The optional store records episodes and step traces.
type Runner struct {
	env    Environment
	pipe   *render.Pipeline
	policy policy.Policy
	rubric *rubric.Rubric
	cfg    RunnerConfig
	store  *results.Store
}

// NewRunner wires a runner over its collaborators. store may be nil to skip
// persistence.
func NewRunner(env Environment, pipe *render.Pipeline, pol policy.Policy,
	rub *rubric.Rubric, cfg RunnerConfig, store *results.Store) *Runner {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultRunnerConfig().MaxSteps
	}
	return &Runner{env: env, pipe: pipe, policy: pol, rubric: rub, cfg: cfg, store: store}
}

// RunEpisode executes one rollout. Episode-level failures (a frame that
// never produced, a policy error, a rejected action) end the rollout and
// are reported in the outcome; the returned error is reserved for
// persistence failures.
func (r *Runner) RunEpisode(ctx context.Context, runID string, episodeIndex int) (*EpisodeOutcome, error) {
	if err := r.env.Reset(ctx); err != nil {
		return nil, fmt.Errorf("reset environment: %w", err)
	}
	r.policy.Reset()

	outcome := &EpisodeOutcome{}
	var ep *results.Episode
	if r.store != nil {
		ep = &results.Episode{RunID: runID, EpisodeIndex: episodeIndex, Instruction: r.cfg.Instruction}
		if err := r.store.InsertEpisode(ep); err != nil {
			return nil, err
		}
		outcome.EpisodeID = ep.EpisodeID
	}

	opsf("episode %d: starting (%q, max %d steps)", episodeIndex, r.cfg.Instruction, r.cfg.MaxSteps)

	for step := 0; step < r.cfg.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			outcome.Err = err
			break
		}

		frame, err := r.produceFrame(ctx)
		if err != nil {
			outcome.Err = fmt.Errorf("step %d: %w", step, err)
			break
		}
		outcome.MappingWarnings += frame.MappingWarnings

		obs := policy.Observation{
			Image:          frame.Image,
			JointPositions: r.env.JointPositions(),
			Gripper:        r.env.GripperPosition(),
			Instruction:    r.cfg.Instruction,
		}
		action, err := r.policy.Act(ctx, obs)
		if err != nil {
			outcome.Err = fmt.Errorf("step %d: policy: %w", step, err)
			break
		}
		if err := r.env.ApplyAction(action); err != nil {
			outcome.Err = fmt.Errorf("step %d: apply action: %w", step, err)
			break
		}
		outcome.Steps = step + 1

		evaln := r.score()
		outcome.Progress = evaln.Progress
		outcome.Success = evaln.Success

		if r.store != nil {
			if err := r.recordStep(ep.EpisodeID, step, frame.FrameIndex, evaln); err != nil {
				return nil, err
			}
		}
		diagf("episode %d step %d: progress %.2f", episodeIndex, step, evaln.Progress)

		if evaln.Success && r.cfg.StopOnSuccess {
			break
		}
	}

	opsf("episode %d: done (steps=%d progress=%.2f success=%v err=%v)",
		episodeIndex, outcome.Steps, outcome.Progress, outcome.Success, outcome.Err)

	if r.store != nil {
		ep.Steps = outcome.Steps
		ep.Progress = outcome.Progress
		ep.Success = outcome.Success
		ep.MappingWarnings = outcome.MappingWarnings
		if outcome.Err != nil {
			ep.Error = outcome.Err.Error()
		}
		if err := r.store.FinishEpisode(ep); err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

// Run executes count episodes under one run ID and returns their outcomes.
func (r *Runner) Run(ctx context.Context, runID string, count int) ([]*EpisodeOutcome, error) {
	outcomes := make([]*EpisodeOutcome, 0, count)
	for i := 0; i < count; i++ {
		outcome, err := r.RunEpisode(ctx, runID, i)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, outcome)
		if ctx.Err() != nil {
			break
		}
	}
	return outcomes, nil
}

// produceFrame issues one frame, re-trying within the step budget. The
// pipeline itself never retries; recovery belongs here.
func (r *Runner) produceFrame(ctx context.Context) (*render.CompositeFrame, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.FrameRetries; attempt++ {
		frame, err := r.pipe.ProduceFrame(ctx, r.cfg.Camera)
		if err == nil {
			return frame, nil
		}
		lastErr = err
		diagf("frame attempt %d failed: %v", attempt+1, err)
	}
	return nil, fmt.Errorf("produce frame: %w", lastErr)
}

// score evaluates the rubric against the environment's current state.
func (r *Runner) score() rubric.Evaluation {
	if r.rubric == nil {
		return rubric.Evaluation{}
	}
	update, err := r.env.Transforms()
	if err != nil {
		diagf("rubric state unavailable: %v", err)
		return rubric.Evaluation{}
	}
	return r.rubric.Evaluate(rubric.WorldState{
		Objects:     update,
		EndEffector: r.env.EndEffector(),
	})
}

func (r *Runner) recordStep(episodeID string, step int, frameIndex uint64, evaln rubric.Evaluation) error {
	criteria, err := json.Marshal(evaln.Results)
	if err != nil {
		criteria = nil
	}
	ee := r.env.EndEffector()
	return r.store.InsertStep(&results.StepRecord{
		EpisodeID:    episodeID,
		StepIndex:    step,
		FrameIndex:   frameIndex,
		Progress:     evaln.Progress,
		Gripper:      r.env.GripperPosition(),
		EEX:          ee.Position.X,
		EEY:          ee.Position.Y,
		EEZ:          ee.Position.Z,
		CriteriaJSON: criteria,
	})
}
