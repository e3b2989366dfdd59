package eval

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/parallax-robotics/splatview/internal/policy"
	"github.com/parallax-robotics/splatview/internal/render"
	"github.com/parallax-robotics/splatview/internal/results"
	"github.com/parallax-robotics/splatview/internal/rubric"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// fakeEnv is a minimal Environment: the end effector walks 0.1 m toward the
// cup on every applied action, so a Reach rubric passes after a few steps.
type fakeEnv struct {
	resets    int
	stepErrs  []error // consumed one per Step call
	applyErr  error
	applied   [][]float64
	ee        r3.Vec
	cup       r3.Vec
	width     int
	height    int
	transient error // RenderForeground fails once with this
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{
		ee:     r3.Vec{X: 0.0, Y: 0, Z: 0.3},
		cup:    r3.Vec{X: 0.5, Y: 0, Z: 0.3},
		width:  4,
		height: 4,
	}
}

func (e *fakeEnv) Reset(context.Context) error {
	e.resets++
	e.ee = r3.Vec{X: 0.0, Y: 0, Z: 0.3}
	e.applied = nil
	return nil
}

func (e *fakeEnv) Step(context.Context) error {
	if len(e.stepErrs) > 0 {
		err := e.stepErrs[0]
		e.stepErrs = e.stepErrs[1:]
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *fakeEnv) Transforms() (render.TransformUpdate, error) {
	return render.TransformUpdate{
		"cup": {Position: e.cup, Orientation: quat.Number{Real: 1}},
	}, nil
}

func (e *fakeEnv) RenderForeground(context.Context, render.CameraPose) (*render.RenderLayer, *render.OwnershipMask, error) {
	if e.transient != nil {
		err := e.transient
		e.transient = nil
		return nil, nil, err
	}
	layer := render.NewRenderLayer(e.width, e.height)
	layer.Fill(200, 50, 50)
	mask := render.NewOwnershipMask(e.width, e.height)
	mask.Set(0, 0, 1)
	return layer, mask, nil
}

func (e *fakeEnv) ApplyAction(action []float64) error {
	if e.applyErr != nil {
		return e.applyErr
	}
	e.applied = append(e.applied, action)
	if e.ee.X < e.cup.X {
		e.ee.X += 0.1
	}
	return nil
}

func (e *fakeEnv) JointPositions() []float64 { return make([]float64, 7) }
func (e *fakeEnv) GripperPosition() float64  { return 0.2 }
func (e *fakeEnv) EndEffector() render.Pose {
	return render.Pose{Position: e.ee, Orientation: quat.Number{Real: 1}}
}

type fakeSplat struct{}

func (fakeSplat) SetObjectTransform(render.ObjectIdentity, render.Pose) error { return nil }
func (fakeSplat) Render(context.Context, render.CameraPose) (*render.RenderLayer, error) {
	layer := render.NewRenderLayer(4, 4)
	layer.Fill(20, 20, 120)
	return layer, nil
}

type fakePolicy struct {
	resets int
	acts   int
	err    error
}

func (p *fakePolicy) Reset() { p.resets++ }
func (p *fakePolicy) Act(ctx context.Context, obs policy.Observation) ([]float64, error) {
	p.acts++
	if p.err != nil {
		return nil, p.err
	}
	return make([]float64, policy.ActionDims), nil
}

func reachRubric() *rubric.Rubric {
	return &rubric.Rubric{
		Task:     "reach the cup",
		Criteria: []rubric.Criterion{{Name: "reach cup", Check: rubric.Reach("cup", 0.05)}},
	}
}

func testPipeline(env Environment) *render.Pipeline {
	ids, _ := render.NewIdentityMap(map[render.ObjectIdentity]render.ObjectIdentity{
		"cup": "splat/cup",
	})
	return render.NewPipeline(env, fakeSplat{}, ids, render.DefaultPipelineConfig())
}

func TestRunEpisodeSucceedsAndStops(t *testing.T) {
	env := newFakeEnv()
	pol := &fakePolicy{}
	r := NewRunner(env, testPipeline(env), pol, reachRubric(),
		RunnerConfig{MaxSteps: 50, StopOnSuccess: true, Instruction: "reach the cup"}, nil)

	outcome, err := r.RunEpisode(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("outcome = %+v, want success", outcome)
	}
	// EE starts 0.5 m away, 0.1 m per step: reached after 5 actions.
	if outcome.Steps != 5 {
		t.Fatalf("Steps = %d, want 5", outcome.Steps)
	}
	if outcome.Err != nil {
		t.Fatalf("Err = %v, want nil", outcome.Err)
	}
	if env.resets != 1 || pol.resets != 1 {
		t.Fatalf("resets env=%d policy=%d, want 1 each", env.resets, pol.resets)
	}
}

func TestRunEpisodeTruncatesAtMaxSteps(t *testing.T) {
	env := newFakeEnv()
	env.cup.X = 100 // unreachable
	r := NewRunner(env, testPipeline(env), &fakePolicy{}, reachRubric(),
		RunnerConfig{MaxSteps: 10, StopOnSuccess: true}, nil)

	outcome, err := r.RunEpisode(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	if outcome.Success || outcome.Err != nil {
		t.Fatalf("outcome = %+v, want truncated without error", outcome)
	}
	if outcome.Steps != 10 {
		t.Fatalf("Steps = %d, want 10", outcome.Steps)
	}
}

func TestRunEpisodePolicyFailureEndsEpisode(t *testing.T) {
	env := newFakeEnv()
	pol := &fakePolicy{err: errors.New("inference server unavailable")}
	r := NewRunner(env, testPipeline(env), pol, reachRubric(),
		RunnerConfig{MaxSteps: 10}, nil)

	outcome, err := r.RunEpisode(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	if outcome.Err == nil {
		t.Fatalf("outcome.Err = nil, want policy failure")
	}
	if outcome.Steps != 0 {
		t.Fatalf("Steps = %d, want 0", outcome.Steps)
	}
}

func TestRunEpisodeFrameRetry(t *testing.T) {
	env := newFakeEnv()
	env.transient = errors.New("renderer hiccup")
	r := NewRunner(env, testPipeline(env), &fakePolicy{}, reachRubric(),
		RunnerConfig{MaxSteps: 50, FrameRetries: 1, StopOnSuccess: true}, nil)

	outcome, err := r.RunEpisode(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	if outcome.Err != nil {
		t.Fatalf("Err = %v, want recovery via retry", outcome.Err)
	}
	if !outcome.Success {
		t.Fatalf("outcome = %+v, want success after retry", outcome)
	}
}

func TestRunEpisodeFrameFailureWithoutRetry(t *testing.T) {
	env := newFakeEnv()
	env.stepErrs = []error{errors.New("solver diverged")}
	r := NewRunner(env, testPipeline(env), &fakePolicy{}, reachRubric(),
		RunnerConfig{MaxSteps: 10, FrameRetries: 0}, nil)

	outcome, err := r.RunEpisode(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	if outcome.Err == nil {
		t.Fatalf("outcome.Err = nil, want frame failure")
	}
	var stepErr *render.PhysicsStepError
	if !errors.As(outcome.Err, &stepErr) {
		t.Fatalf("outcome.Err = %v, want *PhysicsStepError", outcome.Err)
	}
}

func TestRunEpisodePersistsResults(t *testing.T) {
	db, err := results.Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	store := results.NewStore(db)

	run := &results.Run{Task: "reach the cup", MaskMode: "binary"}
	if err := store.InsertRun(run); err != nil {
		t.Fatalf("InsertRun: %v", err)
	}

	env := newFakeEnv()
	r := NewRunner(env, testPipeline(env), &fakePolicy{}, reachRubric(),
		RunnerConfig{MaxSteps: 50, StopOnSuccess: true, Instruction: "reach the cup"}, store)

	outcome, err := r.RunEpisode(context.Background(), run.RunID, 0)
	if err != nil {
		t.Fatalf("RunEpisode: %v", err)
	}
	if outcome.EpisodeID == "" {
		t.Fatalf("outcome has no episode ID with a store attached")
	}

	eps, err := store.ListEpisodes(run.RunID)
	if err != nil {
		t.Fatalf("ListEpisodes: %v", err)
	}
	if len(eps) != 1 || !eps[0].Success || eps[0].Steps != outcome.Steps {
		t.Fatalf("persisted episode = %+v, outcome = %+v", eps[0], outcome)
	}

	steps, err := store.ListSteps(outcome.EpisodeID)
	if err != nil {
		t.Fatalf("ListSteps: %v", err)
	}
	if len(steps) != outcome.Steps {
		t.Fatalf("persisted %d steps, want %d", len(steps), outcome.Steps)
	}
	last := steps[len(steps)-1]
	if last.Progress != 1.0 {
		t.Fatalf("final step progress = %v, want 1.0", last.Progress)
	}
}

func TestRunMultipleEpisodes(t *testing.T) {
	env := newFakeEnv()
	pol := &fakePolicy{}
	r := NewRunner(env, testPipeline(env), pol, reachRubric(),
		RunnerConfig{MaxSteps: 50, StopOnSuccess: true}, nil)

	outcomes, err := r.Run(context.Background(), "", 3)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	for i, o := range outcomes {
		if !o.Success {
			t.Fatalf("episode %d = %+v, want success", i, o)
		}
	}
	if env.resets != 3 || pol.resets != 3 {
		t.Fatalf("resets env=%d policy=%d, want 3 each", env.resets, pol.resets)
	}
}
