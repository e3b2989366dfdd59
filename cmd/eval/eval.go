package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/parallax-robotics/splatview/internal/config"
	"github.com/parallax-robotics/splatview/internal/eval"
	"github.com/parallax-robotics/splatview/internal/policy"
	"github.com/parallax-robotics/splatview/internal/render"
	"github.com/parallax-robotics/splatview/internal/render/monitor"
	"github.com/parallax-robotics/splatview/internal/results"
	"github.com/parallax-robotics/splatview/internal/sim"
	"github.com/parallax-robotics/splatview/internal/splat"
	"github.com/parallax-robotics/splatview/internal/version"
)

var (
	configPath = flag.String("config", "", "Path to eval config JSON (flags override)")
	taskName   = flag.String("task", "", "Task to evaluate (reach, lift, place)")
	episodes   = flag.Int("episodes", 0, "Number of episodes to run")
	policyURL  = flag.String("policy-url", "", "Policy server websocket URL (empty: built-in scripted policy)")
	splatURL   = flag.String("splat-url", "", "Splat backend websocket URL (empty: built-in synthetic renderer)")
	dbFile     = flag.String("db", "", "Path to the SQLite results database (empty: no persistence)")
	plotDir    = flag.String("plot-dir", "", "Directory for mask coverage plots (empty: disabled)")
	idMapFile  = flag.String("identity-map", "", "Path to identity map JSON (empty: built-in scene map)")
	verbose    = flag.Bool("verbose", false, "Enable diagnostic logging")
)

func main() {
	flag.Parse()

	cfg := config.EmptyEvalConfig()
	if *configPath != "" {
		loaded, err := config.LoadEvalConfig(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}
	applyFlagOverrides(cfg)

	if *verbose {
		render.SetLogWriters(os.Stderr, os.Stderr, nil)
		eval.SetLogWriters(os.Stderr, os.Stderr)
	}
	log.Printf("splatview eval %s", version.String())

	if err := run(cfg); err != nil {
		log.Fatalf("eval: %v", err)
	}
}

func applyFlagOverrides(cfg *config.EvalConfig) {
	if *taskName != "" {
		cfg.Task = taskName
	}
	if *episodes > 0 {
		cfg.Episodes = episodes
	}
	if *policyURL != "" {
		cfg.PolicyURL = policyURL
	}
	if *splatURL != "" {
		cfg.SplatURL = splatURL
	}
	if *dbFile != "" {
		cfg.ResultsDB = dbFile
	}
	if *plotDir != "" {
		cfg.PlotDir = plotDir
	}
	if *idMapFile != "" {
		cfg.IdentityMapPath = idMapFile
	}
}

func run(cfg *config.EvalConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	task, err := eval.LookupTask(cfg.GetTask())
	if err != nil {
		return err
	}
	instruction := cfg.GetInstruction()
	if cfg.Instruction == nil {
		instruction = task.Instruction
	}

	// Physics environment
	oracleCfg := sim.DefaultOracleConfig()
	oracleCfg.Width = cfg.GetWidth()
	oracleCfg.Height = cfg.GetHeight()
	env := sim.NewScriptedOracle(oracleCfg)

	// Splat backend
	var splatRenderer render.SplatRenderer
	if url := cfg.GetSplatURL(); url != "" {
		client, err := splat.Dial(splat.ClientConfig{URL: url, RequestTimeout: cfg.GetSplatRequestTimeout()})
		if err != nil {
			return err
		}
		defer client.Close()
		splatRenderer = client
		log.Printf("splat backend: %s", url)
	} else {
		synthCfg := splat.DefaultSyntheticConfig()
		synthCfg.Width = cfg.GetWidth()
		synthCfg.Height = cfg.GetHeight()
		splatRenderer = splat.NewSynthetic(synthCfg)
		log.Printf("splat backend: built-in synthetic renderer")
	}

	// Identity map
	ids, err := loadIdentityMap(cfg.GetIdentityMapPath())
	if err != nil {
		return err
	}

	// Mask coverage monitoring
	maskMon := monitor.NewMaskMonitor()
	if dir := cfg.GetPlotDir(); dir != "" {
		if err := maskMon.Start(monitor.MakePlotOutputDir(dir, cfg.GetTask())); err != nil {
			return err
		}
		defer func() {
			if n, err := maskMon.GeneratePlots(); err != nil {
				log.Printf("plot generation failed: %v", err)
			} else if n > 0 {
				log.Printf("wrote %d plots", n)
			}
		}()
	}

	pipeCfg := render.PipelineConfig{
		MaskMode:     render.MaskMode(cfg.GetMaskMode()),
		Width:        cfg.GetWidth(),
		Height:       cfg.GetHeight(),
		MaskObserver: maskMon.Sample,
	}
	pipe := render.NewPipeline(env, splatRenderer, ids, pipeCfg)

	// Policy
	var pol policy.Policy
	if url := cfg.GetPolicyURL(); url != "" {
		client, err := policy.Dial(policy.ClientConfig{
			URL:             url,
			RequestTimeout:  cfg.GetPolicyTimeout(),
			ImageWidth:      cfg.GetPolicyImageSize(),
			ImageHeight:     cfg.GetPolicyImageSize(),
			OpenLoopHorizon: cfg.GetOpenLoopHorizon(),
			BinarizeGripper: cfg.GetBinarizeGripper(),
		})
		if err != nil {
			return err
		}
		defer client.Close()
		pol = client
		log.Printf("policy server: %s (%s)", url, client.ServerName())
	} else {
		pol, err = policy.NewScripted(defaultScript())
		if err != nil {
			return err
		}
		log.Printf("policy: built-in scripted policy")
	}

	// Results persistence
	var store *results.Store
	var runID string
	if path := cfg.GetResultsDB(); path != "" {
		db, err := results.Open(path)
		if err != nil {
			return err
		}
		defer db.Close()
		store = results.NewStore(db)
		runRow := &results.Run{
			Task:      cfg.GetTask(),
			PolicyURL: cfg.GetPolicyURL(),
			MaskMode:  cfg.GetMaskMode(),
		}
		if err := store.InsertRun(runRow); err != nil {
			return err
		}
		runID = runRow.RunID
		log.Printf("recording run %s to %s", runID, path)
	}

	runnerCfg := eval.RunnerConfig{
		MaxSteps:      cfg.GetMaxSteps(),
		FrameRetries:  cfg.GetFrameRetries(),
		Instruction:   instruction,
		Camera:        defaultCamera(),
		StopOnSuccess: cfg.GetStopOnSuccess(),
	}
	runner := eval.NewRunner(env, pipe, pol, task.Rubric, runnerCfg, store)

	outcomes, err := runner.Run(ctx, runID, cfg.GetEpisodes())
	if err != nil {
		return err
	}

	successes := 0
	var meanProgress float64
	for _, o := range outcomes {
		if o.Success {
			successes++
		}
		meanProgress += o.Progress
	}
	if len(outcomes) > 0 {
		meanProgress /= float64(len(outcomes))
	}
	stats := pipe.Stats()
	fmt.Printf("task=%s episodes=%d successes=%d success_rate=%.1f%% mean_progress=%.2f\n",
		cfg.GetTask(), len(outcomes), successes,
		100*float64(successes)/float64(max(len(outcomes), 1)), meanProgress)
	fmt.Printf("frames: produced=%d errored=%d mapping_warnings=%d\n",
		stats.FramesProduced, stats.FramesErrored, stats.MappingWarnings)
	if runID != "" {
		fmt.Printf("run_id=%s\n", runID)
	}
	return nil
}

// loadIdentityMap reads the sim-to-splat name map, falling back to the
// built-in scene. The robot gripper stays unmapped: the splat scene has no
// gripper reconstruction, so its transforms are skipped with a warning.
func loadIdentityMap(path string) (*render.IdentityMap, error) {
	if path != "" {
		return render.LoadIdentityMap(path)
	}
	return render.NewIdentityMap(map[render.ObjectIdentity]render.ObjectIdentity{
		"cup":  "splat/cup",
		"tray": "splat/tray",
	})
}

// defaultCamera looks down at the table from 1 m above.
func defaultCamera() render.CameraPose {
	pose := render.IdentityPose()
	pose.Position.X = 0.45
	pose.Position.Z = 1.0
	pose.Orientation.Real = 0
	pose.Orientation.Imag = 1
	return pose
}

// defaultScript sweeps the arm toward the cup and closes the gripper. It
// exercises the full loop without an inference server.
func defaultScript() []policy.Waypoint {
	return []policy.Waypoint{
		{Joints: [7]float64{0.41, 0.41, -1.2, 0, 0, 0, 0}, Gripper: 0, Tolerance: 0.05},
		{Joints: [7]float64{0.41, 0.41, -1.57, 0, 0, 0, 0}, Gripper: 1, Tolerance: 0.05},
		{Joints: [7]float64{0.41, 0.41, 0, 0, 0, 0, 0}, Gripper: 1, Tolerance: 0.05},
	}
}
