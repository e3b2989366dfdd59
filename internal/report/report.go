// Package report renders evaluation results as a standalone HTML page using
// go-echarts: per-episode progress bars and a per-step progress line for
// each episode of a run.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/parallax-robotics/splatview/internal/results"
)

// Generate writes an HTML report for one run to w.
func Generate(store *results.Store, runID string, w io.Writer) error {
	run, err := store.GetRun(runID)
	if err != nil {
		return err
	}
	episodes, err := store.ListEpisodes(runID)
	if err != nil {
		return err
	}
	summary, err := store.Summarize(runID)
	if err != nil {
		return err
	}

	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("Evaluation: %s", run.Task)
	page.AddCharts(progressBar(run, summary, episodes))

	for _, ep := range episodes {
		steps, err := store.ListSteps(ep.EpisodeID)
		if err != nil {
			return err
		}
		if len(steps) > 0 {
			page.AddCharts(stepLine(ep, steps))
		}
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

// GenerateFile writes the report to a file.
func GenerateFile(store *results.Store, runID, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()
	return Generate(store, runID, f)
}

// progressBar charts final progress per episode, colored by outcome.
func progressBar(run *results.Run, summary *results.RunSummary, episodes []*results.Episode) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("Run %s: %s", shortID(run.RunID), run.Task),
			Subtitle: fmt.Sprintf("episodes=%d success_rate=%.0f%% mean_progress=%.2f mask_mode=%s",
				summary.Episodes, summary.SuccessRate*100, summary.MeanProgress, run.MaskMode),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "progress"}),
	)

	labels := make([]string, len(episodes))
	data := make([]opts.BarData, len(episodes))
	for i, ep := range episodes {
		labels[i] = fmt.Sprintf("ep %d", ep.EpisodeIndex)
		color := "#d62728"
		if ep.Success {
			color = "#2ca02c"
		}
		data[i] = opts.BarData{
			Value:     ep.Progress,
			ItemStyle: &opts.ItemStyle{Color: color},
		}
	}
	bar.SetXAxis(labels)
	bar.AddSeries("final progress", data)
	return bar
}

// stepLine charts rubric progress over an episode's control steps.
func stepLine(ep *results.Episode, steps []*results.StepRecord) *charts.Line {
	line := charts.NewLine()
	outcome := "failure"
	if ep.Success {
		outcome = "success"
	}
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "300px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Episode %d (%s)", ep.EpisodeIndex, outcome),
			Subtitle: fmt.Sprintf("%q, %d steps, %d mapping warnings", ep.Instruction, ep.Steps, ep.MappingWarnings),
		}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "progress"}),
	)

	labels := make([]string, len(steps))
	data := make([]opts.LineData, len(steps))
	for i, st := range steps {
		labels[i] = fmt.Sprintf("%d", st.StepIndex)
		data[i] = opts.LineData{Value: st.Progress}
	}
	line.SetXAxis(labels)
	line.AddSeries("progress", data)
	return line
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
