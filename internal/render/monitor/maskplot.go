// Package monitor records per-frame compositing telemetry for visualization.
// It samples mask coverage and mapping warnings each frame, accumulating time
// series that can be plotted after a run to spot drift between the physics
// scene and the splat scene.
package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parallax-robotics/splatview/internal/render"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// MaskMonitor records ownership-mask statistics over the frames of a run.
type MaskMonitor struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string

	samples []MaskSample
}

// MaskSample is one frame's compositing telemetry.
type MaskSample struct {
	FrameIndex      uint64
	Timestamp       time.Time
	Coverage        float64 // fraction of pixels owned by the foreground
	MappingWarnings int
}

// NewMaskMonitor creates a disabled monitor; call Start to begin recording.
func NewMaskMonitor() *MaskMonitor {
	return &MaskMonitor{}
}

// Start initializes the monitor for a new run.
// outputDir should be a timestamped directory (e.g. "plots/run-001/20260828_101500").
func (m *MaskMonitor) Start(outputDir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	m.outputDir = outputDir
	m.enabled = true
	m.samples = nil
	return nil
}

// Stop disables sampling. Call GeneratePlots() to produce output files.
func (m *MaskMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// IsEnabled returns true if the monitor is currently recording.
func (m *MaskMonitor) IsEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Sample captures one frame's mask statistics. Call once per composited frame.
func (m *MaskMonitor) Sample(frameIndex uint64, mask *render.OwnershipMask, mappingWarnings int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled || mask == nil {
		return
	}
	m.samples = append(m.samples, MaskSample{
		FrameIndex:      frameIndex,
		Timestamp:       time.Now(),
		Coverage:        mask.Coverage(),
		MappingWarnings: mappingWarnings,
	})
}

// SampleCount returns the number of samples collected.
func (m *MaskMonitor) SampleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples)
}

// GeneratePlots writes coverage and warning PNGs to the output directory.
// Returns the number of plots generated.
func (m *MaskMonitor) GeneratePlots() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.outputDir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}
	if len(m.samples) == 0 {
		return 0, nil
	}

	coverage := make(plotter.XYs, 0, len(m.samples))
	warnings := make(plotter.XYs, 0, len(m.samples))
	for _, s := range m.samples {
		coverage = append(coverage, plotter.XY{X: float64(s.FrameIndex), Y: s.Coverage})
		warnings = append(warnings, plotter.XY{X: float64(s.FrameIndex), Y: float64(s.MappingWarnings)})
	}

	pCov := plot.New()
	pCov.Title.Text = "Foreground Mask Coverage"
	pCov.X.Label.Text = "Frame"
	pCov.Y.Label.Text = "Owned Fraction"
	pCov.Y.Min, pCov.Y.Max = 0, 1

	covLine, err := plotter.NewLine(coverage)
	if err != nil {
		return 0, err
	}
	covLine.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	covLine.Width = vg.Points(1)
	pCov.Add(covLine)

	covFile := filepath.Join(m.outputDir, "mask_coverage.png")
	if err := pCov.Save(14*vg.Inch, 6*vg.Inch, covFile); err != nil {
		return 0, fmt.Errorf("save coverage plot: %w", err)
	}

	pWarn := plot.New()
	pWarn.Title.Text = "Mapping Warnings Per Frame"
	pWarn.X.Label.Text = "Frame"
	pWarn.Y.Label.Text = "Warnings"

	warnLine, err := plotter.NewLine(warnings)
	if err != nil {
		return 1, err
	}
	warnLine.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	warnLine.Width = vg.Points(1)
	pWarn.Add(warnLine)

	warnFile := filepath.Join(m.outputDir, "mapping_warnings.png")
	if err := pWarn.Save(14*vg.Inch, 6*vg.Inch, warnFile); err != nil {
		return 1, fmt.Errorf("save warnings plot: %w", err)
	}

	return 2, nil
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir creates a timestamped output directory path for plots:
// <baseDir>/<runName>/<timestamp>.
func MakePlotOutputDir(baseDir, runName string) string {
	ts := FormatTimestamp(time.Now())
	if runName == "" {
		runName = "run"
	}
	return filepath.Join(baseDir, runName, ts)
}
