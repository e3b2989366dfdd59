package monitor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/parallax-robotics/splatview/internal/render"
)

func TestMaskMonitorSampling(t *testing.T) {
	m := NewMaskMonitor()

	// Disabled monitor drops samples.
	mask := render.NewOwnershipMask(4, 4)
	m.Sample(1, mask, 0)
	if m.SampleCount() != 0 {
		t.Fatalf("disabled monitor recorded a sample")
	}

	if err := m.Start(t.TempDir()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	mask.Set(0, 0, 1)
	m.Sample(1, mask, 2)
	m.Sample(2, mask, 0)
	if m.SampleCount() != 2 {
		t.Fatalf("SampleCount = %d, want 2", m.SampleCount())
	}

	m.Stop()
	m.Sample(3, mask, 0)
	if m.SampleCount() != 2 {
		t.Fatalf("stopped monitor recorded a sample")
	}
}

func TestMaskMonitorGeneratePlots(t *testing.T) {
	dir := t.TempDir()
	m := NewMaskMonitor()
	if err := m.Start(dir); err != nil {
		t.Fatalf("Start: %v", err)
	}

	mask := render.NewOwnershipMask(8, 8)
	for i := uint64(1); i <= 20; i++ {
		mask.Set(int(i%8), 0, 1)
		m.Sample(i, mask, int(i%3))
	}
	m.Stop()

	n, err := m.GeneratePlots()
	if err != nil {
		t.Fatalf("GeneratePlots: %v", err)
	}
	if n != 2 {
		t.Fatalf("generated %d plots, want 2", n)
	}
	for _, name := range []string{"mask_coverage.png", "mapping_warnings.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing plot %s: %v", name, err)
		}
	}
}

func TestGeneratePlotsWithoutSamples(t *testing.T) {
	m := NewMaskMonitor()
	if err := m.Start(t.TempDir()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	n, err := m.GeneratePlots()
	if err != nil || n != 0 {
		t.Fatalf("empty run: n=%d err=%v, want 0, nil", n, err)
	}
}
