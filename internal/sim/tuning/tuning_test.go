package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOverridesAndDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	raw := []byte(`
tick_rate_hz: 30
motion:
  speed: 6
pathing:
  workers: 0
  max_task_ticks: 40
nav:
  cell_size: 1
  obstacles:
    - center: [-5, 0.8, -5]
      half_extents: [1.25, 1.25, 1.25]
`)
	if err := os.WriteFile(p, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.TickRateHz != 30 || tu.Motion.Speed != 6 {
		t.Fatalf("overrides not applied: %+v", tu)
	}
	if tu.Motion.ArrivalTolerance != 1.2 {
		t.Fatalf("tolerance default lost: %v", tu.Motion.ArrivalTolerance)
	}
	if tu.Pathing.Workers != 4 {
		t.Fatalf("workers should normalize to default, got %d", tu.Pathing.Workers)
	}
	if tu.Pathing.MaxTaskTicks != 40 {
		t.Fatalf("max_task_ticks=%d", tu.Pathing.MaxTaskTicks)
	}
	if len(tu.Nav.Obstacles) != 1 || tu.Nav.Obstacles[0].Center[0] != -5 {
		t.Fatalf("obstacles: %+v", tu.Nav.Obstacles)
	}
	if len(tu.Nav.AreaCosts) != 2 {
		t.Fatalf("area costs default lost: %v", tu.Nav.AreaCosts)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestLoadBadYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	_ = os.WriteFile(p, []byte("motion: [1,2"), 0o644)
	if _, err := Load(p); err == nil {
		t.Fatalf("expected parse error")
	}
}
