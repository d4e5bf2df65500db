package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pathcraft.ai/internal/logging"
	"pathcraft.ai/internal/protocol"
	"pathcraft.ai/internal/sim/nav"
	"pathcraft.ai/internal/sim/tuning"
	"pathcraft.ai/internal/sim/world"
)

type recordedNavFile struct {
	path    string
	tick    uint64
	blocked int
}

type fakeRecorder struct{ got []recordedNavFile }

func (f *fakeRecorder) RecordNavFile(path string, tick uint64, cols, rows, blocked int) {
	f.got = append(f.got, recordedNavFile{path: path, tick: tick, blocked: blocked})
}

func TestNavSaveThenLoadLatest(t *testing.T) {
	worldDir := t.TempDir()
	g := nav.NewGrid(nav.Settings{CellSize: 1, WorldHalfExtents: 5}, nil)
	g.SetWalkableRect([2]float64{-1, -1}, [2]float64{1, 1}, false)
	w := world.New(world.WorldConfig{ID: "w1", TickRateHz: 20}, nav.NewHandle(g), nil)
	defer w.Close()
	w.StepOnce(nil, nil, nil)
	w.StepOnce(nil, nil, nil)

	rec := &fakeRecorder{}
	h := navSaveHandler(w, worldDir, rec, logging.Component(nil, "test"))

	req := httptest.NewRequest(http.MethodPost, "/admin/v1/nav/save", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rr := httptest.NewRecorder()
	h(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if len(rec.got) != 1 || rec.got[0].tick != 2 || rec.got[0].blocked != 4 {
		t.Fatalf("recorded=%+v", rec.got)
	}

	latest := latestNavFile(worldDir)
	if filepath.Base(latest) != "2.nav.zst" {
		t.Fatalf("latest=%q", latest)
	}
	back, err := loadGrid("", true, worldDir, tuning.Defaults(), logging.Component(nil, "test"))
	if err != nil {
		t.Fatalf("loadGrid: %v", err)
	}
	if !bytes.Equal(back.Cells(), g.Cells()) {
		t.Fatalf("loaded grid differs from saved grid")
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/v1/nav/save", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rr = httptest.NewRecorder()
	h(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("remote save status=%d", rr.Code)
	}
}

func TestNavLoadReplacesLiveGrid(t *testing.T) {
	worldDir := t.TempDir()
	g := nav.NewGrid(nav.Settings{CellSize: 1, WorldHalfExtents: 5}, nil)
	g.SetWalkableRect([2]float64{-1, -1}, [2]float64{1, 1}, false)
	saved := g.Cells()
	h := nav.NewHandle(g)
	w := world.New(world.WorldConfig{ID: "w1", TickRateHz: 20}, h, nil)
	defer w.Close()
	logger := logging.Component(nil, "test")

	post := func(handler http.HandlerFunc, target, remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, target, nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		handler(rr, req)
		return rr
	}
	load := navLoadHandler(w, worldDir, logger)

	if rr := post(load, "/admin/v1/nav/load", "127.0.0.1:5555"); rr.Code != http.StatusNotFound {
		t.Fatalf("load without saved grid: status=%d", rr.Code)
	}
	if rr := post(navSaveHandler(w, worldDir, nil, logger), "/admin/v1/nav/save", "127.0.0.1:5555"); rr.Code != http.StatusOK {
		t.Fatalf("save status=%d body=%s", rr.Code, rr.Body.String())
	}

	h.Update(func(g *nav.Grid) { g.SetWalkableRect([2]float64{-5, -5}, [2]float64{5, 5}, false) })
	before := h.Version()

	rr := post(load, "/admin/v1/nav/load", "127.0.0.1:5555")
	if rr.Code != http.StatusOK {
		t.Fatalf("load status=%d body=%s", rr.Code, rr.Body.String())
	}
	if h.Version() <= before {
		t.Fatalf("version not bumped: %d", h.Version())
	}
	var live []byte
	h.View(func(g *nav.Grid) { live = g.Cells() })
	if !bytes.Equal(live, saved) {
		t.Fatalf("live grid does not match the saved one")
	}

	if rr := post(load, "/admin/v1/nav/load?tick=99", "127.0.0.1:5555"); rr.Code != http.StatusNotFound {
		t.Fatalf("missing tick: status=%d", rr.Code)
	}
	if rr := post(load, "/admin/v1/nav/load?tick=x", "127.0.0.1:5555"); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad tick: status=%d", rr.Code)
	}
	if rr := post(load, "/admin/v1/nav/load", "10.1.2.3:5555"); rr.Code != http.StatusForbidden {
		t.Fatalf("remote load: status=%d", rr.Code)
	}
}

func TestLoadGridFallsBackToTuning(t *testing.T) {
	tune := tuning.Defaults()
	tune.Nav.CellSize = 1
	tune.Nav.WorldHalfExtents = 4
	g, err := loadGrid("", true, t.TempDir(), tune, logging.Component(nil, "test"))
	if err != nil {
		t.Fatalf("loadGrid: %v", err)
	}
	if g.Cols != 8 || g.Rows != 8 {
		t.Fatalf("size=%dx%d", g.Cols, g.Rows)
	}
	if _, err := loadGrid(filepath.Join(t.TempDir(), "missing.nav.zst"), false, "", tune, logging.Component(nil, "test")); err == nil {
		t.Fatalf("expected error for missing nav file")
	}
}

func TestWriteMetrics(t *testing.T) {
	var buf bytes.Buffer
	writeMetrics(&buf, "w1", 7, world.WorldMetrics{
		Entities: 3,
		Outcomes: map[string]int64{"STALE": 1, "APPLIED": 4},
	})
	out := buf.String()
	for _, want := range []string{
		`pathcraft_world_tick{world="w1"} 7`,
		`pathcraft_world_entities{world="w1"} 3`,
		`pathcraft_path_resolutions_total{world="w1",outcome="APPLIED"} 4`,
		`pathcraft_path_resolutions_total{world="w1",outcome="STALE"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, `outcome="APPLIED"`) > strings.Index(out, `outcome="STALE"`) {
		t.Fatalf("outcomes not sorted")
	}
}

func TestWriteSchemas(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "schemas")
	if err := writeSchemas(dir); err != nil {
		t.Fatalf("writeSchemas: %v", err)
	}
	for _, typ := range protocol.MessageTypes() {
		if _, err := os.Stat(filepath.Join(dir, protocol.SchemaFileName(typ))); err != nil {
			t.Fatalf("schema for %s: %v", typ, err)
		}
	}
}
