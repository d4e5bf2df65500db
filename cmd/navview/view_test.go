package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"

	"pathcraft.ai/internal/observerproto"
)

func gridFrame(t *testing.T) []byte {
	t.Helper()
	cells := make([]byte, 10*10)
	for i := range cells {
		cells[i] = 1
	}
	cells[0] = 0
	b, err := json.Marshal(observerproto.GridMsg{
		Type:            observerproto.TypeGrid,
		ProtocolVersion: observerproto.Version,
		Cols:            10,
		Rows:            10,
		CellSize:        1,
		Origin:          [3]float64{-5, 0, -5},
		Encoding:        observerproto.CellEncoding,
		Data:            observerproto.EncodeCells(cells),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestApplyAndRender(t *testing.T) {
	v := &viewState{}
	if err := v.apply(gridFrame(t)); err != nil {
		t.Fatalf("apply grid: %v", err)
	}
	tick, _ := json.Marshal(observerproto.TickMsg{
		Type:     observerproto.TypeTick,
		Tick:     9,
		Entities: []observerproto.EntityState{{ID: "E000001", Pos: [3]float64{0.5, 0, 0.5}, Waypoints: 1}},
		Paths:    []observerproto.DebugPath{{EntityID: "E000001", Points: [][3]float64{{0.5, 0, 0.5}, {3.5, 0, 0.5}}}},
	})
	if err := v.apply(tick); err != nil {
		t.Fatalf("apply tick: %v", err)
	}

	c := v.render(10, 10)
	if got := c.Rune(0, 0); got != '#' {
		t.Fatalf("blocked corner=%q", got)
	}
	if got := c.Rune(5, 5); got != 'A' {
		t.Fatalf("entity cell=%q", got)
	}
	if got := c.Rune(8, 5); got != 'o' {
		t.Fatalf("path end=%q", got)
	}
	if !strings.Contains(v.status(), "tick=9 entities=1 moving=1") {
		t.Fatalf("status=%q", v.status())
	}

	screen := tcell.NewSimulationScreen("")
	if err := screen.Init(); err != nil {
		t.Fatalf("screen init: %v", err)
	}
	defer screen.Fini()
	screen.SetSize(10, 10)
	c.Flush(screen)
	if r, _, _, _ := screen.GetContent(0, 0); r != '#' {
		t.Fatalf("screen corner=%q", r)
	}
}

func TestViewportFitsGrid(t *testing.T) {
	v := &viewState{}
	if err := v.apply(gridFrame(t)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	vp := v.viewport(20, 5)
	if vp.Scale != 2 || vp.MinX != -5 || vp.MinZ != -5 {
		t.Fatalf("viewport=%+v", vp)
	}
}

func TestApplyRejectsUnknownFrame(t *testing.T) {
	v := &viewState{}
	if err := v.apply([]byte(`{"type":"NOPE"}`)); err == nil {
		t.Fatalf("expected error")
	}
	if err := v.apply([]byte(`{"type":"GRID","encoding":"RLE","cols":1,"rows":1}`)); err == nil {
		t.Fatalf("expected encoding error")
	}
}
