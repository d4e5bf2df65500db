package main

import (
	"encoding/json"
	"fmt"

	"pathcraft.ai/internal/debugdraw"
	"pathcraft.ai/internal/observerproto"
	"pathcraft.ai/internal/sim/mathx"
)

// viewState holds the latest grid and tick frames.
type viewState struct {
	grid  *observerproto.GridMsg
	cells []byte
	tick  observerproto.TickMsg
}

func (v *viewState) apply(msg []byte) error {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &base); err != nil {
		return err
	}
	switch base.Type {
	case observerproto.TypeGrid:
		var g observerproto.GridMsg
		if err := json.Unmarshal(msg, &g); err != nil {
			return err
		}
		cells, err := observerproto.DecodeCells(g)
		if err != nil {
			return err
		}
		v.grid, v.cells = &g, cells
	case observerproto.TypeTick:
		var t observerproto.TickMsg
		if err := json.Unmarshal(msg, &t); err != nil {
			return err
		}
		v.tick = t
	default:
		return fmt.Errorf("unknown frame type %q", base.Type)
	}
	return nil
}

// viewport fits the whole grid into cols x rows canvas cells.
func (v *viewState) viewport(cols, rows int) debugdraw.Viewport {
	if v.grid == nil || cols <= 0 || rows <= 0 {
		return debugdraw.Viewport{Scale: 1}
	}
	w := float64(v.grid.Cols) * v.grid.CellSize
	h := float64(v.grid.Rows) * v.grid.CellSize
	scale := w / float64(cols)
	if s := h / float64(rows); s > scale {
		scale = s
	}
	return debugdraw.Viewport{MinX: v.grid.Origin[0], MinZ: v.grid.Origin[2], Scale: scale}
}

func (v *viewState) render(cols, rows int) *debugdraw.Canvas {
	c := debugdraw.NewCanvas(cols, rows, v.viewport(cols, rows))
	if v.grid != nil {
		c.DrawGrid(debugdraw.GridLayout{
			Cols:     v.grid.Cols,
			Rows:     v.grid.Rows,
			CellSize: v.grid.CellSize,
			Origin:   mathx.FromArray(v.grid.Origin),
		}, v.cells)
	}
	for _, p := range v.tick.Paths {
		pts := make([]mathx.Vec3, len(p.Points))
		for i, a := range p.Points {
			pts[i] = mathx.FromArray(a)
		}
		c.DrawPath(pts)
	}
	for i, e := range v.tick.Entities {
		c.DrawEntity(mathx.FromArray(e.Pos), entityLabel(i))
	}
	return c
}

func (v *viewState) status() string {
	moving := 0
	for _, e := range v.tick.Entities {
		if e.Waypoints > 0 {
			moving++
		}
	}
	return fmt.Sprintf(" tick=%d entities=%d moving=%d pending=%d paths=%d  [p] paths [q] quit ",
		v.tick.Tick, len(v.tick.Entities), moving, v.tick.PendingTasks, len(v.tick.Paths))
}

func entityLabel(i int) rune { return rune('A' + i%26) }
