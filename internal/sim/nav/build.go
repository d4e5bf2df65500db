package nav

import (
	"pathcraft.ai/internal/sim/mathx"
	"pathcraft.ai/internal/sim/tuning"
)

// FromTuning builds the grid described by the nav section of the tuning file.
func FromTuning(t tuning.Nav) *Grid {
	obstacles := make([]Obstacle, 0, len(t.Obstacles))
	for _, o := range t.Obstacles {
		obstacles = append(obstacles, Obstacle{
			Center:      mathx.FromArray(o.Center),
			HalfExtents: mathx.FromArray(o.HalfExtents),
		})
	}
	g := NewGrid(Settings{
		CellSize:         t.CellSize,
		WorldHalfExtents: t.WorldHalfExtents,
		WorldBottomBound: t.WorldBottomBound,
		WalkableRadius:   t.WalkableRadius,
		AreaCosts:        append([]float64(nil), t.AreaCosts...),
	}, obstacles)
	for _, a := range t.Areas {
		if a.Area < 0 || a.Area > 254 {
			continue
		}
		g.PaintArea(a.Min, a.Max, uint8(a.Area))
	}
	return g
}
