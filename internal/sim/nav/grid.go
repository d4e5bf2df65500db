package nav

import (
	"math"

	"pathcraft.ai/internal/sim/mathx"
)

type Settings struct {
	CellSize         float64
	WorldHalfExtents float64
	WorldBottomBound float64
	// WalkableRadius erodes walkable space around obstacles, in cells.
	WalkableRadius int
	// AreaCosts multiplies the traversal cost of a cell by its area id.
	AreaCosts []float64
}

type Obstacle struct {
	Center      mathx.Vec3
	HalfExtents mathx.Vec3
}

// Grid is a walkable-cell surface on the XZ plane. It is read by path queries
// and mutated only through Handle.Update.
type Grid struct {
	Settings Settings
	Cols     int
	Rows     int
	// Origin is the min corner on X/Z; Origin.Y is the surface height.
	Origin   mathx.Vec3
	Walkable []bool
	Area     []uint8
}

func NewGrid(s Settings, obstacles []Obstacle) *Grid {
	if s.CellSize <= 0 {
		s.CellSize = 1
	}
	if s.WorldHalfExtents <= 0 {
		s.WorldHalfExtents = 50
	}
	if len(s.AreaCosts) == 0 {
		s.AreaCosts = []float64{1}
	}
	n := int(math.Ceil(2 * s.WorldHalfExtents / s.CellSize))
	if n <= 0 {
		n = 1
	}
	g := &Grid{
		Settings: s,
		Cols:     n,
		Rows:     n,
		Origin:   mathx.V(-s.WorldHalfExtents, 0, -s.WorldHalfExtents),
		Walkable: make([]bool, n*n),
		Area:     make([]uint8, n*n),
	}
	for i := range g.Walkable {
		g.Walkable[i] = true
	}
	for _, o := range obstacles {
		g.blockBox(o)
	}
	return g
}

func (g *Grid) blockBox(o Obstacle) {
	// Boxes entirely below the world floor don't touch the surface.
	if o.Center.Y+o.HalfExtents.Y < g.Settings.WorldBottomBound {
		return
	}
	pad := float64(g.Settings.WalkableRadius) * g.Settings.CellSize
	minX, maxX := o.Center.X-o.HalfExtents.X-pad, o.Center.X+o.HalfExtents.X+pad
	minZ, maxZ := o.Center.Z-o.HalfExtents.Z-pad, o.Center.Z+o.HalfExtents.Z+pad
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			c := g.CellCenter(col, row)
			if c.X >= minX && c.X <= maxX && c.Z >= minZ && c.Z <= maxZ {
				g.Walkable[g.index(col, row)] = false
			}
		}
	}
}

// PaintArea assigns an area id to every cell whose center lies in [min,max] on XZ.
func (g *Grid) PaintArea(min, max [2]float64, area uint8) {
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			c := g.CellCenter(col, row)
			if c.X >= min[0] && c.X <= max[0] && c.Z >= min[1] && c.Z <= max[1] {
				g.Area[g.index(col, row)] = area
			}
		}
	}
}

func (g *Grid) index(col, row int) int { return row*g.Cols + col }

func (g *Grid) InBounds(col, row int) bool {
	return g != nil && col >= 0 && row >= 0 && col < g.Cols && row < g.Rows
}

func (g *Grid) IsWalkable(col, row int) bool {
	if !g.InBounds(col, row) {
		return false
	}
	return g.Walkable[g.index(col, row)]
}

func (g *Grid) CellCenter(col, row int) mathx.Vec3 {
	return mathx.V(
		g.Origin.X+(float64(col)+0.5)*g.Settings.CellSize,
		g.Origin.Y,
		g.Origin.Z+(float64(row)+0.5)*g.Settings.CellSize,
	)
}

// Locate maps a world point to its cell.
func (g *Grid) Locate(p mathx.Vec3) (col, row int, ok bool) {
	if g == nil || g.Cols == 0 || g.Rows == 0 {
		return 0, 0, false
	}
	col = int(math.Floor((p.X - g.Origin.X) / g.Settings.CellSize))
	row = int(math.Floor((p.Z - g.Origin.Z) / g.Settings.CellSize))
	if !g.InBounds(col, row) {
		return 0, 0, false
	}
	return col, row, true
}

func (g *Grid) Contains(p mathx.Vec3) bool {
	_, _, ok := g.Locate(p)
	return ok
}

// SetWalkableRect toggles every cell whose center lies in [min,max] on XZ and
// returns how many cells changed.
func (g *Grid) SetWalkableRect(min, max [2]float64, walkable bool) int {
	changed := 0
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			c := g.CellCenter(col, row)
			if c.X < min[0] || c.X > max[0] || c.Z < min[1] || c.Z > max[1] {
				continue
			}
			idx := g.index(col, row)
			if g.Walkable[idx] != walkable {
				g.Walkable[idx] = walkable
				changed++
			}
		}
	}
	return changed
}

// Cells encodes the grid one byte per cell, row-major: 0 is blocked, n > 0 is
// walkable with area id n-1.
func (g *Grid) Cells() []byte {
	out := make([]byte, len(g.Walkable))
	for i, ok := range g.Walkable {
		if ok {
			out[i] = g.Area[i] + 1
		}
	}
	return out
}

func (g *Grid) areaCost(idx int) float64 {
	a := int(g.Area[idx])
	if a < len(g.Settings.AreaCosts) && g.Settings.AreaCosts[a] > 0 {
		return g.Settings.AreaCosts[a]
	}
	return 1
}

func (g *Grid) minAreaCost() float64 {
	m := 1.0
	for _, c := range g.Settings.AreaCosts {
		if c > 0 && c < m {
			m = c
		}
	}
	return m
}

// closestWalkable searches breadth-first for a walkable cell within maxSteps rings.
func (g *Grid) closestWalkable(col, row, maxSteps int) (int, int, bool) {
	if !g.InBounds(col, row) {
		return 0, 0, false
	}
	if g.IsWalkable(col, row) {
		return col, row, true
	}
	type node struct{ col, row, depth int }
	visited := map[int]struct{}{g.index(col, row): {}}
	queue := []node{{col, row, 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if g.IsWalkable(cur.col, cur.row) {
			return cur.col, cur.row, true
		}
		if cur.depth >= maxSteps {
			continue
		}
		for _, d := range neighborOffsets {
			nc, nr := cur.col+d.col, cur.row+d.row
			if !g.InBounds(nc, nr) {
				continue
			}
			idx := g.index(nc, nr)
			if _, seen := visited[idx]; seen {
				continue
			}
			visited[idx] = struct{}{}
			queue = append(queue, node{nc, nr, cur.depth + 1})
		}
	}
	return 0, 0, false
}
