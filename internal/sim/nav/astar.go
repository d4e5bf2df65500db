package nav

import (
	"container/heap"
	"context"
	"fmt"
	"math"

	"pathcraft.ai/internal/sim/mathx"
)

type neighbor struct {
	col      int
	row      int
	cost     float64
	diagonal bool
}

var neighborOffsets = [...]neighbor{
	{col: 0, row: -1, cost: 1},
	{col: 1, row: 0, cost: 1},
	{col: 0, row: 1, cost: 1},
	{col: -1, row: 0, cost: 1},
	{col: 1, row: -1, cost: math.Sqrt2, diagonal: true},
	{col: 1, row: 1, cost: math.Sqrt2, diagonal: true},
	{col: -1, row: 1, cost: math.Sqrt2, diagonal: true},
	{col: -1, row: -1, cost: math.Sqrt2, diagonal: true},
}

// ctxCheckEvery bounds how many expansions run between cancellation checks.
const ctxCheckEvery = 256

type cell struct{ col, row int }

type pathNode struct {
	at     cell
	g      float64
	f      float64
	index  int
	parent *pathNode
}

type pathQueue []*pathNode

func (pq pathQueue) Len() int { return len(pq) }

func (pq pathQueue) Less(i, j int) bool { return pq[i].f < pq[j].f }

func (pq pathQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *pathQueue) Push(x any) {
	item := x.(*pathNode)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *pathQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

func octile(a, b cell) float64 {
	dx := math.Abs(float64(a.col - b.col))
	dy := math.Abs(float64(a.row - b.row))
	if dx > dy {
		return dx + (math.Sqrt2-1)*dy
	}
	return dy + (math.Sqrt2-1)*dx
}

func (g *Grid) canTraverseDiagonal(cur cell, d neighbor) bool {
	if !d.diagonal {
		return true
	}
	return g.IsWalkable(cur.col+d.col, cur.row) && g.IsWalkable(cur.col, cur.row+d.row)
}

func (g *Grid) astar(ctx context.Context, start, goal cell) ([]cell, error) {
	hScale := g.minAreaCost()
	open := &pathQueue{}
	heap.Push(open, &pathNode{at: start, f: octile(start, goal) * hScale})
	gScore := map[int]float64{g.index(start.col, start.row): 0}
	closed := make(map[int]struct{})

	expansions := 0
	for open.Len() > 0 {
		expansions++
		if expansions%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		cur := heap.Pop(open).(*pathNode)
		curIdx := g.index(cur.at.col, cur.at.row)
		if _, seen := closed[curIdx]; seen {
			continue
		}
		closed[curIdx] = struct{}{}
		if cur.at == goal {
			return reconstruct(cur), nil
		}
		for _, d := range neighborOffsets {
			if !g.canTraverseDiagonal(cur.at, d) {
				continue
			}
			next := cell{cur.at.col + d.col, cur.at.row + d.row}
			if !g.IsWalkable(next.col, next.row) {
				continue
			}
			idx := g.index(next.col, next.row)
			if _, seen := closed[idx]; seen {
				continue
			}
			tentative := cur.g + d.cost*g.areaCost(idx)
			if prev, ok := gScore[idx]; ok && tentative >= prev {
				continue
			}
			gScore[idx] = tentative
			heap.Push(open, &pathNode{
				at:     next,
				g:      tentative,
				f:      tentative + octile(next, goal)*hScale,
				parent: cur,
			})
		}
	}
	return nil, ErrNoPath
}

func reconstruct(end *pathNode) []cell {
	var out []cell
	for n := end; n != nil; n = n.parent {
		out = append(out, n.at)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// FindPath computes a waypoint sequence from start to end. The first waypoint is
// always start itself. Points off the walkable surface are snapped to the nearest
// walkable cell within radius.
func (g *Grid) FindPath(ctx context.Context, start, end mathx.Vec3, radius float64) ([]mathx.Vec3, error) {
	if g == nil {
		return nil, ErrSnapshotUnavailable
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sc, sr, ok := g.Locate(start)
	if !ok {
		return nil, fmt.Errorf("start %v: %w", start.Array(), ErrOutOfBounds)
	}
	ec, er, ok := g.Locate(end)
	if !ok {
		return nil, fmt.Errorf("end %v: %w", end.Array(), ErrOutOfBounds)
	}
	steps := 0
	if radius > 0 {
		steps = int(math.Ceil(radius / g.Settings.CellSize))
	}
	sc, sr, ok = g.closestWalkable(sc, sr, steps)
	if !ok {
		return nil, fmt.Errorf("start not on surface: %w", ErrNoPath)
	}
	goal := end
	if !g.IsWalkable(ec, er) {
		ec, er, ok = g.closestWalkable(ec, er, steps)
		if !ok {
			return nil, fmt.Errorf("end not on surface: %w", ErrNoPath)
		}
		goal = g.CellCenter(ec, er)
	}

	cells, err := g.astar(ctx, cell{sc, sr}, cell{ec, er})
	if err != nil {
		return nil, err
	}

	raw := make([]mathx.Vec3, 0, len(cells)+1)
	raw = append(raw, start)
	for i := 1; i < len(cells)-1; i++ {
		raw = append(raw, g.CellCenter(cells[i].col, cells[i].row))
	}
	if goal != start {
		raw = append(raw, goal)
	}
	return g.pull(raw), nil
}

// pull drops waypoints that are reachable in a straight line from an earlier one.
func (g *Grid) pull(points []mathx.Vec3) []mathx.Vec3 {
	if len(points) <= 2 {
		return points
	}
	out := []mathx.Vec3{points[0]}
	anchor := 0
	for anchor < len(points)-1 {
		next := anchor + 1
		for j := len(points) - 1; j > anchor+1; j-- {
			if g.lineOfSight(points[anchor], points[j]) {
				next = j
				break
			}
		}
		out = append(out, points[next])
		anchor = next
	}
	return out
}

// lineOfSight walks every cell the segment a-b touches on the XZ plane and
// reports whether all of them are walkable. A segment through a cell corner
// needs both cells beside the corner, as with diagonal moves.
func (g *Grid) lineOfSight(a, b mathx.Vec3) bool {
	cs := g.Settings.CellSize
	x0, z0 := (a.X-g.Origin.X)/cs, (a.Z-g.Origin.Z)/cs
	x1, z1 := (b.X-g.Origin.X)/cs, (b.Z-g.Origin.Z)/cs
	col, row := int(math.Floor(x0)), int(math.Floor(z0))
	endCol, endRow := int(math.Floor(x1)), int(math.Floor(z1))
	if !g.IsWalkable(col, row) || !g.IsWalkable(endCol, endRow) {
		return false
	}

	stepCol, tMaxX, tDeltaX := traverseAxis(x0, x1, col)
	stepRow, tMaxZ, tDeltaZ := traverseAxis(z0, z1, row)
	const eps = 1e-9
	for remaining := mathx.AbsInt(endCol-col) + mathx.AbsInt(endRow-row); remaining > 0; {
		switch {
		case tMaxX < tMaxZ-eps:
			col += stepCol
			tMaxX += tDeltaX
			remaining--
		case tMaxZ < tMaxX-eps:
			row += stepRow
			tMaxZ += tDeltaZ
			remaining--
		default:
			if !g.IsWalkable(col+stepCol, row) || !g.IsWalkable(col, row+stepRow) {
				return false
			}
			col += stepCol
			row += stepRow
			tMaxX += tDeltaX
			tMaxZ += tDeltaZ
			remaining -= 2
		}
		if !g.IsWalkable(col, row) {
			return false
		}
	}
	return true
}

// traverseAxis returns the step direction along one axis, the segment parameter
// at which the first cell boundary is crossed and the parameter width of a cell.
func traverseAxis(from, to float64, cell int) (step int, tMax, tDelta float64) {
	d := to - from
	switch {
	case d > 0:
		return 1, (float64(cell+1) - from) / d, 1 / d
	case d < 0:
		return -1, (float64(cell) - from) / d, -1 / d
	default:
		return 0, math.Inf(1), math.Inf(1)
	}
}
