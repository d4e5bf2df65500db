package debugdraw

import (
	"math"

	"github.com/gdamore/tcell/v2"

	"pathcraft.ai/internal/sim/mathx"
)

// Screen is the part of tcell.Screen the canvas draws into.
type Screen interface {
	SetContent(x, y int, primary rune, combining []rune, style tcell.Style)
	Show()
}

var (
	styleBlocked = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleFloor   = tcell.StyleDefault.Foreground(tcell.ColorDarkGreen)
	styleCheap   = tcell.StyleDefault.Foreground(tcell.ColorTeal)
	stylePath    = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	styleEntity  = tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true)
)

// Viewport maps the XZ plane onto canvas cells. Scale is world units per cell.
type Viewport struct {
	MinX, MinZ float64
	Scale      float64
}

func (v Viewport) ToCanvas(p mathx.Vec3) (int, int) {
	return int(math.Floor((p.X - v.MinX) / v.Scale)), int(math.Floor((p.Z - v.MinZ) / v.Scale))
}

func (v Viewport) ToWorld(col, row int) mathx.Vec3 {
	return mathx.V(v.MinX+(float64(col)+0.5)*v.Scale, 0, v.MinZ+(float64(row)+0.5)*v.Scale)
}

type Canvas struct {
	Cols, Rows int
	View       Viewport

	runes  []rune
	styles []tcell.Style
}

func NewCanvas(cols, rows int, view Viewport) *Canvas {
	if view.Scale <= 0 {
		view.Scale = 1
	}
	c := &Canvas{Cols: cols, Rows: rows, View: view}
	c.runes = make([]rune, cols*rows)
	c.styles = make([]tcell.Style, cols*rows)
	c.Clear()
	return c
}

func (c *Canvas) Clear() {
	for i := range c.runes {
		c.runes[i] = ' '
		c.styles[i] = tcell.StyleDefault
	}
}

func (c *Canvas) set(col, row int, r rune, st tcell.Style) {
	if col < 0 || row < 0 || col >= c.Cols || row >= c.Rows {
		return
	}
	c.runes[row*c.Cols+col] = r
	c.styles[row*c.Cols+col] = st
}

// Rune returns the rune at a canvas cell, or 0 outside the canvas.
func (c *Canvas) Rune(col, row int) rune {
	if col < 0 || row < 0 || col >= c.Cols || row >= c.Rows {
		return 0
	}
	return c.runes[row*c.Cols+col]
}

// GridLayout describes a walkability grid in CELL_U8_RM form.
type GridLayout struct {
	Cols, Rows int
	CellSize   float64
	Origin     mathx.Vec3
}

// DrawGrid samples the grid at every canvas cell center.
func (c *Canvas) DrawGrid(g GridLayout, cells []byte) {
	if g.CellSize <= 0 || len(cells) < g.Cols*g.Rows {
		return
	}
	for row := 0; row < c.Rows; row++ {
		for col := 0; col < c.Cols; col++ {
			p := c.View.ToWorld(col, row)
			gc := int(math.Floor((p.X - g.Origin.X) / g.CellSize))
			gr := int(math.Floor((p.Z - g.Origin.Z) / g.CellSize))
			if gc < 0 || gr < 0 || gc >= g.Cols || gr >= g.Rows {
				continue
			}
			switch v := cells[gr*g.Cols+gc]; {
			case v == 0:
				c.set(col, row, '#', styleBlocked)
			case v == 1:
				c.set(col, row, '.', styleFloor)
			default:
				c.set(col, row, ',', styleCheap)
			}
		}
	}
}

// DrawPath draws line segments between consecutive points with 'o' at waypoints.
func (c *Canvas) DrawPath(points []mathx.Vec3) {
	for i := 1; i < len(points); i++ {
		x0, y0 := c.View.ToCanvas(points[i-1])
		x1, y1 := c.View.ToCanvas(points[i])
		c.line(x0, y0, x1, y1)
	}
	for i, p := range points {
		if i == 0 {
			continue
		}
		x, y := c.View.ToCanvas(p)
		c.set(x, y, 'o', stylePath)
	}
}

func (c *Canvas) DrawEntity(pos mathx.Vec3, label rune) {
	x, y := c.View.ToCanvas(pos)
	c.set(x, y, label, styleEntity)
}

// line is Bresenham's algorithm over canvas cells.
func (c *Canvas) line(x0, y0, x1, y1 int) {
	dx := mathx.AbsInt(x1 - x0)
	dy := -mathx.AbsInt(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		c.set(x0, y0, '*', stylePath)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// Flush copies the canvas to the screen and shows it.
func (c *Canvas) Flush(s Screen) {
	for row := 0; row < c.Rows; row++ {
		for col := 0; col < c.Cols; col++ {
			i := row*c.Cols + col
			s.SetContent(col, row, c.runes[i], nil, c.styles[i])
		}
	}
	s.Show()
}
