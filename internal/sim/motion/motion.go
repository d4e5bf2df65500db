// Package motion turns an entity's waypoint path into a per-tick velocity.
package motion

import (
	"pathcraft.ai/internal/sim/mathx"
)

const (
	DefaultSpeed     = 10.0
	DefaultTolerance = 1.2
)

// State is the per-entity movement state. Velocity is non-zero only while
// Path is non-empty.
type State struct {
	Path     []mathx.Vec3 `json:"path,omitempty"`
	Velocity mathx.Vec3   `json:"velocity"`
}

func (s *State) Moving() bool { return len(s.Path) > 0 }

// SetPath replaces the current path wholesale.
func (s *State) SetPath(path []mathx.Vec3) {
	s.Path = path
	if len(path) == 0 {
		s.Velocity = mathx.Vec3{}
	}
}

func (s *State) advance() {
	s.Velocity = mathx.Vec3{}
	s.Path = s.Path[1:]
	if len(s.Path) == 0 {
		s.Path = nil
	}
}

type Controller struct {
	Speed     float64
	Tolerance float64
}

func NewController(speed, tolerance float64) Controller {
	if speed <= 0 {
		speed = DefaultSpeed
	}
	if tolerance < 0 {
		tolerance = DefaultTolerance
	}
	return Controller{Speed: speed, Tolerance: tolerance}
}

// Step advances s by one tick for an entity at pos. It returns true when a
// waypoint was reached this tick.
//
// Arrival is decided on the XZ plane so a waypoint at a different height still
// counts. At most one waypoint is consumed per tick; reaching one leaves the
// entity stopped for that tick.
func (c Controller) Step(pos mathx.Vec3, s *State) bool {
	if len(s.Path) == 0 {
		s.Velocity = mathx.Vec3{}
		return false
	}
	next := s.Path[0]
	if mathx.DistXZ(pos, next) <= c.Tolerance {
		s.advance()
		return true
	}
	dir, ok := next.Sub(pos).Normalize()
	if !ok {
		s.advance()
		return true
	}
	dir.Y = 0
	s.Velocity = dir.Scale(c.Speed)
	return false
}

// Integrate moves pos by one tick of s.Velocity. The planar step never carries
// the entity past the current waypoint; a step that would lands on it instead.
func (c Controller) Integrate(pos mathx.Vec3, s *State, dt float64) mathx.Vec3 {
	if s.Velocity.IsZero() || dt <= 0 {
		return pos
	}
	step := s.Velocity.Scale(dt)
	if len(s.Path) == 0 {
		return pos.Add(step)
	}
	next := s.Path[0]
	if step.LenXZ() >= mathx.DistXZ(pos, next) {
		return mathx.V(next.X, pos.Y+step.Y, next.Z)
	}
	return pos.Add(step)
}
