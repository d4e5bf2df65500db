// Package debugdraw keeps short-lived path overlays and renders a top-down
// view of the nav grid into a terminal.
package debugdraw

import (
	"time"

	"pathcraft.ai/internal/sim/mathx"
)

const DefaultLifetime = 4 * time.Second

// DrawPath is a polyline shown for a freshly installed path until Expires.
// Times are simulation time since the world started.
type DrawPath struct {
	Owner   string
	Points  []mathx.Vec3
	Expires time.Duration
}

// Store holds the active path draws. It is owned by the world loop goroutine.
type Store struct {
	lifetime time.Duration
	paths    []DrawPath
}

func NewStore(lifetime time.Duration) *Store {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	return &Store{lifetime: lifetime}
}

// Add records a draw starting at now. The owner's current position is
// prepended so the line starts at the entity.
func (s *Store) Add(owner string, from mathx.Vec3, path []mathx.Vec3, now time.Duration) {
	pts := make([]mathx.Vec3, 0, len(path)+1)
	pts = append(pts, from)
	pts = append(pts, path...)
	s.paths = append(s.paths, DrawPath{Owner: owner, Points: pts, Expires: now + s.lifetime})
}

// Prune drops draws that expired at or before now.
func (s *Store) Prune(now time.Duration) {
	kept := s.paths[:0]
	for _, p := range s.paths {
		if p.Expires > now {
			kept = append(kept, p)
		}
	}
	for i := len(kept); i < len(s.paths); i++ {
		s.paths[i] = DrawPath{}
	}
	s.paths = kept
}

func (s *Store) Active() []DrawPath { return s.paths }

func (s *Store) Len() int { return len(s.paths) }
