package nav

import (
	"context"
	"sync"
	"sync/atomic"

	"pathcraft.ai/internal/sim/mathx"
)

// Handle shares one Grid between concurrent queries and an occasional writer.
// Queries never wait for the writer: if the read lock is not immediately
// available they fail with ErrSnapshotUnavailable.
type Handle struct {
	mu      sync.RWMutex
	grid    *Grid
	version atomic.Uint64
}

func NewHandle(g *Grid) *Handle { return &Handle{grid: g} }

func (h *Handle) Query(ctx context.Context, start, end mathx.Vec3, radius float64) ([]mathx.Vec3, error) {
	if h == nil || !h.mu.TryRLock() {
		return nil, ErrSnapshotUnavailable
	}
	defer h.mu.RUnlock()
	if h.grid == nil {
		return nil, ErrSnapshotUnavailable
	}
	return h.grid.FindPath(ctx, start, end, radius)
}

// View runs fn under the read lock. It returns false without calling fn when
// the lock is held by a writer.
func (h *Handle) View(fn func(g *Grid)) bool {
	if h == nil || !h.mu.TryRLock() {
		return false
	}
	defer h.mu.RUnlock()
	if h.grid == nil {
		return false
	}
	fn(h.grid)
	return true
}

// Update runs fn with exclusive access to the grid.
func (h *Handle) Update(fn func(g *Grid)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.grid != nil {
		fn(h.grid)
	}
	h.version.Add(1)
}

func (h *Handle) Replace(g *Grid) {
	h.mu.Lock()
	h.grid = g
	h.mu.Unlock()
	h.version.Add(1)
}

// Version increases after every Update or Replace.
func (h *Handle) Version() uint64 { return h.version.Load() }
