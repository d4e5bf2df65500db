package pathing

import (
	"context"

	"pathcraft.ai/internal/sim/mathx"
)

// Task is one in-flight path query. Its result is written once by the worker
// goroutine before done is closed; the tick goroutine reads it only after done.
type Task struct {
	Owner          EntityID
	Seq            uint64
	Start          mathx.Vec3
	Target         mathx.Vec3
	DispatchedTick uint64

	done   chan struct{}
	cancel context.CancelFunc
	result Result
}

// Result is the outcome of a query: a path, or an error explaining why there is none.
type Result struct {
	Path []mathx.Vec3
	Err  error
}

func (t *Task) Done() <-chan struct{} { return t.done }

// Poll checks once, without blocking, whether the query finished.
func (t *Task) Poll() (Result, bool) {
	select {
	case <-t.done:
		return t.result, true
	default:
		return Result{}, false
	}
}
