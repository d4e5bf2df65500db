package pathing

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"pathcraft.ai/internal/sim/mathx"
)

type fakeEntities struct {
	alive map[EntityID]bool
	paths map[EntityID][]mathx.Vec3
	sets  int
}

func newFakeEntities(ids ...EntityID) *fakeEntities {
	f := &fakeEntities{alive: map[EntityID]bool{}, paths: map[EntityID][]mathx.Vec3{}}
	for _, id := range ids {
		f.alive[id] = true
	}
	return f
}

func (f *fakeEntities) EntityExists(id EntityID) bool { return f.alive[id] }

func (f *fakeEntities) InstallPath(id EntityID, path []mathx.Vec3) {
	f.paths[id] = path
	f.sets++
}

// gatedQuerier holds every query until the gate for its target is opened.
type gatedQuerier struct {
	mu      sync.Mutex
	gates   map[mathx.Vec3]chan struct{}
	running atomic.Int32
	maxSeen atomic.Int32
}

func newGatedQuerier() *gatedQuerier {
	return &gatedQuerier{gates: map[mathx.Vec3]chan struct{}{}}
}

func (q *gatedQuerier) gate(target mathx.Vec3) chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	g, ok := q.gates[target]
	if !ok {
		g = make(chan struct{})
		q.gates[target] = g
	}
	return g
}

func (q *gatedQuerier) open(target mathx.Vec3) { close(q.gate(target)) }

func (q *gatedQuerier) Query(ctx context.Context, start, end mathx.Vec3, _ float64) ([]mathx.Vec3, error) {
	n := q.running.Add(1)
	defer q.running.Add(-1)
	for {
		m := q.maxSeen.Load()
		if n <= m || q.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	select {
	case <-q.gate(end):
		return []mathx.Vec3{start, end}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newTestPipeline(t *testing.T, q Querier, cfg Config, ids ...EntityID) (*Scheduler, *Resolver, *fakeEntities, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.TraceLevel)
	env := newFakeEntities(ids...)
	res := NewResolver(env, logger.WithField("component", "resolver"))
	s := NewScheduler(q, res, cfg, logger.WithField("component", "pathing"))
	t.Cleanup(s.Close)
	return s, res, env, hook
}

func waitDone(t *testing.T, tasks ...*Task) {
	t.Helper()
	for _, task := range tasks {
		select {
		case <-task.Done():
		case <-time.After(2 * time.Second):
			t.Fatalf("task owner=%s seq=%d did not finish", task.Owner, task.Seq)
		}
	}
}
