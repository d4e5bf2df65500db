package pathing

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"pathcraft.ai/internal/logging"
	"pathcraft.ai/internal/sim/mathx"
	"pathcraft.ai/internal/sim/nav"
)

// Sequencer issues the per-owner request sequence numbers used for supersession.
type Sequencer interface {
	Issue(owner EntityID) uint64
}

type Config struct {
	Workers      int
	SearchRadius float64
	// MaxTaskTicks drops tasks still running after this many ticks. 0 keeps them forever.
	MaxTaskTicks uint64
}

// Scheduler dispatches path queries onto a bounded worker pool and collects
// finished ones once per tick. Dispatch and PollOnce must be called from the
// tick goroutine.
type Scheduler struct {
	cfg     Config
	querier Querier
	seq     Sequencer
	sem     *semaphore.Weighted
	log     *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	tasks []*Task
}

func NewScheduler(q Querier, seq Sequencer, cfg Config, log *logrus.Entry) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if log == nil {
		log = logging.Component(nil, "pathing")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:     cfg,
		querier: q,
		seq:     seq,
		sem:     semaphore.NewWeighted(int64(cfg.Workers)),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Dispatch starts an asynchronous query from start to req.Target. It never
// blocks; failures surface later as a completion carrying an error.
func (s *Scheduler) Dispatch(req MoveRequest, start mathx.Vec3, nowTick uint64) *Task {
	ctx, cancel := context.WithCancel(s.ctx)
	t := &Task{
		Owner:          req.Requester,
		Seq:            s.seq.Issue(req.Requester),
		Start:          start,
		Target:         req.Target,
		DispatchedTick: nowTick,
		done:           make(chan struct{}),
		cancel:         cancel,
	}
	s.tasks = append(s.tasks, t)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(t.done)
		path, err := s.run(ctx, t)
		t.result = Result{Path: path, Err: err}
	}()

	s.log.WithFields(logrus.Fields{
		"owner": t.Owner,
		"seq":   t.Seq,
		"tick":  nowTick,
	}).Trace("path query dispatched")
	return t
}

func (s *Scheduler) run(ctx context.Context, t *Task) (path []mathx.Vec3, err error) {
	defer func() {
		if r := recover(); r != nil {
			path, err = nil, fmt.Errorf("path query panic: %v", r)
		}
	}()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	path, err = s.querier.Query(ctx, t.Start, t.Target, s.cfg.SearchRadius)
	if err != nil {
		return nil, err
	}
	if len(path) == 0 {
		return nil, nav.ErrNoPath
	}
	return path, nil
}

// PollOnce checks every tracked task exactly once without blocking. Finished
// tasks are removed and returned in dispatch order.
func (s *Scheduler) PollOnce(nowTick uint64) []Completion {
	if len(s.tasks) == 0 {
		return nil
	}
	var out []Completion
	kept := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		res, ok := t.Poll()
		if !ok {
			if s.cfg.MaxTaskTicks > 0 && nowTick >= t.DispatchedTick+s.cfg.MaxTaskTicks {
				t.cancel()
				out = append(out, s.completion(t, nil, ErrExpired, nowTick))
				continue
			}
			kept = append(kept, t)
			continue
		}
		t.cancel()
		out = append(out, s.completion(t, res.Path, res.Err, nowTick))
	}
	s.tasks = kept
	return out
}

func (s *Scheduler) completion(t *Task, path []mathx.Vec3, err error, nowTick uint64) Completion {
	return Completion{
		Owner:          t.Owner,
		Seq:            t.Seq,
		Target:         t.Target,
		Path:           path,
		Err:            err,
		DispatchedTick: t.DispatchedTick,
		CompletedTick:  nowTick,
	}
}

func (s *Scheduler) Pending() int { return len(s.tasks) }

func (s *Scheduler) PendingFor(owner EntityID) int {
	n := 0
	for _, t := range s.tasks {
		if t.Owner == owner {
			n++
		}
	}
	return n
}

// Close cancels every in-flight query and waits for the workers to exit.
func (s *Scheduler) Close() {
	s.cancel()
	s.wg.Wait()
	s.tasks = nil
}
