package world

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"pathcraft.ai/internal/observerproto"
	"pathcraft.ai/internal/protocol"
	"pathcraft.ai/internal/sim/mathx"
	"pathcraft.ai/internal/sim/nav"
	"pathcraft.ai/internal/sim/pathing"
)

func testConfig() WorldConfig {
	return WorldConfig{
		ID:               "test",
		TickRateHz:       20,
		Speed:            10,
		ArrivalTolerance: 1.2,
		Workers:          2,
		SearchRadius:     2,
		DrawPaths:        true,
		PathLifetime:     4 * time.Second,
	}
}

func straightQuerier() pathing.Querier {
	return pathing.QueryFunc(func(_ context.Context, start, end mathx.Vec3, _ float64) ([]mathx.Vec3, error) {
		mid := start.Add(end.Sub(start).Scale(0.5))
		return []mathx.Vec3{start, mid, end}, nil
	})
}

type gate struct {
	mu    sync.Mutex
	gates map[mathx.Vec3]chan struct{}
}

func (g *gate) ch(target mathx.Vec3) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gates == nil {
		g.gates = map[mathx.Vec3]chan struct{}{}
	}
	c, ok := g.gates[target]
	if !ok {
		c = make(chan struct{})
		g.gates[target] = c
	}
	return c
}

func (g *gate) open(target mathx.Vec3) { close(g.ch(target)) }

func (g *gate) Query(ctx context.Context, start, end mathx.Vec3, _ float64) ([]mathx.Vec3, error) {
	select {
	case <-g.ch(end):
		return []mathx.Vec3{start, end}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newTestWorld(t *testing.T, navh *nav.Handle, q pathing.Querier) *World {
	t.Helper()
	w := NewWithQuerier(testConfig(), navh, q, nil)
	t.Cleanup(w.Close)
	return w
}

func join(t *testing.T, w *World, spawn mathx.Vec3, out chan []byte) pathing.EntityID {
	t.Helper()
	resp := make(chan JoinResponse, 1)
	w.StepOnce([]JoinRequest{{Name: "bot", Spawn: &spawn, Out: out, Resp: resp}}, nil, nil)
	return pathing.EntityID((<-resp).Welcome.EntityID)
}

func move(sender pathing.EntityID, target mathx.Vec3, ids ...pathing.EntityID) MoveEnvelope {
	m := protocol.MoveMsg{Type: protocol.TypeMove, ProtocolVersion: protocol.Version, ID: "M", Target: target.Array()}
	for _, id := range ids {
		m.EntityIDs = append(m.EntityIDs, string(id))
	}
	return MoveEnvelope{Sender: sender, Move: m}
}

// stepUntil steps the world until a tick resolves a path, then returns that tick's entry.
func stepUntil(t *testing.T, w *World, done func(TickLogEntry) bool) TickLogEntry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entry := w.StepOnce(nil, nil, nil)
		if done(entry) {
			return entry
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not reached by tick %d", w.CurrentTick())
	return TickLogEntry{}
}

func hasResolution(entry TickLogEntry) bool { return len(entry.Resolutions) > 0 }

func TestMoveInstallsPathWithoutStartWaypoint(t *testing.T) {
	q := pathing.QueryFunc(func(_ context.Context, start, end mathx.Vec3, _ float64) ([]mathx.Vec3, error) {
		return []mathx.Vec3{start, mathx.V(5, 0, 0), end}, nil
	})
	w := newTestWorld(t, nil, q)
	id := join(t, w, mathx.Vec3{}, nil)

	entry := w.StepOnce(nil, nil, []MoveEnvelope{move(id, mathx.V(10, 0, 0))})
	if len(entry.Moves) != 1 || entry.Moves[0].Seq != 1 {
		t.Fatalf("moves=%+v", entry.Moves)
	}
	if len(entry.Resolutions) == 0 {
		entry = stepUntil(t, w, hasResolution)
	}
	if entry.Resolutions[0].Outcome != pathing.OutcomeApplied {
		t.Fatalf("outcome=%v", entry.Resolutions[0].Outcome)
	}
	e, _ := w.Entity(id)
	want := []mathx.Vec3{mathx.V(5, 0, 0), mathx.V(10, 0, 0)}
	if len(e.Motion.Path) != 2 || e.Motion.Path[0] != want[0] || e.Motion.Path[1] != want[1] {
		t.Fatalf("path=%v want %v", e.Motion.Path, want)
	}
	if e.Motion.Velocity.Sub(mathx.V(10, 0, 0)).Len() > 1e-9 {
		t.Fatalf("velocity=%v", e.Motion.Velocity)
	}
}

func TestEntityWalksAroundWallAndStops(t *testing.T) {
	grid := nav.NewGrid(nav.Settings{CellSize: 0.5, WorldHalfExtents: 20, AreaCosts: []float64{1}}, []nav.Obstacle{
		{Center: mathx.V(5, 0, 0), HalfExtents: mathx.V(0.5, 2, 6)},
	})
	h := nav.NewHandle(grid)
	w := newTestWorld(t, h, h)
	id := join(t, w, mathx.Vec3{}, nil)
	target := mathx.V(10, 0, 0)
	w.StepOnce(nil, nil, []MoveEnvelope{move(id, target)})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		w.StepOnce(nil, nil, nil)
		e, _ := w.Entity(id)
		if e.LastOutcome == pathing.OutcomeApplied && !e.Motion.Moving() {
			if mathx.DistXZ(e.Pos, target) > 1.2 {
				t.Fatalf("stopped at %v, target %v", e.Pos, target)
			}
			if !e.Motion.Velocity.IsZero() {
				t.Fatalf("velocity not zero after arrival")
			}
			return
		}
		if e.LastOutcome != 0 && e.LastOutcome != pathing.OutcomeApplied {
			t.Fatalf("outcome=%v", e.LastOutcome)
		}
	}
	t.Fatalf("entity never arrived")
}

func TestLaterMoveSupersedesEarlierOne(t *testing.T) {
	g := &gate{}
	w := newTestWorld(t, nil, g)
	id := join(t, w, mathx.Vec3{}, nil)
	first, second := mathx.V(-40, 0, 0), mathx.V(40, 0, 0)

	w.StepOnce(nil, nil, []MoveEnvelope{move(id, first)})
	w.StepOnce(nil, nil, []MoveEnvelope{move(id, second)})

	g.open(second)
	entry := stepUntil(t, w, hasResolution)
	if r := entry.Resolutions[0]; r.Seq != 2 || r.Outcome != pathing.OutcomeApplied {
		t.Fatalf("resolution=%+v", r)
	}

	g.open(first)
	entry = stepUntil(t, w, hasResolution)
	if r := entry.Resolutions[0]; r.Seq != 1 || r.Outcome != pathing.OutcomeStale {
		t.Fatalf("resolution=%+v", r)
	}
	e, _ := w.Entity(id)
	if len(e.Motion.Path) != 1 || e.Motion.Path[0] != second {
		t.Fatalf("path=%v", e.Motion.Path)
	}
	if e.LastOutcome != pathing.OutcomeApplied {
		t.Fatalf("last outcome=%v, want the applied newer result", e.LastOutcome)
	}
}

func TestCoarseTickRateStillArrives(t *testing.T) {
	cfg := testConfig()
	cfg.TickRateHz = 1
	w := NewWithQuerier(cfg, nil, straightQuerier(), nil)
	t.Cleanup(w.Close)
	id := join(t, w, mathx.Vec3{}, nil)
	target := mathx.V(5, 0, 0)

	entry := w.StepOnce(nil, nil, []MoveEnvelope{move(id, target)})
	if len(entry.Resolutions) == 0 {
		stepUntil(t, w, hasResolution)
	}
	for i := 0; i < 10; i++ {
		w.StepOnce(nil, nil, nil)
	}
	e, _ := w.Entity(id)
	if e.Motion.Moving() || !e.Motion.Velocity.IsZero() {
		t.Fatalf("entity still moving: %+v", e.Motion)
	}
	if e.Pos != target {
		t.Fatalf("pos=%v want %v", e.Pos, target)
	}
}

func TestLeaveDiscardsInflightResult(t *testing.T) {
	g := &gate{}
	w := newTestWorld(t, nil, g)
	id := join(t, w, mathx.Vec3{}, nil)
	target := mathx.V(3, 0, 3)
	w.StepOnce(nil, nil, []MoveEnvelope{move(id, target)})

	entry := w.StepOnce(nil, []pathing.EntityID{id}, nil)
	if len(entry.Leaves) != 1 {
		t.Fatalf("leaves=%v", entry.Leaves)
	}
	g.open(target)
	entry = stepUntil(t, w, hasResolution)
	if entry.Resolutions[0].Outcome != pathing.OutcomeMissingOwner {
		t.Fatalf("outcome=%v", entry.Resolutions[0].Outcome)
	}
	if _, ok := w.Entity(id); ok {
		t.Fatalf("entity should be gone")
	}
}

func TestNoPathLeavesEntityIdle(t *testing.T) {
	q := pathing.QueryFunc(func(context.Context, mathx.Vec3, mathx.Vec3, float64) ([]mathx.Vec3, error) {
		return nil, nav.ErrNoPath
	})
	w := newTestWorld(t, nil, q)
	id := join(t, w, mathx.Vec3{}, nil)
	w.StepOnce(nil, nil, []MoveEnvelope{move(id, mathx.V(4, 0, 4))})
	entry := stepUntil(t, w, hasResolution)
	if entry.Resolutions[0].Outcome != pathing.OutcomeNoPath {
		t.Fatalf("outcome=%v", entry.Resolutions[0].Outcome)
	}
	e, _ := w.Entity(id)
	if e.Motion.Moving() || !e.Motion.Velocity.IsZero() || e.Pos != (mathx.Vec3{}) {
		t.Fatalf("entity should stay idle: %+v", e)
	}
	if w.Metrics().Outcomes["NO_PATH"] != 1 {
		t.Fatalf("outcomes=%v", w.Metrics().Outcomes)
	}
}

func readAck(t *testing.T, out chan []byte) protocol.AckMsg {
	t.Helper()
	for {
		select {
		case b := <-out:
			base, _ := protocol.DecodeBase(b)
			if base.Type != protocol.TypeAck {
				continue
			}
			var ack protocol.AckMsg
			if err := json.Unmarshal(b, &ack); err != nil {
				t.Fatalf("decode ack: %v", err)
			}
			return ack
		default:
			t.Fatalf("no ACK queued")
		}
	}
}

func TestMoveRejections(t *testing.T) {
	grid := nav.NewGrid(nav.Settings{CellSize: 1, WorldHalfExtents: 10}, nil)
	w := newTestWorld(t, nav.NewHandle(grid), straightQuerier())
	out := make(chan []byte, 16)
	id := join(t, w, mathx.Vec3{}, out)

	entry := w.StepOnce(nil, nil, []MoveEnvelope{move(id, mathx.V(50, 0, 0))})
	if ack := readAck(t, out); ack.Accepted || ack.Code != protocol.ErrInvalidTarget {
		t.Fatalf("out of bounds target: %+v", ack)
	}
	if len(entry.Moves) != 0 || len(entry.Rejected) != 1 {
		t.Fatalf("entry=%+v", entry)
	}

	w.StepOnce(nil, nil, []MoveEnvelope{move(id, mathx.V(1, 0, 1), "E999999")})
	if ack := readAck(t, out); ack.Accepted || ack.Code != protocol.ErrInvalidTarget {
		t.Fatalf("unknown entity: %+v", ack)
	}

	entry = w.StepOnce(nil, nil, []MoveEnvelope{move(id, mathx.V(1, 0, 1), id, "E999999", id)})
	if ack := readAck(t, out); !ack.Accepted {
		t.Fatalf("partially valid selection should be accepted: %+v", ack)
	}
	if len(entry.Moves) != 1 {
		t.Fatalf("duplicate selection dispatched twice: %+v", entry.Moves)
	}
}

func TestObserverReceivesGridAndTicks(t *testing.T) {
	h := nav.NewHandle(nav.NewGrid(nav.Settings{CellSize: 1, WorldHalfExtents: 4}, nil))
	w := newTestWorld(t, h, straightQuerier())
	tickOut := make(chan []byte, 8)
	dataOut := make(chan []byte, 8)
	w.handleObserverJoin(ObserverJoinRequest{SessionID: "O1", TickOut: tickOut, DataOut: dataOut, Paths: true})

	id := join(t, w, mathx.Vec3{}, nil)
	var grid observerproto.GridMsg
	if err := json.Unmarshal(<-dataOut, &grid); err != nil {
		t.Fatalf("decode grid: %v", err)
	}
	if grid.Type != observerproto.TypeGrid || grid.Cols != 8 || grid.Rows != 8 {
		t.Fatalf("grid=%+v", grid)
	}
	var tick observerproto.TickMsg
	if err := json.Unmarshal(<-tickOut, &tick); err != nil {
		t.Fatalf("decode tick: %v", err)
	}
	if len(tick.Entities) != 1 || tick.Entities[0].ID != string(id) || len(tick.Joins) != 1 {
		t.Fatalf("tick=%+v", tick)
	}

	// No resend while the surface is unchanged.
	w.StepOnce(nil, nil, nil)
	select {
	case <-dataOut:
		t.Fatalf("unexpected grid resend")
	default:
	}

	h.Update(func(g *nav.Grid) { g.SetWalkableRect([2]float64{2.5, 2.5}, [2]float64{2.5, 2.5}, false) })
	w.StepOnce(nil, nil, nil)
	if err := json.Unmarshal(<-dataOut, &grid); err != nil {
		t.Fatalf("decode grid: %v", err)
	}
	cells, err := observerproto.DecodeCells(grid)
	if err != nil {
		t.Fatalf("DecodeCells: %v", err)
	}
	if cells[6*8+6] != 0 {
		t.Fatalf("blocked cell not reflected")
	}

	w.StepOnce(nil, nil, []MoveEnvelope{move(id, mathx.V(-3, 0, -3))})
	stepUntil(t, w, hasResolution)
	var last observerproto.TickMsg
	for len(tickOut) > 0 {
		_ = json.Unmarshal(<-tickOut, &last)
	}
	if len(last.Paths) != 1 || last.Paths[0].EntityID != string(id) || last.Paths[0].ExpiresInMs <= 0 {
		t.Fatalf("debug path missing: %+v", last.Paths)
	}

	w.handleObserverLeave("O1")
	if len(w.observers) != 0 {
		t.Fatalf("observer not removed")
	}
}

type memTickLogger struct{ entries []TickLogEntry }

func (m *memTickLogger) WriteTick(e TickLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func TestTickLoggerSeesEveryTick(t *testing.T) {
	w := newTestWorld(t, nil, straightQuerier())
	l := &memTickLogger{}
	w.SetTickLogger(l)
	id := join(t, w, mathx.Vec3{}, nil)
	w.StepOnce(nil, nil, []MoveEnvelope{move(id, mathx.V(2, 0, 0))})
	w.StepOnce(nil, []pathing.EntityID{id}, nil)
	if len(l.entries) != 3 {
		t.Fatalf("entries=%d", len(l.entries))
	}
	for i, e := range l.entries {
		if e.Tick != uint64(i) {
			t.Fatalf("entry %d has tick %d", i, e.Tick)
		}
	}
	if len(l.entries[0].Joins) != 1 || len(l.entries[1].Moves) != 1 || len(l.entries[2].Leaves) != 1 {
		t.Fatalf("entries=%+v", l.entries)
	}
}

func TestRunServesJoinsUntilCancelled(t *testing.T) {
	w := NewWithQuerier(testConfig(), nil, straightQuerier(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	resp := make(chan JoinResponse, 1)
	w.Join() <- JoinRequest{Name: "runner", Resp: resp}
	select {
	case r := <-resp:
		if r.Welcome.EntityID == "" || r.Welcome.Type != protocol.TypeWelcome {
			t.Fatalf("welcome=%+v", r.Welcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("join not processed")
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}
}
