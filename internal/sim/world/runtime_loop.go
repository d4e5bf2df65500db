package world

import (
	"context"
	"time"

	"pathcraft.ai/internal/sim/nav"
	"pathcraft.ai/internal/sim/pathing"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer w.scheduler.Close()

	w.log.WithField("tick_rate_hz", w.cfg.TickRateHz).Info("world loop started")

	var pendingJoins []JoinRequest
	var pendingLeaves []pathing.EntityID
	var pendingMoves []MoveEnvelope

	for {
		select {
		case <-ctx.Done():
			w.log.Info("world loop stopped")
			return ctx.Err()
		case <-w.stop:
			w.log.Info("world loop stopped")
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-w.moves:
			pendingMoves = append(pendingMoves, env)
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case req := <-w.observerSub:
			w.handleObserverSubscribe(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case <-ticker.C:
			w.stepInternal(pendingJoins, pendingLeaves, pendingMoves)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingMoves = pendingMoves[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering
// semantics as Run. It is intended for deterministic tests; the caller must not
// run Run concurrently.
func (w *World) StepOnce(joins []JoinRequest, leaves []pathing.EntityID, moves []MoveEnvelope) TickLogEntry {
	return w.stepInternal(joins, leaves, moves)
}

// Close cancels in-flight path queries. Run does this on return.
func (w *World) Close() { w.scheduler.Close() }

func (w *World) SetTickLogger(l TickLogger) { w.tickLogger = l }

func (w *World) Join() chan<- JoinRequest                           { return w.join }
func (w *World) Leave() chan<- pathing.EntityID                     { return w.leave }
func (w *World) Moves() chan<- MoveEnvelope                         { return w.moves }
func (w *World) ObserverJoin() chan<- ObserverJoinRequest           { return w.observerJoin }
func (w *World) ObserverSubscribe() chan<- ObserverSubscribeRequest { return w.observerSub }
func (w *World) ObserverLeave() chan<- string                       { return w.observerLeave }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) NavHandle() *nav.Handle { return w.nav }

func (w *World) Metrics() WorldMetrics {
	m, _ := w.metrics.Load().(WorldMetrics)
	return m
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
