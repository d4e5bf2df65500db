package world

import (
	"encoding/json"

	"pathcraft.ai/internal/observerproto"
	"pathcraft.ai/internal/sim/nav"
)

// ObserverJoinRequest registers a read-only observer session that receives:
// - the walkability grid (dataOut), resent whenever the surface changes
// - per-tick entity and path state (tickOut)
//
// All observer state is maintained by the world loop goroutine.
type ObserverJoinRequest struct {
	SessionID string
	TickOut   chan []byte
	DataOut   chan []byte

	Paths         bool
	FocusEntityID string
}

// ObserverSubscribeRequest updates an existing observer session subscription settings.
type ObserverSubscribeRequest struct {
	SessionID     string
	Paths         bool
	FocusEntityID string
}

type observerClient struct {
	id      string
	tickOut chan []byte
	dataOut chan []byte

	paths bool
	focus string

	// needsGrid forces a GRID resend (first frame, or after a dropped one).
	needsGrid bool
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.TickOut == nil || req.DataOut == nil {
		return
	}
	if old := w.observers[req.SessionID]; old != nil {
		close(old.tickOut)
		close(old.dataOut)
	}
	w.observers[req.SessionID] = &observerClient{
		id:        req.SessionID,
		tickOut:   req.TickOut,
		dataOut:   req.DataOut,
		paths:     req.Paths,
		focus:     req.FocusEntityID,
		needsGrid: true,
	}
}

func (w *World) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := w.observers[req.SessionID]
	if c == nil {
		return
	}
	c.paths = req.Paths
	c.focus = req.FocusEntityID
}

func (w *World) handleObserverLeave(sessionID string) {
	c := w.observers[sessionID]
	if c == nil {
		return
	}
	delete(w.observers, sessionID)
	close(c.tickOut)
	close(c.dataOut)
}

func (w *World) stepObservers(nowTick uint64, joins []RecordedJoin, leaves []string, moves []RecordedMove, res []RecordedResolution) {
	if len(w.observers) == 0 {
		return
	}

	var grid []byte
	if w.nav != nil {
		version := w.nav.Version()
		changed := version != w.navVersionSent
		for _, c := range w.observers {
			if !changed && !c.needsGrid {
				continue
			}
			if grid == nil {
				grid = w.gridFrame(nowTick)
				if grid == nil {
					// Writer holds the surface; retry next tick.
					break
				}
				w.navVersionSent = version
			}
			select {
			case c.dataOut <- grid:
				c.needsGrid = false
			default:
				c.needsGrid = true
			}
		}
	}

	msg := observerproto.TickMsg{
		Type:            observerproto.TypeTick,
		ProtocolVersion: observerproto.Version,
		Tick:            nowTick,
		Entities:        w.observerEntities(),
		Leaves:          leaves,
		PendingTasks:    w.scheduler.Pending(),
	}
	for _, j := range joins {
		msg.Joins = append(msg.Joins, observerproto.JoinInfo{EntityID: j.EntityID, Name: j.Name})
	}
	for _, m := range moves {
		msg.Moves = append(msg.Moves, observerproto.MoveInfo{EntityID: m.EntityID, Seq: m.Seq, Target: m.Target})
	}
	for _, r := range res {
		msg.Resolutions = append(msg.Resolutions, observerproto.ResolutionInfo{
			EntityID: r.EntityID,
			Seq:      r.Seq,
			Outcome:  r.Outcome.String(),
			Error:    r.Error,
		})
	}
	paths := w.observerPaths(nowTick)

	for _, c := range w.observers {
		out := msg
		if c.paths {
			out.Paths = paths
		}
		if c.focus != "" {
			out.Entities = nil
			for _, e := range msg.Entities {
				if e.ID == c.focus {
					out.Entities = append(out.Entities, e)
				}
			}
		}
		b, err := json.Marshal(out)
		if err != nil {
			continue
		}
		sendLatest(c.tickOut, b)
	}
}

func (w *World) observerEntities() []observerproto.EntityState {
	out := make([]observerproto.EntityState, 0, len(w.entities))
	for _, id := range w.sortedEntityIDs() {
		e := w.entities[id]
		_, connected := w.clients[id]
		out = append(out, observerproto.EntityState{
			ID:        string(id),
			Name:      e.Name,
			Connected: connected,
			Pos:       e.Pos.Array(),
			Velocity:  e.Motion.Velocity.Array(),
			Waypoints: len(e.Motion.Path),
		})
	}
	return out
}

func (w *World) observerPaths(nowTick uint64) []observerproto.DebugPath {
	active := w.draws.Active()
	if len(active) == 0 {
		return nil
	}
	now := w.simTime(nowTick)
	out := make([]observerproto.DebugPath, 0, len(active))
	for _, p := range active {
		out = append(out, observerproto.DebugPath{
			EntityID:    p.Owner,
			Points:      pathToArrays(p.Points),
			ExpiresInMs: (p.Expires - now).Milliseconds(),
		})
	}
	return out
}

// gridFrame encodes the current grid, or returns nil if a writer holds it.
func (w *World) gridFrame(nowTick uint64) []byte {
	var msg observerproto.GridMsg
	ok := w.nav.View(func(g *nav.Grid) {
		msg = observerproto.GridMsg{
			Type:            observerproto.TypeGrid,
			ProtocolVersion: observerproto.Version,
			Tick:            nowTick,
			Cols:            g.Cols,
			Rows:            g.Rows,
			CellSize:        g.Settings.CellSize,
			Origin:          g.Origin.Array(),
			Encoding:        observerproto.CellEncoding,
			Data:            observerproto.EncodeCells(g.Cells()),
		}
	})
	if !ok {
		return nil
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	return b
}

// Bootstrap describes the world for observers. Safe to call from any goroutine.
func (w *World) Bootstrap() observerproto.BootstrapResponse {
	resp := observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		Tick:            w.CurrentTick(),
		WorldParams:     observerproto.WorldParams{TickRateHz: w.cfg.TickRateHz},
	}
	w.nav.View(func(g *nav.Grid) {
		resp.WorldParams.CellSize = g.Settings.CellSize
		resp.WorldParams.WorldHalfExtents = g.Settings.WorldHalfExtents
		resp.WorldParams.Cols = g.Cols
		resp.WorldParams.Rows = g.Rows
	})
	return resp
}
