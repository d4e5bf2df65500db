package world

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"pathcraft.ai/internal/protocol"
	"pathcraft.ai/internal/sim/mathx"
	"pathcraft.ai/internal/sim/nav"
	"pathcraft.ai/internal/sim/pathing"
)

func (w *World) joinEntity(req JoinRequest) JoinResponse {
	id := w.newEntityID()
	name := req.Name
	if name == "" {
		name = string(id)
	}
	spawn := mathx.Vec3{}
	if req.Spawn != nil && w.onGrid(*req.Spawn) {
		spawn = *req.Spawn
	}
	w.entities[id] = &Entity{ID: id, Name: name, Pos: spawn}
	if req.Out != nil {
		w.clients[id] = &clientState{Out: req.Out}
	}
	w.log.WithFields(logrus.Fields{"entity": id, "name": name}).Info("entity joined")

	params := protocol.WorldParams{
		TickRateHz:       w.cfg.TickRateHz,
		Speed:            w.motion.Speed,
		ArrivalTolerance: w.motion.Tolerance,
	}
	w.nav.View(func(g *nav.Grid) {
		params.CellSize = g.Settings.CellSize
		params.WorldHalfExtents = g.Settings.WorldHalfExtents
		params.AreaCosts = append([]float64(nil), g.Settings.AreaCosts...)
	})
	return JoinResponse{Welcome: protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		EntityID:        string(id),
		Spawn:           spawn.Array(),
		WorldParams:     params,
	}}
}

// handleLeave removes the entity. Queries still in flight for it resolve as
// missing-owner results.
func (w *World) handleLeave(id pathing.EntityID) {
	delete(w.entities, id)
	delete(w.clients, id)
	w.resolver.Forget(id)
	w.log.WithField("entity", id).Info("entity left")
}

// onGrid reports whether p lies on the nav grid. It is permissive when the
// grid cannot be read right now; the query itself will fail softly instead.
func (w *World) onGrid(p mathx.Vec3) bool {
	ok := true
	w.nav.View(func(g *nav.Grid) { ok = g.Contains(p) })
	return ok
}

func (w *World) sendToClient(id pathing.EntityID, v any) {
	cl := w.clients[id]
	if cl == nil || cl.Out == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	sendLatest(cl.Out, b)
}

func (w *World) sendStates(nowTick uint64) {
	for id := range w.clients {
		e := w.entities[id]
		if e == nil {
			continue
		}
		msg := protocol.StateMsg{
			Type:            protocol.TypeState,
			ProtocolVersion: protocol.Version,
			Tick:            nowTick,
			EntityID:        string(id),
			Pos:             e.Pos.Array(),
			Velocity:        e.Motion.Velocity.Array(),
			Path:            pathToArrays(e.Motion.Path),
			Pending:         w.scheduler.PendingFor(id),
		}
		if e.LastOutcome != 0 {
			msg.LastOutcome = e.LastOutcome.String()
		}
		w.sendToClient(id, msg)
	}
}

// Entity returns a copy of the entity state. Only safe from the world loop
// goroutine or while the loop is not running.
func (w *World) Entity(id pathing.EntityID) (Entity, bool) {
	e := w.entities[id]
	if e == nil {
		return Entity{}, false
	}
	cp := *e
	cp.Motion.Path = append([]mathx.Vec3(nil), e.Motion.Path...)
	return cp, true
}
