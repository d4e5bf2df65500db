package world

import (
	"time"

	"pathcraft.ai/internal/sim/pathing"
)

func (w *World) stepInternal(joins []JoinRequest, leaves []pathing.EntityID, moves []MoveEnvelope) TickLogEntry {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	// Apply leaves and joins deterministically at tick boundary.
	recordedLeaves := make([]string, 0, len(leaves))
	for _, id := range leaves {
		if _, ok := w.entities[id]; ok {
			w.handleLeave(id)
			recordedLeaves = append(recordedLeaves, string(id))
		}
	}
	recordedJoins := make([]RecordedJoin, 0, len(joins))
	for _, req := range joins {
		resp := w.joinEntity(req)
		if req.Resp != nil {
			req.Resp <- resp
		}
		recordedJoins = append(recordedJoins, RecordedJoin{
			EntityID: resp.Welcome.EntityID,
			Name:     w.entities[pathing.EntityID(resp.Welcome.EntityID)].Name,
			Spawn:    resp.Welcome.Spawn,
		})
	}

	// Move requests in server receive order.
	recordedMoves, rejected := w.applyMoves(moves, nowTick)

	// Finished path queries, in dispatch order.
	completions := w.scheduler.PollOnce(nowTick)
	recordedRes := make([]RecordedResolution, 0, len(completions))
	for _, c := range completions {
		res := w.resolver.Resolve(c)
		if e := w.entities[c.Owner]; e != nil && c.Seq >= w.resolver.Latest(c.Owner) {
			e.LastOutcome = res.Outcome
		}
		w.outcomes[res.Outcome.String()]++
		recordedRes = append(recordedRes, RecordedResolution{
			EntityID:       string(c.Owner),
			Seq:            c.Seq,
			Outcome:        res.Outcome,
			Waypoints:      len(res.Path),
			Error:          res.Error,
			DispatchedTick: c.DispatchedTick,
		})
	}

	w.draws.Prune(w.simTime(nowTick))

	// Motion, then integration of the resulting velocity.
	dt := w.dt()
	moving := 0
	for _, id := range w.sortedEntityIDs() {
		e := w.entities[id]
		w.motion.Step(e.Pos, &e.Motion)
		e.Pos = w.motion.Integrate(e.Pos, &e.Motion, dt)
		if e.Motion.Moving() {
			moving++
		}
	}

	w.sendStates(nowTick)
	w.stepObservers(nowTick, recordedJoins, recordedLeaves, recordedMoves, recordedRes)

	entry := TickLogEntry{
		Tick:        nowTick,
		Joins:       recordedJoins,
		Leaves:      recordedLeaves,
		Moves:       recordedMoves,
		Rejected:    rejected,
		Resolutions: recordedRes,
		Pending:     w.scheduler.Pending(),
	}
	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(entry); err != nil {
			w.log.WithError(err).WithField("tick", nowTick).Error("tick log write failed")
		}
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := w.tick.Add(1)

	outcomes := make(map[string]int64, len(w.outcomes))
	for k, v := range w.outcomes {
		outcomes[k] = v
	}
	w.metrics.Store(WorldMetrics{
		Tick:         nextTick,
		Entities:     len(w.entities),
		Moving:       moving,
		Clients:      len(w.clients),
		Observers:    len(w.observers),
		PendingTasks: entry.Pending,
		DebugPaths:   w.draws.Len(),
		StepMS:       stepMS,
		Outcomes:     outcomes,
		QueueDepths: QueueDepths{
			Moves: len(w.moves),
			Join:  len(w.join),
			Leave: len(w.leave),
		},
	})
	return entry
}
