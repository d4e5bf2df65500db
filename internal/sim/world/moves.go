package world

import (
	"github.com/sirupsen/logrus"

	"pathcraft.ai/internal/protocol"
	"pathcraft.ai/internal/sim/mathx"
	"pathcraft.ai/internal/sim/pathing"
)

// applyMoves dispatches one path query per selected entity, in receive order.
func (w *World) applyMoves(envs []MoveEnvelope, nowTick uint64) ([]RecordedMove, []RecordedReject) {
	var moves []RecordedMove
	var rejects []RecordedReject
	for _, env := range envs {
		ack := protocol.AckMsg{
			Type:            protocol.TypeAck,
			ProtocolVersion: protocol.Version,
			AckFor:          env.Move.ID,
			ServerTick:      nowTick,
		}
		reject := func(entityID, code, msg string) {
			rejects = append(rejects, RecordedReject{Sender: string(env.Sender), EntityID: entityID, Code: code})
			if ack.Code == "" {
				ack.Code = code
				ack.Message = msg
			}
		}

		ids := env.Move.EntityIDs
		if len(ids) == 0 {
			ids = []string{string(env.Sender)}
		}
		target := mathx.FromArray(env.Move.Target)

		dispatched := 0
		if !w.onGrid(target) {
			reject("", protocol.ErrInvalidTarget, "target outside navigable bounds")
		} else {
			seen := map[string]bool{}
			for _, raw := range ids {
				if seen[raw] {
					continue
				}
				seen[raw] = true
				id := pathing.EntityID(raw)
				e := w.entities[id]
				if e == nil {
					reject(raw, protocol.ErrInvalidTarget, "unknown entity")
					continue
				}
				t := w.scheduler.Dispatch(pathing.MoveRequest{Requester: id, Target: target}, e.Pos, nowTick)
				moves = append(moves, RecordedMove{
					EntityID: raw,
					Seq:      t.Seq,
					Start:    e.Pos.Array(),
					Target:   env.Move.Target,
				})
				dispatched++
			}
		}

		ack.Accepted = dispatched > 0
		if ack.Accepted {
			ack.Code, ack.Message = "", ""
		} else {
			ack = protocol.Reject(nowTick, env.Move.ID, ack.Code, ack.Message)
			w.log.WithFields(logrus.Fields{"sender": env.Sender, "code": ack.Code}).Debug("move rejected")
		}
		w.sendToClient(env.Sender, ack)
	}
	return moves, rejects
}
