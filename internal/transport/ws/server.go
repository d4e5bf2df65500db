package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"pathcraft.ai/internal/logging"
	"pathcraft.ai/internal/protocol"
	"pathcraft.ai/internal/sim/mathx"
	"pathcraft.ai/internal/sim/pathing"
	"pathcraft.ai/internal/sim/world"
)

type Server struct {
	world     *world.World
	log       *logrus.Entry
	validator *protocol.Validator

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, v *protocol.Validator, log *logrus.Entry) *Server {
	if log == nil {
		log = logging.Component(nil, "ws")
	}
	return &Server{
		world:     w,
		log:       log,
		validator: v,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		entityID, out := s.handshake(conn)
		if entityID == "" {
			return
		}
		log := s.log.WithField("entity", entityID)
		log.Debug("session started")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeMove {
				reject(out, "", protocol.ErrProtoBadRequest, "expected MOVE")
				continue
			}
			if err := s.validate(protocol.TypeMove, msg); err != nil {
				log.WithError(err).Debug("invalid MOVE")
				reject(out, "", protocol.ErrProtoBadRequest, err.Error())
				continue
			}
			var mv protocol.MoveMsg
			if err := json.Unmarshal(msg, &mv); err != nil {
				reject(out, "", protocol.ErrProtoBadRequest, err.Error())
				continue
			}
			if mv.ProtocolVersion != protocol.Version {
				reject(out, mv.ID, protocol.ErrProtoBadRequest, "bad protocol_version")
				continue
			}
			select {
			case s.world.Moves() <- world.MoveEnvelope{Sender: pathing.EntityID(entityID), Move: mv}:
			default:
				reject(out, mv.ID, protocol.ErrWorldBusy, "move queue full")
			}
		}

		// Cleanup. Queries still running for this entity resolve as missing-owner.
		s.world.Leave() <- pathing.EntityID(entityID)
		log.Debug("session ended")
	}
}

func (s *Server) validate(msgType string, raw []byte) error {
	if s.validator == nil {
		return nil
	}
	return s.validator.Validate(msgType, raw)
}

func (s *Server) handshake(conn *websocket.Conn) (entityID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closePolicy(conn, "expected HELLO")
		return "", nil
	}
	if err := s.validate(protocol.TypeHello, msg); err != nil {
		closePolicy(conn, "bad HELLO")
		return "", nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closePolicy(conn, "bad HELLO")
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closePolicy(conn, "bad protocol_version")
		return "", nil
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}
	out = make(chan []byte, maxQ)

	req := world.JoinRequest{
		Name: hello.EntityName,
		Out:  out,
		Resp: make(chan world.JoinResponse, 1),
	}
	if hello.Spawn != nil {
		spawn := mathx.FromArray(*hello.Spawn)
		req.Spawn = &spawn
	}
	s.world.Join() <- req
	resp := <-req.Resp

	if err := writeJSON(conn, resp.Welcome); err != nil {
		return "", nil
	}
	return resp.Welcome.EntityID, out
}

// reject queues an ACK refusing a message. It never blocks the reader.
func reject(out chan []byte, ackFor, code, message string) {
	b, err := json.Marshal(protocol.Reject(0, ackFor, code, message))
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("write %T: %w", v, err)
	}
	return nil
}
