package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"pathcraft.ai/internal/logging"
	"pathcraft.ai/internal/protocol"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "bot", "entity name prefix")
		count = flag.Int("count", 1, "number of concurrent bots")
		every = flag.Uint64("every", 60, "ticks to idle between moves")
	)
	flag.Parse()

	root := logging.New(logging.Options{})
	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		close(stop)
	}()

	var wg sync.WaitGroup
	for i := 0; i < *count; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := &bot{
				name:  fmt.Sprintf("%s-%d", *name, i),
				every: *every,
				rng:   rand.New(rand.NewSource(int64(i) + 1)),
			}
			b.log = logging.Component(root, "bot").WithField("bot", b.name)
			if err := b.run(*url, stop); err != nil {
				b.log.WithError(err).Error("bot stopped")
			}
		}(i)
	}
	wg.Wait()
}

type bot struct {
	name  string
	every uint64
	rng   *rand.Rand
	log   *logrus.Entry

	entityID   string
	halfExtent float64
	idleSince  uint64
	moves      int
}

func (b *bot) run(url string, stop <-chan struct{}) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	go func() {
		<-stop
		_ = conn.Close()
	}()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		EntityName:      b.name,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 8},
	}
	if err := conn.WriteJSON(hello); err != nil {
		return fmt.Errorf("send HELLO: %w", err)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-stop:
				return nil
			default:
				return err
			}
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			b.entityID = w.EntityID
			b.halfExtent = w.WorldParams.WorldHalfExtents
			b.log.WithFields(logrus.Fields{"entity": w.EntityID, "tick_rate_hz": w.WorldParams.TickRateHz}).Info("WELCOME")

		case protocol.TypeAck:
			var ack protocol.AckMsg
			if err := json.Unmarshal(msg, &ack); err != nil {
				continue
			}
			if !ack.Accepted {
				b.log.WithFields(logrus.Fields{"ack_for": ack.AckFor, "code": ack.Code}).Warn("move rejected")
			}

		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			if mv, ok := b.next(st); ok {
				if err := conn.WriteJSON(mv); err != nil {
					return fmt.Errorf("send MOVE: %w", err)
				}
			}
		}
	}
}

// next picks a random target once the entity has been idle long enough.
func (b *bot) next(st protocol.StateMsg) (protocol.MoveMsg, bool) {
	if len(st.Path) > 0 || st.Pending > 0 {
		b.idleSince = st.Tick
		return protocol.MoveMsg{}, false
	}
	if st.Tick-b.idleSince < b.every {
		return protocol.MoveMsg{}, false
	}
	b.idleSince = st.Tick
	b.moves++
	h := b.halfExtent
	if h <= 0 {
		h = 10
	}
	target := [3]float64{(b.rng.Float64()*2 - 1) * h * 0.9, 0, (b.rng.Float64()*2 - 1) * h * 0.9}
	b.log.WithFields(logrus.Fields{"target": target, "last_outcome": st.LastOutcome}).Debug("MOVE")
	return protocol.MoveMsg{
		Type:            protocol.TypeMove,
		ProtocolVersion: protocol.Version,
		ID:              fmt.Sprintf("%s_move_%d", b.name, b.moves),
		Target:          target,
	}, true
}
