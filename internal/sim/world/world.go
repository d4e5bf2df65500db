package world

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"pathcraft.ai/internal/debugdraw"
	"pathcraft.ai/internal/logging"
	"pathcraft.ai/internal/protocol"
	"pathcraft.ai/internal/sim/mathx"
	"pathcraft.ai/internal/sim/motion"
	"pathcraft.ai/internal/sim/nav"
	"pathcraft.ai/internal/sim/pathing"
	"pathcraft.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID         string
	TickRateHz int

	Speed            float64
	ArrivalTolerance float64

	Workers      int
	SearchRadius float64
	MaxTaskTicks int

	DrawPaths    bool
	PathLifetime time.Duration
}

func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:               id,
		TickRateHz:       t.TickRateHz,
		Speed:            t.Motion.Speed,
		ArrivalTolerance: t.Motion.ArrivalTolerance,
		Workers:          t.Pathing.Workers,
		SearchRadius:     t.Pathing.SearchRadius,
		MaxTaskTicks:     t.Pathing.MaxTaskTicks,
		DrawPaths:        t.Debug.DrawPaths,
		PathLifetime:     time.Duration(t.Debug.PathLifetimeMs) * time.Millisecond,
	}
}

type JoinRequest struct {
	Name  string
	Spawn *mathx.Vec3
	// Out receives ACK and STATE messages for the session entity. May be nil.
	Out  chan []byte
	Resp chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
}

// MoveEnvelope is a MOVE received from a session. Sender is the session's own
// entity; it is selected when the message names no entities.
type MoveEnvelope struct {
	Sender pathing.EntityID
	Move   protocol.MoveMsg
}

type Entity struct {
	ID     pathing.EntityID
	Name   string
	Pos    mathx.Vec3
	Motion motion.State

	LastOutcome pathing.Outcome
}

type clientState struct {
	Out chan []byte
}

// World is a single-threaded tick loop around the path scheduler.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg WorldConfig
	log *logrus.Entry

	tick atomic.Uint64

	nav       *nav.Handle
	scheduler *pathing.Scheduler
	resolver  *pathing.Resolver
	motion    motion.Controller
	draws     *debugdraw.Store

	entities map[pathing.EntityID]*Entity
	clients  map[pathing.EntityID]*clientState

	observers      map[string]*observerClient
	navVersionSent uint64

	outcomes map[string]int64

	join          chan JoinRequest
	leave         chan pathing.EntityID
	moves         chan MoveEnvelope
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	stop          chan struct{}

	nextEntityNum atomic.Uint64

	// Optional (may be nil). Implemented in internal/persistence/*.
	tickLogger TickLogger

	metrics atomic.Value // WorldMetrics
}

// New builds a world whose path queries run against navh.
func New(cfg WorldConfig, navh *nav.Handle, log *logrus.Entry) *World {
	return NewWithQuerier(cfg, navh, navh, log)
}

// NewWithQuerier is New with the path query service replaced.
func NewWithQuerier(cfg WorldConfig, navh *nav.Handle, q pathing.Querier, log *logrus.Entry) *World {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 20
	}
	if log == nil {
		log = logging.Component(nil, "world")
	}
	w := &World{
		cfg:           cfg,
		log:           log,
		nav:           navh,
		motion:        motion.NewController(cfg.Speed, cfg.ArrivalTolerance),
		draws:         debugdraw.NewStore(cfg.PathLifetime),
		entities:      map[pathing.EntityID]*Entity{},
		clients:       map[pathing.EntityID]*clientState{},
		observers:     map[string]*observerClient{},
		outcomes:      map[string]int64{},
		join:          make(chan JoinRequest, 64),
		leave:         make(chan pathing.EntityID, 64),
		moves:         make(chan MoveEnvelope, 1024),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerSub:   make(chan ObserverSubscribeRequest, 16),
		observerLeave: make(chan string, 16),
		stop:          make(chan struct{}),
	}
	w.resolver = pathing.NewResolver(w, log.WithField("component", "resolver"))
	maxTicks := uint64(0)
	if cfg.MaxTaskTicks > 0 {
		maxTicks = uint64(cfg.MaxTaskTicks)
	}
	w.scheduler = pathing.NewScheduler(q, w.resolver, pathing.Config{
		Workers:      cfg.Workers,
		SearchRadius: cfg.SearchRadius,
		MaxTaskTicks: maxTicks,
	}, log.WithField("component", "pathing"))
	w.metrics.Store(WorldMetrics{})
	return w
}

// EntityExists reports whether id is still in the world.
func (w *World) EntityExists(id pathing.EntityID) bool {
	_, ok := w.entities[id]
	return ok
}

// InstallPath replaces the entity's path. Called by the resolver on the tick goroutine.
func (w *World) InstallPath(id pathing.EntityID, path []mathx.Vec3) {
	e := w.entities[id]
	if e == nil {
		return
	}
	e.Motion.SetPath(path)
	if w.cfg.DrawPaths && len(path) > 0 {
		w.draws.Add(string(id), e.Pos, path, w.simTime(w.tick.Load()))
	}
}

func (w *World) simTime(tick uint64) time.Duration {
	return time.Duration(tick) * (time.Second / time.Duration(w.cfg.TickRateHz))
}

func (w *World) dt() float64 { return 1.0 / float64(w.cfg.TickRateHz) }

func (w *World) newEntityID() pathing.EntityID {
	n := w.nextEntityNum.Add(1)
	return pathing.EntityID(fmt.Sprintf("E%06d", n))
}

// sortedEntityIDs gives a deterministic iteration order.
func (w *World) sortedEntityIDs() []pathing.EntityID {
	ids := make([]pathing.EntityID, 0, len(w.entities))
	for id := range w.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func pathToArrays(path []mathx.Vec3) [][3]float64 {
	if len(path) == 0 {
		return nil
	}
	out := make([][3]float64, len(path))
	for i, p := range path {
		out[i] = p.Array()
	}
	return out
}
