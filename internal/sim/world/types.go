package world

import "pathcraft.ai/internal/sim/pathing"

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// TickLogEntry is everything the tick decided, in the order it was applied.
type TickLogEntry struct {
	Tick        uint64               `json:"tick"`
	Joins       []RecordedJoin       `json:"joins,omitempty"`
	Leaves      []string             `json:"leaves,omitempty"`
	Moves       []RecordedMove       `json:"moves,omitempty"`
	Rejected    []RecordedReject     `json:"rejected,omitempty"`
	Resolutions []RecordedResolution `json:"resolutions,omitempty"`
	Pending     int                  `json:"pending"`
}

type RecordedJoin struct {
	EntityID string     `json:"entity_id"`
	Name     string     `json:"name"`
	Spawn    [3]float64 `json:"spawn"`
}

// RecordedMove is a dispatched path query.
type RecordedMove struct {
	EntityID string     `json:"entity_id"`
	Seq      uint64     `json:"seq"`
	Start    [3]float64 `json:"start"`
	Target   [3]float64 `json:"target"`
}

type RecordedReject struct {
	Sender   string `json:"sender"`
	EntityID string `json:"entity_id,omitempty"`
	Code     string `json:"code"`
}

type RecordedResolution struct {
	EntityID       string          `json:"entity_id"`
	Seq            uint64          `json:"seq"`
	Outcome        pathing.Outcome `json:"outcome"`
	Waypoints      int             `json:"waypoints"`
	Error          string          `json:"error,omitempty"`
	DispatchedTick uint64          `json:"dispatched_tick"`
}

type WorldMetrics struct {
	Tick         uint64           `json:"tick"`
	Entities     int              `json:"entities"`
	Moving       int              `json:"moving"`
	Clients      int              `json:"clients"`
	Observers    int              `json:"observers"`
	PendingTasks int              `json:"pending_tasks"`
	DebugPaths   int              `json:"debug_paths"`
	StepMS       float64          `json:"step_ms"`
	Outcomes     map[string]int64 `json:"outcomes"`
	QueueDepths  QueueDepths      `json:"queue_depths"`
}

type QueueDepths struct {
	Moves int `json:"moves"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}
