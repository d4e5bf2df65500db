package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type" jsonschema:"enum=HELLO"`
	ProtocolVersion string            `json:"protocol_version"`
	EntityName      string            `json:"entity_name,omitempty"`
	Spawn           *[3]float64       `json:"spawn,omitempty"`
	Capabilities    HelloCapabilities `json:"capabilities,omitempty"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty" jsonschema:"minimum=0,maximum=64"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type" jsonschema:"enum=WELCOME"`
	ProtocolVersion string      `json:"protocol_version"`
	EntityID        string      `json:"entity_id"`
	Spawn           [3]float64  `json:"spawn"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	TickRateHz       int       `json:"tick_rate_hz"`
	CellSize         float64   `json:"cell_size"`
	WorldHalfExtents float64   `json:"world_half_extents"`
	Speed            float64   `json:"speed"`
	ArrivalTolerance float64   `json:"arrival_tolerance"`
	AreaCosts        []float64 `json:"area_costs,omitempty"`
}

// MOVE (client -> server): send every selected entity to Target.
// An empty EntityIDs list selects the sender's own entity.
type MoveMsg struct {
	Type            string     `json:"type" jsonschema:"enum=MOVE"`
	ProtocolVersion string     `json:"protocol_version"`
	ID              string     `json:"id,omitempty"`
	EntityIDs       []string   `json:"entity_ids,omitempty"`
	Target          [3]float64 `json:"target"`
}

// ACK (server -> client) answers a MOVE.
type AckMsg struct {
	Type            string `json:"type" jsonschema:"enum=ACK"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for,omitempty"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}

// STATE (server -> client): the session entity after a tick.
type StateMsg struct {
	Type            string       `json:"type" jsonschema:"enum=STATE"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	EntityID        string       `json:"entity_id"`
	Pos             [3]float64   `json:"pos"`
	Velocity        [3]float64   `json:"velocity"`
	Path            [][3]float64 `json:"path,omitempty"`
	Pending         int          `json:"pending,omitempty"`
	LastOutcome     string       `json:"last_outcome,omitempty"`
}
