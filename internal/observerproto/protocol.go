package observerproto

import (
	"encoding/base64"
	"fmt"
)

// Version is the observer protocol version (separate from the entity WS protocol).
const Version = "1.0"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeTick      = "TICK"
	TypeGrid      = "GRID"
)

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Paths toggles debug path overlays in TICK frames.
	Paths bool `json:"paths"`
	// FocusEntityID limits TICK entities to one entity when set.
	FocusEntityID string `json:"focus_entity_id,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	TickRateHz       int     `json:"tick_rate_hz"`
	CellSize         float64 `json:"cell_size"`
	WorldHalfExtents float64 `json:"world_half_extents"`
	Cols             int     `json:"cols"`
	Rows             int     `json:"rows"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Entities    []EntityState    `json:"entities"`
	Joins       []JoinInfo       `json:"joins,omitempty"`
	Leaves      []string         `json:"leaves,omitempty"`
	Moves       []MoveInfo       `json:"moves,omitempty"`
	Resolutions []ResolutionInfo `json:"resolutions,omitempty"`
	Paths       []DebugPath      `json:"paths,omitempty"`

	PendingTasks int `json:"pending_tasks"`
}

type JoinInfo struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name"`
}

type MoveInfo struct {
	EntityID string     `json:"entity_id"`
	Seq      uint64     `json:"seq"`
	Target   [3]float64 `json:"target"`
}

type ResolutionInfo struct {
	EntityID string `json:"entity_id"`
	Seq      uint64 `json:"seq"`
	Outcome  string `json:"outcome"`
	Error    string `json:"error,omitempty"`
}

type EntityState struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Connected bool       `json:"connected"`
	Pos       [3]float64 `json:"pos"`
	Velocity  [3]float64 `json:"velocity"`
	Waypoints int        `json:"waypoints"`
}

// DebugPath is a short-lived line drawn for a freshly installed path.
type DebugPath struct {
	EntityID    string       `json:"entity_id"`
	Points      [][3]float64 `json:"points"`
	ExpiresInMs int64        `json:"expires_in_ms"`
}

// Server -> Client. Full walkability grid, sent after SUBSCRIBE and whenever the surface changes.
//
// Encoding "CELL_U8_RM" means:
// - Decode base64 to bytes, one byte per cell, row-major (col fastest)
// - 0 is blocked; n > 0 is walkable with area id n-1
type GridMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Tick            uint64     `json:"tick"`
	Cols            int        `json:"cols"`
	Rows            int        `json:"rows"`
	CellSize        float64    `json:"cell_size"`
	Origin          [3]float64 `json:"origin"`
	Encoding        string     `json:"encoding"`
	Data            string     `json:"data"`
}

const CellEncoding = "CELL_U8_RM"

func EncodeCells(cells []byte) string { return base64.StdEncoding.EncodeToString(cells) }

func DecodeCells(m GridMsg) ([]byte, error) {
	if m.Encoding != CellEncoding {
		return nil, fmt.Errorf("unsupported grid encoding %q", m.Encoding)
	}
	b, err := base64.StdEncoding.DecodeString(m.Data)
	if err != nil {
		return nil, err
	}
	if len(b) != m.Cols*m.Rows {
		return nil, fmt.Errorf("grid data has %d cells, want %d", len(b), m.Cols*m.Rows)
	}
	return b, nil
}
