package pathing

import (
	"context"
	"errors"
	"fmt"

	"pathcraft.ai/internal/sim/mathx"
)

type EntityID string

// MoveRequest asks for Requester to be moved to Target.
type MoveRequest struct {
	Requester EntityID   `json:"requester"`
	Target    mathx.Vec3 `json:"target"`
}

// Querier is the path query service. It must be safe to call from many goroutines.
type Querier interface {
	Query(ctx context.Context, start, end mathx.Vec3, radius float64) ([]mathx.Vec3, error)
}

type QueryFunc func(ctx context.Context, start, end mathx.Vec3, radius float64) ([]mathx.Vec3, error)

func (f QueryFunc) Query(ctx context.Context, start, end mathx.Vec3, radius float64) ([]mathx.Vec3, error) {
	return f(ctx, start, end, radius)
}

// ErrExpired marks a query dropped after exceeding the configured tick budget.
var ErrExpired = errors.New("pathing: query expired")

// Completion is a finished task handed from the scheduler to the resolver.
type Completion struct {
	Owner          EntityID
	Seq            uint64
	Target         mathx.Vec3
	Path           []mathx.Vec3
	Err            error
	DispatchedTick uint64
	CompletedTick  uint64
}

type Outcome int

const (
	OutcomeApplied Outcome = iota + 1
	OutcomeNoPath
	OutcomeSnapshotUnavailable
	OutcomeStale
	OutcomeMissingOwner
	OutcomeExpired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "APPLIED"
	case OutcomeNoPath:
		return "NO_PATH"
	case OutcomeSnapshotUnavailable:
		return "SNAPSHOT_UNAVAILABLE"
	case OutcomeStale:
		return "STALE"
	case OutcomeMissingOwner:
		return "MISSING_OWNER"
	case OutcomeExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(b []byte) error {
	for c := OutcomeApplied; c <= OutcomeExpired; c++ {
		if c.String() == string(b) {
			*o = c
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", b)
}

// Resolution records what the resolver did with a completion.
type Resolution struct {
	Owner   EntityID     `json:"owner"`
	Seq     uint64       `json:"seq"`
	Outcome Outcome      `json:"outcome"`
	Path    []mathx.Vec3 `json:"path,omitempty"`
	Error   string       `json:"error,omitempty"`
}
