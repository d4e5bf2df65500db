package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	persistlog "pathcraft.ai/internal/persistence/log"
	"pathcraft.ai/internal/sim/mathx"
	"pathcraft.ai/internal/sim/nav"
	"pathcraft.ai/internal/sim/pathing"
	"pathcraft.ai/internal/sim/world"
)

type summary struct {
	Ticks       uint64
	Moves       uint64
	Rejected    uint64
	Resolutions uint64
	Outcomes    map[string]uint64

	latencyTicks uint64

	// Filled only when a grid is given.
	Requeried  uint64
	Mismatched uint64
	Unmatched  uint64
}

func (s summary) MeanLatency() float64 {
	if s.Resolutions == 0 {
		return 0
	}
	return float64(s.latencyTicks) / float64(s.Resolutions)
}

type moveKey struct {
	entity string
	seq    uint64
}

// replayer folds tick log entries into a summary. With a grid it re-runs every
// applied query and compares the waypoint count with the recorded one.
type replayer struct {
	grid     *nav.Grid
	radius   float64
	from, to uint64

	moves   map[moveKey]world.RecordedMove
	summary summary
}

func newReplayer(grid *nav.Grid, radius float64, from, to uint64) *replayer {
	return &replayer{
		grid:    grid,
		radius:  radius,
		from:    from,
		to:      to,
		moves:   map[moveKey]world.RecordedMove{},
		summary: summary{Outcomes: map[string]uint64{}},
	}
}

func listTickFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "ticks-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func (r *replayer) replayFile(path string) error {
	return persistlog.ReadJSONLZstd(path, func(line []byte) error {
		var entry world.TickLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		r.apply(entry)
		return nil
	})
}

func (r *replayer) apply(entry world.TickLogEntry) {
	if entry.Tick < r.from || (r.to != 0 && entry.Tick > r.to) {
		return
	}
	s := &r.summary
	s.Ticks++
	s.Moves += uint64(len(entry.Moves))
	s.Rejected += uint64(len(entry.Rejected))
	for _, m := range entry.Moves {
		r.moves[moveKey{m.EntityID, m.Seq}] = m
	}
	for _, res := range entry.Resolutions {
		s.Resolutions++
		s.Outcomes[res.Outcome.String()]++
		if entry.Tick >= res.DispatchedTick {
			s.latencyTicks += entry.Tick - res.DispatchedTick
		}
		key := moveKey{res.EntityID, res.Seq}
		m, ok := r.moves[key]
		delete(r.moves, key)
		if r.grid == nil || res.Outcome != pathing.OutcomeApplied {
			continue
		}
		if !ok {
			s.Unmatched++
			continue
		}
		s.Requeried++
		path, err := r.grid.FindPath(context.Background(), mathx.FromArray(m.Start), mathx.FromArray(m.Target), r.radius)
		// The installed path drops the start waypoint.
		if err != nil || len(path)-1 != res.Waypoints {
			s.Mismatched++
		}
	}
}
