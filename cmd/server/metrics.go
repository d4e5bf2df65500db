package main

import (
	"fmt"
	"io"
	"sort"

	"pathcraft.ai/internal/sim/world"
)

// writeMetrics renders m in the Prometheus text exposition format.
func writeMetrics(w io.Writer, worldID string, tick uint64, m world.WorldMetrics) {
	if m.Tick != 0 {
		tick = m.Tick
	}

	fmt.Fprintf(w, "# HELP pathcraft_world_tick Current world tick.\n")
	fmt.Fprintf(w, "# TYPE pathcraft_world_tick gauge\n")
	fmt.Fprintf(w, "pathcraft_world_tick{world=%q} %d\n", worldID, tick)

	fmt.Fprintf(w, "# HELP pathcraft_world_entities Current number of entities in the world.\n")
	fmt.Fprintf(w, "# TYPE pathcraft_world_entities gauge\n")
	fmt.Fprintf(w, "pathcraft_world_entities{world=%q} %d\n", worldID, m.Entities)

	fmt.Fprintf(w, "# HELP pathcraft_world_moving Entities currently following a path.\n")
	fmt.Fprintf(w, "# TYPE pathcraft_world_moving gauge\n")
	fmt.Fprintf(w, "pathcraft_world_moving{world=%q} %d\n", worldID, m.Moving)

	fmt.Fprintf(w, "# HELP pathcraft_world_clients Current number of connected clients.\n")
	fmt.Fprintf(w, "# TYPE pathcraft_world_clients gauge\n")
	fmt.Fprintf(w, "pathcraft_world_clients{world=%q} %d\n", worldID, m.Clients)

	fmt.Fprintf(w, "# HELP pathcraft_world_observers Current number of observer sessions.\n")
	fmt.Fprintf(w, "# TYPE pathcraft_world_observers gauge\n")
	fmt.Fprintf(w, "pathcraft_world_observers{world=%q} %d\n", worldID, m.Observers)

	fmt.Fprintf(w, "# HELP pathcraft_path_tasks_pending Path queries dispatched but not yet resolved.\n")
	fmt.Fprintf(w, "# TYPE pathcraft_path_tasks_pending gauge\n")
	fmt.Fprintf(w, "pathcraft_path_tasks_pending{world=%q} %d\n", worldID, m.PendingTasks)

	fmt.Fprintf(w, "# HELP pathcraft_debug_paths Active debug path overlays.\n")
	fmt.Fprintf(w, "# TYPE pathcraft_debug_paths gauge\n")
	fmt.Fprintf(w, "pathcraft_debug_paths{world=%q} %d\n", worldID, m.DebugPaths)

	fmt.Fprintf(w, "# HELP pathcraft_path_resolutions_total Resolved path queries by outcome.\n")
	fmt.Fprintf(w, "# TYPE pathcraft_path_resolutions_total counter\n")
	outcomes := make([]string, 0, len(m.Outcomes))
	for k := range m.Outcomes {
		outcomes = append(outcomes, k)
	}
	sort.Strings(outcomes)
	for _, k := range outcomes {
		fmt.Fprintf(w, "pathcraft_path_resolutions_total{world=%q,outcome=%q} %d\n", worldID, k, m.Outcomes[k])
	}

	fmt.Fprintf(w, "# HELP pathcraft_world_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(w, "# TYPE pathcraft_world_queue_depth gauge\n")
	fmt.Fprintf(w, "pathcraft_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "moves", m.QueueDepths.Moves)
	fmt.Fprintf(w, "pathcraft_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "join", m.QueueDepths.Join)
	fmt.Fprintf(w, "pathcraft_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "leave", m.QueueDepths.Leave)

	fmt.Fprintf(w, "# HELP pathcraft_world_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(w, "# TYPE pathcraft_world_step_ms gauge\n")
	fmt.Fprintf(w, "pathcraft_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)
}
