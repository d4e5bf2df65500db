package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"pathcraft.ai/internal/persistence/navstore"
	"pathcraft.ai/internal/sim/nav"
)

func main() {
	var (
		ticksDir = flag.String("ticks", "", "dir containing ticks-*.jsonl.zst")
		navPath  = flag.String("nav", "", "nav grid file to re-run applied queries against (optional)")
		radius   = flag.Float64("search_radius", 2, "search radius for re-run queries")
		fromTick = flag.Uint64("from_tick", 0, "first tick to read (inclusive, optional)")
		toTick   = flag.Uint64("to_tick", 0, "last tick to read (inclusive, optional)")
	)
	flag.Parse()

	if *ticksDir == "" {
		fmt.Fprintln(os.Stderr, "missing -ticks")
		os.Exit(2)
	}

	files, err := listTickFiles(*ticksDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list ticks:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no tick files found in", *ticksDir)
		os.Exit(1)
	}

	var grid *nav.Grid
	if *navPath != "" {
		g, h, err := navstore.Load(*navPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read nav:", err)
			os.Exit(1)
		}
		grid = g
		fmt.Printf("nav v%d world=%s tick=%d grid=%dx%d\n", h.Version, h.WorldID, h.Tick, h.Cols, h.Rows)
	}

	r := newReplayer(grid, *radius, *fromTick, *toTick)
	for _, path := range files {
		if err := r.replayFile(path); err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}

	s := r.summary
	fmt.Printf("ticks=%d moves=%d rejected=%d resolutions=%d mean_latency_ticks=%.2f\n",
		s.Ticks, s.Moves, s.Rejected, s.Resolutions, s.MeanLatency())
	outcomes := make([]string, 0, len(s.Outcomes))
	for k := range s.Outcomes {
		outcomes = append(outcomes, k)
	}
	sort.Strings(outcomes)
	for _, k := range outcomes {
		fmt.Printf("  %-22s %d\n", k, s.Outcomes[k])
	}
	if grid != nil {
		fmt.Printf("requeried=%d mismatched=%d unmatched=%d\n", s.Requeried, s.Mismatched, s.Unmatched)
		if s.Mismatched > 0 {
			os.Exit(1)
		}
	}
}
