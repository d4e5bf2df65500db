package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"pathcraft.ai/internal/sim/pathing"
	"pathcraft.ai/internal/sim/tuning"
	"pathcraft.ai/internal/sim/world"
)

func TestSQLiteIndex_TicksMovesResolutions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.UpsertTuning(tuning.Defaults()); err != nil {
		t.Fatalf("UpsertTuning: %v", err)
	}
	_ = idx.WriteTick(world.TickLogEntry{Tick: 0, Joins: []world.RecordedJoin{{EntityID: "E000001", Name: "bot"}}})
	_ = idx.WriteTick(world.TickLogEntry{Tick: 1, Moves: []world.RecordedMove{
		{EntityID: "E000001", Seq: 1, Target: [3]float64{-8, 0, 0}},
		{EntityID: "E000001", Seq: 2, Target: [3]float64{10, 0, 0}},
	}, Pending: 2})
	_ = idx.WriteTick(world.TickLogEntry{Tick: 4, Resolutions: []world.RecordedResolution{
		{EntityID: "E000001", Seq: 2, Outcome: pathing.OutcomeApplied, Waypoints: 2, DispatchedTick: 1},
		{EntityID: "E000001", Seq: 1, Outcome: pathing.OutcomeStale, DispatchedTick: 1},
	}})
	idx.RecordNavFile("/data/nav/4.nav.zst", 4, 200, 200, 17)
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()

	counts, err := idx.OutcomeCounts(context.Background())
	if err != nil {
		t.Fatalf("OutcomeCounts: %v", err)
	}
	if counts["APPLIED"] != 1 || counts["STALE"] != 1 {
		t.Fatalf("counts=%v", counts)
	}

	rows, err := idx.EntityResolutions(context.Background(), "E000001", 10)
	if err != nil {
		t.Fatalf("EntityResolutions: %v", err)
	}
	if len(rows) != 2 || rows[0].Seq != 2 || rows[0].Target != [3]float64{10, 0, 0} || rows[0].ResolveTick != 4 || rows[0].DispatchTick != 1 {
		t.Fatalf("rows=%+v", rows)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var latency, blocked int
	if err := db.QueryRow(`SELECT latency_ticks FROM resolutions WHERE entity_id='E000001' AND seq=2`).Scan(&latency); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if latency != 3 {
		t.Fatalf("latency=%d", latency)
	}
	if err := db.QueryRow(`SELECT blocked FROM nav_files WHERE tick=4`).Scan(&blocked); err != nil || blocked != 17 {
		t.Fatalf("nav file row: blocked=%d err=%v", blocked, err)
	}
	var tune string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key='tuning'`).Scan(&tune); err != nil || tune == "" {
		t.Fatalf("tuning meta: %q err=%v", tune, err)
	}
}

func TestSQLiteIndex_NilAndClosed(t *testing.T) {
	var idx *SQLiteIndex
	if err := idx.WriteTick(world.TickLogEntry{Tick: 1}); err != nil {
		t.Fatalf("nil index WriteTick: %v", err)
	}
	idx.RecordNavFile("x", 1, 1, 1, 0)

	real, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	_ = real.Close()
	if err := real.WriteTick(world.TickLogEntry{Tick: 2}); err != nil {
		t.Fatalf("closed index WriteTick: %v", err)
	}
	if err := real.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
