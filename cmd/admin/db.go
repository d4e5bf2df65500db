package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	entity := fs.String("entity", "", "entity_id filter (moves, resolutions)")
	outcome := fs.String("outcome", "", "outcome filter (resolutions)")
	_ = fs.Parse(args)

	q := "outcomes"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(os.Stdout, db, q, dbFilter{Limit: *limit, Entity: *entity, Outcome: *outcome}); err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
}

type dbFilter struct {
	Limit   int
	Entity  string
	Outcome string
}

// runQuery prints one JSON object per row of the named query.
func runQuery(w io.Writer, db *sql.DB, q string, f dbFilter) error {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	switch q {
	case "outcomes":
		rows, err := db.Query(`SELECT outcome, COUNT(*), AVG(latency_ticks) FROM resolutions GROUP BY outcome ORDER BY outcome`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Outcome     string  `json:"outcome"`
				Count       int64   `json:"count"`
				MeanLatency float64 `json:"mean_latency_ticks"`
			}
			if err := rows.Scan(&r.Outcome, &r.Count, &r.MeanLatency); err != nil {
				return err
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "ticks":
		rows, err := db.Query(`SELECT tick,joins,leaves,moves,rejected,resolutions,pending FROM ticks ORDER BY tick DESC LIMIT ?`, f.Limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick        int64 `json:"tick"`
				Joins       int   `json:"joins"`
				Leaves      int   `json:"leaves"`
				Moves       int   `json:"moves"`
				Rejected    int   `json:"rejected"`
				Resolutions int   `json:"resolutions"`
				Pending     int   `json:"pending"`
			}
			if err := rows.Scan(&r.Tick, &r.Joins, &r.Leaves, &r.Moves, &r.Rejected, &r.Resolutions, &r.Pending); err != nil {
				return err
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "moves":
		rows, err := db.Query(`SELECT entity_id,seq,tick,target_x,target_y,target_z FROM moves
			WHERE (?1 = '' OR entity_id = ?1) ORDER BY tick DESC, entity_id, seq DESC LIMIT ?2`, f.Entity, f.Limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				EntityID string     `json:"entity_id"`
				Seq      int64      `json:"seq"`
				Tick     int64      `json:"tick"`
				Target   [3]float64 `json:"target"`
			}
			if err := rows.Scan(&r.EntityID, &r.Seq, &r.Tick, &r.Target[0], &r.Target[1], &r.Target[2]); err != nil {
				return err
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "resolutions":
		rows, err := db.Query(`SELECT entity_id,seq,tick,outcome,waypoints,latency_ticks,COALESCE(error,'') FROM resolutions
			WHERE (?1 = '' OR entity_id = ?1) AND (?2 = '' OR outcome = ?2)
			ORDER BY tick DESC, entity_id, seq DESC LIMIT ?3`, f.Entity, strings.ToUpper(f.Outcome), f.Limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				EntityID  string `json:"entity_id"`
				Seq       int64  `json:"seq"`
				Tick      int64  `json:"tick"`
				Outcome   string `json:"outcome"`
				Waypoints int    `json:"waypoints"`
				Latency   int64  `json:"latency_ticks"`
				Error     string `json:"error,omitempty"`
			}
			if err := rows.Scan(&r.EntityID, &r.Seq, &r.Tick, &r.Outcome, &r.Waypoints, &r.Latency, &r.Error); err != nil {
				return err
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "nav":
		rows, err := db.Query(`SELECT tick,path,cols,rows,blocked,recorded_at FROM nav_files ORDER BY tick DESC LIMIT ?`, f.Limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick     int64  `json:"tick"`
				Path     string `json:"path"`
				Cols     int    `json:"cols"`
				Rows     int    `json:"rows"`
				Blocked  int    `json:"blocked"`
				Recorded string `json:"recorded_at"`
			}
			if err := rows.Scan(&r.Tick, &r.Path, &r.Cols, &r.Rows, &r.Blocked, &r.Recorded); err != nil {
				return err
			}
			printJSON(w, r)
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query (want outcomes|ticks|moves|resolutions|nav)")
	}
}

func printJSON(w io.Writer, v any) {
	b, _ := json.Marshal(v)
	fmt.Fprintln(w, string(b))
}
