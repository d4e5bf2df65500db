package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"pathcraft.ai/internal/sim/tuning"
	"pathcraft.ai/internal/sim/world"
)

// SQLiteIndex is a read model of the tick log: dispatched moves and how each
// path query was resolved. All writes go through a single writer goroutine.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqNavFile
)

type req struct {
	kind reqKind

	tick    world.TickLogEntry
	navFile navFileRow
}

type navFileRow struct {
	Tick     uint64
	Path     string
	Cols     int
	Rows     int
	Blocked  int
	Recorded string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			joins INTEGER NOT NULL,
			leaves INTEGER NOT NULL,
			moves INTEGER NOT NULL,
			rejected INTEGER NOT NULL,
			resolutions INTEGER NOT NULL,
			pending INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS joins (
			tick INTEGER NOT NULL,
			entity_id TEXT NOT NULL,
			name TEXT NOT NULL,
			PRIMARY KEY (tick, entity_id)
		);`,
		`CREATE TABLE IF NOT EXISTS leaves (
			tick INTEGER NOT NULL,
			entity_id TEXT NOT NULL,
			PRIMARY KEY (tick, entity_id)
		);`,
		`CREATE TABLE IF NOT EXISTS moves (
			entity_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			start_x REAL NOT NULL,
			start_z REAL NOT NULL,
			target_x REAL NOT NULL,
			target_y REAL NOT NULL,
			target_z REAL NOT NULL,
			PRIMARY KEY (entity_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_moves_tick ON moves(tick);`,
		`CREATE TABLE IF NOT EXISTS resolutions (
			entity_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			waypoints INTEGER NOT NULL,
			latency_ticks INTEGER NOT NULL,
			error TEXT,
			PRIMARY KEY (entity_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_resolutions_outcome ON resolutions(outcome, tick);`,
		`CREATE TABLE IF NOT EXISTS nav_files (
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			cols INTEGER NOT NULL,
			rows INTEGER NOT NULL,
			blocked INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (tick, path)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropped.Add(1)
	}
	return nil
}

// RecordNavFile notes a nav grid file written at tick.
func (s *SQLiteIndex) RecordNavFile(path string, tick uint64, cols, rows, blocked int) {
	if s == nil || s.closed.Load() {
		return
	}
	r := navFileRow{
		Tick:     tick,
		Path:     path,
		Cols:     cols,
		Rows:     rows,
		Blocked:  blocked,
		Recorded: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqNavFile, navFile: r}:
	default:
		s.dropped.Add(1)
	}
}

// Dropped counts writes discarded because the queue was full.
func (s *SQLiteIndex) Dropped() uint64 { return s.dropped.Load() }

// UpsertTuning stores the effective tuning as JSON in meta.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, "tuning", string(b))
	return err
}

// OutcomeCounts aggregates resolutions by outcome.
func (s *SQLiteIndex) OutcomeCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM resolutions GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		out[outcome] = n
	}
	return out, rows.Err()
}

// ResolutionRow is one resolved path query joined with its dispatch.
type ResolutionRow struct {
	EntityID     string     `json:"entity_id"`
	Seq          uint64     `json:"seq"`
	DispatchTick uint64     `json:"dispatch_tick"`
	ResolveTick  uint64     `json:"resolve_tick"`
	Outcome      string     `json:"outcome"`
	Waypoints    int        `json:"waypoints"`
	Target       [3]float64 `json:"target"`
	Error        string     `json:"error,omitempty"`
}

// EntityResolutions lists the latest resolutions for an entity, newest first.
func (s *SQLiteIndex) EntityResolutions(ctx context.Context, entityID string, limit int) ([]ResolutionRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.entity_id, r.seq, m.tick, r.tick, r.outcome, r.waypoints,
		       m.target_x, m.target_y, m.target_z, COALESCE(r.error, '')
		FROM resolutions r JOIN moves m ON m.entity_id = r.entity_id AND m.seq = r.seq
		WHERE r.entity_id = ?
		ORDER BY r.seq DESC
		LIMIT ?`, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ResolutionRow
	for rows.Next() {
		var r ResolutionRow
		var dispatch, resolve int64
		if err := rows.Scan(&r.EntityID, &r.Seq, &dispatch, &resolve, &r.Outcome, &r.Waypoints,
			&r.Target[0], &r.Target[1], &r.Target[2], &r.Error); err != nil {
			return nil, err
		}
		r.DispatchTick, r.ResolveTick = uint64(dispatch), uint64(resolve)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,joins,leaves,moves,rejected,resolutions,pending,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertJoin, _ := s.db.Prepare(`INSERT OR REPLACE INTO joins(tick,entity_id,name) VALUES(?,?,?)`)
	insertLeave, _ := s.db.Prepare(`INSERT OR REPLACE INTO leaves(tick,entity_id) VALUES(?,?)`)
	insertMove, _ := s.db.Prepare(`INSERT OR REPLACE INTO moves(entity_id,seq,tick,start_x,start_z,target_x,target_y,target_z) VALUES(?,?,?,?,?,?,?,?)`)
	insertResolution, _ := s.db.Prepare(`INSERT OR REPLACE INTO resolutions(entity_id,seq,tick,outcome,waypoints,latency_ticks,error) VALUES(?,?,?,?,?,?,?)`)
	insertNavFile, _ := s.db.Prepare(`INSERT OR REPLACE INTO nav_files(tick,path,cols,rows,blocked,recorded_at) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertJoin, insertLeave, insertMove, insertResolution, insertNavFile} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			t := r.tick
			tick := int64(t.Tick)
			b, _ := json.Marshal(t)
			if !exec(insertTick, tick, len(t.Joins), len(t.Leaves), len(t.Moves), len(t.Rejected), len(t.Resolutions), t.Pending, string(b)) {
				continue
			}
			ok := true
			for _, j := range t.Joins {
				if ok = exec(insertJoin, tick, j.EntityID, j.Name); !ok {
					break
				}
			}
			for _, id := range t.Leaves {
				if !ok {
					break
				}
				ok = exec(insertLeave, tick, id)
			}
			for _, m := range t.Moves {
				if !ok {
					break
				}
				ok = exec(insertMove, m.EntityID, int64(m.Seq), tick, m.Start[0], m.Start[2], m.Target[0], m.Target[1], m.Target[2])
			}
			for _, res := range t.Resolutions {
				if !ok {
					break
				}
				ok = exec(insertResolution, res.EntityID, int64(res.Seq), tick, res.Outcome.String(), res.Waypoints, int64(t.Tick-res.DispatchedTick), res.Error)
			}

		case reqNavFile:
			n := r.navFile
			exec(insertNavFile, int64(n.Tick), n.Path, n.Cols, n.Rows, n.Blocked, n.Recorded)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
