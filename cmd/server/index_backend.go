package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pathcraft.ai/internal/persistence/indexdb"
	"pathcraft.ai/internal/sim/tuning"
	"pathcraft.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	Close() error
	UpsertTuning(tune tuning.Tuning) error
	RecordNavFile(path string, tick uint64, cols, rows, blocked int)
	OutcomeCounts(ctx context.Context) (map[string]int64, error)
	EntityResolutions(ctx context.Context, entityID string, limit int) ([]indexdb.ResolutionRow, error)
}

func openRuntimeIndex(worldDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("PC_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(worldDir, "index", "world.sqlite")
		return indexdb.OpenSQLite(dbPath)
	default:
		return nil, fmt.Errorf("unsupported PC_INDEX_BACKEND: %s", backend)
	}
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}
