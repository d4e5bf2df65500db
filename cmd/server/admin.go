package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"pathcraft.ai/internal/persistence/navstore"
	"pathcraft.ai/internal/sim/nav"
	"pathcraft.ai/internal/sim/world"
)

const navFileSuffix = ".nav.zst"

func navDir(worldDir string) string { return filepath.Join(worldDir, "nav") }

// latestNavFile returns the saved grid with the highest tick, or "".
func latestNavFile(worldDir string) string {
	dir := navDir(worldDir)
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, navFileSuffix) {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, navFileSuffix), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func readNavFile(path string) (*nav.Grid, error) {
	g, _, err := navstore.Load(path)
	return g, err
}

type navFileRecorder interface {
	RecordNavFile(path string, tick uint64, cols, rows, blocked int)
}

// navSaveHandler writes the current walkability grid to <world>/nav/<tick>.nav.zst.
func navSaveHandler(w *world.World, worldDir string, idx navFileRecorder, logger *logrus.Entry) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		tick := w.CurrentTick()
		var rec navstore.GridV1
		blocked := 0
		ok := w.NavHandle().View(func(g *nav.Grid) {
			rec = navstore.Capture(w.Config().ID, tick, g)
			for _, walkable := range g.Walkable {
				if !walkable {
					blocked++
				}
			}
		})
		rw.Header().Set("Content-Type", "application/json")
		if !ok {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": "nav surface busy"})
			return
		}
		path := filepath.Join(navDir(worldDir), fmt.Sprintf("%d%s", tick, navFileSuffix))
		if err := navstore.Write(path, rec); err != nil {
			logger.WithError(err).Error("nav save")
			rw.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		if idx != nil {
			idx.RecordNavFile(path, tick, rec.Header.Cols, rec.Header.Rows, blocked)
		}
		logger.WithFields(logrus.Fields{"path": path, "tick": tick}).Info("nav grid saved")
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick, "path": path})
	}
}

// navLoadHandler swaps the live grid for a saved one: the latest file, or
// <world>/nav/<tick>.nav.zst when ?tick= is given.
func navLoadHandler(w *world.World, worldDir string, logger *logrus.Entry) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		path := latestNavFile(worldDir)
		if raw := strings.TrimSpace(r.URL.Query().Get("tick")); raw != "" {
			tick, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				http.Error(rw, "bad tick", http.StatusBadRequest)
				return
			}
			path = filepath.Join(navDir(worldDir), fmt.Sprintf("%d%s", tick, navFileSuffix))
		}
		rw.Header().Set("Content-Type", "application/json")
		if path == "" {
			rw.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": "no saved nav grid"})
			return
		}
		g, hdr, err := navstore.Load(path)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, os.ErrNotExist) {
				status = http.StatusNotFound
			}
			rw.WriteHeader(status)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		w.NavHandle().Replace(g)
		logger.WithFields(logrus.Fields{"path": path, "saved_tick": hdr.Tick}).Info("nav grid loaded")
		_ = json.NewEncoder(rw).Encode(map[string]any{
			"ok":         true,
			"path":       path,
			"saved_tick": hdr.Tick,
			"cols":       g.Cols,
			"rows":       g.Rows,
			"version":    w.NavHandle().Version(),
		})
	}
}

func outcomesHandler(idx runtimeIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		counts, err := idx.OutcomeCounts(r.Context())
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(counts)
	}
}

func resolutionsHandler(idx runtimeIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		entityID := strings.TrimSpace(r.URL.Query().Get("entity_id"))
		if entityID == "" {
			http.Error(rw, "missing entity_id", http.StatusBadRequest)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		rows, err := idx.EntityResolutions(r.Context(), entityID, limit)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(rows)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
