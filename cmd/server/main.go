package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"pathcraft.ai/internal/logging"
	persistlog "pathcraft.ai/internal/persistence/log"
	"pathcraft.ai/internal/protocol"
	"pathcraft.ai/internal/sim/nav"
	"pathcraft.ai/internal/sim/tuning"
	"pathcraft.ai/internal/sim/world"
	"pathcraft.ai/internal/transport/observer"
	"pathcraft.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index of moves and resolutions")

		navPath       = flag.String("nav", "", "path to a nav grid file to load (optional)")
		loadLatestNav = flag.Bool("load_latest_nav", true, "load the latest saved nav grid from the data dir if present (when -nav is empty)")

		dumpSchemas = flag.String("dump_schemas", "", "write protocol JSON schemas to this directory and exit")
	)
	flag.Parse()

	root := logging.New(logging.Options{})
	logger := logging.Component(root, "server").WithField("world", *worldID)

	if dir := strings.TrimSpace(*dumpSchemas); dir != "" {
		if err := writeSchemas(dir); err != nil {
			logger.WithError(err).Fatal("dump schemas")
		}
		logger.WithField("dir", dir).Info("schemas written")
		return
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WithError(err).Fatal("load tuning")
		}
		logger.WithField("path", tp).Warn("tuning not found; using defaults")
		tune = tuning.Defaults()
	}

	// Optional: read-model index backend (does not affect the tick loop).
	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		logger.WithError(err).Fatal("open index backend")
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.WithError(err).Error("index backend: upsert tuning")
		}
	}

	grid, err := loadGrid(strings.TrimSpace(*navPath), *loadLatestNav, worldDir, tune, logger)
	if err != nil {
		logger.WithError(err).Fatal("load nav grid")
	}
	navh := nav.NewHandle(grid)

	w := world.New(world.ConfigFromTuning(*worldID, tune), navh, logging.Component(root, "world").WithField("world", *worldID))

	tickLog := persistlog.NewTickLogger(worldDir)
	defer tickLog.Close()
	var tl world.TickLogger = tickLog
	if idx != nil {
		tl = multiTickLogger{a: tickLog, b: idx}
	}
	w.SetTickLogger(tl)

	validator, err := protocol.NewValidator()
	if err != nil {
		logger.WithError(err).Fatal("compile protocol schemas")
	}

	ctx, cancel := signalContext()
	defer cancel()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.WithError(err).Error("world stopped")
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, *worldID, w.CurrentTick(), w.Metrics())
	})

	enableAdminHTTP := envBool("PC_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("PC_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID string             `json:"world_id"`
				Tick    uint64             `json:"tick"`
				Metrics world.WorldMetrics `json:"metrics"`
			}{
				WorldID: *worldID,
				Tick:    w.CurrentTick(),
				Metrics: w.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/nav/save", navSaveHandler(w, worldDir, idx, logger))
		mux.HandleFunc("/admin/v1/nav/load", navLoadHandler(w, worldDir, logger))
		if idx != nil {
			mux.HandleFunc("/admin/v1/index/outcomes", outcomesHandler(idx))
			mux.HandleFunc("/admin/v1/index/resolutions", resolutionsHandler(idx))
		}

		obsSrv := observer.NewServer(w, logging.Component(root, "observer"))
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
		mux.HandleFunc("/v1/nav/block", obsSrv.NavBlockHandler())
	} else {
		logger.Info("admin endpoints disabled (PC_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Debug("pprof endpoints disabled (PC_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, validator, logging.Component(root, "ws")).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.WithField("addr", *addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Fatal("ListenAndServe")
	}
	<-worldDone
}

// loadGrid picks the nav surface: an explicit file, else the latest saved
// grid, else the grid described by tuning.
func loadGrid(path string, loadLatest bool, worldDir string, tune tuning.Tuning, logger *logrus.Entry) (*nav.Grid, error) {
	if path == "" && loadLatest {
		path = latestNavFile(worldDir)
	}
	if path == "" {
		g := nav.FromTuning(tune.Nav)
		logger.WithFields(logrus.Fields{"cols": g.Cols, "rows": g.Rows}).Info("nav grid built from tuning")
		return g, nil
	}
	g, err := readNavFile(path)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{"file": filepath.Base(path), "cols": g.Cols, "rows": g.Rows}).Info("nav grid loaded")
	return g, nil
}

func writeSchemas(dir string) error {
	docs, err := protocol.Schemas()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, b := range docs {
		if err := os.WriteFile(filepath.Join(dir, name), b, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
