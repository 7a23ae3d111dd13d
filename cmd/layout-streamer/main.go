package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sudorandom/fightscope/pkg/config"
	"github.com/sudorandom/fightscope/pkg/export"
	"github.com/sudorandom/fightscope/pkg/layout"
	"github.com/sudorandom/fightscope/pkg/logging"
	"github.com/sudorandom/fightscope/pkg/stream"
	"github.com/sudorandom/fightscope/pkg/utils"
)

var cli struct {
	Config   string `help:"Config file (yaml, toml or json)." type:"path"`
	LogLevel string `help:"Overrides logging.level." name:"log-level"`
	Pretty   bool   `help:"Human readable log output."`

	Graph      string        `arg:"" help:"Relationship graph JSON file or URL."`
	Listen     string        `help:"Overrides stream.listen_addr."`
	Dimensions int           `help:"Overrides layout.dimensions (2 or 3)."`
	Budget     time.Duration `help:"Mean tick duration above which the layout is reported as degraded." default:"8ms"`
	Cache      string        `help:"Directory remote graph files are cached in." default:"data/cache"`
}

func main() {
	kong.Parse(&cli,
		kong.Name("layout-streamer"),
		kong.Description("Runs a force-directed layout and streams its snapshots over websockets."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.Pretty {
		cfg.Logging.Pretty = true
	}
	if cli.Listen != "" {
		cfg.Stream.ListenAddr = cli.Listen
	}
	if cli.Dimensions != 0 {
		cfg.Layout.Dimensions = cli.Dimensions
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Pretty)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Streamer failed")
	}
}

// latest keeps the most recent snapshot for the plain HTTP endpoints.
type latest struct {
	mu   sync.Mutex
	snap *layout.Snapshot
}

func (l *latest) set(s layout.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap = &s
}

func (l *latest) get() (layout.Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.snap == nil {
		return layout.Snapshot{}, false
	}
	return *l.snap, true
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rc, err := utils.OpenSource(ctx, cli.Graph, cli.Cache, logger)
	if err != nil {
		return fmt.Errorf("failed to open graph: %w", err)
	}
	graph, err := layout.LoadGraph(rc)
	rc.Close()
	if err != nil {
		return err
	}
	logger.Info().Int("nodes", len(graph.Nodes)).Int("links", len(graph.Links)).Msg("Loaded graph")

	worker := layout.NewWorker(logging.Component(logger, "layout"), layout.WithBuffer(64))
	defer worker.Terminate()
	opts := cfg.Layout.Options()
	if err := worker.Init(graph.Nodes, graph.Links, opts); err != nil {
		return fmt.Errorf("failed to start layout: %w", err)
	}

	b := stream.NewBroadcaster(cfg.Stream.ClientBuffer, logging.Component(logger, "broadcaster"))
	defer b.Close()
	monitor := stream.NewMonitor(cli.Budget, logging.Component(logger, "monitor"))
	var last latest

	var optsMu sync.Mutex
	mux := http.NewServeMux()
	mux.Handle(cfg.Stream.Path, b.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			State   string        `json:"state"`
			Clients int           `json:"clients"`
			Dropped uint64        `json:"dropped_clients"`
			Health  stream.Health `json:"health"`
		}{worker.State().String(), b.Clients(), b.Dropped(), monitor.Health()})
	})
	mux.HandleFunc("/snapshot.geojson", func(w http.ResponseWriter, r *http.Request) {
		s, ok := last.get()
		if !ok {
			http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
			return
		}
		data, err := export.SnapshotGeoJSON(s)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write(data)
	})
	mux.HandleFunc("/options", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			LinkDistance *float64 `json:"link_distance"`
			Repulsion    *float64 `json:"repulsion"`
			Dimensions   *int     `json:"dimensions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		optsMu.Lock()
		defer optsMu.Unlock()
		next := opts
		if req.LinkDistance != nil {
			next.LinkDistance = *req.LinkDistance
		}
		if req.Repulsion != nil {
			next.Repulsion = *req.Repulsion
		}
		if req.Dimensions != nil {
			next.Dimensions = *req.Dimensions
		}
		if err := worker.UpdateOptions(next); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, layout.ErrNotRunning) || errors.Is(err, layout.ErrTerminated) {
				status = http.StatusConflict
			}
			http.Error(w, err.Error(), status)
			return
		}
		opts = next
		logger.Info().Float64("link_distance", next.LinkDistance).Float64("repulsion", next.Repulsion).Int("dimensions", next.Dimensions).Msg("Layout options updated")
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:              cfg.Stream.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for s := range worker.Snapshots() {
			last.set(s)
			monitor.Observe(s)
			b.Publish(s)
			if s.Type == layout.TypeStable {
				logger.Info().Uint64("ticks", s.Stats.Ticks).Dur("mean_tick", s.Stats.MeanTick).Msg("Layout stable")
			}
		}
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Str("path", cfg.Stream.Path).Msg("Serving layout snapshots")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		b.Close()
		worker.Terminate()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
