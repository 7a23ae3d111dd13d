package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	_ "github.com/silbinarywolf/preferdiscretegpu"
	"golang.org/x/sync/errgroup"

	"github.com/sudorandom/fightscope/pkg/bitmapcache"
	"github.com/sudorandom/fightscope/pkg/config"
	"github.com/sudorandom/fightscope/pkg/engine"
	"github.com/sudorandom/fightscope/pkg/fights"
	"github.com/sudorandom/fightscope/pkg/layout"
	"github.com/sudorandom/fightscope/pkg/logging"
	"github.com/sudorandom/fightscope/pkg/scene"
	"github.com/sudorandom/fightscope/pkg/stream"
	"github.com/sudorandom/fightscope/pkg/utils"
)

var cli struct {
	Config   string `help:"Config file (yaml, toml or json)." type:"path"`
	LogLevel string `help:"Overrides logging.level." name:"log-level"`
	Pretty   bool   `help:"Human readable log output."`

	Fights  string `arg:"" help:"Fights JSON file or URL."`
	Density string `help:"Precomputed density grid JSON." type:"existingfile"`
	Graph   string `help:"Relationship graph JSON file or URL, laid out locally."`
	Stream  string `help:"Layout snapshot stream to follow instead of a local layout (ws://host/path?format=binary)."`
	Watch   bool   `help:"Reload the fights file when it changes."`
	Query   string `help:"Highlight fights whose opponent or event matches these terms."`
	Cache   string `help:"Directory remote fights and graph files are cached in." default:"data/cache"`
	Width   int    `help:"Overrides viewer.width."`
	Height  int    `help:"Overrides viewer.height."`

	DurationMin float64 `help:"Overrides viewer.duration_min (seconds)." name:"duration-min"`
	DurationMax float64 `help:"Overrides viewer.duration_max (seconds)." name:"duration-max"`
}

func main() {
	kong.Parse(&cli,
		kong.Name("fight-viewer"),
		kong.Description("Interactive fight history scatter and relationship graph."),
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
	if cli.Width > 0 {
		cfg.Viewer.Width = cli.Width
	}
	if cli.Height > 0 {
		cfg.Viewer.Height = cli.Height
	}
	if cli.DurationMin > 0 {
		cfg.Viewer.DurationMin = cli.DurationMin
	}
	if cli.DurationMax > 0 {
		cfg.Viewer.DurationMax = cli.DurationMax
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Pretty)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Viewer failed")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	list, err := loadFights(ctx, cli.Fights, logger)
	if err != nil {
		return err
	}
	logger.Info().Int("fights", len(list)).Str("source", cli.Fights).Msg("Loaded fights")

	opts := engine.Options{
		Width:      cfg.Viewer.Width,
		Height:     cfg.Viewer.Height,
		CaptureDir: cfg.Viewer.CaptureDir,
		Plot:       cfg.Viewer.PlotConfig(),
		Zoom:       cfg.Viewer.Zoom(),
		Trend:      cfg.Viewer.TrendOptions(),
		TrendOn:    true,
		Scene:      scene.DefaultConfig(),
		Fetcher:    bitmapcache.NewHTTPFetcher(cfg.Bitmaps.FetchTimeout),
		BitmapSize: cfg.Bitmaps.Size,
		Prefetch:   cfg.Bitmaps.Limiter(),
		IdleAfter:  cfg.Bitmaps.IdleAfter,
		LayoutOpts: cfg.Layout.Options(),
		Logger:     logger,
	}

	if cfg.Bitmaps.StoreDir != "" {
		store, err := utils.OpenBlobStore(cfg.Bitmaps.StoreDir, 30*24*time.Hour)
		if err != nil {
			logger.Warn().Err(err).Str("dir", cfg.Bitmaps.StoreDir).Msg("Bitmap store unavailable, fetching from network only")
		} else {
			defer func() {
				hits, misses := store.Stats()
				logger.Info().Uint64("hits", hits).Uint64("misses", misses).Msg("Bitmap store closed")
				_ = store.Close()
			}()
			opts.Store = store
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	switch {
	case cli.Stream != "":
		ch := make(chan layout.Snapshot, 64)
		opts.Snapshots = ch
		g.Go(func() error {
			err := stream.Subscribe(gctx, cli.Stream, func(s layout.Snapshot) {
				select {
				case ch <- s:
				default:
				}
			}, stream.WithSubscribeLogger(logging.Component(logger, "stream")))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	case cli.Graph != "":
		graph, err := loadGraph(ctx, cli.Graph, logger)
		if err != nil {
			return err
		}
		w := layout.NewWorker(logging.Component(logger, "layout"))
		if err := w.Init(graph.Nodes, graph.Links, opts.LayoutOpts); err != nil {
			// The scatter still works without a graph.
			logger.Error().Err(err).Msg("Layout failed to start")
			w.Terminate()
		} else {
			opts.Layout = w
			opts.Snapshots = w.Snapshots()
		}
	}

	e := engine.New(opts)
	e.SetFights(list)
	if cli.Density != "" {
		grid, err := fights.LoadDensityFile(cli.Density)
		if err != nil {
			return fmt.Errorf("failed to load density grid: %w", err)
		}
		e.SetDensity(grid)
	}
	if d := cfg.Viewer.DurationDomain(); d != nil {
		e.Plot().SetDomain(d[0], d[1])
	}
	if cli.Query != "" {
		e.Plot().SetQuery(cli.Query)
	}
	e.Start(gctx)
	defer e.Close()

	if cli.Watch {
		if utils.IsURL(cli.Fights) {
			logger.Warn().Msg("Watch mode needs a local fights file, ignoring --watch")
		} else {
			g.Go(func() error {
				return fights.Watch(gctx, cli.Fights, 2*time.Second, logging.Component(logger, "watch"), e.SetFights)
			})
		}
	}

	if err := e.Run("fightscope", cfg.Viewer.TPS); err != nil {
		return fmt.Errorf("render loop: %w", err)
	}
	stop()
	return g.Wait()
}

func loadFights(ctx context.Context, src string, logger zerolog.Logger) ([]fights.Fight, error) {
	rc, err := utils.OpenSource(ctx, src, cli.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open fights: %w", err)
	}
	defer rc.Close()
	return fights.Load(rc)
}

func loadGraph(ctx context.Context, src string, logger zerolog.Logger) (layout.Graph, error) {
	rc, err := utils.OpenSource(ctx, src, cli.Cache, logger)
	if err != nil {
		return layout.Graph{}, fmt.Errorf("failed to open graph: %w", err)
	}
	defer rc.Close()
	return layout.LoadGraph(rc)
}
