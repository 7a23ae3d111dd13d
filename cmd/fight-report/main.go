package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sudorandom/fightscope/pkg/export"
	"github.com/sudorandom/fightscope/pkg/fights"
	"github.com/sudorandom/fightscope/pkg/layout"
	"github.com/sudorandom/fightscope/pkg/logging"
	"github.com/sudorandom/fightscope/pkg/trend"
	"github.com/sudorandom/fightscope/pkg/utils"
)

type Globals struct {
	LogLevel string `help:"Log level." name:"log-level" default:"info"`
	Cache    string `help:"Directory remote input files are cached in." default:"data/cache"`
	Out      string `help:"Output file, stdout when empty." short:"o"`
}

type FilterFlags struct {
	Result []string `help:"Only include these results (WIN, LOSS, DRAW)."`
	Method []string `help:"Only include these finish methods (KO, SUB, DEC, OTHER)."`
}

func (f FilterFlags) filters() (fights.Filters, error) {
	var results []fights.Result
	for _, s := range f.Result {
		r, err := fights.ParseResult(s)
		if err != nil {
			return fights.Filters{}, fmt.Errorf("%w: %q", err, s)
		}
		results = append(results, r)
	}
	var methods []fights.Method
	for _, s := range f.Method {
		methods = append(methods, fights.ParseMethod(s))
	}
	return fights.NewFilters(results, methods), nil
}

type TrendFlags struct {
	Window int     `help:"Fixed rolling median window, derived from --span when zero."`
	Span   float64 `help:"Window as a fraction of the point count." default:"0.15"`
}

func (t TrendFlags) options() trend.Options {
	return trend.Options{Window: t.Window, Span: t.Span, MinWindow: trend.DefaultMinWindow}
}

type htmlCmd struct {
	FilterFlags
	TrendFlags

	Fights   string `arg:"" help:"Fights JSON file or URL."`
	Title    string `help:"Page and chart title." default:"Fight history"`
	Subtitle string `help:"Chart subtitle."`
	NoTrend  bool   `help:"Leave out the trend line." name:"no-trend"`

	DurationMin float64 `help:"Lower bound of the duration axis in seconds." name:"duration-min"`
	DurationMax float64 `help:"Upper bound of the duration axis in seconds, from the data when zero." name:"duration-max"`
}

func (c *htmlCmd) Run(g *Globals, logger zerolog.Logger) error {
	list, err := loadFights(g, c.Fights, logger)
	if err != nil {
		return err
	}
	filters, err := c.filters()
	if err != nil {
		return err
	}

	var pts []trend.Point
	if !c.NoTrend {
		pts, err = trend.Smooth(export.TrendPoints(list, filters), c.options())
		if err != nil {
			return fmt.Errorf("failed to compute trend: %w", err)
		}
	}

	cfg := export.DefaultReportConfig()
	cfg.Title = c.Title
	cfg.Subtitle = c.Subtitle
	cfg.Filters = filters
	if c.DurationMax > 0 {
		if c.DurationMax <= c.DurationMin {
			return fmt.Errorf("--duration-max must exceed --duration-min")
		}
		cfg.DurationDomain = &[2]float64{c.DurationMin, c.DurationMax}
	}
	return writeOutput(g.Out, func(w io.Writer) error {
		return export.RenderScatterHTML(w, list, pts, cfg)
	})
}

type trendCmd struct {
	FilterFlags
	TrendFlags

	Fights string `arg:"" help:"Fights JSON file or URL."`
}

func (c *trendCmd) Run(g *Globals, logger zerolog.Logger) error {
	list, err := loadFights(g, c.Fights, logger)
	if err != nil {
		return err
	}
	filters, err := c.filters()
	if err != nil {
		return err
	}
	input := export.TrendPoints(list, filters)
	pts, err := trend.Smooth(input, c.options())
	if err != nil {
		return fmt.Errorf("failed to compute trend: %w", err)
	}
	logger.Info().Int("fights", len(input)).Int("window", c.options().WindowFor(len(input))).Msg("Computed trend")

	type row struct {
		Date    string  `json:"date"`
		Seconds float64 `json:"seconds"`
	}
	rows := make([]row, len(pts))
	for i, p := range pts {
		rows[i] = row{Date: time.Unix(int64(p.X), 0).UTC().Format("2006-01-02"), Seconds: p.Y}
	}
	return writeOutput(g.Out, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	})
}

type geojsonCmd struct {
	Graph      string `arg:"" help:"Relationship graph JSON file or URL."`
	Dimensions int    `help:"Layout dimensions (2 or 3)." default:"2"`
	MaxTicks   int    `help:"Stop after this many ticks even if the layout has not settled." default:"3000" name:"max-ticks"`
}

func (c *geojsonCmd) Run(g *Globals, logger zerolog.Logger) error {
	rc, err := utils.OpenSource(context.Background(), c.Graph, g.Cache, logger)
	if err != nil {
		return fmt.Errorf("failed to open graph: %w", err)
	}
	graph, err := layout.LoadGraph(rc)
	rc.Close()
	if err != nil {
		return err
	}

	opts := layout.DefaultOptions()
	opts.Dimensions = c.Dimensions
	sim, err := layout.NewSimulation(graph.Nodes, graph.Links, opts)
	if err != nil {
		return err
	}

	var total time.Duration
	for sim.Alpha() >= opts.AlphaMin && int(sim.Ticks()) < c.MaxTicks {
		total += sim.Step()
	}
	settled := sim.Alpha() < opts.AlphaMin
	ev := logger.Info()
	if !settled {
		ev = logger.Warn()
	}
	ev.Uint64("ticks", sim.Ticks()).Float64("alpha", sim.Alpha()).Dur("elapsed", total).Bool("settled", settled).Msg("Layout finished")

	nodes, links := sim.Positions()
	s := layout.Snapshot{
		Type:      layout.TypeStable,
		RunID:     uuid.New(),
		Nodes:     nodes,
		Links:     links,
		Timestamp: time.Now().UTC(),
		Stats:     layout.Stats{Ticks: sim.Ticks(), Alpha: sim.Alpha()},
	}
	if sim.Ticks() > 0 {
		s.Stats.MeanTick = total / time.Duration(sim.Ticks())
	}
	data, err := export.SnapshotGeoJSON(s)
	if err != nil {
		return err
	}
	return writeOutput(g.Out, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

var cli struct {
	Globals

	HTML    htmlCmd    `cmd:"" name:"html" help:"Render an interactive HTML scatter of a fight history."`
	Trend   trendCmd   `cmd:"" help:"Print the rolling median trend of fight durations as JSON."`
	GeoJSON geojsonCmd `cmd:"" name:"geojson" help:"Lay out a relationship graph and write it as GeoJSON."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("fight-report"),
		kong.Description("Static reports from fight histories and relationship graphs."),
		kong.UsageOnError(),
	)
	logger := logging.New(cli.LogLevel, true)
	ctx.Bind(logger)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}

func loadFights(g *Globals, src string, logger zerolog.Logger) ([]fights.Fight, error) {
	rc, err := utils.OpenSource(context.Background(), src, g.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open fights: %w", err)
	}
	defer rc.Close()
	return fights.Load(rc)
}

func writeOutput(path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
