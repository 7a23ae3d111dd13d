package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"github.com/sudorandom/fightscope/pkg/layout"
	"github.com/sudorandom/fightscope/pkg/logging"
	"github.com/sudorandom/fightscope/pkg/stream"
)

var cli struct {
	LogLevel string `help:"Log level." name:"log-level" default:"warn"`

	URL          string        `arg:"" help:"Snapshot stream URL, e.g. ws://localhost:8088/snapshots?format=binary."`
	Interval     time.Duration `help:"How often to print the report." default:"1s"`
	Budget       time.Duration `help:"Mean tick duration above which the layout counts as degraded." default:"8ms"`
	Top          int           `help:"Number of fastest moving nodes to list." default:"5"`
	ExitOnStable bool          `help:"Exit once the layout reports STABLE." name:"exit-on-stable"`
}

// report accumulates what the stream has shown so far.
type report struct {
	mu        sync.Mutex
	start     time.Time
	frames    int
	stableAt  time.Duration
	health    stream.Health
	last      layout.Snapshot
	lastFrame time.Time
}

func (r *report) record(s layout.Snapshot, h stream.Health) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h.RunID != r.health.RunID {
		r.frames = 0
		r.stableAt = 0
		r.start = time.Now()
	}
	r.frames++
	r.health = h
	r.last = s
	r.lastFrame = time.Now()
	if s.Type == layout.TypeStable && r.stableAt == 0 {
		r.stableAt = time.Since(r.start)
	}
}

func speed(n layout.PositionedNode) float64 {
	return n.VX*n.VX + n.VY*n.VY + n.VZ*n.VZ
}

func (r *report) print() {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := time.Since(r.start).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}
	h := r.health

	fmt.Printf("\033[H\033[2J")
	fmt.Printf("Layout Stream Monitor (run %s, %.1fs)\n", h.RunID, elapsed)
	fmt.Printf("--------------------------------------------------\n")
	fmt.Printf("Frames:     %d (%.1f/s), seq %d, gaps %d\n", r.frames, float64(r.frames)/elapsed, h.Seq, h.Gaps)
	fmt.Printf("Nodes:      %d, links %d\n", len(r.last.Nodes), len(r.last.Links))
	fmt.Printf("Ticks:      %d, alpha %.4f\n", h.Ticks, h.Alpha)
	fmt.Printf("Tick time:  mean %s, last %s\n", h.MeanTick.Round(time.Microsecond), h.LastTick.Round(time.Microsecond))
	if !r.lastFrame.IsZero() {
		fmt.Printf("Last frame: %s ago\n", time.Since(r.lastFrame).Round(time.Millisecond))
	}
	fmt.Printf("--------------------------------------------------\n")

	switch {
	case h.Stable:
		fmt.Printf("STATE: STABLE after %s\n", r.stableAt.Round(time.Millisecond))
	case h.Degraded:
		fmt.Printf("STATE: DEGRADED (mean tick %s over budget %s)\n", h.MeanTick.Round(time.Microsecond), cli.Budget)
	default:
		fmt.Printf("STATE: RUNNING\n")
	}
	fmt.Printf("--------------------------------------------------\n")

	nodes := append([]layout.PositionedNode(nil), r.last.Nodes...)
	sort.Slice(nodes, func(i, j int) bool { return speed(nodes[i]) > speed(nodes[j]) })
	n := min(cli.Top, len(nodes))
	if n > 0 {
		fmt.Printf("Top %d moving nodes:\n", n)
		for _, node := range nodes[:n] {
			label := node.Label
			if label == "" {
				label = node.ID
			}
			fmt.Printf("  %-24s  (%8.1f, %8.1f, %8.1f)  v=%.3f\n", label, node.X, node.Y, node.Z, speed(node))
		}
	}
}

func main() {
	kong.Parse(&cli,
		kong.Name("debug-layout"),
		kong.Description("Follows a layout snapshot stream and prints its health."),
		kong.UsageOnError(),
	)
	logger := logging.New(cli.LogLevel, true)

	if err := run(logger); err != nil {
		logger.Fatal().Err(err).Msg("Monitor failed")
	}
}

func run(logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor := stream.NewMonitor(cli.Budget, logging.Component(logger, "monitor"))
	rep := &report{start: time.Now()}

	go func() {
		ticker := time.NewTicker(cli.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rep.print()
			}
		}
	}()

	err := stream.Subscribe(ctx, cli.URL, func(s layout.Snapshot) {
		h := monitor.Observe(s)
		rep.record(s, h)
		if cli.ExitOnStable && s.Type == layout.TypeStable {
			rep.print()
			stop()
		}
	}, stream.WithSubscribeLogger(logging.Component(logger, "stream")))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
