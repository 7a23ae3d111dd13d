// Package engine drives the fight scatter and the relationship graph as an
// ebiten game. All state lives in the scatter, scene, trend and layout
// packages; the engine moves input into them and paints what they produce.
package engine

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/rs/zerolog"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/time/rate"

	"github.com/sudorandom/fightscope/pkg/bitmapcache"
	"github.com/sudorandom/fightscope/pkg/fights"
	"github.com/sudorandom/fightscope/pkg/layout"
	"github.com/sudorandom/fightscope/pkg/logging"
	"github.com/sudorandom/fightscope/pkg/scatter"
	"github.com/sudorandom/fightscope/pkg/scene"
	"github.com/sudorandom/fightscope/pkg/transform"
	"github.com/sudorandom/fightscope/pkg/trend"
)

type Pane int

const (
	PaneScatter Pane = iota
	PaneGraph
)

func (p Pane) String() string {
	if p == PaneGraph {
		return "graph"
	}
	return "scatter"
}

var (
	ColorBackground = color.RGBA{8, 10, 15, 255}
	ColorGrid       = color.RGBA{36, 42, 53, 255}
	ColorAccent     = color.RGBA{0, 191, 255, 255}
	ColorPanel      = color.RGBA{0, 0, 0, 160}
)

// maxSnapshotsPerUpdate bounds how much of a snapshot backlog one frame
// applies.
const maxSnapshotsPerUpdate = 16

// Options wires the engine to its data sources. Everything but Plot is
// optional.
type Options struct {
	Width, Height int
	CaptureDir    string

	Plot        scatter.Config
	Zoom        [2]float64
	Trend       trend.Options
	TrendOn     bool
	Scene       scene.Config
	Fetcher     bitmapcache.Fetcher
	Store       bitmapcache.Store
	BitmapSize  int
	Prefetch    *rate.Limiter
	IdleAfter   time.Duration
	Layout      *layout.Worker
	LayoutOpts  layout.Options
	Snapshots   <-chan layout.Snapshot
	Logger      zerolog.Logger
}

type Engine struct {
	Width, Height int
	CaptureDir    string

	logger zerolog.Logger
	now    func() time.Time

	plot        *scatter.Plot
	scene       *scene.Scene
	cache       *bitmapcache.Cache
	gate        *bitmapcache.IdleGate
	prefetcher  *bitmapcache.Prefetcher
	trendWorker *trend.Worker
	trendOpts   trend.Options
	layout      *layout.Worker
	layoutOpts  layout.Options
	snapshots   <-chan layout.Snapshot
	ready       chan string

	mu         sync.Mutex
	pending    []fights.Fight
	hasPending bool

	pane          Pane
	dpr           float64
	trendDirty    bool
	prefetchDirty bool
	viewVersion   uint64
	redraw        bool
	captureNext   bool
	lastUpdate    time.Time
	in            inputState

	heatmap    *ebiten.Image
	textures   map[string]*ebiten.Image
	fontSource *text.GoTextFaceSource
	monoSource *text.GoTextFaceSource

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// loadFace parses a font. On failure the text it would draw is skipped.
func loadFace(ttf []byte, name string, logger zerolog.Logger) *text.GoTextFaceSource {
	src, err := text.NewGoTextFaceSource(bytes.NewReader(ttf))
	if err != nil {
		logger.Error().Err(err).Str("font", name).Msg("Failed to load font, text disabled")
		return nil
	}
	return src
}

func New(opts Options) *Engine {
	logger := logging.Component(opts.Logger, "engine")
	s := loadFace(goregular.TTF, "goregular", logger)
	m := loadFace(gomono.TTF, "gomono", logger)

	e := &Engine{
		Width:      opts.Width,
		Height:     opts.Height,
		CaptureDir: opts.CaptureDir,
		logger:     logger,
		now:        time.Now,
		trendOpts:  opts.Trend,
		layout:     opts.Layout,
		layoutOpts: opts.LayoutOpts,
		snapshots:  opts.Snapshots,
		ready:      make(chan string, 256),
		dpr:        1,
		redraw:     true,
		textures:   map[string]*ebiten.Image{},
		fontSource: s,
		monoSource: m,
	}

	if opts.Fetcher != nil {
		copts := []bitmapcache.Option{
			bitmapcache.WithLogger(logging.Component(opts.Logger, "bitmaps")),
			bitmapcache.WithOnReady(e.bitmapReady),
		}
		if opts.Store != nil {
			copts = append(copts, bitmapcache.WithStore(opts.Store))
		}
		if opts.BitmapSize > 0 {
			copts = append(copts, bitmapcache.WithSize(opts.BitmapSize))
		}
		e.cache = bitmapcache.New(opts.Fetcher, copts...)
		e.gate = bitmapcache.NewIdleGate(opts.IdleAfter)
		e.prefetcher = bitmapcache.NewPrefetcher(e.cache, opts.Prefetch, e.gate, logging.Component(opts.Logger, "prefetch"))
	}

	zmin, zmax := opts.Zoom[0], opts.Zoom[1]
	if zmin <= 0 || zmax < zmin {
		zmin, zmax = 0.5, 12
	}
	e.plot = scatter.NewPlot(opts.Plot, transform.NewController(zmin, zmax), e.cache, scatter.DefaultLookups(), logging.Component(opts.Logger, "scatter"))
	e.plot.EnableTrend(opts.TrendOn)
	e.scene = scene.New(opts.Scene, logging.Component(opts.Logger, "scene"))
	e.trendWorker = trend.NewWorker(logging.Component(opts.Logger, "trend"))
	return e
}

func (e *Engine) Plot() *scatter.Plot { return e.plot }

func (e *Engine) Scene() *scene.Scene { return e.scene }

func (e *Engine) Pane() Pane { return e.pane }

// Run opens a window and blocks until it closes. Frames are only repainted
// when something changed, so the screen is kept between frames.
func (e *Engine) Run(title string, tps int) error {
	ebiten.SetScreenClearedEveryFrame(false)
	ebiten.SetWindowSize(e.Width, e.Height)
	ebiten.SetWindowTitle(title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	if tps > 0 {
		ebiten.SetTPS(tps)
	}
	return ebiten.RunGame(e)
}

// Start launches the background workers. Close stops them.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.trendWorker.Start(ctx)
	if e.prefetcher != nil {
		e.prefetcher.Start(ctx)
	}
}

func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		e.trendWorker.Stop()
		if e.prefetcher != nil {
			e.prefetcher.Stop()
		}
		if e.layout != nil {
			e.layout.Terminate()
		}
		if e.cache != nil {
			e.cache.Close()
		}
		e.logger.Info().Msg("Engine closed")
	})
}

// SetFights hands a new fight list to the render loop. Safe to call from
// any goroutine, such as a file watcher.
func (e *Engine) SetFights(list []fights.Fight) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = list
	e.hasPending = true
}

func (e *Engine) SetDensity(g fights.DensityGrid) {
	e.plot.SetDensity(g)
}

// bitmapReady runs on cache goroutines and must not block.
func (e *Engine) bitmapReady(key string) {
	select {
	case e.ready <- key:
	default:
	}
}

func (e *Engine) Update() error {
	now := e.now()
	var dt time.Duration
	if !e.lastUpdate.IsZero() {
		dt = now.Sub(e.lastUpdate)
	}
	e.lastUpdate = now

	e.applyPendingFights()
	e.drainSnapshots()
	e.drainTrend()
	e.drainBitmaps()
	e.handleKeys()
	e.handlePointer()
	e.scene.Step(dt)

	if v := e.plot.Controller().Version(); v != e.viewVersion {
		e.viewVersion = v
		e.prefetchDirty = true
	}
	if e.trendDirty && e.plot.TrendEnabled() {
		e.trendDirty = false
		e.trendWorker.Submit(e.plot.TrendInput(), e.trendOpts)
	}
	if e.prefetchDirty && e.prefetcher != nil && e.gate.Idle() {
		e.prefetchDirty = false
		cx, cy := e.plot.Center()
		e.prefetcher.Schedule(e.plot.PrefetchRequests(), cx, cy)
	}
	return nil
}

func (e *Engine) applyPendingFights() {
	e.mu.Lock()
	list, ok := e.pending, e.hasPending
	e.pending, e.hasPending = nil, false
	e.mu.Unlock()
	if !ok {
		return
	}
	e.plot.SetFights(list)
	e.trendDirty = true
	e.prefetchDirty = true
	e.logger.Info().Int("fights", len(list)).Msg("Fight list updated")
}

func (e *Engine) drainSnapshots() {
	if e.snapshots == nil {
		return
	}
	for range maxSnapshotsPerUpdate {
		select {
		case snap, ok := <-e.snapshots:
			if !ok {
				e.logger.Info().Msg("Layout snapshot stream closed")
				e.snapshots = nil
				return
			}
			e.scene.Apply(snap)
		default:
			return
		}
	}
}

func (e *Engine) drainTrend() {
	for {
		select {
		case res := <-e.trendWorker.Results():
			if !e.trendWorker.Accept(res) {
				continue
			}
			if res.Err != nil {
				e.logger.Warn().Err(res.Err).Msg("Trend computation failed, hiding trend line")
				e.plot.SetTrend(nil)
				continue
			}
			e.plot.SetTrend(res.Points)
		default:
			return
		}
	}
}

func (e *Engine) drainBitmaps() {
	n := 0
	for {
		select {
		case key := <-e.ready:
			if img, ok := e.textures[key]; ok {
				img.Deallocate()
				delete(e.textures, key)
			}
			n++
		default:
			if n > 0 {
				e.plot.Invalidate("bitmap")
			}
			return
		}
	}
}

// Layout sizes the screen in device pixels so markers stay crisp on high
// density displays.
func (e *Engine) Layout(outsideWidth, outsideHeight int) (int, int) {
	dpr := deviceScaleFactor()
	if dpr <= 0 {
		dpr = 1
	}
	w, h := int(float64(outsideWidth)*dpr), int(float64(outsideHeight)*dpr)
	if w != e.Width || h != e.Height || dpr != e.dpr {
		e.Width, e.Height, e.dpr = w, h, dpr
		e.plot.Resize(float64(outsideWidth), float64(outsideHeight), dpr)
		e.scene.Resize(float64(w), float64(h))
		e.redraw = true
		e.prefetchDirty = true
	}
	return w, h
}

func (e *Engine) Draw(screen *ebiten.Image) {
	painted := false
	switch e.pane {
	case PaneScatter:
		if e.redraw || e.plot.NeedsRedraw() {
			e.drawScatter(screen)
			painted = true
		}
	case PaneGraph:
		if e.redraw || e.scene.NeedsRedraw() {
			e.drawGraph(screen)
			e.scene.Drawn()
			painted = true
		}
	}
	if painted {
		e.drawStatusLine(screen)
	}
	e.redraw = false

	if e.captureNext {
		e.captureNext = false
		e.captureFrame(screen, e.pane.String(), e.now())
	}
}

// texture converts a resolved bitmap once and keeps it for later frames.
func (e *Engine) texture(key string) *ebiten.Image {
	if img, ok := e.textures[key]; ok {
		return img
	}
	if e.cache == nil {
		return nil
	}
	bm, ok := e.cache.Peek(key)
	if !ok || bm.Image == nil {
		return nil
	}
	img := ebiten.NewImageFromImage(bm.Image)
	e.textures[key] = img
	return img
}

func (e *Engine) ensureHeatmap(w, h int) bool {
	if e.heatmap != nil {
		b := e.heatmap.Bounds()
		if b.Dx() == w && b.Dy() == h {
			return false
		}
		e.heatmap.Deallocate()
	}
	e.heatmap = ebiten.NewImageWithOptions(image.Rect(0, 0, w, h), nil)
	return true
}
