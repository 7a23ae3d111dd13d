// Package scatter turns a fight history into a layered display list: a
// density heatmap underneath and markers, badges and a trend line on top.
// It owns hit-testing and redraw bookkeeping but never touches a GPU, so the
// painter in pkg/engine stays a thin loop over Frame.
package scatter

import (
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sudorandom/fightscope/pkg/bitmapcache"
	"github.com/sudorandom/fightscope/pkg/fights"
	"github.com/sudorandom/fightscope/pkg/search"
	"github.com/sudorandom/fightscope/pkg/spatial"
	"github.com/sudorandom/fightscope/pkg/transform"
	"github.com/sudorandom/fightscope/pkg/trend"
)

type Config struct {
	MarkerRadius    float64
	HoverScale      float64
	HitSlop         float64
	DimAlpha        float64
	HeatmapMaxAlpha float64
	HeatmapCols     int
	HeatmapRows     int
	Direction       Direction
	Margins         Margins
}

func DefaultConfig() Config {
	return Config{
		MarkerRadius:    14,
		HoverScale:      1.25,
		HitSlop:         4,
		DimAlpha:        0.25,
		HeatmapMaxAlpha: 0.35,
		HeatmapCols:     24,
		HeatmapRows:     12,
		Direction:       DurationUp,
		Margins:         DefaultMargins,
	}
}

// Plot is the scatter view's state. All methods are safe for concurrent use;
// callbacks run without the lock held.
type Plot struct {
	cfg        Config
	controller *transform.Controller
	cache      *bitmapcache.Cache
	lookups    Lookups
	logger     zerolog.Logger

	mu         sync.Mutex
	list       []fights.Fight
	byID       map[string]int
	filters    fights.Filters
	query      *search.Matcher
	domain     *[2]float64
	density    fights.DensityGrid
	hasDensity bool
	densityOn  bool
	trendPts   []trend.Point
	trendOn    bool

	width, height, dpr float64
	scales             Scales
	auto               fights.DensityGrid
	rs                 []RenderableFight
	index              *spatial.Index[int]
	version            uint64
	stale              bool

	hovered  string
	selected string
	onSelect func(id string)
	onHover  func(id string)

	dirty        bool
	heatmapDirty bool
	reason       string
	frames       uint64
}

// NewPlot creates an empty plot. cache may be nil, in which case markers
// always use their fallback fill.
func NewPlot(cfg Config, controller *transform.Controller, cache *bitmapcache.Cache, lookups Lookups, logger zerolog.Logger) *Plot {
	def := DefaultConfig()
	if cfg.MarkerRadius <= 0 {
		cfg.MarkerRadius = def.MarkerRadius
	}
	if cfg.HoverScale <= 0 {
		cfg.HoverScale = def.HoverScale
	}
	if cfg.DimAlpha <= 0 {
		cfg.DimAlpha = def.DimAlpha
	}
	if cfg.HeatmapMaxAlpha <= 0 {
		cfg.HeatmapMaxAlpha = def.HeatmapMaxAlpha
	}
	if cfg.HeatmapCols <= 0 {
		cfg.HeatmapCols = def.HeatmapCols
	}
	if cfg.HeatmapRows <= 0 {
		cfg.HeatmapRows = def.HeatmapRows
	}
	if cfg.Margins == (Margins{}) {
		cfg.Margins = def.Margins
	}
	if controller == nil {
		controller = transform.NewController(0.5, 12)
	}
	p := &Plot{
		cfg:        cfg,
		controller: controller,
		cache:      cache,
		lookups:    lookups.withDefaults(),
		logger:     logger,
		byID:       map[string]int{},
		densityOn:  true,
		width:      1,
		height:     1,
		dpr:        1,
		dirty:      true,
	}
	p.relayoutLocked()
	return p
}

func (p *Plot) Controller() *transform.Controller {
	return p.controller
}

func (p *Plot) invalidateLocked(reason string) {
	p.dirty = true
	p.reason = reason
	p.logger.Trace().Str("reason", reason).Msg("Plot invalidated")
}

// Invalidate requests a redraw. Any number of calls before the next Frame
// produce a single redraw.
func (p *Plot) Invalidate(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidateLocked(reason)
}

// NeedsRedraw reports whether Frame would produce something new.
func (p *Plot) NeedsRedraw() bool {
	v := p.controller.Version()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirty || v != p.version
}

// Reason is the most recent invalidation reason.
func (p *Plot) Reason() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reason
}

func (p *Plot) relayoutLocked() {
	p.scales = NewScales(p.list, p.width, p.height, p.dpr, p.cfg.Margins, p.cfg.Direction, p.domain)
	p.auto = fights.Bucketize(p.list, p.cfg.HeatmapCols, p.cfg.HeatmapRows,
		p.scales.X.Min, p.scales.X.Max, p.scales.Y.D0, p.scales.Y.D1)
	p.stale = true
	p.heatmapDirty = true
}

// ensureLocked brings screen positions and the hit-test index up to date
// with the current transform.
func (p *Plot) ensureLocked() {
	v := p.controller.Version()
	t := p.controller.Transform()
	if v != p.version {
		// Hit tests reproject too, so the pending redraw must outlive them.
		p.invalidateLocked("transform")
	}
	switch {
	case p.stale:
		p.rs = Derive(p.list, p.filters, p.scales, t, p.cfg.MarkerRadius*p.dpr)
		if p.query != nil {
			for i := range p.rs {
				if !p.query.Match(p.rs[i].Fight) {
					p.rs[i].Dimmed = true
				}
			}
		}
		p.index = nil
		p.stale = false
		p.version = v
	case v != p.version:
		reproject(p.rs, t)
		p.index = nil
		p.version = v
		p.heatmapDirty = true
	}
	if p.index == nil {
		rs := p.rs
		ids := make([]int, len(rs))
		for i := range ids {
			ids[i] = i
		}
		p.index = spatial.Build(ids, func(i int) (float64, float64) {
			return rs[i].ScreenX, rs[i].ScreenY
		})
	}
}

// SetFights replaces the fight list. Hover is cleared; the selection
// survives if the selected fight is still present.
func (p *Plot) SetFights(list []fights.Fight) {
	p.mu.Lock()
	p.list = append([]fights.Fight(nil), list...)
	p.byID = make(map[string]int, len(list))
	for i, f := range p.list {
		p.byID[f.ID] = i
	}
	var cleared func(string)
	p.hovered = ""
	if _, ok := p.byID[p.selected]; !ok && p.selected != "" {
		p.selected = ""
		cleared = p.onSelect
	}
	p.relayoutLocked()
	p.invalidateLocked("fights")
	p.logger.Debug().Int("fights", len(list)).Msg("Fights updated")
	p.mu.Unlock()

	if cleared != nil {
		cleared("")
	}
}

func (p *Plot) Fights() []fights.Fight {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]fights.Fight(nil), p.list...)
}

// Fight looks up a fight by ID.
func (p *Plot) Fight(id string) (fights.Fight, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, ok := p.byID[id]
	if !ok {
		return fights.Fight{}, false
	}
	return p.list[i], true
}

func (p *Plot) SetFilters(f fights.Filters) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filters = f
	p.stale = true
	p.invalidateLocked("filters")
}

func (p *Plot) Filters() fights.Filters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filters
}

// SetQuery dims fights that do not mention any term of query. An empty query
// clears the search.
func (p *Plot) SetQuery(query string) {
	m := search.NewMatcher(query)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.query = m
	p.stale = true
	p.invalidateLocked("query")
}

// SetDensity supplies pre-aggregated counts. Without it the plot bins the
// fight list itself.
func (p *Plot) SetDensity(g fights.DensityGrid) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.density = g
	p.hasDensity = g.Cols > 0 && g.Rows > 0
	p.heatmapDirty = true
	p.invalidateLocked("density")
}

func (p *Plot) EnableDensity(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.densityOn == on {
		return
	}
	p.densityOn = on
	p.heatmapDirty = true
	p.invalidateLocked("density")
}

func (p *Plot) DensityEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.densityOn
}

// SetDomain fixes the duration axis to [min, max] seconds.
func (p *Plot) SetDomain(min, max float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !(max > min) {
		return
	}
	p.domain = &[2]float64{min, max}
	p.relayoutLocked()
	p.invalidateLocked("domain")
}

// ClearDomain goes back to the data-derived duration axis.
func (p *Plot) ClearDomain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.domain = nil
	p.relayoutLocked()
	p.invalidateLocked("domain")
}

// SetTrend installs a computed trend line (X in unix seconds).
func (p *Plot) SetTrend(points []trend.Point) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trendPts = append([]trend.Point(nil), points...)
	if p.trendOn {
		p.invalidateLocked("trend")
	}
}

func (p *Plot) EnableTrend(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.trendOn == on {
		return
	}
	p.trendOn = on
	p.invalidateLocked("trend")
}

func (p *Plot) TrendEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trendOn
}

// TrendInput returns the points the trend should be computed over: fights
// passing the active filters, as (unix seconds, duration).
func (p *Plot) TrendInput() []trend.Point {
	p.mu.Lock()
	defer p.mu.Unlock()
	pts := make([]trend.Point, 0, len(p.list))
	for _, f := range p.list {
		if p.filters.Excludes(f) {
			continue
		}
		pts = append(pts, trend.Point{X: float64(f.Date.Unix()), Y: f.DurationSeconds})
	}
	return pts
}

// Resize sets the backing store to the container size times dpr.
func (p *Plot) Resize(width, height, dpr float64) {
	if dpr <= 0 {
		dpr = 1
	}
	w, h := math.Max(width*dpr, 1), math.Max(height*dpr, 1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if w == p.width && h == p.height && dpr == p.dpr {
		return
	}
	p.width, p.height, p.dpr = w, h, dpr
	p.relayoutLocked()
	p.invalidateLocked("resize")
}

// Size returns the backing dimensions and pixel ratio.
func (p *Plot) Size() (w, h, dpr float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.width, p.height, p.dpr
}

func (p *Plot) OnSelect(fn func(id string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSelect = fn
}

func (p *Plot) OnHover(fn func(id string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onHover = fn
}

func (p *Plot) hitLocked(x, y float64) string {
	p.ensureLocked()
	r := p.cfg.MarkerRadius*p.dpr*p.cfg.HoverScale + p.cfg.HitSlop*p.dpr
	i, ok := p.index.Nearest(x, y, r)
	if !ok {
		return ""
	}
	return p.rs[i].ID
}

// Hit returns the ID of the fight under (x, y), or "".
func (p *Plot) Hit(x, y float64) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hitLocked(x, y)
}

// PointerMove updates the hovered fight.
func (p *Plot) PointerMove(x, y float64) {
	p.mu.Lock()
	id := p.hitLocked(x, y)
	if id == p.hovered {
		p.mu.Unlock()
		return
	}
	p.hovered = id
	p.invalidateLocked("hover")
	cb := p.onHover
	p.mu.Unlock()

	if cb != nil {
		cb(id)
	}
}

// PointerLeave clears hover when the pointer leaves the surface.
func (p *Plot) PointerLeave() {
	p.mu.Lock()
	if p.hovered == "" {
		p.mu.Unlock()
		return
	}
	p.hovered = ""
	p.invalidateLocked("hover")
	cb := p.onHover
	p.mu.Unlock()

	if cb != nil {
		cb("")
	}
}

// Click selects the fight under (x, y). Clicking empty space keeps the
// current selection.
func (p *Plot) Click(x, y float64) {
	p.mu.Lock()
	id := p.hitLocked(x, y)
	if id == "" || id == p.selected {
		p.mu.Unlock()
		return
	}
	p.selected = id
	p.invalidateLocked("select")
	cb := p.onSelect
	p.mu.Unlock()

	if cb != nil {
		cb(id)
	}
}

func (p *Plot) ClearSelection() {
	p.mu.Lock()
	if p.selected == "" {
		p.mu.Unlock()
		return
	}
	p.selected = ""
	p.invalidateLocked("select")
	cb := p.onSelect
	p.mu.Unlock()

	if cb != nil {
		cb("")
	}
}

func (p *Plot) Hovered() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hovered
}

func (p *Plot) Selected() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected
}

// Renderables returns a copy of the current renderable set.
func (p *Plot) Renderables() []RenderableFight {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureLocked()
	return append([]RenderableFight(nil), p.rs...)
}

// Center is the middle of the plot area in screen space.
func (p *Plot) Center() (float64, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return (p.scales.X.R0 + p.scales.X.R1) / 2, (p.scales.Y.R0 + p.scales.Y.R1) / 2
}

// PrefetchRequests lists every fight's bitmap with its screen position.
func (p *Plot) PrefetchRequests() []bitmapcache.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureLocked()
	reqs := make([]bitmapcache.Request, 0, len(p.rs))
	for _, r := range p.rs {
		reqs = append(reqs, bitmapcache.Request{
			Key:   p.lookups.BitmapKey(r.Fight),
			URL:   r.HeadshotURL,
			Label: r.OpponentName,
			X:     r.ScreenX,
			Y:     r.ScreenY,
		})
	}
	return reqs
}

// Frames is the number of frames produced so far.
func (p *Plot) Frames() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

// Frame builds the display list and clears the redraw flag.
func (p *Plot) Frame() Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureLocked()
	t := p.controller.Transform()

	f := Frame{
		Width:    p.width,
		Height:   p.height,
		DPR:      p.dpr,
		PlotArea: [4]float64{p.scales.X.R0, math.Min(p.scales.Y.R0, p.scales.Y.R1), p.scales.X.R1, math.Max(p.scales.Y.R0, p.scales.Y.R1)},
	}
	if p.densityOn {
		f.Heatmap = p.cellsLocked(t)
	}
	f.HeatmapDirty = p.heatmapDirty
	f.Markers = p.markersLocked()
	if p.trendOn {
		f.Trend = make([]Vec, 0, len(p.trendPts))
		for _, pt := range p.trendPts {
			x, y := t.Apply(p.scales.X.MapUnix(pt.X), p.scales.Y.Map(pt.Y))
			f.Trend = append(f.Trend, Vec{X: x, Y: y})
		}
	}
	for _, tick := range p.scales.X.YearTicks(12) {
		f.XTicks = append(f.XTicks, Tick{Pos: t.ApplyX(tick.Pos), Label: tick.Label})
	}
	for _, tick := range p.scales.Y.DurationTicks(8) {
		f.YTicks = append(f.YTicks, Tick{Pos: t.ApplyY(tick.Pos), Label: tick.Label})
	}

	p.dirty = false
	p.heatmapDirty = false
	p.frames++
	return f
}

func (p *Plot) cellsLocked(t transform.Transform) []Cell {
	grid := p.auto
	if p.hasDensity {
		grid = p.density
	}
	if grid.Cols <= 0 || grid.Rows <= 0 {
		return nil
	}
	maxCount := 0
	for _, b := range grid.Buckets {
		if inGrid(grid, b) && b.Count > maxCount {
			maxCount = b.Count
		}
	}
	if maxCount == 0 {
		return nil
	}
	xs, ys := p.scales.X, p.scales.Y
	colW := (xs.R1 - xs.R0) / float64(grid.Cols)
	rowD := (ys.D1 - ys.D0) / float64(grid.Rows)

	cells := make([]Cell, 0, len(grid.Buckets))
	for _, b := range grid.Buckets {
		if b.Count <= 0 || !inGrid(grid, b) {
			continue
		}
		x0 := t.ApplyX(xs.R0 + float64(b.I)*colW)
		x1 := t.ApplyX(xs.R0 + float64(b.I+1)*colW)
		y0 := t.ApplyY(ys.Map(ys.D0 + float64(b.J)*rowD))
		y1 := t.ApplyY(ys.Map(ys.D0 + float64(b.J+1)*rowD))
		cells = append(cells, Cell{
			X:     math.Min(x0, x1),
			Y:     math.Min(y0, y1),
			W:     math.Abs(x1 - x0),
			H:     math.Abs(y1 - y0),
			Count: b.Count,
			Alpha: CellAlpha(b.Count, maxCount, p.cfg.HeatmapMaxAlpha),
		})
	}
	return cells
}

func inGrid(g fights.DensityGrid, b fights.DensityBucket) bool {
	return b.I >= 0 && b.I < g.Cols && b.J >= 0 && b.J < g.Rows
}

// CellAlpha scales by the square root of the count ratio so a few dense
// cells do not wash out the rest, capped at maxAlpha.
func CellAlpha(count, maxCount int, maxAlpha float64) float64 {
	if count <= 0 || maxCount <= 0 {
		return 0
	}
	a := math.Sqrt(float64(count)/float64(maxCount)) * maxAlpha
	return math.Min(a, maxAlpha)
}

func (p *Plot) markersLocked() []Marker {
	markers := make([]Marker, 0, len(p.rs))
	for _, r := range p.rs {
		m := Marker{
			FightID:   r.ID,
			BitmapKey: p.lookups.BitmapKey(r.Fight),
			X:         r.ScreenX,
			Y:         r.ScreenY,
			Radius:    r.Radius,
			Fill:      MethodColor(r.Method),
			Border:    ResultColor(r.Result),
			Ring:      p.lookups.DivisionColor(r.Division),
			Alpha:     1,
			Hovered:   r.ID == p.hovered,
			Selected:  r.ID == p.selected,
		}
		if r.Dimmed {
			m.Alpha = p.cfg.DimAlpha
		}
		if m.Hovered {
			m.Radius *= p.cfg.HoverScale
		}
		off := m.Radius * 0.75
		m.Badge = Badge{
			Label: p.lookups.MethodLabel(r.Method),
			X:     m.X + off,
			Y:     m.Y - off,
			Color: MethodColor(r.Method),
		}
		if p.cache != nil {
			if _, ok := p.cache.Peek(m.BitmapKey); ok {
				m.HasBitmap = true
			} else if p.visibleLocked(m) {
				p.cache.Request(m.BitmapKey, r.HeadshotURL, r.OpponentName)
			}
		}
		markers = append(markers, m)
	}
	// Dimmed markers underneath, emphasised ones on top.
	sort.SliceStable(markers, func(i, j int) bool {
		return markerLayer(markers[i]) < markerLayer(markers[j])
	})
	return markers
}

func markerLayer(m Marker) int {
	switch {
	case m.Hovered || m.Selected:
		return 2
	case m.Alpha < 1:
		return 0
	default:
		return 1
	}
}

func (p *Plot) visibleLocked(m Marker) bool {
	return m.X+m.Radius >= 0 && m.X-m.Radius <= p.width && m.Y+m.Radius >= 0 && m.Y-m.Radius <= p.height
}
