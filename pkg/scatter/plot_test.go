package scatter

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sudorandom/fightscope/pkg/bitmapcache"
	"github.com/sudorandom/fightscope/pkg/fights"
	"github.com/sudorandom/fightscope/pkg/transform"
	"github.com/sudorandom/fightscope/pkg/trend"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleFights() []fights.Fight {
	return []fights.Fight{
		{ID: "a", Date: day(2015, 1, 1), DurationSeconds: 100, Method: fights.MethodKO, Result: fights.ResultWin, OpponentName: "Alpha One", Division: "LW"},
		{ID: "b", Date: day(2017, 6, 1), DurationSeconds: 900, Method: fights.MethodDEC, Result: fights.ResultLoss, OpponentName: "Bravo Two", Division: "WW", EventName: "UFC 200"},
		{ID: "c", Date: day(2020, 3, 1), DurationSeconds: 420, Method: fights.MethodSUB, Result: fights.ResultWin, OpponentName: "Charlie Three", Division: "LW"},
	}
}

func newTestPlot(t *testing.T) (*Plot, *transform.Controller) {
	t.Helper()
	c := transform.NewController(0.5, 8)
	p := NewPlot(DefaultConfig(), c, nil, Lookups{}, zerolog.Nop())
	p.Resize(1000, 600, 1)
	p.SetFights(sampleFights())
	return p, c
}

func position(t *testing.T, p *Plot, id string) (float64, float64) {
	t.Helper()
	for _, r := range p.Renderables() {
		if r.ID == id {
			return r.ScreenX, r.ScreenY
		}
	}
	t.Fatalf("fight %s not found", id)
	return 0, 0
}

func TestDurationDomain(t *testing.T) {
	tests := []struct {
		name     string
		list     []fights.Fight
		override *[2]float64
		lo, hi   float64
	}{
		{"padded", []fights.Fight{{DurationSeconds: 100}, {DurationSeconds: 300}}, nil, 80, 320},
		{"zero width", []fights.Fight{{DurationSeconds: 200}}, nil, 140, 260},
		{"override", []fights.Fight{{DurationSeconds: 100}}, &[2]float64{0, 1500}, 0, 1500},
		{"invalid override ignored", []fights.Fight{{DurationSeconds: 100}, {DurationSeconds: 300}}, &[2]float64{5, 5}, 80, 320},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := DurationDomain(tt.list, tt.override)
			if math.Abs(lo-tt.lo) > 1e-9 || math.Abs(hi-tt.hi) > 1e-9 {
				t.Errorf("domain = [%v, %v], want [%v, %v]", lo, hi, tt.lo, tt.hi)
			}
		})
	}
}

func TestScalesRoundTrip(t *testing.T) {
	s := NewScales(sampleFights(), 1000, 600, 1, DefaultMargins, DurationUp, nil)
	d := day(2018, 1, 1)
	if got := s.X.Invert(s.X.Map(d)); got.Sub(d).Abs() > time.Second {
		t.Errorf("time round trip = %v, want %v", got, d)
	}
	if got := s.Y.Invert(s.Y.Map(333)); math.Abs(got-333) > 1e-9 {
		t.Errorf("duration round trip = %v", got)
	}
}

func TestDurationDirection(t *testing.T) {
	list := sampleFights()
	up := NewScales(list, 1000, 600, 1, DefaultMargins, DurationUp, nil)
	if up.Y.Map(900) >= up.Y.Map(100) {
		t.Errorf("DurationUp should place longer fights higher")
	}
	down := NewScales(list, 1000, 600, 1, DefaultMargins, DurationDown, nil)
	if down.Y.Map(900) <= down.Y.Map(100) {
		t.Errorf("DurationDown should place longer fights lower")
	}
}

func TestDeriveDimsWithoutRemoving(t *testing.T) {
	list := sampleFights()
	s := NewScales(list, 1000, 600, 1, DefaultMargins, DurationUp, nil)
	rs := Derive(list, fights.NewFilters([]fights.Result{fights.ResultWin}, nil), s, transform.Identity(), 10)
	if len(rs) != len(list) {
		t.Fatalf("Derive dropped fights: %d of %d", len(rs), len(list))
	}
	for _, r := range rs {
		want := r.Result != fights.ResultWin
		if r.Dimmed != want {
			t.Errorf("%s dimmed = %v, want %v", r.ID, r.Dimmed, want)
		}
	}
}

func TestCellAlpha(t *testing.T) {
	tests := []struct {
		count, max int
		want       float64
	}{
		{4, 16, 0.2},
		{16, 16, 0.4},
		{0, 16, 0},
		{1, 0, 0},
	}
	for _, tt := range tests {
		if got := CellAlpha(tt.count, tt.max, 0.4); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("CellAlpha(%d, %d) = %v, want %v", tt.count, tt.max, got, tt.want)
		}
	}
}

func TestRedrawCoalescing(t *testing.T) {
	p, _ := newTestPlot(t)
	p.Frame()
	if p.NeedsRedraw() {
		t.Fatalf("clean plot reports redraw")
	}
	p.Invalidate("a")
	p.Invalidate("b")
	p.SetFilters(fights.NewFilters(nil, []fights.Method{fights.MethodKO}))
	if !p.NeedsRedraw() {
		t.Fatalf("expected redraw after invalidation")
	}
	before := p.Frames()
	p.Frame()
	if p.Frames() != before+1 || p.NeedsRedraw() {
		t.Errorf("several triggers should produce exactly one frame")
	}
}

func TestTransformChangeRedrawsAndMovesMarkers(t *testing.T) {
	p, c := newTestPlot(t)
	x0, y0 := position(t, p, "a")
	p.Frame()

	c.Pan(25, -10)
	if !p.NeedsRedraw() {
		t.Fatalf("transform change should request a redraw")
	}
	f := p.Frame()
	for _, m := range f.Markers {
		if m.FightID == "a" && (math.Abs(m.X-(x0+25)) > 1e-9 || math.Abs(m.Y-(y0-10)) > 1e-9) {
			t.Errorf("marker at (%v, %v), want (%v, %v)", m.X, m.Y, x0+25, y0-10)
		}
	}
	if len(p.Fights()) != 3 {
		t.Errorf("panning changed fight data")
	}
}

func TestTransformRedrawSurvivesHitTest(t *testing.T) {
	p, c := newTestPlot(t)
	p.Frame()

	c.ZoomAt(2, 500, 300)
	p.PointerMove(-400, -400)
	if !p.NeedsRedraw() {
		t.Fatalf("hover after zoom swallowed the redraw")
	}
	p.Frame()

	c.Pan(10, 0)
	p.Renderables()
	p.PrefetchRequests()
	if !p.NeedsRedraw() {
		t.Errorf("reprojection before Frame swallowed the redraw")
	}
	p.Frame()
	if p.NeedsRedraw() {
		t.Errorf("frame should clear the redraw flag")
	}
}

func markerY(t *testing.T, f Frame, id string) float64 {
	t.Helper()
	for _, m := range f.Markers {
		if m.FightID == id {
			return m.Y
		}
	}
	t.Fatalf("marker %s not found", id)
	return 0
}

func TestDomainOverride(t *testing.T) {
	p, _ := newTestPlot(t)
	f0 := p.Frame()
	y0 := markerY(t, f0, "a")

	p.SetDomain(0, 3000)
	if !p.NeedsRedraw() {
		t.Fatalf("domain override should request a redraw")
	}
	f1 := p.Frame()
	if p.scales.Y.D0 != 0 || p.scales.Y.D1 != 3000 {
		t.Errorf("duration domain = [%v, %v], want [0, 3000]", p.scales.Y.D0, p.scales.Y.D1)
	}
	y1 := markerY(t, f1, "a")
	if y1 == y0 || math.Abs(y1-p.scales.Y.Map(100)) > 1e-9 {
		t.Errorf("marker y = %v under override (was %v, want %v)", y1, y0, p.scales.Y.Map(100))
	}
	if len(f1.Heatmap) == 0 || reflect.DeepEqual(f0.Heatmap, f1.Heatmap) {
		t.Errorf("heatmap rows did not remap under the override")
	}

	p.SetDomain(10, 10)
	if p.scales.Y.D1 != 3000 {
		t.Errorf("empty domain should be ignored")
	}

	p.ClearDomain()
	f2 := p.Frame()
	if y := markerY(t, f2, "a"); math.Abs(y-y0) > 1e-9 {
		t.Errorf("marker y = %v after clearing, want %v", y, y0)
	}
	if !reflect.DeepEqual(f0.Heatmap, f2.Heatmap) {
		t.Errorf("heatmap did not return after clearing the override")
	}
}

func TestHoverSelect(t *testing.T) {
	p, _ := newTestPlot(t)
	var hovers, selects []string
	p.OnHover(func(id string) { hovers = append(hovers, id) })
	p.OnSelect(func(id string) { selects = append(selects, id) })

	x, y := position(t, p, "b")
	p.PointerMove(x+3, y)
	p.PointerMove(x+2, y+1)
	if p.Hovered() != "b" || len(hovers) != 1 {
		t.Fatalf("hovered = %q, callbacks = %v", p.Hovered(), hovers)
	}
	p.PointerMove(-500, -500)
	if p.Hovered() != "" || len(hovers) != 2 || hovers[1] != "" {
		t.Errorf("moving away should clear hover, got %q %v", p.Hovered(), hovers)
	}

	p.Click(x, y)
	if p.Selected() != "b" || len(selects) != 1 {
		t.Fatalf("selected = %q", p.Selected())
	}
	p.Click(-500, -500)
	if p.Selected() != "b" {
		t.Errorf("clicking empty space should keep the selection")
	}
	ax, ay := position(t, p, "a")
	p.Click(ax, ay)
	if p.Selected() != "a" {
		t.Errorf("new selection not applied")
	}
	p.ClearSelection()
	if p.Selected() != "" || selects[len(selects)-1] != "" {
		t.Errorf("ClearSelection did not clear: %v", selects)
	}

	p.PointerMove(ax, ay)
	p.PointerLeave()
	if p.Hovered() != "" {
		t.Errorf("PointerLeave should clear hover")
	}
}

func TestHitTestingFollowsZoom(t *testing.T) {
	p, c := newTestPlot(t)
	bx, by := position(t, p, "c")
	c.ZoomAt(3, 100, 100)
	tr := c.Transform()
	sx, sy := tr.Apply(bx, by)
	if got := p.Hit(sx, sy); got != "c" {
		t.Errorf("Hit after zoom = %q, want c", got)
	}
}

func TestResizeUsesPixelRatio(t *testing.T) {
	p, _ := newTestPlot(t)
	p.Resize(500, 300, 2)
	f := p.Frame()
	if f.Width != 1000 || f.Height != 600 || f.DPR != 2 {
		t.Errorf("frame size = %vx%v @%v", f.Width, f.Height, f.DPR)
	}
	for _, m := range f.Markers {
		if m.Radius != DefaultConfig().MarkerRadius*2 {
			t.Errorf("marker radius %v not scaled by dpr", m.Radius)
		}
		if m.X < f.PlotArea[0] || m.X > f.PlotArea[2] || m.Y < f.PlotArea[1] || m.Y > f.PlotArea[3] {
			t.Errorf("marker %s outside plot area", m.FightID)
		}
	}
}

func TestMarkerStyling(t *testing.T) {
	p, _ := newTestPlot(t)
	p.SetFilters(fights.NewFilters([]fights.Result{fights.ResultWin}, nil))
	x, y := position(t, p, "c")
	p.PointerMove(x, y)
	f := p.Frame()

	if len(f.Markers) != 3 {
		t.Fatalf("expected 3 markers, got %d", len(f.Markers))
	}
	if f.Markers[0].FightID != "b" || f.Markers[0].Alpha != DefaultConfig().DimAlpha {
		t.Errorf("dimmed marker should be drawn first at dim alpha: %+v", f.Markers[0])
	}
	last := f.Markers[2]
	if last.FightID != "c" || !last.Hovered {
		t.Errorf("hovered marker should be drawn last: %+v", last)
	}
	if last.Radius <= DefaultConfig().MarkerRadius {
		t.Errorf("hovered marker should be enlarged")
	}
	if last.Fill != MethodColor(fights.MethodSUB) || last.Border != ResultColor(fights.ResultWin) {
		t.Errorf("unexpected colors %+v", last)
	}
	if last.Badge.Label != "SUB" || last.Badge.X <= last.X || last.Badge.Y >= last.Y {
		t.Errorf("badge should sit at the top-right corner: %+v", last.Badge)
	}
	if last.Ring != DefaultLookups().DivisionColor("LW") {
		t.Errorf("ring color should come from the division lookup")
	}
}

func TestHeatmapLayer(t *testing.T) {
	p, c := newTestPlot(t)
	p.SetDensity(fights.DensityGrid{Cols: 2, Rows: 2, Buckets: []fights.DensityBucket{
		{I: 0, J: 0, Count: 4},
		{I: 1, J: 1, Count: 16},
		{I: 5, J: 0, Count: 99},
	}})
	f := p.Frame()
	if !f.HeatmapDirty {
		t.Errorf("first frame should rebuild the heatmap")
	}
	if len(f.Heatmap) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(f.Heatmap))
	}
	for _, cell := range f.Heatmap {
		want := CellAlpha(cell.Count, 16, DefaultConfig().HeatmapMaxAlpha)
		if cell.Alpha != want || cell.Alpha > DefaultConfig().HeatmapMaxAlpha {
			t.Errorf("cell alpha %v, want %v", cell.Alpha, want)
		}
		if cell.W <= 0 || cell.H <= 0 {
			t.Errorf("empty cell %+v", cell)
		}
	}

	x, y := position(t, p, "a")
	p.PointerMove(x, y)
	if f := p.Frame(); f.HeatmapDirty {
		t.Errorf("hover alone should not rebuild the heatmap")
	}
	c.Pan(5, 5)
	if f := p.Frame(); !f.HeatmapDirty {
		t.Errorf("transform change should rebuild the heatmap")
	}
	p.EnableDensity(false)
	if f := p.Frame(); len(f.Heatmap) != 0 || !f.HeatmapDirty {
		t.Errorf("disabled density should clear the layer")
	}
}

func TestAutoDensity(t *testing.T) {
	p, _ := newTestPlot(t)
	f := p.Frame()
	total := 0
	for _, c := range f.Heatmap {
		total += c.Count
	}
	if total != 3 {
		t.Errorf("auto density counted %d fights, want 3", total)
	}
}

func TestTrendOverlay(t *testing.T) {
	p, _ := newTestPlot(t)
	list := sampleFights()
	p.SetTrend([]trend.Point{{X: float64(list[0].Date.Unix()), Y: list[0].DurationSeconds}})
	if f := p.Frame(); len(f.Trend) != 0 {
		t.Errorf("trend drawn while disabled")
	}
	p.EnableTrend(true)
	f := p.Frame()
	if len(f.Trend) != 1 {
		t.Fatalf("expected 1 trend vertex, got %d", len(f.Trend))
	}
	x, y := position(t, p, "a")
	if math.Abs(f.Trend[0].X-x) > 1e-6 || math.Abs(f.Trend[0].Y-y) > 1e-6 {
		t.Errorf("trend vertex (%v, %v) should coincide with marker (%v, %v)", f.Trend[0].X, f.Trend[0].Y, x, y)
	}
}

func TestTrendInputHonoursFilters(t *testing.T) {
	p, _ := newTestPlot(t)
	if n := len(p.TrendInput()); n != 3 {
		t.Errorf("TrendInput = %d points, want 3", n)
	}
	p.SetFilters(fights.NewFilters([]fights.Result{fights.ResultWin}, nil))
	if n := len(p.TrendInput()); n != 2 {
		t.Errorf("TrendInput = %d points, want 2", n)
	}
}

func TestSetFightsSelection(t *testing.T) {
	p, _ := newTestPlot(t)
	x, y := position(t, p, "a")
	p.Click(x, y)
	p.SetFights(sampleFights()[:2])
	if p.Selected() != "a" {
		t.Errorf("selection should survive when the fight remains")
	}
	p.SetFights(sampleFights()[1:])
	if p.Selected() != "" {
		t.Errorf("selection should clear when the fight disappears")
	}
}

func TestSetQueryDims(t *testing.T) {
	p, _ := newTestPlot(t)
	p.SetQuery("ufc")
	for _, r := range p.Renderables() {
		if r.Dimmed != (r.ID != "b") {
			t.Errorf("%s dimmed = %v", r.ID, r.Dimmed)
		}
	}
	p.SetQuery("")
	for _, r := range p.Renderables() {
		if r.Dimmed {
			t.Errorf("%s still dimmed after clearing query", r.ID)
		}
	}
}

type failingFetcher struct{}

func (failingFetcher) Fetch(context.Context, string) ([]byte, error) {
	return nil, errors.New("offline")
}

func TestBitmapsPopIn(t *testing.T) {
	var p *Plot
	cache := bitmapcache.New(failingFetcher{}, bitmapcache.WithOnReady(func(string) {
		p.Invalidate("bitmap")
	}))
	defer cache.Close()

	p = NewPlot(DefaultConfig(), nil, cache, Lookups{}, zerolog.Nop())
	p.Resize(800, 400, 1)
	p.SetFights(sampleFights())
	f := p.Frame()
	for _, m := range f.Markers {
		if m.HasBitmap {
			t.Fatalf("bitmap resolved before it was requested")
		}
	}

	deadline := time.Now().Add(3 * time.Second)
	for cache.Len() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !p.NeedsRedraw() {
		t.Fatalf("bitmap arrival should request a redraw")
	}
	for _, m := range p.Frame().Markers {
		if !m.HasBitmap {
			t.Errorf("marker %s has no bitmap after resolution", m.FightID)
		}
	}
}

func TestPrefetchRequests(t *testing.T) {
	p, _ := newTestPlot(t)
	reqs := p.PrefetchRequests()
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(reqs))
	}
	if reqs[0].Label != "Alpha One" || reqs[0].Key == "" {
		t.Errorf("unexpected request %+v", reqs[0])
	}
}

func TestFormatDuration(t *testing.T) {
	for sec, want := range map[float64]string{0: "0:00", 65: "1:05", 300: "5:00", -3: "0:00"} {
		if got := FormatDuration(sec); got != want {
			t.Errorf("FormatDuration(%v) = %q, want %q", sec, got, want)
		}
	}
}

func TestThreeFightScenario(t *testing.T) {
	list := []fights.Fight{
		{ID: "jan", Date: day(2024, 1, 15), DurationSeconds: 100, Method: fights.MethodKO, Result: fights.ResultWin},
		{ID: "mar", Date: day(2024, 3, 15), DurationSeconds: 500, Method: fights.MethodSUB, Result: fights.ResultLoss},
		{ID: "jun", Date: day(2024, 6, 15), DurationSeconds: 900, Method: fights.MethodDEC, Result: fights.ResultDraw},
	}
	for _, dir := range []Direction{DurationUp, DurationDown} {
		cfg := DefaultConfig()
		cfg.Direction = dir
		p := NewPlot(cfg, nil, nil, Lookups{}, zerolog.Nop())
		p.Resize(1200, 800, 1)
		p.SetFights(list)

		rs := p.Renderables()
		if len(rs) != 3 {
			t.Fatalf("expected 3 renderables, got %d", len(rs))
		}
		for i, r := range rs {
			if r.Dimmed {
				t.Errorf("%s dimmed with empty filters", r.ID)
			}
			if i == 0 {
				continue
			}
			if rs[i].ScreenX <= rs[i-1].ScreenX {
				t.Errorf("x not increasing with date at %s", r.ID)
			}
			if dir == DurationUp && rs[i].ScreenY >= rs[i-1].ScreenY {
				t.Errorf("y not decreasing with duration at %s", r.ID)
			}
			if dir == DurationDown && rs[i].ScreenY <= rs[i-1].ScreenY {
				t.Errorf("y not increasing with duration at %s", r.ID)
			}
		}
	}
}
