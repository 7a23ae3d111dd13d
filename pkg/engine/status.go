package engine

import (
	"fmt"
	"image/color"
	"math"
	"strings"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/sudorandom/fightscope/pkg/fights"
	"github.com/sudorandom/fightscope/pkg/layout"
	"github.com/sudorandom/fightscope/pkg/scatter"
)

// drawPanel paints a translucent box with an accent bar and a dimmed title.
func (e *Engine) drawPanel(screen *ebiten.Image, title string, x, y, w, h, fontSize float64) {
	vector.DrawFilledRect(screen, float32(x), float32(y), float32(w), float32(h), ColorPanel, false)
	vector.StrokeRect(screen, float32(x), float32(y), float32(w), float32(h), 1, ColorGrid, false)
	vector.DrawFilledRect(screen, float32(x), float32(y), 4, float32(fontSize+10), ColorAccent, false)

	if e.fontSource == nil || title == "" {
		return
	}
	titleFace := &text.GoTextFace{Source: e.fontSource, Size: fontSize * 0.8}
	op := &text.DrawOptions{}
	op.GeoM.Translate(x+15, y+5)
	op.ColorScale.Scale(1, 1, 1, 0.5)
	text.Draw(screen, title, titleFace, op)
}

func tooltipLines(f fights.Fight) []string {
	opponent := f.OpponentName
	if f.OpponentCountry != "" {
		opponent += " (" + fights.CountryName(f.OpponentCountry) + ")"
	}
	lines := []string{
		opponent,
		f.EventName,
		f.Date.Format("Jan 2, 2006") + "  " + scatter.FormatDuration(f.DurationSeconds),
	}
	finish := fmt.Sprintf("%s %s", f.Result, f.Method)
	if f.FinishRound > 0 {
		finish += fmt.Sprintf(" R%d", f.FinishRound)
		if f.FinishRoundTime != "" {
			finish += " " + f.FinishRoundTime
		}
	}
	lines = append(lines, finish)
	if f.Division != "" {
		lines = append(lines, f.Division)
	}
	return lines
}

func (e *Engine) drawTooltip(screen *ebiten.Image, dpr float64) {
	id := e.plot.Hovered()
	if id == "" || e.fontSource == nil {
		return
	}
	f, ok := e.plot.Fight(id)
	if !ok {
		return
	}
	lines := tooltipLines(f)
	fontSize := 13 * dpr
	face := &text.GoTextFace{Source: e.fontSource, Size: fontSize}

	w := 0.0
	for _, l := range lines {
		tw, _ := text.Measure(l, face, 0)
		w = math.Max(w, tw)
	}
	w += 30
	h := float64(len(lines))*(fontSize*1.3) + fontSize + 20

	// Keep the box on screen, flipping to the cursor's other side if needed.
	x, y := float64(e.in.lastX)+16*dpr, float64(e.in.lastY)+16*dpr
	if x+w > float64(e.Width) {
		x = float64(e.in.lastX) - w - 16*dpr
	}
	if y+h > float64(e.Height) {
		y = float64(e.in.lastY) - h - 16*dpr
	}

	e.drawPanel(screen, "FIGHT", x, y, w, h, fontSize)
	for i, l := range lines {
		op := &text.DrawOptions{}
		op.GeoM.Translate(x+15, y+fontSize+15+float64(i)*fontSize*1.3)
		alpha := float32(0.7)
		if i == 0 {
			alpha = 1
		}
		op.ColorScale.Scale(1, 1, 1, alpha)
		text.Draw(screen, l, face, op)
	}
}

func statsLines(stats layout.Stats, stable bool, nodes int) []string {
	state := "RUNNING"
	if stable {
		state = "STABLE"
	}
	return []string{
		fmt.Sprintf("%s  %d nodes", state, nodes),
		fmt.Sprintf("tick %d  alpha %.3f", stats.Ticks, stats.Alpha),
		fmt.Sprintf("mean %s  last %s", stats.MeanTick.Round(time.Microsecond), stats.LastTick.Round(time.Microsecond)),
	}
}

// sparkline maps values onto a w by h box at (x, y). The vertical scale
// starts at zero and never collapses below 1.
func sparkline(values []float64, x, y, w, h float64) []scatter.Vec {
	if len(values) < 2 {
		return nil
	}
	maxV := 1.0
	for _, v := range values {
		maxV = math.Max(maxV, v)
	}
	step := w / float64(len(values)-1)
	pts := make([]scatter.Vec, len(values))
	for i, v := range values {
		pts[i] = scatter.Vec{X: x + float64(i)*step, Y: y + h - math.Max(0, v)/maxV*h}
	}
	return pts
}

func (e *Engine) drawLayoutStats(screen *ebiten.Image) {
	if e.fontSource == nil {
		return
	}
	fontSize := 13 * e.dpr
	face := &text.GoTextFace{Source: e.monoSource, Size: fontSize}
	lines := statsLines(e.scene.Stats(), e.scene.Stable(), e.scene.Len())

	margin := 20 * e.dpr
	w, graphH := 300*e.dpr, 40*e.dpr
	h := fontSize + 20 + float64(len(lines))*fontSize*1.3 + graphH + 10
	x, y := margin, float64(e.Height)-margin-h

	e.drawPanel(screen, "LAYOUT", x, y, w, h, fontSize)
	for i, l := range lines {
		op := &text.DrawOptions{}
		op.GeoM.Translate(x+15, y+fontSize+15+float64(i)*fontSize*1.3)
		op.ColorScale.Scale(1, 1, 1, 0.8)
		text.Draw(screen, l, face, op)
	}

	pts := sparkline(e.scene.TickHistory(), x+15, y+h-graphH-10, w-30, graphH)
	for i := 1; i < len(pts); i++ {
		vector.StrokeLine(screen, float32(pts[i-1].X), float32(pts[i-1].Y), float32(pts[i].X), float32(pts[i].Y), float32(e.dpr), ColorAccent, false)
	}
}

func filterSummary(f fights.Filters) string {
	var parts []string
	for _, r := range fights.Results {
		if len(f.Results) == 0 || f.Results[r] {
			parts = append(parts, string(r))
		}
	}
	var methods []string
	for _, m := range fights.Methods {
		if len(f.Methods) == 0 || f.Methods[m] {
			methods = append(methods, string(m))
		}
	}
	return strings.Join(parts, "/") + "  " + strings.Join(methods, "/")
}

func (e *Engine) drawStatusLine(screen *ebiten.Image) {
	if e.fontSource == nil {
		return
	}
	fontSize := 11 * e.dpr
	face := &text.GoTextFace{Source: e.fontSource, Size: fontSize}
	var msg string
	if e.pane == PaneGraph {
		msg = fmt.Sprintf("GRAPH %s  [Tab] scatter  [V] 2D/3D  [R] reset  [P] capture", e.scene.Mode())
	} else {
		msg = fmt.Sprintf("SCATTER %s  [Tab] graph  [T] trend  [H] heatmap  [1-3] result  [K/S/D/O] method  [P] capture", filterSummary(e.plot.Filters()))
	}
	op := &text.DrawOptions{}
	op.GeoM.Translate(8*e.dpr, 6*e.dpr)
	op.ColorScale.ScaleWithColor(color.RGBA{200, 200, 200, 255})
	op.ColorScale.ScaleAlpha(0.6)
	text.Draw(screen, msg, face, op)
}
