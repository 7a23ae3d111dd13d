package engine

import (
	"image"
	"image/color"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/sudorandom/fightscope/pkg/bitmapcache"
	"github.com/sudorandom/fightscope/pkg/scatter"
	"github.com/sudorandom/fightscope/pkg/scene"
)

// withAlpha scales a premultiplied color by a.
func withAlpha(c color.RGBA, a float64) color.RGBA {
	a = math.Max(0, math.Min(1, a))
	return color.RGBA{
		R: uint8(float64(c.R) * a),
		G: uint8(float64(c.G) * a),
		B: uint8(float64(c.B) * a),
		A: uint8(float64(c.A) * a),
	}
}

// shaded darkens c by s in [0, 1] without touching alpha.
func shaded(c color.RGBA, s float64) color.RGBA {
	s = math.Max(0, math.Min(1, s))
	return color.RGBA{R: uint8(float64(c.R) * s), G: uint8(float64(c.G) * s), B: uint8(float64(c.B) * s), A: c.A}
}

func plotRect(f scatter.Frame) image.Rectangle {
	return image.Rect(int(f.PlotArea[0]), int(f.PlotArea[1]), int(math.Ceil(f.PlotArea[2])), int(math.Ceil(f.PlotArea[3])))
}

func (e *Engine) drawScatter(screen *ebiten.Image) {
	f := e.plot.Frame()
	screen.Fill(ColorBackground)

	e.drawAxes(screen, f)

	area := screen.SubImage(plotRect(f)).(*ebiten.Image)
	e.drawHeatmap(screen, area, f)
	e.drawMarkers(area, f)
	e.drawTrend(area, f)
	e.drawTooltip(screen, f.DPR)
}

// drawHeatmap keeps the density layer on its own image and repaints it only
// when its cells changed.
func (e *Engine) drawHeatmap(screen, area *ebiten.Image, f scatter.Frame) {
	if len(f.Heatmap) == 0 {
		return
	}
	b := screen.Bounds()
	if e.ensureHeatmap(b.Dx(), b.Dy()) || f.HeatmapDirty {
		e.heatmap.Clear()
		for _, c := range f.Heatmap {
			if c.Alpha <= 0 {
				continue
			}
			vector.DrawFilledRect(e.heatmap, float32(c.X), float32(c.Y), float32(c.W), float32(c.H), withAlpha(scatter.HeatmapColor, c.Alpha), false)
		}
	}
	area.DrawImage(e.heatmap.SubImage(area.Bounds()).(*ebiten.Image), &ebiten.DrawImageOptions{GeoM: translate(area.Bounds().Min)})
}

func translate(p image.Point) ebiten.GeoM {
	var g ebiten.GeoM
	g.Translate(float64(p.X), float64(p.Y))
	return g
}

func (e *Engine) drawAxes(screen *ebiten.Image, f scatter.Frame) {
	x0, y0, x1, y1 := float32(f.PlotArea[0]), float32(f.PlotArea[1]), float32(f.PlotArea[2]), float32(f.PlotArea[3])
	vector.StrokeRect(screen, x0, y0, x1-x0, y1-y0, 1, ColorGrid, false)
	if e.fontSource == nil {
		return
	}
	face := &text.GoTextFace{Source: e.fontSource, Size: 11 * f.DPR}

	for _, t := range f.XTicks {
		x := float32(t.Pos)
		if x < x0 || x > x1 {
			continue
		}
		vector.StrokeLine(screen, x, y0, x, y1, 1, withAlpha(ColorGrid, 0.5), false)
		op := &text.DrawOptions{}
		op.GeoM.Translate(t.Pos, float64(y1)+4*f.DPR)
		op.PrimaryAlign = text.AlignCenter
		op.ColorScale.Scale(1, 1, 1, 0.6)
		text.Draw(screen, t.Label, face, op)
	}
	for _, t := range f.YTicks {
		y := float32(t.Pos)
		if y < y0 || y > y1 {
			continue
		}
		vector.StrokeLine(screen, x0, y, x1, y, 1, withAlpha(ColorGrid, 0.5), false)
		op := &text.DrawOptions{}
		op.GeoM.Translate(float64(x0)-6*f.DPR, t.Pos)
		op.PrimaryAlign = text.AlignEnd
		op.SecondaryAlign = text.AlignCenter
		op.ColorScale.Scale(1, 1, 1, 0.6)
		text.Draw(screen, t.Label, face, op)
	}
}

func (e *Engine) drawMarkers(dst *ebiten.Image, f scatter.Frame) {
	var face *text.GoTextFace
	if e.monoSource != nil {
		face = &text.GoTextFace{Source: e.monoSource, Size: 8 * f.DPR}
	}
	for _, m := range f.Markers {
		x, y, r := float32(m.X), float32(m.Y), float32(m.Radius)

		var img *ebiten.Image
		if m.HasBitmap {
			img = e.texture(m.BitmapKey)
		}
		if img != nil {
			w := float64(img.Bounds().Dx())
			op := &ebiten.DrawImageOptions{}
			op.GeoM.Translate(-w/2, -w/2)
			op.GeoM.Scale(2*m.Radius/w, 2*m.Radius/w)
			op.GeoM.Translate(m.X, m.Y)
			op.ColorScale.ScaleAlpha(float32(m.Alpha))
			op.Filter = ebiten.FilterLinear
			dst.DrawImage(img, op)
		} else {
			vector.DrawFilledCircle(dst, x, y, r, withAlpha(m.Fill, m.Alpha), true)
		}

		vector.StrokeCircle(dst, x, y, r, float32(1.5*f.DPR), withAlpha(m.Border, m.Alpha), true)
		if m.Hovered || m.Selected {
			vector.StrokeCircle(dst, x, y, r+float32(3*f.DPR), float32(2*f.DPR), withAlpha(m.Ring, m.Alpha), true)
		}
		if m.Selected {
			vector.StrokeCircle(dst, x, y, r+float32(6*f.DPR), float32(1*f.DPR), scatter.HoverColor, true)
		}

		br := float32(5 * f.DPR)
		vector.DrawFilledCircle(dst, float32(m.Badge.X), float32(m.Badge.Y), br, withAlpha(m.Badge.Color, m.Alpha), true)
		if face != nil && m.Alpha >= 1 {
			op := &text.DrawOptions{}
			op.GeoM.Translate(m.Badge.X, m.Badge.Y)
			op.PrimaryAlign = text.AlignCenter
			op.SecondaryAlign = text.AlignCenter
			text.Draw(dst, m.Badge.Label, face, op)
		}
	}
}

func (e *Engine) drawTrend(dst *ebiten.Image, f scatter.Frame) {
	width := float32(2 * f.DPR)
	for i := 1; i < len(f.Trend); i++ {
		a, b := f.Trend[i-1], f.Trend[i]
		vector.StrokeLine(dst, float32(a.X), float32(a.Y), float32(b.X), float32(b.Y), width, scatter.TrendColor, true)
	}
}

// nodeColor gives every country a stable color.
func nodeColor(sp scene.Sprite) color.RGBA {
	key := sp.Country
	if key == "" {
		key = sp.ID
	}
	return bitmapcache.PlaceholderColor(key)
}

func (e *Engine) drawGraph(screen *ebiten.Image) {
	screen.Fill(ColorBackground)

	for _, s := range e.scene.Edges() {
		c := withAlpha(ColorGrid, math.Min(1, 0.35+0.15*s.Weight))
		width := float32(1)
		if s.Highlight {
			c, width = withAlpha(ColorAccent, 0.9), 2
		}
		vector.StrokeLine(screen, float32(s.X1), float32(s.Y1), float32(s.X2), float32(s.Y2), width, c, true)
	}

	var labels []scene.Sprite
	for _, sp := range e.scene.Project() {
		vector.DrawFilledCircle(screen, float32(sp.X), float32(sp.Y), float32(sp.Radius), shaded(nodeColor(sp), sp.Shade), true)
		if sp.Hovered || sp.Selected {
			vector.StrokeCircle(screen, float32(sp.X), float32(sp.Y), float32(sp.Radius+3), 2, scatter.HoverColor, true)
			labels = append(labels, sp)
		}
	}

	if e.fontSource != nil {
		face := &text.GoTextFace{Source: e.fontSource, Size: 13 * e.dpr}
		for _, sp := range labels {
			label := sp.Label
			if label == "" {
				label = sp.ID
			}
			op := &text.DrawOptions{}
			op.GeoM.Translate(sp.X+sp.Radius+6, sp.Y)
			op.SecondaryAlign = text.AlignCenter
			text.Draw(screen, label, face, op)
		}
	}
	e.drawLayoutStats(screen)
}
