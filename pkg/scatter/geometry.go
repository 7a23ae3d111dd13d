package scatter

import (
	"github.com/sudorandom/fightscope/pkg/fights"
	"github.com/sudorandom/fightscope/pkg/transform"
)

// RenderableFight is a fight with its derived positions. Base coordinates
// come from the scales; screen coordinates add the current transform.
type RenderableFight struct {
	fights.Fight
	BaseX, BaseY     float64
	ScreenX, ScreenY float64
	Radius           float64
	Dimmed           bool
}

// Derive positions every fight. Fights failing filters are dimmed, never
// dropped.
func Derive(list []fights.Fight, filters fights.Filters, s Scales, t transform.Transform, radius float64) []RenderableFight {
	out := make([]RenderableFight, len(list))
	for i, f := range list {
		bx := s.X.Map(f.Date)
		by := s.Y.Map(f.DurationSeconds)
		sx, sy := t.Apply(bx, by)
		out[i] = RenderableFight{
			Fight:   f,
			BaseX:   bx,
			BaseY:   by,
			ScreenX: sx,
			ScreenY: sy,
			Radius:  radius,
			Dimmed:  filters.Excludes(f),
		}
	}
	return out
}

// reproject refreshes screen coordinates after a transform change.
func reproject(rs []RenderableFight, t transform.Transform) {
	for i := range rs {
		rs[i].ScreenX, rs[i].ScreenY = t.Apply(rs[i].BaseX, rs[i].BaseY)
	}
}
