package config

import (
	"golang.org/x/time/rate"

	"github.com/sudorandom/fightscope/pkg/layout"
	"github.com/sudorandom/fightscope/pkg/scatter"
	"github.com/sudorandom/fightscope/pkg/trend"
)

// PlotConfig applies the viewer settings on top of the scatter defaults.
func (c ViewerConfig) PlotConfig() scatter.Config {
	p := scatter.DefaultConfig()
	p.MarkerRadius = c.MarkerRadius
	p.HeatmapMaxAlpha = c.HeatmapMaxAlpha
	p.HeatmapCols = c.HeatmapCols
	p.HeatmapRows = c.HeatmapRows
	if !c.DurationUp {
		p.Direction = scatter.DurationDown
	}
	return p
}

// DurationDomain is the fixed duration axis in seconds, nil when the axis
// follows the data.
func (c ViewerConfig) DurationDomain() *[2]float64 {
	if c.DurationMin == 0 && c.DurationMax == 0 {
		return nil
	}
	return &[2]float64{c.DurationMin, c.DurationMax}
}

func (c ViewerConfig) TrendOptions() trend.Options {
	return trend.Options{Window: c.TrendWindow, Span: c.TrendSpan}
}

func (c ViewerConfig) Zoom() [2]float64 {
	return [2]float64{c.ZoomMin, c.ZoomMax}
}

func (c BitmapsConfig) Limiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(c.PrefetchRate), c.PrefetchBurst)
}

func (c LayoutConfig) Options() layout.Options {
	return layout.Options{
		LinkDistance:    c.LinkDistance,
		Repulsion:       c.Repulsion,
		MinLinkStrength: c.MinLinkStrength,
		CenterStrength:  c.CenterStrength,
		VelocityDecay:   c.VelocityDecay,
		AlphaDecay:      c.AlphaDecay,
		AlphaMin:        c.AlphaMin,
		StableThreshold: c.StableThreshold,
		EmitInterval:    c.EmitInterval,
		Dimensions:      c.Dimensions,
		Theta:           c.Theta,
	}
}
