package scatter

import (
	"fmt"
	"math"
	"time"

	"github.com/sudorandom/fightscope/pkg/fights"
)

// DomainPadding is the fraction of a domain's width added on each side.
const DomainPadding = 0.1

// Direction is the orientation of the duration axis.
type Direction int

const (
	// DurationUp draws longer fights higher on screen.
	DurationUp Direction = iota
	DurationDown
)

// TimeScale maps dates onto a horizontal pixel range.
type TimeScale struct {
	Min, Max time.Time
	R0, R1   float64
}

func (s TimeScale) Map(t time.Time) float64 {
	span := s.Max.Sub(s.Min).Seconds()
	if span <= 0 {
		return (s.R0 + s.R1) / 2
	}
	return s.R0 + t.Sub(s.Min).Seconds()/span*(s.R1-s.R0)
}

// MapUnix maps unix seconds, which is what trend points carry.
func (s TimeScale) MapUnix(sec float64) float64 {
	return s.Map(time.Unix(0, int64(sec*float64(time.Second))))
}

func (s TimeScale) Invert(px float64) time.Time {
	if s.R1 == s.R0 {
		return s.Min
	}
	frac := (px - s.R0) / (s.R1 - s.R0)
	return s.Min.Add(time.Duration(frac * float64(s.Max.Sub(s.Min))))
}

// LinearScale maps a numeric domain [D0, D1] onto [R0, R1].
type LinearScale struct {
	D0, D1 float64
	R0, R1 float64
}

func (s LinearScale) Map(v float64) float64 {
	if s.D1 == s.D0 {
		return (s.R0 + s.R1) / 2
	}
	return s.R0 + (v-s.D0)/(s.D1-s.D0)*(s.R1-s.R0)
}

func (s LinearScale) Invert(px float64) float64 {
	if s.R1 == s.R0 {
		return s.D0
	}
	return s.D0 + (px-s.R0)/(s.R1-s.R0)*(s.D1-s.D0)
}

// Margins reserve space around the plot area for axes, in logical pixels.
type Margins struct {
	Left, Right, Top, Bottom float64
}

var DefaultMargins = Margins{Left: 56, Right: 24, Top: 24, Bottom: 40}

// TimeDomain returns the padded date range of list.
func TimeDomain(list []fights.Fight) (time.Time, time.Time) {
	if len(list) == 0 {
		now := time.Now().UTC().Truncate(24 * time.Hour)
		return now.AddDate(-1, 0, 0), now
	}
	tMin, tMax, _, _ := fights.Span(list)
	span := tMax.Sub(tMin)
	pad := time.Duration(float64(span) * DomainPadding)
	if span == 0 {
		pad = 30 * 24 * time.Hour
	}
	return tMin.Add(-pad), tMax.Add(pad)
}

// DurationDomain returns the padded duration range of list, or override when
// set.
func DurationDomain(list []fights.Fight, override *[2]float64) (float64, float64) {
	if override != nil && override[1] > override[0] {
		return override[0], override[1]
	}
	if len(list) == 0 {
		return 0, 900
	}
	_, _, dMin, dMax := fights.Span(list)
	span := dMax - dMin
	pad := span * DomainPadding
	if span == 0 {
		pad = math.Max(math.Abs(dMin)*DomainPadding, 60)
	}
	return dMin - pad, dMax + pad
}

// Scales holds both axes for one layout of the plot area.
type Scales struct {
	X TimeScale
	Y LinearScale
}

// NewScales lays out scales inside a width x height surface. Margins are
// multiplied by dpr.
func NewScales(list []fights.Fight, width, height, dpr float64, m Margins, dir Direction, override *[2]float64) Scales {
	tMin, tMax := TimeDomain(list)
	d0, d1 := DurationDomain(list, override)

	left, right := m.Left*dpr, width-m.Right*dpr
	top, bottom := m.Top*dpr, height-m.Bottom*dpr
	if right < left {
		right = left
	}
	if bottom < top {
		bottom = top
	}

	y := LinearScale{D0: d0, D1: d1, R0: bottom, R1: top}
	if dir == DurationDown {
		y.R0, y.R1 = top, bottom
	}
	return Scales{
		X: TimeScale{Min: tMin, Max: tMax, R0: left, R1: right},
		Y: y,
	}
}

// Tick is an axis label at a base-space position.
type Tick struct {
	Pos   float64
	Label string
}

// YearTicks places a tick at each January 1st inside the domain, thinning
// them so that at most max are returned.
func (s TimeScale) YearTicks(max int) []Tick {
	if max < 1 || !s.Max.After(s.Min) {
		return nil
	}
	first := s.Min.Year() + 1
	last := s.Max.Year()
	n := last - first + 1
	if n <= 0 {
		return nil
	}
	step := (n + max - 1) / max
	var ticks []Tick
	for y := first; y <= last; y += step {
		t := time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
		ticks = append(ticks, Tick{Pos: s.Map(t), Label: fmt.Sprintf("%d", y)})
	}
	return ticks
}

// DurationTicks places ticks on whole-minute multiples.
func (s LinearScale) DurationTicks(max int) []Tick {
	lo, hi := math.Min(s.D0, s.D1), math.Max(s.D0, s.D1)
	if max < 1 || hi <= lo {
		return nil
	}
	step := 60.0
	for (hi-lo)/step > float64(max) {
		step *= 2
	}
	var ticks []Tick
	for v := math.Ceil(lo/step) * step; v <= hi; v += step {
		if v < 0 {
			continue
		}
		ticks = append(ticks, Tick{Pos: s.Map(v), Label: FormatDuration(v)})
	}
	return ticks
}

// FormatDuration renders seconds as m:ss.
func FormatDuration(sec float64) string {
	total := int(math.Round(sec))
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
