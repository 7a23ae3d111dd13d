// Package trend computes a rolling-median line through scattered points.
package trend

import (
	"errors"
	"math"
	"sort"
)

const (
	DefaultSpan      = 0.15
	DefaultMinWindow = 5
)

var ErrMalformedInput = errors.New("malformed trend input")

// Point is one sample. X is typically a unix timestamp in seconds.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Options picks the window size. A positive Window is used as is, otherwise
// the window is Span times the point count, never below MinWindow.
type Options struct {
	Window    int
	Span      float64
	MinWindow int
}

// WindowFor resolves the window size for n points.
func (o Options) WindowFor(n int) int {
	if o.Window > 0 {
		return o.Window
	}
	span := o.Span
	if span <= 0 {
		span = DefaultSpan
	}
	minWindow := o.MinWindow
	if minWindow <= 0 {
		minWindow = DefaultMinWindow
	}
	w := int(math.Round(span * float64(n)))
	if w < minWindow {
		w = minWindow
	}
	return w
}

// Smooth returns the centered rolling median of points. The input is sorted
// by X (stable) on a copy first. With fewer points than the window a single
// point at the overall median is returned.
func Smooth(points []Point, opts Options) ([]Point, error) {
	if len(points) == 0 {
		return []Point{}, nil
	}
	for _, p := range points {
		if !finite(p.X) || !finite(p.Y) {
			return nil, ErrMalformedInput
		}
	}

	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	n := len(sorted)
	w := opts.WindowFor(n)
	if n < w {
		xs := make([]float64, n)
		ys := make([]float64, n)
		for i, p := range sorted {
			xs[i] = p.X
			ys[i] = p.Y
		}
		return []Point{{X: median(xs), Y: median(ys)}}, nil
	}

	half := (w - 1) / 2
	out := make([]Point, n)
	buf := make([]float64, 0, 2*half+1)
	for i := range sorted {
		lo := max(i-half, 0)
		hi := min(i+half, n-1)
		buf = buf[:0]
		for j := lo; j <= hi; j++ {
			buf = append(buf, sorted[j].Y)
		}
		out[i] = Point{X: sorted[i].X, Y: median(buf)}
	}
	return out, nil
}

// median sorts vals in place.
func median(vals []float64) float64 {
	sort.Float64s(vals)
	n := len(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
