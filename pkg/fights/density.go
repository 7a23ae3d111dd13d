package fights

import (
	"math"
	"sort"
	"time"
)

// DensityBucket is the occurrence count of one grid cell.
type DensityBucket struct {
	I     int `json:"i"`
	J     int `json:"j"`
	Count int `json:"count"`
}

// DensityGrid is a time x duration histogram. Column I covers the I-th slice
// of the time domain, row J the J-th slice of the duration domain.
type DensityGrid struct {
	Cols    int             `json:"cols"`
	Rows    int             `json:"rows"`
	Buckets []DensityBucket `json:"buckets"`
}

// MaxCount returns the largest bucket count.
func (g DensityGrid) MaxCount() int {
	m := 0
	for _, b := range g.Buckets {
		if b.Count > m {
			m = b.Count
		}
	}
	return m
}

// Bucketize aggregates fights into a cols x rows grid over the given time and
// duration domains. Fights outside the domains are clamped into edge cells.
func Bucketize(list []Fight, cols, rows int, tMin, tMax time.Time, dMin, dMax float64) DensityGrid {
	g := DensityGrid{Cols: cols, Rows: rows}
	if cols < 1 || rows < 1 || len(list) == 0 {
		return g
	}
	tSpan := tMax.Sub(tMin).Seconds()
	dSpan := dMax - dMin
	counts := make(map[[2]int]int)
	for _, f := range list {
		i, j := 0, 0
		if tSpan > 0 {
			i = int(math.Floor(f.Date.Sub(tMin).Seconds() / tSpan * float64(cols)))
		}
		if dSpan > 0 {
			j = int(math.Floor((f.DurationSeconds - dMin) / dSpan * float64(rows)))
		}
		i = clampInt(i, 0, cols-1)
		j = clampInt(j, 0, rows-1)
		counts[[2]int{i, j}]++
	}
	for k, c := range counts {
		g.Buckets = append(g.Buckets, DensityBucket{I: k[0], J: k[1], Count: c})
	}
	sort.Slice(g.Buckets, func(a, b int) bool {
		if g.Buckets[a].I != g.Buckets[b].I {
			return g.Buckets[a].I < g.Buckets[b].I
		}
		return g.Buckets[a].J < g.Buckets[b].J
	})
	return g
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Span returns the earliest and latest fight dates and the duration range.
func Span(list []Fight) (tMin, tMax time.Time, dMin, dMax float64) {
	for i, f := range list {
		if i == 0 || f.Date.Before(tMin) {
			tMin = f.Date
		}
		if i == 0 || f.Date.After(tMax) {
			tMax = f.Date
		}
		if i == 0 || f.DurationSeconds < dMin {
			dMin = f.DurationSeconds
		}
		if i == 0 || f.DurationSeconds > dMax {
			dMax = f.DurationSeconds
		}
	}
	return tMin, tMax, dMin, dMax
}
