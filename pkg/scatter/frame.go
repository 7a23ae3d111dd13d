package scatter

import "image/color"

// Vec is a screen-space point.
type Vec struct {
	X, Y float64
}

// Cell is one density rectangle.
type Cell struct {
	X, Y, W, H float64
	Count      int
	Alpha      float64
}

// Badge is the method label drawn at a marker's corner.
type Badge struct {
	Label string
	X, Y  float64
	Color color.RGBA
}

// Marker is one fight as drawn. Fill is used until the bitmap resolves.
type Marker struct {
	FightID   string
	BitmapKey string
	HasBitmap bool
	X, Y      float64
	Radius    float64
	Fill      color.RGBA
	Border    color.RGBA
	Ring      color.RGBA
	Alpha     float64
	Hovered   bool
	Selected  bool
	Badge     Badge
}

// Frame is everything needed to paint one redraw, bottom layer first.
// Heatmap is the lower layer; HeatmapDirty is false when its cells are
// identical to the previous frame's.
type Frame struct {
	Width, Height float64
	DPR           float64
	PlotArea      [4]float64

	Heatmap      []Cell
	HeatmapDirty bool

	Markers []Marker
	Trend   []Vec
	XTicks  []Tick
	YTicks  []Tick
}
