package export

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/sudorandom/fightscope/pkg/fights"
	"github.com/sudorandom/fightscope/pkg/scatter"
	"github.com/sudorandom/fightscope/pkg/trend"
)

// ReportConfig holds settings for the HTML scatter report.
type ReportConfig struct {
	Title    string
	Subtitle string
	Width    string
	Height   string
	Theme    string
	Filters  fights.Filters

	// DurationDomain fixes the y axis to [min, max] seconds when set.
	DurationDomain *[2]float64
}

func DefaultReportConfig() ReportConfig {
	return ReportConfig{
		Title:  "Fight history",
		Width:  "1200px",
		Height: "600px",
		Theme:  "dark",
	}
}

func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

const dateLayout = "2006-01-02"

// ScatterSeries groups fights passing the filters by method, in display
// order. Each value is [date, minutes, opponent].
func ScatterSeries(list []fights.Fight, filters fights.Filters) map[fights.Method][]opts.ScatterData {
	out := map[fights.Method][]opts.ScatterData{}
	for _, f := range list {
		if filters.Excludes(f) {
			continue
		}
		minutes := math.Round(f.DurationSeconds/60*100) / 100
		out[f.Method] = append(out[f.Method], opts.ScatterData{
			Name:  f.OpponentName,
			Value: []interface{}{f.Date.UTC().Format(dateLayout), minutes, string(f.Result)},
		})
	}
	return out
}

// TrendPoints returns the fights passing the filters as trend input, the
// same points the interactive plot smooths.
func TrendPoints(list []fights.Fight, filters fights.Filters) []trend.Point {
	pts := make([]trend.Point, 0, len(list))
	for _, f := range list {
		if filters.Excludes(f) {
			continue
		}
		pts = append(pts, trend.Point{X: float64(f.Date.Unix()), Y: f.DurationSeconds})
	}
	return pts
}

// TrendSeries converts trend points (unix seconds, duration seconds) into
// line data on the same axes as ScatterSeries.
func TrendSeries(points []trend.Point) []opts.LineData {
	out := make([]opts.LineData, 0, len(points))
	for _, p := range points {
		ts := time.Unix(int64(p.X), 0).UTC()
		out = append(out, opts.LineData{Value: []interface{}{ts.Format(dateLayout), math.Round(p.Y/60*100) / 100}})
	}
	return out
}

func yAxis(domain *[2]float64) opts.YAxis {
	y := opts.YAxis{
		Type: "value",
		Name: "Duration (min)",
	}
	if domain != nil && domain[1] > domain[0] {
		y.Min = math.Round(domain[0]/60*100) / 100
		y.Max = math.Round(domain[1]/60*100) / 100
	}
	return y
}

// RenderScatterHTML writes a standalone interactive page with one scatter
// series per finish method and, when points are given, the trend line.
func RenderScatterHTML(w io.Writer, list []fights.Fight, trendPts []trend.Point, cfg ReportConfig) error {
	sc := charts.NewScatter()
	sc.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: cfg.Title,
			Width:     cfg.Width,
			Height:    cfg.Height,
			Theme:     cfg.Theme,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    cfg.Title,
			Subtitle: cfg.Subtitle,
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "item",
		}),
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(true),
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Type: "time",
			Name: "Date",
		}),
		charts.WithYAxisOpts(yAxis(cfg.DurationDomain)),
	)

	series := ScatterSeries(list, cfg.Filters)
	for _, m := range fights.Methods {
		data := series[m]
		if len(data) == 0 {
			continue
		}
		sc.AddSeries(string(m), data,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(scatter.MethodColor(m))}),
		)
	}

	if len(trendPts) > 0 {
		line := charts.NewLine()
		line.AddSeries("Trend", TrendSeries(trendPts),
			charts.WithLineChartOpts(opts.LineChart{
				Smooth:     opts.Bool(true),
				ShowSymbol: opts.Bool(false),
			}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(scatter.TrendColor)}),
		)
		sc.Overlap(line)
	}

	if err := sc.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
