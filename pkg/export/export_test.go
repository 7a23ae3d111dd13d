package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	geojson "github.com/paulmach/go.geojson"

	"github.com/sudorandom/fightscope/pkg/fights"
	"github.com/sudorandom/fightscope/pkg/layout"
	"github.com/sudorandom/fightscope/pkg/trend"
)

func TestSnapshotGeoJSON(t *testing.T) {
	tests := []struct {
		name      string
		z         float64
		wantCoord int
	}{
		{"flat", 0, 2},
		{"with depth", 4, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := layout.Snapshot{
				RunID: uuid.New(),
				Nodes: []layout.PositionedNode{
					{ID: "a", Label: "Ana Lima", Country: "BR", X: 1, Y: 2, Z: tt.z, Degree: 3},
					{ID: "b", X: -5, Y: 7},
				},
				Links: []layout.PositionedLink{{Source: "a", Target: "b", Weight: 2, X1: 1, Y1: 2, Z1: tt.z, X2: -5, Y2: 7}},
			}
			data, err := SnapshotGeoJSON(s)
			if err != nil {
				t.Fatal(err)
			}
			fc, err := geojson.UnmarshalFeatureCollection(data)
			if err != nil {
				t.Fatal(err)
			}
			if len(fc.Features) != 3 {
				t.Fatalf("got %d features, want 3", len(fc.Features))
			}

			a := fc.Features[0]
			if !a.Geometry.IsPoint() || len(a.Geometry.Point) != tt.wantCoord {
				t.Errorf("node geometry = %+v", a.Geometry)
			}
			if a.ID != "a" || a.PropertyMustString("country") != "BR" || a.PropertyMustFloat64("degree") != 3 {
				t.Errorf("node properties = %v (id %v)", a.Properties, a.ID)
			}
			if _, ok := fc.Features[1].Properties["label"]; ok {
				t.Error("empty label should be omitted")
			}

			l := fc.Features[2]
			if !l.Geometry.IsLineString() || len(l.Geometry.LineString) != 2 {
				t.Fatalf("link geometry = %+v", l.Geometry)
			}
			if got := l.Geometry.LineString[1]; got[0] != -5 || got[1] != 7 {
				t.Errorf("link end = %v", got)
			}
			if l.PropertyMustString("source") != "a" || l.PropertyMustFloat64("weight") != 2 {
				t.Errorf("link properties = %v", l.Properties)
			}
		})
	}
}

func reportFights() []fights.Fight {
	return []fights.Fight{
		{ID: "1", Date: time.Date(2015, 1, 10, 0, 0, 0, 0, time.UTC), DurationSeconds: 90, Method: fights.MethodKO, Result: fights.ResultWin, OpponentName: "Ana Lima"},
		{ID: "2", Date: time.Date(2016, 4, 2, 0, 0, 0, 0, time.UTC), DurationSeconds: 900, Method: fights.MethodDEC, Result: fights.ResultLoss, OpponentName: "Jo Park"},
		{ID: "3", Date: time.Date(2017, 8, 19, 0, 0, 0, 0, time.UTC), DurationSeconds: 250, Method: fights.MethodKO, Result: fights.ResultWin, OpponentName: "Sam Cole"},
	}
}

func TestScatterSeries(t *testing.T) {
	all := ScatterSeries(reportFights(), fights.Filters{})
	if len(all[fights.MethodKO]) != 2 || len(all[fights.MethodDEC]) != 1 {
		t.Fatalf("series sizes KO=%d DEC=%d", len(all[fights.MethodKO]), len(all[fights.MethodDEC]))
	}
	v := all[fights.MethodKO][0].Value.([]interface{})
	if v[0] != "2015-01-10" || v[1] != 1.5 || v[2] != "WIN" {
		t.Errorf("first KO value = %v", v)
	}

	wins := ScatterSeries(reportFights(), fights.Filters{}.ToggleResult(fights.ResultWin))
	if len(wins[fights.MethodDEC]) != 0 || len(wins[fights.MethodKO]) != 2 {
		t.Errorf("filtered series = %v", wins)
	}
}

func TestTrendPoints(t *testing.T) {
	pts := TrendPoints(reportFights(), fights.NewFilters(nil, []fights.Method{fights.MethodKO}))
	if len(pts) != 2 {
		t.Fatalf("got %d points, want 2", len(pts))
	}
	if pts[1].Y != 250 || pts[1].X != float64(time.Date(2017, 8, 19, 0, 0, 0, 0, time.UTC).Unix()) {
		t.Errorf("second point = %+v", pts[1])
	}
}

func TestTrendSeries(t *testing.T) {
	ts := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	got := TrendSeries([]trend.Point{{X: float64(ts.Unix()), Y: 300}})
	if len(got) != 1 {
		t.Fatalf("got %d points", len(got))
	}
	v := got[0].Value.([]interface{})
	if v[0] != "2020-06-01" || v[1] != 5.0 {
		t.Errorf("trend value = %v", v)
	}
}

func TestRenderScatterHTML(t *testing.T) {
	cfg := DefaultReportConfig()
	cfg.Title = "Career of Test Fighter"

	var buf bytes.Buffer
	pts := []trend.Point{{X: float64(time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC).Unix()), Y: 200}}
	if err := RenderScatterHTML(&buf, reportFights(), pts, cfg); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Career of Test Fighter", `"KO"`, `"DEC"`, `"Trend"`, "Ana Lima", "echarts"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q", want)
		}
	}
	if strings.Contains(out, `"SUB"`) {
		t.Error("empty method series should be skipped")
	}

	buf.Reset()
	if err := RenderScatterHTML(&buf, reportFights(), nil, cfg); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), `"Trend"`) {
		t.Error("trend series rendered without points")
	}
}

func TestYAxisDomain(t *testing.T) {
	if y := yAxis(nil); y.Min != nil || y.Max != nil {
		t.Errorf("axis without domain = [%v, %v]", y.Min, y.Max)
	}
	if y := yAxis(&[2]float64{600, 60}); y.Min != nil || y.Max != nil {
		t.Errorf("inverted domain should be ignored, got [%v, %v]", y.Min, y.Max)
	}
	y := yAxis(&[2]float64{0, 1500})
	if y.Min != 0.0 || y.Max != 25.0 {
		t.Errorf("axis = [%v, %v], want [0, 25]", y.Min, y.Max)
	}

	cfg := DefaultReportConfig()
	cfg.DurationDomain = &[2]float64{0, 1500}
	var buf bytes.Buffer
	if err := RenderScatterHTML(&buf, reportFights(), nil, cfg); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"max":25`) {
		t.Error("rendered y axis is missing the max bound")
	}
}
