// Package export renders fight data and layout snapshots into formats other
// tools can open: GeoJSON for the graph and a standalone HTML chart for the
// scatter.
package export

import (
	"fmt"

	geojson "github.com/paulmach/go.geojson"

	"github.com/sudorandom/fightscope/pkg/layout"
)

// SnapshotGeoJSON writes nodes as Point features and links as LineString
// features in layout space. Z is kept as the third coordinate when any node
// has depth.
func SnapshotGeoJSON(s layout.Snapshot) ([]byte, error) {
	fc := geojson.NewFeatureCollection()

	has3D := false
	for _, n := range s.Nodes {
		if n.Z != 0 {
			has3D = true
			break
		}
	}
	coord := func(x, y, z float64) []float64 {
		if has3D {
			return []float64{x, y, z}
		}
		return []float64{x, y}
	}

	for _, n := range s.Nodes {
		f := geojson.NewPointFeature(coord(n.X, n.Y, n.Z))
		f.ID = n.ID
		f.SetProperty("kind", "node")
		f.SetProperty("degree", n.Degree)
		if n.Label != "" {
			f.SetProperty("label", n.Label)
		}
		if n.Country != "" {
			f.SetProperty("country", n.Country)
		}
		fc.AddFeature(f)
	}
	for _, l := range s.Links {
		f := geojson.NewLineStringFeature([][]float64{coord(l.X1, l.Y1, l.Z1), coord(l.X2, l.Y2, l.Z2)})
		f.ID = l.Source + "-" + l.Target
		f.SetProperty("kind", "link")
		f.SetProperty("source", l.Source)
		f.SetProperty("target", l.Target)
		f.SetProperty("weight", l.Weight)
		fc.AddFeature(f)
	}

	b, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal geojson: %w", err)
	}
	return b, nil
}
