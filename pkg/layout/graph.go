package layout

import (
	"encoding/json"
	"fmt"
	"io"
)

// LoadGraph decodes a {"nodes": [...], "links": [...]} document. Structural
// checks (unknown or duplicate IDs) happen when a simulation is built.
func LoadGraph(r io.Reader) (Graph, error) {
	var g Graph
	if err := json.NewDecoder(r).Decode(&g); err != nil {
		return Graph{}, fmt.Errorf("failed to decode graph: %w", err)
	}
	for i, l := range g.Links {
		if l.Weight < 0 {
			return Graph{}, fmt.Errorf("link %d (%s-%s): negative weight", i, l.Source, l.Target)
		}
	}
	return g, nil
}
