package layout

import (
	"time"

	"github.com/google/uuid"
)

type SnapshotType string

const (
	TypeTick   SnapshotType = "TICK"
	TypeStable SnapshotType = "STABLE"
)

type PositionedNode struct {
	ID      string  `json:"id"`
	Label   string  `json:"label,omitempty"`
	Country string  `json:"country,omitempty"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
	VX      float64 `json:"vx"`
	VY      float64 `json:"vy"`
	VZ      float64 `json:"vz"`
	Degree  float64 `json:"degree"`
}

type PositionedLink struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
	X1     float64 `json:"x1"`
	Y1     float64 `json:"y1"`
	Z1     float64 `json:"z1"`
	X2     float64 `json:"x2"`
	Y2     float64 `json:"y2"`
	Z2     float64 `json:"z2"`
}

// Stats lets consumers spot a simulation that is falling behind.
type Stats struct {
	Ticks    uint64        `json:"ticks"`
	MeanTick time.Duration `json:"mean_tick"`
	LastTick time.Duration `json:"last_tick"`
	Alpha    float64       `json:"alpha"`
}

// Snapshot is one emitted frame of a layout run. Seq increases by one per
// emitted snapshot within a run.
type Snapshot struct {
	Type      SnapshotType     `json:"type"`
	RunID     uuid.UUID        `json:"run_id"`
	Seq       uint64           `json:"seq"`
	Nodes     []PositionedNode `json:"nodes"`
	Links     []PositionedLink `json:"links"`
	Stats     Stats            `json:"stats"`
	Timestamp time.Time        `json:"timestamp"`
}
