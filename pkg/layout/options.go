package layout

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTerminated     = errors.New("layout worker terminated")
	ErrNotRunning     = errors.New("layout worker not running")
	ErrUnknownNode    = errors.New("link references unknown node")
	ErrDuplicateNode  = errors.New("duplicate node id")
	ErrInvalidOptions = errors.New("invalid layout options")
)

// BarnesHutThreshold is the node count above which 2D repulsion switches to
// the quadtree approximation.
const BarnesHutThreshold = 200

// Options tune the simulation. They can be changed while it runs.
type Options struct {
	LinkDistance    float64
	Repulsion       float64
	MinLinkStrength float64
	CenterStrength  float64
	VelocityDecay   float64
	AlphaDecay      float64
	AlphaMin        float64
	StableThreshold float64
	EmitInterval    time.Duration
	Dimensions      int
	Theta           float64
}

func DefaultOptions() Options {
	return Options{
		LinkDistance:    60,
		Repulsion:       120,
		MinLinkStrength: 0.1,
		CenterStrength:  1,
		VelocityDecay:   0.4,
		AlphaDecay:      0.0228,
		AlphaMin:        0.001,
		StableThreshold: 0.08,
		EmitInterval:    32 * time.Millisecond,
		Dimensions:      3,
		Theta:           0.9,
	}
}

func (o Options) Validate() error {
	switch {
	case o.LinkDistance <= 0:
		return fmt.Errorf("%w: link distance must be positive", ErrInvalidOptions)
	case o.Repulsion < 0:
		return fmt.Errorf("%w: repulsion must not be negative", ErrInvalidOptions)
	case o.MinLinkStrength < 0 || o.MinLinkStrength > 1:
		return fmt.Errorf("%w: min link strength must be within [0, 1]", ErrInvalidOptions)
	case o.VelocityDecay < 0 || o.VelocityDecay >= 1:
		return fmt.Errorf("%w: velocity decay must be within [0, 1)", ErrInvalidOptions)
	case o.AlphaDecay <= 0 || o.AlphaDecay >= 1:
		return fmt.Errorf("%w: alpha decay must be within (0, 1)", ErrInvalidOptions)
	case o.AlphaMin <= 0 || o.AlphaMin >= o.StableThreshold:
		return fmt.Errorf("%w: alpha min must be positive and below the stable threshold", ErrInvalidOptions)
	case o.StableThreshold >= 1:
		return fmt.Errorf("%w: stable threshold must be below 1", ErrInvalidOptions)
	case o.EmitInterval < 0:
		return fmt.Errorf("%w: emit interval must not be negative", ErrInvalidOptions)
	case o.Dimensions != 2 && o.Dimensions != 3:
		return fmt.Errorf("%w: dimensions must be 2 or 3", ErrInvalidOptions)
	case o.Theta < 0:
		return fmt.Errorf("%w: theta must not be negative", ErrInvalidOptions)
	}
	return nil
}
