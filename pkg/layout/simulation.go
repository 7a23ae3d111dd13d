// Package layout runs a force-directed simulation over the fighter
// relationship graph and streams position snapshots from a background worker.
package layout

import (
	"fmt"
	"math"
	"time"
)

// NodeInput is a graph node as supplied by the caller.
type NodeInput struct {
	ID      string `json:"id"`
	Label   string `json:"label,omitempty"`
	Country string `json:"country,omitempty"`
}

// LinkInput connects two node IDs. Weight is the amount of shared history.
type LinkInput struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
}

// Graph is the JSON shape of a layout input file.
type Graph struct {
	Nodes []NodeInput `json:"nodes"`
	Links []LinkInput `json:"links"`
}

// Node is a simulated node. Degree is the sum of incident link weights.
type Node struct {
	ID         string
	Label      string
	Country    string
	X, Y, Z    float64
	VX, VY, VZ float64
	Degree     float64
}

// Link refers to nodes by index.
type Link struct {
	Source, Target int
	Weight         float64
	Strength       float64
	bias           float64
}

var (
	initialAngle     = math.Pi * (3 - math.Sqrt(5))
	initialAngleRoll = math.Pi * 20 / (9 + math.Sqrt(221))
)

const initialRadius = 10

// jiggler produces tiny deterministic offsets for coincident nodes.
type jiggler struct {
	state uint64
}

func (j *jiggler) next() float64 {
	j.state = j.state*6364136223846793005 + 1442695040888963407
	return (float64(j.state>>11)/float64(1<<53) - 0.5) * 1e-6
}

// Simulation is the synchronous core. It is not safe for concurrent use;
// the Worker owns one exclusively.
type Simulation struct {
	nodes  []Node
	links  []Link
	opts   Options
	alpha  float64
	ticks  uint64
	jiggle jiggler
}

// NewSimulation builds working copies of the graph and places nodes on a
// phyllotaxis spiral, so the same input always starts from the same layout.
func NewSimulation(nodes []NodeInput, links []LinkInput, opts Options) (*Simulation, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	s := &Simulation{
		nodes:  make([]Node, len(nodes)),
		opts:   opts,
		alpha:  1,
		jiggle: jiggler{state: 0x9e3779b97f4a7c15},
	}

	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if _, dup := index[n.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
		}
		index[n.ID] = i
		s.nodes[i] = Node{ID: n.ID, Label: n.Label, Country: n.Country}
	}

	for _, l := range links {
		src, ok := index[l.Source]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, l.Source)
		}
		dst, ok := index[l.Target]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, l.Target)
		}
		w := l.Weight
		if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			w = 1
		}
		s.links = append(s.links, Link{Source: src, Target: dst, Weight: w})
		s.nodes[src].Degree += w
		s.nodes[dst].Degree += w
	}

	s.place()
	s.initLinks()
	return s, nil
}

func (s *Simulation) place() {
	for i := range s.nodes {
		n := &s.nodes[i]
		fi := float64(i)
		if s.opts.Dimensions == 3 {
			r := initialRadius * math.Cbrt(0.5+fi)
			angle := fi * initialAngle
			roll := fi * initialAngleRoll
			n.X = r * math.Sin(angle) * math.Cos(roll)
			n.Y = r * math.Cos(angle)
			n.Z = r * math.Sin(angle) * math.Sin(roll)
		} else {
			r := initialRadius * math.Sqrt(0.5+fi)
			angle := fi * initialAngle
			n.X = r * math.Cos(angle)
			n.Y = r * math.Sin(angle)
			n.Z = 0
		}
	}
}

// initLinks derives spring strength from weight and the bias that splits
// each correction between the endpoints by their link counts.
func (s *Simulation) initLinks() {
	count := make([]int, len(s.nodes))
	maxWeight := 0.0
	for _, l := range s.links {
		count[l.Source]++
		count[l.Target]++
		maxWeight = math.Max(maxWeight, l.Weight)
	}
	for i := range s.links {
		l := &s.links[i]
		l.Strength = LinkStrength(l.Weight, maxWeight, s.opts.MinLinkStrength)
		l.bias = float64(count[l.Source]) / float64(count[l.Source]+count[l.Target])
	}
}

// LinkStrength is weight/maxWeight clamped to [min, 1].
func LinkStrength(weight, maxWeight, min float64) float64 {
	if maxWeight <= 0 {
		return 1
	}
	return math.Max(min, math.Min(1, weight/maxWeight))
}

func (s *Simulation) Alpha() float64 { return s.alpha }

func (s *Simulation) Ticks() uint64 { return s.ticks }

func (s *Simulation) Options() Options { return s.opts }

// SetOptions changes force parameters in place and re-heats the layout so
// the change is visible. Positions are kept.
func (s *Simulation) SetOptions(opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	dimsChanged := opts.Dimensions != s.opts.Dimensions
	s.opts = opts
	s.initLinks()
	if dimsChanged && opts.Dimensions == 2 {
		for i := range s.nodes {
			s.nodes[i].Z, s.nodes[i].VZ = 0, 0
		}
	}
	if dimsChanged && opts.Dimensions == 3 {
		for i := range s.nodes {
			s.nodes[i].Z = s.jiggle.next() * 1e6
		}
	}
	s.Reheat(0.3)
	return nil
}

// Reheat raises alpha to at least a.
func (s *Simulation) Reheat(a float64) {
	if a > s.alpha {
		s.alpha = math.Min(a, 1)
	}
}

// Step advances one integration step and returns how long it took.
func (s *Simulation) Step() time.Duration {
	start := time.Now()
	s.alpha += (0 - s.alpha) * s.opts.AlphaDecay

	s.applyLinks()
	if s.opts.Dimensions == 2 && s.opts.Theta > 0 && len(s.nodes) > BarnesHutThreshold {
		s.applyRepulsionApprox()
	} else {
		s.applyRepulsion()
	}

	decay := 1 - s.opts.VelocityDecay
	for i := range s.nodes {
		n := &s.nodes[i]
		n.VX *= decay
		n.VY *= decay
		n.VZ *= decay
		n.X += n.VX
		n.Y += n.VY
		n.Z += n.VZ
	}
	s.applyCenter()
	s.ticks++
	return time.Since(start)
}

func (s *Simulation) applyLinks() {
	three := s.opts.Dimensions == 3
	for _, l := range s.links {
		if l.Source == l.Target {
			continue
		}
		src, dst := &s.nodes[l.Source], &s.nodes[l.Target]
		x := dst.X + dst.VX - src.X - src.VX
		y := dst.Y + dst.VY - src.Y - src.VY
		z := 0.0
		if three {
			z = dst.Z + dst.VZ - src.Z - src.VZ
		}
		if x == 0 {
			x = s.jiggle.next()
		}
		if y == 0 {
			y = s.jiggle.next()
		}
		d := math.Sqrt(x*x + y*y + z*z)
		k := (d - s.opts.LinkDistance) / d * s.alpha * l.Strength
		x, y, z = x*k, y*k, z*k
		dst.VX -= x * l.bias
		dst.VY -= y * l.bias
		dst.VZ -= z * l.bias
		src.VX += x * (1 - l.bias)
		src.VY += y * (1 - l.bias)
		src.VZ += z * (1 - l.bias)
	}
}

func (s *Simulation) applyRepulsion() {
	strength := -s.opts.Repulsion * s.alpha
	three := s.opts.Dimensions == 3
	for i := range s.nodes {
		a := &s.nodes[i]
		for j := range s.nodes {
			if i == j {
				continue
			}
			b := &s.nodes[j]
			x, y := b.X-a.X, b.Y-a.Y
			z := 0.0
			if three {
				z = b.Z - a.Z
			}
			if x == 0 {
				x = s.jiggle.next()
			}
			if y == 0 {
				y = s.jiggle.next()
			}
			l := x*x + y*y + z*z
			if l < 1 {
				l = math.Sqrt(l)
			}
			w := strength / l
			a.VX += x * w
			a.VY += y * w
			a.VZ += z * w
		}
	}
}

func (s *Simulation) applyRepulsionApprox() {
	strength := -s.opts.Repulsion * s.alpha
	root := buildQuadTree(s.nodes)
	for i := range s.nodes {
		n := &s.nodes[i]
		fx, fy := root.force(i, n.X, n.Y, s.opts.Theta, strength, &s.jiggle)
		n.VX += fx
		n.VY += fy
	}
}

// applyCenter translates the layout so its centroid drifts to the origin.
func (s *Simulation) applyCenter() {
	if len(s.nodes) == 0 || s.opts.CenterStrength == 0 {
		return
	}
	var sx, sy, sz float64
	for _, n := range s.nodes {
		sx += n.X
		sy += n.Y
		sz += n.Z
	}
	cnt := float64(len(s.nodes))
	sx = sx / cnt * s.opts.CenterStrength
	sy = sy / cnt * s.opts.CenterStrength
	sz = sz / cnt * s.opts.CenterStrength
	for i := range s.nodes {
		s.nodes[i].X -= sx
		s.nodes[i].Y -= sy
		s.nodes[i].Z -= sz
	}
}

// Nodes returns a copy of the node state.
func (s *Simulation) Nodes() []Node {
	return append([]Node(nil), s.nodes...)
}

// Links returns a copy of the links.
func (s *Simulation) Links() []Link {
	return append([]Link(nil), s.links...)
}

// Positions flattens the current state for a snapshot.
func (s *Simulation) Positions() ([]PositionedNode, []PositionedLink) {
	nodes := make([]PositionedNode, len(s.nodes))
	for i, n := range s.nodes {
		nodes[i] = PositionedNode{
			ID: n.ID, Label: n.Label, Country: n.Country,
			X: n.X, Y: n.Y, Z: n.Z,
			VX: n.VX, VY: n.VY, VZ: n.VZ,
			Degree: n.Degree,
		}
	}
	links := make([]PositionedLink, len(s.links))
	for i, l := range s.links {
		a, b := s.nodes[l.Source], s.nodes[l.Target]
		links[i] = PositionedLink{
			Source: a.ID, Target: b.ID, Weight: l.Weight,
			X1: a.X, Y1: a.Y, Z1: a.Z,
			X2: b.X, Y2: b.Y, Z2: b.Z,
		}
	}
	return nodes, links
}
