// Package scene turns layout snapshots into a projected, pickable view of
// the relationship graph. It has no drawing code; the engine paints the
// sprites and segments it returns.
package scene

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sudorandom/fightscope/pkg/layout"
	"github.com/sudorandom/fightscope/pkg/spatial"
)

type ViewMode int

const (
	Mode2D ViewMode = iota
	Mode3D
)

func (m ViewMode) String() string {
	switch m {
	case Mode2D:
		return "2D"
	case Mode3D:
		return "3D"
	}
	return fmt.Sprintf("ViewMode(%d)", int(m))
}

// DepthRate is how fast Depth moves between 0 and 1, per second.
const DepthRate = 2.5

// tickHistory is the number of tick durations kept for the sparkline.
const tickHistory = 120

type Camera struct {
	Yaw         float64
	Pitch       float64
	Distance    float64
	FocalLength float64
}

func DefaultCamera() Camera {
	return Camera{Yaw: 0.6, Pitch: 0.35, Distance: 700, FocalLength: 600}
}

const (
	minDistance = 50
	maxDistance = 10000
	maxPitch    = 1.45
)

// Config sizes nodes: radius = BaseRadius + RadiusScale*sqrt(degree).
type Config struct {
	BaseRadius  float64
	RadiusScale float64
	HitSlop     float64
	Ambient     float64
}

func DefaultConfig() Config {
	return Config{BaseRadius: 3, RadiusScale: 1.5, HitSlop: 4, Ambient: 0.35}
}

// Sprite is a projected node.
type Sprite struct {
	ID       string
	Label    string
	Country  string
	Degree   float64
	X, Y     float64
	Radius   float64
	Depth    float64
	Shade    float64
	Hovered  bool
	Selected bool
}

// Segment is a projected link.
type Segment struct {
	X1, Y1, X2, Y2 float64
	Depth          float64
	Weight         float64
	Highlight      bool
}

// light points from the upper left, towards the viewer.
var light = normalize(-0.5, -0.6, -0.62)

// Scene holds the latest layout and the camera. All methods are safe for
// concurrent use; callbacks run without the lock held.
type Scene struct {
	cfg    Config
	logger zerolog.Logger

	mu     sync.Mutex
	camera Camera
	mode   ViewMode
	depth  float64
	width  float64
	height float64

	runID  uuid.UUID
	seq    uint64
	stable bool
	stats  layout.Stats
	ticks  []float64
	nodes  []layout.PositionedNode
	links  []layout.PositionedLink
	byID   map[string]int

	sprites []Sprite
	index   *spatial.Index[int]
	stale   bool

	hovered  string
	selected string
	onSelect func(id string)
	onHover  func(id string)

	dirty  bool
	reason string
}

func New(cfg Config, logger zerolog.Logger) *Scene {
	def := DefaultConfig()
	if cfg.BaseRadius <= 0 {
		cfg.BaseRadius = def.BaseRadius
	}
	if cfg.RadiusScale < 0 {
		cfg.RadiusScale = def.RadiusScale
	}
	if cfg.Ambient <= 0 || cfg.Ambient > 1 {
		cfg.Ambient = def.Ambient
	}
	return &Scene{
		cfg:    cfg,
		logger: logger,
		camera: DefaultCamera(),
		mode:   Mode3D,
		depth:  1,
		width:  1,
		height: 1,
		byID:   map[string]int{},
		stale:  true,
		dirty:  true,
	}
}

func (s *Scene) invalidateLocked(reason string) {
	s.stale = true
	s.dirty = true
	s.reason = reason
}

// Apply installs a snapshot. Snapshots of the current run that are not newer
// than the last applied one are ignored; a new run ID always wins.
func (s *Scene) Apply(snap layout.Snapshot) bool {
	s.mu.Lock()
	if snap.RunID == s.runID && snap.Seq <= s.seq {
		s.mu.Unlock()
		return false
	}
	if snap.RunID != s.runID {
		s.stable = false
		s.ticks = s.ticks[:0]
		s.logger.Debug().Str("run", snap.RunID.String()).Int("nodes", len(snap.Nodes)).Msg("New layout run")
	}
	s.runID = snap.RunID
	s.seq = snap.Seq
	s.stats = snap.Stats
	if snap.Type == layout.TypeStable {
		s.stable = true
	}
	s.ticks = append(s.ticks, float64(snap.Stats.LastTick)/float64(time.Millisecond))
	if len(s.ticks) > tickHistory {
		s.ticks = s.ticks[len(s.ticks)-tickHistory:]
	}

	s.nodes = snap.Nodes
	s.links = snap.Links
	clear(s.byID)
	for i, n := range s.nodes {
		s.byID[n.ID] = i
	}
	s.invalidateLocked("snapshot")

	var selCb, hovCb func(string)
	if _, ok := s.byID[s.selected]; s.selected != "" && !ok {
		s.selected = ""
		selCb = s.onSelect
	}
	if _, ok := s.byID[s.hovered]; s.hovered != "" && !ok {
		s.hovered = ""
		hovCb = s.onHover
	}
	s.mu.Unlock()

	if selCb != nil {
		selCb("")
	}
	if hovCb != nil {
		hovCb("")
	}
	return true
}

// Stats returns the stats of the last applied snapshot.
func (s *Scene) Stats() layout.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// TickHistory returns recent tick durations in milliseconds, oldest first.
func (s *Scene) TickHistory() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.ticks...)
}

func (s *Scene) Stable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stable
}

func (s *Scene) RunID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

func (s *Scene) Node(id string) (layout.PositionedNode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return layout.PositionedNode{}, false
	}
	return s.nodes[i], true
}

func (s *Scene) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

func (s *Scene) Mode() ViewMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Depth is 0 for a flat view and 1 for full perspective.
func (s *Scene) Depth() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.depth
}

func (s *Scene) SetMode(m ViewMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == m {
		return
	}
	s.mode = m
	s.dirty = true
	s.reason = "mode"
}

func (s *Scene) ToggleMode() ViewMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == Mode2D {
		s.mode = Mode3D
	} else {
		s.mode = Mode2D
	}
	s.dirty = true
	s.reason = "mode"
	return s.mode
}

// Step moves Depth towards the current mode's target. It runs on the frame
// clock, independent of layout ticks, and reports whether Depth changed.
func (s *Scene) Step(dt time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := 0.0
	if s.mode == Mode3D {
		target = 1
	}
	if s.depth == target || dt <= 0 {
		return false
	}
	delta := DepthRate * dt.Seconds()
	if s.depth < target {
		s.depth = math.Min(target, s.depth+delta)
	} else {
		s.depth = math.Max(target, s.depth-delta)
	}
	s.invalidateLocked("depth")
	return true
}

func (s *Scene) Camera() Camera {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.camera
}

func (s *Scene) SetCamera(c Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Pitch = math.Max(-maxPitch, math.Min(maxPitch, c.Pitch))
	c.Distance = math.Max(minDistance, math.Min(maxDistance, c.Distance))
	if c.FocalLength <= 0 {
		c.FocalLength = DefaultCamera().FocalLength
	}
	s.camera = c
	s.invalidateLocked("camera")
}

// Orbit rotates the camera around the origin.
func (s *Scene) Orbit(dyaw, dpitch float64) {
	c := s.Camera()
	c.Yaw += dyaw
	c.Pitch += dpitch
	s.SetCamera(c)
}

// Zoom moves the camera closer for factors above 1.
func (s *Scene) Zoom(factor float64) {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return
	}
	c := s.Camera()
	c.Distance /= factor
	s.SetCamera(c)
}

func (s *Scene) Resize(w, h float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w <= 0 || h <= 0 || (w == s.width && h == s.height) {
		return
	}
	s.width, s.height = w, h
	s.invalidateLocked("resize")
}

func (s *Scene) NeedsRedraw() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Scene) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Drawn clears the redraw flag after the engine has painted the scene.
func (s *Scene) Drawn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = false
}

// Radius is the flat-view radius of a node with the given degree.
func (s *Scene) Radius(degree float64) float64 {
	return s.cfg.BaseRadius + s.cfg.RadiusScale*math.Sqrt(math.Max(0, degree))
}

// project maps a layout position to the screen. Rotation and the z axis are
// scaled by depth, so depth 0 is a flat orthographic view of the XY plane.
func (s *Scene) project(x, y, z float64) (sx, sy, zc, scale float64, ok bool) {
	c := s.camera
	d := s.depth
	yaw, pitch := c.Yaw*d, c.Pitch*d
	z *= d

	cy, sny := math.Cos(yaw), math.Sin(yaw)
	x1 := x*cy + z*sny
	z1 := -x*sny + z*cy

	cp, snp := math.Cos(pitch), math.Sin(pitch)
	y2 := y*cp - z1*snp
	z2 := y*snp + z1*cp

	denom := c.Distance + z2
	if denom <= 1 {
		return 0, 0, 0, 0, false
	}
	scale = c.FocalLength / denom
	return s.width/2 + x1*scale, s.height/2 + y2*scale, z2, scale, true
}

func normalize(x, y, z float64) [3]float64 {
	l := math.Sqrt(x*x + y*y + z*z)
	if l == 0 {
		return [3]float64{0, 0, 0}
	}
	return [3]float64{x / l, y / l, z / l}
}

func (s *Scene) ensureLocked() {
	if !s.stale {
		return
	}
	s.stale = false

	base := s.camera.FocalLength / s.camera.Distance
	s.sprites = s.sprites[:0]
	for _, n := range s.nodes {
		x, y, zc, scale, ok := s.project(n.X, n.Y, n.Z)
		if !ok {
			continue
		}
		// Lambert term with the node's direction from the origin as normal.
		nrm := normalize(n.X, n.Y, -n.Z)
		lambert := math.Max(0, nrm[0]*light[0]+nrm[1]*light[1]+nrm[2]*light[2])
		shade := s.cfg.Ambient + (1-s.cfg.Ambient)*lambert
		s.sprites = append(s.sprites, Sprite{
			ID:       n.ID,
			Label:    n.Label,
			Country:  n.Country,
			Degree:   n.Degree,
			X:        x,
			Y:        y,
			Radius:   s.Radius(n.Degree) * scale / base,
			Depth:    zc,
			Shade:    1 + (shade-1)*s.depth,
			Hovered:  n.ID == s.hovered,
			Selected: n.ID == s.selected,
		})
	}
	// Far sprites first so near ones paint over them.
	slices.SortStableFunc(s.sprites, func(a, b Sprite) int {
		return cmp.Compare(b.Depth, a.Depth)
	})

	ids := make([]int, len(s.sprites))
	for i := range ids {
		ids[i] = i
	}
	sp := s.sprites
	s.index = spatial.Build(ids, func(i int) (float64, float64) {
		return sp[i].X, sp[i].Y
	})
}

// Project returns the nodes in paint order.
func (s *Scene) Project() []Sprite {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked()
	return append([]Sprite(nil), s.sprites...)
}

// Edges returns the links in paint order. Links with an endpoint behind
// the camera are omitted.
func (s *Scene) Edges() []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Segment, 0, len(s.links))
	for _, l := range s.links {
		x1, y1, z1, _, ok1 := s.project(l.X1, l.Y1, l.Z1)
		x2, y2, z2, _, ok2 := s.project(l.X2, l.Y2, l.Z2)
		if !ok1 || !ok2 {
			continue
		}
		hl := false
		for _, id := range [2]string{s.hovered, s.selected} {
			if id != "" && (l.Source == id || l.Target == id) {
				hl = true
			}
		}
		out = append(out, Segment{X1: x1, Y1: y1, X2: x2, Y2: y2, Depth: (z1 + z2) / 2, Weight: l.Weight, Highlight: hl})
	}
	slices.SortStableFunc(out, func(a, b Segment) int {
		return cmp.Compare(b.Depth, a.Depth)
	})
	return out
}

func (s *Scene) OnSelect(fn func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSelect = fn
}

func (s *Scene) OnHover(fn func(id string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onHover = fn
}

func (s *Scene) hitLocked(x, y float64) string {
	s.ensureLocked()
	maxR := 0.0
	for _, sp := range s.sprites {
		maxR = math.Max(maxR, sp.Radius)
	}
	hits := s.index.Within(x, y, maxR+s.cfg.HitSlop)
	best, bestDepth := -1, math.Inf(1)
	for _, i := range hits {
		sp := s.sprites[i]
		if math.Hypot(sp.X-x, sp.Y-y) > sp.Radius+s.cfg.HitSlop {
			continue
		}
		// Prefer the sprite nearest the camera.
		if sp.Depth < bestDepth {
			best, bestDepth = i, sp.Depth
		}
	}
	if best < 0 {
		return ""
	}
	return s.sprites[best].ID
}

// Hit returns the ID of the node under (x, y), or "".
func (s *Scene) Hit(x, y float64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hitLocked(x, y)
}

func (s *Scene) PointerMove(x, y float64) {
	s.mu.Lock()
	id := s.hitLocked(x, y)
	if id == s.hovered {
		s.mu.Unlock()
		return
	}
	s.hovered = id
	s.invalidateLocked("hover")
	cb := s.onHover
	s.mu.Unlock()

	if cb != nil {
		cb(id)
	}
}

func (s *Scene) PointerLeave() {
	s.mu.Lock()
	if s.hovered == "" {
		s.mu.Unlock()
		return
	}
	s.hovered = ""
	s.invalidateLocked("hover")
	cb := s.onHover
	s.mu.Unlock()

	if cb != nil {
		cb("")
	}
}

// Click selects the node under (x, y). Empty space keeps the selection.
func (s *Scene) Click(x, y float64) {
	s.mu.Lock()
	id := s.hitLocked(x, y)
	if id == "" || id == s.selected {
		s.mu.Unlock()
		return
	}
	s.selected = id
	s.invalidateLocked("select")
	cb := s.onSelect
	s.mu.Unlock()

	if cb != nil {
		cb(id)
	}
}

func (s *Scene) ClearSelection() {
	s.mu.Lock()
	if s.selected == "" {
		s.mu.Unlock()
		return
	}
	s.selected = ""
	s.invalidateLocked("select")
	cb := s.onSelect
	s.mu.Unlock()

	if cb != nil {
		cb("")
	}
}

func (s *Scene) Hovered() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hovered
}

func (s *Scene) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}
