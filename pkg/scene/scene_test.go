package scene

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sudorandom/fightscope/pkg/layout"
)

func snap(run uuid.UUID, seq uint64, typ layout.SnapshotType, nodes ...layout.PositionedNode) layout.Snapshot {
	return layout.Snapshot{
		Type:  typ,
		RunID: run,
		Seq:   seq,
		Nodes: nodes,
		Stats: layout.Stats{Ticks: seq, LastTick: time.Duration(seq) * time.Millisecond},
	}
}

func flatScene(t *testing.T) *Scene {
	t.Helper()
	s := New(DefaultConfig(), zerolog.Nop())
	s.SetMode(Mode2D)
	s.Step(time.Second)
	s.Resize(800, 600)
	if s.Depth() != 0 {
		t.Fatalf("depth = %v, want 0", s.Depth())
	}
	return s
}

func TestApplyOrdering(t *testing.T) {
	s := New(DefaultConfig(), zerolog.Nop())
	run := uuid.New()

	if !s.Apply(snap(run, 2, layout.TypeTick, layout.PositionedNode{ID: "a"})) {
		t.Fatal("first snapshot rejected")
	}
	if s.Apply(snap(run, 1, layout.TypeTick, layout.PositionedNode{ID: "old"})) {
		t.Error("older snapshot applied")
	}
	if s.Apply(snap(run, 2, layout.TypeTick)) {
		t.Error("duplicate snapshot applied")
	}
	if _, ok := s.Node("a"); !ok {
		t.Error("stale snapshot replaced the graph")
	}
	if !s.Apply(snap(run, 3, layout.TypeStable, layout.PositionedNode{ID: "a"})) || !s.Stable() {
		t.Error("STABLE not recorded")
	}

	next := uuid.New()
	if !s.Apply(snap(next, 1, layout.TypeTick, layout.PositionedNode{ID: "b"})) {
		t.Fatal("new run rejected")
	}
	if s.Stable() {
		t.Error("stable flag carried into a new run")
	}
	if s.RunID() != next || s.Len() != 1 {
		t.Errorf("run %v with %d nodes", s.RunID(), s.Len())
	}
	if got := s.TickHistory(); len(got) != 1 || got[0] != 1 {
		t.Errorf("tick history = %v", got)
	}
}

func TestDepthTransition(t *testing.T) {
	s := New(DefaultConfig(), zerolog.Nop())
	if s.Mode() != Mode3D || s.Depth() != 1 {
		t.Fatalf("initial mode %s depth %v", s.Mode(), s.Depth())
	}
	if s.Step(100 * time.Millisecond) {
		t.Error("Step changed depth while already at target")
	}

	if m := s.ToggleMode(); m != Mode2D {
		t.Fatalf("toggle gave %s", m)
	}
	s.Step(100 * time.Millisecond)
	if math.Abs(s.Depth()-0.75) > 1e-9 {
		t.Errorf("depth = %v, want 0.75", s.Depth())
	}
	s.Step(time.Second)
	if s.Depth() != 0 {
		t.Errorf("depth = %v, want 0", s.Depth())
	}

	// Reversing mid-transition continues from the current depth.
	s.SetMode(Mode3D)
	s.Step(200 * time.Millisecond)
	s.SetMode(Mode2D)
	s.Step(100 * time.Millisecond)
	if math.Abs(s.Depth()-0.25) > 1e-9 {
		t.Errorf("depth = %v, want 0.25", s.Depth())
	}
}

func TestFlatProjection(t *testing.T) {
	s := flatScene(t)
	s.Apply(snap(uuid.New(), 1, layout.TypeTick,
		layout.PositionedNode{ID: "a", X: 0, Y: 0, Z: 50},
		layout.PositionedNode{ID: "b", X: 70, Y: -35, Z: -80, Degree: 4},
	))

	scale := DefaultCamera().FocalLength / DefaultCamera().Distance
	got := map[string]Sprite{}
	for _, sp := range s.Project() {
		got[sp.ID] = sp
	}
	if a := got["a"]; a.X != 400 || a.Y != 300 {
		t.Errorf("a at (%v, %v), want (400, 300)", a.X, a.Y)
	}
	b := got["b"]
	if math.Abs(b.X-(400+70*scale)) > 1e-9 || math.Abs(b.Y-(300-35*scale)) > 1e-9 {
		t.Errorf("b at (%v, %v)", b.X, b.Y)
	}
	if math.Abs(b.Radius-6) > 1e-9 || math.Abs(got["a"].Radius-3) > 1e-9 {
		t.Errorf("radii a=%v b=%v, want 3 and 6", got["a"].Radius, b.Radius)
	}
	if b.Shade != 1 {
		t.Errorf("flat view shaded: %v", b.Shade)
	}
}

func TestDepthSortAndShading(t *testing.T) {
	s := New(DefaultConfig(), zerolog.Nop())
	s.Resize(800, 600)
	s.SetCamera(Camera{Distance: 700, FocalLength: 600})
	s.Apply(snap(uuid.New(), 1, layout.TypeTick,
		layout.PositionedNode{ID: "near", Z: -200},
		layout.PositionedNode{ID: "far", Z: 200},
		layout.PositionedNode{ID: "mid", X: 10},
	))

	sprites := s.Project()
	order := []string{sprites[0].ID, sprites[1].ID, sprites[2].ID}
	if order[0] != "far" || order[2] != "near" {
		t.Errorf("paint order %v, want far first and near last", order)
	}
	for i := 1; i < len(sprites); i++ {
		if sprites[i].Depth > sprites[i-1].Depth {
			t.Errorf("sprites not sorted far to near")
		}
	}
	if sprites[2].Radius <= sprites[0].Radius {
		t.Errorf("near sprite not larger than far one")
	}
	for _, sp := range sprites {
		if sp.Shade < DefaultConfig().Ambient || sp.Shade > 1 {
			t.Errorf("%s shade %v out of range", sp.ID, sp.Shade)
		}
	}
}

func TestBehindCameraClipped(t *testing.T) {
	s := New(DefaultConfig(), zerolog.Nop())
	s.Resize(800, 600)
	s.SetCamera(Camera{Distance: 700, FocalLength: 600})
	s.Apply(layout.Snapshot{
		RunID: uuid.New(),
		Seq:   1,
		Nodes: []layout.PositionedNode{{ID: "ok"}, {ID: "behind", Z: -800}},
		Links: []layout.PositionedLink{{Source: "ok", Target: "behind", Z2: -800}},
	})
	if got := s.Project(); len(got) != 1 || got[0].ID != "ok" {
		t.Errorf("sprites = %+v", got)
	}
	if got := s.Edges(); len(got) != 0 {
		t.Errorf("edge to clipped node kept: %+v", got)
	}
}

func TestCameraClamps(t *testing.T) {
	s := New(DefaultConfig(), zerolog.Nop())
	s.Orbit(0, 10)
	if c := s.Camera(); c.Pitch != maxPitch {
		t.Errorf("pitch = %v", c.Pitch)
	}
	s.Zoom(1000)
	if c := s.Camera(); c.Distance != minDistance {
		t.Errorf("distance = %v", c.Distance)
	}
	before := s.Camera()
	s.Zoom(0)
	s.Zoom(math.NaN())
	if s.Camera() != before {
		t.Errorf("invalid zoom changed the camera")
	}
}

func TestPickingAndSelection(t *testing.T) {
	s := flatScene(t)
	run := uuid.New()
	s.Apply(layout.Snapshot{
		RunID: run,
		Seq:   1,
		Nodes: []layout.PositionedNode{{ID: "a"}, {ID: "b", X: 100}, {ID: "c", X: -100}},
		Links: []layout.PositionedLink{
			{Source: "a", Target: "b", X2: 100},
			{Source: "b", Target: "c", X1: 100, X2: -100},
		},
	})

	var selected, hovered []string
	s.OnSelect(func(id string) { selected = append(selected, id) })
	s.OnHover(func(id string) { hovered = append(hovered, id) })

	s.PointerMove(402, 301)
	if s.Hovered() != "a" {
		t.Errorf("hovered = %q", s.Hovered())
	}
	s.PointerMove(403, 301)
	s.Click(401, 300)
	s.Click(600, 500)
	if s.Selected() != "a" {
		t.Errorf("empty click changed selection to %q", s.Selected())
	}
	if s.Hit(400, 380) != "" {
		t.Error("hit far from any node")
	}

	edges := s.Edges()
	hl := 0
	for _, e := range edges {
		if e.Highlight {
			hl++
		}
	}
	if hl != 1 {
		t.Errorf("expected one highlighted edge, got %d", hl)
	}

	// The selected node disappearing clears the selection.
	s.Apply(layout.Snapshot{RunID: run, Seq: 2, Nodes: []layout.PositionedNode{{ID: "b", X: 100}}})
	if s.Selected() != "" || s.Hovered() != "" {
		t.Errorf("selection %q hover %q survived removal", s.Selected(), s.Hovered())
	}

	wantSel := []string{"a", ""}
	wantHov := []string{"a", ""}
	if len(selected) != 2 || selected[0] != wantSel[0] || selected[1] != wantSel[1] {
		t.Errorf("select callbacks = %q", selected)
	}
	if len(hovered) != 2 || hovered[0] != wantHov[0] || hovered[1] != wantHov[1] {
		t.Errorf("hover callbacks = %q", hovered)
	}
}

func TestRedrawFlag(t *testing.T) {
	s := New(DefaultConfig(), zerolog.Nop())
	s.Drawn()
	if s.NeedsRedraw() {
		t.Fatal("dirty after Drawn")
	}
	s.Resize(640, 480)
	if !s.NeedsRedraw() || s.Reason() != "resize" {
		t.Errorf("resize did not request redraw (%q)", s.Reason())
	}
	s.Drawn()
	s.Resize(640, 480)
	if s.NeedsRedraw() {
		t.Error("same size requested redraw")
	}
}

func BenchmarkProject(b *testing.B) {
	s := New(DefaultConfig(), zerolog.Nop())
	s.Resize(1920, 1080)
	nodes := make([]layout.PositionedNode, 2000)
	for i := range nodes {
		f := float64(i)
		nodes[i] = layout.PositionedNode{ID: uuid.NewString(), X: math.Cos(f) * f, Y: math.Sin(f) * f, Z: f / 10, Degree: f}
	}
	s.Apply(layout.Snapshot{RunID: uuid.New(), Seq: 1, Nodes: nodes})
	b.ReportAllocs()
	for b.Loop() {
		s.Orbit(0.01, 0)
		s.Project()
	}
}
