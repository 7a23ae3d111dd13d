package transform

import (
	"math"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestApplyInvertRoundTrip(t *testing.T) {
	tr := Transform{Scale: 2.5, TranslateX: -40, TranslateY: 12}
	for _, p := range [][2]float64{{0, 0}, {100, 50}, {-3.5, 7.25}} {
		sx, sy := tr.Apply(p[0], p[1])
		bx, by := tr.Invert(sx, sy)
		if !approx(bx, p[0]) || !approx(by, p[1]) {
			t.Errorf("round trip of %v gave (%v, %v)", p, bx, by)
		}
	}
	if Identity().ApplyX(42) != 42 {
		t.Errorf("identity changed x")
	}
}

func TestZoomAtKeepsAnchor(t *testing.T) {
	c := NewController(0.5, 10)
	c.Pan(30, -20)
	before := c.Transform()
	ax, ay := 200.0, 150.0
	bx, by := before.Invert(ax, ay)

	if !c.ZoomAt(2, ax, ay) {
		t.Fatal("expected zoom to change transform")
	}
	after := c.Transform()
	if after.Scale != 2 {
		t.Errorf("scale = %v, want 2", after.Scale)
	}
	sx, sy := after.Apply(bx, by)
	if !approx(sx, ax) || !approx(sy, ay) {
		t.Errorf("anchor moved to (%v, %v)", sx, sy)
	}
}

func TestZoomClamps(t *testing.T) {
	tests := []struct {
		name   string
		factor float64
		want   float64
	}{
		{"zoom in past max", 100, 4},
		{"zoom out past min", 0.001, 0.25},
		{"within range", 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(0.25, 4)
			c.ZoomAt(tt.factor, 10, 10)
			if got := c.Transform().Scale; got != tt.want {
				t.Errorf("scale = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestZoomAtBoundIsNoop(t *testing.T) {
	c := NewController(0.5, 1)
	v := c.Version()
	if c.ZoomAt(3, 5, 5) {
		t.Errorf("zoom at max scale should not change transform")
	}
	if c.Version() != v {
		t.Errorf("version bumped without change")
	}
	if c.ZoomAt(0, 5, 5) || c.ZoomAt(math.NaN(), 5, 5) {
		t.Errorf("invalid factors must be ignored")
	}
}

func TestWheelZoomDirection(t *testing.T) {
	c := NewController(0.1, 10)
	c.WheelZoom(1, 0, 0)
	if c.Transform().Scale <= 1 {
		t.Errorf("positive wheel delta should zoom in, scale=%v", c.Transform().Scale)
	}
	c.Reset()
	c.WheelZoom(-1, 0, 0)
	if c.Transform().Scale >= 1 {
		t.Errorf("negative wheel delta should zoom out, scale=%v", c.Transform().Scale)
	}
}

func TestDrag(t *testing.T) {
	c := NewController(0.5, 4)
	if c.DragTo(10, 10) {
		t.Errorf("DragTo without BeginDrag should be ignored")
	}
	c.BeginDrag(100, 100)
	c.DragTo(110, 95)
	c.DragTo(130, 90)
	c.EndDrag()
	tr := c.Transform()
	if tr.TranslateX != 30 || tr.TranslateY != -10 {
		t.Errorf("translate = (%v, %v), want (30, -10)", tr.TranslateX, tr.TranslateY)
	}
	if c.Dragging() {
		t.Errorf("still dragging after EndDrag")
	}
}

func TestPinch(t *testing.T) {
	c := NewController(0.5, 8)
	c.BeginPinch(90, 100, 110, 100)
	// Fingers spread to twice the distance around the same midpoint.
	c.PinchTo(80, 100, 120, 100)
	c.EndPinch()
	tr := c.Transform()
	if !approx(tr.Scale, 2) {
		t.Fatalf("scale = %v, want 2", tr.Scale)
	}
	sx, sy := tr.Apply(100, 100)
	if !approx(sx, 100) || !approx(sy, 100) {
		t.Errorf("midpoint moved to (%v, %v)", sx, sy)
	}

	c.BeginPinch(0, 0, 10, 0)
	c.PinchTo(20, 5, 30, 5)
	after := c.Transform()
	if !approx(after.Scale, 2) || !approx(after.TranslateX-tr.TranslateX, 20) || !approx(after.TranslateY-tr.TranslateY, 5) {
		t.Errorf("pinch translate without spread gave %+v (before %+v)", after, tr)
	}
}

func TestVersionBumps(t *testing.T) {
	c := NewController(0.5, 4)
	v0 := c.Version()
	c.Pan(1, 0)
	v1 := c.Version()
	if v1 <= v0 {
		t.Errorf("Pan did not bump version")
	}
	c.Pan(0, 0)
	if c.Version() != v1 {
		t.Errorf("no-op pan bumped version")
	}
	c.Set(Transform{Scale: 100})
	if c.Transform().Scale != 4 {
		t.Errorf("Set did not clamp: %v", c.Transform().Scale)
	}
}
