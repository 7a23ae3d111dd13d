// Package transform holds the zoom/pan state shared by the scatter plot and
// its hit-testing.
package transform

import (
	"math"
	"sync"
)

// Transform maps base coordinates to screen coordinates:
// screen = base*Scale + Translate.
type Transform struct {
	Scale      float64
	TranslateX float64
	TranslateY float64
}

func Identity() Transform {
	return Transform{Scale: 1}
}

func (t Transform) ApplyX(x float64) float64 { return x*t.Scale + t.TranslateX }
func (t Transform) ApplyY(y float64) float64 { return y*t.Scale + t.TranslateY }

func (t Transform) InvertX(x float64) float64 { return (x - t.TranslateX) / t.Scale }
func (t Transform) InvertY(y float64) float64 { return (y - t.TranslateY) / t.Scale }

func (t Transform) Apply(x, y float64) (float64, float64) {
	return t.ApplyX(x), t.ApplyY(y)
}

func (t Transform) Invert(x, y float64) (float64, float64) {
	return t.InvertX(x), t.InvertY(y)
}

// WheelSensitivity converts wheel delta units into a zoom exponent.
const WheelSensitivity = 0.1

// Controller owns the current Transform. Every change bumps Version so
// consumers can tell when screen-space caches are stale.
type Controller struct {
	mu      sync.Mutex
	t       Transform
	min     float64
	max     float64
	version uint64

	dragging     bool
	lastX, lastY float64
	pinching     bool
	pinchDist    float64
	pinchMidX    float64
	pinchMidY    float64
}

// NewController clamps scale to [min, max].
func NewController(min, max float64) *Controller {
	if min <= 0 {
		min = 0.1
	}
	if max < min {
		max = min
	}
	return &Controller{t: Identity(), min: min, max: max}
}

func (c *Controller) Transform() Transform {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Controller) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

func (c *Controller) Bounds() (float64, float64) {
	return c.min, c.max
}

func (c *Controller) clamp(s float64) float64 {
	return math.Min(math.Max(s, c.min), c.max)
}

func (c *Controller) setLocked(t Transform) bool {
	t.Scale = c.clamp(t.Scale)
	if t == c.t {
		return false
	}
	c.t = t
	c.version++
	return true
}

// Set replaces the transform, clamping its scale.
func (c *Controller) Set(t Transform) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(t)
}

// Reset returns to the identity transform.
func (c *Controller) Reset() bool {
	return c.Set(Identity())
}

// ZoomAt multiplies the scale by factor while keeping the screen point
// (ax, ay) over the same base point.
func (c *Controller) ZoomAt(factor, ax, ay float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zoomAtLocked(factor, ax, ay)
}

func (c *Controller) zoomAtLocked(factor, ax, ay float64) bool {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return false
	}
	cur := c.t
	bx, by := cur.Invert(ax, ay)
	scale := c.clamp(cur.Scale * factor)
	return c.setLocked(Transform{
		Scale:      scale,
		TranslateX: ax - bx*scale,
		TranslateY: ay - by*scale,
	})
}

// WheelZoom zooms in for positive deltaY (wheel up).
func (c *Controller) WheelZoom(deltaY, x, y float64) bool {
	return c.ZoomAt(math.Exp(deltaY*WheelSensitivity), x, y)
}

// Pan shifts the view by a screen-space delta.
func (c *Controller) Pan(dx, dy float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.panLocked(dx, dy)
}

func (c *Controller) panLocked(dx, dy float64) bool {
	t := c.t
	t.TranslateX += dx
	t.TranslateY += dy
	return c.setLocked(t)
}

func (c *Controller) BeginDrag(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dragging = true
	c.lastX, c.lastY = x, y
}

func (c *Controller) DragTo(x, y float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dragging {
		return false
	}
	dx, dy := x-c.lastX, y-c.lastY
	c.lastX, c.lastY = x, y
	return c.panLocked(dx, dy)
}

func (c *Controller) EndDrag() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dragging = false
}

func (c *Controller) Dragging() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dragging
}

// BeginPinch starts a two-finger gesture from the given touch points.
func (c *Controller) BeginPinch(x0, y0, x1, y1 float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinching = true
	c.dragging = false
	c.pinchDist = math.Hypot(x1-x0, y1-y0)
	c.pinchMidX, c.pinchMidY = (x0+x1)/2, (y0+y1)/2
}

// PinchTo scales by the change in finger distance around the previous
// midpoint, then pans by the midpoint's movement.
func (c *Controller) PinchTo(x0, y0, x1, y1 float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pinching {
		return false
	}
	dist := math.Hypot(x1-x0, y1-y0)
	midX, midY := (x0+x1)/2, (y0+y1)/2
	changed := false
	if c.pinchDist > 0 && dist > 0 {
		changed = c.zoomAtLocked(dist/c.pinchDist, c.pinchMidX, c.pinchMidY)
	}
	if c.panLocked(midX-c.pinchMidX, midY-c.pinchMidY) {
		changed = true
	}
	c.pinchDist = dist
	c.pinchMidX, c.pinchMidY = midX, midY
	return changed
}

func (c *Controller) EndPinch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinching = false
}
