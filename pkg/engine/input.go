package engine

import (
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/sudorandom/fightscope/pkg/fights"
	"github.com/sudorandom/fightscope/pkg/layout"
	"github.com/sudorandom/fightscope/pkg/scene"
)

// Input sources are variables so tests can drive the engine without a window.
var (
	cursorPosition    = ebiten.CursorPosition
	wheel             = ebiten.Wheel
	mousePressed      = ebiten.IsMouseButtonPressed
	mouseJustPressed  = inpututil.IsMouseButtonJustPressed
	mouseJustReleased = inpututil.IsMouseButtonJustReleased
	keyJustPressed    = inpututil.IsKeyJustPressed
	appendTouchIDs    = ebiten.AppendTouchIDs
	touchPosition     = ebiten.TouchPosition
	deviceScaleFactor = func() float64 { return ebiten.Monitor().DeviceScaleFactor() }
)

const (
	// clickSlop is how far the pointer may travel between press and release
	// for the gesture to count as a click.
	clickSlop = 4.0
	// orbitSpeed is radians of camera rotation per pixel dragged.
	orbitSpeed = 0.008
)

type action int

const (
	actNone action = iota
	actTogglePane
	actToggleView
	actToggleTrend
	actToggleHeatmap
	actToggleWin
	actToggleLoss
	actToggleDraw
	actToggleKO
	actToggleSUB
	actToggleDEC
	actToggleOther
	actClearSelection
	actResetView
	actCapture
)

var keyBindings = []struct {
	key ebiten.Key
	act action
}{
	{ebiten.KeyTab, actTogglePane},
	{ebiten.KeyV, actToggleView},
	{ebiten.KeyT, actToggleTrend},
	{ebiten.KeyH, actToggleHeatmap},
	{ebiten.KeyDigit1, actToggleWin},
	{ebiten.KeyDigit2, actToggleLoss},
	{ebiten.KeyDigit3, actToggleDraw},
	{ebiten.KeyK, actToggleKO},
	{ebiten.KeyS, actToggleSUB},
	{ebiten.KeyD, actToggleDEC},
	{ebiten.KeyO, actToggleOther},
	{ebiten.KeyEscape, actClearSelection},
	{ebiten.KeyR, actResetView},
	{ebiten.KeyP, actCapture},
}

type inputState struct {
	lastX, lastY   int
	pressX, pressY float64
	pressed        bool
	dragged        bool
	touches        []ebiten.TouchID
	pinching       bool
	pinchDist      float64
}

func (e *Engine) handleKeys() {
	for _, b := range keyBindings {
		if keyJustPressed(b.key) {
			e.apply(b.act)
		}
	}
}

func (e *Engine) apply(a action) {
	switch a {
	case actTogglePane:
		if e.pane == PaneScatter {
			e.pane = PaneGraph
		} else {
			e.pane = PaneScatter
		}
		e.redraw = true
		e.logger.Debug().Str("pane", e.pane.String()).Msg("Switched pane")
	case actToggleView:
		mode := e.scene.ToggleMode()
		if e.layout != nil {
			opts := layoutDimensions(mode, e.layoutOpts)
			if err := e.layout.UpdateOptions(opts); err != nil {
				e.logger.Debug().Err(err).Msg("Layout dimensions unchanged")
			} else {
				e.layoutOpts = opts
			}
		}
	case actToggleTrend:
		on := !e.plot.TrendEnabled()
		e.plot.EnableTrend(on)
		e.trendDirty = on
	case actToggleHeatmap:
		e.plot.EnableDensity(!e.plot.DensityEnabled())
	case actToggleWin, actToggleLoss, actToggleDraw:
		r := map[action]fights.Result{
			actToggleWin:  fights.ResultWin,
			actToggleLoss: fights.ResultLoss,
			actToggleDraw: fights.ResultDraw,
		}[a]
		e.plot.SetFilters(e.plot.Filters().ToggleResult(r))
		e.trendDirty = true
	case actToggleKO, actToggleSUB, actToggleDEC, actToggleOther:
		m := map[action]fights.Method{
			actToggleKO:    fights.MethodKO,
			actToggleSUB:   fights.MethodSUB,
			actToggleDEC:   fights.MethodDEC,
			actToggleOther: fights.MethodOther,
		}[a]
		e.plot.SetFilters(e.plot.Filters().ToggleMethod(m))
		e.trendDirty = true
	case actClearSelection:
		if e.pane == PaneGraph {
			e.scene.ClearSelection()
		} else {
			e.plot.ClearSelection()
		}
	case actResetView:
		if e.pane == PaneGraph {
			e.scene.SetCamera(scene.DefaultCamera())
		} else {
			e.plot.Controller().Reset()
		}
	case actCapture:
		e.captureNext = true
		e.redraw = true
	}
}

func (e *Engine) touch() {
	if e.gate != nil {
		e.gate.Touch()
	}
}

func (e *Engine) handlePointer() {
	in := &e.in

	in.touches = appendTouchIDs(in.touches[:0])
	if len(in.touches) >= 2 {
		e.handlePinch()
		return
	}
	if in.pinching {
		in.pinching = false
		e.plot.Controller().EndPinch()
	}

	x, y := cursorPosition()
	fx, fy := float64(x), float64(y)
	moved := x != in.lastX || y != in.lastY
	prevX, prevY := float64(in.lastX), float64(in.lastY)
	in.lastX, in.lastY = x, y

	if _, dy := wheel(); dy != 0 {
		e.touch()
		if e.pane == PaneGraph {
			e.scene.Zoom(math.Exp(dy * 0.1))
		} else {
			e.plot.Controller().WheelZoom(dy, fx, fy)
		}
	}

	switch {
	case mouseJustPressed(ebiten.MouseButtonLeft):
		in.pressed, in.dragged = true, false
		in.pressX, in.pressY = fx, fy
		if e.pane == PaneScatter {
			e.plot.Controller().BeginDrag(fx, fy)
		}
	case in.pressed && mouseJustReleased(ebiten.MouseButtonLeft):
		in.pressed = false
		if e.pane == PaneScatter {
			e.plot.Controller().EndDrag()
		}
		if !in.dragged {
			if e.pane == PaneGraph {
				e.scene.Click(fx, fy)
			} else {
				e.plot.Click(fx, fy)
			}
		}
	case in.pressed && mousePressed(ebiten.MouseButtonLeft) && moved:
		if math.Hypot(fx-in.pressX, fy-in.pressY) > clickSlop {
			in.dragged = true
		}
		if !in.dragged {
			break
		}
		e.touch()
		if e.pane == PaneGraph {
			e.scene.Orbit((fx-prevX)*orbitSpeed, (fy-prevY)*orbitSpeed)
		} else {
			e.plot.Controller().DragTo(fx, fy)
		}
	}

	if moved && !in.dragged {
		if e.pane == PaneGraph {
			e.scene.PointerMove(fx, fy)
		} else {
			e.plot.PointerMove(fx, fy)
		}
	}
}

func (e *Engine) handlePinch() {
	in := &e.in
	x0, y0 := touchPosition(in.touches[0])
	x1, y1 := touchPosition(in.touches[1])
	fx0, fy0, fx1, fy1 := float64(x0), float64(y0), float64(x1), float64(y1)
	dist := math.Hypot(fx1-fx0, fy1-fy0)
	e.touch()

	if !in.pinching {
		in.pinching = true
		in.pinchDist = dist
		if e.pane == PaneScatter {
			e.plot.Controller().BeginPinch(fx0, fy0, fx1, fy1)
		}
		return
	}
	if e.pane == PaneGraph {
		if in.pinchDist > 0 && dist > 0 {
			e.scene.Zoom(dist / in.pinchDist)
		}
	} else {
		e.plot.Controller().PinchTo(fx0, fy0, fx1, fy1)
	}
	in.pinchDist = dist
}

// layoutDimensions reports the dimension count a view mode asks of the
// simulation.
func layoutDimensions(m scene.ViewMode, opts layout.Options) layout.Options {
	opts.Dimensions = 3
	if m == scene.Mode2D {
		opts.Dimensions = 2
	}
	return opts
}
