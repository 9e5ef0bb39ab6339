package cadence

import (
	"math"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// scrollAnim holds active scroll-to tweens for viewport X and Y.
type scrollAnim struct {
	tweenX *gween.Tween
	tweenY *gween.Tween
	doneX  bool
	doneY  bool
}

// ViewportController turns wheel and middle-button gestures into viewport
// updates. It never stores the viewport itself: every method takes the
// current viewport, returns the next one, and reports changes through the
// Callbacks. Only transient gesture state (drag origin, scale anchors) and
// the scroll tween live here.
type ViewportController struct {
	cfg *TimelineConfig
	cb  *Callbacks

	dragging  bool
	scaleMode bool

	originX, originY float64
	lastX, lastY     float64

	startZoom   float64
	startVScale float64
	startY      float64
	anchorDay   float64

	scrollTween *scrollAnim
}

// NewViewportController creates a controller bound to the given config and
// callback sink. cb may be nil.
func NewViewportController(cfg *TimelineConfig, cb *Callbacks) *ViewportController {
	return &ViewportController{cfg: cfg, cb: cb}
}

// Dragging reports whether a middle-button gesture is in progress.
func (vc *ViewportController) Dragging() bool {
	return vc.dragging
}

func (vc *ViewportController) clampZoom(z float64) float64 {
	return math.Max(vc.cfg.MinZoom, math.Min(z, vc.cfg.MaxZoom))
}

func (vc *ViewportController) clampVScale(s float64) float64 {
	return math.Max(vc.cfg.MinVerticalScale, math.Min(s, vc.cfg.MaxVerticalScale))
}

// ClampViewport clamps the zoom component into the configured range.
func (vc *ViewportController) ClampViewport(vp Viewport) Viewport {
	vp.Zoom = vc.clampZoom(vp.Zoom)
	return vp
}

// ClampVerticalScale clamps a vertical scale factor into the configured range.
func (vc *ViewportController) ClampVerticalScale(s float64) float64 {
	return vc.clampVScale(s)
}

// Wheel applies one wheel step anchored at the cursor: the day under the
// cursor before the zoom change stays under the cursor after it. The new
// zoom is clamped before the anchor correction is solved, so zooming
// against a limit never shifts the view.
func (vc *ViewportController) Wheel(vp Viewport, vscale, cursorX, cursorY, wheelY float64) (Viewport, bool) {
	if wheelY == 0 {
		return vp, false
	}
	newZoom := vc.clampZoom(vp.Zoom * math.Pow(vc.cfg.WheelZoomStep, wheelY))
	if newZoom == vp.Zoom {
		return vp, false
	}
	vc.scrollTween = nil

	ecOld := vc.cfg.Effective(vp.Zoom, vscale)
	day := vp.X + (cursorX-ecOld.LeftMargin)/ecOld.DayWidth

	ecNew := vc.cfg.Effective(newZoom, vscale)
	vp.X = day - (cursorX-ecNew.LeftMargin)/ecNew.DayWidth
	vp.Zoom = newZoom

	vc.cb.emitViewport(vp)
	return vp, true
}

// BeginDrag starts a middle-button gesture at (x, y). With scaleMode false
// the gesture pans; with scaleMode true it rescales both axes around the
// origin point.
func (vc *ViewportController) BeginDrag(vp Viewport, vscale, x, y float64, scaleMode bool) {
	vc.scrollTween = nil
	vc.dragging = true
	vc.scaleMode = scaleMode
	vc.originX, vc.originY = x, y
	vc.lastX, vc.lastY = x, y
	vc.startZoom = vp.Zoom
	vc.startVScale = vscale
	vc.startY = vp.Y

	ec := vc.cfg.Effective(vp.Zoom, vscale)
	vc.anchorDay = vp.X + (x-ec.LeftMargin)/ec.DayWidth
}

// Drag advances an active middle-button gesture to (x, y) and returns the
// updated viewport and vertical scale.
//
// Panning converts the pixel delta to days with the effective day width so
// the content tracks the cursor exactly. Scale-dragging accumulates from
// the gesture origin: horizontal travel drives zoom, vertical travel drives
// vertical scale, and each axis is re-anchored at the origin so the point
// grabbed stays put while the timeline stretches around it.
func (vc *ViewportController) Drag(vp Viewport, vscale, x, y float64) (Viewport, float64, bool) {
	if !vc.dragging {
		return vp, vscale, false
	}

	if !vc.scaleMode {
		dx := x - vc.lastX
		dy := y - vc.lastY
		vc.lastX, vc.lastY = x, y
		if dx == 0 && dy == 0 {
			return vp, vscale, false
		}
		ec := vc.cfg.Effective(vp.Zoom, vscale)
		vp.X -= dx / ec.DayWidth
		vp.Y -= dy
		vc.cb.emitViewport(vp)
		return vp, vscale, true
	}

	dx := x - vc.originX
	dy := y - vc.originY
	vc.lastX, vc.lastY = x, y

	newZoom := vc.clampZoom(vc.startZoom * math.Pow(vc.cfg.ScaleDragStep, dx))
	newVScale := vc.clampVScale(vc.startVScale * math.Pow(vc.cfg.ScaleDragStep, -dy))
	if newZoom == vp.Zoom && newVScale == vscale {
		return vp, vscale, false
	}

	ecNew := vc.cfg.Effective(newZoom, newVScale)
	vp.X = vc.anchorDay - (vc.originX-ecNew.LeftMargin)/ecNew.DayWidth
	vp.Y = (vc.startY+vc.originY)*(newVScale/vc.startVScale) - vc.originY
	vp.Zoom = newZoom

	changedScale := newVScale != vscale
	vc.cb.emitViewport(vp)
	if changedScale {
		vc.cb.emitVerticalScale(newVScale)
	}
	return vp, newVScale, true
}

// EndDrag finishes the active middle-button gesture, if any.
func (vc *ViewportController) EndDrag() {
	vc.dragging = false
	vc.scaleMode = false
}

// ScrollTo animates the viewport origin to the given day and vertical
// offset over duration seconds.
func (vc *ViewportController) ScrollTo(vp Viewport, day, y float64, duration float32, easeFn ease.TweenFunc) {
	vc.scrollTween = &scrollAnim{
		tweenX: gween.New(float32(vp.X), float32(day), duration, easeFn),
		tweenY: gween.New(float32(vp.Y), float32(y), duration, easeFn),
	}
}

// Update advances an active scroll animation. It returns the tweened
// viewport and whether it changed this step.
func (vc *ViewportController) Update(dt float32, vp Viewport) (Viewport, bool) {
	if vc.scrollTween == nil {
		return vp, false
	}
	st := vc.scrollTween
	if !st.doneX {
		val, done := st.tweenX.Update(dt)
		vp.X = float64(val)
		st.doneX = done
	}
	if !st.doneY {
		val, done := st.tweenY.Update(dt)
		vp.Y = float64(val)
		st.doneY = done
	}
	if st.doneX && st.doneY {
		vc.scrollTween = nil
	}
	vc.cb.emitViewport(vp)
	return vp, true
}
