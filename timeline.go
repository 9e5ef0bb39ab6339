package cadence

import (
	"sort"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/tanema/gween/ease"
)

// Timeline is the engine facade. It owns the retained scene, the spatial
// index, the gesture controllers, and the renderer, and exposes the
// host-facing surface: feed it frames with SetFrame, drive it from an
// ebiten game loop via Update and Draw, and receive mutations through the
// Callbacks.
//
// All methods must be called from the game loop goroutine. The maps inside
// a Frame are read until the next SetFrame call and must not be mutated
// concurrently.
type Timeline struct {
	cfg TimelineConfig
	cb  Callbacks

	frame        Frame
	projectStart time.Time
	vp           Viewport
	vscale       float64

	scene *SceneManager
	grid  *SpatialGrid
	vpc   *ViewportController
	ic    *InteractionController
	rend  renderer

	staffTops     map[string]float64
	missingStaffs map[string]bool
	taskIDs       []string
	depIDs        []string
	visBuf        []*TaskVisual
	ticks         []Tick

	pointerDown   bool
	pointerButton MouseButton
	lastX, lastY  float64

	injectQueue []syntheticPointerEvent

	screenshotQueue []string
	screenshotDir   string

	width, height int

	debug          bool
	debugImg       *ebiten.Image
	debugAccum     float64
	debugText      string
	lastUpdateTime time.Duration
}

// NewTimeline creates a timeline with the given config and callbacks.
// The viewport starts at the project origin with zoom 1.
func NewTimeline(cfg TimelineConfig, cb Callbacks) *Timeline {
	t := &Timeline{
		cfg:           cfg,
		cb:            cb,
		projectStart:  startOfDay(time.Now()),
		vp:            Viewport{Zoom: 1},
		vscale:        1,
		scene:         NewSceneManager(),
		grid:          NewSpatialGrid(cfg.GridCellSize),
		missingStaffs: make(map[string]bool),
	}
	t.scene.releaseImage = t.rend.pool.Release
	t.vpc = NewViewportController(&t.cfg, &t.cb)
	t.ic = NewInteractionController(&t.cfg, &t.cb, t.scene, t.grid)
	return t
}

// Scene exposes the retained scene manager, mainly so hosts can register
// scene observers for decorative overlays.
func (t *Timeline) Scene() *SceneManager {
	return t.scene
}

// SetProjectStart fixes day zero of the timeline. Defaults to today.
func (t *Timeline) SetProjectStart(start time.Time) {
	t.projectStart = startOfDay(start)
}

// ProjectStart returns day zero of the timeline.
func (t *Timeline) ProjectStart() time.Time {
	return t.projectStart
}

// SetFrame replaces the rendered snapshot: tasks, dependencies, staffs,
// and selection. Call whenever the document changes; the next Update
// reconciles the retained scene against it.
func (t *Timeline) SetFrame(frame Frame) {
	t.frame = frame
}

// SetViewport replaces the viewport, clamping zoom to the configured range.
func (t *Timeline) SetViewport(vp Viewport) {
	t.vp = t.vpc.ClampViewport(vp)
}

// Viewport returns the current viewport.
func (t *Timeline) Viewport() Viewport {
	return t.vp
}

// SetVerticalScale replaces the vertical scale factor, clamped to the
// configured range.
func (t *Timeline) SetVerticalScale(s float64) {
	t.vscale = t.vpc.ClampVerticalScale(s)
}

// VerticalScale returns the current vertical scale factor.
func (t *Timeline) VerticalScale() float64 {
	return t.vscale
}

// Config returns the active configuration.
func (t *Timeline) Config() TimelineConfig {
	return t.cfg
}

// SetConfig swaps the configuration, for live theme or geometry reloads.
// Invalid configs are rejected and logged.
func (t *Timeline) SetConfig(cfg TimelineConfig) {
	if err := cfg.Validate(); err != nil {
		logf("config rejected: %v", err)
		return
	}
	t.cfg = cfg
}

// SetDebug toggles the diagnostic overlay and per-frame log.
func (t *Timeline) SetDebug(on bool) {
	t.debug = on
}

// ScrollToDay animates the viewport until the given day index sits at the
// center of the content area.
func (t *Timeline) ScrollToDay(day float64, duration float32, easeFn ease.TweenFunc) {
	ec := t.cfg.Effective(t.vp.Zoom, t.vscale)
	target := day
	if t.width > 0 {
		target = day - (float64(t.width)-ec.LeftMargin)/(2*ec.DayWidth)
	}
	t.vpc.ScrollTo(t.vp, target, t.vp.Y, duration, easeFn)
}

// ScrollToTask animates the viewport until the given task is centered both
// horizontally and vertically. Unknown ids are ignored.
func (t *Timeline) ScrollToTask(id string, duration float32, easeFn ease.TweenFunc) {
	task, ok := t.frame.Tasks[id]
	if !ok {
		return
	}
	ec := t.cfg.Effective(t.vp.Zoom, t.vscale)
	day := DayIndex(t.projectStart, task.Start)

	targetX := day
	if t.width > 0 {
		targetX = day - (float64(t.width)-ec.LeftMargin)/(2*ec.DayWidth)
	}

	targetY := t.vp.Y
	if top, ok := StaffOffsets(ec, t.frame.Staffs)[task.StaffID]; ok && t.height > 0 {
		centerY := top + float64(task.StaffLine)*(ec.LineSpacing/2)
		targetY = centerY - float64(t.height)/2
	}
	t.vpc.ScrollTo(t.vp, targetX, targetY, duration, easeFn)
}

// Update runs one engine tick: it consumes injected or real input, advances
// scroll animations, and reconciles the retained scene with the current
// frame. Implements ebiten.Game.
func (t *Timeline) Update() error {
	tps := ebiten.TPS()
	if tps <= 0 {
		tps = 60
	}
	dt := float32(1.0 / float64(tps))

	t.syncContext()
	if !t.processInjectedInput() {
		t.sampleInput()
	}

	if vp, changed := t.vpc.Update(dt, t.vp); changed {
		t.vp = vp
	}

	start := time.Now()
	t.reconcile()
	t.lastUpdateTime = time.Since(start)
	return nil
}

// syncContext refreshes the interaction controller's view of the frame.
func (t *Timeline) syncContext() {
	ec := t.cfg.Effective(t.vp.Zoom, t.vscale)
	t.ic.SetContext(ec, &t.frame, t.projectStart)
}

// sampleInput reads the real mouse state and routes it. Mirrors a single
// pointer: the button is latched at press time and kept for the whole
// interaction.
func (t *Timeline) sampleInput() {
	mx, my := ebiten.CursorPosition()
	x, y := float64(mx), float64(my)

	if _, wy := ebiten.Wheel(); wy != 0 {
		t.handleWheel(x, y, wy)
	}

	var pressed bool
	var button MouseButton
	left := ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft)
	right := ebiten.IsMouseButtonPressed(ebiten.MouseButtonRight)
	middle := ebiten.IsMouseButtonPressed(ebiten.MouseButtonMiddle)
	if left || right || middle {
		pressed = true
		if left {
			button = MouseButtonLeft
		} else if right {
			button = MouseButtonRight
		} else {
			button = MouseButtonMiddle
		}
	}

	// A release observed while the cursor is outside the window still must
	// end the gesture; resolve it at the last in-bounds position.
	if !pressed && t.pointerDown && t.outOfBounds(x, y) {
		x, y = t.lastX, t.lastY
	}

	t.routePointer(x, y, pressed, button, readModifiers())
}

func (t *Timeline) outOfBounds(x, y float64) bool {
	return x < 0 || y < 0 ||
		(t.width > 0 && x > float64(t.width)) ||
		(t.height > 0 && y > float64(t.height))
}

// readModifiers reads the current keyboard modifier state.
func readModifiers() KeyModifiers {
	var mods KeyModifiers
	if ebiten.IsKeyPressed(ebiten.KeyShift) || ebiten.IsKeyPressed(ebiten.KeyShiftLeft) || ebiten.IsKeyPressed(ebiten.KeyShiftRight) {
		mods |= ModShift
	}
	if ebiten.IsKeyPressed(ebiten.KeyControl) || ebiten.IsKeyPressed(ebiten.KeyControlLeft) || ebiten.IsKeyPressed(ebiten.KeyControlRight) {
		mods |= ModCtrl
	}
	if ebiten.IsKeyPressed(ebiten.KeyAlt) || ebiten.IsKeyPressed(ebiten.KeyAltLeft) || ebiten.IsKeyPressed(ebiten.KeyAltRight) {
		mods |= ModAlt
	}
	if ebiten.IsKeyPressed(ebiten.KeyMeta) || ebiten.IsKeyPressed(ebiten.KeyMetaLeft) || ebiten.IsKeyPressed(ebiten.KeyMetaRight) {
		mods |= ModMeta
	}
	return mods
}

// handleWheel applies an anchored zoom step at the cursor.
func (t *Timeline) handleWheel(x, y, wheelY float64) {
	if vp, changed := t.vpc.Wheel(t.vp, t.vscale, x, y, wheelY); changed {
		t.vp = vp
	}
}

// routePointer runs the single-pointer state machine over a screen-space
// sample: middle-button gestures go to the viewport controller, everything
// else to the interaction controller in content space.
func (t *Timeline) routePointer(x, y float64, pressed bool, button MouseButton, mods KeyModifiers) {
	cx, cy := t.contentFromScreen(x, y)

	switch {
	case pressed && !t.pointerDown:
		t.pointerDown = true
		t.pointerButton = button
		if button == MouseButtonMiddle {
			scaleMode := mods&(ModCtrl|ModShift) != 0
			t.vpc.BeginDrag(t.vp, t.vscale, x, y, scaleMode)
		} else {
			t.ic.PointerDown(cx, cy, button, mods)
		}

	case !pressed && t.pointerDown:
		if t.pointerButton == MouseButtonMiddle {
			t.vpc.EndDrag()
		} else {
			t.ic.PointerUp(cx, cy, mods)
		}
		t.pointerDown = false

	case pressed && t.pointerDown:
		if t.pointerButton == MouseButtonMiddle {
			vp, vs, changed := t.vpc.Drag(t.vp, t.vscale, x, y)
			if changed {
				t.vp = vp
				t.vscale = vs
			}
		} else if x != t.lastX || y != t.lastY {
			t.ic.PointerMove(cx, cy, mods)
		}
	}

	if !t.pointerDown || !t.outOfBounds(x, y) {
		t.lastX, t.lastY = x, y
	}
}

// contentFromScreen converts a screen position to content space under the
// current viewport.
func (t *Timeline) contentFromScreen(x, y float64) (float64, float64) {
	ec := t.cfg.Effective(t.vp.Zoom, t.vscale)
	offX, offY := viewOffset(ec, t.vp)
	return x + offX, y + offY
}

// reconcile runs the per-tick layout pass: recompute task geometry, upsert
// retained visuals, sweep ids that disappeared, refresh dependency anchors,
// and rebuild the spatial index. Iteration is id-sorted so observer
// notifications arrive in a stable order.
func (t *Timeline) reconcile() {
	ec := t.cfg.Effective(t.vp.Zoom, t.vscale)
	t.staffTops = StaffOffsets(ec, t.frame.Staffs)

	ctx := SceneContext{
		Zoom:          t.vp.Zoom,
		VerticalScale: t.vscale,
		Config:        ec,
		ProjectStart:  t.projectStart,
	}
	t.scene.EnsureLayers(ctx)

	selected := make(map[string]bool, len(t.frame.Selection))
	for _, id := range t.frame.Selection {
		selected[id] = true
	}

	t.taskIDs = t.taskIDs[:0]
	for id := range t.frame.Tasks {
		t.taskIDs = append(t.taskIDs, id)
	}
	sort.Strings(t.taskIDs)

	for _, id := range t.taskIDs {
		task := t.frame.Tasks[id]
		top, ok := t.staffTops[task.StaffID]
		if !ok {
			if !t.missingStaffs[task.StaffID] {
				t.missingStaffs[task.StaffID] = true
				logf("task %s references unknown staff %s; skipping", task.ID, task.StaffID)
			}
			continue
		}
		delete(t.missingStaffs, task.StaffID)
		layout := taskLayoutAt(ec, task, t.projectStart, top)
		t.scene.UpsertTask(ctx, task, layout, selected[id])
	}
	t.scene.RemoveMissingTasks(t.frame.Tasks)

	t.grid.Clear()
	t.visBuf = t.scene.AppendTasks(t.visBuf[:0])
	for _, vis := range t.visBuf {
		t.grid.Insert(vis.ID, vis.Bounds())
	}

	t.depIDs = t.depIDs[:0]
	for id := range t.frame.Dependencies {
		t.depIDs = append(t.depIDs, id)
	}
	sort.Strings(t.depIDs)

	for _, id := range t.depIDs {
		dep := t.frame.Dependencies[id]
		_, srcRight, okSrc := t.scene.Anchors(dep.SrcTaskID)
		dstLeft, _, okDst := t.scene.Anchors(dep.DstTaskID)
		t.scene.UpsertDependency(dep, srcRight, dstLeft, okSrc && okDst)
	}
	t.scene.RemoveMissingDependencies(t.frame.Dependencies)
}

// Draw renders the current frame. Implements ebiten.Game.
func (t *Timeline) Draw(screen *ebiten.Image) {
	start := time.Now()
	b := screen.Bounds()
	t.width, t.height = b.Dx(), b.Dy()

	ec := t.cfg.Effective(t.vp.Zoom, t.vscale)
	tops := t.staffTops
	if tops == nil {
		tops = StaffOffsets(ec, t.frame.Staffs)
	}

	screen.Fill(t.cfg.Background.toRGBA())
	t.ticks = t.rend.drawGrid(screen, &t.cfg, ec, t.vp, t.projectStart)
	t.rend.drawStaffs(screen, &t.cfg, ec, t.vp, t.frame.Staffs, tops)
	t.rend.drawDependencies(screen, t.scene, &t.cfg, ec, t.vp)
	t.rend.drawTasks(screen, t.scene, &t.cfg, ec, t.vp)
	t.rend.drawGhost(screen, t.scene, &t.cfg, ec, t.vp, t.ic.CurrentGhost())
	t.rend.drawChrome(screen, &t.cfg, ec, t.vp, t.frame.Staffs, tops, t.ticks)

	if t.debug {
		t.drawDebugOverlay(screen)
		t.debugLog(debugStats{
			updateTime: t.lastUpdateTime,
			drawTime:   time.Since(start),
			tasks:      t.scene.TaskCount(),
			deps:       t.scene.DependencyCount(),
			gridLen:    t.grid.Len(),
			redraws:    t.scene.Redraws,
		})
	}

	t.flushScreenshots(screen)
}

// Layout implements ebiten.Game.
func (t *Timeline) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}
