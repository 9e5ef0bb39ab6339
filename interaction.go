package cadence

import (
	"math"
	"time"
)

// --- Ghost preview ---

// GhostKind identifies which drag preview is active.
type GhostKind uint8

const (
	GhostNone   GhostKind = iota // no gesture preview
	GhostMove                    // translucent pill at the drop position
	GhostResize                  // translucent pill with the stretched width
	GhostLink                    // rubber-band arrow toward the pointer or target
)

// Ghost is the drag preview in content space. Rect, From, and To are what
// the renderer consumes; Day, StaffID, Line, and DurationDays expose the
// values the gesture would commit.
type Ghost struct {
	Kind         GhostKind
	Rect         Rect
	Day          float64
	StaffID      string
	Line         int
	DurationDays int
	From, To     Vec2
	TargetID     string
}

// --- Gesture states ---

// gestureState is a tagged union over the pointer gesture states. A nil
// state is idle; each variant carries only the fields that state needs, so
// stale cross-state combinations cannot be represented.
type gestureState interface{ isGesture() }

// pendingDrag: primary button down on a task body, movement still below the
// drag threshold. A pointerup from here is a plain selection click.
type pendingDrag struct {
	taskID         string
	startX, startY float64
	grabOffsetDays float64
	minStartDay    float64
}

// pendingClear: primary button down on a spot where the broad phase found
// candidates but none contained the point. Whether to clear the selection
// is decided at pointerup against the retained visuals.
type pendingClear struct{}

// moveDrag: task follows the pointer; day, staffID, and line hold the
// snapped, clamped drop position the ghost shows and pointerup commits.
type moveDrag struct {
	taskID         string
	grabOffsetDays float64
	minStartDay    float64
	day            float64
	staffID        string
	line           int
}

// resizeDrag: the task's right edge follows the pointer; days is the
// snapped ghost span.
type resizeDrag struct {
	taskID   string
	startDay float64
	days     float64
}

// linkDraw: secondary-button arrow from a source task toward the pointer.
type linkDraw struct {
	srcID    string
	toX, toY float64
	targetID string
}

func (pendingDrag) isGesture()  {}
func (pendingClear) isGesture() {}
func (*moveDrag) isGesture()    {}
func (*resizeDrag) isGesture()  {}
func (*linkDraw) isGesture()    {}

// --- Controller ---

// InteractionController is the pointer gesture state machine: it turns a
// pointerdown/move/up stream in content coordinates into selection changes,
// task mutations, and dependency creations, reported through the Callbacks.
// Hit-testing runs broad phase against the SpatialGrid and narrow phase
// against the SceneManager's retained visuals.
type InteractionController struct {
	cfg   *TimelineConfig
	cb    *Callbacks
	scene *SceneManager
	grid  *SpatialGrid

	ec           EffectiveConfig
	frame        *Frame
	projectStart time.Time

	state  gestureState
	hitBuf []*TaskVisual
}

// NewInteractionController creates a controller over the given scene and
// spatial index. cb may be nil.
func NewInteractionController(cfg *TimelineConfig, cb *Callbacks, scene *SceneManager, grid *SpatialGrid) *InteractionController {
	return &InteractionController{cfg: cfg, cb: cb, scene: scene, grid: grid}
}

// SetContext supplies the per-frame data snapping and hit-testing read.
// Call once per frame before routing pointer events.
func (ic *InteractionController) SetContext(ec EffectiveConfig, frame *Frame, projectStart time.Time) {
	ic.ec = ec
	ic.frame = frame
	ic.projectStart = projectStart
}

// Active reports whether any gesture owns the pointer, including the
// pre-threshold and deferred-clear states.
func (ic *InteractionController) Active() bool {
	return ic.state != nil
}

// Dragging reports whether a committing gesture (move, resize, or link
// draw) is in progress.
func (ic *InteractionController) Dragging() bool {
	switch ic.state.(type) {
	case *moveDrag, *resizeDrag, *linkDraw:
		return true
	}
	return false
}

// PointerDown starts a gesture at the content position (x, y). A press
// while another gesture is still active tears the old one down first.
func (ic *InteractionController) PointerDown(x, y float64, button MouseButton, mods KeyModifiers) {
	if ic.state != nil {
		ic.abandon()
	}
	if button == MouseButtonMiddle {
		return
	}

	vis := ic.hitTask(x, y)
	if vis == nil {
		if len(ic.grid.CellCandidates(x, y)) > 0 {
			ic.state = pendingClear{}
			return
		}
		if len(ic.frame.Selection) > 0 {
			ic.cb.emitSelect(nil)
		}
		return
	}

	if button == MouseButtonRight {
		ic.state = &linkDraw{srcID: vis.ID, toX: x, toY: y}
		ic.cb.emitDragStarted()
		return
	}

	if x >= vis.Layout.StartX+vis.Layout.Width-ic.ec.HandleWidth {
		task, ok := ic.frame.Tasks[vis.ID]
		if !ok {
			return
		}
		ic.state = &resizeDrag{
			taskID:   vis.ID,
			startDay: vis.Layout.DayIndex,
			days:     float64(task.DurationDays),
		}
		ic.cb.emitDragStarted()
		return
	}

	ic.state = &pendingDrag{
		taskID:         vis.ID,
		startX:         x,
		startY:         y,
		grabOffsetDays: ic.ec.DayAtX(x) - vis.Layout.DayIndex,
		minStartDay:    ic.minStartDay(vis.ID),
	}
}

// PointerMove advances the active gesture to (x, y).
func (ic *InteractionController) PointerMove(x, y float64, mods KeyModifiers) {
	switch st := ic.state.(type) {
	case pendingDrag:
		dx := x - st.startX
		dy := y - st.startY
		if math.Sqrt(dx*dx+dy*dy) <= ic.cfg.DragThreshold {
			return
		}
		m := &moveDrag{
			taskID:         st.taskID,
			grabOffsetDays: st.grabOffsetDays,
			minStartDay:    st.minStartDay,
		}
		if vis, ok := ic.scene.Task(st.taskID); ok {
			m.day = vis.Layout.DayIndex
		}
		if task, ok := ic.frame.Tasks[st.taskID]; ok {
			m.staffID = task.StaffID
			m.line = task.StaffLine
		}
		ic.state = m
		ic.cb.emitDragStarted()
		ic.updateMove(m, x, y)

	case *moveDrag:
		ic.updateMove(st, x, y)

	case *resizeDrag:
		snap := SnapToTime(x, ic.ec, ic.projectStart)
		days := snap.Day - st.startDay
		if span := ic.minTickSpan(st.startDay); days < span {
			days = span
		}
		st.days = days

	case *linkDraw:
		st.toX, st.toY = x, y
		st.targetID = ""
		if target := ic.hitTask(x, y); target != nil && target.ID != st.srcID {
			st.targetID = target.ID
		}
	}
}

// updateMove recomputes the snapped, predecessor-clamped drop position.
func (ic *InteractionController) updateMove(m *moveDrag, x, y float64) {
	rawDay := ic.ec.DayAtX(x) - m.grabOffsetDays
	day := SnapToTime(ic.ec.XForDay(rawDay), ic.ec, ic.projectStart).Day
	if day < m.minStartDay {
		day = m.minStartDay
	}
	m.day = day

	if staffID, line, ok := StaffLineAtY(ic.ec, ic.frame.Staffs, y); ok {
		m.staffID = staffID
		m.line = line
	}
}

// PointerUp finishes the active gesture at (x, y), committing its mutation.
// The coordinates only matter for the click and deferred-clear paths; the
// dragging states commit the position their ghost last showed, so an up
// synthesized after the pointer left the window still resolves cleanly.
func (ic *InteractionController) PointerUp(x, y float64, mods KeyModifiers) {
	switch st := ic.state.(type) {
	case pendingClear:
		if ic.hitRetained(x, y) == nil && len(ic.frame.Selection) > 0 {
			ic.cb.emitSelect(nil)
		}

	case pendingDrag:
		ic.cb.emitSelect(ic.clickSelection(st.taskID, mods))

	case *moveDrag:
		ic.commitMove(st)
		ic.cb.emitDragEnded()

	case *resizeDrag:
		ic.commitResize(st)
		ic.cb.emitDragEnded()

	case *linkDraw:
		ic.commitLink(st)
		ic.cb.emitDragEnded()
	}
	ic.state = nil
}

// abandon drops the active gesture without committing anything. Used when
// a fresh pointerdown arrives while a gesture is still live, which means
// the matching pointerup was lost.
func (ic *InteractionController) abandon() {
	if ic.Dragging() {
		ic.cb.emitDragEnded()
	}
	ic.state = nil
}

// clickSelection returns the next selection for a plain click on taskID:
// replace by default, toggle membership with shift or ctrl held.
func (ic *InteractionController) clickSelection(taskID string, mods KeyModifiers) []string {
	if mods&(ModShift|ModCtrl) == 0 {
		return []string{taskID}
	}
	sel := ic.frame.Selection
	next := make([]string, 0, len(sel)+1)
	found := false
	for _, id := range sel {
		if id == taskID {
			found = true
			continue
		}
		next = append(next, id)
	}
	if !found {
		next = append(next, taskID)
	}
	return next
}

func (ic *InteractionController) commitMove(m *moveDrag) {
	task, ok := ic.frame.Tasks[m.taskID]
	if !ok {
		return
	}
	newDay := RoundDay(m.day)
	if float64(newDay) < m.minStartDay {
		newDay = int(math.Ceil(m.minStartDay - 1e-9))
	}

	var patch TaskPatch
	changed := false
	if newDay != RoundDay(DayIndex(ic.projectStart, task.Start)) {
		start := TimeForDay(ic.projectStart, float64(newDay))
		patch.Start = &start
		changed = true
	}
	if m.staffID != "" && m.staffID != task.StaffID {
		staffID := m.staffID
		patch.StaffID = &staffID
		changed = true
	}
	if m.line != task.StaffLine {
		line := m.line
		patch.StaffLine = &line
		changed = true
	}
	if changed {
		ic.cb.emitUpdateTask(task.ProjectID, task.ID, patch)
	}
}

func (ic *InteractionController) commitResize(r *resizeDrag) {
	task, ok := ic.frame.Tasks[r.taskID]
	if !ok {
		return
	}
	newDur := RoundDay(r.days)
	if newDur < 1 {
		newDur = 1
	}
	if newDur == task.DurationDays {
		return
	}
	patch := TaskPatch{DurationDays: &newDur}
	ic.cb.emitUpdateTask(task.ProjectID, task.ID, patch)
}

// commitLink creates the dependency a completed link draw describes. The
// edge is oriented from the earlier-starting task to the later-starting
// one regardless of draw direction; on equal starts the gesture source
// stays the source. Type defaults to finish-to-start.
func (ic *InteractionController) commitLink(l *linkDraw) {
	if l.targetID == "" {
		return
	}
	src, okS := ic.frame.Tasks[l.srcID]
	dst, okD := ic.frame.Tasks[l.targetID]
	if !okS || !okD {
		return
	}
	if dst.Start.Before(src.Start) {
		src, dst = dst, src
	}
	ic.cb.emitCreateDependency(src.ProjectID, Dependency{
		ProjectID: src.ProjectID,
		SrcTaskID: src.ID,
		DstTaskID: dst.ID,
		Type:      FinishToStart,
	})
}

// minStartDay returns the earliest day taskID may start: the latest finish
// among its finish-to-start predecessors, or -Inf when it has none.
func (ic *InteractionController) minStartDay(taskID string) float64 {
	lo := math.Inf(-1)
	for _, dep := range ic.frame.Dependencies {
		if dep.DstTaskID != taskID || dep.Type != FinishToStart {
			continue
		}
		pred, ok := ic.frame.Tasks[dep.SrcTaskID]
		if !ok {
			continue
		}
		end := DayIndex(ic.projectStart, pred.Start) + float64(pred.DurationDays)
		if end > lo {
			lo = end
		}
	}
	return lo
}

// minTickSpan returns the smallest resize span in days for the current
// tier: one hour, one day, one week, or one calendar month from the
// task's start.
func (ic *InteractionController) minTickSpan(startDay float64) float64 {
	switch TimeScaleForZoom(ic.ec.Zoom) {
	case ScaleHour:
		return 1.0 / 24
	case ScaleDay:
		return 1
	case ScaleWeek:
		return 7
	default:
		start := TimeForDay(ic.projectStart, startDay)
		return DayIndex(ic.projectStart, start.AddDate(0, 1, 0)) - startDay
	}
}

// --- Hit testing ---

// hitTask returns the topmost retained visual containing (x, y), or nil.
// The grid narrows the candidate set; the retained bounds decide. Hit
// areas keep the full nominal width even for circle-degenerate tasks.
func (ic *InteractionController) hitTask(x, y float64) *TaskVisual {
	var best *TaskVisual
	for _, id := range ic.grid.PointQuery(x, y) {
		vis, ok := ic.scene.Task(id)
		if !ok || !vis.Bounds().Contains(x, y) {
			continue
		}
		if best == nil || paintsAfter(vis, best) {
			best = vis
		}
	}
	return best
}

// hitRetained resolves a point against every retained visual, bypassing
// the grid. Used to settle deferred background clears, where the index
// rebuilt since the press cannot be trusted.
func (ic *InteractionController) hitRetained(x, y float64) *TaskVisual {
	ic.hitBuf = ic.scene.AppendTasks(ic.hitBuf[:0])
	for i := len(ic.hitBuf) - 1; i >= 0; i-- {
		if ic.hitBuf[i].Bounds().Contains(x, y) {
			return ic.hitBuf[i]
		}
	}
	return nil
}

// paintsAfter reports whether a is drawn after b, i.e. on top of it.
func paintsAfter(a, b *TaskVisual) bool {
	if a.Layout.TopY != b.Layout.TopY {
		return a.Layout.TopY > b.Layout.TopY
	}
	if a.Layout.StartX != b.Layout.StartX {
		return a.Layout.StartX > b.Layout.StartX
	}
	return a.ID > b.ID
}

// --- Ghost ---

// CurrentGhost derives the drag preview for the active gesture. Pure over
// the gesture state and scene; returns Kind GhostNone when nothing should
// be drawn.
func (ic *InteractionController) CurrentGhost() Ghost {
	switch st := ic.state.(type) {
	case *moveDrag:
		task, ok := ic.frame.Tasks[st.taskID]
		if !ok {
			return Ghost{}
		}
		tops := StaffOffsets(ic.ec, ic.frame.Staffs)
		top, ok := tops[st.staffID]
		if !ok {
			return Ghost{}
		}
		centerY := top + float64(st.line)*(ic.ec.LineSpacing/2)
		w := float64(task.DurationDays)*ic.ec.DayWidth - ic.ec.TaskInset
		if w < ic.ec.MinTaskWidth {
			w = ic.ec.MinTaskWidth
		}
		return Ghost{
			Kind: GhostMove,
			Rect: Rect{
				X:      ic.ec.XForDay(st.day),
				Y:      centerY - ic.ec.TaskHeight/2,
				Width:  w,
				Height: ic.ec.TaskHeight,
			},
			Day:          st.day,
			StaffID:      st.staffID,
			Line:         st.line,
			DurationDays: task.DurationDays,
		}

	case *resizeDrag:
		vis, ok := ic.scene.Task(st.taskID)
		if !ok {
			return Ghost{}
		}
		w := st.days*ic.ec.DayWidth - ic.ec.TaskInset
		if w < ic.ec.MinTaskWidth {
			w = ic.ec.MinTaskWidth
		}
		dur := RoundDay(st.days)
		if dur < 1 {
			dur = 1
		}
		return Ghost{
			Kind: GhostResize,
			Rect: Rect{
				X:      vis.Layout.StartX,
				Y:      vis.Layout.TopY,
				Width:  w,
				Height: vis.Layout.Height,
			},
			Day:          st.startDay,
			StaffID:      vis.Task.StaffID,
			Line:         vis.Task.StaffLine,
			DurationDays: dur,
		}

	case *linkDraw:
		_, right, ok := ic.scene.Anchors(st.srcID)
		if !ok {
			return Ghost{}
		}
		to := Vec2{X: st.toX, Y: st.toY}
		if st.targetID != "" {
			if left, _, ok := ic.scene.Anchors(st.targetID); ok {
				to = left
			}
		}
		return Ghost{
			Kind:     GhostLink,
			From:     right,
			To:       to,
			TargetID: st.targetID,
		}
	}
	return Ghost{}
}
