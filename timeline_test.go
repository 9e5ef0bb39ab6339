package cadence

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/tanema/gween/ease"
)

// step runs one Update with a synthetic no-op sample queued, so the real
// mouse is never read under test.
func step(tl *Timeline) {
	tl.InjectButton(0, 0, MouseButtonLeft, false, 0)
	if err := tl.Update(); err != nil {
		panic(err)
	}
}

// newTimelineEnv builds a timeline over the shared two-staff fixture with
// one dependency, reconciled once so the first injected gesture hits a
// populated scene.
func newTimelineEnv(cb Callbacks) *Timeline {
	tl := NewTimeline(DefaultConfig(), cb)
	tl.SetProjectStart(projStart)
	tl.SetFrame(Frame{
		Tasks: map[string]Task{
			"a": dayTask("a", 0, 3, "s1", 0),
			"b": dayTask("b", 5, 2, "s1", 2),
		},
		Dependencies: map[string]Dependency{
			"d1": {ID: "d1", ProjectID: "p", SrcTaskID: "a", DstTaskID: "b"},
		},
		Staffs: testStaffs(),
	})
	step(tl)
	return tl
}

// --- Reconcile ---

func TestReconcileBuildsScene(t *testing.T) {
	tl := newTimelineEnv(Callbacks{})

	if got := tl.scene.TaskCount(); got != 2 {
		t.Errorf("TaskCount = %d, want 2", got)
	}
	if got := tl.scene.DependencyCount(); got != 1 {
		t.Errorf("DependencyCount = %d, want 1", got)
	}
	if got := tl.grid.Len(); got != 2 {
		t.Errorf("grid Len = %d, want 2", got)
	}
	// Both endpoints are on screen, so the dependency resolved its anchors.
	if got := len(tl.scene.AppendDependencies(nil)); got != 1 {
		t.Errorf("resolved dependencies = %d, want 1", got)
	}
}

func TestReconcileSweepsRemovedTasks(t *testing.T) {
	tl := newTimelineEnv(Callbacks{})

	tl.SetFrame(Frame{
		Tasks:  map[string]Task{"a": dayTask("a", 0, 3, "s1", 0)},
		Staffs: testStaffs(),
	})
	step(tl)

	if got := tl.scene.TaskCount(); got != 1 {
		t.Errorf("TaskCount after sweep = %d, want 1", got)
	}
	if got := tl.grid.Len(); got != 1 {
		t.Errorf("grid Len after sweep = %d, want 1", got)
	}
	if got := tl.scene.DependencyCount(); got != 0 {
		t.Errorf("DependencyCount after sweep = %d, want 0", got)
	}
}

func TestReconcileSkipsUnknownStaffOnce(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	defer SetLogOutput(nil)

	tl := NewTimeline(DefaultConfig(), Callbacks{})
	tl.SetProjectStart(projStart)
	tl.SetFrame(Frame{
		Tasks: map[string]Task{
			"a": dayTask("a", 0, 3, "s1", 0),
			"x": dayTask("x", 2, 2, "ghost", 0),
		},
		Staffs: testStaffs(),
	})
	step(tl)
	step(tl)

	if got := tl.scene.TaskCount(); got != 1 {
		t.Errorf("TaskCount = %d, want 1 (unknown staff skipped)", got)
	}
	if n := strings.Count(buf.String(), "unknown staff"); n != 1 {
		t.Errorf("unknown staff logged %d times, want once", n)
	}
}

// --- Inject queue ---

func TestInjectQueueOrder(t *testing.T) {
	tl := NewTimeline(DefaultConfig(), Callbacks{})

	tl.InjectPress(10, 20)
	tl.InjectMove(30, 40)
	tl.InjectRelease(50, 60)

	if len(tl.injectQueue) != 3 {
		t.Fatalf("expected 3 events, got %d", len(tl.injectQueue))
	}
	if !tl.injectQueue[0].pressed || tl.injectQueue[0].screenX != 10 {
		t.Error("first event should be press at (10,20)")
	}
	if !tl.injectQueue[1].pressed || tl.injectQueue[1].screenX != 30 {
		t.Error("second event should be move at (30,40)")
	}
	if tl.injectQueue[2].pressed || tl.injectQueue[2].screenX != 50 {
		t.Error("third event should be release at (50,60)")
	}
}

func TestInjectDragMinFrames(t *testing.T) {
	tl := NewTimeline(DefaultConfig(), Callbacks{})
	tl.InjectDrag(0, 0, 100, 100, 1) // clamps to press + release
	if len(tl.injectQueue) != 2 {
		t.Fatalf("expected 2 queued events, got %d", len(tl.injectQueue))
	}
}

func TestProcessInjectedInputEmptyQueue(t *testing.T) {
	tl := NewTimeline(DefaultConfig(), Callbacks{})
	if tl.processInjectedInput() {
		t.Error("should not consume when the queue is empty")
	}
}

// --- Gestures end to end ---

func TestInjectClickSelects(t *testing.T) {
	var sel [][]string
	tl := newTimelineEnv(Callbacks{
		Select: func(ids []string) { sel = append(sel, ids) },
	})

	// At zoom 1 task a covers x 140-316, y 47-65.
	tl.InjectClick(200, 58)
	if err := tl.Update(); err != nil {
		t.Fatal(err)
	}
	if err := tl.Update(); err != nil {
		t.Fatal(err)
	}

	if len(tl.injectQueue) != 0 {
		t.Fatalf("queue should be drained, %d left", len(tl.injectQueue))
	}
	if len(sel) != 1 || len(sel[0]) != 1 || sel[0][0] != "a" {
		t.Errorf("selections = %v, want [[a]]", sel)
	}
}

func TestInjectDragMovesTask(t *testing.T) {
	var patches []TaskPatch
	var starts, ends int
	tl := newTimelineEnv(Callbacks{
		UpdateTask:  func(projectID, taskID string, patch TaskPatch) { patches = append(patches, patch) },
		DragStarted: func() { starts++ },
		DragEnded:   func() { ends++ },
	})

	// Grab a one day in (x 200) and drop one day later (x 260).
	tl.InjectDrag(200, 58, 260, 58, 4)
	for i := 0; i < 4; i++ {
		if err := tl.Update(); err != nil {
			t.Fatal(err)
		}
	}

	if starts != 1 || ends != 1 {
		t.Fatalf("drag lifecycle: %d starts, %d ends", starts, ends)
	}
	if len(patches) != 1 {
		t.Fatalf("patches = %d, want 1", len(patches))
	}
	p := patches[0]
	if p.Start == nil || !p.Start.Equal(projStart.AddDate(0, 0, 1)) {
		t.Errorf("Start patch = %v, want day 1", p.Start)
	}
	if p.DurationDays != nil || p.StaffID != nil || p.StaffLine != nil {
		t.Errorf("unexpected extra patch fields: %+v", p)
	}
}

func TestInjectRightDragLinks(t *testing.T) {
	var created []Dependency
	tl := newTimelineEnv(Callbacks{
		CreateDependency: func(projectID string, dep Dependency) { created = append(created, dep) },
	})

	tl.InjectButton(200, 58, MouseButtonRight, true, 0)
	tl.InjectButton(470, 80, MouseButtonRight, true, 0)
	tl.InjectButton(470, 80, MouseButtonRight, false, 0)
	for i := 0; i < 3; i++ {
		if err := tl.Update(); err != nil {
			t.Fatal(err)
		}
	}

	if len(created) != 1 {
		t.Fatalf("created = %d deps, want 1", len(created))
	}
	if created[0].SrcTaskID != "a" || created[0].DstTaskID != "b" {
		t.Errorf("dep = %s -> %s, want a -> b", created[0].SrcTaskID, created[0].DstTaskID)
	}
	if created[0].Type != FinishToStart {
		t.Errorf("dep type = %v, want finish-to-start", created[0].Type)
	}
}

// --- Viewport routing ---

func TestInjectWheelZoomsAtCursor(t *testing.T) {
	tl := newTimelineEnv(Callbacks{})
	ec := DefaultConfig().Effective(1, 1)
	before := ec.DayAtX(400) // day under the cursor, viewport at origin

	tl.InjectWheel(400, 300, 1)
	if err := tl.Update(); err != nil {
		t.Fatal(err)
	}

	vp := tl.Viewport()
	if !approxEqual(vp.Zoom, 1.1, epsilon) {
		t.Errorf("Zoom = %v, want 1.1", vp.Zoom)
	}
	ecAfter := DefaultConfig().Effective(vp.Zoom, 1)
	after := vp.X + (400-ecAfter.LeftMargin)/ecAfter.DayWidth
	if !approxEqual(after, before, 1e-6) {
		t.Errorf("day under cursor shifted: %v -> %v", before, after)
	}
}

func TestInjectMiddleDragPans(t *testing.T) {
	tl := newTimelineEnv(Callbacks{})

	tl.InjectButton(400, 300, MouseButtonMiddle, true, 0)
	tl.InjectButton(340, 320, MouseButtonMiddle, true, 0)
	tl.InjectButton(340, 320, MouseButtonMiddle, false, 0)
	for i := 0; i < 3; i++ {
		if err := tl.Update(); err != nil {
			t.Fatal(err)
		}
	}

	vp := tl.Viewport()
	if !approxEqual(vp.X, 1, epsilon) {
		t.Errorf("X = %v, want 1 (60px left at 60px per day)", vp.X)
	}
	if !approxEqual(vp.Y, -20, epsilon) {
		t.Errorf("Y = %v, want -20", vp.Y)
	}
	if !approxEqual(vp.Zoom, 1, epsilon) {
		t.Errorf("Zoom = %v, want unchanged", vp.Zoom)
	}
}

func TestInjectMiddleDragWithModifierZooms(t *testing.T) {
	tl := newTimelineEnv(Callbacks{})
	ec := DefaultConfig().Effective(1, 1)
	anchor := ec.DayAtX(400)

	tl.InjectButton(400, 300, MouseButtonMiddle, true, ModCtrl)
	tl.InjectButton(500, 300, MouseButtonMiddle, true, ModCtrl)
	tl.InjectButton(500, 300, MouseButtonMiddle, false, ModCtrl)
	for i := 0; i < 3; i++ {
		if err := tl.Update(); err != nil {
			t.Fatal(err)
		}
	}

	vp := tl.Viewport()
	wantZoom := math.Pow(1.004, 100)
	if !approxEqual(vp.Zoom, wantZoom, 1e-9) {
		t.Errorf("Zoom = %v, want %v", vp.Zoom, wantZoom)
	}
	if got := tl.VerticalScale(); !approxEqual(got, 1, epsilon) {
		t.Errorf("VerticalScale = %v, want untouched", got)
	}
	ecAfter := DefaultConfig().Effective(vp.Zoom, 1)
	after := vp.X + (400-ecAfter.LeftMargin)/ecAfter.DayWidth
	if !approxEqual(after, anchor, 1e-6) {
		t.Errorf("day under origin shifted: %v -> %v", anchor, after)
	}
}

func TestScrollToDayAdvances(t *testing.T) {
	tl := newTimelineEnv(Callbacks{})

	// Before the first Draw the width is unknown, so the target day lands
	// at the left edge rather than screen center.
	tl.ScrollToDay(10, 0.5, ease.Linear)
	for i := 0; i < 31; i++ { // 31 ticks at 60 TPS > 0.5s
		step(tl)
	}

	if got := tl.Viewport().X; !approxEqual(got, 10, 1e-6) {
		t.Errorf("X = %v, want 10 after the tween finishes", got)
	}
}

// --- Host setters ---

func TestSetViewportClamps(t *testing.T) {
	tl := NewTimeline(DefaultConfig(), Callbacks{})

	tl.SetViewport(Viewport{X: 5, Y: 7, Zoom: 100})
	if got := tl.Viewport(); got.Zoom != 20 || got.X != 5 || got.Y != 7 {
		t.Errorf("Viewport = %+v, want zoom clamped to 20", got)
	}

	tl.SetVerticalScale(10)
	if got := tl.VerticalScale(); got != 3 {
		t.Errorf("VerticalScale = %v, want 3", got)
	}
	tl.SetVerticalScale(0.01)
	if got := tl.VerticalScale(); got != 0.5 {
		t.Errorf("VerticalScale = %v, want 0.5", got)
	}
}

func TestSetConfigRejectsInvalid(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	defer SetLogOutput(nil)

	tl := NewTimeline(DefaultConfig(), Callbacks{})

	bad := DefaultConfig()
	bad.DayWidth = 0
	tl.SetConfig(bad)
	if got := tl.Config().DayWidth; got != 60 {
		t.Errorf("DayWidth = %v, want the old config kept", got)
	}
	if !strings.Contains(buf.String(), "config rejected") {
		t.Error("rejection was not logged")
	}

	good := DefaultConfig()
	good.DayWidth = 80
	tl.SetConfig(good)
	if got := tl.Config().DayWidth; got != 80 {
		t.Errorf("DayWidth = %v, want 80", got)
	}
}

func TestSetProjectStartTruncates(t *testing.T) {
	tl := NewTimeline(DefaultConfig(), Callbacks{})
	tl.SetProjectStart(time.Date(2026, time.March, 2, 13, 45, 12, 0, time.UTC))
	want := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	if got := tl.ProjectStart(); !got.Equal(want) {
		t.Errorf("ProjectStart = %v, want %v", got, want)
	}
}
