package cadence

import (
	"math"
	"sort"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
)

// LayerID identifies one of the fixed draw passes, back to front.
type LayerID uint8

const (
	LayerBackground   LayerID = iota // flat fill
	LayerGrid                        // tier tick lines and measure markers
	LayerStaffs                      // staff lines and heads
	LayerDependencies                // arrows
	LayerTasks                       // task pills
	LayerOverlay                     // ghosts, rubber bands, debug text
)

// SceneContext is the read-only frame context handed to observers.
type SceneContext struct {
	Zoom          float64
	VerticalScale float64
	Config        EffectiveConfig
	ProjectStart  time.Time
}

// SceneObserver receives scene lifecycle hooks. Implementations usually
// embed BaseObserver and override what they need. Observer calls are fault
// isolated: a panic is logged and the frame continues.
type SceneObserver interface {
	// LayersReady fires once, after the draw layers exist.
	LayersReady(ctx SceneContext)
	// TaskUpserted fires after a task visual was created or refreshed.
	TaskUpserted(ctx SceneContext, task Task, vis *TaskVisual)
}

// BaseObserver is a no-op SceneObserver for embedding.
type BaseObserver struct{}

func (BaseObserver) LayersReady(SceneContext)                     {}
func (BaseObserver) TaskUpserted(SceneContext, Task, *TaskVisual) {}

// taskKey is the dirty-check key. An upsert whose key matches the last
// drawn one skips the redraw entirely; this is the frame-budget control
// for scenes with hundreds of tasks.
type taskKey struct {
	x, y, w, h float64
	title      string
	status     TaskStatus
	selected   bool
	zoom       float64
}

// TaskVisual is the retained per-task scene object. Geometry lives in
// content space. The offscreen image is rasterized lazily by the renderer
// when needsRaster is set; Generation counts redraws and is the explicit
// per-visual version field the dirty check compares against.
type TaskVisual struct {
	ID       string
	Task     Task
	Layout   TaskLayout
	Selected bool
	// Circular marks the degenerate glyph: width collapsed under height.
	// Rendering only; the hit Bounds keep the nominal width.
	Circular bool
	// Anchors are the dependency connection points, recomputed after
	// every upsert in the same content space the arrow renderer uses.
	LeftAnchor  Vec2
	RightAnchor Vec2

	Generation uint64

	key         taskKey
	needsRaster bool
	img         *ebiten.Image
	disposed    bool
}

// Bounds returns the visual's hit rectangle in content space.
func (v *TaskVisual) Bounds() Rect {
	return v.Layout.Bounds()
}

// DependencyVisual is the retained record for one arrow. Its endpoints are
// pure copies of the two task anchors; the renderer never reaches back
// into task layout.
type DependencyVisual struct {
	ID   string
	Dep  Dependency
	From Vec2
	To   Vec2
	// Resolved is false while either endpoint task has no visual (missing
	// staff, not yet seen); unresolved arrows are skipped at draw time.
	Resolved bool
}

// SceneManager owns the id → retained visual maps and the dirty checking
// that decides whether a visual needs redrawing. It never touches the GPU;
// rasterization happens in the renderer when it sees needsRaster.
type SceneManager struct {
	tasks map[string]*TaskVisual
	deps  map[string]*DependencyVisual

	observers   []SceneObserver
	layers      []LayerID
	layersReady bool

	// releaseImage returns a disposed visual's texture to the image pool.
	// Nil in headless use (tests); disposal then just drops the image.
	releaseImage func(*ebiten.Image)

	// Redraws counts task rasterization marks since construction.
	Redraws uint64
}

// NewSceneManager creates an empty scene with the fixed layer stack.
func NewSceneManager(observers ...SceneObserver) *SceneManager {
	return &SceneManager{
		tasks: make(map[string]*TaskVisual),
		deps:  make(map[string]*DependencyVisual),
		layers: []LayerID{
			LayerBackground, LayerGrid, LayerStaffs,
			LayerDependencies, LayerTasks, LayerOverlay,
		},
		observers: observers,
	}
}

// AddObserver appends an observer. Order is notification order.
func (m *SceneManager) AddObserver(ob SceneObserver) {
	if ob == nil {
		return
	}
	m.observers = append(m.observers, ob)
}

// Layers returns the draw passes back to front.
func (m *SceneManager) Layers() []LayerID {
	return m.layers
}

// EnsureLayers notifies observers the first time a frame context exists.
func (m *SceneManager) EnsureLayers(ctx SceneContext) {
	if m.layersReady {
		return
	}
	m.layersReady = true
	for _, ob := range m.observers {
		m.notify(func() { ob.LayersReady(ctx) })
	}
}

// notify runs one observer call with panic isolation, so a faulty overlay
// can never abort the frame or starve later observers.
func (m *SceneManager) notify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logf("scene observer panic: %v", r)
		}
	}()
	fn()
}

// roundedZoom buckets the zoom factor for the dirty key, so float jitter
// from anchor algebra does not force spurious redraws.
func roundedZoom(zoom float64) float64 {
	return math.Round(zoom*100) / 100
}

// UpsertTask creates or refreshes the retained visual for a task. Returns
// the visual and whether it was created. When the dirty key is unchanged
// the call is a no-op apart from the lookup.
func (m *SceneManager) UpsertTask(ctx SceneContext, task Task, layout TaskLayout, selected bool) (*TaskVisual, bool) {
	key := taskKey{
		x:        layout.StartX,
		y:        layout.TopY,
		w:        layout.Width,
		h:        layout.Height,
		title:    task.Title,
		status:   task.Status,
		selected: selected,
		zoom:     roundedZoom(ctx.Zoom),
	}

	vis, ok := m.tasks[task.ID]
	if ok && vis.key == key {
		return vis, false
	}

	created := !ok
	if created {
		vis = &TaskVisual{ID: task.ID}
		m.tasks[task.ID] = vis
	}

	vis.Task = task
	vis.Layout = layout
	vis.Selected = selected
	vis.Circular = layout.Width < layout.Height
	vis.key = key
	vis.Generation++
	vis.needsRaster = true
	vis.LeftAnchor = Vec2{X: layout.StartX, Y: layout.CenterY}
	vis.RightAnchor = Vec2{X: layout.StartX + layout.Width, Y: layout.CenterY}
	m.Redraws++

	for _, ob := range m.observers {
		m.notify(func() { ob.TaskUpserted(ctx, task, vis) })
	}
	return vis, created
}

// Task returns the retained visual for an id.
func (m *SceneManager) Task(id string) (*TaskVisual, bool) {
	vis, ok := m.tasks[id]
	return vis, ok
}

// Anchors returns a task's connection points. ok is false when the task
// has no visual this frame.
func (m *SceneManager) Anchors(id string) (left, right Vec2, ok bool) {
	vis, found := m.tasks[id]
	if !found {
		return Vec2{}, Vec2{}, false
	}
	return vis.LeftAnchor, vis.RightAnchor, true
}

// UpsertDependency creates or refreshes the retained arrow record from the
// two anchor points. Unresolved arrows (a missing endpoint) are retained
// but skipped by the renderer.
func (m *SceneManager) UpsertDependency(dep Dependency, from, to Vec2, resolved bool) (*DependencyVisual, bool) {
	vis, ok := m.deps[dep.ID]
	if !ok {
		vis = &DependencyVisual{ID: dep.ID}
		m.deps[dep.ID] = vis
	}
	vis.Dep = dep
	vis.From = from
	vis.To = to
	vis.Resolved = resolved
	return vis, !ok
}

// RemoveMissingTasks destroys every retained task visual whose id is absent
// from valid. Safe to call repeatedly; disposal is idempotent.
func (m *SceneManager) RemoveMissingTasks(valid map[string]Task) {
	for id, vis := range m.tasks {
		if _, ok := valid[id]; ok {
			continue
		}
		m.disposeTask(vis)
		delete(m.tasks, id)
	}
}

// RemoveMissingDependencies is the arrow counterpart of RemoveMissingTasks.
func (m *SceneManager) RemoveMissingDependencies(valid map[string]Dependency) {
	for id := range m.deps {
		if _, ok := valid[id]; ok {
			continue
		}
		delete(m.deps, id)
	}
}

func (m *SceneManager) disposeTask(vis *TaskVisual) {
	if vis.disposed {
		return
	}
	vis.disposed = true
	if vis.img != nil {
		if m.releaseImage != nil {
			m.releaseImage(vis.img)
		}
		vis.img = nil
	}
}

// TaskCount reports the number of retained task visuals.
func (m *SceneManager) TaskCount() int {
	return len(m.tasks)
}

// DependencyCount reports the number of retained arrow records.
func (m *SceneManager) DependencyCount() int {
	return len(m.deps)
}

// AppendTasks appends every retained task visual to buf in paint order:
// top to bottom, then left to right, id as the final tie-break so the
// order is stable across frames.
func (m *SceneManager) AppendTasks(buf []*TaskVisual) []*TaskVisual {
	for _, vis := range m.tasks {
		buf = append(buf, vis)
	}
	sort.Slice(buf, func(i, j int) bool {
		a, b := buf[i], buf[j]
		if a.Layout.TopY != b.Layout.TopY {
			return a.Layout.TopY < b.Layout.TopY
		}
		if a.Layout.StartX != b.Layout.StartX {
			return a.Layout.StartX < b.Layout.StartX
		}
		return a.ID < b.ID
	})
	return buf
}

// AppendDependencies appends every resolved arrow record to buf, ordered
// by id for stable paint order.
func (m *SceneManager) AppendDependencies(buf []*DependencyVisual) []*DependencyVisual {
	for _, vis := range m.deps {
		if vis.Resolved {
			buf = append(buf, vis)
		}
	}
	sort.Slice(buf, func(i, j int) bool { return buf[i].ID < buf[j].ID })
	return buf
}
