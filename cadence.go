package cadence

import (
	"time"

	"github.com/hajimehoshi/ebiten/v2"
)

// Color represents an RGBA color with components in [0, 1]. Not premultiplied.
// Premultiplication occurs at render submission time.
type Color struct {
	R, G, B, A float64
}

// ColorWhite is the default tint (no color modification).
var ColorWhite = Color{1, 1, 1, 1}

// Vec2 is a 2D vector used for positions, offsets, sizes, and directions
// throughout the API.
type Vec2 struct {
	X, Y float64
}

// WhitePixel is a 1x1 white image used for solid-color fills and stroked
// geometry drawn through DrawTriangles.
var WhitePixel *ebiten.Image

func init() {
	WhitePixel = ebiten.NewImage(1, 1)
	WhitePixel.Fill(ColorWhite.toRGBA())
}

// Rect is an axis-aligned rectangle. The coordinate system has its origin at
// the top-left, with Y increasing downward.
type Rect struct {
	X, Y, Width, Height float64
}

// Contains reports whether the point (x, y) lies inside the rectangle.
// Points on the edge are considered inside.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.Width &&
		y >= r.Y && y <= r.Y+r.Height
}

// Intersects reports whether r and other overlap.
// Adjacent rectangles (sharing only an edge) are considered intersecting.
func (r Rect) Intersects(other Rect) bool {
	return r.X <= other.X+other.Width &&
		r.X+r.Width >= other.X &&
		r.Y <= other.Y+other.Height &&
		r.Y+r.Height >= other.Y
}

// TaskStatus describes where a task sits in its lifecycle. The status only
// affects which palette entry the renderer picks; scheduling ignores it.
type TaskStatus uint8

const (
	StatusNotStarted TaskStatus = iota // default for newly created tasks
	StatusInProgress                   // work has begun
	StatusCompleted                    // finished
	StatusBlocked                      // waiting on something external
	StatusCancelled                    // abandoned, kept for the record
)

// String returns the lowercase hyphenated name used in theme files and logs.
func (s TaskStatus) String() string {
	switch s {
	case StatusNotStarted:
		return "not-started"
	case StatusInProgress:
		return "in-progress"
	case StatusCompleted:
		return "completed"
	case StatusBlocked:
		return "blocked"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// AllStatuses lists every TaskStatus in declaration order. Handy for
// palette validation and tests.
var AllStatuses = []TaskStatus{
	StatusNotStarted, StatusInProgress, StatusCompleted,
	StatusBlocked, StatusCancelled,
}

// DependencyType is the ordering constraint a dependency edge imposes
// between its source and destination tasks.
type DependencyType uint8

const (
	FinishToStart  DependencyType = iota // dst may not start before src finishes (default)
	StartToStart                         // dst may not start before src starts
	FinishToFinish                       // dst may not finish before src finishes
	StartToFinish                        // dst may not finish before src starts
)

func (d DependencyType) String() string {
	switch d {
	case FinishToStart:
		return "finish-to-start"
	case StartToStart:
		return "start-to-start"
	case FinishToFinish:
		return "finish-to-finish"
	case StartToFinish:
		return "start-to-finish"
	default:
		return "unknown"
	}
}

// TimeScale is the discrete tick tier chosen from the current zoom level.
// It drives grid granularity, label density, and snapping.
type TimeScale uint8

const (
	ScaleHour  TimeScale = iota // zoom >= 2
	ScaleDay                    // zoom >= 0.75
	ScaleWeek                   // zoom >= 0.35
	ScaleMonth                  // everything below
)

func (t TimeScale) String() string {
	switch t {
	case ScaleHour:
		return "hour"
	case ScaleDay:
		return "day"
	case ScaleWeek:
		return "week"
	case ScaleMonth:
		return "month"
	default:
		return "unknown"
	}
}

// MouseButton identifies a mouse button.
type MouseButton uint8

const (
	MouseButtonLeft   MouseButton = iota // primary (left) mouse button
	MouseButtonRight                     // secondary (right) mouse button
	MouseButtonMiddle                    // middle mouse button (scroll wheel click)
)

// KeyModifiers is a bitmask of keyboard modifier keys.
// Values can be combined with bitwise OR (e.g. ModShift | ModCtrl).
type KeyModifiers uint8

const (
	ModShift KeyModifiers = 1 << iota // Shift key
	ModCtrl                           // Control key
	ModAlt                            // Alt / Option key
	ModMeta                           // Meta / Command / Windows key
)

// Task is an atomic schedulable unit: a "note" placed on a staff line with a
// start date, a whole-day duration, and a status. Tasks are created and
// mutated only through the document layer; the engine treats them as values.
type Task struct {
	ID           string
	ProjectID    string
	Title        string
	Description  string
	Assignee     string
	Start        time.Time
	DurationDays int
	Status       TaskStatus
	StaffID      string
	// StaffLine addresses a half-line slot: even values sit on a drawn
	// line, odd values in the space between. 0 is the staff's top line.
	StaffLine int
	// ColorHex overrides the status palette when non-empty ("#rrggbb").
	ColorHex  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// End returns the exclusive end date: Start plus the whole-day duration.
func (t Task) End() time.Time {
	return t.Start.AddDate(0, 0, t.DurationDays)
}

// TaskPatch is a partial task update. Nil fields leave the corresponding
// task field untouched.
type TaskPatch struct {
	Title        *string
	Description  *string
	Assignee     *string
	Start        *time.Time
	DurationDays *int
	Status       *TaskStatus
	StaffID      *string
	StaffLine    *int
	ColorHex     *string
}

// Dependency is a directed, typed ordering edge between two tasks. The edge
// set over any project must stay acyclic; the document layer enforces that.
type Dependency struct {
	ID        string
	ProjectID string
	SrcTaskID string
	DstTaskID string
	Type      DependencyType
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Staff is a named horizontal lane group. Tasks sit on its lines and
// half-line spaces; staffs stack vertically in Position order.
type Staff struct {
	ID    string
	Name  string
	Lines int
	// Position orders staffs top to bottom. Ties break by slice order.
	Position int
	// TimeSignature is a decorative "N/D" glyph drawn at the staff head.
	TimeSignature string
	ColorHex      string
}

// Viewport is the host-owned projection state: X is the world offset in
// days, Y the vertical offset in pixels, Zoom the horizontal scale factor.
type Viewport struct {
	X    float64
	Y    float64
	Zoom float64
}

// Frame is the complete per-frame input snapshot. The engine never mutates
// it and never retains references across frames.
type Frame struct {
	Tasks        map[string]Task
	Dependencies map[string]Dependency
	Staffs       []Staff
	Selection    []string
}

// Callbacks is the outbound event surface. Every field is optional; nil
// callbacks are skipped. The engine holds no authoritative state: selection,
// viewport, and document mutations all round-trip through these.
type Callbacks struct {
	Select               func(ids []string)
	ViewportChanged      func(vp Viewport)
	VerticalScaleChanged func(scale float64)
	DragStarted          func()
	DragEnded            func()
	UpdateTask           func(projectID, taskID string, patch TaskPatch)
	CreateDependency     func(projectID string, dep Dependency)
}

func (c *Callbacks) emitSelect(ids []string) {
	if c != nil && c.Select != nil {
		c.Select(ids)
	}
}

func (c *Callbacks) emitViewport(vp Viewport) {
	if c != nil && c.ViewportChanged != nil {
		c.ViewportChanged(vp)
	}
}

func (c *Callbacks) emitVerticalScale(scale float64) {
	if c != nil && c.VerticalScaleChanged != nil {
		c.VerticalScaleChanged(scale)
	}
}

func (c *Callbacks) emitDragStarted() {
	if c != nil && c.DragStarted != nil {
		c.DragStarted()
	}
}

func (c *Callbacks) emitDragEnded() {
	if c != nil && c.DragEnded != nil {
		c.DragEnded()
	}
}

func (c *Callbacks) emitUpdateTask(projectID, taskID string, patch TaskPatch) {
	if c != nil && c.UpdateTask != nil {
		c.UpdateTask(projectID, taskID, patch)
	}
}

func (c *Callbacks) emitCreateDependency(projectID string, dep Dependency) {
	if c != nil && c.CreateDependency != nil {
		c.CreateDependency(projectID, dep)
	}
}
