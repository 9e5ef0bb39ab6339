package cadence

import (
	"math"
	"sort"
	"time"
)

// Layout works in content space: x = LeftMargin + day*DayWidth, y measured
// from the top of the world. The viewport pan is a pure translation applied
// at draw and hit-test time, so content coordinates are stable across pans.

// Vertical metric floors. Scaling never shrinks a metric below these, so
// shapes stay visible at the minimum vertical scale.
const (
	minDayWidthPx     = 3
	minTopMarginPx    = 20
	minStaffSpacingPx = 12
	minLineSpacingPx  = 8
	minTaskHeightPx   = 8
)

// EffectiveConfig is a TimelineConfig with zoom applied to the horizontal
// metrics and verticalScale to the vertical ones, each metric floored so
// nothing collapses to zero. Recomputed per frame; never stored.
type EffectiveConfig struct {
	Zoom          float64
	VerticalScale float64

	LeftMargin   float64
	DayWidth     float64
	TopMargin    float64
	StaffSpacing float64
	LineSpacing  float64
	TaskHeight   float64
	TaskInset    float64
	MinTaskWidth float64
	HandleWidth  float64
}

// Effective applies zoom and verticalScale to the base metrics.
func (c TimelineConfig) Effective(zoom, verticalScale float64) EffectiveConfig {
	return EffectiveConfig{
		Zoom:          zoom,
		VerticalScale: verticalScale,
		LeftMargin:    c.LeftMargin,
		DayWidth:      math.Max(minDayWidthPx, c.DayWidth*zoom),
		TopMargin:     math.Max(minTopMarginPx, c.TopMargin*verticalScale),
		StaffSpacing:  math.Max(minStaffSpacingPx, c.StaffSpacing*verticalScale),
		LineSpacing:   math.Max(minLineSpacingPx, c.LineSpacing*verticalScale),
		TaskHeight:    math.Max(minTaskHeightPx, c.TaskHeight*verticalScale),
		TaskInset:     c.TaskInset,
		MinTaskWidth:  c.MinTaskWidth,
		HandleWidth:   c.HandleWidth,
	}
}

// XForDay converts a fractional day index to a content x coordinate.
func (ec EffectiveConfig) XForDay(day float64) float64 {
	return ec.LeftMargin + day*ec.DayWidth
}

// DayAtX converts a content x coordinate to a fractional day index.
func (ec EffectiveConfig) DayAtX(x float64) float64 {
	return (x - ec.LeftMargin) / ec.DayWidth
}

// DayIndex returns the fractional day offset of t from projectStart.
// Negative for times before the project start.
func DayIndex(projectStart, t time.Time) float64 {
	return t.Sub(projectStart).Hours() / 24
}

// RoundDay rounds a fractional day index to the nearest whole day.
func RoundDay(day float64) int {
	return int(math.Round(day))
}

// TimeForDay converts a fractional day index back to a time. Whole days
// go through integer duration math so midnights stay exact far from the
// project start.
func TimeForDay(projectStart time.Time, day float64) time.Time {
	whole := math.Trunc(day)
	frac := day - whole
	offset := time.Duration(whole)*24*time.Hour + time.Duration(frac*24*float64(time.Hour))
	return projectStart.Add(offset)
}

// TimeScaleForZoom maps a zoom factor to the discrete tick tier used for
// grid granularity, label density, and snapping.
func TimeScaleForZoom(zoom float64) TimeScale {
	switch {
	case zoom >= 2:
		return ScaleHour
	case zoom >= 0.75:
		return ScaleDay
	case zoom >= 0.35:
		return ScaleWeek
	default:
		return ScaleMonth
	}
}

// Snap is the result of snapping a content x coordinate to the current
// tick tier: the snapped coordinate and its fractional day equivalent.
type Snap struct {
	X   float64
	Day float64
}

// SnapToTime rounds a content x coordinate to the nearest tick of the tier
// selected by the current zoom. Hour and day tiers round arithmetically;
// week snaps to the nearest Monday; month snaps to real calendar month
// boundaries, not fixed 30-day blocks.
func SnapToTime(x float64, ec EffectiveConfig, projectStart time.Time) Snap {
	day := ec.DayAtX(x)
	var snapped float64
	switch TimeScaleForZoom(ec.Zoom) {
	case ScaleHour:
		snapped = math.Round(day*24) / 24
	case ScaleDay:
		snapped = math.Round(day)
	case ScaleWeek:
		snapped = snapToNearest(day, projectStart, startOfWeek, func(t time.Time) time.Time {
			return t.AddDate(0, 0, 7)
		})
	default:
		snapped = snapToNearest(day, projectStart, startOfMonth, func(t time.Time) time.Time {
			return t.AddDate(0, 1, 0)
		})
	}
	return Snap{X: ec.XForDay(snapped), Day: snapped}
}

// snapToNearest picks the closer of the period boundary at-or-before t and
// the one after it, returned as a day index.
func snapToNearest(day float64, projectStart time.Time, floor func(time.Time) time.Time, next func(time.Time) time.Time) float64 {
	t := TimeForDay(projectStart, day)
	lo := floor(t)
	hi := next(lo)
	if t.Sub(lo) <= hi.Sub(t) {
		return DayIndex(projectStart, lo)
	}
	return DayIndex(projectStart, hi)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfWeek returns the Monday midnight at or before t.
func startOfWeek(t time.Time) time.Time {
	d := startOfDay(t)
	back := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -back)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// TaskLayout is the derived geometry of one task in content space.
// Recomputed every frame; never stored authoritatively.
type TaskLayout struct {
	StartX   float64
	TopY     float64
	CenterY  float64
	Width    float64
	Height   float64
	Radius   float64
	DayIndex float64
}

// Bounds returns the task's axis-aligned hit rectangle. The rectangle keeps
// the full nominal width even when rendering degenerates to a circle.
func (l TaskLayout) Bounds() Rect {
	return Rect{X: l.StartX, Y: l.TopY, Width: l.Width, Height: l.Height}
}

// StaffOffsets returns the content y of each staff's top line, keyed by
// staff id, with staffs stacked in Position order (ties keep slice order).
func StaffOffsets(ec EffectiveConfig, staffs []Staff) map[string]float64 {
	ordered := orderedStaffs(staffs)
	tops := make(map[string]float64, len(ordered))
	y := ec.TopMargin
	for _, st := range ordered {
		tops[st.ID] = y
		y += staffBodyHeight(ec, st) + ec.StaffSpacing
	}
	return tops
}

// StaffsHeight returns the total content height spanned by the staffs,
// including the top margin and trailing spacing.
func StaffsHeight(ec EffectiveConfig, staffs []Staff) float64 {
	y := ec.TopMargin
	for _, st := range staffs {
		y += staffBodyHeight(ec, st) + ec.StaffSpacing
	}
	return y
}

func staffBodyHeight(ec EffectiveConfig, st Staff) float64 {
	lines := st.Lines
	if lines < 1 {
		lines = 1
	}
	return float64(lines-1) * ec.LineSpacing
}

func orderedStaffs(staffs []Staff) []Staff {
	ordered := make([]Staff, len(staffs))
	copy(ordered, staffs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})
	return ordered
}

// ComputeTaskLayout derives a task's content-space geometry. Returns
// ok=false when the task's staff is not in the slice; the caller decides
// whether to skip or log.
func ComputeTaskLayout(ec EffectiveConfig, task Task, projectStart time.Time, staffs []Staff) (TaskLayout, bool) {
	top, ok := StaffOffsets(ec, staffs)[task.StaffID]
	if !ok {
		return TaskLayout{}, false
	}
	return taskLayoutAt(ec, task, projectStart, top), true
}

// taskLayoutAt is ComputeTaskLayout with the staff top already resolved, so
// per-frame passes can share one StaffOffsets call.
func taskLayoutAt(ec EffectiveConfig, task Task, projectStart time.Time, staffTop float64) TaskLayout {
	day := DayIndex(projectStart, task.Start)
	width := float64(task.DurationDays)*ec.DayWidth - ec.TaskInset
	if width < ec.MinTaskWidth {
		width = ec.MinTaskWidth
	}
	centerY := staffTop + float64(task.StaffLine)*(ec.LineSpacing/2)
	h := ec.TaskHeight
	return TaskLayout{
		StartX:   ec.XForDay(day),
		TopY:     centerY - h/2,
		CenterY:  centerY,
		Width:    width,
		Height:   h,
		Radius:   h / 2,
		DayIndex: day,
	}
}

// StaffLineAtY finds the staff and half-line slot nearest to a content y.
// The line index is clamped to the staff's valid range, so dragging above
// or below a staff lands on its outermost line. Returns ok=false only when
// no staffs exist.
func StaffLineAtY(ec EffectiveConfig, staffs []Staff, y float64) (staffID string, line int, ok bool) {
	tops := StaffOffsets(ec, staffs)
	bestDist := math.MaxFloat64
	for _, st := range orderedStaffs(staffs) {
		top := tops[st.ID]
		lines := st.Lines
		if lines < 1 {
			lines = 1
		}
		maxSlot := (lines - 1) * 2
		slot := int(math.Round((y - top) / (ec.LineSpacing / 2)))
		if slot < 0 {
			slot = 0
		}
		if slot > maxSlot {
			slot = maxSlot
		}
		slotY := top + float64(slot)*(ec.LineSpacing/2)
		if d := math.Abs(y - slotY); d < bestDist {
			bestDist = d
			staffID = st.ID
			line = slot
			ok = true
		}
	}
	return staffID, line, ok
}

// Tick is one grid line of the current tier within a day range. Major ticks
// mark the next tier up (day boundaries in the hour tier, week starts in
// the day tier, month starts in the week tier, year starts in the month
// tier) and carry the measure label.
type Tick struct {
	Day   float64
	Major bool
	Label string
}

// TicksInRange enumerates tier ticks covering [fromDay, toDay]. Pure; the
// caller passes the visible range only.
func TicksInRange(ec EffectiveConfig, projectStart time.Time, fromDay, toDay float64) []Tick {
	if toDay < fromDay {
		return nil
	}
	var ticks []Tick
	switch TimeScaleForZoom(ec.Zoom) {
	case ScaleHour:
		// Step in whole hours so labels never land a rounding error shy
		// of the boundary.
		for h := int(math.Floor(fromDay * 24)); ; h++ {
			d := float64(h) / 24
			if d > toDay {
				break
			}
			t := projectStart.Add(time.Duration(h) * time.Hour)
			major := t.Hour() == 0
			label := t.Format("15:04")
			if major {
				label = t.Format("Jan 2")
			}
			ticks = append(ticks, Tick{Day: d, Major: major, Label: label})
		}
	case ScaleDay:
		for d := math.Floor(fromDay); d <= toDay; d++ {
			t := TimeForDay(projectStart, d)
			ticks = append(ticks, Tick{
				Day:   d,
				Major: t.Weekday() == time.Monday,
				Label: t.Format("Jan 2"),
			})
		}
	case ScaleWeek:
		for t := startOfWeek(TimeForDay(projectStart, fromDay)); ; t = t.AddDate(0, 0, 7) {
			d := DayIndex(projectStart, t)
			if d > toDay {
				break
			}
			ticks = append(ticks, Tick{
				Day:   d,
				Major: t.Day() <= 7,
				Label: t.Format("Jan 2"),
			})
		}
	default:
		for t := startOfMonth(TimeForDay(projectStart, fromDay)); ; t = t.AddDate(0, 1, 0) {
			d := DayIndex(projectStart, t)
			if d > toDay {
				break
			}
			ticks = append(ticks, Tick{
				Day:   d,
				Major: t.Month() == time.January,
				Label: t.Format("Jan 2006"),
			})
		}
	}
	return ticks
}
