package cadence

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"
)

// TimelineConfig enumerates every visual and geometric constant the engine
// consumes. All values are base (zoom = 1, verticalScale = 1); per-frame
// scaling happens in EffectiveConfig. Effects are purely geometric/visual,
// never behavioral.
type TimelineConfig struct {
	// Horizontal metrics. DayWidth is the pixel width of one day at zoom 1.
	LeftMargin float64 `yaml:"left_margin"`
	DayWidth   float64 `yaml:"day_width"`
	// Vertical metrics, scaled by verticalScale with per-metric floors.
	TopMargin    float64 `yaml:"top_margin"`
	StaffSpacing float64 `yaml:"staff_spacing"`
	LineSpacing  float64 `yaml:"line_spacing"`
	TaskHeight   float64 `yaml:"task_height"`
	// Task pill shaping.
	TaskInset    float64 `yaml:"task_inset"`
	MinTaskWidth float64 `yaml:"min_task_width"`
	// Interaction geometry.
	HandleWidth   float64 `yaml:"handle_width"`
	DragThreshold float64 `yaml:"drag_threshold"`
	GridCellSize  float64 `yaml:"grid_cell_size"`
	// Zoom and vertical-scale bounds. Clamping happens before anchor
	// correction in the viewport controller.
	MinZoom          float64 `yaml:"min_zoom"`
	MaxZoom          float64 `yaml:"max_zoom"`
	MinVerticalScale float64 `yaml:"min_vertical_scale"`
	MaxVerticalScale float64 `yaml:"max_vertical_scale"`
	// WheelZoomStep is the multiplicative zoom change per wheel notch.
	// ScaleDragStep is the per-pixel multiplier for middle+modifier drags.
	WheelZoomStep float64 `yaml:"wheel_zoom_step"`
	ScaleDragStep float64 `yaml:"scale_drag_step"`
	// Line weights.
	StaffLineWidth   float64 `yaml:"staff_line_width"`
	GridLineWidth    float64 `yaml:"grid_line_width"`
	MeasureLineWidth float64 `yaml:"measure_line_width"`
	ArrowWidth       float64 `yaml:"arrow_width"`
	// Colors. Hex strings in YAML ("#rrggbb" or "#rrggbbaa").
	Background    Color `yaml:"background"`
	StaffLine     Color `yaml:"staff_line"`
	GridLine      Color `yaml:"grid_line"`
	MeasureLine   Color `yaml:"measure_line"`
	Arrow         Color `yaml:"arrow"`
	Ghost         Color `yaml:"ghost"`
	Accent        Color `yaml:"accent"`
	Selection     Color `yaml:"selection"`
	LinkHighlight Color `yaml:"link_highlight"`
	// Palette maps status names (TaskStatus.String) to pill fill colors.
	Palette map[string]Color `yaml:"palette"`
}

// DefaultConfig returns the stock dark theme with the standard metrics.
func DefaultConfig() TimelineConfig {
	return TimelineConfig{
		LeftMargin:       140,
		DayWidth:         60,
		TopMargin:        56,
		StaffSpacing:     48,
		LineSpacing:      24,
		TaskHeight:       18,
		TaskInset:        4,
		MinTaskWidth:     10,
		HandleWidth:      8,
		DragThreshold:    4,
		GridCellSize:     128,
		MinZoom:          0.1,
		MaxZoom:          20,
		MinVerticalScale: 0.5,
		MaxVerticalScale: 3,
		WheelZoomStep:    1.1,
		ScaleDragStep:    1.004,
		StaffLineWidth:   1,
		GridLineWidth:    1,
		MeasureLineWidth: 2,
		ArrowWidth:       2,
		Background:       mustHex("#1e1e28"),
		StaffLine:        mustHex("#3c3c50"),
		GridLine:         mustHex("#28283a"),
		MeasureLine:      mustHex("#46465e"),
		Arrow:            mustHex("#8a8aa8"),
		Ghost:            mustHex("#ffffff40"),
		Accent:           mustHex("#7c6af2"),
		Palette: map[string]Color{
			StatusNotStarted.String(): mustHex("#5a5a74"),
			StatusInProgress.String(): mustHex("#4a7dd6"),
			StatusCompleted.String():  mustHex("#4caf6e"),
			StatusBlocked.String():    mustHex("#d6564a"),
			StatusCancelled.String():  mustHex("#3a3a4c"),
		},
	}
}

// Validate checks that every metric is usable and every palette key names a
// known status. Zero color values are allowed; derived tints fill them in.
func (c *TimelineConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.DayWidth, validation.Required, validation.Min(1.0)),
		validation.Field(&c.LeftMargin, validation.Min(0.0)),
		validation.Field(&c.TopMargin, validation.Min(0.0)),
		validation.Field(&c.StaffSpacing, validation.Required, validation.Min(1.0)),
		validation.Field(&c.LineSpacing, validation.Required, validation.Min(1.0)),
		validation.Field(&c.TaskHeight, validation.Required, validation.Min(1.0)),
		validation.Field(&c.MinTaskWidth, validation.Required, validation.Min(1.0)),
		validation.Field(&c.HandleWidth, validation.Min(0.0)),
		validation.Field(&c.DragThreshold, validation.Min(0.0)),
		validation.Field(&c.GridCellSize, validation.Required, validation.Min(8.0)),
		validation.Field(&c.MinZoom, validation.Required, validation.Min(0.001)),
		validation.Field(&c.MaxZoom, validation.Required),
		validation.Field(&c.MinVerticalScale, validation.Required, validation.Min(0.001)),
		validation.Field(&c.MaxVerticalScale, validation.Required),
		validation.Field(&c.WheelZoomStep, validation.Required, validation.Min(1.0001)),
		validation.Field(&c.ScaleDragStep, validation.Required, validation.Min(1.0001)),
	); err != nil {
		return err
	}
	if c.MaxZoom <= c.MinZoom {
		return fmt.Errorf("config: max_zoom %v must exceed min_zoom %v", c.MaxZoom, c.MinZoom)
	}
	if c.MaxVerticalScale <= c.MinVerticalScale {
		return fmt.Errorf("config: max_vertical_scale %v must exceed min_vertical_scale %v",
			c.MaxVerticalScale, c.MinVerticalScale)
	}
	known := make(map[string]bool, len(AllStatuses))
	for _, s := range AllStatuses {
		known[s.String()] = true
	}
	for name := range c.Palette {
		if !known[name] {
			return fmt.Errorf("config: palette key %q is not a task status", name)
		}
	}
	return nil
}

// LoadConfig reads a YAML theme file over the defaults, so a theme only
// lists the values it changes.
func LoadConfig(path string) (TimelineConfig, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// StatusColor picks the pill fill for a status, honoring a per-task hex
// override when it parses.
func (c *TimelineConfig) StatusColor(status TaskStatus, overrideHex string) Color {
	if overrideHex != "" {
		if col, err := ParseHexColor(overrideHex); err == nil {
			return col
		}
	}
	if col, ok := c.Palette[status.String()]; ok && col.A > 0 {
		return col
	}
	return Color{0.42, 0.42, 0.52, 1}
}

// SelectionColor returns the selection ring color, deriving a lightened
// accent when the theme leaves it unset.
func (c *TimelineConfig) SelectionColor() Color {
	if c.Selection.A > 0 {
		return c.Selection
	}
	return Lighten(c.Accent, 0.35)
}

// LinkHighlightColor returns the hover highlight used while drawing a
// dependency, derived from the accent when unset.
func (c *TimelineConfig) LinkHighlightColor() Color {
	if c.LinkHighlight.A > 0 {
		return c.LinkHighlight
	}
	return Lighten(c.Accent, 0.15)
}

// ParseHexColor parses "#rgb", "#rrggbb", or "#rrggbbaa" into a Color.
func ParseHexColor(s string) (Color, error) {
	alpha := 1.0
	if len(s) == 9 && s[0] == '#' {
		var a uint8
		if _, err := fmt.Sscanf(s[7:9], "%02x", &a); err != nil {
			return Color{}, fmt.Errorf("color: parse %q: %w", s, err)
		}
		alpha = float64(a) / 255
		s = s[:7]
	}
	cc, err := colorful.Hex(s)
	if err != nil {
		return Color{}, fmt.Errorf("color: parse %q: %w", s, err)
	}
	return Color{R: cc.R, G: cc.G, B: cc.B, A: alpha}, nil
}

// Lighten blends a color toward white in Lab space, which keeps hue steadier
// than naive RGB interpolation. t is in [0, 1].
func Lighten(c Color, t float64) Color {
	base := colorful.Color{R: c.R, G: c.G, B: c.B}
	white := colorful.Color{R: 1, G: 1, B: 1}
	out := base.BlendLab(white, t).Clamped()
	a := c.A
	if a == 0 {
		a = 1
	}
	return Color{R: out.R, G: out.G, B: out.B, A: a}
}

// UnmarshalYAML decodes a hex color string.
func (c *Color) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	col, err := ParseHexColor(s)
	if err != nil {
		return err
	}
	*c = col
	return nil
}

// MarshalYAML encodes the color back to "#rrggbb" or "#rrggbbaa" form.
func (c Color) MarshalYAML() (interface{}, error) {
	cc := colorful.Color{R: clamp01(c.R), G: clamp01(c.G), B: clamp01(c.B)}
	if c.A >= 1 {
		return cc.Hex(), nil
	}
	return fmt.Sprintf("%s%02x", cc.Hex(), uint8(clamp01(c.A)*255)), nil
}

func mustHex(s string) Color {
	c, err := ParseHexColor(s)
	if err != nil {
		panic(err)
	}
	return c
}

// WatchConfig reloads the theme file whenever it changes on disk and hands
// the result to fn on the watcher goroutine. Editors that replace files on
// save are handled by watching the parent directory. Events are debounced
// so a save emits one reload. The returned stop function ends the watch.
func WatchConfig(path string, fn func(TimelineConfig, error)) (func(), error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		var timer *time.Timer
		var fire <-chan time.Time
		schedule := func() {
			if timer == nil {
				timer = time.NewTimer(200 * time.Millisecond)
				fire = timer.C
			} else {
				timer.Reset(200 * time.Millisecond)
			}
		}
		for {
			select {
			case <-done:
				if timer != nil {
					timer.Stop()
				}
				return
			case <-fire:
				fn(LoadConfig(abs))
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					schedule()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logf("config watch: %v", err)
			}
		}
	}()

	var once bool
	stop := func() {
		if once {
			return
		}
		once = true
		close(done)
		w.Close()
	}
	return stop, nil
}
