package cadence

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func colorsClose(a, b Color, eps float64) bool {
	return approxEqual(a.R, b.R, eps) && approxEqual(a.G, b.G, eps) &&
		approxEqual(a.B, b.B, eps) && approxEqual(a.A, b.A, eps)
}

// --- Defaults and validation ---

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
}

func TestValidateRejectsBadMetrics(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*TimelineConfig)
	}{
		{"zero day width", func(c *TimelineConfig) { c.DayWidth = 0 }},
		{"sub-pixel day width", func(c *TimelineConfig) { c.DayWidth = 0.5 }},
		{"negative left margin", func(c *TimelineConfig) { c.LeftMargin = -1 }},
		{"tiny grid cell", func(c *TimelineConfig) { c.GridCellSize = 4 }},
		{"non-multiplying wheel step", func(c *TimelineConfig) { c.WheelZoomStep = 1 }},
		{"zero min zoom", func(c *TimelineConfig) { c.MinZoom = 0 }},
		{"negative drag threshold", func(c *TimelineConfig) { c.DragThreshold = -2 }},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: Validate accepted a bad config", tc.name)
		}
	}
}

func TestValidateCrossFieldBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxZoom = cfg.MinZoom
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "max_zoom") {
		t.Errorf("zoom bounds: err = %v, want mention of max_zoom", err)
	}

	cfg = DefaultConfig()
	cfg.MaxVerticalScale = 0.2
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "max_vertical_scale") {
		t.Errorf("vertical bounds: err = %v, want mention of max_vertical_scale", err)
	}
}

func TestValidateUnknownPaletteKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Palette["urgent"] = Color{1, 0, 0, 1}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "urgent") {
		t.Errorf("err = %v, want rejection naming the stray key", err)
	}
}

// --- Loading ---

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "theme.yaml")
	theme := "day_width: 84\naccent: \"#ff8800\"\npalette:\n  blocked: \"#991111\"\n"
	if err := os.WriteFile(path, []byte(theme), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DayWidth != 84 {
		t.Errorf("DayWidth = %v, want 84", cfg.DayWidth)
	}
	// Values the theme does not mention keep their defaults.
	if cfg.LeftMargin != 140 {
		t.Errorf("LeftMargin = %v, want default 140", cfg.LeftMargin)
	}
	if !colorsClose(cfg.Accent, Color{1, 136.0 / 255, 0, 1}, epsilon) {
		t.Errorf("Accent = %+v, want #ff8800", cfg.Accent)
	}
	if !colorsClose(cfg.Palette["blocked"], Color{153.0 / 255, 17.0 / 255, 17.0 / 255, 1}, epsilon) {
		t.Errorf("Palette[blocked] = %+v, want #991111", cfg.Palette["blocked"])
	}
	// Palette entries merge; untouched statuses keep their stock colors.
	if !colorsClose(cfg.Palette["completed"], Color{76.0 / 255, 175.0 / 255, 110.0 / 255, 1}, epsilon) {
		t.Errorf("Palette[completed] = %+v, want default #4caf6e", cfg.Palette["completed"])
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want wrapped ErrNotExist", err)
	}
	// Defaults come back so callers can keep rendering with them.
	if cfg.DayWidth != 60 {
		t.Errorf("DayWidth = %v, want default 60", cfg.DayWidth)
	}
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "theme.yaml")
	if err := os.WriteFile(path, []byte("day_width: [oops\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig accepted malformed YAML")
	}
}

func TestLoadConfigInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "theme.yaml")
	if err := os.WriteFile(path, []byte("max_zoom: 0.05\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "max_zoom") {
		t.Errorf("err = %v, want validation failure naming max_zoom", err)
	}
}

// --- Colors ---

func TestParseHexColor(t *testing.T) {
	cases := []struct {
		in      string
		want    Color
		wantErr bool
	}{
		{in: "#fff", want: Color{1, 1, 1, 1}},
		{in: "#1e1e28", want: Color{30.0 / 255, 30.0 / 255, 40.0 / 255, 1}},
		{in: "#FF8800", want: Color{1, 136.0 / 255, 0, 1}},
		{in: "#ff000080", want: Color{1, 0, 0, 128.0 / 255}},
		{in: "#00000000", want: Color{0, 0, 0, 0}},
		{in: "ff0000", wantErr: true},
		{in: "#1234", wantErr: true},
		{in: "#ff0000zz", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseHexColor(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseHexColor(%q) = %+v, want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseHexColor(%q): %v", tc.in, err)
			continue
		}
		if !colorsClose(got, tc.want, epsilon) {
			t.Errorf("ParseHexColor(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestColorYAMLRoundTrip(t *testing.T) {
	type doc struct {
		C Color `yaml:"c"`
	}

	out, err := yaml.Marshal(doc{C: Color{1, 0, 0, 1}})
	if err != nil {
		t.Fatalf("marshal opaque: %v", err)
	}
	if !strings.Contains(string(out), "#ff0000") {
		t.Errorf("opaque marshal = %q, want #ff0000 form", out)
	}
	var back doc
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal opaque: %v", err)
	}
	if !colorsClose(back.C, Color{1, 0, 0, 1}, epsilon) {
		t.Errorf("opaque round trip = %+v", back.C)
	}

	// Translucent colors carry an alpha byte: uint8(0.5*255) = 127 = 0x7f.
	out, err = yaml.Marshal(doc{C: Color{0, 0, 1, 0.5}})
	if err != nil {
		t.Fatalf("marshal translucent: %v", err)
	}
	if !strings.Contains(string(out), "#0000ff7f") {
		t.Errorf("translucent marshal = %q, want #0000ff7f form", out)
	}
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal translucent: %v", err)
	}
	if !colorsClose(back.C, Color{0, 0, 1, 127.0 / 255}, epsilon) {
		t.Errorf("translucent round trip = %+v", back.C)
	}
}

func TestStatusColorPrecedence(t *testing.T) {
	cfg := DefaultConfig()

	// A parsing per-task override beats the palette.
	got := cfg.StatusColor(StatusBlocked, "#00ff00")
	if !colorsClose(got, Color{0, 1, 0, 1}, epsilon) {
		t.Errorf("override: got %+v, want green", got)
	}

	// A garbage override falls back to the palette entry.
	got = cfg.StatusColor(StatusBlocked, "not-a-color")
	if !colorsClose(got, cfg.Palette[StatusBlocked.String()], epsilon) {
		t.Errorf("bad override: got %+v, want palette entry", got)
	}

	// No palette entry at all falls back to the neutral fill.
	delete(cfg.Palette, StatusBlocked.String())
	got = cfg.StatusColor(StatusBlocked, "")
	if !colorsClose(got, Color{0.42, 0.42, 0.52, 1}, epsilon) {
		t.Errorf("no entry: got %+v, want neutral fill", got)
	}
}

func TestSelectionColorDerived(t *testing.T) {
	cfg := DefaultConfig()

	// The stock theme leaves selection unset, so it derives from the accent.
	derived := cfg.SelectionColor()
	if derived.A != 1 {
		t.Errorf("derived selection alpha = %v, want 1", derived.A)
	}
	if derived.R <= cfg.Accent.R || derived.G <= cfg.Accent.G {
		t.Errorf("derived selection %+v is not lighter than accent %+v", derived, cfg.Accent)
	}

	cfg.Selection = Color{1, 0, 1, 1}
	if got := cfg.SelectionColor(); got != cfg.Selection {
		t.Errorf("explicit selection: got %+v, want %+v", got, cfg.Selection)
	}
}

func TestLinkHighlightColorDerived(t *testing.T) {
	cfg := DefaultConfig()
	derived := cfg.LinkHighlightColor()
	if derived.A != 1 {
		t.Errorf("derived highlight alpha = %v, want 1", derived.A)
	}
	// The link tint sits closer to the accent than the selection ring does.
	sel := cfg.SelectionColor()
	if derived.R >= sel.R {
		t.Errorf("link highlight %+v should be darker than selection %+v", derived, sel)
	}

	cfg.LinkHighlight = Color{0, 1, 1, 1}
	if got := cfg.LinkHighlightColor(); got != cfg.LinkHighlight {
		t.Errorf("explicit highlight: got %+v, want %+v", got, cfg.LinkHighlight)
	}
}

func TestLighten(t *testing.T) {
	base := Color{0.2, 0.4, 0.6, 0.8}

	// Lab round trips carry a little float noise, hence the loose tolerance.
	same := Lighten(base, 0)
	if !colorsClose(same, base, 1e-6) {
		t.Errorf("Lighten(base, 0) = %+v, want %+v", same, base)
	}

	white := Lighten(base, 1)
	if !colorsClose(white, Color{1, 1, 1, 0.8}, 1e-6) {
		t.Errorf("Lighten(base, 1) = %+v, want white with source alpha", white)
	}

	// Zero alpha would make the tint invisible; it promotes to opaque.
	if got := Lighten(Color{0.5, 0, 0, 0}, 0.5); got.A != 1 {
		t.Errorf("Lighten zero-alpha: A = %v, want 1", got.A)
	}
}

// --- Watching ---

func TestWatchConfigReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "theme.yaml")
	if err := os.WriteFile(path, []byte("day_width: 72\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	type reload struct {
		cfg TimelineConfig
		err error
	}
	got := make(chan reload, 8)
	stop, err := WatchConfig(path, func(cfg TimelineConfig, err error) {
		got <- reload{cfg, err}
	})
	if err != nil {
		t.Fatalf("WatchConfig: %v", err)
	}
	defer stop()

	if err := os.WriteFile(path, []byte("day_width: 90\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case r := <-got:
		if r.err != nil {
			t.Fatalf("reload error: %v", r.err)
		}
		if r.cfg.DayWidth != 90 {
			t.Errorf("reloaded DayWidth = %v, want 90", r.cfg.DayWidth)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the reload")
	}

	stop()
	stop() // second stop is a no-op
}

func TestWatchConfigMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "theme.yaml")
	if _, err := WatchConfig(path, func(TimelineConfig, error) {}); err == nil {
		t.Fatal("WatchConfig accepted a path in a nonexistent directory")
	}
}
