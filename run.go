package cadence

import (
	"github.com/hajimehoshi/ebiten/v2"
)

// RunConfig configures the standalone window loop.
type RunConfig struct {
	Title         string
	Width         int
	Height        int
	Resizable     bool
	Debug         bool
	ScreenshotDir string
}

// Run opens a window and drives the timeline until the window is closed.
// Hosts embedding the timeline in their own ebiten game can skip this and
// call Update and Draw directly; Timeline implements ebiten.Game.
func Run(t *Timeline, cfg RunConfig) error {
	if cfg.Width <= 0 {
		cfg.Width = 1280
	}
	if cfg.Height <= 0 {
		cfg.Height = 720
	}
	if cfg.Title == "" {
		cfg.Title = "cadence"
	}

	ebiten.SetWindowSize(cfg.Width, cfg.Height)
	ebiten.SetWindowTitle(cfg.Title)
	if cfg.Resizable {
		ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	}
	if cfg.Debug {
		t.SetDebug(true)
	}
	if cfg.ScreenshotDir != "" {
		t.SetScreenshotDir(cfg.ScreenshotDir)
	}
	return ebiten.RunGame(t)
}
