package cadence

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
)

var (
	logMu  sync.Mutex
	logOut io.Writer = os.Stderr
)

// SetLogOutput redirects the engine's diagnostic log, which defaults to
// stderr. Pass io.Discard to silence it.
func SetLogOutput(w io.Writer) {
	logMu.Lock()
	defer logMu.Unlock()
	if w == nil {
		w = io.Discard
	}
	logOut = w
}

// logf writes one prefixed line to the diagnostic log.
func logf(format string, args ...any) {
	logMu.Lock()
	defer logMu.Unlock()
	_, _ = fmt.Fprintf(logOut, "[cadence] "+format+"\n", args...)
}

// debugStats holds per-frame timing and scene metrics. Only populated when
// the timeline's debug mode is on.
type debugStats struct {
	updateTime time.Duration
	drawTime   time.Duration
	tasks      int
	deps       int
	gridLen    int
	redraws    uint64
}

// debugLog prints frame timing and scene counts to the diagnostic log.
func (t *Timeline) debugLog(stats debugStats) {
	if !t.debug {
		return
	}
	logf("update: %v | draw: %v | total: %v",
		stats.updateTime, stats.drawTime, stats.updateTime+stats.drawTime)
	logf("tasks: %d | deps: %d | grid: %d | redraws: %d",
		stats.tasks, stats.deps, stats.gridLen, stats.redraws)
}

// drawDebugOverlay paints the FPS/TPS and scene counters in the top-right
// corner. The overlay text refreshes every ~0.5 seconds.
func (t *Timeline) drawDebugOverlay(screen *ebiten.Image) {
	if t.debugImg == nil {
		// 140x48 fits three lines of the debug font.
		t.debugImg = ebiten.NewImage(140, 48)
	}

	t.debugAccum += 1.0 / float64(ebiten.TPS())
	if t.debugAccum >= 0.5 || t.debugText == "" {
		t.debugAccum = 0
		t.debugText = fmt.Sprintf("FPS: %.1f\nTPS: %.1f\ntasks: %d  deps: %d",
			ebiten.ActualFPS(), ebiten.ActualTPS(),
			t.scene.TaskCount(), t.scene.DependencyCount())
	}

	// Semi-transparent background for readability
	t.debugImg.Fill(color.RGBA{0, 0, 0, 128})
	ebitenutil.DebugPrint(t.debugImg, t.debugText)

	var op ebiten.DrawImageOptions
	op.GeoM.Translate(float64(screen.Bounds().Dx()-t.debugImg.Bounds().Dx()-4), 4)
	screen.DrawImage(t.debugImg, &op)
}
