package cadence

// syntheticPointerEvent represents a single injected input sample. Screen
// coordinates are used (matching what a capture tool sees in screenshots)
// and routed through the same pointer path as real mouse input.
type syntheticPointerEvent struct {
	screenX, screenY float64
	pressed          bool
	button           MouseButton
	mods             KeyModifiers
	wheel            bool
	wheelY           float64
}

// InjectPress queues a left-button press at the given screen coordinates.
// The event is consumed on the next Update call.
func (t *Timeline) InjectPress(x, y float64) {
	t.InjectButton(x, y, MouseButtonLeft, true, 0)
}

// InjectMove queues a pointer move at the given screen coordinates with
// the left button held down. Use between InjectPress and InjectRelease to
// simulate a drag.
func (t *Timeline) InjectMove(x, y float64) {
	t.InjectButton(x, y, MouseButtonLeft, true, 0)
}

// InjectRelease queues a left-button release at the given screen coordinates.
func (t *Timeline) InjectRelease(x, y float64) {
	t.InjectButton(x, y, MouseButtonLeft, false, 0)
}

// InjectButton queues a press, hold, or release sample for any button with
// the given modifier state. Repeated pressed samples at new coordinates
// read as drag movement.
func (t *Timeline) InjectButton(x, y float64, button MouseButton, pressed bool, mods KeyModifiers) {
	t.injectQueue = append(t.injectQueue, syntheticPointerEvent{
		screenX: x, screenY: y,
		pressed: pressed,
		button:  button,
		mods:    mods,
	})
}

// InjectWheel queues a wheel step at the given screen coordinates.
func (t *Timeline) InjectWheel(x, y, wheelY float64) {
	t.injectQueue = append(t.injectQueue, syntheticPointerEvent{
		screenX: x, screenY: y,
		wheel:  true,
		wheelY: wheelY,
	})
}

// InjectClick is a convenience that queues a press followed by a release
// at the same screen coordinates. Consumes two frames.
func (t *Timeline) InjectClick(x, y float64) {
	t.InjectPress(x, y)
	t.InjectRelease(x, y)
}

// InjectDrag queues a full left-button drag sequence: press at
// (fromX, fromY), linearly interpolated moves over frames-2 intermediate
// frames, and release at (toX, toY). Minimum frames is 2.
func (t *Timeline) InjectDrag(fromX, fromY, toX, toY float64, frames int) {
	if frames < 2 {
		frames = 2
	}
	t.InjectPress(fromX, fromY)
	steps := frames - 2
	for i := 1; i <= steps; i++ {
		s := float64(i) / float64(steps+1)
		x := fromX + (toX-fromX)*s
		y := fromY + (toY-fromY)*s
		t.InjectMove(x, y)
	}
	t.InjectRelease(toX, toY)
}

// processInjectedInput pops one event from the inject queue and feeds it
// through the pointer routing. Returns true if an event was consumed, in
// which case real mouse input is skipped this frame.
func (t *Timeline) processInjectedInput() bool {
	if len(t.injectQueue) == 0 {
		return false
	}
	evt := t.injectQueue[0]
	copy(t.injectQueue, t.injectQueue[1:])
	t.injectQueue = t.injectQueue[:len(t.injectQueue)-1]

	if evt.wheel {
		t.handleWheel(evt.screenX, evt.screenY, evt.wheelY)
		return true
	}
	t.routePointer(evt.screenX, evt.screenY, evt.pressed, evt.button, evt.mods)
	return true
}
