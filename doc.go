// Package cadence is a direct-manipulation timeline editor engine for
// [Ebitengine].
//
// Cadence renders project tasks as pill-shaped notes laid out on parallel
// staffs over a pannable, zoomable calendar grid, with dependency arrows
// between them. It owns the whole interaction surface: anchored wheel
// zoom, middle-drag panning, drag-to-move and drag-to-resize with
// snapping ghosts, and right-drag dependency drawing. Committed edits are
// reported through callbacks; the engine never writes to your data model
// directly.
//
// # Quick start
//
// The simplest way to get started is [Run], which creates a window and
// game loop for you:
//
//	tl := cadence.NewTimeline(cadence.DefaultConfig(), cadence.Callbacks{
//		UpdateTask: func(projectID, taskID string, patch cadence.TaskPatch) {
//			// persist the edit
//		},
//	})
//	tl.SetFrame(frame)
//	cadence.Run(tl, cadence.RunConfig{Title: "My Project", Width: 1280, Height: 720})
//
// For full control, [Timeline] implements [ebiten.Game]; call
// [Timeline.Update] and [Timeline.Draw] from your own loop.
//
// # Data flow
//
// The engine is one-directional. The host pushes a complete [Frame]
// (tasks, dependencies, staffs, selection) with [Timeline.SetFrame];
// the engine diffs it into a retained scene and redraws only what
// changed. Gestures produce ghost previews locally, and on release the
// engine emits the resulting mutation through [Callbacks] for the host
// to apply and echo back in the next frame.
//
// The document subpackage provides a matching in-memory store with
// validation, cycle-checked dependencies, undo, and subscriptions that
// feed [Timeline.SetFrame] directly.
//
// [Ebitengine]: https://ebitengine.org
package cadence
