package cadence

import "math"

// SpatialGrid is a uniform hash grid over axis-aligned boxes, used as the
// broad phase for pointer hit-testing. An entry is stored in every cell its
// box overlaps; queries gather candidates from the touched cells and filter
// by the exact box test, so results are exact and independent of insertion
// order. The grid is rebuilt wholesale each frame: Clear then a full
// re-insert of the visible tasks.
type SpatialGrid struct {
	cellSize   float64
	cells      map[cellKey][]int
	entries    []gridEntry
	generation uint64
}

type cellKey struct {
	X, Y int32
}

type gridEntry struct {
	id  string
	box Rect
	// seen holds the query generation that last collected this entry,
	// deduplicating multi-cell entries without a per-query set.
	seen uint64
}

// NewSpatialGrid creates a grid with the given cell size in content pixels.
func NewSpatialGrid(cellSize float64) *SpatialGrid {
	if cellSize <= 0 {
		cellSize = 128
	}
	return &SpatialGrid{
		cellSize: cellSize,
		cells:    make(map[cellKey][]int),
	}
}

// Insert stores a box under an id. Inserting the same id twice keeps both
// entries until the next Clear; callers rebuild rather than update.
func (g *SpatialGrid) Insert(id string, box Rect) {
	idx := len(g.entries)
	g.entries = append(g.entries, gridEntry{id: id, box: box})

	x0, y0 := g.cellAt(box.X, box.Y)
	x1, y1 := g.cellAt(box.X+box.Width, box.Y+box.Height)
	for cy := y0; cy <= y1; cy++ {
		for cx := x0; cx <= x1; cx++ {
			k := cellKey{cx, cy}
			g.cells[k] = append(g.cells[k], idx)
		}
	}
}

// Clear empties the grid for a rebuild. Buckets are truncated in place and
// kept, so steady-state frames insert without reallocating.
func (g *SpatialGrid) Clear() {
	g.entries = g.entries[:0]
	for k, bucket := range g.cells {
		g.cells[k] = bucket[:0]
	}
}

// PointQuery returns the ids of every inserted box containing the point.
// Edge contact counts as containment.
func (g *SpatialGrid) PointQuery(x, y float64) []string {
	g.generation++
	cx, cy := g.cellAt(x, y)
	var out []string
	for _, idx := range g.cells[cellKey{cx, cy}] {
		e := &g.entries[idx]
		if e.seen == g.generation {
			continue
		}
		e.seen = g.generation
		if e.box.Contains(x, y) {
			out = append(out, e.id)
		}
	}
	return out
}

// RangeQuery returns the ids of every inserted box intersecting bounds,
// each id at most once regardless of how many cells it spans.
func (g *SpatialGrid) RangeQuery(bounds Rect) []string {
	g.generation++
	x0, y0 := g.cellAt(bounds.X, bounds.Y)
	x1, y1 := g.cellAt(bounds.X+bounds.Width, bounds.Y+bounds.Height)
	var out []string
	for cy := y0; cy <= y1; cy++ {
		for cx := x0; cx <= x1; cx++ {
			for _, idx := range g.cells[cellKey{cx, cy}] {
				e := &g.entries[idx]
				if e.seen == g.generation {
					continue
				}
				e.seen = g.generation
				if e.box.Intersects(bounds) {
					out = append(out, e.id)
				}
			}
		}
	}
	return out
}

// CellCandidates returns the ids bucketed in the cell containing the point,
// without the exact box filter. This is the raw broad phase; the
// interaction controller uses it to tell "near a shape" from "empty
// background" when deciding whether a click clears the selection.
func (g *SpatialGrid) CellCandidates(x, y float64) []string {
	g.generation++
	var out []string
	for _, idx := range g.cells[cellKey{g.cellAtScalar(x), g.cellAtScalar(y)}] {
		e := &g.entries[idx]
		if e.seen == g.generation {
			continue
		}
		e.seen = g.generation
		out = append(out, e.id)
	}
	return out
}

// Len reports the number of inserted entries.
func (g *SpatialGrid) Len() int {
	return len(g.entries)
}

func (g *SpatialGrid) cellAt(x, y float64) (int32, int32) {
	return g.cellAtScalar(x), g.cellAtScalar(y)
}

func (g *SpatialGrid) cellAtScalar(v float64) int32 {
	return int32(math.Floor(v / g.cellSize))
}
