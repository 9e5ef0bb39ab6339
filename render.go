package cadence

import (
	"image"
	"math"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
)

// Debug-font cell size used when fitting titles and labels.
const (
	glyphW = 6
	glyphH = 16
)

// toRGBA converts a Color to a color.RGBA (premultiplied).
func (c Color) toRGBA() colorRGBA {
	return colorRGBA{
		R: uint8(clamp01(c.R*c.A) * 255),
		G: uint8(clamp01(c.G*c.A) * 255),
		B: uint8(clamp01(c.B*c.A) * 255),
		A: uint8(clamp01(c.A) * 255),
	}
}

// colorRGBA implements the color.Color interface for image.Fill.
type colorRGBA struct {
	R, G, B, A uint8
}

func (c colorRGBA) RGBA() (r, g, b, a uint32) {
	r = uint32(c.R) * 0x101
	g = uint32(c.G) * 0x101
	b = uint32(c.B) * 0x101
	a = uint32(c.A) * 0x101
	return
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// --- Image pool ---

// imagePool manages reusable offscreen ebiten.Images keyed by power-of-two
// dimensions. Task pills resize continuously while zooming; pooling keeps
// that churn from allocating a fresh texture per size step.
type imagePool struct {
	buckets map[uint64][]*ebiten.Image
}

func poolKey(w, h int) uint64 {
	return uint64(w)<<32 | uint64(h)
}

// Acquire returns a cleared offscreen image with at least (w, h) pixels.
// Dimensions are rounded up to the next power of two.
func (p *imagePool) Acquire(w, h int) *ebiten.Image {
	pw := nextPowerOfTwo(w)
	ph := nextPowerOfTwo(h)
	key := poolKey(pw, ph)

	if p.buckets != nil {
		if stack := p.buckets[key]; len(stack) > 0 {
			img := stack[len(stack)-1]
			p.buckets[key] = stack[:len(stack)-1]
			img.Clear()
			return img
		}
	}

	return ebiten.NewImageWithOptions(
		image.Rect(0, 0, pw, ph),
		&ebiten.NewImageOptions{Unmanaged: true},
	)
}

// Release returns an image to the pool. It is cleared on the next Acquire,
// not here.
func (p *imagePool) Release(img *ebiten.Image) {
	if img == nil {
		return
	}
	b := img.Bounds()
	key := poolKey(b.Dx(), b.Dy())

	if p.buckets == nil {
		p.buckets = make(map[uint64][]*ebiten.Image)
	}
	p.buckets[key] = append(p.buckets[key], img)
}

// nextPowerOfTwo returns the smallest power of two >= n (minimum 1).
func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << int(math.Ceil(math.Log2(float64(n))))
}

// --- Renderer ---

// renderer turns the retained scene into pixels. It owns the task texture
// pool and the vertex/index/point scratch buffers; buffers grow to a
// high-water mark and are reused across frames.
type renderer struct {
	pool  imagePool
	verts []ebiten.Vertex
	inds  []uint16
	pts   []Vec2

	taskBuf []*TaskVisual
	depBuf  []*DependencyVisual
}

// viewOffset is the content-to-screen translation for the current viewport.
func viewOffset(ec EffectiveConfig, vp Viewport) (float64, float64) {
	return vp.X * ec.DayWidth, vp.Y
}

func (r *renderer) drawTris(dst *ebiten.Image) {
	if len(r.verts) == 0 || len(r.inds) == 0 {
		return
	}
	op := ebiten.DrawTrianglesOptions{
		ColorScaleMode: ebiten.ColorScaleModePremultipliedAlpha,
		AntiAlias:      true,
	}
	dst.DrawTriangles(r.verts, r.inds, WhitePixel, &op)
}

// fillConvex fan-triangulates a convex polygon and draws it in one call.
func (r *renderer) fillConvex(dst *ebiten.Image, pts []Vec2, c Color) {
	n := len(pts)
	if n < 3 {
		return
	}
	r.verts = r.verts[:0]
	r.inds = r.inds[:0]
	cr := float32(c.R * c.A)
	cg := float32(c.G * c.A)
	cb := float32(c.B * c.A)
	ca := float32(c.A)
	for _, p := range pts {
		r.verts = append(r.verts, ebiten.Vertex{
			DstX: float32(p.X), DstY: float32(p.Y),
			SrcX: 0.5, SrcY: 0.5,
			ColorR: cr, ColorG: cg, ColorB: cb, ColorA: ca,
		})
	}
	for i := 0; i < n-2; i++ {
		r.inds = append(r.inds, 0, uint16(i+1), uint16(i+2))
	}
	r.drawTris(dst)
}

// strokePolyline extrudes a polyline into a triangle strip of the given
// width. Interior joints use averaged normals with a clamped miter so sharp
// corners keep their width without spiking.
func (r *renderer) strokePolyline(dst *ebiten.Image, pts []Vec2, width float64, c Color) {
	n := len(pts)
	if n < 2 || width <= 0 {
		return
	}
	halfW := width / 2
	r.verts = r.verts[:0]
	r.inds = r.inds[:0]
	cr := float32(c.R * c.A)
	cg := float32(c.G * c.A)
	cb := float32(c.B * c.A)
	ca := float32(c.A)

	for i := 0; i < n; i++ {
		var nx, ny float64
		switch {
		case i == 0:
			nx, ny = perpendicular(pts[0], pts[1])
		case i == n-1:
			nx, ny = perpendicular(pts[n-2], pts[n-1])
		default:
			nx0, ny0 := perpendicular(pts[i-1], pts[i])
			nx1, ny1 := perpendicular(pts[i], pts[i+1])
			nx, ny = nx0+nx1, ny0+ny1
			ln := math.Sqrt(nx*nx + ny*ny)
			if ln > 1e-10 {
				nx /= ln
				ny /= ln
			}
			// Maintain width at the miter, clamped to avoid spikes.
			dot := nx0*nx + ny0*ny
			if dot > 0.1 {
				scale := 1.0 / dot
				if scale > 2.0 {
					scale = 2.0
				}
				nx *= scale
				ny *= scale
			}
		}

		r.verts = append(r.verts,
			ebiten.Vertex{
				DstX: float32(pts[i].X + nx*halfW), DstY: float32(pts[i].Y + ny*halfW),
				SrcX: 0.5, SrcY: 0.5,
				ColorR: cr, ColorG: cg, ColorB: cb, ColorA: ca,
			},
			ebiten.Vertex{
				DstX: float32(pts[i].X - nx*halfW), DstY: float32(pts[i].Y - ny*halfW),
				SrcX: 0.5, SrcY: 0.5,
				ColorR: cr, ColorG: cg, ColorB: cb, ColorA: ca,
			},
		)
	}
	for i := 0; i < n-1; i++ {
		v := uint16(i * 2)
		r.inds = append(r.inds, v, v+1, v+2, v+1, v+3, v+2)
	}
	r.drawTris(dst)
}

// perpendicular returns the unit left-perpendicular of the segment a→b.
func perpendicular(a, b Vec2) (float64, float64) {
	dx := b.X - a.X
	dy := b.Y - a.Y
	ln := math.Sqrt(dx*dx + dy*dy)
	if ln < 1e-10 {
		return 0, -1
	}
	return -dy / ln, dx / ln
}

func (r *renderer) line(dst *ebiten.Image, x0, y0, x1, y1, width float64, c Color) {
	seg := [2]Vec2{{X: x0, Y: y0}, {X: x1, Y: y1}}
	r.strokePolyline(dst, seg[:], width, c)
}

func (r *renderer) fillRect(dst *ebiten.Image, rect Rect, c Color) {
	quad := [4]Vec2{
		{X: rect.X, Y: rect.Y},
		{X: rect.X + rect.Width, Y: rect.Y},
		{X: rect.X + rect.Width, Y: rect.Y + rect.Height},
		{X: rect.X, Y: rect.Y + rect.Height},
	}
	r.fillConvex(dst, quad[:], c)
}

// appendCirclePoints appends a closed circle outline to buf. Segment count
// scales with the radius within sane bounds.
func appendCirclePoints(buf []Vec2, cx, cy, radius float64) []Vec2 {
	segs := int(radius)
	if segs < 12 {
		segs = 12
	}
	if segs > 64 {
		segs = 64
	}
	for i := 0; i < segs; i++ {
		a := float64(i) / float64(segs) * 2 * math.Pi
		buf = append(buf, Vec2{X: cx + math.Cos(a)*radius, Y: cy + math.Sin(a)*radius})
	}
	return buf
}

func (r *renderer) fillCircle(dst *ebiten.Image, cx, cy, radius float64, c Color) {
	if radius <= 0 {
		return
	}
	r.pts = appendCirclePoints(r.pts[:0], cx, cy, radius)
	r.fillConvex(dst, r.pts, c)
}

// fillPill draws a capsule: two end caps plus the middle body. Callers
// guarantee w >= h; narrower shapes render as circles instead.
func (r *renderer) fillPill(dst *ebiten.Image, x, y, w, h float64, c Color) {
	rad := h / 2
	r.fillCircle(dst, x+rad, y+rad, rad, c)
	r.fillCircle(dst, x+w-rad, y+rad, rad, c)
	if w > h {
		r.fillRect(dst, Rect{X: x + rad, Y: y, Width: w - h, Height: h}, c)
	}
}

// appendCubicBezier appends segs+1 points along a cubic Bézier to buf.
func appendCubicBezier(buf []Vec2, a, c1, c2, b Vec2, segs int) []Vec2 {
	for i := 0; i <= segs; i++ {
		t := float64(i) / float64(segs)
		u := 1 - t
		u2 := u * u
		t2 := t * t
		buf = append(buf, Vec2{
			X: u2*u*a.X + 3*u2*t*c1.X + 3*u*t2*c2.X + t2*t*b.X,
			Y: u2*u*a.Y + 3*u2*t*c1.Y + 3*u*t2*c2.Y + t2*t*b.Y,
		})
	}
	return buf
}

// selectionRing is the visible border width of a selected pill.
const selectionRing = 2.0

// rasterTask redraws a task visual's cached texture. Pills draw a rounded
// capsule with the status fill and an accent ring when selected; the
// degenerate circular glyph drops the body and title entirely.
func (r *renderer) rasterTask(vis *TaskVisual, cfg *TimelineConfig) {
	w := vis.Layout.Width
	h := vis.Layout.Height
	texW := int(math.Ceil(w))
	if vis.Circular {
		texW = int(math.Ceil(h))
	}
	texH := int(math.Ceil(h))
	if texW < 1 {
		texW = 1
	}
	if texH < 1 {
		texH = 1
	}

	if vis.img != nil {
		b := vis.img.Bounds()
		if b.Dx() < texW || b.Dy() < texH {
			r.pool.Release(vis.img)
			vis.img = nil
		}
	}
	if vis.img == nil {
		vis.img = r.pool.Acquire(texW, texH)
	} else {
		vis.img.Clear()
	}

	fill := cfg.StatusColor(vis.Task.Status, vis.Task.ColorHex)

	if vis.Circular {
		rad := h / 2
		if vis.Selected {
			r.fillCircle(vis.img, rad, rad, rad, cfg.SelectionColor())
			r.fillCircle(vis.img, rad, rad, rad-selectionRing, fill)
		} else {
			r.fillCircle(vis.img, rad, rad, rad, fill)
		}
	} else {
		if vis.Selected {
			r.fillPill(vis.img, 0, 0, w, h, cfg.SelectionColor())
			r.fillPill(vis.img, selectionRing, selectionRing, w-2*selectionRing, h-2*selectionRing, fill)
		} else {
			r.fillPill(vis.img, 0, 0, w, h, fill)
		}
		r.printTitle(vis, w, h)
	}

	vis.needsRaster = false
}

// printTitle draws the task title inside the pill body, truncating with a
// ".." tail when it cannot fit.
func (r *renderer) printTitle(vis *TaskVisual, w, h float64) {
	pad := h / 2
	maxChars := int((w - pad - 4) / glyphW)
	if maxChars < 3 {
		return
	}
	title := vis.Task.Title
	if rs := []rune(title); len(rs) > maxChars {
		title = string(rs[:maxChars-2]) + ".."
	}
	ty := int(h-glyphH) / 2
	ebitenutil.DebugPrintAt(vis.img, title, int(pad), ty)
}

// drawTasks rasterizes dirty visuals and composites every pill, skipping
// the ones fully outside the screen.
func (r *renderer) drawTasks(screen *ebiten.Image, scene *SceneManager, cfg *TimelineConfig, ec EffectiveConfig, vp Viewport) {
	offX, offY := viewOffset(ec, vp)
	bounds := screen.Bounds()
	sw := float64(bounds.Dx())
	sh := float64(bounds.Dy())

	r.taskBuf = scene.AppendTasks(r.taskBuf[:0])
	for _, vis := range r.taskBuf {
		sx := vis.Layout.StartX - offX
		sy := vis.Layout.TopY - offY
		if sx > sw || sy > sh || sx+vis.Layout.Width < 0 || sy+vis.Layout.Height < 0 {
			continue
		}
		if vis.needsRaster || vis.img == nil {
			r.rasterTask(vis, cfg)
		}
		var op ebiten.DrawImageOptions
		op.GeoM.Translate(sx, sy)
		screen.DrawImage(vis.img, &op)
	}
}

// arrowHead is the length of the dependency arrow tip in pixels.
const arrowHead = 8.0

// drawDependencies strokes every resolved arrow as a curve leaving the
// source anchor horizontally and arriving at the destination anchor
// horizontally, finished with a filled tip.
func (r *renderer) drawDependencies(screen *ebiten.Image, scene *SceneManager, cfg *TimelineConfig, ec EffectiveConfig, vp Viewport) {
	offX, offY := viewOffset(ec, vp)
	r.depBuf = scene.AppendDependencies(r.depBuf[:0])
	for _, vis := range r.depBuf {
		from := Vec2{X: vis.From.X - offX, Y: vis.From.Y - offY}
		to := Vec2{X: vis.To.X - offX, Y: vis.To.Y - offY}
		r.drawArrow(screen, from, to, cfg.ArrowWidth, cfg.Arrow)
	}
}

// drawArrow strokes one curved arrow between two points in screen space.
func (r *renderer) drawArrow(screen *ebiten.Image, from, to Vec2, width float64, c Color) {
	bend := math.Abs(to.X-from.X) * 0.4
	if bend < 24 {
		bend = 24
	}
	if bend > 120 {
		bend = 120
	}
	c1 := Vec2{X: from.X + bend, Y: from.Y}
	c2 := Vec2{X: to.X - bend, Y: to.Y}

	r.pts = appendCubicBezier(r.pts[:0], from, c1, c2, to, 24)
	r.strokePolyline(screen, r.pts, width, c)

	// Tip triangle aligned with the final segment.
	last := r.pts[len(r.pts)-1]
	prev := r.pts[len(r.pts)-2]
	dx := last.X - prev.X
	dy := last.Y - prev.Y
	ln := math.Sqrt(dx*dx + dy*dy)
	if ln < 1e-10 {
		dx, dy = 1, 0
	} else {
		dx /= ln
		dy /= ln
	}
	px, py := -dy, dx
	tip := [3]Vec2{
		last,
		{X: last.X - dx*arrowHead + px*arrowHead*0.5, Y: last.Y - dy*arrowHead + py*arrowHead*0.5},
		{X: last.X - dx*arrowHead - px*arrowHead*0.5, Y: last.Y - dy*arrowHead - py*arrowHead*0.5},
	}
	r.fillConvex(screen, tip[:], c)
}

// drawGrid draws the vertical tier ticks across the content area and
// returns them for the label pass.
func (r *renderer) drawGrid(screen *ebiten.Image, cfg *TimelineConfig, ec EffectiveConfig, vp Viewport, projectStart time.Time) []Tick {
	bounds := screen.Bounds()
	sw := float64(bounds.Dx())
	sh := float64(bounds.Dy())

	fromDay := vp.X + (0-ec.LeftMargin)/ec.DayWidth
	toDay := vp.X + (sw-ec.LeftMargin)/ec.DayWidth
	ticks := TicksInRange(ec, projectStart, fromDay, toDay)
	for _, tk := range ticks {
		sx := ec.LeftMargin + (tk.Day-vp.X)*ec.DayWidth
		if sx < ec.LeftMargin-1 || sx > sw+1 {
			continue
		}
		if tk.Major {
			r.line(screen, sx, 0, sx, sh, cfg.MeasureLineWidth, cfg.MeasureLine)
		} else {
			r.line(screen, sx, 0, sx, sh, cfg.GridLineWidth, cfg.GridLine)
		}
	}
	return ticks
}

// drawStaffs draws each staff's line group across the content area.
func (r *renderer) drawStaffs(screen *ebiten.Image, cfg *TimelineConfig, ec EffectiveConfig, vp Viewport, staffs []Staff, tops map[string]float64) {
	bounds := screen.Bounds()
	sw := float64(bounds.Dx())
	sh := float64(bounds.Dy())

	for _, st := range staffs {
		top, ok := tops[st.ID]
		if !ok {
			continue
		}
		lineColor := cfg.StaffLine
		if st.ColorHex != "" {
			if c, err := ParseHexColor(st.ColorHex); err == nil {
				lineColor = c
			}
		}
		lines := st.Lines
		if lines < 1 {
			lines = 1
		}
		for i := 0; i < lines; i++ {
			y := top + float64(i)*ec.LineSpacing - vp.Y
			if y < -1 || y > sh+1 {
				continue
			}
			r.line(screen, ec.LeftMargin, y, sw, y, cfg.StaffLineWidth, lineColor)
		}
	}
}

// tickLabelStep returns how many ticks to skip between labels so text
// never overlaps at dense tiers.
func tickLabelStep(ec EffectiveConfig) int {
	var spacing float64
	switch TimeScaleForZoom(ec.Zoom) {
	case ScaleHour:
		spacing = ec.DayWidth / 24
	case ScaleDay:
		spacing = ec.DayWidth
	case ScaleWeek:
		spacing = ec.DayWidth * 7
	default:
		spacing = ec.DayWidth * 28
	}
	if spacing <= 0 {
		return 1
	}
	step := int(math.Ceil(48 / spacing))
	if step < 1 {
		step = 1
	}
	return step
}

// drawChrome paints the fixed bands over the scrolling content: the left
// staff-name margin, the top label band, tick labels, staff names, and
// time signatures.
func (r *renderer) drawChrome(screen *ebiten.Image, cfg *TimelineConfig, ec EffectiveConfig, vp Viewport, staffs []Staff, tops map[string]float64, ticks []Tick) {
	bounds := screen.Bounds()
	sw := float64(bounds.Dx())
	sh := float64(bounds.Dy())

	r.fillRect(screen, Rect{X: 0, Y: 0, Width: ec.LeftMargin, Height: sh}, cfg.Background)
	r.fillRect(screen, Rect{X: 0, Y: 0, Width: sw, Height: glyphH + 4}, cfg.Background)
	r.line(screen, ec.LeftMargin, 0, ec.LeftMargin, sh, cfg.StaffLineWidth, cfg.StaffLine)

	step := tickLabelStep(ec)
	for i, tk := range ticks {
		if !tk.Major && i%step != 0 {
			continue
		}
		sx := ec.LeftMargin + (tk.Day-vp.X)*ec.DayWidth
		if sx < ec.LeftMargin || sx > sw {
			continue
		}
		ebitenutil.DebugPrintAt(screen, tk.Label, int(sx)+3, 2)
	}

	for _, st := range staffs {
		top, ok := tops[st.ID]
		if !ok {
			continue
		}
		lines := st.Lines
		if lines < 1 {
			lines = 1
		}
		mid := top + float64(lines-1)*ec.LineSpacing/2 - vp.Y
		name := st.Name
		if maxChars := int((ec.LeftMargin - 16) / glyphW); maxChars > 1 {
			if rs := []rune(name); len(rs) > maxChars {
				name = string(rs[:maxChars])
			}
		}
		ebitenutil.DebugPrintAt(screen, name, 8, int(mid)-glyphH/2)
		if st.TimeSignature != "" {
			sigX := int(ec.LeftMargin) - 6 - len(st.TimeSignature)*glyphW
			ebitenutil.DebugPrintAt(screen, st.TimeSignature, sigX, int(mid)+glyphH/2)
		}
	}
}

// drawGhost paints the drag preview: a translucent pill for move/resize,
// the rubber band and target highlight for dependency drawing.
func (r *renderer) drawGhost(screen *ebiten.Image, scene *SceneManager, cfg *TimelineConfig, ec EffectiveConfig, vp Viewport, g Ghost) {
	offX, offY := viewOffset(ec, vp)
	switch g.Kind {
	case GhostMove, GhostResize:
		rect := Rect{X: g.Rect.X - offX, Y: g.Rect.Y - offY, Width: g.Rect.Width, Height: g.Rect.Height}
		if rect.Width < rect.Height {
			rad := rect.Height / 2
			r.fillCircle(screen, rect.X+rad, rect.Y+rad, rad, cfg.Ghost)
		} else {
			r.fillPill(screen, rect.X, rect.Y, rect.Width, rect.Height, cfg.Ghost)
		}
	case GhostLink:
		from := Vec2{X: g.From.X - offX, Y: g.From.Y - offY}
		to := Vec2{X: g.To.X - offX, Y: g.To.Y - offY}
		r.drawArrow(screen, from, to, cfg.ArrowWidth, cfg.LinkHighlightColor())
		if g.TargetID != "" {
			if vis, ok := scene.Task(g.TargetID); ok {
				b := vis.Bounds()
				ring := Rect{X: b.X - offX - 2, Y: b.Y - offY - 2, Width: b.Width + 4, Height: b.Height + 4}
				r.strokeRect(screen, ring, 2, cfg.LinkHighlightColor())
			}
		}
	}
}

func (r *renderer) strokeRect(dst *ebiten.Image, rect Rect, width float64, c Color) {
	ring := [5]Vec2{
		{X: rect.X, Y: rect.Y},
		{X: rect.X + rect.Width, Y: rect.Y},
		{X: rect.X + rect.Width, Y: rect.Y + rect.Height},
		{X: rect.X, Y: rect.Y + rect.Height},
		{X: rect.X, Y: rect.Y},
	}
	r.strokePolyline(dst, ring[:], width, c)
}
