package display

import "github.com/kavionic/padosd/internal/geom"

// DrawingMode selects how a primitive composites with existing pixels,
// per spec §4.2's copy_rect modes (also used by draw_line/fill_circle).
type DrawingMode int

const (
	ModeCopy DrawingMode = iota
	ModeOverlay
	ModeBlend
)

// Driver is the sole DisplayDriver implementation (per spec §9's design
// note: there is only ever one at runtime, so no interface indirection
// is introduced beyond the Sink optionally attached by cmd/padosd).
type Driver struct {
	ScreenWidth, ScreenHeight int
}

func NewDriver(w, h int) *Driver {
	return &Driver{ScreenWidth: w, ScreenHeight: h}
}

// WritePixel sets a single pixel with no clip-rectangle test (callers
// clip first); a point outside the bitmap is ignored.
func (d *Driver) WritePixel(b *ServerBitmap, p geom.Point, c geom.Color) {
	if !b.inBounds(p.X, p.Y) {
		return
	}
	b.writeRawPixel(p.X, p.Y, encodeColor(b.ColorSpace, c))
}

// ReadPixel returns the decoded color at p, or the zero Color if p is out
// of bounds.
func (d *Driver) ReadPixel(b *ServerBitmap, p geom.Point) geom.Color {
	if !b.inBounds(p.X, p.Y) {
		return geom.Color{}
	}
	return decodeColor(b.ColorSpace, b.readPixel(p.X, p.Y))
}

// ScaleBlit nearest-neighbor scales srcRect of src into dstRect of dst,
// clipped to dst's bounds, per DRAW_SCALED_BITMAP (§6.2). Unlike CopyRect
// it permits srcRect and dstRect to differ in size; a 1:1 call produces
// the same result as CopyRect's plain path, just pixel-by-pixel instead
// of row-blocked.
func (d *Driver) ScaleBlit(dst, src *ServerBitmap, srcRect, dstRect geom.Rect, mode DrawingMode) {
	srcRect = srcRect.Intersect(src.Bounds())
	dstRect = dstRect.Intersect(dst.Bounds())
	if srcRect.IsEmpty() || dstRect.IsEmpty() {
		return
	}
	sw, sh := srcRect.Width(), srcRect.Height()
	dw, dh := dstRect.Width(), dstRect.Height()
	for dy := 0; dy < dh; dy++ {
		sy := srcRect.Top + dy*sh/dh
		for dx := 0; dx < dw; dx++ {
			sx := srcRect.Left + dx*sw/dw
			c := decodeColor(src.ColorSpace, src.readPixel(sx, sy))
			d.putModePixel(dst, geom.Point{X: dstRect.Left + dx, Y: dstRect.Top + dy}, c, mode)
		}
	}
}

// FillRect fills rect (already clipped by the caller to any view clip
// region) with c, clipping it to the bitmap's bounds itself.
// Negative/zero-area rects are no-ops.
func (d *Driver) FillRect(b *ServerBitmap, rect geom.Rect, c geom.Color) {
	rect = rect.Intersect(b.Bounds())
	if rect.IsEmpty() {
		return
	}
	raw := encodeColor(b.ColorSpace, c)
	for y := rect.Top; y < rect.Bottom; y++ {
		for x := rect.Left; x < rect.Right; x++ {
			b.writeRawPixel(x, y, raw)
		}
	}
}

// DrawLine draws a Bresenham line from p0 to p1, clipped to clip, in the
// given mode.
func (d *Driver) DrawLine(b *ServerBitmap, clip geom.Rect, p0, p1 geom.Point, c geom.Color, mode DrawingMode) {
	if !geom.ClipLine(clip, &p0, &p1) {
		return
	}
	dx := abs(p1.X - p0.X)
	dy := -abs(p1.Y - p0.Y)
	sx, sy := 1, 1
	if p0.X > p1.X {
		sx = -1
	}
	if p0.Y > p1.Y {
		sy = -1
	}
	err := dx + dy
	x, y := p0.X, p0.Y
	for {
		d.putModePixel(b, geom.Point{X: x, Y: y}, c, mode)
		if x == p1.X && y == p1.Y {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// FillCircle fills a disc of the given radius centered at center, via
// symmetric horizontal spans intersected with clip (spec §4.2).
func (d *Driver) FillCircle(b *ServerBitmap, clip geom.Rect, center geom.Point, radius int, c geom.Color, mode DrawingMode) {
	if radius <= 0 {
		return
	}
	x, y := radius, 0
	err := 0
	for x >= y {
		d.fillSpan(b, clip, center.X-x, center.X+x, center.Y+y, c, mode)
		d.fillSpan(b, clip, center.X-x, center.X+x, center.Y-y, c, mode)
		d.fillSpan(b, clip, center.X-y, center.X+y, center.Y+x, c, mode)
		d.fillSpan(b, clip, center.X-y, center.X+y, center.Y-x, c, mode)
		y++
		if err <= 0 {
			err += 2*y + 1
		}
		if err > 0 {
			x--
			err -= 2*x + 1
		}
	}
}

func (d *Driver) fillSpan(b *ServerBitmap, clip geom.Rect, x0, x1, y int, c geom.Color, mode DrawingMode) {
	span := geom.Rect{Left: x0, Top: y, Right: x1 + 1, Bottom: y + 1}
	span = span.Intersect(clip).Intersect(b.Bounds())
	if span.IsEmpty() {
		return
	}
	for x := span.Left; x < span.Right; x++ {
		d.putModePixel(b, geom.Point{X: x, Y: y}, c, mode)
	}
}

func (d *Driver) putModePixel(b *ServerBitmap, p geom.Point, c geom.Color, mode DrawingMode) {
	if !b.inBounds(p.X, p.Y) {
		return
	}
	switch mode {
	case ModeOverlay:
		raw := encodeColor(b.ColorSpace, c)
		if geom.IsTransparentPixel(b.ColorSpace, raw) {
			return
		}
		b.writeRawPixel(p.X, p.Y, raw)
	case ModeBlend:
		dst := decodeColor(b.ColorSpace, b.readPixel(p.X, p.Y))
		blended := alphaBlend(c, dst)
		b.writeRawPixel(p.X, p.Y, encodeColor(b.ColorSpace, blended))
	default:
		b.writeRawPixel(p.X, p.Y, encodeColor(b.ColorSpace, c))
	}
}

// alphaBlend composites src over dst using round-to-nearest /256 scaling.
func alphaBlend(src, dst geom.Color) geom.Color {
	a := uint32(src.A)
	inv := 256 - a
	mix := func(s, d uint8) uint8 {
		return uint8((uint32(s)*a + uint32(d)*inv + 128) / 256)
	}
	return geom.Color{R: mix(src.R, dst.R), G: mix(src.G, dst.G), B: mix(src.B, dst.B), A: 0xFF}
}
