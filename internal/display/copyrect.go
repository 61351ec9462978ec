package display

import "github.com/kavionic/padosd/internal/geom"

// CopyRect copies srcRect from src to dstPos in dst, per spec §4.2:
//   - Copy with matching color spaces: a raw block move, choosing row/
//     column iteration direction so a self-move (src==dst) never reads
//     pixels it has already overwritten.
//   - Copy with mismatched color spaces: per-pixel format conversion.
//   - Overlay: the source's transparent sentinel pixel is skipped.
//   - Blend: if src is RGB32, per-pixel alpha compositing against dst;
//     otherwise falls back to Overlay.
func (d *Driver) CopyRect(dst, src *ServerBitmap, srcRect geom.Rect, dstPos geom.Point, mode DrawingMode) {
	srcRect = srcRect.Intersect(src.Bounds())
	if srcRect.IsEmpty() {
		return
	}
	w, h := srcRect.Width(), srcRect.Height()
	dstRect := geom.Rect{Left: dstPos.X, Top: dstPos.Y, Right: dstPos.X + w, Bottom: dstPos.Y + h}
	clipped := dstRect.Intersect(dst.Bounds())
	if clipped.IsEmpty() {
		return
	}
	// Shrink srcRect by however much dstRect got clipped, keeping the two
	// rectangles in lockstep.
	dxShrinkL := clipped.Left - dstRect.Left
	dyShrinkT := clipped.Top - dstRect.Top
	dxShrinkR := dstRect.Right - clipped.Right
	dyShrinkB := dstRect.Bottom - clipped.Bottom
	srcRect = geom.Rect{
		Left: srcRect.Left + dxShrinkL, Top: srcRect.Top + dyShrinkT,
		Right: srcRect.Right - dxShrinkR, Bottom: srcRect.Bottom - dyShrinkB,
	}
	dstRect = clipped
	if srcRect.IsEmpty() || dstRect.IsEmpty() {
		return
	}

	switch mode {
	case ModeBlend:
		if src.ColorSpace == geom.RGB32 {
			d.copyBlend(dst, src, srcRect, dstRect)
			return
		}
		fallthrough
	case ModeOverlay:
		d.copyOverlay(dst, src, srcRect, dstRect)
	default:
		d.copyPlain(dst, src, srcRect, dstRect)
	}
}

// rowColOrder picks the iteration direction for each axis so that a
// self-overlapping move never clobbers unread source pixels: moving
// down/right must iterate from the bottom-right, moving up/left from the
// top-left.
func rowColOrder(srcRect, dstRect geom.Rect) (yFwd, xFwd bool) {
	yFwd = dstRect.Top <= srcRect.Top
	xFwd = dstRect.Left <= srcRect.Left
	return
}

func (d *Driver) copyPlain(dst, src *ServerBitmap, srcRect, dstRect geom.Rect) {
	w, h := srcRect.Width(), srcRect.Height()
	sameSpace := dst.ColorSpace == src.ColorSpace
	yFwd, xFwd := rowColOrder(srcRect, dstRect)

	ys := make([]int, h)
	for i := 0; i < h; i++ {
		if yFwd {
			ys[i] = i
		} else {
			ys[i] = h - 1 - i
		}
	}
	xs := make([]int, w)
	for i := 0; i < w; i++ {
		if xFwd {
			xs[i] = i
		} else {
			xs[i] = w - 1 - i
		}
	}

	for _, dy := range ys {
		sy := srcRect.Top + dy
		ty := dstRect.Top + dy
		for _, dx := range xs {
			sx := srcRect.Left + dx
			tx := dstRect.Left + dx
			if sameSpace {
				dst.writeRawPixel(tx, ty, src.readPixel(sx, sy))
			} else {
				c := decodeColor(src.ColorSpace, src.readPixel(sx, sy))
				dst.writeRawPixel(tx, ty, encodeColor(dst.ColorSpace, c))
			}
		}
	}
}

func (d *Driver) copyOverlay(dst, src *ServerBitmap, srcRect, dstRect geom.Rect) {
	w, h := srcRect.Width(), srcRect.Height()
	for dy := 0; dy < h; dy++ {
		sy := srcRect.Top + dy
		ty := dstRect.Top + dy
		for dx := 0; dx < w; dx++ {
			sx := srcRect.Left + dx
			tx := dstRect.Left + dx
			raw := src.readPixel(sx, sy)
			if geom.IsTransparentPixel(src.ColorSpace, raw) {
				continue
			}
			if dst.ColorSpace == src.ColorSpace {
				dst.writeRawPixel(tx, ty, raw)
			} else {
				c := decodeColor(src.ColorSpace, raw)
				dst.writeRawPixel(tx, ty, encodeColor(dst.ColorSpace, c))
			}
		}
	}
}

func (d *Driver) copyBlend(dst, src *ServerBitmap, srcRect, dstRect geom.Rect) {
	w, h := srcRect.Width(), srcRect.Height()
	for dy := 0; dy < h; dy++ {
		sy := srcRect.Top + dy
		ty := dstRect.Top + dy
		for dx := 0; dx < w; dx++ {
			sx := srcRect.Left + dx
			tx := dstRect.Left + dx
			sc := geom.ColorFromRGBA32(src.readPixel(sx, sy))
			dc := decodeColor(dst.ColorSpace, dst.readPixel(tx, ty))
			blended := alphaBlend(sc, dc)
			dst.writeRawPixel(tx, ty, encodeColor(dst.ColorSpace, blended))
		}
	}
}
