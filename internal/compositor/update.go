package compositor

import (
	"github.com/kavionic/padosd/internal/display"
	"github.com/kavionic/padosd/internal/geom"
)

// BeginUpdate marks v as mid-repaint (spec §4.3.4): the client has
// received PAINT_VIEW and is about to issue drawing primitives against
// the damage the server already moved into active_damage_reg.
func (v *ServerView) BeginUpdate() { v.isUpdating = true }

// EndUpdate closes the update started by BeginUpdate. The repainted
// damage is now current, so active_damage_reg is dropped.
func (v *ServerView) EndUpdate() {
	v.isUpdating = false
	v.activeDamageReg = nil
}

// GetRegion returns the clip primitives must resolve against (spec
// §4.3.5): visible_reg intersected with draw_constrain_reg and, between
// BeginUpdate/EndUpdate, with active_damage_reg. Returns nil if v has no
// visible_reg, or mid-update with no active damage, or the result is
// empty — callers drop the primitive silently in every case. The
// returned region is in frame space, the same space visible_reg and
// damage_reg live in.
func (v *ServerView) GetRegion() *geom.Region {
	if v.visibleReg == nil {
		return nil
	}
	reg := v.visibleReg.Clone()
	if v.drawConstrainReg != nil {
		reg.Intersect(*v.drawConstrainReg)
	}
	if v.isUpdating {
		if v.activeDamageReg == nil {
			return nil
		}
		reg.Intersect(*v.activeDamageReg)
	}
	reg.Optimize()
	if reg.IsEmpty() {
		return nil
	}
	return &reg
}

// VisibleRects returns the clip rectangles DEBUG_DRAW outlines (spec
// §6.2): v's currently resolved draw clip, or nil if nothing would paint.
func (v *ServerView) VisibleRects() []geom.Rect {
	reg := v.GetRegion()
	if reg == nil {
		return nil
	}
	return reg.Rects()
}

// toFrame converts a content-space rect (the coordinate system a client
// draws in, which Invalidate also takes rects in) into frame space,
// where visible_reg/damage_reg/clip rectangles live.
func (v *ServerView) toFrame(r geom.Rect) geom.Rect { return r.Translate(v.ScrollOffset) }

// toScreen converts a frame-space rect to absolute screen coordinates
// (spec §3.1's screen_pos invariant).
func (v *ServerView) toScreen(r geom.Rect) geom.Rect { return r.Translate(v.ScreenPos) }

// DrawLine resolves the clip and draws p0-p1 once per surviving clip
// rectangle (spec §4.3.5).
func (v *ServerView) DrawLine(drv *display.Driver, screen *display.ServerBitmap, p0, p1 geom.Point, c geom.Color, mode display.DrawingMode) {
	reg := v.GetRegion()
	if reg == nil {
		return
	}
	frameShift := v.ScrollOffset.Add(v.ScreenPos)
	sp0, sp1 := p0.Add(frameShift), p1.Add(frameShift)
	for _, clip := range reg.Rects() {
		drv.DrawLine(screen, v.toScreen(clip), sp0, sp1, c, mode)
	}
}

// FillRect resolves the clip, intersects rect against each surviving
// clip rectangle, and fills whatever remains.
func (v *ServerView) FillRect(drv *display.Driver, screen *display.ServerBitmap, rect geom.Rect, c geom.Color) {
	reg := v.GetRegion()
	if reg == nil {
		return
	}
	rectScreen := v.toScreen(v.toFrame(rect))
	for _, clip := range reg.Rects() {
		sub := rectScreen.Intersect(v.toScreen(clip))
		if !sub.IsEmpty() {
			drv.FillRect(screen, sub, c)
		}
	}
}

// FillCircle resolves the clip and fills center/radius once per
// surviving clip rectangle; the driver's own span clipping handles the
// rest.
func (v *ServerView) FillCircle(drv *display.Driver, screen *display.ServerBitmap, center geom.Point, radius int, c geom.Color, mode display.DrawingMode) {
	reg := v.GetRegion()
	if reg == nil {
		return
	}
	sc := center.Add(v.ScrollOffset).Add(v.ScreenPos)
	for _, clip := range reg.Rects() {
		drv.FillCircle(screen, v.toScreen(clip), sc, radius, c, mode)
	}
}

// DrawString resolves the clip and writes text once per surviving clip
// rectangle, returning the total advance (spec §4.2/§4.3.5).
func (v *ServerView) DrawString(drv *display.Driver, screen *display.ServerBitmap, pos geom.Point, text string, length int, bg, fg geom.Color) int {
	reg := v.GetRegion()
	if reg == nil {
		return 0
	}
	sp := pos.Add(v.ScrollOffset).Add(v.ScreenPos)
	advance := 0
	for _, clip := range reg.Rects() {
		advance = drv.WriteString(screen, sp, text, length, v.toScreen(clip), bg, fg, v.FontID)
	}
	return advance
}

// DrawBitmap blits srcRect of src onto the view at dstPos. Unlike
// CopyRect it carries no damage-follow bookkeeping: the content it
// paints wasn't already on screen, so there is nothing to keep aligned
// (spec §4.3.5 reserves that behavior for copy_rect).
func (v *ServerView) DrawBitmap(drv *display.Driver, screen *display.ServerBitmap, src *display.ServerBitmap, srcRect geom.Rect, dstPos geom.Point, mode display.DrawingMode) {
	reg := v.GetRegion()
	if reg == nil {
		return
	}
	dstScreen := v.toScreen(v.toFrame(geom.RectFromSize(dstPos, srcRect.Width(), srcRect.Height())))
	for _, clip := range reg.Rects() {
		sub := dstScreen.Intersect(v.toScreen(clip))
		if sub.IsEmpty() {
			continue
		}
		srcSub := cropSrcToSub(srcRect, dstScreen, sub)
		drv.CopyRect(screen, src, srcSub, sub.TopLeft(), mode)
	}
}

// DrawScaledBitmap blits srcRect of src into dstRect of the view, scaling
// if the two differ in size (spec §6.2's DRAW_SCALED_BITMAP). Clipping
// follows the same per-clip-rectangle resolution as DrawBitmap.
func (v *ServerView) DrawScaledBitmap(drv *display.Driver, screen *display.ServerBitmap, src *display.ServerBitmap, srcRect, dstRect geom.Rect, mode display.DrawingMode) {
	reg := v.GetRegion()
	if reg == nil {
		return
	}
	dstScreen := v.toScreen(v.toFrame(dstRect))
	for _, clip := range reg.Rects() {
		sub := dstScreen.Intersect(v.toScreen(clip))
		if sub.IsEmpty() {
			continue
		}
		srcSub := cropSrcToSub(srcRect, dstScreen, sub)
		drv.ScaleBlit(screen, src, srcSub, sub, mode)
	}
}

// DebugDraw outlines v's currently visible clip rectangles directly onto
// the screen in c, bypassing the normal clip-and-composite path: a
// diagnostic aid for inspecting region-rebuild output (spec §6.2's
// DEBUG_DRAW), not a compositing primitive.
func (v *ServerView) DebugDraw(drv *display.Driver, screen *display.ServerBitmap, c geom.Color) {
	for _, r := range v.VisibleRects() {
		sr := v.toScreen(r)
		corners := []geom.Point{sr.TopLeft(), {X: sr.Right - 1, Y: sr.Top}, {X: sr.Right - 1, Y: sr.Bottom - 1}, {X: sr.Left, Y: sr.Bottom - 1}}
		for i := range corners {
			drv.DrawLine(screen, sr, corners[i], corners[(i+1)%len(corners)], c, display.ModeCopy)
		}
	}
}

// cropSrcToSub shrinks srcRect to the portion feeding sub, given that
// sub is dstScreen clipped down to some smaller rectangle.
func cropSrcToSub(srcRect, dstScreen, sub geom.Rect) geom.Rect {
	shift := sub.TopLeft().Sub(dstScreen.TopLeft())
	cropped := srcRect.Translate(shift)
	cropped.Right = cropped.Left + sub.Width()
	cropped.Bottom = cropped.Top + sub.Height()
	return cropped
}

// CopyRect blits srcRect of src onto the view at dstPos, clipped like
// any other primitive, plus the damage bookkeeping spec §4.3.5 requires
// of copy_rect specifically:
//   - pixels actually blitted are removed from damage_reg (they're
//     current again),
//   - any pending damage inside srcRect follows the move by dst-src, so
//     scrolled-but-not-yet-repainted content stays aligned with its
//     content,
//   - destination pixels the clip rejected are invalidated, since no
//     valid blit produced them.
func (v *ServerView) CopyRect(drv *display.Driver, screen *display.ServerBitmap, src *display.ServerBitmap, srcRect geom.Rect, dstPos geom.Point, mode display.DrawingMode) {
	reg := v.GetRegion()
	if reg == nil {
		return
	}
	frameSrcRect := v.toFrame(srcRect)
	frameDstRect := v.toFrame(geom.RectFromSize(dstPos, srcRect.Width(), srcRect.Height()))
	delta := frameDstRect.TopLeft().Sub(frameSrcRect.TopLeft())
	dstScreen := v.toScreen(frameDstRect)

	var painted geom.Region
	for _, clip := range reg.Rects() {
		sub := dstScreen.Intersect(v.toScreen(clip))
		if sub.IsEmpty() {
			continue
		}
		srcSub := cropSrcToSub(srcRect, dstScreen, sub)
		drv.CopyRect(screen, src, srcSub, sub.TopLeft(), mode)
		paintedFrame := sub.Translate(geom.Point{X: -v.ScreenPos.X, Y: -v.ScreenPos.Y})
		painted.Include(paintedFrame)
	}

	if v.damageReg != nil {
		for _, r := range painted.Rects() {
			v.damageReg.Exclude(r)
		}
		moved := geom.CloneClipped(*v.damageReg, frameSrcRect, false)
		if !moved.IsEmpty() {
			for _, r := range moved.Rects() {
				v.damageReg.Exclude(r)
			}
			v.damageReg.IncludeRegion(moved.Translate(delta))
		}
	}

	for _, r := range uncoveredRects(geom.NewRegion(frameDstRect), painted) {
		v.Invalidate(r.Translate(geom.Point{X: -v.ScrollOffset.X, Y: -v.ScrollOffset.Y}))
	}
}
