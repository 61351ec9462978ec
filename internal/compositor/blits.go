package compositor

import (
	"sort"

	"github.com/kavionic/padosd/internal/display"
	"github.com/kavionic/padosd/internal/geom"
)

// ApplyScrollBlits walks the tree after a region rebuild and, for any
// child whose delta_move is non-zero and which has both full_reg and
// prev_full_reg, blits the still-valid overlap into its new position
// before painting (spec §4.3.3). Areas the blit didn't cover are
// invalidated so the client repaints them.
func ApplyScrollBlits(root *ServerView, drv *display.Driver, screen *display.ServerBitmap) {
	walkBlit(root, drv, screen)
}

func walkBlit(v *ServerView, drv *display.Driver, screen *display.ServerBitmap) {
	if v.deltaMove != (geom.Point{}) && v.fullReg != nil && v.prevFullReg != nil {
		blitMovedView(v, drv, screen)
	}
	for _, c := range v.Children {
		walkBlit(c, drv, screen)
	}
}

func blitMovedView(v *ServerView, drv *display.Driver, screen *display.ServerBitmap) {
	delta := v.deltaMove

	overlap := *v.prevFullReg
	overlap.Intersect(*v.fullReg)
	// Content formerly at p is now at p+delta; only the part of overlap
	// whose pre-image was actually valid old content can be blitted, so
	// intersect with prev_full_reg shifted forward by delta (spec §4.3.3).
	// Otherwise a band with no real source (e.g. the strip a downward
	// scroll reveals) gets marked covered and never invalidated.
	overlap.Intersect(v.prevFullReg.Translate(delta))
	rects := append([]geom.Rect(nil), overlap.Rects()...)

	sortRectsForBlitDirection(rects, delta)

	parentOrigin := v.ScreenPos.Sub(v.Frame.TopLeft())
	coveredInNew := geom.Region{}
	for _, r := range rects {
		srcInScreen := r.Translate(parentOrigin).Translate(geom.Point{X: -delta.X, Y: -delta.Y})
		dstInScreen := r.Translate(parentOrigin)
		drv.CopyRect(screen, screen, srcInScreen, dstInScreen.TopLeft(), display.ModeCopy)
		coveredInNew.Include(r)
	}

	for _, r := range uncoveredRects(*v.fullReg, coveredInNew) {
		v.Invalidate(r.Translate(geom.Point{X: -v.ScrollOffset.X, Y: -v.ScrollOffset.Y}))
	}
}

func uncoveredRects(full, covered geom.Region) []geom.Rect {
	rest := full
	for _, r := range covered.Rects() {
		rest.Exclude(r)
	}
	return rest.Rects()
}

// sortRectsForBlitDirection orders rects bottom-right-first when moving
// down/right (so a self-overlapping blit never reads pixels it already
// overwrote) and top-left-first when moving up/left (spec §4.3.3).
func sortRectsForBlitDirection(rects []geom.Rect, delta geom.Point) {
	downRight := delta.Y > 0 || (delta.Y == 0 && delta.X > 0)
	sort.Slice(rects, func(i, j int) bool {
		if downRight {
			if rects[i].Top != rects[j].Top {
				return rects[i].Top > rects[j].Top
			}
			return rects[i].Left > rects[j].Left
		}
		if rects[i].Top != rects[j].Top {
			return rects[i].Top < rects[j].Top
		}
		return rects[i].Left < rects[j].Left
	})
}
