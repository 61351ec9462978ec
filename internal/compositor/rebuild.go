package compositor

import "github.com/kavionic/padosd/internal/geom"

// occluderRegionInParentCoords returns the region n contributes as an
// opaque occluder, expressed in its parent's local coordinate space: its
// shape region if one is set (translated from n-local to parent-local),
// else its own frame (spec §4.3.2 steps 3 and 5; glossary "opaque view").
func occluderRegionInParentCoords(n *ServerView) geom.Region {
	if n.shapeConstrainReg != nil {
		return n.shapeConstrainReg.Translate(n.Frame.TopLeft())
	}
	return geom.NewRegion(n.Frame)
}

// RebuildAll runs the depth-first region rebuild pass (spec §4.3.2)
// starting at root (the screen-filling top view, parent == nil). Every
// view with has_invalid_regs set is recomputed; a clean view is still
// visited (so invalid descendants further down are reached) but is only
// recomputed itself if force is set by an ancestor's own rebuild.
func RebuildAll(root *ServerView) {
	rebuildSubtree(root, nil, false)
}

func rebuildSubtree(v *ServerView, parent *ServerView, force bool) {
	if v.HideCount > 0 {
		v.clearRegionCaches()
		v.hasInvalidRegs = false
		v.lowestInvalid = nil
		return
	}
	// If nothing forces this subtree to move or recompute, and no
	// descendant has been marked invalid since the last pass, its
	// screen_pos and region caches are still current: skip the walk
	// entirely (spec §9's restored lowest-invalid-view optimization).
	if !force && !v.hasInvalidRegs && v.lowestInvalid == nil {
		return
	}
	if parent == nil {
		v.ScreenPos = geom.Point{}
	} else {
		v.ScreenPos = parent.ScreenPos.Add(parent.ScrollOffset).Add(v.Frame.TopLeft())
	}

	doRebuild := force || v.hasInvalidRegs
	if doRebuild {
		v.recompute(parent)
		v.hasInvalidRegs = false
	}
	v.lowestInvalid = nil
	for _, c := range v.Children {
		rebuildSubtree(c, v, doRebuild)
	}
}

// recompute implements spec §4.3.2 steps 1-6 for a single view. Step 7
// (recurse into children) is driven by rebuildSubtree.
func (v *ServerView) recompute(parent *ServerView) {
	v.prevVisibleReg = v.visibleReg
	v.prevFullReg = v.fullReg

	var full geom.Region
	if parent == nil {
		full = geom.NewRegion(geom.Rect{Left: 0, Top: 0, Right: v.Frame.Width(), Bottom: v.Frame.Height()})
	} else if parent.fullReg != nil {
		clip := v.Frame.Translate(parent.ScrollOffset)
		full = geom.CloneClipped(*parent.fullReg, clip, true)
	}

	if v.shapeConstrainReg != nil {
		full.Intersect(*v.shapeConstrainReg)
	}

	if parent != nil {
		aboveSelf := false
		clip := v.Frame.Translate(parent.ScrollOffset)
		for _, sib := range parent.Children {
			if sib == v {
				aboveSelf = true
				continue
			}
			if !aboveSelf || sib.HideCount > 0 {
				continue
			}
			if !sib.Frame.Intersects(v.Frame) {
				continue
			}
			occParent := occluderRegionInParentCoords(sib)
			occInV := geom.CloneClipped(occParent, clip, true)
			full.ExcludeRegion(occInV, geom.Point{})
		}
	}

	visible := full.Clone()
	if !v.Flags.has(FlagDrawOnChildren) {
		for _, child := range v.Children {
			if child.HideCount > 0 || child.Flags.has(FlagTransparent) {
				continue
			}
			childOcc := occluderRegionInParentCoords(child).Translate(v.ScrollOffset)
			visible.ExcludeRegion(childOcc, geom.Point{})
		}
	}

	full.Optimize()
	visible.Optimize()
	v.fullReg = &full
	v.visibleReg = &visible
}
