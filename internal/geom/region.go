package geom

// Region is a canonical representation of a finite set of integer pixels
// as a list of pairwise-disjoint, non-empty rectangles. Two Regions are
// equal iff they cover the same pixel set; no canonical rectangle
// ordering is required, only non-overlap (spec §4.1).
type Region struct {
	rects []Rect
}

// NewRegion returns a single-rectangle region, or an empty region if r is
// invalid or empty.
func NewRegion(r Rect) Region {
	var reg Region
	if r.IsValid() && !r.IsEmpty() {
		reg.rects = []Rect{r}
	}
	return reg
}

// Rects returns the region's rectangle list. Callers must not mutate it.
func (r Region) Rects() []Rect { return r.rects }

// Clone returns a deep copy of r: its own backing rectangle array, safe
// to mutate (Exclude, Include, Optimize, ...) without affecting r.
func (r Region) Clone() Region {
	if len(r.rects) == 0 {
		return Region{}
	}
	out := Region{rects: make([]Rect, len(r.rects))}
	copy(out.rects, r.rects)
	return out
}

func (r Region) IsEmpty() bool { return len(r.rects) == 0 }

// Bounds returns the minimal enclosing rectangle, or the zero Rect if
// the region is empty.
func (r Region) Bounds() Rect {
	if len(r.rects) == 0 {
		return Rect{}
	}
	b := r.rects[0]
	for _, rc := range r.rects[1:] {
		b = b.Union(rc)
	}
	return b
}

// subtractRect splits a into the portions not covered by c. All returned
// rectangles are valid and non-empty.
func subtractRect(a, c Rect) []Rect {
	if !a.Intersects(c) {
		return []Rect{a}
	}
	var out []Rect

	if c.Top > a.Top {
		out = append(out, Rect{a.Left, a.Top, a.Right, min(a.Bottom, c.Top)})
	}
	if c.Bottom < a.Bottom {
		out = append(out, Rect{a.Left, max(a.Top, c.Bottom), a.Right, a.Bottom})
	}

	midTop := max(a.Top, c.Top)
	midBottom := min(a.Bottom, c.Bottom)
	if midTop < midBottom {
		if c.Left > a.Left {
			out = append(out, Rect{a.Left, midTop, min(a.Right, c.Left), midBottom})
		}
		if c.Right < a.Right {
			out = append(out, Rect{max(a.Left, c.Right), midTop, a.Right, midBottom})
		}
	}
	return out
}

// Exclude removes the pixels of cut from the region.
func (r *Region) Exclude(cut Rect) {
	if !cut.IsValid() || cut.IsEmpty() || len(r.rects) == 0 {
		return
	}
	out := make([]Rect, 0, len(r.rects))
	for _, rc := range r.rects {
		out = append(out, subtractRect(rc, cut)...)
	}
	r.rects = out
}

// ExcludeRegion removes every rectangle of other, translated by offset,
// from the region.
func (r *Region) ExcludeRegion(other Region, offset Point) {
	for _, rc := range other.rects {
		r.Exclude(rc.Translate(offset))
	}
}

// Include adds the pixels of add to the region, splitting any existing
// rectangles that overlap it so the result stays non-overlapping.
func (r *Region) Include(add Rect) {
	if !add.IsValid() || add.IsEmpty() {
		return
	}
	r.Exclude(add)
	r.rects = append(r.rects, add)
}

// IncludeRegion adds every rectangle of other to the region.
func (r *Region) IncludeRegion(other Region) {
	for _, rc := range other.rects {
		r.Include(rc)
	}
}

// Intersect replaces the region with its pixelwise intersection with other.
func (r *Region) Intersect(other Region) {
	if len(r.rects) == 0 || len(other.rects) == 0 {
		r.rects = nil
		return
	}
	out := make([]Rect, 0, len(r.rects))
	for _, a := range r.rects {
		for _, b := range other.rects {
			if ix := a.Intersect(b); !ix.IsEmpty() {
				out = append(out, ix)
			}
		}
	}
	r.rects = out
}

// CloneClipped returns a copy of other with every rectangle intersected
// against clip, optionally translated so clip's top-left becomes the
// origin (used to view a parent region in a child's local frame).
func CloneClipped(other Region, clip Rect, normalize bool) Region {
	var out Region
	off := clip.TopLeft()
	for _, rc := range other.rects {
		ix := rc.Intersect(clip)
		if ix.IsEmpty() {
			continue
		}
		if normalize {
			ix = ix.Translate(Point{-off.X, -off.Y})
		}
		out.rects = append(out.rects, ix)
	}
	return out
}

// Optimize merges adjacent rectangles that share a collinear edge
// (horizontally or vertically adjacent with matching opposite extents).
// Idempotent: a second call never changes an already-optimized region.
func (r *Region) Optimize() {
	changed := true
	for changed {
		changed = false
		for i := 0; i < len(r.rects); i++ {
			for j := i + 1; j < len(r.rects); j++ {
				if merged, ok := mergeRects(r.rects[i], r.rects[j]); ok {
					r.rects[i] = merged
					r.rects = append(r.rects[:j], r.rects[j+1:]...)
					changed = true
					break
				}
			}
			if changed {
				break
			}
		}
	}
}

func mergeRects(a, b Rect) (Rect, bool) {
	// Horizontally adjacent: same vertical extent, a's right meets b's left
	// (or vice versa).
	if a.Top == b.Top && a.Bottom == b.Bottom {
		if a.Right == b.Left {
			return Rect{a.Left, a.Top, b.Right, a.Bottom}, true
		}
		if b.Right == a.Left {
			return Rect{b.Left, a.Top, a.Right, a.Bottom}, true
		}
	}
	// Vertically adjacent: same horizontal extent.
	if a.Left == b.Left && a.Right == b.Right {
		if a.Bottom == b.Top {
			return Rect{a.Left, a.Top, a.Right, b.Bottom}, true
		}
		if b.Bottom == a.Top {
			return Rect{a.Left, b.Top, a.Right, a.Bottom}, true
		}
	}
	return Rect{}, false
}

// Translate returns a copy of the region shifted by d.
func (r Region) Translate(d Point) Region {
	out := Region{rects: make([]Rect, len(r.rects))}
	for i, rc := range r.rects {
		out.rects[i] = rc.Translate(d)
	}
	return out
}

// Equal reports whether r and o cover the same pixel set. Both are
// optimized copies compared by symmetric difference being empty.
func (r Region) Equal(o Region) bool {
	a, b := r.Clone(), o.Clone()
	a.Optimize()
	b.Optimize()
	// a minus b must be empty, and b minus a must be empty.
	diff := a.Clone()
	for _, rc := range b.rects {
		diff.Exclude(rc)
	}
	if !diff.IsEmpty() {
		return false
	}
	diff2 := b.Clone()
	for _, rc := range a.rects {
		diff2.Exclude(rc)
	}
	return diff2.IsEmpty()
}
