package geom

type outcode int

const (
	ocInside outcode = 0
	ocLeft   outcode = 1 << 0
	ocRight  outcode = 1 << 1
	ocTop    outcode = 1 << 2
	ocBottom outcode = 1 << 3
)

func computeOutcode(clip Rect, x, y int) outcode {
	var c outcode
	switch {
	case x < clip.Left:
		c |= ocLeft
	case x > clip.Right-1:
		c |= ocRight
	}
	switch {
	case y < clip.Top:
		c |= ocTop
	case y > clip.Bottom-1:
		c |= ocBottom
	}
	return c
}

// ClipLine clips the segment p0-p1 to the pixel rectangle clip using
// Cohen-Sutherland, treating clip as inclusive of [Left, Right-1] x
// [Top, Bottom-1]. It returns false if no portion of the segment survives,
// otherwise true with *p0, *p1 updated to the clipped endpoints. Exact on
// axis-aligned segments and monotone in both axes.
func ClipLine(clip Rect, p0, p1 *Point) bool {
	if clip.IsEmpty() {
		return false
	}
	x0, y0 := p0.X, p0.Y
	x1, y1 := p1.X, p1.Y
	oc0 := computeOutcode(clip, x0, y0)
	oc1 := computeOutcode(clip, x1, y1)

	xmax, ymax := clip.Right-1, clip.Bottom-1

	for {
		if oc0 == ocInside && oc1 == ocInside {
			p0.X, p0.Y = x0, y0
			p1.X, p1.Y = x1, y1
			return true
		}
		if oc0&oc1 != 0 {
			return false
		}

		out := oc0
		if out == ocInside {
			out = oc1
		}

		var x, y int
		switch {
		case out&ocBottom != 0:
			x = x0 + (x1-x0)*(ymax-y0)/(y1-y0)
			y = ymax
		case out&ocTop != 0:
			x = x0 + (x1-x0)*(clip.Top-y0)/(y1-y0)
			y = clip.Top
		case out&ocRight != 0:
			y = y0 + (y1-y0)*(xmax-x0)/(x1-x0)
			x = xmax
		case out&ocLeft != 0:
			y = y0 + (y1-y0)*(clip.Left-x0)/(x1-x0)
			x = clip.Left
		}

		if out == oc0 {
			x0, y0 = x, y
			oc0 = computeOutcode(clip, x0, y0)
		} else {
			x1, y1 = x, y
			oc1 = computeOutcode(clip, x1, y1)
		}
	}
}
