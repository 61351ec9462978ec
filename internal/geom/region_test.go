package geom

import "testing"

func TestRegionIncludeExclude(t *testing.T) {
	var r Region
	r.Include(Rect{0, 0, 100, 100})
	r.Exclude(Rect{20, 20, 40, 40})

	if r.Bounds() != (Rect{0, 0, 100, 100}) {
		t.Fatalf("bounds = %v", r.Bounds())
	}
	for _, rc := range r.Rects() {
		if rc.Intersects(Rect{20, 20, 40, 40}) {
			t.Fatalf("rect %v still overlaps excluded hole", rc)
		}
	}
	// every pixel outside the hole but inside the original square must
	// still be covered by exactly one rectangle.
	probe := func(p Point) int {
		n := 0
		for _, rc := range r.Rects() {
			if rc.Contains(p) {
				n++
			}
		}
		return n
	}
	if probe(Point{50, 50}) != 1 {
		t.Fatalf("expected (50,50) covered once")
	}
	if probe(Point{25, 25}) != 0 {
		t.Fatalf("expected (25,25) excluded")
	}
}

func TestRegionOptimizeIdempotent(t *testing.T) {
	var r Region
	r.Include(Rect{0, 0, 50, 50})
	r.Include(Rect{50, 0, 100, 50})
	r.Optimize()
	once := append([]Rect(nil), r.Rects()...)
	r.Optimize()
	twice := r.Rects()
	if len(once) != len(twice) {
		t.Fatalf("optimize not idempotent: %v vs %v", once, twice)
	}
}

func TestRegionOptimizeMergesAdjacent(t *testing.T) {
	var r Region
	r.Include(Rect{0, 0, 50, 50})
	r.Include(Rect{50, 0, 100, 50})
	r.Optimize()
	if len(r.Rects()) != 1 {
		t.Fatalf("expected merge into 1 rect, got %v", r.Rects())
	}
	if r.Rects()[0] != (Rect{0, 0, 100, 50}) {
		t.Fatalf("merged rect wrong: %v", r.Rects()[0])
	}
}

func TestCloneClippedNormalizes(t *testing.T) {
	var parent Region
	parent.Include(Rect{0, 0, 200, 200})
	child := CloneClipped(parent, Rect{50, 50, 150, 150}, true)
	if child.Bounds() != (Rect{0, 0, 100, 100}) {
		t.Fatalf("normalized bounds = %v", child.Bounds())
	}
}

func TestIntersect(t *testing.T) {
	var a, b Region
	a.Include(Rect{0, 0, 100, 100})
	b.Include(Rect{50, 50, 150, 150})
	a.Intersect(b)
	if a.Bounds() != (Rect{50, 50, 100, 100}) {
		t.Fatalf("intersect bounds = %v", a.Bounds())
	}
}

// Scenario 1 from spec §8: overlap clip between two opaque siblings.
func TestOverlapClipScenario(t *testing.T) {
	var aVisible Region
	aVisible.Include(Rect{0, 0, 400, 300})
	aVisible.Exclude(Rect{200, 150, 600, 450}) // B occludes A

	var expected Region
	expected.Include(Rect{0, 0, 400, 150})
	expected.Include(Rect{0, 150, 200, 300})

	if !aVisible.Equal(expected) {
		t.Fatalf("A.visible_reg = %v, want pixel-equal to %v", aVisible.Rects(), expected.Rects())
	}
}

func TestClipLineAxisAligned(t *testing.T) {
	clip := Rect{0, 0, 100, 100}
	p0, p1 := Point{-10, 50}, Point{200, 50}
	ok := ClipLine(clip, &p0, &p1)
	if !ok {
		t.Fatal("expected line to survive clip")
	}
	if p0 != (Point{0, 50}) || p1 != (Point{99, 50}) {
		t.Fatalf("clipped to %v-%v", p0, p1)
	}
}

func TestClipLineFullyOutside(t *testing.T) {
	clip := Rect{0, 0, 100, 100}
	p0, p1 := Point{200, 200}, Point{300, 300}
	if ClipLine(clip, &p0, &p1) {
		t.Fatal("expected line fully outside clip to be rejected")
	}
}

func TestClipLineDiagonalMonotone(t *testing.T) {
	clip := Rect{10, 10, 90, 90}
	p0, p1 := Point{0, 0}, Point{100, 100}
	if !ClipLine(clip, &p0, &p1) {
		t.Fatal("expected diagonal to survive")
	}
	if p0.X > p1.X || p0.Y > p1.Y {
		t.Fatalf("not monotone: %v -> %v", p0, p1)
	}
	if p0 != (Point{10, 10}) || p1 != (Point{89, 89}) {
		t.Fatalf("clipped to %v-%v", p0, p1)
	}
}
