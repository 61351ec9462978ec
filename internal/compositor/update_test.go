package compositor

import (
	"testing"

	"github.com/kavionic/padosd/internal/display"
	"github.com/kavionic/padosd/internal/geom"
)

func TestGetRegionNilWithoutVisibleReg(t *testing.T) {
	v := NewServerView("a", geom.Rect{Left: 0, Top: 0, Right: 10, Bottom: 10})
	if v.GetRegion() != nil {
		t.Fatalf("expected nil region before any rebuild")
	}
}

func TestGetRegionIntersectsDrawConstrain(t *testing.T) {
	v := NewServerView("a", geom.Rect{Left: 0, Top: 0, Right: 100, Bottom: 100})
	vis := geom.NewRegion(geom.Rect{Left: 0, Top: 0, Right: 100, Bottom: 100})
	v.visibleReg = &vis
	draw := geom.NewRegion(geom.Rect{Left: 10, Top: 10, Right: 20, Bottom: 20})
	v.SetDrawConstrainRegion(&draw)

	reg := v.GetRegion()
	if reg == nil {
		t.Fatalf("expected non-nil region")
	}
	want := geom.NewRegion(geom.Rect{Left: 10, Top: 10, Right: 20, Bottom: 20})
	if !reg.Equal(want) {
		t.Fatalf("GetRegion = %v, want %v", reg.Rects(), want.Rects())
	}
}

func TestGetRegionDuringUpdateNarrowsToActiveDamage(t *testing.T) {
	v := NewServerView("a", geom.Rect{Left: 0, Top: 0, Right: 100, Bottom: 100})
	vis := geom.NewRegion(geom.Rect{Left: 0, Top: 0, Right: 100, Bottom: 100})
	v.visibleReg = &vis

	if v.GetRegion() == nil {
		t.Fatalf("expected a region before update starts")
	}

	v.BeginUpdate()
	if reg := v.GetRegion(); reg != nil {
		t.Fatalf("expected nil region mid-update with no active damage, got %v", reg.Rects())
	}

	active := geom.NewRegion(geom.Rect{Left: 5, Top: 5, Right: 15, Bottom: 15})
	v.activeDamageReg = &active
	reg := v.GetRegion()
	if reg == nil || !reg.Equal(active) {
		t.Fatalf("GetRegion mid-update = %v, want %v", reg, active.Rects())
	}

	v.EndUpdate()
	if v.activeDamageReg != nil {
		t.Fatalf("EndUpdate should clear active_damage_reg")
	}
	if v.GetRegion() == nil {
		t.Fatalf("expected visible_reg again after EndUpdate")
	}
}

func TestFillRectClipsToVisibleRegion(t *testing.T) {
	drv := display.NewDriver(20, 20)
	screen := display.NewServerBitmap(20, 20, geom.RGB32, drv)

	v := NewServerView("a", geom.Rect{Left: 0, Top: 0, Right: 20, Bottom: 20})
	v.ScreenPos = geom.Point{}
	vis := geom.NewRegion(geom.Rect{Left: 0, Top: 0, Right: 10, Bottom: 20})
	v.visibleReg = &vis

	v.FillRect(drv, screen, geom.Rect{Left: 0, Top: 0, Right: 20, Bottom: 20}, geom.Color{R: 255, A: 255})

	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			want := uint8(0)
			if x < 10 {
				want = 255
			}
			off := y*screen.BytesPerLine + x*4
			if got := screen.Raster[off+3]; got != want {
				t.Fatalf("pixel (%d,%d): want R=%d got R=%d", x, y, want, got)
			}
		}
	}
}

func TestFillRectSilentlyDroppedWithoutRegion(t *testing.T) {
	drv := display.NewDriver(10, 10)
	screen := display.NewServerBitmap(10, 10, geom.RGB32, drv)
	v := NewServerView("a", geom.Rect{Left: 0, Top: 0, Right: 10, Bottom: 10})
	v.FillRect(drv, screen, geom.Rect{Left: 0, Top: 0, Right: 10, Bottom: 10}, geom.Color{R: 255, A: 255})
	for _, b := range screen.Raster {
		if b != 0 {
			t.Fatalf("expected no paint without a resolved clip region")
		}
	}
}

func TestCopyRectExcludesPaintedAreaFromDamage(t *testing.T) {
	drv := display.NewDriver(20, 20)
	screen := display.NewServerBitmap(20, 20, geom.RGB32, drv)

	v := NewServerView("a", geom.Rect{Left: 0, Top: 0, Right: 20, Bottom: 20})
	vis := geom.NewRegion(geom.Rect{Left: 0, Top: 0, Right: 20, Bottom: 20})
	v.visibleReg = &vis
	damage := geom.NewRegion(geom.Rect{Left: 0, Top: 0, Right: 10, Bottom: 10})
	v.damageReg = &damage

	v.CopyRect(drv, screen, screen, geom.Rect{Left: 10, Top: 10, Right: 20, Bottom: 20}, geom.Point{X: 0, Y: 0}, display.ModeCopy)

	if v.damageReg != nil && !v.damageReg.IsEmpty() {
		t.Fatalf("expected destination area cleared from damage_reg, got %v", v.damageReg.Rects())
	}
}

func TestCopyRectMovesPendingDamageWithSource(t *testing.T) {
	drv := display.NewDriver(20, 20)
	screen := display.NewServerBitmap(20, 20, geom.RGB32, drv)

	v := NewServerView("a", geom.Rect{Left: 0, Top: 0, Right: 20, Bottom: 20})
	vis := geom.NewRegion(geom.Rect{Left: 0, Top: 0, Right: 20, Bottom: 20})
	v.visibleReg = &vis
	damage := geom.NewRegion(geom.Rect{Left: 2, Top: 2, Right: 4, Bottom: 4})
	v.damageReg = &damage

	v.CopyRect(drv, screen, screen, geom.Rect{Left: 0, Top: 0, Right: 10, Bottom: 10}, geom.Point{X: 5, Y: 5}, display.ModeCopy)

	want := geom.NewRegion(geom.Rect{Left: 7, Top: 7, Right: 9, Bottom: 9})
	if !v.damageReg.Equal(want) {
		t.Fatalf("damage_reg = %v, want it shifted to %v", v.damageReg.Rects(), want.Rects())
	}
}
