package display

import (
	"testing"

	"github.com/kavionic/padosd/internal/geom"
)

func TestFillRectClipped(t *testing.T) {
	drv := NewDriver(10, 10)
	bmp := NewServerBitmap(10, 10, geom.RGB32, drv)
	drv.FillRect(bmp, geom.Rect{Left: -5, Top: -5, Right: 5, Bottom: 5}, geom.Color{R: 255, A: 255})
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			c := decodeColor(bmp.ColorSpace, bmp.readPixel(x, y))
			if c.R != 255 {
				t.Fatalf("pixel (%d,%d) not filled: %v", x, y, c)
			}
		}
	}
	c := decodeColor(bmp.ColorSpace, bmp.readPixel(9, 9))
	if c.R != 0 {
		t.Fatalf("fill leaked outside rect")
	}
}

func TestFillRectNegativeSizeNoop(t *testing.T) {
	drv := NewDriver(10, 10)
	bmp := NewServerBitmap(10, 10, geom.RGB32, drv)
	drv.FillRect(bmp, geom.Rect{Left: 5, Top: 5, Right: 2, Bottom: 2}, geom.Color{R: 255, A: 255})
	for i := range bmp.Raster {
		if bmp.Raster[i] != 0 {
			t.Fatalf("expected no-op fill, raster mutated at %d", i)
		}
	}
}

func TestCopyRectSelfOverlapDownRight(t *testing.T) {
	drv := NewDriver(20, 20)
	bmp := NewServerBitmap(20, 20, geom.RGB32, drv)
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			bmp.writeRawPixel(x, y, uint32((y*10+x)<<8|0xFF))
		}
	}
	pre := make([]byte, len(bmp.Raster))
	copy(pre, bmp.Raster)

	drv.CopyRect(bmp, bmp, geom.Rect{Left: 0, Top: 0, Right: 10, Bottom: 10}, geom.Point{X: 5, Y: 5}, ModeCopy)

	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			srcOff := y*bmp.BytesPerLine + x*4
			want := pre[srcOff : srcOff+4]
			dstOff := (y+5)*bmp.BytesPerLine + (x+5)*4
			got := bmp.Raster[dstOff : dstOff+4]
			for i := range want {
				if want[i] != got[i] {
					t.Fatalf("self-copy corrupted at (%d,%d): want %v got %v", x, y, want, got)
				}
			}
		}
	}
}

func TestCopyRectOverlaySkipsTransparent(t *testing.T) {
	drv := NewDriver(4, 1)
	src := NewServerBitmap(4, 1, geom.RGB32, drv)
	dst := NewServerBitmap(4, 1, geom.RGB32, drv)
	src.writeRawPixel(0, 0, geom.TransparentRGB32)
	src.writeRawPixel(1, 0, geom.Color{R: 10, A: 255}.RGBA32())
	dst.writeRawPixel(0, 0, geom.Color{G: 200, A: 255}.RGBA32())

	drv.CopyRect(dst, src, geom.Rect{Left: 0, Top: 0, Right: 2, Bottom: 1}, geom.Point{}, ModeOverlay)

	c0 := decodeColor(dst.ColorSpace, dst.readPixel(0, 0))
	if c0.G != 200 {
		t.Fatalf("transparent source pixel should not overwrite dst, got %v", c0)
	}
	c1 := decodeColor(dst.ColorSpace, dst.readPixel(1, 0))
	if c1.R != 10 {
		t.Fatalf("opaque source pixel should overwrite dst, got %v", c1)
	}
}

func TestDrawLineNoWriteOutsideClip(t *testing.T) {
	drv := NewDriver(20, 20)
	bmp := NewServerBitmap(20, 20, geom.RGB32, drv)
	clip := geom.Rect{Left: 5, Top: 5, Right: 15, Bottom: 15}
	drv.DrawLine(bmp, clip, geom.Point{X: 0, Y: 0}, geom.Point{X: 19, Y: 19}, geom.Color{R: 255, A: 255}, ModeCopy)
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			if !clip.Contains(geom.Point{X: x, Y: y}) {
				c := decodeColor(bmp.ColorSpace, bmp.readPixel(x, y))
				if c.R != 0 {
					t.Fatalf("line wrote outside clip at (%d,%d)", x, y)
				}
			}
		}
	}
}

func TestFontTextWidthSpacing(t *testing.T) {
	f := FontByID(0)
	w1 := f.TextWidth("A")
	w2 := f.TextWidth("AA")
	if w2 <= w1 {
		t.Fatalf("expected two glyphs wider than one: %d vs %d", w1, w2)
	}
}
