package display

import (
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/kavionic/padosd/internal/geom"
)

// fixedPoint converts a top-left screen point (pos.Y is the glyph's top)
// into the baseline fixed.Point26_6 dot font.Face.Glyph expects, anchored at
// the font's ascent so text draws downward from pos like the rest of the
// primitive API.
func fixedPoint(pos geom.Point, f *Font) fixed.Point26_6 {
	ascent := f.Face.Metrics().Ascent
	return fixed.Point26_6{
		X: fixed.I(pos.X),
		Y: fixed.I(pos.Y) + ascent,
	}
}

// CharacterSpacing is added between glyphs but never after the last one
// (spec §4.2).
const CharacterSpacing = 1

// Font wraps a golang.org/x/image/font.Face, the same font package family
// the teacher's ebiten video backend pulls in for glyph rendering
// (SPEC_FULL.md domain stack).
type Font struct {
	Face font.Face
	id   int
}

var fonts = map[int]*Font{
	0: {Face: basicfont.Face7x13, id: 0},
}

// FontByID resolves a registered font handle, defaulting to the builtin
// 7x13 face when id is unknown.
func FontByID(id int) *Font {
	if f, ok := fonts[id]; ok {
		return f
	}
	return fonts[0]
}

// Height returns the font's line height in pixels.
func (f *Font) Height() int {
	m := f.Face.Metrics()
	return (m.Height).Ceil()
}

// TextWidth returns the pixel width of s rendered in f, including
// CharacterSpacing between glyphs but not after the last glyph.
func (f *Font) TextWidth(s string) int {
	width := 0
	runes := []rune(s)
	for i, r := range runes {
		adv, ok := f.Face.GlyphAdvance(r)
		if !ok {
			continue
		}
		width += adv.Ceil()
		if i != len(runes)-1 {
			width += CharacterSpacing
		}
	}
	return width
}

// WriteString draws up to length runes of text at pos, clipped to clip,
// using fg for glyph pixels; bg is currently unused by the bitmap-font
// renderer (no background fill per glyph) but kept for protocol parity
// with spec §6.2's DRAW_STRING payload. Returns the total advance.
func (d *Driver) WriteString(b *ServerBitmap, pos geom.Point, text string, length int, clip geom.Rect, bg, fg geom.Color, fontID int) int {
	f := FontByID(fontID)
	runes := []rune(text)
	if length >= 0 && length < len(runes) {
		runes = runes[:length]
	}
	advance := 0
	x := pos.X
	for i, r := range runes {
		d.drawGlyph(b, f, geom.Point{X: x, Y: pos.Y}, r, clip, fg)
		adv, ok := f.Face.GlyphAdvance(r)
		step := 0
		if ok {
			step = adv.Ceil()
		}
		x += step
		advance += step
		if i != len(runes)-1 {
			x += CharacterSpacing
			advance += CharacterSpacing
		}
	}
	return advance
}

func (d *Driver) drawGlyph(b *ServerBitmap, f *Font, pos geom.Point, r rune, clip geom.Rect, fg geom.Color) {
	dr, mask, maskp, _, ok := f.Face.Glyph(fixedPoint(pos, f), r)
	if !ok {
		return
	}
	area := geom.Rect{Left: dr.Min.X, Top: dr.Min.Y, Right: dr.Max.X, Bottom: dr.Max.Y}
	area = area.Intersect(clip).Intersect(b.Bounds())
	if area.IsEmpty() {
		return
	}
	for y := area.Top; y < area.Bottom; y++ {
		for x := area.Left; x < area.Right; x++ {
			_, _, _, a := mask.At(maskp.X+(x-dr.Min.X), maskp.Y+(y-dr.Min.Y)).RGBA()
			if a == 0 {
				continue
			}
			d.WritePixel(b, geom.Point{X: x, Y: y}, fg)
		}
	}
}
