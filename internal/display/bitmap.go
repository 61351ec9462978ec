// Package display implements the pixel-format conversion and clipped
// rasterization primitives of spec §4.2, operating on any ServerBitmap
// (§3.1).
package display

import "github.com/kavionic/padosd/internal/geom"

// ServerBitmap is a raster buffer bound to a color space and a Driver
// for rendering. The screen bitmap is owned by the app server; user
// bitmaps are owned by the ServerApplication that created them.
type ServerBitmap struct {
	Width, Height int
	ColorSpace    geom.ColorSpace
	BytesPerLine  int
	Raster        []byte
	Driver        *Driver
}

// NewServerBitmap allocates a zeroed raster of the given size and color
// space, bound to drv.
func NewServerBitmap(width, height int, cs geom.ColorSpace, drv *Driver) *ServerBitmap {
	bpp := geom.BytesPerPixel(cs)
	bpl := width * bpp
	return &ServerBitmap{
		Width:        width,
		Height:       height,
		ColorSpace:   cs,
		BytesPerLine: bpl,
		Raster:       make([]byte, bpl*height),
		Driver:       drv,
	}
}

// Bounds returns the bitmap's full-frame rectangle at the origin.
func (b *ServerBitmap) Bounds() geom.Rect {
	return geom.Rect{Left: 0, Top: 0, Right: b.Width, Bottom: b.Height}
}

// rasOffset returns the byte offset of pixel (x,y), matching the
// RAS_OFFSET{8,16,32} macros re-expressed as safe slice indexing (spec §9).
func (b *ServerBitmap) rasOffset(x, y int) int {
	return y*b.BytesPerLine + x*geom.BytesPerPixel(b.ColorSpace)
}

// inBounds reports whether (x,y) addresses a real pixel.
func (b *ServerBitmap) inBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.Width && y < b.Height
}

// readPixel returns the raw pixel value at (x,y) as a uint32, regardless
// of color space width.
func (b *ServerBitmap) readPixel(x, y int) uint32 {
	off := b.rasOffset(x, y)
	switch b.ColorSpace {
	case geom.CMAP8:
		return uint32(b.Raster[off])
	case geom.RGB15, geom.RGB16:
		return uint32(b.Raster[off]) | uint32(b.Raster[off+1])<<8
	case geom.RGB24:
		return uint32(b.Raster[off]) | uint32(b.Raster[off+1])<<8 | uint32(b.Raster[off+2])<<16
	case geom.RGB32:
		return uint32(b.Raster[off]) | uint32(b.Raster[off+1])<<8 | uint32(b.Raster[off+2])<<16 | uint32(b.Raster[off+3])<<24
	default:
		return 0
	}
}

// writeRawPixel stores a raw pixel value already encoded for the
// bitmap's color space.
func (b *ServerBitmap) writeRawPixel(x, y int, v uint32) {
	off := b.rasOffset(x, y)
	switch b.ColorSpace {
	case geom.CMAP8:
		b.Raster[off] = byte(v)
	case geom.RGB15, geom.RGB16:
		b.Raster[off] = byte(v)
		b.Raster[off+1] = byte(v >> 8)
	case geom.RGB24:
		b.Raster[off] = byte(v)
		b.Raster[off+1] = byte(v >> 8)
		b.Raster[off+2] = byte(v >> 16)
	case geom.RGB32:
		b.Raster[off] = byte(v)
		b.Raster[off+1] = byte(v >> 8)
		b.Raster[off+2] = byte(v >> 16)
		b.Raster[off+3] = byte(v >> 24)
	}
}

// encodeColor converts a Color into the raw pixel representation for cs.
func encodeColor(cs geom.ColorSpace, c geom.Color) uint32 {
	switch cs {
	case geom.CMAP8:
		return uint32(nearestCMAP8(c))
	case geom.RGB15:
		return uint32(c.To15())
	case geom.RGB16:
		return uint32(c.To16())
	case geom.RGB24:
		b := c.To24()
		return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
	case geom.RGB32:
		return c.RGBA32()
	default:
		return 0
	}
}

// decodeColor converts a raw pixel value in color space cs back to a Color.
func decodeColor(cs geom.ColorSpace, v uint32) geom.Color {
	switch cs {
	case geom.CMAP8:
		return cmap8Palette[byte(v)]
	case geom.RGB15:
		return geom.Color15(uint16(v))
	case geom.RGB16:
		return geom.Color16(uint16(v))
	case geom.RGB24:
		return geom.Color24([3]byte{byte(v), byte(v >> 8), byte(v >> 16)})
	case geom.RGB32:
		return geom.ColorFromRGBA32(v)
	default:
		return geom.Color{}
	}
}
