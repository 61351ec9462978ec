package display

import "github.com/kavionic/padosd/internal/geom"

// cmap8Palette is a fixed 256-entry RGB palette for CMAP8 surfaces: a
// 6x6x6 color cube (indices 0-215) plus a 16-step grayscale ramp
// (indices 216-231), with index 255 reserved as the format's transparent
// sentinel (spec §4.2).
var cmap8Palette = buildCMAP8Palette()

func buildCMAP8Palette() [256]geom.Color {
	var pal [256]geom.Color
	levels := [6]uint8{0, 51, 102, 153, 204, 255}
	i := 0
	for r := 0; r < 6; r++ {
		for g := 0; g < 6; g++ {
			for b := 0; b < 6; b++ {
				pal[i] = geom.Color{R: levels[r], G: levels[g], B: levels[b], A: 0xFF}
				i++
			}
		}
	}
	for s := 0; s < 16 && i < 255; s++ {
		v := uint8(s * 17)
		pal[i] = geom.Color{R: v, G: v, B: v, A: 0xFF}
		i++
	}
	pal[geom.TransparentCMAP8] = geom.Color{}
	return pal
}

// nearestCMAP8 returns the palette index whose RGB is closest to c under
// squared Euclidean distance, never returning the reserved transparent
// index 255 for an opaque color.
func nearestCMAP8(c geom.Color) byte {
	best := 0
	bestDist := int(^uint(0) >> 1)
	for i := 0; i < 255; i++ {
		p := cmap8Palette[i]
		dr := int(p.R) - int(c.R)
		dg := int(p.G) - int(c.G)
		db := int(p.B) - int(c.B)
		d := dr*dr + dg*dg + db*db
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return byte(best)
}
