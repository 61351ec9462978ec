//go:build ebitensink

package display

import (
	"image"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
)

// EbitenSink presents a screen ServerBitmap through ebiten, grounded on
// the teacher's video_backend_ebiten.go (which does the same job for
// VideoChip/VideoVGA frames). Build-tagged so headless FAT-only builds
// and CI never need a GPU-capable ebiten runtime.
type EbitenSink struct {
	img *ebiten.Image
}

func NewEbitenSink(width, height int) *EbitenSink {
	return &EbitenSink{img: ebiten.NewImage(width, height)}
}

// Update copies bmp's raster into the backing ebiten.Image, converting
// to straight RGBA as ebiten expects.
func (s *EbitenSink) Update(bmp *ServerBitmap) {
	rgba := image.NewRGBA(image.Rect(0, 0, bmp.Width, bmp.Height))
	for y := 0; y < bmp.Height; y++ {
		for x := 0; x < bmp.Width; x++ {
			c := decodeColor(bmp.ColorSpace, bmp.readPixel(x, y))
			rgba.Set(x, y, color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A})
		}
	}
	s.img.WritePixels(rgba.Pix)
}

// Image returns the current backing image for an ebiten.Game's Draw.
func (s *EbitenSink) Image() *ebiten.Image { return s.img }
