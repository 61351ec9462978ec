package display

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/kavionic/padosd/internal/geom"
)

// TerminalSink renders a screen ServerBitmap as ANSI 24-bit background
// blocks to a terminal, grounded on the teacher's video_terminal.go /
// video_backend_headless.go debug text-mode backend — this is the
// headless/CI-friendly path used when no GPU is available.
type TerminalSink struct {
	out      io.Writer
	fd       int
	oldState *term.State
}

// NewTerminalSink wraps fd (typically os.Stdout.Fd()) for raw output. If
// fd does not refer to a terminal, Present still writes plain ANSI
// sequences; MakeRaw simply fails silently, matching the teacher's
// best-effort terminal setup.
func NewTerminalSink(out *os.File) *TerminalSink {
	s := &TerminalSink{out: out, fd: int(out.Fd())}
	if term.IsTerminal(s.fd) {
		if st, err := term.MakeRaw(s.fd); err == nil {
			s.oldState = st
		}
	}
	return s
}

// Close restores the terminal's prior mode, if it was put into raw mode.
func (s *TerminalSink) Close() error {
	if s.oldState == nil {
		return nil
	}
	return term.Restore(s.fd, s.oldState)
}

// Present draws bmp downsampled to the terminal's current size (one
// character cell per 1x2 source pixel block, using the upper-half-block
// glyph so each cell shows two vertically stacked colors).
func (s *TerminalSink) Present(bmp *ServerBitmap) error {
	cols, rows, err := term.GetSize(s.fd)
	if err != nil || cols <= 0 || rows <= 0 {
		cols, rows = 80, 24
	}
	cellW := max(1, bmp.Width/cols)
	cellH := max(1, bmp.Height/(rows*2))

	fmt.Fprint(s.out, "\x1b[H")
	for cy := 0; cy < rows; cy++ {
		for cx := 0; cx < cols; cx++ {
			top := s.sampleBlock(bmp, cx*cellW, cy*2*cellH, cellW, cellH)
			bot := s.sampleBlock(bmp, cx*cellW, (cy*2+1)*cellH, cellW, cellH)
			fmt.Fprintf(s.out, "\x1b[38;2;%d;%d;%dm\x1b[48;2;%d;%d;%dm▀",
				top.R, top.G, top.B, bot.R, bot.G, bot.B)
		}
		fmt.Fprint(s.out, "\x1b[0m\r\n")
	}
	return nil
}

func (s *TerminalSink) sampleBlock(bmp *ServerBitmap, x0, y0, w, h int) geom.Color {
	if x0 >= bmp.Width || y0 >= bmp.Height {
		return geom.Color{}
	}
	return decodeColor(bmp.ColorSpace, bmp.readPixel(x0, y0))
}
