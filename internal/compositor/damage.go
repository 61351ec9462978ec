package compositor

import (
	"github.com/kavionic/padosd/internal/display"
	"github.com/kavionic/padosd/internal/geom"
	"github.com/kavionic/padosd/internal/logx"
	"github.com/kavionic/padosd/internal/port"
)

// ExpandDamageAndPaint implements spec §4.3.4: after rebuild and blits,
// compute each view's newly-exposed damage, erase the top view's damage
// directly to the screen, then dispatch PAINT_VIEW to every view with
// damage not already mid-update.
func (s *AppServer) ExpandDamageAndPaint() {
	expandDamage(s.Root)
	s.eraseTopDamage()
	dispatchPaint(s.Root, s.Log)
}

func expandDamage(v *ServerView) {
	fullResize := (v.Flags.has(FlagFullUpdateOnResizeH) && v.deltaSize.X != 0) ||
		(v.Flags.has(FlagFullUpdateOnResizeV) && v.deltaSize.Y != 0)

	if fullResize {
		v.Invalidate(geom.Rect{Left: 0, Top: 0, Right: v.Frame.Width(), Bottom: v.Frame.Height()})
	} else if v.visibleReg != nil {
		newDamage := *v.visibleReg
		if v.prevVisibleReg != nil {
			for _, r := range v.prevVisibleReg.Rects() {
				newDamage.Exclude(r)
			}
		}
		if !newDamage.IsEmpty() {
			if v.damageReg == nil {
				v.damageReg = &geom.Region{}
			}
			v.damageReg.IncludeRegion(newDamage)
		}
	}

	v.prevVisibleReg = nil
	v.prevFullReg = nil
	v.deltaMove = geom.Point{}
	v.deltaSize = geom.Point{}

	for _, c := range v.Children {
		expandDamage(c)
	}
}

// eraseTopDamage fills visible_reg ∩ damage_reg of the root view with its
// erase_color directly into the screen bitmap (spec §4.3.4).
func (s *AppServer) eraseTopDamage() {
	v := s.Root
	if v.visibleReg == nil || v.damageReg == nil {
		return
	}
	erase := *v.visibleReg
	erase.Intersect(*v.damageReg)
	for _, r := range erase.Rects() {
		s.Driver.FillRect(s.ScreenBmp, r, v.EraseColor)
	}
}

func dispatchPaint(v *ServerView, log *logx.Logger) {
	if v.damageReg != nil && !v.damageReg.IsEmpty() && (v.activeDamageReg == nil || v.activeDamageReg.IsEmpty()) {
		active := *v.damageReg
		active.Optimize()
		v.activeDamageReg = &active
		v.damageReg = nil

		updateRect := active.Bounds().Translate(geom.Point{X: -v.ScrollOffset.X, Y: -v.ScrollOffset.Y})
		if v.ClientPort != nil {
			payload := encodeRectPayload(updateRect)
			msg := port.Message{Code: CodePaintView, TargetHandler: v.ClientHandle, Payload: payload}
			if err := v.ClientPort.Send(msg, 0); err != nil {
				log.Warnf("PAINT_VIEW send to %q failed: %v", v.Name, err)
			}
		}
	}
	for _, c := range v.Children {
		dispatchPaint(c, log)
	}
}

func encodeRectPayload(r geom.Rect) []byte {
	b := make([]byte, 16)
	putInt32 := func(off int, v int) {
		u := uint32(int32(v))
		b[off] = byte(u)
		b[off+1] = byte(u >> 8)
		b[off+2] = byte(u >> 16)
		b[off+3] = byte(u >> 24)
	}
	putInt32(0, r.Left)
	putInt32(4, r.Top)
	putInt32(8, r.Right)
	putInt32(12, r.Bottom)
	return b
}
