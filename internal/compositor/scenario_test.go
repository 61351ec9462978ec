package compositor

import (
	"io"
	"testing"

	"github.com/kavionic/padosd/internal/display"
	"github.com/kavionic/padosd/internal/geom"
	"github.com/kavionic/padosd/internal/logx"
	"github.com/kavionic/padosd/internal/port"
)

// TestRebuildAllOverlapClip exercises spec §8 scenario 1: two opaque
// siblings, the later-added one topmost, each clip carved out of the
// other's frame. Expected regions are given in each view's own frame
// space (its full_reg/visible_reg are normalized to its own top-left per
// §4.3.2 step 2), so the siblings' declared frames are translated back
// to local coordinates before comparing.
func TestRebuildAllOverlapClip(t *testing.T) {
	root := NewServerView("root", geom.Rect{Left: 0, Top: 0, Right: 800, Bottom: 600})
	a := NewServerView("a", geom.Rect{Left: 0, Top: 0, Right: 400, Bottom: 300})
	b := NewServerView("b", geom.Rect{Left: 200, Top: 150, Right: 600, Bottom: 450})
	root.AddChild(a)
	root.AddChild(b) // added after a: topmost, occludes a

	RebuildAll(root)

	tests := []struct {
		name string
		v    *ServerView
		want geom.Region
	}{
		{
			name: "a is clipped by topmost b",
			v:    a,
			want: func() geom.Region {
				var r geom.Region
				r.Include(geom.Rect{Left: 0, Top: 0, Right: 400, Bottom: 150})
				r.Include(geom.Rect{Left: 0, Top: 150, Right: 200, Bottom: 300})
				return r
			}(),
		},
		{
			name: "b is topmost and fully visible",
			v:    b,
			want: geom.NewRegion(geom.Rect{Left: 0, Top: 0, Right: 400, Bottom: 300}),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.v.visibleReg == nil {
				t.Fatalf("visible_reg is nil")
			}
			if !tc.v.visibleReg.Equal(tc.want) {
				t.Fatalf("visible_reg = %v, want %v", tc.v.visibleReg.Rects(), tc.want.Rects())
			}
		})
	}
}

// TestScrollRevealsBand exercises spec §8 scenario 2: scrolling a view
// whose content has no ancestor-relative movement still needs the band
// the scroll newly exposes invalidated, even though full_reg/visible_reg
// themselves are unchanged by the view's own scroll_offset.
func TestScrollRevealsBand(t *testing.T) {
	drv := display.NewDriver(100, 100)
	screen := display.NewServerBitmap(100, 100, geom.RGB32, drv)

	v := NewServerView("v", geom.Rect{Left: 0, Top: 0, Right: 100, Bottom: 100})
	RebuildAll(v) // establish the baseline full_reg/prev_full_reg pair

	v.ScrollBy(geom.Point{X: 0, Y: 10})
	RebuildAll(v)
	ApplyScrollBlits(v, drv, screen)

	if v.damageReg == nil {
		t.Fatalf("expected damage_reg to hold the revealed band")
	}
	want := geom.NewRegion(geom.Rect{Left: 0, Top: 0, Right: 100, Bottom: 10})
	if !v.damageReg.Equal(want) {
		t.Fatalf("damage_reg = %v, want %v", v.damageReg.Rects(), want.Rects())
	}
}

// TestTouchCoalescing exercises spec §8 scenario 3: a DOWN followed by
// three consecutive MOVEs coalesces to one DOWN and one MOVE, and the
// dispatch that follows delivers exactly those two messages.
func TestTouchCoalescing(t *testing.T) {
	s := NewAppServer(200, 200, geom.RGB32, logx.New(io.Discard, logx.Critical))

	target := NewServerView("target", geom.Rect{Left: 0, Top: 0, Right: 200, Bottom: 200})
	target.ClientPort = port.New(4)
	target.ClientHandle = 1
	s.Root.AddChild(target)

	s.EnqueueEvent(Event{Kind: EventMouseDown, DeviceID: 0, Pos: geom.Point{X: 10, Y: 10}})
	s.EnqueueEvent(Event{Kind: EventMouseMove, DeviceID: 0, Pos: geom.Point{X: 11, Y: 11}})
	s.EnqueueEvent(Event{Kind: EventMouseMove, DeviceID: 0, Pos: geom.Point{X: 12, Y: 12}})
	s.EnqueueEvent(Event{Kind: EventMouseMove, DeviceID: 0, Pos: geom.Point{X: 13, Y: 13}})

	if len(s.queue) != 2 {
		t.Fatalf("queue after enqueue = %d entries, want 2", len(s.queue))
	}
	if s.queue[0].Kind != EventMouseDown || s.queue[0].Pos != (geom.Point{X: 10, Y: 10}) {
		t.Fatalf("queue[0] = %+v, want DOWN@(10,10)", s.queue[0])
	}
	if s.queue[1].Kind != EventMouseMove || s.queue[1].Pos != (geom.Point{X: 13, Y: 13}) {
		t.Fatalf("queue[1] = %+v, want MOVE@(13,13)", s.queue[1])
	}

	s.DrainEvents()

	down, err := target.ClientPort.Receive()
	if err != nil {
		t.Fatalf("receive down: %v", err)
	}
	if down.Code != CodeHandleMouseDown {
		t.Fatalf("first message code = %d, want CodeHandleMouseDown", down.Code)
	}

	move, err := target.ClientPort.Receive()
	if err != nil {
		t.Fatalf("receive move: %v", err)
	}
	if move.Code != CodeHandleMouseMove {
		t.Fatalf("second message code = %d, want CodeHandleMouseMove", move.Code)
	}

	target.ClientPort.Close()
	if _, err := target.ClientPort.Receive(); err != port.ErrClosed {
		t.Fatalf("expected exactly two messages, got a third: err=%v", err)
	}
}
