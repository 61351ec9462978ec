// Package compositor implements the server view tree, app-server looper,
// and client protocol framing of spec §4.3 and §4.4: the core state
// machine of the PadOS application server graphics compositor.
package compositor

import (
	"github.com/kavionic/padosd/internal/display"
	"github.com/kavionic/padosd/internal/geom"
	"github.com/kavionic/padosd/internal/port"
)

// ViewFlags is the bitset of per-view behavior flags (spec §3.1).
type ViewFlags uint32

const (
	FlagTransparent ViewFlags = 1 << iota
	FlagDrawOnChildren
	FlagFullUpdateOnResizeH
	FlagFullUpdateOnResizeV
	FlagIgnoreMouse
)

func (f ViewFlags) has(bit ViewFlags) bool { return f&bit != 0 }

// KeyboardFocusMode selects how a view participates in keyboard focus.
type KeyboardFocusMode int

const (
	FocusKeyboardNone KeyboardFocusMode = iota
	FocusKeyboardAccepts
)

// ServerView is the central entity of the compositor: a node in the
// hierarchical view tree with frame, scroll, flags, focus, and the
// region caches that drive clipped rendering (spec §3.1).
type ServerView struct {
	Name         string
	Frame        geom.Rect
	ScrollOffset geom.Point
	Flags        ViewFlags
	HideCount    int

	EraseColor        geom.Color
	BgColor           geom.Color
	FgColor           geom.Color
	DrawingMode       display.DrawingMode
	FontID            int
	PenPosition       geom.Point
	PenWidth          int
	FocusKeyboardMode KeyboardFocusMode

	Parent   *ServerView
	Children []*ServerView

	ClientPort    *port.Port
	ClientHandle  int32
	ManagerPort   *port.Port // optional window-manager proxy, spec §3.1
	ManagerHandle int32      // 0 means no window-manager binding

	// Region caches. A nil pointer means "absent" per spec §3.1.
	visibleReg        *geom.Region
	fullReg           *geom.Region
	prevVisibleReg    *geom.Region
	prevFullReg       *geom.Region
	drawReg           *geom.Region
	damageReg         *geom.Region
	activeDamageReg   *geom.Region
	drawConstrainReg  *geom.Region
	shapeConstrainReg *geom.Region

	deltaMove geom.Point
	deltaSize geom.Point

	hasInvalidRegs bool
	isUpdating     bool

	ScreenPos geom.Point

	// lowestInvalid, when non-nil, is the first descendant marked as
	// needing a rebuild since the last pass; rebuildSubtree only checks it
	// against nil to decide whether to descend. Restoring this optimization
	// is permitted by spec §9 ("implementations may restore the
	// optimization").
	lowestInvalid *ServerView
}

// NewServerView creates a detached view with the given name and frame.
// New views start visible (HideCount == 0) with all region caches absent
// and has_invalid_regs set, matching a freshly created, not-yet-laid-out
// view.
func NewServerView(name string, frame geom.Rect) *ServerView {
	return &ServerView{
		Name:           name,
		Frame:          frame,
		DrawingMode:    display.ModeCopy,
		hasInvalidRegs: true,
	}
}

// IsVisible reports whether the view may currently be painted (spec
// §3.1: visible iff hide_count == 0). It does not consider ancestors.
func (v *ServerView) IsVisible() bool { return v.HideCount == 0 }

func markInvalid(v *ServerView) {
	v.hasInvalidRegs = true
	for p := v.Parent; p != nil; p = p.Parent {
		if p.lowestInvalid == nil {
			p.lowestInvalid = v
		}
	}
}

// opaqueAncestor walks up from v to the nearest view without
// FlagTransparent (an "opaque view" per the glossary), or the root if
// none is found. Mutations mark this view dirty, per the invalidation
// table in spec §4.3.1.
func opaqueAncestor(v *ServerView) *ServerView {
	cur := v
	for cur.Parent != nil && cur.Flags.has(FlagTransparent) {
		cur = cur.Parent
	}
	return cur
}

func invalidateFromMutation(v *ServerView) {
	markInvalid(v)
	if v.Parent != nil {
		markInvalid(opaqueAncestor(v.Parent))
	}
}

// AddChild appends child to v's children (becoming the new topmost
// sibling) and marks the nearest opaque ancestor over the child's frame
// dirty (spec §4.3.1).
func (v *ServerView) AddChild(child *ServerView) {
	child.Parent = v
	v.Children = append(v.Children, child)
	invalidateFromMutation(child)
}

// RemoveChild detaches child from v, marking the same region dirty that
// AddChild would have.
func (v *ServerView) RemoveChild(child *ServerView) {
	for i, c := range v.Children {
		if c == child {
			v.Children = append(v.Children[:i], v.Children[i+1:]...)
			break
		}
	}
	invalidateFromMutation(child)
	child.Parent = nil
}

// SetFrame moves/resizes v, recording delta_move/delta_size and
// invalidating the nearest opaque ancestor over the union of the old and
// new frame (spec §4.3.1).
func (v *ServerView) SetFrame(newFrame geom.Rect) {
	old := v.Frame
	v.deltaMove = v.deltaMove.Add(geom.Point{X: newFrame.Left - old.Left, Y: newFrame.Top - old.Top})
	v.deltaSize = v.deltaSize.Add(geom.Point{
		X: newFrame.Width() - old.Width(),
		Y: newFrame.Height() - old.Height(),
	})
	v.Frame = newFrame
	invalidateFromMutation(v)
}

// SetShapeConstrainRegion installs a clip shape for v in its own local
// coordinates, or clears it when shape is nil.
func (v *ServerView) SetShapeConstrainRegion(shape *geom.Region) {
	v.shapeConstrainReg = shape
	invalidateFromMutation(v)
}

// SetDrawConstrainRegion installs a user draw-region clip.
func (v *ServerView) SetDrawConstrainRegion(draw *geom.Region) {
	v.drawConstrainReg = draw
}

// Show decrements hide_count; once it reaches 0 the view (and,
// recursively, any descendant whose own hide_count also reaches 0)
// becomes visible again. Hide increments it. Both invalidate the nearest
// opaque ancestor over the view's frame (spec §4.3.1).
func (v *ServerView) Show() {
	v.HideCount--
	v.propagateHideDelta(-1)
	invalidateFromMutation(v)
}

func (v *ServerView) Hide() {
	v.HideCount++
	v.propagateHideDelta(1)
	invalidateFromMutation(v)
}

func (v *ServerView) propagateHideDelta(delta int) {
	if v.HideCount > 0 {
		v.clearRegionCaches()
	}
	for _, c := range v.Children {
		c.HideCount += delta
		c.propagateHideDelta(delta)
	}
}

func (v *ServerView) clearRegionCaches() {
	v.visibleReg = nil
	v.fullReg = nil
	v.prevVisibleReg = nil
	v.prevFullReg = nil
	v.drawReg = nil
}

// Invalidate marks local_rect (translated by scroll_offset) as needing
// repaint, promoted to the nearest opaque ancestor's damage accounting
// (spec §4.3.1).
func (v *ServerView) Invalidate(localRect geom.Rect) {
	rect := localRect.Translate(v.ScrollOffset)
	if v.damageReg == nil {
		v.damageReg = &geom.Region{}
	}
	v.damageReg.Include(rect)
	markInvalid(opaqueAncestor(v))
}

// ScrollBy shifts the view's content by delta, recording it for the
// move-blit pass and marking region caches dirty on self and descendants.
func (v *ServerView) ScrollBy(delta geom.Point) {
	v.ScrollOffset = v.ScrollOffset.Add(delta)
	v.deltaMove = v.deltaMove.Add(delta)
	invalidateFromMutation(v)
	var markDescendants func(*ServerView)
	markDescendants = func(n *ServerView) {
		n.hasInvalidRegs = true
		for _, c := range n.Children {
			markDescendants(c)
		}
	}
	for _, c := range v.Children {
		markDescendants(c)
	}
}

// SetDrawingMode, colors, font and pen position do not change regions.
func (v *ServerView) SetDrawingModeValue(m display.DrawingMode) { v.DrawingMode = m }
func (v *ServerView) SetFgColor(c geom.Color)                   { v.FgColor = c }
func (v *ServerView) SetBgColor(c geom.Color)                   { v.BgColor = c }
func (v *ServerView) SetEraseColor(c geom.Color)                { v.EraseColor = c }
func (v *ServerView) SetFontID(id int)                          { v.FontID = id }
func (v *ServerView) MovePenTo(p geom.Point)                    { v.PenPosition = p }
func (v *ServerView) SetPenWidth(w int)                         { v.PenWidth = w }

// SetFocusKeyboardMode sets whether v participates in keyboard focus
// (spec §6.2's VIEW_SET_FOCUS_KEYBOARD_MODE). The mode is only stored on
// v; nothing is forwarded to the window-manager binding.
func (v *ServerView) SetFocusKeyboardMode(m KeyboardFocusMode) { v.FocusKeyboardMode = m }

// ToggleDepth moves v to the top or bottom of its parent's sibling
// order and marks the nearest opaque ancestor dirty (spec §4.3.1).
func (v *ServerView) ToggleDepth() {
	p := v.Parent
	if p == nil {
		return
	}
	idx := -1
	for i, c := range p.Children {
		if c == v {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	p.Children = append(p.Children[:idx], p.Children[idx+1:]...)
	if idx == len(p.Children) {
		// v was topmost; send it to the bottom.
		p.Children = append([]*ServerView{v}, p.Children...)
	} else {
		p.Children = append(p.Children, v)
	}
	invalidateFromMutation(v)
}
