package compositor

import (
	"context"
	"encoding/binary"

	"github.com/kavionic/padosd/internal/display"
	"github.com/kavionic/padosd/internal/geom"
	"github.com/kavionic/padosd/internal/port"
)

// Protocol codes, spec §6.2. Payloads are the argument tuples for the
// corresponding remote signal (glossary); framing is handled by the
// port/bundle package.
const (
	// Appserver-bound: server is the receiver.
	CodeRegisterApplication int32 = 1000 + iota
	CodeMessageBundle
)

const (
	// Application-bound: the server's per-app handler receives these.
	CodeSync int32 = 2000 + iota
	CodeCreateView
	CodeDeleteView
	CodeFocusView
	CodeSetKeyboardFocus
	CodeCreateBitmap
	CodeDeleteBitmap

	CodeViewSetFrame
	CodeViewInvalidate
	CodeViewAddChild
	CodeViewToggleDepth
	CodeViewBeginUpdate
	CodeViewEndUpdate
	CodeViewShow
	CodeViewSetFocusKeyboardMode
	CodeViewSetDrawingMode
	CodeViewSetFgColor
	CodeViewSetBgColor
	CodeViewSetEraseColor
	CodeViewSetFont
	CodeViewMovePenTo
	CodeViewSetPenWidth
	CodeViewDrawLine1
	CodeViewDrawLine2
	CodeViewFillRect
	CodeViewFillCircle
	CodeViewDrawString
	CodeViewScrollBy
	CodeViewCopyRect
	CodeViewDrawBitmap
	CodeViewDrawScaledBitmap
	CodeViewDebugDraw
)

const (
	// Server -> client replies.
	CodeRegisterApplicationReply int32 = 3000 + iota
	CodeCreateViewReply
	CodeCreateBitmapReply
	CodePaintView
	CodeViewFrameChanged
	CodeViewFocusChanged
	CodeSyncReply
	CodeHandleMouseDown
	CodeHandleMouseUp
	CodeHandleMouseMove
)

const (
	// Server <-> window manager.
	CodeWindowManagerRegisterView int32 = 4000 + iota
	CodeWindowManagerUnregisterView
	CodeWindowManagerEnableVKeyboard
	CodeWindowManagerDisableVKeyboard
)

// payloadReader unpacks the little-endian argument tuples Protocol.h's
// RemoteSignal declarations describe. A short or malformed payload leaves
// subsequent reads returning the zero value rather than panicking; callers
// that need to know whether decoding actually succeeded check ok().
type payloadReader struct {
	b      []byte
	off    int
	failed bool
}

func (r *payloadReader) need(n int) bool {
	if r.failed || r.off+n > len(r.b) {
		r.failed = true
		return false
	}
	return true
}

func (r *payloadReader) int32() int32 {
	if !r.need(4) {
		return 0
	}
	v := int32(binary.LittleEndian.Uint32(r.b[r.off:]))
	r.off += 4
	return v
}

func (r *payloadReader) byte() byte {
	if !r.need(1) {
		return 0
	}
	v := r.b[r.off]
	r.off++
	return v
}

func (r *payloadReader) point() geom.Point {
	return geom.Point{X: int(r.int32()), Y: int(r.int32())}
}

func (r *payloadReader) rect() geom.Rect {
	return geom.Rect{Left: int(r.int32()), Top: int(r.int32()), Right: int(r.int32()), Bottom: int(r.int32())}
}

func (r *payloadReader) color() geom.Color {
	if !r.need(4) {
		return geom.Color{}
	}
	c := geom.Color{R: r.b[r.off], G: r.b[r.off+1], B: r.b[r.off+2], A: r.b[r.off+3]}
	r.off += 4
	return c
}

func (r *payloadReader) string() string {
	n := int(uint32(r.int32()))
	if n < 0 || !r.need(n) {
		return ""
	}
	s := string(r.b[r.off : r.off+n])
	r.off += n
	return s
}

func (r *payloadReader) ok() bool { return !r.failed }

type payloadWriter struct{ b []byte }

func (w *payloadWriter) int32(v int32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	w.b = append(w.b, tmp[:]...)
}

func (w *payloadWriter) rect(r geom.Rect) {
	w.int32(int32(r.Left))
	w.int32(int32(r.Top))
	w.int32(int32(r.Right))
	w.int32(int32(r.Bottom))
}

func (w *payloadWriter) bytes() []byte { return w.b }

// RunLooper blocks on the app server's input port, dispatching
// REGISTER_APPLICATION and MESSAGE_BUNDLE envelopes until ctx is
// cancelled, at which point it closes the input port so any pending
// Receive unblocks with ErrClosed (spec §4.4's looper, §9's context-value
// design note over goroutine leaks).
func (s *AppServer) RunLooper(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.Input.Close()
	}()
	for {
		msg, err := s.Input.Receive()
		if err != nil {
			if err == port.ErrClosed {
				return nil
			}
			return err
		}
		s.handleEnvelope(msg)
	}
}

// handleEnvelope implements spec §4.4: REGISTER_APPLICATION creates the
// application and replies with its handle; MESSAGE_BUNDLE decodes and
// dispatches every framed record, then runs exactly one rebuild-and-paint
// pass regardless of how many records the bundle carried.
func (s *AppServer) handleEnvelope(msg port.Message) {
	switch msg.Code {
	case CodeRegisterApplication:
		s.handleRegisterApplication(msg)
	case CodeMessageBundle:
		app, ok := s.Apps[msg.TargetHandler]
		if !ok {
			s.Log.Warnf("MESSAGE_BUNDLE for unknown application handle %d", msg.TargetHandler)
			return
		}
		records, err := port.DecodeBundle(msg.Payload)
		if err != nil {
			s.Log.Warnf("application %d sent malformed bundle, processing %d decoded records: %v", app.Handle, len(records), err)
		}
		for _, rec := range records {
			s.dispatchRecord(app, rec)
		}
		RebuildAll(s.Root)
		ApplyScrollBlits(s.Root, s.Driver, s.ScreenBmp)
		s.ExpandDamageAndPaint()
	default:
		s.Log.Warnf("unexpected code %d on appserver input port", msg.Code)
	}
}

func (s *AppServer) handleRegisterApplication(msg port.Message) {
	r := payloadReader{b: msg.Payload}
	name := r.string()
	if msg.ClientPort == nil || msg.ReplyPort == nil {
		s.Log.Warnf("REGISTER_APPLICATION for %q missing reply/client port", name)
		return
	}
	app := s.RegisterApplication(msg.ClientPort)
	var w payloadWriter
	w.int32(app.Handle)
	reply := port.Message{Code: CodeRegisterApplicationReply, Payload: w.bytes()}
	if err := msg.ReplyPort.Send(reply, 0); err != nil {
		s.Log.Warnf("REGISTER_APPLICATION_REPLY to %q failed: %v", name, err)
	}
}

// dispatchRecord routes one framed bundle record by code to the
// application or view operation it names, resolving its target view (for
// view-scoped codes) from the target_handler field (spec §4.4). Unknown
// target handles and codes are logged and skipped; a misbehaving client
// never aborts the rest of the bundle.
func (s *AppServer) dispatchRecord(app *ServerApplication, rec port.Message) {
	r := payloadReader{b: rec.Payload}
	switch rec.Code {
	case CodeSync:
		replyTarget := r.int32()
		s.reply(app, CodeSyncReply, replyTarget, nil)
	case CodeCreateView:
		s.handleCreateView(app, rec.TargetHandler, &r)
	case CodeDeleteView:
		s.handleDeleteView(app, rec.TargetHandler)
	case CodeFocusView:
		deviceID := int(r.int32())
		s.focusView[deviceID] = app.Views[rec.TargetHandler]
	case CodeSetKeyboardFocus:
		s.keyboardFoc = app.Views[rec.TargetHandler]
	case CodeCreateBitmap:
		s.handleCreateBitmap(app, &r)
	case CodeDeleteBitmap:
		app.DeleteBitmap(rec.TargetHandler)
	default:
		s.dispatchViewRecord(app, rec.Code, rec.TargetHandler, &r, rec.Payload)
	}
}

func (s *AppServer) handleCreateView(app *ServerApplication, parentHandle int32, r *payloadReader) {
	replyTarget := r.int32()
	name := r.string()
	frame := r.rect()
	scrollOffset := r.point()
	flags := ViewFlags(uint32(r.int32()))
	hideCount := int(r.int32())
	erase := r.color()
	bg := r.color()
	fg := r.color()

	parent := s.Root
	if parentHandle != 0 {
		if p, ok := app.Views[parentHandle]; ok {
			parent = p
		} else {
			s.Log.Warnf("CREATE_VIEW for app %d: unknown parent handle %d", app.Handle, parentHandle)
			var w payloadWriter
			w.int32(-1)
			s.reply(app, CodeCreateViewReply, replyTarget, w.bytes())
			return
		}
	}

	view := NewServerView(name, frame)
	view.ScrollOffset = scrollOffset
	view.Flags = flags
	view.HideCount = hideCount
	view.EraseColor = erase
	view.BgColor = bg
	view.FgColor = fg
	view.ClientPort = app.ClientPort

	parent.AddChild(view)
	handle := app.RegisterView(view)

	var w payloadWriter
	w.int32(handle)
	s.reply(app, CodeCreateViewReply, replyTarget, w.bytes())
}

func (s *AppServer) handleDeleteView(app *ServerApplication, handle int32) {
	view, ok := app.Views[handle]
	if !ok {
		s.Log.Warnf("DELETE_VIEW for app %d: unknown handle %d", app.Handle, handle)
		return
	}
	if view.Parent != nil {
		view.Parent.RemoveChild(view)
	}
	app.UnregisterView(handle)
	if s.keyboardFoc == view {
		s.keyboardFoc = nil
	}
	for dev, v := range s.focusView {
		if v == view {
			delete(s.focusView, dev)
		}
	}
}

func (s *AppServer) handleCreateBitmap(app *ServerApplication, r *payloadReader) {
	replyTarget := r.int32()
	width := int(r.int32())
	height := int(r.int32())
	cs := geom.ColorSpace(r.int32())
	handle := app.CreateBitmap(width, height, cs, s.Driver)
	var w payloadWriter
	w.int32(handle)
	s.reply(app, CodeCreateBitmapReply, replyTarget, w.bytes())
}

// dispatchViewRecord handles the VIEW_* mutator and drawing codes, all of
// which address an existing view via target_handler (spec §6.2).
func (s *AppServer) dispatchViewRecord(app *ServerApplication, code, targetHandler int32, r *payloadReader, raw []byte) {
	view, ok := app.Views[targetHandler]
	if !ok {
		s.Log.Warnf("view code %d for app %d: unknown handle %d", code, app.Handle, targetHandler)
		return
	}
	drv, screen := s.Driver, s.ScreenBmp
	switch code {
	case CodeViewSetFrame:
		view.SetFrame(r.rect())
	case CodeViewInvalidate:
		view.Invalidate(r.rect())
	case CodeViewAddChild:
		childHandle := r.int32()
		if child, ok := app.Views[childHandle]; ok {
			view.AddChild(child)
		}
	case CodeViewToggleDepth:
		view.ToggleDepth()
	case CodeViewBeginUpdate:
		view.BeginUpdate()
	case CodeViewEndUpdate:
		view.EndUpdate()
	case CodeViewShow:
		if r.byte() != 0 {
			view.Show()
		} else {
			view.Hide()
		}
	case CodeViewSetFocusKeyboardMode:
		view.SetFocusKeyboardMode(KeyboardFocusMode(r.byte()))
	case CodeViewSetDrawingMode:
		view.SetDrawingModeValue(display.DrawingMode(r.int32()))
	case CodeViewSetFgColor:
		view.SetFgColor(r.color())
	case CodeViewSetBgColor:
		view.SetBgColor(r.color())
	case CodeViewSetEraseColor:
		view.SetEraseColor(r.color())
	case CodeViewSetFont:
		view.SetFontID(int(r.int32()))
	case CodeViewMovePenTo:
		view.MovePenTo(r.point())
	case CodeViewSetPenWidth:
		view.SetPenWidth(int(r.int32()))
	case CodeViewDrawLine1:
		to := r.point()
		view.DrawLine(drv, screen, view.PenPosition, to, view.FgColor, view.DrawingMode)
		view.MovePenTo(to)
	case CodeViewDrawLine2:
		from, to := r.point(), r.point()
		view.DrawLine(drv, screen, from, to, view.FgColor, view.DrawingMode)
		view.MovePenTo(to)
	case CodeViewFillRect:
		view.FillRect(drv, screen, r.rect(), view.FgColor)
	case CodeViewFillCircle:
		center := r.point()
		radius := int(r.int32())
		view.FillCircle(drv, screen, center, radius, view.FgColor, view.DrawingMode)
	case CodeViewDrawString:
		text := r.string()
		r.int32() // maxWidth, unused: text is clipped to the view's clip rects, never wrapped.
		r.byte()  // flags, reserved.
		advance := view.DrawString(drv, screen, view.PenPosition, text, len(text), view.BgColor, view.FgColor)
		view.MovePenTo(view.PenPosition.Add(geom.Point{X: advance}))
	case CodeViewScrollBy:
		view.ScrollBy(r.point())
	case CodeViewCopyRect:
		srcRect := r.rect()
		dstPos := r.point()
		view.CopyRect(drv, screen, screen, srcRect, dstPos, view.DrawingMode)
	case CodeViewDrawBitmap:
		bitmapHandle := r.int32()
		srcRect := r.rect()
		dstPos := r.point()
		if src, ok := app.Bitmap(bitmapHandle); ok {
			view.DrawBitmap(drv, screen, src, srcRect, dstPos, view.DrawingMode)
		}
	case CodeViewDrawScaledBitmap:
		bitmapHandle := r.int32()
		srcRect := r.rect()
		dstRect := r.rect()
		if src, ok := app.Bitmap(bitmapHandle); ok {
			view.DrawScaledBitmap(drv, screen, src, srcRect, dstRect, view.DrawingMode)
		}
	case CodeViewDebugDraw:
		view.DebugDraw(drv, screen, r.color())
	default:
		s.Log.Warnf("unknown view code %d for app %d view %d (payload %d bytes)", code, app.Handle, targetHandler, len(raw))
	}
	if !r.ok() {
		s.Log.Warnf("truncated payload for view code %d, app %d view %d", code, app.Handle, targetHandler)
	}
}

// reply sends a server-to-client reply through app's client port, using
// replyTarget as the reply's own target_handler so the client can demux
// concurrent in-flight requests (Protocol.h's replyTarget argument).
func (s *AppServer) reply(app *ServerApplication, code, replyTarget int32, payload []byte) {
	if app.ClientPort == nil {
		return
	}
	msg := port.Message{Code: code, TargetHandler: replyTarget, Payload: payload}
	if err := app.ClientPort.Send(msg, 0); err != nil {
		s.Log.Warnf("reply code %d to app %d failed: %v", code, app.Handle, err)
	}
}
