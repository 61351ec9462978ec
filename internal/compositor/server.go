package compositor

import (
	"time"

	"github.com/kavionic/padosd/internal/display"
	"github.com/kavionic/padosd/internal/geom"
	"github.com/kavionic/padosd/internal/logx"
	"github.com/kavionic/padosd/internal/port"
)

// FirstTouchID is the device-id floor at which touch points are
// distinguished from the plain mouse (device id 0), per spec §4.3.6/§6.1.
const FirstTouchID = 1000

// AppServer is the compositor singleton (spec §3.1): display driver,
// screen bitmap, root view, coalescing touch queue, per-device focus
// maps, registered applications and handle dispatch table. Per spec §9's
// design note, this is an explicit context value rather than module-level
// globals.
type AppServer struct {
	Driver      *display.Driver
	ScreenBmp   *display.ServerBitmap
	Root        *ServerView
	Log         *logx.Logger
	Apps        map[int32]*ServerApplication
	nextHandle  int32
	mouseDown   map[int]*ServerView
	focusView   map[int]*ServerView
	keyboardFoc *ServerView

	// Input is the single port the looper (RunLooper, protocol.go) blocks
	// on: every REGISTER_APPLICATION and MESSAGE_BUNDLE envelope a client
	// sends arrives here (spec §4.4).
	Input *port.Port

	queue []Event
}

// Event is a queued pointer event awaiting dispatch (spec §4.3.6/§8
// scenario 3).
type Event struct {
	Kind     EventKind
	DeviceID int
	Pos      geom.Point
}

type EventKind int

const (
	EventMouseDown EventKind = iota
	EventMouseUp
	EventMouseMove
)

// NewAppServer builds the singleton compositor context bound to a screen
// of the given size and color space.
func NewAppServer(width, height int, cs geom.ColorSpace, log *logx.Logger) *AppServer {
	drv := display.NewDriver(width, height)
	bmp := display.NewServerBitmap(width, height, cs, drv)
	root := NewServerView("root", geom.Rect{Left: 0, Top: 0, Right: width, Bottom: height})
	root.Flags = FlagIgnoreMouse
	root.HideCount = 0
	return &AppServer{
		Driver:      drv,
		ScreenBmp:   bmp,
		Root:        root,
		Log:         log.With("appserver"),
		Apps:        make(map[int32]*ServerApplication),
		mouseDown:   make(map[int]*ServerView),
		focusView:   make(map[int]*ServerView),
		nextHandle:  1,
		Input:       port.New(inputPortCapacity),
	}
}

// inputPortCapacity bounds how many undispatched REGISTER_APPLICATION/
// MESSAGE_BUNDLE envelopes may queue on the looper's input port before a
// sender blocks (spec §4.3.7's 0-timeout sends fail past this depth).
const inputPortCapacity = 64

// RegisterApplication creates a ServerApplication bound to clientPort and
// returns its handle.
func (s *AppServer) RegisterApplication(clientPort *port.Port) *ServerApplication {
	h := s.nextHandle
	s.nextHandle++
	app := NewServerApplication(h, clientPort)
	s.Apps[h] = app
	return app
}

// EnqueueEvent appends a pointer event, coalescing consecutive
// MOUSE_MOVE events into the queue's tail (spec §4.3.6, §8 scenario 3):
// if the tail is already a MOUSE_MOVE from the same device, overwrite it
// in place; DOWN/UP are never coalesced.
func (s *AppServer) EnqueueEvent(ev Event) {
	if ev.Kind == EventMouseMove && len(s.queue) > 0 {
		tail := &s.queue[len(s.queue)-1]
		if tail.Kind == EventMouseMove && tail.DeviceID == ev.DeviceID {
			*tail = ev
			return
		}
	}
	s.queue = append(s.queue, ev)
}

// DrainEvents dispatches every queued event in FIFO order and clears the
// queue.
func (s *AppServer) DrainEvents() {
	q := s.queue
	s.queue = nil
	for _, ev := range q {
		s.Dispatch(ev)
	}
}

// Dispatch routes a pointer event per spec §4.3.6: the top view is
// hit-tested topmost-child-first, recursing into child-local coordinates;
// a view claims the event iff it has a client and is not IgnoreMouse.
func (s *AppServer) Dispatch(ev Event) {
	switch ev.Kind {
	case EventMouseDown:
		if v := hitTest(s.Root, ev.Pos); v != nil {
			s.mouseDown[ev.DeviceID] = v
			s.focusView[ev.DeviceID] = v
			s.sendHit(v, ev)
		}
	case EventMouseUp:
		down := s.mouseDown[ev.DeviceID]
		focus := s.focusView[ev.DeviceID]
		if down != nil {
			s.sendHit(down, ev)
		}
		if focus != nil && focus != down {
			s.sendHit(focus, ev)
		}
		delete(s.mouseDown, ev.DeviceID)
	case EventMouseMove:
		focus := s.focusView[ev.DeviceID]
		if focus != nil {
			s.sendHit(focus, ev)
		}
		if s.keyboardFoc != nil && s.keyboardFoc != focus {
			s.sendHit(s.keyboardFoc, ev)
		}
	}
}

// hitTest walks v's children topmost-to-bottommost, converting pt into
// child-local coordinates and recursing; it returns the deepest claiming
// view, or nil.
func hitTest(v *ServerView, pt geom.Point) *ServerView {
	for i := len(v.Children) - 1; i >= 0; i-- {
		c := v.Children[i]
		if c.HideCount > 0 {
			continue
		}
		if !c.Frame.Contains(pt) {
			continue
		}
		local := pt.Sub(c.Frame.TopLeft()).Add(c.ScrollOffset)
		if hit := hitTest(c, local); hit != nil {
			return hit
		}
		if c.ClientPort != nil && !c.Flags.has(FlagIgnoreMouse) {
			return c
		}
	}
	if v.ClientPort != nil && !v.Flags.has(FlagIgnoreMouse) {
		return v
	}
	return nil
}

func (s *AppServer) sendHit(v *ServerView, ev Event) {
	var code int32
	switch ev.Kind {
	case EventMouseDown:
		code = CodeHandleMouseDown
	case EventMouseUp:
		code = CodeHandleMouseUp
	case EventMouseMove:
		code = CodeHandleMouseMove
	}
	timeout := time.Duration(0)
	if v.ManagerPort != nil {
		mgrMsg := port.Message{Code: code, TargetHandler: v.ManagerHandle}
		if err := v.ManagerPort.Send(mgrMsg, timeout); err != nil {
			s.Log.Warnf("send to window manager for view %q failed: %v", v.Name, err)
		}
	}
	if v.ClientPort == nil {
		return
	}
	msg := port.Message{Code: code, TargetHandler: v.ClientHandle}
	if err := v.ClientPort.Send(msg, timeout); err != nil {
		s.Log.Warnf("send to client view %q failed: %v", v.Name, err)
	}
}
