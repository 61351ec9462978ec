package compositor

import (
	"github.com/kavionic/padosd/internal/display"
	"github.com/kavionic/padosd/internal/geom"
	"github.com/kavionic/padosd/internal/port"
)

// ServerApplication is the server-side proxy for one client process: it
// owns that client's per-app bitmap handle table and tracks whether any
// of its views have pending region invalidation (spec §3.1).
type ServerApplication struct {
	Handle            int32
	ClientPort        *port.Port
	bitmaps           map[int32]*display.ServerBitmap
	nextBitmapHandle  int32
	HaveInvalidRegion bool
	Views             map[int32]*ServerView
	nextViewHandle    int32
}

func NewServerApplication(handle int32, p *port.Port) *ServerApplication {
	return &ServerApplication{
		Handle:           handle,
		ClientPort:       p,
		bitmaps:          make(map[int32]*display.ServerBitmap),
		Views:            make(map[int32]*ServerView),
		nextBitmapHandle: 1,
		nextViewHandle:   1,
	}
}

// CreateBitmap allocates a bitmap and returns its per-app handle.
func (a *ServerApplication) CreateBitmap(width, height int, cs geom.ColorSpace, drv *display.Driver) int32 {
	h := a.nextBitmapHandle
	a.nextBitmapHandle++
	a.bitmaps[h] = display.NewServerBitmap(width, height, cs, drv)
	return h
}

func (a *ServerApplication) DeleteBitmap(handle int32) {
	delete(a.bitmaps, handle)
}

func (a *ServerApplication) Bitmap(handle int32) (*display.ServerBitmap, bool) {
	b, ok := a.bitmaps[handle]
	return b, ok
}

// RegisterView assigns a handle to a newly created view and tracks it.
func (a *ServerApplication) RegisterView(v *ServerView) int32 {
	h := a.nextViewHandle
	a.nextViewHandle++
	v.ClientHandle = h
	a.Views[h] = v
	return h
}

func (a *ServerApplication) UnregisterView(handle int32) {
	delete(a.Views, handle)
}
