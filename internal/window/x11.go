package window

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/capshim/internal/logger"
)

// X11Delegate performs the genuine calls over an X11 connection
type X11Delegate struct {
	conn   *xgb.Conn
	root   xproto.Window
	screen *xproto.ScreenInfo
	mu     sync.Mutex
	atoms  map[string]xproto.Atom
}

// NewX11Delegate connects to display ("" means $DISPLAY)
func NewX11Delegate(display string) (*X11Delegate, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	logger.WithComponent("x11").Debug().
		Uint32("root", uint32(screen.Root)).
		Uint16("width", screen.WidthInPixels).
		Uint16("height", screen.HeightInPixels).
		Msg("Connected to X server")

	return &X11Delegate{
		conn:   conn,
		root:   screen.Root,
		screen: screen,
		atoms:  make(map[string]xproto.Atom),
	}, nil
}

// Close closes the X11 connection
func (d *X11Delegate) Close() error {
	d.conn.Close()
	return nil
}

// Root returns the root window
func (d *X11Delegate) Root() Window {
	return Window(d.root)
}

// GetWindowAttributes returns attributes and geometry of win, as Xlib's
// XGetWindowAttributes does with two requests.
func (d *X11Delegate) GetWindowAttributes(win Window) (Attributes, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	attrs, err := xproto.GetWindowAttributes(d.conn, xproto.Window(win)).Reply()
	if err != nil {
		return Attributes{}, fmt.Errorf("failed to get window attributes: %w", err)
	}

	geom, err := xproto.GetGeometry(d.conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return Attributes{}, fmt.Errorf("failed to get window geometry: %w", err)
	}

	return Attributes{
		X:                int(geom.X),
		Y:                int(geom.Y),
		Width:            int(geom.Width),
		Height:           int(geom.Height),
		BorderWidth:      int(geom.BorderWidth),
		Depth:            int(geom.Depth),
		Root:             Window(geom.Root),
		Class:            attrs.Class,
		MapState:         attrs.MapState,
		OverrideRedirect: attrs.OverrideRedirect,
	}, nil
}

// GetProperty reads a window property
func (d *X11Delegate) GetProperty(req PropertyRequest) (PropertyReply, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	reply, err := xproto.GetProperty(
		d.conn,
		req.Delete,
		xproto.Window(req.Window),
		xproto.Atom(req.Property),
		xproto.Atom(req.Type),
		req.Offset,
		req.Length,
	).Reply()
	if err != nil {
		return PropertyReply{}, fmt.Errorf("failed to get property: %w", err)
	}

	return PropertyReply{
		Type:       Atom(reply.Type),
		Format:     reply.Format,
		NItems:     reply.ValueLen,
		BytesAfter: reply.BytesAfter,
		Value:      reply.Value,
	}, nil
}

// AtomName returns the name of atom
func (d *X11Delegate) AtomName(atom Atom) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	reply, err := xproto.GetAtomName(d.conn, xproto.Atom(atom)).Reply()
	if err != nil {
		return "", fmt.Errorf("failed to get atom name: %w", err)
	}
	return reply.Name, nil
}

// InternAtom gets an atom ID by name
func (d *X11Delegate) InternAtom(name string) (Atom, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if atom, ok := d.atoms[name]; ok {
		return Atom(atom), nil
	}

	reply, err := xproto.InternAtom(d.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to intern atom %s: %w", name, err)
	}
	d.atoms[name] = reply.Atom
	return Atom(reply.Atom), nil
}

// QueryPointer returns the pointer position relative to win
func (d *X11Delegate) QueryPointer(win Window) (PointerReply, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	reply, err := xproto.QueryPointer(d.conn, xproto.Window(win)).Reply()
	if err != nil {
		return PointerReply{}, fmt.Errorf("failed to query pointer: %w", err)
	}

	return PointerReply{
		SameScreen: reply.SameScreen,
		Root:       Window(reply.Root),
		Child:      Window(reply.Child),
		RootX:      int(reply.RootX),
		RootY:      int(reply.RootY),
		WinX:       int(reply.WinX),
		WinY:       int(reply.WinY),
		Mask:       reply.Mask,
	}, nil
}
