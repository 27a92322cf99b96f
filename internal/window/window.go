// Package window defines the genuine windowing-system calls that capshim
// intercepts, and an X11 implementation of them.
package window

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoDisplay is returned by every call when no display connection exists
var ErrNoDisplay = errors.New("no display connection")

// Window is an X window id
type Window uint32

// Atom is an X atom id
type Atom uint32

// Attributes is the union of window attributes and geometry
type Attributes struct {
	X                int    `json:"x"`
	Y                int    `json:"y"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	BorderWidth      int    `json:"border_width"`
	Depth            int    `json:"depth"`
	Root             Window `json:"root"`
	Class            uint16 `json:"class"`
	MapState         uint8  `json:"map_state"`
	OverrideRedirect bool   `json:"override_redirect"`
}

// Rect is a placeholder geometry
type Rect struct {
	X      int `json:"x" yaml:"x" mapstructure:"x"`
	Y      int `json:"y" yaml:"y" mapstructure:"y"`
	Width  int `json:"width" yaml:"width" mapstructure:"width"`
	Height int `json:"height" yaml:"height" mapstructure:"height"`
}

// PropertyRequest mirrors the arguments of a property query. Offset and
// Length count 32-bit units.
type PropertyRequest struct {
	Window   Window
	Property Atom
	Offset   uint32
	Length   uint32
	Delete   bool
	Type     Atom
}

// PropertyReply mirrors the out-parameters of a property query
type PropertyReply struct {
	Type       Atom   `json:"type"`
	Format     uint8  `json:"format"`
	NItems     uint32 `json:"nitems"`
	BytesAfter uint32 `json:"bytes_after"`
	Value      []byte `json:"value"`
}

// PointerReply mirrors the out-parameters of a pointer query
type PointerReply struct {
	SameScreen bool   `json:"same_screen"`
	Root       Window `json:"root"`
	Child      Window `json:"child"`
	RootX      int    `json:"root_x"`
	RootY      int    `json:"root_y"`
	WinX       int    `json:"win_x"`
	WinY       int    `json:"win_y"`
	Mask       uint16 `json:"mask"`
}

// Delegate performs the genuine calls
type Delegate interface {
	GetWindowAttributes(win Window) (Attributes, error)
	GetProperty(req PropertyRequest) (PropertyReply, error)
	AtomName(atom Atom) (string, error)
	InternAtom(name string) (Atom, error)
	QueryPointer(win Window) (PointerReply, error)
	Close() error
}

// Unavailable is the delegate used when no display can be opened
type Unavailable struct{}

func (Unavailable) GetWindowAttributes(Window) (Attributes, error) {
	return Attributes{}, ErrNoDisplay
}

func (Unavailable) GetProperty(PropertyRequest) (PropertyReply, error) {
	return PropertyReply{}, ErrNoDisplay
}

func (Unavailable) AtomName(Atom) (string, error) { return "", ErrNoDisplay }

func (Unavailable) InternAtom(string) (Atom, error) { return 0, ErrNoDisplay }

func (Unavailable) QueryPointer(Window) (PointerReply, error) {
	return PointerReply{}, ErrNoDisplay
}

func (Unavailable) Close() error { return nil }

// ParseID parses a window or atom id in decimal or 0x-prefixed hex
func ParseID(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return uint32(v), nil
}
