package x11

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/screensaver"
	"github.com/jezek/xgb/xproto"

	"github.com/actionsum/nudge/pkg/window"
)

var atomNames = []string{
	"_NET_ACTIVE_WINDOW",
	"_NET_WM_NAME",
	"_NET_WM_PID",
	"WM_NAME",
	"WM_CLASS",
	"UTF8_STRING",
}

// Detector implements window.Detector over a native X11 connection. The
// connection is opened on first use and reopened after an error.
type Detector struct {
	mu          sync.Mutex
	conn        *xgb.Conn
	root        xproto.Window
	atoms       map[string]xproto.Atom
	screensaver bool
}

// NewDetector creates a new X11 detector
func NewDetector() *Detector {
	return &Detector{}
}

// IsAvailable reports whether an X display is configured.
func (d *Detector) IsAvailable() bool {
	return os.Getenv("DISPLAY") != ""
}

// GetDisplayServer returns "x11"
func (d *Detector) GetDisplayServer() string {
	return "x11"
}

func (d *Detector) connect() error {
	if d.conn != nil {
		return nil
	}

	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}

	atoms := make(map[string]xproto.Atom, len(atomNames))
	for _, name := range atomNames {
		reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to intern atom %s: %w", name, err)
		}
		atoms[name] = reply.Atom
	}

	d.conn = conn
	d.root = xproto.Setup(conn).DefaultScreen(conn).Root
	d.atoms = atoms
	d.screensaver = screensaver.Init(conn) == nil
	return nil
}

func (d *Detector) reset() {
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
}

// GetFocusedWindow returns information about the currently focused window
func (d *Detector) GetFocusedWindow() (*window.WindowInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.connect(); err != nil {
		return nil, err
	}

	win, err := d.activeWindow()
	if err != nil {
		d.reset()
		return nil, err
	}

	instance, class := parseWMClass(d.property(win, d.atoms["WM_CLASS"], xproto.AtomString, 256))
	appName := instance
	if appName == "" {
		appName = class
	}

	return &window.WindowInfo{
		AppName:       appName,
		WindowTitle:   d.windowName(win),
		Class:         class,
		PID:           decodeCardinal(d.property(win, d.atoms["_NET_WM_PID"], xproto.AtomCardinal, 1)),
		DisplayServer: "x11",
	}, nil
}

// activeWindow prefers _NET_ACTIVE_WINDOW and falls back to the input
// focus's top-level parent. Focus changes race with the query, so it
// retries briefly.
func (d *Detector) activeWindow() (xproto.Window, error) {
	for i := 0; i < 5; i++ {
		if win := xproto.Window(decodeCardinal(d.property(d.root, d.atoms["_NET_ACTIVE_WINDOW"], xproto.AtomWindow, 1))); win != 0 && d.hasName(win) {
			return win, nil
		}

		if reply, err := xproto.GetInputFocus(d.conn).Reply(); err == nil && reply.Focus != 0 && reply.Focus != d.root {
			if top := d.topLevel(reply.Focus); top != 0 && d.hasName(top) {
				return top, nil
			}
		}

		time.Sleep(20 * time.Millisecond)
	}
	return 0, errors.New("no active window found")
}

func (d *Detector) topLevel(win xproto.Window) xproto.Window {
	for {
		reply, err := xproto.QueryTree(d.conn, win).Reply()
		if err != nil || reply.Parent == d.root || reply.Parent == 0 {
			return win
		}
		win = reply.Parent
	}
}

func (d *Detector) property(win xproto.Window, atom, typ xproto.Atom, length uint32) []byte {
	reply, err := xproto.GetProperty(d.conn, false, win, atom, typ, 0, length).Reply()
	if err != nil {
		return nil
	}
	return reply.Value
}

func (d *Detector) hasName(win xproto.Window) bool {
	if len(d.property(win, d.atoms["_NET_WM_NAME"], d.atoms["UTF8_STRING"], 1)) > 0 {
		return true
	}
	return len(d.property(win, d.atoms["WM_NAME"], xproto.AtomString, 1)) > 0
}

func (d *Detector) windowName(win xproto.Window) string {
	if data := d.property(win, d.atoms["_NET_WM_NAME"], d.atoms["UTF8_STRING"], 256); len(data) > 0 {
		return strings.TrimRight(string(data), "\x00")
	}
	return strings.TrimRight(string(d.property(win, d.atoms["WM_NAME"], xproto.AtomString, 256)), "\x00")
}

// GetIdleInfo uses the MIT-SCREEN-SAVER extension. Without it the user is
// reported active and unlocked.
func (d *Detector) GetIdleInfo() (*window.IdleInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.connect(); err != nil {
		return nil, err
	}
	if !d.screensaver {
		return &window.IdleInfo{}, nil
	}

	reply, err := screensaver.QueryInfo(d.conn, xproto.Drawable(d.root)).Reply()
	if err != nil {
		d.reset()
		return nil, fmt.Errorf("failed to query screensaver info: %w", err)
	}

	idle := int64(reply.MsSinceUserInput / 1000)
	return &window.IdleInfo{
		IsIdle:   idle > window.IdleThreshold,
		IsLocked: reply.State == screensaver.StateOn,
		IdleTime: idle,
	}, nil
}

// Close cleans up resources
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
	return nil
}

// parseWMClass splits a raw WM_CLASS value ("instance\x00Class\x00").
func parseWMClass(data []byte) (instance, class string) {
	parts := strings.Split(strings.TrimRight(string(data), "\x00"), "\x00")
	if len(parts) >= 1 {
		instance = parts[0]
	}
	if len(parts) >= 2 {
		class = parts[1]
	}
	return instance, class
}

// decodeCardinal reads the first 32-bit value of a property, or 0.
func decodeCardinal(data []byte) uint32 {
	if len(data) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(data)
}
