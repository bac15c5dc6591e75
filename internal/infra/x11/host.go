// Package x11 talks to an X11 (or XWayland) display: it reports the focused
// application and performs the desktop navigation used during suppression.
package x11

import (
	"context"
	"encoding/binary"
	"strings"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/appguard/internal/domain"
)

// ICCCM WM_STATE value for a minimized window.
const iconicState = 3

var atomNames = []string{
	"_NET_ACTIVE_WINDOW",
	"_NET_WM_PID",
	"_NET_SHOWING_DESKTOP",
	"WM_CLASS",
	"WM_CHANGE_STATE",
}

// HomeLauncher runs the fallback home command.
type HomeLauncher interface {
	Launch() error
}

// Host implements domain.ForegroundSource, domain.ForegroundWatcher and
// domain.Navigator against one display.
type Host struct {
	display  string
	conn     *xgb.Conn
	root     xproto.Window
	atoms    map[string]xproto.Atom
	pm       domain.ProcessManager
	launcher HomeLauncher
	logger   *zap.Logger
}

// NewHost connects to display. An empty display uses $DISPLAY.
func NewHost(display string, pm domain.ProcessManager, launcher HomeLauncher, logger *zap.Logger) (*Host, error) {
	conn, root, err := connect(display)
	if err != nil {
		return nil, err
	}

	atoms, err := internAtoms(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Host{
		display:  display,
		conn:     conn,
		root:     root,
		atoms:    atoms,
		pm:       pm,
		launcher: launcher,
		logger:   logger,
	}, nil
}

func connect(display string) (*xgb.Conn, xproto.Window, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to connect to X display")
	}
	root := xproto.Setup(conn).DefaultScreen(conn).Root
	return conn, root, nil
}

func internAtoms(conn *xgb.Conn) (map[string]xproto.Atom, error) {
	atoms := make(map[string]xproto.Atom, len(atomNames))
	for _, name := range atomNames {
		reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to intern atom %s", name)
		}
		atoms[name] = reply.Atom
	}
	return atoms, nil
}

// Close releases the display connection.
func (h *Host) Close() {
	h.conn.Close()
}

// Foreground returns the identifier of the focused application.
func (h *Host) Foreground() (domain.AppID, error) {
	window, err := h.activeWindow()
	if err != nil {
		return "", err
	}

	instance, class := h.windowClass(window)
	return resolveAppID(instance, class, h.windowPID(window), h.pm)
}

// Watch delivers a foreground sample every time the active window changes.
// It uses its own connection so event reads never block requests.
func (h *Host) Watch(ctx context.Context, changes chan<- domain.AppID) error {
	conn, root, err := connect(h.display)
	if err != nil {
		return err
	}

	err = xproto.ChangeWindowAttributesChecked(conn, root, xproto.CwEventMask,
		[]uint32{xproto.EventMaskPropertyChange}).Check()
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "failed to select root property events")
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	active := h.atoms["_NET_ACTIVE_WINDOW"]
	for {
		ev, xerr := conn.WaitForEvent()
		if ev == nil && xerr == nil {
			// Connection closed.
			return ctx.Err()
		}
		if xerr != nil {
			h.logger.Debug("x11 event error", zap.String("error", xerr.Error()))
			continue
		}

		notify, ok := ev.(xproto.PropertyNotifyEvent)
		if !ok || notify.Atom != active {
			continue
		}

		id, err := h.Foreground()
		if err != nil {
			continue
		}
		select {
		case changes <- id:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// NavigateBack minimizes the focused window.
func (h *Host) NavigateBack() error {
	window, err := h.activeWindow()
	if err != nil {
		return err
	}
	return h.sendRootMessage(window, h.atoms["WM_CHANGE_STATE"], iconicState)
}

// NavigateHome asks the window manager to show the desktop.
func (h *Host) NavigateHome() error {
	return h.sendRootMessage(h.root, h.atoms["_NET_SHOWING_DESKTOP"], 1)
}

// LaunchHome runs the configured fallback command.
func (h *Host) LaunchHome() error {
	if h.launcher == nil {
		return errors.New("no home launcher configured")
	}
	return h.launcher.Launch()
}

func (h *Host) activeWindow() (xproto.Window, error) {
	data, err := h.property(h.root, h.atoms["_NET_ACTIVE_WINDOW"], xproto.AtomWindow, 1)
	if err != nil {
		return 0, err
	}
	window := decodeWindow(data)
	if window == 0 {
		return 0, domain.ErrNoForeground
	}
	return window, nil
}

func (h *Host) windowClass(window xproto.Window) (instance, class string) {
	data, err := h.property(window, h.atoms["WM_CLASS"], xproto.AtomString, 256)
	if err != nil {
		return "", ""
	}
	return parseWMClass(data)
}

func (h *Host) windowPID(window xproto.Window) int {
	data, err := h.property(window, h.atoms["_NET_WM_PID"], xproto.AtomCardinal, 1)
	if err != nil || len(data) < 4 {
		return 0
	}
	return int(binary.LittleEndian.Uint32(data))
}

func (h *Host) property(window xproto.Window, atom, typ xproto.Atom, length uint32) ([]byte, error) {
	reply, err := xproto.GetProperty(h.conn, false, window, atom, typ, 0, length).Reply()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read window property")
	}
	return reply.Value, nil
}

// sendRootMessage delivers an EWMH client message to the window manager.
func (h *Host) sendRootMessage(window xproto.Window, typ xproto.Atom, value uint32) error {
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: window,
		Type:   typ,
		Data:   xproto.ClientMessageDataUnionData32New([]uint32{value, 0, 0, 0, 0}),
	}
	mask := uint32(xproto.EventMaskSubstructureRedirect | xproto.EventMaskSubstructureNotify)
	err := xproto.SendEventChecked(h.conn, false, h.root, mask, string(ev.Bytes())).Check()
	if err != nil {
		return errors.Wrap(err, "window manager rejected client message")
	}
	return nil
}

// parseWMClass splits the NUL-separated WM_CLASS property.
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

func decodeWindow(data []byte) xproto.Window {
	if len(data) < 4 {
		return 0
	}
	return xproto.Window(binary.LittleEndian.Uint32(data))
}

// resolveAppID prefers the WM class, then the instance name, then the
// owning process name.
func resolveAppID(instance, class string, pid int, pm domain.ProcessManager) (domain.AppID, error) {
	if class != "" {
		return domain.AppID(strings.ToLower(class)), nil
	}
	if instance != "" {
		return domain.AppID(strings.ToLower(instance)), nil
	}
	if pid > 0 && pm != nil {
		name, err := pm.NameOf(pid)
		if err == nil && name != "" {
			return domain.AppID(strings.ToLower(name)), nil
		}
	}
	return "", domain.ErrNoForeground
}

var (
	_ domain.ForegroundSource  = (*Host)(nil)
	_ domain.ForegroundWatcher = (*Host)(nil)
	_ domain.Navigator         = (*Host)(nil)
)
