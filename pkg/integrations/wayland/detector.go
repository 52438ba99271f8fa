package wayland

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/actionsum/nudge/pkg/window"
)

const commandTimeout = 2 * time.Second

// runner executes a command and returns its stdout. Replaced in tests.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Detector implements window.Detector for wlroots compositors (Sway,
// Hyprland) and GNOME Shell, each through its own IPC command.
type Detector struct {
	compositor string
	run        runner
}

// NewDetector creates a new Wayland detector
func NewDetector() *Detector {
	return &Detector{
		compositor: detectCompositor(os.Getenv),
		run:        execRunner,
	}
}

// detectCompositor reads the session environment; no processes are
// inspected.
func detectCompositor(getenv func(string) string) string {
	switch {
	case getenv("SWAYSOCK") != "":
		return "sway"
	case getenv("HYPRLAND_INSTANCE_SIGNATURE") != "":
		return "hyprland"
	}

	desktop := strings.ToLower(getenv("XDG_CURRENT_DESKTOP"))
	switch {
	case strings.Contains(desktop, "gnome"), strings.Contains(desktop, "ubuntu"):
		return "gnome"
	case strings.Contains(desktop, "sway"):
		return "sway"
	case strings.Contains(desktop, "hyprland"):
		return "hyprland"
	}
	return "unknown"
}

func (d *Detector) tool() string {
	switch d.compositor {
	case "sway":
		return "swaymsg"
	case "hyprland":
		return "hyprctl"
	case "gnome":
		return "gdbus"
	}
	return ""
}

// IsAvailable checks if Wayland detection is available
func (d *Detector) IsAvailable() bool {
	tool := d.tool()
	if tool == "" {
		return false
	}
	_, err := exec.LookPath(tool)
	return err == nil
}

// GetDisplayServer returns "wayland"
func (d *Detector) GetDisplayServer() string {
	return "wayland"
}

// GetFocusedWindow returns information about the currently focused window
func (d *Detector) GetFocusedWindow() (*window.WindowInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var (
		info *window.WindowInfo
		err  error
	)
	switch d.compositor {
	case "sway":
		info, err = d.query(ctx, parseSwayTree, "swaymsg", "-t", "get_tree", "-r")
	case "hyprland":
		info, err = d.query(ctx, parseHyprlandWindow, "hyprctl", "activewindow", "-j")
	case "gnome":
		info, err = d.query(ctx, parseGnomeEval, "gdbus", "call", "--session",
			"--dest", "org.gnome.Shell",
			"--object-path", "/org/gnome/Shell",
			"--method", "org.gnome.Shell.Eval",
			gnomeScript)
	default:
		return nil, fmt.Errorf("unsupported wayland compositor: %s", d.compositor)
	}
	if err != nil {
		return nil, err
	}

	info.DisplayServer = "wayland"
	return info, nil
}

func (d *Detector) query(ctx context.Context, parse func([]byte) (*window.WindowInfo, error), name string, args ...string) (*window.WindowInfo, error) {
	out, err := d.run(ctx, name, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s: %w", name, err)
	}
	return parse(out)
}

type swayNode struct {
	Focused       bool       `json:"focused"`
	Name          string     `json:"name"`
	AppID         string     `json:"app_id"`
	PID           uint32     `json:"pid"`
	WindowProps   *swayProps `json:"window_properties"`
	Nodes         []swayNode `json:"nodes"`
	FloatingNodes []swayNode `json:"floating_nodes"`
}

type swayProps struct {
	Class    string `json:"class"`
	Instance string `json:"instance"`
}

// parseSwayTree finds the focused leaf of a `swaymsg -t get_tree` dump.
func parseSwayTree(data []byte) (*window.WindowInfo, error) {
	var root swayNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse sway tree: %w", err)
	}

	node := findFocused(&root)
	if node == nil {
		return nil, fmt.Errorf("no focused sway window")
	}

	info := &window.WindowInfo{
		AppName:     node.AppID,
		WindowTitle: node.Name,
		PID:         node.PID,
	}
	if node.WindowProps != nil {
		info.Class = node.WindowProps.Class
		if info.AppName == "" {
			info.AppName = node.WindowProps.Instance
		}
	}
	return info, nil
}

func findFocused(n *swayNode) *swayNode {
	if n.Focused && len(n.Nodes) == 0 && len(n.FloatingNodes) == 0 {
		return n
	}
	for i := range n.Nodes {
		if f := findFocused(&n.Nodes[i]); f != nil {
			return f
		}
	}
	for i := range n.FloatingNodes {
		if f := findFocused(&n.FloatingNodes[i]); f != nil {
			return f
		}
	}
	return nil
}

// parseHyprlandWindow parses `hyprctl activewindow -j`.
func parseHyprlandWindow(data []byte) (*window.WindowInfo, error) {
	var w struct {
		Class        string `json:"class"`
		InitialClass string `json:"initialClass"`
		Title        string `json:"title"`
		PID          uint32 `json:"pid"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse hyprland window: %w", err)
	}
	if w.Class == "" && w.Title == "" {
		return nil, fmt.Errorf("no focused hyprland window")
	}

	return &window.WindowInfo{
		AppName:     w.Class,
		WindowTitle: w.Title,
		Class:       w.InitialClass,
		PID:         w.PID,
	}, nil
}

const gnomeScript = `
	let fw = global.display.get_focus_window();
	fw ? JSON.stringify({wm_class: fw.get_wm_class() || '', title: fw.get_title() || '', pid: fw.get_pid() || 0}) : 'null';
`

// parseGnomeEval parses the GVariant tuple printed by gdbus, e.g.
// (true, '{"wm_class":"firefox","title":"StockA","pid":42}').
func parseGnomeEval(data []byte) (*window.WindowInfo, error) {
	out := strings.TrimSpace(string(data))
	if !strings.HasPrefix(out, "(true,") {
		return nil, fmt.Errorf("GNOME Shell.Eval refused the request")
	}

	start := strings.Index(out, "{")
	end := strings.LastIndex(out, "}")
	if start == -1 || end < start {
		return nil, fmt.Errorf("no focused GNOME window")
	}
	payload := strings.NewReplacer(`\"`, `"`, `\'`, `'`, `\\`, `\`).Replace(out[start : end+1])

	var w struct {
		WMClass string `json:"wm_class"`
		Title   string `json:"title"`
		PID     uint32 `json:"pid"`
	}
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return nil, fmt.Errorf("failed to parse GNOME window: %w", err)
	}

	return &window.WindowInfo{
		AppName:     w.WMClass,
		WindowTitle: w.Title,
		Class:       w.WMClass,
		PID:         w.PID,
	}, nil
}

// GetIdleInfo reports the session lock state from logind. Wayland gives
// clients no portable idle time, so IdleTime stays 0.
func (d *Detector) GetIdleInfo() (*window.IdleInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	info := &window.IdleInfo{}
	if out, err := d.run(ctx, "loginctl", "show-session", "auto", "-p", "LockedHint"); err == nil {
		info.IsLocked = strings.Contains(string(out), "LockedHint=yes")
	}
	return info, nil
}

// Close cleans up resources
func (d *Detector) Close() error {
	return nil
}
