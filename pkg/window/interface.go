// Package window describes the focused-window source that feeds the window
// tracker.
package window

import "strings"

// WindowInfo represents information about the currently focused window
type WindowInfo struct {
	AppName       string // WM_CLASS instance, app_id or process name
	WindowTitle   string
	Class         string // WM_CLASS class, when the backend knows it
	PID           uint32
	DisplayServer string // "x11" or "wayland"
}

// Valid reports whether the window names an application.
func (w *WindowInfo) Valid() bool {
	return w != nil && strings.TrimSpace(w.AppName) != ""
}

// Changed compares w with the previously observed window. A nil prev counts
// as a change of both.
func (w *WindowInfo) Changed(prev *WindowInfo) (app, title bool) {
	if prev == nil {
		return true, true
	}
	app = !strings.EqualFold(w.AppName, prev.AppName)
	title = app || w.WindowTitle != prev.WindowTitle
	return app, title
}

// IdleInfo represents system idle/lock state
type IdleInfo struct {
	IsIdle   bool
	IsLocked bool
	IdleTime int64 // Idle time in seconds
}

// IdleThreshold is the idle time, in seconds, after which IsIdle is set.
const IdleThreshold = 300

// Detector is the interface that all window detection implementations must satisfy
type Detector interface {
	// GetFocusedWindow returns information about the currently focused window
	GetFocusedWindow() (*WindowInfo, error)

	// GetIdleInfo returns information about system idle/lock state
	GetIdleInfo() (*IdleInfo, error)

	// IsAvailable checks if this detector can run on the current system
	IsAvailable() bool

	// GetDisplayServer returns the display server type ("x11" or "wayland")
	GetDisplayServer() string

	// Close cleans up any resources used by the detector
	Close() error
}
