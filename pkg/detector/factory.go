package detector

import (
	"errors"
	"os"

	"github.com/actionsum/nudge/pkg/integrations/wayland"
	"github.com/actionsum/nudge/pkg/integrations/x11"
	"github.com/actionsum/nudge/pkg/window"
)

// ErrNoDisplay is returned when neither a Wayland compositor nor an X
// display can be queried.
var ErrNoDisplay = errors.New("no supported display server detected")

// New picks the focused-window backend for the current session. On Wayland
// the compositor's own IPC is preferred; XWayland through DISPLAY is the
// fallback.
func New() (window.Detector, error) {
	if DetectDisplayServer() == "wayland" {
		if d := wayland.NewDetector(); d.IsAvailable() {
			return d, nil
		}
	}

	if d := x11.NewDetector(); d.IsAvailable() {
		return d, nil
	}

	return nil, ErrNoDisplay
}

func DetectDisplayServer() string {
	sessionType := os.Getenv("XDG_SESSION_TYPE")
	waylandDisplay := os.Getenv("WAYLAND_DISPLAY")
	x11Display := os.Getenv("DISPLAY")

	if sessionType == "wayland" || waylandDisplay != "" {
		return "wayland"
	}

	if sessionType == "x11" || x11Display != "" {
		return "x11"
	}

	return "unknown"
}
