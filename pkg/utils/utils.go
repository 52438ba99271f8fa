package utils

import (
	"fmt"
	"time"
)

// FormatRoundedUnit renders a duration in its largest whole unit: 45s, 12m,
// 3h. Negative durations are treated as their magnitude.
func FormatRoundedUnit(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds < 0 {
		seconds = -seconds
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds >= 3600 {
		return fmt.Sprintf("%dh", seconds/3600)
	}
	return fmt.Sprintf("%dm", seconds/60)
}

// Truncate shortens s to at most maxLen runes, marking the cut with "...".
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
