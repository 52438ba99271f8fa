package models

import "time"

// EventKind identifies the signal a BehaviorEvent carries.
type EventKind string

const (
	KindAppSwitch   EventKind = "appSwitch"
	KindWindowTitle EventKind = "windowTitle"
	KindClipboard   EventKind = "clipboard"
	KindClick       EventKind = "click"
	KindDwell       EventKind = "dwell"
	KindCopy        EventKind = "copy"
	KindTabSwitch   EventKind = "tabSwitch"
	KindTabSnapshot EventKind = "tabSnapshot"
	KindFileOp      EventKind = "fileOp"
)

var knownKinds = map[EventKind]bool{
	KindAppSwitch:   true,
	KindWindowTitle: true,
	KindClipboard:   true,
	KindClick:       true,
	KindDwell:       true,
	KindCopy:        true,
	KindTabSwitch:   true,
	KindTabSnapshot: true,
	KindFileOp:      true,
}

// Valid reports whether k is one of the known event kinds.
func (k EventKind) Valid() bool {
	return knownKinds[k]
}

// IsTitle reports whether the kind carries a window or tab title.
func (k EventKind) IsTitle() bool {
	return k == KindWindowTitle || k == KindTabSwitch
}

// BehaviorEvent is a single desktop-interaction signal. Events are never
// mutated once appended to the buffer.
type BehaviorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      EventKind `json:"kind"`
	Detail    string    `json:"detail"`
	Context   string    `json:"context,omitempty"` // originating application, if known
}

// NewEvent stamps an event with the current time.
func NewEvent(kind EventKind, detail, context string) BehaviorEvent {
	return BehaviorEvent{
		Timestamp: time.Now(),
		Kind:      kind,
		Detail:    detail,
		Context:   context,
	}
}
