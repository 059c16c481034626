package activity

import (
	"time"

	"github.com/google/uuid"
)

// Kind groups activity log entries for display.
type Kind string

const (
	KindMove      Kind = "move"
	KindThought   Kind = "thought"
	KindChat      Kind = "chat"
	KindWork      Kind = "work"
	KindInference Kind = "inference"
	KindSystem    Kind = "system"
)

// Entry is one line of Arq's activity log.
type Entry struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	Icon      string    `json:"icon,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DefaultIcons is used when an entry is created without an icon.
var DefaultIcons = map[Kind]string{
	KindMove:      "🚶",
	KindThought:   "💭",
	KindChat:      "💬",
	KindWork:      "🔧",
	KindInference: "🤖",
	KindSystem:    "⚙️",
}

// NewEntry creates an entry stamped with now.
func NewEntry(kind Kind, text string, now time.Time) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Kind:      kind,
		Text:      text,
		Icon:      DefaultIcons[kind],
		Timestamp: now.UTC(),
	}
}

// WithIcon returns a copy of e using icon.
func (e Entry) WithIcon(icon string) Entry {
	if icon != "" {
		e.Icon = icon
	}
	return e
}
