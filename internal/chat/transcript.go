// Package chat implements the conversational client: an append-only
// transcript, server-driven widget state and the phrase synthesis that turns
// widget actions back into text.
package chat

import (
	"time"
)

// Entry roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// WidgetKind identifies the interactive widget an assistant entry carries.
type WidgetKind int

const (
	WidgetNone WidgetKind = iota
	WidgetGreeting
	WidgetTypeSelector
	WidgetDatePicker
	WidgetConfirmationCard
	WidgetUnknown
)

// UIState is the widget directive attached to an assistant response.
type UIState struct {
	Component string `json:"component"`
	Stage     string `json:"stage,omitempty"`
}

// ParseWidget maps a component tag to a WidgetKind. Unrecognized tags map
// to WidgetUnknown, which renders as a plain text bubble.
func ParseWidget(component string) WidgetKind {
	switch component {
	case "GREETING":
		return WidgetGreeting
	case "TYPE_SELECTOR":
		return WidgetTypeSelector
	case "DATE_PICKER":
		return WidgetDatePicker
	case "CONFIRMATION_CARD":
		return WidgetConfirmationCard
	default:
		return WidgetUnknown
	}
}

// Entry is one transcript turn. Index equals the entry's position at
// creation and never changes.
type Entry struct {
	Index     int
	Role      string
	Content   string
	Timestamp time.Time
	Intent    string
	Data      map[string]any
	UIState   *UIState
	Actions   []string

	// IsError marks locally synthesized transport-failure bubbles. They do
	// not affect the active widget.
	IsError bool
}

// Widget returns the widget kind for the entry, WidgetNone when the entry
// carries no UIState.
func (e Entry) Widget() WidgetKind {
	if e.UIState == nil {
		return WidgetNone
	}
	return ParseWidget(e.UIState.Component)
}

// Transcript is the append-only conversation log. It is never persisted.
type Transcript struct {
	entries []Entry
}

// Append adds an entry, assigning its Index, and returns it.
func (t *Transcript) Append(e Entry) Entry {
	e.Index = len(t.entries)
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	t.entries = append(t.entries, e)
	return e
}

// Entries returns the transcript in order.
func (t *Transcript) Entries() []Entry {
	return t.entries
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	return len(t.entries)
}

// ActivePointer returns the index of the entry whose widget is live, or -1.
// The most recent real assistant entry governs: if it carries a UIState its
// widget is active, otherwise nothing is. Error bubbles are skipped, so a
// failed send leaves the previous widget active for retry.
func (t *Transcript) ActivePointer() int {
	for i := len(t.entries) - 1; i >= 0; i-- {
		e := t.entries[i]
		if e.IsError || e.Role != RoleAssistant {
			continue
		}
		if e.UIState != nil {
			return i
		}
		return -1
	}
	return -1
}
