package chat

import (
	"fmt"

	"github.com/kalambet/leaveflow/internal/storage"
)

// Widget actions never submit structured payloads; they synthesize the
// free-text message a user could have typed. These are the only translations.

// QuickActionPhrase returns the quick-action label verbatim.
func QuickActionPhrase(label string) string {
	return label
}

// RangePhrase renders a date selection. A single day repeats the date.
func RangePhrase(start, end storage.Date) string {
	return fmt.Sprintf("From %s to %s", start, end)
}

// EditPhrase is what the confirmation card sends to reopen date selection.
func EditPhrase() string {
	return "edit"
}
