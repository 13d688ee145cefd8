// Package integrity classifies client-reported events and derives the
// session flags they contribute.
package integrity

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stemsi/labexam-backend/internal/model"
)

// Flaggable event kinds reported by the lockdown client.
const (
	KindFocusLost        = "focus_lost"
	KindBlockedShortcut  = "blocked_shortcut"
	KindClipboardBlocked = "clipboard_blocked"
	KindDisplayChanged   = "display_changed"
)

// Batch limits, matching the event_logs.event_type column width.
const (
	MaxBatchEvents = 200
	MaxKindLength  = 64
)

var flaggable = map[string]struct{}{
	KindFocusLost:        {},
	KindBlockedShortcut:  {},
	KindClipboardBlocked: {},
	KindDisplayChanged:   {},
}

// FlaggableKinds lists the flaggable kinds in a stable order.
func FlaggableKinds() []string {
	return []string{KindFocusLost, KindBlockedShortcut, KindClipboardBlocked, KindDisplayChanged}
}

// IsFlaggable reports whether events of kind count against the session.
func IsFlaggable(kind string) bool {
	_, ok := flaggable[kind]
	return ok
}

// Batch is a heartbeat's events ready for persistence.
type Batch struct {
	Events []model.EventLog
	// Flags to append to the session, one entry per flaggable event, in arrival order.
	Flags []string
}

// Classify stamps every event with the server time and collects the flags it
// raises. Client timestamps are kept for audit only.
func Classify(sessionID uuid.UUID, events []model.ClientEvent, now time.Time) Batch {
	b := Batch{Events: make([]model.EventLog, 0, len(events))}
	for _, ev := range events {
		kind := Normalize(ev.Type)
		if kind == "" {
			continue
		}
		b.Events = append(b.Events, model.EventLog{
			SessionID:       sessionID,
			EventType:       kind,
			Details:         ev.Details,
			ClientTimestamp: ev.Timestamp,
			RecordedAt:      now,
		})
		if IsFlaggable(kind) {
			b.Flags = append(b.Flags, kind)
		}
	}
	return b
}

// Check rejects a batch that cannot be stored whole: too many events or a
// kind longer than MaxKindLength characters after normalization.
func Check(events []model.ClientEvent) error {
	if len(events) > MaxBatchEvents {
		return fmt.Errorf("batch has %d events, limit is %d", len(events), MaxBatchEvents)
	}
	for i, ev := range events {
		if n := utf8.RuneCountInString(Normalize(ev.Type)); n > MaxKindLength {
			return fmt.Errorf("event %d: kind is %d characters, limit is %d", i, n, MaxKindLength)
		}
	}
	return nil
}

// Normalize lower-cases and trims an event kind.
func Normalize(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}
