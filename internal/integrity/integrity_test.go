package integrity

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/labexam-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_ServerTimeWins(t *testing.T) {
	sid := uuid.New()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	claimed := now.Add(-2 * time.Hour)

	b := Classify(sid, []model.ClientEvent{
		{Type: "focus_lost", Timestamp: &claimed, Details: json.RawMessage(`{"window":"main"}`)},
	}, now)

	require.Len(t, b.Events, 1)
	ev := b.Events[0]
	assert.Equal(t, sid, ev.SessionID)
	assert.Equal(t, now, ev.RecordedAt)
	require.NotNil(t, ev.ClientTimestamp)
	assert.Equal(t, claimed, *ev.ClientTimestamp)
	assert.JSONEq(t, `{"window":"main"}`, string(ev.Details))
}

func TestClassify_OnlyFlaggableKindsRaiseFlags(t *testing.T) {
	now := time.Now().UTC()
	b := Classify(uuid.New(), []model.ClientEvent{
		{Type: "focus_lost"},
		{Type: "focus_gained"},
		{Type: "BLOCKED_SHORTCUT"},
		{Type: "clipboard_blocked"},
		{Type: "focus_lost"},
		{Type: "display_changed"},
		{Type: "   "},
	}, now)

	assert.Len(t, b.Events, 6)
	assert.Equal(t, []string{
		KindFocusLost, KindBlockedShortcut, KindClipboardBlocked, KindFocusLost, KindDisplayChanged,
	}, b.Flags)
}

func TestClassify_Empty(t *testing.T) {
	b := Classify(uuid.New(), nil, time.Now())

	assert.Empty(t, b.Events)
	assert.Empty(t, b.Flags)
}

func TestIsFlaggable(t *testing.T) {
	assert.True(t, IsFlaggable(KindDisplayChanged))
	assert.False(t, IsFlaggable("exam_started"))
}

func TestCheck_Limits(t *testing.T) {
	assert.NoError(t, Check(nil))
	assert.NoError(t, Check([]model.ClientEvent{{Type: "  " + strings.Repeat("x", MaxKindLength) + " "}}))
	assert.NoError(t, Check([]model.ClientEvent{{Type: strings.Repeat("é", MaxKindLength)}}))

	err := Check([]model.ClientEvent{{Type: KindFocusLost}, {Type: strings.Repeat("x", MaxKindLength+1)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event 1")

	assert.Error(t, Check(make([]model.ClientEvent, MaxBatchEvents+1)))
}
