package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalMonitorBus_DeliversToExamSubscribersOnly(t *testing.T) {
	bus := NewLocalMonitorBus()
	ctx := context.Background()
	examA, examB := uuid.New(), uuid.New()

	subA, err := bus.Subscribe(ctx, examA)
	require.NoError(t, err)
	defer subA.Close()
	subB, err := bus.Subscribe(ctx, examB)
	require.NoError(t, err)
	defer subB.Close()

	require.NoError(t, bus.Publish(ctx, MonitorEvent{Type: MonitorFlagged, ExamID: examA, ParticipantID: "R-9", FlagCount: 3}))

	select {
	case raw := <-subA.Messages():
		var ev MonitorEvent
		require.NoError(t, json.Unmarshal(raw, &ev))
		assert.Equal(t, MonitorFlagged, ev.Type)
		assert.Equal(t, 3, ev.FlagCount)
	case <-time.After(time.Second):
		t.Fatal("subscriber of exam A got nothing")
	}

	select {
	case <-subB.Messages():
		t.Fatal("subscriber of exam B received exam A event")
	default:
	}
}

func TestLocalMonitorBus_CloseIsIdempotent(t *testing.T) {
	bus := NewLocalMonitorBus()
	sub, err := bus.Subscribe(context.Background(), uuid.New())
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	_, open := <-sub.Messages()
	assert.False(t, open)
}

func TestNopContentCache_AlwaysMisses(t *testing.T) {
	_, err := NopContentCache{}.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrMiss)
}
