package service

import (
	"context"
	"testing"
	"time"

	"github.com/stemsi/labexam-backend/internal/config"
	"github.com/stemsi/labexam-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorService_SnapshotStatuses(t *testing.T) {
	env := newTestEnv(t, config.SubmitPolicyReplay)
	ctx := context.Background()
	exam, _ := env.publishedExam(t, 2, 10)

	done := env.start(t, exam.ID, "a-done")
	_, err := env.sessions.Submit(ctx, done.SessionID, nil)
	require.NoError(t, err)

	active := env.start(t, exam.ID, "b-active")
	_, err = env.sessions.Heartbeat(ctx, active.SessionID, []model.ClientEvent{{Type: "focus_lost"}, {Type: "focus_lost"}})
	require.NoError(t, err)

	env.clock.Advance(5 * time.Minute)
	env.start(t, exam.ID, "c-late")
	env.clock.Advance(5*time.Minute + 30*time.Second)

	snap, err := env.monitor.Snapshot(ctx, env.prof, exam.ID)
	require.NoError(t, err)
	require.Len(t, snap.Sessions, 3)

	byID := map[string]model.MonitorSession{}
	for _, row := range snap.Sessions {
		byID[row.ParticipantID] = row
	}

	assert.Equal(t, model.MonitorStatusSubmitted, byID["a-done"].Status)
	require.NotNil(t, byID["a-done"].Score)
	assert.Equal(t, 0, *byID["a-done"].Score)

	assert.Equal(t, model.MonitorStatusExpired, byID["b-active"].Status)
	assert.Equal(t, 2, byID["b-active"].FlagCount)
	assert.Equal(t, int64(0), byID["b-active"].RemainingMs)

	assert.Equal(t, model.MonitorStatusInProgress, byID["c-late"].Status)
	assert.Equal(t, int64(270_000), byID["c-late"].RemainingMs)
	assert.Equal(t, 5, byID["c-late"].RemainingMin)
}

func TestMonitorService_StatsAndFlaggedFeed(t *testing.T) {
	env := newTestEnv(t, config.SubmitPolicyReplay)
	ctx := context.Background()
	exam, _ := env.publishedExam(t, 1, 10)

	_, err := env.auth.CreateUser(ctx, "prof@lab.test", "secret1", "Prof", "CS", "", model.UserRoleProfessor)
	require.NoError(t, err)
	reg, err := env.devices.Register(ctx, model.RegisterDeviceRequest{Hostname: "lab-01"})
	require.NoError(t, err)
	require.NoError(t, env.devices.Approve(ctx, reg.DeviceID))

	res := env.start(t, exam.ID, "p1")
	_, err = env.sessions.Heartbeat(ctx, res.SessionID, []model.ClientEvent{{Type: "focus_gained"}, {Type: "clipboard_blocked"}})
	require.NoError(t, err)
	_, err = env.sessions.Submit(ctx, res.SessionID, nil)
	require.NoError(t, err)

	stats, err := env.monitor.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Stats{Exams: 1, Users: 1, ApprovedDevices: 1, CompletedSessions: 1}, *stats)

	feed, err := env.monitor.FlaggedEvents(ctx)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "clipboard_blocked", feed[0].EventType)
	assert.Equal(t, "p1", feed[0].ParticipantID)

	events, err := env.monitor.SessionEvents(ctx, env.prof, exam.ID, res.SessionID)
	require.NoError(t, err)
	assert.Len(t, events, 4)
}
