package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSession_State(t *testing.T) {
	at := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	submitted, expired := SubmitReasonSubmitted, SubmitReasonExpired

	active := &Session{}
	assert.Equal(t, SessionStateActive, active.State(false))
	assert.Equal(t, SessionStateExpired, active.State(true))

	done := &Session{SubmittedAt: &at, SubmitReason: &submitted}
	assert.Equal(t, SessionStateSubmitted, done.State(false))
	assert.Equal(t, SessionStateSubmitted, done.State(true))

	swept := &Session{SubmittedAt: &at, SubmitReason: &expired}
	assert.Equal(t, SessionStateExpired, swept.State(false))
}
