package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAuthority_Deadline(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := For(start, 45)

	assert.Equal(t, start.Add(45*time.Minute), a.Deadline())
}

func TestAuthority_RemainingClampsAtZero(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := For(start, 10)

	assert.Equal(t, 10*time.Minute, a.Remaining(start))
	assert.Equal(t, 4*time.Minute, a.Remaining(start.Add(6*time.Minute)))
	assert.Equal(t, time.Duration(0), a.Remaining(a.Deadline()))
	assert.Equal(t, time.Duration(0), a.Remaining(start.Add(3*time.Hour)))
	assert.Equal(t, int64(0), a.RemainingMs(start.Add(11*time.Minute)))
}

func TestAuthority_RemainingIsMonotonic(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := For(start, 30)

	prev := a.Remaining(start.Add(-time.Minute))
	for step := 0; step < 200; step++ {
		now := start.Add(time.Duration(step) * 15 * time.Second)
		cur := a.Remaining(now)
		assert.LessOrEqual(t, cur, prev, "remaining grew at step %d", step)
		assert.GreaterOrEqual(t, cur, time.Duration(0))
		prev = cur
	}
}

func TestAuthority_IsExpiredExactlyAfterDeadline(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := For(start, 1)
	deadline := a.Deadline()

	assert.False(t, a.IsExpired(start))
	assert.False(t, a.IsExpired(deadline))
	assert.True(t, a.IsExpired(deadline.Add(time.Nanosecond)))

	// Once expired it stays expired.
	for i := 1; i < 50; i++ {
		assert.True(t, a.IsExpired(deadline.Add(time.Duration(i)*time.Second)))
	}
}

func TestAuthority_RemainingMinutesRoundsUp(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := For(start, 10)

	assert.Equal(t, 10, a.RemainingMinutes(start))
	assert.Equal(t, 1, a.RemainingMinutes(a.Deadline().Add(-time.Second)))
	assert.Equal(t, 0, a.RemainingMinutes(a.Deadline()))
}
