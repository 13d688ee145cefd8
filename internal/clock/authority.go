// Package clock is the single authority for exam deadlines. Every expiry and
// "may continue" decision is derived here from the server's own clock; times
// reported by clients never reach these functions.
package clock

import "time"

// Clock supplies the current server time.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.
type System struct{}

// Now returns the current UTC time.
func (System) Now() time.Time { return time.Now().UTC() }

// Authority computes the deadline of one session.
type Authority struct {
	StartedAt time.Time
	Duration  time.Duration
}

// For builds an Authority from a session start and an exam duration in minutes.
func For(startedAt time.Time, durationMinutes int) Authority {
	return Authority{
		StartedAt: startedAt,
		Duration:  time.Duration(durationMinutes) * time.Minute,
	}
}

// Deadline is start + duration.
func (a Authority) Deadline() time.Time {
	return a.StartedAt.Add(a.Duration)
}

// Remaining is max(0, deadline - now).
func (a Authority) Remaining(now time.Time) time.Duration {
	r := a.Deadline().Sub(now)
	if r < 0 {
		return 0
	}
	return r
}

// IsExpired reports now > deadline. The deadline instant itself is still in time.
func (a Authority) IsExpired(now time.Time) bool {
	return now.After(a.Deadline())
}

// RemainingMs is Remaining in whole milliseconds, as sent on the wire.
func (a Authority) RemainingMs(now time.Time) int64 {
	return a.Remaining(now).Milliseconds()
}

// RemainingMinutes rounds the remaining time up to whole minutes, for proctor display.
func (a Authority) RemainingMinutes(now time.Time) int {
	r := a.Remaining(now)
	return int((r + time.Minute - 1) / time.Minute)
}
