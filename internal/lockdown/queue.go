package lockdown

import (
	"sync"

	"github.com/stemsi/labexam-backend/internal/model"
)

// DefaultQueueCapacity bounds the local queue when the server is unreachable
// for a long time. The oldest events are dropped first.
const DefaultQueueCapacity = 2000

// Queue holds events until the next heartbeat delivers them.
type Queue struct {
	mu       sync.Mutex
	events   []model.ClientEvent
	capacity int
	dropped  int
}

// NewQueue creates a queue holding at most capacity events.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{capacity: capacity}
}

// Push appends ev and returns the new length.
func (q *Queue) Push(ev model.ClientEvent) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.events = append(q.events, ev)
	q.trimLocked()
	return len(q.events)
}

// Drain removes and returns up to max events from the front.
func (q *Queue) Drain(max int) []model.ClientEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.events)
	if max > 0 && n > max {
		n = max
	}
	if n == 0 {
		return nil
	}
	out := make([]model.ClientEvent, n)
	copy(out, q.events[:n])
	q.events = q.events[n:]
	return out
}

// Requeue puts events that failed to deliver back in front of newer ones.
func (q *Queue) Requeue(events []model.ClientEvent) {
	if len(events) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	merged := make([]model.ClientEvent, 0, len(events)+len(q.events))
	merged = append(merged, events...)
	merged = append(merged, q.events...)
	q.events = merged
	q.trimLocked()
}

// Len is the number of pending events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Dropped is the number of events discarded because the queue was full.
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *Queue) trimLocked() {
	if over := len(q.events) - q.capacity; over > 0 {
		q.events = q.events[over:]
		q.dropped += over
	}
}
