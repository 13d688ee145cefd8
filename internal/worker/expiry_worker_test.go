package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type stubExpirer struct {
	mu      sync.Mutex
	results []int
	err     error
	calls   int
	grace   time.Duration
}

func (s *stubExpirer) ExpireOverdue(_ context.Context, grace time.Duration, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.grace = grace
	if s.err != nil {
		return 0, s.err
	}
	if len(s.results) == 0 {
		return 0, nil
	}
	n := s.results[0]
	s.results = s.results[1:]
	if n > limit {
		n = limit
	}
	return n, nil
}

func TestSweep_DrainsFullBatches(t *testing.T) {
	stub := &stubExpirer{results: []int{ExpiryBatchSize, ExpiryBatchSize, 3}}
	w := NewExpiryWorker(stub, time.Second, time.Minute, zerolog.Nop())

	n := w.Sweep(context.Background())

	assert.Equal(t, 2*ExpiryBatchSize+3, n)
	assert.Equal(t, 3, stub.calls)
	assert.Equal(t, time.Minute, stub.grace)
}

func TestSweep_StopsOnError(t *testing.T) {
	stub := &stubExpirer{err: errors.New("db down")}
	w := NewExpiryWorker(stub, time.Second, 0, zerolog.Nop())

	assert.Equal(t, 0, w.Sweep(context.Background()))
	assert.Equal(t, 1, stub.calls)
}

func TestStart_SweepsUntilCancelled(t *testing.T) {
	stub := &stubExpirer{}
	w := NewExpiryWorker(stub, 10*time.Millisecond, 0, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		return stub.calls >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
