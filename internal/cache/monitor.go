package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/labexam-backend/internal/config"
)

// Monitor event types.
const (
	MonitorSessionStarted = "session_started"
	MonitorSessionResumed = "session_resumed"
	MonitorFlagged        = "flagged"
	MonitorSubmitted      = "submitted"
	MonitorExpired        = "expired"
)

// MonitorEvent is a live update pushed to proctors watching an exam.
type MonitorEvent struct {
	Type          string    `json:"type"`
	ExamID        uuid.UUID `json:"exam_id"`
	SessionID     uuid.UUID `json:"session_id"`
	ParticipantID string    `json:"participant_id"`
	FlagCount     int       `json:"flag_count,omitempty"`
	Score         *int      `json:"score,omitempty"`
	Total         *int      `json:"total,omitempty"`
	At            time.Time `json:"at"`
}

// Subscription delivers raw JSON-encoded MonitorEvents until closed.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// MonitorBus fans monitor events out to every subscriber of an exam.
type MonitorBus interface {
	Publish(ctx context.Context, ev MonitorEvent) error
	Subscribe(ctx context.Context, examID uuid.UUID) (Subscription, error)
}

// RedisMonitorBus uses Redis pub/sub on exam:<id>:monitor so every server
// instance sees every event.
type RedisMonitorBus struct {
	rdb *redis.Client
}

// NewRedisMonitorBus creates a RedisMonitorBus.
func NewRedisMonitorBus(rdb *redis.Client) *RedisMonitorBus {
	return &RedisMonitorBus{rdb: rdb}
}

func (b *RedisMonitorBus) Publish(ctx context.Context, ev MonitorEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(ev.ExamID.String()), data).Err(); err != nil {
		return fmt.Errorf("publish monitor event: %w", err)
	}
	return nil
}

func (b *RedisMonitorBus) Subscribe(ctx context.Context, examID uuid.UUID) (Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			default:
			}
		}
	}()
	return &redisSubscription{pubsub: pubsub, out: out}, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	out    chan []byte
}

func (s *redisSubscription) Messages() <-chan []byte { return s.out }
func (s *redisSubscription) Close() error            { return s.pubsub.Close() }

// LocalMonitorBus is an in-process bus for single-instance deployments and tests.
// Slow subscribers drop events rather than block publishers.
type LocalMonitorBus struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[*localSubscription]struct{}
}

// NewLocalMonitorBus creates a LocalMonitorBus.
func NewLocalMonitorBus() *LocalMonitorBus {
	return &LocalMonitorBus{subs: make(map[uuid.UUID]map[*localSubscription]struct{})}
}

func (b *LocalMonitorBus) Publish(_ context.Context, ev MonitorEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs[ev.ExamID] {
		select {
		case s.out <- data:
		default:
		}
	}
	return nil
}

func (b *LocalMonitorBus) Subscribe(_ context.Context, examID uuid.UUID) (Subscription, error) {
	s := &localSubscription{bus: b, examID: examID, out: make(chan []byte, 16)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[examID] == nil {
		b.subs[examID] = make(map[*localSubscription]struct{})
	}
	b.subs[examID][s] = struct{}{}
	return s, nil
}

type localSubscription struct {
	bus    *LocalMonitorBus
	examID uuid.UUID
	out    chan []byte
	once   sync.Once
}

func (s *localSubscription) Messages() <-chan []byte { return s.out }

func (s *localSubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		delete(s.bus.subs[s.examID], s)
		if len(s.bus.subs[s.examID]) == 0 {
			delete(s.bus.subs, s.examID)
		}
		close(s.out)
	})
	return nil
}
