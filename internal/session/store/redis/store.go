// Package redis stores sessions in Redis so every instance behind the load balancer
// sees the same idle clock. Read-modify-write uses WATCH/MULTI optimistic locking.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"phiguard/internal/session"
	"phiguard/pkg/domain"
	"phiguard/pkg/platform/sentinel"
)

const (
	keyPrefix = "phiguard:session:"

	defaultTTL        = 24 * time.Hour
	defaultMaxRetries = 5
)

var (
	redisOpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "phiguard_session_redis_op_duration_seconds",
		Help:    "Latency of Redis session store operations",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
	}, []string{"op"})

	casConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phiguard_session_redis_cas_conflicts_total",
		Help: "Number of WATCH conflicts retried by the Redis session store",
	})
)

// Store is a Redis-backed session.Store.
type Store struct {
	client     *redis.Client
	ttl        time.Duration
	maxRetries int
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets how long a session record is retained after its last write.
// It must exceed the idle timeout so expiry is decided by the monitor, not Redis.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMaxRetries bounds optimistic-lock retries for Execute.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// New creates a Redis session store.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, ttl: defaultTTL, maxRetries: defaultMaxRetries}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sessionKey(id domain.SessionID) string {
	return keyPrefix + id.String()
}

func (s *Store) Create(ctx context.Context, sess *session.Session) error {
	start := time.Now()
	defer func() { redisOpLatency.WithLabelValues("create").Observe(time.Since(start).Seconds()) }()

	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	created, err := s.client.SetNX(ctx, sessionKey(sess.ID), payload, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !created {
		return fmt.Errorf("session %s: %w", sess.ID, sentinel.ErrConflict)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id domain.SessionID) (*session.Session, error) {
	start := time.Now()
	defer func() { redisOpLatency.WithLabelValues("find").Observe(time.Since(start).Seconds()) }()

	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return decode(data)
}

// Execute retries on WATCH conflicts up to maxRetries times. fn may therefore run more
// than once and must only mutate the session it is given.
func (s *Store) Execute(ctx context.Context, id domain.SessionID, fn func(*session.Session) error) (*session.Session, error) {
	start := time.Now()
	defer func() { redisOpLatency.WithLabelValues("execute").Observe(time.Since(start).Seconds()) }()

	key := sessionKey(id)
	var result *session.Session

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("session %s: %w", id, sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}

		sess, err := decode(data)
		if err != nil {
			return err
		}
		if err := fn(sess); err != nil {
			return err
		}

		payload, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		result = sess
		return nil
	}

	for range s.maxRetries {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
		casConflicts.Inc()
	}
	return nil, fmt.Errorf("session %s: optimistic lock retries exhausted: %w", id, sentinel.ErrConflict)
}

func (s *Store) Invalidate(ctx context.Context, id domain.SessionID, status session.Status, at time.Time) error {
	_, err := s.Execute(ctx, id, func(sess *session.Session) error {
		sess.End(status, at)
		return nil
	})
	return err
}

func decode(data []byte) (*session.Session, error) {
	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}
