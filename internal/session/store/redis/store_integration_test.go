//go:build integration

package redis_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"phiguard/internal/session"
	redisstore "phiguard/internal/session/store/redis"
	"phiguard/pkg/domain"
	"phiguard/pkg/platform/sentinel"
	"phiguard/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *redisstore.Store
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = redisstore.New(s.redis.Client, redisstore.WithMaxRetries(50))
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func makeSession(now time.Time) *session.Session {
	return &session.Session{
		ID:             domain.NewSessionID(),
		PrincipalID:    "caregiver-42",
		CreatedAt:      now,
		LastActivityAt: now,
		Status:         session.StatusActive,
	}
}

func (s *RedisStoreSuite) TestCreateFind() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	sess := makeSession(now)
	s.Require().NoError(s.store.Create(ctx, sess))

	found, err := s.store.FindByID(ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(sess.ID, found.ID)
	s.True(now.Equal(found.LastActivityAt))

	s.ErrorIs(s.store.Create(ctx, sess), sentinel.ErrConflict)

	_, err = s.store.FindByID(ctx, domain.NewSessionID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentRefreshesKeepLatest verifies WATCH/MULTI serialises read-modify-write:
// the stored activity time ends as the maximum of all concurrent refreshes.
func (s *RedisStoreSuite) TestConcurrentRefreshesKeepLatest() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	sess := makeSession(base)
	s.Require().NoError(s.store.Create(ctx, sess))

	const goroutines = 20
	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Execute(ctx, sess.ID, func(x *session.Session) error {
				x.Touch(base.Add(time.Duration(i+1) * time.Second))
				return nil
			})
			if err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(0), failures.Load())
	found, err := s.store.FindByID(ctx, sess.ID)
	s.Require().NoError(err)
	s.True(base.Add(goroutines*time.Second).Equal(found.LastActivityAt))
}

// TestExpiryWinsOverConcurrentRefresh verifies an expired session is never
// reactivated by refreshes racing with the expiry write.
func (s *RedisStoreSuite) TestExpiryWinsOverConcurrentRefresh() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	sess := makeSession(base)
	s.Require().NoError(s.store.Create(ctx, sess))

	var wg sync.WaitGroup
	wg.Add(11)
	go func() {
		defer wg.Done()
		_ = s.store.Invalidate(ctx, sess.ID, session.StatusExpired, base.Add(time.Minute))
	}()
	for range 10 {
		go func() {
			defer wg.Done()
			_, _ = s.store.Execute(ctx, sess.ID, func(x *session.Session) error {
				if x.IsTerminal() {
					return sentinel.ErrExpired
				}
				x.Touch(base.Add(30 * time.Second))
				return nil
			})
		}()
	}
	wg.Wait()

	found, err := s.store.FindByID(ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(session.StatusExpired, found.Status)
}
