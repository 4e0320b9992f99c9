package vetflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	redlock "github.com/blnkfinance/vetflow/internal/lock"
)

// InFlightGuard admits one running instance of an operation per key. Duplicate
// attempts fail with ErrInFlight until the first one releases.
type InFlightGuard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type memoryGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryGuard() InFlightGuard {
	return &memoryGuard{held: make(map[string]struct{})}
}

func (g *memoryGuard) Acquire(_ context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[key]; ok {
		return nil, ErrInFlight
	}
	g.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, nil
}

type redisGuard struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisGuard shares in-flight state across processes. ttl bounds how long a crashed
// holder can block the operation.
func NewRedisGuard(client redis.UniversalClient, ttl time.Duration) InFlightGuard {
	return &redisGuard{client: client, ttl: ttl}
}

func (g *redisGuard) Acquire(ctx context.Context, key string) (func(), error) {
	locker := redlock.NewLocker(g.client, "vetflow:inflight:"+key, uuid.NewString())
	if err := locker.Lock(ctx, g.ttl); err != nil {
		if errors.Is(err, redlock.ErrLockHeld) {
			return nil, ErrInFlight
		}
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := locker.Unlock(context.Background()); err != nil {
				logrus.WithError(err).WithField("key", key).Warn("failed to release in-flight lock")
			}
		})
	}, nil
}

// sessionLocker serialises state read-modify-write cycles of one session. It is never
// held across settlement or backend calls.
type sessionLocker interface {
	lock(ctx context.Context, sessionID string) (unlock func(), err error)
}

type refMutex struct {
	sync.Mutex
	refs int
}

type memorySessionLocks struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

func newMemorySessionLocks() *memorySessionLocks {
	return &memorySessionLocks{locks: make(map[string]*refMutex)}
}

func (m *memorySessionLocks) lock(ctx context.Context, sessionID string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &refMutex{}
		m.locks[sessionID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, sessionID)
		}
		m.mu.Unlock()
	}, nil
}

type redisSessionLocks struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func (r *redisSessionLocks) lock(ctx context.Context, sessionID string) (func(), error) {
	locker := redlock.NewLocker(r.client, "vetflow:lock:"+sessionID, uuid.NewString())
	if err := locker.WaitLock(ctx, r.ttl, r.ttl); err != nil {
		return nil, err
	}
	return func() {
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.WithError(err).WithField("session_id", sessionID).Warn("failed to release session lock")
		}
	}, nil
}
