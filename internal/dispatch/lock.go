package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultLockTTL is the advisory lease duration §4.1 specifies: long
// enough to cover one assignment round-trip, short enough that a crashed
// holder can't wedge a booking indefinitely.
const DefaultLockTTL = 10 * time.Second

// releaseScript performs the compare-and-delete §4.1 requires: only the
// holder that set a lock may clear it, preventing a late release from one
// driver stomping a lock a different driver has since acquired.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// LockService is the C2 Booking Lock Service: a short-lived, best-effort
// exclusive lease keyed by booking id, acquired before the atomic
// assignment barrier in booking.Accept (I1).
type LockService interface {
	Acquire(ctx context.Context, bookingID, driverID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, bookingID, driverID string) error
}

// RedisLockService implements LockService with Redis SET NX PX plus a Lua
// compare-and-delete release, per §4.1's "redis when configured" note.
type RedisLockService struct {
	client *redis.Client
	prefix string
}

func NewRedisLockService(client *redis.Client) *RedisLockService {
	return &RedisLockService{client: client, prefix: "booking_lock:"}
}

func (s *RedisLockService) key(bookingID string) string {
	return s.prefix + bookingID
}

func (s *RedisLockService) Acquire(ctx context.Context, bookingID, driverID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(bookingID), driverID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock acquire: %w", err)
	}
	return ok, nil
}

func (s *RedisLockService) Release(ctx context.Context, bookingID, driverID string) error {
	res, err := s.client.Eval(ctx, releaseScript, []string{s.key(bookingID)}, driverID).Result()
	if err != nil {
		return fmt.Errorf("lock release: %w", err)
	}
	if n, _ := res.(int64); n == 0 {
		return ErrLockNotOwned
	}
	return nil
}

// InMemoryLockService is the single-process fallback §4.1 allows when no
// Redis is configured: a mutex-guarded map with lazy TTL expiry, matching
// the rest of this core's in-memory-fallback pattern (see geo, session).
type InMemoryLockService struct {
	mu    sync.Mutex
	locks map[string]inMemoryLock
}

type inMemoryLock struct {
	driverID string
	expires  time.Time
}

func NewInMemoryLockService() *InMemoryLockService {
	return &InMemoryLockService{locks: make(map[string]inMemoryLock)}
}

func (s *InMemoryLockService) Acquire(ctx context.Context, bookingID, driverID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if l, ok := s.locks[bookingID]; ok && l.expires.After(now) {
		return false, nil
	}
	s.locks[bookingID] = inMemoryLock{driverID: driverID, expires: now.Add(ttl)}
	return true, nil
}

func (s *InMemoryLockService) Release(ctx context.Context, bookingID, driverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[bookingID]
	if !ok {
		return nil
	}
	if l.driverID != driverID {
		return ErrLockNotOwned
	}
	delete(s.locks, bookingID)
	return nil
}
