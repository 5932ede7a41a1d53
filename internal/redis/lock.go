package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("reservation lock not acquired")
)

// Locker guards the arbiter's check-and-write sections. One key per
// contested resource: a doctor's slot start, or an elder's session date.
// The lock is a fast-path filter in front of the datastore uniqueness
// guard, not the source of correctness.
type Locker interface {
	WithSlotLock(ctx context.Context, doctorID uuid.UUID, slotStart time.Time, fn func(ctx context.Context) error) error
	WithSessionLock(ctx context.Context, elderID uuid.UUID, sessionDate time.Time, fn func(ctx context.Context) error) error
}

type redisReservationLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisReservationLocker creates a locker keyed on Redis SetNX entries.
func NewRedisReservationLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisReservationLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisReservationLocker) WithSlotLock(ctx context.Context, doctorID uuid.UUID, slotStart time.Time, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:slot:%s:%d", doctorID.String(), slotStart.UTC().Unix())
	return l.withLock(ctx, key, fn)
}

func (l *redisReservationLocker) WithSessionLock(ctx context.Context, elderID uuid.UUID, sessionDate time.Time, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:session:%s:%s", elderID.String(), sessionDate.UTC().Format("2006-01-02"))
	return l.withLock(ctx, key, fn)
}

func (l *redisReservationLocker) withLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire reservation lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisReservationLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release reservation lock: %w", err)
	}
	return nil
}
