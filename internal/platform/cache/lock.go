package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// Locker hands out single-attempt distributed locks.
type Locker struct {
	redsync *redsync.Redsync
}

func NewLocker(client *redis.Client) *Locker {
	return &Locker{redsync: redsync.New(goredis.NewPool(client))}
}

// Lock is a held lock.
type Lock struct {
	mutex *redsync.Mutex
}

// TryLock acquires name for ttl without waiting. It returns (nil, nil) when
// another holder has it.
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	mutex := l.redsync.NewMutex(name, redsync.WithExpiry(ttl), redsync.WithTries(1))

	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.As(err, &taken) || errors.Is(err, redsync.ErrFailed) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	return &Lock{mutex: mutex}, nil
}

// Unlock releases the lock. An already expired lock is not an error.
func (l *Lock) Unlock(ctx context.Context) error {
	if _, err := l.mutex.UnlockContext(ctx); err != nil && !errors.Is(err, redsync.ErrLockAlreadyExpired) {
		return fmt.Errorf("failed to release lock %s: %w", l.mutex.Name(), err)
	}
	return nil
}
