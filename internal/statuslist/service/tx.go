package service

import (
	"context"
	"time"

	dErrors "openbadges/pkg/domain-errors"
)

// defaultLockTimeout bounds how long a caller waits for and holds a list lock
// when its context carries no deadline.
const defaultLockTimeout = 5 * time.Second

// withLock runs fn inside the per-key critical section. Callers must never
// nest withLock calls: two keys may share a shard.
func (s *Service) withLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "status list operation aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultLockTimeout)
		defer cancel()
	}

	lockStart := time.Now()
	s.locks.Lock(key)
	s.metrics.ObserveStatusLockWait(time.Since(lockStart).Seconds())
	defer s.locks.Unlock(key)

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "status list operation aborted: context cancelled")
	}
	return fn(ctx)
}
