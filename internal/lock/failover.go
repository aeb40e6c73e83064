package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Locker is the contract shared by every lock implementation in this package.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// FailoverLocker uses the primary locker and switches to the fallback while
// the primary is failing. The primary is retried after retryAfter.
type FailoverLocker struct {
	primary    Locker
	fallback   Locker
	logger     *zerolog.Logger
	retryAfter time.Duration

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

// NewFailoverLocker creates a locker that degrades to fallback on primary errors.
func NewFailoverLocker(primary, fallback Locker, logger *zerolog.Logger) *FailoverLocker {
	return &FailoverLocker{
		primary:    primary,
		fallback:   fallback,
		logger:     logger,
		retryAfter: time.Minute,
	}
}

func (f *FailoverLocker) Lock(ctx context.Context, key string) (func(), error) {
	if f.shouldUsePrimary() {
		unlock, err := f.primary.Lock(ctx, key)
		if err == nil {
			if f.isDown.Swap(false) {
				f.logger.Info().Msg("primary locker recovered")
			}
			return unlock, nil
		}
		// Contention and caller cancellation are not outages.
		if errors.Is(err, ErrLockTimeout) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		f.markDown(err)
	}

	return f.fallback.Lock(ctx, key)
}

func (f *FailoverLocker) shouldUsePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) > f.retryAfter {
		f.lastCheck = time.Now()
		return true
	}
	return false
}

func (f *FailoverLocker) markDown(err error) {
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
	if !f.isDown.Swap(true) {
		f.logger.Warn().Err(err).Msg("primary locker failed, switching to in-process fallback")
	}
}
