package port

import (
	"context"
	"time"
)

type CounterStore interface {
	// GetCount reads the counter; ok is false when the key is absent or empty
	GetCount(ctx context.Context, key string) (count int64, ok bool, err error)

	// SetCount overwrites the counter with a value computed by the caller
	SetCount(ctx context.Context, key string, count int64) error
}

type LeaseLocker interface {
	// TryAcquire sets key to token only if absent, with ttl, in one command
	TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// Renew extends the ttl only if key still holds token
	Renew(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// Release deletes key only if it still holds token
	Release(ctx context.Context, key, token string) (bool, error)
}

type WatchedCounter interface {
	// DecrementWatched decrements under WATCH/MULTI/EXEC, returns false if the
	// counter is absent or zero and domain.ErrConflict if the commit aborted
	DecrementWatched(ctx context.Context, key string) (bool, error)
}

type ScriptedCounter interface {
	// DecrementStock atomically decreases the counter, returns false if insufficient
	DecrementStock(ctx context.Context, key string, quantity int) (bool, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}
