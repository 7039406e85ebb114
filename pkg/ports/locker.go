package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker defines the interface for guarding a shared keyspace.
// The broker uses it to make sure only one instance owns a given persistence prefix.
type DistributedLocker interface {
	// Lock attempts to acquire a lock for the given key.
	// It blocks until the lock is acquired or the context is canceled.
	// The lock is kept alive until the returned UnlockFunc is called.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
