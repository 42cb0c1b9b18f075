// Package lock serializes the conflict-check-then-write sequence of the
// scheduler per (practitioner, date) key, so two concurrent bookings for the
// same practitioner's day cannot both pass the conflict check.
package lock

import (
	"context"
	"errors"
)

var ErrNotAcquired = errors.New("schedule lock not acquired")

// Locker guards a critical section identified by an opaque key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
