// Package throttle bounds how often a user may request content.
package throttle

import (
	"context"
	"time"
)

type Result struct {
	Granted bool
	// Wait is the time left before the next request is allowed. Zero when granted.
	Wait time.Duration
}

// WaitSeconds is Wait rounded down to whole seconds.
func (r Result) WaitSeconds() int {
	return int(r.Wait / time.Second)
}

type Throttle interface {
	TryAcquire(ctx context.Context, userID int64, window time.Duration) (Result, error)
}
