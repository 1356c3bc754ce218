// Package stats counts delivery outcomes. Recording is best-effort: callers
// log failures and carry on.
package stats

import (
	"context"
	"time"
)

type Event struct {
	Outcome string
	UserID  int64
	At      time.Time
}

type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Snapshotter exposes cumulative counts per outcome.
type Snapshotter interface {
	Totals(ctx context.Context) (map[string]int64, error)
}

// Nop discards events and reports no totals.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

func (Nop) Totals(context.Context) (map[string]int64, error) { return map[string]int64{}, nil }
