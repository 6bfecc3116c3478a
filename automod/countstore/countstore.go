package countstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	PeriodTotal = "total"
	PeriodDay   = "day"
	PeriodHour  = "hour"
)

// Counter names for moderation actions. Each is tallied per sender and under ValueAll.
const (
	CounterFirstContact = "first-contact"
	CounterWarn         = "warn"
	CounterBan          = "ban"
	CounterDelete       = "delete"
	CounterCommand      = "command"
)

// Value under which the all-senders tally of a counter is kept
const ValueAll = "all"

type CountStore interface {
	GetCount(ctx context.Context, name, val, period string) (int, error)
	Increment(ctx context.Context, name, val string) error
	GetCountDistinct(ctx context.Context, name, bucket, period string) (int, error)
	IncrementDistinct(ctx context.Context, name, bucket, val string) error
}

// Implemented by stores which can record all the tallies of one action at once.
type ActionCounter interface {
	IncrementAction(ctx context.Context, name, sender string) error
}

// Records one moderation action against a sender: bumps the per-sender and all-senders counts, and the distinct count of senders it happened to.
func IncrementAction(ctx context.Context, cs CountStore, name, sender string) error {
	if ac, ok := cs.(ActionCounter); ok {
		if err := ac.IncrementAction(ctx, name, sender); err != nil {
			return fmt.Errorf("incrementing %s counters: %w", name, err)
		}
		return nil
	}
	if err := cs.Increment(ctx, name, sender); err != nil {
		return fmt.Errorf("incrementing %s counter: %w", name, err)
	}
	if err := cs.Increment(ctx, name, ValueAll); err != nil {
		return fmt.Errorf("incrementing %s counter: %w", name, err)
	}
	if err := cs.IncrementDistinct(ctx, name, ValueAll, sender); err != nil {
		return fmt.Errorf("incrementing %s distinct counter: %w", name, err)
	}
	return nil
}

// Point-in-time snapshot of the all-senders tallies, for status reporting
type Summary struct {
	Period string
	Counts map[string]int
	// distinct senders per counter
	Senders map[string]int
}

func Summarize(ctx context.Context, cs CountStore, period string) (*Summary, error) {
	s := Summary{
		Period:  period,
		Counts:  map[string]int{},
		Senders: map[string]int{},
	}
	for _, name := range []string{CounterFirstContact, CounterWarn, CounterBan, CounterDelete, CounterCommand} {
		c, err := cs.GetCount(ctx, name, ValueAll, period)
		if err != nil {
			return nil, err
		}
		d, err := cs.GetCountDistinct(ctx, name, ValueAll, period)
		if err != nil {
			return nil, err
		}
		s.Counts[name] = c
		s.Senders[name] = d
	}
	return &s, nil
}

func periodBucket(name, val, period string) string {
	switch period {
	case PeriodTotal:
		return fmt.Sprintf("%s/%s", name, val)
	case PeriodDay:
		t := time.Now().UTC().Format(time.DateOnly)
		return fmt.Sprintf("%s/%s/%s", name, val, t)
	case PeriodHour:
		t := time.Now().UTC().Format(time.RFC3339)[0:13]
		return fmt.Sprintf("%s/%s/%s", name, val, t)
	default:
		slog.Warn("unhandled counter period", "period", period)
		return fmt.Sprintf("%s/%s", name, val)
	}
}
