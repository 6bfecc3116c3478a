package recordstore

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/tgwarden/warden/automod/event"
)

// max optimistic attempts before giving up with ErrConflict
var MaxMutateAttempts = 32

// subset of RecordStore needed to build the read-modify-write helpers
type casStore interface {
	Get(ctx context.Context, id event.SenderID) (*Record, error)
	Create(ctx context.Context, rec Record) (bool, error)
	CompareAndSwap(ctx context.Context, prev, next Record) (bool, error)
}

// Runs a read-modify-write on a single record, retrying whenever a concurrent writer wins. If create is true and the record is absent, fn is applied to a fresh record (zero message count) which is then inserted.
//
// fn may be called more than once and must not have side effects.
func mutate(ctx context.Context, s casStore, id event.SenderID, create bool, fn func(*Record) error) (*Record, error) {
	for i := 0; i < MaxMutateAttempts; i++ {
		if i > 0 {
			// jitter so racing writers spread out
			time.Sleep(time.Duration(rand.Int63n(int64(time.Millisecond))))
		}
		cur, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if cur == nil {
			if !create {
				return nil, ErrNotFound
			}
			rec := NewRecord(id)
			rec.MessageCount = 0
			if err := fn(&rec); err != nil {
				return nil, err
			}
			ok, err := s.Create(ctx, rec)
			if err != nil {
				return nil, err
			}
			if ok {
				return s.Get(ctx, id)
			}
			continue
		}

		next := *cur
		if err := fn(&next); err != nil {
			return nil, err
		}
		ok, err := s.CompareAndSwap(ctx, *cur, next)
		if err != nil {
			return nil, err
		}
		if ok {
			next.Version = cur.Version + 1
			return &next, nil
		}
	}
	return nil, fmt.Errorf("%w: sender %s", ErrConflict, id)
}

func updateRecord(ctx context.Context, s casStore, id event.SenderID, upd Update, create bool) (*Record, error) {
	if err := upd.validate(); err != nil {
		return nil, err
	}
	return mutate(ctx, s, id, create, upd.Apply)
}

func incrementRecord(ctx context.Context, s casStore, id event.SenderID, field Field, delta int) (int, error) {
	if err := field.Validate(); err != nil {
		return 0, err
	}
	var out int
	_, err := mutate(ctx, s, id, false, func(rec *Record) error {
		var p *int
		switch field {
		case FieldMessageCount:
			p = &rec.MessageCount
		case FieldWarningsRemaining:
			p = &rec.WarningsRemaining
		}
		if *p+delta < 0 {
			return fmt.Errorf("%w: %s=%d delta=%d", ErrNegative, field, *p, delta)
		}
		*p += delta
		out = *p
		return nil
	})
	if err != nil {
		return 0, err
	}
	return out, nil
}
