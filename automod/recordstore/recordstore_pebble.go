package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/tgwarden/warden/automod/event"
)

var pebbleRecordPrefix = "record/"

// Record store backed by an embedded pebble database.
//
// Pebble holds an exclusive lock on its directory, so this process is the only writer. Read-modify-write sequences are serialized with an in-process mutex; reads are lock-free.
type PebbleRecordStore struct {
	db *pebble.DB
	lk sync.Mutex
}

var _ RecordStore = (*PebbleRecordStore)(nil)

func NewPebbleRecordStore(path string) (*PebbleRecordStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("%s: could not open pebble db: %w", path, err)
	}
	return &PebbleRecordStore{db: db}, nil
}

func pebbleRecordKey(id event.SenderID) []byte {
	return []byte(pebbleRecordPrefix + id.String())
}

func (s *PebbleRecordStore) Get(ctx context.Context, id event.SenderID) (*Record, error) {
	val, closer, err := s.db.Get(pebbleRecordKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading record %s: %w", id, err)
	}
	defer closer.Close()

	var rec Record
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("decoding record %s: %w", id, err)
	}
	return &rec, nil
}

func (s *PebbleRecordStore) put(rec *Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Set(pebbleRecordKey(rec.SenderID), b, pebble.Sync)
}

func (s *PebbleRecordStore) Create(ctx context.Context, rec Record) (bool, error) {
	if err := validateRecord(&rec); err != nil {
		return false, err
	}
	s.lk.Lock()
	defer s.lk.Unlock()

	cur, err := s.Get(ctx, rec.SenderID)
	if err != nil {
		return false, err
	}
	if cur != nil {
		return false, nil
	}
	now := time.Now().UTC()
	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if err := s.put(&rec); err != nil {
		return false, fmt.Errorf("writing record %s: %w", rec.SenderID, err)
	}
	return true, nil
}

func (s *PebbleRecordStore) CompareAndSwap(ctx context.Context, prev, next Record) (bool, error) {
	if err := validateRecord(&next); err != nil {
		return false, err
	}
	s.lk.Lock()
	defer s.lk.Unlock()

	cur, err := s.Get(ctx, prev.SenderID)
	if err != nil {
		return false, err
	}
	if cur == nil || cur.Version != prev.Version {
		return false, nil
	}
	next.SenderID = cur.SenderID
	next.Version = cur.Version + 1
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	if err := s.put(&next); err != nil {
		return false, fmt.Errorf("writing record %s: %w", next.SenderID, err)
	}
	return true, nil
}

func (s *PebbleRecordStore) Upsert(ctx context.Context, id event.SenderID, upd Update) (*Record, error) {
	return updateRecord(ctx, s, id, upd, true)
}

func (s *PebbleRecordStore) Update(ctx context.Context, id event.SenderID, upd Update) (*Record, error) {
	return updateRecord(ctx, s, id, upd, false)
}

func (s *PebbleRecordStore) Increment(ctx context.Context, id event.SenderID, field Field, delta int) (int, error) {
	return incrementRecord(ctx, s, id, field, delta)
}

func (s *PebbleRecordStore) Find(ctx context.Context, filter Filter) ([]Record, error) {
	iter, err := s.db.NewIterWithContext(ctx, &pebble.IterOptions{
		LowerBound: []byte(pebbleRecordPrefix),
		UpperBound: []byte(pebbleRecordPrefix + "\xff"),
	})
	if err != nil {
		return nil, fmt.Errorf("record iter start: %w", err)
	}
	defer iter.Close()

	out := []Record{}
	for iter.First(); iter.Valid(); iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			return nil, fmt.Errorf("record iter: %w", err)
		}
		var rec Record
		if err := json.Unmarshal(val, &rec); err != nil {
			return nil, fmt.Errorf("decoding record %s: %w", iter.Key(), err)
		}
		if filter.Match(&rec) {
			out = append(out, rec)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	// keys sort lexically by sender id; re-order by creation time
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SenderID < out[j].SenderID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *PebbleRecordStore) Close() error {
	if err := s.db.Flush(); err != nil {
		return err
	}
	return s.db.Close()
}
