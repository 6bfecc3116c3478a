package recordstore

import (
	"context"
	"sync"
	"time"

	"github.com/tgwarden/warden/automod/event"
)

// In-process record store. Race-safe, but not durable: intended for tests and throwaway deployments.
type MemRecordStore struct {
	lk      sync.Mutex
	records map[event.SenderID]*Record
	order   []event.SenderID
}

var _ RecordStore = (*MemRecordStore)(nil)

func NewMemRecordStore() *MemRecordStore {
	return &MemRecordStore{
		records: make(map[event.SenderID]*Record),
	}
}

func (s *MemRecordStore) Get(ctx context.Context, id event.SenderID) (*Record, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (s *MemRecordStore) Create(ctx context.Context, rec Record) (bool, error) {
	if err := validateRecord(&rec); err != nil {
		return false, err
	}
	s.lk.Lock()
	defer s.lk.Unlock()
	if _, ok := s.records[rec.SenderID]; ok {
		return false, nil
	}
	now := time.Now().UTC()
	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.records[rec.SenderID] = &rec
	s.order = append(s.order, rec.SenderID)
	return true, nil
}

func (s *MemRecordStore) CompareAndSwap(ctx context.Context, prev, next Record) (bool, error) {
	if err := validateRecord(&next); err != nil {
		return false, err
	}
	s.lk.Lock()
	defer s.lk.Unlock()
	cur, ok := s.records[prev.SenderID]
	if !ok || cur.Version != prev.Version {
		return false, nil
	}
	next.SenderID = cur.SenderID
	next.Version = cur.Version + 1
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	s.records[cur.SenderID] = &next
	return true, nil
}

func (s *MemRecordStore) Upsert(ctx context.Context, id event.SenderID, upd Update) (*Record, error) {
	return updateRecord(ctx, s, id, upd, true)
}

func (s *MemRecordStore) Update(ctx context.Context, id event.SenderID, upd Update) (*Record, error) {
	return updateRecord(ctx, s, id, upd, false)
}

func (s *MemRecordStore) Increment(ctx context.Context, id event.SenderID, field Field, delta int) (int, error) {
	return incrementRecord(ctx, s, id, field, delta)
}

func (s *MemRecordStore) Find(ctx context.Context, filter Filter) ([]Record, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	out := []Record{}
	for _, id := range s.order {
		rec := s.records[id]
		if filter.Match(rec) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *MemRecordStore) Close() error {
	return nil
}

func validateRecord(rec *Record) error {
	if rec.MessageCount < 0 || rec.WarningsRemaining < 0 {
		return ErrNegative
	}
	return nil
}
