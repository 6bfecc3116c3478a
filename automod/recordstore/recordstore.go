package recordstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tgwarden/warden/automod/event"
)

// Number of warnings a new sender starts with.
const DefaultMaxWarnings = 5

var (
	ErrNotFound = errors.New("moderation record not found")
	// Returned when a mutation would leave a numeric field below zero. Nothing is persisted.
	ErrNegative = errors.New("moderation record field would go negative")
	// Returned when an optimistic update lost the race too many times in a row.
	ErrConflict = errors.New("moderation record update conflict")
)

// Persisted moderation state for a single sender. All fields are always present.
type Record struct {
	SenderID          event.SenderID `json:"sender_id"`
	MessageCount      int            `json:"message_count"`
	WarningsRemaining int            `json:"warnings_remaining"`
	Approved          bool           `json:"approved"`
	Banned            bool           `json:"banned"`
	// Incremented by the store on every successful write. Used for CompareAndSwap.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// The state of a sender's record on first contact.
func NewRecord(id event.SenderID) Record {
	return Record{
		SenderID:          id,
		MessageCount:      1,
		WarningsRemaining: DefaultMaxWarnings,
	}
}

// Numeric record fields which support atomic increment.
type Field string

const (
	FieldMessageCount      Field = "message_count"
	FieldWarningsRemaining Field = "warnings_remaining"
)

func (f Field) Validate() error {
	switch f {
	case FieldMessageCount, FieldWarningsRemaining:
		return nil
	default:
		return fmt.Errorf("unsupported record field: %q", string(f))
	}
}

// Field-level update. Nil pointers leave the field untouched.
type Update struct {
	MessageCount      *int
	WarningsRemaining *int
	Approved          *bool
	Banned            *bool
}

func (u Update) validate() error {
	if u.MessageCount != nil && *u.MessageCount < 0 {
		return fmt.Errorf("%w: message_count=%d", ErrNegative, *u.MessageCount)
	}
	if u.WarningsRemaining != nil && *u.WarningsRemaining < 0 {
		return fmt.Errorf("%w: warnings_remaining=%d", ErrNegative, *u.WarningsRemaining)
	}
	return nil
}

// Applies the update to a record in place
func (u Update) Apply(rec *Record) error {
	if err := u.validate(); err != nil {
		return err
	}
	if u.MessageCount != nil {
		rec.MessageCount = *u.MessageCount
	}
	if u.WarningsRemaining != nil {
		rec.WarningsRemaining = *u.WarningsRemaining
	}
	if u.Approved != nil {
		rec.Approved = *u.Approved
	}
	if u.Banned != nil {
		rec.Banned = *u.Banned
	}
	return nil
}

func (u Update) String() string {
	parts := []string{}
	if u.MessageCount != nil {
		parts = append(parts, fmt.Sprintf("message_count=%d", *u.MessageCount))
	}
	if u.WarningsRemaining != nil {
		parts = append(parts, fmt.Sprintf("warnings_remaining=%d", *u.WarningsRemaining))
	}
	if u.Approved != nil {
		parts = append(parts, fmt.Sprintf("approved=%t", *u.Approved))
	}
	if u.Banned != nil {
		parts = append(parts, fmt.Sprintf("banned=%t", *u.Banned))
	}
	return strings.Join(parts, " ")
}

// Record selector for scans. Nil pointers match any value.
type Filter struct {
	Approved *bool
	Banned   *bool
}

func (f Filter) Match(rec *Record) bool {
	if f.Approved != nil && rec.Approved != *f.Approved {
		return false
	}
	if f.Banned != nil && rec.Banned != *f.Banned {
		return false
	}
	return true
}

type RecordStore interface {
	// Returns (nil, nil) when no record exists for the sender.
	Get(ctx context.Context, id event.SenderID) (*Record, error)
	// Inserts the record if no record exists for the sender. Returns false (and no error) if one already existed.
	Create(ctx context.Context, rec Record) (bool, error)
	// Applies the update, first creating a record (zero message count, full warnings) if none exists.
	Upsert(ctx context.Context, id event.SenderID, upd Update) (*Record, error)
	// Applies the update to an existing record. Returns ErrNotFound if there is none.
	Update(ctx context.Context, id event.SenderID, upd Update) (*Record, error)
	// Atomically adds delta to a numeric field and returns the new value. Returns ErrNegative (without writing) if the result would be below zero.
	Increment(ctx context.Context, id event.SenderID, field Field, delta int) (int, error)
	// Replaces the stored record with next, only if the stored version still equals prev.Version. Returns false if the record changed (or vanished) in the meantime.
	CompareAndSwap(ctx context.Context, prev, next Record) (bool, error)
	// Returns all matching records, in insertion order.
	Find(ctx context.Context, filter Filter) ([]Record, error)
	Close() error
}

// Small helpers for building Update and Filter values
func Bool(v bool) *bool { return &v }
func Int(v int) *int    { return &v }
