package recordstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tgwarden/warden/automod/event"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Record store backed by a SQL database (sqlite or postgres) through gorm. Use cliutil.SetupDatabase to open the connection.
type GormRecordStore struct {
	db *gorm.DB
}

var _ RecordStore = (*GormRecordStore)(nil)

type recordRow struct {
	// auto-increment primary key doubles as insertion order
	ID                uint  `gorm:"primaryKey"`
	SenderID          int64 `gorm:"uniqueIndex;not null"`
	MessageCount      int   `gorm:"not null"`
	WarningsRemaining int   `gorm:"not null"`
	Approved          bool  `gorm:"index;not null"`
	Banned            bool  `gorm:"index;not null"`
	Version           int64 `gorm:"not null"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (recordRow) TableName() string {
	return "moderation_records"
}

func (r *recordRow) toRecord() *Record {
	return &Record{
		SenderID:          event.SenderID(r.SenderID),
		MessageCount:      r.MessageCount,
		WarningsRemaining: r.WarningsRemaining,
		Approved:          r.Approved,
		Banned:            r.Banned,
		Version:           r.Version,
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

// Wraps an open database handle, migrating the records table if needed.
func NewGormRecordStore(db *gorm.DB) (*GormRecordStore, error) {
	if err := db.AutoMigrate(&recordRow{}); err != nil {
		return nil, fmt.Errorf("migrating moderation records table: %w", err)
	}
	return &GormRecordStore{db: db}, nil
}

func (s *GormRecordStore) Get(ctx context.Context, id event.SenderID) (*Record, error) {
	var row recordRow
	err := s.db.WithContext(ctx).Where("sender_id = ?", int64(id)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading record %s: %w", id, err)
	}
	return row.toRecord(), nil
}

func (s *GormRecordStore) Create(ctx context.Context, rec Record) (bool, error) {
	if err := validateRecord(&rec); err != nil {
		return false, err
	}
	now := time.Now().UTC()
	row := recordRow{
		SenderID:          int64(rec.SenderID),
		MessageCount:      rec.MessageCount,
		WarningsRemaining: rec.WarningsRemaining,
		Approved:          rec.Approved,
		Banned:            rec.Banned,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sender_id"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("creating record %s: %w", rec.SenderID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormRecordStore) CompareAndSwap(ctx context.Context, prev, next Record) (bool, error) {
	if err := validateRecord(&next); err != nil {
		return false, err
	}
	res := s.db.WithContext(ctx).Model(&recordRow{}).
		Where("sender_id = ? AND version = ?", int64(prev.SenderID), prev.Version).
		Updates(map[string]any{
			"message_count":      next.MessageCount,
			"warnings_remaining": next.WarningsRemaining,
			"approved":           next.Approved,
			"banned":             next.Banned,
			"version":            prev.Version + 1,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("updating record %s: %w", prev.SenderID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormRecordStore) Upsert(ctx context.Context, id event.SenderID, upd Update) (*Record, error) {
	return updateRecord(ctx, s, id, upd, true)
}

func (s *GormRecordStore) Update(ctx context.Context, id event.SenderID, upd Update) (*Record, error) {
	return updateRecord(ctx, s, id, upd, false)
}

// Increment is done in SQL, so it does not need the optimistic retry loop.
func (s *GormRecordStore) Increment(ctx context.Context, id event.SenderID, field Field, delta int) (int, error) {
	if err := field.Validate(); err != nil {
		return 0, err
	}
	col := string(field)
	var out int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&recordRow{}).
			Where("sender_id = ? AND "+col+" + ? >= 0", int64(id), delta).
			Updates(map[string]any{
				col:          gorm.Expr(col+" + ?", delta),
				"version":    gorm.Expr("version + 1"),
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		var row recordRow
		if err := tx.Where("sender_id = ?", int64(id)).Take(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s delta=%d", ErrNegative, field, delta)
		}
		switch field {
		case FieldMessageCount:
			out = row.MessageCount
		case FieldWarningsRemaining:
			out = row.WarningsRemaining
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return out, nil
}

func (s *GormRecordStore) Find(ctx context.Context, filter Filter) ([]Record, error) {
	q := s.db.WithContext(ctx).Model(&recordRow{})
	if filter.Approved != nil {
		q = q.Where("approved = ?", *filter.Approved)
	}
	if filter.Banned != nil {
		q = q.Where("banned = ?", *filter.Banned)
	}
	var rows []recordRow
	if err := q.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("scanning records: %w", err)
	}
	out := make([]Record, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toRecord())
	}
	return out, nil
}

func (s *GormRecordStore) Close() error {
	sqldb, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqldb.Close()
}
