package recordstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tgwarden/warden/automod/event"
)

var redisRecordPrefix = "record/"
var redisRecordOrderKey = "records/order"

// Record store backed by redis. Each record is a hash; a sorted set (scored by creation time) preserves insertion order for scans.
//
// Writes use WATCH/MULTI transactions, so concurrent writers (including other processes) never lose updates.
type RedisRecordStore struct {
	Client *redis.Client
}

var _ RecordStore = (*RedisRecordStore)(nil)

func NewRedisRecordStore(redisURL string) (*RedisRecordStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	return &RedisRecordStore{Client: rdb}, nil
}

func redisRecordKey(id event.SenderID) string {
	return redisRecordPrefix + id.String()
}

type hashGetter interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func readRedisRecord(ctx context.Context, c hashGetter, id event.SenderID) (*Record, error) {
	m, err := c.HGetAll(ctx, redisRecordKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return decodeRedisRecord(id, m)
}

func decodeRedisRecord(id event.SenderID, m map[string]string) (*Record, error) {
	rec := Record{SenderID: id}
	var err error
	parseInt := func(k string) int64 {
		if err != nil {
			return 0
		}
		var n int64
		n, err = strconv.ParseInt(m[k], 10, 64)
		if err != nil {
			err = fmt.Errorf("decoding record %s field %s: %w", id, k, err)
		}
		return n
	}
	rec.MessageCount = int(parseInt("message_count"))
	rec.WarningsRemaining = int(parseInt("warnings_remaining"))
	rec.Approved = parseInt("approved") == 1
	rec.Banned = parseInt("banned") == 1
	rec.Version = parseInt("version")
	rec.CreatedAt = time.UnixMicro(parseInt("created_at")).UTC()
	rec.UpdatedAt = time.UnixMicro(parseInt("updated_at")).UTC()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeRedisRecord(rec *Record) map[string]any {
	return map[string]any{
		"message_count":      rec.MessageCount,
		"warnings_remaining": rec.WarningsRemaining,
		"approved":           boolInt(rec.Approved),
		"banned":             boolInt(rec.Banned),
		"version":            rec.Version,
		"created_at":         rec.CreatedAt.UnixMicro(),
		"updated_at":         rec.UpdatedAt.UnixMicro(),
	}
}

func (s *RedisRecordStore) Get(ctx context.Context, id event.SenderID) (*Record, error) {
	return readRedisRecord(ctx, s.Client, id)
}

func (s *RedisRecordStore) Create(ctx context.Context, rec Record) (bool, error) {
	if err := validateRecord(&rec); err != nil {
		return false, err
	}
	key := redisRecordKey(rec.SenderID)
	created := false
	err := s.Client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		now := time.Now().UTC()
		rec.Version = 1
		rec.CreatedAt = now
		rec.UpdatedAt = now
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, encodeRedisRecord(&rec))
			pipe.ZAddNX(ctx, redisRecordOrderKey, redis.Z{
				Score:  float64(now.UnixMicro()),
				Member: rec.SenderID.String(),
			})
			return nil
		})
		if err != nil {
			return err
		}
		created = true
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return created, nil
}

func (s *RedisRecordStore) CompareAndSwap(ctx context.Context, prev, next Record) (bool, error) {
	if err := validateRecord(&next); err != nil {
		return false, err
	}
	key := redisRecordKey(prev.SenderID)
	swapped := false
	err := s.Client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := readRedisRecord(ctx, tx, prev.SenderID)
		if err != nil {
			return err
		}
		if cur == nil || cur.Version != prev.Version {
			return nil
		}
		next.SenderID = cur.SenderID
		next.Version = cur.Version + 1
		next.CreatedAt = cur.CreatedAt
		next.UpdatedAt = time.Now().UTC()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, encodeRedisRecord(&next))
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return swapped, nil
}

func (s *RedisRecordStore) Upsert(ctx context.Context, id event.SenderID, upd Update) (*Record, error) {
	return updateRecord(ctx, s, id, upd, true)
}

func (s *RedisRecordStore) Update(ctx context.Context, id event.SenderID, upd Update) (*Record, error) {
	return updateRecord(ctx, s, id, upd, false)
}

func (s *RedisRecordStore) Increment(ctx context.Context, id event.SenderID, field Field, delta int) (int, error) {
	return incrementRecord(ctx, s, id, field, delta)
}

func (s *RedisRecordStore) Find(ctx context.Context, filter Filter) ([]Record, error) {
	members, err := s.Client.ZRange(ctx, redisRecordOrderKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []Record{}, nil
	}

	ids := make([]event.SenderID, 0, len(members))
	cmds := make([]*redis.MapStringStringCmd, 0, len(members))
	// fetch all hashes in a single redis round-trip
	pipe := s.Client.Pipeline()
	for _, m := range members {
		id, err := event.ParseSenderID(m)
		if err != nil {
			return nil, fmt.Errorf("bad member in record order set: %w", err)
		}
		ids = append(ids, id)
		cmds = append(cmds, pipe.HGetAll(ctx, redisRecordKey(id)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	out := []Record{}
	for i, cmd := range cmds {
		m := cmd.Val()
		if len(m) == 0 {
			continue
		}
		rec, err := decodeRedisRecord(ids[i], m)
		if err != nil {
			return nil, err
		}
		if filter.Match(rec) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *RedisRecordStore) Close() error {
	return s.Client.Close()
}
