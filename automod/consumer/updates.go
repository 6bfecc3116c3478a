package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tgwarden/warden/automod/event"
	"github.com/tgwarden/warden/automod/scheduler"
	"github.com/tgwarden/warden/automod/telegram"
	"github.com/tgwarden/warden/botapi"

	dto "github.com/prometheus/client_model/go"
	"github.com/redis/go-redis/v9"
)

var updateCursorKey = "warden/update-offset"

// Source of Bot API updates; implemented by *botapi.Client
type UpdateSource interface {
	GetUpdates(ctx context.Context, params botapi.GetUpdatesParams) ([]botapi.Update, error)
}

// Implemented by *dispatch.Dispatcher
type EventHandler interface {
	Handle(ctx context.Context, evt *event.InboundEvent) error
}

// Long-polls the Bot API for updates and feeds them to a handler. Events from the same sender are handled strictly in order; different senders in parallel.
type UpdateConsumer struct {
	Parallelism int
	Logger      *slog.Logger
	RedisClient *redis.Client
	Source      UpdateSource
	Handler     EventHandler
	// server-side long-poll duration. Must stay below the HTTP client timeout.
	PollTimeout time.Duration
	// pause after a failed poll, unless the API asked for a specific backoff
	ErrorBackoff time.Duration

	// nextOffset is the id of the first update not yet handed to the scheduler.
	// This number is periodically persisted to redis, if redis is present.
	// The value is best-effort: updates which were scheduled but not yet processed when the process dies are not redelivered.
	// Use atomics when updating or reading this.
	nextOffset int64
}

func (uc *UpdateConsumer) Run(ctx context.Context) error {
	if uc.Handler == nil || uc.Source == nil {
		return fmt.Errorf("update consumer not configured")
	}
	if uc.Logger == nil {
		uc.Logger = slog.Default()
	}

	cur, err := uc.ReadLastCursor(ctx)
	if err != nil {
		return err
	}
	atomic.StoreInt64(&uc.nextOffset, cur)

	parallelism := uc.Parallelism
	if parallelism <= 0 {
		parallelism = 16
	}
	sched := scheduler.NewScheduler(parallelism, "updates", func(ctx context.Context, evt *event.InboundEvent) error {
		return uc.Handler.Handle(ctx, evt)
	})
	defer func() {
		sched.Shutdown()
		var m = &dto.Metric{}
		if err := updatesReceived.Write(m); err != nil {
			uc.Logger.Error("failed to read received counter", "err", err)
		}
		uc.Logger.Info("update consumer stopped", "offset", atomic.LoadInt64(&uc.nextOffset), "updatesReceived", m.Counter.GetValue())
	}()
	uc.Logger.Info("update consumer starting", "offset", cur, "parallelism", parallelism)

	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, err := uc.Source.GetUpdates(ctx, botapi.GetUpdatesParams{
			Offset:         atomic.LoadInt64(&uc.nextOffset),
			Timeout:        int(uc.pollTimeout().Seconds()),
			AllowedUpdates: []string{"message"},
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			pollErrors.Inc()
			wait := uc.errorBackoff()
			var apiErr *botapi.Error
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				wait = apiErr.RetryAfter
			}
			uc.Logger.Warn("polling for updates failed", "err", err, "backoff", wait)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}

		now := time.Now()
		for i := range updates {
			upd := &updates[i]
			updatesReceived.Inc()
			next := upd.UpdateID + 1
			evt := telegram.EventFromUpdate(upd, now)
			if evt == nil {
				uc.Logger.Debug("skipping update with nothing to moderate", "update", upd.UpdateID)
			} else if err := sched.AddWork(ctx, evt.Sender.String(), evt); err != nil {
				// only happens on shutdown; don't confirm this update
				uc.Logger.Warn("failed to schedule update", "update", upd.UpdateID, "err", err)
				return nil
			}
			atomic.StoreInt64(&uc.nextOffset, next)
			currentOffset.Set(float64(next))
		}
	}
}

func (uc *UpdateConsumer) pollTimeout() time.Duration {
	if uc.PollTimeout <= 0 {
		return 10 * time.Second
	}
	return uc.PollTimeout
}

func (uc *UpdateConsumer) errorBackoff() time.Duration {
	if uc.ErrorBackoff <= 0 {
		return 3 * time.Second
	}
	return uc.ErrorBackoff
}

func (uc *UpdateConsumer) ReadLastCursor(ctx context.Context) (int64, error) {
	// if redis isn't configured, just skip
	if uc.RedisClient == nil {
		uc.Logger.Info("redis not configured, skipping cursor read")
		return 0, nil
	}

	val, err := uc.RedisClient.Get(ctx, updateCursorKey).Int64()
	if errors.Is(err, redis.Nil) {
		uc.Logger.Info("no pre-existing cursor in redis")
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	uc.Logger.Info("successfully found prior update offset in redis", "offset", val)
	return val, nil
}

func (uc *UpdateConsumer) PersistCursor(ctx context.Context) error {
	// if redis isn't configured, just skip
	if uc.RedisClient == nil {
		return nil
	}
	next := atomic.LoadInt64(&uc.nextOffset)
	if next <= 0 {
		return nil
	}
	return uc.RedisClient.Set(ctx, updateCursorKey, next, 14*24*time.Hour).Err()
}

// this method runs in a loop, persisting the current cursor state every 5 seconds
func (uc *UpdateConsumer) RunPersistCursor(ctx context.Context) error {

	// if redis isn't configured, just skip
	if uc.RedisClient == nil {
		return nil
	}
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			next := atomic.LoadInt64(&uc.nextOffset)
			if next >= 1 {
				uc.Logger.Info("persisting final update offset", "offset", next)
				// ctx is already cancelled at this point
				pctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := uc.PersistCursor(pctx)
				cancel()
				if err != nil {
					uc.Logger.Error("failed to persist cursor", "err", err, "offset", next)
				}
			}
			return nil
		case <-ticker.C:
			next := atomic.LoadInt64(&uc.nextOffset)
			if next >= 1 {
				if err := uc.PersistCursor(ctx); err != nil {
					uc.Logger.Error("failed to persist cursor", "err", err, "offset", next)
				}
			}
		}
	}
}
