package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tgwarden/warden/automod/cachestore"
	"github.com/tgwarden/warden/automod/countstore"
	"github.com/tgwarden/warden/automod/event"
	"github.com/tgwarden/warden/automod/recordstore"
)

var ErrConflict = recordstore.ErrConflict

// runtime for moderating inbound messages: reads and writes sender records, and returns the action the caller should carry out.
//
// Records is required. Counters, Cache and Notifiers are optional.
type Engine struct {
	Logger    *slog.Logger
	Records   recordstore.RecordStore
	Counters  countstore.CountStore
	Cache     cachestore.CacheStore
	Notifiers []Notifier
	Config    EngineConfig
}

// Decides and persists the moderation outcome of a single inbound message.
//
// The sender's record is updated with an optimistic read/compare-and-swap loop, so concurrent messages from the same sender never lose updates. The record is always persisted before this returns; callers perform the returned action (delete, reply) afterwards.
//
// Store failures are returned as errors, and nothing is persisted in that case.
func (eng *Engine) EvaluateInbound(ctx context.Context, evt *event.InboundEvent) (*Action, error) {
	start := time.Now()
	defer func() {
		eventProcessDuration.WithLabelValues(evt.Kind.String()).Observe(time.Since(start).Seconds())
	}()
	eventProcessCount.WithLabelValues(evt.Kind.String()).Inc()

	logger := eng.Logger.With("sender", evt.Sender, "chat", evt.ChatID, "kind", evt.Kind.String())
	eng.rememberHandle(ctx, logger, evt)

	act, err := eng.decideAndPersist(ctx, evt)
	if err != nil {
		eventErrorCount.WithLabelValues(evt.Kind.String()).Inc()
		return nil, err
	}

	actionCount.WithLabelValues(act.Kind.String()).Inc()
	logger.Info("canonical-event-line",
		"action", act.Kind.String(),
		"delete", act.Delete,
		"firstContact", act.FirstContact,
		"warningsRemaining", act.WarningsRemaining,
		"isReply", evt.IsReply,
		"isGroup", evt.IsGroup,
	)
	if err := eng.persistCounters(ctx, evt, act); err != nil {
		// tallies are informational; the decision already stands
		logger.Warn("failed to persist action counters", "err", err)
	}
	return act, nil
}

func (eng *Engine) decideAndPersist(ctx context.Context, evt *event.InboundEvent) (*Action, error) {
	if exempt(evt, eng.Config) {
		return &Action{Kind: ActionIgnore}, nil
	}
	for i := 0; i < eng.Config.maxRetries(); i++ {
		if i > 0 {
			recordConflictCount.Inc()
		}
		cur, err := eng.Records.Get(ctx, evt.Sender)
		if err != nil {
			return nil, fmt.Errorf("loading record: %w", err)
		}
		next, act := Decide(cur, evt, eng.Config)
		if next == nil {
			return &act, nil
		}

		var ok bool
		if cur == nil {
			ok, err = eng.Records.Create(ctx, *next)
		} else {
			ok, err = eng.Records.CompareAndSwap(ctx, *cur, *next)
		}
		if err != nil {
			return nil, fmt.Errorf("persisting record: %w", err)
		}
		if ok {
			return &act, nil
		}
		eng.Logger.Debug("record changed concurrently, retrying", "sender", evt.Sender, "attempt", i+1)
	}
	return nil, fmt.Errorf("%w: sender %s", ErrConflict, evt.Sender)
}

func (eng *Engine) rememberHandle(ctx context.Context, logger *slog.Logger, evt *event.InboundEvent) {
	if eng.Cache == nil || evt.SenderHandle == "" {
		return
	}
	if err := cachestore.RememberHandle(ctx, eng.Cache, evt.SenderHandle, evt.Sender); err != nil {
		logger.Warn("failed to cache sender handle", "err", err)
	}
}

// Sends any configured notifications for an action which has already been carried out. Failures are logged, not returned.
func (eng *Engine) NotifyAction(ctx context.Context, evt *event.InboundEvent, act *Action) {
	for _, n := range eng.Notifiers {
		if err := n.SendAction(ctx, evt, act); err != nil {
			eng.Logger.Error("failed to deliver notification", "err", err, "sender", evt.Sender, "action", act.Kind.String())
		}
	}
}
