package engine

import (
	"context"

	"github.com/tgwarden/warden/automod/countstore"
	"github.com/tgwarden/warden/automod/event"
)

func (eng *Engine) persistCounters(ctx context.Context, evt *event.InboundEvent, act *Action) error {
	if eng.Counters == nil {
		return nil
	}
	var names []string
	if act.FirstContact {
		names = append(names, countstore.CounterFirstContact)
	}
	switch act.Kind {
	case ActionWarn:
		names = append(names, countstore.CounterWarn)
	case ActionBan:
		names = append(names, countstore.CounterBan)
	}
	if act.Delete {
		names = append(names, countstore.CounterDelete)
	}
	for _, name := range names {
		if err := countstore.IncrementAction(ctx, eng.Counters, name, evt.Sender.String()); err != nil {
			return err
		}
	}
	return nil
}
