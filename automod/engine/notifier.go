package engine

import (
	"context"

	"github.com/tgwarden/warden/automod/event"
)

// Interface for a type that can handle sending notifications about moderation actions
type Notifier interface {
	SendAction(ctx context.Context, evt *event.InboundEvent, act *Action) error
}
