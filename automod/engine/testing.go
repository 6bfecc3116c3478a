package engine

import (
	"log/slog"
	"time"

	"github.com/tgwarden/warden/automod/cachestore"
	"github.com/tgwarden/warden/automod/countstore"
	"github.com/tgwarden/warden/automod/event"
	"github.com/tgwarden/warden/automod/recordstore"
)

// Operator identity used by EngineTestFixture
const TestOperatorID = event.SenderID(777)

// Engine wired to in-memory stores, for tests.
func EngineTestFixture() Engine {
	return Engine{
		Logger:   slog.Default(),
		Records:  recordstore.NewMemRecordStore(),
		Counters: countstore.NewMemCountStore(),
		Cache:    cachestore.NewMemCacheStore(10, time.Hour),
		Config: EngineConfig{
			OperatorID: TestOperatorID,
		},
	}
}

// Builds a private-chat message event, for tests.
func TestMessage(sender event.SenderID, kind event.ContentKind) *event.InboundEvent {
	return &event.InboundEvent{
		Sender:     sender,
		ChatID:     int64(sender),
		Kind:       kind,
		Text:       "hello",
		Ref:        event.MessageRef{ChatID: int64(sender), MessageID: 1},
		ReceivedAt: time.Now(),
	}
}
