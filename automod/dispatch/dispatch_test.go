package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/tgwarden/warden/automod/command"
	"github.com/tgwarden/warden/automod/engine"
	"github.com/tgwarden/warden/automod/event"
	"github.com/tgwarden/warden/automod/recordstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDispatcher(config Config) (*Dispatcher, *engine.Engine, *event.MockTransport) {
	eng := engine.EngineTestFixture()
	tr := event.NewMockTransport()
	cmds := &command.Commands{
		Records:   eng.Records,
		Counters:  eng.Counters,
		Cache:     eng.Cache,
		Transport: tr,
		Config:    command.Config{Operator: engine.TestOperatorID},
		Logger:    slog.Default(),
	}
	config.Operator = engine.TestOperatorID
	return NewDispatcher(&eng, cmds, tr, config, slog.Default()), &eng, tr
}

func textMessage(sender event.SenderID, text string, msgID int64) *event.InboundEvent {
	evt := engine.TestMessage(sender, event.KindText)
	evt.Text = text
	evt.Ref.MessageID = msgID
	return evt
}

func TestClassify(t *testing.T) {
	assert := assert.New(t)
	d, _, _ := testDispatcher(Config{})

	assert.Equal(EventMessage, d.Classify(textMessage(1001, "hello", 1)).Type)

	evt := d.Classify(textMessage(1001, "/approve 42", 1))
	assert.Equal(EventCommand, evt.Type)
	require.NotNil(t, evt.Command)
	assert.Equal("approve", evt.Command.Name)
	assert.Equal([]string{"42"}, evt.Command.Args)

	sticker := engine.TestMessage(1001, event.KindMedia)
	sticker.Text = ""
	assert.Equal(EventMessage, d.Classify(sticker).Type)
}

func TestFirstContactApproveFlow(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	d, eng, tr := testDispatcher(Config{ForwardFirstContact: true})
	stranger := event.SenderID(1001)

	first := textMessage(stranger, "hi there", 1)
	require.NoError(t, d.Handle(ctx, first))
	replies := tr.RecordedReplies()
	require.Equal(t, 1, len(replies))
	assert.Equal(engine.FirstContactText, replies[0].Text)
	assert.Equal(stranger, replies[0].To)
	assert.Empty(tr.RecordedDeletes())
	assert.Equal([]event.MessageRef{first.Ref}, tr.RecordedForwards(engine.TestOperatorID))

	// operator replies to the forwarded message
	approve := textMessage(engine.TestOperatorID, "/approve", 2)
	approve.IsReply = true
	approve.ReplyTarget = &stranger
	require.NoError(t, d.Handle(ctx, approve))
	replies = tr.RecordedReplies()
	require.Equal(t, 2, len(replies))
	assert.Equal("User 1001 has been approved.", replies[1].Text)
	assert.Equal(engine.TestOperatorID, replies[1].To)

	rec, err := eng.Records.Get(ctx, stranger)
	require.NoError(t, err)
	assert.True(rec.Approved)

	// approved senders pass freely
	for i := int64(3); i < 10; i++ {
		require.NoError(t, d.Handle(ctx, textMessage(stranger, "more", i)))
	}
	assert.Equal(2, len(tr.RecordedReplies()))
	assert.Empty(tr.RecordedDeletes())
}

func TestWarnDeletesThenReplies(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	d, _, tr := testDispatcher(Config{})
	sender := event.SenderID(2002)

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, d.Handle(ctx, textMessage(sender, "spam", i)))
	}
	assert.Equal([]event.MessageRef{{ChatID: int64(sender), MessageID: 3}}, tr.RecordedDeletes())
	replies := tr.RecordedReplies()
	require.Equal(t, 2, len(replies))
	assert.Equal(engine.FirstContactText, replies[0].Text)
	assert.Equal("Warning 1/5: You have 4 warnings left.", replies[1].Text)

	// forwarding is off by default
	assert.Empty(tr.RecordedForwards(engine.TestOperatorID))
}

func TestBanSequence(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	d, eng, tr := testDispatcher(Config{})
	sender := event.SenderID(3003)

	// first contact, one allowed, four warnings, then the ban
	for i := int64(1); i <= 7; i++ {
		require.NoError(t, d.Handle(ctx, textMessage(sender, "spam", i)))
	}
	replies := tr.RecordedReplies()
	require.Equal(t, 6, len(replies))
	assert.Equal(engine.BanText(event.KindText), replies[5].Text)
	assert.Equal(5, len(tr.RecordedDeletes()))

	rec, err := eng.Records.Get(ctx, sender)
	require.NoError(t, err)
	assert.True(rec.Banned)

	// banned senders are told so, and their messages are kept unless configured otherwise
	require.NoError(t, d.Handle(ctx, textMessage(sender, "hello?", 8)))
	replies = tr.RecordedReplies()
	assert.Equal(engine.BannedText, replies[len(replies)-1].Text)
	assert.Equal(5, len(tr.RecordedDeletes()))
}

func TestUnauthorizedCommandIsModerated(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	d, eng, tr := testDispatcher(Config{ReplyUnauthorized: true})
	stranger := event.SenderID(4004)

	require.NoError(t, d.Handle(ctx, textMessage(stranger, "/approve 4004", 1)))

	rec, err := eng.Records.Get(ctx, stranger)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(rec.Approved)
	assert.Equal(1, rec.MessageCount)

	replies := tr.RecordedReplies()
	require.Equal(t, 2, len(replies))
	assert.Equal("unauthorized", replies[0].Text)
	assert.Equal(engine.FirstContactText, replies[1].Text)

	// the rejected command counts against the quota like any other text
	require.NoError(t, d.Handle(ctx, textMessage(stranger, "/status", 2)))
	require.NoError(t, d.Handle(ctx, textMessage(stranger, "/ban", 3)))
	assert.Equal(1, len(tr.RecordedDeletes()))
}

func TestOperatorCommandInGroupIgnored(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	d, _, tr := testDispatcher(Config{})

	evt := textMessage(engine.TestOperatorID, "/status", 1)
	evt.IsGroup = true
	evt.ChatID = -100123
	require.NoError(t, d.Handle(ctx, evt))
	assert.Empty(tr.RecordedReplies())
	assert.Empty(tr.RecordedDeletes())
}

func TestTransportFailuresDoNotUndoDecision(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	d, eng, tr := testDispatcher(Config{ForwardFirstContact: true})
	tr.Err = errors.New("network down")
	sender := event.SenderID(5005)

	for i := int64(1); i <= 3; i++ {
		assert.NoError(d.Handle(ctx, textMessage(sender, "spam", i)))
	}
	rec, err := eng.Records.Get(ctx, sender)
	require.NoError(t, err)
	assert.Equal(4, rec.WarningsRemaining)
	assert.Equal(1, len(tr.RecordedDeletes()))
}

type failingStore struct {
	recordstore.RecordStore
}

func (s failingStore) Get(ctx context.Context, id event.SenderID) (*recordstore.Record, error) {
	return nil, errors.New("store unavailable")
}

func TestStoreFailureReturnsError(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	d, eng, tr := testDispatcher(Config{})
	eng.Records = failingStore{eng.Records}

	err := d.Handle(ctx, textMessage(6006, "hello", 1))
	assert.Error(err)
	assert.Empty(tr.RecordedReplies())
}

func TestHandlerPanicRecovered(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	d, _, _ := testDispatcher(Config{})
	// no record store behind the command set
	d.Commands.Records = nil

	err := d.Handle(ctx, textMessage(engine.TestOperatorID, "/approve 42", 1))
	assert.Error(err)
	assert.Contains(err.Error(), "panic")
}
