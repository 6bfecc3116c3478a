package telegram

import (
	"time"

	"github.com/tgwarden/warden/automod/event"
	"github.com/tgwarden/warden/botapi"
)

// Normalizes a Bot API update into an inbound event.
//
// Returns nil for updates that carry nothing to moderate: non-message updates, and messages without a human sender (channel posts, anonymous group admins, other bots).
func EventFromUpdate(upd *botapi.Update, now time.Time) *event.InboundEvent {
	msg := upd.Message
	if msg == nil || msg.From == nil || msg.From.IsBot || msg.From.ID <= 0 {
		return nil
	}
	evt := &event.InboundEvent{
		Sender:       event.SenderID(msg.From.ID),
		SenderHandle: msg.From.Username,
		ChatID:       msg.Chat.ID,
		IsGroup:      !msg.Chat.IsPrivate(),
		IsReply:      msg.ReplyToMessage != nil,
		ReplyTarget:  replyTarget(msg.ReplyToMessage),
		Kind:         ClassifyMessage(msg),
		Text:         msg.Text,
		Ref: event.MessageRef{
			ChatID:    msg.Chat.ID,
			MessageID: msg.MessageID,
		},
		ReceivedAt: now,
	}
	return evt
}

// Stickers count against the media quota, plain text against the text quota. Everything else (photos, captions, voice, documents, polls, ...) is unsupported.
func ClassifyMessage(msg *botapi.Message) event.ContentKind {
	switch {
	case msg.Sticker != nil:
		return event.KindMedia
	case msg.Text != "":
		return event.KindText
	default:
		return event.KindUnsupported
	}
}

// The operator approves senders by replying to their forwarded first-contact message, so a forward origin takes priority over the author of the replied-to message. Replies to the bot's own messages have no target.
func replyTarget(reply *botapi.Message) *event.SenderID {
	if reply == nil {
		return nil
	}
	if u := reply.ForwardedFrom(); u != nil && u.ID > 0 {
		id := event.SenderID(u.ID)
		return &id
	}
	if reply.From != nil && !reply.From.IsBot && reply.From.ID > 0 {
		id := event.SenderID(reply.From.ID)
		return &id
	}
	return nil
}
