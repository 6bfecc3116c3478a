package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tgwarden/warden/automod/event"
	"github.com/tgwarden/warden/botapi"
)

var ErrNotAUser = errors.New("handle does not resolve to a user")

// Transport implementation on top of the Telegram Bot API.
type Transport struct {
	Client *botapi.Client
	Logger *slog.Logger
}

var _ event.Transport = (*Transport)(nil)

func NewTransport(c *botapi.Client, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		Client: c,
		Logger: logger.With("component", "telegram"),
	}
}

func (t *Transport) Delete(ctx context.Context, ref event.MessageRef) error {
	if err := t.Client.DeleteMessage(ctx, ref.ChatID, ref.MessageID); err != nil {
		return fmt.Errorf("deleting message %d in chat %d: %w", ref.MessageID, ref.ChatID, err)
	}
	return nil
}

// Replies in the chat the event came from, anchored on the event's message. The message has usually been deleted by the time a warning goes out, in which case the reply is sent without an anchor.
func (t *Transport) Reply(ctx context.Context, evt *event.InboundEvent, text string) error {
	params := botapi.SendMessageParams{
		ChatID: evt.ChatID,
		Text:   text,
		ReplyParameters: &botapi.ReplyParameters{
			MessageID:                evt.Ref.MessageID,
			AllowSendingWithoutReply: true,
		},
	}
	if _, err := t.Client.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("replying in chat %d: %w", evt.ChatID, err)
	}
	return nil
}

// Resolves "@username" to a user id via getChat.
//
// The Bot API generally only resolves usernames of public groups and channels, which are rejected with ErrNotAUser. In practice a handle resolves to a user only through the handle cache, so operators can target by handle only senders seen within the cache TTL; otherwise use the numeric id or reply to a forwarded message.
func (t *Transport) ResolveIdentity(ctx context.Context, handle string) (event.SenderID, error) {
	name := strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if name == "" {
		return 0, fmt.Errorf("empty handle")
	}
	chat, err := t.Client.GetChatByUsername(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("resolving @%s: %w", name, err)
	}
	// groups and channels also have usernames
	if !chat.IsPrivate() || chat.ID <= 0 {
		return 0, fmt.Errorf("%w: @%s (%s)", ErrNotAUser, name, chat.Type)
	}
	return event.SenderID(chat.ID), nil
}

// Forwards a message into the private chat with the given user.
func (t *Transport) Forward(ctx context.Context, to event.SenderID, ref event.MessageRef) error {
	if _, err := t.Client.ForwardMessage(ctx, int64(to), ref.ChatID, ref.MessageID); err != nil {
		return fmt.Errorf("forwarding message %d to %s: %w", ref.MessageID, to, err)
	}
	return nil
}
