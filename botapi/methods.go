package botapi

import (
	"context"
	"strconv"
)

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var out User
	if err := c.Do(ctx, "getMe", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Long-polls for new updates. Updates with ids below params.Offset are confirmed and will not be returned again.
func (c *Client) GetUpdates(ctx context.Context, params GetUpdatesParams) ([]Update, error) {
	var out []Update
	if err := c.Do(ctx, "getUpdates", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SendMessage(ctx context.Context, params SendMessageParams) (*Message, error) {
	var out Message
	if err := c.Do(ctx, "sendMessage", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	var ok bool
	return c.Do(ctx, "deleteMessage", deleteMessageParams{ChatID: chatID, MessageID: messageID}, &ok)
}

func (c *Client) ForwardMessage(ctx context.Context, toChatID, fromChatID, messageID int64) (*Message, error) {
	var out Message
	params := forwardMessageParams{
		ChatID:     toChatID,
		FromChatID: fromChatID,
		MessageID:  messageID,
	}
	if err := c.Do(ctx, "forwardMessage", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Looks up a chat by "@username". Only works for usernames the API is willing to resolve (public chats, and users who have talked to the bot).
func (c *Client) GetChatByUsername(ctx context.Context, username string) (*Chat, error) {
	if len(username) > 0 && username[0] != '@' {
		username = "@" + username
	}
	return c.getChat(ctx, username)
}

func (c *Client) GetChat(ctx context.Context, chatID int64) (*Chat, error) {
	return c.getChat(ctx, strconv.FormatInt(chatID, 10))
}

func (c *Client) getChat(ctx context.Context, chatID string) (*Chat, error) {
	var out Chat
	if err := c.Do(ctx, "getChat", getChatParams{ChatID: chatID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
