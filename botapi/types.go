package botapi

// Subset of the Telegram Bot API object model used by the moderation gate.
//
// Field names and JSON tags follow https://core.telegram.org/bots/api

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

const (
	ChatTypePrivate    = "private"
	ChatTypeGroup      = "group"
	ChatTypeSupergroup = "supergroup"
	ChatTypeChannel    = "channel"
)

type Chat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	Username string `json:"username,omitempty"`
}

func (c *Chat) IsPrivate() bool {
	return c.Type == ChatTypePrivate
}

type Sticker struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Emoji        string `json:"emoji,omitempty"`
}

type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size,omitempty"`
}

// Origin of a forwarded message. Type is "user", "hidden_user", "chat" or "channel".
type MessageOrigin struct {
	Type           string `json:"type"`
	Date           int64  `json:"date"`
	SenderUser     *User  `json:"sender_user,omitempty"`
	SenderUserName string `json:"sender_user_name,omitempty"`
}

type Message struct {
	MessageID int64       `json:"message_id"`
	From      *User       `json:"from,omitempty"`
	Chat      Chat        `json:"chat"`
	Date      int64       `json:"date"`
	Text      string      `json:"text,omitempty"`
	Caption   string      `json:"caption,omitempty"`
	Sticker   *Sticker    `json:"sticker,omitempty"`
	Photo     []PhotoSize `json:"photo,omitempty"`

	ReplyToMessage *Message       `json:"reply_to_message,omitempty"`
	ForwardOrigin  *MessageOrigin `json:"forward_origin,omitempty"`
	// pre-7.0 forward attribution; still sent by some deployments
	ForwardFrom *User `json:"forward_from,omitempty"`
}

// Returns the original author of a forwarded message, if visible.
func (m *Message) ForwardedFrom() *User {
	if m.ForwardOrigin != nil && m.ForwardOrigin.SenderUser != nil {
		return m.ForwardOrigin.SenderUser
	}
	return m.ForwardFrom
}

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

type ReplyParameters struct {
	MessageID                int64 `json:"message_id"`
	ChatID                   int64 `json:"chat_id,omitempty"`
	AllowSendingWithoutReply bool  `json:"allow_sending_without_reply,omitempty"`
}

type SendMessageParams struct {
	ChatID          int64            `json:"chat_id"`
	Text            string           `json:"text"`
	ReplyParameters *ReplyParameters `json:"reply_parameters,omitempty"`
}

type GetUpdatesParams struct {
	Offset int64 `json:"offset,omitempty"`
	Limit  int   `json:"limit,omitempty"`
	// long-poll timeout, in seconds
	Timeout        int      `json:"timeout,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

type deleteMessageParams struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

type forwardMessageParams struct {
	ChatID     int64 `json:"chat_id"`
	FromChatID int64 `json:"from_chat_id"`
	MessageID  int64 `json:"message_id"`
}

type getChatParams struct {
	// numeric id or "@username"
	ChatID string `json:"chat_id"`
}
