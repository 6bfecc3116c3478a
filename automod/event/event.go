package event

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Stable numeric identity of a message originator, as assigned by the chat network.
type SenderID int64

func (s SenderID) String() string {
	return strconv.FormatInt(int64(s), 10)
}

// Parses a decimal sender identifier. Zero and negative values are rejected: those are chat (group/channel) identifiers, not people.
func ParseSenderID(raw string) (SenderID, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid sender id %q: %w", raw, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid sender id %q: must be positive", raw)
	}
	return SenderID(n), nil
}

// Classification of message content, which selects the quota applied to unapproved senders.
type ContentKind int

const (
	KindText ContentKind = iota
	KindMedia
	KindUnsupported
)

func (k ContentKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindMedia:
		return "media"
	case KindUnsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("kind-%d", int(k))
	}
}

// Points at a single message on the transport, for deletion or as a reply anchor.
type MessageRef struct {
	ChatID    int64
	MessageID int64
}

// A single inbound message, already normalized by the transport.
//
// Events are immutable once produced; handlers must not modify them.
type InboundEvent struct {
	Sender SenderID
	// Username or other opaque handle of the sender, if the transport knows one. May be empty.
	SenderHandle string
	ChatID       int64
	// True for any multi-party conversation (groups, supergroups, channels)
	IsGroup bool
	// True if this message is a reply to an earlier message
	IsReply bool
	// Original sender of the replied-to message, when the transport can determine it. Nil if not a reply, or unknown.
	ReplyTarget *SenderID
	Kind        ContentKind
	Text        string
	Ref         MessageRef
	ReceivedAt  time.Time
}

// An inbound message which was recognized as an operator command.
type CommandEvent struct {
	InboundEvent

	// Lower-cased command name, without prefix (eg, "approve")
	Name string
	Args []string
}

// Messaging transport consumed by the moderation gate. All methods may fail (network, permissions); callers log and continue.
type Transport interface {
	Delete(ctx context.Context, ref MessageRef) error
	Reply(ctx context.Context, evt *InboundEvent, text string) error
	// Resolves an opaque handle (eg, "@someone") to a sender identity
	ResolveIdentity(ctx context.Context, handle string) (SenderID, error)
}
