package engine

import (
	"fmt"

	"github.com/tgwarden/warden/automod/event"
)

type ActionKind int

const (
	// event is outside the gate's jurisdiction; do nothing
	ActionIgnore ActionKind = iota
	ActionAllow
	// send a reply, but do not count or warn
	ActionReplyOnly
	ActionWarn
	ActionBan
)

func (k ActionKind) String() string {
	switch k {
	case ActionIgnore:
		return "ignore"
	case ActionAllow:
		return "allow"
	case ActionReplyOnly:
		return "reply-only"
	case ActionWarn:
		return "warn"
	case ActionBan:
		return "ban"
	default:
		return fmt.Sprintf("action-%d", int(k))
	}
}

// Description of what the caller should do about an inbound message. The engine never performs transport I/O itself.
type Action struct {
	Kind ActionKind
	// delete the inbound message
	Delete bool
	// reply text to send to the sender; empty means no reply
	Reply string
	// warnings left after this action (Warn and Ban only)
	WarningsRemaining int
	// this message created the sender's record
	FirstContact bool
	// content kind whose quota was exceeded (Warn and Ban only)
	Violation event.ContentKind
}
