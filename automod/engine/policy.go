package engine

import (
	"fmt"

	"github.com/tgwarden/warden/automod/event"
	"github.com/tgwarden/warden/automod/recordstore"
)

const (
	DefaultMaxRetries = 8

	FirstContactText = "You've sent your first message. I need your approval to continue."
	BannedText       = "You are blocked."
)

type EngineConfig struct {
	// the privileged identity; never moderated
	OperatorID event.SenderID
	// moderate multi-party chats as well as private ones
	ModerateGroups bool
	// also delete messages from already-banned senders
	DeleteBanned bool
	// warnings a new sender starts with (default 5)
	MaxWarnings int
	// optimistic write attempts per event before giving up (default 8)
	MaxRetries int
}

func (c EngineConfig) maxWarnings() int {
	if c.MaxWarnings <= 0 {
		return recordstore.DefaultMaxWarnings
	}
	return c.MaxWarnings
}

func (c EngineConfig) maxRetries() int {
	if c.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return c.MaxRetries
}

// Number of messages of the given kind an unapproved sender may have on record before further ones are violations.
func Threshold(kind event.ContentKind) int {
	switch kind {
	case event.KindText:
		return 1
	case event.KindMedia:
		return 2
	default:
		return 0
	}
}

func WarningText(remaining, max int) string {
	used := max - remaining
	if used < 0 {
		used = 0
	}
	return fmt.Sprintf("Warning %d/%d: You have %d warnings left.", used, max, remaining)
}

func BanText(kind event.ContentKind) string {
	switch kind {
	case event.KindText:
		return "You are blocked for violating the message limit!"
	case event.KindMedia:
		return "You are blocked for violating the sticker limit!"
	default:
		return "You are blocked for sending unsupported content!"
	}
}

// True if the event is outside the gate entirely: operator traffic, and group traffic unless configured otherwise.
func exempt(evt *event.InboundEvent, cfg EngineConfig) bool {
	if evt.Sender == cfg.OperatorID {
		return true
	}
	if evt.IsGroup && !cfg.ModerateGroups {
		return true
	}
	return false
}

// Computes the moderation decision for one inbound message, given the sender's current record (nil if the sender has never been seen).
//
// Returns the record state to persist, or nil if nothing should be written. Pure function: no I/O.
func Decide(rec *recordstore.Record, evt *event.InboundEvent, cfg EngineConfig) (*recordstore.Record, Action) {
	if exempt(evt, cfg) {
		return nil, Action{Kind: ActionIgnore}
	}

	if rec == nil {
		next := recordstore.NewRecord(evt.Sender)
		next.WarningsRemaining = cfg.maxWarnings()
		return &next, Action{
			Kind:         ActionReplyOnly,
			Reply:        FirstContactText,
			FirstContact: true,
		}
	}

	if rec.Banned {
		return nil, Action{
			Kind:   ActionReplyOnly,
			Reply:  BannedText,
			Delete: cfg.DeleteBanned,
		}
	}
	if rec.Approved {
		return nil, Action{Kind: ActionAllow}
	}
	if evt.IsReply {
		return nil, Action{Kind: ActionIgnore}
	}

	next := *rec
	if rec.MessageCount <= Threshold(evt.Kind) {
		next.MessageCount++
		return &next, Action{Kind: ActionAllow}
	}

	// records written under a higher limit are brought back within the current one
	if next.WarningsRemaining > cfg.maxWarnings() {
		next.WarningsRemaining = cfg.maxWarnings()
	}

	// violation. a sender on their last warning is banned rather than warned down to zero.
	if next.WarningsRemaining > 1 {
		next.WarningsRemaining--
		return &next, Action{
			Kind:              ActionWarn,
			Delete:            true,
			Reply:             WarningText(next.WarningsRemaining, cfg.maxWarnings()),
			WarningsRemaining: next.WarningsRemaining,
			Violation:         evt.Kind,
		}
	}
	next.Approved = false
	next.Banned = true
	return &next, Action{
		Kind:              ActionBan,
		Delete:            true,
		Reply:             BanText(evt.Kind),
		WarningsRemaining: next.WarningsRemaining,
		Violation:         evt.Kind,
	}
}
