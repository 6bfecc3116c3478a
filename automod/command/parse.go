package command

import (
	"strings"

	"github.com/tgwarden/warden/automod/event"
)

var DefaultPrefixes = []string{"/", "."}

// Recognizes a text message of the form "<prefix><name>[@bot] [args...]".
//
// Names must be ASCII letters; anything else (eg "..." or "/123") is not a command.
func Parse(evt *event.InboundEvent, prefixes []string) (*event.CommandEvent, bool) {
	if evt.Kind != event.KindText {
		return nil, false
	}
	fields := strings.Fields(evt.Text)
	if len(fields) == 0 {
		return nil, false
	}
	head := fields[0]
	var name string
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(head, p) {
			name = head[len(p):]
			break
		}
	}
	// "/approve@somebot" addresses a specific bot in a group
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}
	if !isCommandName(name) {
		return nil, false
	}
	return &event.CommandEvent{
		InboundEvent: *evt,
		Name:         strings.ToLower(name),
		Args:         fields[1:],
	}, true
}

func isCommandName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}
