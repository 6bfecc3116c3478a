package command

import (
	"errors"
	"fmt"

	"github.com/tgwarden/warden/automod/event"
)

var ErrUnauthorized = errors.New("command not authorized")

// Outcome of the command gate
type Decision struct {
	Authorized bool
	// why the command was rejected; empty when authorized
	Reason string
}

func (d Decision) Err() error {
	if d.Authorized {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnauthorized, d.Reason)
}

// Checks that a command comes from the operator, in a private chat. Pure: no I/O.
func Authorize(cmd *event.CommandEvent, operator event.SenderID) Decision {
	if cmd.Sender != operator {
		return Decision{Reason: "sender is not the operator"}
	}
	if cmd.IsGroup {
		return Decision{Reason: "commands are only accepted in private chats"}
	}
	return Decision{Authorized: true}
}
