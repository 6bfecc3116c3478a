package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tgwarden/warden/automod/cachestore"
	"github.com/tgwarden/warden/automod/countstore"
	"github.com/tgwarden/warden/automod/event"
	"github.com/tgwarden/warden/automod/recordstore"
)

type Config struct {
	Operator event.SenderID
	// warnings restored by approve (default 5)
	MaxWarnings int
}

// The operator command surface. Records and Transport are required; Counters and Cache are optional.
type Commands struct {
	Records   recordstore.RecordStore
	Counters  countstore.CountStore
	Cache     cachestore.CacheStore
	Transport event.Transport
	Config    Config
	Logger    *slog.Logger
}

type handlerFunc func(c *Commands, ctx context.Context, cmd *event.CommandEvent) (string, error)

var handlers = map[string]handlerFunc{
	"approve":   (*Commands).approve,
	"unapprove": (*Commands).unapprove,
	"ban":       (*Commands).ban,
	"unban":     (*Commands).unban,
	"status":    (*Commands).status,
	"help":      (*Commands).help,
}

const HelpText = `Commands (private chat, operator only):
/approve [id|@handle] - approve a sender and reset their warnings
/unapprove [id|@handle] - revoke approval; with no target, revokes every approved sender
/ban [id|@handle] - ban a sender; with no target, bans every approved sender
/unban <id|@handle> - lift a ban
/status - list approved, pending and banned senders
/help - this message
A target may also be given by replying to one of the sender's (forwarded) messages.`

// Authorizes and runs a single command, returning the reply for the operator.
//
// Returns an error wrapping ErrUnauthorized (and no reply) if the command was rejected. Other errors come with a reply describing the failure.
func (c *Commands) Execute(ctx context.Context, cmd *event.CommandEvent) (string, error) {
	h, ok := handlers[cmd.Name]
	label := cmd.Name
	if !ok {
		label = "unknown"
	}
	if err := Authorize(cmd, c.Config.Operator).Err(); err != nil {
		commandCount.WithLabelValues(label, "unauthorized").Inc()
		return "", err
	}
	if !ok {
		commandCount.WithLabelValues(label, "ok").Inc()
		return HelpText, nil
	}
	reply, err := h(c, ctx, cmd)
	if err != nil {
		commandCount.WithLabelValues(cmd.Name, "error").Inc()
		c.Logger.Error("command failed", "command", cmd.Name, "args", cmd.Args, "err", err)
		return fmt.Sprintf("Error running /%s: %s", cmd.Name, err), err
	}
	commandCount.WithLabelValues(cmd.Name, "ok").Inc()
	c.Logger.Info("command executed", "command", cmd.Name, "args", cmd.Args)
	if c.Counters != nil {
		if err := countstore.IncrementAction(ctx, c.Counters, countstore.CounterCommand, cmd.Sender.String()); err != nil {
			c.Logger.Warn("failed to count command", "err", err)
		}
	}
	return reply, nil
}

var errNoTarget = errors.New("no target")

// Finds the sender a command applies to: the replied-to message's sender, then the first argument (numeric id or handle).
//
// Returns errNoTarget if neither is present.
func (c *Commands) resolveTarget(ctx context.Context, cmd *event.CommandEvent) (event.SenderID, error) {
	if cmd.ReplyTarget != nil {
		return *cmd.ReplyTarget, nil
	}
	if len(cmd.Args) == 0 {
		return 0, errNoTarget
	}
	arg := cmd.Args[0]
	if id, err := event.ParseSenderID(arg); err == nil {
		return id, nil
	}
	if c.Cache != nil {
		id, err := cachestore.LookupHandle(ctx, c.Cache, arg)
		if err != nil {
			c.Logger.Warn("handle cache lookup failed", "handle", arg, "err", err)
		} else if id != 0 {
			return id, nil
		}
	}
	id, err := c.Transport.ResolveIdentity(ctx, arg)
	if err != nil {
		return 0, fmt.Errorf("could not resolve %q: %w", arg, err)
	}
	if c.Cache != nil {
		if err := cachestore.RememberHandle(ctx, c.Cache, arg, id); err != nil {
			c.Logger.Warn("failed to cache resolved handle", "handle", arg, "err", err)
		}
	}
	return id, nil
}

func (c *Commands) maxWarnings() int {
	if c.Config.MaxWarnings <= 0 {
		return recordstore.DefaultMaxWarnings
	}
	return c.Config.MaxWarnings
}

func (c *Commands) approve(ctx context.Context, cmd *event.CommandEvent) (string, error) {
	target, err := c.resolveTarget(ctx, cmd)
	if errors.Is(err, errNoTarget) {
		return "Usage: reply to a message from the sender with /approve, or /approve <id|@handle>", nil
	} else if err != nil {
		return "", err
	}
	_, err = c.Records.Upsert(ctx, target, recordstore.Update{
		Approved:          recordstore.Bool(true),
		Banned:            recordstore.Bool(false),
		WarningsRemaining: recordstore.Int(c.maxWarnings()),
		MessageCount:      recordstore.Int(0),
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("User %s has been approved.", target), nil
}

func (c *Commands) unapprove(ctx context.Context, cmd *event.CommandEvent) (string, error) {
	target, err := c.resolveTarget(ctx, cmd)
	if errors.Is(err, errNoTarget) {
		n, err := c.bulkUpdate(ctx, recordstore.Update{Approved: recordstore.Bool(false)})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Unapproved %d approved users.", n), nil
	} else if err != nil {
		return "", err
	}
	_, err = c.Records.Update(ctx, target, recordstore.Update{Approved: recordstore.Bool(false)})
	if errors.Is(err, recordstore.ErrNotFound) {
		return fmt.Sprintf("No such user %s to unapprove!", target), nil
	} else if err != nil {
		return "", err
	}
	return fmt.Sprintf("User %s has been unapproved.", target), nil
}

func (c *Commands) ban(ctx context.Context, cmd *event.CommandEvent) (string, error) {
	upd := recordstore.Update{
		Approved: recordstore.Bool(false),
		Banned:   recordstore.Bool(true),
	}
	target, err := c.resolveTarget(ctx, cmd)
	if errors.Is(err, errNoTarget) {
		n, err := c.bulkUpdate(ctx, upd)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Banned %d approved users.", n), nil
	} else if err != nil {
		return "", err
	}
	if target == c.Config.Operator {
		return "Refusing to ban the operator.", nil
	}
	if _, err := c.Records.Upsert(ctx, target, upd); err != nil {
		return "", err
	}
	return fmt.Sprintf("User %s has been banned and will no longer be able to message.", target), nil
}

func (c *Commands) unban(ctx context.Context, cmd *event.CommandEvent) (string, error) {
	target, err := c.resolveTarget(ctx, cmd)
	if errors.Is(err, errNoTarget) {
		return "Usage: /unban <id|@handle>, or reply to a message from the sender with /unban", nil
	} else if err != nil {
		return "", err
	}
	rec, err := c.Records.Get(ctx, target)
	if err != nil {
		return "", err
	}
	if rec == nil || !rec.Banned {
		return fmt.Sprintf("No banned user %s found.", target), nil
	}
	_, err = c.Records.Update(ctx, target, recordstore.Update{Banned: recordstore.Bool(false)})
	if errors.Is(err, recordstore.ErrNotFound) {
		return fmt.Sprintf("No banned user %s found.", target), nil
	} else if err != nil {
		return "", err
	}
	return fmt.Sprintf("User %s has been unbanned.", target), nil
}

// Applies an update to every currently-approved record. Returns the number of records updated.
func (c *Commands) bulkUpdate(ctx context.Context, upd recordstore.Update) (int, error) {
	recs, err := c.Records.Find(ctx, recordstore.Filter{Approved: recordstore.Bool(true)})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range recs {
		if rec.SenderID == c.Config.Operator {
			continue
		}
		if _, err := c.Records.Update(ctx, rec.SenderID, upd); errors.Is(err, recordstore.ErrNotFound) {
			continue
		} else if err != nil {
			return n, fmt.Errorf("updating %s (after %d updated): %w", rec.SenderID, n, err)
		}
		n++
	}
	return n, nil
}

func (c *Commands) status(ctx context.Context, cmd *event.CommandEvent) (string, error) {
	recs, err := c.Records.Find(ctx, recordstore.Filter{})
	if err != nil {
		return "", err
	}
	var approved, pending, banned []string
	for _, rec := range recs {
		label := c.senderLabel(ctx, rec.SenderID)
		switch {
		case rec.Banned:
			banned = append(banned, label)
		case rec.Approved:
			approved = append(approved, label)
		default:
			pending = append(pending, label)
		}
	}

	var sb strings.Builder
	writeSection(&sb, "Approved", approved)
	writeSection(&sb, "Unapproved", pending)
	writeSection(&sb, "Banned", banned)
	if c.Counters != nil {
		sum, err := countstore.Summarize(ctx, c.Counters, countstore.PeriodDay)
		if err != nil {
			c.Logger.Warn("failed to read action counters", "err", err)
		} else {
			fmt.Fprintf(&sb, "Today: %d first contacts, %d warnings, %d bans, %d deletions",
				sum.Counts[countstore.CounterFirstContact],
				sum.Counts[countstore.CounterWarn],
				sum.Counts[countstore.CounterBan],
				sum.Counts[countstore.CounterDelete],
			)
		}
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (c *Commands) senderLabel(ctx context.Context, id event.SenderID) string {
	if c.Cache == nil {
		return id.String()
	}
	h, err := cachestore.SenderHandle(ctx, c.Cache, id)
	if err != nil || h == "" {
		return id.String()
	}
	return fmt.Sprintf("%s (@%s)", id, h)
}

func writeSection(sb *strings.Builder, title string, labels []string) {
	fmt.Fprintf(sb, "%s (%d):\n", title, len(labels))
	if len(labels) == 0 {
		sb.WriteString("  none\n")
	}
	for _, l := range labels {
		fmt.Fprintf(sb, "  %s\n", l)
	}
}

func (c *Commands) help(ctx context.Context, cmd *event.CommandEvent) (string, error) {
	return HelpText, nil
}
