package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tgwarden/warden/automod/command"
	"github.com/tgwarden/warden/automod/engine"
	"github.com/tgwarden/warden/automod/event"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("warden")

type EventType string

const (
	EventMessage EventType = "message"
	EventCommand EventType = "command"
)

// A classified inbound event. Command is only set for EventCommand.
type Event struct {
	Type    EventType
	Inbound *event.InboundEvent
	Command *event.CommandEvent
}

type HandlerFunc func(ctx context.Context, evt *Event) error

// Optional transport capability, used to show first-contact messages to the operator.
type Forwarder interface {
	Forward(ctx context.Context, to event.SenderID, ref event.MessageRef) error
}

type Config struct {
	Operator event.SenderID
	// command prefixes; defaults to command.DefaultPrefixes
	Prefixes []string
	// reply "unauthorized" to rejected commands (they are still moderated as plain messages)
	ReplyUnauthorized bool
	// forward the first message of every unknown sender to the operator
	ForwardFirstContact bool
}

// Routes inbound events to the moderation engine or the command set, and carries out the resulting actions on the transport.
type Dispatcher struct {
	Engine    *engine.Engine
	Commands  *command.Commands
	Transport event.Transport
	// nil disables first-contact forwarding
	Forwarder Forwarder
	Config    Config
	Logger    *slog.Logger

	handlers map[EventType]HandlerFunc
}

// The transport is also used as the Forwarder, if it implements it.
func NewDispatcher(eng *engine.Engine, cmds *command.Commands, transport event.Transport, config Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if len(config.Prefixes) == 0 {
		config.Prefixes = command.DefaultPrefixes
	}
	d := &Dispatcher{
		Engine:    eng,
		Commands:  cmds,
		Transport: transport,
		Config:    config,
		Logger:    logger,
	}
	if f, ok := transport.(Forwarder); ok {
		d.Forwarder = f
	}
	d.handlers = map[EventType]HandlerFunc{
		EventMessage: d.handleMessage,
		EventCommand: d.handleCommand,
	}
	return d
}

func (d *Dispatcher) Classify(in *event.InboundEvent) *Event {
	if cmd, ok := command.Parse(in, d.Config.Prefixes); ok {
		return &Event{Type: EventCommand, Inbound: in, Command: cmd}
	}
	return &Event{Type: EventMessage, Inbound: in}
}

// Handles a single inbound event. Errors are logged and counted here; the returned error is informational, and the caller should move on to the next event.
func (d *Dispatcher) Handle(ctx context.Context, in *event.InboundEvent) (err error) {
	evt := d.Classify(in)
	ctx, span := tracer.Start(ctx, "HandleEvent")
	defer span.End()
	span.SetAttributes(
		attribute.String("type", string(evt.Type)),
		attribute.Int64("sender", int64(in.Sender)),
		attribute.String("kind", in.Kind.String()),
	)
	dispatchCount.WithLabelValues(string(evt.Type)).Inc()

	defer func() {
		if r := recover(); r != nil {
			d.Logger.Error("event handler exception", "err", r, "sender", in.Sender, "type", evt.Type)
			dispatchErrorCount.WithLabelValues(string(evt.Type), "panic").Inc()
			err = fmt.Errorf("event handler panic: %v", r)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	h, ok := d.handlers[evt.Type]
	if !ok {
		return fmt.Errorf("no handler for event type: %s", evt.Type)
	}
	if err := h(ctx, evt); err != nil {
		d.Logger.Error("failed to handle event", "err", err, "sender", in.Sender, "type", evt.Type)
		dispatchErrorCount.WithLabelValues(string(evt.Type), "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (d *Dispatcher) handleCommand(ctx context.Context, evt *Event) error {
	cmd := evt.Command
	if dec := command.Authorize(cmd, d.Config.Operator); !dec.Authorized {
		d.Logger.Info("rejected command", "command", cmd.Name, "sender", cmd.Sender, "reason", dec.Reason)
		if d.Config.ReplyUnauthorized && !cmd.IsGroup {
			d.reply(ctx, evt.Inbound, "unauthorized")
		}
		// a rejected command is still a message, and must not bypass moderation
		return d.handleMessage(ctx, &Event{Type: EventMessage, Inbound: evt.Inbound})
	}

	reply, err := d.Commands.Execute(ctx, cmd)
	if reply != "" {
		d.reply(ctx, evt.Inbound, reply)
	}
	return err
}

func (d *Dispatcher) handleMessage(ctx context.Context, evt *Event) error {
	in := evt.Inbound
	act, err := d.Engine.EvaluateInbound(ctx, in)
	if err != nil {
		return fmt.Errorf("evaluating message: %w", err)
	}
	d.execute(ctx, in, act)
	return nil
}

// Carries out an action which has already been persisted. Transport failures are logged, and do not undo the decision.
func (d *Dispatcher) execute(ctx context.Context, in *event.InboundEvent, act *engine.Action) {
	if act.Delete {
		if err := d.Transport.Delete(ctx, in.Ref); err != nil {
			d.Logger.Warn("failed to delete message", "err", err, "sender", in.Sender, "action", act.Kind.String())
			transportErrorCount.WithLabelValues("delete").Inc()
		}
	}
	if act.Reply != "" {
		d.reply(ctx, in, act.Reply)
	}
	if act.Kind != engine.ActionIgnore && act.Kind != engine.ActionAllow {
		d.Engine.NotifyAction(ctx, in, act)
	}
	if act.FirstContact && d.Config.ForwardFirstContact && d.Forwarder != nil {
		if err := d.Forwarder.Forward(ctx, d.Config.Operator, in.Ref); err != nil {
			d.Logger.Warn("failed to forward first-contact message", "err", err, "sender", in.Sender)
			transportErrorCount.WithLabelValues("forward").Inc()
		}
	}
}

func (d *Dispatcher) reply(ctx context.Context, in *event.InboundEvent, text string) {
	if err := d.Transport.Reply(ctx, in, text); err != nil {
		d.Logger.Warn("failed to send reply", "err", err, "sender", in.Sender)
		transportErrorCount.WithLabelValues("reply").Inc()
	}
}
