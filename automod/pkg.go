package automod

import (
	"github.com/tgwarden/warden/automod/countstore"
	"github.com/tgwarden/warden/automod/engine"
	"github.com/tgwarden/warden/automod/event"
	"github.com/tgwarden/warden/automod/recordstore"
)

type Engine = engine.Engine
type EngineConfig = engine.EngineConfig
type Action = engine.Action
type ActionKind = engine.ActionKind

type Notifier = engine.Notifier
type SlackNotifier = engine.SlackNotifier

type SenderID = event.SenderID
type InboundEvent = event.InboundEvent
type CommandEvent = event.CommandEvent
type Transport = event.Transport

type Record = recordstore.Record
type RecordStore = recordstore.RecordStore

const (
	ActionIgnore    = engine.ActionIgnore
	ActionAllow     = engine.ActionAllow
	ActionReplyOnly = engine.ActionReplyOnly
	ActionWarn      = engine.ActionWarn
	ActionBan       = engine.ActionBan

	KindText        = event.KindText
	KindMedia       = event.KindMedia
	KindUnsupported = event.KindUnsupported
)

var (
	PeriodTotal = countstore.PeriodTotal
	PeriodDay   = countstore.PeriodDay
	PeriodHour  = countstore.PeriodHour
)
