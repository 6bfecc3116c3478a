// Per-sender moderation gate for a chat account.
//
// This package (`github.com/tgwarden/warden/automod`) re-exports the core types of the gate. Every inbound message from a sender who has not been approved by the operator is checked against a small per-kind quota (text, media, unsupported content). Messages over quota are deleted and earn a warning; a sender who runs out of warnings is banned. The operator manages senders with a handful of private commands (approve, unapprove, ban, unban, status).
//
// Sender records are kept in a pluggable RecordStore (memory, pebble, redis, or SQL via gorm), and updated with an optimistic compare-and-swap loop so that concurrent messages from the same sender never lose updates.
//
// See `cmd/warden` for a daemon built on this package, using the Telegram Bot API as transport.
package automod
