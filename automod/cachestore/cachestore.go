package cachestore

import (
	"context"
	"fmt"
	"strings"

	"github.com/tgwarden/warden/automod/event"
)

type CacheStore interface {
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}

const (
	// handle -> sender id
	NameHandle = "handle"
	// sender id -> handle
	NameSenderHandle = "sender-handle"
)

// Lower-cases a handle and strips any leading '@'. Returns "" for an empty handle.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

// Remembers the association between a handle and a sender, in both directions. Empty handles are ignored.
//
// Stale entries are dropped: the sender's previous handle stops resolving to them, and a previous owner of the handle loses its reverse entry.
func RememberHandle(ctx context.Context, cs CacheStore, handle string, id event.SenderID) error {
	h := NormalizeHandle(handle)
	if h == "" {
		return nil
	}

	old, err := SenderHandle(ctx, cs, id)
	if err != nil {
		return fmt.Errorf("reading cached handle for %s: %w", id, err)
	}
	if old != "" && old != h {
		owner, err := LookupHandle(ctx, cs, old)
		if err != nil {
			return fmt.Errorf("reading cached handle %q: %w", old, err)
		}
		if owner == id {
			if err := cs.Purge(ctx, NameHandle, old); err != nil {
				return fmt.Errorf("purging handle %q: %w", old, err)
			}
		}
	}

	prev, err := LookupHandle(ctx, cs, h)
	if err != nil {
		return fmt.Errorf("reading cached handle %q: %w", h, err)
	}
	if prev != 0 && prev != id {
		if err := cs.Purge(ctx, NameSenderHandle, prev.String()); err != nil {
			return fmt.Errorf("purging handle for %s: %w", prev, err)
		}
	}

	if err := cs.Set(ctx, NameHandle, h, id.String()); err != nil {
		return fmt.Errorf("caching handle %q: %w", h, err)
	}
	if err := cs.Set(ctx, NameSenderHandle, id.String(), h); err != nil {
		return fmt.Errorf("caching handle for %s: %w", id, err)
	}
	return nil
}

// Returns the cached sender id for a handle, or 0 if not cached.
func LookupHandle(ctx context.Context, cs CacheStore, handle string) (event.SenderID, error) {
	h := NormalizeHandle(handle)
	if h == "" {
		return 0, nil
	}
	v, err := cs.Get(ctx, NameHandle, h)
	if err != nil {
		return 0, err
	}
	if v == "" {
		return 0, nil
	}
	id, err := event.ParseSenderID(v)
	if err != nil {
		// corrupt entry; drop it
		_ = cs.Purge(ctx, NameHandle, h)
		return 0, nil
	}
	return id, nil
}

// Returns the cached handle for a sender, or "".
func SenderHandle(ctx context.Context, cs CacheStore, id event.SenderID) (string, error) {
	return cs.Get(ctx, NameSenderHandle, id.String())
}
