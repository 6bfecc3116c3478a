package event

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// In-memory Transport which records every call. For tests.
type MockTransport struct {
	lk      sync.Mutex
	Handles map[string]SenderID
	Deleted []MessageRef
	Replies []MockReply
	// forwarded messages, by destination
	Forwarded map[SenderID][]MessageRef
	// when set, Delete and Reply fail with this error (calls are still recorded)
	Err error
}

type MockReply struct {
	To   SenderID
	Chat int64
	Text string
}

var _ Transport = (*MockTransport)(nil)

func NewMockTransport() *MockTransport {
	return &MockTransport{
		Handles:   make(map[string]SenderID),
		Forwarded: make(map[SenderID][]MessageRef),
	}
}

func (t *MockTransport) Delete(ctx context.Context, ref MessageRef) error {
	t.lk.Lock()
	defer t.lk.Unlock()
	t.Deleted = append(t.Deleted, ref)
	return t.Err
}

func (t *MockTransport) Reply(ctx context.Context, evt *InboundEvent, text string) error {
	t.lk.Lock()
	defer t.lk.Unlock()
	t.Replies = append(t.Replies, MockReply{To: evt.Sender, Chat: evt.ChatID, Text: text})
	return t.Err
}

func (t *MockTransport) ResolveIdentity(ctx context.Context, handle string) (SenderID, error) {
	t.lk.Lock()
	defer t.lk.Unlock()
	id, ok := t.Handles[strings.ToLower(strings.TrimPrefix(handle, "@"))]
	if !ok {
		return 0, fmt.Errorf("unknown handle: %s", handle)
	}
	return id, nil
}

func (t *MockTransport) Forward(ctx context.Context, to SenderID, ref MessageRef) error {
	t.lk.Lock()
	defer t.lk.Unlock()
	t.Forwarded[to] = append(t.Forwarded[to], ref)
	return t.Err
}

// Returns a copy of the replies recorded so far
func (t *MockTransport) RecordedReplies() []MockReply {
	t.lk.Lock()
	defer t.lk.Unlock()
	return append([]MockReply{}, t.Replies...)
}

func (t *MockTransport) RecordedDeletes() []MessageRef {
	t.lk.Lock()
	defer t.lk.Unlock()
	return append([]MessageRef{}, t.Deleted...)
}

func (t *MockTransport) RecordedForwards(to SenderID) []MessageRef {
	t.lk.Lock()
	defer t.lk.Unlock()
	return append([]MessageRef{}, t.Forwarded[to]...)
}
