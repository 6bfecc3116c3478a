package consumer

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/tgwarden/warden/automod/event"
	"github.com/tgwarden/warden/botapi"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	lk      sync.Mutex
	batches [][]botapi.Update
	errs    map[int]error
	offsets []int64
}

func (s *fakeSource) GetUpdates(ctx context.Context, params botapi.GetUpdatesParams) ([]botapi.Update, error) {
	s.lk.Lock()
	n := len(s.offsets)
	s.offsets = append(s.offsets, params.Offset)
	err := s.errs[n]
	var batch []botapi.Update
	if n < len(s.batches) {
		batch = s.batches[n]
	}
	s.lk.Unlock()

	if err != nil {
		return nil, err
	}
	if n >= len(s.batches) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return batch, nil
}

func (s *fakeSource) seenOffsets() []int64 {
	s.lk.Lock()
	defer s.lk.Unlock()
	return append([]int64{}, s.offsets...)
}

type recordingHandler struct {
	lk     sync.Mutex
	seen   map[event.SenderID][]string
	total  int
	expect int
	done   chan struct{}
}

func (h *recordingHandler) Handle(ctx context.Context, evt *event.InboundEvent) error {
	h.lk.Lock()
	defer h.lk.Unlock()
	h.seen[evt.Sender] = append(h.seen[evt.Sender], evt.Text)
	h.total++
	if h.total == h.expect {
		close(h.done)
	}
	return nil
}

func textUpdate(id int64, from int64, text string) botapi.Update {
	return botapi.Update{
		UpdateID: id,
		Message: &botapi.Message{
			MessageID: id,
			From:      &botapi.User{ID: from, FirstName: "x"},
			Chat:      botapi.Chat{ID: from, Type: botapi.ChatTypePrivate},
			Text:      text,
		},
	}
}

func TestUpdateConsumer(t *testing.T) {
	assert := assert.New(t)

	src := &fakeSource{
		batches: [][]botapi.Update{
			{textUpdate(100, 1, "a1"), textUpdate(101, 2, "b1"), textUpdate(102, 1, "a2")},
			nil,
			// a channel post with no sender is skipped, but still confirmed
			{{UpdateID: 103}, textUpdate(104, 1, "a3"), textUpdate(105, 2, "b2")},
		},
		errs: map[int]error{
			1: &botapi.Error{StatusCode: 502, Description: "Bad Gateway"},
		},
	}
	h := &recordingHandler{
		seen:   map[event.SenderID][]string{},
		expect: 5,
		done:   make(chan struct{}),
	}
	uc := &UpdateConsumer{
		Parallelism:  4,
		Logger:       slog.Default(),
		Source:       src,
		Handler:      h,
		ErrorBackoff: time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- uc.Run(ctx) }()

	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for events")
	}
	cancel()
	require.NoError(t, <-errc)

	h.lk.Lock()
	defer h.lk.Unlock()
	assert.Equal([]string{"a1", "a2", "a3"}, h.seen[1])
	assert.Equal([]string{"b1", "b2"}, h.seen[2])

	offsets := src.seenOffsets()
	require.True(t, len(offsets) >= 3)
	assert.Equal([]int64{0, 103, 103}, offsets[:3])
	assert.Equal(int64(106), uc.nextOffset)
}

func TestUpdateConsumerRequiresHandler(t *testing.T) {
	uc := &UpdateConsumer{Source: &fakeSource{}}
	assert.Error(t, uc.Run(context.Background()))
}

// live test, need redis running locally
func TestUpdateCursorRedis(t *testing.T) {
	redisURL := os.Getenv("WARDEN_TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("WARDEN_TEST_REDIS_URL not set")
	}
	assert := assert.New(t)
	ctx := context.Background()

	opt, err := redis.ParseURL(redisURL)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	defer rdb.Close()
	require.NoError(t, rdb.Del(ctx, updateCursorKey).Err())

	uc := &UpdateConsumer{Logger: slog.Default(), RedisClient: rdb}
	cur, err := uc.ReadLastCursor(ctx)
	require.NoError(t, err)
	assert.Equal(int64(0), cur)

	uc.nextOffset = 4242
	require.NoError(t, uc.PersistCursor(ctx))
	cur, err = uc.ReadLastCursor(ctx)
	require.NoError(t, err)
	assert.Equal(int64(4242), cur)
}

func TestCursorWithoutRedis(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	uc := &UpdateConsumer{Logger: slog.Default()}
	cur, err := uc.ReadLastCursor(ctx)
	assert.NoError(err)
	assert.Equal(int64(0), cur)
	assert.NoError(uc.PersistCursor(ctx))
	assert.NoError(uc.RunPersistCursor(ctx))
}
