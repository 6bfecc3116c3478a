package cachestore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/tgwarden/warden/automod/event"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHandle(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("alice", NormalizeHandle("@Alice"))
	assert.Equal("bob_99", NormalizeHandle(" bob_99 "))
	assert.Equal("", NormalizeHandle("@"))
}

func testHandleRoundTrip(t *testing.T, cs CacheStore) {
	assert := assert.New(t)
	ctx := context.Background()

	id, err := LookupHandle(ctx, cs, "@alice")
	assert.NoError(err)
	assert.Equal(event.SenderID(0), id)

	assert.NoError(RememberHandle(ctx, cs, "@Alice", event.SenderID(1001)))
	id, err = LookupHandle(ctx, cs, "alice")
	assert.NoError(err)
	assert.Equal(event.SenderID(1001), id)

	h, err := SenderHandle(ctx, cs, event.SenderID(1001))
	assert.NoError(err)
	assert.Equal("alice", h)

	// empty handles are never cached
	assert.NoError(RememberHandle(ctx, cs, "", event.SenderID(2002)))
	h, err = SenderHandle(ctx, cs, event.SenderID(2002))
	assert.NoError(err)
	assert.Equal("", h)

	assert.NoError(cs.Purge(ctx, NameHandle, "alice"))
	id, err = LookupHandle(ctx, cs, "alice")
	assert.NoError(err)
	assert.Equal(event.SenderID(0), id)
}

func TestMemCacheStore(t *testing.T) {
	testHandleRoundTrip(t, NewMemCacheStore(100, time.Minute))
}

func TestMemCacheStoreCorruptEntry(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	cs := NewMemCacheStore(100, time.Minute)

	assert.NoError(cs.Set(ctx, NameHandle, "mallory", "not-a-number"))
	id, err := LookupHandle(ctx, cs, "mallory")
	assert.NoError(err)
	assert.Equal(event.SenderID(0), id)
	v, err := cs.Get(ctx, NameHandle, "mallory")
	assert.NoError(err)
	assert.Equal("", v)
}

func TestRedisCacheStore(t *testing.T) {
	redisURL := os.Getenv("WARDEN_TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("live test, set WARDEN_TEST_REDIS_URL to run against a local redis")
	}
	opt, err := redis.ParseURL(redisURL)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	defer rdb.Close()
	cs := NewRedisCacheStore(rdb, time.Minute)
	testHandleRoundTrip(t, cs)
	testHandleChange(t, cs)
}

func testHandleChange(t *testing.T, cs CacheStore) {
	assert := assert.New(t)
	ctx := context.Background()

	assert.NoError(RememberHandle(ctx, cs, "foo", event.SenderID(1)))
	assert.NoError(RememberHandle(ctx, cs, "bar", event.SenderID(1)))

	// the old handle no longer points at the sender who gave it up
	id, err := LookupHandle(ctx, cs, "foo")
	assert.NoError(err)
	assert.Equal(event.SenderID(0), id)
	id, err = LookupHandle(ctx, cs, "bar")
	assert.NoError(err)
	assert.Equal(event.SenderID(1), id)

	// someone else picks up the released handle, then the first sender's current handle
	assert.NoError(RememberHandle(ctx, cs, "foo", event.SenderID(2)))
	id, err = LookupHandle(ctx, cs, "foo")
	assert.NoError(err)
	assert.Equal(event.SenderID(2), id)

	assert.NoError(RememberHandle(ctx, cs, "bar", event.SenderID(3)))
	h, err := SenderHandle(ctx, cs, event.SenderID(1))
	assert.NoError(err)
	assert.Equal("", h)

	// sender 3 moving on must not release "foo", which belongs to sender 2
	assert.NoError(RememberHandle(ctx, cs, "baz", event.SenderID(3)))
	id, err = LookupHandle(ctx, cs, "foo")
	assert.NoError(err)
	assert.Equal(event.SenderID(2), id)
	id, err = LookupHandle(ctx, cs, "bar")
	assert.NoError(err)
	assert.Equal(event.SenderID(0), id)
}

func TestMemCacheStoreHandleChange(t *testing.T) {
	testHandleChange(t, NewMemCacheStore(100, time.Minute))
}

func TestMemCacheStoreNamespaces(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	cs := NewMemCacheStore(2, time.Minute)

	assert.NoError(cs.Set(ctx, NameSenderHandle, "1", "alice"))
	for _, h := range []string{"a", "b", "c"} {
		assert.NoError(cs.Set(ctx, NameHandle, h, "9"))
	}
	// capacity is per namespace
	v, err := cs.Get(ctx, NameSenderHandle, "1")
	assert.NoError(err)
	assert.Equal("alice", v)
	v, err = cs.Get(ctx, NameHandle, "a")
	assert.NoError(err)
	assert.Equal("", v)
	v, err = cs.Get(ctx, NameHandle, "c")
	assert.NoError(err)
	assert.Equal("9", v)
}
