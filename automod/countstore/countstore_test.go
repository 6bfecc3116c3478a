package countstore

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemCountStoreBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()

	c, err := cs.GetCount(ctx, CounterWarn, "1001", PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	assert.NoError(cs.Increment(ctx, CounterWarn, "1001"))
	assert.NoError(cs.Increment(ctx, CounterWarn, "1001"))

	for _, period := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		c, err = cs.GetCount(ctx, CounterWarn, "1001", period)
		assert.NoError(err)
		assert.Equal(2, c)
	}

	c, err = cs.GetCountDistinct(ctx, CounterBan, ValueAll, PeriodTotal)
	assert.NoError(err)
	assert.Equal(0, c)
	assert.NoError(cs.IncrementDistinct(ctx, CounterBan, ValueAll, "1001"))
	assert.NoError(cs.IncrementDistinct(ctx, CounterBan, ValueAll, "1001"))
	c, err = cs.GetCountDistinct(ctx, CounterBan, ValueAll, PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)

	assert.NoError(cs.IncrementDistinct(ctx, CounterBan, ValueAll, "2002"))
	for _, period := range []string{PeriodTotal, PeriodDay, PeriodHour} {
		c, err = cs.GetCountDistinct(ctx, CounterBan, ValueAll, period)
		assert.NoError(err)
		assert.Equal(2, c)
	}
}

func TestIncrementActionSummary(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()
	assert.NoError(IncrementAction(ctx, cs, CounterWarn, "1001"))
	assert.NoError(IncrementAction(ctx, cs, CounterWarn, "1001"))
	assert.NoError(IncrementAction(ctx, cs, CounterWarn, "2002"))
	assert.NoError(IncrementAction(ctx, cs, CounterBan, "1001"))

	c, err := cs.GetCount(ctx, CounterWarn, "1001", PeriodDay)
	assert.NoError(err)
	assert.Equal(2, c)

	sum, err := Summarize(ctx, cs, PeriodDay)
	require.NoError(t, err)
	assert.Equal(PeriodDay, sum.Period)
	assert.Equal(3, sum.Counts[CounterWarn])
	assert.Equal(2, sum.Senders[CounterWarn])
	assert.Equal(1, sum.Counts[CounterBan])
	assert.Equal(1, sum.Senders[CounterBan])
	assert.Equal(0, sum.Counts[CounterFirstContact])
}

func TestMemCountStoreConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCountStore()

	// Writers and readers interleave; run with -race.
	var wg sync.WaitGroup
	fnInc := func(name, val string, times int) {
		defer wg.Done()
		for i := 0; i < times; i++ {
			assert.NoError(cs.Increment(ctx, name, val))
			assert.NoError(cs.IncrementDistinct(ctx, name, name, val))
			time.Sleep(time.Nanosecond)
		}
	}
	fnRead := func(name, val string, times int) {
		defer wg.Done()
		for i := 0; i < times; i++ {
			_, err := cs.GetCount(ctx, name, val, PeriodTotal)
			assert.NoError(err)
			time.Sleep(time.Nanosecond)
		}
	}
	wg.Add(6)
	go fnInc(CounterWarn, "1001", 10)
	go fnInc(CounterWarn, "1001", 10)
	go fnRead(CounterWarn, "1001", 10)
	go fnInc(CounterBan, "2002", 6)
	go fnInc(CounterBan, "2002", 6)
	go fnRead(CounterBan, "2002", 6)
	wg.Wait()

	c, err := cs.GetCount(ctx, CounterWarn, "1001", PeriodTotal)
	assert.NoError(err)
	assert.Equal(20, c)
	c, err = cs.GetCount(ctx, CounterBan, "2002", PeriodTotal)
	assert.NoError(err)
	assert.Equal(12, c)

	c, err = cs.GetCountDistinct(ctx, CounterWarn, CounterWarn, PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)
	c, err = cs.GetCountDistinct(ctx, CounterBan, CounterBan, PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)
}

func TestRedisCountStore(t *testing.T) {
	redisURL := os.Getenv("WARDEN_TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("live test, set WARDEN_TEST_REDIS_URL to run against a local redis")
	}
	assert := assert.New(t)
	ctx := context.Background()

	opt, err := redis.ParseURL(redisURL)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	defer rdb.Close()
	require.NoError(t, rdb.FlushDB(ctx).Err())
	cs := NewRedisCountStore(rdb)

	assert.NoError(IncrementAction(ctx, cs, CounterDelete, "1001"))
	assert.NoError(IncrementAction(ctx, cs, CounterDelete, "2002"))
	c, err := cs.GetCount(ctx, CounterDelete, ValueAll, PeriodHour)
	assert.NoError(err)
	assert.Equal(2, c)
	c, err = cs.GetCountDistinct(ctx, CounterDelete, ValueAll, PeriodTotal)
	assert.NoError(err)
	assert.Equal(2, c)
	c, err = cs.GetCount(ctx, CounterDelete, "1001", PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, c)

	// bucketed counters expire, totals do not
	ttl, err := rdb.TTL(ctx, redisCountPrefix+periodBucket(CounterDelete, ValueAll, PeriodDay)).Result()
	assert.NoError(err)
	assert.Greater(ttl, 24*time.Hour)
	ttl, err = rdb.TTL(ctx, redisCountPrefix+periodBucket(CounterDelete, ValueAll, PeriodTotal)).Result()
	assert.NoError(err)
	assert.Equal(time.Duration(-1), ttl)
}
