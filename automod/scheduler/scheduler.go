package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var ErrShutdown = errors.New("scheduler is shut down")

// Scheduler runs work on a fixed number of workers. Items sharing a key run one at a time, in the order they were added; items with different keys run in parallel.
type Scheduler[T any] struct {
	maxConcurrency int

	do func(context.Context, T) error

	feeder chan *task[T]
	out    chan struct{}

	lk     sync.Mutex
	active map[string][]*task[T]
	closed bool

	// AddWork calls blocked on the feeder
	sending sync.WaitGroup

	ident string

	// metrics
	itemsAdded     prometheus.Counter
	itemsProcessed prometheus.Counter
	itemsFailed    prometheus.Counter
	itemsQueued    prometheus.Gauge
	workersActive  prometheus.Gauge

	log *slog.Logger
}

type task[T any] struct {
	key     string
	val     T
	control string
}

func NewScheduler[T any](maxC int, ident string, do func(context.Context, T) error) *Scheduler[T] {
	if maxC < 1 {
		maxC = 1
	}
	p := &Scheduler[T]{
		maxConcurrency: maxC,

		do: do,

		feeder: make(chan *task[T]),
		active: make(map[string][]*task[T]),
		out:    make(chan struct{}),

		ident: ident,

		itemsAdded:     WorkItemsAdded.WithLabelValues(ident),
		itemsProcessed: WorkItemsProcessed.WithLabelValues(ident),
		itemsFailed:    WorkItemsFailed.WithLabelValues(ident),
		itemsQueued:    WorkItemsQueued.WithLabelValues(ident),
		workersActive:  WorkersActive.WithLabelValues(ident),

		log: slog.Default().With("system", "scheduler", "ident", ident),
	}

	for i := 0; i < maxC; i++ {
		go p.worker()
	}

	p.workersActive.Set(float64(maxC))

	return p
}

// Waits for all admitted work to finish, then stops the workers. AddWork fails with ErrShutdown afterwards.
func (p *Scheduler[T]) Shutdown() {
	p.log.Info("shutting down scheduler")

	p.lk.Lock()
	if p.closed {
		p.lk.Unlock()
		return
	}
	p.closed = true
	p.lk.Unlock()
	p.sending.Wait()

	for i := 0; i < p.maxConcurrency; i++ {
		p.feeder <- &task[T]{
			control: "stop",
		}
	}

	close(p.feeder)

	for i := 0; i < p.maxConcurrency; i++ {
		<-p.out
	}

	p.workersActive.Set(0)
	p.log.Info("scheduler shutdown complete")
}

// Queues an item. Blocks only while all workers are busy with other keys; returns early if ctx is cancelled.
func (p *Scheduler[T]) AddWork(ctx context.Context, key string, val T) error {
	t := &task[T]{
		key: key,
		val: val,
	}
	p.lk.Lock()
	if p.closed {
		p.lk.Unlock()
		return ErrShutdown
	}
	p.itemsAdded.Inc()
	p.itemsQueued.Inc()

	a, ok := p.active[key]
	if ok {
		p.active[key] = append(a, t)
		p.lk.Unlock()
		return nil
	}

	p.active[key] = []*task[T]{}
	p.sending.Add(1)
	p.lk.Unlock()
	defer p.sending.Done()

	select {
	case p.feeder <- t:
		return nil
	case <-ctx.Done():
		// never admitted: drop this item along with anything queued behind it
		p.lk.Lock()
		rem := p.active[key]
		delete(p.active, key)
		p.lk.Unlock()
		if len(rem) > 0 {
			p.log.Warn("dropping queued work items", "key", key, "count", len(rem))
		}
		p.itemsQueued.Sub(float64(len(rem) + 1))
		return ctx.Err()
	}
}

func (p *Scheduler[T]) worker() {
	for work := range p.feeder {
		for work != nil {
			if work.control == "stop" {
				p.out <- struct{}{}
				return
			}

			p.itemsQueued.Dec()
			// admitted work runs to completion, independent of the caller's context
			if err := p.do(context.Background(), work.val); err != nil {
				p.itemsFailed.Inc()
				p.log.Error("work item failed", "key", work.key, "err", err)
			}
			p.itemsProcessed.Inc()

			p.lk.Lock()
			rem, ok := p.active[work.key]
			if !ok {
				p.log.Error("should always have an 'active' entry if a worker is processing a job", "key", work.key)
			}

			if len(rem) == 0 {
				delete(p.active, work.key)
				work = nil
			} else {
				work = rem[0]
				p.active[work.key] = rem[1:]
			}
			p.lk.Unlock()
		}
	}
}
