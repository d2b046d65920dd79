// Package queue is the bulk ingestion path: entity writes are enqueued with
// a priority and drained in batches through the workflow engine under a
// concurrency cap. Failed jobs retry with aged priority up to a retry
// budget; the queue is advisory machinery, the engine's guards carry the
// correctness.
package queue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
	"github.com/ravenmill/tracker-backend/internal/workflow"
)

type Options struct {
	BatchSize      int
	MaxConcurrency int
	MaxRetries     int
	DrainInterval  time.Duration
}

func DefaultOptions() Options {
	return Options{
		BatchSize:      25,
		MaxConcurrency: 4,
		MaxRetries:     3,
		DrainInterval:  2 * time.Second,
	}
}

func (o Options) normalized() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultOptions().BatchSize
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = DefaultOptions().MaxConcurrency
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.DrainInterval <= 0 {
		o.DrainInterval = DefaultOptions().DrainInterval
	}
	return o
}

type job struct {
	entityType domain.EntityType
	entity     any
	priority   int
	attempts   int
	seq        uint64
	enqueuedAt time.Time
}

// Stats is a point-in-time view of the queue's counters.
type Stats struct {
	Pending   int `json:"pending"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
	Dropped   int `json:"dropped"`
	Deferred  int `json:"deferred"`
}

type Queue struct {
	log    *logger.Logger
	engine *workflow.Engine

	mu   sync.Mutex
	jobs jobHeap
	seq  uint64
	opts Options

	processed int
	failed    int
	retried   int
	dropped   int
	deferred  int
}

func New(engine *workflow.Engine, opts Options, baseLog *logger.Logger) *Queue {
	return &Queue{
		log:    baseLog.With("component", "WorkflowQueue"),
		engine: engine,
		opts:   opts.normalized(),
	}
}

// Enqueue schedules one entity write. Higher priority drains first; equal
// priorities drain in arrival order.
func (q *Queue) Enqueue(entityType domain.EntityType, entity any, priority int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	heap.Push(&q.jobs, &job{
		entityType: entityType,
		entity:     entity,
		priority:   priority,
		seq:        q.seq,
		enqueuedAt: time.Now(),
	})
}

// Configure replaces the queue's tunables.
func (q *Queue) Configure(opts Options) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.opts = opts.normalized()
}

// Clear drops every pending job and reports how many went.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.jobs)
	q.jobs = nil
	return n
}

func (q *Queue) Status() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Pending:   len(q.jobs),
		Processed: q.processed,
		Failed:    q.failed,
		Retried:   q.retried,
		Dropped:   q.dropped,
		Deferred:  q.deferred,
	}
}

// Run drains on an interval until the context ends.
func (q *Queue) Run(ctx context.Context) {
	q.mu.Lock()
	interval := q.opts.DrainInterval
	q.mu.Unlock()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	q.log.Info("Workflow queue started", "drain_interval", interval)
	for {
		select {
		case <-ctx.Done():
			q.log.Info("Workflow queue stopped")
			return
		case <-ticker.C:
			q.Drain(ctx)
		}
	}
}

// Drain runs one batch: up to BatchSize jobs, at most MaxConcurrency in
// flight. A failing job goes back on the heap with its priority bumped so
// retries preempt fresh work, until its retry budget runs out. A job that
// finds no slot free goes back the same way, priority aged, so it wins the
// next drain instead of blocking this one. Returns how many jobs started.
func (q *Queue) Drain(ctx context.Context) int {
	q.mu.Lock()
	opts := q.opts
	batch := make([]*job, 0, opts.BatchSize)
	for len(batch) < opts.BatchSize && len(q.jobs) > 0 {
		batch = append(batch, heap.Pop(&q.jobs).(*job))
	}
	q.mu.Unlock()
	if len(batch) == 0 {
		return 0
	}

	var g errgroup.Group
	g.SetLimit(opts.MaxConcurrency)
	started := 0
	for _, j := range batch {
		j := j
		ok := g.TryGo(func() error {
			err := q.dispatch(ctx, j)
			q.mu.Lock()
			defer q.mu.Unlock()
			if err == nil {
				q.processed++
				return nil
			}
			q.failed++
			j.attempts++
			if j.attempts > opts.MaxRetries {
				q.dropped++
				q.log.Error("Queue job dropped after retries",
					"entity_type", j.entityType, "attempts", j.attempts, "error", err)
				return nil
			}
			q.retried++
			j.priority++
			q.seq++
			j.seq = q.seq
			heap.Push(&q.jobs, j)
			q.log.Warn("Queue job requeued",
				"entity_type", j.entityType, "attempt", j.attempts, "priority", j.priority, "error", err)
			return nil
		})
		if !ok {
			q.mu.Lock()
			q.deferred++
			j.priority++
			q.seq++
			j.seq = q.seq
			heap.Push(&q.jobs, j)
			q.mu.Unlock()
			q.log.Debug("Queue job deferred, no slot free",
				"entity_type", j.entityType, "priority", j.priority)
			continue
		}
		started++
	}
	_ = g.Wait()
	return started
}

func (q *Queue) dispatch(ctx context.Context, j *job) error {
	switch entity := j.entity.(type) {
	case *domain.Task:
		return q.engine.UpsertTask(ctx, entity)
	case *domain.Sale:
		return q.engine.UpsertSale(ctx, entity)
	case *domain.FinancialRecord:
		return q.engine.UpsertRecord(ctx, entity)
	case *domain.Item:
		return q.engine.UpsertItem(ctx, entity)
	case *domain.Player:
		return q.engine.UpsertPlayer(ctx, entity)
	case *domain.Character:
		return q.engine.UpsertCharacter(ctx, entity)
	case *domain.Site:
		return q.engine.UpsertSite(ctx, entity)
	case *domain.Business:
		return q.engine.UpsertBusiness(ctx, entity)
	default:
		return domain.NewError(domain.CodeValidation, "Queue.Dispatch",
			fmt.Sprintf("unsupported entity type %q", j.entityType), nil)
	}
}

// jobHeap orders by priority descending, then arrival order.
type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(*job)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
