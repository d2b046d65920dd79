package queue

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/archive"
	"github.com/ravenmill/tracker-backend/internal/data/kvstore"
	"github.com/ravenmill/tracker-backend/internal/data/repos"
	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/effects"
	"github.com/ravenmill/tracker-backend/internal/eventlog"
	"github.com/ravenmill/tracker-backend/internal/links"
	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
	"github.com/ravenmill/tracker-backend/internal/propagate"
	"github.com/ravenmill/tracker-backend/internal/rates"
	"github.com/ravenmill/tracker-backend/internal/workflow"
)

type queueEnv struct {
	queue  *Queue
	repos  *repos.Catalog
	events *eventlog.Log
}

func newQueueEnv(t *testing.T, opts Options) *queueEnv {
	t.Helper()
	return newQueueEnvWithStore(t, opts, kvstore.NewMemoryStore())
}

func newQueueEnvWithStore(t *testing.T, opts Options, store kvstore.Store) *queueEnv {
	t.Helper()
	log := logger.NewNop()
	catalog := repos.NewCatalog(store, log)
	ledger := effects.NewLedger(store, log)
	events := eventlog.NewLog(store, log)
	linkReg := links.NewRegistry(store, log)
	engine := workflow.NewEngine(workflow.Deps{
		Log:           log,
		Repos:         catalog,
		Effects:       ledger,
		Events:        events,
		Links:         linkReg,
		Archive:       archive.NewStore(store, log),
		Rates:         rates.StaticService{},
		Propagator:    propagate.New(catalog, ledger, events, linkReg, log),
		DefaultPlayer: workflow.FirstPlayerResolver(catalog.Players),
	})
	return &queueEnv{
		queue:  New(engine, opts, log),
		repos:  catalog,
		events: events,
	}
}

// drainAll drains until the heap is empty, so jobs deferred for want of a
// free slot still get their turn.
func drainAll(t *testing.T, ctx context.Context, q *Queue) {
	t.Helper()
	for i := 0; i < 10; i++ {
		if q.Status().Pending == 0 {
			return
		}
		q.Drain(ctx)
	}
	t.Fatalf("queue never emptied: %+v", q.Status())
}

func TestDrainProcessesByPriority(t *testing.T) {
	ctx := context.Background()
	// Single worker so drain order is observable through the log sequence.
	env := newQueueEnv(t, Options{BatchSize: 10, MaxConcurrency: 1, MaxRetries: 0})

	low := &domain.Player{ID: uuid.New(), Name: "low"}
	high := &domain.Player{ID: uuid.New(), Name: "high"}
	mid := &domain.Player{ID: uuid.New(), Name: "mid"}
	env.queue.Enqueue(domain.EntityPlayer, low, 1)
	env.queue.Enqueue(domain.EntityPlayer, high, 9)
	env.queue.Enqueue(domain.EntityPlayer, mid, 5)

	if got := env.queue.Status().Pending; got != 3 {
		t.Fatalf("pending = %d, want 3", got)
	}
	drainAll(t, ctx, env.queue)

	seqOf := func(id uuid.UUID) int64 {
		entries, err := env.events.EntriesFor(ctx, domain.EntityPlayer, id)
		if err != nil || len(entries) != 1 {
			t.Fatalf("player %s log: %v (%d entries)", id, err, len(entries))
		}
		return entries[0].Seq
	}
	if !(seqOf(high.ID) < seqOf(mid.ID) && seqOf(mid.ID) < seqOf(low.ID)) {
		t.Fatalf("drain order wrong: high=%d mid=%d low=%d",
			seqOf(high.ID), seqOf(mid.ID), seqOf(low.ID))
	}

	stats := env.queue.Status()
	if stats.Pending != 0 || stats.Processed != 3 || stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestEqualPriorityDrainsInArrivalOrder(t *testing.T) {
	ctx := context.Background()
	env := newQueueEnv(t, Options{BatchSize: 10, MaxConcurrency: 1})

	first := &domain.Player{ID: uuid.New(), Name: "first"}
	second := &domain.Player{ID: uuid.New(), Name: "second"}
	env.queue.Enqueue(domain.EntityPlayer, first, 3)
	env.queue.Enqueue(domain.EntityPlayer, second, 3)
	drainAll(t, ctx, env.queue)

	firstEntries, _ := env.events.EntriesFor(ctx, domain.EntityPlayer, first.ID)
	secondEntries, _ := env.events.EntriesFor(ctx, domain.EntityPlayer, second.ID)
	if len(firstEntries) != 1 || len(secondEntries) != 1 {
		t.Fatalf("expected one entry each: %d, %d", len(firstEntries), len(secondEntries))
	}
	if firstEntries[0].Seq >= secondEntries[0].Seq {
		t.Fatalf("arrival order lost: first=%d second=%d", firstEntries[0].Seq, secondEntries[0].Seq)
	}
}

func TestFailedJobRetriesThenDrops(t *testing.T) {
	ctx := context.Background()
	env := newQueueEnv(t, Options{BatchSize: 10, MaxConcurrency: 1, MaxRetries: 1})

	// A nil entity id never validates, so every attempt fails.
	env.queue.Enqueue(domain.EntityTask, &domain.Task{Status: domain.TaskStatusCreated}, 1)

	env.queue.Drain(ctx)
	stats := env.queue.Status()
	if stats.Failed != 1 || stats.Retried != 1 || stats.Pending != 1 || stats.Dropped != 0 {
		t.Fatalf("after first drain: %+v", stats)
	}

	env.queue.Drain(ctx)
	stats = env.queue.Status()
	if stats.Failed != 2 || stats.Dropped != 1 || stats.Pending != 0 {
		t.Fatalf("after second drain: %+v", stats)
	}
	if n := env.queue.Drain(ctx); n != 0 {
		t.Fatalf("dropped job came back: drained %d", n)
	}
}

func TestRetryPreemptsFreshWork(t *testing.T) {
	ctx := context.Background()
	env := newQueueEnv(t, Options{BatchSize: 1, MaxConcurrency: 1, MaxRetries: 1})

	// The failing job ages to priority 3 after one drain, so it must beat
	// the fresh priority-3 job that arrived later.
	env.queue.Enqueue(domain.EntityTask, &domain.Task{Status: domain.TaskStatusCreated}, 2)
	env.queue.Drain(ctx)

	fresh := &domain.Player{ID: uuid.New(), Name: "fresh"}
	env.queue.Enqueue(domain.EntityPlayer, fresh, 3)

	// Second drain takes the retried job (equal priority, earlier seq) and
	// drops it; the fresh job is untouched until the third drain.
	env.queue.Drain(ctx)
	if _, err := env.repos.Players.GetByID(ctx, fresh.ID); !domain.IsCode(err, domain.CodeNotFound) {
		t.Fatalf("retried job should have preempted the fresh one: %v", err)
	}

	env.queue.Drain(ctx)
	if _, err := env.repos.Players.GetByID(ctx, fresh.ID); err != nil {
		t.Fatalf("fresh job never ran: %v", err)
	}
}

// gateStore holds the first Put open until released, so one drain worker
// provably occupies the only slot while the rest of the batch is handled.
type gateStore struct {
	kvstore.Store
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *gateStore) Put(ctx context.Context, collection, id string, doc []byte) error {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return s.Store.Put(ctx, collection, id, doc)
}

func TestSlotUnavailableJobAgesPriority(t *testing.T) {
	ctx := context.Background()
	gate := &gateStore{
		Store:   kvstore.NewMemoryStore(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	env := newQueueEnvWithStore(t, Options{BatchSize: 2, MaxConcurrency: 1, MaxRetries: 0}, gate)

	blocked := &domain.Player{ID: uuid.New(), Name: "blocked"}
	waiting := &domain.Player{ID: uuid.New(), Name: "waiting"}
	env.queue.Enqueue(domain.EntityPlayer, blocked, 1)
	env.queue.Enqueue(domain.EntityPlayer, waiting, 1)

	// The single slot is taken synchronously when the first job starts, so
	// the second job in the batch cannot get one and must go back on the
	// heap with its priority aged.
	drained := make(chan int)
	go func() { drained <- env.queue.Drain(ctx) }()
	<-gate.entered
	close(gate.release)
	if n := <-drained; n != 1 {
		t.Fatalf("started %d jobs, want 1", n)
	}

	stats := env.queue.Status()
	if stats.Processed != 1 || stats.Deferred != 1 || stats.Pending != 1 {
		t.Fatalf("after gated drain: %+v", stats)
	}
	env.queue.mu.Lock()
	agedPriority := env.queue.jobs[0].priority
	env.queue.mu.Unlock()
	if agedPriority != 2 {
		t.Fatalf("deferred job priority = %d, want 2", agedPriority)
	}

	env.queue.Drain(ctx)
	if _, err := env.repos.Players.GetByID(ctx, waiting.ID); err != nil {
		t.Fatalf("deferred job never ran: %v", err)
	}
	stats = env.queue.Status()
	if stats.Processed != 2 || stats.Pending != 0 || stats.Failed != 0 {
		t.Fatalf("after second drain: %+v", stats)
	}
}

func TestUnsupportedEntityIsDropped(t *testing.T) {
	ctx := context.Background()
	env := newQueueEnv(t, Options{BatchSize: 10, MaxConcurrency: 1, MaxRetries: 0})

	env.queue.Enqueue("widget", map[string]any{"id": "x"}, 1)
	env.queue.Drain(ctx)

	stats := env.queue.Status()
	if stats.Dropped != 1 || stats.Pending != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestClear(t *testing.T) {
	env := newQueueEnv(t, DefaultOptions())
	for i := 0; i < 4; i++ {
		env.queue.Enqueue(domain.EntityPlayer, &domain.Player{ID: uuid.New()}, i)
	}
	if n := env.queue.Clear(); n != 4 {
		t.Fatalf("cleared %d, want 4", n)
	}
	if got := env.queue.Status().Pending; got != 0 {
		t.Fatalf("pending after clear = %d", got)
	}
}

func TestConfigureNormalizesOptions(t *testing.T) {
	env := newQueueEnv(t, DefaultOptions())
	env.queue.Configure(Options{BatchSize: -1, MaxConcurrency: 0, MaxRetries: -5})
	env.queue.mu.Lock()
	opts := env.queue.opts
	env.queue.mu.Unlock()
	if opts.BatchSize != DefaultOptions().BatchSize || opts.MaxConcurrency != DefaultOptions().MaxConcurrency {
		t.Fatalf("options not normalized: %+v", opts)
	}
	if opts.MaxRetries != 0 {
		t.Fatalf("negative retries must clamp to zero: %d", opts.MaxRetries)
	}
}
