package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

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
)

type testEnv struct {
	engine  *Engine
	repos   *repos.Catalog
	effects *effects.Ledger
	events  *eventlog.Log
	links   *links.Registry
	archive *archive.Store
}

// newTestEnv wires a full engine over the in-memory store. The clock
// advances one second per read so version-scoped guard keys differ between
// writes.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.NewNop()
	store := kvstore.NewMemoryStore()
	catalog := repos.NewCatalog(store, log)
	ledger := effects.NewLedger(store, log)
	events := eventlog.NewLog(store, log)
	linkReg := links.NewRegistry(store, log)
	arch := archive.NewStore(store, log)
	prop := propagate.New(catalog, ledger, events, linkReg, log)

	base := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	step := 0
	clk := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		step++
		return base.Add(time.Duration(step) * time.Second)
	}
	linkReg.WithClock(clk)
	prop.WithClock(clk)

	engine := NewEngine(Deps{
		Log:           log,
		Repos:         catalog,
		Effects:       ledger,
		Events:        events,
		Links:         linkReg,
		Archive:       arch,
		Rates:         rates.StaticService{},
		Propagator:    prop,
		DefaultPlayer: FirstPlayerResolver(catalog.Players),
	})
	engine.WithClock(clk)

	return &testEnv{
		engine:  engine,
		repos:   catalog,
		effects: ledger,
		events:  events,
		links:   linkReg,
		archive: arch,
	}
}

func (env *testEnv) addPlayer(t *testing.T, name string) *domain.Player {
	t.Helper()
	p := &domain.Player{ID: uuid.New(), Name: name}
	if err := env.engine.UpsertPlayer(context.Background(), p); err != nil {
		t.Fatalf("add player: %v", err)
	}
	return p
}

func (env *testEnv) addSite(t *testing.T, name string) *domain.Site {
	t.Helper()
	s := &domain.Site{ID: uuid.New(), Name: name}
	if err := env.engine.UpsertSite(context.Background(), s); err != nil {
		t.Fatalf("add site: %v", err)
	}
	return s
}

func (env *testEnv) playerPoints(t *testing.T, id uuid.UUID) domain.Points {
	t.Helper()
	p, err := env.repos.Players.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load player: %v", err)
	}
	return p.Points
}

func (env *testEnv) siteStock(t *testing.T, siteID, itemID uuid.UUID) float64 {
	t.Helper()
	s, err := env.repos.Sites.GetByID(context.Background(), siteID)
	if err != nil {
		t.Fatalf("load site: %v", err)
	}
	return s.Stock[itemID.String()]
}

// eventNames returns the entity's active log events in append order.
func (env *testEnv) eventNames(t *testing.T, entityType domain.EntityType, id uuid.UUID) []string {
	t.Helper()
	entries, err := env.events.ActiveEntriesFor(context.Background(), entityType, id)
	if err != nil {
		t.Fatalf("load entries: %v", err)
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Event
	}
	return out
}

func containsEvent(names []string, event string) bool {
	for _, n := range names {
		if n == event {
			return true
		}
	}
	return false
}

func countEvent(names []string, event string) int {
	n := 0
	for _, name := range names {
		if name == event {
			n++
		}
	}
	return n
}
