package workflow

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/domain"
)

func TestItemCreationBooksSiteStock(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	site := env.addSite(t, "Depot")

	item := env.addItem(t, "plank", 6, site.ID)
	if got := env.siteStock(t, site.ID, item.ID); got != 6 {
		t.Fatalf("stock = %v, want 6", got)
	}
	names := env.eventNames(t, domain.EntityItem, item.ID)
	if len(names) != 1 || names[0] != domain.EventCreated {
		t.Fatalf("unexpected events: %v", names)
	}

	// Creation replay books nothing twice.
	stored, _ := env.repos.Items.GetByID(ctx, item.ID)
	if err := env.engine.OnItemUpsert(ctx, stored, nil); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if got := env.siteStock(t, site.ID, item.ID); got != 6 {
		t.Fatalf("stock duplicated on replay: %v", got)
	}
}

func TestItemQuantityEditMovesStock(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	site := env.addSite(t, "Depot")
	item := env.addItem(t, "plank", 6, site.ID)

	stored, _ := env.repos.Items.GetByID(ctx, item.ID)
	stored.Quantity = 4
	if err := env.engine.UpsertItem(ctx, stored); err != nil {
		t.Fatalf("edit quantity: %v", err)
	}
	if got := env.siteStock(t, site.ID, item.ID); got != 4 {
		t.Fatalf("stock = %v, want 4", got)
	}

	// Re-running the reactor for the same version applies nothing more.
	stored, _ = env.repos.Items.GetByID(ctx, item.ID)
	prev := *stored
	prev.Quantity = 6
	if err := env.engine.OnItemUpsert(ctx, stored, &prev); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if got := env.siteStock(t, site.ID, item.ID); got != 4 {
		t.Fatalf("stock moved on replay: %v", got)
	}
}

func TestItemSoldTransition(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	site := env.addSite(t, "Depot")
	item := env.addItem(t, "plank", 1, site.ID)

	stored, _ := env.repos.Items.GetByID(ctx, item.ID)
	stored.Status = domain.ItemStatusSold
	if err := env.engine.UpsertItem(ctx, stored); err != nil {
		t.Fatalf("sell item: %v", err)
	}
	stored, _ = env.repos.Items.GetByID(ctx, item.ID)
	if stored.SoldAt == nil {
		t.Fatal("soldAt not stamped")
	}
	if !containsEvent(env.eventNames(t, domain.EntityItem, item.ID), domain.EventDone) {
		t.Fatal("missing DONE event")
	}
}

func TestItemArchivedCollects(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	site := env.addSite(t, "Depot")
	item := env.addItem(t, "plank", 1, site.ID)

	stored, _ := env.repos.Items.GetByID(ctx, item.ID)
	stored.Status = domain.ItemStatusArchived
	if err := env.engine.UpsertItem(ctx, stored); err != nil {
		t.Fatalf("archive item: %v", err)
	}

	stored, _ = env.repos.Items.GetByID(ctx, item.ID)
	if !stored.Collected || stored.CollectedAt == nil {
		t.Fatalf("item not collected: %+v", stored)
	}
	month := stored.CollectedAt.UTC().Format("2006-01")
	if _, err := env.archive.Get(ctx, "items", month, item.ID.String()); err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}
}

func TestDeleteItemReversesStock(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	site := env.addSite(t, "Depot")
	item := env.addItem(t, "plank", 5, site.ID)

	if err := env.engine.DeleteItem(ctx, item.ID); err != nil {
		t.Fatalf("delete item: %v", err)
	}
	if _, err := env.repos.Items.GetByID(ctx, item.ID); !domain.IsCode(err, domain.CodeNotFound) {
		t.Fatalf("item survived delete: %v", err)
	}
	if got := env.siteStock(t, site.ID, item.ID); got != 0 {
		t.Fatalf("stock not reversed: %v", got)
	}
	if entries, _ := env.events.EntriesFor(ctx, domain.EntityItem, item.ID); len(entries) != 0 {
		t.Fatalf("log entries survived: %d", len(entries))
	}
}

func TestDeleteMissingItemIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.DeleteItem(context.Background(), uuid.New()); err != nil {
		t.Fatalf("deleting a missing item must be a no-op, got %v", err)
	}
}
