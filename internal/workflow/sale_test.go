package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/domain"
)

func (env *testEnv) addItem(t *testing.T, name string, qty float64, siteID uuid.UUID) *domain.Item {
	t.Helper()
	it := &domain.Item{
		ID:       uuid.New(),
		Name:     name,
		Status:   domain.ItemStatusActive,
		Quantity: qty,
		SiteID:   &siteID,
	}
	if err := env.engine.UpsertItem(context.Background(), it); err != nil {
		t.Fatalf("add item: %v", err)
	}
	return it
}

func TestSaleChargeLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	player := env.addPlayer(t, "Alex")
	site := env.addSite(t, "Market")
	item := env.addItem(t, "widget", 5, site.ID)
	if got := env.siteStock(t, site.ID, item.ID); got != 5 {
		t.Fatalf("initial stock = %v, want 5", got)
	}

	sale := &domain.Sale{
		ID:           uuid.New(),
		Status:       domain.SaleStatusPending,
		CustomerName: "Bo",
		Revenue:      30,
		Currency:     "USD",
		Rewards:      domain.Points{"xp": 5},
		Lines: []domain.SaleLine{
			{LineID: "l1", ItemID: &item.ID, Quantity: 2, UnitPrice: 15, SiteID: &site.ID},
		},
	}
	if err := env.engine.UpsertSale(ctx, sale); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	// The customer name synthesized a character at creation.
	chars, _ := env.repos.Characters.GetBySourceSaleID(ctx, sale.ID)
	if len(chars) != 1 || chars[0].Name != "Bo" {
		t.Fatalf("customer character not synthesized: %+v", chars)
	}
	storedSale, _ := env.repos.Sales.GetByID(ctx, sale.ID)
	if storedSale.CustomerCharacterID == nil || *storedSale.CustomerCharacterID != chars[0].ID {
		t.Fatalf("sale not rewritten with customer character: %+v", storedSale)
	}

	sale.Status = domain.SaleStatusFullyCharged
	if err := env.engine.UpsertSale(ctx, sale); err != nil {
		t.Fatalf("charge sale: %v", err)
	}

	// Inventory moved by the line quantity.
	storedItem, _ := env.repos.Items.GetByID(ctx, item.ID)
	if storedItem.Quantity != 3 {
		t.Fatalf("item quantity = %v, want 3", storedItem.Quantity)
	}
	if got := env.siteStock(t, site.ID, item.ID); got != 3 {
		t.Fatalf("site stock = %v, want 3", got)
	}
	soldLinks, _ := env.links.ForTyped(ctx, saleRef(sale.ID), domain.LinkItemSold)
	if len(soldLinks) != 1 {
		t.Fatalf("expected one item-sold link, got %d", len(soldLinks))
	}

	// The revenue became an income record pointed back at the sale.
	recs, _ := env.repos.Records.GetBySourceSaleID(ctx, sale.ID)
	if len(recs) != 1 || recs[0].Kind != "income" || recs[0].Amount != 30 {
		t.Fatalf("unexpected records: %+v", recs)
	}
	storedSale, _ = env.repos.Sales.GetByID(ctx, sale.ID)
	if storedSale.RecordID == nil || *storedSale.RecordID != recs[0].ID {
		t.Fatalf("sale not rewritten with record id: %+v", storedSale)
	}
	recordLinks, _ := env.links.ForTyped(ctx, saleRef(sale.ID), domain.LinkRecordOfSale)
	if len(recordLinks) != 1 {
		t.Fatalf("missing record-of-sale link: %d", len(recordLinks))
	}

	if got := env.playerPoints(t, player.ID)["xp"]; got != 5 {
		t.Fatalf("player xp = %v, want 5", got)
	}
	if storedSale.SoldAt == nil {
		t.Fatal("soldAt not stamped")
	}

	names := env.eventNames(t, domain.EntitySale, sale.ID)
	if len(names) == 0 || names[0] != domain.EventCreated {
		t.Fatalf("log must open with CREATED: %v", names)
	}
	for _, event := range []string{domain.EventDone, domain.EventRecordSpawned, domain.EventCharacterSpawned} {
		if countEvent(names, event) != 1 {
			t.Fatalf("expected exactly one %s in %v", event, names)
		}
	}
}

func TestSaleReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	player := env.addPlayer(t, "Alex")
	site := env.addSite(t, "Market")
	item := env.addItem(t, "widget", 5, site.ID)

	sale := &domain.Sale{
		ID:      uuid.New(),
		Status:  domain.SaleStatusFullyCharged,
		Revenue: 40,
		Rewards: domain.Points{"xp": 5},
		Lines: []domain.SaleLine{
			{LineID: "l1", ItemID: &item.ID, Quantity: 2, SiteID: &site.ID},
		},
	}
	if err := env.engine.UpsertSale(ctx, sale); err != nil {
		t.Fatalf("insert charged sale: %v", err)
	}

	stored, _ := env.repos.Sales.GetByID(ctx, sale.ID)
	if err := env.engine.UpsertSale(ctx, stored); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	stored, _ = env.repos.Sales.GetByID(ctx, sale.ID)
	if err := env.engine.OnSaleUpsert(ctx, stored, nil); err != nil {
		t.Fatalf("replay reactor: %v", err)
	}

	storedItem, _ := env.repos.Items.GetByID(ctx, item.ID)
	if storedItem.Quantity != 3 {
		t.Fatalf("line applied more than once: qty %v", storedItem.Quantity)
	}
	if got := env.playerPoints(t, player.ID)["xp"]; got != 5 {
		t.Fatalf("points not exactly-once: %v", got)
	}
	recs, _ := env.repos.Records.GetBySourceSaleID(ctx, sale.ID)
	if len(recs) != 1 {
		t.Fatalf("record not exactly-once: %d", len(recs))
	}
	names := env.eventNames(t, domain.EntitySale, sale.ID)
	if countEvent(names, domain.EventDone) != 1 {
		t.Fatalf("DONE duplicated: %v", names)
	}
}

func TestSaleLineResolvesItemByName(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.addPlayer(t, "Alex")
	site := env.addSite(t, "Market")
	item := env.addItem(t, "widget", 4, site.ID)

	sale := &domain.Sale{
		ID:     uuid.New(),
		Status: domain.SaleStatusFullyCharged,
		Lines: []domain.SaleLine{
			{LineID: "l1", ItemName: "widget", Quantity: 1, SiteID: &site.ID},
		},
	}
	if err := env.engine.UpsertSale(ctx, sale); err != nil {
		t.Fatalf("insert sale: %v", err)
	}

	stored, _ := env.repos.Sales.GetByID(ctx, sale.ID)
	if stored.Lines[0].ItemID == nil || *stored.Lines[0].ItemID != item.ID {
		t.Fatalf("line item id not backfilled: %+v", stored.Lines[0])
	}
	storedItem, _ := env.repos.Items.GetByID(ctx, item.ID)
	if storedItem.Quantity != 3 {
		t.Fatalf("item quantity = %v, want 3", storedItem.Quantity)
	}
}

// The record spawn and the line sells each rewrite the sale document; both
// rewrites must land in the stored sale, neither may clobber the other.
func TestSaleChargeRewritesPersistTogether(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.addPlayer(t, "Alex")
	site := env.addSite(t, "Market")
	item := env.addItem(t, "widget", 4, site.ID)

	sale := &domain.Sale{
		ID:           uuid.New(),
		Status:       domain.SaleStatusFullyCharged,
		CustomerName: "Mira",
		Revenue:      30,
		Lines: []domain.SaleLine{
			{LineID: "l1", ItemName: "widget", Quantity: 1, SiteID: &site.ID},
		},
	}
	if err := env.engine.UpsertSale(ctx, sale); err != nil {
		t.Fatalf("insert sale: %v", err)
	}

	stored, _ := env.repos.Sales.GetByID(ctx, sale.ID)
	if stored.RecordID == nil {
		t.Fatalf("record rewrite lost: %+v", stored)
	}
	if stored.Lines[0].ItemID == nil || *stored.Lines[0].ItemID != item.ID {
		t.Fatalf("line rewrite lost: %+v", stored.Lines[0])
	}
	if rec, err := env.repos.Records.GetByID(ctx, *stored.RecordID); err != nil || rec.Amount != 30 {
		t.Fatalf("spawned record wrong: %+v (%v)", rec, err)
	}
}

func TestUncompleteSaleReversesCharge(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	player := env.addPlayer(t, "Alex")
	site := env.addSite(t, "Market")
	item := env.addItem(t, "widget", 2, site.ID)

	sale := &domain.Sale{
		ID:      uuid.New(),
		Status:  domain.SaleStatusFullyCharged,
		Revenue: 20,
		Rewards: domain.Points{"xp": 5},
		Lines: []domain.SaleLine{
			{LineID: "l1", ItemID: &item.ID, Quantity: 2, SiteID: &site.ID},
		},
	}
	if err := env.engine.UpsertSale(ctx, sale); err != nil {
		t.Fatalf("insert charged sale: %v", err)
	}
	// Selling the whole stack flipped the item to sold.
	storedItem, _ := env.repos.Items.GetByID(ctx, item.ID)
	if storedItem.Quantity != 0 || storedItem.Status != domain.ItemStatusSold {
		t.Fatalf("item not sold out: %+v", storedItem)
	}

	reverted, err := env.engine.UncompleteSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("uncomplete: %v", err)
	}
	if reverted.Status != domain.SaleStatusPending || reverted.SoldAt != nil {
		t.Fatalf("sale not reverted: %+v", reverted)
	}

	storedItem, _ = env.repos.Items.GetByID(ctx, item.ID)
	if storedItem.Quantity != 2 || storedItem.Status != domain.ItemStatusActive || storedItem.SoldAt != nil {
		t.Fatalf("item not restored: %+v", storedItem)
	}
	if got := env.siteStock(t, site.ID, item.ID); got != 2 {
		t.Fatalf("stock not restored: %v", got)
	}
	if got := env.playerPoints(t, player.ID)["xp"]; got != 0 {
		t.Fatalf("points not reversed: %v", got)
	}
	// The income record deliberately survives.
	recs, _ := env.repos.Records.GetBySourceSaleID(ctx, sale.ID)
	if len(recs) != 1 {
		t.Fatalf("record should survive uncompletion: %d", len(recs))
	}
	if !containsEvent(env.eventNames(t, domain.EntitySale, sale.ID), domain.EventPending) {
		t.Fatal("missing PENDING event")
	}

	if _, err := env.engine.UncompleteSale(ctx, sale.ID); !domain.IsCode(err, domain.CodeInvariantViolation) {
		t.Fatalf("second uncomplete should fail, got %v", err)
	}

	// Re-charging sells the lines again without duplicating the record.
	stored, _ := env.repos.Sales.GetByID(ctx, sale.ID)
	stored.Status = domain.SaleStatusFullyCharged
	if err := env.engine.UpsertSale(ctx, stored); err != nil {
		t.Fatalf("re-charge: %v", err)
	}
	storedItem, _ = env.repos.Items.GetByID(ctx, item.ID)
	if storedItem.Quantity != 0 {
		t.Fatalf("line not re-applied: %+v", storedItem)
	}
	if got := env.playerPoints(t, player.ID)["xp"]; got != 5 {
		t.Fatalf("points not re-awarded: %v", got)
	}
	recs, _ = env.repos.Records.GetBySourceSaleID(ctx, sale.ID)
	if len(recs) != 1 {
		t.Fatalf("record duplicated on re-charge: %d", len(recs))
	}
}

func TestSaleLineEditPropagatesDelta(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.addPlayer(t, "Alex")
	site := env.addSite(t, "Market")
	item := env.addItem(t, "widget", 10, site.ID)

	sale := &domain.Sale{
		ID:     uuid.New(),
		Status: domain.SaleStatusFullyCharged,
		Lines: []domain.SaleLine{
			{LineID: "l1", ItemID: &item.ID, Quantity: 2, SiteID: &site.ID},
		},
	}
	if err := env.engine.UpsertSale(ctx, sale); err != nil {
		t.Fatalf("insert charged sale: %v", err)
	}
	storedItem, _ := env.repos.Items.GetByID(ctx, item.ID)
	if storedItem.Quantity != 8 {
		t.Fatalf("item quantity = %v, want 8", storedItem.Quantity)
	}

	// Raising the sold quantity from 2 to 3 moves inventory by one more
	// unit, not by a re-applied three.
	stored, _ := env.repos.Sales.GetByID(ctx, sale.ID)
	stored.Lines[0].Quantity = 3
	if err := env.engine.UpsertSale(ctx, stored); err != nil {
		t.Fatalf("edit line: %v", err)
	}
	storedItem, _ = env.repos.Items.GetByID(ctx, item.ID)
	if storedItem.Quantity != 7 {
		t.Fatalf("item quantity = %v, want 7", storedItem.Quantity)
	}
	if got := env.siteStock(t, site.ID, item.ID); got != 7 {
		t.Fatalf("site stock = %v, want 7", got)
	}
}

func TestSaleRevenueEditResyncsRecord(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.addPlayer(t, "Alex")

	sale := &domain.Sale{
		ID:      uuid.New(),
		Status:  domain.SaleStatusFullyCharged,
		Revenue: 30,
	}
	if err := env.engine.UpsertSale(ctx, sale); err != nil {
		t.Fatalf("insert charged sale: %v", err)
	}

	stored, _ := env.repos.Sales.GetByID(ctx, sale.ID)
	stored.Revenue = 45
	if err := env.engine.UpsertSale(ctx, stored); err != nil {
		t.Fatalf("edit revenue: %v", err)
	}
	recs, _ := env.repos.Records.GetBySourceSaleID(ctx, sale.ID)
	if len(recs) != 1 || recs[0].Amount != 45 {
		t.Fatalf("record not resynced: %+v", recs)
	}
}

func TestSaleCollectedArchivesUnderSoldMonth(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.addPlayer(t, "Alex")
	now := time.Date(2024, 2, 3, 9, 0, 0, 0, time.UTC)
	env.engine.WithClock(func() time.Time { return now })

	soldAt := time.Date(2024, 1, 20, 11, 0, 0, 0, time.UTC)
	sale := &domain.Sale{
		ID:      uuid.New(),
		Status:  domain.SaleStatusFullyCharged,
		Revenue: 15,
		SoldAt:  &soldAt,
	}
	if err := env.engine.UpsertSale(ctx, sale); err != nil {
		t.Fatalf("insert charged sale: %v", err)
	}
	sale.Status = domain.SaleStatusCollected
	if err := env.engine.UpsertSale(ctx, sale); err != nil {
		t.Fatalf("collect sale: %v", err)
	}

	snap, err := env.archive.Get(ctx, "sales", "2024-01", sale.ID.String())
	if err != nil {
		t.Fatalf("snapshot missing from january: %v", err)
	}
	if snap.SoldAt == nil || !snap.SoldAt.Equal(soldAt) {
		t.Fatalf("snapshot lost soldAt: %+v", snap)
	}
	members, _ := env.archive.IndexMembers(ctx, "collected:sale:2024-01")
	if len(members) != 1 {
		t.Fatalf("month index wrong: %v", members)
	}
}

func TestDeleteSaleCascade(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	player := env.addPlayer(t, "Alex")
	site := env.addSite(t, "Market")
	item := env.addItem(t, "widget", 5, site.ID)

	sale := &domain.Sale{
		ID:           uuid.New(),
		Status:       domain.SaleStatusFullyCharged,
		CustomerName: "Bo",
		Revenue:      25,
		Rewards:      domain.Points{"xp": 5},
		Lines: []domain.SaleLine{
			{LineID: "l1", ItemID: &item.ID, Quantity: 2, SiteID: &site.ID},
		},
	}
	if err := env.engine.UpsertSale(ctx, sale); err != nil {
		t.Fatalf("insert charged sale: %v", err)
	}

	if err := env.engine.DeleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("delete sale: %v", err)
	}

	if _, err := env.repos.Sales.GetByID(ctx, sale.ID); !domain.IsCode(err, domain.CodeNotFound) {
		t.Fatalf("sale survived delete: %v", err)
	}
	// Sold inventory was restored, not destroyed.
	storedItem, _ := env.repos.Items.GetByID(ctx, item.ID)
	if storedItem.Quantity != 5 {
		t.Fatalf("inventory not restored: %+v", storedItem)
	}
	if recs, _ := env.repos.Records.GetBySourceSaleID(ctx, sale.ID); len(recs) != 0 {
		t.Fatalf("spawned record survived: %d", len(recs))
	}
	if chars, _ := env.repos.Characters.GetBySourceSaleID(ctx, sale.ID); len(chars) != 0 {
		t.Fatalf("spawned character survived: %d", len(chars))
	}
	if got := env.playerPoints(t, player.ID)["xp"]; got != 0 {
		t.Fatalf("points not reversed: %v", got)
	}
	if entries, _ := env.events.EntriesFor(ctx, domain.EntitySale, sale.ID); len(entries) != 0 {
		t.Fatalf("log entries survived: %d", len(entries))
	}
	if left, _ := env.links.For(ctx, saleRef(sale.ID)); len(left) != 0 {
		t.Fatalf("links survived: %d", len(left))
	}
}
