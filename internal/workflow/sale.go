package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/effects"
)

func saleRef(id uuid.UUID) domain.Ref {
	return domain.Ref{Type: domain.EntitySale, ID: id}
}

func saleCollected(s *domain.Sale) bool {
	return s != nil && (s.Status == domain.SaleStatusCollected || s.Collected)
}

// OnSaleUpsert is the sale reactor.
func (e *Engine) OnSaleUpsert(ctx context.Context, sale, prev *domain.Sale) error {
	const op = "Workflow.OnSaleUpsert"
	if sale == nil {
		return domain.NewError(domain.CodeValidation, op, "sale required", nil)
	}
	var errs []error

	if prev == nil {
		if err := e.handleSaleCreation(ctx, sale); err != nil {
			errs = append(errs, err)
		}
	}

	prevStatus := ""
	if prev != nil {
		prevStatus = prev.Status
	}
	switch {
	case sale.Status == domain.SaleStatusFullyCharged &&
		prevStatus != domain.SaleStatusFullyCharged && prevStatus != domain.SaleStatusCollected:
		if err := e.handleSaleCharged(ctx, sale); err != nil {
			errs = append(errs, err)
		}
	case sale.Status == domain.SaleStatusCancelled && prevStatus != domain.SaleStatusCancelled:
		k := effects.NewKey(domain.EntitySale, sale.ID, "event:cancelled")
		if _, err := e.runGuarded(ctx, k, func(ctx context.Context) error {
			_, err := e.deps.Events.Append(ctx, domain.EntitySale, sale.ID, domain.EventCancelled, nil)
			return err
		}); err != nil {
			errs = append(errs, err)
		}
	case prevStatus == domain.SaleStatusFullyCharged && sale.Status == domain.SaleStatusPending:
		if err := e.reverseSaleCharge(ctx, sale); err != nil {
			errs = append(errs, err)
		}
	}

	if saleCollected(sale) && !saleCollected(prev) {
		if err := e.collectSale(ctx, sale); err != nil {
			errs = append(errs, err)
		}
	}

	if prev != nil {
		e.deps.Propagator.ResyncSaleDependents(ctx, prev, sale)
		e.applySaleCorrections(ctx, prev, sale)
	}
	return errors.Join(errs...)
}

func (e *Engine) handleSaleCreation(ctx context.Context, sale *domain.Sale) error {
	var errs []error
	k := effects.CreatedKey(domain.EntitySale, sale.ID)
	if _, err := e.runGuarded(ctx, k, func(ctx context.Context) error {
		_, err := e.deps.Events.Append(ctx, domain.EntitySale, sale.ID, domain.EventCreated,
			map[string]any{"customerName": sale.CustomerName, "status": sale.Status})
		return err
	}); err != nil {
		errs = append(errs, err)
	}
	if sale.CustomerName != "" && sale.CustomerCharacterID == nil {
		sid := sale.ID
		err := e.synthesizeCharacter(ctx, saleRef(sale.ID), sale.CustomerName,
			func(c *domain.Character) { c.SourceSaleID = &sid },
			func(ctx context.Context, characterID uuid.UUID) error {
				sale.CustomerCharacterID = &characterID
				return e.UpsertSaleRaw(ctx, sale)
			})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// handleSaleCharged reacts to the fully-charged transition: stamp soldAt,
// append DONE, then run points, the income record and the per-line
// inventory decrements. The record spawn and the line sells both rewrite
// the sale itself, so the steps run sequentially; one writer at a time.
func (e *Engine) handleSaleCharged(ctx context.Context, sale *domain.Sale) error {
	if sale.SoldAt == nil || sale.SoldAt.IsZero() {
		now := e.now().UTC()
		sale.SoldAt = &now
		if err := e.UpsertSaleRaw(ctx, sale); err != nil {
			return err
		}
	}
	k := effects.NewKey(domain.EntitySale, sale.ID, "event:done")
	if _, err := e.runGuarded(ctx, k, func(ctx context.Context) error {
		_, err := e.deps.Events.Append(ctx, domain.EntitySale, sale.ID, domain.EventDone,
			map[string]any{"revenue": sale.Revenue, "currency": sale.Currency})
		return err
	}); err != nil {
		return err
	}
	e.runSteps(ctx, saleRef(sale.ID), []effectStep{
		{name: "pointsAwarded", run: func(ctx context.Context) error {
			return e.awardPoints(ctx, saleRef(sale.ID), sale.Rewards, sale.PlayerID,
				effects.NewKey(domain.EntitySale, sale.ID, "pointsAwarded"))
		}},
		{name: "recordSpawned", run: func(ctx context.Context) error {
			return e.spawnSaleRecord(ctx, sale)
		}},
		{name: "linesSold", run: func(ctx context.Context) error {
			return e.sellSaleLines(ctx, sale)
		}},
	})
	return nil
}

// spawnSaleRecord books the sale's revenue as an income record, links it to
// the sale and rewrites the sale to point at it.
func (e *Engine) spawnSaleRecord(ctx context.Context, sale *domain.Sale) error {
	if sale.Revenue == 0 {
		return nil
	}
	k := effects.NewKey(domain.EntitySale, sale.ID, "recordSpawned")
	_, err := e.runGuarded(ctx, k, func(ctx context.Context) error {
		sid := sale.ID
		rec := &domain.FinancialRecord{
			ID:           uuid.New(),
			Kind:         "income",
			Status:       domain.RecordStatusCreated,
			Description:  "Sale to " + sale.CustomerName,
			Amount:       sale.Revenue,
			Currency:     sale.Currency,
			SourceSaleID: &sid,
			PlayerID:     sale.PlayerID,
		}
		if err := e.UpsertRecord(ctx, rec); err != nil {
			return err
		}
		if _, err := e.deps.Links.Create(ctx, domain.LinkRecordOfSale, saleRef(sale.ID),
			domain.Ref{Type: domain.EntityRecord, ID: rec.ID}, nil); err != nil {
			return err
		}
		if _, err := e.deps.Events.Append(ctx, domain.EntitySale, sale.ID, domain.EventRecordSpawned,
			map[string]any{"recordId": rec.ID, "amount": sale.Revenue, "usdApprox": e.usdApprox(ctx, sale.Revenue, sale.Currency)}); err != nil {
			return err
		}
		sale.RecordID = &rec.ID
		return e.UpsertSaleRaw(ctx, sale)
	})
	return err
}

// sellSaleLines decrements sold inventory per line, guarded per line id so
// a partially applied charge resumes where it stopped. Lines naming an item
// without an id are resolved against the active stack at the line's site.
func (e *Engine) sellSaleLines(ctx context.Context, sale *domain.Sale) error {
	var errs []error
	rewrite := false
	for i := range sale.Lines {
		line := &sale.Lines[i]
		if line.LineID == "" {
			continue
		}
		k := effects.NewKey(domain.EntitySale, sale.ID, "lineSold", line.LineID)
		_, err := e.runGuarded(ctx, k, func(ctx context.Context) error {
			item, err := e.resolveLineItem(ctx, line)
			if err != nil {
				return err
			}
			if item == nil {
				e.log.Warn("Sale line names no resolvable item", "sale_id", sale.ID, "line_id", line.LineID)
				return nil
			}
			if line.ItemID == nil {
				id := item.ID
				line.ItemID = &id
				rewrite = true
			}
			item.Quantity -= line.Quantity
			if item.Quantity <= 0 && item.Status == domain.ItemStatusActive {
				item.Status = domain.ItemStatusSold
				if item.SoldAt == nil {
					now := e.now().UTC()
					item.SoldAt = &now
				}
			}
			item.UpdatedAt = e.now().UTC()
			if err := e.deps.Repos.Items.Put(ctx, item); err != nil {
				return err
			}
			if _, err := e.deps.Links.Create(ctx, domain.LinkItemSold, saleRef(sale.ID),
				domain.Ref{Type: domain.EntityItem, ID: item.ID},
				map[string]any{"lineId": line.LineID, "quantity": line.Quantity}); err != nil {
				return err
			}
			siteID := line.SiteID
			if siteID == nil {
				siteID = item.SiteID
			}
			if siteID != nil {
				e.applySiteStockDelta(ctx, *siteID, item.ID, -line.Quantity)
			}
			return nil
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	if rewrite {
		if err := e.UpsertSaleRaw(ctx, sale); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) resolveLineItem(ctx context.Context, line *domain.SaleLine) (*domain.Item, error) {
	if line.ItemID != nil {
		item, err := e.deps.Repos.Items.GetByID(ctx, *line.ItemID)
		if err != nil {
			if domain.IsCode(err, domain.CodeNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return item, nil
	}
	if line.ItemName == "" {
		return nil, nil
	}
	item, err := e.deps.Repos.Items.GetByNameAndSite(ctx, line.ItemName, line.SiteID)
	if err != nil && !domain.IsCode(err, domain.CodeNotFound) {
		return nil, err
	}
	return item, nil
}

func (e *Engine) collectSale(ctx context.Context, sale *domain.Sale) error {
	return e.collectEntity(ctx, saleRef(sale.ID), sale.CollectedAt, sale.SoldAt, sale.SoldAt,
		func(ctx context.Context, collectedAt time.Time) (any, error) {
			sale.CollectedAt = &collectedAt
			sale.Collected = true
			if err := e.UpsertSaleRaw(ctx, sale); err != nil {
				return nil, err
			}
			return sale, nil
		})
}

// UncompleteSale rolls a fully charged sale back to pending: sold inventory
// is restored from the stored line links, awarded points are debited, and
// the charge guards are re-armed. The spawned income record survives.
func (e *Engine) UncompleteSale(ctx context.Context, id uuid.UUID) (*domain.Sale, error) {
	const op = "Workflow.UncompleteSale"
	sale, err := e.deps.Repos.Sales.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sale.Status != domain.SaleStatusFullyCharged {
		return nil, domain.NewError(domain.CodeInvariantViolation, op, "sale is not fully charged", nil)
	}
	sale.Status = domain.SaleStatusPending
	sale.SoldAt = nil
	sale.UpdatedAt = e.now().UTC()
	if err := e.UpsertSaleRaw(ctx, sale); err != nil {
		return nil, err
	}
	if err := e.reverseSaleCharge(ctx, sale); err != nil {
		return nil, err
	}
	return sale, nil
}

func (e *Engine) reverseSaleCharge(ctx context.Context, sale *domain.Sale) error {
	var errs []error
	if err := e.restoreSoldLines(ctx, sale); err != nil {
		errs = append(errs, err)
	}
	if err := e.reversePointsAwards(ctx, saleRef(sale.ID)); err != nil {
		errs = append(errs, err)
	}
	for _, effect := range []string{"event:done", "pointsAwarded"} {
		if err := e.deps.Effects.Clear(ctx, effects.NewKey(domain.EntitySale, sale.ID, effect)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.deps.Effects.ClearByPrefix(ctx, domain.EntitySale, sale.ID, "lineSold"); err != nil {
		errs = append(errs, err)
	}
	if _, err := e.deps.Events.Append(ctx, domain.EntitySale, sale.ID, domain.EventPending, nil); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// restoreSoldLines puts sold quantities back using the per-line links laid
// down at charge time.
func (e *Engine) restoreSoldLines(ctx context.Context, sale *domain.Sale) error {
	sold, err := e.deps.Links.ForTyped(ctx, saleRef(sale.ID), domain.LinkItemSold)
	if err != nil {
		return err
	}
	var errs []error
	for _, link := range sold {
		if link.Source != saleRef(sale.ID) {
			continue
		}
		qty, _ := link.Metadata["quantity"].(float64)
		if err := e.deps.Links.Remove(ctx, link.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		item, err := e.deps.Repos.Items.GetByID(ctx, link.Target.ID)
		if err != nil {
			if domain.IsCode(err, domain.CodeNotFound) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		item.Quantity += qty
		if item.Status == domain.ItemStatusSold && item.Quantity > 0 {
			item.Status = domain.ItemStatusActive
			item.SoldAt = nil
		}
		item.UpdatedAt = e.now().UTC()
		if err := e.deps.Repos.Items.Put(ctx, item); err != nil {
			errs = append(errs, err)
			continue
		}
		if item.SiteID != nil {
			e.applySiteStockDelta(ctx, *item.SiteID, item.ID, qty)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) applySaleCorrections(ctx context.Context, prev, next *domain.Sale) {
	if prev.CustomerName != next.CustomerName {
		if err := e.deps.Events.UpdateField(ctx, domain.EntitySale, next.ID, "customerName", next.CustomerName); err != nil {
			e.log.Warn("Log correction failed", "entity_type", domain.EntitySale, "entity_id", next.ID, "field", "customerName", "error", err)
		}
	}
}

// DeleteSale removes a sale with its cascade: sold inventory restored,
// spawned records and characters removed, points reversed, links, log
// entries and effects cleared.
func (e *Engine) DeleteSale(ctx context.Context, id uuid.UUID) error {
	const op = "Workflow.DeleteSale"
	var fails cascadeFailures
	ref := saleRef(id)

	sale, err := e.deps.Repos.Sales.GetByID(ctx, id)
	if err != nil && !domain.IsCode(err, domain.CodeNotFound) {
		return err
	}

	if sale != nil {
		fails.add(e.log, "restore sold lines", e.restoreSoldLines(ctx, sale))
	}

	recs, err := e.deps.Repos.Records.GetBySourceSaleID(ctx, id)
	fails.add(e.log, "list spawned records", err)
	for _, rec := range recs {
		fails.add(e.log, "delete record "+rec.ID.String(), e.DeleteRecord(ctx, rec.ID))
	}

	chars, err := e.deps.Repos.Characters.GetBySourceSaleID(ctx, id)
	fails.add(e.log, "list spawned characters", err)
	for _, c := range chars {
		fails.add(e.log, "delete character "+c.ID.String(), e.DeleteCharacter(ctx, c.ID))
	}

	fails.add(e.log, "reverse points", e.reversePointsAwards(ctx, ref))
	_, err = e.deps.Links.RemoveForEndpoint(ctx, ref)
	fails.add(e.log, "remove links", err)
	fails.add(e.log, "remove log entries", e.deps.Events.RemoveForEntity(ctx, domain.EntitySale, id))
	fails.add(e.log, "remove caused entries", e.deps.Events.RemoveWhereSource(ctx, ref))
	fails.add(e.log, "clear effects", e.deps.Effects.ClearAll(ctx, domain.EntitySale, id))
	if sale != nil {
		fails.add(e.log, "remove sale", e.deps.Repos.Sales.Remove(ctx, id))
	}
	return fails.err(op)
}
