package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/effects"
)

func itemRef(id uuid.UUID) domain.Ref {
	return domain.Ref{Type: domain.EntityItem, ID: id}
}

func itemCollected(i *domain.Item) bool {
	return i != nil && (i.Status == domain.ItemStatusArchived || i.Collected)
}

// OnItemUpsert is the item reactor. Direct quantity edits move site stock
// by the delta; the sold transition stamps soldAt; archiving snapshots the
// item under the month of its sale.
func (e *Engine) OnItemUpsert(ctx context.Context, item, prev *domain.Item) error {
	const op = "Workflow.OnItemUpsert"
	if item == nil {
		return domain.NewError(domain.CodeValidation, op, "item required", nil)
	}
	var errs []error

	if prev == nil {
		k := effects.CreatedKey(domain.EntityItem, item.ID)
		if _, err := e.runGuarded(ctx, k, func(ctx context.Context) error {
			if _, err := e.deps.Events.Append(ctx, domain.EntityItem, item.ID, domain.EventCreated,
				map[string]any{"name": item.Name, "quantity": item.Quantity}); err != nil {
				return err
			}
			if item.SiteID != nil && item.Quantity != 0 {
				e.applySiteStockDelta(ctx, *item.SiteID, item.ID, item.Quantity)
			}
			return nil
		}); err != nil {
			errs = append(errs, err)
		}
	}

	if item.Status == domain.ItemStatusSold && prev != nil && prev.Status != domain.ItemStatusSold {
		if item.SoldAt == nil || item.SoldAt.IsZero() {
			now := e.now().UTC()
			item.SoldAt = &now
			if err := e.UpsertItemRaw(ctx, item); err != nil {
				errs = append(errs, err)
			}
		}
		k := effects.NewKey(domain.EntityItem, item.ID, "event:done")
		if _, err := e.runGuarded(ctx, k, func(ctx context.Context) error {
			_, err := e.deps.Events.Append(ctx, domain.EntityItem, item.ID, domain.EventDone,
				map[string]any{"soldAt": item.SoldAt})
			return err
		}); err != nil {
			errs = append(errs, err)
		}
	}

	// A direct quantity edit moves the site's on-hand stock by the delta.
	// Workflow-driven quantity moves go around this via raw writes.
	if prev != nil && item.SiteID != nil && item.Quantity != prev.Quantity {
		delta := item.Quantity - prev.Quantity
		k := effects.NewKey(domain.EntityItem, item.ID, "stockSync",
			item.SiteID.String(), item.UpdatedAt.UTC().Format(time.RFC3339Nano))
		if _, err := e.runGuarded(ctx, k, func(ctx context.Context) error {
			e.applySiteStockDelta(ctx, *item.SiteID, item.ID, delta)
			return nil
		}); err != nil {
			errs = append(errs, err)
		}
	}

	if itemCollected(item) && !itemCollected(prev) {
		if err := e.collectItem(ctx, item); err != nil {
			errs = append(errs, err)
		}
	}

	if prev != nil && prev.Name != item.Name {
		if err := e.deps.Events.UpdateField(ctx, domain.EntityItem, item.ID, "name", item.Name); err != nil {
			e.log.Warn("Log correction failed", "entity_type", domain.EntityItem, "entity_id", item.ID, "field", "name", "error", err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) collectItem(ctx context.Context, item *domain.Item) error {
	return e.collectEntity(ctx, itemRef(item.ID), item.CollectedAt, item.SoldAt, item.SoldAt,
		func(ctx context.Context, collectedAt time.Time) (any, error) {
			item.CollectedAt = &collectedAt
			item.Collected = true
			if err := e.UpsertItemRaw(ctx, item); err != nil {
				return nil, err
			}
			return item, nil
		})
}

// DeleteItem removes an item with its cascade.
func (e *Engine) DeleteItem(ctx context.Context, id uuid.UUID) error {
	return e.removeItemCascade(ctx, id, true)
}

// removeItemCascade tears an item down: optionally reverse its remaining
// on-hand quantity out of the site stock, then links, log entries, effects
// and the document. Callers that already reversed stock pass false.
func (e *Engine) removeItemCascade(ctx context.Context, id uuid.UUID, reverseStock bool) error {
	const op = "Workflow.DeleteItem"
	var fails cascadeFailures
	ref := itemRef(id)

	item, err := e.deps.Repos.Items.GetByID(ctx, id)
	if err != nil && !domain.IsCode(err, domain.CodeNotFound) {
		return err
	}

	if reverseStock && item != nil && item.SiteID != nil && item.Quantity != 0 {
		e.applySiteStockDelta(ctx, *item.SiteID, item.ID, -item.Quantity)
	}

	_, err = e.deps.Links.RemoveForEndpoint(ctx, ref)
	fails.add(e.log, "remove links", err)
	fails.add(e.log, "remove log entries", e.deps.Events.RemoveForEntity(ctx, domain.EntityItem, id))
	fails.add(e.log, "remove caused entries", e.deps.Events.RemoveWhereSource(ctx, ref))
	fails.add(e.log, "clear effects", e.deps.Effects.ClearAll(ctx, domain.EntityItem, id))
	if item != nil {
		fails.add(e.log, "remove item", e.deps.Repos.Items.Remove(ctx, id))
	}
	return fails.err(op)
}
