// Package propagate keeps dependent entities synchronized when a source
// entity's relevant fields change. All applications are deltas, never
// overwrites: point totals apply (new-old), inventory applies signed
// per-site quantity deltas. Guard keys are namespaced by the source's
// updatedAt so one version pair propagates at most once while a later
// genuine update propagates again.
package propagate

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/data/repos"
	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/effects"
	"github.com/ravenmill/tracker-backend/internal/eventlog"
	"github.com/ravenmill/tracker-backend/internal/links"
	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
)

type Propagator struct {
	log     *logger.Logger
	repos   *repos.Catalog
	effects *effects.Ledger
	events  *eventlog.Log
	links   *links.Registry
	now     func() time.Time
}

func New(catalog *repos.Catalog, ledger *effects.Ledger, events *eventlog.Log, linkReg *links.Registry, baseLog *logger.Logger) *Propagator {
	return &Propagator{
		log:     baseLog.With("component", "Propagator"),
		repos:   catalog,
		effects: ledger,
		events:  events,
		links:   linkReg,
		now:     time.Now,
	}
}

// WithClock overrides the time source. Tests use it to pin time.
func (p *Propagator) WithClock(now func() time.Time) *Propagator {
	p.now = now
	return p
}

// guardKey builds the (source, dependent, source.updatedAt) propagation
// guard. Repeats of the same source version are no-ops.
func guardKey(sourceType domain.EntityType, sourceID uuid.UUID, family string, dependentID uuid.UUID, updatedAt time.Time) effects.Key {
	return effects.NewKey(sourceType, sourceID, "propagate:"+family,
		dependentID.String(), updatedAt.UTC().Format(time.RFC3339Nano))
}

// runGuarded executes fn once per guard key. A step failure is logged and
// reported, but the caller is expected to continue with sibling dependents.
func (p *Propagator) runGuarded(ctx context.Context, k effects.Key, fn func(context.Context) error) error {
	applied, err := p.effects.Has(ctx, k)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	if err := fn(ctx); err != nil {
		return err
	}
	return p.effects.Mark(ctx, k)
}

// ResyncTaskDependents reacts to a task change: financial fields resync its
// spawned records, output fields resync its spawned items and their site
// stock, reward fields move player totals by the delta.
func (p *Propagator) ResyncTaskDependents(ctx context.Context, prev, next *domain.Task) {
	if prev == nil || next == nil {
		return
	}
	if TaskFinancialChanged(prev, next) {
		p.resyncTaskRecords(ctx, next)
	}
	if TaskOutputChanged(prev, next) {
		p.resyncTaskItems(ctx, prev, next)
	}
	if TaskRewardsChanged(prev, next) && TaskFinalized(prev) && TaskFinalized(next) {
		p.applyPlayerDelta(ctx,
			domain.Ref{Type: domain.EntityTask, ID: next.ID},
			next.PlayerID,
			next.Rewards.Diff(prev.Rewards),
			next.UpdatedAt)
	}
}

// ResyncSaleDependents reacts to a sale change: revenue resyncs spawned
// records, line edits apply signed inventory deltas, reward edits move
// player totals by the delta.
func (p *Propagator) ResyncSaleDependents(ctx context.Context, prev, next *domain.Sale) {
	if prev == nil || next == nil {
		return
	}
	if SaleRevenueChanged(prev, next) {
		p.resyncSaleRecords(ctx, next)
	}
	if SaleLinesChanged(prev, next) && SaleFinalized(prev) && SaleFinalized(next) {
		p.resyncSaleLines(ctx, prev, next)
	}
	if SaleRewardsChanged(prev, next) && SaleFinalized(prev) && SaleFinalized(next) {
		p.applyPlayerDelta(ctx,
			domain.Ref{Type: domain.EntitySale, ID: next.ID},
			next.PlayerID,
			next.Rewards.Diff(prev.Rewards),
			next.UpdatedAt)
	}
}

// ResyncRecordDependents reacts to a financial record change. Records grant
// points at creation, so a reward edit on any surviving version propagates.
func (p *Propagator) ResyncRecordDependents(ctx context.Context, prev, next *domain.FinancialRecord) {
	if prev == nil || next == nil {
		return
	}
	if RecordRewardsChanged(prev, next) {
		p.applyPlayerDelta(ctx,
			domain.Ref{Type: domain.EntityRecord, ID: next.ID},
			next.PlayerID,
			next.Rewards.Diff(prev.Rewards),
			next.UpdatedAt)
	}
}

func (p *Propagator) resyncTaskRecords(ctx context.Context, next *domain.Task) {
	recs, err := p.repos.Records.GetBySourceTaskID(ctx, next.ID)
	if err != nil {
		p.log.Warn("Task record resync lookup failed", "task_id", next.ID, "error", err)
		return
	}
	for _, rec := range recs {
		rec := rec
		k := guardKey(domain.EntityTask, next.ID, "financial", rec.ID, next.UpdatedAt)
		err := p.runGuarded(ctx, k, func(ctx context.Context) error {
			switch rec.Kind {
			case "expense":
				rec.Amount = next.Cost
			default:
				rec.Amount = next.Revenue
			}
			rec.Currency = next.Currency
			rec.UpdatedAt = p.now().UTC()
			return p.repos.Records.Put(ctx, rec)
		})
		if err != nil {
			p.log.Warn("Task record resync failed", "task_id", next.ID, "record_id", rec.ID, "error", err)
		}
	}
}

func (p *Propagator) resyncTaskItems(ctx context.Context, prev, next *domain.Task) {
	items, err := p.repos.Items.GetBySourceTaskID(ctx, next.ID)
	if err != nil {
		p.log.Warn("Task item resync lookup failed", "task_id", next.ID, "error", err)
		return
	}
	var prevQty, nextQty float64
	if prev.Output != nil {
		prevQty = prev.Output.Quantity
	}
	if next.Output != nil {
		nextQty = next.Output.Quantity
	}
	qtyDelta := nextQty - prevQty
	for _, it := range items {
		it := it
		k := guardKey(domain.EntityTask, next.ID, "output", it.ID, next.UpdatedAt)
		err := p.runGuarded(ctx, k, func(ctx context.Context) error {
			it.Quantity += qtyDelta
			if next.Output != nil {
				if next.Output.ItemName != "" {
					it.Name = next.Output.ItemName
				}
				if next.Output.UnitValue != 0 {
					it.UnitValue = next.Output.UnitValue
				}
			}
			it.UpdatedAt = p.now().UTC()
			if err := p.repos.Items.Put(ctx, it); err != nil {
				return err
			}
			if qtyDelta != 0 && it.SiteID != nil {
				p.applySiteStockDelta(ctx, *it.SiteID, it.ID, qtyDelta)
			}
			return nil
		})
		if err != nil {
			p.log.Warn("Task item resync failed", "task_id", next.ID, "item_id", it.ID, "error", err)
		}
	}
}

func (p *Propagator) resyncSaleRecords(ctx context.Context, next *domain.Sale) {
	recs, err := p.repos.Records.GetBySourceSaleID(ctx, next.ID)
	if err != nil {
		p.log.Warn("Sale record resync lookup failed", "sale_id", next.ID, "error", err)
		return
	}
	for _, rec := range recs {
		rec := rec
		k := guardKey(domain.EntitySale, next.ID, "revenue", rec.ID, next.UpdatedAt)
		err := p.runGuarded(ctx, k, func(ctx context.Context) error {
			rec.Amount = next.Revenue
			rec.Currency = next.Currency
			rec.UpdatedAt = p.now().UTC()
			return p.repos.Records.Put(ctx, rec)
		})
		if err != nil {
			p.log.Warn("Sale record resync failed", "sale_id", next.ID, "record_id", rec.ID, "error", err)
		}
	}
}

// resyncSaleLines applies signed per-line quantity deltas to the sold items
// and their sites. Selling two more units moves stock by -2, not to a
// replaced array value.
func (p *Propagator) resyncSaleLines(ctx context.Context, prev, next *domain.Sale) {
	old := linesByID(prev.Lines)
	for _, line := range next.Lines {
		if line.ItemID == nil {
			continue
		}
		o := old[line.LineID]
		qtyDelta := line.Quantity - o.Quantity
		if qtyDelta == 0 {
			continue
		}
		line := line
		k := guardKey(domain.EntitySale, next.ID, "lines:"+line.LineID, *line.ItemID, next.UpdatedAt)
		err := p.runGuarded(ctx, k, func(ctx context.Context) error {
			it, err := p.repos.Items.GetByID(ctx, *line.ItemID)
			if err != nil {
				if domain.IsCode(err, domain.CodeNotFound) {
					p.log.Warn("Sold item missing during line resync", "sale_id", next.ID, "item_id", line.ItemID)
					return nil
				}
				return err
			}
			it.Quantity -= qtyDelta
			it.UpdatedAt = p.now().UTC()
			if err := p.repos.Items.Put(ctx, it); err != nil {
				return err
			}
			if line.SiteID != nil {
				p.applySiteStockDelta(ctx, *line.SiteID, it.ID, -qtyDelta)
			}
			return nil
		})
		if err != nil {
			p.log.Warn("Sale line resync failed", "sale_id", next.ID, "line_id", line.LineID, "error", err)
		}
	}
}

// applyPlayerDelta credits (or debits) the delta onto the player's running
// totals and appends an audit entry to the player's log, attributed to the
// source entity. The delta is also folded into the source's grant link
// breakdown so a later reversal removes exactly what the player was given,
// original grant and propagated corrections together.
func (p *Propagator) applyPlayerDelta(ctx context.Context, source domain.Ref, playerID *uuid.UUID, delta domain.Points, updatedAt time.Time) {
	if delta.IsZero() {
		return
	}
	player, err := p.resolvePlayer(ctx, playerID)
	if err != nil || player == nil {
		p.log.Warn("Player missing during delta propagation", "source", source, "error", err)
		return
	}
	k := guardKey(source.Type, source.ID, "rewards", player.ID, updatedAt)
	err = p.runGuarded(ctx, k, func(ctx context.Context) error {
		player.Points = player.Points.Add(delta)
		player.UpdatedAt = p.now().UTC()
		if err := p.repos.Players.Put(ctx, player); err != nil {
			return err
		}
		if err := p.foldIntoGrant(ctx, source, player.ID, delta); err != nil {
			return err
		}
		_, err := p.events.AppendCaused(ctx, domain.EntityPlayer, player.ID, domain.EventPointsAwarded,
			map[string]any{"delta": delta, "reason": "propagated_update"}, &source)
		return err
	})
	if err != nil {
		p.log.Warn("Player delta propagation failed", "source", source, "player_id", player.ID, "error", err)
	}
}

// foldIntoGrant adds a propagated delta to the breakdown stored on the
// source's grant link for the player.
func (p *Propagator) foldIntoGrant(ctx context.Context, source domain.Ref, playerID uuid.UUID, delta domain.Points) error {
	grants, err := p.links.ForTyped(ctx, source, domain.LinkPointsAwarded)
	if err != nil {
		return err
	}
	for _, grant := range grants {
		if grant.Source != source || grant.Target.ID != playerID {
			continue
		}
		if grant.Metadata == nil {
			grant.Metadata = map[string]any{}
		}
		grant.Metadata["breakdown"] = metaPoints(grant.Metadata["breakdown"]).Add(delta)
		return p.links.Update(ctx, grant)
	}
	p.log.Warn("No grant link to fold delta into", "source", source, "player_id", playerID)
	return nil
}

// metaPoints recovers a reward breakdown from link metadata; a JSON
// roundtrip renders it as map[string]any of float64.
func metaPoints(v any) domain.Points {
	out := domain.Points{}
	switch m := v.(type) {
	case domain.Points:
		return m.Clone()
	case map[string]float64:
		for k, f := range m {
			out[k] = f
		}
	case map[string]any:
		for k, raw := range m {
			if f, ok := raw.(float64); ok {
				out[k] = f
			}
		}
	}
	return out
}

func (p *Propagator) resolvePlayer(ctx context.Context, playerID *uuid.UUID) (*domain.Player, error) {
	if playerID != nil {
		return p.repos.Players.GetByID(ctx, *playerID)
	}
	all, err := p.repos.Players.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all[0], nil
}

func (p *Propagator) applySiteStockDelta(ctx context.Context, siteID, itemID uuid.UUID, delta float64) {
	site, err := p.repos.Sites.GetByID(ctx, siteID)
	if err != nil {
		p.log.Warn("Site missing during stock delta", "site_id", siteID, "error", err)
		return
	}
	if site.Stock == nil {
		site.Stock = map[string]float64{}
	}
	site.Stock[itemID.String()] += delta
	site.UpdatedAt = p.now().UTC()
	if err := p.repos.Sites.Put(ctx, site); err != nil {
		p.log.Warn("Site stock delta write failed", "site_id", siteID, "error", err)
	}
}
