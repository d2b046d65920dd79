package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/effects"
)

func recordRef(id uuid.UUID) domain.Ref {
	return domain.Ref{Type: domain.EntityRecord, ID: id}
}

func recordCollected(r *domain.FinancialRecord) bool {
	return r != nil && (r.Status == domain.RecordStatusCollected || r.Collected)
}

// OnRecordUpsert is the financial record reactor. Records are simpler than
// tasks and sales: they earn their points at creation and only ever
// transition to collected.
func (e *Engine) OnRecordUpsert(ctx context.Context, rec, prev *domain.FinancialRecord) error {
	const op = "Workflow.OnRecordUpsert"
	if rec == nil {
		return domain.NewError(domain.CodeValidation, op, "record required", nil)
	}
	var errs []error

	if prev == nil {
		k := effects.CreatedKey(domain.EntityRecord, rec.ID)
		if _, err := e.runGuarded(ctx, k, func(ctx context.Context) error {
			_, err := e.deps.Events.Append(ctx, domain.EntityRecord, rec.ID, domain.EventCreated,
				map[string]any{"kind": rec.Kind, "amount": rec.Amount, "currency": rec.Currency})
			return err
		}); err != nil {
			errs = append(errs, err)
		}
		if err := e.awardPoints(ctx, recordRef(rec.ID), rec.Rewards, rec.PlayerID,
			effects.NewKey(domain.EntityRecord, rec.ID, "pointsAwarded")); err != nil {
			errs = append(errs, err)
		}
	}

	if recordCollected(rec) && !recordCollected(prev) {
		if err := e.collectRecord(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}

	if prev != nil {
		e.deps.Propagator.ResyncRecordDependents(ctx, prev, rec)
		if prev.Description != rec.Description {
			if err := e.deps.Events.UpdateField(ctx, domain.EntityRecord, rec.ID, "description", rec.Description); err != nil {
				e.log.Warn("Log correction failed", "entity_type", domain.EntityRecord, "entity_id", rec.ID, "field", "description", "error", err)
			}
		}
	}
	return errors.Join(errs...)
}

// collectRecord archives a record into the month of its creation when no
// explicit collection time was given; records have no later milestone.
func (e *Engine) collectRecord(ctx context.Context, rec *domain.FinancialRecord) error {
	createdAt := rec.CreatedAt
	return e.collectEntity(ctx, recordRef(rec.ID), rec.CollectedAt, &createdAt, nil,
		func(ctx context.Context, collectedAt time.Time) (any, error) {
			rec.CollectedAt = &collectedAt
			rec.Collected = true
			if err := e.UpsertRecordRaw(ctx, rec); err != nil {
				return nil, err
			}
			return rec, nil
		})
}

// DeleteRecord removes a record with its cascade: points reversed from the
// stored grant, then links, log entries and effects cleared.
func (e *Engine) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	const op = "Workflow.DeleteRecord"
	var fails cascadeFailures
	ref := recordRef(id)

	rec, err := e.deps.Repos.Records.GetByID(ctx, id)
	if err != nil && !domain.IsCode(err, domain.CodeNotFound) {
		return err
	}

	fails.add(e.log, "reverse points", e.reversePointsAwards(ctx, ref))
	_, err = e.deps.Links.RemoveForEndpoint(ctx, ref)
	fails.add(e.log, "remove links", err)
	fails.add(e.log, "remove log entries", e.deps.Events.RemoveForEntity(ctx, domain.EntityRecord, id))
	fails.add(e.log, "remove caused entries", e.deps.Events.RemoveWhereSource(ctx, ref))
	fails.add(e.log, "clear effects", e.deps.Effects.ClearAll(ctx, domain.EntityRecord, id))
	if rec != nil {
		fails.add(e.log, "remove record", e.deps.Repos.Records.Remove(ctx, id))
	}
	return fails.err(op)
}
