package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/archive"
	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/effects"
)

// collectEntity archives a terminal entity into its month partition exactly
// once. The collection time is the explicit collectedAt when present, else
// the completion milestone snapped to its month-closing boundary, else now
// minus a small offset. finalize stamps the collection fields onto the
// entity, persists it without re-entering the workflow, and returns the
// document to snapshot.
func (e *Engine) collectEntity(ctx context.Context, ref domain.Ref, explicit, milestone, soldAt *time.Time, finalize func(ctx context.Context, collectedAt time.Time) (any, error)) error {
	collectedAt := archive.SnapCollectedAt(explicit, milestone, e.now())
	monthKey := archive.MonthKey(collectedAt)
	k := effects.NewKey(ref.Type, ref.ID, "collected", monthKey)
	_, err := e.runGuarded(ctx, k, func(ctx context.Context) error {
		doc, err := finalize(ctx, collectedAt)
		if err != nil {
			return err
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		snap := &domain.Snapshot{
			ID:           uuid.New(),
			SourceID:     ref.ID,
			SourceType:   ref.Type,
			SnapshotDate: e.now().UTC(),
			CollectedAt:  &collectedAt,
			SoldAt:       soldAt,
			Reason:       "collected",
			Data:         data,
		}
		added, err := e.deps.Archive.Add(ctx, archiveCollection(ref.Type), monthKey, snap)
		if err != nil {
			return err
		}
		if !added {
			// Another path already archived this (id, month); the guard
			// just missed it.
			return nil
		}
		if _, err := e.deps.Events.Append(ctx, ref.Type, ref.ID, domain.EventCollected,
			map[string]any{"month": monthKey, "collectedAt": collectedAt}); err != nil {
			return err
		}
		return e.deps.Archive.IndexAdd(ctx, "collected:"+string(ref.Type)+":"+monthKey, ref.ID.String())
	})
	return err
}

func archiveCollection(t domain.EntityType) string {
	return string(t) + "s"
}
