package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/effects"
)

func taskRef(id uuid.UUID) domain.Ref {
	return domain.Ref{Type: domain.EntityTask, ID: id}
}

func taskCollected(t *domain.Task) bool {
	return t != nil && (t.Status == domain.TaskStatusCollected || t.Collected)
}

// taskRegressed reports a completion rollback: the previous version was
// Done and the new one moved back to a non-terminal, non-collected status.
func taskRegressed(prev, next *domain.Task) bool {
	if prev == nil || prev.Status != domain.TaskStatusDone {
		return false
	}
	return next.Status == domain.TaskStatusCreated || next.Status == domain.TaskStatusInProgress
}

// OnTaskUpsert is the task reactor. It compares the written version with
// the previously stored one, applies every cross-entity side effect the
// change implies exactly once, then lets dependent resync and descriptive
// log corrections run last.
func (e *Engine) OnTaskUpsert(ctx context.Context, task, prev *domain.Task) error {
	const op = "Workflow.OnTaskUpsert"
	if task == nil {
		return domain.NewError(domain.CodeValidation, op, "task required", nil)
	}
	var errs []error

	if prev == nil {
		if err := e.handleTaskCreation(ctx, task); err != nil {
			errs = append(errs, err)
		}
	}

	prevStatus := ""
	if prev != nil {
		prevStatus = prev.Status
	}
	switch {
	case task.Status == domain.TaskStatusDone &&
		prevStatus != domain.TaskStatusDone && prevStatus != domain.TaskStatusCollected:
		if err := e.handleTaskDone(ctx, task); err != nil {
			errs = append(errs, err)
		}
	case task.Status == domain.TaskStatusCancelled && prevStatus != domain.TaskStatusCancelled:
		k := effects.NewKey(domain.EntityTask, task.ID, "event:cancelled")
		if _, err := e.runGuarded(ctx, k, func(ctx context.Context) error {
			_, err := e.deps.Events.Append(ctx, domain.EntityTask, task.ID, domain.EventCancelled, nil)
			return err
		}); err != nil {
			errs = append(errs, err)
		}
	case taskRegressed(prev, task):
		if err := e.reverseTaskCompletion(ctx, task); err != nil {
			errs = append(errs, err)
		}
	}

	if taskCollected(task) && !taskCollected(prev) {
		if err := e.collectTask(ctx, task); err != nil {
			errs = append(errs, err)
		}
	}

	if !task.CascadeSuppressed && (prev == nil || prev.Status != task.Status) {
		if err := e.cascadeTaskStatus(ctx, task); err != nil {
			errs = append(errs, err)
		}
	}

	if prev != nil {
		e.deps.Propagator.ResyncTaskDependents(ctx, prev, task)
		e.applyTaskCorrections(ctx, prev, task)
	}
	return errors.Join(errs...)
}

// handleTaskCreation appends the CREATED entry and, when the task names a
// character that does not exist yet, synthesizes it and rewrites the task
// to point at it.
func (e *Engine) handleTaskCreation(ctx context.Context, task *domain.Task) error {
	var errs []error
	k := effects.CreatedKey(domain.EntityTask, task.ID)
	if _, err := e.runGuarded(ctx, k, func(ctx context.Context) error {
		_, err := e.deps.Events.Append(ctx, domain.EntityTask, task.ID, domain.EventCreated,
			map[string]any{"title": task.Title, "status": task.Status})
		return err
	}); err != nil {
		errs = append(errs, err)
	}
	if task.CharacterName != "" && task.CharacterID == nil {
		tid := task.ID
		err := e.synthesizeCharacter(ctx, taskRef(task.ID), task.CharacterName,
			func(c *domain.Character) { c.SourceTaskID = &tid },
			func(ctx context.Context, characterID uuid.UUID) error {
				task.CharacterID = &characterID
				return e.UpsertTaskRaw(ctx, task)
			})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// handleTaskDone reacts to the Done transition: stamp doneAt if absent,
// append the DONE entry, then fan out the independent completion effects.
func (e *Engine) handleTaskDone(ctx context.Context, task *domain.Task) error {
	if task.DoneAt == nil || task.DoneAt.IsZero() {
		now := e.now().UTC()
		task.DoneAt = &now
		if err := e.UpsertTaskRaw(ctx, task); err != nil {
			return err
		}
	}
	k := effects.NewKey(domain.EntityTask, task.ID, "event:done")
	if _, err := e.runGuarded(ctx, k, func(ctx context.Context) error {
		_, err := e.deps.Events.Append(ctx, domain.EntityTask, task.ID, domain.EventDone,
			map[string]any{"doneAt": task.DoneAt})
		return err
	}); err != nil {
		return err
	}
	e.fanOut(ctx, taskRef(task.ID), []effectStep{
		{name: "pointsAwarded", run: func(ctx context.Context) error {
			return e.awardPoints(ctx, taskRef(task.ID), task.Rewards, task.PlayerID,
				effects.NewKey(domain.EntityTask, task.ID, "pointsAwarded"))
		}},
		{name: "itemSpawned", run: func(ctx context.Context) error {
			return e.spawnTaskOutputItem(ctx, task)
		}},
		{name: "recordSpawned", run: func(ctx context.Context) error {
			return e.spawnTaskRecords(ctx, task)
		}},
	})
	return nil
}

// spawnTaskOutputItem materializes the task's declared output: increment an
// existing same-name item at the target site, or create a new one. The link
// metadata records which, so uncompletion can undo exactly what happened.
func (e *Engine) spawnTaskOutputItem(ctx context.Context, task *domain.Task) error {
	out := task.Output
	if out == nil || out.ItemName == "" || out.Quantity == 0 {
		return nil
	}
	k := effects.NewKey(domain.EntityTask, task.ID, "itemSpawned")
	_, err := e.runGuarded(ctx, k, func(ctx context.Context) error {
		existing, err := e.deps.Repos.Items.GetByNameAndSite(ctx, out.ItemName, out.SiteID)
		if err != nil && !domain.IsCode(err, domain.CodeNotFound) {
			return err
		}
		var itemID uuid.UUID
		mode := "created"
		if existing != nil {
			mode = "incremented"
			existing.Quantity += out.Quantity
			existing.UpdatedAt = e.now().UTC()
			if err := e.deps.Repos.Items.Put(ctx, existing); err != nil {
				return err
			}
			itemID = existing.ID
		} else {
			tid := task.ID
			item := &domain.Item{
				ID:           uuid.New(),
				Name:         out.ItemName,
				Status:       domain.ItemStatusActive,
				Quantity:     out.Quantity,
				UnitValue:    out.UnitValue,
				SiteID:       out.SiteID,
				SourceTaskID: &tid,
			}
			if err := e.UpsertItem(ctx, item); err != nil {
				return err
			}
			itemID = item.ID
		}
		if _, err := e.deps.Links.Create(ctx, domain.LinkItemSpawned, taskRef(task.ID),
			domain.Ref{Type: domain.EntityItem, ID: itemID},
			map[string]any{"mode": mode, "quantity": out.Quantity}); err != nil {
			return err
		}
		if _, err := e.deps.Events.Append(ctx, domain.EntityTask, task.ID, domain.EventItemSpawned,
			map[string]any{"itemId": itemID, "itemName": out.ItemName, "quantity": out.Quantity, "mode": mode}); err != nil {
			return err
		}
		// Item creation already booked the site stock; only the increment
		// path moves it here.
		if mode == "incremented" && out.SiteID != nil {
			e.applySiteStockDelta(ctx, *out.SiteID, itemID, out.Quantity)
		}
		task.Output.ItemID = &itemID
		return e.UpsertTaskRaw(ctx, task)
	})
	return err
}

// spawnTaskRecords books the task's financial outcome: an income record for
// revenue and an expense record for cost, each guarded separately.
func (e *Engine) spawnTaskRecords(ctx context.Context, task *domain.Task) error {
	var errs []error
	if task.Revenue != 0 {
		errs = append(errs, e.spawnTaskRecord(ctx, task, "income", task.Revenue))
	}
	if task.Cost != 0 {
		errs = append(errs, e.spawnTaskRecord(ctx, task, "expense", task.Cost))
	}
	return errors.Join(errs...)
}

func (e *Engine) spawnTaskRecord(ctx context.Context, task *domain.Task, kind string, amount float64) error {
	k := effects.NewKey(domain.EntityTask, task.ID, "recordSpawned", kind)
	_, err := e.runGuarded(ctx, k, func(ctx context.Context) error {
		tid := task.ID
		rec := &domain.FinancialRecord{
			ID:           uuid.New(),
			Kind:         kind,
			Status:       domain.RecordStatusCreated,
			Description:  task.Title,
			Amount:       amount,
			Currency:     task.Currency,
			SourceTaskID: &tid,
			PlayerID:     task.PlayerID,
		}
		if err := e.UpsertRecord(ctx, rec); err != nil {
			return err
		}
		_, err := e.deps.Events.Append(ctx, domain.EntityTask, task.ID, domain.EventRecordSpawned,
			map[string]any{"recordId": rec.ID, "kind": kind, "amount": amount, "usdApprox": e.usdApprox(ctx, amount, task.Currency)})
		return err
	})
	return err
}

// usdApprox normalizes an amount to USD at the current rate. Informational
// only; nothing settles on it.
func (e *Engine) usdApprox(ctx context.Context, amount float64, currency string) float64 {
	if currency == "" || currency == "USD" {
		return amount
	}
	rate := e.deps.Rates.GetRates(ctx)[currency]
	if rate == 0 {
		return amount
	}
	return amount * rate
}

func (e *Engine) collectTask(ctx context.Context, task *domain.Task) error {
	return e.collectEntity(ctx, taskRef(task.ID), task.CollectedAt, task.DoneAt, nil,
		func(ctx context.Context, collectedAt time.Time) (any, error) {
			task.CollectedAt = &collectedAt
			task.Collected = true
			if err := e.UpsertTaskRaw(ctx, task); err != nil {
				return nil, err
			}
			return task, nil
		})
}

// cascadeTaskStatus pushes the parent's status onto its children, each
// application guarded per (child, parent, status). Children re-enter the
// workflow so grandchildren and the children's own completion effects
// follow.
func (e *Engine) cascadeTaskStatus(ctx context.Context, task *domain.Task) error {
	children, err := e.deps.Repos.Tasks.GetByParentID(ctx, task.ID)
	if err != nil {
		return err
	}
	var errs []error
	for _, child := range children {
		child := child
		if child.Status == task.Status {
			continue
		}
		k := effects.NewKey(domain.EntityTask, child.ID, "cascade:status", task.ID.String(), task.Status)
		_, err := e.runGuarded(ctx, k, func(ctx context.Context) error {
			child.Status = task.Status
			if _, err := e.deps.Events.AppendCaused(ctx, domain.EntityTask, child.ID, domain.EventStatusCascaded,
				map[string]any{"status": task.Status}, refPtr(taskRef(task.ID))); err != nil {
				return err
			}
			return e.UpsertTask(ctx, child)
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UncompleteTask rolls a Done task back to in-progress, reversing the
// completion side effects: spawned or incremented items are removed or
// decremented, awarded points are debited from the stored grant breakdown,
// and the completion guards are re-armed so a later re-completion fires
// again. Spawned financial records survive.
func (e *Engine) UncompleteTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	const op = "Workflow.UncompleteTask"
	task, err := e.deps.Repos.Tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status != domain.TaskStatusDone {
		return nil, domain.NewError(domain.CodeInvariantViolation, op, "task is not completed", nil)
	}
	task.Status = domain.TaskStatusInProgress
	task.DoneAt = nil
	task.UpdatedAt = e.now().UTC()
	if err := e.UpsertTaskRaw(ctx, task); err != nil {
		return nil, err
	}
	if err := e.reverseTaskCompletion(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (e *Engine) reverseTaskCompletion(ctx context.Context, task *domain.Task) error {
	var errs []error
	if err := e.reverseSpawnedItems(ctx, task); err != nil {
		errs = append(errs, err)
	}
	if err := e.reversePointsAwards(ctx, taskRef(task.ID)); err != nil {
		errs = append(errs, err)
	}
	for _, effect := range []string{"event:done", "pointsAwarded", "itemSpawned"} {
		if err := e.deps.Effects.Clear(ctx, effects.NewKey(domain.EntityTask, task.ID, effect)); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := e.deps.Events.Append(ctx, domain.EntityTask, task.ID, domain.EventUncompleted, nil); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// reverseSpawnedItems undoes the output-item effect using the mode recorded
// on the spawn link: a created item is removed outright, an incremented one
// is decremented back.
func (e *Engine) reverseSpawnedItems(ctx context.Context, task *domain.Task) error {
	spawned, err := e.deps.Links.ForTyped(ctx, taskRef(task.ID), domain.LinkItemSpawned)
	if err != nil {
		return err
	}
	var errs []error
	for _, link := range spawned {
		if link.Source != taskRef(task.ID) {
			continue
		}
		qty, _ := link.Metadata["quantity"].(float64)
		mode, _ := link.Metadata["mode"].(string)
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
		if mode == "incremented" {
			item.Quantity -= qty
			item.UpdatedAt = e.now().UTC()
			if err := e.deps.Repos.Items.Put(ctx, item); err != nil {
				errs = append(errs, err)
			}
			if item.SiteID != nil {
				e.applySiteStockDelta(ctx, *item.SiteID, item.ID, -qty)
			}
			continue
		}
		// Created items go away entirely; the cascade reverses whatever
		// quantity they currently hold.
		if err := e.removeItemCascade(ctx, item.ID, true); err != nil {
			errs = append(errs, err)
		}
	}
	if task.Output != nil && task.Output.ItemID != nil {
		task.Output.ItemID = nil
		if err := e.UpsertTaskRaw(ctx, task); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// applyTaskCorrections pushes descriptive field changes into the log as
// in-place corrections. These never create new entries.
func (e *Engine) applyTaskCorrections(ctx context.Context, prev, next *domain.Task) {
	corrections := map[string]any{}
	if prev.Title != next.Title {
		corrections["title"] = next.Title
	}
	if prev.Notes != next.Notes {
		corrections["notes"] = next.Notes
	}
	if prev.CharacterName != next.CharacterName {
		corrections["characterName"] = next.CharacterName
	}
	for field, value := range corrections {
		if err := e.deps.Events.UpdateField(ctx, domain.EntityTask, next.ID, field, value); err != nil {
			e.log.Warn("Log correction failed", "entity_type", domain.EntityTask, "entity_id", next.ID, "field", field, "error", err)
		}
	}
}

// DeleteTask removes a task with its full cascade: child tasks (unless
// suppressed), spawned items, characters and records, point reversals,
// links, log entries (own and caused) and the effect set. Step failures are
// collected, never fatal mid-cascade.
func (e *Engine) DeleteTask(ctx context.Context, id uuid.UUID) error {
	const op = "Workflow.DeleteTask"
	var fails cascadeFailures
	ref := taskRef(id)

	task, err := e.deps.Repos.Tasks.GetByID(ctx, id)
	if err != nil && !domain.IsCode(err, domain.CodeNotFound) {
		return err
	}

	if task != nil && !task.CascadeSuppressed {
		children, err := e.deps.Repos.Tasks.GetByParentID(ctx, id)
		fails.add(e.log, "list children", err)
		for _, child := range children {
			fails.add(e.log, "delete child "+child.ID.String(), e.DeleteTask(ctx, child.ID))
		}
	}

	items, err := e.deps.Repos.Items.GetBySourceTaskID(ctx, id)
	fails.add(e.log, "list spawned items", err)
	for _, it := range items {
		fails.add(e.log, "delete item "+it.ID.String(), e.removeItemCascade(ctx, it.ID, true))
	}

	chars, err := e.deps.Repos.Characters.GetBySourceTaskID(ctx, id)
	fails.add(e.log, "list spawned characters", err)
	for _, c := range chars {
		fails.add(e.log, "delete character "+c.ID.String(), e.DeleteCharacter(ctx, c.ID))
	}

	recs, err := e.deps.Repos.Records.GetBySourceTaskID(ctx, id)
	fails.add(e.log, "list spawned records", err)
	for _, rec := range recs {
		fails.add(e.log, "delete record "+rec.ID.String(), e.DeleteRecord(ctx, rec.ID))
	}

	fails.add(e.log, "reverse points", e.reversePointsAwards(ctx, ref))
	_, err = e.deps.Links.RemoveForEndpoint(ctx, ref)
	fails.add(e.log, "remove links", err)
	fails.add(e.log, "remove log entries", e.deps.Events.RemoveForEntity(ctx, domain.EntityTask, id))
	fails.add(e.log, "remove caused entries", e.deps.Events.RemoveWhereSource(ctx, ref))
	fails.add(e.log, "clear effects", e.deps.Effects.ClearAll(ctx, domain.EntityTask, id))
	if task != nil {
		fails.add(e.log, "remove task", e.deps.Repos.Tasks.Remove(ctx, id))
	}
	return fails.err(op)
}

func refPtr(r domain.Ref) *domain.Ref {
	return &r
}
