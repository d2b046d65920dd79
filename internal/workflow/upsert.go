package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/domain"
)

// Every entity kind gets two write modes. UpsertX persists the entity and
// runs its reactor against the previously stored version; UpsertXRaw
// persists exactly what it is given and triggers nothing. Raw writes exist
// for the reactors themselves: rewriting a source entity after spawning a
// dependent must not re-enter the workflow.

func (e *Engine) loadPrevTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	prev, err := e.deps.Repos.Tasks.GetByID(ctx, id)
	if err != nil {
		if domain.IsCode(err, domain.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return prev, nil
}

func (e *Engine) stamp(createdAt *time.Time, updatedAt *time.Time, isNew bool) {
	now := e.now().UTC()
	if isNew && createdAt.IsZero() {
		*createdAt = now
	}
	*updatedAt = now
}

func (e *Engine) UpsertTask(ctx context.Context, t *domain.Task) error {
	const op = "Workflow.UpsertTask"
	if t == nil || t.ID == uuid.Nil {
		return domain.NewError(domain.CodeValidation, op, "task with id required", nil)
	}
	prev, err := e.loadPrevTask(ctx, t.ID)
	if err != nil {
		return err
	}
	e.stamp(&t.CreatedAt, &t.UpdatedAt, prev == nil)
	if err := e.deps.Repos.Tasks.Put(ctx, t); err != nil {
		return err
	}
	return e.OnTaskUpsert(ctx, t, prev)
}

// UpsertTaskRaw writes the task without invoking the workflow.
func (e *Engine) UpsertTaskRaw(ctx context.Context, t *domain.Task) error {
	return e.deps.Repos.Tasks.Put(ctx, t)
}

func (e *Engine) UpsertSale(ctx context.Context, s *domain.Sale) error {
	const op = "Workflow.UpsertSale"
	if s == nil || s.ID == uuid.Nil {
		return domain.NewError(domain.CodeValidation, op, "sale with id required", nil)
	}
	prev, err := e.deps.Repos.Sales.GetByID(ctx, s.ID)
	if err != nil {
		if !domain.IsCode(err, domain.CodeNotFound) {
			return err
		}
		prev = nil
	}
	e.stamp(&s.CreatedAt, &s.UpdatedAt, prev == nil)
	if err := e.deps.Repos.Sales.Put(ctx, s); err != nil {
		return err
	}
	return e.OnSaleUpsert(ctx, s, prev)
}

func (e *Engine) UpsertSaleRaw(ctx context.Context, s *domain.Sale) error {
	return e.deps.Repos.Sales.Put(ctx, s)
}

func (e *Engine) UpsertRecord(ctx context.Context, rec *domain.FinancialRecord) error {
	const op = "Workflow.UpsertRecord"
	if rec == nil || rec.ID == uuid.Nil {
		return domain.NewError(domain.CodeValidation, op, "record with id required", nil)
	}
	prev, err := e.deps.Repos.Records.GetByID(ctx, rec.ID)
	if err != nil {
		if !domain.IsCode(err, domain.CodeNotFound) {
			return err
		}
		prev = nil
	}
	e.stamp(&rec.CreatedAt, &rec.UpdatedAt, prev == nil)
	if err := e.deps.Repos.Records.Put(ctx, rec); err != nil {
		return err
	}
	return e.OnRecordUpsert(ctx, rec, prev)
}

func (e *Engine) UpsertRecordRaw(ctx context.Context, rec *domain.FinancialRecord) error {
	return e.deps.Repos.Records.Put(ctx, rec)
}

func (e *Engine) UpsertItem(ctx context.Context, it *domain.Item) error {
	const op = "Workflow.UpsertItem"
	if it == nil || it.ID == uuid.Nil {
		return domain.NewError(domain.CodeValidation, op, "item with id required", nil)
	}
	prev, err := e.deps.Repos.Items.GetByID(ctx, it.ID)
	if err != nil {
		if !domain.IsCode(err, domain.CodeNotFound) {
			return err
		}
		prev = nil
	}
	e.stamp(&it.CreatedAt, &it.UpdatedAt, prev == nil)
	if err := e.deps.Repos.Items.Put(ctx, it); err != nil {
		return err
	}
	return e.OnItemUpsert(ctx, it, prev)
}

func (e *Engine) UpsertItemRaw(ctx context.Context, it *domain.Item) error {
	return e.deps.Repos.Items.Put(ctx, it)
}

func (e *Engine) UpsertPlayer(ctx context.Context, p *domain.Player) error {
	const op = "Workflow.UpsertPlayer"
	if p == nil || p.ID == uuid.Nil {
		return domain.NewError(domain.CodeValidation, op, "player with id required", nil)
	}
	prev, err := e.deps.Repos.Players.GetByID(ctx, p.ID)
	if err != nil {
		if !domain.IsCode(err, domain.CodeNotFound) {
			return err
		}
		prev = nil
	}
	e.stamp(&p.CreatedAt, &p.UpdatedAt, prev == nil)
	if err := e.deps.Repos.Players.Put(ctx, p); err != nil {
		return err
	}
	return e.OnPlayerUpsert(ctx, p, prev)
}

func (e *Engine) UpsertCharacter(ctx context.Context, c *domain.Character) error {
	const op = "Workflow.UpsertCharacter"
	if c == nil || c.ID == uuid.Nil {
		return domain.NewError(domain.CodeValidation, op, "character with id required", nil)
	}
	prev, err := e.deps.Repos.Characters.GetByID(ctx, c.ID)
	if err != nil {
		if !domain.IsCode(err, domain.CodeNotFound) {
			return err
		}
		prev = nil
	}
	e.stamp(&c.CreatedAt, &c.UpdatedAt, prev == nil)
	if err := e.deps.Repos.Characters.Put(ctx, c); err != nil {
		return err
	}
	return e.OnCharacterUpsert(ctx, c, prev)
}

func (e *Engine) UpsertSite(ctx context.Context, s *domain.Site) error {
	const op = "Workflow.UpsertSite"
	if s == nil || s.ID == uuid.Nil {
		return domain.NewError(domain.CodeValidation, op, "site with id required", nil)
	}
	prev, err := e.deps.Repos.Sites.GetByID(ctx, s.ID)
	if err != nil {
		if !domain.IsCode(err, domain.CodeNotFound) {
			return err
		}
		prev = nil
	}
	e.stamp(&s.CreatedAt, &s.UpdatedAt, prev == nil)
	if err := e.deps.Repos.Sites.Put(ctx, s); err != nil {
		return err
	}
	return e.OnSiteUpsert(ctx, s, prev)
}

func (e *Engine) UpsertBusiness(ctx context.Context, b *domain.Business) error {
	const op = "Workflow.UpsertBusiness"
	if b == nil || b.ID == uuid.Nil {
		return domain.NewError(domain.CodeValidation, op, "business with id required", nil)
	}
	prev, err := e.deps.Repos.Businesses.GetByID(ctx, b.ID)
	if err != nil {
		if !domain.IsCode(err, domain.CodeNotFound) {
			return err
		}
		prev = nil
	}
	e.stamp(&b.CreatedAt, &b.UpdatedAt, prev == nil)
	if err := e.deps.Repos.Businesses.Put(ctx, b); err != nil {
		return err
	}
	return e.OnBusinessUpsert(ctx, b, prev)
}
