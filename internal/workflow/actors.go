package workflow

import (
	"context"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/effects"
)

// synthesizeCharacter handles the emissary pattern: a source entity carries
// a free-text character name, and the workflow materializes a character
// entity for it, links the two, and rewrites the source to hold the id. An
// existing character with the same name is reused instead of duplicated.
// Guarded once per source entity.
func (e *Engine) synthesizeCharacter(ctx context.Context, source domain.Ref, name string, tag func(*domain.Character), write func(ctx context.Context, characterID uuid.UUID) error) error {
	k := effects.NewKey(source.Type, source.ID, "characterCreated")
	_, err := e.runGuarded(ctx, k, func(ctx context.Context) error {
		existing, err := e.deps.Repos.Characters.GetByName(ctx, name)
		if err != nil && !domain.IsCode(err, domain.CodeNotFound) {
			return err
		}
		var characterID uuid.UUID
		if existing != nil {
			characterID = existing.ID
		} else {
			c := &domain.Character{
				ID:   uuid.New(),
				Name: name,
			}
			tag(c)
			if err := e.UpsertCharacter(ctx, c); err != nil {
				return err
			}
			characterID = c.ID
			if _, err := e.deps.Events.Append(ctx, source.Type, source.ID, domain.EventCharacterSpawned,
				map[string]any{"characterId": characterID, "name": name}); err != nil {
				return err
			}
		}
		if _, err := e.deps.Links.Create(ctx, domain.LinkCharacterOf, source,
			domain.Ref{Type: domain.EntityCharacter, ID: characterID}, nil); err != nil {
			return err
		}
		return write(ctx, characterID)
	})
	return err
}

// OnPlayerUpsert is the player reactor. Players hold running point totals;
// all the interesting movement happens via awards and reversals from other
// workflows.
func (e *Engine) OnPlayerUpsert(ctx context.Context, p, prev *domain.Player) error {
	if prev == nil {
		k := effects.CreatedKey(domain.EntityPlayer, p.ID)
		_, err := e.runGuarded(ctx, k, func(ctx context.Context) error {
			_, err := e.deps.Events.Append(ctx, domain.EntityPlayer, p.ID, domain.EventCreated,
				map[string]any{"name": p.Name})
			return err
		})
		return err
	}
	if prev.Name != p.Name {
		if err := e.deps.Events.UpdateField(ctx, domain.EntityPlayer, p.ID, "name", p.Name); err != nil {
			e.log.Warn("Log correction failed", "entity_type", domain.EntityPlayer, "entity_id", p.ID, "field", "name", "error", err)
		}
	}
	return nil
}

func (e *Engine) OnCharacterUpsert(ctx context.Context, c, prev *domain.Character) error {
	if prev == nil {
		k := effects.CreatedKey(domain.EntityCharacter, c.ID)
		_, err := e.runGuarded(ctx, k, func(ctx context.Context) error {
			_, err := e.deps.Events.Append(ctx, domain.EntityCharacter, c.ID, domain.EventCreated,
				map[string]any{"name": c.Name})
			return err
		})
		return err
	}
	if prev.Name != c.Name {
		if err := e.deps.Events.UpdateField(ctx, domain.EntityCharacter, c.ID, "name", c.Name); err != nil {
			e.log.Warn("Log correction failed", "entity_type", domain.EntityCharacter, "entity_id", c.ID, "field", "name", "error", err)
		}
	}
	return nil
}

func (e *Engine) OnSiteUpsert(ctx context.Context, s, prev *domain.Site) error {
	if prev == nil {
		k := effects.CreatedKey(domain.EntitySite, s.ID)
		_, err := e.runGuarded(ctx, k, func(ctx context.Context) error {
			_, err := e.deps.Events.Append(ctx, domain.EntitySite, s.ID, domain.EventCreated,
				map[string]any{"name": s.Name})
			return err
		})
		return err
	}
	if prev.Name != s.Name {
		if err := e.deps.Events.UpdateField(ctx, domain.EntitySite, s.ID, "name", s.Name); err != nil {
			e.log.Warn("Log correction failed", "entity_type", domain.EntitySite, "entity_id", s.ID, "field", "name", "error", err)
		}
	}
	return nil
}

func (e *Engine) OnBusinessUpsert(ctx context.Context, b, prev *domain.Business) error {
	if prev == nil {
		k := effects.CreatedKey(domain.EntityBusiness, b.ID)
		_, err := e.runGuarded(ctx, k, func(ctx context.Context) error {
			_, err := e.deps.Events.Append(ctx, domain.EntityBusiness, b.ID, domain.EventCreated,
				map[string]any{"name": b.Name})
			return err
		})
		return err
	}
	if prev.Name != b.Name {
		if err := e.deps.Events.UpdateField(ctx, domain.EntityBusiness, b.ID, "name", b.Name); err != nil {
			e.log.Warn("Log correction failed", "entity_type", domain.EntityBusiness, "entity_id", b.ID, "field", "name", "error", err)
		}
	}
	return nil
}

func (e *Engine) deleteSimple(ctx context.Context, op string, ref domain.Ref, remove func(context.Context) error) error {
	var fails cascadeFailures
	_, err := e.deps.Links.RemoveForEndpoint(ctx, ref)
	fails.add(e.log, "remove links", err)
	fails.add(e.log, "remove log entries", e.deps.Events.RemoveForEntity(ctx, ref.Type, ref.ID))
	fails.add(e.log, "remove caused entries", e.deps.Events.RemoveWhereSource(ctx, ref))
	fails.add(e.log, "clear effects", e.deps.Effects.ClearAll(ctx, ref.Type, ref.ID))
	fails.add(e.log, "remove document", remove(ctx))
	return fails.err(op)
}

func (e *Engine) DeletePlayer(ctx context.Context, id uuid.UUID) error {
	return e.deleteSimple(ctx, "Workflow.DeletePlayer",
		domain.Ref{Type: domain.EntityPlayer, ID: id},
		func(ctx context.Context) error { return e.deps.Repos.Players.Remove(ctx, id) })
}

func (e *Engine) DeleteCharacter(ctx context.Context, id uuid.UUID) error {
	return e.deleteSimple(ctx, "Workflow.DeleteCharacter",
		domain.Ref{Type: domain.EntityCharacter, ID: id},
		func(ctx context.Context) error { return e.deps.Repos.Characters.Remove(ctx, id) })
}

func (e *Engine) DeleteSite(ctx context.Context, id uuid.UUID) error {
	return e.deleteSimple(ctx, "Workflow.DeleteSite",
		domain.Ref{Type: domain.EntitySite, ID: id},
		func(ctx context.Context) error { return e.deps.Repos.Sites.Remove(ctx, id) })
}

func (e *Engine) DeleteBusiness(ctx context.Context, id uuid.UUID) error {
	return e.deleteSimple(ctx, "Workflow.DeleteBusiness",
		domain.Ref{Type: domain.EntityBusiness, ID: id},
		func(ctx context.Context) error { return e.deps.Repos.Businesses.Remove(ctx, id) })
}
