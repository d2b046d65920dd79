// Package workflow holds the per-entity reactors: on every write of any
// entity the matching OnXUpsert decides what changed, applies cross-entity
// side effects exactly once under idempotency guards, keeps dependents in
// sync and archives terminal entities. It gives transactional-looking
// guarantees on top of a store that has none; every guarded operation is
// safe to re-invoke.
package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ravenmill/tracker-backend/internal/archive"
	"github.com/ravenmill/tracker-backend/internal/data/repos"
	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/effects"
	"github.com/ravenmill/tracker-backend/internal/eventlog"
	"github.com/ravenmill/tracker-backend/internal/links"
	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
	"github.com/ravenmill/tracker-backend/internal/propagate"
	"github.com/ravenmill/tracker-backend/internal/rates"
)

// ActorResolver supplies the default player credited when an entity names
// no player of its own. Injected so no workflow hardcodes a "main player".
type ActorResolver func(ctx context.Context) (*domain.Player, error)

// FirstPlayerResolver resolves to the earliest-created player.
func FirstPlayerResolver(players repos.PlayerRepo) ActorResolver {
	return func(ctx context.Context) (*domain.Player, error) {
		all, err := players.GetAll(ctx)
		if err != nil {
			return nil, err
		}
		if len(all) == 0 {
			return nil, nil
		}
		return all[0], nil
	}
}

// StaticPlayerResolver resolves to one configured player id.
func StaticPlayerResolver(players repos.PlayerRepo, id uuid.UUID) ActorResolver {
	return func(ctx context.Context) (*domain.Player, error) {
		return players.GetByID(ctx, id)
	}
}

type Deps struct {
	Log           *logger.Logger
	Repos         *repos.Catalog
	Effects       *effects.Ledger
	Events        *eventlog.Log
	Links         *links.Registry
	Archive       *archive.Store
	Rates         rates.Service
	Propagator    *propagate.Propagator
	DefaultPlayer ActorResolver
}

type Engine struct {
	log  *logger.Logger
	deps Deps
	now  func() time.Time
}

func NewEngine(deps Deps) *Engine {
	return &Engine{
		log:  deps.Log.With("component", "WorkflowEngine"),
		deps: deps,
		now:  time.Now,
	}
}

// WithClock overrides the time source. Tests use it to pin time.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// runGuarded runs fn at most once under the effect key. The key is marked
// only after fn durably completes. An already-marked key is normal control
// flow, not a failure.
func (e *Engine) runGuarded(ctx context.Context, k effects.Key, fn func(context.Context) error) (bool, error) {
	applied, err := e.deps.Effects.Has(ctx, k)
	if err != nil {
		return false, err
	}
	if applied {
		return false, nil
	}
	if err := fn(ctx); err != nil {
		return false, err
	}
	if err := e.deps.Effects.Mark(ctx, k); err != nil {
		return false, err
	}
	return true, nil
}

type effectStep struct {
	name string
	run  func(context.Context) error
}

// fanOut runs independent completion side effects concurrently and joins
// them. Each failure is caught per effect so an unrelated sibling effect
// still runs; failures are logged, never rolled back.
func (e *Engine) fanOut(ctx context.Context, entity domain.Ref, steps []effectStep) {
	var g errgroup.Group
	var mu sync.Mutex
	var failed []string
	for _, step := range steps {
		step := step
		g.Go(func() error {
			if err := step.run(ctx); err != nil {
				e.log.Warn("Side effect failed",
					"entity_type", entity.Type,
					"entity_id", entity.ID,
					"effect", step.name,
					"error", err,
				)
				mu.Lock()
				failed = append(failed, step.name)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if len(failed) > 0 {
		e.log.Warn("Completion fan-out finished with failures",
			"entity_type", entity.Type, "entity_id", entity.ID, "failed", failed)
	}
}

// runSteps is the sequential sibling of fanOut, with the same per-step
// failure isolation. Used when the steps rewrite the source entity itself
// and must not share it across goroutines.
func (e *Engine) runSteps(ctx context.Context, entity domain.Ref, steps []effectStep) {
	var failed []string
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			e.log.Warn("Side effect failed",
				"entity_type", entity.Type,
				"entity_id", entity.ID,
				"effect", step.name,
				"error", err,
			)
			failed = append(failed, step.name)
		}
	}
	if len(failed) > 0 {
		e.log.Warn("Completion steps finished with failures",
			"entity_type", entity.Type, "entity_id", entity.ID, "failed", failed)
	}
}

// resolvePlayer picks the explicit player when set, else the injected
// default actor.
func (e *Engine) resolvePlayer(ctx context.Context, explicit *uuid.UUID) (*domain.Player, error) {
	if explicit != nil {
		return e.deps.Repos.Players.GetByID(ctx, *explicit)
	}
	if e.deps.DefaultPlayer == nil {
		return nil, nil
	}
	return e.deps.DefaultPlayer(ctx)
}

// applySiteStockDelta moves a site's on-hand quantity for an item by a
// signed delta.
func (e *Engine) applySiteStockDelta(ctx context.Context, siteID, itemID uuid.UUID, delta float64) {
	site, err := e.deps.Repos.Sites.GetByID(ctx, siteID)
	if err != nil {
		e.log.Warn("Site missing during stock update", "site_id", siteID, "error", err)
		return
	}
	if site.Stock == nil {
		site.Stock = map[string]float64{}
	}
	site.Stock[itemID.String()] += delta
	site.UpdatedAt = e.now().UTC()
	if err := e.deps.Repos.Sites.Put(ctx, site); err != nil {
		e.log.Warn("Site stock write failed", "site_id", siteID, "error", err)
	}
}

// pointsFromMetadata recovers a reward breakdown persisted in link
// metadata. JSON roundtrips render it as map[string]any of float64.
func pointsFromMetadata(v any) domain.Points {
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

// awardPoints credits a reward breakdown to the resolved player exactly
// once: the player ledger write, a typed source->player link carrying the
// breakdown, and a dedicated points entry in the player's log.
func (e *Engine) awardPoints(ctx context.Context, source domain.Ref, rewards domain.Points, explicitPlayer *uuid.UUID, k effects.Key) error {
	if rewards.IsZero() {
		return nil
	}
	_, err := e.runGuarded(ctx, k, func(ctx context.Context) error {
		player, err := e.resolvePlayer(ctx, explicitPlayer)
		if err != nil {
			return err
		}
		if player == nil {
			e.log.Warn("No player to award points to", "source", source)
			return nil
		}
		player.Points = player.Points.Add(rewards)
		player.UpdatedAt = e.now().UTC()
		if err := e.deps.Repos.Players.Put(ctx, player); err != nil {
			return err
		}
		if _, err := e.deps.Links.Create(ctx, domain.LinkPointsAwarded, source,
			domain.Ref{Type: domain.EntityPlayer, ID: player.ID},
			map[string]any{"breakdown": rewards}); err != nil {
			return err
		}
		_, err = e.deps.Events.AppendCaused(ctx, domain.EntityPlayer, player.ID, domain.EventPointsAwarded,
			map[string]any{"breakdown": rewards}, &source)
		return err
	})
	return err
}

// reversePointsAwards removes every point grant the source caused, using
// the breakdown stored on the grant links rather than current rates, so a
// reversal always matches the original grant numerically.
func (e *Engine) reversePointsAwards(ctx context.Context, source domain.Ref) error {
	grants, err := e.deps.Links.ForTyped(ctx, source, domain.LinkPointsAwarded)
	if err != nil {
		return err
	}
	for _, grant := range grants {
		if grant.Source != source {
			continue
		}
		breakdown := pointsFromMetadata(grant.Metadata["breakdown"])
		player, err := e.deps.Repos.Players.GetByID(ctx, grant.Target.ID)
		if err != nil {
			if domain.IsCode(err, domain.CodeNotFound) {
				e.log.Warn("Player missing during points reversal", "player_id", grant.Target.ID)
				continue
			}
			return err
		}
		player.Points = player.Points.Add(breakdown.Negate())
		player.UpdatedAt = e.now().UTC()
		if err := e.deps.Repos.Players.Put(ctx, player); err != nil {
			return err
		}
		if _, err := e.deps.Events.AppendCaused(ctx, domain.EntityPlayer, player.ID, domain.EventPointsReversed,
			map[string]any{"breakdown": breakdown}, &source); err != nil {
			return err
		}
		if err := e.deps.Links.Remove(ctx, grant.ID); err != nil {
			return err
		}
	}
	return nil
}

// cascadeFailures collects per-step failures of a delete cascade; the loop
// never aborts on one bad step.
type cascadeFailures struct {
	steps []string
}

func (c *cascadeFailures) add(log *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	log.Warn("Cascade step failed", "step", step, "error", err)
	c.steps = append(c.steps, fmt.Sprintf("%s: %v", step, err))
}

func (c *cascadeFailures) err(op string) error {
	if len(c.steps) == 0 {
		return nil
	}
	return domain.NewError(domain.CodePartialCascade, op,
		fmt.Sprintf("%d cascade step(s) failed: %v", len(c.steps), c.steps), nil)
}
