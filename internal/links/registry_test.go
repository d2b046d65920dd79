package links

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/data/kvstore"
	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
)

func newTestRegistry() *Registry {
	return NewRegistry(kvstore.NewMemoryStore(), logger.NewNop())
}

func TestCreateAndQueryFromEitherEndpoint(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	task := domain.Ref{Type: domain.EntityTask, ID: uuid.New()}
	player := domain.Ref{Type: domain.EntityPlayer, ID: uuid.New()}

	link, err := r.Create(ctx, domain.LinkPointsAwarded, task, player, map[string]any{"breakdown": map[string]float64{"xp": 10}})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if link.ID == uuid.Nil {
		t.Fatal("link id not assigned")
	}

	fromSource, err := r.For(ctx, task)
	if err != nil || len(fromSource) != 1 {
		t.Fatalf("query by source: %v (%d links)", err, len(fromSource))
	}
	fromTarget, err := r.For(ctx, player)
	if err != nil || len(fromTarget) != 1 {
		t.Fatalf("query by target: %v (%d links)", err, len(fromTarget))
	}

	typed, err := r.ForTyped(ctx, task, domain.LinkItemSpawned)
	if err != nil || len(typed) != 0 {
		t.Fatalf("typed query should filter: %v (%d links)", err, len(typed))
	}
	typed, _ = r.ForTyped(ctx, task, domain.LinkPointsAwarded)
	if len(typed) != 1 {
		t.Fatalf("typed query missed the link: %d", len(typed))
	}
}

func TestUpdateRewritesMetadata(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	task := domain.Ref{Type: domain.EntityTask, ID: uuid.New()}
	player := domain.Ref{Type: domain.EntityPlayer, ID: uuid.New()}

	link, err := r.Create(ctx, domain.LinkPointsAwarded, task, player, map[string]any{"breakdown": map[string]float64{"xp": 10}})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	link.Metadata["breakdown"] = map[string]float64{"xp": 15}
	if err := r.Update(ctx, link); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	stored, _ := r.ForTyped(ctx, task, domain.LinkPointsAwarded)
	if len(stored) != 1 {
		t.Fatalf("update must not duplicate the link: %d", len(stored))
	}
	breakdown, _ := stored[0].Metadata["breakdown"].(map[string]any)
	if got, _ := breakdown["xp"].(float64); got != 15 {
		t.Fatalf("metadata not rewritten: %v", stored[0].Metadata)
	}

	if err := r.Update(ctx, nil); !domain.IsCode(err, domain.CodeValidation) {
		t.Fatalf("expected validation error for nil link, got %v", err)
	}
}

func TestWithClockPinsCreatedAt(t *testing.T) {
	ctx := context.Background()
	pinned := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	r := newTestRegistry().WithClock(func() time.Time { return pinned })
	task := domain.Ref{Type: domain.EntityTask, ID: uuid.New()}
	item := domain.Ref{Type: domain.EntityItem, ID: uuid.New()}

	link, err := r.Create(ctx, domain.LinkItemSpawned, task, item, nil)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !link.CreatedAt.Equal(pinned) {
		t.Fatalf("createdAt = %v, want %v", link.CreatedAt, pinned)
	}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	task := domain.Ref{Type: domain.EntityTask, ID: uuid.New()}
	if _, err := r.Create(ctx, "", task, task, nil); !domain.IsCode(err, domain.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := r.Create(ctx, domain.LinkCharacterOf, task, domain.Ref{}, nil); !domain.IsCode(err, domain.CodeValidation) {
		t.Fatalf("expected validation error for nil target, got %v", err)
	}
}

func TestRemoveForEndpoint(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	task := domain.Ref{Type: domain.EntityTask, ID: uuid.New()}
	item := domain.Ref{Type: domain.EntityItem, ID: uuid.New()}
	player := domain.Ref{Type: domain.EntityPlayer, ID: uuid.New()}

	_, _ = r.Create(ctx, domain.LinkItemSpawned, task, item, nil)
	_, _ = r.Create(ctx, domain.LinkPointsAwarded, task, player, nil)
	other := domain.Ref{Type: domain.EntitySale, ID: uuid.New()}
	_, _ = r.Create(ctx, domain.LinkPointsAwarded, other, player, nil)

	removed, err := r.RemoveForEndpoint(ctx, task)
	if err != nil || removed != 2 {
		t.Fatalf("remove for endpoint: %v (removed %d)", err, removed)
	}
	left, _ := r.For(ctx, player)
	if len(left) != 1 {
		t.Fatalf("unrelated link must survive: %d", len(left))
	}
}
