package repos

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/data/kvstore"
	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
)

const playerCollection = "players"

type PlayerRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Player, error)
	GetAll(ctx context.Context) ([]*domain.Player, error)
	Put(ctx context.Context, p *domain.Player) error
	Remove(ctx context.Context, id uuid.UUID) error
}

type playerRepo struct {
	store kvstore.Store
	log   *logger.Logger
}

func NewPlayerRepo(store kvstore.Store, baseLog *logger.Logger) PlayerRepo {
	return &playerRepo{
		store: store,
		log:   baseLog.With("repo", "PlayerRepo"),
	}
}

func (r *playerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Player, error) {
	return getDoc[domain.Player](ctx, r.store, playerCollection, id.String())
}

func (r *playerRepo) GetAll(ctx context.Context) ([]*domain.Player, error) {
	out, err := listDocs[domain.Player](ctx, r.store, playerCollection)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *playerRepo) Put(ctx context.Context, p *domain.Player) error {
	return putDoc(ctx, r.store, playerCollection, p.ID.String(), p)
}

func (r *playerRepo) Remove(ctx context.Context, id uuid.UUID) error {
	return deleteDoc(ctx, r.store, playerCollection, id.String())
}
