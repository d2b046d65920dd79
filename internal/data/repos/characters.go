package repos

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/data/kvstore"
	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
)

const characterCollection = "characters"

type CharacterRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Character, error)
	GetAll(ctx context.Context) ([]*domain.Character, error)
	GetByName(ctx context.Context, name string) (*domain.Character, error)
	GetBySourceTaskID(ctx context.Context, taskID uuid.UUID) ([]*domain.Character, error)
	GetBySourceSaleID(ctx context.Context, saleID uuid.UUID) ([]*domain.Character, error)
	Put(ctx context.Context, c *domain.Character) error
	Remove(ctx context.Context, id uuid.UUID) error
}

type characterRepo struct {
	store kvstore.Store
	log   *logger.Logger
}

func NewCharacterRepo(store kvstore.Store, baseLog *logger.Logger) CharacterRepo {
	return &characterRepo{
		store: store,
		log:   baseLog.With("repo", "CharacterRepo"),
	}
}

func (r *characterRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Character, error) {
	return getDoc[domain.Character](ctx, r.store, characterCollection, id.String())
}

func (r *characterRepo) GetAll(ctx context.Context) ([]*domain.Character, error) {
	out, err := listDocs[domain.Character](ctx, r.store, characterCollection)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *characterRepo) GetByName(ctx context.Context, name string) (*domain.Character, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return nil, nil
}

func (r *characterRepo) GetBySourceTaskID(ctx context.Context, taskID uuid.UUID) ([]*domain.Character, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if c.SourceTaskID != nil && *c.SourceTaskID == taskID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *characterRepo) GetBySourceSaleID(ctx context.Context, saleID uuid.UUID) ([]*domain.Character, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if c.SourceSaleID != nil && *c.SourceSaleID == saleID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *characterRepo) Put(ctx context.Context, c *domain.Character) error {
	return putDoc(ctx, r.store, characterCollection, c.ID.String(), c)
}

func (r *characterRepo) Remove(ctx context.Context, id uuid.UUID) error {
	return deleteDoc(ctx, r.store, characterCollection, id.String())
}
