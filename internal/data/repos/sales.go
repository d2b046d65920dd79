package repos

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/data/kvstore"
	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
)

const saleCollection = "sales"

type SaleRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Sale, error)
	GetAll(ctx context.Context) ([]*domain.Sale, error)
	Put(ctx context.Context, s *domain.Sale) error
	Remove(ctx context.Context, id uuid.UUID) error
}

type saleRepo struct {
	store kvstore.Store
	log   *logger.Logger
}

func NewSaleRepo(store kvstore.Store, baseLog *logger.Logger) SaleRepo {
	return &saleRepo{
		store: store,
		log:   baseLog.With("repo", "SaleRepo"),
	}
}

func (r *saleRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Sale, error) {
	return getDoc[domain.Sale](ctx, r.store, saleCollection, id.String())
}

func (r *saleRepo) GetAll(ctx context.Context) ([]*domain.Sale, error) {
	out, err := listDocs[domain.Sale](ctx, r.store, saleCollection)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *saleRepo) Put(ctx context.Context, s *domain.Sale) error {
	return putDoc(ctx, r.store, saleCollection, s.ID.String(), s)
}

func (r *saleRepo) Remove(ctx context.Context, id uuid.UUID) error {
	return deleteDoc(ctx, r.store, saleCollection, id.String())
}
