package repos

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/data/kvstore"
	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
)

const (
	siteCollection     = "sites"
	businessCollection = "businesses"
)

type SiteRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Site, error)
	GetAll(ctx context.Context) ([]*domain.Site, error)
	Put(ctx context.Context, s *domain.Site) error
	Remove(ctx context.Context, id uuid.UUID) error
}

type siteRepo struct {
	store kvstore.Store
	log   *logger.Logger
}

func NewSiteRepo(store kvstore.Store, baseLog *logger.Logger) SiteRepo {
	return &siteRepo{
		store: store,
		log:   baseLog.With("repo", "SiteRepo"),
	}
}

func (r *siteRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Site, error) {
	return getDoc[domain.Site](ctx, r.store, siteCollection, id.String())
}

func (r *siteRepo) GetAll(ctx context.Context) ([]*domain.Site, error) {
	out, err := listDocs[domain.Site](ctx, r.store, siteCollection)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *siteRepo) Put(ctx context.Context, s *domain.Site) error {
	return putDoc(ctx, r.store, siteCollection, s.ID.String(), s)
}

func (r *siteRepo) Remove(ctx context.Context, id uuid.UUID) error {
	return deleteDoc(ctx, r.store, siteCollection, id.String())
}

type BusinessRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Business, error)
	GetAll(ctx context.Context) ([]*domain.Business, error)
	Put(ctx context.Context, b *domain.Business) error
	Remove(ctx context.Context, id uuid.UUID) error
}

type businessRepo struct {
	store kvstore.Store
	log   *logger.Logger
}

func NewBusinessRepo(store kvstore.Store, baseLog *logger.Logger) BusinessRepo {
	return &businessRepo{
		store: store,
		log:   baseLog.With("repo", "BusinessRepo"),
	}
}

func (r *businessRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Business, error) {
	return getDoc[domain.Business](ctx, r.store, businessCollection, id.String())
}

func (r *businessRepo) GetAll(ctx context.Context) ([]*domain.Business, error) {
	out, err := listDocs[domain.Business](ctx, r.store, businessCollection)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *businessRepo) Put(ctx context.Context, b *domain.Business) error {
	return putDoc(ctx, r.store, businessCollection, b.ID.String(), b)
}

func (r *businessRepo) Remove(ctx context.Context, id uuid.UUID) error {
	return deleteDoc(ctx, r.store, businessCollection, id.String())
}
