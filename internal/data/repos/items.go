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

const itemCollection = "items"

type ItemRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error)
	GetAll(ctx context.Context) ([]*domain.Item, error)
	GetBySourceTaskID(ctx context.Context, taskID uuid.UUID) ([]*domain.Item, error)
	GetBySourceSaleID(ctx context.Context, saleID uuid.UUID) ([]*domain.Item, error)
	// GetByNameAndSite finds an existing active stack to increment instead
	// of spawning a duplicate item.
	GetByNameAndSite(ctx context.Context, name string, siteID *uuid.UUID) (*domain.Item, error)
	Put(ctx context.Context, it *domain.Item) error
	Remove(ctx context.Context, id uuid.UUID) error
}

type itemRepo struct {
	store kvstore.Store
	log   *logger.Logger
}

func NewItemRepo(store kvstore.Store, baseLog *logger.Logger) ItemRepo {
	return &itemRepo{
		store: store,
		log:   baseLog.With("repo", "ItemRepo"),
	}
}

func (r *itemRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	return getDoc[domain.Item](ctx, r.store, itemCollection, id.String())
}

func (r *itemRepo) GetAll(ctx context.Context) ([]*domain.Item, error) {
	out, err := listDocs[domain.Item](ctx, r.store, itemCollection)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *itemRepo) GetBySourceTaskID(ctx context.Context, taskID uuid.UUID) ([]*domain.Item, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, it := range all {
		if it.SourceTaskID != nil && *it.SourceTaskID == taskID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *itemRepo) GetBySourceSaleID(ctx context.Context, saleID uuid.UUID) ([]*domain.Item, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, it := range all {
		if it.SourceSaleID != nil && *it.SourceSaleID == saleID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *itemRepo) GetByNameAndSite(ctx context.Context, name string, siteID *uuid.UUID) (*domain.Item, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, it := range all {
		if it.Status != domain.ItemStatusActive {
			continue
		}
		if !strings.EqualFold(it.Name, name) {
			continue
		}
		if (it.SiteID == nil) != (siteID == nil) {
			continue
		}
		if it.SiteID != nil && *it.SiteID != *siteID {
			continue
		}
		return it, nil
	}
	return nil, nil
}

func (r *itemRepo) Put(ctx context.Context, it *domain.Item) error {
	return putDoc(ctx, r.store, itemCollection, it.ID.String(), it)
}

func (r *itemRepo) Remove(ctx context.Context, id uuid.UUID) error {
	return deleteDoc(ctx, r.store, itemCollection, id.String())
}
