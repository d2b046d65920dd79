package repos

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/data/kvstore"
	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
)

const recordCollection = "financial_records"

type RecordRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.FinancialRecord, error)
	GetAll(ctx context.Context) ([]*domain.FinancialRecord, error)
	GetBySourceSaleID(ctx context.Context, saleID uuid.UUID) ([]*domain.FinancialRecord, error)
	GetBySourceTaskID(ctx context.Context, taskID uuid.UUID) ([]*domain.FinancialRecord, error)
	Put(ctx context.Context, rec *domain.FinancialRecord) error
	Remove(ctx context.Context, id uuid.UUID) error
}

type recordRepo struct {
	store kvstore.Store
	log   *logger.Logger
}

func NewRecordRepo(store kvstore.Store, baseLog *logger.Logger) RecordRepo {
	return &recordRepo{
		store: store,
		log:   baseLog.With("repo", "RecordRepo"),
	}
}

func (r *recordRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.FinancialRecord, error) {
	return getDoc[domain.FinancialRecord](ctx, r.store, recordCollection, id.String())
}

func (r *recordRepo) GetAll(ctx context.Context) ([]*domain.FinancialRecord, error) {
	out, err := listDocs[domain.FinancialRecord](ctx, r.store, recordCollection)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *recordRepo) GetBySourceSaleID(ctx context.Context, saleID uuid.UUID) ([]*domain.FinancialRecord, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, rec := range all {
		if rec.SourceSaleID != nil && *rec.SourceSaleID == saleID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *recordRepo) GetBySourceTaskID(ctx context.Context, taskID uuid.UUID) ([]*domain.FinancialRecord, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, rec := range all {
		if rec.SourceTaskID != nil && *rec.SourceTaskID == taskID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *recordRepo) Put(ctx context.Context, rec *domain.FinancialRecord) error {
	return putDoc(ctx, r.store, recordCollection, rec.ID.String(), rec)
}

func (r *recordRepo) Remove(ctx context.Context, id uuid.UUID) error {
	return deleteDoc(ctx, r.store, recordCollection, id.String())
}
