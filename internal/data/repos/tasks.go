package repos

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/data/kvstore"
	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
)

const taskCollection = "tasks"

type TaskRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	GetAll(ctx context.Context) ([]*domain.Task, error)
	GetByParentID(ctx context.Context, parentID uuid.UUID) ([]*domain.Task, error)
	Put(ctx context.Context, t *domain.Task) error
	Remove(ctx context.Context, id uuid.UUID) error
}

type taskRepo struct {
	store kvstore.Store
	log   *logger.Logger
}

func NewTaskRepo(store kvstore.Store, baseLog *logger.Logger) TaskRepo {
	return &taskRepo{
		store: store,
		log:   baseLog.With("repo", "TaskRepo"),
	}
}

func (r *taskRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return getDoc[domain.Task](ctx, r.store, taskCollection, id.String())
}

func (r *taskRepo) GetAll(ctx context.Context) ([]*domain.Task, error) {
	out, err := listDocs[domain.Task](ctx, r.store, taskCollection)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *taskRepo) GetByParentID(ctx context.Context, parentID uuid.UUID) ([]*domain.Task, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, t := range all {
		if t.ParentTaskID != nil && *t.ParentTaskID == parentID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *taskRepo) Put(ctx context.Context, t *domain.Task) error {
	return putDoc(ctx, r.store, taskCollection, t.ID.String(), t)
}

func (r *taskRepo) Remove(ctx context.Context, id uuid.UUID) error {
	return deleteDoc(ctx, r.store, taskCollection, id.String())
}
