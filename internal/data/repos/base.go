// Package repos exposes per-kind storage over the kvstore: JSON documents
// keyed by id, with secondary lookups implemented as collection scans. Repos
// are pure storage; workflow side effects live in internal/workflow, which
// wraps these writes.
package repos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ravenmill/tracker-backend/internal/data/kvstore"
	"github.com/ravenmill/tracker-backend/internal/domain"
)

func getDoc[T any](ctx context.Context, store kvstore.Store, collection, id string) (*T, error) {
	raw, err := store.Get(ctx, collection, id)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, domain.NewError(domain.CodeNotFound, "Repo.Get", fmt.Sprintf("%s not found: %s", collection, id), nil)
	}
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "Repo.Get", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "Repo.Get", err)
	}
	return &out, nil
}

func putDoc(ctx context.Context, store kvstore.Store, collection, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return domain.Wrap(domain.CodeInternal, "Repo.Put", err)
	}
	if err := store.Put(ctx, collection, id, raw); err != nil {
		return domain.Wrap(domain.CodeInternal, "Repo.Put", err)
	}
	return nil
}

func listDocs[T any](ctx context.Context, store kvstore.Store, collection string) ([]*T, error) {
	raw, err := store.List(ctx, collection)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "Repo.List", err)
	}
	out := make([]*T, 0, len(raw))
	for _, doc := range raw {
		var item T
		if err := json.Unmarshal(doc, &item); err != nil {
			continue
		}
		out = append(out, &item)
	}
	return out, nil
}

func deleteDoc(ctx context.Context, store kvstore.Store, collection, id string) error {
	if err := store.Delete(ctx, collection, id); err != nil {
		return domain.Wrap(domain.CodeInternal, "Repo.Delete", err)
	}
	return nil
}
