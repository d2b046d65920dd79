// Package links is the relationship registry: typed directed edges between
// entities, queryable from either endpoint. Workflows only produce and
// remove correctly typed causal facts here.
package links

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/data/kvstore"
	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
)

const collection = "links"

type Registry struct {
	log   *logger.Logger
	store kvstore.Store
	now   func() time.Time
}

func NewRegistry(store kvstore.Store, baseLog *logger.Logger) *Registry {
	return &Registry{
		log:   baseLog.With("component", "LinkRegistry"),
		store: store,
		now:   time.Now,
	}
}

// WithClock overrides the time source. Tests use it to pin time.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

func (r *Registry) Create(ctx context.Context, linkType string, source, target domain.Ref, metadata map[string]any) (*domain.Link, error) {
	const op = "Links.Create"
	if linkType == "" || source.ID == uuid.Nil || target.ID == uuid.Nil {
		return nil, domain.NewError(domain.CodeValidation, op, "linkType, source and target are required", nil)
	}
	link := &domain.Link{
		ID:        uuid.New(),
		LinkType:  linkType,
		Source:    source,
		Target:    target,
		Metadata:  metadata,
		CreatedAt: r.now().UTC(),
	}
	raw, err := json.Marshal(link)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, op, err)
	}
	if err := r.store.Put(ctx, collection, link.ID.String(), raw); err != nil {
		return nil, domain.Wrap(domain.CodeInternal, op, err)
	}
	return link, nil
}

// Update rewrites an existing link in place. Identity fields stay what they
// are; callers use this to fold accumulated facts into the metadata.
func (r *Registry) Update(ctx context.Context, link *domain.Link) error {
	const op = "Links.Update"
	if link == nil || link.ID == uuid.Nil {
		return domain.NewError(domain.CodeValidation, op, "link with id required", nil)
	}
	raw, err := json.Marshal(link)
	if err != nil {
		return domain.Wrap(domain.CodeInternal, op, err)
	}
	if err := r.store.Put(ctx, collection, link.ID.String(), raw); err != nil {
		return domain.Wrap(domain.CodeInternal, op, err)
	}
	return nil
}

func (r *Registry) Remove(ctx context.Context, id uuid.UUID) error {
	if err := r.store.Delete(ctx, collection, id.String()); err != nil {
		return domain.Wrap(domain.CodeInternal, "Links.Remove", err)
	}
	return nil
}

// For returns every link touching the endpoint, whichever side it is on.
func (r *Registry) For(ctx context.Context, endpoint domain.Ref) ([]*domain.Link, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Link, 0)
	for _, l := range all {
		if refEqual(l.Source, endpoint) || refEqual(l.Target, endpoint) {
			out = append(out, l)
		}
	}
	return out, nil
}

// ForTyped narrows For to one link type.
func (r *Registry) ForTyped(ctx context.Context, endpoint domain.Ref, linkType string) ([]*domain.Link, error) {
	all, err := r.For(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, l := range all {
		if l.LinkType == linkType {
			out = append(out, l)
		}
	}
	return out, nil
}

// RemoveForEndpoint drops every link where the entity is an endpoint.
// Delete cascade only.
func (r *Registry) RemoveForEndpoint(ctx context.Context, endpoint domain.Ref) (int, error) {
	matched, err := r.For(ctx, endpoint)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, l := range matched {
		if err := r.Remove(ctx, l.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (r *Registry) all(ctx context.Context) ([]*domain.Link, error) {
	raw, err := r.store.List(ctx, collection)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "Links.List", err)
	}
	out := make([]*domain.Link, 0, len(raw))
	for _, doc := range raw {
		var link domain.Link
		if err := json.Unmarshal(doc, &link); err != nil {
			continue
		}
		l := link
		out = append(out, &l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func refEqual(a, b domain.Ref) bool {
	return a.Type == b.Type && a.ID == b.ID
}
