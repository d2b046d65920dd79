// Package archive stores month-partitioned immutable entity snapshots taken
// at terminal lifecycle state, plus the month-indexed membership sets used
// for historical views.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ravenmill/tracker-backend/internal/data/kvstore"
	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
)

type Store struct {
	log   *logger.Logger
	store kvstore.Store
}

func NewStore(store kvstore.Store, baseLog *logger.Logger) *Store {
	return &Store{
		log:   baseLog.With("component", "ArchiveStore"),
		store: store,
	}
}

// MonthKey renders the month partition key for a timestamp, e.g. "2024-01".
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// monthEnd is the final instant of t's month (UTC).
func monthEnd(t time.Time) time.Time {
	t = t.UTC()
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.Add(-time.Nanosecond)
}

// SnapCollectedAt derives the canonical collection time: the explicit value
// when present, else the earlier milestone (doneAt/soldAt) snapped to its
// month-closing boundary, else now pulled back by a fixed offset so a
// just-past-midnight collection still lands in the closing month. The snap
// is why an entity finished in month M but collected early in M+1 archives
// under M.
func SnapCollectedAt(explicit, milestone *time.Time, now time.Time) time.Time {
	if explicit != nil && !explicit.IsZero() {
		return explicit.UTC()
	}
	if milestone != nil && !milestone.IsZero() {
		return monthEnd(*milestone)
	}
	return now.UTC().Add(-12 * time.Hour)
}

// Add stores the snapshot under (collection, monthKey). At most one snapshot
// exists per (source id, month key); a second add for the same pair is a
// no-op reporting false.
func (s *Store) Add(ctx context.Context, archiveCollection, monthKey string, snap *domain.Snapshot) (bool, error) {
	const op = "Archive.Add"
	if snap == nil || snap.SourceID.String() == "" {
		return false, domain.NewError(domain.CodeValidation, op, "snapshot with sourceId required", nil)
	}
	coll := fmt.Sprintf("archive:%s:%s", archiveCollection, monthKey)
	id := snap.SourceID.String()
	if _, err := s.store.Get(ctx, coll, id); err == nil {
		return false, nil
	} else if !errors.Is(err, kvstore.ErrNotFound) {
		return false, domain.Wrap(domain.CodeInternal, op, err)
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return false, domain.Wrap(domain.CodeInternal, op, err)
	}
	if err := s.store.Put(ctx, coll, id, raw); err != nil {
		return false, domain.Wrap(domain.CodeInternal, op, err)
	}
	return true, nil
}

// Get loads one snapshot from a month partition.
func (s *Store) Get(ctx context.Context, archiveCollection, monthKey, sourceID string) (*domain.Snapshot, error) {
	const op = "Archive.Get"
	coll := fmt.Sprintf("archive:%s:%s", archiveCollection, monthKey)
	raw, err := s.store.Get(ctx, coll, sourceID)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, domain.NewError(domain.CodeNotFound, op, fmt.Sprintf("no snapshot for %s in %s", sourceID, monthKey), nil)
	}
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, op, err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, domain.Wrap(domain.CodeInternal, op, err)
	}
	return &snap, nil
}

// ListMonth returns every snapshot in a month partition.
func (s *Store) ListMonth(ctx context.Context, archiveCollection, monthKey string) ([]*domain.Snapshot, error) {
	coll := fmt.Sprintf("archive:%s:%s", archiveCollection, monthKey)
	raw, err := s.store.List(ctx, coll)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "Archive.ListMonth", err)
	}
	out := make([]*domain.Snapshot, 0, len(raw))
	for _, doc := range raw {
		var snap domain.Snapshot
		if err := json.Unmarshal(doc, &snap); err != nil {
			continue
		}
		sn := snap
		out = append(out, &sn)
	}
	return out, nil
}

// IndexAdd records membership in a month-partitioned index set.
func (s *Store) IndexAdd(ctx context.Context, indexKey, memberID string) error {
	if err := s.store.SetAdd(ctx, "index:"+indexKey, memberID); err != nil {
		return domain.Wrap(domain.CodeInternal, "Archive.IndexAdd", err)
	}
	return nil
}

// IndexMembers returns the ids recorded under an index key.
func (s *Store) IndexMembers(ctx context.Context, indexKey string) ([]string, error) {
	members, err := s.store.SetMembers(ctx, "index:"+indexKey)
	if err != nil {
		return nil, domain.Wrap(domain.CodeInternal, "Archive.IndexMembers", err)
	}
	return members, nil
}
