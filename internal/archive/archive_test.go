package archive

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ravenmill/tracker-backend/internal/data/kvstore"
	"github.com/ravenmill/tracker-backend/internal/domain"
	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
)

func newTestStore() *Store {
	return NewStore(kvstore.NewMemoryStore(), logger.NewNop())
}

func TestSnapCollectedAt(t *testing.T) {
	now := time.Date(2024, 2, 3, 10, 0, 0, 0, time.UTC)
	explicit := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	milestone := time.Date(2024, 1, 28, 15, 30, 0, 0, time.UTC)

	// Explicit wins untouched.
	got := SnapCollectedAt(&explicit, &milestone, now)
	if !got.Equal(explicit) {
		t.Fatalf("explicit: got %v, want %v", got, explicit)
	}

	// A January milestone snaps to the end of January even though the
	// collection happens in February.
	got = SnapCollectedAt(nil, &milestone, now)
	if MonthKey(got) != "2024-01" {
		t.Fatalf("milestone snap: got month %s, want 2024-01", MonthKey(got))
	}
	if got.Month() != time.January || got.Day() != 31 {
		t.Fatalf("milestone snap should land on the month's final day: %v", got)
	}

	// No anchors at all: now pulled back by the fixed offset.
	got = SnapCollectedAt(nil, nil, now)
	if want := now.Add(-12 * time.Hour); !got.Equal(want) {
		t.Fatalf("fallback: got %v, want %v", got, want)
	}
}

func TestAddOncePerSourceAndMonth(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	sourceID := uuid.New()

	data, _ := json.Marshal(map[string]any{"status": "collected"})
	snap := &domain.Snapshot{
		ID:         uuid.New(),
		SourceID:   sourceID,
		SourceType: domain.EntityTask,
		Reason:     "collected",
		Data:       data,
	}
	added, err := s.Add(ctx, "tasks", "2024-01", snap)
	if err != nil || !added {
		t.Fatalf("first add: (%v, %v)", added, err)
	}
	added, err = s.Add(ctx, "tasks", "2024-01", snap)
	if err != nil || added {
		t.Fatalf("second add for the same (source, month) must be a no-op: (%v, %v)", added, err)
	}

	// A different month is a different partition.
	added, err = s.Add(ctx, "tasks", "2024-02", snap)
	if err != nil || !added {
		t.Fatalf("different month add: (%v, %v)", added, err)
	}

	jan, err := s.ListMonth(ctx, "tasks", "2024-01")
	if err != nil || len(jan) != 1 {
		t.Fatalf("january partition: %v (%d snaps)", err, len(jan))
	}
	got, err := s.Get(ctx, "tasks", "2024-01", sourceID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SourceID != sourceID {
		t.Fatalf("wrong snapshot: %+v", got)
	}
}

func TestGetMissingSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	if _, err := s.Get(ctx, "tasks", "2024-01", uuid.NewString()); !domain.IsCode(err, domain.CodeNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestIndex(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	if err := s.IndexAdd(ctx, "collected:task:2024-01", "a"); err != nil {
		t.Fatalf("index add: %v", err)
	}
	if err := s.IndexAdd(ctx, "collected:task:2024-01", "a"); err != nil {
		t.Fatalf("duplicate index add should be silent: %v", err)
	}
	_ = s.IndexAdd(ctx, "collected:task:2024-01", "b")

	members, err := s.IndexMembers(ctx, "collected:task:2024-01")
	if err != nil || len(members) != 2 {
		t.Fatalf("index members: %v (%v)", err, members)
	}
}
