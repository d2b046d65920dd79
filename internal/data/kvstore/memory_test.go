package kvstore

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreDocs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.Get(ctx, "tasks", "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Put(ctx, "tasks", "a", []byte(`{"x":1}`)); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	raw, err := s.Get(ctx, "tasks", "a")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(raw) != `{"x":1}` {
		t.Fatalf("unexpected doc: %s", raw)
	}

	// Returned bytes must be a copy, not a window into the store.
	raw[0] = '!'
	again, _ := s.Get(ctx, "tasks", "a")
	if string(again) != `{"x":1}` {
		t.Fatalf("store leaked internal buffer: %s", again)
	}

	all, err := s.List(ctx, "tasks")
	if err != nil || len(all) != 1 {
		t.Fatalf("list: %v (%d docs)", err, len(all))
	}
	if err := s.Delete(ctx, "tasks", "a"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "tasks", "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStoreSets(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ok, err := s.SetContains(ctx, "effects:task:1", "done")
	if err != nil || ok {
		t.Fatalf("fresh set should not contain member (%v, %v)", ok, err)
	}
	if err := s.SetAdd(ctx, "effects:task:1", "done"); err != nil {
		t.Fatalf("set add failed: %v", err)
	}
	ok, _ = s.SetContains(ctx, "effects:task:1", "done")
	if !ok {
		t.Fatal("member missing after add")
	}

	added, err := s.SetAddNX(ctx, "effects:task:1", "done")
	if err != nil || added {
		t.Fatalf("SetAddNX on existing member should report false (%v, %v)", added, err)
	}
	added, err = s.SetAddNX(ctx, "effects:task:1", "collected")
	if err != nil || !added {
		t.Fatalf("SetAddNX on new member should report true (%v, %v)", added, err)
	}

	members, _ := s.SetMembers(ctx, "effects:task:1")
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %v", members)
	}
	if err := s.SetRemove(ctx, "effects:task:1", "done"); err != nil {
		t.Fatalf("set remove failed: %v", err)
	}
	ok, _ = s.SetContains(ctx, "effects:task:1", "done")
	if ok {
		t.Fatal("member present after remove")
	}
}

func TestMemoryStoreIncr(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for want := int64(1); want <= 3; want++ {
		got, err := s.Incr(ctx, "logseq:task")
		if err != nil || got != want {
			t.Fatalf("incr = %d, %v; want %d", got, err, want)
		}
	}
	got, _ := s.Incr(ctx, "logseq:sale")
	if got != 1 {
		t.Fatalf("counters must be independent, got %d", got)
	}
}
