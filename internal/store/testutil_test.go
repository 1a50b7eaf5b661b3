package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// exerciseStore runs the behavior every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "cache", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if all, err := s.All(ctx, "empty"); err != nil || len(all) != 0 {
		t.Fatalf("empty bucket: %v %v", all, err)
	}
	if err := s.Put(ctx, "cache", "a", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, "cache", "a", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := s.Put(ctx, "sessions", "a", []byte(`"other"`)); err != nil {
		t.Fatalf("put other bucket: %v", err)
	}
	v, err := s.Get(ctx, "cache", "a")
	if err != nil || string(v) != `{"v":2}` {
		t.Fatalf("get=%q err=%v", v, err)
	}
	if err := s.Put(ctx, "cache", "", []byte(`1`)); err == nil {
		t.Fatalf("expected error for empty key")
	}

	if err := s.ReplaceAll(ctx, "cache", map[string][]byte{"x": []byte(`1`), "y": []byte(`2`)}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	keys, err := Keys(ctx, s, "cache")
	if err != nil || !reflect.DeepEqual(keys, []string{"x", "y"}) {
		t.Fatalf("keys=%v err=%v", keys, err)
	}
	if v, _ := s.Get(ctx, "sessions", "a"); string(v) != `"other"` {
		t.Fatalf("replace touched another bucket: %q", v)
	}

	if err := s.Delete(ctx, "cache", "x"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "cache", "x"); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
	all, err := s.All(ctx, "cache")
	if err != nil || len(all) != 1 || string(all["y"]) != "2" {
		t.Fatalf("all=%v err=%v", all, err)
	}
	if err := s.ReplaceAll(ctx, "cache", nil); err != nil {
		t.Fatalf("replace empty: %v", err)
	}
	if all, _ := s.All(ctx, "cache"); len(all) != 0 {
		t.Fatalf("bucket not cleared: %v", all)
	}
}
