package kv

import (
	"context"
	"sort"
	"testing"
)

func TestMemoryStoreSetGetDel(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.Get(ctx, "gas:1"); err != ErrNotFound {
		t.Fatalf("Get on empty store: got err %v, want ErrNotFound", err)
	}

	if err := s.Set(ctx, "gas:1", "1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := s.Get(ctx, "gas:1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "1" {
		t.Fatalf("Get = %q, want %q", v, "1")
	}

	if err := s.Del(ctx, "gas:1"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := s.Get(ctx, "gas:1"); err != ErrNotFound {
		t.Fatalf("Get after Del: got err %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreKeysPattern(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, k := range []string{"gas:a", "gas:b", "gas::master_coin", "other:c"} {
		if err := s.Set(ctx, k, "1"); err != nil {
			t.Fatalf("Set(%q): %v", k, err)
		}
	}

	keys, err := s.Keys(ctx, "gas:*")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	sort.Strings(keys)
	want := []string{"gas::master_coin", "gas:a", "gas:b"}
	if len(keys) != len(want) {
		t.Fatalf("Keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("Keys = %v, want %v", keys, want)
		}
	}
}
