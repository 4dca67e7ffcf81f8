package kv

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStorage_GetPut(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	value := []byte(`[1,2]`)
	if err := s.Put(ctx, "k", value); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	value[1] = '9'

	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if string(got) != `[1,2]` {
		t.Fatalf("stored value aliased caller slice: %s", got)
	}

	got[1] = '7'
	again, _ := s.Get(ctx, "k")
	if string(again) != `[1,2]` {
		t.Fatalf("returned value aliased stored slice: %s", again)
	}

	if err := s.Put(ctx, "k", []byte(`[]`)); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	got, _ = s.Get(ctx, "k")
	if string(got) != `[]` {
		t.Fatalf("expected overwrite, got %s", got)
	}
}
