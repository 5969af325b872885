package semindex

import (
	"context"
	"testing"
)

func TestMemoryIndex_LookupMiss(t *testing.T) {
	idx := NewMemoryIndex()
	if _, ok, err := idx.Lookup(context.Background(), "model-a", "поставь таймер"); ok || err != nil {
		t.Errorf("Lookup on empty index = %v, %v", ok, err)
	}
}

func TestMemoryIndex_StoreAndLookup(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	if err := idx.Store(ctx, "model-a", "поставь таймер", []float32{1, 2, 3}); err != nil {
		t.Fatal(err)
	}

	vec, ok, err := idx.Lookup(ctx, "model-a", "поставь таймер")
	if err != nil || !ok {
		t.Fatalf("Lookup = %v, %v", ok, err)
	}
	if len(vec) != 3 || vec[0] != 1 {
		t.Errorf("vec = %v", vec)
	}

	// The same phrase under another model is a distinct key.
	if _, ok, _ := idx.Lookup(ctx, "model-b", "поставь таймер"); ok {
		t.Error("model keys collided")
	}
}

func TestMemoryIndex_StoreOverwrites(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	if err := idx.Store(ctx, "model-a", "фраза", []float32{1}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Store(ctx, "model-a", "фраза", []float32{2}); err != nil {
		t.Fatal(err)
	}

	vec, ok, _ := idx.Lookup(ctx, "model-a", "фраза")
	if !ok || vec[0] != 2 {
		t.Errorf("vec = %v, want the overwrite", vec)
	}
}
