package dispatch

import (
	"context"
	"testing"

	"caravan/internal/testdb"
	"caravan/internal/types"
)

func TestRedisCardStoreTakeOnce(t *testing.T) {
	ctx := context.Background()
	store := NewRedisCardStore(testdb.Redis(t))
	id := types.NewID()
	ref := types.MessageRef{ChatID: -200, MessageID: 42}

	if err := store.Record(ctx, id, ref); err != nil {
		t.Fatal(err)
	}
	card, ok, err := store.Take(ctx, id)
	if err != nil || !ok {
		t.Fatalf("take: ok=%v err=%v", ok, err)
	}
	if card.Ref != ref || card.PostedAt.IsZero() {
		t.Fatalf("card = %+v", card)
	}
	if _, ok, _ := store.Take(ctx, id); ok {
		t.Fatalf("card taken twice")
	}
}

func TestMemoryCardStoreTakeOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCardStore()
	id := types.NewID()
	_ = store.Record(ctx, id, types.MessageRef{ChatID: 1, MessageID: 2})
	if _, ok, _ := store.Take(ctx, id); !ok {
		t.Fatalf("expected card")
	}
	if _, ok, _ := store.Take(ctx, id); ok {
		t.Fatalf("card taken twice")
	}
}
