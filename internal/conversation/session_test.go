package conversation

import (
	"context"
	"testing"
	"time"

	"caravan/internal/testdb"
)

func TestRedisSessionStore(t *testing.T) {
	client := testdb.Redis(t)
	store := NewRedisSessionStore(client, time.Minute)
	ctx := context.Background()

	if _, ok, err := store.Load(ctx, customer); err != nil || ok {
		t.Fatalf("empty load: ok=%v err=%v", ok, err)
	}
	in := SessionState{
		Flow:          FlowCargo,
		Step:          2,
		Sub:           SubRegion,
		Draft:         Draft{"name": "Dilshod", "from.country": "KZ"},
		SubmissionKey: "k-1",
		Lang:          "ru",
		StartedAt:     fixedNow,
	}
	if err := store.Save(ctx, customer, in); err != nil {
		t.Fatal(err)
	}
	out, ok, err := store.Load(ctx, customer)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if out.Flow != in.Flow || out.Step != in.Step || out.Sub != in.Sub || out.SubmissionKey != in.SubmissionKey || out.Lang != in.Lang {
		t.Fatalf("loaded %+v, want %+v", out, in)
	}
	if !out.StartedAt.Equal(in.StartedAt) || out.Draft["from.country"] != "KZ" || out.Draft["name"] != "Dilshod" {
		t.Fatalf("loaded %+v", out)
	}
	if ttl := client.TTL(ctx, sessionKey(customer)).Val(); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}

	if err := store.Delete(ctx, customer); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Load(ctx, customer); ok {
		t.Fatal("deleted session returned")
	}
}
