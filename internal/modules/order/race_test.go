// README: Concurrency tests against PostgreSQL (run with -race and CARAVAN_TEST_DSN).
package order

import (
	"context"
	"errors"
	"sync"
	"testing"

	"caravan/internal/events"
	"caravan/internal/logging"
	"caravan/internal/modules/ledger"
	"caravan/internal/modules/user"
	"caravan/internal/testdb"
	"caravan/internal/types"
)

func setupPostgres(t *testing.T) (*Service, *user.Store, *ledger.Store) {
	t.Helper()
	db := testdb.Open(t)
	return NewService(NewStore(db), events.Nop{}, logging.Discard()), user.NewStore(db), ledger.NewStore(db)
}

func TestPostgresConcurrentAcceptSameOrder(t *testing.T) {
	ctx := context.Background()
	svc, users, led := setupPostgres(t)

	const attempts = 10
	ids := []types.UserID{1}
	for i := 0; i < attempts; i++ {
		ids = append(ids, types.UserID(100+i))
	}
	for _, id := range ids {
		if _, err := users.Ensure(ctx, &user.User{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	for _, id := range ids[1:] {
		if _, err := led.Credit(ctx, ledger.Mutation{UserID: id, Amount: 5}); err != nil {
			t.Fatal(err)
		}
	}

	o, _, err := svc.Create(ctx, taxiCommand("pg-race", 1, 3))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	start := make(chan struct{})
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for _, did := range ids[1:] {
		wg.Add(1)
		go func(did types.UserID) {
			defer wg.Done()
			<-start
			_, err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, ActorID: did, Cost: 3, Charge: true})
			errs <- err
		}(did)
	}
	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrAlreadyAccepted) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 success, got %d", success)
	}
	got, err := svc.Get(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusAccepted || got.AcceptedBy == nil {
		t.Fatalf("unexpected final order %+v", got)
	}
	if bal, _ := led.Balance(ctx, *got.AcceptedBy); bal != 2 {
		t.Fatalf("winner balance = %d, want 2", bal)
	}
}

func TestPostgresAcceptShortBalanceRollsBack(t *testing.T) {
	ctx := context.Background()
	svc, users, led := setupPostgres(t)
	for _, id := range []types.UserID{1, 50} {
		if _, err := users.Ensure(ctx, &user.User{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := led.Credit(ctx, ledger.Mutation{UserID: 50, Amount: 2}); err != nil {
		t.Fatal(err)
	}
	o, _, err := svc.Create(ctx, taxiCommand("pg-short", 1, 3))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, ActorID: 50, Cost: 3, Charge: true}); !errors.Is(err, ledger.ErrInsufficientCredit) {
		t.Fatalf("expected ErrInsufficientCredit, got %v", err)
	}
	got, _ := svc.Get(ctx, o.ID)
	if got.Status != StatusPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}
	if bal, _ := led.Balance(ctx, 50); bal != 2 {
		t.Fatalf("balance = %d, want 2", bal)
	}

	dup, created, err := svc.Create(ctx, taxiCommand("pg-short", 1, 3))
	if err != nil || created || dup.ID != o.ID {
		t.Fatalf("duplicate submission: created=%v id=%s err=%v", created, dup.ID, err)
	}
}
