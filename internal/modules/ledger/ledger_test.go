// README: Ledger tests: overdraft protection, concurrent debits, journal history.
package ledger

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"caravan/internal/events"
	"caravan/internal/logging"
	"caravan/internal/modules/user"
	"caravan/internal/types"
)

func newMemoryService(t *testing.T, ids ...types.UserID) (*Service, *events.Recorder) {
	t.Helper()
	users := user.NewMemoryStore()
	for _, id := range ids {
		if _, err := users.Ensure(context.Background(), &user.User{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	rec := &events.Recorder{}
	return NewService(NewMemoryStore(users), rec, logging.Discard()), rec
}

func TestDebitRejectsOverdraft(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemoryService(t, 1)

	if _, err := svc.Credit(ctx, Mutation{UserID: 1, Amount: 2, Reference: "topup:a"}); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Debit(ctx, Mutation{UserID: 1, Amount: 3, Reference: "order:o"})
	if !errors.Is(err, ErrInsufficientCredit) {
		t.Fatalf("expected ErrInsufficientCredit, got %v", err)
	}
	bal, _ := svc.Balance(ctx, 1)
	if bal != 2 {
		t.Fatalf("balance = %d, want 2", bal)
	}
}

func TestMutationValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemoryService(t, 1)
	for _, amount := range []int64{0, -5} {
		if _, err := svc.Credit(ctx, Mutation{UserID: 1, Amount: amount}); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("credit %d: expected ErrInvalidAmount, got %v", amount, err)
		}
		if _, err := svc.Debit(ctx, Mutation{UserID: 1, Amount: amount}); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("debit %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if _, err := svc.Credit(ctx, Mutation{UserID: 404, Amount: 1}); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("expected ErrUnknownUser, got %v", err)
	}
}

func TestBalanceNeverNegativeRandomSequence(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemoryService(t, 1)
	rng := rand.New(rand.NewSource(7))

	var want int64
	for i := 0; i < 500; i++ {
		amount := int64(rng.Intn(6) + 1)
		if rng.Intn(2) == 0 {
			if _, err := svc.Credit(ctx, Mutation{UserID: 1, Amount: amount}); err != nil {
				t.Fatal(err)
			}
			want += amount
			continue
		}
		_, err := svc.Debit(ctx, Mutation{UserID: 1, Amount: amount})
		switch {
		case err == nil:
			want -= amount
		case errors.Is(err, ErrInsufficientCredit):
			if want >= amount {
				t.Fatalf("step %d: debit %d rejected with balance %d", i, amount, want)
			}
		default:
			t.Fatal(err)
		}
		bal, _ := svc.Balance(ctx, 1)
		if bal < 0 || bal != want {
			t.Fatalf("step %d: balance %d, model %d", i, bal, want)
		}
	}
}

func TestConcurrentDebitsStopAtZero(t *testing.T) {
	ctx := context.Background()
	svc, rec := newMemoryService(t, 1)
	if _, err := svc.Credit(ctx, Mutation{UserID: 1, Amount: 5}); err != nil {
		t.Fatal(err)
	}

	const attempts = 20
	start := make(chan struct{})
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Debit(ctx, Mutation{UserID: 1, Amount: 1})
			errs <- err
		}()
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
		if !errors.Is(err, ErrInsufficientCredit) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 5 {
		t.Fatalf("expected 5 successful debits, got %d", success)
	}
	if bal, _ := svc.Balance(ctx, 1); bal != 0 {
		t.Fatalf("balance = %d, want 0", bal)
	}
	if got := rec.Count(events.LedgerDebited); got != 5 {
		t.Fatalf("debit events = %d, want 5", got)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMemoryService(t, 1, 2)
	_, _ = svc.Credit(ctx, Mutation{UserID: 1, Amount: 10, Reference: TopUpRef("t1")})
	_, _ = svc.Credit(ctx, Mutation{UserID: 2, Amount: 4})
	_, _ = svc.Debit(ctx, Mutation{UserID: 1, Amount: 3, Reference: OrderRef("o1")})

	hist, err := svc.History(ctx, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(hist))
	}
	if hist[0].Kind != KindDebit || hist[0].BalanceAfter != 7 || hist[0].Reference != "order:o1" {
		t.Fatalf("unexpected newest entry %+v", hist[0])
	}
	if hist[1].Kind != KindCredit || hist[1].BalanceAfter != 10 {
		t.Fatalf("unexpected oldest entry %+v", hist[1])
	}
}
