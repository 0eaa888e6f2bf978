// README: Order service tests (state table, create idempotence, accept, cancel, resolve).
package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"caravan/internal/events"
	"caravan/internal/logging"
	"caravan/internal/modules/ledger"
	"caravan/internal/modules/user"
	"caravan/internal/types"
)

type memoryEnv struct {
	svc    *Service
	users  *user.MemoryStore
	ledger *ledger.MemoryStore
	events *events.Recorder
}

func newMemoryEnv(t *testing.T) *memoryEnv {
	t.Helper()
	users := user.NewMemoryStore()
	led := ledger.NewMemoryStore(users)
	rec := &events.Recorder{}
	return &memoryEnv{
		svc:    NewService(NewMemoryStore(led), rec, logging.Discard()),
		users:  users,
		ledger: led,
		events: rec,
	}
}

func (e *memoryEnv) driver(t *testing.T, id types.UserID, balance int64) {
	t.Helper()
	ctx := context.Background()
	if _, err := e.users.Ensure(ctx, &user.User{ID: id}); err != nil {
		t.Fatal(err)
	}
	if err := e.users.SetRole(ctx, id, user.RoleDriver); err != nil {
		t.Fatal(err)
	}
	if balance > 0 {
		if _, err := e.ledger.Credit(ctx, ledger.Mutation{UserID: id, Amount: balance}); err != nil {
			t.Fatal(err)
		}
	}
}

func taxiCommand(key string, requester types.UserID, passengers int) CreateCommand {
	return CreateCommand{
		SubmissionKey: key,
		Category:      CategoryTaxi,
		RequesterID:   requester,
		FullName:      "Aziz Karimov",
		Phone:         "+998901234567",
		From:          Location{Country: "UZ", Region: "tashkent", City: "Tashkent"},
		To:            Location{Country: "RU", Region: "moscow", City: "Moscow"},
		TravelDate:    "14.07.2025",
		Payload:       Payload{Passengers: passengers},
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusNone, StatusPending, true},
		{StatusPending, StatusAccepted, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusCancelled, true},
		// terminal states have no outgoing transitions
		{StatusAccepted, StatusPending, false},
		{StatusAccepted, StatusCancelled, false},
		{StatusRejected, StatusAccepted, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusAccepted, false},
		// no self loops
		{StatusPending, StatusPending, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	env := newMemoryEnv(t)
	cases := map[string]func(c *CreateCommand){
		"missing key":      func(c *CreateCommand) { c.SubmissionKey = "" },
		"unknown category": func(c *CreateCommand) { c.Category = "boat" },
		"no passengers":    func(c *CreateCommand) { c.Payload.Passengers = 0 },
		"no phone":         func(c *CreateCommand) { c.Phone = " " },
		"no requester":     func(c *CreateCommand) { c.RequesterID = 0 },
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			cmd := taxiCommand("k-"+name, 1, 2)
			mut(&cmd)
			if _, _, err := env.svc.Create(context.Background(), cmd); !errors.Is(err, ErrBadRequest) {
				t.Fatalf("expected ErrBadRequest, got %v", err)
			}
		})
	}
}

func TestCreateIsIdempotentPerSubmission(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()

	first, created, err := env.svc.Create(ctx, taxiCommand("sub-1", 1, 3))
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}
	second, created, err := env.svc.Create(ctx, taxiCommand("sub-1", 1, 3))
	if err != nil {
		t.Fatal(err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("duplicate submission produced a new order: %s vs %s", second.ID, first.ID)
	}
	list, _ := env.svc.ListByRequester(ctx, 1, 10)
	if len(list) != 1 {
		t.Fatalf("expected 1 order, got %d", len(list))
	}
	if got := env.events.Count(events.OrderCreated); got != 1 {
		t.Fatalf("created events = %d, want 1", got)
	}
}

func TestAcceptDebitsAndRecordsAcceptor(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	env.driver(t, 50, 5)

	o, _, err := env.svc.Create(ctx, taxiCommand("sub-acc", 1, 3))
	if err != nil {
		t.Fatal(err)
	}
	res, err := env.svc.Accept(ctx, AcceptCommand{OrderID: o.ID, ActorID: 50, Cost: 3, Charge: true})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if res.Order.Status != StatusAccepted || res.Order.AcceptedBy == nil || *res.Order.AcceptedBy != 50 {
		t.Fatalf("unexpected order %+v", res.Order)
	}
	if res.Entry == nil || res.Entry.BalanceAfter != 2 {
		t.Fatalf("unexpected ledger entry %+v", res.Entry)
	}

	evs, _ := env.svc.Events(ctx, o.ID)
	if len(evs) != 2 || evs[1].ToStatus != StatusAccepted {
		t.Fatalf("unexpected events %+v", evs)
	}
}

func TestAcceptInsufficientCreditLeavesPending(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	env.driver(t, 50, 2)

	o, _, _ := env.svc.Create(ctx, taxiCommand("sub-short", 1, 3))
	_, err := env.svc.Accept(ctx, AcceptCommand{OrderID: o.ID, ActorID: 50, Cost: 3, Charge: true})
	if !errors.Is(err, ledger.ErrInsufficientCredit) {
		t.Fatalf("expected ErrInsufficientCredit, got %v", err)
	}
	got, _ := env.svc.Get(ctx, o.ID)
	if got.Status != StatusPending || got.AcceptedBy != nil {
		t.Fatalf("order changed: %+v", got)
	}
	if bal, _ := env.ledger.Balance(ctx, 50); bal != 2 {
		t.Fatalf("balance = %d, want 2", bal)
	}
}

func TestAcceptWithoutChargeSkipsLedger(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	env.driver(t, 9, 0)

	o, _, _ := env.svc.Create(ctx, taxiCommand("sub-admin", 1, 4))
	res, err := env.svc.Accept(ctx, AcceptCommand{OrderID: o.ID, ActorID: 9, Cost: 4, Charge: false})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if res.Entry != nil {
		t.Fatalf("expected no ledger entry")
	}
}

func TestConcurrentAcceptExactlyOneWinner(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	const attempts = 10
	for i := 0; i < attempts; i++ {
		env.driver(t, types.UserID(100+i), 5)
	}
	o, _, err := env.svc.Create(ctx, taxiCommand("sub-race", 1, 3))
	if err != nil {
		t.Fatal(err)
	}

	start := make(chan struct{})
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(did types.UserID) {
			defer wg.Done()
			<-start
			_, err := env.svc.Accept(ctx, AcceptCommand{OrderID: o.ID, ActorID: did, Cost: 3, Charge: true})
			errs <- err
		}(types.UserID(100 + i))
	}
	close(start)
	wg.Wait()
	close(errs)

	success, lost := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrAlreadyAccepted):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 || lost != attempts-1 {
		t.Fatalf("success=%d lost=%d", success, lost)
	}

	got, _ := env.svc.Get(ctx, o.ID)
	if got.AcceptedBy == nil {
		t.Fatalf("accepted_by not set")
	}
	var total int64
	for i := 0; i < attempts; i++ {
		bal, _ := env.ledger.Balance(ctx, types.UserID(100+i))
		total += bal
		if types.UserID(100+i) == *got.AcceptedBy && bal != 2 {
			t.Fatalf("winner balance = %d, want 2", bal)
		}
	}
	if total != attempts*5-3 {
		t.Fatalf("total balance = %d, exactly one debit expected", total)
	}
}

func TestCancel(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	o, _, _ := env.svc.Create(ctx, taxiCommand("sub-cancel", 1, 1))

	if _, err := env.svc.Cancel(ctx, CancelCommand{OrderID: o.ID, RequesterID: 2}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	got, err := env.svc.Cancel(ctx, CancelCommand{OrderID: o.ID, RequesterID: 1})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Fatalf("status = %s", got.Status)
	}
	if _, err := env.svc.Cancel(ctx, CancelCommand{OrderID: o.ID, RequesterID: 1}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second cancel: expected ErrInvalidState, got %v", err)
	}
	env.driver(t, 50, 5)
	if _, err := env.svc.Accept(ctx, AcceptCommand{OrderID: o.ID, ActorID: 50, Cost: 1, Charge: true}); !errors.Is(err, ErrAlreadyAccepted) {
		t.Fatalf("accept after cancel: expected ErrAlreadyAccepted, got %v", err)
	}
	if bal, _ := env.ledger.Balance(ctx, 50); bal != 5 {
		t.Fatalf("balance changed after rejected accept: %d", bal)
	}
}

func TestResolveTicket(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	cmd := taxiCommand("sub-ticket", 1, 0)
	cmd.Category = CategoryFlightTicket
	cmd.Payload = Payload{PassportPhoto: "file-1"}
	o, _, err := env.svc.Create(ctx, cmd)
	if err != nil {
		t.Fatal(err)
	}

	rejected, err := env.svc.Resolve(ctx, ResolveCommand{OrderID: o.ID, ModeratorID: 9, Approve: false, Reason: "no seats"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rejected.Status != StatusRejected || rejected.Reason != "no seats" {
		t.Fatalf("unexpected order %+v", rejected)
	}
	if _, err := env.svc.Resolve(ctx, ResolveCommand{OrderID: o.ID, ModeratorID: 9, Approve: true}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	taxi, _, _ := env.svc.Create(ctx, taxiCommand("sub-not-ticket", 1, 1))
	if _, err := env.svc.Resolve(ctx, ResolveCommand{OrderID: taxi.ID, ModeratorID: 9, Approve: true}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for taxi, got %v", err)
	}
}

func TestListByRequesterLimit(t *testing.T) {
	env := newMemoryEnv(t)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		if _, _, err := env.svc.Create(ctx, taxiCommand(fmt.Sprintf("sub-%d", i), 1, 1)); err != nil {
			t.Fatal(err)
		}
	}
	list, err := env.svc.ListByRequester(ctx, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 10 {
		t.Fatalf("expected default limit 10, got %d", len(list))
	}
}
