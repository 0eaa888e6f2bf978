package moderation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"caravan/internal/action"
	"caravan/internal/events"
	"caravan/internal/gateway/gatewaytest"
	"caravan/internal/i18n"
	"caravan/internal/logging"
	"caravan/internal/modules/geo"
	"caravan/internal/modules/ledger"
	"caravan/internal/modules/order"
	"caravan/internal/modules/user"
	"caravan/internal/notify"
	"caravan/internal/render"
	"caravan/internal/types"
)

const (
	adminChat types.ChatID = -1001
	moderator types.UserID = 1
	driverID  types.UserID = 2
	customer  types.UserID = 3
)

type env struct {
	wf     *Workflow
	users  *user.MemoryStore
	ledger *ledger.Service
	orders *order.Service
	gw     *gatewaytest.Recorder
	events *events.Recorder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	log := logging.Discard()
	users := user.NewMemoryStore()
	for id, role := range map[types.UserID]user.Role{moderator: user.RoleAdmin, driverID: user.RoleDriver, customer: user.RoleCustomer} {
		if _, err := users.Ensure(ctx, &user.User{ID: id, Language: "en"}); err != nil {
			t.Fatal(err)
		}
		if err := users.SetRole(ctx, id, role); err != nil {
			t.Fatal(err)
		}
	}
	rec := &events.Recorder{}
	ledStore := ledger.NewMemoryStore(users)
	led := ledger.NewService(ledStore, rec, log)
	orders := order.NewService(order.NewMemoryStore(ledStore), rec, log)

	texts := i18n.MustLoadEmbedded("en")
	catalog, err := geo.Default("en")
	if err != nil {
		t.Fatal(err)
	}
	gw := gatewaytest.New()
	n := notify.New(gw, texts, adminChat, log)
	wf := NewWorkflow(NewMemoryStore(users, ledStore), users, orders, led, n, render.New(texts, catalog), rec, log)
	return &env{wf: wf, users: users, ledger: led, orders: orders, gw: gw, events: rec}
}

func (e *env) topUp(t *testing.T, key string, amount int64) *TopUpRequest {
	t.Helper()
	req, created, err := e.wf.SubmitTopUp(context.Background(), TopUpCommand{
		SubmissionKey: key,
		DriverID:      driverID,
		Amount:        amount,
		ProofRef:      "file-proof",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatalf("expected a new request")
	}
	return req
}

func applicationCommand(key string, applicant types.UserID) ApplicationCommand {
	return ApplicationCommand{
		SubmissionKey: key,
		ApplicantID:   applicant,
		Direction:     DirectionTaxi,
		FullName:      "Bobur Aliyev",
		Phone:         "+998901112233",
		PassportPhoto: "file-passport",
		STSPhoto:      "file-sts",
		LicensePhoto:  "file-license",
		CarModel:      "Chevrolet Cobalt",
		CarNumber:     "01 a 123 bc",
		CarYear:       2019,
		Capacity:      4,
		CarPhoto:      "file-car",
	}
}

func TestTopUpApprovedExactlyOnce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	req := e.topUp(t, "k1", 50)

	card, ok := e.gw.Last(adminChat)
	if !ok || card.Op != gatewaytest.OpPhoto || card.FileRef != "file-proof" {
		t.Fatalf("expected proof photo card in admin channel, got %+v", card)
	}
	want := action.NewKind(action.Approve, action.KindTopUp, string(req.ID)).String()
	found := false
	for _, a := range card.Actions() {
		found = found || a == want
	}
	if !found {
		t.Fatalf("card actions %v miss %s", card.Actions(), want)
	}

	res, err := e.wf.Approve(ctx, Decision{Kind: KindTopUp, ID: req.ID, ModeratorID: moderator, Card: card.Ref})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusApproved {
		t.Fatalf("status = %s", res.Status)
	}
	if bal, _ := e.ledger.Balance(ctx, driverID); bal != 50 {
		t.Fatalf("balance = %d, want 50", bal)
	}
	if !e.gw.Contains(driverID.Chat(), "50") {
		t.Fatalf("driver was not told about the credit")
	}

	_, err = e.wf.Approve(ctx, Decision{Kind: KindTopUp, ID: req.ID, ModeratorID: moderator})
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("second approve: expected ErrAlreadyResolved, got %v", err)
	}
	if bal, _ := e.ledger.Balance(ctx, driverID); bal != 50 {
		t.Fatalf("balance after second approve = %d", bal)
	}
	if got := e.events.Count(events.LedgerCredited); got != 1 {
		t.Fatalf("ledger credited events = %d", got)
	}
}

func TestConcurrentApprovalsCreditOnce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	req := e.topUp(t, "k1", 50)

	const n = 10
	var wg sync.WaitGroup
	start := make(chan struct{})
	var mu sync.Mutex
	success, resolved := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := e.wf.Approve(ctx, Decision{Kind: KindTopUp, ID: req.ID, ModeratorID: moderator})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrAlreadyResolved):
				resolved++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if success != 1 || resolved != n-1 {
		t.Fatalf("success=%d resolved=%d", success, resolved)
	}
	if bal, _ := e.ledger.Balance(ctx, driverID); bal != 50 {
		t.Fatalf("balance = %d, want 50", bal)
	}
}

func TestOnlyAdminsResolve(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	req := e.topUp(t, "k1", 5)

	for _, actor := range []types.UserID{driverID, customer, 999} {
		_, err := e.wf.Approve(ctx, Decision{Kind: KindTopUp, ID: req.ID, ModeratorID: actor})
		if !errors.Is(err, ErrPermission) {
			t.Fatalf("actor %d: expected ErrPermission, got %v", actor, err)
		}
	}
	got, err := e.wf.Get(ctx, KindTopUp, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Pending() {
		t.Fatalf("request must stay pending, got %s", got.Status)
	}
}

func TestRejectTopUpNotifiesReason(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	req := e.topUp(t, "k1", 5)

	if _, err := e.wf.Reject(ctx, Decision{Kind: KindTopUp, ID: req.ID, ModeratorID: moderator, Reason: "  "}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("blank reason: expected ErrBadRequest, got %v", err)
	}
	res, err := e.wf.Reject(ctx, Decision{Kind: KindTopUp, ID: req.ID, ModeratorID: moderator, Reason: "blurry screenshot"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusRejected {
		t.Fatalf("status = %s", res.Status)
	}
	if !e.gw.Contains(driverID.Chat(), "blurry screenshot") {
		t.Fatalf("driver did not get the reason")
	}
	if bal, _ := e.ledger.Balance(ctx, driverID); bal != 0 {
		t.Fatalf("rejected top-up changed balance to %d", bal)
	}
	if _, err := e.wf.Approve(ctx, Decision{Kind: KindTopUp, ID: req.ID, ModeratorID: moderator}); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("approve after reject: %v", err)
	}
}

func TestSubmitTopUpRequiresDriver(t *testing.T) {
	e := newEnv(t)
	_, _, err := e.wf.SubmitTopUp(context.Background(), TopUpCommand{SubmissionKey: "k", DriverID: customer, Amount: 5, ProofRef: "f"})
	if !errors.Is(err, ErrNotDriver) {
		t.Fatalf("expected ErrNotDriver, got %v", err)
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	first, created, err := e.wf.SubmitApplication(ctx, applicationCommand("same", customer))
	if err != nil || !created {
		t.Fatalf("first submit: created=%v err=%v", created, err)
	}
	again, created, err := e.wf.SubmitApplication(ctx, applicationCommand("same", customer))
	if err != nil {
		t.Fatal(err)
	}
	if created || again.ID != first.ID {
		t.Fatalf("duplicate submit created a second application")
	}
	if got := len(e.gw.To(adminChat)); got != 1 {
		t.Fatalf("admin cards = %d, want 1", got)
	}
}

func TestApplicationApprovalPromotes(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	app, _, err := e.wf.SubmitApplication(ctx, applicationCommand("a1", customer))
	if err != nil {
		t.Fatal(err)
	}
	if app.CarNumber != "01 A 123 BC" {
		t.Fatalf("car number not normalized: %q", app.CarNumber)
	}
	if _, err := e.wf.Approve(ctx, Decision{Kind: KindDriverApplication, ID: app.ID, ModeratorID: moderator}); err != nil {
		t.Fatal(err)
	}
	u, err := e.users.Get(ctx, customer)
	if err != nil {
		t.Fatal(err)
	}
	if u.Role != user.RoleDriver || u.Direction != DirectionTaxi || u.CarModel != "Chevrolet Cobalt" {
		t.Fatalf("user not promoted: %+v", u)
	}
	if _, _, err := e.wf.SubmitApplication(ctx, applicationCommand("a2", customer)); !errors.Is(err, ErrAlreadyDriver) {
		t.Fatalf("expected ErrAlreadyDriver, got %v", err)
	}
}

func TestApplicationValidation(t *testing.T) {
	e := newEnv(t)
	cases := map[string]func(c *ApplicationCommand){
		"direction":  func(c *ApplicationCommand) { c.Direction = "bus" },
		"photo":      func(c *ApplicationCommand) { c.LicensePhoto = "" },
		"capacity":   func(c *ApplicationCommand) { c.Capacity = 0 },
		"year":       func(c *ApplicationCommand) { c.CarYear = 1800 },
		"blank name": func(c *ApplicationCommand) { c.FullName = "  " },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cmd := applicationCommand("v-"+name, customer)
			mutate(&cmd)
			if _, _, err := e.wf.SubmitApplication(context.Background(), cmd); !errors.Is(err, ErrBadRequest) {
				t.Fatalf("expected ErrBadRequest, got %v", err)
			}
		})
	}
}

func TestViewSendsDocuments(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	app, _, err := e.wf.SubmitApplication(ctx, applicationCommand("a1", customer))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.wf.View(ctx, KindDriverApplication, app.ID, moderator); err != nil {
		t.Fatal(err)
	}
	photos := 0
	for _, c := range e.gw.To(moderator.Chat()) {
		if c.Op == gatewaytest.OpPhoto {
			photos++
		}
	}
	if photos != 4 {
		t.Fatalf("document photos = %d, want 4", photos)
	}
}

func TestTicketModeration(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	o, _, err := e.orders.Create(ctx, order.CreateCommand{
		SubmissionKey: "t1",
		Category:      order.CategoryFlightTicket,
		RequesterID:   customer,
		FullName:      "Dilnoza",
		Phone:         "+998907776655",
		From:          order.Location{Country: "UZ"},
		To:            order.Location{Country: "RU"},
		TravelDate:    "01.08.2030",
		Payload:       order.Payload{PassportPhoto: "file-passport"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.wf.SubmitTicket(ctx, o); err != nil {
		t.Fatal(err)
	}
	card, _ := e.gw.Last(adminChat)
	reply := action.NewKind(action.Reply, action.KindTicket, string(o.ID)).String()
	hasReply := false
	for _, a := range card.Actions() {
		hasReply = hasReply || a == reply
	}
	if !hasReply {
		t.Fatalf("ticket card lacks reply action: %v", card.Actions())
	}

	if err := e.wf.Reply(ctx, ReplyCommand{Kind: KindTicket, ID: o.ID, ModeratorID: moderator, Text: "Seats left only in business"}); err != nil {
		t.Fatal(err)
	}
	if !e.gw.Contains(customer.Chat(), "Seats left only in business") {
		t.Fatalf("reply not delivered")
	}

	if _, err := e.wf.Approve(ctx, Decision{Kind: KindTicket, ID: o.ID, ModeratorID: moderator}); err != nil {
		t.Fatal(err)
	}
	got, _ := e.orders.Get(ctx, o.ID)
	if got.Status != order.StatusAccepted || got.AcceptedBy == nil || *got.AcceptedBy != moderator {
		t.Fatalf("ticket not accepted by moderator: %+v", got)
	}
	if _, err := e.wf.Reject(ctx, Decision{Kind: KindTicket, ID: o.ID, ModeratorID: moderator, Reason: "late"}); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("reject after approve: %v", err)
	}
}

func TestReplyOnlyForTickets(t *testing.T) {
	e := newEnv(t)
	req := e.topUp(t, "k1", 5)
	err := e.wf.Reply(context.Background(), ReplyCommand{Kind: KindTopUp, ID: req.ID, ModeratorID: moderator, Text: "hi"})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestUnknownRequest(t *testing.T) {
	e := newEnv(t)
	_, err := e.wf.Approve(context.Background(), Decision{Kind: KindTopUp, ID: types.NewID(), ModeratorID: moderator})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := e.wf.Get(context.Background(), Kind("bogus"), types.NewID()); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}
