package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"caravan/internal/config"
	"caravan/internal/events"
	"caravan/internal/gateway"
	"caravan/internal/gateway/gatewaytest"
	"caravan/internal/i18n"
	"caravan/internal/logging"
	"caravan/internal/modules/geo"
	"caravan/internal/modules/order"
	"caravan/internal/modules/pricing"
	"caravan/internal/render"
	"caravan/internal/types"
)

const customer types.UserID = 42

type engineEnv struct {
	engine   *Engine
	orders   *order.Service
	sessions *MemorySessionStore
	gw       *gatewaytest.Recorder
	fail     error
}

func newEngineEnv(t *testing.T) *engineEnv {
	t.Helper()
	log := logging.Discard()
	catalog, err := geo.Default("en")
	if err != nil {
		t.Fatal(err)
	}
	prices := pricing.NewService(pricing.NewMemoryStore(), config.PricingConfig{TaxiPerPassenger: 1, ParcelFlat: 1, CargoFlat: 1})
	env := &engineEnv{
		orders:   order.NewService(order.NewMemoryStore(nil), &events.Recorder{}, log),
		sessions: NewMemorySessionStore(time.Hour),
		gw:       gatewaytest.New(),
	}
	submit := SubmitFunc(func(ctx context.Context, sub Submission) (Receipt, error) {
		if env.fail != nil {
			return Receipt{}, env.fail
		}
		cmd, err := OrderCommand(sub.Flow, sub.UserID, sub.SubmissionKey, sub.Draft)
		if err != nil {
			return Receipt{}, err
		}
		if cmd.Cost, err = prices.Cost(ctx, cmd.Category, cmd.Payload.Passengers); err != nil {
			return Receipt{}, err
		}
		o, _, err := env.orders.Create(ctx, cmd)
		if err != nil {
			return Receipt{}, err
		}
		return Receipt{Key: "receipt.order", Params: i18n.Params{"category": string(o.Category)}}, nil
	})
	machine := NewMachine(catalog, func() time.Time { return fixedNow })
	r := render.New(i18n.MustLoadEmbedded("en"), catalog)
	env.engine = NewEngine(machine, env.sessions, submit, env.gw, r, prices, log)
	return env
}

func (e *engineEnv) feed(t *testing.T, ev gateway.InboundEvent) Outcome {
	t.Helper()
	out, err := e.engine.HandleEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("handle %s %q%q: %v", ev.Kind, ev.Text, ev.Action, err)
	}
	return out
}

// fillTaxi walks a taxi order from Chirchiq to Moscow up to the confirm step.
func (e *engineEnv) fillTaxi(t *testing.T) {
	t.Helper()
	if err := e.engine.Start(context.Background(), customer, "en", FlowTaxi, nil); err != nil {
		t.Fatal(err)
	}
	for _, ev := range []gateway.InboundEvent{
		gateway.Text(customer, "Aziz Karimov"),
		gateway.Contact(customer, "+998 90 123 45 67"),
		gateway.Press(customer, "country_UZ"),
		gateway.Press(customer, "region_tashkent"),
		gateway.Press(customer, "city_chirchiq"),
		gateway.Press(customer, "country_RU"),
		gateway.Press(customer, "region_moscow"),
		gateway.Press(customer, "city_moscow"),
		gateway.Text(customer, "14.07.2025"),
		gateway.Press(customer, "pick_3"),
		gateway.Press(customer, "skip_comment"),
	} {
		if out := e.feed(t, ev); out.Invalid != nil {
			t.Fatalf("input %q%q rejected: %v", ev.Text, ev.Action, out.Invalid)
		}
	}
}

func TestTaxiRoundTripCreatesPricedOrder(t *testing.T) {
	env := newEngineEnv(t)
	env.fillTaxi(t)

	confirm, ok := env.gw.Last(customer.Chat())
	if !ok {
		t.Fatal("no confirm prompt")
	}
	for _, want := range []string{"Chirchiq, Uzbekistan", "Moscow, Russia", "Passengers: 3", "Comment: -", "Cost: 3"} {
		if !strings.Contains(confirm.Text, want) {
			t.Errorf("summary missing %q:\n%s", want, confirm.Text)
		}
	}
	if got := confirm.Actions(); len(got) == 0 || got[0] != "confirm_taxi" {
		t.Fatalf("confirm keyboard = %v", got)
	}

	out := env.feed(t, gateway.Press(customer, "confirm_taxi"))
	if !out.Submitted || !out.Ended {
		t.Fatalf("outcome = %+v", out)
	}
	list, err := env.orders.ListByRequester(context.Background(), customer, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one order, got %d", len(list))
	}
	o := list[0]
	if o.Category != order.CategoryTaxi || o.Cost != 3 || o.Payload.Passengers != 3 || o.Payload.Comment != "" {
		t.Fatalf("order = %+v", o)
	}
	if o.From.City != "chirchiq" || o.To.Country != "RU" || o.Phone != "+998901234567" {
		t.Fatalf("route = %+v -> %+v", o.From, o.To)
	}
	if _, active, _ := env.engine.Active(context.Background(), customer); active {
		t.Fatal("session must be closed after submit")
	}
}

func TestDuplicateConfirmCreatesOneOrder(t *testing.T) {
	env := newEngineEnv(t)
	env.fillTaxi(t)
	ctx := context.Background()
	stale, ok, err := env.sessions.Load(ctx, customer)
	if err != nil || !ok {
		t.Fatalf("load: %v %v", ok, err)
	}

	env.feed(t, gateway.Press(customer, "confirm_taxi"))

	// A second press after the session closed is not handled at all.
	if out := env.feed(t, gateway.Press(customer, "confirm_taxi")); out.Handled {
		t.Fatalf("late confirm handled: %+v", out)
	}

	// A confirm racing the first one still carries the same submission key.
	if err := env.sessions.Save(ctx, customer, stale); err != nil {
		t.Fatal(err)
	}
	if out := env.feed(t, gateway.Press(customer, "confirm_taxi")); !out.Submitted {
		t.Fatalf("outcome = %+v", out)
	}

	list, err := env.orders.ListByRequester(ctx, customer, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one order, got %d", len(list))
	}
}

func TestFailedSubmitKeepsSession(t *testing.T) {
	env := newEngineEnv(t)
	env.fillTaxi(t)
	env.fail = errors.New("database down")

	_, err := env.engine.HandleEvent(context.Background(), gateway.Press(customer, "confirm_taxi"))
	if !errors.Is(err, env.fail) {
		t.Fatalf("err = %v", err)
	}
	s, active, _ := env.engine.Active(context.Background(), customer)
	if !active || s.Step != 7 {
		t.Fatalf("session after failure: active=%v step=%d", active, s.Step)
	}

	env.fail = nil
	if out := env.feed(t, gateway.Press(customer, "confirm_taxi")); !out.Submitted {
		t.Fatalf("retry outcome = %+v", out)
	}
}

func TestInvalidInputReprompts(t *testing.T) {
	env := newEngineEnv(t)
	if err := env.engine.Start(context.Background(), customer, "en", FlowTaxi, nil); err != nil {
		t.Fatal(err)
	}
	env.feed(t, gateway.Text(customer, "Aziz"))
	out := env.feed(t, gateway.Text(customer, "not a phone"))
	if !errors.Is(out.Invalid, ErrValidation) {
		t.Fatalf("invalid = %v", out.Invalid)
	}
	s, _, _ := env.engine.Active(context.Background(), customer)
	if s.Step != 1 || s.Draft["name"] != "Aziz" {
		t.Fatalf("state = %+v", s)
	}
}

func TestCancelClosesSession(t *testing.T) {
	env := newEngineEnv(t)
	if err := env.engine.Start(context.Background(), customer, "en", FlowParcel, nil); err != nil {
		t.Fatal(err)
	}
	out := env.feed(t, gateway.Press(customer, "cancel"))
	if !out.Ended || out.Submitted {
		t.Fatalf("outcome = %+v", out)
	}
	if _, active, _ := env.engine.Active(context.Background(), customer); active {
		t.Fatal("session still active")
	}
}

func TestNoSessionIsNotHandled(t *testing.T) {
	env := newEngineEnv(t)
	if out := env.feed(t, gateway.Text(customer, "hello")); out.Handled {
		t.Fatalf("outcome = %+v", out)
	}
	if len(env.gw.Calls()) != 0 {
		t.Fatal("nothing should be sent")
	}
}

func TestMemorySessionExpires(t *testing.T) {
	store := NewMemorySessionStore(time.Minute)
	now := fixedNow
	store.now = func() time.Time { return now }
	ctx := context.Background()
	if err := store.Save(ctx, customer, SessionState{Flow: FlowTaxi, Draft: Draft{"name": "A"}}); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Load(ctx, customer); !ok {
		t.Fatal("fresh session missing")
	}
	now = now.Add(2 * time.Minute)
	if _, ok, _ := store.Load(ctx, customer); ok {
		t.Fatal("expired session returned")
	}
}
