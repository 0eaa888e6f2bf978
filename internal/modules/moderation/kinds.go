package moderation

import (
	"context"
	"errors"

	"caravan/internal/i18n"
	"caravan/internal/modules/order"
	"caravan/internal/modules/user"
	"caravan/internal/render"
	"caravan/internal/types"
)

func (w *Workflow) applicationHandler() handler {
	return handler{
		load: func(ctx context.Context, id types.ID) (view, error) {
			a, err := w.store.GetApplication(ctx, id)
			if err != nil {
				return view{}, err
			}
			return w.applicationView(a), nil
		},
		approve: func(ctx context.Context, id types.ID, mod types.UserID) (view, error) {
			a, err := w.store.ApproveApplication(ctx, id, mod)
			if err != nil {
				return view{}, err
			}
			return w.applicationView(a), nil
		},
		reject: func(ctx context.Context, id types.ID, mod types.UserID, reason string) (view, error) {
			a, err := w.store.RejectApplication(ctx, id, mod, reason)
			if err != nil {
				return view{}, err
			}
			return w.applicationView(a), nil
		},
	}
}

func (w *Workflow) applicationView(a *DriverApplication) view {
	params := i18n.Params{
		"direction": a.Direction,
		"name":      a.FullName,
		"phone":     a.Phone,
		"car":       a.CarModel,
		"number":    a.CarNumber,
		"year":      a.CarYear,
		"capacity":  a.Capacity,
		"user":      a.ApplicantID.String(),
	}
	return view{
		Request: a.Request(),
		Card: func(lang string) string {
			p := i18n.Params{"direction_name": w.render.T(lang, "direction."+a.Direction, nil)}
			for k, v := range params {
				p[k] = v
			}
			return w.render.T(lang, "mod.driver.card", p)
		},
		Photos: []photo{
			{Label: "doc.passport", FileRef: a.PassportPhoto},
			{Label: "doc.sts", FileRef: a.STSPhoto},
			{Label: "doc.license", FileRef: a.LicensePhoto},
			{Label: "doc.car", FileRef: a.CarPhoto},
		},
		Params: params,
	}
}

func (w *Workflow) topUpHandler() handler {
	return handler{
		load: func(ctx context.Context, id types.ID) (view, error) {
			t, err := w.store.GetTopUp(ctx, id)
			if err != nil {
				return view{}, err
			}
			return w.topUpView(t, w.driver(ctx, t.DriverID)), nil
		},
		approve: func(ctx context.Context, id types.ID, mod types.UserID) (view, error) {
			t, entry, err := w.store.ApproveTopUp(ctx, id, mod)
			if err != nil {
				return view{}, err
			}
			w.journal.Announce(ctx, *entry)
			v := w.topUpView(t, w.driver(ctx, t.DriverID))
			v.Params["balance"] = entry.BalanceAfter
			return v, nil
		},
		reject: func(ctx context.Context, id types.ID, mod types.UserID, reason string) (view, error) {
			t, err := w.store.RejectTopUp(ctx, id, mod, reason)
			if err != nil {
				return view{}, err
			}
			return w.topUpView(t, w.driver(ctx, t.DriverID)), nil
		},
	}
}

// driver loads the submitter for display. A missing user renders with the id only.
func (w *Workflow) driver(ctx context.Context, id types.UserID) *user.User {
	u, err := w.users.Get(ctx, id)
	if err != nil {
		return &user.User{ID: id}
	}
	return u
}

func (w *Workflow) topUpView(t *TopUpRequest, u *user.User) view {
	params := i18n.Params{
		"amount": t.Amount,
		"user":   t.DriverID.String(),
		"name":   u.FullName,
		"phone":  u.Phone,
	}
	return view{
		Request: t.Request(),
		Card: func(lang string) string {
			return w.render.T(lang, "mod.topup.card", params)
		},
		Photos: []photo{{Label: "doc.payment", FileRef: t.ProofRef}},
		Params: params,
	}
}

func (w *Workflow) ticketHandler() handler {
	resolve := func(ctx context.Context, id types.ID, mod types.UserID, approve bool, reason string) (view, error) {
		o, err := w.tickets.Resolve(ctx, order.ResolveCommand{OrderID: id, ModeratorID: mod, Approve: approve, Reason: reason})
		if err != nil {
			return view{}, ticketError(err)
		}
		return w.ticketView(o), nil
	}
	return handler{
		load: func(ctx context.Context, id types.ID) (view, error) {
			o, err := w.tickets.Get(ctx, id)
			if err != nil {
				return view{}, ticketError(err)
			}
			if !o.Category.Ticket() {
				return view{}, ErrNotFound
			}
			return w.ticketView(o), nil
		},
		approve: func(ctx context.Context, id types.ID, mod types.UserID) (view, error) {
			return resolve(ctx, id, mod, true, "")
		},
		reject: func(ctx context.Context, id types.ID, mod types.UserID, reason string) (view, error) {
			return resolve(ctx, id, mod, false, reason)
		},
		replies: true,
	}
}

// ticketError maps order lifecycle errors onto moderation ones.
func ticketError(err error) error {
	switch {
	case errors.Is(err, order.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, order.ErrInvalidState), errors.Is(err, order.ErrConflict):
		return ErrAlreadyResolved
	case errors.Is(err, order.ErrBadRequest):
		return ErrBadRequest
	}
	return err
}

func ticketStatus(s order.Status) Status {
	switch s {
	case order.StatusPending:
		return StatusPending
	case order.StatusAccepted:
		return StatusApproved
	}
	return StatusRejected
}

func (w *Workflow) ticketView(o *order.Order) view {
	return view{
		Request: Request{
			Kind:      KindTicket,
			ID:        o.ID,
			Submitter: o.RequesterID,
			Status:    ticketStatus(o.Status),
			Reason:    o.Reason,
			CreatedAt: o.CreatedAt,
		},
		Card: func(lang string) string {
			return w.render.T(lang, "mod.ticket.card", nil) + "\n\n" + w.render.Order(lang, o, render.Full)
		},
		Photos: []photo{{Label: "doc.passport", FileRef: o.Payload.PassportPhoto}},
		Params: i18n.Params{"category": string(o.Category), "date": o.TravelDate},
	}
}
