package bot

import (
	"context"
	"log/slog"
	"strconv"

	"caravan/internal/conversation"
	"caravan/internal/i18n"
	"caravan/internal/modules/moderation"
	"caravan/internal/modules/order"
	"caravan/internal/types"
)

// submit turns a confirmed draft into a record. Refusals the user cannot fix by retrying
// close the session with a notice; anything else keeps the session for another confirm.
func (r *Router) submit(ctx context.Context, sub conversation.Submission) (conversation.Receipt, error) {
	var (
		receipt conversation.Receipt
		err     error
	)
	switch sub.Flow {
	case conversation.FlowDriver:
		receipt, err = r.submitApplication(ctx, sub)
	case conversation.FlowTopUp:
		receipt, err = r.submitTopUp(ctx, sub)
	case conversation.FlowRejectReason:
		receipt, err = r.submitRejection(ctx, sub)
	case conversation.FlowTicketReply:
		receipt, err = r.submitReply(ctx, sub)
	default:
		receipt, err = r.submitOrder(ctx, sub)
	}
	if err != nil && final(err) {
		r.log.Info("submission refused", slog.String("flow", string(sub.Flow)), slog.Int64("user", int64(sub.UserID)), slog.Any("err", err))
		return conversation.Receipt{Key: noticeKey(err)}, nil
	}
	return receipt, err
}

func final(err error) bool {
	return isAny(err,
		order.ErrBadRequest,
		moderation.ErrBadRequest,
		moderation.ErrNotDriver,
		moderation.ErrAlreadyDriver,
		moderation.ErrAlreadyResolved,
		moderation.ErrPermission,
		moderation.ErrNotFound,
		moderation.ErrUnknownKind,
		conversation.ErrUnknownFlow,
	)
}

func (r *Router) submitOrder(ctx context.Context, sub conversation.Submission) (conversation.Receipt, error) {
	cmd, err := conversation.OrderCommand(sub.Flow, sub.UserID, sub.SubmissionKey, sub.Draft)
	if err != nil {
		return conversation.Receipt{}, err
	}
	if cmd.Category.Dispatched() {
		quantity := (&order.Order{Category: cmd.Category, Payload: cmd.Payload}).Quantity()
		if cmd.Cost, err = r.prices.Cost(ctx, cmd.Category, quantity); err != nil {
			return conversation.Receipt{}, err
		}
	}
	o, created, err := r.orders.Create(ctx, cmd)
	if err != nil {
		return conversation.Receipt{}, err
	}
	if !created {
		return conversation.Receipt{Key: "receipt.duplicate"}, nil
	}
	if err := r.users.SetContact(ctx, sub.UserID, cmd.FullName, cmd.Phone); err != nil {
		r.log.Warn("store contact", slog.Int64("user", int64(sub.UserID)), slog.Any("err", err))
	}
	params := i18n.Params{"category": r.render.Category(sub.Lang, o.Category)}
	if o.Category.Ticket() {
		if err := r.moderation.SubmitTicket(ctx, o); err != nil {
			r.log.Error("post ticket", slog.String("order_id", string(o.ID)), slog.Any("err", err))
		}
		return conversation.Receipt{Key: "receipt.ticket", Params: params}, nil
	}
	// The order is committed; a failed broadcast is logged and the requester still gets a receipt.
	if err := r.dispatch.Broadcast(ctx, o); err != nil {
		r.log.Error("broadcast order", slog.String("order_id", string(o.ID)), slog.Any("err", err))
	}
	return conversation.Receipt{Key: "receipt.order", Params: params}, nil
}

func (r *Router) submitApplication(ctx context.Context, sub conversation.Submission) (conversation.Receipt, error) {
	_, created, err := r.moderation.SubmitApplication(ctx, conversation.ApplicationCommand(sub.UserID, sub.SubmissionKey, sub.Draft))
	if err != nil {
		return conversation.Receipt{}, err
	}
	if !created {
		return conversation.Receipt{Key: "receipt.duplicate"}, nil
	}
	return conversation.Receipt{Key: "receipt.driver"}, nil
}

func (r *Router) submitTopUp(ctx context.Context, sub conversation.Submission) (conversation.Receipt, error) {
	t, created, err := r.moderation.SubmitTopUp(ctx, conversation.TopUpCommand(sub.UserID, sub.SubmissionKey, sub.Draft))
	if err != nil {
		return conversation.Receipt{}, err
	}
	if !created {
		return conversation.Receipt{Key: "receipt.duplicate"}, nil
	}
	return conversation.Receipt{Key: "receipt.topup", Params: i18n.Params{"amount": t.Amount}}, nil
}

func (r *Router) submitRejection(ctx context.Context, sub conversation.Submission) (conversation.Receipt, error) {
	d := sub.Draft
	_, err := r.moderation.Reject(ctx, moderation.Decision{
		Kind:        moderation.Kind(d[conversation.KeyTargetKind]),
		ID:          types.ID(d[conversation.KeyTargetID]),
		ModeratorID: sub.UserID,
		Reason:      d["reason"],
		Card:        cardRef(d),
	})
	if err != nil {
		return conversation.Receipt{}, err
	}
	return conversation.Receipt{Key: "receipt.rejected"}, nil
}

func (r *Router) submitReply(ctx context.Context, sub conversation.Submission) (conversation.Receipt, error) {
	d := sub.Draft
	err := r.moderation.Reply(ctx, moderation.ReplyCommand{
		Kind:        moderation.Kind(d[conversation.KeyTargetKind]),
		ID:          types.ID(d[conversation.KeyTargetID]),
		ModeratorID: sub.UserID,
		Text:        d["reply"],
	})
	if err != nil {
		return conversation.Receipt{}, err
	}
	return conversation.Receipt{Key: "receipt.reply"}, nil
}

// cardRef restores the moderation card recorded when the sub-conversation started.
func cardRef(d conversation.Draft) types.MessageRef {
	chat, err := strconv.ParseInt(d[conversation.KeyCardChat], 10, 64)
	if err != nil {
		return types.MessageRef{}
	}
	msg, err := strconv.Atoi(d[conversation.KeyCardMessage])
	if err != nil {
		return types.MessageRef{}
	}
	return types.MessageRef{ChatID: types.ChatID(chat), MessageID: msg}
}
