package bot

import (
	"errors"

	"caravan/internal/action"
	"caravan/internal/conversation"
	"caravan/internal/dispatch"
	"caravan/internal/gateway"
	"caravan/internal/modules/ledger"
	"caravan/internal/modules/moderation"
	"caravan/internal/modules/order"
	"caravan/internal/modules/pricing"
	"caravan/internal/modules/user"
)

// noticeKey maps an error to the text key shown to the user who caused it.
func noticeKey(err error) string {
	switch {
	case err == nil:
		return "notice.done"
	case errors.Is(err, order.ErrAlreadyAccepted):
		return "notice.order.taken"
	case errors.Is(err, ledger.ErrInsufficientCredit):
		return "notice.credit.low"
	case errors.Is(err, dispatch.ErrPermission):
		return "notice.accept.forbidden"
	case errors.Is(err, moderation.ErrPermission):
		return "notice.forbidden"
	case errors.Is(err, moderation.ErrAlreadyResolved):
		return "notice.resolved"
	case errors.Is(err, moderation.ErrNotDriver):
		return "notice.not_driver"
	case errors.Is(err, moderation.ErrAlreadyDriver):
		return "notice.already_driver"
	case isAny(err, order.ErrNotOwner, order.ErrInvalidState, order.ErrConflict):
		return "notice.order.locked"
	case isAny(err, order.ErrNotFound, moderation.ErrNotFound, user.ErrNotFound):
		return "notice.notfound"
	case isAny(err, order.ErrBadRequest, moderation.ErrBadRequest, conversation.ErrValidation, pricing.ErrNotPriced):
		return "notice.invalid"
	case isAny(err, action.ErrMalformed, moderation.ErrUnknownKind, dispatch.ErrNotDispatched, conversation.ErrUnknownFlow):
		return "notice.unknown"
	case errors.Is(err, gateway.ErrGateway):
		return "notice.unreachable"
	}
	return "notice.error"
}
