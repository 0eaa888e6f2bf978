// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"caravan/internal/http/middleware"
	"caravan/internal/modules/ledger"
	"caravan/internal/modules/moderation"
	"caravan/internal/modules/order"
	"caravan/internal/modules/pricing"
	"caravan/internal/modules/user"
	"caravan/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts the ids minted by the stores: uuids and short alphanumerics.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeDomainError maps module sentinels to HTTP statuses.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, order.ErrBadRequest), errors.Is(err, moderation.ErrBadRequest),
		errors.Is(err, moderation.ErrUnknownKind), errors.Is(err, pricing.ErrInvalidRate),
		errors.Is(err, ledger.ErrInvalidAmount):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, moderation.ErrPermission), errors.Is(err, order.ErrNotOwner):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, order.ErrNotFound), errors.Is(err, moderation.ErrNotFound),
		errors.Is(err, user.ErrNotFound), errors.Is(err, pricing.ErrNotPriced),
		errors.Is(err, ledger.ErrUnknownUser):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrInvalidState), errors.Is(err, order.ErrConflict),
		errors.Is(err, order.ErrAlreadyAccepted), errors.Is(err, moderation.ErrAlreadyResolved):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrInsufficientCredit):
		writeError(c, http.StatusPaymentRequired, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// moderatorID is the bot user behind the token. Requests without a tg_id claim are refused.
func moderatorID(c *gin.Context) (types.UserID, bool) {
	id, ok := middleware.CallerTelegramID(c)
	if !ok {
		writeError(c, http.StatusForbidden, "token is not linked to a telegram account")
		return 0, false
	}
	return id, true
}
