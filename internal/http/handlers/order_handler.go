// README: Order lookup and pricing administration for moderators.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"caravan/internal/modules/order"
	"caravan/internal/modules/pricing"
	"caravan/internal/types"
)

type OrderHandler struct {
	order   *order.Service
	pricing *pricing.Service
}

func NewOrderHandler(orders *order.Service, prices *pricing.Service) *OrderHandler {
	return &OrderHandler{order: orders, pricing: prices}
}

type eventResp struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Actor     string    `json:"actor"`
	ActorID   *int64    `json:"actor_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type orderResp struct {
	ID          string         `json:"id"`
	Category    string         `json:"category"`
	RequesterID int64          `json:"requester_id"`
	FullName    string         `json:"full_name"`
	Phone       string         `json:"phone"`
	From        order.Location `json:"from"`
	To          order.Location `json:"to"`
	TravelDate  string         `json:"travel_date"`
	Status      string         `json:"status"`
	AcceptedBy  *int64         `json:"accepted_by,omitempty"`
	Cost        int64          `json:"cost"`
	Payload     order.Payload  `json:"payload"`
	Events      []eventResp    `json:"events"`
}

type rateReq struct {
	PerUnit *int64 `json:"per_unit"`
	Flat    *int64 `json:"flat"`
}

func optionalID(id *types.UserID) *int64 {
	if id == nil {
		return nil
	}
	v := int64(*id)
	return &v
}

func (h *OrderHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return
	}
	ctx := c.Request.Context()
	o, err := h.order.Get(ctx, types.ID(id))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	evs, err := h.order.Events(ctx, o.ID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	resp := orderResp{
		ID:          string(o.ID),
		Category:    string(o.Category),
		RequesterID: int64(o.RequesterID),
		FullName:    o.FullName,
		Phone:       o.Phone,
		From:        o.From,
		To:          o.To,
		TravelDate:  o.TravelDate,
		Status:      string(o.Status),
		AcceptedBy:  optionalID(o.AcceptedBy),
		Cost:        o.Cost,
		Payload:     o.Payload,
		Events:      make([]eventResp, 0, len(evs)),
	}
	for _, e := range evs {
		resp.Events = append(resp.Events, eventResp{
			From:      string(e.FromStatus),
			To:        string(e.ToStatus),
			Actor:     string(e.ActorType),
			ActorID:   optionalID(e.ActorID),
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(c, http.StatusOK, resp)
}

func (h *OrderHandler) GetRate(c *gin.Context) {
	r, err := h.pricing.Rate(c.Request.Context(), order.Category(c.Param("category")))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"category": r.Category, "per_unit": r.PerUnit, "flat": r.Flat})
}

func (h *OrderHandler) SetRate(c *gin.Context) {
	var req rateReq
	if err := c.ShouldBindJSON(&req); err != nil || req.PerUnit == nil || req.Flat == nil {
		writeError(c, http.StatusBadRequest, "per_unit and flat are required")
		return
	}
	category := order.Category(c.Param("category"))
	if err := h.pricing.SetRate(c.Request.Context(), category, *req.PerUnit, *req.Flat); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"category": string(category), "per_unit": *req.PerUnit, "flat": *req.Flat})
}
