// README: Moderator API: pending queues and approve/reject/reply decisions.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"caravan/internal/modules/moderation"
	"caravan/internal/types"
)

type ModerationHandler struct {
	wf *moderation.Workflow
}

func NewModerationHandler(wf *moderation.Workflow) *ModerationHandler {
	return &ModerationHandler{wf: wf}
}

type applicationResp struct {
	ID          string    `json:"id"`
	ApplicantID int64     `json:"applicant_id"`
	Direction   string    `json:"direction"`
	FullName    string    `json:"full_name"`
	Phone       string    `json:"phone"`
	CarModel    string    `json:"car_model"`
	CarNumber   string    `json:"car_number"`
	CarYear     int       `json:"car_year"`
	Capacity    int       `json:"capacity"`
	CreatedAt   time.Time `json:"created_at"`
}

type topUpResp struct {
	ID        string    `json:"id"`
	DriverID  int64     `json:"driver_id"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

type requestResp struct {
	Kind      string `json:"kind"`
	ID        string `json:"id"`
	Submitter int64  `json:"submitter"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

type reasonReq struct {
	Reason string `json:"reason"`
}

type replyReq struct {
	Text string `json:"text"`
}

func limitParam(c *gin.Context) int {
	n, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || n <= 0 || n > 100 {
		return 20
	}
	return n
}

func (h *ModerationHandler) ListApplications(c *gin.Context) {
	apps, err := h.wf.PendingApplications(c.Request.Context(), limitParam(c))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	out := make([]applicationResp, 0, len(apps))
	for _, a := range apps {
		out = append(out, applicationResp{
			ID:          string(a.ID),
			ApplicantID: int64(a.ApplicantID),
			Direction:   a.Direction,
			FullName:    a.FullName,
			Phone:       a.Phone,
			CarModel:    a.CarModel,
			CarNumber:   a.CarNumber,
			CarYear:     a.CarYear,
			Capacity:    a.Capacity,
			CreatedAt:   a.CreatedAt,
		})
	}
	writeJSON(c, http.StatusOK, out)
}

func (h *ModerationHandler) ListTopUps(c *gin.Context) {
	reqs, err := h.wf.PendingTopUps(c.Request.Context(), limitParam(c))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	out := make([]topUpResp, 0, len(reqs))
	for _, t := range reqs {
		out = append(out, topUpResp{ID: string(t.ID), DriverID: int64(t.DriverID), Amount: t.Amount, CreatedAt: t.CreatedAt})
	}
	writeJSON(c, http.StatusOK, out)
}

func (h *ModerationHandler) Approve(c *gin.Context) {
	d, ok := decision(c)
	if !ok {
		return
	}
	r, err := h.wf.Approve(c.Request.Context(), d)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toRequestResp(r))
}

func (h *ModerationHandler) Reject(c *gin.Context) {
	d, ok := decision(c)
	if !ok {
		return
	}
	var req reasonReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	d.Reason = req.Reason
	r, err := h.wf.Reject(c.Request.Context(), d)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toRequestResp(r))
}

func (h *ModerationHandler) Reply(c *gin.Context) {
	d, ok := decision(c)
	if !ok {
		return
	}
	var req replyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.wf.Reply(c.Request.Context(), moderation.ReplyCommand{
		Kind:        d.Kind,
		ID:          d.ID,
		ModeratorID: d.ModeratorID,
		Text:        req.Text,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// decision reads kind, id and the caller. It writes the error response itself.
func decision(c *gin.Context) (moderation.Decision, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid id")
		return moderation.Decision{}, false
	}
	mod, ok := moderatorID(c)
	if !ok {
		return moderation.Decision{}, false
	}
	return moderation.Decision{Kind: moderation.Kind(c.Param("kind")), ID: types.ID(id), ModeratorID: mod}, true
}

func toRequestResp(r moderation.Request) requestResp {
	return requestResp{
		Kind:      string(r.Kind),
		ID:        string(r.ID),
		Submitter: int64(r.Submitter),
		Status:    string(r.Status),
		Reason:    r.Reason,
	}
}
