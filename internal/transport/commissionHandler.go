package transport

import (
	"net/http"

	"github.com/ds124wfegd/spa-booking/internal/service"
	"github.com/gin-gonic/gin"
)

type CommissionHandler struct {
	commissionService service.CommissionService
}

func NewCommissionHandler(commissionService service.CommissionService) *CommissionHandler {
	return &CommissionHandler{commissionService: commissionService}
}

func (h *CommissionHandler) GetCommission(c *gin.Context) {
	status, err := h.commissionService.Check(c.Request.Context(), c.Param("booking_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"record":            status.Record,
		"stage":             status.Stage.String(),
		"time_left_seconds": int64(status.TimeLeft.Seconds()),
	})
}

func (h *CommissionHandler) SubmitPaymentProof(c *gin.Context) {
	var req struct {
		ProofURL string `json:"proof_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	rec, err := h.commissionService.SubmitPaymentProof(c.Request.Context(), c.Param("booking_id"), req.ProofURL)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, rec)
}
