package transport

import (
	"net/http"

	"github.com/ds124wfegd/spa-booking/internal/service"
	"github.com/gin-gonic/gin"
)

type ReviewHandler struct {
	reviewService service.ReviewService
}

func NewReviewHandler(reviewService service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

// SubmitReview: POST /functions/submitReview
func (h *ReviewHandler) SubmitReview(c *gin.Context) {
	var req service.SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	review, err := h.reviewService.SubmitReview(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusCreated, review)
}

func (h *ReviewHandler) ResolveReviewLink(c *gin.Context) {
	link, err := h.reviewService.ResolveReviewLink(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, link)
}

func (h *ReviewHandler) GetDiscountCode(c *gin.Context) {
	code, err := h.reviewService.GetDiscountCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, code)
}

// IssueDiscount: POST /functions/sendReviewDiscount
func (h *ReviewHandler) IssueDiscount(c *gin.Context) {
	var req service.IssueDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	code, err := h.reviewService.IssueDiscount(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusCreated, code)
}

// ValidateDiscount: POST /functions/validateDiscount {code, booking_id}
func (h *ReviewHandler) ValidateDiscount(c *gin.Context) {
	var req struct {
		Code      string `json:"code"`
		BookingID string `json:"booking_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	redemption, err := h.reviewService.RedeemDiscountCode(c.Request.Context(), req.Code, req.BookingID)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, redemption)
}
