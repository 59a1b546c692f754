package transport

import (
	"net/http"
	"strconv"

	"github.com/ds124wfegd/spa-booking/internal/service"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	bookingService service.BookingService
}

func NewBookingHandler(bookingService service.BookingService) *BookingHandler {
	return &BookingHandler{bookingService: bookingService}
}

func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req service.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	booking, err := h.bookingService.CreateBooking(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusCreated, booking)
}

// ListBookings: GET /accounts/:user_id/bookings?role=customer|provider&limit=
func (h *BookingHandler) ListBookings(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	bookings, err := h.bookingService.ListBookings(c.Request.Context(), c.Param("user_id"), service.BookingRole(c.Query("role")), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, bookings)
}

func (h *BookingHandler) GetBooking(c *gin.Context) {
	booking, err := h.bookingService.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, booking)
}

func (h *BookingHandler) RespondToBooking(c *gin.Context) {
	var req service.RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	booking, err := h.bookingService.RespondToBooking(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, booking)
}

func (h *BookingHandler) StartService(c *gin.Context) {
	booking, err := h.bookingService.StartService(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, booking)
}

func (h *BookingHandler) MarkCompleted(c *gin.Context) {
	booking, err := h.bookingService.MarkCompleted(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, booking)
}

// ExpireBooking expires the booking if its response deadline has passed.
func (h *BookingHandler) ExpireBooking(c *gin.Context) {
	booking, expired, err := h.bookingService.ExpireIfOverdue(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{"booking": booking, "expired": expired})
}

// ConfirmPaymentReceived: POST /functions/confirmPaymentReceived {booking_id}
func (h *BookingHandler) ConfirmPaymentReceived(c *gin.Context) {
	var req struct {
		BookingID string `json:"booking_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	confirmation, err := h.bookingService.ConfirmPaymentReceived(c.Request.Context(), req.BookingID)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, confirmation)
}
