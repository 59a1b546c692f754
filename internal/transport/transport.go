package transport

import (
	"net/http"
	"time"

	"github.com/ds124wfegd/spa-booking/internal/transport/middleware"
	"github.com/ds124wfegd/spa-booking/internal/ws"
	"github.com/gin-gonic/gin"
)

// Handlers groups everything the router serves.
type Handlers struct {
	Booking    *BookingHandler
	Commission *CommissionHandler
	Chat       *ChatHandler
	Review     *ReviewHandler
	Account    *AccountHandler
	Admin      *AdminHandler
	Hub        *ws.Hub
}

func InitRoutes(h Handlers, requestTimeout time.Duration) *gin.Engine {

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())

	// Websocket соединение живёт дольше таймаута запроса
	if h.Hub != nil {
		router.GET("/ws", ws.Upgrade(h.Hub))
	}

	router.GET("/health", func(c *gin.Context) {
		respond(c, http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().UTC(),
		})
	})

	api := router.Group("/api/v1")
	api.Use(middleware.Timeout(requestTimeout))
	{
		functions := api.Group("/functions")
		{
			functions.POST("/confirmPaymentReceived", h.Booking.ConfirmPaymentReceived)
			functions.POST("/sendChatMessage", h.Chat.SendMessage)
			functions.POST("/submitReview", h.Review.SubmitReview)
			functions.POST("/sendReviewDiscount", h.Review.IssueDiscount)
			functions.POST("/validateDiscount", h.Review.ValidateDiscount)
		}

		bookings := api.Group("/bookings")
		{
			bookings.POST("", h.Booking.CreateBooking)
			bookings.GET("/:id", h.Booking.GetBooking)
			bookings.POST("/:id/respond", h.Booking.RespondToBooking)
			bookings.POST("/:id/start", h.Booking.StartService)
			bookings.POST("/:id/complete", h.Booking.MarkCompleted)
			bookings.POST("/:id/expire", h.Booking.ExpireBooking)
		}

		commissions := api.Group("/commissions")
		{
			commissions.GET("/:booking_id", h.Commission.GetCommission)
			commissions.POST("/:booking_id/proof", h.Commission.SubmitPaymentProof)
		}

		api.GET("/chat/rooms/:room_id/messages", h.Chat.ListMessages)
		api.GET("/reviews/links/:token", h.Review.ResolveReviewLink)
		api.GET("/discounts/:code", h.Review.GetDiscountCode)

		accounts := api.Group("/accounts")
		{
			accounts.GET("/:user_id", h.Account.GetAccount)
			accounts.POST("/:user_id/telegram", h.Account.LinkTelegram)
			accounts.GET("/:user_id/notifications", h.Account.ListNotifications)
			accounts.GET("/:user_id/bookings", h.Booking.ListBookings)
		}

		admin := api.Group("/admin")
		{
			admin.POST("/accounts/:user_id/clear-restriction", h.Account.ClearRestriction)
			admin.GET("/queue/stats", h.Admin.QueueStats)
			admin.GET("/queue/failed", h.Admin.FailedTasks)
			admin.POST("/queue/failed/:task_id/requeue", h.Admin.RequeueFailedTask)
		}
	}

	return router
}
