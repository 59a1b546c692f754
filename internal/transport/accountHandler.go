package transport

import (
	"net/http"
	"strconv"

	"github.com/ds124wfegd/spa-booking/internal/service"
	"github.com/gin-gonic/gin"
)

type AccountHandler struct {
	accountService service.AccountService
	chatService    service.ChatService
}

func NewAccountHandler(accountService service.AccountService, chatService service.ChatService) *AccountHandler {
	return &AccountHandler{accountService: accountService, chatService: chatService}
}

func (h *AccountHandler) GetAccount(c *gin.Context) {
	account, err := h.accountService.GetAccount(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, account)
}

func (h *AccountHandler) LinkTelegram(c *gin.Context) {
	var req struct {
		TelegramID string `json:"telegram_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	if err := h.accountService.LinkTelegram(c.Request.Context(), c.Param("user_id"), req.TelegramID); err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{"linked": true})
}

func (h *AccountHandler) ListNotifications(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	notifications, err := h.accountService.ListNotifications(c.Request.Context(), c.Param("user_id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, notifications)
}

// ClearRestriction lifts a restriction and resets the violation counter.
func (h *AccountHandler) ClearRestriction(c *gin.Context) {
	cleared, err := h.chatService.ClearRestriction(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{"cleared": cleared})
}
