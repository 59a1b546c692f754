package transport

import (
	"net/http"
	"strconv"

	"github.com/ds124wfegd/spa-booking/internal/service"
	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chatService service.ChatService
}

func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// SendMessage: POST /functions/sendChatMessage
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req service.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	msg, err := h.chatService.SendMessage(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusCreated, msg)
}

// ListMessages: GET /chat/rooms/:room_id/messages?user_id=&limit=
func (h *ChatHandler) ListMessages(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	messages, err := h.chatService.ListMessages(c.Request.Context(), c.Param("room_id"), c.Query("user_id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, messages)
}
