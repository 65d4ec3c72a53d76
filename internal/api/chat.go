package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/relaychat/internal/chat"
	"github.com/lalith-99/relaychat/internal/middleware"
	"go.uber.org/zap"
)

// ChatHandler is the request/response side of chats. Every mutation goes
// through chat.Service, so live subscribers see the same events whether a
// change came from here or from the WebSocket gateway.
type ChatHandler struct {
	svc    *chat.Service
	logger *zap.Logger
}

func NewChatHandler(svc *chat.Service, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger}
}

// createChatRequest is the body for POST /v1/chats. The creator is taken
// from the token and does not need to be listed.
type createChatRequest struct {
	MemberIDs []uuid.UUID `json:"member_ids" binding:"required,min=1"`
	IsGroup   bool        `json:"is_group"`
	Name      string      `json:"name"`
}

// Create handles POST /v1/chats
func (h *ChatHandler) Create(c *gin.Context) {
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}

	ch, err := h.svc.CreateChat(c.Request.Context(), middleware.GetUserID(c), req.MemberIDs, req.IsGroup, req.Name)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, ch)
}

// List handles GET /v1/chats
func (h *ChatHandler) List(c *gin.Context) {
	chats, err := h.svc.ListChats(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, chats)
}

// Get handles GET /v1/chats/:id
func (h *ChatHandler) Get(c *gin.Context) {
	chatID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	ch, err := h.svc.GetChat(c.Request.Context(), chatID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, ch)
}

// MarkRead handles PUT /v1/chats/:id/read
func (h *ChatHandler) MarkRead(c *gin.Context) {
	chatID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	n, err := h.svc.MarkRead(c.Request.Context(), chatID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": n})
}

type pinRequest struct {
	MessageID int64 `json:"message_id" binding:"required,gt=0"`
}

// Pin handles POST /v1/chats/:id/pin
func (h *ChatHandler) Pin(c *gin.Context) {
	chatID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req pinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}

	if err := h.svc.PinMessage(c.Request.Context(), chatID, middleware.GetUserID(c), req.MessageID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Unpin handles DELETE /v1/chats/:id/pin
func (h *ChatHandler) Unpin(c *gin.Context) {
	chatID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if err := h.svc.UnpinMessage(c.Request.Context(), chatID, middleware.GetUserID(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}
