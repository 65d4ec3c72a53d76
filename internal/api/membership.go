package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/relaychat/internal/chat"
	"github.com/lalith-99/relaychat/internal/middleware"
	"go.uber.org/zap"
)

// MembershipHandler handles chat membership after creation.
type MembershipHandler struct {
	svc    *chat.Service
	logger *zap.Logger
}

func NewMembershipHandler(svc *chat.Service, logger *zap.Logger) *MembershipHandler {
	return &MembershipHandler{svc: svc, logger: logger}
}

type addMembersRequest struct {
	UserIDs []uuid.UUID `json:"user_ids" binding:"required,min=1"`
}

// Add handles POST /v1/chats/:id/members. Only a group admin may add, and
// everyone added joins as a plain member.
func (h *MembershipHandler) Add(c *gin.Context) {
	chatID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req addMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}

	if err := h.svc.AddMembers(c.Request.Context(), chatID, middleware.GetUserID(c), req.UserIDs); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListMembers handles GET /v1/chats/:id/members
func (h *MembershipHandler) ListMembers(c *gin.Context) {
	chatID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	members, err := h.svc.ListMembers(c.Request.Context(), chatID, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, members)
}
